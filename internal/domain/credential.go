package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Validation errors for Credential
var (
	ErrEmptyCredentialID     = errors.New("credential ID cannot be empty")
	ErrEmptyCredentialSecret = errors.New("credential secret cannot be empty")
	ErrNegativeCredits       = errors.New("credential credits cannot be negative")
)

// Credential is one upstream provider API key together with the last credit
// balance observed for it.
//
// CachedCredits is an allocation hint only. The provider debits credits on its
// own when a task is submitted, so the value here is never a ledger.
type Credential struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	Secret        string     `json:"-"`
	CachedCredits int        `json:"cached_credits"`
	IsActive      bool       `json:"is_active"`
	LastCheckedAt *time.Time `json:"last_checked_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	// ManuallyDisabled records that an operator switched the credential off.
	// Automatic balance checks never turn such a credential back on.
	ManuallyDisabled bool `json:"manually_disabled"`
}

// NewCredential creates an active credential with an unknown balance.
func NewCredential(name, secret string) (*Credential, error) {
	now := time.Now().UTC()
	c := &Credential{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(name),
		Secret:    strings.TrimSpace(secret),
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks if the Credential has valid data.
func (c *Credential) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyCredentialID
	}

	if c.Secret == "" {
		return ErrEmptyCredentialSecret
	}

	if c.CachedCredits < 0 {
		return ErrNegativeCredits
	}

	return nil
}

// ApplyBalance records a freshly observed balance. The credential is active
// exactly when it has credits left and no operator has disabled it, so an
// exhausted credential is demoted and a topped-up one recovers, but a
// manually disabled one stays off.
func (c *Credential) ApplyBalance(balance int, checkedAt time.Time) {
	if balance < 0 {
		balance = 0
	}
	c.CachedCredits = balance
	c.IsActive = balance > 0 && !c.ManuallyDisabled
	at := checkedAt.UTC()
	c.LastCheckedAt = &at
	c.UpdatedAt = at
}

// DemoteOnExhaustion records a balance observed by a periodic check. The
// credential stays active only if it was active and still has credits; this
// path never turns a credential on.
func (c *Credential) DemoteOnExhaustion(balance int, checkedAt time.Time) {
	wasActive := c.IsActive
	c.ApplyBalance(balance, checkedAt)
	c.IsActive = c.IsActive && wasActive
}

// SetEnabled is the administrative toggle.
func (c *Credential) SetEnabled(enabled bool) {
	c.ManuallyDisabled = !enabled
	if enabled {
		c.IsActive = c.LastCheckedAt == nil || c.CachedCredits > 0
	} else {
		c.IsActive = false
	}
	c.UpdatedAt = time.Now().UTC()
}

// Usable reports whether the credential may be handed out for a submission
// given a balance obtained for it.
func (c *Credential) Usable(balance int) bool {
	return c.IsActive && balance > 0
}
