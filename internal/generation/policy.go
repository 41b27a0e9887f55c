package generation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/phrazzld/genrelay/internal/config"
	"github.com/samber/lo"
)

// defaultPollTimeout applies to models configured without one.
const defaultPollTimeout = 10 * time.Minute

// EnhancementPolicy decides whether results of a model go through the
// enhancement pipeline.
type EnhancementPolicy interface {
	NeedsEnhancement(model string) bool
}

// ModelPolicy is the configured behavior for one model.
type ModelPolicy struct {
	Enhance     bool
	CreditCost  int
	PollTimeout time.Duration
}

// ModelPolicies maps model names to their policy. It implements
// EnhancementPolicy.
type ModelPolicies struct {
	defaultModel string
	pollInterval time.Duration
	models       map[string]ModelPolicy
}

var _ EnhancementPolicy = (*ModelPolicies)(nil)

// NewModelPolicies builds policies from configuration.
func NewModelPolicies(cfg config.GenerationConfig) *ModelPolicies {
	p := &ModelPolicies{
		defaultModel: cfg.DefaultModel,
		pollInterval: cfg.PollInterval(),
		models:       make(map[string]ModelPolicy, len(cfg.Models)),
	}
	for name, m := range cfg.Models {
		timeout := m.PollTimeout()
		if timeout <= 0 {
			timeout = defaultPollTimeout
		}
		p.models[strings.ToLower(name)] = ModelPolicy{
			Enhance:     m.Enhance,
			CreditCost:  m.CreditCost,
			PollTimeout: timeout,
		}
	}
	return p
}

// Resolve returns the canonical model name and its policy. An empty name
// selects the default model.
func (p *ModelPolicies) Resolve(model string) (string, ModelPolicy, error) {
	name := strings.ToLower(strings.TrimSpace(model))
	if name == "" {
		name = strings.ToLower(p.defaultModel)
	}
	policy, ok := p.models[name]
	if !ok {
		return "", ModelPolicy{}, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return name, policy, nil
}

// NeedsEnhancement implements EnhancementPolicy.
func (p *ModelPolicies) NeedsEnhancement(model string) bool {
	_, policy, err := p.Resolve(model)
	return err == nil && policy.Enhance
}

// PollInterval is the cadence clients should poll at.
func (p *ModelPolicies) PollInterval() time.Duration {
	return p.pollInterval
}

// Models lists the configured model names in sorted order.
func (p *ModelPolicies) Models() []string {
	names := lo.Keys(p.models)
	sort.Strings(names)
	return names
}
