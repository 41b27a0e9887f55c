package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/genrelay/internal/domain"
	"github.com/phrazzld/genrelay/internal/keypool"
	"github.com/phrazzld/genrelay/internal/service"
	"github.com/stretchr/testify/mock"
)

// MockCredentialService is a testify mock of service.CredentialService.
type MockCredentialService struct {
	mock.Mock
}

var _ service.CredentialService = (*MockCredentialService)(nil)

// List implements service.CredentialService.
func (m *MockCredentialService) List(ctx context.Context) ([]*domain.Credential, error) {
	args := m.Called(ctx)
	creds, _ := args.Get(0).([]*domain.Credential)
	return creds, args.Error(1)
}

// Get implements service.CredentialService.
func (m *MockCredentialService) Get(ctx context.Context, id uuid.UUID) (*domain.Credential, error) {
	args := m.Called(ctx, id)
	cred, _ := args.Get(0).(*domain.Credential)
	return cred, args.Error(1)
}

// Create implements service.CredentialService.
func (m *MockCredentialService) Create(ctx context.Context, name, secret string) (*domain.Credential, error) {
	args := m.Called(ctx, name, secret)
	cred, _ := args.Get(0).(*domain.Credential)
	return cred, args.Error(1)
}

// SetEnabled implements service.CredentialService.
func (m *MockCredentialService) SetEnabled(
	ctx context.Context,
	id uuid.UUID,
	enabled bool,
) (*domain.Credential, error) {
	args := m.Called(ctx, id, enabled)
	cred, _ := args.Get(0).(*domain.Credential)
	return cred, args.Error(1)
}

// Delete implements service.CredentialService.
func (m *MockCredentialService) Delete(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

// Refresh implements service.CredentialService.
func (m *MockCredentialService) Refresh(ctx context.Context) (*keypool.RefreshReport, error) {
	args := m.Called(ctx)
	report, _ := args.Get(0).(*keypool.RefreshReport)
	return report, args.Error(1)
}
