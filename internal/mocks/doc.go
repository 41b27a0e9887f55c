// Package mocks provides shared mock implementations of the service
// interfaces used by the HTTP layer tests.
//
// Two styles are used. MockCredentialService embeds testify's mock.Mock so
// tests can set expectations per call. MockTokenService exposes function
// fields with default return values for the simpler cases:
//
//	tokens := &mocks.MockTokenService{
//	    ValidateTokenFn: func(ctx context.Context, token string) (*auth.Claims, error) {
//	        return nil, auth.ErrInsufficientRole
//	    },
//	}
package mocks
