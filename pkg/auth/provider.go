package auth

import (
	"context"

	"golang.org/x/oauth2"
)

// Provider defines the common interface implemented by all OAuth providers.
type Provider interface {
	// Name returns the identifier used to look the provider up (e.g. "line").
	Name() string
	// AuthURL issues a fresh state token and returns the provider-specific authorization URL.
	AuthURL(ctx context.Context) (string, error)
	// Login verifies the state, exchanges an authorization code and returns a User.
	Login(ctx context.Context, code, state string) (*User, error)
}

// Handshaker is the set of authorization-code operations a strategy delegates
// to the generic OAuth2 engine. *oauth2.Config satisfies it.
type Handshaker interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)
	TokenSource(ctx context.Context, t *oauth2.Token) oauth2.TokenSource
}

var _ Handshaker = (*oauth2.Config)(nil)
