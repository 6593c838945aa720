package gcp

import (
	"context"

	"golang.org/x/oauth2"
	"google.golang.org/api/idtoken"
	"google.golang.org/api/option"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

// TokenSourceFunc builds a token source whose tokens carry audience.
type TokenSourceFunc func(ctx context.Context, audience string) (oauth2.TokenSource, error)

// IdentityTokenSource implements cloudauth.IdentityTokenSource using the
// ambient Google credentials: the metadata server on Cloud Run, or a
// service account key file during local development.
type IdentityTokenSource struct {
	newSource TokenSourceFunc
}

// TokenOption configures the IdentityTokenSource.
type TokenOption func(*IdentityTokenSource)

// WithCredentialsFile mints tokens from a service account key file instead
// of the metadata server.
func WithCredentialsFile(path string) TokenOption {
	return func(s *IdentityTokenSource) {
		if path == "" {
			return
		}
		s.newSource = func(ctx context.Context, audience string) (oauth2.TokenSource, error) {
			return idtoken.NewTokenSource(ctx, audience, option.WithCredentialsFile(path))
		}
	}
}

// WithTokenSourceFunc replaces the token source constructor.
func WithTokenSourceFunc(fn TokenSourceFunc) TokenOption {
	return func(s *IdentityTokenSource) {
		s.newSource = fn
	}
}

// NewIdentityTokenSource creates an IdentityTokenSource.
func NewIdentityTokenSource(opts ...TokenOption) *IdentityTokenSource {
	s := &IdentityTokenSource{
		newSource: func(ctx context.Context, audience string) (oauth2.TokenSource, error) {
			return idtoken.NewTokenSource(ctx, audience)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IdentityToken implements cloudauth.IdentityTokenSource. A new source is
// built per call so no token outlives the request that asked for it.
func (s *IdentityTokenSource) IdentityToken(ctx context.Context, audience string) (string, error) {
	if audience == "" {
		return "", cloudauth.ErrValidation("audience is required").WithProvider(cloudauth.ProviderGCP)
	}

	ts, err := s.newSource(ctx, audience)
	if err != nil {
		return "", cloudauth.ErrCredential("failed to create identity token source").
			WithCause(err).
			WithProvider(cloudauth.ProviderGCP).
			WithDetail("audience", audience)
	}

	tok, err := ts.Token()
	if err != nil {
		return "", cloudauth.ErrCredential("failed to mint identity token").
			WithCause(err).
			WithProvider(cloudauth.ProviderGCP).
			WithDetail("audience", audience)
	}
	if tok.AccessToken == "" {
		return "", cloudauth.ErrCredential("identity token is empty").
			WithProvider(cloudauth.ProviderGCP).
			WithDetail("audience", audience)
	}
	return tok.AccessToken, nil
}
