package gcp

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"google.golang.org/api/idtoken"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

// ValidateFunc verifies a Google-issued ID token for audience.
type ValidateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// IDTokenAuthenticator implements cloudauth.Authenticator for callers that
// present Google-issued ID tokens. Signature keys are fetched and cached by
// the idtoken package.
type IDTokenAuthenticator struct {
	audience string
	validate ValidateFunc
	log      logr.Logger
}

// AuthenticatorOption configures the IDTokenAuthenticator.
type AuthenticatorOption func(*IDTokenAuthenticator)

// WithValidateFunc replaces the token validator.
func WithValidateFunc(fn ValidateFunc) AuthenticatorOption {
	return func(a *IDTokenAuthenticator) {
		a.validate = fn
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) AuthenticatorOption {
	return func(a *IDTokenAuthenticator) {
		a.log = l
	}
}

// NewIDTokenAuthenticator creates an authenticator accepting tokens whose
// audience equals audience.
func NewIDTokenAuthenticator(audience string, opts ...AuthenticatorOption) *IDTokenAuthenticator {
	a := &IDTokenAuthenticator{
		audience: audience,
		validate: idtoken.Validate,
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate implements cloudauth.Authenticator.
func (a *IDTokenAuthenticator) Authenticate(ctx context.Context, token string) (*cloudauth.Claims, error) {
	if token == "" {
		return nil, cloudauth.ErrUnauthenticated("missing bearer token")
	}

	payload, err := a.validate(ctx, token, a.audience)
	if err != nil {
		a.log.V(1).Info("id token rejected", "error", err.Error())
		return nil, cloudauth.ErrInvalidToken("id token verification failed").
			WithCause(err).
			WithProvider(cloudauth.ProviderGCP)
	}
	if payload.Audience != a.audience {
		return nil, cloudauth.ErrInvalidToken("audience mismatch").
			WithProvider(cloudauth.ProviderGCP).
			WithDetail("audience", payload.Audience)
	}

	claims := &cloudauth.Claims{
		Subject:   payload.Subject,
		Issuer:    payload.Issuer,
		Audience:  []string{payload.Audience},
		ExpiresAt: time.Unix(payload.Expires, 0),
	}
	if email, ok := payload.Claims["email"].(string); ok {
		claims.Email = email
	}
	return claims, nil
}
