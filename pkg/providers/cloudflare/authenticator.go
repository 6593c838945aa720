package cloudflare

import (
	"context"
	"errors"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-logr/logr"
	"github.com/golang-jwt/jwt/v5"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

// KeySource yields the currently published verification keys.
type KeySource interface {
	Keys(ctx context.Context) ([]jose.JSONWebKey, error)
}

// AccessAuthenticator implements cloudauth.Authenticator for Cloudflare
// Access assertions. A token is accepted when its signature verifies under
// any key of the current key set and its audience equals the configured
// application audience.
type AccessAuthenticator struct {
	keys     KeySource
	audience string
	issuer   string
	log      logr.Logger
}

// AuthenticatorOption configures the AccessAuthenticator.
type AuthenticatorOption func(*AccessAuthenticator)

// WithIssuer requires the token issuer to equal issuer, normally the team
// domain.
func WithIssuer(issuer string) AuthenticatorOption {
	return func(a *AccessAuthenticator) {
		a.issuer = strings.TrimRight(issuer, "/")
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) AuthenticatorOption {
	return func(a *AccessAuthenticator) {
		a.log = l
	}
}

// NewAccessAuthenticator creates an authenticator verifying tokens for
// audience against keys.
func NewAccessAuthenticator(keys KeySource, audience string, opts ...AuthenticatorOption) *AccessAuthenticator {
	a := &AccessAuthenticator{
		keys:     keys,
		audience: audience,
		log:      logr.Discard(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Authenticate implements cloudauth.Authenticator.
func (a *AccessAuthenticator) Authenticate(ctx context.Context, token string) (*cloudauth.Claims, error) {
	if token == "" {
		return nil, cloudauth.ErrUnauthenticated("missing bearer token")
	}

	keys, err := a.keys.Keys(ctx)
	if err != nil {
		if cloudauth.IsCategory(err, cloudauth.ErrCategoryKeySource) {
			return nil, err
		}
		return nil, cloudauth.ErrKeySource("verification keys unavailable").
			WithCause(err).
			WithProvider(cloudauth.ProviderCloudflare)
	}
	if len(keys) == 0 {
		return nil, cloudauth.ErrKeySource("key set is empty").
			WithProvider(cloudauth.ProviderCloudflare)
	}

	var lastErr error
	for _, key := range keys {
		claims, err := a.verify(token, key)
		if err == nil {
			return claims, nil
		}
		lastErr = err

		// A malformed token or a verified token with bad claims fails the
		// same way under every key.
		if errors.Is(err, jwt.ErrTokenMalformed) || errors.Is(err, jwt.ErrTokenInvalidClaims) {
			break
		}
	}

	a.log.V(1).Info("access token rejected", "keys", len(keys), "error", lastErr.Error())
	return nil, cloudauth.ErrInvalidToken("token verification failed").
		WithCause(lastErr).
		WithProvider(cloudauth.ProviderCloudflare)
}

func (a *AccessAuthenticator) verify(token string, key jose.JSONWebKey) (*cloudauth.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithAudience(a.audience),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	if key.Algorithm != "" {
		opts = append(opts, jwt.WithValidMethods([]string{key.Algorithm}))
	}

	var claims accessClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return key.Key, nil
	}, opts...)
	if err != nil {
		return nil, err
	}

	out := &cloudauth.Claims{
		Subject:  claims.Subject,
		Email:    claims.Email,
		Issuer:   claims.Issuer,
		Audience: claims.Audience,
		KeyID:    key.KeyID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
