package cloudauth

import (
	"context"
	"net/http"
	"net/url"
)

// Authenticator verifies the bearer token of an inbound caller.
// Authentication is stateless: every request is verified independently.
type Authenticator interface {
	// Authenticate verifies token and returns the caller claims.
	// An empty token fails with ErrCategoryUnauthenticated; a token that
	// cannot be verified fails with ErrCategoryInvalidToken, or with
	// ErrCategoryKeySource when verification keys are unavailable.
	Authenticate(ctx context.Context, token string) (*Claims, error)
}

// IdentityTokenSource mints identity tokens for the running workload.
type IdentityTokenSource interface {
	// IdentityToken returns a fresh identity token scoped to audience.
	IdentityToken(ctx context.Context, audience string) (string, error)
}

// WebIdentityExchanger trades an identity token for temporary cloud
// credentials through a federated assume-role call.
type WebIdentityExchanger interface {
	// ExchangeWebIdentity exchanges token for temporary credentials.
	ExchangeWebIdentity(ctx context.Context, token string) (*CloudCredential, error)
}

// Authorizer applies outbound authorization to a probe request.
// Implementations must not retain the material after returning.
type Authorizer interface {
	// Authorize mutates req so the endpoint in region accepts it.
	Authorize(ctx context.Context, req *http.Request, region string, m *Material) error
}

// AuthorizerFunc adapts an ordinary function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, req *http.Request, region string, m *Material) error

// Authorize implements Authorizer.
func (f AuthorizerFunc) Authorize(ctx context.Context, req *http.Request, region string, m *Material) error {
	return f(ctx, req, region, m)
}

// Anonymous is an Authorizer that leaves requests untouched.
var Anonymous Authorizer = AuthorizerFunc(func(context.Context, *http.Request, string, *Material) error {
	return nil
})

// Provider is the base interface for cloud provider implementations.
// A provider knows how to classify its endpoints and which authorizer
// serves each endpoint kind it produces.
type Provider interface {
	// Name returns the provider identifier.
	Name() CloudProvider

	// Capabilities returns the features supported by this provider.
	Capabilities() []Capability

	// HasCapability checks if the provider supports a specific capability.
	HasCapability(cap Capability) bool

	// Classify derives the endpoint kind for an endpoint URL.
	Classify(u *url.URL) EndpointKind

	// Authorizers returns the authorizer for every kind Classify can return.
	Authorizers() map[EndpointKind]Authorizer
}
