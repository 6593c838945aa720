// Package gcp provides the GCP provider: bearer identity token
// authorization of probe calls, identity token minting for the running
// workload and validation of Google-issued caller tokens.
package gcp

import (
	"context"
	"net/http"
	"net/url"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

// Provider implements cloudauth.Provider for GCP.
type Provider struct{}

// New creates a new GCP provider.
func New() *Provider {
	return &Provider{}
}

// Name implements cloudauth.Provider.
func (p *Provider) Name() cloudauth.CloudProvider {
	return cloudauth.ProviderGCP
}

// Capabilities implements cloudauth.Provider.
func (p *Provider) Capabilities() []cloudauth.Capability {
	return []cloudauth.Capability{
		cloudauth.CapabilityIdentityToken,
		cloudauth.CapabilityCallerAuth,
	}
}

// HasCapability implements cloudauth.Provider.
func (p *Provider) HasCapability(cap cloudauth.Capability) bool {
	for _, c := range p.Capabilities() {
		if c == cap {
			return true
		}
	}
	return false
}

// Classify implements cloudauth.Provider. Every GCP endpoint accepts the
// service's own identity token.
func (p *Provider) Classify(u *url.URL) cloudauth.EndpointKind {
	if u == nil || u.Host == "" {
		return ""
	}
	return cloudauth.KindIdentityToken
}

// Authorizers implements cloudauth.Provider.
func (p *Provider) Authorizers() map[cloudauth.EndpointKind]cloudauth.Authorizer {
	return map[cloudauth.EndpointKind]cloudauth.Authorizer{
		cloudauth.KindIdentityToken: cloudauth.AuthorizerFunc(bearer),
	}
}

func bearer(_ context.Context, req *http.Request, _ string, m *cloudauth.Material) error {
	if m == nil || m.SelfToken == "" {
		return cloudauth.ErrAuth("no identity token to present").
			WithProvider(cloudauth.ProviderGCP).
			WithOperation("authorize")
	}
	req.Header.Set("Authorization", "Bearer "+m.SelfToken)
	return nil
}

func init() {
	// Register with default registry
	cloudauth.DefaultRegistry.MustRegister(New())
}
