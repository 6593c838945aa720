// Package azure provides the Azure provider. Azure Functions probe
// endpoints are invoked anonymously.
package azure

import (
	"net/url"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

// Provider implements cloudauth.Provider for Azure.
type Provider struct{}

// New creates a new Azure provider.
func New() *Provider {
	return &Provider{}
}

// Name implements cloudauth.Provider.
func (p *Provider) Name() cloudauth.CloudProvider {
	return cloudauth.ProviderAzure
}

// Capabilities implements cloudauth.Provider.
func (p *Provider) Capabilities() []cloudauth.Capability {
	return []cloudauth.Capability{cloudauth.CapabilityAnonymous}
}

// HasCapability implements cloudauth.Provider.
func (p *Provider) HasCapability(cap cloudauth.Capability) bool {
	return cap == cloudauth.CapabilityAnonymous
}

// Classify implements cloudauth.Provider.
func (p *Provider) Classify(u *url.URL) cloudauth.EndpointKind {
	if u == nil || u.Host == "" {
		return ""
	}
	return cloudauth.KindAnonymous
}

// Authorizers implements cloudauth.Provider.
func (p *Provider) Authorizers() map[cloudauth.EndpointKind]cloudauth.Authorizer {
	return map[cloudauth.EndpointKind]cloudauth.Authorizer{
		cloudauth.KindAnonymous: cloudauth.Anonymous,
	}
}

func init() {
	// Register with default registry
	cloudauth.DefaultRegistry.MustRegister(New())
}
