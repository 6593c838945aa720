// Package cloudflare provides the Cloudflare Access provider. Callers reach
// the service through an Access application, which forwards a signed
// assertion that is verified against the team's published key set.
package cloudflare

import (
	"net/url"
	"strings"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

const (
	// CertsPath is the path of the team key set below the team domain.
	CertsPath = "/cdn-cgi/access/certs"

	// AssertionHeader carries the Access assertion on forwarded requests.
	AssertionHeader = "Cf-Access-Jwt-Assertion"
)

// Provider implements cloudauth.Provider for Cloudflare Access. It hosts no
// probe endpoints; it only authenticates callers.
type Provider struct{}

// New creates a new Cloudflare provider.
func New() *Provider {
	return &Provider{}
}

// Name implements cloudauth.Provider.
func (p *Provider) Name() cloudauth.CloudProvider {
	return cloudauth.ProviderCloudflare
}

// Capabilities implements cloudauth.Provider.
func (p *Provider) Capabilities() []cloudauth.Capability {
	return []cloudauth.Capability{cloudauth.CapabilityCallerAuth}
}

// HasCapability implements cloudauth.Provider.
func (p *Provider) HasCapability(cap cloudauth.Capability) bool {
	return cap == cloudauth.CapabilityCallerAuth
}

// Classify implements cloudauth.Provider. Cloudflare has no endpoint kinds.
func (p *Provider) Classify(*url.URL) cloudauth.EndpointKind {
	return ""
}

// Authorizers implements cloudauth.Provider.
func (p *Provider) Authorizers() map[cloudauth.EndpointKind]cloudauth.Authorizer {
	return nil
}

// CertsURL returns the key set URL of a team domain such as
// "https://team.cloudflareaccess.com".
func CertsURL(teamDomain string) string {
	return strings.TrimRight(teamDomain, "/") + CertsPath
}

func init() {
	// Register with default registry
	cloudauth.DefaultRegistry.MustRegister(New())
}
