// Package aws provides the AWS provider: SigV4 authorization of probe calls
// and the web identity exchange that yields the signing credentials.
package aws

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

const (
	// ServiceLambda is the signing name of function URLs.
	ServiceLambda = "lambda"
	// ServiceExecuteAPI is the signing name of API Gateway endpoints.
	ServiceExecuteAPI = "execute-api"

	// emptyPayloadHash is the SHA-256 of an empty body. Probe calls are
	// GET requests without a body.
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// Provider implements cloudauth.Provider for AWS.
type Provider struct {
	signer *v4.Signer
	now    func() time.Time
}

// ProviderOption configures the Provider.
type ProviderOption func(*Provider)

// WithSigner sets the SigV4 signer.
func WithSigner(s *v4.Signer) ProviderOption {
	return func(p *Provider) {
		p.signer = s
	}
}

// WithClock sets the clock used for signing time.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *Provider) {
		p.now = now
	}
}

// New creates a new AWS provider.
func New(opts ...ProviderOption) *Provider {
	p := &Provider{
		signer: v4.NewSigner(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements cloudauth.Provider.
func (p *Provider) Name() cloudauth.CloudProvider {
	return cloudauth.ProviderAWS
}

// Capabilities implements cloudauth.Provider.
func (p *Provider) Capabilities() []cloudauth.Capability {
	return []cloudauth.Capability{
		cloudauth.CapabilityRequestSigning,
		cloudauth.CapabilityFederationOIDC,
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

// Classify implements cloudauth.Provider. Hosts that mention "lambda" are
// function URLs; everything else is treated as an API Gateway endpoint.
func (p *Provider) Classify(u *url.URL) cloudauth.EndpointKind {
	if u == nil || u.Host == "" {
		return ""
	}
	if strings.Contains(strings.ToLower(u.Hostname()), "lambda") {
		return cloudauth.KindLambdaURL
	}
	return cloudauth.KindAPIGateway
}

// Authorizers implements cloudauth.Provider.
func (p *Provider) Authorizers() map[cloudauth.EndpointKind]cloudauth.Authorizer {
	return map[cloudauth.EndpointKind]cloudauth.Authorizer{
		cloudauth.KindLambdaURL:  p.SigV4(ServiceLambda),
		cloudauth.KindAPIGateway: p.SigV4(ServiceExecuteAPI),
	}
}

// SigV4 returns an authorizer that signs requests for service using the
// federated credentials in the request material. The signing region is the
// endpoint's region.
func (p *Provider) SigV4(service string) cloudauth.Authorizer {
	return cloudauth.AuthorizerFunc(func(ctx context.Context, req *http.Request, region string, m *cloudauth.Material) error {
		if m == nil || m.Cloud == nil {
			return cloudauth.ErrAuth("no cloud credentials to sign with").
				WithProvider(cloudauth.ProviderAWS).
				WithOperation("sign")
		}
		now := p.now()
		if m.Cloud.Expired(now) {
			return cloudauth.ErrAuth("cloud credentials expired").
				WithProvider(cloudauth.ProviderAWS).
				WithOperation("sign").
				WithDetail("expiration", m.Cloud.Expiration)
		}

		creds := awssdk.Credentials{
			AccessKeyID:     m.Cloud.AccessKeyID,
			SecretAccessKey: m.Cloud.SecretAccessKey,
			SessionToken:    m.Cloud.SessionToken,
			Source:          "WebIdentity",
			CanExpire:       !m.Cloud.Expiration.IsZero(),
			Expires:         m.Cloud.Expiration,
		}

		if err := p.signer.SignHTTP(ctx, creds, req, emptyPayloadHash, service, region, now); err != nil {
			return cloudauth.ErrAuth("failed to sign request").
				WithCause(err).
				WithProvider(cloudauth.ProviderAWS).
				WithOperation("sign").
				WithDetail("service", service)
		}
		return nil
	})
}

func init() {
	// Register with default registry
	cloudauth.DefaultRegistry.MustRegister(New())
}
