// Package cloudauth provides core types and interfaces for authenticating
// callers and authorizing outbound probe calls across cloud providers.
//
// This package defines the fundamental abstractions shared by the provider
// implementations: provider identifiers, endpoint kinds, per-request
// credential material and verified caller claims.
package cloudauth

import (
	"encoding/json"
	"time"
)

// Capability represents a feature supported by a provider.
type Capability string

const (
	// CapabilityIdentityToken indicates support for minting identity tokens.
	CapabilityIdentityToken Capability = "identity_token"
	// CapabilityRequestSigning indicates outbound requests are signed.
	CapabilityRequestSigning Capability = "request_signing"
	// CapabilityAnonymous indicates outbound requests carry no credentials.
	CapabilityAnonymous Capability = "anonymous"
	// CapabilityFederationOIDC indicates support for OIDC federation exchanges.
	CapabilityFederationOIDC Capability = "federation_oidc"
	// CapabilityCallerAuth indicates the provider can authenticate inbound callers.
	CapabilityCallerAuth Capability = "caller_auth"
)

// CloudProvider identifies a cloud service provider.
type CloudProvider string

const (
	ProviderGCP        CloudProvider = "gcp"
	ProviderAWS        CloudProvider = "aws"
	ProviderAzure      CloudProvider = "azure"
	ProviderAliCloud   CloudProvider = "alicloud"
	ProviderCloudflare CloudProvider = "cloudflare"
)

// ProbeProviders lists the providers that host probe endpoints, in the
// order endpoints are dispatched.
var ProbeProviders = []CloudProvider{ProviderGCP, ProviderAWS, ProviderAzure, ProviderAliCloud}

// IsProbeProvider reports whether p hosts probe endpoints.
func IsProbeProvider(p CloudProvider) bool {
	for _, known := range ProbeProviders {
		if p == known {
			return true
		}
	}
	return false
}

// EndpointKind selects the outbound authorization scheme for an endpoint.
// It is derived once, when the endpoint registry is loaded.
type EndpointKind string

const (
	// KindIdentityToken endpoints accept a bearer identity token minted for
	// the service's own audience.
	KindIdentityToken EndpointKind = "identity_token"
	// KindLambdaURL endpoints are direct function-invocation URLs signed
	// with SigV4 for the "lambda" service.
	KindLambdaURL EndpointKind = "aws_lambda_url"
	// KindAPIGateway endpoints are gateway-fronted functions signed with
	// SigV4 for the "execute-api" service.
	KindAPIGateway EndpointKind = "aws_api_gateway"
	// KindAnonymous endpoints are invoked without credentials.
	KindAnonymous EndpointKind = "anonymous"
)

// CloudCredential holds temporary cloud credentials obtained through a
// federated identity exchange. Credentials are scoped to a single inbound
// request and are never persisted.
type CloudCredential struct {
	// AccessKeyID is the temporary access key identifier.
	AccessKeyID string

	// SecretAccessKey is the temporary secret.
	SecretAccessKey string

	// SessionToken is the session token that accompanies temporary keys.
	SessionToken string

	// Expiration is when the credential stops being accepted.
	Expiration time.Time
}

// Expired reports whether the credential is expired at t.
func (c *CloudCredential) Expired(t time.Time) bool {
	if c == nil {
		return true
	}
	return !c.Expiration.IsZero() && !t.Before(c.Expiration)
}

// MarshalJSON redacts secrets so credentials never leak into logs.
func (c CloudCredential) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"access_key_id": c.AccessKeyID,
		"expiration":    c.Expiration,
	})
}

// Material is the outbound authorization material acquired for one inbound
// request. It is discarded when the response stream closes.
type Material struct {
	// SelfToken is an identity token whose audience is the service itself.
	// Endpoints of KindIdentityToken accept it directly.
	SelfToken string

	// Cloud holds federated credentials for signing requests to SigV4
	// endpoints.
	Cloud *CloudCredential
}

// Claims is the verified identity of an inbound caller.
type Claims struct {
	// Subject is the token subject.
	Subject string `json:"sub"`

	// Email is the caller email, when the issuer provides one.
	Email string `json:"email,omitempty"`

	// Issuer is the token issuer.
	Issuer string `json:"iss"`

	// Audience is the verified audience list.
	Audience []string `json:"aud"`

	// ExpiresAt is when the token expires.
	ExpiresAt time.Time `json:"exp"`

	// KeyID is the identifier of the key that verified the token, if any.
	KeyID string `json:"kid,omitempty"`
}
