// Package cloudauth provides the authentication building blocks of the
// ping service.
//
// # Overview
//
// The ping service fans a single "ping <url>" request out to probe
// endpoints hosted on several clouds. Each inbound request must be
// authenticated, and each outbound call must be authorized using the scheme
// of the cloud hosting the endpoint. cloudauth defines the shared contracts
// and the registry that ties them together.
//
// # Core Concepts
//
// ## Providers
//
// A Provider represents a cloud that hosts probe endpoints. A provider:
//   - Classifies its endpoint URLs into an EndpointKind when the endpoint
//     registry is loaded
//   - Supplies an Authorizer for every kind it produces
//
// ## Endpoint kinds
//
// The outbound scheme is selected by EndpointKind, never by re-inspecting
// the URL at call time:
//   - KindIdentityToken: bearer identity token for the service's own audience
//   - KindLambdaURL: SigV4 with the "lambda" service name
//   - KindAPIGateway: SigV4 with the "execute-api" service name
//   - KindAnonymous: no credentials
//
// ## Authenticators
//
// An Authenticator verifies inbound bearer tokens. Implementations live in
// the provider packages and are interchangeable.
//
// ## Broker
//
// The Broker acquires per-request Material: a self-audience identity token
// and temporary cloud credentials obtained through a federated exchange.
//
// # Usage
//
//	broker := cloudauth.NewBroker(tokens, exchanger)
//	material, err := broker.Acquire(ctx)
//	if err != nil {
//	    return err
//	}
//
//	authz, err := cloudauth.DefaultRegistry.Authorizer(endpoint.Provider, endpoint.Kind)
//	if err != nil {
//	    return err
//	}
//	err = authz.Authorize(ctx, req, endpoint.Region, material)
//
// # Extension
//
// New providers can be added by implementing the Provider interface and
// registering it with DefaultRegistry.MustRegister from an init() function.
package cloudauth
