package cloudauth

import (
	"context"
	"time"

	"github.com/go-logr/logr"
)

const (
	// DefaultSelfAudience is the audience same-provider endpoints trust.
	DefaultSelfAudience = "pinger"
	// DefaultFederationAudience is the audience AWS STS expects for
	// AssumeRoleWithWebIdentity.
	DefaultFederationAudience = "sts.amazonaws.com"
)

// Broker acquires the outbound authorization material for one inbound
// request: a self-audience identity token and federated cloud credentials.
// Nothing is cached between calls.
type Broker struct {
	tokens             IdentityTokenSource
	exchanger          WebIdentityExchanger
	selfAudience       string
	federationAudience string
	log                logr.Logger
	now                func() time.Time
}

// BrokerOption configures the Broker.
type BrokerOption func(*Broker)

// WithSelfAudience sets the audience of the self token.
func WithSelfAudience(aud string) BrokerOption {
	return func(b *Broker) {
		b.selfAudience = aud
	}
}

// WithFederationAudience sets the audience of the token exchanged for
// cloud credentials.
func WithFederationAudience(aud string) BrokerOption {
	return func(b *Broker) {
		b.federationAudience = aud
	}
}

// WithBrokerLogger sets the logger.
func WithBrokerLogger(l logr.Logger) BrokerOption {
	return func(b *Broker) {
		b.log = l
	}
}

// NewBroker creates a Broker minting tokens from tokens and exchanging
// them through exchanger.
func NewBroker(tokens IdentityTokenSource, exchanger WebIdentityExchanger, opts ...BrokerOption) *Broker {
	b := &Broker{
		tokens:             tokens,
		exchanger:          exchanger,
		selfAudience:       DefaultSelfAudience,
		federationAudience: DefaultFederationAudience,
		log:                logr.Discard(),
		now:                time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Acquire mints the self token, mints the federation token and exchanges
// the latter for cloud credentials, in that order. Any failure is reported
// as ErrCategoryCredential.
func (b *Broker) Acquire(ctx context.Context) (*Material, error) {
	start := b.now()

	selfToken, err := b.tokens.IdentityToken(ctx, b.selfAudience)
	if err != nil {
		return nil, ErrCredential("failed to mint self identity token").
			WithCause(err).
			WithOperation("acquire").
			WithDetail("audience", b.selfAudience)
	}

	federationToken, err := b.tokens.IdentityToken(ctx, b.federationAudience)
	if err != nil {
		return nil, ErrCredential("failed to mint federation identity token").
			WithCause(err).
			WithOperation("acquire").
			WithDetail("audience", b.federationAudience)
	}

	cred, err := b.exchanger.ExchangeWebIdentity(ctx, federationToken)
	if err != nil {
		return nil, ErrCredential("failed to exchange web identity").
			WithCause(err).
			WithOperation("acquire").
			WithProvider(ProviderAWS)
	}
	if cred == nil || cred.AccessKeyID == "" || cred.SecretAccessKey == "" {
		return nil, ErrCredential("web identity exchange returned no credentials").
			WithOperation("acquire").
			WithProvider(ProviderAWS)
	}

	b.log.V(1).Info("acquired outbound credentials",
		"accessKeyID", cred.AccessKeyID,
		"expiration", cred.Expiration,
		"elapsed", b.now().Sub(start))

	return &Material{SelfToken: selfToken, Cloud: cred}, nil
}
