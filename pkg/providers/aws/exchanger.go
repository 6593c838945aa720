package aws

import (
	"context"
	"strings"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/go-logr/logr"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

// DefaultSessionName is the role session name used when none is configured.
const DefaultSessionName = "ping-service-session"

// STSClient abstracts the STS operation used for the web identity exchange.
// *sts.Client satisfies it.
type STSClient interface {
	// AssumeRoleWithWebIdentity exchanges an OIDC token for AWS credentials.
	AssumeRoleWithWebIdentity(ctx context.Context, params *sts.AssumeRoleWithWebIdentityInput, optFns ...func(*sts.Options)) (*sts.AssumeRoleWithWebIdentityOutput, error)
}

// Exchanger implements cloudauth.WebIdentityExchanger with
// AssumeRoleWithWebIdentity.
type Exchanger struct {
	client      STSClient
	roleARN     string
	sessionName string
	duration    time.Duration
	log         logr.Logger
}

// ExchangerOption configures the Exchanger.
type ExchangerOption func(*Exchanger)

// WithSessionName sets the role session name. Invalid characters are
// removed.
func WithSessionName(name string) ExchangerOption {
	return func(e *Exchanger) {
		e.sessionName = sanitizeSessionName(name)
	}
}

// WithSessionDuration sets the requested credential lifetime. Zero leaves
// the role's default in place.
func WithSessionDuration(d time.Duration) ExchangerOption {
	return func(e *Exchanger) {
		e.duration = d
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) ExchangerOption {
	return func(e *Exchanger) {
		e.log = l
	}
}

// NewExchanger creates an Exchanger assuming roleARN through client.
func NewExchanger(client STSClient, roleARN string, opts ...ExchangerOption) *Exchanger {
	e := &Exchanger{
		client:      client,
		roleARN:     roleARN,
		sessionName: DefaultSessionName,
		log:         logr.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExchangeWebIdentity implements cloudauth.WebIdentityExchanger.
func (e *Exchanger) ExchangeWebIdentity(ctx context.Context, token string) (*cloudauth.CloudCredential, error) {
	if e.client == nil {
		return nil, cloudauth.ErrValidation("AWS STS client not configured").
			WithProvider(cloudauth.ProviderAWS)
	}
	if e.roleARN == "" {
		return nil, cloudauth.ErrValidation("role ARN is required").
			WithProvider(cloudauth.ProviderAWS)
	}
	if token == "" {
		return nil, cloudauth.ErrValidation("web identity token is required").
			WithProvider(cloudauth.ProviderAWS)
	}

	input := &sts.AssumeRoleWithWebIdentityInput{
		RoleArn:          awssdk.String(e.roleARN),
		RoleSessionName:  awssdk.String(e.sessionName),
		WebIdentityToken: awssdk.String(token),
	}
	if e.duration > 0 {
		input.DurationSeconds = awssdk.Int32(int32(e.duration / time.Second))
	}

	out, err := e.client.AssumeRoleWithWebIdentity(ctx, input)
	if err != nil {
		return nil, cloudauth.ErrAuth("failed to assume role with web identity").
			WithCause(err).
			WithProvider(cloudauth.ProviderAWS).
			WithOperation("assume_role_with_web_identity").
			WithDetail("role_arn", e.roleARN)
	}
	if out == nil || out.Credentials == nil {
		return nil, cloudauth.ErrAuth("assume role response carried no credentials").
			WithProvider(cloudauth.ProviderAWS).
			WithDetail("role_arn", e.roleARN)
	}

	cred := &cloudauth.CloudCredential{
		AccessKeyID:     awssdk.ToString(out.Credentials.AccessKeyId),
		SecretAccessKey: awssdk.ToString(out.Credentials.SecretAccessKey),
		SessionToken:    awssdk.ToString(out.Credentials.SessionToken),
		Expiration:      awssdk.ToTime(out.Credentials.Expiration),
	}

	e.log.V(2).Info("assumed role", "role", e.roleARN, "session", e.sessionName, "expiration", cred.Expiration)
	return cred, nil
}

// sanitizeSessionName removes invalid characters from role session name.
// AWS requires session names to match [\w+=,.@-]*
func sanitizeSessionName(name string) string {
	var result strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') ||
			r == '_' || r == '+' || r == '=' || r == ',' || r == '.' || r == '@' || r == '-' {
			result.WriteRune(r)
		}
	}
	sanitized := result.String()
	if len(sanitized) < 2 {
		return DefaultSessionName
	}
	// AWS limits session name to 64 characters
	if len(sanitized) > 64 {
		sanitized = sanitized[:64]
	}
	return sanitized
}
