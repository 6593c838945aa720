package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/api/option"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
	"github.com/anirudhbiyani/ping-service/pkg/config"
	"github.com/anirudhbiyani/ping-service/pkg/endpoints"
	"github.com/anirudhbiyani/ping-service/pkg/jwks"
	"github.com/anirudhbiyani/ping-service/pkg/metrics"
	"github.com/anirudhbiyani/ping-service/pkg/probe"
	"github.com/anirudhbiyani/ping-service/pkg/providers/aws"
	"github.com/anirudhbiyani/ping-service/pkg/providers/cloudflare"
	"github.com/anirudhbiyani/ping-service/pkg/providers/gcp"
	"github.com/anirudhbiyani/ping-service/pkg/server"
)

// serve builds every component from cfg and runs the HTTP server until ctx
// is cancelled.
func serve(ctx context.Context, cfg *config.Config) error {
	stdr.SetVerbosity(cfg.LogVerbosity)
	logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags|log.LUTC)).WithName("ping-service")
	m := metrics.New()

	var docOpts []option.ClientOption
	if cfg.GoogleCredentialsFile != "" {
		docOpts = append(docOpts, option.WithCredentialsFile(cfg.GoogleCredentialsFile))
	}
	data, err := endpoints.ReadDocument(ctx, cfg.ConfigLocation, docOpts...)
	if err != nil {
		return err
	}
	reg, err := endpoints.Parse(data, cloudauth.DefaultRegistry)
	if err != nil {
		return err
	}
	logger.Info("endpoints loaded", "location", cfg.ConfigLocation, "count", reg.Len(), "per_provider", reg.Count())

	auth, err := newAuthenticator(cfg, logger, m)
	if err != nil {
		return err
	}
	broker, err := newBroker(ctx, cfg, logger)
	if err != nil {
		return err
	}

	prober := probe.New(reg,
		probe.WithTimeout(cfg.ProbeTimeout),
		probe.WithMaxBodyBytes(cfg.MaxBodyBytes),
		probe.WithLogger(logger.WithName("probe")),
		probe.WithMetrics(m),
	)

	srv := server.New(auth, broker, prober,
		server.WithLogger(logger.WithName("server")),
		server.WithMetrics(m),
	)
	return srv.ListenAndServe(ctx, cfg.Listen)
}

func newAuthenticator(cfg *config.Config, logger logr.Logger, m *metrics.Metrics) (cloudauth.Authenticator, error) {
	switch cfg.AuthMode {
	case config.AuthModeAccess:
		client := &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   cfg.KeySetFetchTimeout,
		}
		keys := jwks.New(
			jwks.NewHTTPFetcher(cloudflare.CertsURL(cfg.TeamDomain), client),
			jwks.WithTTL(cfg.KeySetTTL),
			jwks.WithCapacity(cfg.KeySetCapacity),
			jwks.WithFetchTimeout(cfg.KeySetFetchTimeout),
			jwks.WithLogger(logger.WithName("jwks")),
			jwks.WithMetrics(m),
		)
		return cloudflare.NewAccessAuthenticator(keys, cfg.Audience,
			cloudflare.WithIssuer(cfg.TeamDomain),
			cloudflare.WithLogger(logger.WithName("auth")),
		), nil
	case config.AuthModeGoogle:
		return gcp.NewIDTokenAuthenticator(cfg.Audience, gcp.WithLogger(logger.WithName("auth"))), nil
	default:
		return nil, cloudauth.ErrValidation(fmt.Sprintf("unknown auth mode %q", cfg.AuthMode))
	}
}

func newBroker(ctx context.Context, cfg *config.Config, logger logr.Logger) (*cloudauth.Broker, error) {
	tokens := gcp.NewIdentityTokenSource(gcp.WithCredentialsFile(cfg.GoogleCredentialsFile))

	// AssumeRoleWithWebIdentity is an unsigned call; the web identity token
	// is the only credential.
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithCredentialsProvider(awssdk.AnonymousCredentials{}),
	)
	if err != nil {
		return nil, cloudauth.ErrInternal("failed to load AWS configuration").WithCause(err).WithProvider(cloudauth.ProviderAWS)
	}

	exchangerOpts := []aws.ExchangerOption{
		aws.WithSessionName(cfg.AWSSessionName),
		aws.WithLogger(logger.WithName("sts")),
	}
	if cfg.AWSSessionDuration > 0 {
		exchangerOpts = append(exchangerOpts, aws.WithSessionDuration(cfg.AWSSessionDuration))
	}
	exchanger := aws.NewExchanger(sts.NewFromConfig(awsCfg), cfg.AWSRoleARN, exchangerOpts...)

	return cloudauth.NewBroker(tokens, exchanger,
		cloudauth.WithSelfAudience(cfg.SelfAudience),
		cloudauth.WithFederationAudience(cfg.FederationAudience),
		cloudauth.WithBrokerLogger(logger.WithName("broker")),
	), nil
}
