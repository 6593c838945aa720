// Package main is the entry point for the ping service.
//
// The service authenticates callers, acquires outbound credentials and
// streams the latency every regional probe endpoint measured to a target.
//
// For the per-region probe function, use: go run ./cmd/pinger
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
	"github.com/anirudhbiyani/ping-service/pkg/config"
	"github.com/anirudhbiyani/ping-service/pkg/endpoints"

	// Import providers to register them
	_ "github.com/anirudhbiyani/ping-service/pkg/providers/alicloud"
	_ "github.com/anirudhbiyani/ping-service/pkg/providers/aws"
	_ "github.com/anirudhbiyani/ping-service/pkg/providers/azure"
	_ "github.com/anirudhbiyani/ping-service/pkg/providers/cloudflare"
	_ "github.com/anirudhbiyani/ping-service/pkg/providers/gcp"
)

const exitError = 1

var version = "0.3.0"

var (
	cfgFile string
	v       = config.New()
)

var rootCmd = &cobra.Command{
	Use:           "ping-service",
	Short:         "Multi-cloud latency probe aggregator",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the authenticated probe stream",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), cfg)
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List available providers and their capabilities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		capability, _ := cmd.Flags().GetString("capability")
		var only map[cloudauth.CloudProvider]bool
		if capability != "" {
			only = map[cloudauth.CloudProvider]bool{}
			for _, name := range cloudauth.DefaultRegistry.ListByCapability(cloudauth.Capability(capability)) {
				only[name] = true
			}
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tKINDS\tCAPABILITIES")
		for _, p := range cloudauth.DescribeProviders() {
			if only != nil && !only[p.Name] {
				continue
			}
			kinds := make([]string, 0, len(p.Kinds))
			for _, k := range p.Kinds {
				kinds = append(kinds, string(k))
			}
			caps := make([]string, 0, len(p.Capabilities))
			for _, c := range p.Capabilities {
				caps = append(caps, string(c))
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, orNone(kinds), orNone(caps))
		}
		return tw.Flush()
	},
}

var endpointsCmd = &cobra.Command{
	Use:   "endpoints [location]",
	Short: "Load the endpoint document and list the probe endpoints",
	Long: `Load the endpoint document and list the probe endpoints.

The location is a file path or gs://bucket/object. Without an argument the
configured config_location (or config_bucket) is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		location, err := documentLocation(args)
		if err != nil {
			return err
		}

		data, err := endpoints.ReadDocument(cmd.Context(), location)
		if err != nil {
			return err
		}
		reg, err := endpoints.Parse(data, cloudauth.DefaultRegistry)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "PROVIDER\tREGION\tKIND\tURL")
		for _, ep := range reg.Endpoints() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ep.Provider, ep.Region, ep.Kind, ep.URL)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n%d endpoints\n", reg.Len())
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "ping-service version %s\n", version)
		fmt.Fprintf(out, "  Providers: %s\n", joinProviders(cloudauth.ListProviders()))
	},
}

func init() {
	cobra.OnInitialize(func() {
		if cfgFile != "" {
			v.SetConfigFile(cfgFile)
		}
	})

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (YAML or JSON)")
	rootCmd.PersistentFlags().IntP("verbosity", "v", 0, "log verbosity")
	_ = v.BindPFlag("log_verbosity", rootCmd.PersistentFlags().Lookup("verbosity"))

	providersCmd.Flags().String("capability", "", "only list providers with this capability, e.g. request_signing")

	serveCmd.Flags().String("listen", "", "listen address (default :$PORT or :8080)")
	serveCmd.Flags().String("config-location", "", "endpoint document: file path or gs://bucket/object")
	serveCmd.Flags().String("auth-mode", config.AuthModeAccess, "caller authentication: access or google")
	serveCmd.Flags().String("audience", "", "audience caller tokens must carry")
	serveCmd.Flags().String("team-domain", "", "Access team domain, e.g. https://team.cloudflareaccess.com")
	serveCmd.Flags().String("aws-role-arn", "", "role assumed with the web identity token")
	for _, name := range []string{"listen", "config-location", "auth-mode", "audience", "team-domain", "aws-role-arn"} {
		_ = v.BindPFlag(strings.ReplaceAll(name, "-", "_"), serveCmd.Flags().Lookup(name))
	}

	rootCmd.AddCommand(serveCmd, providersCmd, endpointsCmd, versionCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(exitError)
	}
}

// documentLocation resolves the endpoint document from args or config
// without requiring the rest of the service configuration.
func documentLocation(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if cfgFile != "" {
		if err := v.ReadInConfig(); err != nil {
			return "", fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return "", fmt.Errorf("decode config: %w", err)
	}
	cfg.ApplyDefaults()
	if cfg.ConfigLocation == "" {
		return "", cloudauth.ErrValidation("no endpoint document: pass a location or set config_location")
	}
	return cfg.ConfigLocation, nil
}

func joinProviders(ps []cloudauth.CloudProvider) string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func orNone(s []string) string {
	if len(s) == 0 {
		return "-"
	}
	return strings.Join(s, ", ")
}
