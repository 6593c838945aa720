// Command pinger is the per-region function behind every probe endpoint.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/stdr"
	"github.com/spf13/cobra"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
	"github.com/anirudhbiyani/ping-service/pkg/pinger"
)

var (
	cloud     string
	verbosity int
)

var rootCmd = &cobra.Command{
	Use:          "pinger",
	Short:        "Measure the time to reach a URL from this region",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		stdr.SetVerbosity(verbosity)
		logger := stdr.New(log.New(os.Stderr, "", log.LstdFlags)).WithName("pinger")

		provider := cloudauth.CloudProvider(cloud)
		port, err := pinger.Port(provider, os.Getenv)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           pinger.New(pinger.WithLogger(logger)),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()

		logger.Info("listening", "cloud", provider, "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&cloud, "cloud", os.Getenv("PINGER_CLOUD"), "hosting cloud: gcp, aws, azure, alicloud, or empty for a local run")
	rootCmd.Flags().IntVarP(&verbosity, "verbosity", "v", 0, "log verbosity")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
