package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out.String()
}

func TestProvidersCommand(t *testing.T) {
	out := execute(t, "providers")
	for _, want := range []string{"gcp", "aws", "azure", "alicloud", "cloudflare", "aws_lambda_url", "caller_auth"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestProvidersCommand_FilterByCapability(t *testing.T) {
	out := execute(t, "providers", "--capability", "request_signing")
	t.Cleanup(func() { _ = providersCmd.Flags().Set("capability", "") })

	if !strings.Contains(out, "aws") {
		t.Fatalf("signing provider missing:\n%s", out)
	}
	for _, absent := range []string{"gcp", "azure", "alicloud", "cloudflare"} {
		if strings.Contains(out, absent) {
			t.Fatalf("%s listed without request_signing:\n%s", absent, out)
		}
	}
}

func TestEndpointsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{"urls": {"aws": {"us-east-1": "https://abc.lambda-url.us-east-1.on.aws/"}, "faas.gcp": {"au": "https://au-pinger.a.run.app/"}}}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	out := execute(t, "endpoints", path)
	if !strings.Contains(out, "2 endpoints") {
		t.Fatalf("output:\n%s", out)
	}
	if strings.Index(out, "gcp") > strings.Index(out, "aws") {
		t.Fatalf("gcp should be listed first:\n%s", out)
	}
}

func TestVersionCommand(t *testing.T) {
	out := execute(t, "version")
	if !strings.Contains(out, "ping-service version "+version) {
		t.Fatalf("output:\n%s", out)
	}
}
