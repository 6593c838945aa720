package endpoints

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/api/option"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
	"github.com/anirudhbiyani/ping-service/pkg/providers/alicloud"
	"github.com/anirudhbiyani/ping-service/pkg/providers/aws"
	"github.com/anirudhbiyani/ping-service/pkg/providers/azure"
	"github.com/anirudhbiyani/ping-service/pkg/providers/gcp"
)

func testClassifier() *cloudauth.Registry {
	r := cloudauth.NewRegistry()
	r.MustRegister(gcp.New())
	r.MustRegister(aws.New())
	r.MustRegister(azure.New())
	r.MustRegister(alicloud.New())
	return r
}

const wrappedDoc = `{
  "urls": {
    "faas.gcp": {"us-central1": "https://pinger-uc.a.run.app", "asia-east1": "https://pinger-ae.a.run.app"},
    "faas.aws": {
      "us-east-1": "https://abc.lambda-url.us-east-1.on.aws/",
      "eu-west-1": "https://xyz.execute-api.eu-west-1.amazonaws.com/prod/ping"
    },
    "faas.azure": {"eastus": "https://pinger-eastus.azurewebsites.net/api/ping"},
    "faas.alicloud": {}
  }
}`

func TestParse_ClassifiesOnceAndOrders(t *testing.T) {
	t.Parallel()

	reg, err := Parse([]byte(wrappedDoc), testClassifier())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := []struct {
		provider cloudauth.CloudProvider
		region   string
		kind     cloudauth.EndpointKind
	}{
		{cloudauth.ProviderGCP, "asia-east1", cloudauth.KindIdentityToken},
		{cloudauth.ProviderGCP, "us-central1", cloudauth.KindIdentityToken},
		{cloudauth.ProviderAWS, "eu-west-1", cloudauth.KindAPIGateway},
		{cloudauth.ProviderAWS, "us-east-1", cloudauth.KindLambdaURL},
		{cloudauth.ProviderAzure, "eastus", cloudauth.KindAnonymous},
	}
	got := reg.Endpoints()
	if len(got) != len(want) {
		t.Fatalf("endpoints=%d want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].Provider != w.provider || got[i].Region != w.region || got[i].Kind != w.kind {
			t.Fatalf("endpoint %d = %+v, want %+v", i, got[i], w)
		}
	}

	// Endpoints returns a copy.
	got[0].Region = "mutated"
	if reg.Endpoints()[0].Region == "mutated" {
		t.Fatalf("registry mutated through Endpoints()")
	}
	if reg.Count()[cloudauth.ProviderAWS] != 2 {
		t.Fatalf("count=%v", reg.Count())
	}
}

func TestParse_FlatDocument(t *testing.T) {
	t.Parallel()

	reg, err := Parse([]byte(`{"gcp": {"us-central1": "https://a.run.app"}, "faas.alicloud": {"cn-hangzhou": "https://x.fcapp.run"}}`), testClassifier())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("len=%d", reg.Len())
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"unknown namespace": `{"urls": {"faas.oracle": {"r": "https://x"}}}`,
		"bad scheme":        `{"urls": {"faas.gcp": {"r": "ftp://x"}}}`,
		"missing host":      `{"urls": {"faas.gcp": {"r": "https://"}}}`,
		"duplicate":         `{"urls": {"gcp": {"r": "https://a"}, "faas.gcp": {"r": "https://b"}}}`,
		"malformed":         `[1, 2]`,
	}
	for name, doc := range cases {
		if _, err := Parse([]byte(doc), testClassifier()); err == nil {
			t.Fatalf("%s: accepted", name)
		}
	}
}

func TestEndpointJSON(t *testing.T) {
	t.Parallel()

	reg, err := Parse([]byte(`{"azure": {"eastus": "https://f.azurewebsites.net/api/ping"}}`), testClassifier())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	data, err := json.Marshal(reg.Endpoints()[0])
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(data), `"url":"https://f.azurewebsites.net/api/ping"`) {
		t.Fatalf("json=%s", data)
	}
}

func TestReadDocument_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(wrappedDoc), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	data, err := ReadDocument(context.Background(), path)
	if err != nil || string(data) != wrappedDoc {
		t.Fatalf("data=%q err=%v", data, err)
	}
}

func TestReadDocument_GCS(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/b/ping-config/o/config.json") || r.URL.Query().Get("alt") != "media" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(wrappedDoc))
	}))
	defer srv.Close()

	data, err := ReadDocument(context.Background(), GCSLocation("ping-config", "config.json"),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("ReadDocument: %v", err)
	}
	if string(data) != wrappedDoc {
		t.Fatalf("data=%q", data)
	}

	if _, err := ReadDocument(context.Background(), "gs://bucket-only"); err == nil {
		t.Fatalf("invalid location accepted")
	}
}
