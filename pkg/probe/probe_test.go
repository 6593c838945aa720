package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
	"github.com/anirudhbiyani/ping-service/pkg/endpoints"
	"github.com/anirudhbiyani/ping-service/pkg/metrics"
)

type staticEndpoints []endpoints.Endpoint

func (s staticEndpoints) Endpoints() []endpoints.Endpoint { return s }

type anonymousOnly struct{}

func (anonymousOnly) Authorizer(_ cloudauth.CloudProvider, kind cloudauth.EndpointKind) (cloudauth.Authorizer, error) {
	if kind != cloudauth.KindAnonymous {
		return nil, cloudauth.ErrNotFound("authorizer", string(kind))
	}
	return cloudauth.Anonymous, nil
}

func endpoint(t *testing.T, provider cloudauth.CloudProvider, region, raw string, kind cloudauth.EndpointKind) endpoints.Endpoint {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return endpoints.Endpoint{Provider: provider, Region: region, URL: u, Kind: kind}
}

func drain(t *testing.T, ch <-chan Result) []Result {
	t.Helper()
	var out []Result
	timeout := time.After(5 * time.Second)
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, r)
		case <-timeout:
			t.Fatalf("result channel never closed; got %d results", len(out))
		}
	}
}

func TestProbe_OneResultPerEndpointInCompletionOrder(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("url") != "example.com" {
			http.Error(w, "missing target", http.StatusBadRequest)
			return
		}
		if r.Header.Get("Accept") != "application/json" {
			http.Error(w, "bad accept", http.StatusBadRequest)
			return
		}
		switch r.URL.Path {
		case "/slow":
			time.Sleep(200 * time.Millisecond)
			_, _ = w.Write([]byte("87"))
		case "/fast":
			time.Sleep(20 * time.Millisecond)
			_, _ = w.Write([]byte("12"))
		default:
			http.Error(w, "boom", http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	eps := staticEndpoints{
		endpoint(t, cloudauth.ProviderAzure, "slow", srv.URL+"/slow", cloudauth.KindAnonymous),
		endpoint(t, cloudauth.ProviderAzure, "fast", srv.URL+"/fast", cloudauth.KindAnonymous),
		endpoint(t, cloudauth.ProviderAliCloud, "broken", srv.URL+"/broken", cloudauth.KindAnonymous),
	}
	m := metrics.New()
	p := New(eps, WithAuthorizers(anonymousOnly{}), WithHTTPClient(srv.Client()), WithMetrics(m), WithLogger(testr.New(t)))

	results := drain(t, p.Probe(context.Background(), "example.com", &cloudauth.Material{}))
	if len(results) != 3 || calls.Load() != 3 {
		t.Fatalf("results=%d calls=%d", len(results), calls.Load())
	}

	if results[len(results)-1].Region != "slow" || results[len(results)-1].Latency != "87" {
		t.Fatalf("slow endpoint not last: %+v", results)
	}
	byRegion := map[string]Result{}
	for _, r := range results {
		byRegion[r.Region] = r
	}
	if byRegion["fast"].Latency != "12" {
		t.Fatalf("fast=%+v", byRegion["fast"])
	}
	if !byRegion["broken"].Failed() || !strings.Contains(byRegion["broken"].Error, "500") {
		t.Fatalf("broken=%+v", byRegion["broken"])
	}
	n, err := testutil.GatherAndCount(m.Registry(), "ping_service_probe_results_total")
	if err != nil || n != 2 {
		t.Fatalf("result series=%d err=%v", n, err)
	}
}

func TestProbe_UnreachableAndUnauthorizable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("5"))
	}))
	addr := srv.URL
	srv.Close()

	eps := staticEndpoints{
		endpoint(t, cloudauth.ProviderAzure, "gone", addr, cloudauth.KindAnonymous),
		endpoint(t, cloudauth.ProviderAWS, "unsigned", "https://abc.lambda-url.us-east-1.on.aws/", cloudauth.KindLambdaURL),
	}
	p := New(eps, WithAuthorizers(anonymousOnly{}), WithTimeout(time.Second))

	results := drain(t, p.Probe(context.Background(), "example.com", nil))
	if len(results) != 2 {
		t.Fatalf("results=%d", len(results))
	}
	for _, r := range results {
		if !r.Failed() || r.Error == "" {
			t.Fatalf("expected failure: %+v", r)
		}
	}
}

func TestProbe_EmptyRegistryCloses(t *testing.T) {
	t.Parallel()

	results := drain(t, New(staticEndpoints{}).Probe(context.Background(), "example.com", nil))
	if len(results) != 0 {
		t.Fatalf("results=%v", results)
	}
}

func TestFanOut_CancelAbortsOutstandingCalls(t *testing.T) {
	t.Parallel()

	var started, aborted atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started.Add(1)
		select {
		case <-r.Context().Done():
			aborted.Add(1)
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	eps := staticEndpoints{
		endpoint(t, cloudauth.ProviderAzure, "a", srv.URL, cloudauth.KindAnonymous),
		endpoint(t, cloudauth.ProviderAzure, "b", srv.URL, cloudauth.KindAnonymous),
	}
	ctx, cancel := context.WithCancel(context.Background())
	ch := New(eps, WithAuthorizers(anonymousOnly{}), WithHTTPClient(srv.Client())).Probe(ctx, "example.com", nil)

	waitFor(t, func() bool { return started.Load() == 2 })
	cancel()
	drain(t, ch)
	waitFor(t, func() bool { return aborted.Load() == 2 })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNew_TimeoutDoesNotModifyCallerClient(t *testing.T) {
	t.Parallel()

	shared := &http.Client{Timeout: 7 * time.Second}
	for _, opts := range [][]Option{
		{WithTimeout(time.Second), WithHTTPClient(shared)},
		{WithHTTPClient(shared), WithTimeout(time.Second)},
	} {
		p := New(staticEndpoints{}, opts...)
		if p.client == shared || p.client.Timeout != time.Second {
			t.Fatalf("client=%p timeout=%v", p.client, p.client.Timeout)
		}
	}
	if shared.Timeout != 7*time.Second {
		t.Fatalf("caller client modified: timeout=%v", shared.Timeout)
	}

	if p := New(staticEndpoints{}, WithHTTPClient(shared)); p.client != shared {
		t.Fatalf("client without timeout option should be used as is")
	}
	if p := New(staticEndpoints{}); p.client.Timeout != defaultTimeout {
		t.Fatalf("default timeout=%v", p.client.Timeout)
	}
}

func TestTasks_MergesTargetIntoQuery(t *testing.T) {
	t.Parallel()

	eps := staticEndpoints{
		endpoint(t, cloudauth.ProviderGCP, "us-central1", "https://pinger.a.run.app/ping?code=abc", cloudauth.KindIdentityToken),
	}
	m := &cloudauth.Material{SelfToken: "t"}
	tasks := New(eps).Tasks("https://example.com/?q=1", m)
	if len(tasks) != 1 {
		t.Fatalf("tasks=%d", len(tasks))
	}
	q := tasks[0].Endpoint.Query()
	if q.Get("code") != "abc" || q.Get("url") != "https://example.com/?q=1" {
		t.Fatalf("query=%v", q)
	}
	if tasks[0].Material != m || tasks[0].Kind != cloudauth.KindIdentityToken {
		t.Fatalf("task=%+v", tasks[0])
	}
	if eps[0].URL.RawQuery != "code=abc" {
		t.Fatalf("registry URL mutated: %s", eps[0].URL)
	}
}
