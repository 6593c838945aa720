// Package probe fans a latency measurement out to every registered endpoint
// and reports results in completion order.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
	"github.com/anirudhbiyani/ping-service/pkg/endpoints"
	"github.com/anirudhbiyani/ping-service/pkg/metrics"
)

const (
	// LatencyError is the latency value reported for a failed probe.
	LatencyError = "error"

	// TargetParam is the query parameter carrying the target URL.
	TargetParam = "url"

	defaultTimeout      = 30 * time.Second
	defaultMaxBodyBytes = 4 << 10
)

// Result is the outcome of probing one endpoint.
type Result struct {
	Provider string `json:"provider"`
	Region   string `json:"region"`
	Latency  string `json:"latency"`
	Error    string `json:"error,omitempty"`
}

// Failed reports whether the probe failed.
func (r Result) Failed() bool {
	return r.Latency == LatencyError
}

// Task is one outbound probe call.
type Task struct {
	Provider cloudauth.CloudProvider
	Region   string
	Endpoint *url.URL
	Target   string
	Kind     cloudauth.EndpointKind
	Material *cloudauth.Material
}

// EndpointSource lists the endpoints to probe. *endpoints.Registry
// satisfies it.
type EndpointSource interface {
	Endpoints() []endpoints.Endpoint
}

// AuthorizerSource resolves the authorizer of an endpoint.
// *cloudauth.Registry satisfies it.
type AuthorizerSource interface {
	Authorizer(name cloudauth.CloudProvider, kind cloudauth.EndpointKind) (cloudauth.Authorizer, error)
}

// Prober runs probe fan-outs.
type Prober struct {
	endpoints   EndpointSource
	authorizers AuthorizerSource
	client      *http.Client
	timeout     time.Duration
	maxBody     int64
	log         logr.Logger
	metrics     *metrics.Metrics
}

// Option configures the Prober.
type Option func(*Prober)

// WithHTTPClient sets the client used for outbound calls. Its timeout is
// the per-call timeout unless WithTimeout is also given. The client is
// never modified.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Prober) {
		p.client = c
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(p *Prober) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithAuthorizers sets where authorizers are looked up.
func WithAuthorizers(a AuthorizerSource) Option {
	return func(p *Prober) {
		p.authorizers = a
	}
}

// WithMaxBodyBytes bounds how much of a response body is read.
func WithMaxBodyBytes(n int64) Option {
	return func(p *Prober) {
		if n > 0 {
			p.maxBody = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(p *Prober) {
		p.log = l
	}
}

// WithMetrics records probe outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Prober) {
		p.metrics = m
	}
}

// New creates a Prober over the endpoints of src.
func New(src EndpointSource, opts ...Option) *Prober {
	p := &Prober{
		endpoints:   src,
		authorizers: cloudauth.DefaultRegistry,
		maxBody:     defaultMaxBodyBytes,
		log:         logr.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}

	switch {
	case p.client == nil:
		timeout := p.timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		p.client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	case p.timeout > 0:
		c := *p.client
		c.Timeout = p.timeout
		p.client = &c
	}
	return p
}

// Tasks builds one task per endpoint with target attached as the url
// query parameter.
func (p *Prober) Tasks(target string, m *cloudauth.Material) []Task {
	eps := p.endpoints.Endpoints()
	tasks := make([]Task, 0, len(eps))
	for _, ep := range eps {
		u := *ep.URL
		q := u.Query()
		q.Set(TargetParam, target)
		u.RawQuery = q.Encode()

		tasks = append(tasks, Task{
			Provider: ep.Provider,
			Region:   ep.Region,
			Endpoint: &u,
			Target:   target,
			Kind:     ep.Kind,
			Material: m,
		})
	}
	return tasks
}

// Probe starts one call per endpoint and returns a channel that yields
// exactly one Result per endpoint, in the order the calls complete. The
// channel is closed once every call has reported. Cancelling ctx aborts the
// outstanding calls; results that can no longer be delivered are dropped.
func (p *Prober) Probe(ctx context.Context, target string, m *cloudauth.Material) <-chan Result {
	tasks := p.Tasks(target, m)
	out := make(chan Result)

	var wg sync.WaitGroup
	for _, t := range tasks {
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			r := p.run(ctx, t)
			select {
			case out <- r:
			case <-ctx.Done():
			}
		}(t)
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	p.log.V(1).Info("probe started", "target", target, "tasks", len(tasks))
	return out
}

func (p *Prober) run(ctx context.Context, t Task) Result {
	start := time.Now()
	p.metrics.ProbeStarted()

	res := Result{Provider: string(t.Provider), Region: t.Region}
	latency, err := p.call(ctx, t)
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
		res.Latency = LatencyError
		res.Error = err.Error()
		p.log.V(1).Info("probe failed", "provider", t.Provider, "region", t.Region, "error", err.Error())
	} else {
		res.Latency = latency
	}

	p.metrics.ProbeFinished(string(t.Provider), outcome, time.Since(start))
	return res
}

func (p *Prober) call(ctx context.Context, t Task) (string, error) {
	if t.Endpoint == nil {
		return "", errors.New("endpoint has no URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.Endpoint.String(), nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	authz, err := p.authorizers.Authorizer(t.Provider, t.Kind)
	if err != nil {
		return "", fmt.Errorf("no authorizer: %w", err)
	}
	if err := authz.Authorize(ctx, req, t.Region, t.Material); err != nil {
		return "", fmt.Errorf("authorize: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBody))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, snippet(body))
	}
	return string(body), nil
}

func snippet(b []byte) string {
	const max = 128
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
