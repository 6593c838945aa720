// Package pinger implements the per-region function that the probe endpoints
// run. It measures how long it takes to reach a target from where it is
// deployed and replies with the elapsed milliseconds.
package pinger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

const (
	// TCPScheme selects a TCP connect measurement instead of an HTTP GET.
	TCPScheme = "tcp://"

	// DefaultDialTimeout bounds TCP connect measurements.
	DefaultDialTimeout = 10 * time.Second

	// DefaultLocalPort is used outside any cloud when PORT is unset.
	DefaultLocalPort = 3000
)

// Pinger measures the time to reach a target.
type Pinger struct {
	client      *http.Client
	dialer      *net.Dialer
	dialTimeout time.Duration
	log         logr.Logger
}

// Option configures the Pinger.
type Option func(*Pinger)

// WithHTTPClient sets the client used for HTTP measurements.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Pinger) {
		p.client = c
	}
}

// WithDialTimeout bounds TCP connect measurements.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Pinger) {
		p.dialTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(p *Pinger) {
		p.log = l
	}
}

// New creates a Pinger.
func New(opts ...Option) *Pinger {
	p := &Pinger{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		dialer:      &net.Dialer{},
		dialTimeout: DefaultDialTimeout,
		log:         logr.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Measure returns the time until target answered. A tcp://host:port target
// is timed to connection establishment; anything else is fetched with GET,
// following redirects, and timed to the final response headers. The
// response status does not matter.
func (p *Pinger) Measure(ctx context.Context, target string) (time.Duration, error) {
	if addr, ok := strings.CutPrefix(target, TCPScheme); ok {
		return p.measureTCP(ctx, addr)
	}
	return p.measureHTTP(ctx, target)
}

func (p *Pinger) measureTCP(ctx context.Context, addr string) (time.Duration, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return 0, cloudauth.ErrValidation("bad tcp address").WithCause(err).WithDetail("address", addr)
	}

	ctx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()

	start := time.Now()
	conn, err := p.dialer.DialContext(ctx, "tcp", addr)
	elapsed := time.Since(start)
	if err != nil {
		if isTimeout(err) {
			return 0, cloudauth.ErrTimeout("tcp connect timed out").WithCause(err).WithDetail("address", addr)
		}
		return 0, cloudauth.ErrNetwork("tcp connect failed").WithCause(err).WithDetail("address", addr)
	}
	_ = conn.Close()
	return elapsed, nil
}

func (p *Pinger) measureHTTP(ctx context.Context, target string) (time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, cloudauth.ErrValidation("bad target url").WithCause(err)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if isTimeout(err) {
			return 0, cloudauth.ErrTimeout("request timed out").WithCause(err)
		}
		return 0, cloudauth.ErrNetwork("request failed").WithCause(err)
	}
	_ = resp.Body.Close()

	p.log.V(1).Info("fetched", "target", target, "status", resp.StatusCode, "elapsed", elapsed)
	return elapsed, nil
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout())
}

// ServeHTTP answers GET /?url=<target> with the elapsed milliseconds.
func (p *Pinger) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("url")
	if target == "" {
		http.Error(w, "missing required query parameter: url", http.StatusBadRequest)
		return
	}

	elapsed, err := p.Measure(r.Context(), target)
	if err != nil {
		p.log.Info("measurement failed", "target", target, "error", err.Error())
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(strconv.FormatInt(elapsed.Milliseconds(), 10)))
}

// Port returns the listen port for the hosting cloud. getenv is usually
// os.Getenv. An empty cloud means a local run.
func Port(cloud cloudauth.CloudProvider, getenv func(string) string) (int, error) {
	fromEnv := func(key string) (int, error) {
		v := getenv(key)
		if v == "" {
			return 0, cloudauth.ErrValidation(fmt.Sprintf("%s is not set", key))
		}
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return 0, cloudauth.ErrValidation(fmt.Sprintf("bad port in %s", key)).WithDetail("value", v)
		}
		return port, nil
	}

	switch cloud {
	case cloudauth.ProviderGCP:
		return fromEnv("PORT")
	case cloudauth.ProviderAzure:
		return fromEnv("FUNCTIONS_CUSTOMHANDLER_PORT")
	case cloudauth.ProviderAWS:
		return 8080, nil
	case cloudauth.ProviderAliCloud:
		return 9000, nil
	case "":
		if getenv("PORT") == "" {
			return DefaultLocalPort, nil
		}
		return fromEnv("PORT")
	default:
		return 0, cloudauth.ErrValidation("unknown cloud").WithProvider(cloud)
	}
}
