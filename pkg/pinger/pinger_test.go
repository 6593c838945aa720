package pinger

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

func TestMeasure_HTTPCountsUntilHeaders(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(30 * time.Millisecond)
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	d, err := New(WithLogger(testr.New(t))).Measure(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if d < 30*time.Millisecond {
		t.Fatalf("elapsed=%v", d)
	}
}

func TestMeasure_HTTPFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/final", http.StatusFound)
	})
	var reached atomic.Bool
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		reached.Store(true)
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	d, err := New().Measure(context.Background(), srv.URL+"/start")
	if err != nil {
		t.Fatalf("Measure: %v", err)
	}
	if !reached.Load() || d < 100*time.Millisecond {
		t.Fatalf("redirect not followed: reached=%v elapsed=%v", reached.Load(), d)
	}
}

func TestMeasure_HTTPTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	p := New(WithHTTPClient(&http.Client{Timeout: 50 * time.Millisecond}))
	_, err := p.Measure(context.Background(), srv.URL)
	if !cloudauth.IsCategory(err, cloudauth.ErrCategoryTimeout) || !cloudauth.IsRetryable(err) {
		t.Fatalf("err=%v", err)
	}
}

func TestMeasure_TCP(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	if _, err := New().Measure(context.Background(), TCPScheme+ln.Addr().String()); err != nil {
		t.Fatalf("Measure: %v", err)
	}
}

func TestMeasure_Failures(t *testing.T) {
	t.Parallel()

	p := New(WithDialTimeout(time.Second))

	if _, err := p.Measure(context.Background(), "tcp://no-port"); !cloudauth.IsCategory(err, cloudauth.ErrCategoryValidation) {
		t.Fatalf("bad address err=%v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := p.Measure(context.Background(), TCPScheme+addr); !cloudauth.IsCategory(err, cloudauth.ErrCategoryNetwork) {
		t.Fatalf("closed port err=%v", err)
	}
	if _, err := p.Measure(context.Background(), "http://"+addr); !cloudauth.IsCategory(err, cloudauth.ErrCategoryNetwork) {
		t.Fatalf("http closed port err=%v", err)
	}
}

func TestServeHTTP(t *testing.T) {
	t.Parallel()

	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer target.Close()

	srv := httptest.NewServer(New())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/?url=" + target.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d body=%q", resp.StatusCode, body)
	}
	if _, err := strconv.Atoi(string(body)); err != nil {
		t.Fatalf("body %q is not a millisecond count", body)
	}

	resp, err = http.Get(srv.URL + "/")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing url status=%d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/?url=tcp://nowhere")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("failed measurement status=%d", resp.StatusCode)
	}
}

func TestPort(t *testing.T) {
	t.Parallel()

	env := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}

	cases := []struct {
		cloud cloudauth.CloudProvider
		env   map[string]string
		want  int
	}{
		{cloudauth.ProviderGCP, map[string]string{"PORT": "8081"}, 8081},
		{cloudauth.ProviderAzure, map[string]string{"FUNCTIONS_CUSTOMHANDLER_PORT": "7071", "PORT": "1"}, 7071},
		{cloudauth.ProviderAWS, nil, 8080},
		{cloudauth.ProviderAliCloud, nil, 9000},
		{"", nil, DefaultLocalPort},
		{"", map[string]string{"PORT": "4000"}, 4000},
	}
	for _, tc := range cases {
		got, err := Port(tc.cloud, env(tc.env))
		if err != nil || got != tc.want {
			t.Fatalf("Port(%q)=%d, %v want %d", tc.cloud, got, err, tc.want)
		}
	}

	for _, bad := range []struct {
		cloud cloudauth.CloudProvider
		env   map[string]string
	}{
		{cloudauth.ProviderGCP, nil},
		{cloudauth.ProviderAzure, map[string]string{"FUNCTIONS_CUSTOMHANDLER_PORT": "abc"}},
		{cloudauth.ProviderCloudflare, nil},
	} {
		if _, err := Port(bad.cloud, env(bad.env)); !cloudauth.IsCategory(err, cloudauth.ErrCategoryValidation) {
			t.Fatalf("Port(%q) err=%v", bad.cloud, err)
		}
	}
}
