// Package stream writes probe results to clients as they arrive.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-logr/logr"

	"github.com/anirudhbiyani/ping-service/pkg/probe"
)

// ContentType is the media type of a result stream.
const ContentType = "application/x-ndjson"

// Encoder writes results as newline-delimited JSON and flushes after each
// record so the client sees it immediately.
type Encoder struct {
	w       io.Writer
	flush   func() error
	marshal func(v interface{}) ([]byte, error)
	log     logr.Logger
}

// Option configures the Encoder.
type Option func(*Encoder)

// WithLogger sets the logger.
func WithLogger(l logr.Logger) Option {
	return func(e *Encoder) {
		e.log = l
	}
}

// NewEncoder creates an Encoder writing to w. When w is an
// http.ResponseWriter, records are flushed through its
// http.ResponseController.
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	e := &Encoder{
		w:       w,
		flush:   flusherFor(w),
		marshal: json.Marshal,
		log:     logr.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func flusherFor(w io.Writer) func() error {
	switch f := w.(type) {
	case http.ResponseWriter:
		rc := http.NewResponseController(f)
		return func() error {
			err := rc.Flush()
			if errors.Is(err, http.ErrNotSupported) {
				return nil
			}
			return err
		}
	case interface{ Flush() error }:
		return f.Flush
	case http.Flusher:
		return func() error {
			f.Flush()
			return nil
		}
	default:
		return func() error { return nil }
	}
}

// Encode writes one record followed by a newline and flushes. A record
// that cannot be marshaled is replaced by an error record for the same
// provider and region.
func (e *Encoder) Encode(r probe.Result) error {
	line := e.line(r)
	if _, err := e.w.Write(line); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := e.flush(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	return nil
}

// line returns the newline-terminated JSON form of r.
func (e *Encoder) line(r probe.Result) []byte {
	data, err := e.marshal(r)
	if err != nil {
		e.log.Error(err, "result not encodable", "provider", r.Provider, "region", r.Region)
		data, err = json.Marshal(probe.Result{
			Provider: r.Provider,
			Region:   r.Region,
			Latency:  probe.LatencyError,
			Error:    "result not encodable",
		})
		if err != nil {
			data = []byte(`{"provider":"","region":"","latency":"error"}`)
		}
	}
	return append(data, '\n')
}

// Stream encodes results until the channel closes and returns the number
// of records written. It stops at the first write error, which usually
// means the client went away.
func (e *Encoder) Stream(results <-chan probe.Result) (int, error) {
	n := 0
	for r := range results {
		if err := e.Encode(r); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
