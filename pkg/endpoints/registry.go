// Package endpoints loads the set of probe endpoints the service fans out
// to.
//
// The configuration document maps a provider namespace to a map of region
// to endpoint URL:
//
//	{
//	  "urls": {
//	    "faas.gcp": {"us-central1": "https://pinger-uc.a.run.app"},
//	    "faas.aws": {"us-east-1": "https://abc.lambda-url.us-east-1.on.aws/"}
//	  }
//	}
//
// The "urls" wrapper is optional and namespaces may be written with or
// without the "faas." prefix.
package endpoints

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"

	"github.com/anirudhbiyani/ping-service/pkg/cloudauth"
)

const namespacePrefix = "faas."

// Endpoint is one probe endpoint.
type Endpoint struct {
	// Provider is the cloud hosting the endpoint.
	Provider cloudauth.CloudProvider `json:"provider"`

	// Region is the provider region, unique within Provider.
	Region string `json:"region"`

	// URL is the endpoint URL, without the target parameter.
	URL *url.URL `json:"-"`

	// Kind selects the outbound authorization scheme.
	Kind cloudauth.EndpointKind `json:"kind"`
}

// MarshalJSON renders the URL as a string.
func (e Endpoint) MarshalJSON() ([]byte, error) {
	type alias Endpoint
	var raw string
	if e.URL != nil {
		raw = e.URL.String()
	}
	return json.Marshal(struct {
		alias
		URL string `json:"url"`
	}{alias: alias(e), URL: raw})
}

// Classifier derives the endpoint kind of a provider URL.
// *cloudauth.Registry satisfies it.
type Classifier interface {
	Classify(name cloudauth.CloudProvider, u *url.URL) (cloudauth.EndpointKind, error)
}

// Registry is the immutable set of loaded endpoints.
type Registry struct {
	endpoints []Endpoint
}

type document struct {
	URLs map[string]map[string]string `json:"urls"`
}

// Load reads a configuration document from r.
func Load(r io.Reader, classifier Classifier) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read endpoint document: %w", err)
	}
	return Parse(data, classifier)
}

// Parse builds a Registry from a configuration document. Unknown
// namespaces, malformed URLs and endpoints the classifier rejects fail the
// whole load.
func Parse(data []byte, classifier Classifier) (*Registry, error) {
	namespaces, err := decode(data)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var eps []Endpoint
	for ns, regions := range namespaces {
		provider := cloudauth.CloudProvider(strings.TrimPrefix(ns, namespacePrefix))
		if !cloudauth.IsProbeProvider(provider) {
			return nil, cloudauth.ErrValidation(fmt.Sprintf("unknown provider namespace %q", ns)).
				WithOperation("load_endpoints")
		}

		for region, raw := range regions {
			if region == "" {
				return nil, cloudauth.ErrValidation("empty region").
					WithProvider(provider).
					WithOperation("load_endpoints")
			}
			key := string(provider) + "/" + region
			if seen[key] {
				return nil, cloudauth.ErrConflict("endpoint", key).WithOperation("load_endpoints")
			}
			seen[key] = true

			u, err := parseEndpointURL(raw)
			if err != nil {
				return nil, cloudauth.ErrValidation(fmt.Sprintf("invalid endpoint URL for %s", key)).
					WithCause(err).
					WithProvider(provider).
					WithOperation("load_endpoints")
			}

			kind, err := classifier.Classify(provider, u)
			if err != nil {
				return nil, fmt.Errorf("classify %s: %w", key, err)
			}

			eps = append(eps, Endpoint{Provider: provider, Region: region, URL: u, Kind: kind})
		}
	}

	sort.Slice(eps, func(i, j int) bool {
		pi, pj := providerRank(eps[i].Provider), providerRank(eps[j].Provider)
		if pi != pj {
			return pi < pj
		}
		return eps[i].Region < eps[j].Region
	})

	return &Registry{endpoints: eps}, nil
}

func decode(data []byte) (map[string]map[string]string, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err == nil && doc.URLs != nil {
		return doc.URLs, nil
	}

	var flat map[string]map[string]string
	if err := json.Unmarshal(data, &flat); err != nil {
		return nil, cloudauth.ErrValidation("malformed endpoint document").
			WithCause(err).
			WithOperation("load_endpoints")
	}
	return flat, nil
}

func parseEndpointURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}

func providerRank(p cloudauth.CloudProvider) int {
	for i, known := range cloudauth.ProbeProviders {
		if p == known {
			return i
		}
	}
	return len(cloudauth.ProbeProviders)
}

// Endpoints returns a copy of the loaded endpoints ordered by provider and
// region.
func (r *Registry) Endpoints() []Endpoint {
	out := make([]Endpoint, len(r.endpoints))
	copy(out, r.endpoints)
	return out
}

// Len returns the number of endpoints.
func (r *Registry) Len() int {
	return len(r.endpoints)
}

// Count returns the number of endpoints per provider.
func (r *Registry) Count() map[cloudauth.CloudProvider]int {
	counts := make(map[cloudauth.CloudProvider]int)
	for _, ep := range r.endpoints {
		counts[ep.Provider]++
	}
	return counts
}
