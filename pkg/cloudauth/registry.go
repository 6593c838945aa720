package cloudauth

import (
	"fmt"
	"net/url"
	"sort"
	"sync"
)

// Registry manages provider registration.
// It provides thread-safe access to registered providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[CloudProvider]Provider
}

// DefaultRegistry is the global provider registry.
// Providers register themselves via init() functions.
var DefaultRegistry = NewRegistry()

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[CloudProvider]Provider),
	}
}

// Register adds a provider to the registry.
// This is typically called from provider package init() functions.
func (r *Registry) Register(p Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.providers[name]; exists {
		return ErrConflict("provider", string(name))
	}
	for kind, a := range p.Authorizers() {
		if a == nil {
			return ErrValidation(fmt.Sprintf("nil authorizer for kind %s", kind)).WithProvider(name)
		}
	}

	r.providers[name] = p
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(p Provider) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Get retrieves a registered provider by name.
func (r *Registry) Get(name CloudProvider) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.providers[name]
	if !exists {
		return nil, ErrNotFound("provider", string(name))
	}
	return p, nil
}

// Classify derives the endpoint kind of u using the named provider.
func (r *Registry) Classify(name CloudProvider, u *url.URL) (EndpointKind, error) {
	p, err := r.Get(name)
	if err != nil {
		return "", err
	}
	kind := p.Classify(u)
	if kind == "" {
		return "", ErrValidation(fmt.Sprintf("cannot classify endpoint %s", u.Redacted())).WithProvider(name)
	}
	return kind, nil
}

// Authorizer returns the authorizer the named provider supplies for kind.
func (r *Registry) Authorizer(name CloudProvider, kind EndpointKind) (Authorizer, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	a, exists := p.Authorizers()[kind]
	if !exists {
		return nil, ErrNotFound("authorizer", string(kind)).WithProvider(name)
	}
	return a, nil
}

// List returns all registered provider names, sorted.
func (r *Registry) List() []CloudProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]CloudProvider, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// ListByCapability returns providers that have a specific capability.
func (r *Registry) ListByCapability(cap Capability) []CloudProvider {
	var names []CloudProvider
	for _, name := range r.List() {
		p, err := r.Get(name)
		if err == nil && p.HasCapability(cap) {
			names = append(names, name)
		}
	}
	return names
}

// ListProviders returns all providers in the default registry.
func ListProviders() []CloudProvider {
	return DefaultRegistry.List()
}

// ProviderInfo contains metadata about a registered provider.
type ProviderInfo struct {
	Name         CloudProvider
	Capabilities []Capability
	Kinds        []EndpointKind
}

// Describe returns detailed info about all providers in r.
func (r *Registry) Describe() []ProviderInfo {
	var infos []ProviderInfo
	for _, name := range r.List() {
		p, err := r.Get(name)
		if err != nil {
			continue
		}
		info := ProviderInfo{
			Name:         name,
			Capabilities: p.Capabilities(),
		}
		for kind := range p.Authorizers() {
			info.Kinds = append(info.Kinds, kind)
		}
		sort.Slice(info.Kinds, func(i, j int) bool { return info.Kinds[i] < info.Kinds[j] })
		infos = append(infos, info)
	}
	return infos
}

// DescribeProviders returns detailed info about all registered providers.
func DescribeProviders() []ProviderInfo {
	return DefaultRegistry.Describe()
}
