package provider

import (
	"context"
	"fmt"
	"sync"
)

// StandardsProvider materializes a standards bundle for a session at
// initialization time (spec.md §6 Standards provider capability set).
type StandardsProvider interface {
	Metadata() Metadata
	Validate() error
	CreateBundle(ctx context.Context, promptContext map[string]any) (string, error)
}

// StandardsRegistry is a mutex-guarded standards-provider lookup,
// mirroring Registry's shape for ordinary response providers.
type StandardsRegistry struct {
	mu        sync.RWMutex
	providers map[string]StandardsProvider
}

// NewStandardsRegistry returns an empty StandardsRegistry.
func NewStandardsRegistry() *StandardsRegistry {
	return &StandardsRegistry{providers: make(map[string]StandardsProvider)}
}

// Register adds or replaces the standards provider bound to key.
func (r *StandardsRegistry) Register(key string, p StandardsProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = p
}

// Get resolves key, returning ErrProviderNotFound on a miss.
func (r *StandardsRegistry) Get(key string) (StandardsProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, key)
	}
	return p, nil
}

// CreateBundle resolves key and invokes its CreateBundle under the
// provider's declared timeout, the same derivation Execute applies for
// ordinary response providers.
func (r *StandardsRegistry) CreateBundle(ctx context.Context, key string, promptContext map[string]any) (string, error) {
	p, err := r.Get(key)
	if err != nil {
		return "", err
	}
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("%w: standards provider %q: %v", ErrProviderValidation, key, err)
	}

	meta := p.Metadata()
	callCtx, cancel := deriveContext(ctx, meta.ResponseTimeout)
	defer cancel()

	bundle, err := p.CreateBundle(callCtx, promptContext)
	if err != nil {
		return "", fmt.Errorf("%w: standards provider %q: %v", ErrProviderExecution, key, err)
	}
	return bundle, nil
}
