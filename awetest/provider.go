// Package awetest collects small, thread-safe fakes for Profile,
// Provider, and Approver, grounded on the teacher's
// llm/testutil/mock.go sequenced-response mock pattern: a queue of
// canned results, call-count and captured-argument introspection, a
// Reset for reuse across subtests.
package awetest

import (
	"context"
	"sync"
	"time"

	"github.com/c360studio/aiworkflow/provider"
)

// StubProvider is a thread-safe provider.Provider fake returning
// configured results in sequence, or a single repeating result when
// only one is configured.
type StubProvider struct {
	mu      sync.Mutex
	name    string
	results []provider.Result
	err     error
	index   int

	callCount int
	lastPrompt string
	lastSystemPrompt string
}

// NewStubProvider returns a StubProvider that answers with results in
// order, repeating the final entry once exhausted.
func NewStubProvider(name string, results ...provider.Result) *StubProvider {
	return &StubProvider{name: name, results: results}
}

// WithError configures the stub to fail every call with err instead of
// returning a result.
func (s *StubProvider) WithError(err error) *StubProvider {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// Metadata implements provider.Provider.
func (s *StubProvider) Metadata() provider.Metadata {
	timeout := 5 * time.Second
	return provider.Metadata{Name: s.name, ResponseTimeout: &timeout, SupportsSystemPrompt: true}
}

// Validate implements provider.Provider.
func (s *StubProvider) Validate() error { return nil }

// Generate implements provider.Provider, returning the next configured
// result and recording the call for later assertions.
func (s *StubProvider) Generate(_ context.Context, prompt string, _ map[string]any, systemPrompt string) (provider.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.callCount++
	s.lastPrompt = prompt
	s.lastSystemPrompt = systemPrompt

	if s.err != nil {
		return provider.Result{}, s.err
	}
	if len(s.results) == 0 {
		return provider.Result{Text: ""}, nil
	}
	if s.index >= len(s.results) {
		return s.results[len(s.results)-1], nil
	}
	r := s.results[s.index]
	s.index++
	return r, nil
}

// CallCount returns how many times Generate has been invoked.
func (s *StubProvider) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

// LastPrompt returns the prompt passed to the most recent Generate call.
func (s *StubProvider) LastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPrompt
}

// LastSystemPrompt returns the system prompt passed to the most recent
// Generate call.
func (s *StubProvider) LastSystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSystemPrompt
}

// Reset clears call history and rewinds the result queue.
func (s *StubProvider) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callCount = 0
	s.index = 0
	s.lastPrompt = ""
	s.lastSystemPrompt = ""
}

// StubStandardsProvider is a provider.StandardsProvider fake that
// always returns a configured bundle, or an error when Err is set.
type StubStandardsProvider struct {
	Name   string
	Bundle string
	Err    error
}

// Metadata implements provider.StandardsProvider.
func (s *StubStandardsProvider) Metadata() provider.Metadata {
	return provider.Metadata{Name: s.Name}
}

// Validate implements provider.StandardsProvider.
func (s *StubStandardsProvider) Validate() error { return nil }

// CreateBundle implements provider.StandardsProvider.
func (s *StubStandardsProvider) CreateBundle(_ context.Context, _ map[string]any) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	return s.Bundle, nil
}
