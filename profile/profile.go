// Package profile defines the Profile capability set (spec.md §6) and
// a process-wide registry for resolving profiles by key, mirroring the
// provider registry's shape.
package profile

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// FieldType is the primitive type of a context schema field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldInt    FieldType = "int"
	FieldBool   FieldType = "bool"
	FieldPath   FieldType = "path"
)

// FieldSchema describes validation rules for one context field.
type FieldSchema struct {
	Type     FieldType
	Required bool
	Choices  []string
	Exists   bool // path fields only: the path must exist on disk
}

// ContextSchema maps field name to its schema.
type ContextSchema map[string]FieldSchema

// FieldError is one validation failure produced by ValidateContext.
type FieldError struct {
	Field   string
	Message string
}

// Metadata describes a profile's identity and capabilities.
type Metadata struct {
	Name                 string
	ContextSchema        ContextSchema
	CanRegeneratePrompts bool
}

// ReviewVerdict is the structured outcome of processing a review
// response.
type ReviewVerdict string

const (
	VerdictPass ReviewVerdict = "PASS"
	VerdictFail ReviewVerdict = "FAIL"
)

// WriteEntry is one file the engine should materialize under a code
// directory, produced by processing a generation or revision response.
type WriteEntry struct {
	Path    string
	Content string
}

// ProcessStatus is the coarse outcome of processing a prompt response.
type ProcessStatus string

const (
	StatusOK    ProcessStatus = "OK"
	StatusError ProcessStatus = "ERROR"
)

// PlanningResult is returned by ProcessPlanningResponse.
type PlanningResult struct {
	Status   ProcessStatus
	Messages []string
}

// GenerationResult is returned by ProcessGenerationResponse and
// ProcessRevisionResponse.
type GenerationResult struct {
	Status    ProcessStatus
	WritePlan []WriteEntry
}

// ReviewResult is returned by ProcessReviewResponse.
type ReviewResult struct {
	Status   ProcessStatus
	Approved bool
	Verdict  ReviewVerdict
	Metadata map[string]any
}

// ErrNotImplemented signals a profile does not support an optional
// operation (e.g. RegeneratePrompt); callers fall through to the next
// branch of the approval retry policy (spec.md §4.7).
var ErrNotImplemented = errors.New("not implemented")

// Profile is the capability set an opaque workflow profile must
// implement (spec.md §6).
type Profile interface {
	Metadata() Metadata
	ValidateContext(context map[string]any) []FieldError
	DefaultStandardsProviderKey() string
	GeneratePlanningPrompt(context map[string]any) (string, error)
	GenerateGenerationPrompt(context map[string]any) (string, error)
	GenerateReviewPrompt(context map[string]any) (string, error)
	GenerateRevisionPrompt(context map[string]any) (string, error)
	ProcessPlanningResponse(text string) (PlanningResult, error)
	ProcessGenerationResponse(text, sessionDir string, iteration int) (GenerationResult, error)
	ProcessReviewResponse(text string) (ReviewResult, error)
	ProcessRevisionResponse(text, sessionDir string, iteration int) (GenerationResult, error)
	RegeneratePrompt(phase, feedback string, context map[string]any) (string, error)
}

// ValidateFieldSchema applies one field's schema to a raw context map
// and returns the collected errors (usually zero or one).
func ValidateFieldSchema(field string, schema FieldSchema, context map[string]any) []FieldError {
	value, present := context[field]
	if !present {
		if schema.Required {
			return []FieldError{{Field: field, Message: "required field is missing"}}
		}
		return nil
	}

	switch schema.Type {
	case FieldString, FieldPath:
		s, ok := value.(string)
		if !ok {
			return []FieldError{{Field: field, Message: "expected a string"}}
		}
		if len(schema.Choices) > 0 && !containsString(schema.Choices, s) {
			return []FieldError{{Field: field, Message: fmt.Sprintf("must be one of %v", schema.Choices)}}
		}
		if schema.Type == FieldPath && schema.Exists {
			if _, err := os.Stat(s); err != nil {
				return []FieldError{{Field: field, Message: fmt.Sprintf("path does not exist: %s", s)}}
			}
		}
	case FieldInt:
		switch value.(type) {
		case int, int32, int64, float64:
		default:
			return []FieldError{{Field: field, Message: "expected an integer"}}
		}
	case FieldBool:
		if _, ok := value.(bool); !ok {
			return []FieldError{{Field: field, Message: "expected a boolean"}}
		}
	}

	return nil
}

func containsString(choices []string, s string) bool {
	for _, c := range choices {
		if c == s {
			return true
		}
	}
	return false
}

// Registry is a mutex-guarded profile lookup keyed by profile key.
type Registry struct {
	mu       sync.RWMutex
	profiles map[string]Profile
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]Profile)}
}

// ErrProfileNotFound is returned by Get on a miss.
var ErrProfileNotFound = errors.New("profile not found")

// Register adds or replaces the profile bound to key.
func (r *Registry) Register(key string, p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[key] = p
}

// Get resolves key, returning ErrProfileNotFound on a miss.
func (r *Registry) Get(key string) (Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, key)
	}
	return p, nil
}

// Keys returns every registered profile key.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.profiles))
	for k := range r.profiles {
		keys = append(keys, k)
	}
	return keys
}
