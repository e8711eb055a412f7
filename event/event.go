// Package event fans out structured workflow events to subscribed
// observers (spec.md §4.10). Emission is synchronous and best-effort:
// an observer that panics or errors must not block delivery to the
// observers after it, nor propagate back to the orchestrator.
package event

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360studio/aiworkflow/session"
)

// Type enumerates the workflow event kinds from spec.md §4.10.
type Type string

const (
	PhaseEntered      Type = "PHASE_ENTERED"
	ArtifactCreated   Type = "ARTIFACT_CREATED"
	ArtifactApproved  Type = "ARTIFACT_APPROVED"
	ApprovalRequired  Type = "APPROVAL_REQUIRED"
	ApprovalGranted   Type = "APPROVAL_GRANTED"
	WorkflowCompleted Type = "WORKFLOW_COMPLETED"
	WorkflowFailed    Type = "WORKFLOW_FAILED"
	IterationStarted  Type = "ITERATION_STARTED"
)

// Event is one structured workflow occurrence.
type Event struct {
	Type         Type
	SessionID    string
	Timestamp    time.Time
	Phase        session.Phase
	Iteration    int
	ArtifactPath string
	Metadata     map[string]any
}

// Observer receives emitted events. Subscribe with Types left empty to
// receive everything.
type Observer interface {
	Notify(Event)
}

// ObserverFunc adapts a plain function to the Observer interface.
type ObserverFunc func(Event)

func (f ObserverFunc) Notify(e Event) { f(e) }

type subscription struct {
	types    map[Type]bool // nil/empty means "all events"
	observer Observer
}

// Emitter is the process-local fan-out hub. The zero value is not
// usable; construct with New.
type Emitter struct {
	mu            sync.Mutex
	subscriptions []subscription
	logger        *slog.Logger
}

// Option configures an Emitter.
type Option func(*Emitter)

// WithLogger overrides the default logger used to report observer
// panics/errors, mirroring the teacher's WithLogger constructor option
// convention.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Emitter) { e.logger = logger }
}

// New constructs an empty Emitter.
func New(opts ...Option) *Emitter {
	e := &Emitter{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Subscribe registers observer for the given event types. An empty
// types list subscribes to every event type.
func (e *Emitter) Subscribe(observer Observer, types ...Type) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var set map[Type]bool
	if len(types) > 0 {
		set = make(map[Type]bool, len(types))
		for _, t := range types {
			set[t] = true
		}
	}
	e.subscriptions = append(e.subscriptions, subscription{types: set, observer: observer})
}

// Emit stamps evt.Timestamp if zero and delivers it synchronously to
// every matching subscriber. A subscriber that panics is isolated: its
// panic is logged and delivery continues.
func (e *Emitter) Emit(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	e.mu.Lock()
	subs := make([]subscription, len(e.subscriptions))
	copy(subs, e.subscriptions)
	e.mu.Unlock()

	for _, sub := range subs {
		if sub.types != nil && !sub.types[evt.Type] {
			continue
		}
		e.deliver(sub.observer, evt)
	}
}

func (e *Emitter) deliver(observer Observer, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("event observer panicked", "event_type", evt.Type, "session_id", evt.SessionID, "recovered", r)
		}
	}()
	observer.Notify(evt)
}
