// Package session owns the Session aggregate, its on-disk layout, and
// its persistence contract. It has no knowledge of transitions,
// providers, or approval policy — those live in sibling packages and
// operate on the types defined here.
package session

import "time"

// Phase is a coarse step in the plan/generate/review/revise pipeline.
type Phase string

// Phases, exactly as spec.md §3.
const (
	PhaseInit      Phase = "INIT"
	PhasePlan      Phase = "PLAN"
	PhaseGenerate  Phase = "GENERATE"
	PhaseReview    Phase = "REVIEW"
	PhaseRevise    Phase = "REVISE"
	PhaseComplete  Phase = "COMPLETE"
	PhaseCancelled Phase = "CANCELLED"
	PhaseError     Phase = "ERROR"
)

// Stage distinguishes engine-produced requests from external replies
// within an active phase. The zero value Stage("") means "absent",
// which invariant I1 requires for INIT and terminal phases.
type Stage string

const (
	StagePrompt   Stage = "PROMPT"
	StageResponse Stage = "RESPONSE"
	StageNone     Stage = ""
)

// Status is the coarse-grained outcome of a session.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusSuccess    Status = "SUCCESS"
	StatusError      Status = "ERROR"
	StatusCancelled  Status = "CANCELLED"
	StatusFailed     Status = "FAILED"
)

// Role identifies which pipeline step a provider is bound to.
type Role string

const (
	RolePlanner   Role = "planner"
	RoleGenerator Role = "generator"
	RoleReviewer  Role = "reviewer"
	RoleReviser   Role = "reviser"
)

// Artifact is an immutable record of a file the engine wrote or
// approved, per spec.md §3.
type Artifact struct {
	RelativePath string    `json:"relative_path"`
	Phase        Phase     `json:"phase"`
	Iteration    int       `json:"iteration"`
	SHA256       string    `json:"sha256"`
	RecordedAt   time.Time `json:"recorded_at"`
}

// HashRecord captures an approved response's content hash, used for
// both Session.Plan and Session.Review (spec.md §3's {approved, hash}
// pair).
type HashRecord struct {
	Approved bool   `json:"approved"`
	Hash     string `json:"hash,omitempty"`
}

// Approval tracks the in-flight approval-gate state for the session's
// current (phase, stage).
type Approval struct {
	Pending          bool   `json:"pending"`
	Feedback         string `json:"feedback,omitempty"`
	SuggestedContent string `json:"suggested_content,omitempty"`
	RetryCount       int    `json:"retry_count"`
}

// Message is an append-only, timestamped progress note.
type Message struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Session is the aggregate root described in spec.md §3.
type Session struct {
	SessionID            string          `json:"session_id"`
	Profile              string          `json:"profile"`
	Providers            map[Role]string `json:"providers"`
	StandardsProviderKey string          `json:"standards_provider_key"`
	Context              map[string]any  `json:"context"`
	Phase                Phase           `json:"phase"`
	Stage                Stage           `json:"stage,omitempty"`
	Status               Status          `json:"status"`
	CurrentIteration     int             `json:"current_iteration"`
	Plan                 HashRecord      `json:"plan"`
	Review               HashRecord      `json:"review"`
	StandardsHash        string          `json:"standards_hash,omitempty"`
	Artifacts            []Artifact      `json:"artifacts"`
	Approval             Approval        `json:"approval"`
	LastError            string          `json:"last_error,omitempty"`
	Messages             []Message       `json:"messages"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`

	// Unknown preserves fields present in a loaded session.json that
	// this version of the type doesn't recognize, so they round-trip
	// on the next save instead of being silently dropped.
	Unknown map[string]any `json:"-"`
}

// AddMessage appends a timestamped progress note and bumps UpdatedAt.
func (s *Session) AddMessage(text string) {
	s.Messages = append(s.Messages, Message{Timestamp: time.Now(), Text: text})
	s.UpdatedAt = time.Now()
}

// IsTerminal reports whether the session has reached COMPLETE,
// CANCELLED, or ERROR.
func (s *Session) IsTerminal() bool {
	switch s.Phase {
	case PhaseComplete, PhaseCancelled, PhaseError:
		return true
	default:
		return false
	}
}
