// Package orchestrator is the single entry point for session lifecycle:
// initializing a run, issuing operator commands, and auto-advancing
// through the transition table until the workflow pauses, finishes, or
// fails (spec.md §4.9, C9).
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/c360studio/aiworkflow/approval"
	"github.com/c360studio/aiworkflow/artifact"
	"github.com/c360studio/aiworkflow/dispatch"
	"github.com/c360studio/aiworkflow/event"
	"github.com/c360studio/aiworkflow/profile"
	"github.com/c360studio/aiworkflow/provider"
	"github.com/c360studio/aiworkflow/session"
	"github.com/c360studio/aiworkflow/transition"
)

// DefaultMaxAutoAdvanceSteps bounds the auto-advance loop so a
// misconfigured policy (e.g. an approver that always returns Approved
// on a cyclic transition) can never spin the orchestrator forever.
const DefaultMaxAutoAdvanceSteps = 64

// ErrTooManyAutoAdvanceSteps is returned when a single command drives
// more than MaxAutoAdvanceSteps transitions without pausing, awaiting,
// or reaching a terminal phase.
var ErrTooManyAutoAdvanceSteps = errors.New("exceeded max auto-advance steps")

// ContextValidationError wraps the field errors a profile's
// ValidateContext reported during InitializeRun.
type ContextValidationError struct {
	Errors []profile.FieldError
}

func (e *ContextValidationError) Error() string {
	return fmt.Sprintf("session context invalid: %d field error(s)", len(e.Errors))
}

// Orchestrator coordinates every collaborator package into the public
// command surface described in spec.md §6: InitializeRun, Init,
// Approve, Reject, Cancel, Status.
type Orchestrator struct {
	store               *session.Store
	gateway             *session.Gateway
	profiles            *profile.Registry
	providers           *provider.Registry
	standards           *provider.StandardsRegistry
	artifacts           *artifact.Service
	dispatcher          *dispatch.Dispatcher
	events              *event.Emitter
	maxAutoAdvanceSteps int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxAutoAdvanceSteps overrides DefaultMaxAutoAdvanceSteps.
func WithMaxAutoAdvanceSteps(n int) Option {
	return func(o *Orchestrator) { o.maxAutoAdvanceSteps = n }
}

// New constructs an Orchestrator from its collaborators.
func New(
	store *session.Store,
	gateway *session.Gateway,
	profiles *profile.Registry,
	providers *provider.Registry,
	standards *provider.StandardsRegistry,
	artifacts *artifact.Service,
	dispatcher *dispatch.Dispatcher,
	events *event.Emitter,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		store:               store,
		gateway:             gateway,
		profiles:            profiles,
		providers:           providers,
		standards:           standards,
		artifacts:           artifacts,
		dispatcher:          dispatcher,
		events:              events,
		maxAutoAdvanceSteps: DefaultMaxAutoAdvanceSteps,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// InitializeRun validates profileKey, providers, and promptContext,
// materializes the session's standards bundle, and persists a new
// INIT-phase session. Any failure after the session directory is
// created rolls it back — InitializeRun never leaves orphaned state on
// disk (spec.md §4.9).
func (o *Orchestrator) InitializeRun(
	ctx context.Context,
	profileKey string,
	providers map[session.Role]string,
	promptContext map[string]any,
	standardsProviderKey string,
) (string, error) {
	prof, err := o.profiles.Get(profileKey)
	if err != nil {
		return "", err
	}

	if fieldErrs := prof.ValidateContext(promptContext); len(fieldErrs) > 0 {
		return "", &ContextValidationError{Errors: fieldErrs}
	}

	for role, key := range providers {
		p, err := o.providers.Get(key)
		if err != nil {
			return "", fmt.Errorf("role %s: %w", role, err)
		}
		if err := p.Validate(); err != nil {
			return "", fmt.Errorf("%w: role %s provider %q: %v", provider.ErrProviderValidation, role, key, err)
		}
	}

	if standardsProviderKey == "" {
		standardsProviderKey = prof.DefaultStandardsProviderKey()
	}

	sessionID := newSessionID()
	if err := o.gateway.CreateSessionDir(sessionID); err != nil {
		return "", err
	}

	bundle, err := o.standards.CreateBundle(ctx, standardsProviderKey, promptContext)
	if err != nil {
		o.rollback(sessionID)
		return "", err
	}

	if err := o.gateway.WriteStandardsBundle(sessionID, bundle); err != nil {
		o.rollback(sessionID)
		return "", err
	}

	now := time.Now().UTC()
	sess := &session.Session{
		SessionID:            sessionID,
		Profile:              profileKey,
		Providers:            providers,
		StandardsProviderKey: standardsProviderKey,
		Context:              promptContext,
		Phase:                session.PhaseInit,
		Stage:                session.StageNone,
		Status:               session.StatusInProgress,
		CurrentIteration:     1,
		StandardsHash:        hashText(bundle),
		CreatedAt:            now,
		UpdatedAt:            now,
	}

	if err := o.store.Save(sess); err != nil {
		o.rollback(sessionID)
		return "", err
	}

	return sessionID, nil
}

// rollback deletes a partially-constructed session directory. Errors
// are deliberately discarded: rollback runs only after InitializeRun
// has already failed, and there is no better error to surface.
func (o *Orchestrator) rollback(sessionID string) {
	_ = o.store.Delete(sessionID)
}

func newSessionID() string {
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405Z"), uuid.NewString()[:8])
}

func hashText(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Init issues the "init" command: PLAN/PROMPT is created and the
// auto-advance loop runs from there.
func (o *Orchestrator) Init(ctx context.Context, sessionID string) (*session.Session, error) {
	return o.step(ctx, sessionID, transition.CommandInit, nil)
}

// Approve issues "approve", or the override command (approve_complete
// / approve_revise) when the caller is resolving a REVIEW[RESPONSE]
// verdict directly rather than letting CHECK_VERDICT decide. When the
// session was paused on a pending approval, this call IS the external
// approval decision: it runs the same pre-transition artifact handling
// a gate-driven Approved verdict would have run (hashing the response,
// materializing a write plan) before clearing the pending flag and
// advancing, so a human override has the same on-disk effects the
// configured approver would have produced (spec.md §4.7, §6).
//
// This is also the resume path after a provider crash (spec.md scenario
// S4): failSession leaves status=ERROR with phase/stage exactly where
// the failing action left them, so once the operator has repointed the
// failing role, Approve re-runs that same action (CREATE_PROMPT or
// CALL_AI, whichever the current stage identifies) instead of treating
// the state as already resolved — there is no response on disk yet to
// hash, only a prompt to retry against (spec.md scenario S4; the
// original's test_approve_provider_error_can_retry_after_fix).
func (o *Orchestrator) Approve(ctx context.Context, sessionID string, override transition.Command) (*session.Session, error) {
	sess, err := o.store.Load(sessionID)
	if err != nil {
		return nil, err
	}

	if sess.Status == session.StatusError {
		return o.resumeAfterFailure(ctx, sess)
	}

	if sess.Approval.Pending {
		prof, err := o.profiles.Get(sess.Profile)
		if err != nil {
			return nil, err
		}
		if err := o.artifacts.HandlePreTransitionApproval(ctx, sess, prof); err != nil {
			return nil, fmt.Errorf("pre-transition approval handling: %w", err)
		}
	}
	sess.Approval = session.Approval{}

	cmd := transition.CommandApprove
	if override != "" {
		cmd = override
	}
	return o.advance(ctx, sess, cmd)
}

// resumeAfterFailure re-drives the action that was in flight when
// failSession recorded the error: phase/stage were left untouched, and
// each stage identifies exactly one action (PROMPT is produced by
// CREATE_PROMPT, RESPONSE by CALL_AI), so no transition lookup is
// needed to know what to retry.
func (o *Orchestrator) resumeAfterFailure(ctx context.Context, sess *session.Session) (*session.Session, error) {
	action, err := resumeAction(sess.Stage)
	if err != nil {
		return nil, err
	}

	sess.Status = session.StatusInProgress
	sess.LastError = ""
	sess.Approval = session.Approval{}

	if err := o.runLoop(ctx, sess, action); err != nil {
		return nil, err
	}
	if err := o.store.Save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// resumeAction maps a paused stage back to the action that produces it.
func resumeAction(stage session.Stage) (transition.Action, error) {
	switch stage {
	case session.StagePrompt:
		return transition.ActionCreatePrompt, nil
	case session.StageResponse:
		return transition.ActionCallAI, nil
	default:
		return "", fmt.Errorf("stage %q has no resumable action", stage)
	}
}

// Reject issues "reject" at the session's current state and records
// feedback as a progress message. The transition table resolves this
// to HALT: a no-op by design, since the gate loop — not an explicit
// operator rejection — owns forward progress.
func (o *Orchestrator) Reject(ctx context.Context, sessionID, feedback string) (*session.Session, error) {
	return o.step(ctx, sessionID, transition.CommandReject, func(sess *session.Session) {
		if feedback != "" {
			sess.AddMessage(feedback)
		}
	})
}

// Cancel issues "cancel", matched by the wildcard entry from any
// active phase.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) (*session.Session, error) {
	return o.step(ctx, sessionID, transition.CommandCancel, nil)
}

// Status loads and returns the session unmodified: it must not mutate
// on-disk state (spec.md P4).
func (o *Orchestrator) Status(sessionID string) (*session.Session, error) {
	return o.store.Load(sessionID)
}

// step loads sessionID, applies pre (if any), and advances via cmd. An
// invalid command leaves no trace on disk.
func (o *Orchestrator) step(ctx context.Context, sessionID string, cmd transition.Command, pre func(*session.Session)) (*session.Session, error) {
	sess, err := o.store.Load(sessionID)
	if err != nil {
		return nil, err
	}
	if pre != nil {
		pre(sess)
	}
	return o.advance(ctx, sess, cmd)
}

// advance looks up the transition for cmd, runs the auto-advance loop
// from the resulting action, and persists the outcome. An invalid
// command returns without saving, leaving the stored session untouched.
func (o *Orchestrator) advance(ctx context.Context, sess *session.Session, cmd transition.Command) (*session.Session, error) {
	entry, err := transition.Lookup(sess.Phase, sess.Stage, cmd)
	if err != nil {
		return nil, err
	}
	sess.Phase = entry.NextPhase
	sess.Stage = entry.NextStage

	if err := o.runLoop(ctx, sess, entry.Action); err != nil {
		return nil, err
	}

	if err := o.store.Save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// runLoop drives actions and their resulting gate continuations until
// the session reaches a terminal phase, awaits an external response, or
// pauses on a pending approval. A provider or collaborator error during
// the run does not bubble: per spec.md §7 and scenario S4, the session's
// phase and stage are left exactly where the failing action found them
// (ERROR is recorded as a status, not a phase sink — failing this way
// would make the session terminal and unrecoverable, which spec.md §8
// scenario S4 and the original implementation's
// test_orchestrator_provider_errors.py both reject: S4 resumes from
// `phase=GENERATE, stage=RESPONSE` after the operator repoints the
// role). The session is marked status=ERROR with lastError set, a
// WORKFLOW_FAILED event is emitted, and the command returns the
// (now-errored) session rather than an error.
func (o *Orchestrator) runLoop(ctx context.Context, sess *session.Session, action transition.Action) error {
	steps := 0
	for {
		steps++
		if steps > o.maxAutoAdvanceSteps {
			return fmt.Errorf("%w: session %s", ErrTooManyAutoAdvanceSteps, sess.SessionID)
		}

		result, err := o.dispatcher.Dispatch(ctx, sess, action)
		if err != nil {
			o.failSession(sess, err)
			return nil
		}

		if result.Awaiting || result.Cancelled || result.Completed {
			return nil
		}

		if result.Gate == nil {
			return nil
		}

		switch result.Gate.Continuation {
		case approval.ContinuePause:
			return nil
		case approval.ContinueRetry:
			action = transition.ActionCallAI
		case approval.ContinueAdvance:
			nextEntry, err := transition.Lookup(sess.Phase, sess.Stage, transition.CommandApprove)
			if err != nil {
				// No further auto-advance edge from here: the state
				// machine considers this state resolved by something
				// other than "approve" (e.g. CHECK_VERDICT already
				// drove its own transition internally).
				return nil
			}
			sess.Phase = nextEntry.NextPhase
			sess.Stage = nextEntry.NextStage
			action = nextEntry.Action
		default:
			return fmt.Errorf("unrecognized gate continuation %q", result.Gate.Continuation)
		}
	}
}

// failSession records a runtime failure without disturbing Phase/Stage:
// the session stays exactly where the failing action left it so the
// operator can fix the underlying cause (e.g. repoint a role to a
// working provider) and resume via Approve, per spec.md scenario S4 and
// the original's test_approve_provider_error_can_retry_after_fix.
func (o *Orchestrator) failSession(sess *session.Session, cause error) {
	sess.Status = session.StatusError
	sess.LastError = cause.Error()
	sess.AddMessage(fmt.Sprintf("workflow failed: %v", cause))
	o.events.Emit(event.Event{
		Type:      event.WorkflowFailed,
		SessionID: sess.SessionID,
		Phase:     sess.Phase,
		Metadata:  map[string]any{"error": cause.Error()},
	})
}
