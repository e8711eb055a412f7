package approval

import (
	"errors"
	"fmt"

	"github.com/c360studio/aiworkflow/profile"
	"github.com/c360studio/aiworkflow/session"
)

// Continuation tells the orchestrator what to do after Gate.Run
// returns. Modeled as a value instead of a callback into the
// dispatcher, since the gate has no reference back to the
// orchestrator or C8 (spec.md §9 design note on cyclic references).
type Continuation string

const (
	// ContinueAdvance means the gate approved: the caller should run
	// the artifact service's pre-transition handler and then execute
	// the transition table's "approve" edge for the current state.
	ContinueAdvance Continuation = "ADVANCE"
	// ContinueRetry means the caller should re-invoke CALL_AI with the
	// same prompt and call Gate.Run again once a response exists.
	ContinueRetry Continuation = "RETRY"
	// ContinuePause means the workflow suspends here; the session has
	// already been updated (pending/feedback) and the caller need only
	// persist it.
	ContinuePause Continuation = "PAUSE"
)

// Outcome is the result of one Gate.Run call.
type Outcome struct {
	Continuation Continuation
	Result       Result
}

// promptWriter is the subset of session.Gateway the gate needs to
// apply a suggested rewrite or a regenerated prompt.
type promptWriter interface {
	WritePrompt(sessionID string, iteration int, phase session.Phase, content string) error
}

// Gate runs the approval step after CREATE_PROMPT and CALL_AI actions.
type Gate struct {
	approvers *Registry
	policy    *Policy
	gw        promptWriter
}

// NewGate constructs a Gate backed by approvers, policy, and gw.
func NewGate(approvers *Registry, policy *Policy, gw promptWriter) *Gate {
	return &Gate{approvers: approvers, policy: policy, gw: gw}
}

// EvalInput is the evaluation input built by the caller per spec.md
// §4.7 step 1: the canonical file set for the current (phase, stage).
// The approval context (session context plus ApprovalConfig extras) is
// assembled by Run itself, since it needs the resolved Config.
type EvalInput struct {
	Files      map[string]string
	SessionDir string
}

// Run evaluates the gate for sess's current (phase, stage). prof is
// consulted only on a PROMPT-stage rejection, to attempt prompt
// regeneration. A missing policy entry means no gate is configured for
// this (phase, stage): Run returns ContinueAdvance immediately.
func (g *Gate) Run(sess *session.Session, prof profile.Profile, in EvalInput) (Outcome, error) {
	cfg, ok := g.policy.For(sess.Phase, sess.Stage)
	if !ok {
		return Outcome{Continuation: ContinueAdvance, Result: Result{Decision: Approved}}, nil
	}

	approver, err := g.approvers.Get(cfg.ApproverKey)
	if err != nil {
		return Outcome{}, err
	}

	evalContext := make(map[string]any, len(sess.Context)+3)
	for k, v := range sess.Context {
		evalContext[k] = v
	}
	evalContext["allowRewrite"] = cfg.AllowRewrite
	evalContext["sessionDir"] = in.SessionDir
	evalContext["planFile"] = "plan.md"

	result, err := approver.Evaluate(string(sess.Phase), string(sess.Stage), in.Files, evalContext)
	if err != nil {
		return Outcome{}, fmt.Errorf("gate evaluation failed for %s/%s: %w", sess.Phase, sess.Stage, err)
	}

	switch result.Decision {
	case Pending:
		return g.handlePending(sess, result), nil
	case Approved:
		return g.handleApproved(sess, result), nil
	case Rejected:
		if sess.Stage == session.StagePrompt {
			return g.handlePromptRejection(sess, prof, cfg, in, result)
		}
		return g.handleResponseRejection(sess, cfg, result), nil
	default:
		return Outcome{}, fmt.Errorf("unrecognized approval decision %q", result.Decision)
	}
}

func (g *Gate) handlePending(sess *session.Session, result Result) Outcome {
	sess.Approval.Pending = true
	if result.Feedback != "" {
		sess.AddMessage(result.Feedback)
	}
	return Outcome{Continuation: ContinuePause, Result: result}
}

func (g *Gate) handleApproved(sess *session.Session, result Result) Outcome {
	sess.Approval = session.Approval{}
	return Outcome{Continuation: ContinueAdvance, Result: result}
}

// handlePromptRejection implements spec.md §4.7's PROMPT-stage
// rejection branch: apply a suggested rewrite, else ask the profile to
// regenerate from feedback (bounded recursion via maxRetries), else
// suspend for a human.
func (g *Gate) handlePromptRejection(sess *session.Session, prof profile.Profile, cfg Config, in EvalInput, result Result) (Outcome, error) {
	if result.SuggestedContent != "" && cfg.AllowRewrite {
		if err := g.gw.WritePrompt(sess.SessionID, sess.CurrentIteration, sess.Phase, result.SuggestedContent); err != nil {
			return Outcome{}, fmt.Errorf("apply suggested prompt rewrite: %w", err)
		}
		sess.Approval.Pending = true
		sess.Approval.Feedback = result.Feedback
		return Outcome{Continuation: ContinuePause, Result: result}, nil
	}

	if prof != nil && prof.Metadata().CanRegeneratePrompts {
		newPrompt, err := prof.RegeneratePrompt(string(sess.Phase), result.Feedback, sess.Context)
		switch {
		case errors.Is(err, profile.ErrNotImplemented):
			// fall through to manual suspension below
		case err != nil:
			return Outcome{}, fmt.Errorf("regenerate prompt: %w", err)
		default:
			if err := g.gw.WritePrompt(sess.SessionID, sess.CurrentIteration, sess.Phase, newPrompt); err != nil {
				return Outcome{}, fmt.Errorf("write regenerated prompt: %w", err)
			}
			sess.Approval.RetryCount++
			if cfg.MaxRetries > 0 && sess.Approval.RetryCount <= cfg.MaxRetries {
				return g.Run(sess, prof, in)
			}
			sess.Approval.Pending = true
			sess.Approval.Feedback = result.Feedback
			return Outcome{Continuation: ContinuePause, Result: result}, nil
		}
	}

	sess.Approval.Pending = true
	sess.Approval.Feedback = result.Feedback
	return Outcome{Continuation: ContinuePause, Result: result}, nil
}

// handleResponseRejection implements spec.md §4.7's RESPONSE-stage
// retry loop. It advances sess.Approval.RetryCount by exactly one per
// call; the orchestrator's auto-advance loop is responsible for
// calling CALL_AI again and invoking Run once more when the
// continuation is ContinueRetry.
func (g *Gate) handleResponseRejection(sess *session.Session, cfg Config, result Result) Outcome {
	if result.SuggestedContent != "" && cfg.AllowRewrite {
		sess.Approval.SuggestedContent = result.SuggestedContent
	}

	sess.Approval.RetryCount++
	if cfg.MaxRetries > 0 && sess.Approval.RetryCount <= cfg.MaxRetries {
		sess.Approval.Feedback = result.Feedback
		return Outcome{Continuation: ContinueRetry, Result: result}
	}

	sess.LastError = fmt.Sprintf("Approval rejected after %d attempts", sess.Approval.RetryCount)
	sess.AddMessage(sess.LastError)
	sess.Approval.Pending = true
	sess.Approval.Feedback = result.Feedback
	return Outcome{Continuation: ContinuePause, Result: result}
}
