// Package dispatch executes the action produced by the transition
// table: building prompts, invoking providers, checking review
// verdicts, and finalizing or cancelling a session (spec.md §4.8).
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/c360studio/aiworkflow/approval"
	"github.com/c360studio/aiworkflow/artifact"
	"github.com/c360studio/aiworkflow/event"
	"github.com/c360studio/aiworkflow/profile"
	"github.com/c360studio/aiworkflow/provider"
	"github.com/c360studio/aiworkflow/session"
	"github.com/c360studio/aiworkflow/transition"
)

// ErrUnknownAction is returned when Dispatch is given an Action value
// the dispatcher does not recognize.
var ErrUnknownAction = errors.New("unknown dispatch action")

// Deps bundles every collaborator the dispatcher needs. It is built
// once by the composition root and handed to NewDispatcher, which
// uses it for every Dispatch call, playing
// the role the source's embedded orchestrator back-reference played
// (spec.md §9): a plain value, not a callback into C9.
type Deps struct {
	Profiles  *profile.Registry
	Providers *provider.ExecutionService
	Artifacts *artifact.Service
	Gateway   *session.Gateway
	Gate      *approval.Gate
	Events    *event.Emitter
}

// Result reports what happened after one Dispatch call: if a gate ran,
// Gate is non-nil and the orchestrator's auto-advance loop interprets
// its Continuation; otherwise the action was self-contained (FINALIZE,
// CANCEL, HALT) or is awaiting an external response (CALL_AI with
// awaitingResponse=true).
type Result struct {
	Gate      *approval.Outcome
	Awaiting  bool
	Cancelled bool
	Completed bool
}

// Dispatcher executes transition-table actions against Deps.
type Dispatcher struct {
	deps Deps
}

// NewDispatcher constructs a Dispatcher backed by deps.
func NewDispatcher(deps Deps) *Dispatcher {
	return &Dispatcher{deps: deps}
}

// Dispatch executes action against sess, which must already reflect
// the transition table's next (phase, stage) for this step.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, action transition.Action) (Result, error) {
	switch action {
	case transition.ActionCreatePrompt:
		return d.dispatchCreatePrompt(ctx, sess)
	case transition.ActionCallAI:
		return d.dispatchCallAI(ctx, sess)
	case transition.ActionCheckVerdict:
		return d.dispatchCheckVerdict(sess)
	case transition.ActionFinalize:
		return d.dispatchFinalize(sess)
	case transition.ActionHalt:
		return Result{}, nil
	case transition.ActionCancel:
		return d.dispatchCancel(sess)
	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

func (d *Dispatcher) resolveProfile(sess *session.Session) (profile.Profile, error) {
	return d.deps.Profiles.Get(sess.Profile)
}

func generatePrompt(prof profile.Profile, phase session.Phase, ctx map[string]any) (string, error) {
	switch phase {
	case session.PhasePlan:
		return prof.GeneratePlanningPrompt(ctx)
	case session.PhaseGenerate:
		return prof.GenerateGenerationPrompt(ctx)
	case session.PhaseReview:
		return prof.GenerateReviewPrompt(ctx)
	case session.PhaseRevise:
		return prof.GenerateRevisionPrompt(ctx)
	default:
		return "", fmt.Errorf("phase %q has no prompt generator", phase)
	}
}

func providerKeyForPhase(sess *session.Session, phase session.Phase) string {
	switch phase {
	case session.PhasePlan:
		return sess.Providers[session.RolePlanner]
	case session.PhaseGenerate:
		return sess.Providers[session.RoleGenerator]
	case session.PhaseReview:
		return sess.Providers[session.RoleReviewer]
	case session.PhaseRevise:
		return sess.Providers[session.RoleReviser]
	default:
		return ""
	}
}

func (d *Dispatcher) dispatchCreatePrompt(ctx context.Context, sess *session.Session) (Result, error) {
	if err := d.deps.Gateway.CreateIterationDir(sess.SessionID, sess.CurrentIteration); err != nil {
		return Result{}, fmt.Errorf("create iteration directory: %w", err)
	}

	// Entering GENERATE/PROMPT is the point at which PLAN's approval has
	// just been recorded; materialize plan.md at the session root here
	// so GENERATE (and later REVIEW) can include it in their evaluation
	// file set (spec.md §4.5: "copies the approved plan to the session
	// root").
	if sess.Phase == session.PhaseGenerate {
		if err := d.deps.Artifacts.CopyPlanToSession(sess); err != nil {
			return Result{}, fmt.Errorf("copy plan to session: %w", err)
		}
	}

	prof, err := d.resolveProfile(sess)
	if err != nil {
		return Result{}, err
	}

	promptText, err := generatePrompt(prof, sess.Phase, sess.Context)
	if err != nil {
		return Result{}, fmt.Errorf("generate prompt: %w", err)
	}

	if err := d.deps.Gateway.WritePrompt(sess.SessionID, sess.CurrentIteration, sess.Phase, promptText); err != nil {
		return Result{}, fmt.Errorf("write prompt: %w", err)
	}

	d.deps.Events.Emit(event.Event{
		Type:      event.ArtifactCreated,
		SessionID: sess.SessionID,
		Phase:     sess.Phase,
		Iteration: sess.CurrentIteration,
	})

	return d.runGate(sess, prof)
}

func (d *Dispatcher) dispatchCallAI(ctx context.Context, sess *session.Session) (Result, error) {
	prof, err := d.resolveProfile(sess)
	if err != nil {
		return Result{}, err
	}

	promptText, err := d.deps.Gateway.ReadPrompt(sess.SessionID, sess.CurrentIteration, sess.Phase)
	if err != nil {
		return Result{}, fmt.Errorf("read prompt: %w", err)
	}

	providerKey := providerKeyForPhase(sess, sess.Phase)
	execResult, err := d.deps.Providers.Execute(ctx, providerKey, promptText, sess.Context, "")
	if err != nil {
		return Result{}, err
	}

	if execResult.AwaitingResponse {
		d.deps.Events.Emit(event.Event{
			Type:      event.ApprovalRequired,
			SessionID: sess.SessionID,
			Phase:     sess.Phase,
			Iteration: sess.CurrentIteration,
			Metadata:  map[string]any{"awaitingResponse": true},
		})
		sess.AddMessage(fmt.Sprintf("awaiting externally-supplied response for %s", sess.Phase))
		return Result{Awaiting: true}, nil
	}

	if err := d.deps.Gateway.WriteResponse(sess.SessionID, sess.CurrentIteration, sess.Phase, execResult.ResponseText); err != nil {
		return Result{}, fmt.Errorf("write response: %w", err)
	}
	for relPath, content := range execResult.Files {
		if _, err := d.deps.Gateway.WriteCodeFile(sess.SessionID, sess.CurrentIteration, relPath, content); err != nil {
			return Result{}, fmt.Errorf("write provider-supplied file %q: %w", relPath, err)
		}
	}

	return d.runGate(sess, prof)
}

func (d *Dispatcher) runGate(sess *session.Session, prof profile.Profile) (Result, error) {
	files, err := d.filesForState(sess)
	if err != nil {
		return Result{}, fmt.Errorf("collect evaluation files: %w", err)
	}

	outcome, err := d.deps.Gate.Run(sess, prof, approval.EvalInput{
		Files:      files,
		SessionDir: d.deps.Gateway.SessionDir(sess.SessionID),
	})
	if err != nil {
		return Result{}, err
	}

	if outcome.Continuation == approval.ContinueAdvance {
		if err := d.deps.Artifacts.HandlePreTransitionApproval(context.Background(), sess, prof); err != nil {
			return Result{}, fmt.Errorf("pre-transition approval handling: %w", err)
		}
	}

	return Result{Gate: &outcome}, nil
}

// filesForState collects the canonical file set for sess's current
// (phase, stage), per spec.md §4.7 step 1. Missing files are simply
// omitted rather than treated as errors.
func (d *Dispatcher) filesForState(sess *session.Session) (map[string]string, error) {
	files := make(map[string]string)
	gw := d.deps.Gateway

	switch sess.Stage {
	case session.StagePrompt:
		if content, err := gw.ReadPrompt(sess.SessionID, sess.CurrentIteration, sess.Phase); err == nil {
			files["prompt"] = content
		}
	case session.StageResponse:
		if content, err := gw.ReadResponse(sess.SessionID, sess.CurrentIteration, sess.Phase); err == nil {
			files["response"] = content
		}
		if sess.Phase == session.PhaseGenerate || sess.Phase == session.PhaseRevise {
			if codeFiles, err := gw.ReadCodeFiles(sess.SessionID, sess.CurrentIteration); err == nil {
				for rel, content := range codeFiles {
					files["code/"+rel] = content
				}
			}
		}
	}

	if sess.Phase == session.PhaseGenerate || sess.Phase == session.PhaseReview {
		if content, err := gw.ReadPlan(sess.SessionID); err == nil {
			files["plan.md"] = content
		}
	}

	return files, nil
}

func (d *Dispatcher) dispatchCheckVerdict(sess *session.Session) (Result, error) {
	prof, err := d.resolveProfile(sess)
	if err != nil {
		return Result{}, err
	}

	responseText, err := d.deps.Gateway.ReadResponse(sess.SessionID, sess.CurrentIteration, session.PhaseReview)
	if err != nil {
		return Result{}, fmt.Errorf("read review response: %w", err)
	}

	reviewResult, err := prof.ProcessReviewResponse(responseText)
	if err != nil {
		return Result{}, fmt.Errorf("process review response: %w", err)
	}

	var cmd transition.Command
	if reviewResult.Verdict == profile.VerdictPass {
		cmd = transition.CommandApproveComplete
	} else {
		cmd = transition.CommandApproveRevise
		sess.CurrentIteration++
	}

	entry, err := transition.Lookup(sess.Phase, sess.Stage, cmd)
	if err != nil {
		return Result{}, fmt.Errorf("look up verdict transition: %w", err)
	}
	sess.Phase = entry.NextPhase
	sess.Stage = entry.NextStage

	return d.Dispatch(context.Background(), sess, entry.Action)
}

func (d *Dispatcher) dispatchFinalize(sess *session.Session) (Result, error) {
	sess.Phase = session.PhaseComplete
	sess.Stage = session.StageNone
	sess.Status = session.StatusSuccess
	d.deps.Events.Emit(event.Event{
		Type:      event.WorkflowCompleted,
		SessionID: sess.SessionID,
		Phase:     sess.Phase,
	})
	return Result{Completed: true}, nil
}

func (d *Dispatcher) dispatchCancel(sess *session.Session) (Result, error) {
	sess.Phase = session.PhaseCancelled
	sess.Stage = session.StageNone
	sess.Status = session.StatusCancelled
	d.deps.Events.Emit(event.Event{
		Type:      event.WorkflowCompleted,
		SessionID: sess.SessionID,
		Phase:     sess.Phase,
	})
	return Result{Cancelled: true}, nil
}
