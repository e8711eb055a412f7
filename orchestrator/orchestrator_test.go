package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/aiworkflow/approval"
	"github.com/c360studio/aiworkflow/artifact"
	"github.com/c360studio/aiworkflow/dispatch"
	"github.com/c360studio/aiworkflow/event"
	"github.com/c360studio/aiworkflow/profile"
	"github.com/c360studio/aiworkflow/provider"
	"github.com/c360studio/aiworkflow/session"
	"github.com/c360studio/aiworkflow/transition"
)

type fakeProfile struct{}

func (fakeProfile) Metadata() profile.Metadata {
	return profile.Metadata{Name: "demo"}
}
func (fakeProfile) ValidateContext(ctx map[string]any) []profile.FieldError {
	if ctx["task"] == nil {
		return []profile.FieldError{{Field: "task", Message: "required field is missing"}}
	}
	return nil
}
func (fakeProfile) DefaultStandardsProviderKey() string { return "fake-standards" }
func (fakeProfile) GeneratePlanningPrompt(map[string]any) (string, error) {
	return "plan this", nil
}
func (fakeProfile) GenerateGenerationPrompt(map[string]any) (string, error) {
	return "generate this", nil
}
func (fakeProfile) GenerateReviewPrompt(map[string]any) (string, error) { return "review this", nil }
func (fakeProfile) GenerateRevisionPrompt(map[string]any) (string, error) {
	return "revise this", nil
}
func (fakeProfile) ProcessPlanningResponse(text string) (profile.PlanningResult, error) {
	return profile.PlanningResult{Status: profile.StatusOK}, nil
}
func (fakeProfile) ProcessGenerationResponse(text, sessionDir string, iteration int) (profile.GenerationResult, error) {
	return profile.GenerationResult{Status: profile.StatusOK, WritePlan: []profile.WriteEntry{
		{Path: "Widget.java", Content: "class Widget {}"},
	}}, nil
}
func (fakeProfile) ProcessReviewResponse(text string) (profile.ReviewResult, error) {
	verdict := profile.VerdictPass
	if text == "FAIL" {
		verdict = profile.VerdictFail
	}
	return profile.ReviewResult{Status: profile.StatusOK, Verdict: verdict, Approved: verdict == profile.VerdictPass}, nil
}
func (fakeProfile) ProcessRevisionResponse(text, sessionDir string, iteration int) (profile.GenerationResult, error) {
	return profile.GenerationResult{Status: profile.StatusOK}, nil
}
func (fakeProfile) RegeneratePrompt(phase, feedback string, context map[string]any) (string, error) {
	return "", profile.ErrNotImplemented
}

type fakeProvider struct{ text string }

func (p *fakeProvider) Metadata() provider.Metadata { return provider.Metadata{Name: "fake"} }
func (p *fakeProvider) Validate() error             { return nil }
func (p *fakeProvider) Generate(ctx context.Context, prompt string, promptContext map[string]any, systemPrompt string) (provider.Result, error) {
	return provider.Result{Text: p.text}, nil
}

// crashingProvider always fails, modeling spec.md scenario S4 (a
// provider raising a connection error during CALL_AI).
type crashingProvider struct{}

func (crashingProvider) Metadata() provider.Metadata { return provider.Metadata{Name: "crashing"} }
func (crashingProvider) Validate() error             { return nil }
func (crashingProvider) Generate(ctx context.Context, prompt string, promptContext map[string]any, systemPrompt string) (provider.Result, error) {
	return provider.Result{}, errors.New("connection refused")
}

type fakeStandardsProvider struct {
	bundle string
	err    error
}

func (s *fakeStandardsProvider) Metadata() provider.Metadata { return provider.Metadata{Name: "fake-standards"} }
func (s *fakeStandardsProvider) Validate() error             { return nil }
func (s *fakeStandardsProvider) CreateBundle(ctx context.Context, promptContext map[string]any) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.bundle, nil
}

type harness struct {
	orch  *Orchestrator
	store *session.Store
	gw    *session.Gateway
}

func newHarness(t *testing.T, reviewText string, policy *approval.Policy) *harness {
	t.Helper()
	root := t.TempDir()
	gw := session.NewGateway(root)
	store := session.NewStore(root)

	profiles := profile.NewRegistry()
	profiles.Register("demo", fakeProfile{})

	providers := provider.NewRegistry()
	providers.Register("fake-planner", &fakeProvider{text: "the plan"})
	providers.Register("fake-generator", &fakeProvider{text: "the generation"})
	providers.Register("fake-reviewer", &fakeProvider{text: reviewText})

	standards := provider.NewStandardsRegistry()
	standards.Register("fake-standards", &fakeStandardsProvider{bundle: "# Standards\n"})

	approvers := approval.NewRegistry()
	if policy == nil {
		policy = approval.DefaultPolicy()
	}
	gate := approval.NewGate(approvers, policy, gw)

	artifacts := artifact.NewService(gw)
	deps := dispatch.Deps{
		Profiles:  profiles,
		Providers: provider.NewExecutionService(providers),
		Artifacts: artifacts,
		Gateway:   gw,
		Gate:      gate,
		Events:    event.New(),
	}

	orch := New(store, gw, profiles, providers, standards, artifacts, dispatch.NewDispatcher(deps), deps.Events)
	return &harness{orch: orch, store: store, gw: gw}
}

func (h *harness) initializeRun(t *testing.T, providers map[session.Role]string) string {
	t.Helper()
	sessionID, err := h.orch.InitializeRun(context.Background(), "demo", providers, map[string]any{"task": "build a widget"}, "")
	require.NoError(t, err)
	return sessionID
}

func defaultProviders() map[session.Role]string {
	return map[session.Role]string{
		session.RolePlanner:   "fake-planner",
		session.RoleGenerator: "fake-generator",
		session.RoleReviewer:  "fake-reviewer",
		session.RoleReviser:   "fake-generator",
	}
}

func TestInitializeRunCreatesInitSession(t *testing.T) {
	h := newHarness(t, "PASS", nil)
	sessionID := h.initializeRun(t, defaultProviders())

	sess, err := h.store.Load(sessionID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseInit, sess.Phase)
	assert.Equal(t, session.StatusInProgress, sess.Status)
	assert.NotEmpty(t, sess.StandardsHash)

	bundle, err := h.gw.ReadStandardsBundle(sessionID)
	require.NoError(t, err)
	assert.Equal(t, "# Standards\n", bundle)
}

func TestInitializeRunInvalidContextReturnsNoSession(t *testing.T) {
	h := newHarness(t, "PASS", nil)
	_, err := h.orch.InitializeRun(context.Background(), "demo", defaultProviders(), map[string]any{}, "")
	var cve *ContextValidationError
	require.ErrorAs(t, err, &cve)
	assert.Len(t, cve.Errors, 1)

	ids, err := h.store.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestInitializeRunUnknownProviderReturnsError(t *testing.T) {
	h := newHarness(t, "PASS", nil)
	providers := defaultProviders()
	providers[session.RolePlanner] = "does-not-exist"

	_, err := h.orch.InitializeRun(context.Background(), "demo", providers, map[string]any{"task": "x"}, "")
	assert.ErrorIs(t, err, provider.ErrProviderNotFound)
}

func TestInitializeRunStandardsFailureRollsBack(t *testing.T) {
	h := newHarness(t, "PASS", nil)
	failingStandards := provider.NewStandardsRegistry()
	failingStandards.Register("fake-standards", &fakeStandardsProvider{err: errors.New("bundle blew up")})
	h.orch.standards = failingStandards

	_, err := h.orch.InitializeRun(context.Background(), "demo", defaultProviders(), map[string]any{"task": "x"}, "")
	require.Error(t, err)

	ids, err := h.store.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFullAutoAdvanceFlowCompletesOnPass(t *testing.T) {
	h := newHarness(t, "PASS", nil)
	sessionID := h.initializeRun(t, defaultProviders())

	sess, err := h.orch.Init(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, session.PhaseComplete, sess.Phase)
	assert.Equal(t, session.StatusSuccess, sess.Status)
	assert.True(t, sess.Plan.Approved)
	assert.True(t, sess.Review.Approved)
	assert.NotEmpty(t, sess.Artifacts)
}

func TestFullAutoAdvanceFlowAdvancesToReviseOnFail(t *testing.T) {
	// A manual gate at REVISE[RESPONSE] stops the otherwise-automatic
	// flow right after CHECK_VERDICT has driven the FAIL branch into a
	// new iteration, without which a persistently failing reviewer and
	// an all-skip policy would cycle REVIEW/REVISE forever (bounded only
	// by the auto-advance step cap — see
	// TestFullAutoAdvanceExhaustsOnPersistentFailure below).
	policy := approval.NewPolicy()
	policy.Set(session.PhasePlan, session.StageResponse, approval.Config{ApproverKey: "skip"})
	policy.Set(session.PhaseGenerate, session.StageResponse, approval.Config{ApproverKey: "skip"})
	policy.Set(session.PhaseReview, session.StageResponse, approval.Config{ApproverKey: "skip"})
	policy.Set(session.PhaseRevise, session.StageResponse, approval.Config{ApproverKey: "manual"})

	h := newHarness(t, "FAIL", policy)
	sessionID := h.initializeRun(t, defaultProviders())

	sess, err := h.orch.Init(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, session.PhaseRevise, sess.Phase)
	assert.Equal(t, session.StageResponse, sess.Stage)
	assert.Equal(t, 2, sess.CurrentIteration)
	assert.True(t, sess.Approval.Pending)
}

func TestFullAutoAdvanceExhaustsOnPersistentFailure(t *testing.T) {
	h := newHarness(t, "FAIL", nil)
	h.orch.maxAutoAdvanceSteps = 8
	sessionID := h.initializeRun(t, defaultProviders())

	_, err := h.orch.Init(context.Background(), sessionID)
	assert.ErrorIs(t, err, ErrTooManyAutoAdvanceSteps)
}

func TestInitPausesOnManualApprover(t *testing.T) {
	policy := approval.NewPolicy()
	policy.Set(session.PhasePlan, session.StageResponse, approval.Config{ApproverKey: "skip"})
	policy.Set(session.PhaseGenerate, session.StageResponse, approval.Config{ApproverKey: "manual"})
	policy.Set(session.PhaseReview, session.StageResponse, approval.Config{ApproverKey: "skip"})
	policy.Set(session.PhaseRevise, session.StageResponse, approval.Config{ApproverKey: "skip"})

	h := newHarness(t, "PASS", policy)
	sessionID := h.initializeRun(t, defaultProviders())

	sess, err := h.orch.Init(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseGenerate, sess.Phase)
	assert.Equal(t, session.StageResponse, sess.Stage)
	assert.True(t, sess.Approval.Pending)

	sess, err = h.orch.Approve(context.Background(), sessionID, "")
	require.NoError(t, err)
	assert.Equal(t, session.PhaseComplete, sess.Phase)
	assert.Equal(t, session.StatusSuccess, sess.Status)
}

func TestRejectAtPausedStateIsNoOp(t *testing.T) {
	policy := approval.NewPolicy()
	policy.Set(session.PhasePlan, session.StageResponse, approval.Config{ApproverKey: "manual"})

	h := newHarness(t, "PASS", policy)
	sessionID := h.initializeRun(t, defaultProviders())

	sess, err := h.orch.Init(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, session.PhasePlan, sess.Phase)
	assert.Equal(t, session.StageResponse, sess.Stage)

	sess, err = h.orch.Reject(context.Background(), sessionID, "needs more detail")
	require.NoError(t, err)
	assert.Equal(t, session.PhasePlan, sess.Phase)
	assert.Equal(t, session.StageResponse, sess.Stage)
	require.NotEmpty(t, sess.Messages)
	assert.Equal(t, "needs more detail", sess.Messages[len(sess.Messages)-1].Text)
}

func TestCancelFromInitPhase(t *testing.T) {
	h := newHarness(t, "PASS", nil)
	sessionID := h.initializeRun(t, defaultProviders())

	sess, err := h.orch.Cancel(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseCancelled, sess.Phase)
	assert.Equal(t, session.StatusCancelled, sess.Status)
}

func TestStatusDoesNotMutateOnDiskState(t *testing.T) {
	h := newHarness(t, "PASS", nil)
	sessionID := h.initializeRun(t, defaultProviders())

	before, err := h.gw.ReadStandardsBundle(sessionID)
	require.NoError(t, err)

	sess, err := h.orch.Status(sessionID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseInit, sess.Phase)

	after, err := h.gw.ReadStandardsBundle(sessionID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// TestProviderCrashDuringCallAISetsErrorStatusAndResumes models spec.md
// scenario S4 and the original's
// test_approve_provider_error_can_retry_after_fix: a provider crash
// during CALL_AI leaves phase/stage exactly where they were
// (GENERATE/RESPONSE — CALL_AI's target state, already committed by the
// preceding "approve" transition before the action ran) and only status
// moves to ERROR. The operator then repoints the role at a working
// provider and calls Approve again to resume.
func TestProviderCrashDuringCallAISetsErrorStatusAndResumes(t *testing.T) {
	h := newHarness(t, "PASS", nil)
	h.orch.providers.Register("fake-generator", crashingProvider{})

	var failed []event.Event
	h.orch.events.Subscribe(event.ObserverFunc(func(e event.Event) {
		if e.Type == event.WorkflowFailed {
			failed = append(failed, e)
		}
	}))

	sessionID := h.initializeRun(t, defaultProviders())
	sess, err := h.orch.Init(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, session.PhaseGenerate, sess.Phase)
	assert.Equal(t, session.StageResponse, sess.Stage)
	assert.Equal(t, session.StatusError, sess.Status)
	assert.Contains(t, sess.LastError, "connection refused")
	require.Len(t, failed, 1)

	// Operator repoints the generator role at a working provider and
	// resumes; approve re-runs CALL_AI itself (no response was ever
	// written by the crashing provider) and advances normally from there.
	h.orch.providers.Register("fake-generator", &fakeProvider{text: "the generation"})

	sess, err = h.orch.Approve(context.Background(), sessionID, "")
	require.NoError(t, err)
	assert.Equal(t, session.PhaseComplete, sess.Phase)
	assert.Equal(t, session.StatusSuccess, sess.Status)
	assert.Empty(t, sess.LastError)
}

func TestApproveOverrideAtReviewDrivesExplicitVerdict(t *testing.T) {
	policy := approval.NewPolicy()
	policy.Set(session.PhasePlan, session.StageResponse, approval.Config{ApproverKey: "skip"})
	policy.Set(session.PhaseGenerate, session.StageResponse, approval.Config{ApproverKey: "skip"})
	policy.Set(session.PhaseReview, session.StageResponse, approval.Config{ApproverKey: "manual"})

	h := newHarness(t, "FAIL", policy)
	sessionID := h.initializeRun(t, defaultProviders())

	sess, err := h.orch.Init(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseReview, sess.Phase)
	assert.Equal(t, session.StageResponse, sess.Stage)
	assert.True(t, sess.Approval.Pending)

	sess, err = h.orch.Approve(context.Background(), sessionID, transition.CommandApproveComplete)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseComplete, sess.Phase)
	assert.Equal(t, session.StatusSuccess, sess.Status)
}
