// Package artifact hashes approved responses, extracts code files from
// profile write-plans, records Artifact entries on the session, and
// copies the approved plan to the session root (spec.md §4.5).
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/c360studio/aiworkflow/pathsafe"
	"github.com/c360studio/aiworkflow/profile"
	"github.com/c360studio/aiworkflow/session"
)

// DefaultMaxConcurrentWrites bounds the fan-out of code-file writes
// for a single write-plan when the caller doesn't override it.
const DefaultMaxConcurrentWrites = 4

// ErrPlanSourceMissing is returned by CopyPlanToSession when the
// approved planning response file is absent.
var ErrPlanSourceMissing = errors.New("plan source file missing")

// phaseStage is the dispatch key for handlePreTransitionApproval,
// mirroring the transition table's own key shape.
type phaseStage struct {
	phase session.Phase
	stage session.Stage
}

// gateway is the subset of session.Gateway the artifact service needs.
// Declared as an interface so tests can substitute a fake without
// standing up a real filesystem tree for every case.
type gateway interface {
	ReadResponse(sessionID string, iteration int, phase session.Phase) (string, error)
	WriteCodeFile(sessionID string, iteration int, relPath, content string) (string, error)
	WritePlan(sessionID, content string) error
}

// Service implements the artifact-side effects of approval.
type Service struct {
	gw                  gateway
	maxConcurrentWrites int64
}

// Option configures a Service.
type Option func(*Service)

// WithMaxConcurrentWrites overrides DefaultMaxConcurrentWrites.
func WithMaxConcurrentWrites(n int64) Option {
	return func(s *Service) { s.maxConcurrentWrites = n }
}

// NewService constructs a Service backed by gw.
func NewService(gw gateway, opts ...Option) *Service {
	s := &Service{gw: gw, maxConcurrentWrites: DefaultMaxConcurrentWrites}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// hashContent returns the lowercase-hex sha-256 digest of content,
// matching spec.md §4.5's "sha-256 of the exact bytes written
// (generation/revision) or the exact bytes read from disk
// (plan/review)".
func hashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// HandlePreTransitionApproval dispatches on (session.Phase,
// session.Stage) to the matching handler from spec.md §4.5. prof is
// consulted only by the GENERATE/REVISE handlers, to turn the raw
// response text into a write plan. It is a no-op for any (phase,
// stage) without a handler.
func (s *Service) HandlePreTransitionApproval(ctx context.Context, sess *session.Session, prof profile.Profile) error {
	key := phaseStage{sess.Phase, sess.Stage}

	switch key {
	case phaseStage{session.PhasePlan, session.StageResponse}:
		return s.handlePlanResponse(sess)
	case phaseStage{session.PhaseGenerate, session.StageResponse}:
		return s.handleWritePlanResponse(ctx, sess, prof, false)
	case phaseStage{session.PhaseReview, session.StageResponse}:
		return s.handleReviewResponse(sess)
	case phaseStage{session.PhaseRevise, session.StageResponse}:
		return s.handleWritePlanResponse(ctx, sess, prof, true)
	default:
		return nil
	}
}

func (s *Service) handlePlanResponse(sess *session.Session) error {
	content, err := s.gw.ReadResponse(sess.SessionID, sess.CurrentIteration, session.PhasePlan)
	if err != nil {
		return fmt.Errorf("read planning response for hashing: %w", err)
	}
	sess.Plan.Hash = hashContent(content)
	sess.Plan.Approved = true
	return nil
}

func (s *Service) handleReviewResponse(sess *session.Session) error {
	content, err := s.gw.ReadResponse(sess.SessionID, sess.CurrentIteration, session.PhaseReview)
	if err != nil {
		return fmt.Errorf("read review response for hashing: %w", err)
	}
	sess.Review.Hash = hashContent(content)
	sess.Review.Approved = true
	return nil
}

// handleWritePlanResponse asks prof to turn the generation or revision
// response into a write plan, then materializes each entry under
// iteration-{n}/code/<relPath>, fanned out over a bounded semaphore.
// Artifacts are appended in deterministic path order regardless of
// write completion order (spec.md §4.5 / P3).
func (s *Service) handleWritePlanResponse(ctx context.Context, sess *session.Session, prof profile.Profile, isRevision bool) error {
	sourcePhase := session.PhaseGenerate
	if isRevision {
		sourcePhase = session.PhaseRevise
	}

	content, err := s.gw.ReadResponse(sess.SessionID, sess.CurrentIteration, sourcePhase)
	if err != nil {
		return fmt.Errorf("read %s response: %w", sourcePhase, err)
	}

	var result profile.GenerationResult
	if isRevision {
		result, err = prof.ProcessRevisionResponse(content, sess.SessionID, sess.CurrentIteration)
	} else {
		result, err = prof.ProcessGenerationResponse(content, sess.SessionID, sess.CurrentIteration)
	}
	if err != nil {
		return fmt.Errorf("process %s response: %w", sourcePhase, err)
	}
	if len(result.WritePlan) == 0 {
		return nil
	}

	sem := semaphore.NewWeighted(s.maxConcurrentWrites)
	type writeOutcome struct {
		path string
		hash string
	}
	outcomes := make([]writeOutcome, len(result.WritePlan))
	errs := make(chan error, len(result.WritePlan))

	for i, entry := range result.WritePlan {
		i, entry := i, entry
		if err := sem.Acquire(ctx, 1); err != nil {
			return fmt.Errorf("acquire write semaphore: %w", err)
		}
		go func() {
			defer sem.Release(1)
			cleaned, err := pathsafe.ValidateArtifactPath(entry.Path)
			if err != nil {
				errs <- err
				return
			}
			if _, err := s.gw.WriteCodeFile(sess.SessionID, sess.CurrentIteration, cleaned, entry.Content); err != nil {
				errs <- err
				return
			}
			outcomes[i] = writeOutcome{path: cleaned, hash: hashContent(entry.Content)}
			errs <- nil
		}()
	}

	if err := sem.Acquire(ctx, s.maxConcurrentWrites); err != nil {
		return fmt.Errorf("wait for in-flight writes: %w", err)
	}
	sem.Release(s.maxConcurrentWrites)
	close(errs)

	for err := range errs {
		if err != nil {
			return fmt.Errorf("write code file: %w", err)
		}
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].path < outcomes[j].path })

	now := time.Now().UTC()
	for _, out := range outcomes {
		sess.Artifacts = append(sess.Artifacts, session.Artifact{
			RelativePath: fmt.Sprintf("iteration-%d/code/%s", sess.CurrentIteration, out.path),
			Phase:        sess.Phase,
			Iteration:    sess.CurrentIteration,
			SHA256:       out.hash,
			RecordedAt:   now,
		})
	}

	return nil
}

// CopyPlanToSession copies the approved planning response to plan.md
// at the session root, performed when entering GENERATE after PLAN
// approval (spec.md §4.5).
func (s *Service) CopyPlanToSession(sess *session.Session) error {
	content, err := s.gw.ReadResponse(sess.SessionID, sess.CurrentIteration, session.PhasePlan)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPlanSourceMissing, err)
	}
	if err := s.gw.WritePlan(sess.SessionID, content); err != nil {
		return fmt.Errorf("write plan.md: %w", err)
	}
	return nil
}
