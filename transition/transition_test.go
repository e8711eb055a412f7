package transition

import (
	"testing"

	"github.com/c360studio/aiworkflow/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLookupTableExactness asserts P2: every key enumerated in
// spec.md §4.4 is present with the exact entry, and nothing else is
// exercised by accident.
func TestLookupTableExactness(t *testing.T) {
	cases := []struct {
		name  string
		phase session.Phase
		stage session.Stage
		cmd   Command
		want  Entry
	}{
		{"init", session.PhaseInit, session.StageNone, CommandInit,
			Entry{session.PhasePlan, session.StagePrompt, ActionCreatePrompt}},
		{"init cancel", session.PhaseInit, session.StageNone, CommandCancel,
			Entry{session.PhaseCancelled, session.StageNone, ActionCancel}},
		{"plan prompt approve", session.PhasePlan, session.StagePrompt, CommandApprove,
			Entry{session.PhasePlan, session.StageResponse, ActionCallAI}},
		{"plan response approve", session.PhasePlan, session.StageResponse, CommandApprove,
			Entry{session.PhaseGenerate, session.StagePrompt, ActionCreatePrompt}},
		{"plan response reject", session.PhasePlan, session.StageResponse, CommandReject,
			Entry{session.PhasePlan, session.StageResponse, ActionHalt}},
		{"generate prompt approve", session.PhaseGenerate, session.StagePrompt, CommandApprove,
			Entry{session.PhaseGenerate, session.StageResponse, ActionCallAI}},
		{"generate response approve", session.PhaseGenerate, session.StageResponse, CommandApprove,
			Entry{session.PhaseReview, session.StagePrompt, ActionCreatePrompt}},
		{"generate response reject", session.PhaseGenerate, session.StageResponse, CommandReject,
			Entry{session.PhaseGenerate, session.StageResponse, ActionHalt}},
		{"review prompt approve", session.PhaseReview, session.StagePrompt, CommandApprove,
			Entry{session.PhaseReview, session.StageResponse, ActionCallAI}},
		{"review response approve", session.PhaseReview, session.StageResponse, CommandApprove,
			Entry{session.PhaseReview, session.StageResponse, ActionCheckVerdict}},
		{"review response approve_complete", session.PhaseReview, session.StageResponse, CommandApproveComplete,
			Entry{session.PhaseComplete, session.StageNone, ActionFinalize}},
		{"review response approve_revise", session.PhaseReview, session.StageResponse, CommandApproveRevise,
			Entry{session.PhaseRevise, session.StagePrompt, ActionCreatePrompt}},
		{"review response reject", session.PhaseReview, session.StageResponse, CommandReject,
			Entry{session.PhaseReview, session.StageResponse, ActionHalt}},
		{"revise prompt approve", session.PhaseRevise, session.StagePrompt, CommandApprove,
			Entry{session.PhaseRevise, session.StageResponse, ActionCallAI}},
		{"revise response approve", session.PhaseRevise, session.StageResponse, CommandApprove,
			Entry{session.PhaseReview, session.StagePrompt, ActionCreatePrompt}},
		{"revise response reject", session.PhaseRevise, session.StageResponse, CommandReject,
			Entry{session.PhaseRevise, session.StageResponse, ActionHalt}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Lookup(tc.phase, tc.stage, tc.cmd)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	assert.Equal(t, len(cases), len(table), "table size should equal the enumerated cases; the wildcard cancel row lives outside the table")
}

// TestLookupWildcardCancel asserts any active phase admits cancel even
// without an explicit table row.
func TestLookupWildcardCancel(t *testing.T) {
	for phase, stage := range map[session.Phase]session.Stage{
		session.PhasePlan:     session.StagePrompt,
		session.PhaseGenerate: session.StageResponse,
		session.PhaseReview:   session.StagePrompt,
		session.PhaseRevise:   session.StageResponse,
	} {
		got, err := Lookup(phase, stage, CommandCancel)
		require.NoError(t, err)
		assert.Equal(t, ActionCancel, got.Action)
		assert.Equal(t, session.PhaseCancelled, got.NextPhase)
	}
}

// TestLookupTerminalPhasesRejectEverything asserts terminal phases
// admit no commands, including cancel.
func TestLookupTerminalPhasesRejectEverything(t *testing.T) {
	for _, phase := range []session.Phase{session.PhaseComplete, session.PhaseCancelled, session.PhaseError} {
		for _, cmd := range []Command{CommandInit, CommandApprove, CommandApproveComplete, CommandApproveRevise, CommandReject, CommandCancel} {
			_, err := Lookup(phase, session.StageNone, cmd)
			assert.ErrorIs(t, err, ErrInvalidCommand, "phase=%s command=%s should be invalid", phase, cmd)
		}
	}
}

// TestLookupMissingCombinationIsInvalid spot-checks a handful of
// phase/stage/command combinations that are not in the table and are
// not the wildcard cancel case.
func TestLookupMissingCombinationIsInvalid(t *testing.T) {
	_, err := Lookup(session.PhasePlan, session.StagePrompt, CommandApproveComplete)
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = Lookup(session.PhaseInit, session.StageNone, CommandApprove)
	assert.ErrorIs(t, err, ErrInvalidCommand)

	_, err = Lookup(session.PhaseGenerate, session.StagePrompt, CommandReject)
	assert.ErrorIs(t, err, ErrInvalidCommand)
}
