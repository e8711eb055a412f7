// Package transition implements the orchestrator's state machine as a
// pure, total function over a finite key space: every reachable
// (phase, stage, command) triple is enumerated in table; apart from
// the wildcard cancel row, nothing outside the table is valid.
package transition

import (
	"errors"
	"fmt"

	"github.com/c360studio/aiworkflow/session"
)

// Command is a caller-issued verb accepted by the orchestrator.
type Command string

const (
	CommandInit            Command = "init"
	CommandApprove         Command = "approve"
	CommandApproveComplete Command = "approve_complete"
	CommandApproveRevise   Command = "approve_revise"
	CommandReject          Command = "reject"
	CommandCancel          Command = "cancel"
)

// Action is what the dispatcher must execute after a transition is
// looked up.
type Action string

const (
	ActionCreatePrompt Action = "CREATE_PROMPT"
	ActionCallAI       Action = "CALL_AI"
	ActionCheckVerdict Action = "CHECK_VERDICT"
	ActionFinalize     Action = "FINALIZE"
	ActionHalt         Action = "HALT"
	ActionCancel       Action = "CANCEL"
)

// ErrInvalidCommand is returned by Lookup when (phase, stage, command)
// has no entry in the table.
var ErrInvalidCommand = errors.New("invalid command for current state")

// Key identifies one row of the transition table.
type Key struct {
	Phase   session.Phase
	Stage   session.Stage
	Command Command
}

// Entry is the result of a successful lookup: the next (phase, stage)
// and the action the dispatcher must perform to realize it.
type Entry struct {
	NextPhase session.Phase
	NextStage session.Stage
	Action    Action
}

// wildcardCancelEntry is matched by Lookup for any active (non-terminal)
// phase when the command is "cancel" and no more specific entry
// exists in table, per spec.md §4.4 ("any active (phase,stage) |
// cancel | CANCELLED").
var wildcardCancelEntry = Entry{
	NextPhase: session.PhaseCancelled,
	Action:    ActionCancel,
}

// table transcribes spec.md §4.4 exactly. Do not add entries here
// without a corresponding row in that table.
var table = map[Key]Entry{
	{session.PhaseInit, session.StageNone, CommandInit}: {
		NextPhase: session.PhasePlan, NextStage: session.StagePrompt, Action: ActionCreatePrompt,
	},
	{session.PhaseInit, session.StageNone, CommandCancel}: {
		NextPhase: session.PhaseCancelled, Action: ActionCancel,
	},

	{session.PhasePlan, session.StagePrompt, CommandApprove}: {
		NextPhase: session.PhasePlan, NextStage: session.StageResponse, Action: ActionCallAI,
	},
	{session.PhasePlan, session.StageResponse, CommandApprove}: {
		NextPhase: session.PhaseGenerate, NextStage: session.StagePrompt, Action: ActionCreatePrompt,
	},
	{session.PhasePlan, session.StageResponse, CommandReject}: {
		NextPhase: session.PhasePlan, NextStage: session.StageResponse, Action: ActionHalt,
	},

	{session.PhaseGenerate, session.StagePrompt, CommandApprove}: {
		NextPhase: session.PhaseGenerate, NextStage: session.StageResponse, Action: ActionCallAI,
	},
	{session.PhaseGenerate, session.StageResponse, CommandApprove}: {
		NextPhase: session.PhaseReview, NextStage: session.StagePrompt, Action: ActionCreatePrompt,
	},
	{session.PhaseGenerate, session.StageResponse, CommandReject}: {
		NextPhase: session.PhaseGenerate, NextStage: session.StageResponse, Action: ActionHalt,
	},

	{session.PhaseReview, session.StagePrompt, CommandApprove}: {
		NextPhase: session.PhaseReview, NextStage: session.StageResponse, Action: ActionCallAI,
	},
	{session.PhaseReview, session.StageResponse, CommandApprove}: {
		NextPhase: session.PhaseReview, NextStage: session.StageResponse, Action: ActionCheckVerdict,
	},
	{session.PhaseReview, session.StageResponse, CommandApproveComplete}: {
		NextPhase: session.PhaseComplete, Action: ActionFinalize,
	},
	{session.PhaseReview, session.StageResponse, CommandApproveRevise}: {
		NextPhase: session.PhaseRevise, NextStage: session.StagePrompt, Action: ActionCreatePrompt,
	},
	{session.PhaseReview, session.StageResponse, CommandReject}: {
		NextPhase: session.PhaseReview, NextStage: session.StageResponse, Action: ActionHalt,
	},

	{session.PhaseRevise, session.StagePrompt, CommandApprove}: {
		NextPhase: session.PhaseRevise, NextStage: session.StageResponse, Action: ActionCallAI,
	},
	{session.PhaseRevise, session.StageResponse, CommandApprove}: {
		NextPhase: session.PhaseReview, NextStage: session.StagePrompt, Action: ActionCreatePrompt,
	},
	{session.PhaseRevise, session.StageResponse, CommandReject}: {
		NextPhase: session.PhaseRevise, NextStage: session.StageResponse, Action: ActionHalt,
	},
}

// activePhases are the non-terminal phases eligible for the wildcard
// cancel entry.
var activePhases = map[session.Phase]bool{
	session.PhaseInit:     true,
	session.PhasePlan:     true,
	session.PhaseGenerate: true,
	session.PhaseReview:   true,
	session.PhaseRevise:   true,
}

// Lookup returns the transition table entry for (phase, stage,
// command). A "cancel" command on any active phase/stage matches the
// wildcard cancel row even when no exact entry exists. Terminal
// phases (COMPLETE, CANCELLED, ERROR) admit no commands and always
// return ErrInvalidCommand.
func Lookup(phase session.Phase, stage session.Stage, cmd Command) (Entry, error) {
	if e, ok := table[Key{phase, stage, cmd}]; ok {
		return e, nil
	}
	if cmd == CommandCancel && activePhases[phase] {
		return wildcardCancelEntry, nil
	}
	return Entry{}, fmt.Errorf("%w: phase=%s stage=%s command=%s", ErrInvalidCommand, phase, stage, cmd)
}
