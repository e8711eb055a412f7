package awetest

import (
	"sync"

	"github.com/c360studio/aiworkflow/approval"
)

// ScriptedApprover is a thread-safe approval.Approver fake that returns
// configured results in sequence, repeating the final entry once
// exhausted, and records every call it receives for assertions.
type ScriptedApprover struct {
	mu      sync.Mutex
	results []approval.Result
	index   int
	calls   []ApproverCall
}

// ApproverCall captures one Evaluate invocation.
type ApproverCall struct {
	Phase       string
	Stage       string
	Files       map[string]string
	EvalContext map[string]any
}

// NewScriptedApprover returns a ScriptedApprover that answers with
// results in order.
func NewScriptedApprover(results ...approval.Result) *ScriptedApprover {
	return &ScriptedApprover{results: results}
}

// Evaluate implements approval.Approver.
func (s *ScriptedApprover) Evaluate(phase, stage string, files map[string]string, evalContext map[string]any) (approval.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, ApproverCall{Phase: phase, Stage: stage, Files: files, EvalContext: evalContext})

	if len(s.results) == 0 {
		return approval.Result{Decision: approval.Approved}, nil
	}
	if s.index >= len(s.results) {
		return s.results[len(s.results)-1], nil
	}
	r := s.results[s.index]
	s.index++
	return r, nil
}

// Calls returns every Evaluate call recorded so far.
func (s *ScriptedApprover) Calls() []ApproverCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ApproverCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times Evaluate has been invoked.
func (s *ScriptedApprover) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
