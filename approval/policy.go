package approval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/c360studio/aiworkflow/session"
)

// Config is the per-(phase,stage) approval policy, equal in shape to
// spec.md §3's ApprovalConfig.
type Config struct {
	ApproverKey  string `yaml:"approver"`
	MaxRetries   int    `yaml:"max_retries"`
	AllowRewrite bool   `yaml:"allow_rewrite"`
}

// policyEntry is the YAML wire shape: a flat list of (phase, stage,
// policy) rows, since YAML maps don't key naturally on a struct pair.
type policyEntry struct {
	Phase        session.Phase `yaml:"phase"`
	Stage        session.Stage `yaml:"stage"`
	ApproverKey  string        `yaml:"approver"`
	MaxRetries   int           `yaml:"max_retries"`
	AllowRewrite bool          `yaml:"allow_rewrite"`
}

type policyFile struct {
	Approvals []policyEntry `yaml:"approvals"`
}

// Key identifies one (phase, stage) pair within a Policy.
type Key struct {
	Phase session.Phase
	Stage session.Stage
}

// Policy is the resolved, in-memory approval configuration: every
// (phase, stage) pair that has an associated gate.
type Policy struct {
	entries map[Key]Config
}

// NewPolicy returns an empty Policy; For returns ok=false for every key
// until entries are added via Set.
func NewPolicy() *Policy {
	return &Policy{entries: make(map[Key]Config)}
}

// Set installs the policy for (phase, stage).
func (p *Policy) Set(phase session.Phase, stage session.Stage, cfg Config) {
	p.entries[Key{phase, stage}] = cfg
}

// For looks up the policy for (phase, stage). ok is false when the
// pair has no configured gate, meaning the approval step is skipped
// entirely (spec.md §4.7: "when the current stage has an associated
// gate").
func (p *Policy) For(phase session.Phase, stage session.Stage) (Config, bool) {
	cfg, ok := p.entries[Key{phase, stage}]
	return cfg, ok
}

// LoadPolicyFile parses a YAML approval policy file into a Policy.
func LoadPolicyFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read approval policy %q: %w", path, err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses YAML bytes into a Policy.
func ParsePolicy(data []byte) (*Policy, error) {
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse approval policy: %w", err)
	}

	policy := NewPolicy()
	for _, e := range pf.Approvals {
		policy.Set(e.Phase, e.Stage, Config{
			ApproverKey:  e.ApproverKey,
			MaxRetries:   e.MaxRetries,
			AllowRewrite: e.AllowRewrite,
		})
	}
	return policy, nil
}

// DefaultPolicy returns the policy the example fixtures and CLI
// default to: "skip" at every gated (phase, stage), zero retries, no
// rewrite. Callers load a real policy via LoadPolicyFile in
// production.
func DefaultPolicy() *Policy {
	policy := NewPolicy()
	for _, pair := range []Key{
		{session.PhasePlan, session.StageResponse},
		{session.PhaseGenerate, session.StageResponse},
		{session.PhaseReview, session.StageResponse},
		{session.PhaseRevise, session.StageResponse},
	} {
		policy.Set(pair.Phase, pair.Stage, Config{ApproverKey: "skip", MaxRetries: 0, AllowRewrite: false})
	}
	return policy
}
