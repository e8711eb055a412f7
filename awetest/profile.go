package awetest

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/c360studio/aiworkflow/profile"
)

// fencedBlockPattern matches a ```path\ncontent``` block: a fenced
// code block whose info string names the file the content should be
// written to, one block per file.
var fencedBlockPattern = regexp.MustCompile("(?s)```([^\\s`]+)\\n(.*?)```")

// FencedProfile is a minimal profile.Profile whose prompts are fixed
// templates (the planning prompt embeds the context's "task" value,
// the review prompt the pass keyword) and whose generation/revision
// responses are parsed with a
// tiny convention: one fenced code block per file, the block's info
// string giving the relative path. It exists to drive the engine
// end-to-end without a real profile plugin.
type FencedProfile struct {
	Name                 string
	Schema               profile.ContextSchema
	StandardsProviderKey string
	PassReviewKeyword    string
}

// NewFencedProfile returns a FencedProfile with sensible defaults: no
// required context fields, "PASS" as the review pass keyword.
func NewFencedProfile(name, standardsProviderKey string) *FencedProfile {
	return &FencedProfile{
		Name:                 name,
		StandardsProviderKey: standardsProviderKey,
		PassReviewKeyword:    "PASS",
	}
}

// Metadata implements profile.Profile.
func (p *FencedProfile) Metadata() profile.Metadata {
	return profile.Metadata{Name: p.Name, ContextSchema: p.Schema, CanRegeneratePrompts: true}
}

// ValidateContext implements profile.Profile.
func (p *FencedProfile) ValidateContext(context map[string]any) []profile.FieldError {
	var errs []profile.FieldError
	for field, schema := range p.Schema {
		errs = append(errs, profile.ValidateFieldSchema(field, schema, context)...)
	}
	return errs
}

// DefaultStandardsProviderKey implements profile.Profile.
func (p *FencedProfile) DefaultStandardsProviderKey() string {
	return p.StandardsProviderKey
}

// GeneratePlanningPrompt implements profile.Profile.
func (p *FencedProfile) GeneratePlanningPrompt(context map[string]any) (string, error) {
	return fmt.Sprintf("Produce a plan for: %v", context["task"]), nil
}

// GenerateGenerationPrompt implements profile.Profile.
func (p *FencedProfile) GenerateGenerationPrompt(context map[string]any) (string, error) {
	return "Implement the approved plan. Reply with one fenced code block per file, using the file's relative path as the block's info string.", nil
}

// GenerateReviewPrompt implements profile.Profile.
func (p *FencedProfile) GenerateReviewPrompt(context map[string]any) (string, error) {
	return fmt.Sprintf("Review the generated files. Reply starting with %q if they are acceptable, or FAIL followed by feedback otherwise.", p.PassReviewKeyword), nil
}

// GenerateRevisionPrompt implements profile.Profile.
func (p *FencedProfile) GenerateRevisionPrompt(context map[string]any) (string, error) {
	return "Revise the generated files per the review feedback. Reply with one fenced code block per file, using the file's relative path as the block's info string.", nil
}

// ProcessPlanningResponse implements profile.Profile.
func (p *FencedProfile) ProcessPlanningResponse(text string) (profile.PlanningResult, error) {
	if strings.TrimSpace(text) == "" {
		return profile.PlanningResult{Status: profile.StatusError, Messages: []string{"empty planning response"}}, nil
	}
	return profile.PlanningResult{Status: profile.StatusOK}, nil
}

// ProcessGenerationResponse implements profile.Profile.
func (p *FencedProfile) ProcessGenerationResponse(text, _ string, _ int) (profile.GenerationResult, error) {
	return parseFencedWritePlan(text)
}

// ProcessRevisionResponse implements profile.Profile.
func (p *FencedProfile) ProcessRevisionResponse(text, _ string, _ int) (profile.GenerationResult, error) {
	return parseFencedWritePlan(text)
}

// ProcessReviewResponse implements profile.Profile.
func (p *FencedProfile) ProcessReviewResponse(text string) (profile.ReviewResult, error) {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, p.PassReviewKeyword) {
		return profile.ReviewResult{Status: profile.StatusOK, Approved: true, Verdict: profile.VerdictPass}, nil
	}
	return profile.ReviewResult{Status: profile.StatusOK, Approved: false, Verdict: profile.VerdictFail, Metadata: map[string]any{"feedback": trimmed}}, nil
}

// RegeneratePrompt implements profile.Profile.
func (p *FencedProfile) RegeneratePrompt(phase, feedback string, context map[string]any) (string, error) {
	return fmt.Sprintf("Revise the %s output to address: %s", phase, feedback), nil
}

func parseFencedWritePlan(text string) (profile.GenerationResult, error) {
	matches := fencedBlockPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return profile.GenerationResult{Status: profile.StatusError}, nil
	}

	entries := make([]profile.WriteEntry, 0, len(matches))
	for _, m := range matches {
		path := strings.TrimSpace(m[1])
		content := m[2]
		entries = append(entries, profile.WriteEntry{Path: path, Content: content})
	}
	return profile.GenerationResult{Status: profile.StatusOK, WritePlan: entries}, nil
}
