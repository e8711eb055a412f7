package session

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/c360studio/aiworkflow/pathsafe"
)

const (
	standardsBundleFile = "standards-bundle.md"
	planFile            = "plan.md"
	codeDirName         = "code"
)

// stagePrefix maps a prompt/response phase label to the filename
// prefix used under an iteration directory, per spec.md §4.2. Review
// and generate/revise all use distinct prefixes even though several
// phases share a Stage value.
type stagePrefix string

const (
	prefixPlanning   stagePrefix = "planning"
	prefixGeneration stagePrefix = "generation"
	prefixReview     stagePrefix = "review"
	prefixRevision   stagePrefix = "revision"
)

// Gateway is the on-disk file layout for a single session directory
// tree: session.json plus the per-iteration prompt/response/code files.
// It performs no JSON (de)serialization — that's Store's job — only
// path layout and raw file I/O.
type Gateway struct {
	root string
}

// NewGateway creates a Gateway rooted at sessionsRoot.
func NewGateway(sessionsRoot string) *Gateway {
	return &Gateway{root: sessionsRoot}
}

// SessionDir returns {sessionsRoot}/{sessionId}.
func (g *Gateway) SessionDir(sessionID string) string {
	return filepath.Join(g.root, sessionID)
}

// IterationDir returns {sessionsRoot}/{sessionId}/iteration-{n}.
func (g *Gateway) IterationDir(sessionID string, iteration int) string {
	return filepath.Join(g.SessionDir(sessionID), "iteration-"+strconv.Itoa(iteration))
}

// CreateSessionDir creates the session's root directory.
func (g *Gateway) CreateSessionDir(sessionID string) error {
	dir := g.SessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create session directory %q: %w", dir, err)
	}
	return nil
}

// CreateIterationDir creates iteration-{n} and its code/ subdirectory.
func (g *Gateway) CreateIterationDir(sessionID string, iteration int) error {
	dir := filepath.Join(g.IterationDir(sessionID, iteration), codeDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create iteration directory %q: %w", dir, err)
	}
	return nil
}

// promptResponseName maps a Phase to the prompt/response filename
// prefix used within an iteration directory.
func promptResponseName(phase Phase) (stagePrefix, error) {
	switch phase {
	case PhasePlan:
		return prefixPlanning, nil
	case PhaseGenerate:
		return prefixGeneration, nil
	case PhaseReview:
		return prefixReview, nil
	case PhaseRevise:
		return prefixRevision, nil
	default:
		return "", fmt.Errorf("%w: phase %q has no prompt/response files", pathsafe.ErrPathInvalid, phase)
	}
}

// promptPath returns the path to the prompt file for (iteration, phase).
func (g *Gateway) promptPath(sessionID string, iteration int, phase Phase) (string, error) {
	prefix, err := promptResponseName(phase)
	if err != nil {
		return "", err
	}
	return filepath.Join(g.IterationDir(sessionID, iteration), string(prefix)+"-prompt.md"), nil
}

// responsePath returns the path to the response file for (iteration, phase).
func (g *Gateway) responsePath(sessionID string, iteration int, phase Phase) (string, error) {
	prefix, err := promptResponseName(phase)
	if err != nil {
		return "", err
	}
	return filepath.Join(g.IterationDir(sessionID, iteration), string(prefix)+"-response.md"), nil
}

// WritePrompt writes the prompt text for (iteration, phase).
func (g *Gateway) WritePrompt(sessionID string, iteration int, phase Phase, content string) error {
	path, err := g.promptPath(sessionID, iteration, phase)
	if err != nil {
		return err
	}
	return writeTextFile(path, content)
}

// ReadPrompt reads the prompt text for (iteration, phase).
func (g *Gateway) ReadPrompt(sessionID string, iteration int, phase Phase) (string, error) {
	path, err := g.promptPath(sessionID, iteration, phase)
	if err != nil {
		return "", err
	}
	return readTextFile(path)
}

// WriteResponse writes the response text for (iteration, phase).
func (g *Gateway) WriteResponse(sessionID string, iteration int, phase Phase, content string) error {
	path, err := g.responsePath(sessionID, iteration, phase)
	if err != nil {
		return err
	}
	return writeTextFile(path, content)
}

// ReadResponse reads the response text for (iteration, phase).
func (g *Gateway) ReadResponse(sessionID string, iteration int, phase Phase) (string, error) {
	path, err := g.responsePath(sessionID, iteration, phase)
	if err != nil {
		return "", err
	}
	return readTextFile(path)
}

// WriteStandardsBundle writes the materialized standards bundle at the
// session root.
func (g *Gateway) WriteStandardsBundle(sessionID, content string) error {
	return writeTextFile(filepath.Join(g.SessionDir(sessionID), standardsBundleFile), content)
}

// ReadStandardsBundle reads the materialized standards bundle.
func (g *Gateway) ReadStandardsBundle(sessionID string) (string, error) {
	return readTextFile(filepath.Join(g.SessionDir(sessionID), standardsBundleFile))
}

// WritePlan writes plan.md at the session root.
func (g *Gateway) WritePlan(sessionID, content string) error {
	return writeTextFile(filepath.Join(g.SessionDir(sessionID), planFile), content)
}

// ReadPlan reads plan.md at the session root.
func (g *Gateway) ReadPlan(sessionID string) (string, error) {
	return readTextFile(filepath.Join(g.SessionDir(sessionID), planFile))
}

// CodeFilePath validates relPath and returns the resolved absolute path
// under iteration-{n}/code/, rejecting anything that would escape the
// code directory.
func (g *Gateway) CodeFilePath(sessionID string, iteration int, relPath string) (string, error) {
	cleaned, err := pathsafe.ValidateArtifactPath(relPath)
	if err != nil {
		return "", err
	}
	codeDir := filepath.Join(g.IterationDir(sessionID, iteration), codeDirName)
	return pathsafe.ValidateWithinRoot(cleaned, codeDir)
}

// WriteCodeFile validates relPath via pathsafe and writes content under
// iteration-{n}/code/<relPath>, creating parent directories as needed.
func (g *Gateway) WriteCodeFile(sessionID string, iteration int, relPath, content string) (string, error) {
	abs, err := g.CodeFilePath(sessionID, iteration, relPath)
	if err != nil {
		return "", err
	}
	if err := writeTextFile(abs, content); err != nil {
		return "", err
	}
	return abs, nil
}

// ReadCodeFiles walks iteration-{n}/code and returns a map of
// slash-separated relative path to file content.
func (g *Gateway) ReadCodeFiles(sessionID string, iteration int) (map[string]string, error) {
	codeDir := filepath.Join(g.IterationDir(sessionID, iteration), codeDirName)
	result := make(map[string]string)

	err := filepath.WalkDir(codeDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == codeDir {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(codeDir, path)
		if relErr != nil {
			return relErr
		}
		content, readErr := readTextFile(path)
		if readErr != nil {
			return readErr
		}
		result[filepath.ToSlash(rel)] = content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read code files for session %q iteration %d: %w", sessionID, iteration, err)
	}

	return result, nil
}

// SortedCodeFilePaths returns the keys of a ReadCodeFiles result in
// deterministic lexical order, for callers that need stable iteration.
func SortedCodeFilePaths(files map[string]string) []string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func writeTextFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent directory for %q: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write file %q: %w", path, err)
	}
	return nil
}

func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file %q: %w", path, err)
	}
	return string(data), nil
}
