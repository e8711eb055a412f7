package provider

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/aiworkflow/pathsafe"
)

// LocalFileStandardsConfig configures a LocalFileStandardsProvider.
type LocalFileStandardsConfig struct {
	Name string
	// Root is the directory materials are read from.
	Root string
	// IncludePatterns restricts which files under Root are bundled, as
	// doublestar globs relative to Root. Empty matches every file.
	IncludePatterns []string
	ResponseTimeout time.Duration
}

// LocalFileStandardsProvider materializes a session's standards bundle
// by concatenating files under a local directory, in sorted path
// order, each preceded by a heading naming its relative path.
type LocalFileStandardsProvider struct {
	cfg LocalFileStandardsConfig
}

// NewLocalFileStandardsProvider constructs a LocalFileStandardsProvider
// from cfg.
func NewLocalFileStandardsProvider(cfg LocalFileStandardsConfig) *LocalFileStandardsProvider {
	return &LocalFileStandardsProvider{cfg: cfg}
}

// Metadata implements StandardsProvider.
func (p *LocalFileStandardsProvider) Metadata() Metadata {
	respTimeout := p.cfg.ResponseTimeout
	return Metadata{Name: p.cfg.Name, ResponseTimeout: &respTimeout, FSAbility: FSLocalRead}
}

// Validate implements StandardsProvider.
func (p *LocalFileStandardsProvider) Validate() error {
	if p.cfg.Root == "" {
		return fmt.Errorf("local standards provider %q: root is required", p.cfg.Name)
	}
	info, err := os.Stat(p.cfg.Root)
	if err != nil {
		return fmt.Errorf("local standards provider %q: %w", p.cfg.Name, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("local standards provider %q: root %q is not a directory", p.cfg.Name, p.cfg.Root)
	}
	return nil
}

// CreateBundle implements StandardsProvider by walking Root and
// concatenating every file matching IncludePatterns, in sorted
// relative-path order, into one bundle document. promptContext is
// unused: the bundle depends only on what's on disk under Root.
func (p *LocalFileStandardsProvider) CreateBundle(ctx context.Context, _ map[string]any) (string, error) {
	var relPaths []string
	err := filepath.WalkDir(p.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		rel, err := filepath.Rel(p.cfg.Root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if !pathsafe.MatchesAnyPattern(rel, p.cfg.IncludePatterns) {
			return nil
		}
		relPaths = append(relPaths, rel)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("walk standards root %q: %w", p.cfg.Root, err)
	}

	sort.Strings(relPaths)

	var sb strings.Builder
	for _, rel := range relPaths {
		content, err := os.ReadFile(filepath.Join(p.cfg.Root, rel))
		if err != nil {
			return "", fmt.Errorf("read standards file %q: %w", rel, err)
		}
		fmt.Fprintf(&sb, "# %s\n\n", rel)
		sb.Write(content)
		sb.WriteString("\n\n")
	}

	return sb.String(), nil
}
