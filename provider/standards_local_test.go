package provider

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStandardsFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestLocalFileStandardsProviderValidateRequiresExistingDirectory(t *testing.T) {
	p := NewLocalFileStandardsProvider(LocalFileStandardsConfig{Name: "local"})
	assert.Error(t, p.Validate())

	root := t.TempDir()
	p = NewLocalFileStandardsProvider(LocalFileStandardsConfig{Name: "local", Root: root})
	assert.NoError(t, p.Validate())

	file := filepath.Join(root, "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	p = NewLocalFileStandardsProvider(LocalFileStandardsConfig{Name: "local", Root: file})
	assert.Error(t, p.Validate())
}

func TestLocalFileStandardsProviderCreateBundleConcatenatesInSortedOrder(t *testing.T) {
	root := t.TempDir()
	writeStandardsFile(t, root, "b.md", "second")
	writeStandardsFile(t, root, "a.md", "first")

	p := NewLocalFileStandardsProvider(LocalFileStandardsConfig{Name: "local", Root: root})
	bundle, err := p.CreateBundle(context.Background(), nil)
	require.NoError(t, err)

	firstIdx := indexOf(bundle, "first")
	secondIdx := indexOf(bundle, "second")
	require.GreaterOrEqual(t, firstIdx, 0)
	require.GreaterOrEqual(t, secondIdx, 0)
	assert.Less(t, firstIdx, secondIdx)
	assert.Contains(t, bundle, "# a.md")
	assert.Contains(t, bundle, "# b.md")
}

func TestLocalFileStandardsProviderCreateBundleFiltersByIncludePatterns(t *testing.T) {
	root := t.TempDir()
	writeStandardsFile(t, root, "style.md", "use tabs")
	writeStandardsFile(t, root, "notes.txt", "ignore me")

	p := NewLocalFileStandardsProvider(LocalFileStandardsConfig{
		Name:            "local",
		Root:            root,
		IncludePatterns: []string{"*.md"},
	})
	bundle, err := p.CreateBundle(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, bundle, "use tabs")
	assert.NotContains(t, bundle, "ignore me")
}

func TestLocalFileStandardsProviderCreateBundleMatchesNestedPathsWithDoubleStar(t *testing.T) {
	root := t.TempDir()
	writeStandardsFile(t, root, "go/style.md", "gofmt everything")
	writeStandardsFile(t, root, "README.md", "top level")

	p := NewLocalFileStandardsProvider(LocalFileStandardsConfig{
		Name:            "local",
		Root:            root,
		IncludePatterns: []string{"**/*.md"},
	})
	bundle, err := p.CreateBundle(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, bundle, "gofmt everything")
	assert.Contains(t, bundle, "top level")
}

func TestLocalFileStandardsProviderMetadataDeclaresLocalRead(t *testing.T) {
	p := NewLocalFileStandardsProvider(LocalFileStandardsConfig{Name: "local"})
	assert.Equal(t, FSLocalRead, p.Metadata().FSAbility)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
