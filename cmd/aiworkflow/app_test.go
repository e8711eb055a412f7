package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/c360studio/aiworkflow/config"
	"github.com/c360studio/aiworkflow/session"
)

func TestNewAppWiresOrchestrator(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Sessions.Root = filepath.Join(tmpDir, "sessions")
	cfg.Sessions.StandardsDir = filepath.Join(tmpDir, "standards")
	require.NoError(t, os.MkdirAll(cfg.Sessions.StandardsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Sessions.StandardsDir, "style.md"), []byte("use tabs"), 0o644))

	app, err := NewApp(cfg)
	require.NoError(t, err)
	require.NotNil(t, app.orchestrator)
}

func TestAppInitializeRunMaterializesStandardsBundle(t *testing.T) {
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Sessions.Root = filepath.Join(tmpDir, "sessions")
	cfg.Sessions.StandardsDir = filepath.Join(tmpDir, "standards")
	require.NoError(t, os.MkdirAll(cfg.Sessions.StandardsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Sessions.StandardsDir, "style.md"), []byte("use tabs"), 0o644))

	app, err := NewApp(cfg)
	require.NoError(t, err)

	sessionID, err := app.orchestrator.InitializeRun(context.Background(), demoProfileKey, map[session.Role]string{
		session.RolePlanner:   demoProviderKey,
		session.RoleGenerator: demoProviderKey,
		session.RoleReviewer:  demoProviderKey,
		session.RoleReviser:   demoProviderKey,
	}, map[string]any{"task": "add a feature"}, "")
	require.NoError(t, err)
	require.NotEmpty(t, sessionID)

	gateway := session.NewGateway(cfg.Sessions.Root)
	bundle, err := gateway.ReadStandardsBundle(sessionID)
	require.NoError(t, err)
	require.Contains(t, bundle, "use tabs")
}
