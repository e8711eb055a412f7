// Package main implements the aiworkflow CLI, a minimal driver over
// the orchestrator's five commands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/c360studio/aiworkflow/config"
	"github.com/c360studio/aiworkflow/orchestrator"
	"github.com/c360studio/aiworkflow/session"
	"github.com/c360studio/aiworkflow/transition"
)

// Build information (set via ldflags).
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliResult is the object printed by --json, matching the
// {exit_code, command, ...} shape named for the CLI surface.
type cliResult struct {
	ExitCode int              `json:"exit_code"`
	Command  string           `json:"command"`
	Session  *session.Session `json:"session,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func run() error {
	var (
		configPath string
		jsonOutput bool
	)

	rootCmd := &cobra.Command{
		Use:     "aiworkflow",
		Short:   "AI workflow engine orchestrator CLI",
		Version: fmt.Sprintf("%s (built %s)", Version, BuildTime),
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit a single JSON result object")

	loadApp := func() (*App, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return NewApp(cfg)
	}

	rootCmd.AddCommand(newInitCmd(loadApp, &jsonOutput))
	rootCmd.AddCommand(newApproveCmd(loadApp, &jsonOutput))
	rootCmd.AddCommand(newRejectCmd(loadApp, &jsonOutput))
	rootCmd.AddCommand(newCancelCmd(loadApp, &jsonOutput))
	rootCmd.AddCommand(newStatusCmd(loadApp, &jsonOutput))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return rootCmd.ExecuteContext(ctx)
}

func newInitCmd(loadApp func() (*App, error), jsonOutput *bool) *cobra.Command {
	var (
		profileKey string
		task       string
		sessionID  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize and run a new session from a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}

			promptContext := map[string]any{}
			if task != "" {
				promptContext["task"] = task
			}

			newID, err := app.orchestrator.InitializeRun(cmd.Context(), profileKey, map[session.Role]string{
				session.RolePlanner:   demoProviderKey,
				session.RoleGenerator: demoProviderKey,
				session.RoleReviewer:  demoProviderKey,
				session.RoleReviser:   demoProviderKey,
			}, promptContext, "")
			if err != nil {
				return emit(*jsonOutput, "init", nil, err)
			}
			sessionID = newID

			sess, err := app.orchestrator.Init(cmd.Context(), sessionID)
			return emit(*jsonOutput, "init", sess, err)
		},
	}
	cmd.Flags().StringVar(&profileKey, "profile", demoProfileKey, "Profile key to run")
	cmd.Flags().StringVar(&task, "task", "", "Task description placed in the session context")
	return cmd
}

func newApproveCmd(loadApp func() (*App, error), jsonOutput *bool) *cobra.Command {
	var (
		sessionID string
		complete  bool
		revise    bool
	)

	cmd := &cobra.Command{
		Use:   "approve",
		Short: "Approve the session's current pending state",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}

			override := transition.Command("")
			switch {
			case complete && revise:
				return fmt.Errorf("--complete and --revise are mutually exclusive")
			case complete:
				override = transition.CommandApproveComplete
			case revise:
				override = transition.CommandApproveRevise
			}

			sess, err := app.orchestrator.Approve(cmd.Context(), sessionID, override)
			return emit(*jsonOutput, "approve", sess, err)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID")
	cmd.Flags().BoolVar(&complete, "complete", false, "Force the REVIEW verdict to COMPLETE")
	cmd.Flags().BoolVar(&revise, "revise", false, "Force the REVIEW verdict to REVISE")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newRejectCmd(loadApp func() (*App, error), jsonOutput *bool) *cobra.Command {
	var (
		sessionID string
		feedback  string
	)

	cmd := &cobra.Command{
		Use:   "reject",
		Short: "Reject the session's current pending state",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			sess, err := app.orchestrator.Reject(cmd.Context(), sessionID, feedback)
			return emit(*jsonOutput, "reject", sess, err)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID")
	cmd.Flags().StringVar(&feedback, "feedback", "", "Feedback message recorded on the session")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newCancelCmd(loadApp func() (*App, error), jsonOutput *bool) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel an active session",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			sess, err := app.orchestrator.Cancel(cmd.Context(), sessionID)
			return emit(*jsonOutput, "cancel", sess, err)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func newStatusCmd(loadApp func() (*App, error), jsonOutput *bool) *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print a session's current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			sess, err := app.orchestrator.Status(sessionID)
			return emit(*jsonOutput, "status", sess, err)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

// emit prints sess either as JSON (cliResult) or as a short human-
// readable summary, and returns err unchanged, so the command exits
// with code 1 exactly when err is non-nil.
func emit(jsonOutput bool, command string, sess *session.Session, err error) error {
	result := cliResult{Command: command}
	if err != nil {
		result.ExitCode = 1
		result.Error = err.Error()
	} else {
		result.Session = sess
	}

	if jsonOutput {
		data, marshalErr := json.MarshalIndent(result, "", "  ")
		if marshalErr != nil {
			return marshalErr
		}
		fmt.Println(string(data))
	} else if err == nil {
		fmt.Printf("session=%s phase=%s stage=%s status=%s\n", sess.SessionID, sess.Phase, sess.Stage, sess.Status)
	}

	if err != nil {
		return err
	}
	return nil
}
