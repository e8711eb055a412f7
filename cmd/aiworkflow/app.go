package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/c360studio/aiworkflow/approval"
	"github.com/c360studio/aiworkflow/artifact"
	"github.com/c360studio/aiworkflow/awetest"
	"github.com/c360studio/aiworkflow/config"
	"github.com/c360studio/aiworkflow/dispatch"
	"github.com/c360studio/aiworkflow/event"
	"github.com/c360studio/aiworkflow/orchestrator"
	"github.com/c360studio/aiworkflow/profile"
	"github.com/c360studio/aiworkflow/provider"
	"github.com/c360studio/aiworkflow/session"
)

// demoProfileKey and demoStandardsKey name the single built-in profile
// and standards provider this CLI registers. Real deployments register
// their own profiles and providers in code; profile/provider discovery
// from a directory tree is out of scope here (see SPEC_FULL.md §6).
const (
	demoProfileKey   = "default"
	demoStandardsKey = "local-standards"
	demoProviderKey  = "default"
)

// App wires every collaborator package into an Orchestrator, following
// the teacher's App-as-composition-root pattern.
type App struct {
	cfg          *config.Config
	orchestrator *orchestrator.Orchestrator
	logger       *slog.Logger
}

// NewApp constructs an App from cfg.
func NewApp(cfg *config.Config) (*App, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	store := session.NewStore(cfg.Sessions.Root)
	gateway := session.NewGateway(cfg.Sessions.Root)

	profiles := profile.NewRegistry()
	profiles.Register(demoProfileKey, awetest.NewFencedProfile(demoProfileKey, demoStandardsKey))

	providerRegistry := provider.NewRegistry()
	providerRegistry.Register(demoProviderKey, provider.NewOllamaProvider(provider.OllamaConfig{
		Name:              demoProviderKey,
		Endpoint:          "http://localhost:11434/v1",
		Model:             "qwen2.5-coder:32b",
		Temperature:       0.2,
		ConnectionTimeout: cfg.Provider.ConnectionTimeout,
		ResponseTimeout:   cfg.Provider.ResponseTimeout,
	}))
	providers := provider.NewExecutionService(providerRegistry)

	standardsRegistry := provider.NewStandardsRegistry()
	standardsRegistry.Register(demoStandardsKey, provider.NewLocalFileStandardsProvider(provider.LocalFileStandardsConfig{
		Name:            demoStandardsKey,
		Root:            cfg.Sessions.StandardsDir,
		ResponseTimeout: cfg.Provider.ResponseTimeout,
	}))

	var policy *approval.Policy
	if cfg.Approval.PolicyPath != "" {
		var err error
		policy, err = approval.LoadPolicyFile(cfg.Approval.PolicyPath)
		if err != nil {
			return nil, err
		}
	} else {
		policy = approval.DefaultPolicy()
	}
	gate := approval.NewGate(approval.NewRegistry(), policy, gateway)

	artifacts := artifact.NewService(gateway)

	events := event.New(event.WithLogger(logger))
	events.Subscribe(event.ObserverFunc(logStderrEvent))

	dispatcher := dispatch.NewDispatcher(dispatch.Deps{
		Profiles:  profiles,
		Providers: providers,
		Artifacts: artifacts,
		Gateway:   gateway,
		Gate:      gate,
		Events:    events,
	})

	orch := orchestrator.New(store, gateway, profiles, providerRegistry, standardsRegistry, artifacts, dispatcher, events)

	return &App{cfg: cfg, orchestrator: orch, logger: logger}, nil
}

// logStderrEvent writes every emitted event to stderr as a single line
// (spec.md §6's CLI event logging format).
func logStderrEvent(e event.Event) {
	fmt.Fprintf(os.Stderr, "[EVENT] %s phase=%s iteration=%d path=%s\n",
		e.Type, e.Phase, e.Iteration, e.ArtifactPath)
}
