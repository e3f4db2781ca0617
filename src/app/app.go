// Package app wires the relay services together.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/elee1766/chatrelay/src/aisdk"
	"github.com/elee1766/chatrelay/src/archive"
	"github.com/elee1766/chatrelay/src/config"
	"github.com/elee1766/chatrelay/src/groqclient"
	"github.com/elee1766/chatrelay/src/server"
	"github.com/elee1766/chatrelay/src/session"
)

// App represents the main application with all services
type App struct {
	Config       *config.Config
	Client       *groqclient.Client
	Store        *session.Store
	Orchestrator *session.Orchestrator
	Archive      *archive.Archive
	Logger       *slog.Logger
}

// Options holds what New needs beyond the configuration
type Options struct {
	Logger *slog.Logger
	// Client replaces the Groq client, mostly for tests.
	Client aisdk.ModelClient
}

// New creates a new App instance with all services initialized. The
// upstream API key must be set on cfg.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	if cfg.Upstream.APIKey == "" && opts.Client == nil {
		return nil, groqclient.ErrNoAPIKey
	}

	groq := groqclient.NewClient(groqclient.Config{
		APIKey:     cfg.Upstream.APIKey,
		BaseURL:    cfg.Upstream.BaseURL,
		Logger:     logger,
		Timeout:    cfg.Upstream.Timeout.Std(),
		RetryCount: cfg.Upstream.RetryCount,
		RetryDelay: cfg.Upstream.RetryDelay.Std(),
	})
	var client aisdk.ModelClient = groq
	if opts.Client != nil {
		client = opts.Client
	}

	a := &App{
		Config: cfg,
		Client: groq,
		Logger: logger,
	}

	var recorder session.TurnRecorder
	if cfg.Archive.Enabled {
		db, err := archive.Open(ctx, cfg.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open archive: %w", err)
		}
		a.Archive = archive.New(db, logger)
		recorder = a.Archive
		logger.Info("archiving transcripts", "path", cfg.Archive.Path)
	}

	a.Store = session.NewStore(session.StoreConfig{
		SystemPrompt: cfg.Chat.SystemPrompt,
		IdleTTL:      cfg.Sessions.IdleTTL.Std(),
		Logger:       logger,
	})
	a.Orchestrator = session.NewOrchestrator(session.OrchestratorConfig{
		Client:   client,
		Store:    a.Store,
		Chat:     ChatSettings(cfg.Chat),
		Ask:      session.AskSettings{Model: cfg.Ask.Model, SystemPrompt: cfg.Ask.SystemPrompt},
		Timeout:  cfg.Upstream.Timeout.Std(),
		Recorder: recorder,
		Logger:   logger,
	})

	return a, nil
}

// ChatSettings converts the chat configuration into orchestrator settings.
func ChatSettings(c config.ChatConfig) session.ChatSettings {
	temperature, maxTokens, topP := c.Temperature, c.MaxTokens, c.TopP
	return session.ChatSettings{
		Model: c.Model,
		Params: aisdk.GenerationParams{
			Temperature: &temperature,
			MaxTokens:   &maxTokens,
			TopP:        &topP,
			Stream:      c.Stream,
		},
	}
}

// Server builds the HTTP server over the app's services.
func (a *App) Server() *server.Server {
	return server.New(server.Config{
		Addr:            a.Config.Server.Addr,
		ShutdownTimeout: a.Config.Server.ShutdownTimeout.Std(),
		CORSOrigins:     a.Config.Server.CORSOrigins,
		ChatModel:       a.Config.Chat.Model,
		AskModel:        a.Config.Ask.Model,
		Logger:          a.Logger,
	}, a.Orchestrator, a.Store)
}

// Serve runs the HTTP server and the idle conversation sweeper until ctx is
// done.
func (a *App) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sweeper := make(chan error, 1)
	go func() {
		sweeper <- a.Store.Run(ctx, a.Config.Sessions.SweepInterval.Std())
	}()

	err := a.Server().Run(ctx)
	cancel()
	if sweepErr := <-sweeper; err == nil {
		err = sweepErr
	}
	return err
}

// VerifyModels checks that the configured models exist upstream.
func (a *App) VerifyModels(ctx context.Context) error {
	return a.Client.VerifyModels(ctx, a.Config.Chat.Model, a.Config.Ask.Model)
}

// Close closes all resources held by the app
func (a *App) Close() error {
	if a.Archive != nil {
		return a.Archive.Close()
	}
	return nil
}
