package main

import (
	"context"
	"fmt"

	"github.com/elee1766/chatrelay/src/app"
)

// ServeCmd runs the HTTP relay
type ServeCmd struct {
	Addr         string `help:"Listen address (host:port)"`
	VerifyModels bool   `help:"Check the configured models exist before serving"`
	ArchiveDB    string `name:"archive-db" type:"path" help:"Archive transcripts to this SQLite file"`
}

// Run executes the serve command
func (s *ServeCmd) Run(ctx context.Context, cli *CLI) error {
	if err := cli.requireAPIKey(); err != nil {
		return err
	}

	cfg, logger, err := setup(cli, "info")
	if err != nil {
		return err
	}
	if s.Addr != "" {
		cfg.Server.Addr = s.Addr
	}
	if s.ArchiveDB != "" {
		cfg.Archive.Enabled = true
		cfg.Archive.Path = s.ArchiveDB
	}

	a, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()

	if s.VerifyModels {
		if err := a.VerifyModels(ctx); err != nil {
			return fmt.Errorf("model verification failed: %w", err)
		}
		logger.Info("models verified", "chat_model", cfg.Chat.Model, "ask_model", cfg.Ask.Model)
	}

	logger.Info("starting relay",
		"addr", cfg.Server.Addr,
		"chat_model", cfg.Chat.Model,
		"ask_model", cfg.Ask.Model,
		"idle_ttl", cfg.Sessions.IdleTTL.Std())
	return a.Serve(ctx)
}
