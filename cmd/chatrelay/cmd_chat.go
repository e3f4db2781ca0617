package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/elee1766/chatrelay/src/app"
	"github.com/elee1766/chatrelay/src/session"
	"github.com/elee1766/chatrelay/src/theme"
	"github.com/google/uuid"
)

// ChatCmd runs conversation turns from the terminal against an in-process store
type ChatCmd struct {
	ConversationID string `help:"Conversation identifier (random when empty)"`
	Role           string `default:"user" help:"Role of the messages you type"`
	Width          int    `default:"100" help:"Wrap replies at this many columns (0 disables)"`
	ArchiveDB      string `name:"archive-db" type:"path" help:"Archive the conversation to this SQLite file"`
}

// Run executes the chat command
func (c *ChatCmd) Run(ctx context.Context, cli *CLI) error {
	if err := cli.requireAPIKey(); err != nil {
		return err
	}

	cfg, logger, err := setup(cli, "warn")
	if err != nil {
		return err
	}
	if c.ArchiveDB != "" {
		cfg.Archive.Enabled = true
		cfg.Archive.Path = c.ArchiveDB
	}

	a, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()

	id := c.ConversationID
	if id == "" {
		id = uuid.New().String()
	}

	return runChat(ctx, a.Orchestrator, chatParams{
		ConversationID: id,
		Role:           c.Role,
		Width:          c.Width,
		In:             os.Stdin,
		Out:            os.Stdout,
	})
}

type turnHandler interface {
	HandleTurn(ctx context.Context, conversationID, role, content string) (*session.TurnResult, error)
}

type chatParams struct {
	ConversationID string
	Role           string
	Width          int
	In             io.Reader
	Out            io.Writer
}

// runChat reads one message per line until EOF, "/exit" or ctx is done.
// Upstream failures are printed and the loop continues.
func runChat(ctx context.Context, relay turnHandler, p chatParams) error {
	styles := theme.NewStyles()
	fmt.Fprintln(p.Out, styles.Header.Render("chatrelay"))
	fmt.Fprintln(p.Out, styles.Muted.Render(fmt.Sprintf("conversation %s, /exit to quit", p.ConversationID)))

	scanner := bufio.NewScanner(p.In)
	for {
		fmt.Fprint(p.Out, styles.Prompt.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(p.Out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		result, err := relay.HandleTurn(ctx, p.ConversationID, p.Role, line)
		switch {
		case errors.Is(err, session.ErrSessionInactive):
			fmt.Fprintln(p.Out, styles.Error.Render("Chat session ended. Start a new session."))
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			fmt.Fprintln(p.Out, styles.Error.Render("error: "+err.Error()))
			continue
		}

		fmt.Fprintln(p.Out, styles.Assistant.Render(theme.Wrap(result.Response, p.Width)))
	}
}
