package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/elee1766/chatrelay/src/app"
	"github.com/elee1766/chatrelay/src/theme"
)

// AskCmd sends one question without history
type AskCmd struct {
	Question []string `arg:"" help:"The question to ask"`
	Model    string   `short:"m" help:"Override the ask model"`
	Output   string   `short:"o" enum:"text,json" default:"text" help:"Output format (text, json)"`
	Width    int      `default:"100" help:"Wrap answers at this many columns (0 disables)"`
}

// Run executes the ask command
func (c *AskCmd) Run(ctx context.Context, cli *CLI) error {
	if err := cli.requireAPIKey(); err != nil {
		return err
	}

	cfg, logger, err := setup(cli, "warn")
	if err != nil {
		return err
	}
	if c.Model != "" {
		cfg.Ask.Model = c.Model
	}

	a, err := app.New(ctx, cfg, app.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer a.Close()

	question := strings.Join(c.Question, " ")
	answer, err := a.Orchestrator.Ask(ctx, question)
	if err != nil {
		return err
	}

	return printAnswer(os.Stdout, c.Output, c.Width, answer)
}

func printAnswer(w io.Writer, format string, width int, answer string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{"answer": answer})
	}
	_, err := fmt.Fprintln(w, theme.NewStyles().Assistant.Render(theme.Wrap(answer, width)))
	return err
}
