package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/elee1766/chatrelay/src/aisdk"
	"github.com/elee1766/chatrelay/src/groqclient"
)

// ModelsCmd manages model operations
type ModelsCmd struct {
	List ModelListCmd `cmd:"" help:"List available models"`
	Info ModelInfoCmd `cmd:"" help:"Get information about a specific model"`
}

// ModelListCmd lists available models
type ModelListCmd struct {
	Format string `help:"Output format (table, json)" enum:"table,json" default:"table"`
}

// Run executes the model list command
func (c *ModelListCmd) Run(ctx context.Context, cli *CLI) error {
	client, err := newModelClient(cli)
	if err != nil {
		return err
	}

	models, err := client.ListModels(ctx)
	if err != nil {
		return fmt.Errorf("failed to list models: %w", err)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })

	if c.Format == "json" {
		return printJSON(os.Stdout, models)
	}
	return printModelsTable(os.Stdout, models)
}

// ModelInfoCmd gets information about a specific model
type ModelInfoCmd struct {
	Model  string `arg:"" help:"Model ID, or part of one"`
	Format string `help:"Output format (table, json)" enum:"table,json" default:"table"`
}

// Run executes the model info command
func (c *ModelInfoCmd) Run(ctx context.Context, cli *CLI) error {
	client, err := newModelClient(cli)
	if err != nil {
		return err
	}

	model, err := client.GetModelByID(ctx, c.Model)
	if errors.Is(err, groqclient.ErrModelNotFound) {
		model, err = client.FindModelByName(ctx, c.Model)
	}
	if err != nil {
		return fmt.Errorf("failed to get model info: %w", err)
	}

	if c.Format == "json" {
		return printJSON(os.Stdout, model)
	}
	return printModelTable(os.Stdout, model)
}

func newModelClient(cli *CLI) (*groqclient.Client, error) {
	if err := cli.requireAPIKey(); err != nil {
		return nil, err
	}
	cfg, logger, err := setup(cli, "warn")
	if err != nil {
		return nil, err
	}
	return groqclient.NewClient(groqclient.Config{
		APIKey:     cfg.Upstream.APIKey,
		BaseURL:    cfg.Upstream.BaseURL,
		Logger:     logger,
		Timeout:    cfg.Upstream.Timeout.Std(),
		RetryCount: cfg.Upstream.RetryCount,
		RetryDelay: cfg.Upstream.RetryDelay.Std(),
	}), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printModelsTable(w io.Writer, models []*aisdk.ModelInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tOWNED BY\tCONTEXT\tACTIVE")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", m.ID, m.OwnedBy, formatContext(m.ContextWindow), m.Active)
	}
	return tw.Flush()
}

func printModelTable(w io.Writer, m *aisdk.ModelInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", m.ID)
	fmt.Fprintf(tw, "Owned by:\t%s\n", m.OwnedBy)
	fmt.Fprintf(tw, "Context window:\t%s\n", formatContext(m.ContextWindow))
	fmt.Fprintf(tw, "Active:\t%t\n", m.Active)
	if m.Created > 0 {
		fmt.Fprintf(tw, "Created:\t%s\n", time.Unix(m.Created, 0).UTC().Format(time.DateOnly))
	}
	return tw.Flush()
}

// formatContext renders a token count as 8K / 128K
func formatContext(tokens int) string {
	switch {
	case tokens <= 0:
		return "-"
	case tokens >= 1024 && tokens%1024 == 0:
		return fmt.Sprintf("%dK", tokens/1024)
	case tokens >= 1000:
		return fmt.Sprintf("%.1fK", float64(tokens)/1000)
	default:
		return fmt.Sprintf("%d", tokens)
	}
}
