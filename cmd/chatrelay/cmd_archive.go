package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/elee1766/chatrelay/src/archive"
	"github.com/elee1766/chatrelay/src/theme"
)

// ArchiveCmd inspects the transcript archive
type ArchiveCmd struct {
	List ArchiveListCmd `cmd:"" help:"List archived conversations"`
	Show ArchiveShowCmd `cmd:"" help:"Print the transcript of a conversation"`
}

// ArchiveListCmd lists archived conversations
type ArchiveListCmd struct {
	ConversationID string `arg:"" optional:"" help:"Only list this conversation id"`
	Limit          int    `default:"50" help:"Maximum conversations to list (0 for all)"`
	Format         string `help:"Output format (table, json)" enum:"table,json" default:"table"`
	DB             string `name:"db" type:"path" help:"Archive database (defaults to the configured path)"`
}

// Run executes the archive list command
func (c *ArchiveListCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := openArchive(ctx, cli, c.DB)
	if err != nil {
		return err
	}
	defer a.Close()

	conversations, err := a.ListConversations(ctx, c.ConversationID, c.Limit)
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	if c.Format == "json" {
		return printJSON(os.Stdout, conversations)
	}
	return printConversations(os.Stdout, conversations)
}

// ArchiveShowCmd prints an archived transcript
type ArchiveShowCmd struct {
	ConversationID string `arg:"" optional:"" help:"Conversation id; prints every archived conversation under it"`
	ArchiveID      string `name:"archive-id" help:"Print only the archived conversation with this archive id"`
	Format         string `help:"Output format (text, json)" enum:"text,json" default:"text"`
	Width          int    `default:"100" help:"Wrap messages at this many columns (0 disables)"`
	DB             string `name:"db" type:"path" help:"Archive database (defaults to the configured path)"`
}

// Validate checks that exactly one way of selecting a transcript is used
func (c *ArchiveShowCmd) Validate() error {
	if (c.ConversationID == "") == (c.ArchiveID == "") {
		return errors.New("give either a conversation id or --archive-id")
	}
	return nil
}

// Run executes the archive show command
func (c *ArchiveShowCmd) Run(ctx context.Context, cli *CLI) error {
	a, err := openArchive(ctx, cli, c.DB)
	if err != nil {
		return err
	}
	defer a.Close()

	messages, err := c.transcript(ctx, a)
	if err != nil {
		return err
	}

	if c.Format == "json" {
		return printJSON(os.Stdout, messages)
	}
	return printTranscript(os.Stdout, messages, c.Width)
}

func (c *ArchiveShowCmd) transcript(ctx context.Context, a *archive.Archive) ([]archive.Message, error) {
	if c.ArchiveID != "" {
		_, messages, err := a.GetConversation(ctx, c.ArchiveID)
		if errors.Is(err, archive.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", errUsage, err)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read transcript: %w", err)
		}
		return messages, nil
	}

	messages, err := a.ListMessages(ctx, c.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("%w: no archived messages for conversation %q", errUsage, c.ConversationID)
	}
	return messages, nil
}

func openArchive(ctx context.Context, cli *CLI, path string) (*archive.Archive, error) {
	cfg, logger, err := setup(cli, "warn")
	if err != nil {
		return nil, err
	}
	if path == "" {
		path = cfg.Archive.Path
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: archive %s: %w", errUsage, path, err)
	}

	db, err := archive.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return archive.New(db, logger), nil
}

func printConversations(w io.Writer, conversations []archive.Conversation) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONVERSATION\tSTARTED\tMESSAGES\tARCHIVE ID")
	for _, c := range conversations {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.Key, c.CreatedAt.Local().Format(time.DateTime), c.MessageCount, c.ID)
	}
	return tw.Flush()
}

func printTranscript(w io.Writer, messages []archive.Message, width int) error {
	styles := theme.NewStyles()
	current := ""
	for _, m := range messages {
		if m.ConversationID != current {
			current = m.ConversationID
			fmt.Fprintln(w, styles.Muted.Render(fmt.Sprintf("--- %s ---", m.CreatedAt.Local().Format(time.DateTime))))
		}
		role := styles.Prompt.Render(m.Role + ":")
		if _, err := fmt.Fprintf(w, "%s %s\n", role, theme.Wrap(m.Content, width)); err != nil {
			return err
		}
	}
	return nil
}
