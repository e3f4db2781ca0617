package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/elee1766/chatrelay/src/groqclient"
)

// CLI represents the main CLI structure
type CLI struct {
	APIKey    string `env:"GROQ_API_KEY" help:"Groq API key"`
	BaseURL   string `help:"Custom API base URL"`
	Config    string `short:"c" type:"path" help:"Config file (defaults to the user config and ./chatrelay.json)"`
	LogLevel  string `help:"Log level (debug, info, warn, error)"`
	LogFormat string `help:"Log format (text, json)"`

	Serve   ServeCmd   `cmd:"" help:"Run the HTTP relay"`
	Ask     AskCmd     `cmd:"" help:"Ask a single question without history"`
	Chat    ChatCmd    `cmd:"" help:"Chat interactively in the terminal"`
	Models  ModelsCmd  `cmd:"" help:"Upstream model information"`
	Archive ArchiveCmd `cmd:"" help:"Inspect archived transcripts"`
	Conf    ConfigCmd  `cmd:"" name:"config" help:"Show or initialise configuration"`
}

// requireAPIKey fails when no upstream key was given.
func (cli *CLI) requireAPIKey() error {
	if cli.APIKey == "" {
		return groqclient.ErrNoAPIKey
	}
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("chatrelay"),
		kong.Description("HTTP relay for Groq chat completions"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	kctx.BindTo(ctx, (*context.Context)(nil))

	err := kctx.Run(&cli)
	stop()
	if err != nil {
		NewErrorHandler(createCLILogger(cli.LogLevel, cli.LogFormat)).HandleError(err)
	}
}
