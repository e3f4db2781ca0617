package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/elee1766/chatrelay/src/aisdk"
	"github.com/elee1766/chatrelay/src/archive"
	"github.com/elee1766/chatrelay/src/config"
	"github.com/elee1766/chatrelay/src/groqclient"
	"github.com/elee1766/chatrelay/src/session"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseCLI(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()
	var cli CLI
	parser, err := kong.New(&cli, kong.Name("chatrelay"), kong.Exit(func(int) { t.Fatal("unexpected exit") }))
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return &cli, kctx
}

func TestCLIParsing(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk-env")

	cli, kctx := parseCLI(t, "serve", "--addr", "127.0.0.1:9000", "--verify-models")
	assert.Equal(t, "serve", kctx.Command())
	assert.Equal(t, "gsk-env", cli.APIKey)
	assert.Equal(t, "127.0.0.1:9000", cli.Serve.Addr)
	assert.True(t, cli.Serve.VerifyModels)
	assert.NoError(t, cli.requireAPIKey())

	cli, kctx = parseCLI(t, "--api-key", "gsk-flag", "ask", "what", "is", "go")
	assert.True(t, strings.HasPrefix(kctx.Command(), "ask"), kctx.Command())
	assert.Equal(t, "gsk-flag", cli.APIKey)
	assert.Equal(t, []string{"what", "is", "go"}, cli.Ask.Question)

	_, kctx = parseCLI(t, "models", "list", "--format", "json")
	assert.Equal(t, "models list", kctx.Command())

	_, kctx = parseCLI(t, "config", "show")
	assert.Equal(t, "config show", kctx.Command())
}

func TestRequireAPIKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	cli, _ := parseCLI(t, "serve")
	err := cli.requireAPIKey()
	assert.ErrorIs(t, err, groqclient.ErrNoAPIKey)
	assert.Equal(t, ExitAuth, getExitCode(err))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelWarn},
		{"bogus", slog.LevelWarn},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", "json")
	logger.Debug("hidden")
	logger.Info("shown", "k", "v")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return false }

var _ net.Error = timeoutNetErr{}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"missing key", groqclient.ErrNoAPIKey, ExitAuth},
		{"auth failure", &session.UpstreamError{Err: &groqclient.APIError{StatusCode: 401}}, ExitAuth},
		{"timeout", &session.UpstreamError{Err: &groqclient.TimeoutError{Operation: "x", Duration: time.Second}}, ExitTimeout},
		{"config", fmt.Errorf("%w: bad", errConfig), ExitConfig},
		{"validation", config.ValidationError{Field: "x"}, ExitConfig},
		{"network", fmt.Errorf("post: %w", timeoutNetErr{}), ExitNetwork},
		{"interrupted", context.Canceled, ExitInterrupted},
		{"usage", fmt.Errorf("%w: nope", errUsage), ExitUsage},
		{"other", errors.New("boom"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, getExitCode(tt.err))
		})
	}
}

func TestHandleErrorExits(t *testing.T) {
	var code int
	h := &ErrorHandler{logger: slog.New(slog.DiscardHandler), exit: func(c int) { code = c }}
	h.HandleError(groqclient.ErrNoAPIKey)
	assert.Equal(t, ExitAuth, code)

	code = -1
	h.HandleError(nil)
	assert.Equal(t, -1, code)
}

func TestLoadConfig(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/cfg.json", []byte(`{"chat":{"model":"file-model"},"logging":{"level":"error"}}`), 0644))

	cli := &CLI{Config: "/cfg.json", APIKey: "gsk", BaseURL: "http://localhost:1234/v1", LogLevel: "debug"}
	cfg, err := loadConfig(cli, fs)
	require.NoError(t, err)
	assert.Equal(t, "file-model", cfg.Chat.Model)
	assert.Equal(t, "gsk", cfg.Upstream.APIKey)
	assert.Equal(t, "http://localhost:1234/v1", cfg.Upstream.BaseURL)
	assert.Equal(t, "debug", cfg.Logging.Level)

	_, err = loadConfig(&CLI{Config: "/missing.json"}, fs)
	assert.ErrorIs(t, err, errConfig)

	_, err = loadConfig(&CLI{Config: "/cfg.json", LogFormat: "yaml"}, fs)
	assert.ErrorIs(t, err, errConfig)
	assert.Equal(t, ExitConfig, getExitCode(err))
}

func TestInitConfig(t *testing.T) {
	fs := afero.NewMemMapFs()

	require.NoError(t, initConfig(fs, "/home/me/.config/chatrelay/config.json", false))
	data, err := afero.ReadFile(fs, "/home/me/.config/chatrelay/config.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), "llama-3.1-8b-instant")

	err = initConfig(fs, "/home/me/.config/chatrelay/config.json", false)
	assert.ErrorIs(t, err, errUsage)
	assert.NoError(t, initConfig(fs, "/home/me/.config/chatrelay/config.json", true))
}

type scriptedTurns struct {
	calls []string
	errs  map[string]error
}

func (s *scriptedTurns) HandleTurn(_ context.Context, id, role, content string) (*session.TurnResult, error) {
	s.calls = append(s.calls, role+":"+content)
	if err := s.errs[content]; err != nil {
		return nil, err
	}
	return &session.TurnResult{Response: "re: " + content, ConversationID: id}, nil
}

func TestRunChat(t *testing.T) {
	relay := &scriptedTurns{errs: map[string]error{
		"fail": &session.UpstreamError{Err: errors.New("API error 503: busy")},
	}}
	var out bytes.Buffer

	err := runChat(t.Context(), relay, chatParams{
		ConversationID: "c1",
		Role:           aisdk.RoleUser,
		In:             strings.NewReader("Hi\n\nfail\nagain\n/exit\nignored\n"),
		Out:            &out,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"user:Hi", "user:fail", "user:again"}, relay.calls)
	assert.Contains(t, out.String(), "re: Hi")
	assert.Contains(t, out.String(), "API error 503: busy")
	assert.Contains(t, out.String(), "re: again")
	assert.NotContains(t, out.String(), "ignored")
}

func TestRunChatInactive(t *testing.T) {
	relay := &scriptedTurns{errs: map[string]error{"Hi": session.ErrSessionInactive}}
	var out bytes.Buffer

	err := runChat(t.Context(), relay, chatParams{ConversationID: "c1", Role: "user", In: strings.NewReader("Hi\nmore\n"), Out: &out})
	assert.ErrorIs(t, err, session.ErrSessionInactive)
	assert.Equal(t, []string{"user:Hi"}, relay.calls)
	assert.Contains(t, out.String(), "Chat session ended")
}

func TestPrintModelsTable(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printModelsTable(&out, []*aisdk.ModelInfo{
		{ID: "llama-3.1-8b-instant", OwnedBy: "Meta", ContextWindow: 131072, Active: true},
		{ID: "whisper-large-v3", OwnedBy: "OpenAI", ContextWindow: 448},
	}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "128K")
	assert.Contains(t, lines[2], "448")
}

func TestFormatContext(t *testing.T) {
	assert.Equal(t, "-", formatContext(0))
	assert.Equal(t, "8K", formatContext(8192))
	assert.Equal(t, "32.8K", formatContext(32768+1))
	assert.Equal(t, "999", formatContext(999))
}

func TestPrintAnswerJSON(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printAnswer(&out, "json", 0, "42"))
	assert.JSONEq(t, `{"answer":"42"}`, out.String())
}

func TestArchiveShowSelectsTranscript(t *testing.T) {
	ctx := t.Context()
	db, err := archive.Open(ctx, filepath.Join(t.TempDir(), "archive.db"))
	require.NoError(t, err)
	a := archive.New(db, nil)
	defer a.Close()

	first := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, a.RecordConversation(ctx, "c1", "sys", first))
	require.NoError(t, a.RecordMessage(ctx, "c1", 0, aisdk.Message{Role: "system", Content: "old"}))
	require.NoError(t, a.RecordConversation(ctx, "c1", "sys", first.Add(time.Hour)))
	require.NoError(t, a.RecordMessage(ctx, "c1", 0, aisdk.Message{Role: "system", Content: "new"}))

	all, err := (&ArchiveShowCmd{ConversationID: "c1"}).transcript(ctx, a)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	conversations, err := a.ListConversations(ctx, "c1", 1)
	require.NoError(t, err)
	require.Len(t, conversations, 1)

	latest, err := (&ArchiveShowCmd{ArchiveID: conversations[0].ID}).transcript(ctx, a)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, "new", latest[0].Content)

	_, err = (&ArchiveShowCmd{ArchiveID: "missing"}).transcript(ctx, a)
	assert.ErrorIs(t, err, archive.ErrNotFound)
	assert.Equal(t, ExitUsage, getExitCode(err))

	_, err = (&ArchiveShowCmd{ConversationID: "ghost"}).transcript(ctx, a)
	assert.Equal(t, ExitUsage, getExitCode(err))

	assert.Error(t, (&ArchiveShowCmd{}).Validate())
	assert.Error(t, (&ArchiveShowCmd{ConversationID: "c1", ArchiveID: "x"}).Validate())
	assert.NoError(t, (&ArchiveShowCmd{ArchiveID: "x"}).Validate())
}
