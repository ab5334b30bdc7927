// Command relay is a terminal client for an OpenAI-compatible chat
// assistant backend.
//
// Usage:
//
//	relay [flags] chat [--transcript path]
//	relay [flags] ask [--no-stream] prompt...
//	relay fake [--addr host:port]
//
// Connection settings come from flags, then RELAY_API_KEY, RELAY_BASE_URL
// and RELAY_ASSISTANT (a .env file in the working directory is loaded
// first), then the selected profile in ~/.config/relay/config.yaml.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/fwojciec/relay"
	bt "github.com/fwojciec/relay/bubbletea"
	"github.com/fwojciec/relay/fake"
	relayjson "github.com/fwojciec/relay/json"
	"github.com/fwojciec/relay/openai"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second


type chatCmd struct {
	Transcript string `arg:"--transcript" help:"transcript file to resume and save"`
	System     string `arg:"--system" help:"system prompt for a new transcript"`
}

type askCmd struct {
	Prompt   []string `arg:"positional,required" help:"prompt text"`
	System   string   `arg:"--system" help:"system prompt"`
	NoStream bool     `arg:"--no-stream" help:"wait for the whole reply instead of streaming"`
}

type fakeCmd struct {
	Addr       string        `arg:"--addr" default:"127.0.0.1:8000" help:"listen address"`
	Token      string        `arg:"--token" help:"required bearer token (default: accept any)"`
	Assistants []string      `arg:"--assistants" help:"accepted assistant names (default: any)"`
	Delay      time.Duration `arg:"--delay" default:"30ms" help:"pause between streamed words"`
}

type args struct {
	Chat *chatCmd `arg:"subcommand:chat" help:"interactive chat"`
	Ask  *askCmd  `arg:"subcommand:ask" help:"send one prompt and print the reply"`
	Fake *fakeCmd `arg:"subcommand:fake" help:"serve a fake backend for local development"`

	Config      string   `arg:"--config" help:"config file (default: ~/.config/relay/config.yaml)"`
	Profile     string   `arg:"--profile" help:"profile from the config file"`
	BaseURL     string   `arg:"--base-url" help:"backend base URL"`
	Assistant   string   `arg:"--assistant" help:"assistant name, sent as model"`
	APIKey      string   `arg:"--api-key" help:"bearer token (overrides RELAY_API_KEY)"`
	Temperature *float64 `arg:"--temperature" help:"sampling temperature in [0, 2]"`
	MaxTokens   *int     `arg:"--max-tokens" help:"reply token limit"`
	NoRetry     bool     `arg:"--no-retry" help:"fail on the first error"`
	Debug       bool     `arg:"--debug" help:"log at debug level"`
}

func (args) Description() string {
	return "relay streams replies from an OpenAI-compatible assistant backend."
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "relay: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var a args
	p, err := arg.NewParser(arg.Config{Program: "relay"}, &a)
	if err != nil {
		return fmt.Errorf("define arguments: %w", err)
	}
	p.MustParse(os.Args[1:])
	if p.Subcommand() == nil {
		p.WriteUsage(os.Stdout)
		return nil
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	level := slog.LevelInfo
	if a.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if a.Fake != nil {
		return serveFake(ctx, a.Fake, logger)
	}

	configPath := a.Config
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	cfg, err := readConfig(configPath, a.Config != "")
	if err != nil {
		return err
	}
	s, err := resolveSettings(cfg, overrides{
		Profile:     a.Profile,
		BaseURL:     a.BaseURL,
		Assistant:   a.Assistant,
		APIKey:      a.APIKey,
		Temperature: a.Temperature,
		MaxTokens:   a.MaxTokens,
		NoRetry:     a.NoRetry,
	}, environment{
		APIKey:    os.Getenv("RELAY_API_KEY"),
		BaseURL:   os.Getenv("RELAY_BASE_URL"),
		Assistant: os.Getenv("RELAY_ASSISTANT"),
	})
	if err != nil {
		return err
	}

	opts := []openai.Option{openai.WithLogger(logger)}
	if s.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(s.BaseURL))
	}
	client := openai.New(relay.StaticToken(s.APIKey), opts...)
	runner := relay.NewRunner(client, relay.WithLogger(logger))

	switch {
	case a.Ask != nil:
		return ask(ctx, client, runner, s, a.Ask, os.Stdout, os.Stderr)
	default:
		return chat(ctx, runner, s, a.Chat)
	}
}

// ask prints the reply to out as it streams. A retried attempt's partial
// text is ended with a newline on out and a notice goes to notices, so the
// last line of out is always a complete reply.
func ask(ctx context.Context, client relay.Completer, runner *relay.Runner, s settings, cmd *askCmd, out, notices io.Writer) error {
	if s.Assistant == "" {
		return errNoAssistant
	}
	var msgs []relay.Message
	if cmd.System != "" {
		msgs = append(msgs, relay.SystemMessage(cmd.System))
	}
	msgs = append(msgs, relay.UserMessage(strings.Join(cmd.Prompt, " ")))
	req := relay.Request{
		Assistant:   s.Assistant,
		Messages:    msgs,
		Temperature: s.Temperature,
		MaxTokens:   s.MaxTokens,
	}

	if cmd.NoStream {
		c, err := client.Complete(ctx, req)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, c.Content)
		return err
	}

	var partial bool
	err := runner.Run(ctx, req, relay.Handler{
		OnChunk: func(text string) {
			partial = true
			fmt.Fprint(out, text)
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			if partial {
				fmt.Fprintln(out)
				partial = false
			}
			fmt.Fprintf(notices, "relay: retrying (attempt %d) in %s: %v\n", attempt, delay, err)
		},
		OnDone: func() { fmt.Fprintln(out) },
	}, relay.WithRetry(s.Retry))
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func chat(ctx context.Context, runner *relay.Runner, s settings, cmd *chatCmd) error {
	t, err := loadOrCreateTranscript(cmd.Transcript, cmd.System, s.Assistant)
	if err != nil {
		return err
	}
	if s.Assistant != "" {
		t.Assistant = s.Assistant
	}
	if t.Assistant == "" {
		return errNoAssistant
	}

	var copts []relay.ConversationOption
	if s.Temperature != nil {
		copts = append(copts, relay.WithTemperature(*s.Temperature))
	}
	if s.MaxTokens != nil {
		copts = append(copts, relay.WithMaxTokens(*s.MaxTokens))
	}
	conv := relay.NewConversation(runner, t, copts...)
	retry := relay.WithRetry(s.Retry)
	send := func(ctx context.Context, text string, h relay.Handler) {
		conv.Send(ctx, text, h, retry)
	}

	m := bt.New(send, t.Messages, relay.DefaultTheme())
	if err := bt.Run(ctx, m); err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	conv.Cancel()

	saved := conv.Transcript()
	if len(saved.Messages) == len(t.Messages) {
		return nil
	}
	path := cmd.Transcript
	if path == "" {
		path = defaultTranscriptPath(saved.ID)
	}
	if err := relayjson.Save(path, saved); err != nil {
		return fmt.Errorf("save transcript: %w", err)
	}
	if cmd.Transcript == "" {
		fmt.Fprintf(os.Stderr, "Transcript saved to %s\n", path)
	}
	return nil
}

var errNoAssistant = errors.New("no assistant set: use --assistant, RELAY_ASSISTANT, or add assistant to a profile")

// loadOrCreateTranscript resumes path when it exists. A new transcript gets
// fresh ids so the backend opens a new session.
func loadOrCreateTranscript(path, system, assistant string) (relay.Transcript, error) {
	now := time.Now()
	fresh := relay.Transcript{
		ID:        uuid.NewString(),
		Assistant: assistant,
		SessionID: uuid.NewString(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if system != "" {
		fresh.Messages = []relay.Message{relay.SystemMessage(system)}
	}
	if path == "" {
		return fresh, nil
	}
	t, err := relayjson.LoadOrNew(path, fresh)
	if err != nil {
		return relay.Transcript{}, fmt.Errorf("load transcript: %w", err)
	}
	return t, nil
}

func defaultTranscriptPath(id string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".relay", "transcripts", id+".json")
}

func serveFake(ctx context.Context, cmd *fakeCmd, logger *slog.Logger) error {
	gin.SetMode(gin.ReleaseMode)
	opts := []fake.Option{fake.WithLogger(logger), fake.WithDelay(cmd.Delay)}
	if cmd.Token != "" {
		opts = append(opts, fake.WithToken(cmd.Token))
	}
	if len(cmd.Assistants) > 0 {
		opts = append(opts, fake.WithAssistants(cmd.Assistants...))
	}
	srv := &http.Server{
		Addr:              cmd.Addr,
		Handler:           fake.New(opts...),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("fake backend listening", "addr", cmd.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
