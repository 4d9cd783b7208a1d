// convai-cli runs a voice agent conversation from the terminal through a
// convai-gateway. Audio capture and playback are out of scope; the CLI shows
// connection state and the live transcript.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/vango-go/vai-convai/internal/dotenv"
	vai "github.com/vango-go/vai-convai/sdk"
)

type cliDeps struct {
	lookupEnv       func(string) (string, bool)
	readFile        func(string) ([]byte, error)
	newConversation func(cliConfig, *slog.Logger) (conversation, error)
}

func defaultCLIDeps() cliDeps {
	return cliDeps{
		lookupEnv:       os.LookupEnv,
		readFile:        os.ReadFile,
		newConversation: newGatewayConversation,
	}
}

func newGatewayConversation(cfg cliConfig, logger *slog.Logger) (conversation, error) {
	client := vai.NewClient(
		vai.WithBaseURL(cfg.GatewayURL),
		vai.WithAPIKey(cfg.APIKey),
		vai.WithLogger(logger),
	)
	return client.NewConversation(cfg.AgentID, vai.WithDynamicVariables(cfg.dynamicVariables()))
}

func runMain(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, deps cliDeps) int {
	flags := newCLIFlags(stderr)
	if err := flags.set.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "convai-cli: %v\n", err)
		return 2
	}
	if extra := flags.set.Args(); len(extra) > 0 {
		fmt.Fprintf(stderr, "convai-cli: unexpected argument %q\n", extra[0])
		return 2
	}

	if err := dotenv.LoadFiles(flags.envFiles...); err != nil {
		fmt.Fprintf(stderr, "convai-cli: %v\n", err)
		return 1
	}
	cfg, err := resolveConfig(flags, deps.lookupEnv, deps.readFile)
	if err != nil {
		fmt.Fprintf(stderr, "convai-cli: %v\n", err)
		return 2
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		fmt.Fprintf(stderr, "convai-cli: invalid log level %q\n", cfg.LogLevel)
		return 2
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	conv, err := deps.newConversation(cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "convai-cli: %v\n", err)
		return 1
	}
	if err := runREPL(ctx, conv, cfg, stdin, stdout); err != nil {
		fmt.Fprintf(stderr, "convai-cli: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(runMain(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr, defaultCLIDeps()))
}
