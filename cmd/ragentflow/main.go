package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Mike1ife/RAGentFlow"
)

// version is set at build time via -ldflags.
var version = "dev"

// errNotReady makes validate exit non-zero without printing an error line;
// the report itself says what is wrong.
var errNotReady = errors.New("graph is not ready to simulate")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := newRootCommand(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errNotReady) {
			slog.Error("fatal error", "error", err)
		}
		cancel()
		os.Exit(1)
	}
}

// newLogger builds the process logger. The server logs JSON to stdout;
// the one-shot commands log to stderr so stdout carries only their output.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if strings.EqualFold(os.Getenv("RAGENTFLOW_LOG_LEVEL"), "debug") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "ragentflow",
		Short:         "Agent graph orchestration over a retrieval-augmented knowledge base",
		Long:          "RAGentFlow routes queries through a graph of classifier, gatekeeper, scorer and responder agents.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), stdout)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		newServeCommand(stdout),
		newMigrateCommand(stderr),
		newValidateCommand(stdout, stderr),
		newSimulateCommand(stdout, stderr),
		newGraphCommand(stdout, stderr),
		newIngestCommand(stdout, stderr),
		newHashKeyCommand(stdout),
		newGenKeysCommand(stdout),
	)
	return root
}

func runServe(ctx context.Context, logw io.Writer) error {
	app, err := ragentflow.New(
		ragentflow.WithVersion(version),
		ragentflow.WithLogger(newLogger(logw)),
	)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

// withApp builds an App for a one-shot command and closes it afterwards.
func withApp(logw io.Writer, fn func(app *ragentflow.App) error) error {
	app, err := ragentflow.New(
		ragentflow.WithVersion(version),
		ragentflow.WithLogger(newLogger(logw)),
	)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
