package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Mike1ife/RAGentFlow"
	"github.com/Mike1ife/RAGentFlow/internal/auth"
	"github.com/Mike1ife/RAGentFlow/internal/graph"
)

func newServeCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and MCP server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), stdout)
		},
	}
}

func newMigrateCommand(stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(stderr)
			if err := ragentflow.Migrate(cmd.Context(), ragentflow.WithLogger(logger)); err != nil {
				return err
			}
			logger.Info("migrations applied")
			return nil
		},
	}
}

func newValidateCommand(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check whether the graph is ready to simulate",
		Long: `Print the graph validation report as JSON.

Exits with status 1 when canProceed is false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(stderr, func(app *ragentflow.App) error {
				report, err := app.Validate(cmd.Context())
				if err != nil {
					return err
				}
				if err := writeJSON(stdout, report); err != nil {
					return err
				}
				if !report.CanProceed {
					return errNotReady
				}
				return nil
			})
		},
	}
}

func newSimulateCommand(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <query>",
		Short: "Run a query through the graph and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(stderr, func(app *ragentflow.App) error {
				result, err := app.Simulate(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(stdout, result)
			})
		},
	}
}

func newGraphCommand(stdout, stderr io.Writer) *cobra.Command {
	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Agent graph operations",
	}

	var format string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the graph to Mermaid or JSON",
		Long: `Export the current graph.

Examples:
  ragentflow graph export
  ragentflow graph export --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != graph.FormatMermaid && format != graph.FormatJSON {
				return fmt.Errorf("unsupported format: %s (use 'mermaid' or 'json')", format)
			}
			return withApp(stderr, func(app *ragentflow.App) error {
				out, err := app.ExportGraph(cmd.Context(), format)
				if err != nil {
					return err
				}
				printf(stdout, "%s\n", out)
				return nil
			})
		},
	}
	exportCmd.Flags().StringVar(&format, "format", graph.FormatMermaid, "Output format: mermaid, json")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Replace the graph with the default example",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(stderr, func(app *ragentflow.App) error {
				if err := app.ResetGraph(cmd.Context()); err != nil {
					return err
				}
				printf(stdout, "Graph reset to default.\n")
				return nil
			})
		},
	}

	graphCmd.AddCommand(exportCmd, resetCmd)
	return graphCmd
}

func newIngestCommand(stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Add files to the knowledge base",
		Long: `Chunk, embed and store each file under its base name.

Supported types: .pdf, .txt, .md. Stops at the first failure.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(stderr, func(app *ragentflow.App) error {
				for _, path := range args {
					data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
					if err != nil {
						return fmt.Errorf("read %s: %w", path, err)
					}
					name := filepath.Base(path)
					n, err := app.Ingest(cmd.Context(), name, data)
					if err != nil {
						return fmt.Errorf("ingest %s: %w", path, err)
					}
					printf(stdout, "%s: %d chunks\n", name, n)
				}
				return nil
			})
		},
	}
}

func newHashKeyCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "hash-key <key>",
		Short: "Hash an admin API key for RAGENTFLOW_ADMIN_API_KEY_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return fmt.Errorf("key must not be empty")
			}
			encoded, err := auth.HashAPIKey(args[0])
			if err != nil {
				return err
			}
			printf(stdout, "%s\n", encoded)
			return nil
		},
	}
}

func newGenKeysCommand(stdout io.Writer) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "gen-keys",
		Short: "Generate an Ed25519 key pair for JWT signing",
		Long: `Write jwt_private.pem and jwt_public.pem for RAGENTFLOW_JWT_PRIVATE_KEY
and RAGENTFLOW_JWT_PUBLIC_KEY. Existing files are never overwritten.

Without persistent keys the server signs with an ephemeral pair, so every
restart invalidates issued tokens.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			privPath, pubPath, err := auth.WriteKeyPair(dir)
			if err != nil {
				return err
			}
			printf(stdout, "wrote %s\nwrote %s\n", privPath, pubPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "data", "Directory to write the key files to")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
