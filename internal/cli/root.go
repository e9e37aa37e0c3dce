// Package cli implements playdatectl, the operator command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/narvanalabs/playdate/internal/store"
)

// StoreOpener opens the store a command runs against. The returned store is
// closed when the command finishes.
type StoreOpener func(ctx context.Context) (store.Store, error)

// RootOptions holds global flags and dependencies for all commands.
type RootOptions struct {
	Format string // "json" | "text"
	Open   StoreOpener
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for playdatectl.
func NewRootCommand(open StoreOpener, logger *slog.Logger) *cobra.Command {
	if logger == nil {
		logger = slog.Default()
	}
	opts := &RootOptions{Open: open, Logger: logger}

	cmd := &cobra.Command{
		Use:   "playdatectl",
		Short: "Operate a playdate deployment",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewReconcileCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withStore opens the store, runs fn and closes the store.
func withStore(ctx context.Context, opts *RootOptions, fn func(store.Store) error) error {
	st, err := opts.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()
	return fn(st)
}

// write renders v as indented JSON, or through text in text mode.
func write(w io.Writer, opts *RootOptions, v any, text func(io.Writer) error) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}
