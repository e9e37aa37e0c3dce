package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/narvanalabs/playdate/internal/store"
)

// migrator is implemented by stores with a schema to apply.
type migrator interface {
	Migrate(ctx context.Context) error
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		Long: `Apply the database schema. The schema is idempotent, so running
migrate against an up-to-date database changes nothing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts, func(st store.Store) error {
				m, ok := st.(migrator)
				applied := false
				if ok {
					if err := m.Migrate(cmd.Context()); err != nil {
						return err
					}
					applied = true
				}
				return write(cmd.OutOrStdout(), opts, map[string]bool{"applied": applied}, func(w io.Writer) error {
					if !applied {
						_, err := fmt.Fprintln(w, "store has no schema to apply")
						return err
					}
					_, err := fmt.Fprintln(w, "schema applied")
					return err
				})
			})
		},
	}
}
