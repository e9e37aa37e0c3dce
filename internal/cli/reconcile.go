package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/narvanalabs/playdate/internal/ledger"
	"github.com/narvanalabs/playdate/internal/resolution"
	"github.com/narvanalabs/playdate/internal/store"
)

// ReconcileOptions holds flags for the reconcile command.
type ReconcileOptions struct {
	*RootOptions
	Overlap time.Duration
}

// NewReconcileCommand creates the reconcile command.
func NewReconcileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReconcileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one resolution sweep",
		Long: `Run one reconciler sweep: re-resolve pending invitations for
connections and promotions recorded since the last checkpoint, then advance
the checkpoint if every trigger succeeded.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), opts.RootOptions, func(st store.Store) error {
				engine := resolution.NewEngine(ledger.New(st, opts.Logger), opts.Logger)
				r := resolution.NewReconciler(st, engine, resolution.ReconcilerConfig{Overlap: opts.Overlap}, opts.Logger)
				res, err := r.Sweep(cmd.Context())
				if res != nil {
					if werr := write(cmd.OutOrStdout(), opts.RootOptions, res, func(w io.Writer) error {
						_, err := fmt.Fprintf(w, "swept since %s: %d connections, %d accounts, %d entries consumed, %d invitations\n",
							res.Since.Format(time.RFC3339), res.Connections, res.Accounts, res.Consumed, res.Invitations)
						return err
					}); werr != nil {
						return werr
					}
				}
				return err
			})
		},
	}

	cmd.Flags().DurationVar(&opts.Overlap, "overlap", resolution.DefaultSweepOverlap, "how far before the checkpoint to start the sweep")
	return cmd
}
