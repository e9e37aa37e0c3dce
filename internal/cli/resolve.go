package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/narvanalabs/playdate/internal/identity"
	"github.com/narvanalabs/playdate/internal/models"
	"github.com/narvanalabs/playdate/internal/store"
)

// ResolveResult is the output of the resolve command.
type ResolveResult struct {
	Kind       models.Kind   `json:"kind"`
	Handle     models.Handle `json:"handle"`
	Key        int64         `json:"key"`
	IsSkeleton *bool         `json:"is_skeleton,omitempty"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <kind> <handle>",
		Short: "Map an external handle to its internal key",
		Long: fmt.Sprintf(`Map an external handle to its internal key for support queries.

Kinds: %v`, models.Kinds),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, handle := models.Kind(args[0]), models.Handle(args[1])
			if !kind.Valid() {
				return fmt.Errorf("unknown kind %q", kind)
			}
			return withStore(cmd.Context(), opts, func(st store.Store) error {
				key, err := identity.NewResolver(st.Handles()).Key(cmd.Context(), kind, handle)
				if err != nil {
					return err
				}
				res := ResolveResult{Kind: kind, Handle: handle, Key: key}
				switch kind {
				case models.KindAccount:
					acc, err := st.Accounts().Get(cmd.Context(), key)
					if err != nil {
						return err
					}
					res.IsSkeleton = &acc.IsSkeleton
				case models.KindChild:
					c, err := st.Children().Get(cmd.Context(), key)
					if err != nil {
						return err
					}
					res.IsSkeleton = &c.IsSkeleton
				}
				return write(cmd.OutOrStdout(), opts, res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s %s -> %d", res.Kind, res.Handle, res.Key)
					if err == nil && res.IsSkeleton != nil && *res.IsSkeleton {
						_, err = fmt.Fprint(w, " (skeleton)")
					}
					if err == nil {
						_, err = fmt.Fprintln(w)
					}
					return err
				})
			})
		},
	}
}
