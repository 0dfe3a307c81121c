package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bookshelf/internal/favorites"
	"bookshelf/internal/models"
	"bookshelf/internal/render"
	"bookshelf/internal/storage"
)

type favoritesOptions struct {
	userID int64
	asJSON bool
}

func (o *favoritesOptions) key() string {
	if o.userID != 0 {
		return storage.UserFavoritesKey(o.userID)
	}
	return storage.FavoritesKey
}

func newFavoritesCommand(rt *runtime) *cobra.Command {
	opts := &favoritesOptions{}

	cmd := &cobra.Command{
		Use:   "favorites",
		Short: "List, add and remove favorites",
	}
	cmd.PersistentFlags().Int64Var(&opts.userID, "user", 0, "Telegram user id whose favorites to use")
	cmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print the collection as JSON")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print the favorites",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return rt.withFavorites(cmd.Context(), opts, func(ctx context.Context, c *favorites.Collection) (models.Collection, error) {
					return c.List(ctx), nil
				}, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "add ID",
			Short: "Look a book up and add it to the favorites",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				catalog, err := rt.catalog()
				if err != nil {
					return err
				}
				return rt.withFavorites(cmd.Context(), opts, func(ctx context.Context, c *favorites.Collection) (models.Collection, error) {
					return favorites.AddFromCatalog(ctx, c, catalog, args[0])
				}, cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "remove ID",
			Short: "Remove a book from the favorites",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return rt.withFavorites(cmd.Context(), opts, func(ctx context.Context, c *favorites.Collection) (models.Collection, error) {
					return c.Remove(ctx, args[0])
				}, cmd.OutOrStdout())
			},
		},
	)
	return cmd
}

// withFavorites opens the store, runs fn on the selected collection and
// prints the result.
func (rt *runtime) withFavorites(
	ctx context.Context,
	opts *favoritesOptions,
	fn func(context.Context, *favorites.Collection) (models.Collection, error),
	out io.Writer,
) error {
	kv, closer, err := rt.openStore(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()

	coll := favorites.New(storage.NewAdapter(kv, opts.key(), rt.logger), nil, rt.logger)
	list, err := fn(ctx, coll)
	if err != nil {
		return err
	}

	if opts.asJSON {
		if list == nil {
			list = models.Collection{}
		}
		return writeJSONTo(out, list)
	}
	_, err = fmt.Fprint(out, render.Terminal(list))
	return err
}
