package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"bookshelf/internal/render"
)

func newSearchCommand(rt *runtime) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search QUERY...",
		Short: "Search the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := rt.catalog()
			if err != nil {
				return err
			}
			books, err := catalog.Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSONTo(cmd.OutOrStdout(), books)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), render.TerminalResults(books))
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print results as JSON")
	return cmd
}

func newDetailsCommand(rt *runtime) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "details ID",
		Short: "Show the catalog record of one book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := rt.catalog()
			if err != nil {
				return err
			}
			d, err := catalog.FetchDetails(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSONTo(cmd.OutOrStdout(), d)
			}

			out := cmd.OutOrStdout()
			title := d.Title
			if title == "" {
				title = render.UntitledBook
			}
			fmt.Fprintln(out, title)
			if d.Subtitle != "" {
				fmt.Fprintln(out, d.Subtitle)
			}
			fmt.Fprintln(out, "by "+render.AuthorText(d.Authors))
			if meta := render.Meta(d); meta != "" {
				fmt.Fprintln(out, meta)
			}
			description := d.Description
			if description == "" {
				description = render.NoDescription
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, description)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")
	return cmd
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
