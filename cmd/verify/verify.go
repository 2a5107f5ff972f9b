// Package verify implements "picpocket verify".
package verify

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/cli"
)

// Command creates the verify command, which checks recorded images against
// the files on disk and lists the missing ones.
func Command(ctx *cli.Context) *cobra.Command {
	var (
		location string
		path     string
		reparse  bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check image files and refresh changed ones",
		Args:  cli.Args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			opts := catalog.VerifyOptions{Path: path, ReparseExif: reparse}
			if location != "" {
				l, err := cat.ExpectLocation(cmd.Context(), catalog.ParseRef(location))
				if err != nil {
					return err
				}
				opts.Location = &l.ID
			}

			missing, err := cat.VerifyImageFiles(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if missing == nil {
				missing = []*catalog.Image{}
			}
			return ctx.Print(missing, func(w io.Writer) error {
				if len(missing) == 0 {
					_, err := fmt.Fprintln(w, "All image files present")
					return err
				}
				fmt.Fprintln(w, "ID\tLOCATION\tMISSING")
				for _, img := range missing {
					fmt.Fprintf(w, "%d\t%d\t%s\n", img.ID, img.Location, cli.Deref(img.FullPath))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", "", "Only check this location")
	cmd.Flags().StringVar(&path, "path", "", "Only check images below this directory")
	cmd.Flags().BoolVar(&reparse, "reparse-exif", false, "Re-read every file, changed or not")
	return cmd
}
