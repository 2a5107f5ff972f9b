// Package snapshot implements "picpocket export" and "picpocket import".
package snapshot

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/cli"
)

// Commands creates the export and import commands
func Commands(ctx *cli.Context) []*cobra.Command {
	return []*cobra.Command{exportCommand(ctx), importCommand(ctx)}
}

func exportCommand(ctx *cli.Context) *cobra.Command {
	var locations []string
	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Write locations, tags, tasks and image metadata to a JSON file",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			var refs []catalog.Ref
			for _, name := range cli.SplitList(locations) {
				refs = append(refs, catalog.ParseRef(name))
			}
			if err := cat.ExportFile(cmd.Context(), args[0], refs); err != nil {
				return err
			}
			ctx.Printf("Exported to %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&locations, "location", "l", nil, "Only export these locations (and their images)")
	return cmd
}

func importCommand(ctx *cli.Context) *cobra.Command {
	var locations []string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Merge an exported JSON file into the catalog",
		Long: "Merge a file written by export. --location NAME limits the import to that " +
			"location; NAME=PATH also reads its images from PATH.",
		Args: cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			var restrict map[string]string
			for _, item := range cli.SplitList(locations) {
				if restrict == nil {
					restrict = map[string]string{}
				}
				name, path, _ := strings.Cut(item, "=")
				restrict[name] = path
			}
			if err := cat.ImportFile(cmd.Context(), args[0], restrict); err != nil {
				return err
			}
			ctx.Printf("Imported %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&locations, "location", "l", nil, "Only import these locations, as NAME or NAME=PATH")
	return cmd
}
