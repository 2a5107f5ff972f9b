// Package location implements "picpocket location".
package location

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/cli"
)

// Command creates the location command group
func Command(ctx *cli.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "location",
		Aliases: []string{"locations"},
		Short:   "Manage the places images live",
	}
	cmd.AddCommand(
		addCommand(ctx),
		editCommand(ctx),
		removeCommand(ctx),
		listCommand(ctx),
		showCommand(ctx),
		mountCommand(ctx),
		unmountCommand(ctx),
		importCommand(ctx),
	)
	return cmd
}

func addCommand(ctx *cli.Context) *cobra.Command {
	var spec catalog.LocationSpec
	cmd := &cobra.Command{
		Use:   "add NAME [PATH]",
		Short: "Add a location",
		Long:  "Add a location. Removable locations may leave out the path and be mounted when attached.",
		Args:  cli.Args(cobra.RangeArgs(1, 2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			spec.Name = args[0]
			if len(args) > 1 {
				spec.Path = args[1]
			}
			id, err := cat.AddLocation(cmd.Context(), spec)
			if err != nil {
				return err
			}
			return ctx.Print(map[string]int64{"id": id}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Added location %s (%d)\n", spec.Name, id)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&spec.Description, "description", "", "Description")
	cmd.Flags().BoolVar(&spec.Source, "source", false, "Images are imported from this location")
	cmd.Flags().BoolVar(&spec.Destination, "destination", false, "Images are copied to this location")
	cmd.Flags().BoolVar(&spec.Removable, "removable", false, "The location is not always attached")
	return cmd
}

func editCommand(ctx *cli.Context) *cobra.Command {
	var (
		name, path, description string
		clearPath, clearDesc    bool
		source, dest, removable bool
	)
	cmd := &cobra.Command{
		Use:   "edit LOCATION",
		Short: "Change a location",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			flags := cmd.Flags()

			var edit catalog.LocationEdit
			switch {
			case clearPath:
				edit.Path = catalog.Clear[string]()
			case flags.Changed("path"):
				edit.Path = catalog.Set(path)
			}
			switch {
			case clearDesc:
				edit.Description = catalog.Clear[string]()
			case flags.Changed("description"):
				edit.Description = catalog.Set(description)
			}
			if flags.Changed("source") {
				edit.Source = &source
			}
			if flags.Changed("destination") {
				edit.Destination = &dest
			}
			if flags.Changed("removable") {
				edit.Removable = &removable
			}

			if err := cat.EditLocation(cmd.Context(), catalog.ParseRef(args[0]), name, edit); err != nil {
				return err
			}
			ctx.Printf("Updated location %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "New name")
	cmd.Flags().StringVar(&path, "path", "", "New path")
	cmd.Flags().BoolVar(&clearPath, "clear-path", false, "Remove the stored path")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().BoolVar(&clearDesc, "clear-description", false, "Remove the description")
	cmd.Flags().BoolVar(&source, "source", false, "Images are imported from this location")
	cmd.Flags().BoolVar(&dest, "destination", false, "Images are copied to this location")
	cmd.Flags().BoolVar(&removable, "removable", false, "The location is not always attached")
	cmd.MarkFlagsMutuallyExclusive("path", "clear-path")
	cmd.MarkFlagsMutuallyExclusive("description", "clear-description")
	return cmd
}

func removeCommand(ctx *cli.Context) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "remove LOCATION",
		Short: "Remove a location",
		Long:  "Remove a location. A location that still has images needs --force, which forgets them too.",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			if _, err := cat.RemoveLocation(cmd.Context(), catalog.ParseRef(args[0]), force); err != nil {
				return err
			}
			ctx.Printf("Removed location %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Remove the location's images as well")
	return cmd
}

func listCommand(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List locations",
		Args:  cli.Args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			locations, err := cat.ListLocations(cmd.Context())
			if err != nil {
				return err
			}
			if locations == nil {
				locations = []*catalog.Location{}
			}
			return ctx.Print(locations, func(w io.Writer) error {
				fmt.Fprintln(w, "ID\tNAME\tPATH\tFLAGS\tMOUNTED")
				for _, l := range locations {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", l.ID, l.Name, cli.Deref(l.Path), flagString(l), cli.Deref(l.MountPoint))
				}
				return nil
			})
		},
	}
}

func showCommand(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "show LOCATION",
		Short: "Show one location",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			l, err := cat.ExpectLocation(cmd.Context(), catalog.ParseRef(args[0]))
			if err != nil {
				return err
			}
			return ctx.Print(l, func(w io.Writer) error {
				fmt.Fprintf(w, "id\t%d\n", l.ID)
				fmt.Fprintf(w, "name\t%s\n", l.Name)
				fmt.Fprintf(w, "description\t%s\n", cli.Deref(l.Description))
				fmt.Fprintf(w, "path\t%s\n", cli.Deref(l.Path))
				fmt.Fprintf(w, "flags\t%s\n", flagString(l))
				fmt.Fprintf(w, "mounted\t%s\n", cli.Deref(l.MountPoint))
				return nil
			})
		},
	}
}

func mountCommand(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "mount LOCATION PATH",
		Short: "Use PATH as the location's root until unmounted",
		Long: "Mount a location at PATH for the lifetime of this process. It is most " +
			"useful combined with other commands through the API server.",
		Args: cli.Args(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			if err := cat.Mount(cmd.Context(), catalog.ParseRef(args[0]), args[1]); err != nil {
				return err
			}
			ctx.Printf("Mounted %s at %s\n", args[0], args[1])
			return nil
		},
	}
}

func unmountCommand(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "unmount LOCATION",
		Short: "Forget a location's mount point",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			return cat.Unmount(cmd.Context(), catalog.ParseRef(args[0]))
		},
	}
}

func importCommand(ctx *cli.Context) *cobra.Command {
	var (
		formats, tags []string
		creator       string
		batchSize     int
		mountPath     string
	)
	cmd := &cobra.Command{
		Use:   "import LOCATION",
		Short: "Record every image file in a location",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			ref := catalog.ParseRef(args[0])
			if mountPath != "" {
				if err := cat.Mount(cmd.Context(), ref, mountPath); err != nil {
					return err
				}
				defer func() { _ = cat.Unmount(cmd.Context(), ref) }()
			}

			opts := catalog.ImportOptions{
				Formats:   cli.SplitList(formats),
				Tags:      cli.SplitList(tags),
				BatchSize: batchSize,
			}
			if cmd.Flags().Changed("creator") {
				opts.Creator = &creator
			}
			ids, err := cat.ImportLocation(cmd.Context(), ref, opts)
			if err != nil {
				return err
			}
			if ids == nil {
				ids = []int64{}
			}
			return ctx.Print(map[string][]int64{"ids": ids}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Imported %d images\n", len(ids))
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&formats, "formats", nil, "Extensions to import (default from configuration)")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Tag every imported image")
	cmd.Flags().StringVar(&creator, "creator", "", "Creator of images without one")
	cmd.Flags().IntVar(&batchSize, "batch-size", catalog.DefaultBatchSize, "Files recorded per transaction")
	cmd.Flags().StringVar(&mountPath, "mount", "", "Mount the location here for the import")
	return cmd
}

func flagString(l *catalog.Location) string {
	s := ""
	for _, f := range []struct {
		set  bool
		name string
	}{{l.Source, "source"}, {l.Destination, "destination"}, {l.Removable, "removable"}} {
		if !f.set {
			continue
		}
		if s != "" {
			s += ","
		}
		s += f.name
	}
	if s == "" {
		return "-"
	}
	return s
}
