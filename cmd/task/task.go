// Package task implements "picpocket task".
package task

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/cli"
)

// Command creates the task command group
func Command(ctx *cli.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "task",
		Aliases: []string{"tasks"},
		Short:   "Copy new images from one location to another",
	}
	cmd.AddCommand(
		addCommand(ctx),
		runCommand(ctx),
		removeCommand(ctx),
		listCommand(ctx),
		showCommand(ctx),
	)
	return cmd
}

func addCommand(ctx *cli.Context) *cobra.Command {
	var (
		description string
		config      catalog.TaskConfiguration
		force       bool
	)
	cmd := &cobra.Command{
		Use:   "add NAME SOURCE DESTINATION",
		Short: "Define a copy task between two locations",
		Long: "Define a task copying files from SOURCE to DESTINATION.\n\n" +
			"--source-pattern matches paths below the source, e.g. \"{year}/{month}/{day}/{file}\".\n" +
			"--destination-format names the copies, e.g. \"{date:%Y/%m}/{file}\".",
		Args: cli.Args(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			spec := catalog.TaskSpec{
				Name:          args[0],
				Source:        catalog.ParseRef(args[1]),
				Destination:   catalog.ParseRef(args[2]),
				Configuration: config,
			}
			spec.Configuration.Tags = cli.SplitList(config.Tags)
			spec.Configuration.Formats = cli.SplitList(config.Formats)
			if cmd.Flags().Changed("description") {
				spec.Description = &description
			}
			if err := cat.AddTask(cmd.Context(), spec, force); err != nil {
				return err
			}
			ctx.Printf("Added task %s\n", spec.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Description")
	cmd.Flags().StringVar(&config.Creator, "creator", "", "Creator recorded for copied images")
	cmd.Flags().StringSliceVarP(&config.Tags, "tag", "t", nil, "Tags applied to copied images")
	cmd.Flags().StringVar(&config.Source, "source-pattern", "", "Pattern of source paths to copy")
	cmd.Flags().StringVar(&config.Destination, "destination-format", "", "Format of destination paths")
	cmd.Flags().StringSliceVar(&config.Formats, "formats", nil, "Extensions to copy (default from configuration)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Replace a task with the same name")
	return cmd
}

func runCommand(ctx *cli.Context) *cobra.Command {
	var (
		since string
		full  bool
		tags  []string
	)
	cmd := &cobra.Command{
		Use:   "run NAME",
		Short: "Copy files added since the task last ran",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := catalog.RunOptions{Full: full, Tags: cli.SplitList(tags)}
			if since != "" {
				t, err := cli.ParseTime(since)
				if err != nil {
					return err
				}
				opts.Since = &t
			}
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			ids, err := cat.RunTask(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if ids == nil {
				ids = []int64{}
			}
			return ctx.Print(map[string][]int64{"ids": ids}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Copied %d images\n", len(ids))
				return err
			})
		},
	}
	cmd.Flags().StringVar(&since, "since", "", "Only files modified after this time")
	cmd.Flags().BoolVar(&full, "full", false, "Consider every file regardless of the last run")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Extra tags for this run's copies")
	cmd.MarkFlagsMutuallyExclusive("since", "full")
	return cmd
}

func removeCommand(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a task",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			if err := cat.RemoveTask(cmd.Context(), args[0]); err != nil {
				return err
			}
			ctx.Printf("Removed task %s\n", args[0])
			return nil
		},
	}
}

func listCommand(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cli.Args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			tasks, err := cat.ListTasks(cmd.Context())
			if err != nil {
				return err
			}
			if tasks == nil {
				tasks = []*catalog.Task{}
			}
			return ctx.Print(tasks, func(w io.Writer) error {
				fmt.Fprintln(w, "NAME\tSOURCE\tDESTINATION\tLAST RAN")
				for _, t := range tasks {
					fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", t.Name, t.Source, t.Destination, cli.Deref(t.LastRan))
				}
				return nil
			})
		},
	}
}

func showCommand(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "show NAME",
		Short: "Show a task",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			t, err := cat.GetTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if t == nil {
				return catalog.NotFoundError("task", args[0])
			}
			return ctx.Print(t, func(w io.Writer) error {
				fmt.Fprintf(w, "name\t%s\n", t.Name)
				fmt.Fprintf(w, "description\t%s\n", cli.Deref(t.Description))
				fmt.Fprintf(w, "source\t%d\n", t.Source)
				fmt.Fprintf(w, "destination\t%d\n", t.Destination)
				fmt.Fprintf(w, "source pattern\t%s\n", t.Configuration.Source)
				fmt.Fprintf(w, "destination format\t%s\n", t.Configuration.Destination)
				fmt.Fprintf(w, "creator\t%s\n", t.Configuration.Creator)
				fmt.Fprintf(w, "tags\t%s\n", strings.Join(t.Configuration.Tags, ", "))
				fmt.Fprintf(w, "formats\t%s\n", strings.Join(t.Configuration.Formats, ", "))
				fmt.Fprintf(w, "last ran\t%s\n", cli.Deref(t.LastRan))
				return nil
			})
		},
	}
}
