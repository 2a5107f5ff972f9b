// Package image implements "picpocket image".
package image

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/cli"
)

// Command creates the image command group
func Command(ctx *cli.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "image",
		Aliases: []string{"images"},
		Short:   "Search, edit and organize images",
	}
	cmd.AddCommand(
		searchCommand(ctx),
		countCommand(ctx),
		showCommand(ctx),
		findCommand(ctx),
		editCommand(ctx),
		tagCommand(ctx),
		untagCommand(ctx),
		moveCommand(ctx),
		removeCommand(ctx),
		copyCommand(ctx),
	)
	return cmd
}

func searchCommand(ctx *cli.Context) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "search",
		Short: "List images matching filters",
		Args:  cli.Args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.build(cmd)
			if err != nil {
				return err
			}
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			images, err := cat.SearchImages(cmd.Context(), query)
			if err != nil {
				return err
			}
			if images == nil {
				images = []*catalog.Image{}
			}
			return ctx.Print(images, func(w io.Writer) error {
				fmt.Fprintln(w, "ID\tLOCATION\tPATH\tRATING\tTITLE")
				for _, img := range images {
					fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", img.ID, img.Location, img.Path, cli.Deref(img.Rating), cli.Deref(img.Title))
				}
				return nil
			})
		},
	}
	q.register(cmd, true)
	return cmd
}

func countCommand(ctx *cli.Context) *cobra.Command {
	var q queryFlags
	cmd := &cobra.Command{
		Use:   "count",
		Short: "Count images matching filters",
		Args:  cli.Args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := q.build(cmd)
			if err != nil {
				return err
			}
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			count, err := cat.CountImages(cmd.Context(), query)
			if err != nil {
				return err
			}
			return ctx.Print(map[string]int64{"count": count}, func(w io.Writer) error {
				_, err := fmt.Fprintln(w, count)
				return err
			})
		},
	}
	q.register(cmd, false)
	return cmd
}

func printImage(ctx *cli.Context, img *catalog.Image) error {
	return ctx.Print(img, func(w io.Writer) error {
		fmt.Fprintf(w, "id\t%d\n", img.ID)
		fmt.Fprintf(w, "location\t%d\n", img.Location)
		fmt.Fprintf(w, "path\t%s\n", img.Path)
		fmt.Fprintf(w, "file\t%s\n", cli.Deref(img.FullPath))
		fmt.Fprintf(w, "creator\t%s\n", cli.Deref(img.Creator))
		fmt.Fprintf(w, "title\t%s\n", cli.Deref(img.Title))
		fmt.Fprintf(w, "caption\t%s\n", cli.Deref(img.Caption))
		fmt.Fprintf(w, "alt\t%s\n", cli.Deref(img.Alt))
		fmt.Fprintf(w, "rating\t%s\n", cli.Deref(img.Rating))
		fmt.Fprintf(w, "size\t%sx%s\n", cli.Deref(img.Width), cli.Deref(img.Height))
		fmt.Fprintf(w, "created\t%s\n", cli.Deref(img.CreationDate))
		fmt.Fprintf(w, "modified\t%s\n", cli.Deref(img.LastModified))
		fmt.Fprintf(w, "tags\t%s\n", strings.Join(img.Tags, ", "))
		return nil
	})
}

func notFound(what string) error {
	return catalog.NotFoundError("image", what)
}

func showCommand(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an image and its tags",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID(args[0])
			if err != nil {
				return err
			}
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			img, err := cat.GetImage(cmd.Context(), id, true)
			if err != nil {
				return err
			}
			if img == nil {
				return notFound(args[0])
			}
			return printImage(ctx, img)
		},
	}
}

func findCommand(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "find PATH",
		Short: "Look up the image recorded for a file",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			img, err := cat.FindImage(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}
			if img == nil {
				return notFound(args[0])
			}
			return printImage(ctx, img)
		},
	}
}

func editCommand(ctx *cli.Context) *cobra.Command {
	var (
		creator, title, caption, alt string
		rating                       int64
		clear                        []string
	)
	cmd := &cobra.Command{
		Use:   "edit ID",
		Short: "Change an image's creator, title, caption, alt text or rating",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID(args[0])
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			text := func(name, value string) catalog.Optional[string] {
				if flags.Changed(name) {
					return catalog.Set(value)
				}
				return catalog.Unset[string]()
			}
			edit := catalog.ImageEdit{
				Creator: text("creator", creator),
				Title:   text("title", title),
				Caption: text("caption", caption),
				Alt:     text("alt", alt),
			}
			if flags.Changed("rating") {
				edit.Rating = catalog.Set(rating)
			}
			for _, field := range cli.SplitList(clear) {
				switch field {
				case "creator":
					edit.Creator = catalog.Clear[string]()
				case "title":
					edit.Title = catalog.Clear[string]()
				case "caption":
					edit.Caption = catalog.Clear[string]()
				case "alt":
					edit.Alt = catalog.Clear[string]()
				case "rating":
					edit.Rating = catalog.Clear[int64]()
				default:
					return cli.UsageError(fmt.Errorf("cannot clear %q", field))
				}
			}

			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			if err := cat.EditImage(cmd.Context(), id, edit); err != nil {
				return err
			}
			ctx.Printf("Updated image %d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&creator, "creator", "", "Creator")
	cmd.Flags().StringVar(&title, "title", "", "Title")
	cmd.Flags().StringVar(&caption, "caption", "", "Caption")
	cmd.Flags().StringVar(&alt, "alt", "", "Alt text")
	cmd.Flags().Int64Var(&rating, "rating", 0, "Rating")
	cmd.Flags().StringSliceVar(&clear, "clear", nil, "Fields to remove: creator, title, caption, alt, rating")
	return cmd
}

func tagCommand(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "tag ID TAG...",
		Short: "Add tags to an image",
		Args:  cli.Args(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachTag(ctx, cmd, args, (*catalog.Catalog).TagImage)
		},
	}
}

func untagCommand(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "untag ID TAG...",
		Short: "Remove tags from an image",
		Args:  cli.Args(cobra.MinimumNArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			return eachTag(ctx, cmd, args, (*catalog.Catalog).UntagImage)
		},
	}
}

func eachTag(ctx *cli.Context, cmd *cobra.Command, args []string, apply func(*catalog.Catalog, context.Context, int64, string) error) error {
	id, err := cli.ParseID(args[0])
	if err != nil {
		return err
	}
	cat, err := ctx.Catalog(cmd.Context())
	if err != nil {
		return err
	}
	for _, tag := range args[1:] {
		if err := apply(cat, cmd.Context(), id, tag); err != nil {
			return err
		}
	}
	return nil
}

func moveCommand(ctx *cli.Context) *cobra.Command {
	var location string
	cmd := &cobra.Command{
		Use:   "move ID PATH",
		Short: "Move an image's file within its location or to another one",
		Args:  cli.Args(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID(args[0])
			if err != nil {
				return err
			}
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			var target *int64
			if location != "" {
				l, err := cat.ExpectLocation(cmd.Context(), catalog.ParseRef(location))
				if err != nil {
					return err
				}
				target = &l.ID
			}
			if err := cat.MoveImage(cmd.Context(), id, args[1], target); err != nil {
				return err
			}
			ctx.Printf("Moved image %d to %s\n", id, args[1])
			return nil
		},
	}
	cmd.Flags().StringVarP(&location, "location", "l", "", "Destination location (default the image's own)")
	return cmd
}

func removeCommand(ctx *cli.Context) *cobra.Command {
	var deleteFile bool
	cmd := &cobra.Command{
		Use:   "remove ID",
		Short: "Forget an image",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := cli.ParseID(args[0])
			if err != nil {
				return err
			}
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			if err := cat.RemoveImage(cmd.Context(), id, deleteFile); err != nil {
				return err
			}
			ctx.Printf("Removed image %d\n", id)
			return nil
		},
	}
	cmd.Flags().BoolVar(&deleteFile, "delete-file", false, "Delete the file from disk too")
	return cmd
}

func copyCommand(ctx *cli.Context) *cobra.Command {
	var (
		creator, title, caption, alt string
		rating                       int64
		tags                         []string
	)
	cmd := &cobra.Command{
		Use:   "copy FILE LOCATION PATH",
		Short: "Copy a file into a location and record it",
		Args:  cli.Args(cobra.ExactArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			text := func(name, value string) *string {
				if flags.Changed(name) {
					return &value
				}
				return nil
			}
			fields := catalog.ImageFields{
				Creator: text("creator", creator),
				Title:   text("title", title),
				Caption: text("caption", caption),
				Alt:     text("alt", alt),
			}
			if flags.Changed("rating") {
				fields.Rating = &rating
			}

			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			id, err := cat.AddImageCopy(cmd.Context(), args[0], catalog.ParseRef(args[1]), args[2], fields, cli.SplitList(tags))
			if err != nil {
				return err
			}
			return ctx.Print(map[string]int64{"id": id}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Copied %s as image %d\n", args[0], id)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&creator, "creator", "", "Creator")
	cmd.Flags().StringVar(&title, "title", "", "Title")
	cmd.Flags().StringVar(&caption, "caption", "", "Caption")
	cmd.Flags().StringVar(&alt, "alt", "", "Alt text")
	cmd.Flags().Int64Var(&rating, "rating", 0, "Rating")
	cmd.Flags().StringSliceVarP(&tags, "tag", "t", nil, "Tags for the copy")
	return cmd
}
