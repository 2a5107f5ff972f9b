// Package tag implements "picpocket tag".
package tag

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/picpocket/picpocket/internal/catalog"
	"github.com/picpocket/picpocket/internal/cli"
)

// Command creates the tag command group
func Command(ctx *cli.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tag",
		Aliases: []string{"tags"},
		Short:   "Manage hierarchical tags such as animals/cat",
	}
	cmd.AddCommand(
		addCommand(ctx),
		moveCommand(ctx),
		removeCommand(ctx),
		listCommand(ctx),
		showCommand(ctx),
	)
	return cmd
}

func addCommand(ctx *cli.Context) *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "add TAG",
		Short: "Add a tag or change its description",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			desc := catalog.Unset[string]()
			if cmd.Flags().Changed("description") {
				desc = catalog.Set(description)
			}
			if _, err := cat.AddTag(cmd.Context(), args[0], desc); err != nil {
				return err
			}
			ctx.Printf("Added tag %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Description")
	return cmd
}

func moveCommand(ctx *cli.Context) *cobra.Command {
	var cascade bool
	cmd := &cobra.Command{
		Use:   "move TAG NEW",
		Short: "Rename a tag, merging into NEW if it exists",
		Args:  cli.Args(cobra.ExactArgs(2)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			moved, err := cat.MoveTag(cmd.Context(), args[0], args[1], cascade)
			if err != nil {
				return err
			}
			return ctx.Print(map[string]int{"moved": moved}, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Moved %d images from %s to %s\n", moved, args[0], args[1])
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", true, "Move descendant tags too")
	return cmd
}

func removeCommand(ctx *cli.Context) *cobra.Command {
	var cascade bool
	cmd := &cobra.Command{
		Use:   "remove TAG",
		Short: "Remove a tag from the catalog and every image",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			if err := cat.RemoveTag(cmd.Context(), args[0], cascade); err != nil {
				return err
			}
			ctx.Printf("Removed tag %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&cascade, "cascade", false, "Remove descendant tags too")
	return cmd
}

func listCommand(ctx *cli.Context) *cobra.Command {
	var tree bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List every tag",
		Args:  cli.Args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			if tree {
				nodes, err := cat.AllTags(cmd.Context())
				if err != nil {
					return err
				}
				return ctx.Print(nodes, func(w io.Writer) error {
					printTree(w, nodes, 0)
					return nil
				})
			}
			names, err := cat.AllTagNames(cmd.Context())
			if err != nil {
				return err
			}
			if names == nil {
				names = []string{}
			}
			return ctx.Print(names, func(w io.Writer) error {
				for _, name := range names {
					fmt.Fprintln(w, name)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&tree, "tree", false, "Show the tag hierarchy")
	return cmd
}

func printTree(w io.Writer, nodes map[string]*catalog.TagNode, depth int) {
	names := make([]string, 0, len(nodes))
	for name := range nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		node := nodes[name]
		line := strings.Repeat("  ", depth) + name
		if node.Description != nil {
			line += "\t" + *node.Description
		}
		fmt.Fprintln(w, line)
		printTree(w, node.Children, depth+1)
	}
}

func showCommand(ctx *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "show TAG",
		Short: "Show a tag and its children",
		Args:  cli.Args(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			tag, err := cat.GetTag(cmd.Context(), args[0], true)
			if err != nil {
				return err
			}
			return ctx.Print(tag, func(w io.Writer) error {
				fmt.Fprintf(w, "name\t%s\n", tag.Name)
				fmt.Fprintf(w, "description\t%s\n", cli.Deref(tag.Description))
				fmt.Fprintf(w, "children\t%s\n", strings.Join(tag.Children, ", "))
				return nil
			})
		},
	}
}
