// Package cmd assembles the picpocket command line.
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/picpocket/picpocket/cmd/image"
	"github.com/picpocket/picpocket/cmd/initcmd"
	"github.com/picpocket/picpocket/cmd/location"
	"github.com/picpocket/picpocket/cmd/serve"
	"github.com/picpocket/picpocket/cmd/snapshot"
	"github.com/picpocket/picpocket/cmd/tag"
	"github.com/picpocket/picpocket/cmd/task"
	"github.com/picpocket/picpocket/cmd/verify"
	"github.com/picpocket/picpocket/internal/buildinfo"
	"github.com/picpocket/picpocket/internal/cli"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *cli.Context, build *buildinfo.Context) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "picpocket",
		Short:         "PicPocket photo catalog",
		Long:          "Track photos across disks and devices: locations, tags, tasks and image metadata.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, ctx); err != nil {
		panic(err)
	}
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return cli.UsageError(err)
	})

	subcommands := []*cobra.Command{
		initcmd.Command(ctx),
		location.Command(ctx),
		tag.Command(ctx),
		image.Command(ctx),
		task.Command(ctx),
		verify.Command(ctx),
		serve.Command(ctx),
		versionCommand(ctx, build),
	}
	subcommands = append(subcommands, snapshot.Commands(ctx)...)
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		// the environment fills in what the command line left out
		if ctx.ConfigDir == "" {
			ctx.ConfigDir = viper.GetString("config")
		}
		if !ctx.Debug {
			ctx.Debug = viper.GetBool("debug")
		}
		return nil
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, ctx *cli.Context) error {
	rootCmd.PersistentFlags().StringVarP(&ctx.ConfigDir, "config", "c", "", "Configuration directory (default $HOME/.config/picpocket)")
	rootCmd.PersistentFlags().BoolVarP(&ctx.Debug, "debug", "d", false, "Enable debug output")
	rootCmd.PersistentFlags().BoolVar(&ctx.JSON, "json", false, "Print results as JSON")

	viper.SetEnvPrefix("picpocket")
	for _, key := range []string{"config", "debug"} {
		if err := viper.BindEnv(key); err != nil {
			return fmt.Errorf("error binding environment: %w", err)
		}
	}
	return nil
}

// versionCommand prints the build version and the schema version of the
// configured store
func versionCommand(ctx *cli.Context, build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cli.Args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			info := struct {
				Version   string `json:"version"`
				BuildDate string `json:"build_date"`
				Backend   string `json:"backend,omitempty"`
				Schema    string `json:"schema,omitempty"`
				Error     string `json:"error,omitempty"`
			}{
				Version:   build.GetVersion(),
				BuildDate: build.GetBuildDate(),
			}

			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				info.Error = err.Error()
			} else {
				info.Backend = cat.Backend().Name()
				stored, err := cat.Backend().Version(cmd.Context())
				if err != nil {
					return err
				}
				info.Schema = stored.String()
			}

			return ctx.Print(info, func(w io.Writer) error {
				fmt.Fprintf(w, "picpocket\t%s\n", info.Version)
				fmt.Fprintf(w, "built\t%s\n", info.BuildDate)
				if info.Error != "" {
					fmt.Fprintf(w, "store\t%s\n", info.Error)
					return nil
				}
				fmt.Fprintf(w, "backend\t%s\n", info.Backend)
				fmt.Fprintf(w, "schema\t%s\n", info.Schema)
				return nil
			})
		},
	}
}
