// Package initcmd implements "picpocket init".
package initcmd

import (
	"github.com/spf13/cobra"

	"github.com/picpocket/picpocket/internal/cli"
	"github.com/picpocket/picpocket/internal/conf"
)

type options struct {
	backend    string
	sqlitePath string
	host       string
	port       int
	dbname     string
	user       string
	storePass  bool
	sslMode    string
	formats    []string
}

// Command creates the init command, which writes a new configuration file
// and creates the database schema.
func Command(ctx *cli.Context) *cobra.Command {
	defaults := conf.Default()
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new PicPocket store",
		Long:  "Write picpocket.yaml to the configuration directory and create the database.",
		Args:  cli.Args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := conf.Default()
			settings.Backend.Type = opts.backend
			settings.Backend.SQLite.Path = opts.sqlitePath
			settings.Backend.Postgres.Host = opts.host
			settings.Backend.Postgres.Port = opts.port
			settings.Backend.Postgres.DBName = opts.dbname
			settings.Backend.Postgres.User = opts.user
			settings.Backend.Postgres.StorePassword = opts.storePass
			settings.Backend.Postgres.SSLMode = opts.sslMode
			if formats := cli.SplitList(opts.formats); len(formats) > 0 {
				settings.Files.Formats = formats
			}
			if err := conf.ValidateSettings(settings); err != nil {
				return err
			}

			// a stored password has to be known before the file is written
			if settings.Backend.Type == conf.BackendPostgres && opts.storePass && ctx.Prompt != nil {
				password, err := ctx.Prompt()
				if err != nil {
					return err
				}
				settings.Backend.Postgres.Password = password
			}

			if _, err := ctx.Initialize(cmd.Context(), settings); err != nil {
				return err
			}
			ctx.Printf("Initialized PicPocket (%s) in %s\n", settings.Backend.Type, ctx.ConfigDir)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.backend, "backend", defaults.Backend.Type, "Database backend: sqlite or postgres")
	flags.StringVar(&opts.sqlitePath, "sqlite-path", defaults.Backend.SQLite.Path, "SQLite database file, relative to the configuration directory")
	flags.StringVar(&opts.host, "host", defaults.Backend.Postgres.Host, "PostgreSQL host")
	flags.IntVar(&opts.port, "port", defaults.Backend.Postgres.Port, "PostgreSQL port")
	flags.StringVar(&opts.dbname, "dbname", defaults.Backend.Postgres.DBName, "PostgreSQL database name")
	flags.StringVar(&opts.user, "user", defaults.Backend.Postgres.User, "PostgreSQL user")
	flags.BoolVar(&opts.storePass, "store-password", false, "Save the PostgreSQL password in the configuration file")
	flags.StringVar(&opts.sslMode, "sslmode", "", "PostgreSQL sslmode")
	flags.StringSliceVar(&opts.formats, "formats", nil, "File extensions to import by default (e.g. .jpg,.png)")

	return cmd
}
