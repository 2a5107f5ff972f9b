// Package serve implements "picpocket serve".
package serve

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/picpocket/picpocket/internal/api"
	"github.com/picpocket/picpocket/internal/cli"
	"github.com/picpocket/picpocket/internal/logger"
	"github.com/picpocket/picpocket/internal/observability"
)

// Command creates the serve command, which runs the JSON API until
// interrupted.
func Command(ctx *cli.Context) *cobra.Command {
	var (
		listen  string
		origins []string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API and Prometheus metrics",
		Args:  cli.Args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ctx.Settings()
			if err != nil {
				return err
			}
			if listen != "" {
				settings.Web.Listen = listen
			}

			m, err := observability.NewMetrics()
			if err != nil {
				return err
			}
			ctx.Metrics = m
			cat, err := ctx.Catalog(cmd.Context())
			if err != nil {
				return err
			}
			log := ctx.Logger("cli")
			if err := ctx.Metrics.RegisterDatabase(cat.Backend().DB(), cat.Backend().Name()); err != nil {
				log.Warn("database metrics unavailable", logger.Error(err))
			}

			config := api.ConfigFromSettings(settings)
			config.AllowedOrigins = cli.SplitList(origins)
			server, err := api.New(cat, config,
				api.WithLogger(ctx.Logger("api")),
				api.WithMetrics(ctx.Metrics))
			if err != nil {
				return err
			}

			return run(cmd.Context(), server)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Address to listen on (default from configuration)")
	cmd.Flags().StringSliceVar(&origins, "allow-origin", nil, "Origins allowed to call the API from a browser")
	return cmd
}

// run serves until ctx is cancelled or the server fails, pruning expired
// sessions alongside
func run(ctx context.Context, server *api.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		return server.PruneSessions(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		return server.Shutdown(context.Background())
	})
	return g.Wait()
}
