package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/futures-journal/internal/app"
	"github.com/rustyeddy/futures-journal/server"
)

func newServeCmd(rc *RootConfig) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = rc.cfg.Server.Addr
			}

			return rc.open(cmd, func(ctx context.Context, a *app.App) error {
				srv := server.New(server.Deps{
					Store:     a.Store,
					Pipeline:  a.Pipeline,
					Analytics: a.Analytics,
				}, server.Options{
					Addr:        addr,
					CORSOrigins: rc.cfg.Server.CORSOrigins,
					Logger:      a.Log,
				})

				errc := make(chan error, 1)
				go func() { errc <- srv.Start() }()

				select {
				case err := <-errc:
					return err
				case <-ctx.Done():
				}

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return err
				}
				return <-errc
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
