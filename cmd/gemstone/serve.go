package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (c *cli) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve predictions over HTTP",
		Long: `Serve POST /predict with a JSON gemstone and GET /healthz. The model and the
preprocessor are reloaded on every request, so a new training run is picked up
without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.newApp(cmd)
			if err != nil {
				return err
			}
			defer closeApp(a, c.logger)

			c.logger.Info("serving predictions", zap.String("addr", c.cfg.Server.Addr))

			return a.Server().ListenAndServe(cmd.Context(), c.cfg.Server.Addr)
		},
	}
	cmd.Flags().String("addr", ":8080", "listen address")
	_ = c.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))

	return cmd
}
