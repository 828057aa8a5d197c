package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"aiknife/internal/server"
)

func newServeCmd(a *app) *cobra.Command {
	var overridePort int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP service used by the browser extension",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if overridePort != 0 {
				if overridePort < 0 || overridePort > 65535 {
					return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
				}
				cfg.Server.Port = overridePort
			}

			srv, err := server.New(cfg, server.Deps{
				Pipeline: a.pipeline,
				Registry: a.registry,
				Clients:  a.clients,
				Settings: a.store,
				Board:    a.board,
			})
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().IntVar(&overridePort, "port", 0, "override server port")
	return cmd
}
