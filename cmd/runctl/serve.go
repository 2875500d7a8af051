//go:build !windows

package main

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dmora/runctl/internal/httpapi"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run index as a read-only JSON API",
		Long: `Serve the run index over HTTP until interrupted. Routes:
  GET /health
  GET /runs?session=&failed=
  GET /runs/:ref
  GET /runs/:ref/output?type=
  GET /runs/:ref/report
  GET /stats?session=`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Serve.Addr
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			fmt.Fprintf(a.stdout, "serving %s on http://%s\n", a.layout.Root, ln.Addr())
			a.logger.Info("serving", zap.String("addr", ln.Addr().String()))
			return httpapi.Serve(cmd.Context(), httpapi.NewServer(a.orc, a.logger), ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config serve.addr)")
	return cmd
}
