package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/rmax-ai/proximl/pkg/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve proximl resources to agents over the Model Context Protocol (stdio)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			px, err := a.api(cmd.Context())
			if err != nil {
				return err
			}

			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.Handler())
				srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go func() {
					a.logger.Info("serving metrics", "addr", metricsAddr)
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error("metrics server failed", "error", err)
					}
				}()
				defer srv.Close()
			}

			return mcp.NewServer(px, version, a.logger).Serve()
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")
	return cmd
}
