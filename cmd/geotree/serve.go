package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/geotree/pkg/api"
	"github.com/hazyhaar/geotree/pkg/geo"
	"github.com/hazyhaar/geotree/pkg/importer"
)

const version = "0.1.0"

func newServeCmd(a *app) *cobra.Command {
	var addr string
	var check bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tree over HTTP (/v1, /metrics) and MCP (/mcp)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if addr == "" {
				addr = a.cfg.Addr
			}

			st, err := openStore(ctx, a.cfg.Store)
			if err != nil {
				return err
			}
			defer st.Close()

			opts := api.Options{
				Normalize: geo.GetNormalizer(a.cfg.Normalize),
				Logger:    a.logger,
				Metrics:   true,
			}
			mcpSrv := server.NewMCPServer("geotree", version)
			api.RegisterMCPTools(mcpSrv, st, opts)

			mux := http.NewServeMux()
			mux.Handle("/mcp", server.NewStreamableHTTPServer(mcpSrv))
			mux.Handle("/", api.NewRouter(st, opts))

			if check && a.cfg.CheckInterval > 0 {
				sdb, err := seededSources(a)
				if err != nil {
					return err
				}
				defer sdb.Close()
				go importer.NewChecker(sdb, a.logger, a.cfg.CheckInterval).Start(ctx)
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           mux,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				a.logger.Info("geotree listening", "addr", addr, "store", a.cfg.Store.Driver)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
				close(errc)
			}()

			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			a.logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().BoolVar(&check, "check-sources", false, "periodically check import source URLs")
	return cmd
}
