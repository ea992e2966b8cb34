// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sigil-dev/chunkstore/internal/config"
	"github.com/sigil-dev/chunkstore/internal/server"
	chunkerr "github.com/sigil-dev/chunkstore/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long:  "Wire the store and serve the documents, search, context and stats endpoints until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
				v.Set("server.listen", listen)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runServe(ctx, cmd, v)
		},
	}

	cmd.Flags().String("listen", "", "override listen address (host:port)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, v *viper.Viper) error {
	app, err := openApp(ctx, v)
	if err != nil {
		return err
	}
	defer func() { _ = app.Close() }()

	srv, err := newHTTPServer(app)
	if err != nil {
		return err
	}

	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "chunkstore listening on %s\n", app.Config.Server.Listen); err != nil {
		return err
	}
	return srv.Start(ctx)
}

func newHTTPServer(app *App) (*server.Server, error) {
	srv, err := server.New(serverConfig(app.Config))
	if err != nil {
		return nil, err
	}

	svc, err := server.NewServices(app.Store, app.Engine)
	if err != nil {
		_ = srv.Close()
		return nil, chunkerr.Wrapf(err, chunkerr.CodeCLISetupFailure, "creating services")
	}
	srv.RegisterServices(svc)

	return srv, nil
}

func serverConfig(cfg *config.Config) server.Config {
	return server.Config{
		ListenAddr:  cfg.Server.Listen,
		CORSOrigins: cfg.Server.CORSOrigins,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit.RequestsPerSecond,
			Burst:             cfg.Server.RateLimit.Burst,
		},
	}
}
