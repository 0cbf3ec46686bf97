// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/extmgr/internal/api"
	"github.com/holomush/extmgr/internal/catalog"
	"github.com/holomush/extmgr/internal/installer"
	"github.com/holomush/extmgr/internal/routing"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API and extension assets",
		Long: `Start the HTTP server exposing the admin API under /api/v1 and the
extension asset tree, with upgrade routing in front of both. Metrics and
health probes are served on --metrics-addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), c, cmd)
		},
	}
}

func runServe(ctx context.Context, c *cli, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, c.cfg, c.deps)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.restoreUpgrades(ctx); err != nil {
		return err
	}

	listener, err := net.Listen("tcp", c.cfg.Server.Listen)
	if err != nil {
		return oops.With("addr", c.cfg.Server.Listen).Wrap(err)
	}

	srv := &http.Server{
		Handler: api.NewServer(api.Deps{
			Layout:    a.layout,
			Catalog:   a.aggregator,
			Installer: a.installer,
			Registry:  a.registry,
			State:     a.state,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()
	go monitorServerErrors(ctx, cancel, errCh, "api")

	var obsServer ObservabilityServer
	if c.cfg.Server.MetricsAddr != "" {
		root := c.cfg.Paths.Root
		obsServer = c.deps.ObservabilityServerFactory(c.cfg.Server.MetricsAddr,
			func(context.Context) error {
				_, err := os.Stat(root)
				return err
			},
			routing.RegisterMetrics,
			catalog.RegisterMetrics,
			installer.RegisterMetrics,
		)
		obsErrCh, err := obsServer.Start()
		if err != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
			return oops.Wrapf(err, "start observability server")
		}
		go monitorServerErrors(ctx, cancel, obsErrCh, "observability")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Printf("extmgr serving on %s\n", listener.Addr())
	slog.Info("extmgr ready",
		"addr", listener.Addr().String(),
		"root", c.cfg.Paths.Root,
		"manifests", len(c.cfg.Catalog.Manifests),
		"upgraded", len(a.state.Snapshot().Upgraded))

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("error stopping api server", "error", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when a server reports a serve error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown", "server", serverName, "error", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
