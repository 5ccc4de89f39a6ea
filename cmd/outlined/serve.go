// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/symview/outline/cmd/outlined/config"
	"github.com/symview/outline/services/outline"
)

var serveDebug bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the outline HTTP daemon",
	Long: `Starts the HTTP/websocket server that editor hosts talk to.

Each editor window creates a session, opens a document into it, and
reports edits, caret moves and view changes. The daemon maintains the
outline incrementally and streams snapshots back over the watch
endpoint.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "enable Gin debug mode and request logging")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveDebug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	svcCfg := outline.ServiceConfig{
		Session:     sessionConfigFromGlobal(),
		MaxSessions: config.Global.Outline.MaxSessions,
	}
	svc := outline.NewService(svcCfg)
	handlers := outline.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	if serveDebug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	outline.RegisterRoutes(v1, handlers)

	addr := fmt.Sprintf("%s:%d", config.Global.Server.Host, config.Global.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("outlined listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		svc.Shutdown()
		return nil
	})

	return g.Wait()
}
