package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kalambet/secureguard/internal/api"
	"github.com/kalambet/secureguard/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		return runServer(port)
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides server.port)")
}

func apiDeps(a *app.App) api.Deps {
	return api.Deps{
		Service:   a.Service,
		Threshold: a.Config.Retrieval.Threshold,
		TopK:      a.Config.Retrieval.TopK,
		Retriever: a.Base.Retriever(),
		Docs:      a.Base.Store,
		Vectors:   a.Base.Vectors,
		Token:     a.Config.Server.Token,
		Log:       a.Log.Named("api"),
	}
}

func runServer(port int) error {
	fmt.Fprintf(errOut, "secureguard version %s\n", version)

	cfg, log, flush, err := setup(false)
	if err != nil {
		return err
	}
	defer flush()
	if port > 0 {
		cfg.Server.Port = port
	}

	ctx, stop := signalContext()
	defer stop()

	a, err := bootstrap(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Server.Token == "" {
		printWarning("server.token is not set; /v1 endpoints are unauthenticated")
	}

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(apiDeps(a)),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		printSuccess("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		printStep("Shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runMCP serves on stdin/stdout, so all progress goes to stderr.
func runMCP() error {
	cfg, log, flush, err := setup(false)
	if err != nil {
		return err
	}
	defer flush()

	ctx, stop := signalContext()
	defer stop()

	a, err := bootstrap(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	stdio := server.NewStdioServer(api.NewMCPServer(apiDeps(a), version))
	log.Info("MCP server started (stdio transport)")
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("MCP stdio server error", zap.Error(err))
		return err
	}
	return nil
}
