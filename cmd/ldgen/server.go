package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jstrand/ldgen/internal/api"
	"github.com/jstrand/ldgen/internal/config"
	"github.com/jstrand/ldgen/internal/extract"
	"github.com/jstrand/ldgen/internal/llm"
	"github.com/jstrand/ldgen/internal/pipeline"
	"github.com/jstrand/ldgen/internal/regen"
	"github.com/jstrand/ldgen/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the ldgen server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "ldgen version %s\n", version)

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(os.Getenv("LDGEN_LOG_LEVEL"), "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	token := cfg.Server.Token
	if token == "" {
		token, err = generateToken()
		if err != nil {
			return fmt.Errorf("generating API token: %w", err)
		}
		slog.Info("no API token configured, generated one for this run", "token", token)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	registry := llm.NewRegistry(cfg.Provider, st)
	provider, err := registry.Active()
	if err != nil {
		return err
	}
	slog.Info("provider configured", "provider", provider.Name(), "model", provider.Model())

	var fetcher extract.Fetcher
	if cfg.Generation.FrontendFetch {
		fetcher = extract.NewFrontendFetcher()
	}
	extractor := extract.New(st, fetcher)
	orch := pipeline.New(cfg, st, extractor, registry)

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:           st,
		Generator:       orch,
		Tester:          provider,
		Token:           token,
		PageTypeEnabled: cfg.PageTypeEnabled,
		ConflictGate:    cfg.Generation.ConflictGate,
		InjectInHead:    cfg.Generation.InjectInHead,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{Store: st, Generator: orch})
	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	sseSrv := mcpserver.NewSSEServer(mcpSrv)

	worker := regen.NewWorker(st, orch, 2*time.Second)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("ldgen listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("MCP server listening", "addr", mcpAddr)
		if err := sseSrv.Start(mcpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("MCP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		worker.Run(ctx)
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := sseSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("MCP shutdown", "error", err)
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func generateToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
