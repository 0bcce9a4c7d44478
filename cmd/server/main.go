package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RichardoC/libelnet-chat/internal/api"
	"github.com/RichardoC/libelnet-chat/internal/config"
	"github.com/RichardoC/libelnet-chat/internal/llm"
	"github.com/RichardoC/libelnet-chat/internal/metrics"
	"github.com/RichardoC/libelnet-chat/internal/ratelimit"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	companyContext, err := llm.LoadCompanyContext(cfg.CompanyContextFile)
	if err != nil {
		logger.Fatal("failed to load company context",
			zap.Error(err),
			zap.String("path", cfg.CompanyContextFile))
	}

	llmService, err := llm.New(cfg.OpenAI, companyContext)
	if err != nil {
		logger.Fatal("failed to initialize LLM service", zap.Error(err))
	}

	limiter := ratelimit.New(cfg.RateLimit.Max, cfg.RateLimit.Window)
	handler := api.NewHandler(cfg, llmService, limiter, metrics.New(), logger)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.NewRouter(handler, cfg.StaticDir),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server",
			zap.String("addr", cfg.Addr),
			zap.String("model", cfg.OpenAI.Model),
			zap.Int("rateLimitMax", cfg.RateLimit.Max),
			zap.Duration("rateLimitWindow", cfg.RateLimit.Window))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", zap.Error(err))
		}
	}
}
