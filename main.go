package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/RichardoC/libelnet-chat/internal/config"
	"github.com/RichardoC/libelnet-chat/internal/llm"
	"go.uber.org/zap"
)

// Sends one probe completion with the server's configuration and prints the
// result, for checking provider credentials without starting the relay.
func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if cfg.OpenAI.APIKey == "" {
		logger.Fatal("failed to probe provider", zap.Error(config.ErrMissingAPIKey))
	}

	svc, err := llm.New(cfg.OpenAI, "")
	if err != nil {
		logger.Fatal("failed to initialize OpenAI", zap.Error(err))
	}

	result, err := svc.Probe(context.Background())
	if err != nil {
		logger.Fatal("failed to generate completion",
			zap.Error(err),
			zap.String("model", svc.Model()))
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(os.Stdout, string(out))
}
