package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"ai-qa-assistant/internal/config"
	"ai-qa-assistant/internal/llm"
	"ai-qa-assistant/internal/logger"
	"ai-qa-assistant/internal/metrics"
	"ai-qa-assistant/internal/relay"
)

// Deps bundles the runtime dependencies of the API service.
type Deps struct {
	Config  config.Config
	Log     *slog.Logger
	LLM     llm.Client
	Metrics *metrics.Metrics
	Relay   *relay.Service
}

// Build loads .env (if any), config, and shared components.
func Build() (Deps, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Deps{}, fmt.Errorf("failed to load .env: %w", err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return Deps{}, err
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)

	return Assemble(cfg, log, buildLLM(cfg, log)), nil
}

// Assemble wires already-built parts together; tests use it with a mock
// client.
func Assemble(cfg config.Config, log *slog.Logger, client llm.Client) Deps {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)
	return Deps{
		Config:  cfg,
		Log:     log,
		LLM:     client,
		Metrics: m,
		Relay:   relay.New(client, log, m),
	}
}

func buildLLM(cfg config.Config, log *slog.Logger) llm.Client {
	if cfg.OpenAIKey == "" {
		log.Warn("OPENAI_API_KEY is empty; upstream calls will be rejected")
	}
	log.Info("using OpenAI LLM client", "model", cfg.LLMModel, "base_url", cfg.OpenAIBaseURL)
	return llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:  cfg.OpenAIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   openai.ChatModel(cfg.LLMModel),
		Timeout: cfg.UpstreamTimeout,
	}, log)
}
