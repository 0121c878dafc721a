package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"aegis/internal/adapters/config"
	"aegis/internal/adapters/errors/noop"
	"aegis/internal/adapters/errors/sentry"
	"aegis/internal/agent"
	"aegis/internal/filings"
	"aegis/internal/gateway"
	"aegis/internal/guardrails"
	"aegis/internal/metrics"
	"aegis/internal/tools"
	"aegis/pkg/errors"
	"aegis/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	if err := initLogger(cfg); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	log := logger.Get()
	log.Infof("Starting %s in %s mode", cfg.App.Name, cfg.App.Env)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize error tracker
	errorTracker := initErrorTracker(cfg, log)
	logger.SetErrorTracker(errorTracker)

	metrics.Register()
	startMetricsServer(cfg, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Pull the 10-K corpus before serving; a failed fetch degrades the
	// research tool but never blocks startup
	corpus := filings.NewLoader(cfg.Data.Dir, cfg.Data.EdgarIdentity).Load(ctx, cfg.Data.FilingTicker)

	gw, err := initGateway(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to initialize model gateway: %v", err)
	}

	registry := tools.NewCatalog(corpus)
	pipeline := guardrails.NewPipeline(gw, guardrails.Config{
		MaxOrderShares: cfg.Guardrails.MaxOrderShares,
		StageTimeout:   cfg.Guardrails.StageTimeout,
		Ceiling:        cfg.AI.LLMTimeout,
	})
	service := agent.NewService(agent.NewController(gw, registry, pipeline, cfg.Agent.MaxToolRounds))

	log.Info("System initialized successfully")

	runREPL(ctx, service, log)

	shutdown(errorTracker, log)
}

// loadConfig loads application configuration from environment
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// initLogger initializes structured logging
func initLogger(cfg *config.Config) error {
	return logger.Init(cfg.App.LogLevel, cfg.App.Env)
}

// initErrorTracker initializes error tracking (Sentry or no-op)
func initErrorTracker(cfg *config.Config, log *logger.Logger) errors.Tracker {
	if !cfg.ErrorTracking.Enabled || cfg.ErrorTracking.SentryDSN == "" {
		log.Info("Error tracking disabled")
		return noop.New()
	}

	tracker, err := sentry.New(cfg.ErrorTracking.SentryDSN, cfg.ErrorTracking.Environment)
	if err != nil {
		log.Warnf("Failed to initialize Sentry: %v", err)
		return noop.New()
	}

	log.Info("Error tracking initialized (Sentry)")
	return tracker
}

// initGateway wires the role-to-backend bindings: fast and guard models run
// on local Ollama, the powerful planning model runs on Gemini.
func initGateway(ctx context.Context, cfg *config.Config, log *logger.Logger) (*gateway.Gateway, error) {
	ollama := gateway.NewOllamaBackend(cfg.AI.OllamaBaseURL)
	gemini, err := gateway.NewGeminiBackend(ctx, cfg.AI.GeminiKey)
	if err != nil {
		return nil, err
	}

	gw := gateway.New(
		gateway.WithTimeout(cfg.AI.LLMTimeout),
		gateway.WithMaxRetries(cfg.AI.MaxRetries),
	)
	gw.RegisterRole(gateway.RoleFast, ollama, cfg.AI.ModelFast, cfg.AI.RateLimitPerMinute)
	gw.RegisterRole(gateway.RoleGuard, ollama, cfg.AI.ModelGuard, cfg.AI.RateLimitPerMinute)
	gw.RegisterRole(gateway.RolePowerful, gemini, cfg.AI.ModelPowerful, cfg.AI.RateLimitPerMinute)

	log.Infof("Model gateway ready: fast=%s guard=%s powerful=%s",
		cfg.AI.ModelFast, cfg.AI.ModelGuard, cfg.AI.ModelPowerful)
	return gw, nil
}

// startMetricsServer exposes Prometheus metrics on a separate listener
func startMetricsServer(cfg *config.Config, log *logger.Logger) {
	if cfg.App.MetricsAddr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:         cfg.App.MetricsAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Metrics server listening on %s", cfg.App.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("Metrics server error: %v", err)
		}
	}()
}

// runREPL drives a single conversation over stdin until EOF or a shutdown
// signal cancels the context.
func runREPL(ctx context.Context, service *agent.Service, log *logger.Logger) {
	conversationID := uuid.NewString()
	log.Infof("Conversation started: %s", conversationID)

	fmt.Println("Type a message and press enter. Ctrl-D exits.")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				log.Errorf("Input error: %v", err)
			}
			return
		}

		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		select {
		case <-ctx.Done():
			return
		default:
		}

		answer, err := service.HandleMessage(ctx, conversationID, text)
		if err != nil {
			if errors.Is(err, errors.ErrCancelled) {
				return
			}
			log.Errorf("Turn failed: %v", err)
			fmt.Println("Sorry, something went wrong handling that message.")
			continue
		}

		fmt.Println(answer)
	}
}

// shutdown flushes the error tracker before exit
func shutdown(errorTracker errors.Tracker, log *logger.Logger) {
	log.Info("Shutting down...")

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := errorTracker.Flush(flushCtx); err != nil {
		log.Warnf("Failed to flush error tracker: %v", err)
	}

	log.Info("Shutdown complete")
}
