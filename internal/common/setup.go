package common

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"ramp-quote-go/internal/aggregator"
	"ramp-quote-go/internal/api"
	"ramp-quote-go/internal/approval"
	"ramp-quote-go/internal/config"
	"ramp-quote-go/internal/constraints"
	"ramp-quote-go/internal/database"
	"ramp-quote-go/internal/httpclient"
	"ramp-quote-go/internal/metrics"
	"ramp-quote-go/internal/models"
	"ramp-quote-go/internal/providers"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via shell export, docker, etc.
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

type Services struct {
	DbService    *database.Service
	Recorder     metrics.Recorder
	Metrics      http.Handler
	Constraints  *constraints.Engine
	Orchestrator *approval.Orchestrator
	Providers    []providers.Provider
	Aggregator   *aggregator.Aggregator
	RampService  *api.RampService
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices wires the whole engine. surface is where checkouts are
// handed to the user; headless callers pass an *approval.Handoff.
func InitializeServices(ctx context.Context, cfg *models.Config, surface approval.Surface) (*Services, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	services := &Services{DbService: dbService, Recorder: metrics.NoopRecorder{}}
	if cfg.Engine.MetricsEnabled {
		recorder := metrics.NewPrometheusRecorder()
		services.Recorder = recorder
		services.Metrics = recorder.Handler()
	}

	httpClient, err := httpclient.NewHTTPClient(cfg.HTTP)
	if err != nil {
		dbService.Close()
		return nil, fmt.Errorf("unable to build http client: %w", err)
	}

	services.Constraints = constraints.NewEngine()
	if err := loadRules(ctx, cfg.Engine, httpClient, services.Constraints); err != nil {
		dbService.Close()
		return nil, err
	}

	zap.L().Info("Loading provider configuration", zap.String("file", cfg.Engine.ProvidersFile))
	providersFile, err := LoadProvidersFile(cfg.Engine.ProvidersFile)
	if err != nil {
		dbService.Close()
		return nil, err
	}
	enabled := providersFile.Enabled()
	config.ApplySecrets(enabled)

	services.Orchestrator = approval.NewOrchestrator(approval.OrchestratorConfig{
		Surface:  surface,
		Sink:     dbService,
		Recorder: services.Recorder,
	})

	services.Providers, err = BuildProviders(DefaultRegistry(), enabled, providers.Deps{
		HTTP:         httpClient,
		Store:        dbService,
		Assets:       providersFile.Catalog(),
		Constraints:  services.Constraints,
		Orchestrator: services.Orchestrator,
		Recorder:     services.Recorder,
		Platform:     cfg.Engine.Platform,
		ReturnURL:    cfg.Engine.ReturnURLBase,
		RateLimit:    cfg.HTTP.RateLimit,
		RateBurst:    cfg.HTTP.RateBurst,
	})
	if err != nil {
		dbService.Close()
		return nil, err
	}
	if len(services.Providers) == 0 {
		zap.L().Warn("No providers enabled", zap.String("file", cfg.Engine.ProvidersFile))
	}

	services.Aggregator = aggregator.New(aggregator.Config{
		Providers:   services.Providers,
		Constraints: services.Constraints,
		Timeout:     cfg.Engine.ProviderTimeout,
		Recorder:    services.Recorder,
	})

	services.RampService, err = api.NewRampService(api.RampServiceConfig{
		Aggregator:     services.Aggregator,
		Orchestrator:   services.Orchestrator,
		Events:         dbService,
		Health:         dbService,
		SweepInterval:  cfg.Engine.QuoteSweepInterval,
		WarmupInterval: cfg.Engine.WarmupInterval,
	})
	if err != nil {
		dbService.Close()
		return nil, err
	}

	zap.L().Info("Ramp engine initialized",
		zap.Int("providers", len(services.Providers)),
		zap.String("platform", string(cfg.Engine.Platform)),
		zap.Bool("metrics", cfg.Engine.MetricsEnabled))
	return services, nil
}

// InitializeDatabaseOnly initializes just the database service without the
// provider stack. Useful for identity and audit commands.
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

func (cs *Services) Close() {
	if cs.RampService != nil {
		cs.RampService.Stop()
	}
	if cs.DbService != nil {
		cs.DbService.Close()
	}
}

// loadRules installs the remote rule set as the engine's veto. A file wins
// over a URL when both are configured.
func loadRules(ctx context.Context, cfg models.EngineConfig, httpClient *http.Client, engine *constraints.Engine) error {
	var (
		rules *constraints.RuleSet
		err   error
	)
	switch {
	case cfg.RulesFile != "":
		zap.L().Info("Loading constraint rules", zap.String("file", cfg.RulesFile))
		rules, err = constraints.LoadRuleSet(cfg.RulesFile)
	case cfg.RulesURL != "":
		zap.L().Info("Fetching constraint rules", zap.String("url", cfg.RulesURL))
		rules, err = constraints.FetchRuleSet(ctx, httpclient.New("rules", cfg.RulesURL, httpClient), cfg.RulesURL)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("unable to load constraint rules: %w", err)
	}
	engine.SetPredicate(rules)
	return nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
