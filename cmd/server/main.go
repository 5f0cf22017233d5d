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

	"github.com/pricefeed/backend/config"
	httpDelivery "github.com/pricefeed/backend/internal/delivery/http"
	"github.com/pricefeed/backend/internal/infrastructure/metrics"
	"github.com/pricefeed/backend/internal/infrastructure/rules"
	"github.com/pricefeed/backend/internal/infrastructure/store"
	"github.com/pricefeed/backend/internal/logger"
	"github.com/pricefeed/backend/internal/normalizer"
	"github.com/pricefeed/backend/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		logger.GetDefault().Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Init(&logger.Config{
		Level:      logger.ParseLevel(cfg.Log.Level),
		Output:     os.Stdout,
		JSON:       cfg.Log.JSON,
		TimeFormat: time.RFC3339,
	})
	log := logger.GetDefault()

	log.Info("starting pricefeed backend",
		"environment", cfg.Server.Environment,
		"port", cfg.Server.Port,
		"store", cfg.Store.Type,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize infrastructure dependencies
	categoryStore, err := store.Open(ctx, store.Config{
		Type:        cfg.Store.Type,
		SQLitePath:  cfg.Store.SQLitePath,
		RedisURL:    cfg.Store.RedisURL,
		RedisPrefix: cfg.Store.RedisPrefix,
		SampleCap:   cfg.Mapping.SampleCap,
	})
	if err != nil {
		return fmt.Errorf("failed to open category store: %w", err)
	}
	defer categoryStore.Close()

	seed, err := rules.Load(cfg.Mapping.RulesFile)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	// Initialize usecase layer
	mapping := usecase.NewMappingService(
		categoryStore,
		usecase.NewTaxonomy(seed.Taxonomy),
		seed.Synonyms,
		usecase.MappingConfig{
			FuzzyThreshold:    cfg.Mapping.FuzzyThreshold,
			MinimumConfidence: cfg.Mapping.MinimumConfidence,
			MaxSuggestions:    cfg.Mapping.MaxSuggestions,
			EnableLearning:    cfg.Mapping.EnableLearning,
			LearningThreshold: cfg.Mapping.LearningThreshold,
			CacheSize:         cfg.Mapping.CacheSize,
		},
		log,
	)
	added, err := mapping.SeedRules(ctx, seed.Rules)
	if err != nil {
		return fmt.Errorf("failed to seed rules: %w", err)
	}

	log.Info("mapping engine ready",
		"taxonomy_nodes", mapping.Taxonomy().Len(),
		"seed_rules", len(seed.Rules),
		"seed_rules_added", added,
		"fuzzy_threshold", mapping.Config().FuzzyThreshold,
		"minimum_confidence", mapping.Config().MinimumConfidence,
	)

	shopConfigs, err := cfg.ShopConfigs()
	if err != nil {
		return err
	}
	registry := normalizer.DefaultRegistry(
		normalizer.Deps{Mapper: mapping, Validator: normalizer.NewValidator()},
		shopConfigs,
	)

	recorder := metrics.NewRecorder()
	pipeline := usecase.NewPipeline(
		registry,
		usecase.PipelineConfig{
			BatchSize:        cfg.Pipeline.BatchSize,
			MemoryCheckpoint: cfg.Pipeline.MemoryCheckpoint,
			Parallelism:      cfg.Pipeline.Parallelism,
		},
		recorder,
		log,
	)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(mapping, pipeline, registry, cfg.Server.MaxBodyBytes, log)
	router := httpDelivery.SetupRouter(cfg, handler, recorder.Handler(), log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", srv.Addr, "shops", registry.Shops())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
