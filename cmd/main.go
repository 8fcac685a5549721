package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/DonISO100/classical-works-processor/internal/chunker"
	"github.com/DonISO100/classical-works-processor/internal/config"
	"github.com/DonISO100/classical-works-processor/internal/downloader"
	"github.com/DonISO100/classical-works-processor/internal/httpapi"
	"github.com/DonISO100/classical-works-processor/internal/jobs"
	"github.com/DonISO100/classical-works-processor/internal/llm"
	"github.com/DonISO100/classical-works-processor/internal/ocr"
	"github.com/DonISO100/classical-works-processor/internal/persistence"
	"github.com/DonISO100/classical-works-processor/internal/pipeline"
	"github.com/DonISO100/classical-works-processor/internal/reconcile"
	"github.com/DonISO100/classical-works-processor/internal/translator"
	"github.com/DonISO100/classical-works-processor/internal/vectorindex"
	"github.com/DonISO100/classical-works-processor/pkg/log"
)

const drainTimeout = 30 * time.Second

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	_ = godotenv.Load()

	settingsPath := config.RuntimeSettingsFilePath()
	opts := make([]config.Option, 0, 1)
	if settings, err := config.LoadRuntimeSettingsFile(settingsPath); err == nil {
		opts = append(opts, config.WithRuntimeSettings(settings))
	} else if !os.IsNotExist(err) {
		log.Warn("Ignoring unreadable settings file %s: %v", settingsPath, err)
	}

	cfg, err := config.NewFromEnv(opts...)
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	logLevel := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	log.InitLogger(logLevel)
	if cfg.System.LogFile != "" {
		if fileLogger, err := log.NewFileLogger(cfg.System.LogFile, logLevel); err == nil {
			log.SetGlobalLogger(fileLogger.Logger)
		} else {
			log.Warn("Failed to open log file %s: %v", cfg.System.LogFile, err)
		}
	}

	store, err := persistence.NewSQLiteStore(cfg.DBPath())
	if err != nil {
		log.Fatal("Failed to open job store: %v", err)
	}
	defer store.Close()

	tracker := jobs.NewStatusTracker()

	translateBackend, err := translator.NewFromConfig(&llm.Config{
		APIKey:      cfg.LLM.APIKey,
		APIURL:      cfg.LLM.APIURL,
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		AppName:     cfg.LLM.AppName,
	})
	if err != nil {
		log.Fatal("Failed to build translation backend: %v", err)
	}
	translateStage := translator.NewReloadable(translateBackend)

	var indexer pipeline.Indexer
	switch cfg.Pipeline.IndexBackend {
	case config.IndexBackendRedis:
		redisIndexer, err := vectorindex.NewRedisIndexerFromURL(cfg.Pipeline.IndexRedisURL, cfg.Reconcile.ArtifactTTL)
		if err != nil {
			log.Fatal("Failed to connect redis index backend: %v", err)
		}
		defer redisIndexer.Close()
		indexer = redisIndexer
	default:
		indexer = vectorindex.NewSQLiteIndexer(store)
	}

	orchestrator, err := pipeline.NewOrchestrator(
		store,
		tracker,
		pipeline.Stages{
			Download:  downloader.New(cfg.Pipeline.MetadataAPIBase),
			Extract:   ocr.NewExtractor(),
			Segment:   chunker.New(cfg.Pipeline.ChunkSize),
			Translate: translateStage,
			Index:     indexer,
		},
		cfg.StorageDir(),
		pipeline.Options{
			StageTimeout:      cfg.Pipeline.StageTimeout,
			IndexFailureFatal: cfg.Pipeline.IndexFailureFatal,
		},
	)
	if err != nil {
		log.Fatal("Failed to build orchestrator: %v", err)
	}

	settingsStore, err := config.NewRuntimeSettingsStore(settingsPath, cfg.RuntimeSettings())
	if err != nil {
		log.Fatal("Failed to build settings store: %v", err)
	}

	launcher := pipeline.NewLauncher(store, tracker, orchestrator, func() []string {
		settings, err := settingsStore.GetRuntimeSettings()
		if err != nil || len(settings.AllowedLanguages) == 0 {
			return cfg.Pipeline.AllowedLanguages
		}
		return settings.AllowedLanguages
	})

	engine := cron.New()
	reconciler := reconcile.NewReconciler(store, tracker, engine, cfg.Reconcile.CronExpr, reconcile.Options{
		StaleAfter:  cfg.Reconcile.StaleAfter,
		ArtifactTTL: cfg.Reconcile.ArtifactTTL,
		ArtifactDir: cfg.StorageDir(),
	})

	// Applied settings: LLM changes swap the translation backend for
	// subsequent runs, cron changes move the reconcile sweep.
	applySettings := func(next config.RuntimeSettings) error {
		backend, err := translator.NewFromConfig(&llm.Config{
			APIKey:      next.LLMAPIKey,
			APIURL:      next.LLMAPIURL,
			Model:       next.LLMModel,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			AppName:     cfg.LLM.AppName,
		})
		if err != nil {
			return err
		}
		translateStage.Swap(backend)
		return reconciler.Reschedule(next.ReconcileCron)
	}

	httpSrv := httpapi.NewServer(launcher, store, tracker,
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithRuntimeSettingsApplier(applySettings),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runWithComponents(ctx, cfg, reconciler, engine, httpSrv); err != nil {
		log.Fatal("Service exited with error: %v", err)
	}

	launcher.Close()
	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := launcher.Drain(drainCtx); err != nil {
		log.Warn("Shutdown before all pipeline runs finished: %v", err)
	}
	log.Info("Service stopped")
}

// runWithComponents runs the cron engine and HTTP server until ctx is
// cancelled, then shuts both down.
func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	sched scheduler,
	engine cronEngine,
	httpSrv httpServer,
) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}
	engine.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP shutdown failed: %v", err)
		}
		<-engine.Stop().Done()
		return nil
	})
	return g.Wait()
}
