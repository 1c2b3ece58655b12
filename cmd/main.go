package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/lekver/scribed/internal/config"
	"github.com/lekver/scribed/internal/httpapi"
	"github.com/lekver/scribed/internal/jobs"
	"github.com/lekver/scribed/internal/media"
	"github.com/lekver/scribed/internal/persistence"
	"github.com/lekver/scribed/internal/service"
	"github.com/lekver/scribed/internal/transcribe"
	"github.com/lekver/scribed/pkg/log"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	if cfg.Server.LogFile != "" {
		if err := log.InitFileLogger(cfg.Server.LogFile, log.ParseLevel(cfg.Server.LogLevel)); err != nil {
			log.Fatal("Failed to open log file: %v", err)
		}
	} else {
		log.InitLogger(log.ParseLevel(cfg.Server.LogLevel))
	}

	for _, dir := range []string{cfg.Storage.UploadDir, cfg.Storage.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal("Failed to create directory %s: %v", dir, err)
		}
	}

	store, err := persistence.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		log.Fatal("Failed to open store: %v", err)
	}
	defer store.Close()

	ffmpeg := media.NewFFmpeg()
	acquirer := media.NewAcquirer(cfg.Storage.UploadDir)
	backends := map[jobs.Method]transcribe.Backend{
		jobs.MethodLocal: transcribe.NewLocalBackend(
			cfg.Transcribe.WhisperBin,
			cfg.Transcribe.WhisperModel,
		),
		jobs.MethodRemote: transcribe.NewRemoteBackend(
			cfg.Transcribe.RemoteAPIURL,
			cfg.Transcribe.RemoteAPIKey,
			cfg.Transcribe.RatePerMinute,
			ffmpeg,
		),
	}

	runner := jobs.NewRunner(store, acquirer, ffmpeg, ffmpeg, backends, store, cfg.Storage.TempDir)
	scheduler := jobs.NewScheduler(store, runner.Run)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler.Start(ctx)
	defer scheduler.Stop()

	sweepCron := cron.New()
	sweeper := service.NewArtifactSweeper(cfg.Storage.TempDir, cfg.Sweep, sweepCron)
	if err := sweeper.Schedule(ctx); err != nil {
		log.Fatal("Failed to schedule artifact sweep: %v", err)
	}
	sweepCron.Start()
	defer sweepCron.Stop()

	server := httpapi.NewServer(
		store,
		scheduler,
		cfg.Storage.UploadDir,
		cfg.Transcribe.MaxUploadBytes,
		httpapi.SubmissionDefaults{
			Method:       jobs.Method(cfg.Transcribe.DefaultMethod),
			LanguageHint: cfg.Transcribe.DefaultLanguage,
			Timestamps:   cfg.Transcribe.AddTimestamps,
		},
		httpapi.WithCostLedger(store),
		httpapi.WithSweepCron(cfg.Sweep.CronExpr),
		httpapi.WithArtifactPath(runner.AudioArtifactPath),
	)

	go func() {
		log.Info("Listening on %s", cfg.Server.ListenAddr)
		if err := server.ListenAndServe(cfg.Server.ListenAddr); err != nil {
			log.Error("HTTP server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown: %v", err)
	}
}
