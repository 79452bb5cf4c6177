package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/hyperengineering/recap/internal/api"
	"github.com/hyperengineering/recap/internal/chatstore"
	"github.com/hyperengineering/recap/internal/config"
	"github.com/hyperengineering/recap/internal/embedding"
	"github.com/hyperengineering/recap/internal/job"
	"github.com/hyperengineering/recap/internal/retrieval"
	"github.com/hyperengineering/recap/internal/schedule"
	"github.com/hyperengineering/recap/internal/types"
	"github.com/hyperengineering/recap/internal/worker"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "recap",
	Short: "Recap - scheduled chat feedback and citation gap reporting",
	RunE:  run,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(runsCmd)
}

// run starts the long-running service: the checkpoint scheduler, the
// embedding coordinator, and the status API.
func run(cmd *cobra.Command, args []string) error {
	// 1. Signal handling
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// 2. Load configuration (.env first, for local runs)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 3. Initialize logger
	initLogger(cfg)
	slog.Info("configuration loaded")

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	resolver, err := schedule.NewResolver(cfg.Report.CheckpointHours, cfg.Report.MinuteOffset, loc)
	if err != nil {
		return err
	}

	// 4. Initialize local reporting database (migrations, WAL mode)
	db, err := openLocalStore(cfg)
	if err != nil {
		return err
	}
	slog.Info("local store initialized", "path", cfg.Index.Path)

	// 5. Connect to the platform database
	chats, err := chatstore.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	slog.Info("platform database connected", "host", cfg.Database.Host)

	// 6. Embedder and retriever
	embedder := embedding.NewOpenAI(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	slog.Info("embedder initialized", "model", cfg.Embedding.Model)

	retriever, err := retrieval.NewRetriever(db, embedder, retrieval.Options{
		K:      cfg.Retrieval.K,
		FetchK: cfg.Retrieval.FetchK,
		Lambda: cfg.Retrieval.LambdaMult,
	})
	if err != nil {
		return err
	}

	// 7. Mail and archive
	sender, err := newSender(cfg)
	if err != nil {
		return err
	}
	uploader, err := newUploader(cfg)
	if err != nil {
		return err
	}

	// 8. Jobs and workers
	feedbackJob := job.NewFeedbackJob(chats, sender, uploader, db,
		cfg.Report.AudienceEmails, cfg.Report.FetchChunkSize, nil)
	citationJob := job.NewCitationGapJob(chats, retriever, resolver, sender, uploader, db,
		cfg.Report.DepartmentID, nil)

	scheduler := worker.NewScheduler(cfg.Report.CheckpointHours, cfg.Report.MinuteOffset, loc,
		[]worker.NamedJob{
			{Name: types.JobFeedbackReport, Job: feedbackJob},
			{Name: types.JobCitationGap, Job: citationJob},
		}, nil)
	coordinator := worker.NewEmbeddingCoordinator(db, embedder, 5*time.Minute, cfg.Embedding.BatchSize)

	var wg sync.WaitGroup
	startWorker(ctx, &wg, "scheduler", scheduler.Run)
	startWorker(ctx, &wg, "embedding-coordinator", coordinator.Run)

	// 9. Status API
	handler := api.NewHandler(db, resolver, Version, nil)
	router := api.NewRouter(handler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout),
	}

	go func() {
		slog.Info("server starting", "address", addr)
		// ErrServerClosed is the expected error on graceful Shutdown().
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	// 10. Block until signal received
	<-ctx.Done()
	slog.Info("shutdown initiated")

	// 11. Graceful shutdown sequence
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	wg.Wait()

	if err := chats.Close(); err != nil {
		slog.Error("platform database close error", "error", err)
	}
	if err := db.Close(); err != nil {
		slog.Error("local store close error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// loadConfig loads .env (if present) and the layered configuration.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	return config.Load()
}

// initLogger installs the default slog handler per the log configuration.
func initLogger(cfg *config.Config) {
	level := parseLogLevel(cfg.Log.Level)
	var handler slog.Handler
	if cfg.Log.Format == "text" {
		handler = tint.NewHandler(os.Stdout, &tint.Options{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// startWorker launches a background worker goroutine that respects context
// cancellation. Workers are tracked via WaitGroup for graceful shutdown.
func startWorker(ctx context.Context, wg *sync.WaitGroup, name string, fn func(ctx context.Context)) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		slog.Info("worker started", "worker", name)
		fn(ctx)
		slog.Info("worker stopped", "worker", name)
	}()
}
