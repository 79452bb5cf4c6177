package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/recap/internal/chatstore"
	"github.com/hyperengineering/recap/internal/embedding"
	"github.com/hyperengineering/recap/internal/job"
	"github.com/hyperengineering/recap/internal/retrieval"
	"github.com/hyperengineering/recap/internal/schedule"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Run a reporting job once, outside the schedule",
}

var reportFeedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Export the feedback CSV and mail it now",
	Args:  cobra.NoArgs,
	RunE:  runReportFeedback,
}

var reportCitationsCmd = &cobra.Command{
	Use:   "citations",
	Short: "Retrieve chunks for uncited answers in the current window and mail them now",
	Args:  cobra.NoArgs,
	RunE:  runReportCitations,
}

func init() {
	reportCmd.AddCommand(reportFeedbackCmd)
	reportCmd.AddCommand(reportCitationsCmd)
}

func runReportFeedback(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogger(cfg)

	db, err := openLocalStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	chats, err := chatstore.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer chats.Close()

	sender, err := newSender(cfg)
	if err != nil {
		return err
	}
	uploader, err := newUploader(cfg)
	if err != nil {
		return err
	}

	j := job.NewFeedbackJob(chats, sender, uploader, db,
		cfg.Report.AudienceEmails, cfg.Report.FetchChunkSize, nil)
	if err := j.Run(ctx); err != nil {
		return fmt.Errorf("feedback report: %w", err)
	}

	slog.Info("feedback report completed")
	return nil
}

func runReportCitations(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	initLogger(cfg)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	resolver, err := schedule.NewResolver(cfg.Report.CheckpointHours, cfg.Report.MinuteOffset, loc)
	if err != nil {
		return err
	}

	db, err := openLocalStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	chats, err := chatstore.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return err
	}
	defer chats.Close()

	embedder := embedding.NewOpenAI(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	retriever, err := retrieval.NewRetriever(db, embedder, retrieval.Options{
		K:      cfg.Retrieval.K,
		FetchK: cfg.Retrieval.FetchK,
		Lambda: cfg.Retrieval.LambdaMult,
	})
	if err != nil {
		return err
	}

	sender, err := newSender(cfg)
	if err != nil {
		return err
	}
	uploader, err := newUploader(cfg)
	if err != nil {
		return err
	}

	j := job.NewCitationGapJob(chats, retriever, resolver, sender, uploader, db,
		cfg.Report.DepartmentID, nil)
	if err := j.Run(ctx); err != nil {
		return fmt.Errorf("citation gap report: %w", err)
	}

	slog.Info("citation gap report completed")
	return nil
}
