// Package job wires the collaborators into the two reporting jobs: the
// feedback CSV export and the citation gap chunk retrieval. Jobs run
// sequentially, abort on the first collaborator failure, and record every
// outcome in the run log; the scheduler re-invokes them at the next
// checkpoint.
package job

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/hyperengineering/recap/internal/archive"
	"github.com/hyperengineering/recap/internal/mailer"
	"github.com/hyperengineering/recap/internal/report"
	"github.com/hyperengineering/recap/internal/store"
	"github.com/hyperengineering/recap/internal/types"
)

// FeedbackReader is the chat store subset the feedback job needs.
type FeedbackReader interface {
	FeedbackRows(ctx context.Context, emails []string, chunkSize int, fn func([]types.FeedbackRow) error) (int, error)
	Metrics(ctx context.Context, emails []string, dayStart, dayEnd time.Time) (types.Metrics, error)
}

// FeedbackJob exports the joined feedback data to CSV and mails it with
// headline metrics.
type FeedbackJob struct {
	reader    FeedbackReader
	sender    mailer.Sender
	uploader  archive.Uploader
	runs      store.RunLog
	emails    []string
	chunkSize int
	clock     clockwork.Clock
}

// NewFeedbackJob assembles the feedback report job.
func NewFeedbackJob(reader FeedbackReader, sender mailer.Sender, uploader archive.Uploader, runs store.RunLog, emails []string, chunkSize int, clock clockwork.Clock) *FeedbackJob {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &FeedbackJob{
		reader:    reader,
		sender:    sender,
		uploader:  uploader,
		runs:      runs,
		emails:    emails,
		chunkSize: chunkSize,
		clock:     clock,
	}
}

// Run executes one feedback report cycle.
func (j *FeedbackJob) Run(ctx context.Context) error {
	started := j.clock.Now().UTC()
	rows, err := j.run(ctx, started)
	j.record(ctx, started, rows, err)
	return err
}

func (j *FeedbackJob) run(ctx context.Context, now time.Time) (int, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	metrics, err := j.reader.Metrics(ctx, j.emails, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("fetch metrics: %w", err)
	}

	builder, err := report.NewCSVBuilder()
	if err != nil {
		return 0, err
	}
	rows, err := j.reader.FeedbackRows(ctx, j.emails, j.chunkSize, builder.Append)
	if err != nil {
		return rows, fmt.Errorf("fetch feedback rows: %w", err)
	}

	csvData, err := builder.Bytes()
	if err != nil {
		return rows, err
	}

	body, err := report.HTMLBody(metrics, now)
	if err != nil {
		return rows, err
	}

	filename := report.Filename(now)
	if err := j.sender.Send(mailer.Message{
		Subject:        report.Subject(now),
		HTMLBody:       body,
		Attachment:     csvData,
		AttachmentName: filename,
	}); err != nil {
		return rows, fmt.Errorf("send feedback report: %w", err)
	}

	if err := j.uploader.Upload(ctx, types.JobFeedbackReport, filename, csvData, "text/csv"); err != nil {
		// The report reached its recipients; a failed archive is not a
		// failed run.
		slog.Warn("report archive failed", "job", types.JobFeedbackReport, "error", err)
	}

	slog.Info("feedback report sent",
		"job", types.JobFeedbackReport,
		"rows", rows,
		"chats_total", metrics.TotalChats,
		"uncited_total", metrics.TotalUncited,
	)
	return rows, nil
}

func (j *FeedbackJob) record(ctx context.Context, started time.Time, rows int, runErr error) {
	run := types.ReportRun{
		Job:        types.JobFeedbackReport,
		Rows:       rows,
		Status:     types.RunSucceeded,
		StartedAt:  started,
		FinishedAt: j.clock.Now().UTC(),
	}
	if runErr != nil {
		run.Status = types.RunFailed
		run.Error = runErr.Error()
	}
	if err := j.runs.RecordRun(ctx, run); err != nil {
		slog.Error("record run failed", "job", types.JobFeedbackReport, "error", err)
	}
}
