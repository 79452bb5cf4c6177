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
	"github.com/hyperengineering/recap/internal/schedule"
	"github.com/hyperengineering/recap/internal/store"
	"github.com/hyperengineering/recap/internal/types"
)

// QuestionReader is the chat store subset the citation gap job needs.
type QuestionReader interface {
	UncitedQuestions(ctx context.Context, departmentID string, since time.Time) ([]string, error)
}

// ChunkRetriever finds relevant chunks for a question.
// Implemented by retrieval.Retriever.
type ChunkRetriever interface {
	Retrieve(ctx context.Context, question string) ([]types.RetrievedChunk, error)
}

// CitationGapJob re-runs retrieval for uncited answers in the most recent
// report window and mails the retrieved chunks.
type CitationGapJob struct {
	reader       QuestionReader
	retriever    ChunkRetriever
	resolver     *schedule.Resolver
	sender       mailer.Sender
	uploader     archive.Uploader
	runs         store.RunLog
	departmentID string
	clock        clockwork.Clock
}

// NewCitationGapJob assembles the citation gap job.
func NewCitationGapJob(reader QuestionReader, retriever ChunkRetriever, resolver *schedule.Resolver, sender mailer.Sender, uploader archive.Uploader, runs store.RunLog, departmentID string, clock clockwork.Clock) *CitationGapJob {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &CitationGapJob{
		reader:       reader,
		retriever:    retriever,
		resolver:     resolver,
		sender:       sender,
		uploader:     uploader,
		runs:         runs,
		departmentID: departmentID,
		clock:        clock,
	}
}

// Run executes one citation gap cycle.
func (j *CitationGapJob) Run(ctx context.Context) error {
	started := j.clock.Now().UTC()

	window, err := j.resolver.Resolve(started)
	if err != nil {
		j.record(ctx, started, nil, 0, err)
		return err
	}

	questions, err := j.run(ctx, started, window)
	j.record(ctx, started, &window, questions, err)
	return err
}

func (j *CitationGapJob) run(ctx context.Context, now time.Time, window schedule.Window) (int, error) {
	questions, err := j.reader.UncitedQuestions(ctx, j.departmentID, window.Start)
	if err != nil {
		return 0, fmt.Errorf("fetch uncited questions: %w", err)
	}
	if len(questions) == 0 {
		slog.Info("no uncited questions in window",
			"job", types.JobCitationGap,
			"window_start", window.Start,
			"window_end", window.End,
		)
		return 0, nil
	}

	results := make([]report.QuestionChunks, 0, len(questions))
	for _, question := range questions {
		chunks, err := j.retriever.Retrieve(ctx, question)
		if err != nil {
			return len(questions), fmt.Errorf("retrieve chunks for %q: %w", question, err)
		}
		results = append(results, report.QuestionChunks{Question: question, Chunks: chunks})
	}

	text := report.ChunkReport(results)
	filename := report.ChunkReportFilename(now)

	if err := j.sender.Send(mailer.Message{
		Subject:        report.ChunkReportSubject(window.Start, window.End),
		HTMLBody:       fmt.Sprintf("<p>Retrieved chunks for %d uncited questions. See attachment.</p>", len(questions)),
		Attachment:     []byte(text),
		AttachmentName: filename,
	}); err != nil {
		return len(questions), fmt.Errorf("send citation gap report: %w", err)
	}

	if err := j.uploader.Upload(ctx, types.JobCitationGap, filename, []byte(text), "text/plain"); err != nil {
		slog.Warn("report archive failed", "job", types.JobCitationGap, "error", err)
	}

	slog.Info("citation gap report sent",
		"job", types.JobCitationGap,
		"questions", len(questions),
		"window_start", window.Start,
		"window_end", window.End,
	)
	return len(questions), nil
}

func (j *CitationGapJob) record(ctx context.Context, started time.Time, window *schedule.Window, questions int, runErr error) {
	run := types.ReportRun{
		Job:        types.JobCitationGap,
		Questions:  questions,
		Status:     types.RunSucceeded,
		StartedAt:  started,
		FinishedAt: j.clock.Now().UTC(),
	}
	if window != nil {
		start, end := window.Start, window.End
		run.WindowStart = &start
		run.WindowEnd = &end
	}
	if runErr != nil {
		run.Status = types.RunFailed
		run.Error = runErr.Error()
	}
	if err := j.runs.RecordRun(ctx, run); err != nil {
		slog.Error("record run failed", "job", types.JobCitationGap, "error", err)
	}
}
