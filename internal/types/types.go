// Package types holds the domain types shared across the reporting jobs.
package types

import "time"

// FeedbackRow is one joined row of the feedback export: a chat with its user
// and any feedback left on it. Feedback fields are pointers so the CSV layer
// can distinguish missing feedback from empty answers.
type FeedbackRow struct {
	UserID              string
	Username            string
	Email               string
	ChatID              string
	ConvID              string
	Question            string
	InterpretedQuestion string
	RatingFactual       *string
	RatingRelevant      *string
	RatingReferences    *string
	Comment             *string
	Response            string
	Citations           string
	CreatedAt           time.Time
}

// Metrics are the headline counts shown in the feedback report email.
type Metrics struct {
	TotalChats    int64
	TotalFeedback int64
	TotalUncited  int64
	ChatsToday    int64
	FeedbackToday int64
	UncitedToday  int64
}

// Chunk is a document fragment in the local retrieval index.
type Chunk struct {
	ID        string
	FileID    string
	Directory string
	Filename  string
	Page      int
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// RetrievedChunk is a chunk selected for a question, annotated with its
// diversity-adjusted relevance score.
type RetrievedChunk struct {
	FileID    string
	MMRScore  float64
	Directory string
	Filename  string
	Page      int
	Content   string
}

// RunStatus describes the outcome of a job run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Job names recorded in the run log.
const (
	JobFeedbackReport = "feedback-report"
	JobCitationGap    = "citation-gap"
)

// ReportRun is one recorded execution of a reporting job.
type ReportRun struct {
	ID          string     `json:"id"`
	Job         string     `json:"job"`
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
	Rows        int        `json:"rows"`
	Questions   int        `json:"questions"`
	Status      RunStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	FinishedAt  time.Time  `json:"finished_at"`
}
