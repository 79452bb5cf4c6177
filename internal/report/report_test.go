package report

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/hyperengineering/recap/internal/types"
)

func strptr(s string) *string { return &s }

func TestCSVBuilder_HeaderAndRows(t *testing.T) {
	b, err := NewCSVBuilder()
	if err != nil {
		t.Fatalf("NewCSVBuilder: %v", err)
	}

	created := time.Date(2025, time.March, 10, 6, 15, 0, 0, time.UTC)
	rows := []types.FeedbackRow{
		{
			UserID:              "u1",
			Username:            "asha",
			Email:               "asha@example.com",
			ChatID:              "c1",
			ConvID:              "conv1",
			Question:            "why did the feeder trip?",
			InterpretedQuestion: "feeder trip cause",
			RatingFactual:       strptr("yes"),
			Comment:             strptr("good answer"),
			Response:            "overcurrent relay operated",
			Citations:           `[{"file":"manual.pdf"}]`,
			CreatedAt:           created,
		},
		{
			UserID:   "u2",
			Username: "dev",
			Email:    "dev@example.com",
			ChatID:   "c2",
			Question: "no feedback row",
			Response: "answer",
		},
	}
	if err := b.Append(rows); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if b.Rows() != 2 {
		t.Errorf("Rows = %d, want 2", b.Rows())
	}

	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	records, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	if err != nil {
		t.Fatalf("parse produced CSV: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("got %d records, want header + 2 rows", len(records))
	}
	if records[0][0] != "user_id" || records[0][7] != "Is response factually correct?" {
		t.Errorf("unexpected header: %v", records[0])
	}
	if records[1][1] != "asha" || records[1][10] != "good answer" {
		t.Errorf("unexpected first row: %v", records[1])
	}
	// Missing feedback fields export as empty strings.
	if records[2][7] != "" || records[2][10] != "" {
		t.Errorf("missing feedback should be empty: %v", records[2])
	}
	if records[1][13] != "2025-03-10T06:15:00Z" {
		t.Errorf("created_at = %q", records[1][13])
	}
}

func TestCSVBuilder_AppendInChunks(t *testing.T) {
	b, err := NewCSVBuilder()
	if err != nil {
		t.Fatalf("NewCSVBuilder: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := b.Append([]types.FeedbackRow{{UserID: "u", Question: "q"}}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	// Header must appear exactly once.
	if got := strings.Count(string(data), "user_id"); got != 1 {
		t.Errorf("header written %d times, want 1", got)
	}
	if b.Rows() != 3 {
		t.Errorf("Rows = %d, want 3", b.Rows())
	}
}

func TestNormalizeResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "json string unwrapped", in: `"plain answer"`, want: "plain answer"},
		{name: "plain text untouched", in: "plain answer", want: "plain answer"},
		{name: "json object untouched", in: `{"k":"v"}`, want: `{"k":"v"}`},
		{name: "empty", in: "", want: ""},
		{name: "whitespace only", in: "  ", want: "  "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeResponse(tt.in); got != tt.want {
				t.Errorf("normalizeResponse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFilename(t *testing.T) {
	now := time.Date(2025, time.March, 2, 10, 0, 0, 0, time.UTC)
	if got := Filename(now); got != "feedback_data_02-03-2025.csv" {
		t.Errorf("Filename = %q", got)
	}
}

func TestHTMLBody(t *testing.T) {
	metrics := types.Metrics{
		TotalChats:    150,
		TotalFeedback: 42,
		TotalUncited:  9,
		ChatsToday:    12,
		FeedbackToday: 3,
		UncitedToday:  1,
	}
	now := time.Date(2025, time.March, 10, 7, 45, 10, 0, time.UTC)

	body, err := HTMLBody(metrics, now)
	if err != nil {
		t.Fatalf("HTMLBody: %v", err)
	}

	for _, want := range []string{
		"<td>150</td>", "<td>42</td>", "<td>9</td>",
		"<td>12</td>", "<td>3</td>", "<td>1</td>",
		"10-03-2025",
		"07:45:10 (UTC)",
		"13:15:10 (IST)",
		"Answers without Citations",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q", want)
		}
	}
}

func TestChunkReport(t *testing.T) {
	results := []QuestionChunks{
		{
			Question: "transformer oil temperature limits",
			Chunks: []types.RetrievedChunk{
				{FileID: "f1", MMRScore: 0.83, Directory: "/docs", Filename: "manual.pdf", Page: 12, Content: "oil must stay below 95C"},
			},
		},
		{Question: "unanswerable question"},
	}

	text := ChunkReport(results)

	for _, want := range []string{
		"=== Question 1: transformer oil temperature limits ===",
		"Chunk 1:",
		"File ID: f1",
		"MMR Score: 0.83",
		"Page Number: 12",
		"oil must stay below 95C",
		"=== Question 2: unanswerable question ===",
		"No relevant chunks found.",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestChunkReportSubject(t *testing.T) {
	start := time.Date(2025, time.March, 9, 13, 30, 0, 0, time.UTC)
	end := time.Date(2025, time.March, 10, 4, 30, 0, 0, time.UTC)
	got := ChunkReportSubject(start, end)
	want := "Citation Gap Chunks 09-03-2025 13:30 to 10-03-2025 04:30"
	if got != want {
		t.Errorf("subject = %q, want %q", got, want)
	}
}
