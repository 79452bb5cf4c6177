package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/hyperengineering/recap/internal/types"
)

// istOffset shifts UTC to IST for the secondary time display in the email.
var istOffset = 5*time.Hour + 30*time.Minute

var bodyTemplate = template.Must(template.New("feedback-email").Parse(`<html>
<body>
    <p>Hello,</p>

    <p>Please find the attached feedback data CSV file.</p>

    <p><strong>Key Metrics:</strong></p>
    <table border="1" cellpadding="5" cellspacing="0" style="border-collapse: collapse; width: 50%;">
        <thead>
            <tr>
                <th>Metric</th>
                <th>Total</th>
                <th>Today</th>
            </tr>
        </thead>
        <tbody>
            <tr>
                <td><strong>Questions Asked</strong></td>
                <td>{{.Metrics.TotalChats}}</td>
                <td>{{.Metrics.ChatsToday}}</td>
            </tr>
            <tr>
                <td><strong>Feedback Given</strong></td>
                <td>{{.Metrics.TotalFeedback}}</td>
                <td>{{.Metrics.FeedbackToday}}</td>
            </tr>
            <tr style="color: red;">
                <td><strong>Answers without Citations</strong></td>
                <td>{{.Metrics.TotalUncited}}</td>
                <td>{{.Metrics.UncitedToday}}</td>
            </tr>
        </tbody>
    </table>

    <p><strong>Date:</strong> {{.Date}}<br>
    <strong>Time:</strong> {{.TimeUTC}} (UTC) / {{.TimeIST}} (IST)</p>

    <p>Best regards,<br>
    Reporting Team</p>
</body>
</html>
`))

// Subject returns the dated feedback report subject line.
func Subject(now time.Time) string {
	return fmt.Sprintf("Feedback Data CSV %s", now.Format("02-01-2006"))
}

// HTMLBody renders the feedback report email body for the given metrics.
func HTMLBody(metrics types.Metrics, now time.Time) (string, error) {
	utc := now.UTC()
	data := struct {
		Metrics types.Metrics
		Date    string
		TimeUTC string
		TimeIST string
	}{
		Metrics: metrics,
		Date:    utc.Format("02-01-2006"),
		TimeUTC: utc.Format("15:04:05"),
		TimeIST: utc.Add(istOffset).Format("15:04:05"),
	}

	var buf bytes.Buffer
	if err := bodyTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email body: %w", err)
	}
	return buf.String(), nil
}

// QuestionChunks pairs a question with the chunks retrieved for it.
type QuestionChunks struct {
	Question string
	Chunks   []types.RetrievedChunk
}

// ChunkReport renders the citation gap report: for each question, the
// retrieved chunks with their scores and source locations.
func ChunkReport(results []QuestionChunks) string {
	var b strings.Builder

	for i, entry := range results {
		fmt.Fprintf(&b, "\n\n=== Question %d: %s ===\n\n", i+1, entry.Question)

		if len(entry.Chunks) == 0 {
			b.WriteString("No relevant chunks found.\n")
			continue
		}

		for j, chunk := range entry.Chunks {
			fmt.Fprintf(&b, "\nChunk %d:\n", j+1)
			fmt.Fprintf(&b, "File ID: %s\n", chunk.FileID)
			fmt.Fprintf(&b, "MMR Score: %g\n", chunk.MMRScore)
			fmt.Fprintf(&b, "File Directory: %s\n", chunk.Directory)
			fmt.Fprintf(&b, "Filename: %s\n", chunk.Filename)
			fmt.Fprintf(&b, "Page Number: %d\n", chunk.Page)
			fmt.Fprintf(&b, "Page Content:\n%s\n", chunk.Content)
			b.WriteString("\n" + strings.Repeat("-", 100) + "\n")
		}
	}

	return b.String()
}

// ChunkReportFilename returns the dated citation gap report filename.
func ChunkReportFilename(now time.Time) string {
	return fmt.Sprintf("citation_gap_chunks_%s.txt", now.Format("02-01-2006"))
}

// ChunkReportSubject returns the citation gap email subject for a window.
func ChunkReportSubject(windowStart, windowEnd time.Time) string {
	return fmt.Sprintf("Citation Gap Chunks %s to %s",
		windowStart.UTC().Format("02-01-2006 15:04"),
		windowEnd.UTC().Format("02-01-2006 15:04"))
}
