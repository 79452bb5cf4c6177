package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/hyperengineering/recap/internal/archive"
	"github.com/hyperengineering/recap/internal/config"
	"github.com/hyperengineering/recap/internal/mailer"
	"github.com/hyperengineering/recap/internal/store"
)

// openLocalStore opens the local reporting database and runs migrations.
func openLocalStore(cfg *config.Config) (*store.SQLiteStore, error) {
	db, err := store.NewSQLiteStore(cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	return db, nil
}

// newSender builds the SMTP sender from configuration.
func newSender(cfg *config.Config) (mailer.Sender, error) {
	return mailer.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port,
		cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender, cfg.SMTP.Recipients)
}

// newUploader builds the report archive uploader. Returns a no-op uploader
// when no bucket is configured.
func newUploader(cfg *config.Config) (archive.Uploader, error) {
	return archive.NewUploader(cfg.Archive)
}

// printJSON marshals v to JSON and writes to the given writer.
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newTabWriter returns a configured tabwriter for aligned columns.
func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
