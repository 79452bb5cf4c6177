package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/recap/internal/embedding"
	"github.com/hyperengineering/recap/internal/store"
	"github.com/hyperengineering/recap/internal/types"
)

var indexSkipEmbed bool

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the local chunk index",
}

var indexImportCmd = &cobra.Command{
	Use:   "import <file.jsonl>",
	Short: "Import document chunks from a JSONL export",
	Long: "Import document chunks from a JSONL file, one chunk object per line.\n" +
		"Chunks are embedded in batches after import unless --skip-embed is set,\n" +
		"in which case the embedding coordinator backfills them while the service runs.",
	Args: cobra.ExactArgs(1),
	RunE: runIndexImport,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chunk index counts",
	Args:  cobra.NoArgs,
	RunE:  runIndexStatus,
}

func init() {
	indexImportCmd.Flags().BoolVar(&indexSkipEmbed, "skip-embed", false,
		"Import without embedding; chunks stay pending for the coordinator")

	indexCmd.AddCommand(indexImportCmd)
	indexCmd.AddCommand(indexStatusCmd)
}

// importChunk is one line of the JSONL export.
type importChunk struct {
	FileID    string `json:"file_id"`
	Directory string `json:"file_directory"`
	Filename  string `json:"filename"`
	Page      int    `json:"page_number"`
	Content   string `json:"content"`
}

func runIndexImport(cmd *cobra.Command, args []string) error {
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

	chunks, err := readChunks(args[0])
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No chunks found in input.")
		return nil
	}

	imported, err := db.UpsertChunks(ctx, chunks)
	if err != nil {
		return fmt.Errorf("import chunks: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d chunks.\n", imported)

	if indexSkipEmbed {
		return nil
	}

	embedder := embedding.NewOpenAI(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	embedded, err := embedPending(ctx, db, embedder, cfg.Embedding.BatchSize)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Embedded %d chunks.\n", embedded)
	return nil
}

// readChunks parses one chunk per JSONL line, skipping blank lines.
func readChunks(path string) ([]types.Chunk, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open import file: %w", err)
	}
	defer f.Close()

	var chunks []types.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var c importChunk
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if c.Content == "" {
			return nil, fmt.Errorf("line %d: missing content", line)
		}
		chunks = append(chunks, types.Chunk{
			FileID:    c.FileID,
			Directory: c.Directory,
			Filename:  c.Filename,
			Page:      c.Page,
			Content:   c.Content,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read import file: %w", err)
	}
	return chunks, nil
}

// embedPending embeds pending chunks batch by batch until none remain.
func embedPending(ctx context.Context, db *store.SQLiteStore, embedder embedding.Embedder, batchSize int) (int, error) {
	var total int
	for {
		pending, err := db.PendingEmbeddings(ctx, batchSize)
		if err != nil {
			return total, err
		}
		if len(pending) == 0 {
			return total, nil
		}

		contents := make([]string, len(pending))
		for i, chunk := range pending {
			contents[i] = chunk.Content
		}
		embeddings, err := embedder.EmbedBatch(ctx, contents)
		if err != nil {
			return total, err
		}
		for i, chunk := range pending {
			if err := db.UpdateEmbedding(ctx, chunk.ID, embeddings[i]); err != nil {
				return total, err
			}
			total++
		}
	}
}

func runIndexStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

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

	count, err := db.ChunkCount(ctx)
	if err != nil {
		return fmt.Errorf("count chunks: %w", err)
	}
	pending, err := db.PendingEmbeddings(ctx, cfg.Embedding.BatchSize)
	if err != nil {
		return fmt.Errorf("count pending chunks: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Chunks: %d\n", count)
	fmt.Fprintf(cmd.OutOrStdout(), "Pending embedding: %d", len(pending))
	if len(pending) == cfg.Embedding.BatchSize {
		fmt.Fprint(cmd.OutOrStdout(), "+")
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}
