package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	appconfig "github.com/kestrelhq/realty-ai-platform/internal/config"
	"github.com/kestrelhq/realty-ai-platform/internal/llm"
	"github.com/kestrelhq/realty-ai-platform/internal/retrieval"
	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

// index-knowledge embeds a JSON array of knowledge documents and writes the
// index/metadata file pair that the API server loads at startup.
func main() {
	var (
		inputPath    = flag.String("input", "knowledge/documents.json", "JSON array of document strings to index")
		indexPath    = flag.String("index", "", "output path for the embedding index (defaults to KNOWLEDGE_INDEX_PATH)")
		metadataPath = flag.String("metadata", "", "output path for the document metadata (defaults to KNOWLEDGE_METADATA_PATH)")
	)
	flag.Parse()

	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if *indexPath == "" {
		*indexPath = cfg.KnowledgeIndexPath
	}
	if *metadataPath == "" {
		*metadataPath = cfg.KnowledgeMetadataPath
	}
	if cfg.EmbeddingAPIKey == "" {
		logger.Error("EMBEDDING_API_KEY is required")
		os.Exit(1)
	}

	docs, err := readDocuments(*inputPath)
	if err != nil {
		logger.Error("failed to read documents", "path", *inputPath, "error", err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		logger.Error("no documents to index", "path", *inputPath)
		os.Exit(1)
	}

	client := llm.NewGroqClient(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL)
	store := retrieval.NewStore(client, cfg.EmbeddingModel, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := store.AddDocuments(ctx, docs); err != nil {
		logger.Error("failed to embed documents", "error", err)
		os.Exit(1)
	}

	vectors, contents := store.Embeddings()
	if err := writeJSONFile(*indexPath, vectors); err != nil {
		logger.Error("failed to write index", "path", *indexPath, "error", err)
		os.Exit(1)
	}
	if err := writeJSONFile(*metadataPath, contents); err != nil {
		logger.Error("failed to write metadata", "path", *metadataPath, "error", err)
		os.Exit(1)
	}

	logger.Info("knowledge index written",
		"documents", len(contents),
		"index", *indexPath,
		"metadata", *metadataPath,
	)
	fmt.Printf("Indexed %d documents\n", len(contents))
}

func readDocuments(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var docs []string
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return docs, nil
}

func writeJSONFile(path string, v any) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
