package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/kestrelhq/realty-ai-platform/pkg/logging"
)

type embeddingClient interface {
	CreateEmbeddings(ctx context.Context, request openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// Retriever exposes the lookup capability the orchestrator needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]string, error)
}

// Store answers similarity queries over an embedded knowledge base of
// property listings and FAQs. Documents are loaded once (from persisted
// index/metadata files or via AddDocuments) and never invalidated; query
// results are memoized since retrieval is a pure function of its inputs.
type Store struct {
	client embeddingClient
	model  string
	logger *logging.Logger
	tracer trace.Tracer

	mu   sync.RWMutex
	docs []document

	cacheMu sync.Mutex
	cache   map[string][]string
}

type document struct {
	content   string
	embedding []float32
}

const queryCacheLimit = 1000

// NewStore creates an empty store; documents are added with AddDocuments
// or LoadIndex.
func NewStore(client embeddingClient, model string, logger *logging.Logger) *Store {
	if client == nil {
		panic("retrieval: embedding client cannot be nil")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		client: client,
		model:  model,
		logger: logger,
		tracer: otel.Tracer("realty.internal.retrieval"),
		cache:  make(map[string][]string),
	}
}

// LoadIndex reads the persisted embedding index and metadata files produced
// by cmd/index-knowledge. Vector i in the index file corresponds to snippet
// i in the metadata file.
func (s *Store) LoadIndex(indexPath, metadataPath string) error {
	vectors, err := readJSONFile[[][]float32](indexPath)
	if err != nil {
		return fmt.Errorf("retrieval: failed to load index: %w", err)
	}
	snippets, err := readJSONFile[[]string](metadataPath)
	if err != nil {
		return fmt.Errorf("retrieval: failed to load metadata: %w", err)
	}
	if len(vectors) != len(snippets) {
		return fmt.Errorf("retrieval: index/metadata size mismatch: %d vectors, %d snippets",
			len(vectors), len(snippets))
	}

	docs := make([]document, len(snippets))
	for i := range snippets {
		docs[i] = document{content: snippets[i], embedding: vectors[i]}
	}

	s.mu.Lock()
	s.docs = append(s.docs, docs...)
	s.mu.Unlock()
	s.logger.Info("knowledge index loaded", "documents", len(docs), "index", indexPath)
	return nil
}

// AddDocuments embeds and stores the provided snippets.
func (s *Store) AddDocuments(ctx context.Context, contents []string) error {
	if len(contents) == 0 {
		return nil
	}

	req := &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(s.model),
		Input: contents,
	}
	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return fmt.Errorf("retrieval: failed to embed documents: %w", err)
	}
	if len(resp.Data) != len(contents) {
		return errors.New("retrieval: embedding response size mismatch")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, item := range resp.Data {
		s.docs = append(s.docs, document{content: contents[i], embedding: item.Embedding})
	}
	return nil
}

// Embeddings returns the stored vectors and snippets in insertion order;
// used by cmd/index-knowledge to persist the index.
func (s *Store) Embeddings() ([][]float32, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vectors := make([][]float32, len(s.docs))
	snippets := make([]string, len(s.docs))
	for i, d := range s.docs {
		vectors[i] = d.embedding
		snippets[i] = d.content
	}
	return vectors, snippets
}

// Retrieve returns the topK most similar snippets for the query.
func (s *Store) Retrieve(ctx context.Context, query string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = 5
	}

	ctx, span := s.tracer.Start(ctx, "retrieval.retrieve")
	defer span.End()

	cacheKey := fmt.Sprintf("%d:%s", topK, query)
	s.cacheMu.Lock()
	if cached, ok := s.cache[cacheKey]; ok {
		s.cacheMu.Unlock()
		return cached, nil
	}
	s.cacheMu.Unlock()

	req := &openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(s.model),
		Input: []string{query},
	}
	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("retrieval: failed to embed query: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}
	queryVec := resp.Data[0].Embedding

	s.mu.RLock()
	type scored struct {
		score   float64
		content string
	}
	results := make([]scored, 0, len(s.docs))
	for _, doc := range s.docs {
		results = append(results, scored{
			score:   cosineSimilarity(queryVec, doc.embedding),
			content: doc.content,
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	limit := topK
	if len(results) < limit {
		limit = len(results)
	}
	out := make([]string, limit)
	for i := 0; i < limit; i++ {
		out[i] = results[i].content
	}

	s.cacheMu.Lock()
	if len(s.cache) >= queryCacheLimit {
		// Cheap reset; entries never need invalidation, only bounding.
		s.cache = make(map[string][]string)
	}
	s.cache[cacheKey] = out
	s.cacheMu.Unlock()

	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	var normA float64
	var normB float64
	for i := range a {
		dot += float64(a[i] * b[i])
		normA += float64(a[i] * a[i])
		normB += float64(b[i] * b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func readJSONFile[T any](path string) (T, error) {
	var out T
	data, err := os.ReadFile(path)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}
