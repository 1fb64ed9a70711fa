package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/contrarian/internal/storage"
)

// ContextSeparator joins retrieved chunks in Query results so callers can
// detect chunk boundaries in the assembled context.
const ContextSeparator = "\n\n---\n\n"

// ErrUnavailable is returned when the underlying index cannot be reached.
var ErrUnavailable = errors.New("retrieval index unavailable")

// Store is the retrieval-augmented context store: it chunks and indexes
// uploaded report text and assembles grounded context for a question.
//
// Ingestion is NOT idempotent: two calls with the same ingestion id
// duplicate chunks. Callers must mint a fresh id per physical document.
type Store struct {
	index    VectorIndex
	embedder *Embedder
	splitter *Splitter
	ledger   Ledger
}

// Ledger records completed ingestions for bookkeeping and inspection.
type Ledger interface {
	SaveIngestion(storage.Ingestion) error
}

// NewStore creates a Store over the given index, embedder and splitter.
func NewStore(index VectorIndex, embedder *Embedder, splitter *Splitter) *Store {
	return &Store{index: index, embedder: embedder, splitter: splitter}
}

// WithLedger makes the store record every successful ingestion. A ledger
// write failure is logged, not returned; the chunks are already indexed.
func (s *Store) WithLedger(l Ledger) *Store {
	s.ledger = l
	return s
}

// Ingest splits text into overlapping chunks, embeds them, and appends them
// to the index tagged with {company, report type, ingestion id, chunk index}.
// Returns the number of chunks indexed.
func (s *Store) Ingest(ctx context.Context, text, company, reportType, ingestionID string) (int, error) {
	chunks := s.splitter.Split(text)
	if len(chunks) == 0 {
		return 0, nil
	}

	vecs, err := s.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}

	now := time.Now().UTC()
	records := make([]Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = Record{
			ID:          uuid.New().String(),
			IngestionID: ingestionID,
			Company:     company,
			ReportType:  reportType,
			ChunkIndex:  i,
			TextChunk:   chunk,
			Embedding:   vecs[i],
			CreatedAt:   now,
		}
	}

	if err := s.index.Insert(records); err != nil {
		return 0, fmt.Errorf("%w: inserting %d chunks: %v", ErrUnavailable, len(records), err)
	}

	if s.ledger != nil {
		err := s.ledger.SaveIngestion(storage.Ingestion{
			ID:         ingestionID,
			Company:    company,
			ReportType: reportType,
			ChunkCount: len(records),
			CreatedAt:  now,
		})
		if err != nil {
			slog.Warn("recording ingestion failed", "ingestion_id", ingestionID, "error", err)
		}
	}

	slog.Debug("ingested document",
		"company", company,
		"ingestion_id", ingestionID,
		"chunks", len(records),
	)
	return len(records), nil
}

// Query returns the top-k chunks most relevant to question among those
// tagged with company, joined with ContextSeparator. Returns an empty
// string when no chunks match the company filter.
func (s *Store) Query(ctx context.Context, question, company string, k int) (string, error) {
	vec, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return "", fmt.Errorf("embedding question: %w", err)
	}

	scored, err := s.index.Search(vec, k, company)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(scored) == 0 {
		return "", nil
	}

	texts := make([]string, len(scored))
	for i, r := range scored {
		texts[i] = r.TextChunk
	}
	return strings.Join(texts, ContextSeparator), nil
}
