package retrieval

import (
	"time"
)

// VectorIndex is the interface for chunk storage and similarity search
// backends. The default implementation is SQLite with brute-force cosine
// similarity; an ANN-capable backend can be swapped in behind this interface
// when per-company chunk counts grow past what a linear scan tolerates.
type VectorIndex interface {
	// Insert appends records to the index. Records are never updated in
	// place; re-ingestion under a fresh ingestion id adds new rows.
	Insert(records []Record) error

	// Search returns the top-K records most similar to vector, restricted
	// to rows whose company tag equals company exactly.
	Search(vector []float32, topK int, company string) ([]ScoredRecord, error)

	// Count returns the number of records tagged with company.
	Count(company string) (int, error)
}

// Record is one indexed chunk with its metadata tags.
type Record struct {
	ID          string
	IngestionID string
	Company     string
	ReportType  string
	ChunkIndex  int
	TextChunk   string
	Embedding   []float32
	CreatedAt   time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
