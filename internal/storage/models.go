package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Ingestion records one physical document added to the retrieval index.
// Re-uploading the same report creates a new ingestion with a fresh id;
// chunks are append-only per ingestion id.
type Ingestion struct {
	ID         string
	Company    string
	ReportType string
	ChunkCount int
	CreatedAt  time.Time
}
