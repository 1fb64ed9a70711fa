package retrieval

import (
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// openTestDB creates an in-memory SQLite database with the report_chunks table.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	_, err = db.Exec(`
		CREATE TABLE report_chunks (
			id TEXT PRIMARY KEY,
			ingestion_id TEXT NOT NULL,
			company TEXT NOT NULL,
			report_type TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text_chunk TEXT NOT NULL,
			embedding BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`)
	if err != nil {
		t.Fatalf("creating table: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func makeTestVector(dim int, seed float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func makeRecord(id, company string, vec []float32) Record {
	return Record{
		ID:          id,
		IngestionID: "ing-1",
		Company:     company,
		ReportType:  "annual",
		ChunkIndex:  0,
		TextChunk:   "Revenue grew 12% YoY",
		Embedding:   vec,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestInsertAndSearch(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteIndex(db)

	vec := makeTestVector(768, 0.1)
	if err := s.Insert([]Record{makeRecord("r1", "Acme", vec)}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(vec, 1, "Acme")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Score < 0.99 {
		t.Errorf("score = %f, want > 0.99", results[0].Score)
	}
	if results[0].ID != "r1" {
		t.Errorf("ID = %q, want %q", results[0].ID, "r1")
	}
}

func TestSearchCompanyFilter(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteIndex(db)

	vec := makeTestVector(768, 0.1)
	records := []Record{
		makeRecord("acme-1", "Acme", vec),
		makeRecord("other-1", "Other", vec),
		makeRecord("other-2", "Other", vec),
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(vec, 10, "Acme")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	for _, r := range results {
		if r.Company != "Acme" {
			t.Errorf("result %s tagged %q, want %q", r.ID, r.Company, "Acme")
		}
	}

	// Unknown company yields no results, not an error.
	results, err = s.Search(vec, 10, "Nobody")
	if err != nil {
		t.Fatalf("Search unknown company: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results for unknown company, want 0", len(results))
	}
}

func TestSearchTopK(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteIndex(db)

	var records []Record
	for i := 0; i < 10; i++ {
		r := makeRecord(fmt.Sprintf("r%d", i), "Acme", makeTestVector(768, float32(i)*0.01))
		r.ChunkIndex = i
		records = append(records, r)
	}
	if err := s.Insert(records); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	results, err := s.Search(makeTestVector(768, 0.05), 3, "Acme")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Errorf("results not sorted by score descending at index %d", i)
		}
	}
}

func TestCount(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteIndex(db)

	vec := makeTestVector(8, 0.5)
	if err := s.Insert([]Record{
		makeRecord("a1", "Acme", vec),
		makeRecord("a2", "Acme", vec),
		makeRecord("o1", "Other", vec),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	n, err := s.Count("Acme")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count(Acme) = %d, want 2", n)
	}
}

func TestDuplicateIngestionDuplicatesChunks(t *testing.T) {
	db := openTestDB(t)
	s := NewSQLiteIndex(db)

	vec := makeTestVector(8, 0.5)
	r1 := makeRecord("x1", "Acme", vec)
	r2 := makeRecord("x2", "Acme", vec)
	r2.IngestionID = r1.IngestionID

	if err := s.Insert([]Record{r1}); err != nil {
		t.Fatalf("first Insert: %v", err)
	}
	if err := s.Insert([]Record{r2}); err != nil {
		t.Fatalf("second Insert: %v", err)
	}

	n, err := s.Count("Acme")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 2 {
		t.Errorf("Count = %d, want 2 (ingestion is append-only, not idempotent)", n)
	}
}
