package storage

import (
	"errors"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRunsMigrations(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 {
		t.Fatal("no migrations applied")
	}
	if versions[0] != 1 {
		t.Errorf("first migration = %d, want 1", versions[0])
	}
}

func TestOpenIsIdempotentOnDisk(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if err := s1.SaveIngestion(Ingestion{
		ID: "ing-1", Company: "Acme", ReportType: "annual", ChunkCount: 3,
	}); err != nil {
		t.Fatalf("SaveIngestion: %v", err)
	}
	s1.Close()

	// Re-open: migrations must not re-run, data must survive.
	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	defer s2.Close()

	got, err := s2.GetIngestion("ing-1")
	if err != nil {
		t.Fatalf("GetIngestion after reopen: %v", err)
	}
	if got.Company != "Acme" || got.ChunkCount != 3 {
		t.Errorf("got %+v, want Company=Acme ChunkCount=3", got)
	}
}

func TestGetIngestionNotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetIngestion("missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListIngestions(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		if err := s.SaveIngestion(Ingestion{
			ID: id, Company: "Acme", ReportType: "quarterly", ChunkCount: i,
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}); err != nil {
			t.Fatalf("SaveIngestion %s: %v", id, err)
		}
	}

	got, err := s.ListIngestions(2, 0)
	if err != nil {
		t.Fatalf("ListIngestions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d ingestions, want 2", len(got))
	}
	if got[0].ID != "c" {
		t.Errorf("first listed = %q, want most recent %q", got[0].ID, "c")
	}
}
