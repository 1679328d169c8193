package export

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"adl/internal/model"
	"adl/internal/store"
)

func seedStore(t *testing.T, n int) store.Store {
	t.Helper()
	s := store.NewMemoryStore()
	ctx := context.Background()
	if err := s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		d := &model.Decision{
			ID:          model.NewID(),
			Description: "exported decision",
			Confidence:  0.5,
			Tags:        []string{"snapshot"},
			Reasons:     []model.Reason{{Kind: "evidence", Text: "seeded"}},
		}
		if err := s.Save(ctx, d); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func TestWriteReadRoundtrip(t *testing.T) {
	s := seedStore(t, 5)

	var buf bytes.Buffer
	n, err := Write(context.Background(), s, &buf)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 5 {
		t.Fatalf("Expected 5 records written, got %d", n)
	}

	records, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("Expected 5 records read back, got %d", len(records))
	}

	// The snapshot carries full records, child collections included.
	var d model.Decision
	if err := json.Unmarshal(records[0], &d); err != nil {
		t.Fatalf("Record is not a decision: %v", err)
	}
	if len(d.Tags) != 1 || len(d.Reasons) != 1 {
		t.Errorf("Expected full record in snapshot, got %+v", d)
	}
}

func TestWriteEmptyStore(t *testing.T) {
	s := seedStore(t, 0)

	var buf bytes.Buffer
	n, err := Write(context.Background(), s, &buf)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("Expected 0 records, got %d", n)
	}

	records, err := Read(&buf)
	if err != nil {
		t.Fatalf("Empty snapshot must still be a valid stream: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected no records, got %d", len(records))
	}
}

func TestWritePaginatesLargeStores(t *testing.T) {
	s := seedStore(t, pageSize+3)

	var buf bytes.Buffer
	n, err := Write(context.Background(), s, &buf)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != pageSize+3 {
		t.Fatalf("Expected %d records across pages, got %d", pageSize+3, n)
	}
}

func TestWriteFile(t *testing.T) {
	s := seedStore(t, 2)
	path := filepath.Join(t.TempDir(), "snapshot.jsonl.gz")

	n, err := WriteFile(context.Background(), s, path)
	if err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("Expected 2 records, got %d", n)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(records) != 2 {
		t.Errorf("Expected 2 records in file, got %d", len(records))
	}
}

func TestReadRejectsPlainText(t *testing.T) {
	if _, err := Read(bytes.NewBufferString("not gzip")); err == nil {
		t.Fatal("Uncompressed input must be rejected")
	}
}
