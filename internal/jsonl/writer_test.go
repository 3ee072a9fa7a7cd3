package jsonl

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
)

type rec struct {
	Event  string `json:"event"`
	Symbol string `json:"symbol,omitempty"`
	N      int    `json:"n"`
}

func TestWriter_ConcurrentAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "journal.jsonl")
	w := New(path)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := w.Write(rec{Event: "order", Symbol: "JHAPA", N: i}); err != nil {
				t.Errorf("Write: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.Records() != 20 {
		t.Fatalf("Records()=%d want 20", w.Records())
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	seen := map[int]bool{}
	s := bufio.NewScanner(f)
	for s.Scan() {
		var r rec
		if err := json.Unmarshal(s.Bytes(), &r); err != nil {
			t.Fatalf("line %q: %v", s.Text(), err)
		}
		seen[r.N] = true
	}
	if len(seen) != 20 {
		t.Fatalf("decoded %d distinct records, want 20", len(seen))
	}
}

func TestWriter_Nil(t *testing.T) {
	w := New("  ")
	if w != nil {
		t.Fatalf("expected nil writer for blank path")
	}
	if err := w.Write(rec{}); err != nil {
		t.Fatalf("nil Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("nil Close: %v", err)
	}
}

func TestWriter_NilRecord(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "j.jsonl"))
	if err := w.Write(nil); err == nil {
		t.Fatalf("expected error for nil record")
	}
	if _, err := os.Stat(w.Path()); !os.IsNotExist(err) {
		t.Fatalf("file should not be created before first record, stat err=%v", err)
	}
}
