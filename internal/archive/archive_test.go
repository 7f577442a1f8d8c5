package archive

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTranscriptKeyShape(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)
	key := transcriptKey("doc-abc", now)
	if key != "transcripts/doc-abc/20260314T092653.589.json" {
		t.Fatalf("unexpected key: %s", key)
	}
}

func TestLocalStoreSave(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)

	if err := store.Save(context.Background(), "doc-1", []byte(`{"intent":"x"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "transcripts", "doc-1", "*.json"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 transcript, got %d", len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"intent"`) {
		t.Fatalf("transcript body not written: %s", data)
	}
}

func TestLocalStoreSuccessiveSavesDoNotCollide(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)

	for i := 0; i < 2; i++ {
		if err := store.Save(context.Background(), "doc-2", []byte("{}")); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "transcripts", "doc-2", "*.json"))
	if len(matches) != 2 {
		t.Fatalf("expected 2 transcripts, got %d", len(matches))
	}
}
