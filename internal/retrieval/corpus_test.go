package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fiberDoc = `Dietary fiber and constipation

Fiber supplementation with psyllium or methylcellulose is first-line for
constipation. Aim for 25-30 grams of fiber daily alongside 8 or more
glasses of water.

Sitz baths in warm water for 10-15 minutes, two to three times daily,
relieve hemorrhoid symptoms for most patients.`

const bleedingDoc = `Rectal bleeding

New rectal bleeding always warrants evaluation by a doctor, even when
small amounts are most likely from hemorrhoids. Heavy bleeding, black or
tarry stools, and dizziness are signs of serious blood loss.`

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fiber.md"), []byte(fiberDoc), 0644); err != nil {
		t.Fatalf("failed to write corpus file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bleeding.txt"), []byte(bleedingDoc), 0644); err != nil {
		t.Fatalf("failed to write corpus file: %v", err)
	}
	// Non-corpus files are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.json"), []byte(`{"ignored": true}`), 0644); err != nil {
		t.Fatalf("failed to write corpus file: %v", err)
	}
	return dir
}

func TestRetrieveRanksRelevantPassages(t *testing.T) {
	r, err := NewCorpusRetriever(writeCorpus(t))
	if err != nil {
		t.Fatalf("failed to load corpus: %v", err)
	}
	passages, err := r.Retrieve(context.Background(), "how much fiber should I eat for constipation", 2)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(passages) == 0 {
		t.Fatal("expected at least one passage")
	}
	if !strings.Contains(passages[0], "fiber") {
		t.Errorf("top passage should be about fiber, got %q", passages[0])
	}
	if !strings.Contains(passages[0], "[Source: fiber.md]") {
		t.Errorf("passage should carry its source, got %q", passages[0])
	}
}

func TestRetrieveHonorsTopK(t *testing.T) {
	r, err := NewCorpusRetriever(writeCorpus(t))
	if err != nil {
		t.Fatalf("failed to load corpus: %v", err)
	}
	passages, err := r.Retrieve(context.Background(), "bleeding hemorrhoids fiber water stools", 1)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(passages) != 1 {
		t.Errorf("expected exactly 1 passage, got %d", len(passages))
	}
}

func TestRetrieveNoMatches(t *testing.T) {
	r, err := NewCorpusRetriever(writeCorpus(t))
	if err != nil {
		t.Fatalf("failed to load corpus: %v", err)
	}
	passages, err := r.Retrieve(context.Background(), "quantum chromodynamics", 4)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(passages) != 0 {
		t.Errorf("expected no passages, got %v", passages)
	}
}

func TestMissingDirectoryServesEmptyCorpus(t *testing.T) {
	r, err := NewCorpusRetriever(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("missing corpus directory should not fail: %v", err)
	}
	passages, err := r.Retrieve(context.Background(), "fiber", 4)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(passages) != 0 {
		t.Errorf("expected empty results, got %v", passages)
	}
}

func TestReloadPicksUpNewDocuments(t *testing.T) {
	dir := t.TempDir()
	r, err := NewCorpusRetriever(dir)
	if err != nil {
		t.Fatalf("failed to load corpus: %v", err)
	}
	if passages, _ := r.Retrieve(context.Background(), "fiber", 4); len(passages) != 0 {
		t.Fatalf("expected empty corpus, got %v", passages)
	}
	if err := os.WriteFile(filepath.Join(dir, "fiber.md"), []byte(fiberDoc), 0644); err != nil {
		t.Fatalf("failed to write corpus file: %v", err)
	}
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	passages, err := r.Retrieve(context.Background(), "fiber", 4)
	if err != nil {
		t.Fatalf("Retrieve failed: %v", err)
	}
	if len(passages) == 0 {
		t.Error("expected passages after reload")
	}
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	r, err := NewCorpusRetriever(dir)
	if err != nil {
		t.Fatalf("failed to load corpus: %v", err)
	}
	w, err := NewWatcher(r, dir)
	if err != nil {
		t.Skipf("fsnotify not available: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("watcher start failed: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "fiber.md"), []byte(fiberDoc), 0644); err != nil {
		t.Fatalf("failed to write corpus file: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		passages, err := r.Retrieve(context.Background(), "fiber", 4)
		if err != nil {
			t.Fatalf("Retrieve failed: %v", err)
		}
		if len(passages) > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error("watcher did not reload corpus after file write")
}
