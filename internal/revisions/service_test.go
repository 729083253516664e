package revisions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestRecordAndHistory(t *testing.T) {
	tempDir := t.TempDir()
	svc := New(tempDir)

	first, err := svc.Record("post_1", Content{Title: "Test Blog", Text: "<p>v1</p>"}, "JoeSmoe", "Publish Test Blog")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if first.Hash == "" || first.Author != "JoeSmoe" {
		t.Fatalf("unexpected commit: %+v", first)
	}
	if _, err := os.Stat(filepath.Join(tempDir, "post_1", ".git")); err != nil {
		t.Fatalf("repo missing: %v", err)
	}

	second, err := svc.Record("post_1", Content{Title: "Test Blog", Text: "<p>v2</p>"}, "JoeSmoe", "Edit Test Blog")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	history, err := svc.History("post_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("len(history) = %d, want 2", len(history))
	}
	if history[0].Hash != second.Hash || history[1].Hash != first.Hash {
		t.Fatalf("history order = %+v, want newest first", history)
	}

	old, err := svc.ContentAt("post_1", first.Hash)
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if old.Text != "<p>v1</p>" {
		t.Fatalf("ContentAt() text = %q", old.Text)
	}
}

func TestRecordSkipsUnchangedContent(t *testing.T) {
	svc := New(t.TempDir())
	content := Content{Title: "Same", Text: "body"}

	first, err := svc.Record("post_1", content, "JoeSmoe", "Publish")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	again, err := svc.Record("post_1", content, "JoeSmoe", "Edit")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if again.Hash != first.Hash {
		t.Fatalf("expected unchanged content to reuse %s, got %s", first.Hash, again.Hash)
	}
}

func TestContentAtUnknownRevision(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.ContentAt("missing", "abc1234"); !errors.Is(err, ErrRevisionNotFound) {
		t.Fatalf("ContentAt(no repo) error = %v, want ErrRevisionNotFound", err)
	}

	if _, err := svc.Record("post_1", Content{Title: "T", Text: "v1"}, "JoeSmoe", "Publish"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	for _, hash := range []string{"not-a-rev", "0123456789012345678901234567890123456789"} {
		if _, err := svc.ContentAt("post_1", hash); !errors.Is(err, ErrRevisionNotFound) {
			t.Errorf("ContentAt(%s) error = %v, want ErrRevisionNotFound", hash, err)
		}
	}
}

func TestHistoryWithoutRepo(t *testing.T) {
	history, err := New(t.TempDir()).History("missing", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected empty history, got %+v", history)
	}
}

func TestConcurrentRecordSamePost(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.Record("post_1", Content{Title: "T", Text: "seed"}, "JoeSmoe", "Publish"); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	const writers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			content := Content{Title: "T", Text: fmt.Sprintf("edit-%02d", idx)}
			if _, err := svc.Record("post_1", content, "JoeSmoe", fmt.Sprintf("Edit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("Record() concurrent error = %v", err)
	}

	history, err := svc.History("post_1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+1 {
		t.Fatalf("len(history) = %d, want %d", len(history), writers+1)
	}
}
