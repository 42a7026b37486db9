package atomic

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestWriteAndReadJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "sample.json")

	want := sample{Name: "serial-1", Count: 7}
	if err := WriteJSON(path, want); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var got sample
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}

	if entries, err := os.ReadDir(filepath.Dir(path)); err != nil || len(entries) != 1 {
		t.Errorf("expected exactly the final file in dir, no leftover temp files, got %v (err=%v)", entries, err)
	}
}

func TestWriteJSONOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sample.json")

	if err := WriteJSON(path, sample{Name: "a", Count: 1}); err != nil {
		t.Fatalf("first WriteJSON: %v", err)
	}
	if err := WriteJSON(path, sample{Name: "b", Count: 2}); err != nil {
		t.Fatalf("second WriteJSON: %v", err)
	}

	var got sample
	if err := ReadJSON(path, &got); err != nil {
		t.Fatalf("ReadJSON: %v", err)
	}
	if got.Name != "b" || got.Count != 2 {
		t.Errorf("got %+v, want the second write to have won", got)
	}
}

func TestReadJSONMissingFile(t *testing.T) {
	var got sample
	if err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"), &got); err == nil {
		t.Errorf("expected an error reading a missing file")
	}
}

func TestMove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "pending", "job.json")
	dst := filepath.Join(dir, "active", "job.json")

	if err := WriteJSON(src, sample{Name: "job"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	if err := Move(src, dst); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("expected source to be gone after Move, stat err = %v", err)
	}
	var got sample
	if err := ReadJSON(dst, &got); err != nil {
		t.Fatalf("ReadJSON at destination: %v", err)
	}
	if got.Name != "job" {
		t.Errorf("got %+v after move", got)
	}
}

func TestListJSONMissingDirIsEmptyNotError(t *testing.T) {
	files, err := ListJSON(filepath.Join(t.TempDir(), "nonexistent"))
	if err != nil {
		t.Fatalf("ListJSON on missing dir returned error: %v", err)
	}
	if len(files) != 0 {
		t.Errorf("expected no files, got %v", files)
	}
}

func TestListJSONSkipsNonJSONAndSubdirs(t *testing.T) {
	dir := t.TempDir()
	if err := WriteJSON(filepath.Join(dir, "a.json"), sample{Name: "a"}); err != nil {
		t.Fatalf("WriteJSON a: %v", err)
	}
	if err := WriteJSON(filepath.Join(dir, "b.json"), sample{Name: "b"}); err != nil {
		t.Fatalf("WriteJSON b: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "subdir"), 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	files, err := ListJSON(dir)
	if err != nil {
		t.Fatalf("ListJSON: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2: %v", len(files), files)
	}
	if filepath.Base(files[0]) != "a.json" || filepath.Base(files[1]) != "b.json" {
		t.Errorf("expected sorted [a.json b.json], got %v", files)
	}
}

func TestListJSONByMtimeOrdersOldestFirst(t *testing.T) {
	dir := t.TempDir()
	if err := WriteJSON(filepath.Join(dir, "second.json"), sample{Name: "second"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	older := filepath.Join(dir, "first.json")
	if err := WriteJSON(older, sample{Name: "first"}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	// Force "first.json" to look older than "second.json" regardless of
	// how fast the two writes above actually ran.
	past := mustStatTime(t, filepath.Join(dir, "second.json"))
	if err := os.Chtimes(older, past.Add(-time.Minute), past.Add(-time.Minute)); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	files, err := ListJSONByMtime(dir)
	if err != nil {
		t.Fatalf("ListJSONByMtime: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "first.json" {
		t.Errorf("expected first.json before second.json, got %v", files)
	}
}

func mustStatTime(t *testing.T, path string) time.Time {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	return info.ModTime()
}
