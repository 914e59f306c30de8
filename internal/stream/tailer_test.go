package stream

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func appendLine(t *testing.T, path, line string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		t.Fatal(err)
	}
}

func TestReadNewDeliversAppends(t *testing.T) {
	dir := t.TempDir()
	today := filepath.Join(dir, "20250314.jsonl")
	appendLine(t, today, `{"ts":"1","type":"before"}`)

	tailer := NewTailer(dir)
	// Lines existing at creation are replay territory, not tail output.
	lines, err := tailer.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 {
		t.Fatalf("expected no lines before append, got %v", lines)
	}

	appendLine(t, today, `{"ts":"2","type":"A"}`)
	lines, err = tailer.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != `{"ts":"2","type":"A"}` {
		t.Errorf("lines = %v", lines)
	}
}

func TestRotationStartsAtByteZero(t *testing.T) {
	dir := t.TempDir()
	today := filepath.Join(dir, "20250314.jsonl")
	appendLine(t, today, `{"type":"A"}`)

	tailer := NewTailer(dir)
	appendLine(t, today, `{"type":"A2"}`)
	lines, err := tailer.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != `{"type":"A2"}` {
		t.Fatalf("pre-rotation lines = %v", lines)
	}

	// A new day begins: a fresh file with a later mtime appears.
	tomorrow := filepath.Join(dir, "20250315.jsonl")
	appendLine(t, tomorrow, `{"type":"B"}`)
	future := time.Now().Add(time.Minute)
	if err := os.Chtimes(tomorrow, future, future); err != nil {
		t.Fatal(err)
	}

	lines, err = tailer.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != `{"type":"B"}` {
		t.Errorf("post-rotation lines = %v", lines)
	}
	// No duplicates of the old file on subsequent reads.
	lines, err = tailer.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 {
		t.Errorf("duplicate delivery after rotation: %v", lines)
	}
	if cur := tailer.Cursor(); cur.Path != tomorrow {
		t.Errorf("cursor path = %s", cur.Path)
	}
}

func TestFileAppearingMidStream(t *testing.T) {
	dir := t.TempDir()
	tailer := NewTailer(dir) // no files yet

	lines, err := tailer.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 {
		t.Fatalf("empty dir should yield nothing, got %v", lines)
	}

	today := filepath.Join(dir, "20250314.jsonl")
	appendLine(t, today, `{"type":"first"}`)
	lines, err = tailer.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != `{"type":"first"}` {
		t.Errorf("lines = %v", lines)
	}
}

func TestTruncationResetsOffset(t *testing.T) {
	dir := t.TempDir()
	today := filepath.Join(dir, "20250314.jsonl")
	appendLine(t, today, `{"type":"one"}`)
	appendLine(t, today, `{"type":"two"}`)

	tailer := NewTailer(dir)

	// Truncation never happens in normal operation, but the cursor must
	// recover rather than read past EOF forever.
	if err := os.WriteFile(today, []byte("{\"type\":\"rewritten\"}\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	lines, err := tailer.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != `{"type":"rewritten"}` {
		t.Errorf("lines after truncation = %v", lines)
	}
}

func TestPartialLineHeldBack(t *testing.T) {
	dir := t.TempDir()
	today := filepath.Join(dir, "20250314.jsonl")
	appendLine(t, today, `{"type":"seed"}`)
	tailer := NewTailer(dir)

	// Write a line in two halves: the first read must hold the fragment.
	f, err := os.OpenFile(today, os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.WriteString(`{"type":"spl`); err != nil {
		t.Fatal(err)
	}
	lines, err := tailer.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 0 {
		t.Fatalf("partial line delivered: %v", lines)
	}

	if _, err := f.WriteString("it\"}\n"); err != nil {
		t.Fatal(err)
	}
	f.Close()
	lines, err = tailer.ReadNew()
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 1 || lines[0] != `{"type":"split"}` {
		t.Errorf("reassembled line = %v", lines)
	}
}
