package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// tailBlock is the read granularity when scanning a file backwards.
const tailBlock = 4096

// Record is one parsed log line together with its raw text.
type Record struct {
	Line    string
	TS      string
	Type    string
	Payload map[string]any
}

// Tail returns the newest n valid records across all daily files, newest
// first. Files whose mtime predates since (epoch seconds, 0 = no filter) are
// skipped entirely. Lines that are not JSON objects or lack a ts field are
// skipped silently; a partial last line parses as invalid and is likewise
// dropped. Files are read from the end in blocks, never loaded whole.
func (l *Log) Tail(n int, since int64) []Record {
	if n <= 0 {
		return nil
	}

	files := l.files(since)
	// Newest file first.
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.After(files[j].mtime) })

	var out []Record
	for _, f := range files {
		if len(out) >= n {
			break
		}
		want := n - len(out) + tailSlack
		var recs []Record
		for {
			lines := TailLines(f.path, want)
			recs = recs[:0]
			// lines are oldest→newest within the file; walk backwards.
			for i := len(lines) - 1; i >= 0 && len(out)+len(recs) < n; i-- {
				if rec, ok := parseRecord(lines[i]); ok {
					recs = append(recs, rec)
				}
			}
			// Enough valid records, or the whole file was read.
			if len(out)+len(recs) >= n || len(lines) < want {
				break
			}
			want *= 2
		}
		out = append(out, recs...)
	}
	return out
}

// tailSlack over-reads per file so that a few invalid lines usually cost no
// second read; when they still starve the requested count, the file is
// re-read with a doubled line budget.
const tailSlack = 16

type logFile struct {
	path  string
	mtime time.Time
}

func (l *Log) files(since int64) []logFile {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	var files []logFile
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".jsonl" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if since > 0 && info.ModTime().Unix() < since {
			continue
		}
		files = append(files, logFile{path: filepath.Join(l.dir, e.Name()), mtime: info.ModTime()})
	}
	return files
}

func parseRecord(line string) (Record, bool) {
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		return Record{}, false
	}
	ts, _ := payload["ts"].(string)
	if ts == "" {
		return Record{}, false
	}
	typ, _ := payload["type"].(string)
	return Record{Line: line, TS: ts, Type: typ, Payload: payload}, true
}

// TailLines reads the last n lines of path without loading the whole file,
// scanning backwards in fixed-size blocks. Lines come back in file order
// (oldest first). A missing or unreadable file yields nil.
func TailLines(path string, n int) []string {
	if n <= 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() == 0 {
		return nil
	}

	size := info.Size()
	var data []byte
	for pos := size; pos > 0; {
		seek := pos - tailBlock
		if seek < 0 {
			seek = 0
		}
		buf := make([]byte, pos-seek)
		if _, err := f.ReadAt(buf, seek); err != nil {
			return nil
		}
		data = append(buf, data...)
		pos = seek
		if countNewlines(data) > n {
			break
		}
	}

	lines := splitLines(data)
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

func countNewlines(b []byte) int {
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	return n
}

// splitLines splits on \n, dropping empty lines.
func splitLines(b []byte) []string {
	var lines []string
	start := 0
	for i, c := range b {
		if c == '\n' {
			if i > start {
				lines = append(lines, string(b[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(b) {
		lines = append(lines, string(b[start:]))
	}
	return lines
}
