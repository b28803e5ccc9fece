package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chatmem/chatmem/internal/models"
)

const docLogName = "rag-memory.json"

// docLog is the durable document log: one JSON line per MemoryRecord,
// per owner, so the vector index can be rebuilt after a restart.
type docLog struct {
	root string
}

func newDocLog(root string) *docLog {
	return &docLog{root: root}
}

func (l *docLog) path(owner string) string {
	return filepath.Join(l.root, filepath.FromSlash(owner), docLogName)
}

// append writes one record to the owner's log.
func (l *docLog) append(owner string, rec models.MemoryRecord) error {
	path := l.path(owner)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// load reads every record for an owner. Corrupt lines are skipped with
// a warning so one bad record never takes the store down.
func (l *docLog) load(owner string) ([]models.MemoryRecord, error) {
	f, err := os.Open(l.path(owner))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	var records []models.MemoryRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		var rec models.MemoryRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			slog.Warn("skipping corrupt document log line",
				"owner", owner, "line", lineNo, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("read log: %w", err)
	}
	return records, nil
}

// rewrite atomically replaces the owner's log with the given records.
// Used by the reindex pass after embeddings are refreshed.
func (l *docLog) rewrite(owner string, records []models.MemoryRecord) error {
	path := l.path(owner)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), docLogName+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	for _, rec := range records {
		line, err := json.Marshal(rec)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("marshal record: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			tmp.Close()
			return fmt.Errorf("write record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush log: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp log: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}

// owners lists every owner with a document log under the root.
func (l *docLog) owners() ([]string, error) {
	var owners []string
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipAll
			}
			return err
		}
		if d.IsDir() || d.Name() != docLogName {
			return nil
		}
		rel, err := filepath.Rel(l.root, filepath.Dir(path))
		if err != nil {
			return err
		}
		owners = append(owners, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan document logs: %w", err)
	}
	return owners, nil
}
