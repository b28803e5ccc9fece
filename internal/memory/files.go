package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chatmem/chatmem/internal/models"
)

const (
	shortTermName = "short_memory.json"
	coreName      = "core_memory.json"
)

// readShortTerm loads the owner's short-term log. A missing file is an
// empty log, not an error.
func readShortTerm(dataDir, owner string) ([]models.ShortTermEntry, error) {
	path := filepath.Join(dataDir, filepath.FromSlash(owner), shortTermName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read short-term log: %w", err)
	}

	var entries []models.ShortTermEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse short-term log: %w", err)
	}
	return entries, nil
}

// writeShortTerm atomically replaces the owner's short-term log.
func writeShortTerm(dataDir, owner string, entries []models.ShortTermEntry) error {
	path := filepath.Join(dataDir, filepath.FromSlash(owner), shortTermName)
	return writeJSON(path, entries)
}

// readCore loads the owner's core-memory summary, zero-valued when
// none has been written yet.
func readCore(dataDir, owner string) (models.CoreMemory, error) {
	path := filepath.Join(dataDir, filepath.FromSlash(owner), coreName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return models.CoreMemory{}, nil
		}
		return models.CoreMemory{}, fmt.Errorf("read core memory: %w", err)
	}

	var core models.CoreMemory
	if err := json.Unmarshal(data, &core); err != nil {
		return models.CoreMemory{}, fmt.Errorf("parse core memory: %w", err)
	}
	return core, nil
}

func writeCore(dataDir, owner string, core models.CoreMemory) error {
	path := filepath.Join(dataDir, filepath.FromSlash(owner), coreName)
	return writeJSON(path, core)
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
