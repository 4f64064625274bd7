package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// ConfigFileName is the registry file inside the data directory.
const ConfigFileName = "config.json"

// FileStore persists items as a JSON array.
type FileStore struct {
	Path string
}

// NewFileStore returns a store for dataDir/config.json.
func NewFileStore(dataDir string) *FileStore {
	return &FileStore{Path: filepath.Join(dataDir, ConfigFileName)}
}

// Load reads the stored items. A missing file yields an empty list and no
// error; an unreadable or corrupt file yields an empty list and the error.
func (s *FileStore) Load() ([]Item, error) {
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Item{}, nil
	}
	if err != nil {
		return []Item{}, fmt.Errorf("read %s: %w", s.Path, err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return []Item{}, fmt.Errorf("decode %s: %w", s.Path, err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

// Save replaces the file with items. The write is atomic: readers see
// either the previous file or the complete new one.
func (s *FileStore) Save(items []Item) error {
	if items == nil {
		items = []Item{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := renameio.WriteFile(s.Path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", s.Path, err)
	}
	return nil
}
