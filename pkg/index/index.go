package index

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/natefinch/atomic"
)

// KeyIndex maps instance dedup keys to backend identifiers: a spreadsheet row
// or a calendar event id.
type KeyIndex struct {
	Mappings map[string]string `json:"mappings"`
	Path     string            `json:"-"`
	mu       sync.RWMutex
	dirty    bool
}

// New loads the index stored at path. An empty path keeps it in memory only.
func New(path string) (*KeyIndex, error) {
	idx := &KeyIndex{
		Mappings: make(map[string]string),
		Path:     path,
	}
	if path == "" {
		return idx, nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := idx.Load(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func (idx *KeyIndex) Load() error {
	f, err := os.Open(idx.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return json.NewDecoder(f).Decode(&idx.Mappings)
}

func (idx *KeyIndex) Save() error {
	idx.mu.RLock()
	if !idx.dirty || idx.Path == "" {
		idx.mu.RUnlock()
		return nil
	}
	idx.mu.RUnlock()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(idx.Path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(idx.Mappings)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(idx.Path, bytes.NewReader(data)); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

func (idx *KeyIndex) Get(key string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.Mappings[key]
}

func (idx *KeyIndex) Set(key, value string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Mappings[key] != value {
		idx.Mappings[key] = value
		idx.dirty = true
	}
}

func (idx *KeyIndex) Remove(key string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.Mappings[key]; exists {
		delete(idx.Mappings, key)
		idx.dirty = true
	}
}

// Reset drops every mapping, e.g. after the backing sheet was rewritten.
func (idx *KeyIndex) Reset(mappings map[string]string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.Mappings = mappings
	if idx.Mappings == nil {
		idx.Mappings = make(map[string]string)
	}
	idx.dirty = true
}

func (idx *KeyIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.Mappings)
}
