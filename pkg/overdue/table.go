package overdue

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

// Entry is a pending task with a deadline that has not been reminded yet.
type Entry struct {
	Key     string    `json:"key"`
	Owner   string    `json:"owner"`
	Summary string    `json:"summary"`
	Due     time.Time `json:"due"`
}

// Table tracks reminders so each deadline is announced once, across restarts
// when a path is set.
type Table struct {
	Entries map[string]Entry `json:"entries"`
	// Fired remembers reminded keys until their deadline passes.
	Fired map[string]time.Time `json:"fired"`
	Path  string               `json:"-"`
	mu    sync.Mutex
	dirty bool
}

// NewTable loads the table at path. An empty path keeps it in memory only.
func NewTable(path string) (*Table, error) {
	t := &Table{
		Path:    path,
		Entries: make(map[string]Entry),
		Fired:   make(map[string]time.Time),
	}
	if path == "" {
		return t, nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := t.Load(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Table) Load() error {
	f, err := os.Open(t.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(t); err != nil {
		return err
	}
	if t.Entries == nil {
		t.Entries = make(map[string]Entry)
	}
	if t.Fired == nil {
		t.Fired = make(map[string]time.Time)
	}
	return nil
}

func (t *Table) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty || t.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(t.Path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(t.Path, bytes.NewReader(data)); err != nil {
		return err
	}
	t.dirty = false
	return nil
}

// Update tracks a pending task with a deadline. A zero due time or a task
// already reminded is ignored.
func (t *Table) Update(key, owner, summary string, due time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if due.IsZero() {
		t.remove(key)
		return
	}
	if _, fired := t.Fired[key]; fired {
		return
	}
	old, exists := t.Entries[key]
	if !exists || !old.Due.Equal(due) || old.Summary != summary || old.Owner != owner {
		t.Entries[key] = Entry{Key: key, Owner: owner, Summary: summary, Due: due}
		t.dirty = true
	}
}

// Remove forgets a task, e.g. because it was completed.
func (t *Table) Remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(key)
}

func (t *Table) remove(key string) {
	if _, exists := t.Entries[key]; exists {
		delete(t.Entries, key)
		t.dirty = true
	}
}

// Sweep returns the entries due within lead of now and marks them fired.
// Entries whose deadline already passed are dropped without a reminder.
func (t *Table) Sweep(now time.Time, lead time.Duration) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	var swept []Entry
	for key, entry := range t.Entries {
		switch {
		case entry.Due.Before(now):
			delete(t.Entries, key)
			t.dirty = true
		case !entry.Due.After(now.Add(lead)):
			swept = append(swept, entry)
			delete(t.Entries, key)
			t.Fired[key] = entry.Due
			t.dirty = true
		}
	}
	for key, due := range t.Fired {
		if due.Before(now) {
			delete(t.Fired, key)
			t.dirty = true
		}
	}
	return swept
}
