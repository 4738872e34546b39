package colors

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/natefinch/atomic"
)

const (
	// NoCategory is the calendar color (graphite) for uncategorized tasks.
	NoCategory = "8"
	// paletteSize is the number of Google Calendar event colors handed out.
	paletteSize = 11
)

type CategoryState struct {
	ColorID  string    `json:"color_id"`
	LastUsed time.Time `json:"last_used"`
}

// Cache hands out calendar event colors per task category, recycling the
// least recently used color once the palette is exhausted.
type Cache struct {
	Path       string                    `json:"-"`
	Categories map[string]*CategoryState `json:"categories"`
	now        func() time.Time
	mu         sync.Mutex
	dirty      bool
}

// NewCache loads the cache at path. An empty path keeps it in memory only.
func NewCache(path string) (*Cache, error) {
	c := &Cache{
		Path:       path,
		Categories: make(map[string]*CategoryState),
		now:        time.Now,
	}
	if path == "" {
		return c, nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := c.Load(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Cache) Load() error {
	f, err := os.Open(c.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	return json.NewDecoder(f).Decode(&c.Categories)
}

func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dirty || c.Path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0700); err != nil {
		return err
	}
	data, err := json.Marshal(c.Categories)
	if err != nil {
		return err
	}
	if err := atomic.WriteFile(c.Path, bytes.NewReader(data)); err != nil {
		return err
	}
	c.dirty = false
	return nil
}

// ColorID returns the color of a category, assigning one if needed.
func (c *Cache) ColorID(category string) string {
	if category == "" {
		return NoCategory
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if state, ok := c.Categories[category]; ok {
		state.LastUsed = c.now()
		c.dirty = true
		return state.ColorID
	}
	return c.assign(category)
}

func (c *Cache) assign(category string) string {
	used := make(map[string]bool)
	for _, s := range c.Categories {
		used[s.ColorID] = true
	}
	for i := 1; i <= paletteSize; i++ {
		id := strconv.Itoa(i)
		if id == NoCategory {
			continue
		}
		if !used[id] {
			c.Categories[category] = &CategoryState{ColorID: id, LastUsed: c.now()}
			c.dirty = true
			return id
		}
	}

	var (
		oldest     string
		oldestTime time.Time
	)
	for name, s := range c.Categories {
		if oldest == "" || s.LastUsed.Before(oldestTime) {
			oldest, oldestTime = name, s.LastUsed
		}
	}
	recycled := c.Categories[oldest].ColorID
	delete(c.Categories, oldest)
	c.Categories[category] = &CategoryState{ColorID: recycled, LastUsed: c.now()}
	c.dirty = true
	return recycled
}
