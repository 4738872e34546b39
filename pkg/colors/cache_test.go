package colors

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestColorIDStableAndLRU(t *testing.T) {
	c, err := NewCache("")
	if err != nil {
		t.Fatalf("NewCache failed: %v", err)
	}
	clock := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	if got := c.ColorID(""); got != NoCategory {
		t.Errorf("Expected %s for empty category, got %s", NoCategory, got)
	}

	seen := map[string]string{}
	for i := 0; i < paletteSize-1; i++ {
		cat := fmt.Sprintf("cat-%d", i)
		id := c.ColorID(cat)
		if id == NoCategory {
			t.Errorf("Category %s got the reserved color", cat)
		}
		for other, otherID := range seen {
			if otherID == id {
				t.Errorf("Categories %s and %s share color %s", cat, other, id)
			}
		}
		seen[cat] = id
	}
	if again := c.ColorID("cat-3"); again != seen["cat-3"] {
		t.Errorf("Expected stable color %s, got %s", seen["cat-3"], again)
	}

	// Palette is full: the least recently used category (cat-0) gives up its color.
	if got := c.ColorID("new"); got != seen["cat-0"] {
		t.Errorf("Expected recycled color %s, got %s", seen["cat-0"], got)
	}
	if _, ok := c.Categories["cat-0"]; ok {
		t.Errorf("Expected cat-0 to be evicted")
	}
}

func TestCacheSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "colors.json")
	c, _ := NewCache(path)
	id := c.ColorID("Procurement")
	if err := c.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	loaded, err := NewCache(path)
	if err != nil {
		t.Fatalf("NewCache (reload) failed: %v", err)
	}
	if got := loaded.ColorID("Procurement"); got != id {
		t.Errorf("Expected %s after reload, got %s", id, got)
	}
}
