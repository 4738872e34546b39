// Package session keeps per-conversation state: the add-task wizard and the
// keys of the last listing shown, so "/done N" resolves to a stable instance.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/harrisonrobin/taskbot/pkg/model"
)

// Step is the position of a conversation in the add-task wizard.
type Step string

const (
	StepIdle        Step = ""
	StepCategory    Step = "category"
	StepSubcategory Step = "subcategory"
	StepText        Step = "text"
	StepDeadline    Step = "deadline"
	StepWhen        Step = "when"
)

// DefaultTTL bounds how long an idle conversation keeps its state.
const DefaultTTL = 24 * time.Hour

// Session is the state of one chat.
type Session struct {
	ChatID    string
	Step      Step
	Draft     model.Draft
	Listing   []string
	UpdatedAt time.Time
}

// Reset leaves the wizard, keeping the last listing.
func (s *Session) Reset() {
	s.Step = StepIdle
	s.Draft = model.Draft{}
}

// ListingKey returns the dedup key of the n-th (1-based) item of the last listing.
func (s *Session) ListingKey(n int) (string, bool) {
	if n < 1 || n > len(s.Listing) {
		return "", false
	}
	return s.Listing[n-1], true
}

// Store persists sessions. Get returns a fresh session for unknown chats.
type Store interface {
	Get(ctx context.Context, chatID string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, chatID string) error
}

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
	ttl      time.Duration
	now      func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{sessions: make(map[string]Session), ttl: ttl, now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, chatID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[chatID]
	if !ok || m.now().Sub(s.UpdatedAt) > m.ttl {
		delete(m.sessions, chatID)
		return &Session{ChatID: chatID}, nil
	}
	s.Listing = append([]string(nil), s.Listing...)
	return &s, nil
}

func (m *MemoryStore) Put(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.UpdatedAt = m.now()
	cp.Listing = append([]string(nil), s.Listing...)
	m.sessions[s.ChatID] = cp
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
	return nil
}
