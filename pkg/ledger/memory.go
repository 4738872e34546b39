package ledger

import (
	"context"
	"sort"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/model"
)

// Memory is an in-process ledger. It keeps insertion order so listings are
// stable, mirroring the row order of the spreadsheet backend.
type Memory struct {
	mu        sync.RWMutex
	instances []model.Instance
	byKey     map[string]int
	templates []model.Template
	suppliers []model.SupplierProfile
	users     []model.User
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{byKey: make(map[string]int)}
}

func (m *Memory) QueryInstances(_ context.Context, owner string, from, to civil.Date) ([]model.Instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Instance
	for _, inst := range m.instances {
		if owner != "" && inst.Owner != owner {
			continue
		}
		if inst.Date.Before(from) || inst.Date.After(to) {
			continue
		}
		out = append(out, inst)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *Memory) QueryTemplates(_ context.Context, owner string) ([]model.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Template
	for _, tpl := range m.templates {
		if owner == "" || tpl.Owner == owner {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (m *Memory) QuerySupplierProfiles(_ context.Context, activeOnly bool) ([]model.SupplierProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.SupplierProfile
	for _, p := range m.suppliers {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) QueryUsers(_ context.Context) ([]model.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]model.User(nil), m.users...), nil
}

func (m *Memory) GetInstance(_ context.Context, key string) (model.Instance, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byKey[key]
	if !ok {
		return model.Instance{}, false, nil
	}
	return m.instances[i], true, nil
}

func (m *Memory) AppendInstance(_ context.Context, inst model.Instance) error {
	if inst.Key == "" {
		inst = inst.WithKey()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byKey[inst.Key]; exists {
		return ErrDuplicate
	}
	m.byKey[inst.Key] = len(m.instances)
	m.instances = append(m.instances, inst)
	return nil
}

func (m *Memory) UpdateInstanceStatus(_ context.Context, key string, status model.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.byKey[key]
	if !ok {
		return false, nil
	}
	m.instances[i].Status = status
	return true, nil
}

func (m *Memory) AppendTemplate(_ context.Context, tpl model.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates = append(m.templates, tpl)
	return nil
}

func (m *Memory) AppendSupplierProfile(_ context.Context, p model.SupplierProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suppliers = append(m.suppliers, p)
	return nil
}

func (m *Memory) AppendUser(_ context.Context, u model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users = append(m.users, u)
	return nil
}
