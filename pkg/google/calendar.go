package google

import (
	"context"
	"fmt"
	"time"

	"github.com/harrisonrobin/taskbot/pkg/colors"
	"github.com/harrisonrobin/taskbot/pkg/index"
	"github.com/harrisonrobin/taskbot/pkg/ledger"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"go.uber.org/zap"
	"google.golang.org/api/calendar/v3"
)

// CalendarClient is a Google Calendar API client that keeps one event per
// task instance.
type CalendarClient struct {
	srv        *calendar.Service
	calendarID string
	index      *index.KeyIndex
	colors     *colors.Cache
	loc        *time.Location
	now        func() time.Time
}

// NewCalendarClient creates a calendar client. idx and cache may be nil.
func NewCalendarClient(srv *calendar.Service, calendarID string, idx *index.KeyIndex, cache *colors.Cache, loc *time.Location) *CalendarClient {
	if cache == nil {
		cache, _ = colors.NewCache("")
	}
	if loc == nil {
		loc = time.UTC
	}
	return &CalendarClient{srv: srv, calendarID: calendarID, index: idx, colors: cache, loc: loc, now: time.Now}
}

// SyncEvent creates the event of an instance or patches the existing one.
// Instances without a deadline are skipped and return nil.
func (c *CalendarClient) SyncEvent(ctx context.Context, inst model.Instance) (*calendar.Event, error) {
	event, err := InstanceToEvent(inst, c.loc, c.colors.ColorID(inst.Category), c.now())
	if err != nil || event == nil {
		return nil, err
	}

	var existing *calendar.Event
	if c.index != nil {
		if eventID := c.index.Get(inst.Key); eventID != "" {
			existing, err = c.srv.Events.Get(c.calendarID, eventID).Context(ctx).Do()
			if err != nil {
				existing = nil
			}
		}
	}
	if existing == nil {
		existing, err = c.GetEventByKey(ctx, inst.Key)
		if err != nil {
			return nil, fmt.Errorf("error searching for event: %w", err)
		}
	}

	if existing != nil {
		patch, err := EventNeedsUpdate(existing, event)
		if err != nil {
			return nil, fmt.Errorf("could not compare instance with its calendar event: %w", err)
		}
		if patch == nil {
			return existing, nil
		}
		updated, err := c.PatchEvent(ctx, existing.Id, patch)
		if err == nil && c.index != nil {
			c.index.Set(inst.Key, updated.Id)
		}
		return updated, err
	}

	created, err := c.srv.Events.Insert(c.calendarID, event).Context(ctx).Do()
	if err == nil && c.index != nil {
		c.index.Set(inst.Key, created.Id)
	}
	return created, err
}

// PatchEvent performs a partial update on an event.
func (c *CalendarClient) PatchEvent(ctx context.Context, eventID string, patch *calendar.Event) (*calendar.Event, error) {
	return c.srv.Events.Patch(c.calendarID, eventID, patch).Context(ctx).Do()
}

// GetEventByKey searches for the event carrying the dedup key in its private
// extended properties.
func (c *CalendarClient) GetEventByKey(ctx context.Context, key string) (*calendar.Event, error) {
	events, err := c.srv.Events.List(c.calendarID).
		PrivateExtendedProperty(fmt.Sprintf("%s=%s", DedupKeyProperty, key)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	if len(events.Items) > 0 {
		return events.Items[0], nil
	}
	return nil, nil
}

// Save persists the event index and the color cache.
func (c *CalendarClient) Save() error {
	if c.index != nil {
		if err := c.index.Save(); err != nil {
			return err
		}
	}
	return c.colors.Save()
}

// Mirror is a ledger that copies every write of the wrapped store to the
// calendar. Calendar failures are logged and never fail the ledger write.
type Mirror struct {
	ledger.Store
	cal    *CalendarClient
	logger *zap.Logger
}

// NewMirror wraps store.
func NewMirror(store ledger.Store, cal *CalendarClient, logger *zap.Logger) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{Store: store, cal: cal, logger: logger}
}

func (m *Mirror) sync(ctx context.Context, inst model.Instance) {
	if _, err := m.cal.SyncEvent(ctx, inst); err != nil {
		m.logger.Warn("Calendar sync failed", zap.String("key", inst.Key), zap.Error(err))
	}
}

func (m *Mirror) AppendInstance(ctx context.Context, inst model.Instance) error {
	if inst.Key == "" {
		inst = inst.WithKey()
	}
	if err := m.Store.AppendInstance(ctx, inst); err != nil {
		return err
	}
	m.sync(ctx, inst)
	return nil
}

func (m *Mirror) UpdateInstanceStatus(ctx context.Context, key string, status model.Status) (bool, error) {
	ok, err := m.Store.UpdateInstanceStatus(ctx, key, status)
	if err != nil || !ok {
		return ok, err
	}
	inst, found, err := m.Store.GetInstance(ctx, key)
	if err != nil {
		m.logger.Warn("Could not reload instance for calendar", zap.String("key", key), zap.Error(err))
		return true, nil
	}
	if found {
		m.sync(ctx, inst)
	}
	return true, nil
}

// Ping forwards to the wrapped store when it supports it.
func (m *Mirror) Ping(ctx context.Context) error {
	if p, ok := m.Store.(ledger.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close saves calendar state and closes the wrapped store.
func (m *Mirror) Close() error {
	err := m.cal.Save()
	if c, ok := m.Store.(ledger.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
