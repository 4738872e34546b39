package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/index"
	"github.com/harrisonrobin/taskbot/pkg/ledger"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

func TestInstanceToEvent(t *testing.T) {
	loc := time.FixedZone("MSK", 3*3600)
	inst := model.Instance{
		Owner: "1", Date: civil.Date{Year: 2025, Month: 3, Day: 4},
		Category: "Procurement", Subcategory: "Centre", Description: "Order: Dairy", Deadline: "12:00",
		Origin: model.OriginCadence,
	}.WithKey()
	before := time.Date(2025, 3, 4, 8, 0, 0, 0, loc)

	event, err := InstanceToEvent(inst, loc, "5", before)
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "Order: Dairy", event.Summary)
	assert.Equal(t, "2025-03-04T11:30:00+03:00", event.Start.DateTime)
	assert.Equal(t, "2025-03-04T12:00:00+03:00", event.End.DateTime)
	assert.Equal(t, "5", event.ColorId)
	assert.Equal(t, inst.Key, event.ExtendedProperties.Private[DedupKeyProperty])
	assert.Contains(t, event.Description, "Subcategory: Centre")

	late, _ := InstanceToEvent(inst, loc, "5", before.Add(6*time.Hour))
	assert.Equal(t, "! Order: Dairy", late.Summary)

	inst.Status = model.StatusDone
	done, _ := InstanceToEvent(inst, loc, "5", before.Add(6*time.Hour))
	assert.Equal(t, "✓ Order: Dairy", done.Summary)

	inst.Deadline = ""
	none, err := InstanceToEvent(inst, loc, "5", before)
	assert.NoError(t, err)
	assert.Nil(t, none)
}

func TestEventNeedsUpdate(t *testing.T) {
	base := &calendar.Event{
		Summary: "x", Description: "d", ColorId: "1",
		Start: &calendar.EventDateTime{DateTime: "2025-03-04T11:30:00+03:00"},
		End:   &calendar.EventDateTime{DateTime: "2025-03-04T12:00:00+03:00"},
	}
	same := *base
	same.Start = &calendar.EventDateTime{DateTime: "2025-03-04T08:30:00Z"}
	same.End = &calendar.EventDateTime{DateTime: "2025-03-04T09:00:00Z"}
	patch, err := EventNeedsUpdate(base, &same)
	require.NoError(t, err)
	assert.Nil(t, patch, "equal instants in different zones need no patch")

	changed := same
	changed.Summary = "✓ x"
	patch, err = EventNeedsUpdate(base, &changed)
	require.NoError(t, err)
	require.NotNil(t, patch)
	assert.Equal(t, "✓ x", patch.Summary)
	assert.Nil(t, patch.Start)

	_, err = EventNeedsUpdate(base, &calendar.Event{
		Start: &calendar.EventDateTime{DateTime: "garbage"},
		End:   &calendar.EventDateTime{DateTime: "garbage"},
	})
	assert.Error(t, err)
}

// fakeCalendar serves insert, list-by-property and patch for one calendar.
type fakeCalendar struct {
	mu      sync.Mutex
	events  map[string]*calendar.Event
	inserts int
	patches int
}

func (f *fakeCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, rest, _ := strings.Cut(r.URL.Path, "/events")
	id := strings.TrimPrefix(rest, "/")

	switch {
	case r.Method == http.MethodPost:
		var ev calendar.Event
		json.NewDecoder(r.Body).Decode(&ev)
		ev.Id = "evt" + string(rune('0'+len(f.events)))
		f.events[ev.Id] = &ev
		f.inserts++
		json.NewEncoder(w).Encode(ev)
	case r.Method == http.MethodPatch:
		var patch calendar.Event
		json.NewDecoder(r.Body).Decode(&patch)
		ev := f.events[id]
		if patch.Summary != "" {
			ev.Summary = patch.Summary
		}
		f.patches++
		json.NewEncoder(w).Encode(ev)
	case id != "":
		ev, ok := f.events[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]interface{}{"error": map[string]interface{}{"code": 404}})
			return
		}
		json.NewEncoder(w).Encode(ev)
	default:
		want := r.URL.Query().Get("privateExtendedProperty")
		var items []*calendar.Event
		for _, ev := range f.events {
			if ev.ExtendedProperties != nil && DedupKeyProperty+"="+ev.ExtendedProperties.Private[DedupKeyProperty] == want {
				items = append(items, ev)
			}
		}
		json.NewEncoder(w).Encode(calendar.Events{Items: items})
	}
}

func TestMirrorSyncsWrites(t *testing.T) {
	ctx := context.Background()
	fake := &fakeCalendar{events: map[string]*calendar.Event{}}
	ts := httptest.NewServer(fake)
	defer ts.Close()
	srv, err := calendar.NewService(ctx, option.WithEndpoint(ts.URL+"/"), option.WithHTTPClient(ts.Client()))
	require.NoError(t, err)

	idx, _ := index.New("")
	cal := NewCalendarClient(srv, "primary", idx, nil, time.UTC)
	cal.now = func() time.Time { return time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC) }
	m := NewMirror(ledger.NewMemory(), cal, nil)

	day := civil.Date{Year: 2025, Month: 3, Day: 4}
	timed := model.Instance{Owner: "1", Date: day, Description: "Call supplier", Deadline: "15:00"}.WithKey()
	untimed := model.Instance{Owner: "1", Date: day, Description: "Tidy up"}.WithKey()
	require.NoError(t, m.AppendInstance(ctx, timed))
	require.NoError(t, m.AppendInstance(ctx, untimed))
	assert.Equal(t, 1, fake.inserts)
	assert.NotEmpty(t, idx.Get(timed.Key))

	assert.ErrorIs(t, m.AppendInstance(ctx, timed), ledger.ErrDuplicate)
	assert.Equal(t, 1, fake.inserts)

	ok, err := m.UpdateInstanceStatus(ctx, timed.Key, model.StatusDone)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, fake.patches)
	assert.Equal(t, "✓ Call supplier", fake.events[idx.Get(timed.Key)].Summary)

	// The index is lost: the event is found by its extended property.
	idx.Reset(nil)
	_, err = cal.SyncEvent(ctx, model.Instance{Owner: "1", Date: day, Description: "Call supplier", Deadline: "15:00", Status: model.StatusDone}.WithKey())
	require.NoError(t, err)
	assert.Equal(t, 1, fake.inserts)

	require.NoError(t, m.Ping(ctx))
	require.NoError(t, m.Close())
}
