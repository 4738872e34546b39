package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/ledger"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// fakeSheets serves the subset of the Sheets values API the ledger uses.
type fakeSheets struct {
	mu     sync.Mutex
	sheets map[string][][]interface{} // index 0 is row 1
	status int                        // forced status for write calls
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{sheets: map[string][][]interface{}{}}
}

// a1 parses "Sheet!A2:J" style ranges into a sheet, a start cell and an end row (0 = open).
func a1(rng string) (sheet string, col, row, endRow int) {
	sheet, ref, _ := strings.Cut(rng, "!")
	start, end, _ := strings.Cut(ref, ":")
	parse := func(s string) (int, int) {
		c, r := 0, 0
		for _, ch := range s {
			if ch >= 'A' && ch <= 'Z' {
				c = c*26 + int(ch-'A'+1)
			} else if ch >= '0' && ch <= '9' {
				r = r*10 + int(ch-'0')
			}
		}
		if c == 0 {
			c = 1
		}
		return c - 1, r
	}
	col, row = parse(start)
	if row == 0 {
		row = 1
	}
	_, endRow = parse(end)
	return sheet, col, row, endRow
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, rest, _ := strings.Cut(r.URL.Path, "/v4/spreadsheets/")
	_, rng, hasValues := strings.Cut(rest, "/values/")
	if !hasValues {
		json.NewEncoder(w).Encode(map[string]string{"spreadsheetId": "sheet-id"})
		return
	}
	if r.Method != http.MethodGet && f.status != 0 {
		w.WriteHeader(f.status)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": map[string]interface{}{"code": f.status, "message": "busy"}})
		return
	}

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(rng, ":append"):
		var vr sheets.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		sheet, _, _, _ := a1(strings.TrimSuffix(rng, ":append"))
		rows := f.sheets[sheet]
		if len(rows) == 0 {
			rows = append(rows, []interface{}{"header"})
		}
		rows = append(rows, vr.Values...)
		f.sheets[sheet] = rows
		n := len(rows)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"updates": map[string]interface{}{"updatedRange": fmt.Sprintf("%s!A%d:J%d", sheet, n, n)},
		})
	case r.Method == http.MethodPut:
		var vr sheets.ValueRange
		json.NewDecoder(r.Body).Decode(&vr)
		sheet, col, row, _ := a1(rng)
		rows := f.sheets[sheet]
		for len(rows) < row {
			rows = append(rows, nil)
		}
		for i, values := range vr.Values {
			target := rows[row-1+i]
			for len(target) < col+len(values) {
				target = append(target, "")
			}
			copy(target[col:], values)
			rows[row-1+i] = target
		}
		f.sheets[sheet] = rows
		json.NewEncoder(w).Encode(map[string]interface{}{"updatedRange": rng})
	default:
		sheet, _, row, end := a1(rng)
		rows := f.sheets[sheet]
		var out [][]interface{}
		for i := row - 1; i < len(rows) && (end == 0 || i < end); i++ {
			out = append(out, rows[i])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"range": rng, "values": out})
	}
}

func newTestSheetsLedger(t *testing.T, fake *fakeSheets) *SheetsLedger {
	t.Helper()
	ts := httptest.NewServer(fake)
	t.Cleanup(ts.Close)
	srv, err := sheets.NewService(context.Background(),
		option.WithEndpoint(ts.URL+"/"),
		option.WithHTTPClient(ts.Client()),
	)
	require.NoError(t, err)
	return NewSheetsLedger(srv, "sheet-id", nil, zap.NewNop())
}

func TestSheetsLedgerInstances(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets()
	l := newTestSheetsLedger(t, fake)

	require.NoError(t, l.EnsureHeaders(ctx))
	assert.Equal(t, Headers[TasksSheet], fake.sheets[TasksSheet][0])

	day := civil.Date{Year: 2025, Month: 3, Day: 4}
	inst := model.Instance{Owner: "42", Date: day, Category: "Procurement", Description: "Order: Dairy", Deadline: "12:00", Origin: model.OriginCadence, Kind: model.KindOrder}.WithKey()
	require.NoError(t, l.AppendInstance(ctx, inst))
	assert.Equal(t, "2", l.rows.Get(inst.Key))

	err := l.AppendInstance(ctx, inst)
	assert.ErrorIs(t, err, ledger.ErrDuplicate)

	got, ok, err := l.GetInstance(ctx, inst.Key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, inst, got)

	ok, err = l.UpdateInstanceStatus(ctx, inst.Key, model.StatusDone)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "done", fake.sheets[TasksSheet][1][5])

	ok, err = l.UpdateInstanceStatus(ctx, "missing", model.StatusDone)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := l.QueryInstances(ctx, "42", day, day)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Done())

	none, err := l.QueryInstances(ctx, "7", day, day)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSheetsLedgerStaleIndexFallsBackToScan(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets()
	l := newTestSheetsLedger(t, fake)

	day := civil.Date{Year: 2025, Month: 3, Day: 4}
	a := model.Instance{Owner: "1", Date: day, Description: "first"}.WithKey()
	b := model.Instance{Owner: "1", Date: day, Description: "second"}.WithKey()
	require.NoError(t, l.AppendInstance(ctx, a))
	require.NoError(t, l.AppendInstance(ctx, b))

	// Someone sorted the sheet by hand.
	rows := fake.sheets[TasksSheet]
	rows[1], rows[2] = rows[2], rows[1]

	ok, err := l.UpdateInstanceStatus(ctx, b.Key, model.StatusDone)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "done", fake.sheets[TasksSheet][1][5])
	assert.Equal(t, "", fake.sheets[TasksSheet][2][5])
	assert.Equal(t, "2", l.rows.Get(b.Key))
}

func TestSheetsLedgerLegacyRows(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets()
	fake.sheets[TasksSheet] = [][]interface{}{
		Headers[TasksSheet],
		{"04.03.2025", "Kitchen", "", "Check fridge", "10:00", "выполнено", "повтор"},
		{"not a date", "Kitchen", "", "Broken"},
	}
	l := newTestSheetsLedger(t, fake)

	day := civil.Date{Year: 2025, Month: 3, Day: 4}
	list, err := l.QueryInstances(ctx, "", day, day)
	require.NoError(t, err)
	require.Len(t, list, 1)
	inst := list[0]
	assert.True(t, inst.Done())
	assert.Equal(t, model.OriginRecurrence, inst.Origin)
	assert.Equal(t, model.DedupKey("", day, "Kitchen", "", "Check fridge", "10:00"), inst.Key)
}

func TestSheetsLedgerConfigRecords(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets()
	l := newTestSheetsLedger(t, fake)

	require.NoError(t, l.AppendTemplate(ctx, model.Template{Owner: "1", Description: "Water plants", Rule: "every 2 days", Active: true}))
	require.NoError(t, l.AppendSupplierProfile(ctx, model.SupplierProfile{
		Name: "Dairy", Kind: model.CadenceShelfLife, LeadDays: 1, ShelfLifeDays: 3,
		DeliveryPoints: []string{"Centre", "North"}, OrderDeadline: "12:00", Active: true,
	}))
	require.NoError(t, l.AppendUser(ctx, model.User{Name: "Ann", ID: "1", Categories: []string{"Kitchen"}}))
	assert.Error(t, l.AppendSupplierProfile(ctx, model.SupplierProfile{Name: "Broken"}))

	tpls, err := l.QueryTemplates(ctx, "1")
	require.NoError(t, err)
	require.Len(t, tpls, 1)
	assert.Equal(t, "every 2 days", tpls[0].Rule)
	assert.True(t, tpls[0].Active)

	profiles, err := l.QuerySupplierProfiles(ctx, true)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, 3, profiles[0].ShelfLifeDays)
	assert.Equal(t, []string{"Centre", "North"}, profiles[0].DeliveryPoints)

	users, err := l.QueryUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].Follows("kitchen"))

	require.NoError(t, l.Ping(ctx))
}

func TestSheetsLedgerQuotaIsWriteConflict(t *testing.T) {
	ctx := context.Background()
	fake := newFakeSheets()
	fake.status = http.StatusTooManyRequests
	l := newTestSheetsLedger(t, fake)

	err := l.AppendInstance(ctx, model.Instance{Date: civil.Date{Year: 2025, Month: 1, Day: 1}, Description: "x"})
	assert.ErrorIs(t, err, ledger.ErrWriteConflict)
}

func TestUpdatedRow(t *testing.T) {
	for rng, want := range map[string]int{"Tasks!A15:J15": 15, "'Tasks'!A2": 2} {
		got, ok := UpdatedRow(rng)
		if !ok || got != want {
			t.Errorf("UpdatedRow(%q) = %d, %v; want %d", rng, got, ok, want)
		}
	}
	if _, ok := UpdatedRow("Tasks"); ok {
		t.Errorf("Expected no row for a bare sheet name")
	}
}

func TestSupplierRowRoundTrip(t *testing.T) {
	p := model.SupplierProfile{Name: "Bread", Category: "Procurement", Kind: model.CadenceInterval, LeadDays: 0, IntervalDays: 2, Active: false}
	row := SupplierRow(p)
	// Numbers come back from the API as JSON numbers.
	for i, v := range row {
		if n, ok := v.(int); ok {
			row[i] = float64(n)
		}
	}
	got := RowSupplier(row)
	assert.Equal(t, p.IntervalDays, got.IntervalDays)
	assert.Equal(t, p.Kind, got.Kind)
	assert.False(t, got.Active)
}
