package google

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/index"
	"github.com/harrisonrobin/taskbot/pkg/ledger"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetsLedger stores the ledger in a Google Sheets spreadsheet. Row numbers
// of task instances are remembered in a KeyIndex so that status updates touch
// a single cell.
type SheetsLedger struct {
	srv           *sheets.Service
	spreadsheetID string
	rows          *index.KeyIndex
	logger        *zap.Logger
	mu            sync.Mutex
}

// NewSheetsService creates a Sheets API service from a client option.
func NewSheetsService(ctx context.Context, opt option.ClientOption) (*sheets.Service, error) {
	srv, err := sheets.NewService(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Sheets client: %w", err)
	}
	return srv, nil
}

// NewSheetsLedger wraps a spreadsheet. rows may be nil.
func NewSheetsLedger(srv *sheets.Service, spreadsheetID string, rows *index.KeyIndex, logger *zap.Logger) *SheetsLedger {
	if rows == nil {
		rows, _ = index.New("")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SheetsLedger{srv: srv, spreadsheetID: spreadsheetID, rows: rows, logger: logger}
}

// classify maps quota and concurrency failures to ledger.ErrWriteConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 409, 429, 500, 502, 503:
			return fmt.Errorf("%w: %v", ledger.ErrWriteConflict, err)
		}
	}
	return err
}

func (s *SheetsLedger) read(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := s.srv.Spreadsheets.Values.Get(s.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, classify(err))
	}
	return resp.Values, nil
}

func (s *SheetsLedger) append(ctx context.Context, rng string, row []interface{}) (*sheets.AppendValuesResponse, error) {
	vr := &sheets.ValueRange{Values: [][]interface{}{row}}
	resp, err := s.srv.Spreadsheets.Values.Append(s.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("append %s: %w", rng, classify(err))
	}
	return resp, nil
}

// scan reads every task row and refreshes the row index.
func (s *SheetsLedger) scan(ctx context.Context) ([]model.Instance, error) {
	values, err := s.read(ctx, tasksRange)
	if err != nil {
		return nil, err
	}
	mappings := make(map[string]string, len(values))
	out := make([]model.Instance, 0, len(values))
	for i, row := range values {
		inst, err := RowInstance(row)
		if err != nil {
			s.logger.Debug("Skipping task row", zap.Int("row", i+2), zap.Error(err))
			continue
		}
		mappings[inst.Key] = strconv.Itoa(i + 2)
		out = append(out, inst)
	}
	s.rows.Reset(mappings)
	return out, nil
}

func (s *SheetsLedger) QueryInstances(ctx context.Context, owner string, from, to civil.Date) ([]model.Instance, error) {
	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	var out []model.Instance
	for _, inst := range all {
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

func (s *SheetsLedger) QueryTemplates(ctx context.Context, owner string) ([]model.Template, error) {
	values, err := s.read(ctx, templatesRange)
	if err != nil {
		return nil, err
	}
	var out []model.Template
	for _, row := range values {
		tpl := RowTemplate(row)
		if tpl.Description == "" {
			continue
		}
		if owner == "" || tpl.Owner == owner {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (s *SheetsLedger) QuerySupplierProfiles(ctx context.Context, activeOnly bool) ([]model.SupplierProfile, error) {
	values, err := s.read(ctx, suppliersRange)
	if err != nil {
		return nil, err
	}
	var out []model.SupplierProfile
	for i, row := range values {
		p := RowSupplier(row)
		if p.Name == "" {
			continue
		}
		if err := p.Validate(); err != nil {
			s.logger.Warn("Skipping supplier row", zap.Int("row", i+2), zap.Error(err))
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *SheetsLedger) QueryUsers(ctx context.Context) ([]model.User, error) {
	values, err := s.read(ctx, usersRange)
	if err != nil {
		return nil, err
	}
	var out []model.User
	for _, row := range values {
		if u := RowUser(row); u.ID != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

// locate returns the row holding key, trusting the index only after the
// key column of that row confirms it.
func (s *SheetsLedger) locate(ctx context.Context, key string) (int, model.Instance, bool, error) {
	if r := s.rows.Get(key); r != "" {
		values, err := s.read(ctx, fmt.Sprintf("%s!A%s:J%s", TasksSheet, r, r))
		if err != nil {
			return 0, model.Instance{}, false, err
		}
		if len(values) == 1 {
			if inst, err := RowInstance(values[0]); err == nil && inst.Key == key {
				n, _ := strconv.Atoi(r)
				return n, inst, true, nil
			}
		}
		s.logger.Debug("Row index is stale", zap.String("key", key), zap.String("row", r))
	}
	all, err := s.scan(ctx)
	if err != nil {
		return 0, model.Instance{}, false, err
	}
	for _, inst := range all {
		if inst.Key == key {
			n, _ := strconv.Atoi(s.rows.Get(key))
			return n, inst, true, nil
		}
	}
	return 0, model.Instance{}, false, nil
}

func (s *SheetsLedger) GetInstance(ctx context.Context, key string) (model.Instance, bool, error) {
	_, inst, ok, err := s.locate(ctx, key)
	return inst, ok, err
}

// AppendInstance writes a new row. The key check and the append are
// serialized within this process; concurrent writers in other processes are
// caught by the caller's post-write verification.
func (s *SheetsLedger) AppendInstance(ctx context.Context, inst model.Instance) error {
	if inst.Key == "" {
		inst = inst.WithKey()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, ok, err := s.locate(ctx, inst.Key); err != nil {
		return err
	} else if ok {
		return ledger.ErrDuplicate
	}
	resp, err := s.append(ctx, tasksRange, InstanceRow(inst))
	if err != nil {
		return err
	}
	if resp.Updates != nil {
		if n, ok := UpdatedRow(resp.Updates.UpdatedRange); ok {
			s.rows.Set(inst.Key, strconv.Itoa(n))
		}
	}
	return nil
}

func (s *SheetsLedger) UpdateInstanceStatus(ctx context.Context, key string, status model.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, _, ok, err := s.locate(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	rng := fmt.Sprintf("%s!%s%d", TasksSheet, statusColumn, row)
	vr := &sheets.ValueRange{Values: [][]interface{}{{string(status)}}}
	_, err = s.srv.Spreadsheets.Values.Update(s.spreadsheetID, rng, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return false, fmt.Errorf("update %s: %w", rng, classify(err))
	}
	return true, nil
}

func (s *SheetsLedger) AppendTemplate(ctx context.Context, tpl model.Template) error {
	_, err := s.append(ctx, templatesRange, TemplateRow(tpl))
	return err
}

func (s *SheetsLedger) AppendSupplierProfile(ctx context.Context, p model.SupplierProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := s.append(ctx, suppliersRange, SupplierRow(p))
	return err
}

func (s *SheetsLedger) AppendUser(ctx context.Context, u model.User) error {
	_, err := s.append(ctx, usersRange, UserRow(u))
	return err
}

// EnsureHeaders writes the header row of every worksheet whose first row is empty.
func (s *SheetsLedger) EnsureHeaders(ctx context.Context) error {
	for _, name := range []string{TasksSheet, TemplatesSheet, SuppliersSheet, UsersSheet} {
		values, err := s.read(ctx, name+"!1:1")
		if err != nil {
			return err
		}
		if len(values) > 0 && len(values[0]) > 0 {
			continue
		}
		vr := &sheets.ValueRange{Values: [][]interface{}{Headers[name]}}
		if _, err := s.srv.Spreadsheets.Values.Update(s.spreadsheetID, name+"!A1", vr).
			ValueInputOption("RAW").Context(ctx).Do(); err != nil {
			return fmt.Errorf("write %s headers: %w", name, err)
		}
		s.logger.Info("Wrote worksheet headers", zap.String("sheet", name))
	}
	return nil
}

// Ping checks that the spreadsheet is reachable.
func (s *SheetsLedger) Ping(ctx context.Context) error {
	_, err := s.srv.Spreadsheets.Get(s.spreadsheetID).Fields("spreadsheetId").Context(ctx).Do()
	return err
}

// Close persists the row index.
func (s *SheetsLedger) Close() error {
	return s.rows.Save()
}

var (
	_ ledger.Store  = (*SheetsLedger)(nil)
	_ ledger.Pinger = (*SheetsLedger)(nil)
	_ ledger.Closer = (*SheetsLedger)(nil)
)
