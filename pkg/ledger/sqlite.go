package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/harrisonrobin/taskbot/pkg/util"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const schema = `
CREATE TABLE IF NOT EXISTS instances (
	key         TEXT PRIMARY KEY,
	owner       TEXT NOT NULL,
	date        TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	subcategory TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	deadline    TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL DEFAULT '',
	origin      TEXT NOT NULL DEFAULT '',
	kind        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS instances_owner_date ON instances(owner, date);
CREATE TABLE IF NOT EXISTS templates (
	owner       TEXT NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	subcategory TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	deadline    TEXT NOT NULL DEFAULT '',
	rule        TEXT NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS suppliers (
	name            TEXT NOT NULL,
	category        TEXT NOT NULL DEFAULT '',
	points          TEXT NOT NULL DEFAULT '',
	kind            TEXT NOT NULL,
	order_deadline  TEXT NOT NULL DEFAULT '',
	lead_days       INTEGER NOT NULL DEFAULT 0,
	shelf_life_days INTEGER NOT NULL DEFAULT 0,
	interval_days   INTEGER NOT NULL DEFAULT 0,
	active          INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE IF NOT EXISTS users (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	categories TEXT NOT NULL DEFAULT '',
	timezone   TEXT NOT NULL DEFAULT ''
);`

// SQLite is a single-file ledger for running without a spreadsheet.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and creates, if needed) the ledger database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite ledger: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

const instanceColumns = "key, owner, date, category, subcategory, description, deadline, status, origin, kind"

func (s *SQLite) QueryInstances(ctx context.Context, owner string, from, to civil.Date) ([]model.Instance, error) {
	q := "SELECT " + instanceColumns + " FROM instances WHERE date >= ? AND date <= ?"
	args := []any{from.String(), to.String()}
	if owner != "" {
		q += " AND owner = ?"
		args = append(args, owner)
	}
	q += " ORDER BY date, rowid"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query instances: %w", err)
	}
	defer rows.Close()

	var out []model.Instance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInstance(sc scanner) (model.Instance, error) {
	var (
		inst                 model.Instance
		date                 string
		status, origin, kind string
	)
	err := sc.Scan(&inst.Key, &inst.Owner, &date, &inst.Category, &inst.Subcategory,
		&inst.Description, &inst.Deadline, &status, &origin, &kind)
	if err != nil {
		return model.Instance{}, fmt.Errorf("scan instance: %w", err)
	}
	d, err := civil.ParseDate(date)
	if err != nil {
		return model.Instance{}, fmt.Errorf("instance %s has bad date %q: %w", inst.Key, date, err)
	}
	inst.Date = d
	inst.Status = model.Status(status)
	inst.Origin = model.Origin(origin)
	inst.Kind = model.Kind(kind)
	return inst, nil
}

func (s *SQLite) GetInstance(ctx context.Context, key string) (model.Instance, bool, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+instanceColumns+" FROM instances WHERE key = ?", key)
	inst, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Instance{}, false, nil
	}
	if err != nil {
		return model.Instance{}, false, err
	}
	return inst, true, nil
}

func (s *SQLite) AppendInstance(ctx context.Context, inst model.Instance) error {
	if inst.Key == "" {
		inst = inst.WithKey()
	}
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO instances ("+instanceColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT(key) DO NOTHING",
		inst.Key, inst.Owner, inst.Date.String(), inst.Category, inst.Subcategory,
		inst.Description, inst.Deadline, string(inst.Status), string(inst.Origin), string(inst.Kind))
	if err != nil {
		return classify(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *SQLite) UpdateInstanceStatus(ctx context.Context, key string, status model.Status) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE instances SET status = ? WHERE key = ?", string(status), key)
	if err != nil {
		return false, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLite) QueryTemplates(ctx context.Context, owner string) ([]model.Template, error) {
	q := "SELECT owner, category, subcategory, description, deadline, rule, active FROM templates"
	var args []any
	if owner != "" {
		q += " WHERE owner = ?"
		args = append(args, owner)
	}
	rows, err := s.db.QueryContext(ctx, q+" ORDER BY rowid", args...)
	if err != nil {
		return nil, fmt.Errorf("query templates: %w", err)
	}
	defer rows.Close()

	var out []model.Template
	for rows.Next() {
		var tpl model.Template
		if err := rows.Scan(&tpl.Owner, &tpl.Category, &tpl.Subcategory, &tpl.Description,
			&tpl.Deadline, &tpl.Rule, &tpl.Active); err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		out = append(out, tpl)
	}
	return out, rows.Err()
}

func (s *SQLite) QuerySupplierProfiles(ctx context.Context, activeOnly bool) ([]model.SupplierProfile, error) {
	q := `SELECT name, category, points, kind, order_deadline, lead_days, shelf_life_days, interval_days, active
		FROM suppliers`
	if activeOnly {
		q += " WHERE active = 1"
	}
	rows, err := s.db.QueryContext(ctx, q+" ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query suppliers: %w", err)
	}
	defer rows.Close()

	var out []model.SupplierProfile
	for rows.Next() {
		var (
			p      model.SupplierProfile
			points string
			kind   string
		)
		if err := rows.Scan(&p.Name, &p.Category, &points, &kind, &p.OrderDeadline,
			&p.LeadDays, &p.ShelfLifeDays, &p.IntervalDays, &p.Active); err != nil {
			return nil, fmt.Errorf("scan supplier: %w", err)
		}
		p.Kind = model.CadenceKind(kind)
		p.DeliveryPoints = util.SplitList(points)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLite) QueryUsers(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, categories, timezone FROM users ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		var (
			u    model.User
			cats string
		)
		if err := rows.Scan(&u.ID, &u.Name, &cats, &u.Timezone); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Categories = util.SplitList(cats)
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQLite) AppendTemplate(ctx context.Context, tpl model.Template) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO templates (owner, category, subcategory, description, deadline, rule, active) VALUES (?, ?, ?, ?, ?, ?, ?)",
		tpl.Owner, tpl.Category, tpl.Subcategory, tpl.Description, tpl.Deadline, tpl.Rule, tpl.Active)
	return classify(err)
}

func (s *SQLite) AppendSupplierProfile(ctx context.Context, p model.SupplierProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO suppliers (name, category, points, kind, order_deadline, lead_days, shelf_life_days, interval_days, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Category, strings.Join(p.DeliveryPoints, ", "), string(p.Kind), p.OrderDeadline,
		p.LeadDays, p.ShelfLifeDays, p.IntervalDays, p.Active)
	return classify(err)
}

func (s *SQLite) AppendUser(ctx context.Context, u model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, categories, timezone) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, categories = excluded.categories, timezone = excluded.timezone`,
		u.ID, u.Name, strings.Join(u.Categories, ", "), u.Timezone)
	return classify(err)
}

// classify maps a locked database to ErrWriteConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return fmt.Errorf("%w: %v", ErrWriteConflict, err)
		}
	}
	return err
}
