// Package ledger is the record store behind the task tracker: flat
// append/query/update over task instances, templates, supplier profiles and
// users. Backends live in this package (memory, SQLite) and in pkg/google
// (spreadsheet).
package ledger

import (
	"context"
	"errors"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/model"
)

var (
	// ErrDuplicate is returned by AppendInstance when an instance with the
	// same dedup key is already stored.
	ErrDuplicate = errors.New("ledger: instance already exists")

	// ErrWriteConflict marks a transient write failure. Callers retry once.
	ErrWriteConflict = errors.New("ledger: write conflict")
)

// Ledger is the read/write surface the engines and the front-end use.
type Ledger interface {
	// QueryInstances returns instances dated within [from, to]. An empty
	// owner matches every owner.
	QueryInstances(ctx context.Context, owner string, from, to civil.Date) ([]model.Instance, error)
	// QueryTemplates returns templates of owner, or of everyone when owner is empty.
	QueryTemplates(ctx context.Context, owner string) ([]model.Template, error)
	QuerySupplierProfiles(ctx context.Context, activeOnly bool) ([]model.SupplierProfile, error)
	QueryUsers(ctx context.Context) ([]model.User, error)

	// GetInstance looks an instance up by dedup key.
	GetInstance(ctx context.Context, key string) (model.Instance, bool, error)
	AppendInstance(ctx context.Context, inst model.Instance) error
	// UpdateInstanceStatus reports false when no instance has the key.
	UpdateInstanceStatus(ctx context.Context, key string, status model.Status) (bool, error)
}

// Admin is implemented by ledgers that accept seeded configuration records.
type Admin interface {
	AppendTemplate(ctx context.Context, tpl model.Template) error
	AppendSupplierProfile(ctx context.Context, p model.SupplierProfile) error
	AppendUser(ctx context.Context, u model.User) error
}

// Store is a ledger that also accepts configuration records.
type Store interface {
	Ledger
	Admin
}

// Pinger is implemented by ledgers that can report backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Closer is implemented by ledgers holding resources.
type Closer interface {
	Close() error
}
