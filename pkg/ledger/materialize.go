package ledger

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/model"
)

// Outcome summarizes a batch of idempotent writes.
type Outcome struct {
	Created []model.Instance
	// Existing counts candidates already present in the ledger.
	Existing int
	// Unconfirmed holds candidates whose write failed twice with a conflict.
	// They may or may not have been stored.
	Unconfirmed []model.Instance
}

type snapshotKey struct {
	owner string
	date  civil.Date
}

// Materialize writes candidates that are not yet in the ledger. Existing keys
// are read once per (owner, date) and re-verified by key right before each
// append. Write conflicts are retried once.
func Materialize(ctx context.Context, l Ledger, candidates []model.Instance) (Outcome, error) {
	var out Outcome
	seen := make(map[snapshotKey]map[string]bool)

	for _, c := range candidates {
		if c.Key == "" {
			c = c.WithKey()
		}
		sk := snapshotKey{owner: c.Owner, date: c.Date}
		keys, ok := seen[sk]
		if !ok {
			existing, err := l.QueryInstances(ctx, c.Owner, c.Date, c.Date)
			if err != nil {
				return out, fmt.Errorf("query instances for %s on %s: %w", c.Owner, c.Date, err)
			}
			keys = make(map[string]bool, len(existing))
			for _, e := range existing {
				keys[e.Key] = true
			}
			seen[sk] = keys
		}
		if keys[c.Key] {
			out.Existing++
			continue
		}

		if _, found, err := l.GetInstance(ctx, c.Key); err != nil {
			return out, fmt.Errorf("verify instance %s: %w", c.Key, err)
		} else if found {
			keys[c.Key] = true
			out.Existing++
			continue
		}

		err := l.AppendInstance(ctx, c)
		if errors.Is(err, ErrWriteConflict) {
			err = l.AppendInstance(ctx, c)
		}
		switch {
		case err == nil:
			keys[c.Key] = true
			out.Created = append(out.Created, c)
		case errors.Is(err, ErrDuplicate):
			keys[c.Key] = true
			out.Existing++
		case errors.Is(err, ErrWriteConflict):
			out.Unconfirmed = append(out.Unconfirmed, c)
		default:
			return out, fmt.Errorf("append instance %s: %w", c.Key, err)
		}
	}
	return out, nil
}
