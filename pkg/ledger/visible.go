package ledger

import (
	"context"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/model"
)

// Visible returns the instances user sees in [from, to]: their own, plus
// unowned ones in categories they follow.
func Visible(ctx context.Context, l Ledger, user model.User, from, to civil.Date) ([]model.Instance, error) {
	all, err := l.QueryInstances(ctx, "", from, to)
	if err != nil {
		return nil, err
	}
	var out []model.Instance
	for _, inst := range all {
		switch {
		case inst.Owner == user.ID:
			out = append(out, inst)
		case inst.Owner == "" && user.Follows(inst.Category):
			out = append(out, inst)
		}
	}
	return out, nil
}

// FindUser returns the user with the chat id, or a user following every
// category when the id is not registered.
func FindUser(ctx context.Context, l Ledger, id string) (model.User, error) {
	users, err := l.QueryUsers(ctx)
	if err != nil {
		return model.User{}, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return model.User{ID: id}, nil
}
