package ledger

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisible(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	day := civil.Date{Year: 2025, Month: 5, Day: 1}
	for _, inst := range []model.Instance{
		{Owner: "1", Date: day, Category: "Bar", Description: "mine"},
		{Owner: "2", Date: day, Category: "Kitchen", Description: "theirs"},
		{Date: day, Category: "Kitchen", Description: "shared kitchen"},
		{Date: day, Category: "Bar", Description: "shared bar"},
	} {
		require.NoError(t, m.AppendInstance(ctx, inst.WithKey()))
	}
	require.NoError(t, m.AppendUser(ctx, model.User{Name: "Ann", ID: "1", Categories: []string{"kitchen"}}))

	user, err := FindUser(ctx, m, "1")
	require.NoError(t, err)
	got, err := Visible(ctx, m, user, day, day)
	require.NoError(t, err)
	var names []string
	for _, inst := range got {
		names = append(names, inst.Description)
	}
	assert.ElementsMatch(t, []string{"mine", "shared kitchen"}, names)

	stranger, err := FindUser(ctx, m, "9")
	require.NoError(t, err)
	got, err = Visible(ctx, m, stranger, day, day)
	require.NoError(t, err)
	assert.Len(t, got, 2, "unregistered users see every shared task")
}
