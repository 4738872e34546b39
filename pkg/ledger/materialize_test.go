package ledger

import (
	"context"
	"testing"

	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flaky fails the first n appends with a write conflict.
type flaky struct {
	*Memory
	failures int
	appends  int
}

func (f *flaky) AppendInstance(ctx context.Context, inst model.Instance) error {
	f.appends++
	if f.failures > 0 {
		f.failures--
		return ErrWriteConflict
	}
	return f.Memory.AppendInstance(ctx, inst)
}

func TestMaterializeSkipsExisting(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()

	a := sample("42", day, "Order milk")
	b := sample("42", day, "Order bread")
	require.NoError(t, l.AppendInstance(ctx, a))

	out, err := Materialize(ctx, l, []model.Instance{a, b, b})
	require.NoError(t, err)
	require.Len(t, out.Created, 1)
	assert.Equal(t, b.Key, out.Created[0].Key)
	assert.Equal(t, 2, out.Existing)

	out, err = Materialize(ctx, l, []model.Instance{a, b})
	require.NoError(t, err)
	assert.Empty(t, out.Created)
	assert.Equal(t, 2, out.Existing)
}

func TestMaterializeComputesMissingKey(t *testing.T) {
	ctx := context.Background()
	l := NewMemory()

	inst := sample("42", day, "Order milk")
	inst.Key = ""
	out, err := Materialize(ctx, l, []model.Instance{inst})
	require.NoError(t, err)
	require.Len(t, out.Created, 1)
	assert.Equal(t, inst.WithKey().Key, out.Created[0].Key)
}

func TestMaterializeRetriesConflictOnce(t *testing.T) {
	ctx := context.Background()

	l := &flaky{Memory: NewMemory(), failures: 1}
	out, err := Materialize(ctx, l, []model.Instance{sample("42", day, "Order milk")})
	require.NoError(t, err)
	assert.Len(t, out.Created, 1)
	assert.Equal(t, 2, l.appends)

	l = &flaky{Memory: NewMemory(), failures: 2}
	out, err = Materialize(ctx, l, []model.Instance{sample("42", day, "Order milk")})
	require.NoError(t, err)
	assert.Empty(t, out.Created)
	assert.Len(t, out.Unconfirmed, 1)
	assert.Equal(t, 2, l.appends)
}
