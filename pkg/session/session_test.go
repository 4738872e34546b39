package session

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/harrisonrobin/taskbot/pkg/model"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	s, err := store.Get(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, "100", s.ChatID)
	assert.Equal(t, StepIdle, s.Step)

	s.Step = StepText
	s.Draft = model.Draft{Category: "Kitchen"}
	s.Listing = []string{"k1", "k2"}
	require.NoError(t, store.Put(ctx, s))

	got, err := store.Get(ctx, "100")
	require.NoError(t, err)
	assert.Equal(t, StepText, got.Step)
	assert.Equal(t, "Kitchen", got.Draft.Category)
	key, ok := got.ListingKey(2)
	assert.True(t, ok)
	assert.Equal(t, "k2", key)
	_, ok = got.ListingKey(3)
	assert.False(t, ok)

	got.Reset()
	assert.Equal(t, StepIdle, got.Step)
	assert.Len(t, got.Listing, 2)

	require.NoError(t, store.Delete(ctx, "100"))
	fresh, err := store.Get(ctx, "100")
	require.NoError(t, err)
	assert.Empty(t, fresh.Listing)
}

func TestMemoryStore(t *testing.T) {
	exercise(t, NewMemoryStore(0))
}

func TestMemoryStoreExpires(t *testing.T) {
	m := NewMemoryStore(time.Hour)
	clock := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, m.Put(ctx, &Session{ChatID: "1", Step: StepWhen}))
	clock = clock.Add(2 * time.Hour)
	s, err := m.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, StepIdle, s.Step)
}

// fakeRedis answers GET/SET/DEL from a map without a server.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func (f *fakeRedis) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (f *fakeRedis) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (f *fakeRedis) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		args := cmd.Args()
		key, _ := args[1].(string)
		switch c := cmd.(type) {
		case *redis.StringCmd:
			v, ok := f.data[key]
			if !ok {
				c.SetErr(redis.Nil)
				return redis.Nil
			}
			c.SetVal(v)
		case *redis.StatusCmd:
			switch v := args[2].(type) {
			case []byte:
				f.data[key] = string(v)
			case string:
				f.data[key] = v
			}
			if len(args) >= 5 {
				n, _ := args[4].(int64)
				switch args[3] {
				case "ex":
					f.ttls[key] = time.Duration(n) * time.Second
				case "px":
					f.ttls[key] = time.Duration(n) * time.Millisecond
				}
			}
			c.SetVal("OK")
		case *redis.IntCmd:
			delete(f.data, key)
			c.SetVal(1)
		}
		return nil
	}
}

func TestRedisStore(t *testing.T) {
	fake := &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	rdb.AddHook(fake)
	defer rdb.Close()

	exercise(t, NewRedisStore(rdb, 90*time.Minute))
	require.NoError(t, NewRedisStore(rdb, 90*time.Minute).Put(context.Background(), &Session{ChatID: "7"}))
	assert.Contains(t, fake.data, Key("7"))
	assert.Equal(t, 90*time.Minute, fake.ttls[Key("7")])
}

func TestRedisStoreCorruptEntry(t *testing.T) {
	fake := &fakeRedis{data: map[string]string{Key("9"): "{not json"}, ttls: map[string]time.Duration{}}
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	rdb.AddHook(fake)
	defer rdb.Close()

	s, err := NewRedisStore(rdb, 0).Get(context.Background(), "9")
	require.NoError(t, err)
	assert.Equal(t, "9", s.ChatID)
	assert.Equal(t, StepIdle, s.Step)
}

func TestCodec(t *testing.T) {
	in := &Session{ChatID: "5", Step: StepDeadline, Listing: []string{"a"}, Draft: model.Draft{Description: "Call"}}
	data, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in.Step, out.Step)
	assert.Equal(t, in.Draft.Description, out.Draft.Description)
	assert.False(t, out.Draft.HasDate)
	assert.Equal(t, "taskbot:session:5", Key("5"))

	_, err = Decode([]byte("nope"))
	assert.Error(t, err)
}

func TestCodecKeepsListingWithoutDraft(t *testing.T) {
	data, err := Encode(&Session{ChatID: "42", Listing: []string{"k1", "k2"}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "0000-00-00")

	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, out.Listing)
	key, ok := out.ListingKey(2)
	assert.True(t, ok)
	assert.Equal(t, "k2", key)
}

func TestCodecDraftDate(t *testing.T) {
	date := civil.Date{Year: 2025, Month: time.March, Day: 5}
	in := &Session{ChatID: "8", Step: StepWhen, Draft: model.Draft{Date: date, HasDate: true, Deadline: "14:00", Rule: "every 2 days"}}
	data, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, in.Draft, out.Draft)

	_, err = Decode([]byte(`{"chat_id":"8","draft":{"date":"5 March"}}`))
	assert.Error(t, err)
}
