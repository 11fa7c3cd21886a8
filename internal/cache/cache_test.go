package cache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoLoadMemoizesUntilInvalidated(t *testing.T) {
	memo := NewMemo()
	ctx := WithMemo(context.Background(), memo)
	id := uuid.New()
	key := Key{Entity: EntityOrderLines, ID: id.String()}

	calls := 0
	load := func(context.Context) ([]string, error) {
		calls++
		return []string{"line"}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := Load(ctx, memo, key, load)
		require.NoError(t, err)
		assert.Equal(t, []string{"line"}, v)
	}
	assert.Equal(t, 1, calls)

	require.NoError(t, InvalidateAll(ctx, nil, OrderKeys(id)...))
	assert.Zero(t, memo.Len())

	_, err := Load(ctx, memo, key, load)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestLoadDoesNotMemoizeErrors(t *testing.T) {
	memo := NewMemo()
	key := Key{Entity: EntityOrder, ID: "1"}
	_, err := Load(context.Background(), memo, key, func(context.Context) (int, error) {
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	assert.Zero(t, memo.Len())

	var nilMemo *Memo
	v, err := Load(context.Background(), nilMemo, key, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestMiddlewareAttachesFreshMemo(t *testing.T) {
	var seen []*Memo
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m, ok := FromContext(r.Context())
		require.True(t, ok)
		seen = append(seen, m)
	}))
	for i := 0; i < 2; i++ {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	require.Len(t, seen, 2)
	assert.NotSame(t, seen[0], seen[1])
}

func TestJSONCacheRoundTripAndInvalidate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewJSON(client, "pricing", time.Minute)
	ctx := context.Background()
	id := uuid.New()
	key := Key{Entity: EntityOrder, ID: id.String()}

	type snapshot struct {
		Total string `json:"total"`
	}
	require.NoError(t, c.Set(ctx, key, snapshot{Total: "135.30"}))
	assert.True(t, mr.Exists("pricing:order:"+id.String()))

	var got snapshot
	ok, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "135.30", got.Total)

	memo := NewMemo()
	memo.Set(key, got)
	ctx = WithMemo(ctx, memo)
	require.NoError(t, InvalidateAll(ctx, []Invalidator{c}, OrderKeys(id)...))
	assert.False(t, mr.Exists("pricing:order:"+id.String()))
	assert.Zero(t, memo.Len())

	ok, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, ok)
}
