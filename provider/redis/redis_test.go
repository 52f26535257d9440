package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	p, err := New(Config{Client: client, CloseClient: true, OpTimeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p, mr
}

func TestNilClient(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrNilClient)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	p, mr := newTestProvider(t)

	_, ok, err := p.Get(ctx, "store:ns:k")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = p.Set(ctx, "store:ns:k", []byte{0, 1, 2, 0xff}, 4, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("store:ns:k"))
	require.Equal(t, time.Duration(0), mr.TTL("store:ns:k"), "durable records carry no expiry")

	v, ok, err := p.Get(ctx, "store:ns:k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0, 1, 2, 0xff}, v)

	require.NoError(t, p.Del(ctx, "store:ns:k"))
	require.False(t, mr.Exists("store:ns:k"))
}

func TestServerErrorSurfaces(t *testing.T) {
	ctx := context.Background()
	p, mr := newTestProvider(t)
	mr.SetError("LOADING")

	_, ok, err := p.Get(ctx, "store:ns:k")
	require.Error(t, err)
	require.False(t, ok)

	ok, err = p.Set(ctx, "store:ns:k", []byte("v"), 1, 0)
	require.Error(t, err)
	require.False(t, ok)
}

func TestCloseIsIdempotent(t *testing.T) {
	p, _ := newTestProvider(t)
	require.NoError(t, p.Close(context.Background()))
	require.NoError(t, p.Close(context.Background()))
}
