package config

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/polycache/codec"
	"github.com/unkn0wn-root/polycache/provider/bigcache"
	"github.com/unkn0wn-root/polycache/provider/memory"
	"github.com/unkn0wn-root/polycache/provider/redis"
	"github.com/unkn0wn-root/polycache/provider/ristretto"
)

type user struct {
	ID   string `json:"id" msgpack:"id" cbor:"id"`
	Name string `json:"name" msgpack:"name" cbor:"name"`
}

const minimal = `
namespace: user
capacity_items: 100
capacity_bytes: 4096
`

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse([]byte(minimal))
	require.NoError(t, err)

	s, err := cfg.Strategy()
	require.NoError(t, err)
	assert.Equal(t, "lru", s.Name())
	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, "write_through", p.Name())

	st, err := cfg.OpenStore()
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, st)

	cd, err := CodecFor[user](cfg)
	require.NoError(t, err)
	assert.IsType(t, codec.JSON[user]{}, cd)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]struct {
		doc  string
		want string
	}{
		"missing namespace": {
			doc:  "capacity_items: 1\ncapacity_bytes: 1\n",
			want: "Config.Namespace is required",
		},
		"zero capacity": {
			doc:  "namespace: n\ncapacity_items: 0\ncapacity_bytes: 1\n",
			want: "Config.CapacityItems is required",
		},
		"bad eviction": {
			doc:  minimal + "eviction: random\n",
			want: "Config.Eviction must be one of: lru lfu fifo",
		},
		"bad policy": {
			doc:  minimal + "write_policy: write_around\n",
			want: "Config.WritePolicy must be one of",
		},
		"redis without section": {
			doc:  minimal + "store:\n  kind: redis\n",
			want: "Config.Store.Redis is required",
		},
		"redis bad addr": {
			doc:  minimal + "store:\n  kind: redis\n  redis:\n    addrs: [\"nohost\"]\n",
			want: "must be host:port",
		},
		"ristretto zero cost": {
			doc:  minimal + "store:\n  kind: ristretto\n  ristretto:\n    num_counters: 100\n",
			want: "Config.Store.Ristretto.MaxCost must be greater than 0",
		},
		"unknown field": {
			doc:  minimal + "capacity: 3\n",
			want: "field capacity not found",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cache.yaml")
	doc := minimal + `
eviction: fifo
write_policy: write_back
codec: cbor
max_value_bytes: 128
store:
  kind: bigcache
  bigcache:
    shards: 16
    life_window: 1h
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "fifo", cfg.Eviction)
	assert.Equal(t, int64(3600e9), int64(cfg.Store.BigCache.LifeWindow))

	st, err := cfg.OpenStore()
	require.NoError(t, err)
	assert.IsType(t, &bigcache.Provider{}, st)
	require.NoError(t, st.Close(context.Background()))

	cd, err := CodecFor[user](cfg)
	require.NoError(t, err)
	_, err = cd.Encode(user{ID: "1", Name: strings.Repeat("x", 200)})
	require.ErrorIs(t, err, codec.ErrTooLarge)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestOpenRistretto(t *testing.T) {
	cfg, err := Parse([]byte(minimal + `
store:
  kind: ristretto
  ristretto:
    num_counters: 1000
    max_cost: 1048576
    synchronous: true
`))
	require.NoError(t, err)
	st, err := cfg.OpenStore()
	require.NoError(t, err)
	assert.IsType(t, &ristretto.Provider{}, st)
	require.NoError(t, st.Close(context.Background()))
}

func TestNewWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg, err := Parse([]byte(minimal + `
write_policy: write_through
codec: msgpack
store:
  kind: redis
  redis:
    addrs: ["` + mr.Addr() + `"]
    op_timeout: 1s
`))
	require.NoError(t, err)

	opts, err := Options[user](cfg)
	require.NoError(t, err)
	assert.IsType(t, &redis.Redis{}, opts.Store)
	require.NoError(t, opts.Store.Close(context.Background()))

	m, err := New[user](cfg)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "u1", user{ID: "u1", Name: "Ana"}, 0))
	assert.True(t, mr.Exists("store:user:u1"))

	got, ok, err := m.Stored(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ana", got.Name)
	require.NoError(t, m.Close(ctx))
}

func TestRistrettoIsSynchronousByDefault(t *testing.T) {
	cfg, err := Parse([]byte(minimal + `
store:
  kind: ristretto
  ristretto:
    num_counters: 1000
    max_cost: 1048576
`))
	require.NoError(t, err)
	require.Nil(t, cfg.Store.Ristretto.Synchronous)

	ctx := context.Background()
	st, err := cfg.OpenStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close(ctx) })

	for i := 0; i < 50; i++ {
		k := "store:user:" + strconv.Itoa(i)
		ok, err := st.Set(ctx, k, []byte("v"), 1, 0)
		require.NoError(t, err)
		require.True(t, ok)
		_, ok, err = st.Get(ctx, k)
		require.NoError(t, err)
		require.True(t, ok, "write %d not visible on return", i)
	}
}
