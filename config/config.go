// Package config builds polycache options from a YAML file.
//
//	namespace: user
//	capacity_items: 10000
//	capacity_bytes: 67108864
//	eviction: lfu              # lru | lfu | fifo
//	write_policy: write_back   # write_through | write_back
//	codec: msgpack             # json | msgpack | cbor
//	max_value_bytes: 65536
//	store:
//	  kind: redis              # memory | ristretto | bigcache | redis
//	  redis:
//	    addrs: ["127.0.0.1:6379"]
//	    op_timeout: 250ms
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	goredis "github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/unkn0wn-root/polycache"
	"github.com/unkn0wn-root/polycache/codec"
	"github.com/unkn0wn-root/polycache/eviction"
	pr "github.com/unkn0wn-root/polycache/provider"
	"github.com/unkn0wn-root/polycache/provider/bigcache"
	"github.com/unkn0wn-root/polycache/provider/memory"
	"github.com/unkn0wn-root/polycache/provider/redis"
	"github.com/unkn0wn-root/polycache/provider/ristretto"
	"github.com/unkn0wn-root/polycache/writepolicy"
)

var validate = validator.New()

type Config struct {
	Namespace        string `yaml:"namespace" validate:"required"`
	CapacityItems    int    `yaml:"capacity_items" validate:"required,gt=0"`
	CapacityBytes    int64  `yaml:"capacity_bytes" validate:"required,gt=0"`
	Eviction         string `yaml:"eviction" validate:"omitempty,oneof=lru lfu fifo"`
	WritePolicy      string `yaml:"write_policy" validate:"omitempty,oneof=write_through write_back"`
	Codec            string `yaml:"codec" validate:"omitempty,oneof=json msgpack cbor"`
	MaxValueBytes    int    `yaml:"max_value_bytes" validate:"gte=0"`
	MaxHistory       int    `yaml:"max_history"`
	EnforcementLimit int    `yaml:"enforcement_limit" validate:"gte=0"`

	Store Store `yaml:"store"`
}

type Store struct {
	Kind      string     `yaml:"kind" validate:"omitempty,oneof=memory ristretto bigcache redis"`
	Ristretto *Ristretto `yaml:"ristretto" validate:"required_if=Kind ristretto,omitempty"`
	BigCache  *BigCache  `yaml:"bigcache" validate:"omitempty"`
	Redis     *Redis     `yaml:"redis" validate:"required_if=Kind redis,omitempty"`
}

type Ristretto struct {
	NumCounters int64 `yaml:"num_counters" validate:"gt=0"`
	MaxCost     int64 `yaml:"max_cost" validate:"gt=0"`
	BufferItems int64 `yaml:"buffer_items" validate:"gte=0"`
	Metrics     bool  `yaml:"metrics"`
	// Synchronous defaults to true so records are visible to snapshots and
	// Stored as soon as a write returns.
	Synchronous *bool `yaml:"synchronous"`
}

type BigCache struct {
	LifeWindow         time.Duration `yaml:"life_window" validate:"gte=0"`
	CleanWindow        time.Duration `yaml:"clean_window" validate:"gte=0"`
	MaxEntrySize       int           `yaml:"max_entry_size" validate:"gte=0"`
	HardMaxCacheSizeMB int           `yaml:"hard_max_cache_size_mb" validate:"gte=0"`
	Shards             int           `yaml:"shards" validate:"gte=0"`
}

type Redis struct {
	Addrs     []string      `yaml:"addrs" validate:"required,min=1,dive,hostname_port"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db" validate:"gte=0"`
	OpTimeout time.Duration `yaml:"op_timeout" validate:"gte=0"`
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML document. Unknown fields are rejected.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		msgs = append(msgs, formatFieldError(fe))
	}
	return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s entries", field, fe.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port, got %q", field, fe.Value())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}

func (c *Config) Strategy() (eviction.Strategy, error) {
	if c.Eviction == "" {
		return eviction.LRU{}, nil
	}
	return eviction.New(eviction.Kind(c.Eviction))
}

func (c *Config) Policy() (writepolicy.Policy, error) {
	if c.WritePolicy == "" {
		return writepolicy.WriteThrough{}, nil
	}
	return writepolicy.New(writepolicy.Kind(c.WritePolicy))
}

// OpenStore constructs the configured backing store. The caller owns it; a
// cache built with it closes it on Close.
func (c *Config) OpenStore() (pr.Provider, error) {
	switch c.Store.Kind {
	case "", "memory":
		return memory.New(), nil
	case "ristretto":
		r := c.Store.Ristretto
		buf := r.BufferItems
		if buf == 0 {
			buf = 64
		}
		synchronous := true
		if r.Synchronous != nil {
			synchronous = *r.Synchronous
		}
		return ristretto.New(ristretto.Config{
			NumCounters: r.NumCounters,
			MaxCost:     r.MaxCost,
			BufferItems: buf,
			Metrics:     r.Metrics,
			Synchronous: synchronous,
		})
	case "bigcache":
		var bc BigCache
		if c.Store.BigCache != nil {
			bc = *c.Store.BigCache
		}
		return bigcache.New(bigcache.Config{
			LifeWindow:         bc.LifeWindow,
			CleanWindow:        bc.CleanWindow,
			MaxEntrySize:       bc.MaxEntrySize,
			HardMaxCacheSizeMB: bc.HardMaxCacheSizeMB,
			Shards:             bc.Shards,
		})
	case "redis":
		r := c.Store.Redis
		rdb := goredis.NewUniversalClient(&goredis.UniversalOptions{
			Addrs:    r.Addrs,
			Username: r.Username,
			Password: r.Password,
			DB:       r.DB,
		})
		return redis.New(redis.Config{Client: rdb, CloseClient: true, OpTimeout: r.OpTimeout})
	default:
		return nil, fmt.Errorf("config: unknown store kind %q", c.Store.Kind)
	}
}

// CodecFor returns the configured codec for V, size-limited when
// max_value_bytes is set.
func CodecFor[V any](c *Config) (codec.Codec[V], error) {
	var cd codec.Codec[V]
	switch c.Codec {
	case "", "json":
		cd = codec.JSON[V]{}
	case "msgpack":
		cd = codec.Msgpack[V]{}
	case "cbor":
		cb, err := codec.NewCBOR[V](codec.CBOROptions{})
		if err != nil {
			return nil, fmt.Errorf("config: cbor: %w", err)
		}
		cd = cb
	default:
		return nil, fmt.Errorf("config: unknown codec %q", c.Codec)
	}
	if c.MaxValueBytes > 0 {
		cd = codec.LimitCodec[V]{Inner: cd, MaxEncode: c.MaxValueBytes, MaxDecode: c.MaxValueBytes}
	}
	return cd, nil
}

// Options assembles polycache.Options for V. Logger and listeners are left
// for the caller to fill in.
func Options[V any](c *Config) (polycache.Options[V], error) {
	var zero polycache.Options[V]
	s, err := c.Strategy()
	if err != nil {
		return zero, err
	}
	p, err := c.Policy()
	if err != nil {
		return zero, err
	}
	cd, err := CodecFor[V](c)
	if err != nil {
		return zero, err
	}
	st, err := c.OpenStore()
	if err != nil {
		return zero, fmt.Errorf("config: open %s store: %w", c.Store.Kind, err)
	}
	return polycache.Options[V]{
		Namespace:        c.Namespace,
		CapacityItems:    c.CapacityItems,
		CapacityBytes:    c.CapacityBytes,
		Eviction:         s,
		WritePolicy:      p,
		Store:            st,
		Codec:            cd,
		MaxHistory:       c.MaxHistory,
		EnforcementLimit: c.EnforcementLimit,
	}, nil
}

// New is Options followed by polycache.New.
func New[V any](c *Config) (polycache.Manager[V], error) {
	opts, err := Options[V](c)
	if err != nil {
		return nil, err
	}
	m, err := polycache.New[V](opts)
	if err != nil {
		_ = opts.Store.Close(context.Background())
		return nil, err
	}
	return m, nil
}
