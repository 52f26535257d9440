package redis

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	pr "github.com/unkn0wn-root/polycache/provider"
)

var ErrNilClient = errors.New("redis provider: nil client")

// Redis keeps durable records in Redis, so write-through data survives
// process restarts. Records are plain strings under polycache's keyspace.
type Redis struct {
	rdb         goredis.UniversalClient
	closeClient bool
	timeout     time.Duration
}

var _ pr.Provider = (*Redis)(nil)

type Config struct {
	Client      goredis.UniversalClient
	CloseClient bool // set true only if this provider exclusively owns the client
	// OpTimeout bounds each command when the caller's context has no deadline.
	// The manager holds its lock across backing-store writes, so an unbounded
	// remote call would stall every other operation. 0 = no bound.
	OpTimeout time.Duration
}

func New(cfg Config) (*Redis, error) {
	if cfg.Client == nil {
		return nil, ErrNilClient
	}
	return &Redis{rdb: cfg.Client, closeClient: cfg.CloseClient, timeout: cfg.OpTimeout}, nil
}

func (p *Redis) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := p.ctx(ctx)
	defer cancel()

	b, err := p.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil // miss
	}
	if err != nil {
		return nil, false, err // transport/server error
	}
	return b, true, nil
}

func (p *Redis) Set(ctx context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	ctx, cancel := p.ctx(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0 // non-positive TTL means no expiry
	}
	if err := p.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Redis) Del(ctx context.Context, key string) error {
	ctx, cancel := p.ctx(ctx)
	defer cancel()
	return p.rdb.Del(ctx, key).Err()
}

// Close releases the underlying redis client only when this provider owns it.
// Safe to call multiple times; repeated calls become no-ops.
func (p *Redis) Close(context.Context) error {
	if p.closeClient {
		if err := p.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
			return err
		}
	}
	return nil
}
