package polycache

const (
	defaultMaxHistory       = 1024
	defaultEnforcementLimit = 10_000
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func rawSize(_ string, raw []byte) int64 { return int64(len(raw)) }
