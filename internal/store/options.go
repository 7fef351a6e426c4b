package store

import (
	"strings"
	"time"
)

// DefaultFlowStateTTL bounds how long Redis keeps an idle session.
const DefaultFlowStateTTL = 24 * time.Hour

// Opts holds configuration options for store implementations.
type Opts struct {
	DSN          string        // SQLite path or Postgres connection string
	RedisAddr    string        // host:port of a Redis server
	RedisDB      int           // Redis logical database
	KeyPrefix    string        // Redis key namespace
	FlowStateTTL time.Duration // Redis expiry for session state
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithPostgresDSN sets the Postgres connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// WithRedisAddr selects the Redis backend.
func WithRedisAddr(addr string) Option {
	return func(o *Opts) { o.RedisAddr = addr }
}

// WithRedisDB selects the Redis logical database.
func WithRedisDB(db int) Option {
	return func(o *Opts) { o.RedisDB = db }
}

// WithKeyPrefix namespaces Redis keys.
func WithKeyPrefix(prefix string) Option {
	return func(o *Opts) { o.KeyPrefix = prefix }
}

// WithFlowStateTTL sets how long Redis keeps session state after the last save.
func WithFlowStateTTL(ttl time.Duration) Option {
	return func(o *Opts) { o.FlowStateTTL = ttl }
}

// DetectDSNType returns "postgres" for Postgres URLs or keyword DSNs and
// "sqlite" for anything else.
func DetectDSNType(dsn string) string {
	d := strings.TrimSpace(dsn)
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(d, "host=") || strings.Contains(d, "dbname=") || strings.Contains(d, "user=") {
		return "postgres"
	}
	return "sqlite"
}
