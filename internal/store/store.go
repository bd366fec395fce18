package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
)

// ErrJobActive is returned by JobRepository.Create when the tenant
// already has a job in a non-terminal state. The caller reports the
// existing job instead of starting a second one.
var ErrJobActive = errors.New("store: a sync job is already active for this tenant")

// RedisClient is the subset of redis operations the store uses,
// declared as an interface so tests can substitute a fake.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetEx(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// Store bundles the postgres pool and the status cache shared by the
// repositories. All analytical and job rows are tenant-scoped; every
// query in this package carries a tenant_id predicate or writes it
// explicitly.
type Store struct {
	db    *sql.DB
	redis RedisClient
}

// Open connects to postgres via the pgx stdlib adapter and to redis.
func Open(dsn, redisAddr string) (*Store, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	db := stdlib.OpenDB(*config)
	if err := db.Ping(); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})

	return &Store{db: db, redis: rdb}, nil
}

// Close releases the database and cache connections.
func (s *Store) Close() error {
	if err := s.redis.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// Tenants returns the tenant repository.
func (s *Store) Tenants() *TenantRepository { return &TenantRepository{s: s} }

// Jobs returns the sync job repository.
func (s *Store) Jobs() *JobRepository { return &JobRepository{s: s} }

// Records returns the analytical record repository.
func (s *Store) Records() *RecordRepository { return &RecordRepository{s: s} }
