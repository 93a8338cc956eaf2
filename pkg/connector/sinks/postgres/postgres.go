// Package postgres provides the PostgreSQL sink. The sink itself is
// generic; a per-family Handler owns the schema and insert statements
// for its message type.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tickflow/tickflow/pkg/errors"
	"github.com/tickflow/tickflow/pkg/logger"
	"github.com/tickflow/tickflow/pkg/pipeline"
)

const sinkName = "postgres"

// Handler binds a message family to its tables. InsertBatch is lenient:
// rows that fail to insert are logged and skipped so one bad row never
// fails the batch.
type Handler[M any] interface {
	InitializeSchema(ctx context.Context, pool *pgxpool.Pool) error
	InsertBatch(ctx context.Context, pool *pgxpool.Pool, batch pipeline.Batch[M]) error
}

// Sink writes batches to PostgreSQL through a connection pool. It
// implements pipeline.Sink[M].
type Sink[M any] struct {
	pool    *pgxpool.Pool
	handler Handler[M]
	log     *zap.Logger
}

// Connect opens a connection pool and verifies it with a ping.
func Connect[M any](ctx context.Context, url string, handler Handler[M]) (*Sink[M], error) {
	log := logger.With(zap.String("sink", sinkName))
	log.Info("connecting to database")

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid database URL")
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to ping database")
	}

	log.Info("database connected")
	return &Sink[M]{pool: pool, handler: handler, log: log}, nil
}

// Name implements pipeline.Sink.
func (s *Sink[M]) Name() string { return sinkName }

// InitializeSchema creates the handler's tables if they are missing.
// Call it once before starting the feed.
func (s *Sink[M]) InitializeSchema(ctx context.Context) error {
	s.log.Info("initializing database schema")
	if err := s.handler.InitializeSchema(ctx, s.pool); err != nil {
		return errors.Wrap(err, errors.ErrorTypeQuery, "failed to initialize schema")
	}
	s.log.Info("database schema initialized")
	return nil
}

// HandleBatch implements pipeline.Sink.
func (s *Sink[M]) HandleBatch(ctx context.Context, batch pipeline.Batch[M]) error {
	return s.handler.InsertBatch(ctx, s.pool, batch)
}

// Close releases the connection pool.
func (s *Sink[M]) Close() {
	s.pool.Close()
}
