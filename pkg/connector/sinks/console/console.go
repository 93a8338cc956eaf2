// Package console provides a sink that logs batch summaries instead of
// persisting them. Useful for smoke-testing a source without a
// database.
package console

import (
	"context"

	"go.uber.org/zap"

	"github.com/tickflow/tickflow/pkg/logger"
	"github.com/tickflow/tickflow/pkg/pipeline"
)

// Sink logs one line per batch. It implements pipeline.Sink[M] for any
// message type and never returns an error.
type Sink[M any] struct {
	log     *zap.Logger
	batches int
}

// NewSink creates a console sink.
func NewSink[M any]() *Sink[M] {
	return &Sink[M]{log: logger.With(zap.String("sink", "console"))}
}

// Name implements pipeline.Sink.
func (s *Sink[M]) Name() string { return "console" }

// HandleBatch implements pipeline.Sink.
func (s *Sink[M]) HandleBatch(_ context.Context, batch pipeline.Batch[M]) error {
	s.batches++
	s.log.Info("received batch",
		zap.Int("batch_size", len(batch)),
		zap.Int("batches_total", s.batches),
	)
	return nil
}
