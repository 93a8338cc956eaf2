package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/tickflow/tickflow/pkg/logger"
	"github.com/tickflow/tickflow/pkg/metrics"
)

// Processor owns the read end of the feed channel and forwards each batch
// to its sink. One bad batch never halts the stream: a sink failure is
// logged with the sink's name and the loop moves on to the next batch.
// There is no terminal error state at this layer; only channel closure
// ends the loop.
type Processor[M any] struct {
	sink Sink[M]
	log  *zap.Logger
}

// NewProcessor wraps a sink for batch processing.
func NewProcessor[M any](sink Sink[M]) *Processor[M] {
	return &Processor[M]{
		sink: sink,
		log:  logger.With(zap.String("sink", sink.Name())),
	}
}

// Process consumes batches from in until the channel is closed and
// drained, dispatching each to the sink. It returns nil on end-of-stream;
// per-batch sink errors are absorbed.
func (p *Processor[M]) Process(ctx context.Context, in <-chan Batch[M]) error {
	p.log.Info("message processor started")

	for batch := range in {
		metrics.ChannelDepth.WithLabelValues(p.sink.Name()).Set(float64(len(in)))

		if err := p.sink.HandleBatch(ctx, batch); err != nil {
			p.log.Warn("sink failed to handle batch",
				zap.Int("batch_size", len(batch)),
				zap.Error(err),
			)
			metrics.BatchesFailed.WithLabelValues(p.sink.Name()).Inc()
			continue
		}

		metrics.BatchesProcessed.WithLabelValues(p.sink.Name()).Inc()
		metrics.MessagesProcessed.WithLabelValues(p.sink.Name()).Add(float64(len(batch)))
	}

	p.log.Info("message processor stopped")
	return nil
}
