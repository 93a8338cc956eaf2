// Package pipeline provides the core single-producer/single-consumer data
// feed for Tickflow, connecting one message source to one message sink
// through a bounded channel with independent failure containment on each
// side.
//
// # Overview
//
// The pipeline package provides:
//   - A generic Batch type carrying ordered messages of one concrete type
//   - Source and Sink contracts any connector can implement
//   - A Processor that bridges the channel to repeated sink invocations
//   - A Builder/Feed pair that wires both sides and spawns them as
//     independent goroutines
//
// # Architecture
//
//	Source -> (Batch) -> bounded channel -> Processor -> (Batch) -> Sink
//
// The write end of the channel is owned exclusively by the source goroutine
// and the read end by the processor goroutine; no locking is needed because
// ownership is partitioned by construction. Backpressure is the channel
// itself: a source producing faster than the sink drains suspends on send
// once the channel is at capacity.
//
// # Basic Usage
//
//	handles := pipeline.NewBuilder[alpaca.Message](source, sink).
//		Capacity(1000).
//		Start(ctx)
//
//	if err := handles.Source.Wait(); err != nil {
//		// source run failed; already-sent batches were still processed
//	}
//	if err := handles.Processor.Wait(); err != nil {
//		// processor goroutine crashed (per-batch sink errors never surface here)
//	}
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/tickflow/tickflow/pkg/logger"
	"github.com/tickflow/tickflow/pkg/metrics"
)

// DefaultCapacity is the bound on in-flight batches when none is configured.
const DefaultCapacity = 1000

// Batch is an ordered, finite group of messages produced atomically by a
// source as one logical unit of work (one websocket frame, one API page).
// Batches are the unit of transport and of sink invocation: they are never
// split across sink calls and never merged.
//
// The message type M must be safe to hand off between goroutines and
// duplicable by ordinary value copying; plain structs of value fields
// satisfy both.
type Batch[M any] []M

// Source is an external data producer. Run drives the source end to end,
// sending every batch it produces on out, and returns nil on natural
// exhaustion (stream closed, all pages fetched) or the fatal error that
// aborted the run. The source owns its internal state (connections,
// pagination cursors, rate-limit timers) exclusively for the duration of
// Run; the pipeline imposes no scheduling beyond channel backpressure.
//
// The feed closes the underlying channel exactly once after Run returns,
// which is what signals end-of-stream to the processor. A Send error,
// ErrReceiverGone included, must terminate the run.
type Source[M any] interface {
	Run(ctx context.Context, out *Writer[M]) error
}

// ErrReceiverGone reports that the processor task ended before the source
// finished sending; nothing will drain the channel again, so the source's
// run must stop.
var ErrReceiverGone = errors.New("pipeline: receiver gone")

// Writer is the source's handle on the feed's write end.
type Writer[M any] struct {
	ch           chan<- Batch[M]
	receiverDone <-chan struct{}
}

// NewWriter wraps a channel's write end. receiverDone, when closed,
// marks the consumer as gone; nil means the consumer never goes away.
func NewWriter[M any](ch chan<- Batch[M], receiverDone <-chan struct{}) *Writer[M] {
	return &Writer[M]{ch: ch, receiverDone: receiverDone}
}

// Send delivers one batch, suspending while the channel is at capacity.
// It fails with ErrReceiverGone once the processor task has ended, so a
// source never blocks forever on a dead consumer, and with the context
// error on cancellation.
func (w *Writer[M]) Send(ctx context.Context, batch Batch[M]) error {
	select {
	case w.ch <- batch:
		return nil
	case <-w.receiverDone:
		return ErrReceiverGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sink is a destination that durably or observably handles one batch at a
// time. HandleBatch is invoked repeatedly and sequentially for the sink's
// whole lifetime, but the sink may also be referenced by other holders
// (schema setup before the feed starts), so any mutable internal state
// must be internally synchronized.
//
// The contract guarantees each batch is presented whole and in arrival
// order; transactional atomicity across batches, retries and deduplication
// are the implementation's business, if it wants them.
type Sink[M any] interface {
	Name() string
	HandleBatch(ctx context.Context, batch Batch[M]) error
}

// Feed connects one Source to one Sink via a bounded channel. A Feed is
// inert until Start is called.
type Feed[M any] struct {
	source    Source[M]
	processor *Processor[M]
	capacity  int
}

// Builder configures a Feed. The zero configuration is usable: capacity
// defaults to DefaultCapacity.
type Builder[M any] struct {
	source   Source[M]
	sink     Sink[M]
	capacity int
}

// NewBuilder returns a builder for the given source and sink.
func NewBuilder[M any](source Source[M], sink Sink[M]) *Builder[M] {
	return &Builder[M]{
		source:   source,
		sink:     sink,
		capacity: DefaultCapacity,
	}
}

// Capacity overrides the bound on in-flight batches. It must be positive;
// Build reports a configuration error otherwise.
func (b *Builder[M]) Capacity(n int) *Builder[M] {
	b.capacity = n
	return b
}

// Build produces a non-started feed. No channel is created and no
// goroutine is spawned.
func (b *Builder[M]) Build() (*Feed[M], error) {
	if b.capacity <= 0 {
		return nil, fmt.Errorf("pipeline: channel capacity must be positive, got %d", b.capacity)
	}
	return &Feed[M]{
		source:    b.source,
		processor: NewProcessor(b.sink),
		capacity:  b.capacity,
	}, nil
}

// Start builds the feed and launches it.
func (b *Builder[M]) Start(ctx context.Context) (*Handles, error) {
	feed, err := b.Build()
	if err != nil {
		return nil, err
	}
	return feed.Start(ctx), nil
}

// Start creates the bounded channel and spawns the source and processor as
// independent goroutines, returning immediately. A source failure never
// cancels the processor: the processor simply observes end-of-stream once
// the source goroutine ends and the write end is closed. The caller is
// responsible for joining both handles; that is the whole supervision
// contract.
func (f *Feed[M]) Start(ctx context.Context) *Handles {
	ch := make(chan Batch[M], f.capacity)

	sourceHandle := newTaskHandle("source")
	processorHandle := newTaskHandle("processor")

	go func() {
		defer sourceHandle.finish()
		// Closing the write end is what lets the processor drain and stop,
		// so it must happen even if Run panics.
		defer close(ch)
		defer sourceHandle.recoverPanic()

		// The writer watches the processor handle so a send after the
		// processor dies fails with ErrReceiverGone instead of blocking
		// on a channel nobody drains.
		out := NewWriter(ch, processorHandle.Done())
		switch err := f.source.Run(ctx, out); {
		case err == nil:
		case errors.Is(err, ErrReceiverGone):
			logger.Warn("source stopped: processor ended before the stream completed")
			sourceHandle.err = err
		default:
			logger.Error("source task failed", zap.Error(err))
			sourceHandle.err = err
		}
	}()

	go func() {
		defer processorHandle.finish()
		defer processorHandle.recoverPanic()

		if err := f.processor.Process(ctx, ch); err != nil {
			logger.Error("processor task failed", zap.Error(err))
			processorHandle.err = err
		}
	}()

	metrics.FeedsStarted.Inc()
	return &Handles{Source: sourceHandle, Processor: processorHandle}
}

// Handles are the two awaitable task handles returned by Start, one per
// spawned goroutine.
type Handles struct {
	Source    *TaskHandle
	Processor *TaskHandle
}

// Wait joins both tasks and returns the source error, if any, otherwise
// the processor error. Per-batch sink failures are absorbed by the
// processor and never show up here. When the source stopped only because
// the receiver was gone, the processor's failure is the one that caused
// it, so that is what Wait reports.
func (h *Handles) Wait() error {
	sourceErr := h.Source.Wait()
	processorErr := h.Processor.Wait()
	if sourceErr != nil && !errors.Is(sourceErr, ErrReceiverGone) {
		return sourceErr
	}
	if processorErr != nil {
		return processorErr
	}
	return sourceErr
}

// TaskHandle resolves when its goroutine ends. Wait returns nil on normal
// completion, or the task-level failure (fatal run error or recovered
// panic) that ended the goroutine.
type TaskHandle struct {
	name string
	done chan struct{}
	err  error
}

func newTaskHandle(name string) *TaskHandle {
	return &TaskHandle{name: name, done: make(chan struct{})}
}

// Wait blocks until the task ends and returns its outcome. It may be
// called any number of times.
func (t *TaskHandle) Wait() error {
	<-t.done
	return t.err
}

// Done exposes completion for select loops; the channel is closed when the
// task ends.
func (t *TaskHandle) Done() <-chan struct{} {
	return t.done
}

func (t *TaskHandle) finish() {
	close(t.done)
}

func (t *TaskHandle) recoverPanic() {
	if r := recover(); r != nil {
		logger.Error("task panicked",
			zap.String("task", t.name),
			zap.Any("panic", r),
			zap.ByteString("stack", debug.Stack()),
		)
		t.err = fmt.Errorf("pipeline: %s task panicked: %v", t.name, r)
	}
}
