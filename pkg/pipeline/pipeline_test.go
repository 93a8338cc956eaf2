package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMsg struct {
	val string
}

func msgs(vals ...string) Batch[testMsg] {
	batch := make(Batch[testMsg], 0, len(vals))
	for _, v := range vals {
		batch = append(batch, testMsg{val: v})
	}
	return batch
}

// mockSource replays a fixed list of batches, optionally failing or
// panicking before a given batch index.
type mockSource struct {
	batches []Batch[testMsg]
	failAt  int
	panicAt int
}

func newMockSource(batches ...Batch[testMsg]) *mockSource {
	return &mockSource{batches: batches, failAt: -1, panicAt: -1}
}

func (s *mockSource) Run(ctx context.Context, out *Writer[testMsg]) error {
	for i, batch := range s.batches {
		if i == s.failAt {
			return fmt.Errorf("mock source failure at batch %d", i)
		}
		if i == s.panicAt {
			panic(fmt.Sprintf("mock source panic at batch %d", i))
		}
		if err := out.Send(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// mockSink collects batches, optionally failing the first n calls or
// blocking until released.
type mockSink struct {
	mu       sync.Mutex
	batches  []Batch[testMsg]
	failures int
	panics   int
	release  chan struct{}
}

func newMockSink() *mockSink {
	return &mockSink{}
}

func (s *mockSink) Name() string { return "mock" }

func (s *mockSink) HandleBatch(ctx context.Context, batch Batch[testMsg]) error {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	if s.panics > 0 {
		s.panics--
		panic("mock sink panic")
	}
	if s.failures > 0 {
		s.failures--
		return fmt.Errorf("mock sink failure")
	}
	return nil
}

func (s *mockSink) handled() []Batch[testMsg] {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Batch[testMsg], len(s.batches))
	copy(out, s.batches)
	return out
}

func TestFeedDeliversBatchesWholeAndInOrder(t *testing.T) {
	source := newMockSource(
		msgs("alpha", "beta"),
		msgs("gamma"),
		msgs("delta", "epsilon", "zeta"),
	)
	sink := newMockSink()

	handles, err := NewBuilder[testMsg](source, sink).
		Capacity(4).
		Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, handles.Source.Wait())
	require.NoError(t, handles.Processor.Wait())

	got := sink.handled()
	require.Len(t, got, 3)
	assert.Equal(t, msgs("alpha", "beta"), got[0])
	assert.Equal(t, msgs("gamma"), got[1])
	assert.Equal(t, msgs("delta", "epsilon", "zeta"), got[2])
}

func TestProcessorContinuesAfterSinkError(t *testing.T) {
	sink := newMockSink()
	sink.failures = 1
	processor := NewProcessor[testMsg](sink)

	ch := make(chan Batch[testMsg], 4)
	ch <- msgs("first")
	ch <- msgs("second")
	close(ch)

	require.NoError(t, processor.Process(context.Background(), ch))

	got := sink.handled()
	require.Len(t, got, 2)
	assert.Equal(t, msgs("first"), got[0])
	assert.Equal(t, msgs("second"), got[1])
}

func TestFeedCompletesWhenSourceFailsMidstream(t *testing.T) {
	source := newMockSource(msgs("only"), msgs("never sent"))
	source.failAt = 1
	sink := newMockSink()

	handles, err := NewBuilder[testMsg](source, sink).
		Capacity(2).
		Start(context.Background())
	require.NoError(t, err)

	sourceErr := handles.Source.Wait()
	require.Error(t, sourceErr)
	assert.Contains(t, sourceErr.Error(), "mock source failure")

	// The processor drains what made it through and stops cleanly.
	require.NoError(t, handles.Processor.Wait())

	got := sink.handled()
	require.Len(t, got, 1)
	assert.Equal(t, msgs("only"), got[0])

	// The joined outcome reports the source failure.
	assert.Equal(t, sourceErr, handles.Wait())
}

func TestBackpressureSuspendsFastSource(t *testing.T) {
	source := newMockSource(msgs("a"), msgs("b"), msgs("c"))
	sink := newMockSink()
	sink.release = make(chan struct{})

	feed, err := NewBuilder[testMsg](source, sink).Capacity(1).Build()
	require.NoError(t, err)
	handles := feed.Start(context.Background())

	// One batch fits the channel and one sits in the blocked sink call;
	// the third send must suspend, so the source cannot finish yet.
	select {
	case <-handles.Source.Done():
		t.Fatal("source finished despite a full channel")
	case <-time.After(50 * time.Millisecond):
	}

	close(sink.release)
	require.NoError(t, handles.Wait())

	got := sink.handled()
	require.Len(t, got, 3)
	assert.Equal(t, msgs("a"), got[0])
	assert.Equal(t, msgs("b"), got[1])
	assert.Equal(t, msgs("c"), got[2])
}

func TestBuilderRejectsNonPositiveCapacity(t *testing.T) {
	source := newMockSource()
	sink := newMockSink()

	_, err := NewBuilder[testMsg](source, sink).Capacity(0).Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capacity")

	_, err = NewBuilder[testMsg](source, sink).Capacity(-5).Build()
	require.Error(t, err)
}

func TestSourcePanicSurfacesOnHandle(t *testing.T) {
	source := newMockSource(msgs("one"), msgs("two"))
	source.panicAt = 1
	sink := newMockSink()

	handles, err := NewBuilder[testMsg](source, sink).
		Capacity(2).
		Start(context.Background())
	require.NoError(t, err)

	sourceErr := handles.Source.Wait()
	require.Error(t, sourceErr)
	assert.Contains(t, sourceErr.Error(), "panicked")

	// The channel was still closed, so the processor drains and stops.
	require.NoError(t, handles.Processor.Wait())
	require.Len(t, sink.handled(), 1)
}

func TestSinkPanicSurfacesOnProcessorHandle(t *testing.T) {
	source := newMockSource(msgs("boom"))
	sink := newMockSink()
	sink.panics = 1

	handles, err := NewBuilder[testMsg](source, sink).
		Capacity(2).
		Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, handles.Source.Wait())

	processorErr := handles.Processor.Wait()
	require.Error(t, processorErr)
	assert.Contains(t, processorErr.Error(), "panicked")
}

func TestSourceStopsWhenProcessorDies(t *testing.T) {
	source := newMockSource(
		msgs("a"), msgs("b"), msgs("c"), msgs("d"), msgs("e"),
	)
	sink := newMockSink()
	sink.panics = 1

	feed, err := NewBuilder[testMsg](source, sink).Capacity(1).Build()
	require.NoError(t, err)
	handles := feed.Start(context.Background())

	processorErr := handles.Processor.Wait()
	require.Error(t, processorErr)
	assert.Contains(t, processorErr.Error(), "panicked")

	// With the processor dead nothing drains the channel, so the source
	// must end on a failed send rather than block forever.
	select {
	case <-handles.Source.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("source still blocked on send after processor died")
	}
	require.ErrorIs(t, handles.Source.Wait(), ErrReceiverGone)

	// The joined outcome reports the processor failure that caused the
	// stop, not the stop itself.
	assert.Equal(t, processorErr, handles.Wait())
}

func TestWriterSendFailsOnceReceiverGone(t *testing.T) {
	ch := make(chan Batch[testMsg], 1)
	receiverDone := make(chan struct{})
	out := NewWriter(ch, receiverDone)

	require.NoError(t, out.Send(context.Background(), msgs("fits")))

	// Channel full and consumer gone: Send must fail, not suspend.
	close(receiverDone)
	require.ErrorIs(t, out.Send(context.Background(), msgs("stranded")), ErrReceiverGone)
}

func TestEmptySourceEndsStreamGracefully(t *testing.T) {
	source := newMockSource()
	sink := newMockSink()

	handles, err := NewBuilder[testMsg](source, sink).Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, handles.Wait())
	assert.Empty(t, sink.handled())
}

func TestHandleWaitIsIdempotent(t *testing.T) {
	source := newMockSource(msgs("x"))
	source.failAt = 0
	sink := newMockSink()

	handles, err := NewBuilder[testMsg](source, sink).Start(context.Background())
	require.NoError(t, err)

	first := handles.Source.Wait()
	second := handles.Source.Wait()
	require.Error(t, first)
	assert.Equal(t, first, second)
}
