// Package metrics provides Prometheus metrics for the Tickflow pipeline
// and its connectors. All collectors are registered on the default
// registry at package load; expose them with promhttp if a scrape
// endpoint is wanted.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedsStarted counts pipeline feeds launched by this process.
	FeedsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "tickflow",
		Name:      "feeds_started_total",
		Help:      "Number of data feeds started",
	})

	// BatchesProcessed counts batches a sink handled successfully.
	BatchesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickflow",
		Name:      "batches_processed_total",
		Help:      "Batches successfully handled, by sink",
	}, []string{"sink"})

	// BatchesFailed counts batches a sink rejected. These are absorbed by
	// the processor, so this counter is the only place they accumulate.
	BatchesFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickflow",
		Name:      "batches_failed_total",
		Help:      "Batches the sink failed to handle, by sink",
	}, []string{"sink"})

	// MessagesProcessed counts individual messages inside successful batches.
	MessagesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickflow",
		Name:      "messages_processed_total",
		Help:      "Messages successfully handled, by sink",
	}, []string{"sink"})

	// BatchesProduced counts batches emitted by a source.
	BatchesProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickflow",
		Name:      "batches_produced_total",
		Help:      "Batches emitted by a source, by source",
	}, []string{"source"})

	// ChannelDepth tracks queued batches observed by the processor.
	ChannelDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "tickflow",
		Name:      "channel_depth",
		Help:      "Batches queued in the feed channel, by sink",
	}, []string{"sink"})

	// RowsInserted counts rows written by the postgres sink.
	RowsInserted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickflow",
		Name:      "rows_inserted_total",
		Help:      "Rows inserted into storage, by table",
	}, []string{"table"})

	// RowsSkipped counts rows dropped inside a batch (parse or insert
	// failure under the lenient per-row policy).
	RowsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tickflow",
		Name:      "rows_skipped_total",
		Help:      "Rows skipped during insert, by table",
	}, []string{"table"})
)
