// Package tickflow provides market data ingestion pipelines that stream
// ticks, market listings and fundamentals from external feeds into
// PostgreSQL.
//
// Every feed is the same shape: one source goroutine produces batches of
// messages, one processor goroutine drains them into a sink, and a
// bounded channel between the two provides ordering, batching and
// backpressure. Sources and sinks are independent failure domains; a
// bad batch at the sink never stops the stream, and a dying source
// simply ends it.
//
// # Feeds
//
//   - Alpaca: websocket stream of minute bars, quotes and trades
//   - Polymarket CLOB: cursor-paginated market listings
//   - Polymarket Gamma: offset-paginated active market listings
//   - Yahoo: quarterly fundamentals for a CSV-defined symbol list
//
// # Quick Start
//
// Wire any source to any sink of the same message type:
//
//	source := alpaca.NewSource(cfg.Alpaca)
//	sink, err := postgres.Connect(ctx, cfg.Postgres.URL, postgres.NewAlpacaHandler())
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
//	handles, err := pipeline.NewBuilder[alpaca.Message](source, sink).
//	    Capacity(cfg.ChannelCapacity).
//	    Start(ctx)
//	if err != nil {
//	    return err
//	}
//	return handles.Wait()
//
// The tickflow binary in cmd/tickflow exposes one subcommand per feed
// with configuration resolved from the environment.
//
// # Key Packages
//
//	pkg/pipeline   - Generic source/channel/processor/sink feed core
//	pkg/connector  - Feed sources and sinks
//	pkg/clients    - Shared HTTP plumbing (pooling, rate limit, retry)
//	pkg/config     - Environment and YAML configuration
//	pkg/logger     - Structured logging
//	pkg/metrics    - Prometheus collectors
package tickflow
