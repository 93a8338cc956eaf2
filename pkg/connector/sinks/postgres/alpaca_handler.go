package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tickflow/tickflow/pkg/connector/sources/alpaca"
	"github.com/tickflow/tickflow/pkg/logger"
	"github.com/tickflow/tickflow/pkg/metrics"
	"github.com/tickflow/tickflow/pkg/pipeline"
)

// AlpacaHandler stores Alpaca stream messages into bars, quotes and
// trades tables. Control messages (success, error, subscription) are
// not persisted.
type AlpacaHandler struct {
	log *zap.Logger
}

// NewAlpacaHandler creates the handler for Alpaca market data.
func NewAlpacaHandler() *AlpacaHandler {
	return &AlpacaHandler{log: logger.With(zap.String("handler", "alpaca"))}
}

// InitializeSchema implements Handler.
func (h *AlpacaHandler) InitializeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS bars (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(10) NOT NULL,
			open DOUBLE PRECISION NOT NULL,
			high DOUBLE PRECISION NOT NULL,
			low DOUBLE PRECISION NOT NULL,
			close DOUBLE PRECISION NOT NULL,
			volume BIGINT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			trade_count BIGINT,
			vwap DOUBLE PRECISION,
			received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(symbol, timestamp)
		)`,
		`CREATE TABLE IF NOT EXISTS quotes (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(10) NOT NULL,
			bid_exchange VARCHAR(10),
			bid_price DOUBLE PRECISION NOT NULL,
			bid_size BIGINT NOT NULL,
			ask_exchange VARCHAR(10),
			ask_price DOUBLE PRECISION NOT NULL,
			ask_size BIGINT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			tape VARCHAR(5),
			received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS trades (
			id SERIAL PRIMARY KEY,
			trade_id BIGINT NOT NULL,
			symbol VARCHAR(10) NOT NULL,
			exchange VARCHAR(10),
			price DOUBLE PRECISION NOT NULL,
			size BIGINT NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			tape VARCHAR(5),
			tks VARCHAR(5),
			received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(trade_id, symbol)
		)`,
	}
	for _, stmt := range ddl {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertBatch implements Handler. The batch is partitioned by message
// kind; a row that fails to parse or insert is logged and skipped.
func (h *AlpacaHandler) InsertBatch(ctx context.Context, pool *pgxpool.Pool, batch pipeline.Batch[alpaca.Message]) error {
	for i := range batch {
		msg := &batch[i]
		switch msg.Kind {
		case alpaca.KindBar:
			h.insertBar(ctx, pool, msg.Bar)
		case alpaca.KindQuote:
			h.insertQuote(ctx, pool, msg.Quote)
		case alpaca.KindTrade:
			h.insertTrade(ctx, pool, msg.Trade)
		}
	}
	return nil
}

func (h *AlpacaHandler) insertBar(ctx context.Context, pool *pgxpool.Pool, bar *alpaca.Bar) {
	ts, err := parseTimestamp(bar.Timestamp)
	if err != nil {
		h.log.Warn("skipping bar with invalid timestamp",
			zap.String("symbol", bar.Symbol),
			zap.String("timestamp", bar.Timestamp),
		)
		metrics.RowsSkipped.WithLabelValues("bars").Inc()
		return
	}

	tag, err := pool.Exec(ctx,
		`INSERT INTO bars (symbol, open, high, low, close, volume, timestamp, trade_count, vwap)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (symbol, timestamp) DO NOTHING`,
		bar.Symbol, bar.Open, bar.High, bar.Low, bar.Close,
		int64(bar.Volume), ts, bar.TradeCount, bar.VWAP,
	)
	if err != nil {
		h.log.Error("failed to insert bar", zap.String("symbol", bar.Symbol), zap.Error(err))
		metrics.RowsSkipped.WithLabelValues("bars").Inc()
		return
	}
	if tag.RowsAffected() == 0 {
		metrics.RowsSkipped.WithLabelValues("bars").Inc()
		return
	}
	metrics.RowsInserted.WithLabelValues("bars").Inc()
}

func (h *AlpacaHandler) insertQuote(ctx context.Context, pool *pgxpool.Pool, quote *alpaca.Quote) {
	ts, err := parseTimestamp(quote.Timestamp)
	if err != nil {
		h.log.Warn("skipping quote with invalid timestamp",
			zap.String("symbol", quote.Symbol),
			zap.String("timestamp", quote.Timestamp),
		)
		metrics.RowsSkipped.WithLabelValues("quotes").Inc()
		return
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO quotes (symbol, bid_exchange, bid_price, bid_size,
			ask_exchange, ask_price, ask_size, timestamp, tape)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		quote.Symbol, quote.BidExchange, quote.BidPrice, int64(quote.BidSize),
		quote.AskExchange, quote.AskPrice, int64(quote.AskSize), ts, quote.Tape,
	)
	if err != nil {
		h.log.Error("failed to insert quote", zap.String("symbol", quote.Symbol), zap.Error(err))
		metrics.RowsSkipped.WithLabelValues("quotes").Inc()
		return
	}
	metrics.RowsInserted.WithLabelValues("quotes").Inc()
}

func (h *AlpacaHandler) insertTrade(ctx context.Context, pool *pgxpool.Pool, trade *alpaca.Trade) {
	ts, err := parseTimestamp(trade.Timestamp)
	if err != nil {
		h.log.Warn("skipping trade with invalid timestamp",
			zap.String("symbol", trade.Symbol),
			zap.String("timestamp", trade.Timestamp),
		)
		metrics.RowsSkipped.WithLabelValues("trades").Inc()
		return
	}

	tag, err := pool.Exec(ctx,
		`INSERT INTO trades (trade_id, symbol, exchange, price, size, timestamp, tape, tks)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (trade_id, symbol) DO NOTHING`,
		trade.ID, trade.Symbol, trade.Exchange, trade.Price,
		int64(trade.Size), ts, trade.Tape, trade.TakerSide,
	)
	if err != nil {
		h.log.Error("failed to insert trade", zap.String("symbol", trade.Symbol), zap.Error(err))
		metrics.RowsSkipped.WithLabelValues("trades").Inc()
		return
	}
	if tag.RowsAffected() == 0 {
		metrics.RowsSkipped.WithLabelValues("trades").Inc()
		return
	}
	metrics.RowsInserted.WithLabelValues("trades").Inc()
}

// parseTimestamp converts an RFC3339 wire timestamp to UTC.
func parseTimestamp(value string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}
