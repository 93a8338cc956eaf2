package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tickflow/tickflow/pkg/connector/sources/yahoo"
	"github.com/tickflow/tickflow/pkg/logger"
	"github.com/tickflow/tickflow/pkg/metrics"
	"github.com/tickflow/tickflow/pkg/pipeline"
)

// YahooHandler upserts quarterly fundamental values keyed by
// (symbol, statement, period_date, field).
type YahooHandler struct {
	log *zap.Logger
}

// NewYahooHandler creates the handler for quarterly fundamentals.
func NewYahooHandler() *YahooHandler {
	return &YahooHandler{log: logger.With(zap.String("handler", "yahoo"))}
}

// InitializeSchema implements Handler.
func (h *YahooHandler) InitializeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS yahoo_fundamentals (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(10) NOT NULL,
			statement VARCHAR(20) NOT NULL,
			period_date DATE NOT NULL,
			field VARCHAR(64) NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(symbol, statement, period_date, field)
		)`)
	return err
}

// InsertBatch implements Handler. Rows with an unparseable period date
// are logged and skipped.
func (h *YahooHandler) InsertBatch(ctx context.Context, pool *pgxpool.Pool, batch pipeline.Batch[yahoo.FundamentalRow]) error {
	for i := range batch {
		h.upsertRow(ctx, pool, &batch[i])
	}
	return nil
}

func (h *YahooHandler) upsertRow(ctx context.Context, pool *pgxpool.Pool, row *yahoo.FundamentalRow) {
	period, err := time.Parse("2006-01-02", row.Period)
	if err != nil {
		h.log.Warn("skipping fundamental with invalid period",
			zap.String("symbol", row.Symbol),
			zap.String("period", row.Period),
		)
		metrics.RowsSkipped.WithLabelValues("yahoo_fundamentals").Inc()
		return
	}

	_, err = pool.Exec(ctx,
		`INSERT INTO yahoo_fundamentals (symbol, statement, period_date, field, value)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (symbol, statement, period_date, field) DO UPDATE SET
			value = EXCLUDED.value,
			received_at = CURRENT_TIMESTAMP`,
		row.Symbol, string(row.Statement), period, row.Field, row.Value,
	)
	if err != nil {
		h.log.Error("failed to upsert fundamental",
			zap.String("symbol", row.Symbol),
			zap.String("field", row.Field),
			zap.Error(err),
		)
		metrics.RowsSkipped.WithLabelValues("yahoo_fundamentals").Inc()
		return
	}
	metrics.RowsInserted.WithLabelValues("yahoo_fundamentals").Inc()
}
