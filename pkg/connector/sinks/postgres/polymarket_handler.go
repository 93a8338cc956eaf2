package postgres

import (
	"context"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tickflow/tickflow/pkg/connector/sources/polymarket"
	"github.com/tickflow/tickflow/pkg/logger"
	"github.com/tickflow/tickflow/pkg/metrics"
	"github.com/tickflow/tickflow/pkg/pipeline"
)

// PolymarketHandler upserts CLOB market listings keyed by condition_id.
// Nested token, reward and tag structures are stored as JSONB.
type PolymarketHandler struct {
	log *zap.Logger
}

// NewPolymarketHandler creates the handler for CLOB market listings.
func NewPolymarketHandler() *PolymarketHandler {
	return &PolymarketHandler{log: logger.With(zap.String("handler", "polymarket"))}
}

// InitializeSchema implements Handler.
func (h *PolymarketHandler) InitializeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS polymarket_markets (
			id SERIAL PRIMARY KEY,
			condition_id VARCHAR(66) NOT NULL UNIQUE,
			question_id VARCHAR(66),
			market_slug VARCHAR(255),
			question TEXT,
			description TEXT,
			active BOOLEAN,
			closed BOOLEAN,
			archived BOOLEAN,
			accepting_orders BOOLEAN,
			enable_order_book BOOLEAN,
			neg_risk BOOLEAN,
			end_date_iso TIMESTAMP,
			game_start_time TIMESTAMP,
			accepting_order_timestamp TIMESTAMP,
			minimum_order_size DOUBLE PRECISION,
			minimum_tick_size DOUBLE PRECISION,
			maker_base_fee DOUBLE PRECISION,
			taker_base_fee DOUBLE PRECISION,
			seconds_delay INTEGER,
			tokens JSONB,
			rewards JSONB,
			tags JSONB,
			icon TEXT,
			image TEXT,
			fpmm VARCHAR(66),
			neg_risk_market_id VARCHAR(66),
			neg_risk_request_id VARCHAR(66),
			notifications_enabled BOOLEAN,
			is_50_50_outcome BOOLEAN,
			received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

// InsertBatch implements Handler. Markets that fail to insert are
// logged and skipped.
func (h *PolymarketHandler) InsertBatch(ctx context.Context, pool *pgxpool.Pool, batch pipeline.Batch[polymarket.Market]) error {
	for i := range batch {
		h.upsertMarket(ctx, pool, &batch[i])
	}
	return nil
}

func (h *PolymarketHandler) upsertMarket(ctx context.Context, pool *pgxpool.Pool, market *polymarket.Market) {
	_, err := pool.Exec(ctx,
		`INSERT INTO polymarket_markets (
			condition_id, question_id, market_slug, question, description,
			active, closed, archived, accepting_orders, enable_order_book, neg_risk,
			end_date_iso, game_start_time, accepting_order_timestamp,
			minimum_order_size, minimum_tick_size, maker_base_fee, taker_base_fee, seconds_delay,
			tokens, rewards, tags,
			icon, image, fpmm, neg_risk_market_id, neg_risk_request_id,
			notifications_enabled, is_50_50_outcome
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14,
			$15, $16, $17, $18, $19,
			$20, $21, $22,
			$23, $24, $25, $26, $27,
			$28, $29
		)
		ON CONFLICT (condition_id) DO UPDATE SET
			question_id = EXCLUDED.question_id,
			market_slug = EXCLUDED.market_slug,
			question = EXCLUDED.question,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			closed = EXCLUDED.closed,
			archived = EXCLUDED.archived,
			accepting_orders = EXCLUDED.accepting_orders,
			enable_order_book = EXCLUDED.enable_order_book,
			neg_risk = EXCLUDED.neg_risk,
			end_date_iso = EXCLUDED.end_date_iso,
			game_start_time = EXCLUDED.game_start_time,
			accepting_order_timestamp = EXCLUDED.accepting_order_timestamp,
			minimum_order_size = EXCLUDED.minimum_order_size,
			minimum_tick_size = EXCLUDED.minimum_tick_size,
			maker_base_fee = EXCLUDED.maker_base_fee,
			taker_base_fee = EXCLUDED.taker_base_fee,
			seconds_delay = EXCLUDED.seconds_delay,
			tokens = EXCLUDED.tokens,
			rewards = EXCLUDED.rewards,
			tags = EXCLUDED.tags,
			icon = EXCLUDED.icon,
			image = EXCLUDED.image,
			fpmm = EXCLUDED.fpmm,
			neg_risk_market_id = EXCLUDED.neg_risk_market_id,
			neg_risk_request_id = EXCLUDED.neg_risk_request_id,
			notifications_enabled = EXCLUDED.notifications_enabled,
			is_50_50_outcome = EXCLUDED.is_50_50_outcome,
			received_at = CURRENT_TIMESTAMP`,
		market.ConditionID, market.QuestionID, market.MarketSlug, market.Question, market.Description,
		market.Active, market.Closed, market.Archived, market.AcceptingOrders, market.EnableOrderBook, market.NegRisk,
		parseOptionalTimestamp(market.EndDateISO), parseOptionalTimestamp(market.GameStartTime), parseOptionalTimestamp(market.AcceptingOrderTimestamp),
		market.MinimumOrderSize, market.MinimumTickSize, market.MakerBaseFee, market.TakerBaseFee, market.SecondsDelay,
		rawJSON(market.Tokens), rawJSON(market.Rewards), rawJSON(market.Tags),
		market.Icon, market.Image, market.FPMM, market.NegRiskMarketID, market.NegRiskRequestID,
		market.NotificationsEnabled, market.Is5050Outcome,
	)
	if err != nil {
		h.log.Error("failed to upsert market",
			zap.String("condition_id", market.ConditionID),
			zap.Error(err),
		)
		metrics.RowsSkipped.WithLabelValues("polymarket_markets").Inc()
		return
	}
	metrics.RowsInserted.WithLabelValues("polymarket_markets").Inc()
}

// GammaHandler upserts Gamma API market listings keyed by market id.
type GammaHandler struct {
	log *zap.Logger
}

// NewGammaHandler creates the handler for Gamma market listings.
func NewGammaHandler() *GammaHandler {
	return &GammaHandler{log: logger.With(zap.String("handler", "polymarket_gamma"))}
}

// InitializeSchema implements Handler.
func (h *GammaHandler) InitializeSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS market_gamma (
			id SERIAL PRIMARY KEY,
			market_id VARCHAR(32) NOT NULL UNIQUE,
			slug VARCHAR(255),
			question TEXT,
			description TEXT,
			active BOOLEAN,
			closed BOOLEAN,
			archived BOOLEAN,
			start_date TIMESTAMP,
			end_date TIMESTAMP,
			volume DOUBLE PRECISION,
			liquidity DOUBLE PRECISION,
			outcomes JSONB,
			outcome_prices JSONB,
			clob_token_ids JSONB,
			received_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`)
	return err
}

// InsertBatch implements Handler. Markets that fail to insert are
// logged and skipped.
func (h *GammaHandler) InsertBatch(ctx context.Context, pool *pgxpool.Pool, batch pipeline.Batch[polymarket.GammaMarket]) error {
	for i := range batch {
		h.upsertMarket(ctx, pool, &batch[i])
	}
	return nil
}

func (h *GammaHandler) upsertMarket(ctx context.Context, pool *pgxpool.Pool, market *polymarket.GammaMarket) {
	_, err := pool.Exec(ctx,
		`INSERT INTO market_gamma (
			market_id, slug, question, description,
			active, closed, archived,
			start_date, end_date, volume, liquidity,
			outcomes, outcome_prices, clob_token_ids
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7,
			$8, $9, $10, $11,
			$12, $13, $14
		)
		ON CONFLICT (market_id) DO UPDATE SET
			slug = EXCLUDED.slug,
			question = EXCLUDED.question,
			description = EXCLUDED.description,
			active = EXCLUDED.active,
			closed = EXCLUDED.closed,
			archived = EXCLUDED.archived,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			volume = EXCLUDED.volume,
			liquidity = EXCLUDED.liquidity,
			outcomes = EXCLUDED.outcomes,
			outcome_prices = EXCLUDED.outcome_prices,
			clob_token_ids = EXCLUDED.clob_token_ids,
			received_at = CURRENT_TIMESTAMP`,
		market.ID, market.Slug, market.Question, market.Description,
		market.Active, market.Closed, market.Archived,
		parseOptionalTimestamp(market.StartDate), parseOptionalTimestamp(market.EndDate),
		parseOptionalFloat(market.Volume), parseOptionalFloat(market.Liquidity),
		rawJSON(market.Outcomes), rawJSON(market.OutcomePrices), rawJSON(market.CLOBTokenIDs),
	)
	if err != nil {
		h.log.Error("failed to upsert market",
			zap.String("market_id", market.ID),
			zap.Error(err),
		)
		metrics.RowsSkipped.WithLabelValues("market_gamma").Inc()
		return
	}
	metrics.RowsInserted.WithLabelValues("market_gamma").Inc()
}

// parseOptionalTimestamp parses an optional RFC3339 string, mapping
// absence or a malformed value to SQL NULL.
func parseOptionalTimestamp(value *string) *time.Time {
	if value == nil {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, *value)
	if err != nil {
		return nil
	}
	utc := ts.UTC()
	return &utc
}

// parseOptionalFloat parses a string-encoded number, mapping absence or
// a malformed value to SQL NULL.
func parseOptionalFloat(value *string) *float64 {
	if value == nil {
		return nil
	}
	f, err := strconv.ParseFloat(*value, 64)
	if err != nil {
		return nil
	}
	return &f
}

// rawJSON maps an absent JSON fragment to SQL NULL instead of the empty
// string, which JSONB rejects.
func rawJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
