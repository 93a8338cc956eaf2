package polymarket

import (
	json "github.com/goccy/go-json"
)

// Market is one Polymarket prediction market as returned by the CLOB
// /markets endpoint. Nested structures (tokens, rewards, tags) are kept
// as raw JSON and stored as JSONB.
type Market struct {
	ConditionID             string  `json:"condition_id"`
	QuestionID              *string `json:"question_id"`
	MarketSlug              *string `json:"market_slug"`
	Question                *string `json:"question"`
	Description             *string `json:"description"`
	Active                  bool    `json:"active"`
	Closed                  bool    `json:"closed"`
	Archived                bool    `json:"archived"`
	AcceptingOrders         bool    `json:"accepting_orders"`
	EnableOrderBook         bool    `json:"enable_order_book"`
	NegRisk                 bool    `json:"neg_risk"`
	EndDateISO              *string `json:"end_date_iso"`
	GameStartTime           *string `json:"game_start_time"`
	AcceptingOrderTimestamp *string `json:"accepting_order_timestamp"`
	MinimumOrderSize        float64 `json:"minimum_order_size"`
	MinimumTickSize         float64 `json:"minimum_tick_size"`
	MakerBaseFee            float64 `json:"maker_base_fee"`
	TakerBaseFee            float64 `json:"taker_base_fee"`
	SecondsDelay            int32   `json:"seconds_delay"`

	Tokens  json.RawMessage `json:"tokens"`
	Rewards json.RawMessage `json:"rewards"`
	Tags    json.RawMessage `json:"tags"`

	Icon                 *string `json:"icon"`
	Image                *string `json:"image"`
	FPMM                 *string `json:"fpmm"`
	NegRiskMarketID      *string `json:"neg_risk_market_id"`
	NegRiskRequestID     *string `json:"neg_risk_request_id"`
	NotificationsEnabled bool    `json:"notifications_enabled"`
	Is5050Outcome        bool    `json:"is_50_50_outcome"`
}

// GammaMarket is one market as returned by the Gamma API. Gamma's schema
// differs from the CLOB one (camelCase, string-encoded numerics), so it
// gets its own type.
type GammaMarket struct {
	ID          string  `json:"id"`
	Slug        *string `json:"slug"`
	Question    *string `json:"question"`
	Description *string `json:"description"`
	Active      bool    `json:"active"`
	Closed      bool    `json:"closed"`
	Archived    bool    `json:"archived"`
	EndDate     *string `json:"endDate"`
	StartDate   *string `json:"startDate"`
	Volume      *string `json:"volume"`
	Liquidity   *string `json:"liquidity"`

	Outcomes      json.RawMessage `json:"outcomes"`
	OutcomePrices json.RawMessage `json:"outcomePrices"`
	CLOBTokenIDs  json.RawMessage `json:"clobTokenIds"`
}
