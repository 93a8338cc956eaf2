package alpaca

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSuccessMessage(t *testing.T) {
	raw := `{"T":"success","msg":"authenticated"}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, KindSuccess, msg.Kind)
	require.NotNil(t, msg.Success)
	assert.Equal(t, "authenticated", msg.Success.Msg)
}

func TestParseErrorMessage(t *testing.T) {
	raw := `{"T":"error","code":401,"msg":"invalid credentials"}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, KindError, msg.Kind)
	require.NotNil(t, msg.Error)
	assert.Equal(t, 401, msg.Error.Code)
	assert.Equal(t, "invalid credentials", msg.Error.Msg)
}

func TestParseSubscriptionMessage(t *testing.T) {
	raw := `{"T":"subscription","trades":["AAPL","TSLA"],"quotes":[],"bars":["AAPL"],"updated_bars":[],"daily_bars":[],"statuses":[],"lulds":[],"corrections":[],"cancel_errors":[]}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, KindSubscription, msg.Kind)
	require.NotNil(t, msg.Subscription)
	assert.Equal(t, []string{"AAPL", "TSLA"}, msg.Subscription.Trades)
	assert.Empty(t, msg.Subscription.Quotes)
	assert.Equal(t, []string{"AAPL"}, msg.Subscription.Bars)
}

func TestParseBarMessage(t *testing.T) {
	raw := `{"T":"b","S":"AAPL","o":150.0,"h":152.5,"l":149.5,"c":151.0,"v":1000000,"t":"2024-01-01T10:00:00Z","n":1500,"vw":150.75}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, KindBar, msg.Kind)
	require.NotNil(t, msg.Bar)
	bar := msg.Bar
	assert.Equal(t, "AAPL", bar.Symbol)
	assert.Equal(t, 150.0, bar.Open)
	assert.Equal(t, 152.5, bar.High)
	assert.Equal(t, 149.5, bar.Low)
	assert.Equal(t, 151.0, bar.Close)
	assert.Equal(t, 1000000.0, bar.Volume)
	assert.Equal(t, "2024-01-01T10:00:00Z", bar.Timestamp)
	require.NotNil(t, bar.TradeCount)
	assert.Equal(t, int64(1500), *bar.TradeCount)
	require.NotNil(t, bar.VWAP)
	assert.Equal(t, 150.75, *bar.VWAP)

	assert.Equal(t, 1.0, bar.PriceChange())
	assert.InDelta(t, 0.6666666666666666, bar.PriceChangePercent(), 0.0001)
}

func TestParseQuoteMessage(t *testing.T) {
	raw := `{"T":"q","S":"TSLA","bx":"NASDAQ","bp":250.10,"bs":100,"ax":"NASDAQ","ap":250.15,"as":200,"c":[],"z":"C","t":"2024-01-01T10:00:01Z"}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, KindQuote, msg.Kind)
	require.NotNil(t, msg.Quote)
	quote := msg.Quote
	assert.Equal(t, "TSLA", quote.Symbol)
	require.NotNil(t, quote.BidExchange)
	assert.Equal(t, "NASDAQ", *quote.BidExchange)
	assert.Equal(t, 250.10, quote.BidPrice)
	assert.Equal(t, 100.0, quote.BidSize)
	assert.Equal(t, 250.15, quote.AskPrice)
	assert.Equal(t, 200.0, quote.AskSize)
	require.NotNil(t, quote.Tape)
	assert.Equal(t, "C", *quote.Tape)

	assert.InDelta(t, 0.05, quote.Spread(), 0.00001)
}

func TestParseTradeMessage(t *testing.T) {
	raw := `{"T":"t","S":"MSFT","i":12345,"x":"NASDAQ","p":380.50,"s":50,"c":[],"z":"C","t":"2024-01-01T10:00:02Z"}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, KindTrade, msg.Kind)
	require.NotNil(t, msg.Trade)
	trade := msg.Trade
	assert.Equal(t, "MSFT", trade.Symbol)
	assert.Equal(t, int64(12345), trade.ID)
	require.NotNil(t, trade.Exchange)
	assert.Equal(t, "NASDAQ", *trade.Exchange)
	assert.Equal(t, 380.50, trade.Price)
	assert.Equal(t, 50.0, trade.Size)
	assert.Equal(t, "2024-01-01T10:00:02Z", trade.Timestamp)
}

func TestParseTagIgnoresLowercaseTimestampKey(t *testing.T) {
	// "t" (timestamp) must never be mistaken for the "T" tag, even when
	// it precedes it in the object.
	raw := `{"t":"2024-01-01T10:00:02Z","T":"b","S":"AAPL","o":1,"h":2,"l":0.5,"c":1.5,"v":10}`

	var msg Message
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))

	assert.Equal(t, KindBar, msg.Kind)
	require.NotNil(t, msg.Bar)
	assert.Equal(t, "2024-01-01T10:00:02Z", msg.Bar.Timestamp)
}

func TestParseMissingMessageTag(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"S":"AAPL","t":"2024-01-01T10:00:02Z"}`), &msg)
	require.Error(t, err)
}

func TestParseUnknownMessageTag(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"T":"invalid","unknown":"field"}`), &msg)
	require.Error(t, err)
}

func TestParseMalformedJSON(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"T":"b","S":"AAPL" MISSING BRACE`), &msg)
	require.Error(t, err)
}

func TestDecodeFrame(t *testing.T) {
	frame := `[{"T":"success","msg":"connected"},{"T":"t","S":"MSFT","i":1,"p":380.5,"s":50,"t":"2024-01-01T10:00:02Z"}]`

	batch, err := DecodeFrame([]byte(frame))
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, KindSuccess, batch[0].Kind)
	assert.Equal(t, KindTrade, batch[1].Kind)
	assert.Equal(t, "MSFT", batch[1].Trade.Symbol)
}

func TestDecodeFrameRejectsNonArray(t *testing.T) {
	_, err := DecodeFrame([]byte(`{"T":"success","msg":"connected"}`))
	require.Error(t, err)
}
