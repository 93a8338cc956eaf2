package alpaca

import (
	json "github.com/goccy/go-json"

	"github.com/tickflow/tickflow/pkg/errors"
	"github.com/tickflow/tickflow/pkg/pipeline"
)

// Kind discriminates the message variants on the Alpaca stream. The wire
// carries it in the "T" field of every object.
type Kind string

const (
	KindSuccess      Kind = "success"
	KindError        Kind = "error"
	KindSubscription Kind = "subscription"
	KindBar          Kind = "b"
	KindQuote        Kind = "q"
	KindTrade        Kind = "t"
)

// Message is one envelope from the Alpaca market data stream. Exactly one
// of the variant pointers is set, matching Kind. Control variants
// (success, error, subscription) flow through the pipeline like data so
// the sink can decide whether to record them.
type Message struct {
	Kind         Kind
	Success      *Success
	Error        *StreamError
	Subscription *Subscription
	Bar          *Bar
	Quote        *Quote
	Trade        *Trade
}

// Success is a connection lifecycle acknowledgement,
// e.g. {"T":"success","msg":"authenticated"}.
type Success struct {
	Msg string `json:"msg"`
}

// StreamError is an error reported by the server,
// e.g. {"T":"error","code":401,"msg":"invalid key"}.
type StreamError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// Subscription confirms the active channel lists after a subscribe
// request.
type Subscription struct {
	Trades []string `json:"trades"`
	Quotes []string `json:"quotes"`
	Bars   []string `json:"bars"`
}

// Bar is one OHLCV aggregate. Alpaca uses single-letter field names on
// the wire.
type Bar struct {
	Symbol     string   `json:"S"`
	Open       float64  `json:"o"`
	High       float64  `json:"h"`
	Low        float64  `json:"l"`
	Close      float64  `json:"c"`
	Volume     float64  `json:"v"`
	Timestamp  string   `json:"t"`
	TradeCount *int64   `json:"n"`
	VWAP       *float64 `json:"vw"`
}

// PriceChange returns close minus open.
func (b *Bar) PriceChange() float64 {
	return b.Close - b.Open
}

// PriceChangePercent returns the price change relative to the open.
func (b *Bar) PriceChangePercent() float64 {
	return b.PriceChange() / b.Open * 100.0
}

// Quote is one bid/ask update.
type Quote struct {
	Symbol      string   `json:"S"`
	BidExchange *string  `json:"bx"`
	BidPrice    float64  `json:"bp"`
	BidSize     float64  `json:"bs"`
	AskExchange *string  `json:"ax"`
	AskPrice    float64  `json:"ap"`
	AskSize     float64  `json:"as"`
	Conditions  []string `json:"c"`
	Tape        *string  `json:"z"`
	Timestamp   string   `json:"t"`
}

// Spread returns ask minus bid.
func (q *Quote) Spread() float64 {
	return q.AskPrice - q.BidPrice
}

// SpreadBps returns the spread in basis points of the bid.
func (q *Quote) SpreadBps() float64 {
	return q.Spread() / q.BidPrice * 10000.0
}

// Trade is one executed trade.
type Trade struct {
	Symbol     string   `json:"S"`
	ID         int64    `json:"i"`
	Exchange   *string  `json:"x"`
	Price      float64  `json:"p"`
	Size       float64  `json:"s"`
	Conditions []string `json:"c"`
	Tape       *string  `json:"z"`
	TakerSide  *string  `json:"tks"`
	Timestamp  string   `json:"t"`
}

// UnmarshalJSON decodes one stream object, switching on the "T" tag.
// The tag is looked up by exact key: struct-based decoding would let the
// lowercase "t" timestamp field bind to T through Go's case-insensitive
// field matching and clobber the tag.
func (m *Message) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "malformed stream object")
	}
	rawTag, ok := fields["T"]
	if !ok {
		return errors.New(errors.ErrorTypeData, "missing message tag")
	}
	var tag Kind
	if err := json.Unmarshal(rawTag, &tag); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "malformed message tag")
	}

	m.Kind = tag
	switch tag {
	case KindSuccess:
		m.Success = &Success{}
		return json.Unmarshal(data, m.Success)
	case KindError:
		m.Error = &StreamError{}
		return json.Unmarshal(data, m.Error)
	case KindSubscription:
		m.Subscription = &Subscription{}
		return json.Unmarshal(data, m.Subscription)
	case KindBar:
		m.Bar = &Bar{}
		return json.Unmarshal(data, m.Bar)
	case KindQuote:
		m.Quote = &Quote{}
		return json.Unmarshal(data, m.Quote)
	case KindTrade:
		m.Trade = &Trade{}
		return json.Unmarshal(data, m.Trade)
	default:
		return errors.Newf(errors.ErrorTypeData, "unknown message tag %q", tag)
	}
}

// DecodeFrame parses one websocket text frame, which Alpaca always frames
// as a JSON array of tagged objects, into a pipeline batch.
func DecodeFrame(data []byte) (pipeline.Batch[Message], error) {
	var batch pipeline.Batch[Message]
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse stream frame")
	}
	return batch, nil
}
