package yahoo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tickflow/tickflow/pkg/clients"
	"github.com/tickflow/tickflow/pkg/config"
	"github.com/tickflow/tickflow/pkg/errors"
	"github.com/tickflow/tickflow/pkg/logger"
	"github.com/tickflow/tickflow/pkg/metrics"
	"github.com/tickflow/tickflow/pkg/pipeline"
)

const (
	// yahooHost serves the fundamentals-timeseries endpoint.
	yahooHost = "https://query1.finance.yahoo.com"

	// lookback bounds the quarterly history requested per symbol.
	lookback = 2 * 365 * 24 * time.Hour

	sourceName = "yahoo"
)

// Source fetches quarterly fundamentals for a list of symbols and emits
// one batch per statement fetch. Fetch failures for a single statement
// are logged and skipped so the remaining symbols still load. It
// implements pipeline.Source[FundamentalRow].
type Source struct {
	host    string
	cfg     config.Yahoo
	symbols []string
	client  *clients.HTTPClient
	log     *zap.Logger
}

// NewSource creates a Yahoo source. Symbols are read from the CSV file
// named by the config.
func NewSource(cfg config.Yahoo) (*Source, error) {
	symbols, err := LoadSymbols(cfg.SymbolsPath)
	if err != nil {
		return nil, err
	}
	if len(symbols) == 0 {
		return nil, errors.New(errors.ErrorTypeConfig, "symbols file contains no symbols")
	}
	log := logger.With(zap.String("source", sourceName))
	return &Source{
		host:    yahooHost,
		cfg:     cfg,
		symbols: symbols,
		client:  clients.NewHTTPClient(nil, log),
		log:     log,
	}, nil
}

// Run walks every symbol and statement, throttling between requests.
func (s *Source) Run(ctx context.Context, out *pipeline.Writer[FundamentalRow]) error {
	s.log.Info("fetching quarterly fundamentals", zap.Int("symbols", len(s.symbols)))

	statements := []Statement{StatementIncome, StatementBalanceSheet, StatementCashFlow}
	for _, symbol := range s.symbols {
		for _, statement := range statements {
			rows, err := s.fetchStatement(ctx, symbol, statement)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Error("failed to fetch statement",
					zap.String("symbol", symbol),
					zap.String("statement", string(statement)),
					zap.Error(err),
				)
			} else if len(rows) > 0 {
				if err := out.Send(ctx, pipeline.Batch[FundamentalRow](rows)); err != nil {
					return err
				}
				metrics.BatchesProduced.WithLabelValues(sourceName).Inc()
			}
			if err := sleepCtx(ctx, s.cfg.RequestDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Source) fetchStatement(ctx context.Context, symbol string, statement Statement) ([]FundamentalRow, error) {
	now := time.Now()
	fetchURL := fmt.Sprintf(
		"%s/ws/fundamentals-timeseries/v1/finance/timeseries/%s?type=%s&period1=%d&period2=%d",
		s.host, symbol,
		strings.Join(statementTypes[statement], ","),
		now.Add(-lookback).Unix(), now.Unix(),
	)
	s.log.Debug("fetching statement",
		zap.String("symbol", symbol),
		zap.String("statement", string(statement)),
	)

	headers := map[string]string{"User-Agent": "Mozilla/5.0"}
	body, err := s.client.GetJSON(ctx, fetchURL, headers)
	if err != nil {
		return nil, err
	}
	return parseTimeseries(body, symbol, statement)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
