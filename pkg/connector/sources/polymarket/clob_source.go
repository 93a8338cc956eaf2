// Package polymarket implements the Polymarket REST sources: the CLOB
// markets endpoint (cursor pagination) and the Gamma markets endpoint
// (offset pagination). Each page of results becomes one pipeline batch.
package polymarket

import (
	"context"
	"fmt"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/tickflow/tickflow/pkg/clients"
	"github.com/tickflow/tickflow/pkg/config"
	"github.com/tickflow/tickflow/pkg/errors"
	"github.com/tickflow/tickflow/pkg/logger"
	"github.com/tickflow/tickflow/pkg/metrics"
	"github.com/tickflow/tickflow/pkg/pipeline"
)

const (
	// clobHost is the Polymarket CLOB API.
	clobHost = "https://clob.polymarket.com"

	// endCursor is the CLOB's end-of-listing marker (base64 of -1).
	endCursor = "LTE="

	clobSourceName = "polymarket_clob"
)

// marketsPage is the envelope around one CLOB /markets page.
type marketsPage struct {
	Limit      int               `json:"limit"`
	Count      int               `json:"count"`
	NextCursor string            `json:"next_cursor"`
	Data       []json.RawMessage `json:"data"`
}

// CLOBSource walks the CLOB /markets listing until the cursor runs out,
// emitting one batch per page. It implements pipeline.Source[Market].
type CLOBSource struct {
	host   string
	cfg    config.Polymarket
	client *clients.HTTPClient
	log    *zap.Logger
}

// NewCLOBSource creates a CLOB source from the given feed config.
func NewCLOBSource(cfg config.Polymarket) *CLOBSource {
	log := logger.With(zap.String("source", clobSourceName))
	return &CLOBSource{
		host:   clobHost,
		cfg:    cfg,
		client: clients.NewHTTPClient(nil, log),
		log:    log,
	}
}

// Run fetches all market pages. Individual markets that fail to parse are
// skipped with a warning; a page-level request failure terminates the
// run.
func (s *CLOBSource) Run(ctx context.Context, out *pipeline.Writer[Market]) error {
	headers := map[string]string{}
	if s.cfg.APIKey != "" {
		headers["POLY-API-KEY"] = s.cfg.APIKey
	}

	cursor := ""
	pageCount := 0
	totalMarkets := 0

	for {
		pageCount++
		pageURL := s.host + "/markets"
		if cursor != "" {
			pageURL += "?next_cursor=" + url.QueryEscape(cursor)
		}
		s.log.Debug("fetching markets page",
			zap.Int("page", pageCount),
			zap.String("cursor", cursor),
		)

		body, err := s.client.GetJSON(ctx, pageURL, headers)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to fetch markets page")
		}

		var page marketsPage
		if err := json.Unmarshal(body, &page); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to parse markets page")
		}

		batch := make(pipeline.Batch[Market], 0, len(page.Data))
		for _, raw := range page.Data {
			var market Market
			if err := json.Unmarshal(raw, &market); err != nil {
				s.log.Warn("failed to parse market, skipping", zap.Error(err))
				continue
			}
			batch = append(batch, market)
		}

		s.log.Info("received markets page",
			zap.Int("page", pageCount),
			zap.Int("markets", len(batch)),
		)

		if len(batch) > 0 {
			if err := out.Send(ctx, batch); err != nil {
				return err
			}
			metrics.BatchesProduced.WithLabelValues(clobSourceName).Inc()
			totalMarkets += len(batch)
		}

		if page.NextCursor == "" || page.NextCursor == endCursor {
			s.log.Info("finished fetching all markets",
				zap.Int("total_markets", totalMarkets),
				zap.Int("pages", pageCount),
			)
			return nil
		}
		cursor = page.NextCursor

		if err := sleepCtx(ctx, s.cfg.RequestDelay); err != nil {
			return err
		}
	}
}

// sleepCtx pauses between paginated requests, aborting early if the
// context ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pagination delay interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
