package polymarket

import (
	"context"
	"fmt"

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
	// gammaHost is the Polymarket Gamma API.
	gammaHost = "https://gamma-api.polymarket.com"

	// gammaPageLimit is the page size for the Gamma markets listing; a
	// shorter page marks the end of the listing.
	gammaPageLimit = 500

	gammaSourceName = "polymarket_gamma"
)

// GammaSource pages through active Gamma markets by offset, emitting one
// batch per page. It implements pipeline.Source[GammaMarket]. No
// authentication is required.
type GammaSource struct {
	host   string
	cfg    config.Polymarket
	client *clients.HTTPClient
	log    *zap.Logger
}

// NewGammaSource creates a Gamma source from the given feed config.
func NewGammaSource(cfg config.Polymarket) *GammaSource {
	log := logger.With(zap.String("source", gammaSourceName))
	return &GammaSource{
		host:   gammaHost,
		cfg:    cfg,
		client: clients.NewHTTPClient(nil, log),
		log:    log,
	}
}

// Run fetches all active markets ending on or after the configured
// minimum end date.
func (s *GammaSource) Run(ctx context.Context, out *pipeline.Writer[GammaMarket]) error {
	offset := 0
	pageCount := 0
	total := 0

	for {
		pageCount++
		pageURL := fmt.Sprintf(
			"%s/markets?closed=false&end_date_min=%s&limit=%d&offset=%d",
			s.host, s.cfg.EndDateMin, gammaPageLimit, offset,
		)
		s.log.Debug("fetching active markets",
			zap.Int("offset", offset),
			zap.Int("limit", gammaPageLimit),
		)

		body, err := s.client.GetJSON(ctx, pageURL, nil)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConnection, "failed to fetch active markets")
		}

		var markets []GammaMarket
		if err := json.Unmarshal(body, &markets); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to parse markets response")
		}

		s.log.Info("received active markets",
			zap.Int("offset", offset),
			zap.Int("count", len(markets)),
		)

		if len(markets) > 0 {
			if err := out.Send(ctx, pipeline.Batch[GammaMarket](markets)); err != nil {
				return err
			}
			metrics.BatchesProduced.WithLabelValues(gammaSourceName).Inc()
			total += len(markets)
		}

		if len(markets) < gammaPageLimit {
			s.log.Info("finished fetching all active markets",
				zap.Int("total_markets", total),
				zap.Int("pages", pageCount),
			)
			return nil
		}
		offset += gammaPageLimit

		if err := sleepCtx(ctx, s.cfg.RequestDelay); err != nil {
			return err
		}
	}
}
