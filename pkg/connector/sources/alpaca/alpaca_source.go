// Package alpaca implements the Alpaca market data websocket source.
// The source connects, authenticates, subscribes to the configured
// bar/quote/trade channels and then streams frames until the server
// closes the connection, emitting one pipeline batch per frame.
package alpaca

import (
	"context"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tickflow/tickflow/pkg/config"
	"github.com/tickflow/tickflow/pkg/errors"
	"github.com/tickflow/tickflow/pkg/logger"
	"github.com/tickflow/tickflow/pkg/metrics"
	"github.com/tickflow/tickflow/pkg/pipeline"
)

const sourceName = "alpaca"

// authRequest is the credential payload Alpaca expects first on the
// stream.
type authRequest struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

// subscribeRequest requests channel subscriptions in one message.
type subscribeRequest struct {
	Action string   `json:"action"`
	Bars   []string `json:"bars,omitempty"`
	Quotes []string `json:"quotes,omitempty"`
	Trades []string `json:"trades,omitempty"`
}

// Source streams Alpaca market data and implements
// pipeline.Source[Message]. It owns its websocket connection exclusively
// for the duration of Run.
type Source struct {
	cfg    config.Alpaca
	dialer *websocket.Dialer
	conn   *websocket.Conn
	log    *zap.Logger
}

// NewSource creates a websocket source from the given feed config.
func NewSource(cfg config.Alpaca) *Source {
	return &Source{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		log:    logger.With(zap.String("source", sourceName)),
	}
}

// Run drives the source end to end: connect, authenticate, subscribe,
// stream. A websocket failure at any stage terminates the run; batches
// already sent stay sent.
func (s *Source) Run(ctx context.Context, out *pipeline.Writer[Message]) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	defer s.disconnect()

	if err := s.authenticate(); err != nil {
		return err
	}
	if err := s.subscribe(); err != nil {
		return err
	}
	return s.stream(ctx, out)
}

func (s *Source) connect(ctx context.Context) error {
	s.log.Info("connecting to websocket", zap.String("url", s.cfg.WSURL))

	conn, _, err := s.dialer.DialContext(ctx, s.cfg.WSURL, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "websocket dial failed")
	}
	s.conn = conn
	s.log.Info("websocket connected")
	return nil
}

func (s *Source) disconnect() {
	if s.conn == nil {
		return
	}
	_ = s.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	_ = s.conn.Close()
	s.conn = nil
}

func (s *Source) authenticate() error {
	s.log.Info("authenticating")
	err := s.conn.WriteJSON(authRequest{
		Action: "auth",
		Key:    s.cfg.APIKey,
		Secret: s.cfg.APISecret,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeAuthentication, "failed to send auth request")
	}
	return nil
}

func (s *Source) subscribe() error {
	s.log.Info("subscribing",
		zap.Strings("bars", s.cfg.Bars),
		zap.Strings("quotes", s.cfg.Quotes),
		zap.Strings("trades", s.cfg.Trades),
	)
	err := s.conn.WriteJSON(subscribeRequest{
		Action: "subscribe",
		Bars:   s.cfg.Bars,
		Quotes: s.cfg.Quotes,
		Trades: s.cfg.Trades,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to send subscribe request")
	}
	return nil
}

// stream reads frames until the server closes the connection. Gorilla
// answers pings with pongs on its own; unparseable frames are skipped.
func (s *Source) stream(ctx context.Context, out *pipeline.Writer[Message]) error {
	// Unblock the read loop if the context ends first.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.conn.Close()
		case <-done:
		}
	}()

	s.log.Info("watching read stream")
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("stream stopped by caller")
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Info("server closed the stream")
				return nil
			}
			return errors.Wrap(err, errors.ErrorTypeConnection, "websocket read failed")
		}

		if msgType != websocket.TextMessage {
			s.log.Debug("non-text frame ignored", zap.Int("type", msgType))
			continue
		}

		batch, err := DecodeFrame(data)
		if err != nil {
			s.log.Debug("failed to parse frame", zap.Error(err))
			continue
		}
		if len(batch) == 0 {
			continue
		}

		if err := out.Send(ctx, batch); err != nil {
			return err
		}
		metrics.BatchesProduced.WithLabelValues(sourceName).Inc()
	}
}
