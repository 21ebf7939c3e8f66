package alpaca

import (
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/quotelab/marketdata/internal/observability"
	"github.com/quotelab/marketdata/internal/provider"
	"github.com/quotelab/marketdata/internal/schema"
)

// Websocket protocol: one auth message, one subscribe message, then inbound
// arrays of event envelopes discriminated by "T". Only trade envelopes
// ("T":"t") translate into canonical records.

type authMessage struct {
	Action string `json:"action"`
	Key    string `json:"key"`
	Secret string `json:"secret"`
}

type subscribeMessage struct {
	Action string   `json:"action"`
	Trades []string `json:"trades"`
}

type eventEnvelope struct {
	Type      string      `json:"T"`
	Msg       string      `json:"msg"`
	Code      int         `json:"code"`
	Symbol    string      `json:"S"`
	Price     json.Number `json:"p"`
	Size      int64       `json:"s"`
	Timestamp int64       `json:"t"` // epoch milliseconds
	Trades    []string    `json:"trades"`
}

const (
	envelopeTrade        = "t"
	envelopeError        = "error"
	envelopeSuccess      = "success"
	envelopeSubscription = "subscription"
)

// tradeCodec implements stream.Codec for the Alpaca trade channel.
type tradeCodec struct {
	creds provider.Credentials
	log   observability.Logger
}

func newTradeCodec(creds provider.Credentials, log observability.Logger) *tradeCodec {
	return &tradeCodec{creds: creds, log: observability.OrNop(log)}
}

func (c *tradeCodec) AuthFrame() ([]byte, error) {
	return json.Marshal(authMessage{Action: "auth", Key: c.creds.Key, Secret: c.creds.Secret})
}

func (c *tradeCodec) CheckAuthReply(frame []byte) error {
	envelopes, err := decodeEnvelopes(frame)
	if err != nil {
		return fmt.Errorf("auth reply: %w", err)
	}
	for _, env := range envelopes {
		switch env.Type {
		case envelopeError:
			return fmt.Errorf("auth rejected: code=%d msg=%q", env.Code, env.Msg)
		case envelopeSuccess:
			return nil
		}
	}
	return errors.New("auth reply carried no success envelope")
}

func (c *tradeCodec) SubscribeFrame(symbols []string) ([]byte, error) {
	return json.Marshal(subscribeMessage{Action: "subscribe", Trades: symbols})
}

func (c *tradeCodec) CheckSubscribeReply(frame []byte) error {
	envelopes, err := decodeEnvelopes(frame)
	if err != nil {
		return fmt.Errorf("subscribe reply: %w", err)
	}
	for _, env := range envelopes {
		switch env.Type {
		case envelopeError:
			return fmt.Errorf("subscribe rejected: code=%d msg=%q", env.Code, env.Msg)
		case envelopeSubscription:
			return nil
		}
	}
	return errors.New("subscribe reply carried no subscription envelope")
}

// DecodeTrades translates the trade envelopes of one inbound batch, in batch
// order. Status and error envelopes are logged and dropped.
func (c *tradeCodec) DecodeTrades(frame []byte) ([]schema.MarketData, error) {
	envelopes, err := decodeEnvelopes(frame)
	if err != nil {
		return nil, err
	}

	var trades []schema.MarketData
	for _, env := range envelopes {
		if env.Type != envelopeTrade {
			c.log.Debug("non-trade envelope ignored",
				observability.F("type", env.Type),
				observability.F("msg", env.Msg))
			continue
		}
		price, err := decimal.NewFromString(env.Price.String())
		if err != nil {
			c.log.Warn("trade envelope skipped",
				observability.F("symbol", env.Symbol),
				observability.F("error", err.Error()))
			continue
		}
		// Trade ticks carry no OHLV range: close is the trade price, volume
		// the trade size, the rest stays zero-filled.
		trades = append(trades, schema.MarketData{
			Symbol:    env.Symbol,
			Timestamp: time.UnixMilli(env.Timestamp).UTC(),
			Close:     price,
			Volume:    env.Size,
			Provider:  VendorName,
		})
	}
	return trades, nil
}

func decodeEnvelopes(frame []byte) ([]eventEnvelope, error) {
	var envelopes []eventEnvelope
	if err := json.Unmarshal(frame, &envelopes); err != nil {
		return nil, fmt.Errorf("decode envelope batch: %w", err)
	}
	return envelopes, nil
}
