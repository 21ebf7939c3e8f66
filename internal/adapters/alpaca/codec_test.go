package alpaca

import (
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/quotelab/marketdata/internal/observability"
	"github.com/quotelab/marketdata/internal/provider"
)

func TestCodecAuthFrame(t *testing.T) {
	codec := newTradeCodec(provider.Credentials{Key: "key-id", Secret: "secret"}, nil)
	frame, err := codec.AuthFrame()
	if err != nil {
		t.Fatalf("auth frame: %v", err)
	}
	var msg authMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("unmarshal auth frame: %v", err)
	}
	if msg.Action != "auth" || msg.Key != "key-id" || msg.Secret != "secret" {
		t.Fatalf("unexpected auth frame %+v", msg)
	}
}

func TestCodecCheckAuthReply(t *testing.T) {
	codec := newTradeCodec(provider.Credentials{}, nil)

	if err := codec.CheckAuthReply([]byte(`[{"T":"success","msg":"authenticated"}]`)); err != nil {
		t.Fatalf("success reply rejected: %v", err)
	}
	if err := codec.CheckAuthReply([]byte(`[{"T":"error","code":402,"msg":"auth failed"}]`)); err == nil {
		t.Fatal("error reply accepted")
	}
	if err := codec.CheckAuthReply([]byte(`[{"T":"subscription"}]`)); err == nil {
		t.Fatal("reply without success envelope accepted")
	}
	if err := codec.CheckAuthReply([]byte(`not json`)); err == nil {
		t.Fatal("malformed reply accepted")
	}
}

func TestCodecSubscribeRoundTrip(t *testing.T) {
	codec := newTradeCodec(provider.Credentials{}, nil)
	frame, err := codec.SubscribeFrame([]string{"AAPL", "MSFT"})
	if err != nil {
		t.Fatalf("subscribe frame: %v", err)
	}
	var msg subscribeMessage
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("unmarshal subscribe frame: %v", err)
	}
	if msg.Action != "subscribe" || len(msg.Trades) != 2 {
		t.Fatalf("unexpected subscribe frame %+v", msg)
	}

	if err := codec.CheckSubscribeReply([]byte(`[{"T":"subscription","trades":["AAPL","MSFT"]}]`)); err != nil {
		t.Fatalf("subscription ack rejected: %v", err)
	}
	if err := codec.CheckSubscribeReply([]byte(`[{"T":"error","code":405,"msg":"bad subscribe"}]`)); err == nil {
		t.Fatal("subscribe rejection accepted")
	}
}

func TestCodecDecodeTrades(t *testing.T) {
	capture := observability.NewCaptureLogger()
	codec := newTradeCodec(provider.Credentials{}, capture)

	frame := []byte(`[
		{"T":"t","S":"AAPL","p":187.55,"s":100,"t":1709562600000},
		{"T":"subscription","trades":["AAPL"]},
		{"T":"t","S":"MSFT","p":415.10,"s":50,"t":1709562601000}
	]`)
	trades, err := codec.DecodeTrades(frame)
	if err != nil {
		t.Fatalf("decode trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	first := trades[0]
	if first.Symbol != "AAPL" || first.Volume != 100 || first.Provider != VendorName {
		t.Fatalf("unexpected trade %+v", first)
	}
	if !first.Close.Equal(decimal.RequireFromString("187.55")) {
		t.Fatalf("unexpected price %s", first.Close)
	}
	if want := time.UnixMilli(1709562600000).UTC(); !first.Timestamp.Equal(want) {
		t.Fatalf("unexpected timestamp %v", first.Timestamp)
	}
	if trades[1].Symbol != "MSFT" {
		t.Fatal("trade order not preserved")
	}
	if !capture.Contains("debug", "non-trade envelope ignored") {
		t.Fatal("expected non-trade diagnostic")
	}
}

func TestCodecDecodeTradesSkipsBadPrice(t *testing.T) {
	capture := observability.NewCaptureLogger()
	codec := newTradeCodec(provider.Credentials{}, capture)

	trades, err := codec.DecodeTrades([]byte(`[
		{"T":"t","S":"AAPL","s":100,"t":1709562600000},
		{"T":"t","S":"MSFT","p":415.10,"s":50,"t":1709562601000}
	]`))
	if err != nil {
		t.Fatalf("decode trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Symbol != "MSFT" {
		t.Fatalf("bad-price envelope not skipped: %+v", trades)
	}
	if !capture.Contains("warn", "trade envelope skipped") {
		t.Fatal("expected skipped-trade diagnostic")
	}
}

func TestCodecDecodeTradesRejectsMalformedBatch(t *testing.T) {
	codec := newTradeCodec(provider.Credentials{}, nil)
	if _, err := codec.DecodeTrades([]byte(`{"T":"t"}`)); err == nil {
		t.Fatal("expected error for non-array frame")
	}
}
