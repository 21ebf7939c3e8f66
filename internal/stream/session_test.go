package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/shopspring/decimal"

	"github.com/quotelab/marketdata/errs"
	"github.com/quotelab/marketdata/internal/schema"
)

// testCodec speaks a minimal line protocol: handshake messages are literal
// strings, trade frames look like "trade SYM PRICE".
type testCodec struct{}

func (testCodec) AuthFrame() ([]byte, error) { return []byte("auth"), nil }

func (testCodec) CheckAuthReply(frame []byte) error {
	if string(frame) != "authorized" {
		return fmt.Errorf("unexpected auth reply %q", frame)
	}
	return nil
}

func (testCodec) SubscribeFrame(symbols []string) ([]byte, error) {
	return []byte("subscribe " + strings.Join(symbols, ",")), nil
}

func (testCodec) CheckSubscribeReply(frame []byte) error {
	if string(frame) != "subscribed" {
		return fmt.Errorf("unexpected subscribe reply %q", frame)
	}
	return nil
}

func (testCodec) DecodeTrades(frame []byte) ([]schema.MarketData, error) {
	parts := strings.Fields(string(frame))
	if len(parts) != 3 || parts[0] != "trade" {
		return nil, errors.New("malformed trade frame")
	}
	price, err := decimal.NewFromString(parts[2])
	if err != nil {
		return nil, err
	}
	return []schema.MarketData{{
		Symbol:    parts[1],
		Timestamp: time.Now().UTC(),
		Close:     price,
		Volume:    1,
		Provider:  "test",
	}}, nil
}

// scriptedServer runs the given handler for a single websocket client.
func scriptedServer(t *testing.T, handle func(ctx context.Context, conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			t.Errorf("accept websocket: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "shutdown")
		handle(r.Context(), conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// handshake consumes the auth and subscribe frames and acknowledges both.
func handshake(ctx context.Context, conn *websocket.Conn) error {
	if _, _, err := conn.Read(ctx); err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, []byte("authorized")); err != nil {
		return err
	}
	if _, _, err := conn.Read(ctx); err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, []byte("subscribed"))
}

func TestSessionDeliversTradesInOrder(t *testing.T) {
	frames := []string{
		"trade AAPL 187.55",
		"trade MSFT 415.10",
		"not-a-trade",
		"trade AAPL 187.60",
	}
	server := scriptedServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if err := handshake(ctx, conn); err != nil {
			return
		}
		for _, frame := range frames {
			if err := conn.Write(ctx, websocket.MessageText, []byte(frame)); err != nil {
				return
			}
		}
		<-ctx.Done()
	})

	session, err := NewSession(Options{Provider: "test", URL: wsURL(server), Codec: testCodec{}})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	sink := func(record schema.MarketData) {
		mu.Lock()
		got = append(got, record.Symbol+" "+record.Close.String())
		if len(got) == 3 {
			close(done)
		}
		mu.Unlock()
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- session.Run(ctx, []string{"AAPL", "MSFT"}, sink)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for trades")
	}
	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("run after cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not return after cancellation")
	}

	if session.State() != StateClosed {
		t.Fatalf("expected closed state, got %s", session.State())
	}
	want := []string{"AAPL 187.55", "MSFT 415.1", "AAPL 187.6"}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("expected %d trades, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("trade %d out of order: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestSessionAuthRejectionNeverStreams(t *testing.T) {
	server := scriptedServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte("denied"))
	})

	session, err := NewSession(Options{Provider: "test", URL: wsURL(server), Codec: testCodec{}})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	var sank bool
	err = session.Run(context.Background(), []string{"AAPL"}, func(schema.MarketData) { sank = true })
	if err == nil {
		t.Fatal("expected auth failure")
	}
	if code := errs.CodeOf(err); code != errs.CodeAuth {
		t.Fatalf("expected CodeAuth, got %v", code)
	}
	if session.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", session.State())
	}
	if sank {
		t.Fatal("sink invoked despite failed handshake")
	}
}

func TestSessionTransportFailureIsTyped(t *testing.T) {
	server := scriptedServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if err := handshake(ctx, conn); err != nil {
			return
		}
		_ = conn.Close(websocket.StatusInternalError, "going away")
	})

	session, err := NewSession(Options{Provider: "test", URL: wsURL(server), Codec: testCodec{}})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	err = session.Run(context.Background(), []string{"AAPL"}, func(schema.MarketData) {})
	if err == nil {
		t.Fatal("expected transport failure")
	}
	if code := errs.CodeOf(err); code != errs.CodeNetwork {
		t.Fatalf("expected CodeNetwork, got %v", code)
	}
	if session.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", session.State())
	}
}

func TestSessionInputValidation(t *testing.T) {
	session, err := NewSession(Options{Provider: "test", URL: "ws://127.0.0.1:1", Codec: testCodec{}})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	if err := session.Run(context.Background(), nil, func(schema.MarketData) {}); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("expected CodeInvalid for empty symbols, got %v", err)
	}
	if err := session.Run(context.Background(), []string{"AAPL"}, nil); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("expected CodeInvalid for nil sink, got %v", err)
	}

	if _, err := NewSession(Options{Provider: "test", Codec: testCodec{}}); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("expected CodeInvalid for missing url, got %v", err)
	}
	if _, err := NewSession(Options{Provider: "test", URL: "ws://127.0.0.1:1"}); errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("expected CodeInvalid for missing codec, got %v", err)
	}
}

func TestSessionIsSingleUse(t *testing.T) {
	server := scriptedServer(t, func(ctx context.Context, conn *websocket.Conn) {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
		_ = conn.Write(ctx, websocket.MessageText, []byte("denied"))
	})

	session, err := NewSession(Options{Provider: "test", URL: wsURL(server), Codec: testCodec{}})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	_ = session.Run(context.Background(), []string{"AAPL"}, func(schema.MarketData) {})

	err = session.Run(context.Background(), []string{"AAPL"}, func(schema.MarketData) {})
	if errs.CodeOf(err) != errs.CodeInvalid {
		t.Fatalf("expected CodeInvalid on reuse, got %v", err)
	}
}
