// Package stream owns the websocket lifecycle for streaming providers:
// connect, authenticate, subscribe, dispatch, teardown.
package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/quotelab/marketdata/errs"
	"github.com/quotelab/marketdata/internal/observability"
	"github.com/quotelab/marketdata/internal/schema"
)

// State identifies where a session is in its lifecycle.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateSubscribing    State = "subscribing"
	StateStreaming      State = "streaming"
	StateClosed         State = "closed"
	StateFailed         State = "failed"
)

// Codec translates between vendor websocket framing and canonical records.
// Handshake checks are hard failures; DecodeTrades is lossy by contract and
// drops envelopes it cannot translate.
type Codec interface {
	// AuthFrame builds the single authentication message.
	AuthFrame() ([]byte, error)
	// CheckAuthReply inspects the single reply to the auth message. A parse
	// failure or a rejection must return an error.
	CheckAuthReply(frame []byte) error
	// SubscribeFrame builds the single subscription message listing the full
	// requested symbol set.
	SubscribeFrame(symbols []string) ([]byte, error)
	// CheckSubscribeReply inspects the subscription acknowledgment.
	CheckSubscribeReply(frame []byte) error
	// DecodeTrades translates an inbound message into zero or more trade
	// records. Non-trade envelopes are dropped, not surfaced.
	DecodeTrades(frame []byte) ([]schema.MarketData, error)
}

// Options configures a streaming session.
type Options struct {
	Provider         string
	URL              string
	Codec            Codec
	Logger           observability.Logger
	HandshakeTimeout time.Duration
	// OnTrade is invoked by Run for metric accounting; optional.
	OnTrade func()
}

// Session drives one websocket subscription through the lifecycle
// Disconnected -> Connecting -> Authenticating -> Subscribing -> Streaming,
// terminating in Closed (caller cancellation) or Failed (transport error).
// A session is single-use; create a new one to reconnect. Reconnect policy
// belongs to the caller, see Redial.
type Session struct {
	id               string
	provider         string
	url              string
	codec            Codec
	log              observability.Logger
	handshakeTimeout time.Duration
	onTrade          func()

	state atomic.Value
}

// NewSession constructs a session in the Disconnected state.
func NewSession(opts Options) (*Session, error) {
	if opts.URL == "" {
		return nil, errs.New(opts.Provider, errs.CodeInvalid, errs.WithMessage("stream url required"))
	}
	if opts.Codec == nil {
		return nil, errs.New(opts.Provider, errs.CodeInvalid, errs.WithMessage("stream codec required"))
	}
	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	s := &Session{
		id:               uuid.NewString(),
		provider:         opts.Provider,
		url:              opts.URL,
		codec:            opts.Codec,
		log:              observability.OrNop(opts.Logger),
		handshakeTimeout: timeout,
		onTrade:          opts.OnTrade,
	}
	s.state.Store(StateDisconnected)
	return s, nil
}

// ID returns the session correlation id.
func (s *Session) ID() string { return s.id }

// State reports the current lifecycle state.
func (s *Session) State() State {
	return s.state.Load().(State)
}

func (s *Session) transition(next State) {
	s.state.Store(next)
	s.log.Debug("stream session state",
		observability.F("session", s.id),
		observability.F("provider", s.provider),
		observability.F("state", string(next)))
}

// Run executes the full session lifecycle: dial, authenticate, subscribe,
// then dispatch trade records to sink until ctx is cancelled or the transport
// fails. The socket is released on every exit path before Run returns.
// Caller cancellation returns nil; every other exit returns a typed error.
func (s *Session) Run(ctx context.Context, symbols []string, sink func(schema.MarketData)) error {
	if len(symbols) == 0 {
		return errs.New(s.provider, errs.CodeInvalid, errs.WithOp("stream_trades"), errs.WithMessage("at least one symbol required"))
	}
	if sink == nil {
		return errs.New(s.provider, errs.CodeInvalid, errs.WithOp("stream_trades"), errs.WithMessage("sink required"))
	}
	if s.State() != StateDisconnected {
		return errs.New(s.provider, errs.CodeInvalid, errs.WithOp("stream_trades"), errs.WithMessage("session already used"))
	}

	s.transition(StateConnecting)
	dialCtx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	conn, _, err := websocket.Dial(dialCtx, s.url, nil)
	cancel()
	if err != nil {
		s.transition(StateFailed)
		return errs.New(s.provider, errs.CodeNetwork, errs.WithOp("stream_connect"), errs.WithMessage("websocket dial failed"), errs.WithCause(err))
	}
	defer func() {
		_ = conn.Close(websocket.StatusNormalClosure, "teardown")
	}()

	if err := s.authenticate(ctx, conn); err != nil {
		s.transition(StateFailed)
		return err
	}

	if err := s.subscribe(ctx, conn, symbols); err != nil {
		s.transition(StateFailed)
		return err
	}

	s.transition(StateStreaming)
	s.log.Info("stream session streaming",
		observability.F("session", s.id),
		observability.F("provider", s.provider),
		observability.F("symbols", len(symbols)))

	for {
		_, frame, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				// Caller cancellation: close the socket and return without
				// attempting further protocol exchanges.
				s.transition(StateClosed)
				return nil
			}
			s.transition(StateFailed)
			return errs.New(s.provider, errs.CodeNetwork, errs.WithOp("stream_read"), errs.WithMessage("websocket read failed"), errs.WithCause(err))
		}

		trades, err := s.codec.DecodeTrades(frame)
		if err != nil {
			// Malformed event payloads are dropped; the stream survives.
			s.log.Warn("stream frame dropped",
				observability.F("session", s.id),
				observability.F("provider", s.provider),
				observability.F("error", err.Error()))
			continue
		}
		for _, trade := range trades {
			if ctx.Err() != nil {
				s.transition(StateClosed)
				return nil
			}
			sink(trade)
			if s.onTrade != nil {
				s.onTrade()
			}
		}
	}
}

func (s *Session) authenticate(ctx context.Context, conn *websocket.Conn) error {
	s.transition(StateAuthenticating)

	frame, err := s.codec.AuthFrame()
	if err != nil {
		return errs.New(s.provider, errs.CodeAuth, errs.WithOp("stream_auth"), errs.WithMessage("build auth message"), errs.WithCause(err))
	}
	reply, err := s.exchange(ctx, conn, frame)
	if err != nil {
		return errs.New(s.provider, errs.CodeNetwork, errs.WithOp("stream_auth"), errs.WithMessage("auth exchange failed"), errs.WithCause(err))
	}
	if err := s.codec.CheckAuthReply(reply); err != nil {
		return errs.New(s.provider, errs.CodeAuth, errs.WithOp("stream_auth"), errs.WithMessage("credential rejected"), errs.WithCause(err))
	}
	return nil
}

func (s *Session) subscribe(ctx context.Context, conn *websocket.Conn, symbols []string) error {
	s.transition(StateSubscribing)

	frame, err := s.codec.SubscribeFrame(symbols)
	if err != nil {
		return errs.New(s.provider, errs.CodeInvalid, errs.WithOp("stream_subscribe"), errs.WithMessage("build subscribe message"), errs.WithCause(err))
	}
	reply, err := s.exchange(ctx, conn, frame)
	if err != nil {
		return errs.New(s.provider, errs.CodeNetwork, errs.WithOp("stream_subscribe"), errs.WithMessage("subscribe exchange failed"), errs.WithCause(err))
	}
	if err := s.codec.CheckSubscribeReply(reply); err != nil {
		return errs.New(s.provider, errs.CodeNetwork, errs.WithOp("stream_subscribe"), errs.WithMessage("subscription rejected"), errs.WithCause(err))
	}
	return nil
}

// exchange writes one frame and reads exactly one reply under the handshake
// timeout.
func (s *Session) exchange(ctx context.Context, conn *websocket.Conn, frame []byte) ([]byte, error) {
	exchangeCtx, cancel := context.WithTimeout(ctx, s.handshakeTimeout)
	defer cancel()

	if err := conn.Write(exchangeCtx, websocket.MessageText, frame); err != nil {
		return nil, err
	}
	_, reply, err := conn.Read(exchangeCtx)
	if err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		return nil, errors.New("empty handshake reply")
	}
	return reply, nil
}
