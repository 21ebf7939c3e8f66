// Package errs provides structured error types shared across the market-data core.
package errs

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Code identifies a failure category in the provider error taxonomy.
type Code string

const (
	// CodeCapability indicates the provider never offers the requested operation.
	CodeCapability Code = "capability_not_supported"
	// CodeNotImplemented indicates the vendor is recognized but the integration is incomplete.
	CodeNotImplemented Code = "not_implemented"
	// CodeAuth indicates a rejected credential during connect or handshake.
	CodeAuth Code = "authentication_failed"
	// CodeNetwork indicates an HTTP or websocket transport failure.
	CodeNetwork Code = "transport_failure"
	// CodeUnknownProvider indicates an unrecognized vendor identifier.
	CodeUnknownProvider Code = "unknown_provider"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
)

// E captures structured error information produced across the ingestion stack.
type E struct {
	Provider string
	Op       string
	Symbol   string
	Code     Code
	HTTP     int
	Message  string
	Metadata map[string]string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the provider and error code.
func New(provider string, code Code, opts ...Option) *E {
	e := &E{
		Provider: strings.TrimSpace(provider),
		Code:     code,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithOp records the failing operation (e.g. fetch_bars).
func WithOp(op string) Option {
	trimmed := strings.TrimSpace(op)
	return func(e *E) {
		e.Op = trimmed
	}
}

// WithSymbol records the symbol the operation was acting on.
func WithSymbol(symbol string) Option {
	trimmed := strings.TrimSpace(symbol)
	return func(e *E) {
		e.Symbol = trimmed
	}
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithField appends a single metadata key/value pair.
func WithField(key, value string) Option {
	return func(e *E) {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			return
		}
		if e.Metadata == nil {
			e.Metadata = make(map[string]string, 1)
		}
		e.Metadata[trimmedKey] = strings.TrimSpace(value)
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	var parts []string

	provider := strings.TrimSpace(e.Provider)
	if provider == "" {
		provider = "unknown"
	}
	parts = append(parts, "provider="+provider)

	code := strings.TrimSpace(string(e.Code))
	if code == "" {
		code = "unknown"
	}
	parts = append(parts, "code="+code)

	if e.Op != "" {
		parts = append(parts, "op="+e.Op)
	}
	if e.Symbol != "" {
		parts = append(parts, "symbol="+e.Symbol)
	}
	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Message != "" {
		parts = append(parts, "message="+strconv.Quote(e.Message))
	}
	if len(e.Metadata) > 0 {
		keys := make([]string, 0, len(e.Metadata))
		for k := range e.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, k+"="+strconv.Quote(e.Metadata[k]))
		}
		parts = append(parts, "meta="+strings.Join(pairs, ","))
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}

	return strings.Join(parts, " ")
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf extracts the taxonomy code from err, unwrapping as needed.
// Errors produced outside this package report an empty code.
func CodeOf(err error) Code {
	var envelope *E
	if errors.As(err, &envelope) {
		return envelope.Code
	}
	return ""
}

// IsCapability reports whether err signals a capability the provider never offers.
func IsCapability(err error) bool {
	return CodeOf(err) == CodeCapability
}

// IsNotImplemented reports whether err signals an incomplete vendor integration.
func IsNotImplemented(err error) bool {
	return CodeOf(err) == CodeNotImplemented
}

// IsAuth reports whether err signals a rejected credential.
func IsAuth(err error) bool {
	return CodeOf(err) == CodeAuth
}

// NotSupported returns a standardized error for capabilities the provider never offers.
func NotSupported(provider, op string) *E {
	return New(provider, CodeCapability, WithOp(op), WithMessage("operation not supported by this provider"))
}

// NotImplemented returns a standardized error for recognized-but-unfinished integrations.
func NotImplemented(provider, op string) *E {
	return New(provider, CodeNotImplemented, WithOp(op), WithMessage("vendor integration incomplete"))
}
