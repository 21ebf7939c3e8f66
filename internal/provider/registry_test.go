package provider

import (
	"context"
	"testing"
	"time"

	"github.com/quotelab/marketdata/errs"
	"github.com/quotelab/marketdata/internal/schema"
)

type nullProvider struct {
	spec Spec
}

func (p *nullProvider) Name() string { return p.spec.Vendor }

func (p *nullProvider) FetchBars(context.Context, string, time.Time, time.Time, schema.Timeframe) ([]schema.MarketData, error) {
	return nil, nil
}

func (p *nullProvider) FetchLatestQuote(context.Context, string) (schema.MarketData, error) {
	return schema.MarketData{}, nil
}

func (p *nullProvider) StreamTrades(context.Context, []string, Sink) error { return nil }

func (p *nullProvider) FetchOptionsChain(context.Context, string, *time.Time) ([]schema.OptionsQuote, error) {
	return nil, nil
}

func (p *nullProvider) Close() error { return nil }

func TestRegistryConstructsRegisteredVendor(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Alpaca", func(spec Spec) (Provider, error) {
		return &nullProvider{spec: spec}, nil
	})

	instance, err := reg.New(Spec{Vendor: "  ALPACA "})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if got := instance.Name(); got != "alpaca" {
		t.Fatalf("vendor not normalized, got %q", got)
	}

	vendors := reg.Vendors()
	if len(vendors) != 1 || vendors[0] != "alpaca" {
		t.Fatalf("unexpected vendor list %v", vendors)
	}
}

func TestRegistryRejectsUnknownVendor(t *testing.T) {
	reg := NewRegistry()
	reg.Register("alpaca", func(spec Spec) (Provider, error) {
		return &nullProvider{spec: spec}, nil
	})

	_, err := reg.New(Spec{Vendor: "polygon"})
	if err == nil {
		t.Fatal("expected error for unknown vendor")
	}
	if code := errs.CodeOf(err); code != errs.CodeUnknownProvider {
		t.Fatalf("expected CodeUnknownProvider, got %v", code)
	}
}

func TestRegistryRejectsEmptyVendor(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.New(Spec{})
	if err == nil {
		t.Fatal("expected error for empty vendor")
	}
	if code := errs.CodeOf(err); code != errs.CodeInvalid {
		t.Fatalf("expected CodeInvalid, got %v", code)
	}
}

func TestRegistryInjectsLogger(t *testing.T) {
	reg := NewRegistry()
	var captured Spec
	reg.Register("alpaca", func(spec Spec) (Provider, error) {
		captured = spec
		return &nullProvider{spec: spec}, nil
	})

	if _, err := reg.New(Spec{Vendor: "alpaca"}); err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if captured.Logger == nil {
		t.Fatal("expected a non-nil logger in the factory spec")
	}
}

func TestRegisterNilFactoryPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil factory")
		}
	}()
	NewRegistry().Register("alpaca", nil)
}
