package provider

import (
	"strings"
	"sync"
	"time"

	"github.com/quotelab/marketdata/errs"
	"github.com/quotelab/marketdata/internal/observability"
	"github.com/quotelab/marketdata/internal/telemetry"
)

// Spec carries everything a factory needs to construct a provider instance.
// Construction is pure wiring; no network I/O happens until the first call.
type Spec struct {
	Vendor            string
	Credentials       Credentials
	BaseURL           string
	StreamURL         string
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	Logger            observability.Logger
	Metrics           *telemetry.Ingest
}

// Factory constructs a provider instance from a specification.
type Factory func(spec Spec) (Provider, error)

// Registry maintains provider factories keyed by vendor identifier.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty provider factory registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs a factory for the vendor identifier.
func (r *Registry) Register(vendor string, factory Factory) {
	if factory == nil {
		panic("provider factory required")
	}
	vendor = normalizeVendor(vendor)
	r.mu.Lock()
	r.factories[vendor] = factory
	r.mu.Unlock()
}

// Vendors lists the registered vendor identifiers.
func (r *Registry) Vendors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for vendor := range r.factories {
		out = append(out, vendor)
	}
	return out
}

// New constructs a provider for the vendor named in spec. Unknown vendor
// identifiers fail with errs.CodeUnknownProvider so callers can tell a typo
// apart from a recognized-but-stubbed integration.
func (r *Registry) New(spec Spec) (Provider, error) {
	vendor := normalizeVendor(spec.Vendor)
	if vendor == "" {
		return nil, errs.New("", errs.CodeInvalid, errs.WithMessage("vendor identifier required"))
	}
	r.mu.RLock()
	factory, ok := r.factories[vendor]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New(vendor, errs.CodeUnknownProvider, errs.WithMessage("unrecognized vendor identifier"))
	}
	spec.Vendor = vendor
	spec.Logger = observability.OrNop(spec.Logger)
	instance, err := factory(spec)
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func normalizeVendor(vendor string) string {
	return strings.ToLower(strings.TrimSpace(vendor))
}
