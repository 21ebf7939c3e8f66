// Package factories registers built-in provider implementations.
package factories

import (
	"github.com/quotelab/marketdata/internal/adapters/alpaca"
	"github.com/quotelab/marketdata/internal/adapters/etrade"
	"github.com/quotelab/marketdata/internal/provider"
)

// Register installs all built-in provider factories into the supplied registry.
func Register(reg *provider.Registry) {
	if reg == nil {
		return
	}

	alpaca.RegisterFactory(reg)
	etrade.RegisterFactory(reg)
}
