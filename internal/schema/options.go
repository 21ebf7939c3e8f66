package schema

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quotelab/marketdata/errs"
)

// OptionType enumerates option contract sides.
type OptionType string

const (
	// OptionCall identifies call contracts.
	OptionCall OptionType = "call"
	// OptionPut identifies put contracts.
	OptionPut OptionType = "put"
)

// Greek names the supported option sensitivities.
type Greek string

const (
	GreekDelta Greek = "delta"
	GreekGamma Greek = "gamma"
	GreekTheta Greek = "theta"
	GreekVega  Greek = "vega"
	GreekRho   Greek = "rho"
)

// OptionsQuote is one normalized options-chain entry.
//
// Greeks holds only the sensitivities the vendor computed; an absent key means
// "not computed", never zero. ImpliedVolatility follows the same convention.
type OptionsQuote struct {
	Underlying        string            `json:"underlying"`
	ContractSymbol    string            `json:"contract_symbol"`
	Timestamp         time.Time         `json:"timestamp"`
	Strike            decimal.Decimal   `json:"strike"`
	Expiration        time.Time         `json:"expiration"`
	Type              OptionType        `json:"type"`
	Bid               decimal.Decimal   `json:"bid"`
	Ask               decimal.Decimal   `json:"ask"`
	Last              decimal.Decimal   `json:"last"`
	Volume            int64             `json:"volume"`
	OpenInterest      int64             `json:"open_interest"`
	ImpliedVolatility *float64          `json:"implied_volatility,omitempty"`
	Greeks            map[Greek]float64 `json:"greeks,omitempty"`
}

// Validate checks the quote invariants: identifiers, a positive strike,
// bid <= ask, and non-negative size fields.
func (q OptionsQuote) Validate() error {
	if strings.TrimSpace(q.Underlying) == "" {
		return errs.New("", errs.CodeInvalid, errs.WithMessage("underlying symbol required"))
	}
	if strings.TrimSpace(q.ContractSymbol) == "" {
		return errs.New("", errs.CodeInvalid, errs.WithSymbol(q.Underlying), errs.WithMessage("contract symbol required"))
	}
	if q.Type != OptionCall && q.Type != OptionPut {
		return errs.New("", errs.CodeInvalid, errs.WithSymbol(q.Underlying), errs.WithMessage("option type must be call or put"))
	}
	if !q.Strike.IsPositive() {
		return errs.New("", errs.CodeInvalid, errs.WithSymbol(q.Underlying), errs.WithMessage("strike must be positive"))
	}
	if q.Bid.GreaterThan(q.Ask) {
		return errs.New("", errs.CodeInvalid, errs.WithSymbol(q.Underlying), errs.WithMessage("bid must not exceed ask"))
	}
	if q.Volume < 0 || q.OpenInterest < 0 {
		return errs.New("", errs.CodeInvalid, errs.WithSymbol(q.Underlying), errs.WithMessage("volume and open interest must be non-negative"))
	}
	return nil
}

// Greek returns the named sensitivity and whether the vendor computed it.
func (q OptionsQuote) Greek(name Greek) (float64, bool) {
	if q.Greeks == nil {
		return 0, false
	}
	v, ok := q.Greeks[name]
	return v, ok
}
