package domain

// Market classifies an instrument's trading venue. The market determines the
// cost parameters and the currency convention used for valuation.
type Market string

const (
	MarketDomestic    Market = "domestic-regular"
	MarketDomesticATS Market = "domestic-ats"
	MarketGlobalETF   Market = "global-etf"
	MarketBenchmark   Market = "benchmark"
)

// Currency returns the quote currency convention for the market.
// Domestic markets trade in the base currency (KRW); global markets in USD.
func (m Market) Currency() string {
	switch m {
	case MarketGlobalETF, MarketBenchmark:
		return "USD"
	default:
		return "KRW"
	}
}

// Domestic reports whether the market settles directly in the base currency.
func (m Market) Domestic() bool {
	return m == MarketDomestic || m == MarketDomesticATS
}

// Instrument identifies a tradable security.
type Instrument struct {
	Symbol string `json:"symbol"`
	Market Market `json:"market"`
}

// InstrumentInfo is the per-instrument metadata delivered by a BarSource.
type InstrumentInfo struct {
	Symbol      string  `json:"symbol"`
	MarketType  string  `json:"market_type"`
	Sector      string  `json:"sector"`
	MarketCap   float64 `json:"market_cap"`
	ATSEligible bool    `json:"ats_eligible"`
}
