package domain

// TradeAction is the executed trade kind. Netting means only the difference
// between target and current position is traded.
type TradeAction string

const (
	ActionLiquidate TradeAction = "LIQUIDATE"
	ActionNetSell   TradeAction = "NET_SELL"
	ActionNetBuy    TradeAction = "NET_BUY"
)

// TradeRecord is one filled lot. Shares and Amount are signed: negative
// shares for sells, negative amount for cash leaving the portfolio.
type TradeRecord struct {
	Day          Day         `json:"day"`
	Symbol       string      `json:"symbol"`
	Action       TradeAction `json:"action"`
	Shares       float64     `json:"shares"`
	MarketPrice  float64     `json:"market_price"`
	ExecPrice    float64     `json:"exec_price"`
	Amount       float64     `json:"amount"`
	Commission   float64     `json:"commission"`
	SlippageCost float64     `json:"slippage_cost"`
	Market       Market      `json:"market"`
	Currency     string      `json:"currency"`
}

// EquityPoint is a daily mark-to-market of the whole portfolio in base
// currency. Duplicate days may appear when a rebalance re-records equity;
// the later entry is authoritative for plotting.
type EquityPoint struct {
	Day   Day     `json:"day"`
	Value float64 `json:"value"`
}

// RegimeLabel is a discrete market-state classification.
type RegimeLabel string

const (
	RegimeBull    RegimeLabel = "BULL"
	RegimeWarning RegimeLabel = "WARNING"
	RegimeBear    RegimeLabel = "BEAR"
)

// RebalanceEvent captures one target-allocation decision.
type RebalanceEvent struct {
	Day             Day                    `json:"day"`
	Regime          RegimeLabel            `json:"regime"`
	WeightMethod    string                 `json:"weight_method"`
	NumSelected     int                    `json:"n_selected"`
	PerTickerRegime map[string]RegimeLabel `json:"per_ticker_regime,omitempty"`
	TargetWeights   map[string]float64     `json:"target_weights"`
}

// WeightSum returns the total target weight of the event.
func (e RebalanceEvent) WeightSum() float64 {
	sum := 0.0
	for _, w := range e.TargetWeights {
		sum += w
	}
	return sum
}
