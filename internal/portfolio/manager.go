// Package portfolio holds the cash/position ledger and the netting trade
// executor. Only the difference between target and current positions is
// traded; a full liquidate-and-rebuy cycle never happens on a rebalance.
package portfolio

import (
	"fmt"
	"math"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// minPositionShares is the purge threshold for residual share dust.
const minPositionShares = 1e-9

// MarketResolver maps a symbol to its trading venue. The venue picks the
// cost parameters and whether FX applies.
type MarketResolver func(symbol string) domain.Market

// Position is one open holding. LastPrice is the most recent mark, kept so a
// symbol that drops out of the price feed still values at its frozen price.
type Position struct {
	Shares    float64       `json:"shares"`
	Market    domain.Market `json:"market"`
	LastPrice float64       `json:"last_price"`
}

// Manager owns cash, positions, and the trade/equity logs for a single run.
// It holds no state shared across runs.
type Manager struct {
	log zerolog.Logger

	initialCapital float64
	cash           float64
	positions      map[string]*Position

	costs   CostTable
	resolve MarketResolver

	trades []domain.TradeRecord
	equity []domain.EquityPoint

	turnover       float64
	commissionPaid float64
	slippagePaid   float64
}

// NewManager creates a manager with the full initial capital in cash.
func NewManager(initialCapital float64, costs CostTable, resolve MarketResolver, log zerolog.Logger) (*Manager, error) {
	if initialCapital <= 0 {
		return nil, &domain.ConfigError{Field: "initial_capital", Reason: "must be positive"}
	}
	if costs == nil {
		costs = DefaultCostTable()
	}
	if resolve == nil {
		resolve = func(string) domain.Market { return domain.MarketDomestic }
	}
	return &Manager{
		log:            log.With().Str("component", "portfolio").Logger(),
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]*Position),
		costs:          costs,
		resolve:        resolve,
	}, nil
}

func (m *Manager) Cash() float64                     { return m.cash }
func (m *Manager) InitialCapital() float64           { return m.initialCapital }
func (m *Manager) Trades() []domain.TradeRecord      { return m.trades }
func (m *Manager) EquityCurve() []domain.EquityPoint { return m.equity }

// Totals returns cumulative turnover, commission, and slippage in base
// currency.
func (m *Manager) Totals() (turnover, commission, slippage float64) {
	return m.turnover, m.commissionPaid, m.slippagePaid
}

// Positions returns a copy of the open positions.
func (m *Manager) Positions() map[string]Position {
	out := make(map[string]Position, len(m.positions))
	for s, p := range m.positions {
		out[s] = *p
	}
	return out
}

// fxFor returns the base-currency conversion for a market at the given
// USDKRW rate. Domestic instruments convert at 1.
func fxFor(market domain.Market, fx float64) float64 {
	if market.Currency() == "USD" {
		return fx
	}
	return 1
}

// markPrice returns the valuation price for a held position, falling back to
// the frozen last mark when the feed has no quote.
func (m *Manager) markPrice(symbol string, pos *Position, prices map[string]float64) float64 {
	if p, ok := prices[symbol]; ok && p > 0 {
		pos.LastPrice = p
		return p
	}
	return pos.LastPrice
}

// Value marks the whole portfolio to market in base currency.
func (m *Manager) Value(prices map[string]float64, fx float64) float64 {
	total := m.cash
	for symbol, pos := range m.positions {
		total += pos.Shares * m.markPrice(symbol, pos, prices) * fxFor(pos.Market, fx)
	}
	return total
}

// RecordDailyEquity appends a mark-to-market point. Re-recording the same day
// after a rebalance is allowed; the later point wins for plotting.
func (m *Manager) RecordDailyEquity(day domain.Day, prices map[string]float64, fx float64) domain.EquityPoint {
	point := domain.EquityPoint{Day: day, Value: m.Value(prices, fx)}
	m.equity = append(m.equity, point)
	return point
}

type order struct {
	symbol    string
	action    domain.TradeAction
	diffValue float64 // base currency, positive = buy
}

// ExecuteTrades drives the portfolio to targetWeights at the given prices.
// Phase 1 liquidates holdings absent from the target, phase 2 plans net
// differences against the recomputed total, then sells execute before buys so
// freed cash funds the purchases. Cash can never go negative: buys that
// overshoot available cash scale down to exact fit.
func (m *Manager) ExecuteTrades(day domain.Day, targetWeights map[string]float64, prices map[string]float64, fx float64) error {
	if err := validateWeights(targetWeights); err != nil {
		return err
	}

	m.liquidateAbsent(day, targetWeights, prices, fx)

	total := m.Value(prices, fx)
	sells, buys := m.plan(targetWeights, prices, fx, total)

	for _, o := range sells {
		m.executeSell(day, o, prices, fx)
	}
	for _, o := range buys {
		m.executeBuy(day, o, prices, fx)
	}

	if m.cash < 0 {
		return &domain.InvariantViolation{Reason: fmt.Sprintf("negative cash %.2f after execution on %s", m.cash, day)}
	}
	m.purgeDust()
	return nil
}

func validateWeights(weights map[string]float64) error {
	var sum float64
	for symbol, w := range weights {
		if w < 0 || math.IsNaN(w) {
			return &domain.InvariantViolation{Reason: "negative or NaN weight for " + symbol}
		}
		sum += w
	}
	if sum > 1+1e-6 {
		return &domain.InvariantViolation{Reason: fmt.Sprintf("target weights sum to %.6f", sum)}
	}
	return nil
}

// liquidateAbsent sells every holding whose target weight is absent or zero.
func (m *Manager) liquidateAbsent(day domain.Day, targetWeights map[string]float64, prices map[string]float64, fx float64) {
	for _, symbol := range m.heldSymbols() {
		if w, ok := targetWeights[symbol]; ok && w > 0 {
			continue
		}
		pos := m.positions[symbol]
		price := m.markPrice(symbol, pos, prices)
		if price <= 0 {
			m.log.Warn().Str("symbol", symbol).Str("day", day.String()).
				Msg("No price to liquidate at, keeping position")
			continue
		}
		m.fill(day, symbol, pos, domain.ActionLiquidate, -pos.Shares, price, fx)
	}
}

// plan computes net orders against the post-liquidation total. Orders smaller
// than one share at exec price are skipped to prevent micro-churn. The plan
// is symbol-ordered for reproducibility.
func (m *Manager) plan(targetWeights map[string]float64, prices map[string]float64, fx float64, total float64) (sells, buys []order) {
	symbols := make([]string, 0, len(targetWeights))
	for symbol := range targetWeights {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		weight := targetWeights[symbol]
		if weight <= 0 {
			continue
		}
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			m.log.Warn().Str("symbol", symbol).Msg("No price for target, skipping")
			continue
		}

		market := m.marketOf(symbol)
		params := m.costs.For(market)
		rate := fxFor(market, fx)

		var current float64
		if pos, held := m.positions[symbol]; held {
			current = pos.Shares * price * rate
		}
		diff := total*weight - current

		if diff > 0 {
			if diff < params.BuyExec(price)*rate {
				continue // below one share at exec, discard
			}
			buys = append(buys, order{symbol: symbol, action: domain.ActionNetBuy, diffValue: diff})
		} else if diff < 0 {
			if -diff < params.SellExec(price)*rate {
				continue
			}
			sells = append(sells, order{symbol: symbol, action: domain.ActionNetSell, diffValue: diff})
		}
	}
	return sells, buys
}

func (m *Manager) executeSell(day domain.Day, o order, prices map[string]float64, fx float64) {
	pos, held := m.positions[o.symbol]
	if !held {
		return
	}
	price := prices[o.symbol]
	params := m.costs.For(pos.Market)
	rate := fxFor(pos.Market, fx)

	shares := -o.diffValue / (params.SellExec(price) * rate)
	if shares > pos.Shares {
		shares = pos.Shares
	}
	if shares <= 0 {
		return
	}
	m.fill(day, o.symbol, pos, o.action, -shares, price, fx)
}

func (m *Manager) executeBuy(day domain.Day, o order, prices map[string]float64, fx float64) {
	price := prices[o.symbol]
	market := m.marketOf(o.symbol)
	params := m.costs.For(market)
	rate := fxFor(market, fx)
	exec := params.BuyExec(price)

	shares := o.diffValue / (exec * rate)
	cost := shares * exec * rate * (1 + params.Commission)
	if cost > m.cash {
		scaled := m.cash / (exec * rate * (1 + params.Commission))
		m.log.Warn().Str("symbol", o.symbol).Str("day", day.String()).
			Float64("wanted_shares", shares).Float64("scaled_shares", scaled).
			Msg("Buy exceeds cash, scaling down to fit")
		shares = scaled
	}
	if shares*exec*rate < exec*rate { // below one share
		return
	}

	pos, held := m.positions[o.symbol]
	if !held {
		pos = &Position{Market: market}
		m.positions[o.symbol] = pos
	}
	m.fill(day, o.symbol, pos, o.action, shares, price, fx)
}

// fill applies a signed share delta at market price, charges slippage and
// commission, moves cash, and appends the trade record.
func (m *Manager) fill(day domain.Day, symbol string, pos *Position, action domain.TradeAction, shareDelta, price, fx float64) {
	params := m.costs.For(pos.Market)
	rate := fxFor(pos.Market, fx)

	var exec float64
	if shareDelta > 0 {
		exec = params.BuyExec(price)
	} else {
		exec = params.SellExec(price)
	}

	gross := math.Abs(shareDelta) * exec * rate
	commission := gross * params.Commission
	slippage := math.Abs(shareDelta) * math.Abs(exec-price) * rate

	var amount float64
	if shareDelta > 0 {
		amount = -(gross + commission) // cash out
	} else {
		amount = gross - commission // cash in
	}

	m.cash += amount
	pos.Shares += shareDelta
	pos.LastPrice = price

	m.turnover += gross
	m.commissionPaid += commission
	m.slippagePaid += slippage

	m.trades = append(m.trades, domain.TradeRecord{
		Day:          day,
		Symbol:       symbol,
		Action:       action,
		Shares:       shareDelta,
		MarketPrice:  price,
		ExecPrice:    exec,
		Amount:       amount,
		Commission:   commission,
		SlippageCost: slippage,
		Market:       pos.Market,
		Currency:     pos.Market.Currency(),
	})

	m.log.Debug().Str("symbol", symbol).Str("action", string(action)).
		Float64("shares", shareDelta).Float64("amount", amount).
		Str("day", day.String()).Msg("Trade filled")
}

// BuyValue buys as many shares as value affords at the buy-exec price,
// clamped to available cash. Used by the event-driven strategies that size
// positions directly rather than through target weights. Returns the filled
// share count, 0 when the order fell below one share.
func (m *Manager) BuyValue(day domain.Day, symbol string, value, price, fx float64) float64 {
	if price <= 0 || value <= 0 {
		return 0
	}
	market := m.marketOf(symbol)
	params := m.costs.For(market)
	rate := fxFor(market, fx)
	exec := params.BuyExec(price)

	shares := value / (exec * rate)
	if cost := shares * exec * rate * (1 + params.Commission); cost > m.cash {
		shares = m.cash / (exec * rate * (1 + params.Commission))
		m.log.Warn().Str("symbol", symbol).Str("day", day.String()).
			Msg("Buy exceeds cash, scaling down to fit")
	}
	if shares < 1 {
		return 0
	}

	pos, held := m.positions[symbol]
	if !held {
		pos = &Position{Market: market}
		m.positions[symbol] = pos
	}
	m.fill(day, symbol, pos, domain.ActionNetBuy, shares, price, fx)
	return shares
}

// SellShares sells up to the given share count at the sell-exec price.
// Returns the filled share count.
func (m *Manager) SellShares(day domain.Day, symbol string, shares, price, fx float64) float64 {
	pos, held := m.positions[symbol]
	if !held || price <= 0 || shares <= 0 {
		return 0
	}
	if shares > pos.Shares {
		shares = pos.Shares
	}
	m.fill(day, symbol, pos, domain.ActionNetSell, -shares, price, fx)
	m.purgeDust()
	return shares
}

func (m *Manager) purgeDust() {
	for symbol, pos := range m.positions {
		if math.Abs(pos.Shares) < minPositionShares {
			delete(m.positions, symbol)
		}
	}
}

func (m *Manager) marketOf(symbol string) domain.Market {
	if pos, held := m.positions[symbol]; held {
		return pos.Market
	}
	return m.resolve(symbol)
}

func (m *Manager) heldSymbols() []string {
	out := make([]string, 0, len(m.positions))
	for symbol := range m.positions {
		out = append(out, symbol)
	}
	sort.Strings(out)
	return out
}
