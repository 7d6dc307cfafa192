// Package bridge talks to the localhost subprocess that owns the desktop COM
// brokerage terminal. The terminal wedges when hammered after a fault, so
// every call goes through a circuit breaker: after repeated failures the
// breaker opens and calls fail fast until the bridge recovers.
package bridge

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/Gotti0/kimum-trade-sub000/internal/clients/rest"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

const maxInfoBatch = 200

type Config struct {
	BaseURL string // usually http://127.0.0.1:<port>
	Rest    rest.Config

	// TripAfter consecutive failures open the breaker; it half-opens after
	// CooldownPeriod. Zero values use 5 failures and 30 seconds.
	TripAfter      uint32
	CooldownPeriod time.Duration
}

type Client struct {
	rest    *rest.Client
	baseURL string
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.TripAfter == 0 {
		cfg.TripAfter = 5
	}
	if cfg.CooldownPeriod <= 0 {
		cfg.CooldownPeriod = 30 * time.Second
	}
	cfg.Rest.Source = "bridge"

	clientLog := log.With().Str("client", "bridge").Logger()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bridge",
		MaxRequests: 1,
		Timeout:     cfg.CooldownPeriod,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.TripAfter
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			clientLog.Warn().Str("from", from.String()).Str("to", to.String()).
				Msg("Bridge circuit breaker state changed")
		},
	})

	return &Client{
		rest:    rest.New(cfg.Rest, log),
		baseURL: cfg.BaseURL,
		breaker: breaker,
		log:     clientLog,
	}
}

func (c *Client) Name() string { return "bridge" }

type barRow struct {
	Date   string  `json:"date"`
	Time   int     `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Value  float64 `json:"value"`
}

func (c *Client) FetchDailyBars(ctx context.Context, symbol string, from, to domain.Day) ([]domain.Bar, error) {
	return c.fetchBars(ctx, "daily", symbol, from, to)
}

func (c *Client) FetchMinuteBars(ctx context.Context, symbol string, from, to domain.Day) ([]domain.Bar, error) {
	return c.fetchBars(ctx, "minute", symbol, from, to)
}

func (c *Client) fetchBars(ctx context.Context, interval, symbol string, from, to domain.Day) ([]domain.Bar, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		endpoint := fmt.Sprintf("%s/bars/%s?symbol=%s&from=%s&to=%s",
			c.baseURL, interval, url.QueryEscape(symbol), from.Wire(), to.Wire())

		var resp struct {
			Rows []barRow `json:"rows"`
		}
		if err := c.rest.GetJSON(ctx, endpoint, nil, &resp); err != nil {
			return nil, err
		}
		return resp.Rows, nil
	})
	if err != nil {
		return nil, c.wrapBreakerErr(symbol, err)
	}

	rows := result.([]barRow)
	bars := make([]domain.Bar, 0, len(rows))
	for _, row := range rows {
		t, err := time.Parse("20060102", row.Date)
		if err != nil {
			c.log.Warn().Str("symbol", symbol).Str("date", row.Date).Msg("Skipping bar with bad date")
			continue
		}
		day := domain.DayFromTime(t)
		if day < from || day > to {
			continue
		}
		bars = append(bars, domain.Bar{
			Day:        day,
			Time:       row.Time,
			Open:       row.Open,
			High:       row.High,
			Low:        row.Low,
			Close:      row.Close,
			Volume:     row.Volume,
			TradeValue: row.Value,
		})
	}
	return bars, nil
}

type instrumentRow struct {
	Symbol      string  `json:"symbol"`
	Market      string  `json:"market"`
	Sector      string  `json:"sector"`
	MarketCap   float64 `json:"market_cap"`
	ATSEligible bool    `json:"ats_eligible"`
}

func (c *Client) FetchInstrumentInfo(ctx context.Context, symbols []string) (map[string]domain.InstrumentInfo, error) {
	out := make(map[string]domain.InstrumentInfo, len(symbols))
	for start := 0; start < len(symbols); start += maxInfoBatch {
		end := start + maxInfoBatch
		if end > len(symbols) {
			end = len(symbols)
		}
		batch := symbols[start:end]

		result, err := c.breaker.Execute(func() (any, error) {
			var resp struct {
				Items []instrumentRow `json:"items"`
			}
			body := map[string]any{"symbols": batch}
			if err := c.rest.PostJSON(ctx, c.baseURL+"/instruments", nil, body, &resp); err != nil {
				return nil, err
			}
			return resp.Items, nil
		})
		if err != nil {
			return nil, c.wrapBreakerErr("", err)
		}

		for _, item := range result.([]instrumentRow) {
			out[item.Symbol] = domain.InstrumentInfo{
				Symbol:      item.Symbol,
				MarketType:  item.Market,
				Sector:      item.Sector,
				MarketCap:   item.MarketCap,
				ATSEligible: item.ATSEligible,
			}
		}
	}
	return out, nil
}

// wrapBreakerErr keeps open-breaker failures recognisable as transient fetch
// errors so callers fall back to cached bars.
func (c *Client) wrapBreakerErr(symbol string, err error) error {
	if domain.IsFetchError(err) {
		return err
	}
	return &domain.FetchError{Source: "bridge", Symbol: symbol, Err: err}
}
