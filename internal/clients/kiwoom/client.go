// Package kiwoom is the primary Korean brokerage BarSource: daily and minute
// charts plus instrument metadata, batched at the API's 200-symbol limit.
package kiwoom

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/clients/rest"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

const maxInfoBatch = 200

// Config points at the brokerage REST gateway. The access token is obtained
// out of band and refreshed by the caller.
type Config struct {
	BaseURL     string
	AccessToken string
	Rest        rest.Config
}

type Client struct {
	rest    *rest.Client
	baseURL string
	headers map[string]string
	log     zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Client {
	cfg.Rest.Source = "kiwoom"
	return &Client{
		rest:    rest.New(cfg.Rest, log),
		baseURL: cfg.BaseURL,
		headers: map[string]string{"Authorization": "Bearer " + cfg.AccessToken},
		log:     log.With().Str("client", "kiwoom").Logger(),
	}
}

func (c *Client) Name() string { return "kiwoom" }

type barRow struct {
	Date   string  `json:"date"` // YYYYMMDD
	Time   int     `json:"time"` // HHMM, 0 for daily rows
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	Value  float64 `json:"value"` // traded value in KRW
}

type chartResponse struct {
	Rows []barRow `json:"rows"`
}

func (c *Client) FetchDailyBars(ctx context.Context, symbol string, from, to domain.Day) ([]domain.Bar, error) {
	return c.fetchChart(ctx, "daily", symbol, from, to)
}

func (c *Client) FetchMinuteBars(ctx context.Context, symbol string, from, to domain.Day) ([]domain.Bar, error) {
	return c.fetchChart(ctx, "minute", symbol, from, to)
}

func (c *Client) fetchChart(ctx context.Context, interval, symbol string, from, to domain.Day) ([]domain.Bar, error) {
	endpoint := fmt.Sprintf("%s/v1/charts/%s?code=%s&from=%s&to=%s",
		c.baseURL, interval, url.QueryEscape(symbol), from.Wire(), to.Wire())

	var resp chartResponse
	if err := c.rest.GetJSON(ctx, endpoint, c.headers, &resp); err != nil {
		return nil, err
	}

	bars := make([]domain.Bar, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		day, err := parseWireDay(row.Date)
		if err != nil {
			c.log.Warn().Str("symbol", symbol).Str("date", row.Date).Msg("Skipping bar with bad date")
			continue
		}
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
	sortBars(bars)
	return bars, nil
}

type instrumentRow struct {
	Code        string  `json:"code"`
	Market      string  `json:"market"`
	Sector      string  `json:"sector"`
	MarketCap   float64 `json:"market_cap"`
	NXTEligible bool    `json:"nxt_eligible"`
}

type instrumentResponse struct {
	Items []instrumentRow `json:"items"`
}

// FetchInstrumentInfo batches internally; the API caps one call at 200 codes.
func (c *Client) FetchInstrumentInfo(ctx context.Context, symbols []string) (map[string]domain.InstrumentInfo, error) {
	out := make(map[string]domain.InstrumentInfo, len(symbols))
	for start := 0; start < len(symbols); start += maxInfoBatch {
		end := start + maxInfoBatch
		if end > len(symbols) {
			end = len(symbols)
		}

		var resp instrumentResponse
		body := map[string]any{"codes": symbols[start:end]}
		if err := c.rest.PostJSON(ctx, c.baseURL+"/v1/instruments", c.headers, body, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.Items {
			out[item.Code] = domain.InstrumentInfo{
				Symbol:      item.Code,
				MarketType:  item.Market,
				Sector:      item.Sector,
				MarketCap:   item.MarketCap,
				ATSEligible: item.NXTEligible,
			}
		}
	}
	return out, nil
}

func parseWireDay(s string) (domain.Day, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return 0, err
	}
	return domain.DayFromTime(t), nil
}

func sortBars(bars []domain.Bar) {
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].Day != bars[j].Day {
			return bars[i].Day < bars[j].Day
		}
		return bars[i].Time < bars[j].Time
	})
}
