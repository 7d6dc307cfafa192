// Package ebest is the secondary Korean brokerage BarSource. Its minute
// chart endpoint paginates with an opaque cursor; the client follows the
// cursor chain and refuses to loop.
package ebest

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

// maxPages bounds a single minute-bar fetch; a well-formed range never needs
// more than a few hundred pages.
const maxPages = 500

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
	cfg.Rest.Source = "ebest"
	return &Client{
		rest:    rest.New(cfg.Rest, log),
		baseURL: cfg.BaseURL,
		headers: map[string]string{"Authorization": "Bearer " + cfg.AccessToken},
		log:     log.With().Str("client", "ebest").Logger(),
	}
}

func (c *Client) Name() string { return "ebest" }

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

type pagedResponse struct {
	Rows       []barRow `json:"rows"`
	NextCursor string   `json:"next_cursor"`
}

func (c *Client) FetchDailyBars(ctx context.Context, symbol string, from, to domain.Day) ([]domain.Bar, error) {
	endpoint := fmt.Sprintf("%s/v1/bars/daily?code=%s&from=%s&to=%s",
		c.baseURL, url.QueryEscape(symbol), from.Wire(), to.Wire())

	var resp pagedResponse
	if err := c.rest.GetJSON(ctx, endpoint, c.headers, &resp); err != nil {
		return nil, err
	}
	return c.collect(symbol, resp.Rows, from, to), nil
}

// FetchMinuteBars follows the cursor chain until the backend returns an
// empty cursor. A cursor seen twice means the backend is looping; the fetch
// fails rather than spinning.
func (c *Client) FetchMinuteBars(ctx context.Context, symbol string, from, to domain.Day) ([]domain.Bar, error) {
	var bars []domain.Bar
	seen := make(map[string]bool)
	cursor := ""

	for page := 0; ; page++ {
		if page >= maxPages {
			return nil, &domain.FetchError{
				Source: "ebest", Symbol: symbol,
				Err: fmt.Errorf("minute chart exceeded %d pages", maxPages),
			}
		}

		endpoint := fmt.Sprintf("%s/v1/bars/minute?code=%s&from=%s&to=%s",
			c.baseURL, url.QueryEscape(symbol), from.Wire(), to.Wire())
		if cursor != "" {
			endpoint += "&cursor=" + url.QueryEscape(cursor)
		}

		var resp pagedResponse
		if err := c.rest.GetJSON(ctx, endpoint, c.headers, &resp); err != nil {
			return nil, err
		}
		bars = append(bars, c.collect(symbol, resp.Rows, from, to)...)

		if resp.NextCursor == "" {
			break
		}
		if seen[resp.NextCursor] {
			return nil, &domain.FetchError{
				Source: "ebest", Symbol: symbol,
				Err: fmt.Errorf("pagination loop on cursor %q", resp.NextCursor),
			}
		}
		seen[resp.NextCursor] = true
		cursor = resp.NextCursor
	}

	sortBars(bars)
	return bars, nil
}

func (c *Client) collect(symbol string, rows []barRow, from, to domain.Day) []domain.Bar {
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
	sortBars(bars)
	return bars
}

type instrumentRow struct {
	Code      string  `json:"code"`
	Market    string  `json:"market"`
	Sector    string  `json:"sector"`
	MarketCap float64 `json:"market_cap"`
	ATS       bool    `json:"ats"`
}

func (c *Client) FetchInstrumentInfo(ctx context.Context, symbols []string) (map[string]domain.InstrumentInfo, error) {
	out := make(map[string]domain.InstrumentInfo, len(symbols))
	for start := 0; start < len(symbols); start += maxInfoBatch {
		end := start + maxInfoBatch
		if end > len(symbols) {
			end = len(symbols)
		}

		var resp struct {
			Items []instrumentRow `json:"items"`
		}
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
				ATSEligible: item.ATS,
			}
		}
	}
	return out, nil
}

func sortBars(bars []domain.Bar) {
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].Day != bars[j].Day {
			return bars[i].Day < bars[j].Day
		}
		return bars[i].Time < bars[j].Time
	})
}
