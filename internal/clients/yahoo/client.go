// Package yahoo serves the global ETF sleeve: daily bars from the chart API,
// batch quotes for instrument metadata, and the USD/KRW spot rate. Minute
// data is not available here; the Korean brokers own that.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Gotti0/kimum-trade-sub000/internal/clients/rest"
	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com"
	maxQuoteBatch  = 200
	fxSymbol       = "KRW=X"
)

type Config struct {
	BaseURL string
	Rest    rest.Config
}

type Client struct {
	rest    *rest.Client
	baseURL string
	log     zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.Rest.Source = "yahoo"
	return &Client{
		rest:    rest.New(cfg.Rest, log),
		baseURL: cfg.BaseURL,
		log:     log.With().Str("client", "yahoo").Logger(),
	}
}

func (c *Client) Name() string { return "yahoo" }

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []float64 `json:"open"`
					High   []float64 `json:"high"`
					Low    []float64 `json:"low"`
					Close  []float64 `json:"close"`
					Volume []float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (c *Client) FetchDailyBars(ctx context.Context, symbol string, from, to domain.Day) ([]domain.Bar, error) {
	resp, err := c.fetchChart(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}

	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	quote := result.Indicators.Quote[0]

	bars := make([]domain.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == 0 {
			continue
		}
		day := domain.DayFromTime(time.Unix(ts, 0).UTC())
		if day < from || day > to {
			continue
		}
		bar := domain.Bar{Day: day, Close: quote.Close[i]}
		if i < len(quote.Open) {
			bar.Open = quote.Open[i]
		}
		if i < len(quote.High) {
			bar.High = quote.High[i]
		}
		if i < len(quote.Low) {
			bar.Low = quote.Low[i]
		}
		if i < len(quote.Volume) {
			bar.Volume = quote.Volume[i]
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// FetchMinuteBars is not supported; Yahoo only serves the daily global sleeve.
func (c *Client) FetchMinuteBars(_ context.Context, symbol string, _, _ domain.Day) ([]domain.Bar, error) {
	return nil, &domain.FetchError{
		Source: "yahoo", Symbol: symbol,
		Err: errors.New("minute bars not available"),
	}
}

type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol    string  `json:"symbol"`
			QuoteType string  `json:"quoteType"`
			Sector    string  `json:"sector"`
			MarketCap float64 `json:"marketCap"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

func (c *Client) FetchInstrumentInfo(ctx context.Context, symbols []string) (map[string]domain.InstrumentInfo, error) {
	out := make(map[string]domain.InstrumentInfo, len(symbols))
	for start := 0; start < len(symbols); start += maxQuoteBatch {
		end := start + maxQuoteBatch
		if end > len(symbols) {
			end = len(symbols)
		}

		endpoint := fmt.Sprintf("%s/v7/finance/quote?symbols=%s",
			c.baseURL, url.QueryEscape(strings.Join(symbols[start:end], ",")))
		var resp quoteResponse
		if err := c.rest.GetJSON(ctx, endpoint, nil, &resp); err != nil {
			return nil, err
		}
		for _, item := range resp.QuoteResponse.Result {
			out[item.Symbol] = domain.InstrumentInfo{
				Symbol:     item.Symbol,
				MarketType: string(domain.MarketGlobalETF),
				Sector:     item.Sector,
				MarketCap:  item.MarketCap,
			}
		}
	}
	return out, nil
}

// GetUSDKRW returns the USD/KRW spot from the FX chart's market price.
func (c *Client) GetUSDKRW(ctx context.Context) (float64, error) {
	today := domain.Today()
	resp, err := c.fetchChart(ctx, fxSymbol, today.AddDays(-7), today)
	if err != nil {
		return 0, err
	}

	price := resp.Chart.Result[0].Meta.RegularMarketPrice
	if price <= 0 {
		return 0, &domain.FetchError{
			Source: "yahoo", Symbol: fxSymbol,
			Err: errors.New("no market price in FX response"),
		}
	}
	return price, nil
}

func (c *Client) fetchChart(ctx context.Context, symbol string, from, to domain.Day) (*chartResponse, error) {
	// period2 is exclusive upstream; push it one day past the range end.
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?period1=%d&period2=%d&interval=1d",
		c.baseURL, url.PathEscape(symbol), from.Time().Unix(), to.AddDays(1).Time().Unix())

	var resp chartResponse
	if err := c.rest.GetJSON(ctx, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	if resp.Chart.Error != nil {
		return nil, &domain.FetchError{
			Source: "yahoo", Symbol: symbol,
			Err: fmt.Errorf("%s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description),
		}
	}
	if len(resp.Chart.Result) == 0 {
		return nil, &domain.FetchError{
			Source: "yahoo", Symbol: symbol,
			Err: errors.New("empty chart result"),
		}
	}
	return &resp, nil
}
