package barstore

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// On-disk formats mirror the upstream payload shapes so cache files stay
// inspectable against raw API responses.

// dailyChartRow is one row of cache/daily_charts/<symbol>.json.
type dailyChartRow struct {
	Dt       string  `json:"dt"`
	CurPrc   float64 `json:"cur_prc"`
	OpenPric float64 `json:"open_pric"`
	HighPric float64 `json:"high_pric"`
	LowPric  float64 `json:"low_pric"`
	TrdeQty  float64 `json:"trde_qty"`
	TrdeAmt  float64 `json:"trde_amt,omitempty"`
}

// minuteRow is one row of cache/<source>/<symbol>_raw.json.
type minuteRow struct {
	Date   int     `json:"date"`
	Time   int     `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// encodeDaily serialises a series to the daily chart wire shape.
func encodeDaily(s *domain.BarSeries) ([]byte, error) {
	rows := make([]dailyChartRow, 0, s.Len())
	for _, b := range s.Bars {
		rows = append(rows, dailyChartRow{
			Dt:       b.Day.Wire(),
			CurPrc:   b.Close,
			OpenPric: b.Open,
			HighPric: b.High,
			LowPric:  b.Low,
			TrdeQty:  b.Volume,
			TrdeAmt:  b.TradeValue,
		})
	}
	return json.MarshalIndent(rows, "", " ")
}

// decodeDaily parses the daily chart wire shape, dropping rows that fail
// validation and reporting the dropped count.
func decodeDaily(symbol string, data []byte) (*domain.BarSeries, int, error) {
	var rows []dailyChartRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, 0, fmt.Errorf("corrupt daily cache for %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		day, err := domain.ParseDay(r.Dt)
		if err != nil {
			dropped++
			continue
		}
		bars = append(bars, domain.Bar{
			Day:        day,
			Open:       r.OpenPric,
			High:       r.HighPric,
			Low:        r.LowPric,
			Close:      r.CurPrc,
			Volume:     r.TrdeQty,
			TradeValue: r.TrdeAmt,
		})
	}

	series := &domain.BarSeries{Symbol: symbol}
	dropped += series.Merge(bars)
	return series, dropped, nil
}

func encodeMinute(s *domain.BarSeries) ([]byte, error) {
	rows := make([]minuteRow, 0, s.Len())
	for _, b := range s.Bars {
		date := 0
		if _, err := fmt.Sscanf(b.Day.Wire(), "%d", &date); err != nil {
			return nil, fmt.Errorf("unencodable day %s: %w", b.Day, err)
		}
		rows = append(rows, minuteRow{
			Date:   date,
			Time:   b.Time,
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Time < rows[j].Time
	})
	return json.MarshalIndent(rows, "", " ")
}

func decodeMinute(symbol string, data []byte) (*domain.BarSeries, int, error) {
	var rows []minuteRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, 0, fmt.Errorf("corrupt minute cache for %s: %w", symbol, err)
	}

	bars := make([]domain.Bar, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		day, err := domain.ParseDay(fmt.Sprintf("%08d", r.Date))
		if err != nil {
			dropped++
			continue
		}
		bars = append(bars, domain.Bar{
			Day:    day,
			Time:   r.Time,
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}

	series := &domain.BarSeries{Symbol: symbol}
	dropped += series.Merge(bars)
	return series, dropped, nil
}
