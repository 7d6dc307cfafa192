// Package domain holds the core market-data and portfolio types shared by
// every subsystem. The domain layer is pure: no I/O, no infrastructure
// dependencies.
package domain

import (
	"sort"
)

// Bar is a single OHLCV observation at minute or daily granularity.
// Time is HHMM local market time for minute bars and 0 for daily bars.
// TradeValue is optional for minute data; Value() imputes it when absent.
type Bar struct {
	Day        Day     `json:"day"`
	Time       int     `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
	TradeValue float64 `json:"trade_value,omitempty"`
}

// Value returns the trading value of the bar, imputing close*volume when the
// upstream did not supply one.
func (b Bar) Value() float64 {
	if b.TradeValue > 0 {
		return b.TradeValue
	}
	return b.Close * b.Volume
}

// Valid reports whether the bar passes inclusion rules: non-negative finite
// numerics and a strictly positive close.
func (b Bar) Valid() bool {
	if b.Close <= 0 {
		return false
	}
	for _, v := range []float64{b.Open, b.High, b.Low, b.Volume, b.TradeValue} {
		if v < 0 || v != v { // negative or NaN
			return false
		}
	}
	return true
}

// key orders bars chronologically and identifies duplicates.
func (b Bar) key() int64 {
	return int64(b.Day)*10000 + int64(b.Time)
}

// Before reports whether b is strictly earlier than other.
func (b Bar) Before(other Bar) bool {
	return b.key() < other.key()
}

// BarSeries is the ordered bar history of one instrument: strictly monotone
// increasing in (day, time) and deduplicated.
type BarSeries struct {
	Symbol string `json:"symbol"`
	Bars   []Bar  `json:"bars"`
}

// Len returns the number of bars.
func (s *BarSeries) Len() int { return len(s.Bars) }

// Empty reports whether the series has no bars.
func (s *BarSeries) Empty() bool { return len(s.Bars) == 0 }

// FirstDay returns the earliest day, or 0 when empty.
func (s *BarSeries) FirstDay() Day {
	if s.Empty() {
		return 0
	}
	return s.Bars[0].Day
}

// LastDay returns the latest day, or 0 when empty.
func (s *BarSeries) LastDay() Day {
	if s.Empty() {
		return 0
	}
	return s.Bars[len(s.Bars)-1].Day
}

// Covers reports whether the series spans [from, to] inclusive.
func (s *BarSeries) Covers(from, to Day) bool {
	return !s.Empty() && s.FirstDay() <= from && s.LastDay() >= to
}

// Closes returns the close column in chronological order.
func (s *BarSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Merge combines incoming bars into the series, keeping the freshest bar for
// each (day, time) key. Incoming bars win ties, which realises the
// trailing-day correction rule: a fresher fetch may overwrite the last date.
// Invalid bars are dropped; the dropped count is returned for logging.
func (s *BarSeries) Merge(incoming []Bar) int {
	dropped := 0
	byKey := make(map[int64]Bar, len(s.Bars)+len(incoming))
	for _, b := range s.Bars {
		byKey[b.key()] = b
	}
	for _, b := range incoming {
		if !b.Valid() {
			dropped++
			continue
		}
		byKey[b.key()] = b
	}

	merged := make([]Bar, 0, len(byKey))
	for _, b := range byKey {
		merged = append(merged, b)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Before(merged[j]) })

	s.Bars = merged
	return dropped
}

// Slice returns the bars within [from, to] inclusive.
func (s *BarSeries) Slice(from, to Day) []Bar {
	lo := sort.Search(len(s.Bars), func(i int) bool { return s.Bars[i].Day >= from })
	hi := sort.Search(len(s.Bars), func(i int) bool { return s.Bars[i].Day > to })
	return s.Bars[lo:hi]
}

// Validate checks the chronological invariant. A violation indicates a defect
// in the merge path, not bad upstream data.
func (s *BarSeries) Validate() error {
	for i := 1; i < len(s.Bars); i++ {
		if !s.Bars[i-1].Before(s.Bars[i]) {
			return &InvariantViolation{
				Reason: "bar series not strictly monotone at index " + s.Bars[i].Day.String(),
			}
		}
	}
	return nil
}
