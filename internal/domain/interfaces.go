package domain

import "context"

// BarSource is the capability every market-data backend exposes: the two
// Korean brokerage REST APIs, Yahoo Finance for global ETFs, and the
// localhost bridge that owns a desktop COM terminal. Results are monotone
// ascending in (day, time).
type BarSource interface {
	// Name identifies the backend; it doubles as the on-disk cache partition.
	Name() string

	// FetchDailyBars returns daily bars covering [from, to].
	FetchDailyBars(ctx context.Context, symbol string, from, to Day) ([]Bar, error)

	// FetchMinuteBars returns minute bars covering [from, to].
	FetchMinuteBars(ctx context.Context, symbol string, from, to Day) ([]Bar, error)

	// FetchInstrumentInfo returns metadata for up to 200 symbols per call;
	// implementations batch internally when given more.
	FetchInstrumentInfo(ctx context.Context, symbols []string) (map[string]InstrumentInfo, error)
}

// FXSource provides the base-currency conversion rate (USD/KRW).
type FXSource interface {
	GetUSDKRW(ctx context.Context) (float64, error)
}
