package scoring

import (
	"fmt"

	"github.com/Gotti0/kimum-trade-sub000/internal/domain"
)

// DefaultCashTicker is the cash-equivalent ETF that absorbs diverted weight.
const DefaultCashTicker = "SHY"

// Category is one asset-class bucket of a preset with its strategic weight.
// A domestic bucket names a proxy ETF whose weight is later expanded across
// the domestic top-N selection.
type Category struct {
	Name     string   `yaml:"name"`
	Weight   float64  `yaml:"weight"`
	Tickers  []string `yaml:"tickers"`
	Domestic bool     `yaml:"domestic,omitempty"`
	Proxy    string   `yaml:"proxy,omitempty"`
}

// Preset is a named strategic allocation across categories. Weights must sum
// to 1.
type Preset struct {
	Name       string     `yaml:"name"`
	CashTicker string     `yaml:"cash_ticker"`
	KRTopN     int        `yaml:"kr_top_n"`
	Categories []Category `yaml:"categories"`
}

// Validate checks structural soundness; weight-sum tolerance is 1e-6.
func (p Preset) Validate() error {
	if p.Name == "" {
		return &domain.ConfigError{Field: "preset.name", Reason: "empty"}
	}
	var sum float64
	for _, c := range p.Categories {
		if c.Weight < 0 {
			return &domain.ConfigError{Field: "preset." + c.Name, Reason: "negative weight"}
		}
		if c.Domestic && c.Proxy == "" {
			return &domain.ConfigError{Field: "preset." + c.Name, Reason: "domestic bucket without proxy ticker"}
		}
		sum += c.Weight
	}
	if sum < 1-1e-6 || sum > 1+1e-6 {
		return &domain.ConfigError{
			Field:  "preset." + p.Name,
			Reason: fmt.Sprintf("category weights sum to %.6f, want 1", sum),
		}
	}
	return nil
}

// cash returns the preset's cash ticker, defaulted.
func (p Preset) cash() string {
	if p.CashTicker != "" {
		return p.CashTicker
	}
	return DefaultCashTicker
}

// DefaultPresets are the compiled-in risk ladders, overridable from YAML.
func DefaultPresets() map[string]Preset {
	build := func(name string, equity, krEquity, bond, alt, cash float64) Preset {
		return Preset{
			Name:       name,
			CashTicker: DefaultCashTicker,
			KRTopN:     5,
			Categories: []Category{
				{Name: "global_equity", Weight: equity,
					Tickers: []string{"SPY", "QQQ", "VEA", "EEM", "VTV"}},
				{Name: "kr_equity", Weight: krEquity, Domestic: true, Proxy: "EWY",
					Tickers: []string{"EWY"}},
				{Name: "bond", Weight: bond,
					Tickers: []string{"AGG", "TLT", "LQD"}},
				{Name: "alternative", Weight: alt,
					Tickers: []string{"GLD", "VNQ", "DBC"}},
				{Name: "cash", Weight: cash,
					Tickers: []string{DefaultCashTicker}},
			},
		}
	}
	return map[string]Preset{
		"growth":            build("growth", 0.55, 0.15, 0.15, 0.10, 0.05),
		"growth_seeking":    build("growth_seeking", 0.45, 0.15, 0.20, 0.10, 0.10),
		"balanced":          build("balanced", 0.35, 0.10, 0.30, 0.10, 0.15),
		"stability_seeking": build("stability_seeking", 0.25, 0.05, 0.40, 0.10, 0.20),
		"stable":            build("stable", 0.15, 0.05, 0.45, 0.05, 0.30),
	}
}

// PresetByName resolves a preset from the given table, falling back to the
// compiled-in defaults. Unknown names are a ConfigError.
func PresetByName(table map[string]Preset, name string) (Preset, error) {
	if table != nil {
		if p, ok := table[name]; ok {
			return p, nil
		}
	}
	if p, ok := DefaultPresets()[name]; ok {
		return p, nil
	}
	return Preset{}, &domain.ConfigError{Field: "preset", Reason: "unknown preset " + name}
}
