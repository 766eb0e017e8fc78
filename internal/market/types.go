package market

import "strings"

type Timeframe string

const (
	Timeframe15M Timeframe = "15M"
	Timeframe1H  Timeframe = "1H"
	Timeframe4H  Timeframe = "4H"
	Timeframe1D  Timeframe = "1D"
	Timeframe1W  Timeframe = "1W"
	Timeframe1M  Timeframe = "1M"
)

// Timeframes lists the selectable timeframes in display order.
var Timeframes = []Timeframe{Timeframe15M, Timeframe1H, Timeframe4H, Timeframe1D, Timeframe1W, Timeframe1M}

// Candle is one chart bucket. Time is either a yyyy-MM-dd key or an ordinal.
type Candle struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
	IsUp   bool    `json:"is_up"`
}

type ChartSeries struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Candles   []Candle  `json:"candles"`
}

// RateMap holds the latest price per symbol.
type RateMap map[string]float64

func (m RateMap) Clone() RateMap {
	out := make(RateMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type Rate struct {
	Symbol    string  `json:"symbol"`
	Rate      float64 `json:"rate"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

type HistoryPoint struct {
	Date string  `json:"date"`
	Rate float64 `json:"rate"`
}

// StatsSummary fields are nil when the backend did not supply them.
type StatsSummary struct {
	MaxValue           *float64 `json:"max_value"`
	MinValue           *float64 `json:"min_value"`
	AvgValue           *float64 `json:"avg_value"`
	PriceChangePercent *string  `json:"price_change_percent"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Display is the static presentation metadata for a symbol.
type Display struct {
	Symbol    string  `json:"symbol"`
	Name      string  `json:"name"`
	Icon      string  `json:"icon"`
	BasePrice float64 `json:"base_price"`
}

var knownDisplays = map[string]Display{
	"BTC": {Symbol: "BTC", Name: "Bitcoin", Icon: "₿"},
	"ETH": {Symbol: "ETH", Name: "Ethereum", Icon: "Ξ"},
	"BNB": {Symbol: "BNB", Name: "Binance Coin", Icon: "Ⓑ"},
}

// DisplayFor returns metadata for symbol, with the reference price filled from refs.
func DisplayFor(symbol string, refs map[string]float64) Display {
	d, ok := knownDisplays[symbol]
	if !ok {
		d = Display{Symbol: symbol, Name: symbol, Icon: "◆"}
	}
	d.BasePrice = refs[symbol]
	return d
}
