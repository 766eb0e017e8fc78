package market

import (
	"math/rand"
	"strconv"
)

// CandlesFromHistory expands one price per bucket into a candle using the same
// volatility rule as Generator. The backend only supplies a single value per
// period, so open is the reported rate and the rest is synthesised from rnd.
func CandlesFromHistory(points []HistoryPoint, rnd *rand.Rand) []Candle {
	out := make([]Candle, 0, len(points))
	for i, p := range points {
		key := p.Date
		if key == "" {
			key = strconv.Itoa(i)
		}
		volatility := p.Rate * volatilityRatio
		if volatility < 0 {
			volatility = -volatility
		}
		closePx := p.Rate + (rnd.Float64()*2-1)*volatility/2
		out = append(out, candleAround(key, p.Rate, closePx, volatility, rnd))
	}
	return out
}

// PriceChangePercent is (last close - first close) / first close * 100.
// ok is false with fewer than two candles or a zero first close.
func PriceChangePercent(candles []Candle) (pct float64, ok bool) {
	if len(candles) < 2 {
		return 0, false
	}
	first := candles[0].Close
	if first == 0 {
		return 0, false
	}
	last := candles[len(candles)-1].Close
	return (last - first) / first * 100, true
}

// FromHistory is CandlesFromHistory driven by the generator's source.
func (g *Generator) FromHistory(points []HistoryPoint) []Candle {
	g.mu.Lock()
	defer g.mu.Unlock()
	return CandlesFromHistory(points, g.rnd)
}
