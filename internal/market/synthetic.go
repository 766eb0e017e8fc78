package market

import (
	"math/rand"
	"strconv"
	"sync"
	"time"
)

const (
	DefaultSeriesLength = 50
	volatilityRatio     = 0.02
	minVolume           = 500
	volumeSpread        = 1000
)

// Generator produces random-walk candle series for when live history is missing.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewGenerator seeds from the clock when rnd is nil.
func NewGenerator(rnd *rand.Rand) *Generator {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{rnd: rnd}
}

// Generate returns length candles starting at basePrice. Each open is the previous
// close and wicks extend up to half the volatility band past the body.
// A non-positive basePrice yields an empty series.
func (g *Generator) Generate(basePrice float64, length int) []Candle {
	if length <= 0 {
		length = DefaultSeriesLength
	}
	if basePrice <= 0 {
		return []Candle{}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	volatility := basePrice * volatilityRatio
	out := make([]Candle, 0, length)
	price := basePrice
	for i := 0; i < length; i++ {
		open := price
		closePx := open + (g.rnd.Float64()*2-1)*volatility/2
		out = append(out, candleAround(strconv.Itoa(i), open, closePx, volatility, g.rnd))
		price = closePx
	}
	return out
}

func candleAround(key string, open, closePx, volatility float64, rnd *rand.Rand) Candle {
	high := max(open, closePx) + rnd.Float64()*volatility*0.5
	low := min(open, closePx) - rnd.Float64()*volatility*0.5
	return Candle{
		Time:   key,
		Open:   open,
		High:   high,
		Low:    low,
		Close:  closePx,
		Volume: minVolume + rnd.Float64()*volumeSpread,
		IsUp:   closePx >= open,
	}
}
