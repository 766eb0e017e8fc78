// Package history loads the chart series and summary statistics for the
// selected (symbol, timeframe) pair and degrades to synthetic candles when
// live history is unavailable.
package history

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cryptorate-desk/internal/backend"
	"cryptorate-desk/internal/epoch"
	"cryptorate-desk/internal/market"
)

type API interface {
	History(ctx context.Context, symbol string, r market.DateRange) ([]market.HistoryPoint, error)
	StatsSummary(ctx context.Context, symbol, rng string) (market.StatsSummary, error)
}

// Source says where the committed chart series came from.
type Source string

const (
	SourceLive      Source = "live"
	SourceSynthetic Source = "synthetic"
	SourceNone      Source = "none"
)

type Options struct {
	// ReferencePrices seed the synthetic fallback.
	ReferencePrices map[string]float64
	// LivePrice is consulted when a symbol has no reference price.
	LivePrice       func(symbol string) (float64, bool)
	SyntheticLength int
	Generator       *market.Generator
	Now             func() time.Time
}

// State is the committed result for one (symbol, timeframe) pair.
type State struct {
	Symbol    string              `json:"symbol"`
	Timeframe market.Timeframe    `json:"timeframe"`
	Range     market.DateRange    `json:"range"`
	Series    market.ChartSeries  `json:"series"`
	Source    Source              `json:"source"`
	Stats     market.StatsSummary `json:"stats"`
	// ChangePercent is nil when fewer than two candles exist.
	ChangePercent *float64 `json:"change_percent"`
	Loading       bool     `json:"loading"`
	HistoryError  string   `json:"history_error,omitempty"`
	StatsError    string   `json:"stats_error,omitempty"`
	Epoch         uint64   `json:"-"`
}

type Fetcher struct {
	api    API
	opts   Options
	logger *zap.Logger
	epoch  epoch.Counter
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     State
	listeners []func(State)
}

func NewFetcher(api API, opts Options, logger *zap.Logger) *Fetcher {
	if opts.Generator == nil {
		opts.Generator = market.NewGenerator(nil)
	}
	if opts.SyntheticLength <= 0 {
		opts.SyntheticLength = market.DefaultSeriesLength
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		api:    api,
		opts:   opts,
		logger: logger,
		state:  State{Source: SourceNone, Stats: market.StatsSummary{}},
	}
}

// OnCommit registers fn to receive every committed state.
func (f *Fetcher) OnCommit(fn func(State)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

func (f *Fetcher) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Wait blocks until every dispatched load has returned.
func (f *Fetcher) Wait() { f.wg.Wait() }

// Select starts loading history and stats for the pair. Results of any
// earlier Select still in flight are discarded when they arrive.
func (f *Fetcher) Select(ctx context.Context, symbol string, tf market.Timeframe) {
	symbol = market.NormalizeSymbol(symbol)
	ep := f.epoch.Next()
	rng := market.RangeFor(tf, f.opts.Now())

	f.mu.Lock()
	f.state.Symbol = symbol
	f.state.Timeframe = tf
	f.state.Range = rng
	f.state.Loading = true
	f.state.Epoch = ep
	f.mu.Unlock()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.load(ctx, ep, symbol, tf, rng)
	}()
}

func (f *Fetcher) load(ctx context.Context, ep uint64, symbol string, tf market.Timeframe, rng market.DateRange) {
	var (
		wg       sync.WaitGroup
		points   []market.HistoryPoint
		histErr  error
		stats    market.StatsSummary
		statsErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		points, histErr = f.api.History(ctx, symbol, rng)
	}()
	go func() {
		defer wg.Done()
		stats, statsErr = f.api.StatsSummary(ctx, symbol, market.StatsRangeFor(tf))
	}()
	wg.Wait()

	if !f.epoch.IsCurrent(ep) {
		f.logger.Debug("discarding superseded history result",
			zap.String("symbol", symbol), zap.String("timeframe", string(tf)))
		return
	}

	next := State{
		Symbol:    symbol,
		Timeframe: tf,
		Range:     rng,
		Epoch:     ep,
	}

	if histErr == nil && len(points) > 0 {
		next.Series = market.ChartSeries{Symbol: symbol, Timeframe: tf, Candles: f.opts.Generator.FromHistory(points)}
		next.Source = SourceLive
	} else {
		if histErr == nil {
			histErr = &backend.Error{Kind: backend.KindEmpty, Op: "history"}
		}
		next.HistoryError = backend.UserMessage(histErr)
		next.Series, next.Source = f.fallback(symbol, tf)
		f.logger.Warn("history unavailable, using fallback series",
			zap.String("symbol", symbol), zap.String("source", string(next.Source)), zap.Error(histErr))
	}

	if statsErr == nil {
		next.Stats = stats
	} else {
		next.StatsError = backend.UserMessage(statsErr)
		f.logger.Warn("stats summary unavailable", zap.String("symbol", symbol), zap.Error(statsErr))
	}

	if pct, ok := market.PriceChangePercent(next.Series.Candles); ok {
		next.ChangePercent = &pct
	}

	f.mu.Lock()
	// Re-check under the lock: a Select may have landed since the first check.
	if f.state.Epoch != ep {
		f.mu.Unlock()
		return
	}
	f.state = next
	listeners := append([]func(State){}, f.listeners...)
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
}

func (f *Fetcher) fallback(symbol string, tf market.Timeframe) (market.ChartSeries, Source) {
	base, ok := f.basePrice(symbol)
	if !ok {
		return market.ChartSeries{Symbol: symbol, Timeframe: tf, Candles: []market.Candle{}}, SourceNone
	}
	return market.ChartSeries{
		Symbol:    symbol,
		Timeframe: tf,
		Candles:   f.opts.Generator.Generate(base, f.opts.SyntheticLength),
	}, SourceSynthetic
}

// basePrice prefers the configured reference price, then the live rate.
func (f *Fetcher) basePrice(symbol string) (float64, bool) {
	if p, ok := f.opts.ReferencePrices[symbol]; ok && p > 0 {
		return p, true
	}
	if f.opts.LivePrice != nil {
		if p, ok := f.opts.LivePrice(symbol); ok && p > 0 {
			return p, true
		}
	}
	return 0, false
}
