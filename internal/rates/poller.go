// Package rates polls the latest price of every symbol and keeps the last
// good rate map when a poll fails.
package rates

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"cryptorate-desk/internal/backend"
	"cryptorate-desk/internal/epoch"
	"cryptorate-desk/internal/market"
)

const DefaultInterval = 30 * time.Second

type API interface {
	Latest(ctx context.Context, symbol string) ([]market.Rate, error)
}

// Recorder persists successful polls. Failures are logged and ignored.
type Recorder interface {
	RecordRates(at time.Time, rates market.RateMap) error
}

type Options struct {
	Interval time.Duration
	Symbol   string
	Recorder Recorder
	Now      func() time.Time
}

// Snapshot is the poller state handed to the view model.
type Snapshot struct {
	Rates        market.RateMap `json:"rates"`
	Symbol       string         `json:"symbol"`
	CurrentPrice float64        `json:"current_price"`
	// HasLive reports whether the selected symbol has a polled price.
	HasLive bool `json:"has_live"`
	// EverLive reports whether any poll ever returned a price for any symbol.
	EverLive  bool      `json:"ever_live"`
	Stale     bool      `json:"stale"`
	Loading   bool      `json:"loading"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Poller struct {
	api    API
	opts   Options
	logger *zap.Logger

	seq epoch.Counter

	mu        sync.Mutex
	rates     market.RateMap
	symbol    string
	current   float64
	everLive  bool
	stale     bool
	inflight  int
	lastErr   string
	updatedAt time.Time
	committed uint64

	onTick func(Snapshot)
	kick   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPoller(api API, opts Options, logger *zap.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		api:    api,
		opts:   opts,
		logger: logger,
		rates:  market.RateMap{},
		symbol: market.NormalizeSymbol(opts.Symbol),
	}
}

// Start fetches immediately and then on every interval until Stop or ctx
// is done. onTick receives a snapshot after every poll outcome. Calling
// Start on a running poller restarts it.
func (p *Poller) Start(ctx context.Context, onTick func(Snapshot)) {
	p.Stop()

	ctx, cancel := context.WithCancel(ctx)
	kick := make(chan struct{}, 1)
	p.mu.Lock()
	p.onTick = onTick
	p.cancel = cancel
	p.kick = kick
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx, kick)
}

func (p *Poller) loop(ctx context.Context, kick <-chan struct{}) {
	defer p.wg.Done()
	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	p.dispatch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-kick:
			ticker.Reset(p.opts.Interval)
			p.dispatch(ctx)
		case <-ticker.C:
			p.dispatch(ctx)
		}
	}
}

// Stop cancels the timer and waits for in-flight polls to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.kick = nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// Select switches the symbol whose price is copied into CurrentPrice and
// triggers an immediate re-fetch, restarting the interval.
func (p *Poller) Select(symbol string) {
	symbol = market.NormalizeSymbol(symbol)
	p.mu.Lock()
	p.symbol = symbol
	p.current = p.rates[symbol]
	kick := p.kick
	p.mu.Unlock()

	if kick != nil {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
}

// Refresh triggers an out-of-band poll without changing the selection.
func (p *Poller) Refresh() {
	p.mu.Lock()
	kick := p.kick
	p.mu.Unlock()
	if kick != nil {
		select {
		case kick <- struct{}{}:
		default:
		}
	}
}

func (p *Poller) dispatch(ctx context.Context) {
	seq := p.seq.Next()
	p.mu.Lock()
	p.inflight++
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		list, err := p.api.Latest(ctx, "")
		p.complete(ctx, seq, list, err)
	}()
}

func (p *Poller) complete(ctx context.Context, seq uint64, list []market.Rate, err error) {
	now := p.opts.Now()

	p.mu.Lock()
	p.inflight--
	if ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	// A slower, older poll must not overwrite a newer commit.
	if seq < p.committed {
		p.mu.Unlock()
		p.logger.Debug("discarding out-of-order poll", zap.Uint64("seq", seq))
		return
	}
	p.committed = seq

	var record market.RateMap
	if err != nil {
		p.stale = true
		p.lastErr = backend.UserMessage(err)
		p.logger.Warn("latest rates poll failed, keeping previous rates",
			zap.Int("known", len(p.rates)), zap.Error(err))
	} else {
		next := make(market.RateMap, len(list))
		for _, r := range list {
			next[r.Symbol] = r.Rate
		}
		p.rates = next
		p.current = next[p.symbol]
		if len(next) > 0 {
			p.everLive = true
		}
		p.stale = false
		p.lastErr = ""
		p.updatedAt = now
		record = next
	}
	snap := p.snapshotLocked()
	onTick := p.onTick
	p.mu.Unlock()

	if len(record) > 0 && p.opts.Recorder != nil {
		if err := p.opts.Recorder.RecordRates(now, record); err != nil {
			p.logger.Warn("record rate snapshot failed", zap.Error(err))
		}
	}
	if onTick != nil {
		onTick(snap)
	}
}

func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Poller) snapshotLocked() Snapshot {
	_, has := p.rates[p.symbol]
	return Snapshot{
		Rates:        p.rates.Clone(),
		Symbol:       p.symbol,
		CurrentPrice: p.current,
		HasLive:      has,
		EverLive:     p.everLive,
		Stale:        p.stale,
		Loading:      p.inflight > 0,
		LastError:    p.lastErr,
		UpdatedAt:    p.updatedAt,
	}
}
