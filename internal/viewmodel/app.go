// Package viewmodel assembles the component outputs into the single state
// a client renders.
package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"cryptorate-desk/internal/analysis"
	"cryptorate-desk/internal/auth"
	"cryptorate-desk/internal/backend"
	"cryptorate-desk/internal/directory"
	"cryptorate-desk/internal/history"
	"cryptorate-desk/internal/market"
	"cryptorate-desk/internal/rates"
)

// API is everything the desk asks of the backend.
type API interface {
	directory.API
	rates.API
	history.API
	analysis.API
	Login(ctx context.Context, username, password string) (string, error)
	Register(ctx context.Context, username, password, email string) (backend.User, error)
	Favorites(ctx context.Context) ([]string, error)
	AddFavorite(ctx context.Context, symbol string) error
	RemoveFavorite(ctx context.Context, symbol string) error
	Assets(ctx context.Context) ([]backend.Asset, error)
	SaveAsset(ctx context.Context, in backend.AssetInput) error
	DeleteAsset(ctx context.Context, id int64) error
}

// FavoritesStore persists the local favorites list.
type FavoritesStore interface {
	Favorites() ([]string, bool, error)
	ReplaceFavorites(symbols []string) error
}

var (
	ErrInvalidInput  = errors.New("invalid input")
	defaultFavorites = []string{"BTC"}
)

type Options struct {
	DefaultSymbol    string
	DefaultTimeframe market.Timeframe
	ReferencePrices  map[string]float64
	FallbackSymbols  []string
	VisibleLimit     int
	PollInterval     time.Duration
	SearchDebounce   time.Duration
	SyntheticLength  int

	Recorder  rates.Recorder
	Favorites FavoritesStore
	Narrator  analysis.Narrator
	Generator *market.Generator
	Now       func() time.Time
}

type App struct {
	api    API
	guard  *auth.Guard
	opts   Options
	logger *zap.Logger

	dir    *directory.Manager
	poller *rates.Poller
	hist   *history.Fetcher
	ai     *analysis.Cache

	mu              sync.Mutex
	ctx             context.Context
	cancel          context.CancelFunc
	started         bool
	symbol          string
	timeframe       market.Timeframe
	favorites       []string
	errBanner       string
	favNotice       string
	loginRequired   bool
	analysisLoading bool
	bg              sync.WaitGroup
}

func New(api API, guard *auth.Guard, opts Options, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if guard == nil {
		guard = auth.NewGuard(nil, logger)
	}
	if opts.DefaultSymbol == "" {
		opts.DefaultSymbol = "BTC"
	}
	if opts.DefaultTimeframe == "" {
		opts.DefaultTimeframe = market.Timeframe1D
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	a := &App{
		api:       api,
		guard:     guard,
		opts:      opts,
		logger:    logger,
		ctx:       context.Background(),
		symbol:    market.NormalizeSymbol(opts.DefaultSymbol),
		timeframe: market.ParseTimeframe(string(opts.DefaultTimeframe)),
		favorites: append([]string(nil), defaultFavorites...),
	}
	a.dir = directory.NewManager(api, directory.Options{
		Debounce:     opts.SearchDebounce,
		VisibleLimit: opts.VisibleLimit,
		Fallback:     opts.FallbackSymbols,
	}, logger.Named("directory"))
	a.poller = rates.NewPoller(api, rates.Options{
		Interval: opts.PollInterval,
		Symbol:   a.symbol,
		Recorder: opts.Recorder,
		Now:      opts.Now,
	}, logger.Named("rates"))
	a.hist = history.NewFetcher(api, history.Options{
		ReferencePrices: opts.ReferencePrices,
		LivePrice:       a.livePrice,
		SyntheticLength: opts.SyntheticLength,
		Generator:       opts.Generator,
		Now:             opts.Now,
	}, logger.Named("history"))
	a.ai = analysis.NewCache(api, opts.Narrator, logger.Named("analysis"))

	guard.OnLogout(a.onLogout)
	a.loadFavorites()
	return a
}

func (a *App) livePrice(symbol string) (float64, bool) {
	p, ok := a.poller.Snapshot().Rates[symbol]
	return p, ok
}

// Start loads the directory, starts polling and fetches the default chart.
// The symbol list loads in the background so a slow backend does not hold
// up startup.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.started = true
	runCtx, symbol, tf := a.ctx, a.symbol, a.timeframe
	_, loggedIn := a.guard.Session()
	a.mu.Unlock()

	a.goBackground(func() { a.dir.LoadAll(runCtx) })
	a.poller.Start(runCtx, nil)
	a.hist.Select(runCtx, symbol, tf)
	if loggedIn {
		a.goBackground(func() { a.pullFavorites(runCtx) })
	}
	a.logger.Info("desk started", zap.String("symbol", symbol), zap.String("timeframe", string(tf)))
}

func (a *App) Stop() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	a.dir.Close()
	a.poller.Stop()
	a.hist.Wait()
	a.bg.Wait()
}

func (a *App) goBackground(fn func()) {
	a.bg.Add(1)
	go func() {
		defer a.bg.Done()
		fn()
	}()
}

func (a *App) SelectSymbol(symbol string) error {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return fmt.Errorf("select symbol: %w", ErrInvalidInput)
	}
	a.mu.Lock()
	if symbol == a.symbol {
		a.mu.Unlock()
		return nil
	}
	a.symbol = symbol
	ctx, tf := a.ctx, a.timeframe
	a.mu.Unlock()

	a.poller.Select(symbol)
	a.hist.Select(ctx, symbol, tf)
	return nil
}

func (a *App) SelectTimeframe(tf string) error {
	t := market.ParseTimeframe(tf)
	if !t.Valid() {
		return fmt.Errorf("select timeframe %q: %w", tf, ErrInvalidInput)
	}
	a.mu.Lock()
	if t == a.timeframe {
		a.mu.Unlock()
		return nil
	}
	a.timeframe = t
	ctx, symbol := a.ctx, a.symbol
	a.mu.Unlock()

	a.hist.Select(ctx, symbol, t)
	return nil
}

func (a *App) SetSearch(q string) { a.dir.SetQuery(q) }

// RequestAnalysis fetches or toggles the narrative for the selected symbol.
func (a *App) RequestAnalysis(ctx context.Context) analysis.Result {
	view := a.View()
	facts := analysis.Facts{
		Symbol:        view.Symbol,
		ChangePercent: view.ChangePercent,
		Stats:         view.Stats,
	}
	if view.Price != nil && !view.PriceIsReference {
		facts.Price, facts.HasPrice = *view.Price, true
	}

	a.mu.Lock()
	a.analysisLoading = true
	a.mu.Unlock()
	r := a.ai.Request(ctx, view.Symbol, facts)
	a.mu.Lock()
	a.analysisLoading = false
	a.mu.Unlock()
	return r
}

func (a *App) DismissError() {
	a.mu.Lock()
	a.errBanner = ""
	a.favNotice = ""
	a.mu.Unlock()
	a.dir.ClearError()
}
