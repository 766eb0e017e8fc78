package viewmodel

import (
	"slices"
	"time"

	"cryptorate-desk/internal/analysis"
	"cryptorate-desk/internal/history"
	"cryptorate-desk/internal/market"
)

// Notice is a non-blocking advisory shown above the data panels.
type Notice struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

const (
	NoticeReferencePrice = "reference_price"
	NoticeStaleRates     = "stale_rates"
	NoticeSyntheticChart = "synthetic_chart"
	NoticeStats          = "stats_unavailable"
	NoticeSearch         = "search_failed"
	NoticeFavorites      = "favorites_sync"
	NoticeSymbols        = "symbols_fallback"
)

type Loading struct {
	Symbols  bool `json:"symbols"`
	Search   bool `json:"search"`
	Latest   bool `json:"latest"`
	History  bool `json:"history"`
	Stats    bool `json:"stats"`
	Analysis bool `json:"analysis"`
}

type AnalysisView struct {
	Text    string          `json:"text"`
	Visible bool            `json:"visible"`
	Source  analysis.Source `json:"source"`
}

// ViewModel is the complete render-ready state.
type ViewModel struct {
	Symbol    string           `json:"symbol"`
	Timeframe market.Timeframe `json:"timeframe"`
	Display   market.Display   `json:"display"`

	// Price is nil when neither a live rate nor a reference price exists.
	Price            *float64 `json:"price"`
	PriceIsReference bool     `json:"price_is_reference"`
	// ChangePercent is nil when it is undefined, never zero by default.
	ChangePercent *float64 `json:"change_percent"`

	Chart       market.ChartSeries  `json:"chart"`
	ChartSource history.Source      `json:"chart_source"`
	Stats       market.StatsSummary `json:"stats"`
	Rates       market.RateMap      `json:"rates"`
	RatesAt     time.Time           `json:"rates_updated_at"`

	AllSymbols     []string `json:"all_symbols"`
	VisibleSymbols []string `json:"visible_symbols"`
	Query          string   `json:"query"`
	Favorites      []string `json:"favorites"`

	Analysis *AnalysisView `json:"analysis,omitempty"`
	Loading  Loading       `json:"loading"`

	Error         string   `json:"error,omitempty"`
	Notices       []Notice `json:"notices"`
	User          string   `json:"user,omitempty"`
	LoginRequired bool     `json:"login_required"`
}

// View composes the current outputs of every component.
func (a *App) View() ViewModel {
	a.mu.Lock()
	symbol, tf := a.symbol, a.timeframe
	favs := slices.Clone(a.favorites)
	errBanner, favNotice := a.errBanner, a.favNotice
	loginRequired, analysisLoading := a.loginRequired, a.analysisLoading
	a.mu.Unlock()

	rs := a.poller.Snapshot()
	hs := a.hist.State()
	ds := a.dir.Snapshot()

	vm := ViewModel{
		Symbol:         symbol,
		Timeframe:      tf,
		Display:        market.DisplayFor(symbol, a.opts.ReferencePrices),
		Rates:          rs.Rates,
		RatesAt:        rs.UpdatedAt,
		AllSymbols:     ds.All,
		VisibleSymbols: ds.Visible,
		Query:          ds.Query,
		Favorites:      favs,
		Error:          errBanner,
		Notices:        []Notice{},
		LoginRequired:  loginRequired,
		Loading: Loading{
			Symbols:  ds.Loading,
			Search:   ds.Searching,
			Latest:   rs.Loading,
			History:  hs.Loading,
			Stats:    hs.Loading,
			Analysis: analysisLoading,
		},
	}

	if rs.Symbol == symbol && rs.HasLive {
		p := rs.CurrentPrice
		vm.Price = &p
	} else if base := vm.Display.BasePrice; base > 0 {
		vm.Price = &base
		vm.PriceIsReference = true
	}

	// Only a committed result for the current pair is shown.
	if hs.Series.Symbol == symbol && hs.Series.Timeframe == tf {
		vm.Chart = hs.Series
		vm.ChartSource = hs.Source
		vm.Stats = hs.Stats
		vm.ChangePercent = hs.ChangePercent
		if hs.HistoryError != "" && hs.Source == history.SourceSynthetic {
			vm.Notices = append(vm.Notices, Notice{NoticeSyntheticChart, "live history unavailable, showing simulated data: " + hs.HistoryError})
		}
		if hs.StatsError != "" {
			vm.Notices = append(vm.Notices, Notice{NoticeStats, "statistics unavailable: " + hs.StatsError})
		}
	} else {
		vm.Chart = market.ChartSeries{Symbol: symbol, Timeframe: tf, Candles: []market.Candle{}}
		vm.ChartSource = history.SourceNone
	}

	if !rs.EverLive && !rs.Loading {
		vm.Notices = append(vm.Notices, Notice{NoticeReferencePrice, "prices shown are reference values, not live quotes"})
	} else if rs.Stale {
		vm.Notices = append(vm.Notices, Notice{NoticeStaleRates, "rates may be out of date: " + rs.LastError})
	}
	if ds.FromFallback && !ds.Loading {
		vm.Notices = append(vm.Notices, Notice{NoticeSymbols, "symbol list unavailable, showing a default set"})
	}
	if ds.Error != "" {
		vm.Notices = append(vm.Notices, Notice{NoticeSearch, ds.Error})
	}
	if favNotice != "" {
		vm.Notices = append(vm.Notices, Notice{NoticeFavorites, favNotice})
	}

	if r, ok := a.ai.Get(symbol); ok {
		vm.Analysis = &AnalysisView{Text: r.Text, Visible: r.Visible, Source: r.Source}
	}
	if s, ok := a.guard.Session(); ok {
		vm.User = s.DisplayName
	}
	return vm
}
