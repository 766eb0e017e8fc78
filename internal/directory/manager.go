// Package directory owns the master symbol list and the visible subset,
// including the debounced remote search.
package directory

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"cryptorate-desk/internal/backend"
	"cryptorate-desk/internal/epoch"
	"cryptorate-desk/internal/market"
)

const (
	DefaultDebounce     = 300 * time.Millisecond
	DefaultVisibleLimit = 20
)

var DefaultFallback = []string{"BTC", "ETH", "BNB"}

// API is the slice of the backend client the manager needs.
type API interface {
	ListSymbols(ctx context.Context) ([]string, error)
	SearchSymbols(ctx context.Context, keyword string) ([]string, error)
}

type Options struct {
	Debounce     time.Duration
	VisibleLimit int
	Fallback     []string
}

// Directory is a point-in-time copy of the manager state.
type Directory struct {
	All       []string `json:"all"`
	Visible   []string `json:"visible"`
	Query     string   `json:"query"`
	Loading   bool     `json:"loading"`
	Searching bool     `json:"searching"`
	// FromFallback is set when All is the fixed set rather than the backend list.
	FromFallback bool   `json:"from_fallback"`
	Error        string `json:"error,omitempty"`
}

type Manager struct {
	api    API
	opts   Options
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	search epoch.Counter

	mu        sync.Mutex
	all       []string
	visible   []string
	query     string
	loading   bool
	searching bool
	fallback  bool
	errMsg    string
	timer     *time.Timer
	listeners []func(Directory)
}

func NewManager(api API, opts Options, logger *zap.Logger) *Manager {
	if opts.Debounce < 0 {
		opts.Debounce = 0
	} else if opts.Debounce == 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.VisibleLimit <= 0 {
		opts.VisibleLimit = DefaultVisibleLimit
	}
	if len(opts.Fallback) == 0 {
		opts.Fallback = DefaultFallback
	}
	opts.Fallback = normalize(opts.Fallback)
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		api:     api,
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		all:     append([]string(nil), opts.Fallback...),
		visible: head(opts.Fallback, opts.VisibleLimit),
	}
}

// OnChange registers fn to receive a snapshot after every state change.
// Listeners run outside the manager lock.
func (m *Manager) OnChange(fn func(Directory)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// LoadAll fetches the master list once. Any failure, or an empty list,
// leaves the fixed fallback set in place and is only logged.
func (m *Manager) LoadAll(ctx context.Context) Directory {
	m.mu.Lock()
	m.loading = true
	m.mu.Unlock()

	symbols, err := m.api.ListSymbols(ctx)

	m.mu.Lock()
	m.loading = false
	switch {
	case err != nil:
		m.logger.Warn("list symbols failed, using fallback set",
			zap.Strings("fallback", m.opts.Fallback), zap.Error(err))
		m.setAllLocked(m.opts.Fallback, true)
	case len(symbols) == 0:
		m.logger.Warn("backend returned no symbols, using fallback set")
		m.setAllLocked(m.opts.Fallback, true)
	default:
		m.setAllLocked(symbols, false)
	}
	return m.unlockAndNotify()
}

func (m *Manager) setAllLocked(symbols []string, fallback bool) {
	m.all = append([]string(nil), symbols...)
	m.fallback = fallback
	if strings.TrimSpace(m.query) == "" {
		m.visible = head(m.all, m.opts.VisibleLimit)
	}
}

// SetQuery records q and schedules a search once typing pauses. Clearing the
// query restores the visible list immediately without a request.
func (m *Manager) SetQuery(q string) {
	m.mu.Lock()
	m.query = q
	ep := m.search.Next()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}

	keyword := strings.TrimSpace(q)
	if keyword == "" {
		m.visible = head(m.all, m.opts.VisibleLimit)
		m.searching = false
		m.errMsg = ""
		m.unlockAndNotify()
		return
	}
	m.timer = time.AfterFunc(m.opts.Debounce, func() { m.runSearch(ep, q, keyword) })
	m.mu.Unlock()
}

func (m *Manager) runSearch(ep uint64, q, keyword string) {
	if !m.search.IsCurrent(ep) || m.ctx.Err() != nil {
		return
	}
	m.mu.Lock()
	m.searching = true
	m.unlockAndNotify()

	results, err := m.api.SearchSymbols(m.ctx, keyword)

	m.mu.Lock()
	// The query active now decides, not the one captured at dispatch.
	if !m.search.IsCurrent(ep) || m.query != q {
		m.mu.Unlock()
		m.logger.Debug("discarding stale search response", zap.String("keyword", keyword))
		return
	}
	m.searching = false
	if err != nil {
		m.logger.Warn("symbol search failed", zap.String("keyword", keyword), zap.Error(err))
		m.errMsg = "search failed: " + backend.UserMessage(err)
	} else {
		m.visible = results
		m.errMsg = ""
	}
	m.unlockAndNotify()
}

// ClearError drops the transient search error.
func (m *Manager) ClearError() {
	m.mu.Lock()
	if m.errMsg == "" {
		m.mu.Unlock()
		return
	}
	m.errMsg = ""
	m.unlockAndNotify()
}

func (m *Manager) Snapshot() Directory {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Close cancels any pending debounce and in-flight search.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.search.Next()
	m.mu.Unlock()
	m.cancel()
}

func (m *Manager) snapshotLocked() Directory {
	return Directory{
		All:          append([]string(nil), m.all...),
		Visible:      append([]string{}, m.visible...),
		Query:        m.query,
		Loading:      m.loading,
		Searching:    m.searching,
		FromFallback: m.fallback,
		Error:        m.errMsg,
	}
}

func (m *Manager) unlockAndNotify() Directory {
	d := m.snapshotLocked()
	listeners := append([]func(Directory){}, m.listeners...)
	m.mu.Unlock()
	for _, fn := range listeners {
		fn(d)
	}
	return d
}

func head(s []string, n int) []string {
	if len(s) > n {
		s = s[:n]
	}
	return append([]string{}, s...)
}

func normalize(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := market.NormalizeSymbol(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
