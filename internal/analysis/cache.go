// Package analysis caches one narrative per symbol for the session.
//
// The first request for a symbol asks the backend; if that fails the
// narrator is tried, and the template is used when both fail. Once a symbol
// has text, further requests only toggle its visibility.
package analysis

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"cryptorate-desk/internal/backend"
	"cryptorate-desk/internal/market"
)

type API interface {
	Explain(ctx context.Context, symbol string) (string, error)
}

type Source string

const (
	SourceBackend  Source = "backend"
	SourceNarrator Source = "narrator"
	SourceTemplate Source = "template"
)

type Result struct {
	Symbol  string `json:"symbol"`
	Text    string `json:"text"`
	Source  Source `json:"source"`
	Visible bool   `json:"visible"`
	// Cached is set when the text came from the cache without a fetch.
	Cached bool `json:"cached"`
	// Notice carries the reason a fallback was used.
	Notice string `json:"notice,omitempty"`
}

type entry struct {
	done    chan struct{}
	result  Result
	ok      bool
	visible bool
}

type Cache struct {
	api      API
	narrator Narrator
	logger   *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

func NewCache(api API, narrator Narrator, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		api:      api,
		narrator: narrator,
		logger:   logger,
		entries:  make(map[string]*entry),
	}
}

// Request returns the narrative for symbol, fetching it at most once.
// Concurrent first requests share one fetch.
func (c *Cache) Request(ctx context.Context, symbol string, f Facts) Result {
	symbol = market.NormalizeSymbol(symbol)
	f.Symbol = symbol

	c.mu.Lock()
	if e, ok := c.entries[symbol]; ok {
		select {
		case <-e.done:
			if e.ok {
				e.visible = !e.visible
				r := e.result
				r.Visible = e.visible
				r.Cached = true
				c.mu.Unlock()
				return r
			}
		default:
			c.mu.Unlock()
			<-e.done
			c.mu.Lock()
			r := e.result
			r.Visible = true
			c.mu.Unlock()
			return r
		}
	}
	e := &entry{done: make(chan struct{})}
	c.entries[symbol] = e
	c.mu.Unlock()

	r, cacheable := c.resolve(ctx, f)

	c.mu.Lock()
	e.result = r
	e.ok = cacheable
	e.visible = true
	if !cacheable && c.entries[symbol] == e {
		delete(c.entries, symbol)
	}
	c.mu.Unlock()
	close(e.done)

	r.Visible = true
	return r
}

func (c *Cache) resolve(ctx context.Context, f Facts) (Result, bool) {
	report, err := c.api.Explain(ctx, f.Symbol)
	if err == nil {
		return Result{Symbol: f.Symbol, Text: report, Source: SourceBackend}, true
	}
	notice := "AI analysis unavailable, showing a local summary: " + backend.UserMessage(err)
	c.logger.Warn("analysis fetch failed, falling back", zap.String("symbol", f.Symbol), zap.Error(err))

	// A rejected session is handled by the guard; keep the entry uncached so
	// the real report is fetched after logging in again.
	cacheable := !errors.Is(err, backend.ErrAuthInvalid)

	if c.narrator != nil {
		text, nerr := c.narrator.Narrate(ctx, f)
		if nerr == nil {
			return Result{Symbol: f.Symbol, Text: text, Source: SourceNarrator, Notice: notice}, cacheable
		}
		if !errors.Is(nerr, ErrNarratorDisabled) {
			c.logger.Warn("narrator failed, using template", zap.String("symbol", f.Symbol), zap.Error(nerr))
		}
	}
	return Result{Symbol: f.Symbol, Text: Template(f), Source: SourceTemplate, Notice: notice}, cacheable
}

// Get returns the cached result without changing visibility.
func (c *Cache) Get(symbol string) (Result, bool) {
	symbol = market.NormalizeSymbol(symbol)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[symbol]
	if !ok {
		return Result{}, false
	}
	select {
	case <-e.done:
	default:
		return Result{}, false
	}
	if !e.ok {
		return Result{}, false
	}
	r := e.result
	r.Visible = e.visible
	r.Cached = true
	return r, true
}

// Len counts symbols with a stored narrative.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.entries {
		select {
		case <-e.done:
			if e.ok {
				n++
			}
		default:
		}
	}
	return n
}
