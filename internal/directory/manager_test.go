package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"cryptorate-desk/internal/backend"
)

type searchCall struct {
	keyword string
	at      time.Time
}

type fakeAPI struct {
	mu      sync.Mutex
	symbols []string
	listErr error
	calls   []searchCall
	results map[string][]string
	errs    map[string]error
	gate    map[string]chan struct{}
	started chan string
}

func (f *fakeAPI) ListSymbols(context.Context) ([]string, error) {
	return f.symbols, f.listErr
}

func (f *fakeAPI) SearchSymbols(_ context.Context, keyword string) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, searchCall{keyword: keyword, at: time.Now()})
	gate := f.gate[keyword]
	res, err := f.results[keyword], f.errs[keyword]
	started := f.started
	f.mu.Unlock()
	if started != nil {
		started <- keyword
	}
	if gate != nil {
		<-gate
	}
	return res, err
}

func (f *fakeAPI) searchCalls() []searchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]searchCall(nil), f.calls...)
}

func manySymbols(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("S%02d", i)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestLoadAll_LimitsVisible(t *testing.T) {
	api := &fakeAPI{symbols: manySymbols(30)}
	m := NewManager(api, Options{}, zap.NewNop())
	defer m.Close()

	d := m.LoadAll(context.Background())
	if len(d.All) != 30 || len(d.Visible) != 20 || d.Visible[19] != "S19" {
		t.Fatalf("unexpected directory: all=%d visible=%v", len(d.All), d.Visible)
	}
	if d.FromFallback {
		t.Fatal("live list flagged as fallback")
	}
}

func TestLoadAll_FallbackOnFailureOrEmpty(t *testing.T) {
	tests := []struct {
		name string
		api  *fakeAPI
	}{
		{"network failure", &fakeAPI{listErr: &backend.Error{Kind: backend.KindNetwork}}},
		{"empty list", &fakeAPI{symbols: []string{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(tt.api, Options{}, zap.NewNop())
			defer m.Close()
			d := m.LoadAll(context.Background())
			if !d.FromFallback || len(d.All) != 3 || d.All[0] != "BTC" || len(d.Visible) != 3 {
				t.Fatalf("expected fallback set, got %+v", d)
			}
			if d.Error != "" {
				t.Fatalf("startup failure must not surface an error, got %q", d.Error)
			}
		})
	}
}

func TestSetQuery_DebounceCollapsesKeystrokes(t *testing.T) {
	api := &fakeAPI{symbols: manySymbols(5), results: map[string][]string{"BTC": {"BTC"}}}
	m := NewManager(api, Options{Debounce: 300 * time.Millisecond}, zap.NewNop())
	defer m.Close()
	m.LoadAll(context.Background())

	m.SetQuery("B")
	time.Sleep(50 * time.Millisecond)
	m.SetQuery("BT")
	time.Sleep(50 * time.Millisecond)
	last := time.Now()
	m.SetQuery("BTC")

	waitFor(t, func() bool { return len(api.searchCalls()) > 0 })
	time.Sleep(400 * time.Millisecond)

	calls := api.searchCalls()
	if len(calls) != 1 {
		t.Fatalf("expected exactly one search, got %d: %+v", len(calls), calls)
	}
	if calls[0].keyword != "BTC" {
		t.Fatalf("expected search for BTC, got %q", calls[0].keyword)
	}
	if d := calls[0].at.Sub(last); d < 290*time.Millisecond {
		t.Fatalf("search fired %v after last keystroke, before the quiet window", d)
	}
	waitFor(t, func() bool {
		v := m.Snapshot().Visible
		return len(v) == 1 && v[0] == "BTC"
	})
}

func TestSetQuery_ClearRestoresSynchronously(t *testing.T) {
	api := &fakeAPI{symbols: manySymbols(25), results: map[string][]string{"S1": {"S10", "S11"}}}
	m := NewManager(api, Options{Debounce: time.Millisecond}, zap.NewNop())
	defer m.Close()
	m.LoadAll(context.Background())

	m.SetQuery("S1")
	waitFor(t, func() bool { return len(m.Snapshot().Visible) == 2 })
	before := len(api.searchCalls())

	m.SetQuery("")
	d := m.Snapshot()
	if len(d.Visible) != 20 || d.Visible[0] != "S00" {
		t.Fatalf("visible not restored synchronously: %v", d.Visible)
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(api.searchCalls()); got != before {
		t.Fatalf("clearing issued %d extra requests", got-before)
	}
}

func TestSetQuery_LateResponseForSupersededQueryDropped(t *testing.T) {
	gate := make(chan struct{})
	api := &fakeAPI{
		symbols: manySymbols(3),
		results: map[string][]string{"ETH": {"ETH"}, "BNB": {"BNB"}},
		gate:    map[string]chan struct{}{"ETH": gate},
		started: make(chan string, 4),
	}
	m := NewManager(api, Options{Debounce: time.Millisecond}, zap.NewNop())
	defer m.Close()
	m.LoadAll(context.Background())

	m.SetQuery("ETH")
	if kw := <-api.started; kw != "ETH" {
		t.Fatalf("unexpected first search %q", kw)
	}
	m.SetQuery("BNB")
	<-api.started
	waitFor(t, func() bool {
		v := m.Snapshot().Visible
		return len(v) == 1 && v[0] == "BNB"
	})

	close(gate)
	time.Sleep(20 * time.Millisecond)
	if v := m.Snapshot().Visible; len(v) != 1 || v[0] != "BNB" {
		t.Fatalf("late ETH response overwrote BNB results: %v", v)
	}
}

func TestSetQuery_FailureKeepsVisible(t *testing.T) {
	api := &fakeAPI{
		symbols: manySymbols(4),
		errs:    map[string]error{"X": errors.New("boom")},
	}
	m := NewManager(api, Options{Debounce: time.Millisecond}, zap.NewNop())
	defer m.Close()
	m.LoadAll(context.Background())

	m.SetQuery("X")
	waitFor(t, func() bool { return m.Snapshot().Error != "" })
	d := m.Snapshot()
	if len(d.Visible) != 4 {
		t.Fatalf("failed search cleared the list: %v", d.Visible)
	}
	if d.Searching {
		t.Fatal("searching flag left on")
	}
	m.ClearError()
	if m.Snapshot().Error != "" {
		t.Fatal("error not cleared")
	}
}

func TestClose_CancelsPendingDebounce(t *testing.T) {
	api := &fakeAPI{symbols: manySymbols(2)}
	m := NewManager(api, Options{Debounce: 20 * time.Millisecond}, zap.NewNop())
	m.SetQuery("S0")
	m.Close()
	time.Sleep(60 * time.Millisecond)
	if n := len(api.searchCalls()); n != 0 {
		t.Fatalf("search ran after Close: %d calls", n)
	}
}

func TestOnChange(t *testing.T) {
	api := &fakeAPI{symbols: manySymbols(2)}
	m := NewManager(api, Options{}, zap.NewNop())
	defer m.Close()
	var mu sync.Mutex
	var seen []Directory
	m.OnChange(func(d Directory) {
		mu.Lock()
		seen = append(seen, d)
		mu.Unlock()
	})
	m.LoadAll(context.Background())
	m.SetQuery("")
	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(seen))
	}
}
