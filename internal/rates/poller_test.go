package rates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"cryptorate-desk/internal/backend"
	"cryptorate-desk/internal/market"
)

type step struct {
	rates []market.Rate
	err   error
	delay time.Duration
}

type scriptedAPI struct {
	mu    sync.Mutex
	steps []step
	calls int
}

func (s *scriptedAPI) Latest(ctx context.Context, _ string) ([]market.Rate, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	st := s.steps[len(s.steps)-1]
	if i < len(s.steps) {
		st = s.steps[i]
	}
	s.mu.Unlock()
	if st.delay > 0 {
		select {
		case <-time.After(st.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return st.rates, st.err
}

func (s *scriptedAPI) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memRecorder struct {
	mu   sync.Mutex
	maps []market.RateMap
}

func (r *memRecorder) RecordRates(_ time.Time, m market.RateMap) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.maps = append(r.maps, m)
	return nil
}

type tickLog struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (l *tickLog) add(s Snapshot) {
	l.mu.Lock()
	l.snaps = append(l.snaps, s)
	l.mu.Unlock()
}

func (l *tickLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.snaps)
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

func TestPoller_FetchesImmediatelyAndOnInterval(t *testing.T) {
	api := &scriptedAPI{steps: []step{{rates: []market.Rate{{Symbol: "BTC", Rate: 45000}}}}}
	rec := &memRecorder{}
	p := NewPoller(api, Options{Interval: 30 * time.Millisecond, Symbol: "btc", Recorder: rec}, zap.NewNop())
	log := &tickLog{}
	p.Start(context.Background(), log.add)
	defer p.Stop()

	waitFor(t, func() bool { return log.len() >= 3 })
	s := p.Snapshot()
	if !s.HasLive || !s.EverLive || s.CurrentPrice != 45000 || s.Symbol != "BTC" {
		t.Fatalf("unexpected snapshot %+v", s)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.maps) == 0 || rec.maps[0]["BTC"] != 45000 {
		t.Fatalf("poll not recorded: %+v", rec.maps)
	}
}

func TestPoller_FailureKeepsPreviousRates(t *testing.T) {
	api := &scriptedAPI{steps: []step{
		{rates: []market.Rate{{Symbol: "BTC", Rate: 45000}, {Symbol: "ETH", Rate: 2800}}},
		{err: &backend.Error{Kind: backend.KindNetwork, Err: errors.New("timeout")}},
	}}
	p := NewPoller(api, Options{Interval: 20 * time.Millisecond, Symbol: "ETH"}, zap.NewNop())
	p.Start(context.Background(), nil)
	defer p.Stop()

	waitFor(t, func() bool { return p.Snapshot().Stale })
	s := p.Snapshot()
	if s.Rates["BTC"] != 45000 || s.Rates["ETH"] != 2800 {
		t.Fatalf("rates changed after failed poll: %v", s.Rates)
	}
	if s.CurrentPrice != 2800 || !s.HasLive {
		t.Fatalf("current price lost: %+v", s)
	}
	if s.LastError == "" {
		t.Fatal("failure not reported")
	}
}

func TestPoller_NeverLive(t *testing.T) {
	api := &scriptedAPI{steps: []step{{err: &backend.Error{Kind: backend.KindEmpty}}}}
	p := NewPoller(api, Options{Interval: time.Hour, Symbol: "BTC"}, zap.NewNop())
	log := &tickLog{}
	p.Start(context.Background(), log.add)
	defer p.Stop()

	waitFor(t, func() bool { return log.len() == 1 })
	s := p.Snapshot()
	if s.EverLive || s.HasLive || len(s.Rates) != 0 {
		t.Fatalf("expected never-live state, got %+v", s)
	}
}

func TestPoller_SelectTriggersImmediateFetch(t *testing.T) {
	api := &scriptedAPI{steps: []step{{rates: []market.Rate{{Symbol: "BTC", Rate: 1}, {Symbol: "ETH", Rate: 2}}}}}
	p := NewPoller(api, Options{Interval: time.Hour, Symbol: "BTC"}, zap.NewNop())
	p.Start(context.Background(), nil)
	defer p.Stop()
	waitFor(t, func() bool { return api.callCount() == 1 && p.Snapshot().HasLive })

	p.Select("eth")
	if s := p.Snapshot(); s.CurrentPrice != 2 || s.Symbol != "ETH" {
		t.Fatalf("selection should read the known rate at once: %+v", s)
	}
	waitFor(t, func() bool { return api.callCount() == 2 })
}

func TestPoller_SelectUnknownSymbolClearsCurrentPrice(t *testing.T) {
	api := &scriptedAPI{steps: []step{
		{rates: []market.Rate{{Symbol: "BTC", Rate: 45000}}},
		{err: &backend.Error{Kind: backend.KindNetwork, Err: errors.New("timeout")}},
	}}
	p := NewPoller(api, Options{Interval: time.Hour, Symbol: "BTC"}, zap.NewNop())
	p.Start(context.Background(), nil)
	defer p.Stop()
	waitFor(t, func() bool { return p.Snapshot().CurrentPrice == 45000 })

	p.Select("XRP")
	if s := p.Snapshot(); s.CurrentPrice != 0 || s.HasLive {
		t.Fatalf("XRP has no rate but snapshot reports %+v", s)
	}
	waitFor(t, func() bool { return p.Snapshot().Stale })
	if s := p.Snapshot(); s.Symbol != "XRP" || s.CurrentPrice != 0 || s.HasLive {
		t.Fatalf("failed poll restored another symbol's price: %+v", s)
	}
}

func TestPoller_PollWithoutSelectedSymbolClearsCurrentPrice(t *testing.T) {
	api := &scriptedAPI{steps: []step{
		{rates: []market.Rate{{Symbol: "BTC", Rate: 45000}}},
		{rates: []market.Rate{{Symbol: "ETH", Rate: 2800}}},
	}}
	p := NewPoller(api, Options{Interval: time.Hour, Symbol: "BTC"}, zap.NewNop())
	p.Start(context.Background(), nil)
	defer p.Stop()
	waitFor(t, func() bool { return p.Snapshot().CurrentPrice == 45000 })

	p.Refresh()
	waitFor(t, func() bool { return p.Snapshot().Rates["ETH"] == 2800 })
	if s := p.Snapshot(); s.CurrentPrice != 0 || s.HasLive {
		t.Fatalf("BTC missing from poll but snapshot reports %+v", s)
	}
}

func TestPoller_OutOfOrderCompletionDropped(t *testing.T) {
	api := &scriptedAPI{steps: []step{
		{rates: []market.Rate{{Symbol: "BTC", Rate: 1}}, delay: 80 * time.Millisecond},
		{rates: []market.Rate{{Symbol: "BTC", Rate: 2}}},
	}}
	p := NewPoller(api, Options{Interval: time.Hour, Symbol: "BTC"}, zap.NewNop())
	p.Start(context.Background(), nil)
	defer p.Stop()

	waitFor(t, func() bool { return api.callCount() == 1 })
	p.Refresh()
	waitFor(t, func() bool { return p.Snapshot().CurrentPrice == 2 })
	time.Sleep(120 * time.Millisecond)
	if got := p.Snapshot().CurrentPrice; got != 2 {
		t.Fatalf("older poll overwrote newer result: %v", got)
	}
}

func TestPoller_StopCancelsTimer(t *testing.T) {
	api := &scriptedAPI{steps: []step{{rates: []market.Rate{{Symbol: "BTC", Rate: 1}}}}}
	p := NewPoller(api, Options{Interval: 10 * time.Millisecond}, zap.NewNop())
	p.Start(context.Background(), nil)
	waitFor(t, func() bool { return api.callCount() >= 1 })
	p.Stop()
	n := api.callCount()
	time.Sleep(50 * time.Millisecond)
	if api.callCount() != n {
		t.Fatal("poller kept fetching after Stop")
	}
	p.Select("ETH")
	time.Sleep(20 * time.Millisecond)
	if api.callCount() != n {
		t.Fatal("Select on a stopped poller fetched")
	}
}
