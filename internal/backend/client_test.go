package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"cryptorate-desk/internal/market"
)

func writeEnvelope(w http.ResponseWriter, status, code int, msg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": msg, "data": data})
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{BaseURL: srv.URL, APIPrefix: "/api/v1", Timeout: 2 * time.Second}, zap.NewNop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestLatest_DecodesRates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/rates/latest" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("missing request id header")
		}
		writeEnvelope(w, http.StatusOK, 200, "ok", []map[string]any{
			{"symbol": "btc", "rate": 45123.5, "timestamp": 1},
			{"symbol": "ETH", "rate": "2800.25"},
			{"symbol": "XRP", "rate": nil},
		})
	})
	rates, err := c.Latest(context.Background(), "")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(rates))
	}
	if rates[0].Symbol != "BTC" || rates[0].Rate != 45123.5 {
		t.Errorf("unexpected first rate %+v", rates[0])
	}
	if rates[1].Rate != 2800.25 {
		t.Errorf("expected string decimal decoded, got %v", rates[1].Rate)
	}
}

func TestHistory_SendsRangeQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("symbol") != "BTC" || q.Get("start") != "2026-10-10" || q.Get("end") != "2026-10-17" {
			t.Errorf("unexpected query %s", r.URL.RawQuery)
		}
		writeEnvelope(w, http.StatusOK, 200, "ok", []map[string]any{
			{"date": "2026-10-10", "rate": 100},
			{"date": "2026-10-11", "rate": 110},
		})
	})
	points, err := c.History(context.Background(), "BTC", market.DateRange{Start: "2026-10-10", End: "2026-10-17"})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(points) != 2 || points[1].Rate != 110 {
		t.Fatalf("unexpected points %+v", points)
	}
}

func TestStatsSummary_MissingFieldsStayNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/stats/summary/BTC" || r.URL.Query().Get("range") != "30d" {
			t.Errorf("unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		writeEnvelope(w, http.StatusOK, 200, "ok", map[string]any{"maxValue": 50000, "minValue": nil})
	})
	s, err := c.StatsSummary(context.Background(), "BTC", "30d")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if s.MaxValue == nil || *s.MaxValue != 50000 {
		t.Errorf("expected max 50000, got %v", s.MaxValue)
	}
	if s.MinValue != nil || s.AvgValue != nil || s.PriceChangePercent != nil {
		t.Errorf("absent fields must be nil, got %+v", s)
	}
}

func TestErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"http 401", http.StatusUnauthorized, `{"code":401,"msg":"expired"}`, ErrAuthInvalid},
		{"business 401", http.StatusOK, `{"code":401,"msg":"expired"}`, ErrAuthInvalid},
		{"business 500", http.StatusOK, `{"code":500,"msg":"boom"}`, ErrBusiness},
		{"null data", http.StatusOK, `{"code":200,"msg":"ok","data":null}`, ErrEmpty},
		{"html gateway page", http.StatusBadGateway, `<html>bad gateway</html>`, ErrNetwork},
	}
	for _, tt := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(tt.body))
		})
		_, err := c.ListSymbols(context.Background())
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestTimeoutIsNetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		writeEnvelope(w, http.StatusOK, 200, "ok", []string{"BTC"})
	}))
	defer srv.Close()
	c, err := New(Config{BaseURL: srv.URL, Timeout: 100 * time.Millisecond}, zap.NewNop())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = c.ListSymbols(context.Background())
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected network failure on timeout, got %v", err)
	}
	if !Recoverable(err) {
		t.Error("timeout should be recoverable")
	}
}

func TestExplain_BlankReportIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusOK, 200, "ok", map[string]any{"symbol": "BTC", "report": "  "})
	})
	_, err := c.Explain(context.Background(), "BTC")
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected empty result, got %v", err)
	}
}

func TestLogin_UsesRootPath(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/user/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["username"] != "alice" || body["password"] != "pw" {
			t.Errorf("unexpected body %v", body)
		}
		writeEnvelope(w, http.StatusOK, 200, "ok", "tok-1")
	})
	tok, err := c.Login(context.Background(), "alice", "pw")
	if err != nil || tok != "tok-1" {
		t.Fatalf("login: tok=%q err=%v", tok, err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 request, got %d", hits.Load())
	}
}

func TestUserMessage(t *testing.T) {
	err := &Error{Kind: KindBusiness, Op: "login", Code: 400, Msg: "wrong password"}
	if got := UserMessage(err); got != "wrong password" {
		t.Errorf("got %q", got)
	}
	if got := UserMessage(&Error{Kind: KindAuth}); !strings.Contains(got, "log in") {
		t.Errorf("got %q", got)
	}
}

func TestIsUnauthorized(t *testing.T) {
	if !IsUnauthorized(401, nil) {
		t.Error("http 401 must be unauthorized")
	}
	if !IsUnauthorized(200, []byte(`{"code":401}`)) {
		t.Error("embedded 401 must be unauthorized")
	}
	if IsUnauthorized(200, []byte(`{"code":200}`)) || IsUnauthorized(200, []byte(`not json`)) {
		t.Error("unexpected unauthorized")
	}
}
