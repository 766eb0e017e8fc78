package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cryptorate-desk/internal/analysis"
	"cryptorate-desk/internal/backend"
	"cryptorate-desk/internal/market"
	"cryptorate-desk/internal/store"
	"cryptorate-desk/internal/viewmodel"
)

// Desk is the view-model surface exposed over HTTP.
type Desk interface {
	View() viewmodel.ViewModel
	SelectSymbol(symbol string) error
	SelectTimeframe(tf string) error
	SetSearch(q string)
	ToggleFavorite(ctx context.Context, symbol string) []string
	RequestAnalysis(ctx context.Context) analysis.Result
	Login(ctx context.Context, username, password string) error
	Register(ctx context.Context, username, password, email string) error
	Logout() bool
	DismissError()
	DismissLogin()
	Assets(ctx context.Context) ([]backend.Asset, error)
	SaveAsset(ctx context.Context, in backend.AssetInput) error
	DeleteAsset(ctx context.Context, id int64) error
}

type SnapshotSource interface {
	QueryRateSnapshots(symbol string, limit int, offset int) ([]store.RateSnapshot, error)
}

type StatusReporter interface {
	Status() map[string]any
}

type Deps struct {
	Desk      Desk
	Snapshots SnapshotSource
	Narrator  StatusReporter
	Logger    *zap.Logger
}

type SelectRequest struct {
	Symbol string `json:"symbol"`
}

type TimeframeRequest struct {
	Timeframe string `json:"timeframe"`
}

type SearchRequest struct {
	Query string `json:"query"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

type AssetRequest struct {
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
	Cost   string `json:"cost"`
}

func RegisterRoutes(h *server.Hertz, d Deps) {
	desk := d.Desk
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h.GET("/healthz", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})

	h.GET("/api/v1/view", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]any{"ok": true, "view": desk.View()})
	})

	h.GET("/api/v1/timeframes", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]any{"ok": true, "timeframes": market.Timeframes})
	})

	h.POST("/api/v1/select", func(_ context.Context, c *app.RequestContext) {
		var req SelectRequest
		if err := c.BindJSON(&req); err != nil {
			badJSON(c)
			return
		}
		if err := desk.SelectSymbol(req.Symbol); err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "view": desk.View()})
	})

	h.POST("/api/v1/timeframe", func(_ context.Context, c *app.RequestContext) {
		var req TimeframeRequest
		if err := c.BindJSON(&req); err != nil {
			badJSON(c)
			return
		}
		if err := desk.SelectTimeframe(req.Timeframe); err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "view": desk.View()})
	})

	h.POST("/api/v1/search", func(_ context.Context, c *app.RequestContext) {
		var req SearchRequest
		if err := c.BindJSON(&req); err != nil {
			badJSON(c)
			return
		}
		desk.SetSearch(req.Query)
		c.JSON(http.StatusAccepted, map[string]any{"ok": true, "query": req.Query})
	})

	h.POST("/api/v1/favorites/:symbol/toggle", func(ctx context.Context, c *app.RequestContext) {
		symbol := strings.TrimSpace(c.Param("symbol"))
		if symbol == "" {
			writeError(c, logger, fmt.Errorf("favorite symbol: %w", viewmodel.ErrInvalidInput))
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "favorites": desk.ToggleFavorite(ctx, symbol)})
	})

	h.POST("/api/v1/analysis", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]any{"ok": true, "analysis": desk.RequestAnalysis(ctx)})
	})

	h.GET("/api/v1/analysis/narrator", func(_ context.Context, c *app.RequestContext) {
		status := map[string]any{"mode": "template", "reason": "not configured"}
		if d.Narrator != nil {
			status = d.Narrator.Status()
		}
		status["ok"] = true
		c.JSON(http.StatusOK, status)
	})

	h.POST("/api/v1/login", func(ctx context.Context, c *app.RequestContext) {
		var req LoginRequest
		if err := c.BindJSON(&req); err != nil {
			badJSON(c)
			return
		}
		if err := desk.Login(ctx, req.Username, req.Password); err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "user": desk.View().User})
	})

	h.POST("/api/v1/register", func(ctx context.Context, c *app.RequestContext) {
		var req RegisterRequest
		if err := c.BindJSON(&req); err != nil {
			badJSON(c)
			return
		}
		if err := desk.Register(ctx, req.Username, req.Password, req.Email); err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "user": desk.View().User})
	})

	h.POST("/api/v1/logout", func(_ context.Context, c *app.RequestContext) {
		c.JSON(http.StatusOK, map[string]any{"ok": true, "cleared": desk.Logout()})
	})

	h.POST("/api/v1/error/dismiss", func(_ context.Context, c *app.RequestContext) {
		desk.DismissError()
		c.JSON(http.StatusOK, map[string]any{"ok": true})
	})

	h.POST("/api/v1/login/dismiss", func(_ context.Context, c *app.RequestContext) {
		desk.DismissLogin()
		c.JSON(http.StatusOK, map[string]any{"ok": true})
	})

	h.GET("/api/v1/snapshots", func(_ context.Context, c *app.RequestContext) {
		if d.Snapshots == nil {
			c.JSON(http.StatusServiceUnavailable, map[string]any{
				"ok":    false,
				"error": "store not configured",
			})
			return
		}
		symbol := market.NormalizeSymbol(c.Query("symbol"))
		if symbol == "" {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "symbol is required"})
			return
		}
		limit, err := parseLimit(c.Query("limit"))
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		offset, err := parseOffset(c.Query("offset"))
		if err != nil {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		items, err := d.Snapshots.QueryRateSnapshots(symbol, limit, offset)
		if err != nil {
			logger.Warn("query snapshots failed", zap.String("symbol", symbol), zap.Error(err))
			c.JSON(http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		if items == nil {
			items = []store.RateSnapshot{}
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "items": items, "limit": limit, "offset": offset})
	})

	h.GET("/api/v1/assets", func(ctx context.Context, c *app.RequestContext) {
		items, err := desk.Assets(ctx)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true, "items": items})
	})

	h.POST("/api/v1/assets", func(ctx context.Context, c *app.RequestContext) {
		var req AssetRequest
		if err := c.BindJSON(&req); err != nil {
			badJSON(c)
			return
		}
		in, err := req.toInput()
		if err != nil {
			writeError(c, logger, err)
			return
		}
		if err := desk.SaveAsset(ctx, in); err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true})
	})

	h.DELETE("/api/v1/assets/:id", func(ctx context.Context, c *app.RequestContext) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, map[string]any{"ok": false, "error": "invalid asset id"})
			return
		}
		if err := desk.DeleteAsset(ctx, id); err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, map[string]any{"ok": true})
	})
}

func (r AssetRequest) toInput() (backend.AssetInput, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
	if err != nil {
		return backend.AssetInput{}, fmt.Errorf("invalid amount %q: %w", r.Amount, viewmodel.ErrInvalidInput)
	}
	in := backend.AssetInput{Symbol: r.Symbol, Amount: amount}
	if s := strings.TrimSpace(r.Cost); s != "" {
		cost, err := decimal.NewFromString(s)
		if err != nil {
			return backend.AssetInput{}, fmt.Errorf("invalid cost %q: %w", r.Cost, viewmodel.ErrInvalidInput)
		}
		in.Cost = cost
	}
	return in, nil
}

func badJSON(c *app.RequestContext) {
	c.JSON(http.StatusBadRequest, map[string]any{
		"ok":    false,
		"error": "invalid json body",
	})
}

// writeError maps backend and input errors to a status code. The message is
// the one a user should see.
func writeError(c *app.RequestContext, logger *zap.Logger, err error) {
	status := http.StatusBadGateway
	msg := backend.UserMessage(err)
	switch {
	case errors.Is(err, viewmodel.ErrInvalidInput):
		status = http.StatusBadRequest
		msg = err.Error()
	case errors.Is(err, backend.ErrAuthInvalid):
		status = http.StatusUnauthorized
	case errors.Is(err, backend.ErrBusiness):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, backend.ErrEmpty):
		status = http.StatusNotFound
	}
	if status >= 500 {
		logger.Warn("request failed", zap.Error(err))
	}
	c.JSON(status, map[string]any{"ok": false, "error": msg})
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 200, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if v > 1000 {
		return 1000, nil
	}
	return v, nil
}

func parseOffset(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid offset")
	}
	return v, nil
}
