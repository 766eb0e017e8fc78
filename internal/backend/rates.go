package backend

import (
	"context"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"cryptorate-desk/internal/market"
)

type rateDTO struct {
	Symbol     string              `json:"symbol"`
	Rate       decimal.NullDecimal `json:"rate"`
	Timestamp  int64               `json:"timestamp"`
	LastUpdate string              `json:"lastUpdate"`
}

type historyDTO struct {
	Date string              `json:"date"`
	Rate decimal.NullDecimal `json:"rate"`
}

type statsDTO struct {
	Symbol             string              `json:"symbol"`
	MaxValue           decimal.NullDecimal `json:"maxValue"`
	MinValue           decimal.NullDecimal `json:"minValue"`
	AvgValue           decimal.NullDecimal `json:"avgValue"`
	PriceChange        decimal.NullDecimal `json:"priceChange"`
	PriceChangePercent *string             `json:"priceChangePercent"`
}

type analysisDTO struct {
	Symbol string `json:"symbol"`
	Report string `json:"report"`
}

func (c *Client) ListSymbols(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.get(ctx, "list symbols", c.apiURL("/rates/symbols", nil), &out); err != nil {
		return nil, err
	}
	return normalizeSymbols(out), nil
}

// SearchSymbols matches tickers by keyword; an empty keyword returns all.
func (c *Client) SearchSymbols(ctx context.Context, keyword string) ([]string, error) {
	var q url.Values
	if kw := strings.TrimSpace(keyword); kw != "" {
		q = url.Values{"keyword": {kw}}
	}
	out := []string{}
	if err := c.get(ctx, "search symbols", c.apiURL("/rates/search", q), &out); err != nil {
		return nil, err
	}
	return normalizeSymbols(out), nil
}

// Latest returns current prices; an empty symbol asks for every symbol.
func (c *Client) Latest(ctx context.Context, symbol string) ([]market.Rate, error) {
	var q url.Values
	if symbol != "" {
		q = url.Values{"symbol": {symbol}}
	}
	var dtos []rateDTO
	if err := c.get(ctx, "latest rates", c.apiURL("/rates/latest", q), &dtos); err != nil {
		return nil, err
	}
	out := make([]market.Rate, 0, len(dtos))
	for _, d := range dtos {
		if d.Symbol == "" || !d.Rate.Valid {
			continue
		}
		out = append(out, market.Rate{
			Symbol:    market.NormalizeSymbol(d.Symbol),
			Rate:      d.Rate.Decimal.InexactFloat64(),
			Timestamp: d.Timestamp,
		})
	}
	return out, nil
}

func (c *Client) History(ctx context.Context, symbol string, r market.DateRange) ([]market.HistoryPoint, error) {
	q := url.Values{"symbol": {symbol}, "start": {r.Start}, "end": {r.End}}
	var dtos []historyDTO
	if err := c.get(ctx, "history", c.apiURL("/rates/history", q), &dtos); err != nil {
		return nil, err
	}
	out := make([]market.HistoryPoint, 0, len(dtos))
	for _, d := range dtos {
		if !d.Rate.Valid {
			continue
		}
		out = append(out, market.HistoryPoint{Date: d.Date, Rate: d.Rate.Decimal.InexactFloat64()})
	}
	return out, nil
}

func (c *Client) StatsSummary(ctx context.Context, symbol, rng string) (market.StatsSummary, error) {
	var d statsDTO
	uri := c.apiURL("/stats/summary/"+url.PathEscape(symbol), url.Values{"range": {rng}})
	if err := c.get(ctx, "stats summary", uri, &d); err != nil {
		return market.StatsSummary{}, err
	}
	return market.StatsSummary{
		MaxValue:           floatPtr(d.MaxValue),
		MinValue:           floatPtr(d.MinValue),
		AvgValue:           floatPtr(d.AvgValue),
		PriceChangePercent: d.PriceChangePercent,
	}, nil
}

// Explain fetches the narrative report; a blank report is an empty result.
func (c *Client) Explain(ctx context.Context, symbol string) (string, error) {
	var d analysisDTO
	if err := c.get(ctx, "analysis", c.apiURL("/analysis/explain/"+url.PathEscape(symbol), nil), &d); err != nil {
		return "", err
	}
	if strings.TrimSpace(d.Report) == "" {
		return "", &Error{Kind: KindEmpty, Op: "analysis"}
	}
	return d.Report, nil
}

func floatPtr(d decimal.NullDecimal) *float64 {
	if !d.Valid {
		return nil
	}
	v := d.Decimal.InexactFloat64()
	return &v
}

func normalizeSymbols(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = market.NormalizeSymbol(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
