package market

import (
	"strings"
	"time"
)

const DateLayout = "2006-01-02"

// ParseTimeframe accepts case-insensitive input; unknown values are returned as-is
// so RangeFor can apply its default.
func ParseTimeframe(s string) Timeframe {
	return Timeframe(strings.ToUpper(strings.TrimSpace(s)))
}

func (tf Timeframe) Valid() bool {
	for _, t := range Timeframes {
		if t == tf {
			return true
		}
	}
	return false
}

// RangeFor maps a timeframe to the history window ending at now.
// Intraday timeframes cover the last 24h; unknown values fall back to 7 days.
func RangeFor(tf Timeframe, now time.Time) DateRange {
	var start time.Time
	switch tf {
	case Timeframe15M, Timeframe1H, Timeframe4H:
		start = now.Add(-24 * time.Hour)
	case Timeframe1D:
		start = now.AddDate(0, 0, -7)
	case Timeframe1W:
		start = now.AddDate(0, 0, -30)
	case Timeframe1M:
		start = now.AddDate(0, 0, -90)
	default:
		start = now.AddDate(0, 0, -7)
	}
	return DateRange{Start: start.Format(DateLayout), End: now.Format(DateLayout)}
}

// StatsRangeFor picks the summary window the stats endpoint supports.
func StatsRangeFor(tf Timeframe) string {
	switch tf {
	case Timeframe1W, Timeframe1M:
		return "30d"
	default:
		return "7d"
	}
}
