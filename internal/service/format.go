package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cryptoverse/internal/domain"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var (
	one      = decimal.NewFromInt(1)
	hundred  = decimal.NewFromInt(100)
	trillion = decimal.New(1, 12)
	billion  = decimal.New(1, 9)
	million  = decimal.New(1, 6)
)

// FormatPrice renders a table price in USD.
// Prices >= 1 get exactly 2 decimals, smaller prices between 4 and 6.
func FormatPrice(price decimal.Decimal) string {
	if price.GreaterThanOrEqual(one) {
		return "$" + groupFixed(price, 2)
	}

	s := price.StringFixed(6)
	// Trim trailing zeros but keep at least 4 decimals
	for strings.HasSuffix(s, "0") && len(s)-strings.IndexByte(s, '.')-1 > 4 {
		s = s[:len(s)-1]
	}
	return "$" + s
}

// FormatMarketCap abbreviates to T/B/M at 1e12/1e9/1e6, otherwise a grouped number.
func FormatMarketCap(marketCap decimal.Decimal) string {
	switch {
	case marketCap.GreaterThanOrEqual(trillion):
		return "$" + marketCap.Div(trillion).StringFixed(2) + "T"
	case marketCap.GreaterThanOrEqual(billion):
		return "$" + marketCap.Div(billion).StringFixed(2) + "B"
	case marketCap.GreaterThanOrEqual(million):
		return "$" + marketCap.Div(million).StringFixed(2) + "M"
	default:
		return "$" + groupTrimmed(marketCap.Round(3))
	}
}

// FormatChange renders the absolute 24h change; direction is shown by the arrow.
func FormatChange(change decimal.Decimal) string {
	return change.Abs().StringFixed(2) + "%"
}

// FormatChartPrice renders the chart headline and tooltip price.
func FormatChartPrice(price decimal.Decimal) string {
	return "$" + groupFixed(price, 2)
}

// FormatPercentChange renders a signed delta, e.g. "+10.00%".
func FormatPercentChange(change decimal.Decimal) string {
	sign := ""
	if !change.IsNegative() {
		sign = "+"
	}
	return sign + change.StringFixed(2) + "%"
}

// FormatAxisPrice renders a Y-axis tick with K/M/B suffixes.
func FormatAxisPrice(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	default:
		return "$" + strconv.FormatFloat(v, 'f', -1, 64)
	}
}

// TickLabel renders an X-axis tick for the window:
// hour:minute for 1 day, weekday for 7 days, month/day otherwise.
func TickLabel(timestampMs int64, window domain.Window, loc *time.Location) string {
	t := time.UnixMilli(timestampMs).In(loc)
	switch window {
	case domain.Window1:
		return t.Format("15:04")
	case domain.Window7:
		return t.Format("Mon")
	default:
		return t.Format("Jan 2")
	}
}

// TooltipLabel renders the hover tooltip header, e.g. "Mar 31 • 14:00".
func TooltipLabel(timestampMs int64, loc *time.Location) string {
	return time.UnixMilli(timestampMs).In(loc).Format("Jan 2 • 15:04")
}

func groupFixed(d decimal.Decimal, places int32) string {
	s := d.StringFixed(places)
	intPart, frac, _ := strings.Cut(s, ".")
	out := groupInt(intPart)
	if frac != "" {
		out += "." + frac
	}
	return out
}

func groupTrimmed(d decimal.Decimal) string {
	intPart, frac, _ := strings.Cut(d.String(), ".")
	out := groupInt(intPart)
	if frac != "" {
		out += "." + frac
	}
	return out
}

func groupInt(s string) string {
	neg := strings.HasPrefix(s, "-")
	n, err := strconv.ParseInt(strings.TrimPrefix(s, "-"), 10, 64)
	if err != nil {
		return s
	}
	grouped := humanize.Comma(n)
	if neg {
		return "-" + grouped
	}
	return grouped
}
