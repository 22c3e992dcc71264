package service

import (
	"sort"

	"cryptoverse/internal/domain"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/floats"
)

// downsampleStride is the point stride kept for the 1-day window
const downsampleStride = 6

// Downsample keeps every 6th point (indices 0, 6, 12, ...) for the 1-day
// window and returns other windows unchanged.
func Downsample(points []domain.PricePoint, window domain.Window) []domain.PricePoint {
	if window != domain.Window1 {
		return points
	}

	result := make([]domain.PricePoint, 0, (len(points)+downsampleStride-1)/downsampleStride)
	for i := 0; i < len(points); i += downsampleStride {
		result = append(result, points[i])
	}
	return result
}

// PercentChange calculates 100 * (last - first) / first over the series.
// It is zero for fewer than 2 points or a zero first price.
func PercentChange(points []domain.PricePoint) decimal.Decimal {
	if len(points) < 2 {
		return decimal.Zero
	}
	first := points[0].Price
	if first.IsZero() {
		return decimal.Zero
	}
	last := points[len(points)-1].Price
	return last.Sub(first).Div(first).Mul(hundred)
}

// NearestIndex returns the index of the point closest in time to ts,
// or -1 for an empty series. Points must be ordered by timestamp.
func NearestIndex(points []domain.PricePoint, ts int64) int {
	if len(points) == 0 {
		return -1
	}

	i := sort.Search(len(points), func(i int) bool {
		return points[i].Timestamp >= ts
	})
	switch {
	case i == 0:
		return 0
	case i == len(points):
		return len(points) - 1
	case points[i].Timestamp-ts < ts-points[i-1].Timestamp:
		return i
	default:
		return i - 1
	}
}

// AxisRange returns the min and max price of the series for the Y axis.
func AxisRange(points []domain.PricePoint) (min, max float64) {
	if len(points) == 0 {
		return 0, 0
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Price.InexactFloat64()
	}
	return floats.Min(values), floats.Max(values)
}
