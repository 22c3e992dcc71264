package domain

import (
	"fmt"
	"slices"
)

// Window is the lookback period of a price history query, in days.
type Window int

const (
	Window1  Window = 1
	Window7  Window = 7
	Window30 Window = 30
	Window90 Window = 90
)

// Windows lists the selectable windows in tab order.
var Windows = []Window{Window1, Window7, Window30, Window90}

// ParseWindow validates a day count. Only 1, 7, 30 and 90 are accepted.
func ParseWindow(days int) (Window, error) {
	if w := Window(days); slices.Contains(Windows, w) {
		return w, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrInvalidWindow, days)
}

// Days returns the window length in days.
func (w Window) Days() int {
	return int(w)
}

// Label returns the tab label shown for the window.
func (w Window) Label() string {
	switch w {
	case Window1:
		return "24H"
	case Window7:
		return "7D"
	case Window30:
		return "30D"
	case Window90:
		return "90D"
	default:
		return "UNKNOWN"
	}
}

func (w Window) String() string {
	return w.Label()
}
