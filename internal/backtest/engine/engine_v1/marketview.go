package engine

import (
	"sort"
	"time"

	"github.com/backcast-lab/backcast/internal/types"
)

// marketView tracks how much of each instrument's series has become visible
// as the replay advances along the union time axis. Visibility only ever
// grows within a run; instruments without a bar at the current axis timestamp
// keep their previous visible slice.
type marketView struct {
	codes    []string // sorted, fixed at construction
	series   map[string]types.BarSeries
	rowIndex map[string]map[int64]int // timestamp (UnixNano) -> row position
	visible  map[string]int           // rows visible so far per code
	axis     []time.Time              // sorted union of all timestamps
}

func newMarketView(data map[string]types.BarSeries) *marketView {
	v := &marketView{
		series:   data,
		rowIndex: make(map[string]map[int64]int, len(data)),
		visible:  make(map[string]int, len(data)),
	}

	for code := range data {
		v.codes = append(v.codes, code)
	}

	sort.Strings(v.codes)

	seen := make(map[int64]struct{})

	for _, code := range v.codes {
		index := make(map[int64]int, len(data[code]))

		for i, bar := range data[code] {
			key := bar.Time.UnixNano()
			index[key] = i

			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}

				v.axis = append(v.axis, bar.Time)
			}
		}

		v.rowIndex[code] = index
	}

	sort.Slice(v.axis, func(i, j int) bool { return v.axis[i].Before(v.axis[j]) })

	return v
}

// advanceTo makes every bar stamped exactly t visible.
func (v *marketView) advanceTo(t time.Time) {
	key := t.UnixNano()

	for _, code := range v.codes {
		if row, ok := v.rowIndex[code][key]; ok {
			v.visible[code] = row + 1
		}
	}
}

// reset hides all bars again without rebuilding the axis.
func (v *marketView) reset() {
	for _, code := range v.codes {
		v.visible[code] = 0
	}
}

// anyVisible reports whether the replay has revealed at least one bar yet.
func (v *marketView) anyVisible() bool {
	for _, code := range v.codes {
		if v.visible[code] > 0 {
			return true
		}
	}

	return false
}

// barAt returns the bar stamped exactly t for the code, if any.
func (v *marketView) barAt(code string, t time.Time) (types.Bar, bool) {
	row, ok := v.rowIndex[code][t.UnixNano()]
	if !ok {
		return types.Bar{}, false
	}

	return v.series[code][row], true
}

// rowOf returns the row position of the bar stamped exactly t for the code.
func (v *marketView) rowOf(code string, t time.Time) (int, bool) {
	row, ok := v.rowIndex[code][t.UnixNano()]

	return row, ok
}

// visibleBars returns the rows revealed so far. The slice aliases the
// underlying series; callers must not mutate it.
func (v *marketView) visibleBars(code string) types.BarSeries {
	return v.series[code][:v.visible[code]]
}

// fullBars returns the entire series for the code.
func (v *marketView) fullBars(code string) types.BarSeries {
	return v.series[code]
}

// lastVisibleClose returns the close of the last visible bar, the mark price
// for the code. False while no bar is visible.
func (v *marketView) lastVisibleClose(code string) (float64, bool) {
	n := v.visible[code]
	if n == 0 {
		return 0, false
	}

	return v.series[code][n-1].Close, true
}

// closeBefore returns the close of the bar preceding the given row, falling
// back to false at the first row.
func (v *marketView) closeBefore(code string, row int) (float64, bool) {
	if row <= 0 || row > len(v.series[code]) {
		return 0, false
	}

	return v.series[code][row-1].Close, true
}

// hasCode reports whether the dataset contains the code.
func (v *marketView) hasCode(code string) bool {
	_, ok := v.series[code]

	return ok
}

// soleCode returns the only code in the dataset, or false when the dataset
// holds several instruments.
func (v *marketView) soleCode() (string, bool) {
	if len(v.codes) != 1 {
		return "", false
	}

	return v.codes[0], true
}
