// Package stats turns bucket tallies into pie-chart descriptions: a
// conic-gradient stop list and a parallel legend.
package stats

import (
	"fmt"
	"math"
	"strings"

	"github.com/rubiojr/pinmap/pkg/geo"
	"github.com/rubiojr/pinmap/pkg/locstore"
)

// Stop is one color stop of a conic gradient.
type Stop struct {
	Color   string `json:"color"`
	Percent int    `json:"percent"`
}

// Slice is one surviving bucket with its rounded share and sweep range.
type Slice struct {
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Percent int    `json:"percent"`
	Color   string `json:"color"`
	From    int    `json:"from"`
	To      int    `json:"to"`
}

// LegendEntry pairs a label with its swatch and literal count.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
	Count int    `json:"count"`
}

// Chart is the full pie description for one tally.
type Chart struct {
	Slices []Slice       `json:"slices"`
	Stops  []Stop        `json:"stops"`
	Legend []LegendEntry `json:"legend"`
}

// Labels returns the buckets that appear in the chart: non-zero counts, in
// tally order.
func Labels(t locstore.Tally) []string {
	var labels []string
	for _, b := range t.Buckets {
		if b.Label == "total" || b.Count <= 0 {
			continue
		}
		labels = append(labels, b.Label)
	}
	return labels
}

// Pie computes the chart for t, assigning palette colors by position.
// Percentages are rounded per bucket without correction; the final stop is
// pinned to 100 so the sweep always closes.
func Pie(t locstore.Tally) Chart {
	labels := Labels(t)
	chart := Chart{}
	if len(labels) == 0 {
		return chart
	}
	total := t.Total
	if total <= 0 {
		for _, l := range labels {
			total += t.Get(l)
		}
	}

	cum := 0
	chart.Stops = append(chart.Stops, Stop{Color: geo.Color(0), Percent: 0})
	for idx, label := range labels {
		count := t.Get(label)
		pct := int(math.Round(float64(count) / float64(total) * 100))
		slice := Slice{Label: label, Count: count, Percent: pct, Color: geo.Color(idx), From: cum}
		chart.Legend = append(chart.Legend, LegendEntry{Label: label, Color: slice.Color, Count: count})

		if idx == len(labels)-1 {
			slice.To = 100
			chart.Slices = append(chart.Slices, slice)
			chart.Stops = append(chart.Stops, Stop{Color: slice.Color, Percent: 100})
			break
		}
		cum += pct
		slice.To = cum
		chart.Slices = append(chart.Slices, slice)
		chart.Stops = append(chart.Stops,
			Stop{Color: slice.Color, Percent: cum},
			Stop{Color: geo.Color(idx + 1), Percent: cum},
		)
	}
	return chart
}

// Gradient renders the stops as a CSS conic-gradient value, e.g.
// "conic-gradient(purple 0%, purple 33%, blue 33%, blue 100%)".
func (c Chart) Gradient() string {
	parts := make([]string, len(c.Stops))
	for i, s := range c.Stops {
		parts[i] = fmt.Sprintf("%s %d%%", s.Color, s.Percent)
	}
	return "conic-gradient(" + strings.Join(parts, ", ") + ")"
}
