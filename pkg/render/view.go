// Package render projects locations, selection and user position into the
// view model the UI draws, and provides Page, an in-memory sink the
// controller pushes into.
package render

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rubiojr/pinmap/pkg/geo"
	"github.com/rubiojr/pinmap/pkg/locstore"
)

const EmptyList = "No locs to show"

// ListItem is one entry of the location list.
type ListItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Rate     int    `json:"rate"`
	Stars    string `json:"stars"`
	Distance string `json:"distance,omitempty"`
	Created  string `json:"created"`
	Updated  string `json:"updated,omitempty"`
	Active   bool   `json:"active"`
}

// Times renders the muted "Created: ... | Updated: ..." line.
func (it ListItem) Times() string {
	s := "Created: " + it.Created
	if it.Updated != "" {
		s += " | Updated: " + it.Updated
	}
	return s
}

// Detail is the selected-location panel.
type Detail struct {
	Visible  bool   `json:"visible"`
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Address  string `json:"address,omitempty"`
	Stars    string `json:"stars,omitempty"`
	Distance string `json:"distance,omitempty"`
	Link     string `json:"link,omitempty"`
}

// Stars renders a rating as star glyphs.
func Stars(rate int) string {
	if rate <= 0 {
		return ""
	}
	return strings.Repeat("★", rate)
}

// Items projects locs into list entries, marking selectedID active and
// adding distances when userPos is known.
func Items(locs []locstore.Location, selectedID string, userPos *geo.Coords, now time.Time) []ListItem {
	items := make([]ListItem, 0, len(locs))
	for _, l := range locs {
		it := ListItem{
			ID:      l.ID,
			Name:    l.Name,
			Rate:    l.Rate,
			Stars:   Stars(l.Rate),
			Created: geo.ElapsedTime(l.CreatedAt, now),
			Active:  selectedID != "" && l.ID == selectedID,
		}
		if l.UpdatedAt != l.CreatedAt {
			it.Updated = geo.ElapsedTime(l.UpdatedAt, now)
		}
		if userPos != nil {
			it.Distance = geo.FormatDistance(*userPos, l.Geo.Coords())
		}
		items = append(items, it)
	}
	return items
}

// DetailFor projects the selected location into the detail panel.
func DetailFor(l locstore.Location, userPos *geo.Coords, link string) Detail {
	d := Detail{
		Visible: true,
		ID:      l.ID,
		Name:    l.Name,
		Address: l.Geo.Address,
		Stars:   Stars(l.Rate),
		Link:    link,
	}
	if userPos != nil {
		d.Distance = geo.FormatDistance(*userPos, l.Geo.Coords())
	}
	return d
}

// Debug is the indented JSON dump shown under the list.
func Debug(locs []locstore.Location) string {
	if locs == nil {
		locs = []locstore.Location{}
	}
	b, err := json.MarshalIndent(locs, "", "  ")
	if err != nil {
		return err.Error()
	}
	return string(b)
}
