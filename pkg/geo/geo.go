// Package geo holds the stateless helpers shared by the store, the map
// service and the render layer: great-circle distance, elapsed-time
// formatting and the chart palette.
package geo

import (
	"fmt"
	"math"
	"time"

	"github.com/dustin/go-humanize"
)

const earthRadiusKm = 6371.0

// Coords is a latitude/longitude pair in decimal degrees.
type Coords struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coords) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Unit selects the distance unit: kilometers, statute miles or nautical miles.
type Unit byte

const (
	Kilometers    Unit = 'K'
	Miles         Unit = 'M'
	NauticalMiles Unit = 'N'
)

// Distance returns the haversine distance between a and b in the given unit.
func Distance(a, b Coords, unit Unit) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dLat := lat2 - lat1
	dLng := (b.Lng - a.Lng) * math.Pi / 180.0

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	km := earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	switch unit {
	case Miles:
		return km * 0.621371
	case NauticalMiles:
		return km * 0.539957
	default:
		return km
	}
}

// FormatDistance renders the distance label shown next to a location.
func FormatDistance(from, to Coords) string {
	return fmt.Sprintf("Distance: %.2f KM.", Distance(from, to, Kilometers))
}

// MillisToTime converts epoch milliseconds to a time.Time.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// ElapsedTime formats ms (epoch milliseconds) relative to now, e.g. "3 minutes ago".
func ElapsedTime(ms int64, now time.Time) string {
	t := MillisToTime(ms)
	if now.Sub(t) < time.Minute && !t.After(now) {
		return "just now"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

var palette = []string{
	"purple", "blue", "red", "orange", "green", "teal", "deeppink", "gold",
}

// Colors returns a copy of the chart palette.
func Colors() []string {
	return append([]string(nil), palette...)
}

// Color returns the palette entry for a bucket index; it cycles past the end.
func Color(idx int) string {
	if idx < 0 {
		idx = -idx
	}
	return palette[idx%len(palette)]
}
