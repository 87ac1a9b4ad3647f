// Package gpx converts locations to and from GPX 1.1 waypoints.
//
// A location maps to a <wpt>: name, time (createdAt, RFC3339 UTC), desc
// (address) and type ("rate:N"). Waypoints without a rate import with
// DefaultRate.
package gpx

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rubiojr/pinmap/pkg/locstore"
	"github.com/rubiojr/pinmap/pkg/logger"
)

const (
	DefaultRate = 3
	ratePrefix  = "rate:"

	// keyPrecision is the number of decimals coordinates are rounded to
	// when deciding two waypoints are the same place.
	keyPrecision = 6
)

// Waypoint is a GPX <wpt>.
type Waypoint struct {
	Name string  `xml:"name"`
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Time string  `xml:"time"`
	Desc string  `xml:"desc"`
	Type string  `xml:"type"`
}

type gpxRoot struct {
	Waypoints []Waypoint `xml:"wpt"`
}

// FromLocation builds the waypoint written for l.
func FromLocation(l locstore.Location) Waypoint {
	wp := Waypoint{
		Name: l.Name,
		Lat:  l.Geo.Lat,
		Lon:  l.Geo.Lng,
		Desc: l.Geo.Address,
		Type: ratePrefix + strconv.Itoa(l.Rate),
	}
	if l.CreatedAt > 0 {
		wp.Time = time.UnixMilli(l.CreatedAt).UTC().Format(time.RFC3339)
	}
	return wp
}

// Location converts wp into an unsaved location. A malformed rate becomes
// zero so validation rejects it.
func (wp Waypoint) Location() locstore.Location {
	l := locstore.Location{
		Name: strings.TrimSpace(wp.Name),
		Rate: DefaultRate,
		Geo:  locstore.Geo{Lat: wp.Lat, Lng: wp.Lon, Address: strings.TrimSpace(wp.Desc)},
	}
	if t := strings.TrimSpace(wp.Type); strings.HasPrefix(t, ratePrefix) {
		n, err := strconv.Atoi(strings.TrimPrefix(t, ratePrefix))
		if err != nil {
			n = 0
		}
		l.Rate = n
	}
	if ts, err := time.Parse(time.RFC3339, wp.Time); err == nil {
		l.CreatedAt = ts.UnixMilli()
		l.UpdatedAt = l.CreatedAt
	}
	return l
}

// Encode writes locs as a GPX document.
func Encode(w io.Writer, locs []locstore.Location) error {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<gpx version="1.1" creator="pinmap" xmlns="http://www.topografix.com/GPX/1/1">` + "\n")
	for _, l := range locs {
		wp := FromLocation(l)
		fmt.Fprintf(&b, "  <wpt lat=\"%f\" lon=\"%f\">\n", wp.Lat, wp.Lon)
		if wp.Time != "" {
			fmt.Fprintf(&b, "    <time>%s</time>\n", wp.Time)
		}
		if wp.Name != "" {
			fmt.Fprintf(&b, "    <name>%s</name>\n", escapeXML(wp.Name))
		}
		if wp.Desc != "" {
			fmt.Fprintf(&b, "    <desc>%s</desc>\n", escapeXML(wp.Desc))
		}
		fmt.Fprintf(&b, "    <type>%s</type>\n", wp.Type)
		b.WriteString("  </wpt>\n")
	}
	b.WriteString("</gpx>\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// WriteFile encodes locs to path through a temp file and rename.
func WriteFile(path string, locs []locstore.Location) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := Encode(f, locs); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

// Decode reads the waypoints of a GPX document.
func Decode(r io.Reader) ([]Waypoint, error) {
	var root gpxRoot
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode gpx: %w", err)
	}
	for i := range root.Waypoints {
		if ts := root.Waypoints[i].Time; ts != "" {
			if t, err := time.Parse(time.RFC3339, ts); err == nil {
				root.Waypoints[i].Time = t.UTC().Format(time.RFC3339)
			}
		}
	}
	return root.Waypoints, nil
}

// ReadFile decodes one GPX file.
func ReadFile(path string) ([]Waypoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// ReadPath decodes path, or every *.gpx file under it when it is a
// directory. Unreadable files inside a directory are logged and skipped.
func ReadPath(path string, recursive bool) ([]Waypoint, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return ReadFile(path)
	}
	var all []Waypoint
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if !recursive && p != path {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(d.Name()), ".gpx") {
			return nil
		}
		wps, err := ReadFile(p)
		if err != nil {
			logger.Error("Skipping %s: %v", p, err)
			return nil
		}
		all = append(all, wps...)
		return nil
	})
	return all, err
}

// key identifies a waypoint by name and rounded coordinates.
func key(w Waypoint) string {
	lat := strconv.FormatFloat(roundTo(w.Lat, keyPrecision), 'f', keyPrecision, 64)
	lon := strconv.FormatFloat(roundTo(w.Lon, keyPrecision), 'f', keyPrecision, 64)
	return w.Name + "|" + lat + "|" + lon
}

func roundTo(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

// Dedupe drops repeated waypoints, keeping the first occurrence. The input
// is not modified.
func Dedupe(in []Waypoint) []Waypoint {
	seen := make(map[string]struct{}, len(in))
	out := make([]Waypoint, 0, len(in))
	for _, w := range in {
		k := key(w)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, w)
	}
	return out
}

// ImportResult counts what Import did.
type ImportResult struct {
	Added     int `json:"added"`
	Skipped   int `json:"skipped"`
	Duplicate int `json:"duplicate"`
}

// Import creates a location for each waypoint not already stored.
// Waypoints that fail validation are skipped.
func Import(ctx context.Context, s locstore.Store, wps []Waypoint) (ImportResult, error) {
	var res ImportResult
	existing, err := s.Query(ctx, locstore.Filter{}, locstore.Sort{})
	if err != nil {
		return res, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, l := range existing {
		seen[key(FromLocation(l))] = struct{}{}
	}
	for _, wp := range Dedupe(wps) {
		if _, ok := seen[key(wp)]; ok {
			res.Duplicate++
			continue
		}
		l := wp.Location()
		if _, err := s.Create(ctx, l); err != nil {
			if errors.Is(err, locstore.ErrInvalid) {
				logger.Debug("gpx: skipping %q: %v", wp.Name, err)
				res.Skipped++
				continue
			}
			return res, err
		}
		seen[key(wp)] = struct{}{}
		res.Added++
	}
	return res, nil
}

func escapeXML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
