// Package mapsvc owns the map widget state the controller drives: the
// viewport, the single marker slot and click subscriptions. Geocoding and
// device position are delegated to a Geocoder and a Positioner.
package mapsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rubiojr/pinmap/pkg/geo"
	"github.com/rubiojr/pinmap/pkg/locstore"
	"github.com/rubiojr/pinmap/pkg/logger"
)

var (
	ErrMapUnavailable      = errors.New("map unavailable")
	ErrLookupFailed        = errors.New("address lookup failed")
	ErrPositionUnavailable = errors.New("position unavailable")
)

const (
	DefaultTileURL = "https://cartodb-basemaps-a.global.ssl.fastly.net/rastertiles/voyager/%d/%d/%d@2x.png"
	DefaultZoom    = 10
)

// Geocoder resolves free text to a position and a position to an address.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (locstore.Geo, error)
	Reverse(ctx context.Context, c geo.Coords) (string, error)
}

// Positioner reports the device position.
type Positioner interface {
	Position(ctx context.Context) (geo.Coords, error)
}

// Viewport is what the widget currently shows.
type Viewport struct {
	Center geo.Coords `json:"center"`
	Zoom   int        `json:"zoom"`
}

// Marker is the single pin on the map.
type Marker struct {
	LocationID string     `json:"locationId"`
	Title      string     `json:"title"`
	Coords     geo.Coords `json:"coords"`
}

// Config holds widget settings.
type Config struct {
	TileURL string
	Center  geo.Coords
	Zoom    int
}

// Map is safe for concurrent use.
type Map struct {
	geocoder   Geocoder
	positioner Positioner

	mu       sync.RWMutex
	tileURL  string
	ready    bool
	view     Viewport
	marker   *Marker
	handlers []func(locstore.Geo)
}

// New returns an uninitialized map; call Init before subscribing to clicks.
func New(cfg Config, g Geocoder, p Positioner) *Map {
	zoom := cfg.Zoom
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	tileURL := cfg.TileURL
	if tileURL == "" {
		tileURL = DefaultTileURL
	}
	return &Map{
		geocoder:   g,
		positioner: p,
		tileURL:    tileURL,
		view:       Viewport{Center: cfg.Center, Zoom: zoom},
	}
}

// Init validates the widget configuration and marks the map ready.
func (m *Map) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrMapUnavailable, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if strings.Count(m.tileURL, "%d") != 3 {
		return fmt.Errorf("%w: tile url %q needs three %%d placeholders", ErrMapUnavailable, m.tileURL)
	}
	m.ready = true
	logger.Debug("map: ready center=%s zoom=%d", m.view.Center, m.view.Zoom)
	return nil
}

// Ready reports whether Init succeeded.
func (m *Map) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ready
}

// TileURL expands the tile template for z/x/y.
func (m *Map) TileURL(z, x, y int) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf(m.tileURL, z, x, y)
}

// PanTo centers the map on c. A zoom of zero keeps the current zoom.
func (m *Map) PanTo(c geo.Coords, zoom int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.view.Center = c
	if zoom > 0 {
		m.view.Zoom = zoom
	}
}

// View returns the current viewport.
func (m *Map) View() Viewport {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.view
}

// SetMarker replaces the marker with one for loc; nil clears it.
func (m *Map) SetMarker(loc *locstore.Location) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loc == nil {
		m.marker = nil
		return
	}
	m.marker = &Marker{LocationID: loc.ID, Title: loc.Name, Coords: loc.Geo.Coords()}
}

// Marker returns a copy of the current marker, or nil.
func (m *Map) Marker() *Marker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.marker == nil {
		return nil
	}
	mk := *m.marker
	return &mk
}

// OnClick subscribes h to map clicks.
func (m *Map) OnClick(h func(locstore.Geo)) {
	m.mu.Lock()
	m.handlers = append(m.handlers, h)
	m.mu.Unlock()
}

// Click delivers a click at g to every subscriber. Clicks on a map that
// never initialized are dropped.
func (m *Map) Click(g locstore.Geo) {
	m.mu.RLock()
	ready := m.ready
	handlers := append([]func(locstore.Geo){}, m.handlers...)
	m.mu.RUnlock()
	if !ready {
		logger.Debug("map: click at %s ignored, map not ready", g.Coords())
		return
	}
	for _, h := range handlers {
		h(g)
	}
}

// Geocode resolves text to a position.
func (m *Map) Geocode(ctx context.Context, text string) (locstore.Geo, error) {
	if m.geocoder == nil || strings.TrimSpace(text) == "" {
		return locstore.Geo{}, ErrLookupFailed
	}
	g, err := m.geocoder.Geocode(ctx, text)
	if err != nil {
		return locstore.Geo{}, wrapAs(ErrLookupFailed, err)
	}
	return g, nil
}

// ReverseGeocode resolves c to a display address.
func (m *Map) ReverseGeocode(ctx context.Context, c geo.Coords) (string, error) {
	if m.geocoder == nil {
		return "", ErrLookupFailed
	}
	addr, err := m.geocoder.Reverse(ctx, c)
	if err != nil {
		return "", wrapAs(ErrLookupFailed, err)
	}
	return addr, nil
}

// UserPosition asks the positioner for the device position.
func (m *Map) UserPosition(ctx context.Context) (geo.Coords, error) {
	if m.positioner == nil {
		return geo.Coords{}, ErrPositionUnavailable
	}
	c, err := m.positioner.Position(ctx)
	if err != nil {
		return geo.Coords{}, wrapAs(ErrPositionUnavailable, err)
	}
	return c, nil
}

func wrapAs(sentinel, err error) error {
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
