package mapsvc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rubiojr/pinmap/pkg/geo"
	"github.com/rubiojr/pinmap/pkg/logger"
)

/*
GeoClue2 positioner.

The first Position call ensures a matching .desktop file exists (GeoClue
refuses clients whose DesktopId has no X-Geoclue-2-Client=true entry),
then starts a goroutine that creates a client on the system bus and keeps
the last fix fresh from PropertiesChanged signals. Position waits for the
first fix until the caller's context expires.
*/

const (
	geoService    = "org.freedesktop.GeoClue2"
	managerPath   = dbus.ObjectPath("/org/freedesktop/GeoClue2/Manager")
	managerIface  = "org.freedesktop.GeoClue2.Manager"
	clientIface   = "org.freedesktop.GeoClue2.Client"
	locationIface = "org.freedesktop.GeoClue2.Location"
	propsIface    = "org.freedesktop.DBus.Properties"
)

// Fix is the last known device position.
type Fix struct {
	Coords    geo.Coords `json:"coords"`
	Accuracy  float64    `json:"accuracy_m,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// GeoClue reports the device position via GeoClue2 on D-Bus.
type GeoClue struct {
	desktopID string

	startOnce sync.Once
	cancel    context.CancelFunc

	mu    sync.RWMutex
	fix   Fix
	valid bool
	ready chan struct{}
}

var _ Positioner = (*GeoClue)(nil)

func NewGeoClue(desktopID string) *GeoClue {
	return &GeoClue{desktopID: desktopID, ready: make(chan struct{})}
}

// Position returns the current fix, starting tracking on first use.
func (g *GeoClue) Position(ctx context.Context) (geo.Coords, error) {
	if fix, ok := g.Current(); ok {
		return fix.Coords, nil
	}
	g.startOnce.Do(g.start)
	select {
	case <-g.ready:
		fix, _ := g.Current()
		return fix.Coords, nil
	case <-ctx.Done():
		return geo.Coords{}, fmt.Errorf("%w: %v", ErrPositionUnavailable, ctx.Err())
	}
}

// Current returns the last fix without blocking.
func (g *GeoClue) Current() (Fix, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.fix, g.valid
}

// Close stops the tracking loop.
func (g *GeoClue) Close() {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (g *GeoClue) start() {
	if err := ensureDesktopFile(g.desktopID); err != nil {
		logger.Error("location: failed to ensure desktop file: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	g.mu.Lock()
	g.cancel = cancel
	g.mu.Unlock()
	go g.run(ctx)
}

func (g *GeoClue) store(fix Fix) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.fix = fix
	if !g.valid {
		g.valid = true
		close(g.ready)
	}
}

// ensureDesktopFile writes a minimal desktop file if it does not already exist.
func ensureDesktopFile(desktopID string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}
	appsDir := filepath.Join(home, ".local", "share", "applications")
	if err := os.MkdirAll(appsDir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(appsDir, desktopID)
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	content := `[Desktop Entry]
Type=Application
Name=PinMap
Comment=Location bookmarks (GeoClue client)
Exec=pinmap serve
Terminal=false
Categories=Utility;
X-Geoclue-2-Client=true
X-Geoclue-2-Access-Fine=true
`
	return os.WriteFile(dest, []byte(content), 0o644)
}

type geoClient struct {
	path dbus.ObjectPath
	bus  *dbus.Conn
}

// run keeps trying to establish location updates until ctx is cancelled.
func (g *GeoClue) run(ctx context.Context) {
	const (
		maxInitialRetries = 5
		retryBaseDelay    = 2 * time.Second
		requestedAccuracy = uint32(5)  // exact
		distanceThreshold = uint32(25) // meters between updates
		timeThreshold     = uint32(5)  // seconds between updates
	)

	var attempt int
	for {
		if ctx.Err() != nil {
			return
		}
		err := func() error {
			cl, err := newGeoClueClient(g.desktopID, requestedAccuracy, distanceThreshold, timeThreshold)
			if err != nil {
				return err
			}
			defer cl.close()
			if err := cl.start(); err != nil {
				return err
			}
			if lp, err := cl.locationPath(); err == nil && lp != "" {
				g.readLocation(cl, lp)
			}
			return cl.signalLoop(ctx, g)
		}()
		if err == nil {
			return
		}
		attempt++
		delay := 30 * time.Second
		if attempt <= maxInitialRetries {
			delay = retryBaseDelay * time.Duration(attempt)
		}
		logger.Error("location: retrying after error (%v), attempt=%d delay=%s", err, attempt, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

func newGeoClueClient(desktopID string, acc, dist, sec uint32) (*geoClient, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	manager := bus.Object(geoService, managerPath)

	var clientPath dbus.ObjectPath
	if call := manager.Call(managerIface+".CreateClient", 0); call.Err != nil {
		return nil, call.Err
	} else if err := call.Store(&clientPath); err != nil {
		return nil, err
	}
	clientObj := bus.Object(geoService, clientPath)

	setProp := func(name string, val interface{}) error {
		return clientObj.Call(propsIface+".Set", 0, clientIface, name, dbus.MakeVariant(val)).Err
	}
	if err := setProp("DesktopId", desktopID); err != nil {
		return nil, fmt.Errorf("set DesktopId: %w", err)
	}
	if err := setProp("RequestedAccuracyLevel", acc); err != nil {
		return nil, fmt.Errorf("set accuracy: %w", err)
	}
	_ = setProp("DistanceThreshold", dist)
	_ = setProp("TimeThreshold", sec)

	return &geoClient{path: clientPath, bus: bus}, nil
}

func (c *geoClient) start() error {
	return c.bus.Object(geoService, c.path).Call(clientIface+".Start", 0).Err
}

func (c *geoClient) close() {
	_ = c.bus.Object(geoService, c.path).Call(clientIface+".Stop", 0)
	c.bus.Close()
}

func (c *geoClient) locationPath() (dbus.ObjectPath, error) {
	var variant dbus.Variant
	call := c.bus.Object(geoService, c.path).Call(propsIface+".Get", 0, clientIface, "Location")
	if call.Err != nil {
		return "", call.Err
	}
	if err := call.Store(&variant); err != nil {
		return "", err
	}
	lp, _ := variant.Value().(dbus.ObjectPath)
	return lp, nil
}

func (c *geoClient) signalLoop(ctx context.Context, g *GeoClue) error {
	matchRule := fmt.Sprintf("type='signal',interface='%s',path='%s'", propsIface, c.path)
	if call := c.bus.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule); call.Err != nil {
		return call.Err
	}
	sigCh := make(chan *dbus.Signal, 10)
	c.bus.Signal(sigCh)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigCh:
			if sig == nil {
				return errors.New("dbus signal channel closed")
			}
			if sig.Name != propsIface+".PropertiesChanged" || sig.Path != c.path || len(sig.Body) < 2 {
				continue
			}
			changed, ok := sig.Body[1].(map[string]dbus.Variant)
			if !ok {
				continue
			}
			if v, ok := changed["Location"]; ok {
				if lp, ok := v.Value().(dbus.ObjectPath); ok && lp != "" {
					g.readLocation(c, lp)
				}
			}
		}
	}
}

func (g *GeoClue) readLocation(c *geoClient, locPath dbus.ObjectPath) {
	var props map[string]dbus.Variant
	call := c.bus.Object(geoService, locPath).Call(propsIface+".GetAll", 0, locationIface)
	if call.Err != nil {
		return
	}
	if err := call.Store(&props); err != nil {
		return
	}
	getF64 := func(key string) float64 {
		if v, ok := props[key]; ok {
			if f, ok := v.Value().(float64); ok {
				return f
			}
		}
		return 0
	}

	lat, lng := getF64("Latitude"), getF64("Longitude")
	if lat == 0 && lng == 0 {
		return // null island, not a real fix
	}
	g.store(Fix{
		Coords:    geo.Coords{Lat: lat, Lng: lng},
		Accuracy:  getF64("Accuracy"),
		Timestamp: time.Now().UTC(),
	})
}
