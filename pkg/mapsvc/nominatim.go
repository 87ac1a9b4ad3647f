package mapsvc

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/muesli/gominatim"
	"github.com/rubiojr/pinmap/pkg/geo"
	"github.com/rubiojr/pinmap/pkg/locstore"
	"github.com/rubiojr/pinmap/pkg/logger"
	_ "modernc.org/sqlite"
)

const (
	DefaultNominatimServer = "https://nominatim.openstreetmap.org"

	nominatimMinInterval = 400 * time.Millisecond
	memCacheEntries      = 512
	// building-level detail for reverse lookups
	reverseZoom          = 18
)

var errNoResult = errors.New("no result")

// gominatim keeps its server in a package global.
var serverMu sync.Mutex

// NominatimConfig configures the geocoder. An empty CachePath disables the
// persistent cache; the in-memory tier is always on.
type NominatimConfig struct {
	Server    string
	Retries   int
	CachePath string
}

// Nominatim geocodes through an OSM Nominatim server with a two-tier
// cache: an LRU in memory and an indefinite SQLite table on disk. Only
// successful lookups are cached.
type Nominatim struct {
	server  string
	retries int

	mem *lru.Cache[string, locstore.Geo]
	db  *sql.DB

	throttleMu sync.Mutex
	last       time.Time
	interval   time.Duration

	search  func(q string) ([]gominatim.SearchResult, error)
	reverse func(lat, lng string) (*gominatim.ReverseResult, error)
}

var _ Geocoder = (*Nominatim)(nil)

// NewNominatim builds the geocoder and opens its disk cache. A cache that
// cannot be opened is logged and skipped.
func NewNominatim(cfg NominatimConfig) (*Nominatim, error) {
	mem, err := lru.New[string, locstore.Geo](memCacheEntries)
	if err != nil {
		return nil, err
	}
	server := strings.TrimSpace(cfg.Server)
	if server == "" {
		server = DefaultNominatimServer
	}
	retries := cfg.Retries
	if retries < 0 || retries > 5 {
		retries = 1
	}
	n := &Nominatim{
		server:   server,
		retries:  retries,
		mem:      mem,
		interval: nominatimMinInterval,
	}
	n.search = n.remoteSearch
	n.reverse = n.remoteReverse
	if cfg.CachePath != "" {
		db, err := openGeocodeCache(cfg.CachePath)
		if err != nil {
			logger.Error("geocode cache open failed: %v", err)
		} else {
			n.db = db
		}
	}
	return n, nil
}

// Close releases the disk cache.
func (n *Nominatim) Close() error {
	if n.db == nil {
		return nil
	}
	return n.db.Close()
}

func openGeocodeCache(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS geocode_cache (
		query TEXT PRIMARY KEY,
		json  TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("geocode cache schema: %w", err)
	}
	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_geocode_cache_fetched_at ON geocode_cache(fetched_at)`)
	return db, nil
}

// Geocode returns the best match for text.
func (n *Nominatim) Geocode(ctx context.Context, text string) (locstore.Geo, error) {
	q := strings.TrimSpace(text)
	if q == "" {
		return locstore.Geo{}, ErrLookupFailed
	}
	key := "search:" + strings.ToLower(q)
	return n.cached(ctx, key, func() (locstore.Geo, error) {
		res, err := n.search(q)
		if err != nil {
			return locstore.Geo{}, err
		}
		if len(res) == 0 {
			return locstore.Geo{}, errNoResult
		}
		return resultGeo(res[0])
	})
}

// Reverse returns the display address nearest to c.
func (n *Nominatim) Reverse(ctx context.Context, c geo.Coords) (string, error) {
	lat := strconv.FormatFloat(c.Lat, 'f', 6, 64)
	lng := strconv.FormatFloat(c.Lng, 'f', 6, 64)
	key := "reverse:" + lat + "," + lng
	g, err := n.cached(ctx, key, func() (locstore.Geo, error) {
		res, err := n.reverse(lat, lng)
		if err != nil {
			return locstore.Geo{}, err
		}
		if res == nil || res.DisplayName == "" {
			return locstore.Geo{}, errNoResult
		}
		return locstore.Geo{Lat: c.Lat, Lng: c.Lng, Address: res.DisplayName}, nil
	})
	if err != nil {
		return "", err
	}
	return g.Address, nil
}

func (n *Nominatim) cached(ctx context.Context, key string, fetch func() (locstore.Geo, error)) (locstore.Geo, error) {
	if g, ok := n.mem.Get(key); ok {
		logger.Debug("geocode mem-hit %q", key)
		return g, nil
	}
	if g, ok := n.diskGet(key); ok {
		logger.Debug("geocode disk-hit %q", key)
		n.mem.Add(key, g)
		return g, nil
	}

	attempts := n.retries + 1
	var (
		g   locstore.Geo
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := n.throttle(ctx); err != nil {
			return locstore.Geo{}, err
		}
		g, err = fetch()
		if err == nil {
			if attempt > 1 {
				logger.Info("nominatim recovered after %d attempt(s) for %q", attempt, key)
			}
			break
		}
		if errors.Is(err, errNoResult) {
			return locstore.Geo{}, fmt.Errorf("%w: %s", ErrLookupFailed, key)
		}
		if !transient(err) || attempt == attempts {
			logger.Error("nominatim error (attempt %d/%d, key=%q): %v", attempt, attempts, key, err)
			return locstore.Geo{}, fmt.Errorf("%w: %v", ErrLookupFailed, err)
		}
		logger.Error("transient nominatim error (attempt %d/%d, will retry) key=%q err=%v", attempt, attempts, key, err)
	}

	n.mem.Add(key, g)
	n.diskPut(key, g)
	return g, nil
}

func (n *Nominatim) throttle(ctx context.Context) error {
	n.throttleMu.Lock()
	defer n.throttleMu.Unlock()
	if wait := n.interval - time.Since(n.last); wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.last = time.Now()
	return nil
}

func (n *Nominatim) diskGet(key string) (locstore.Geo, bool) {
	if n.db == nil {
		return locstore.Geo{}, false
	}
	var raw string
	if err := n.db.QueryRow(`SELECT json FROM geocode_cache WHERE query = ?`, key).Scan(&raw); err != nil {
		return locstore.Geo{}, false
	}
	var g locstore.Geo
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		logger.Error("geocode cache unmarshal failed for %q: %v (ignoring)", key, err)
		return locstore.Geo{}, false
	}
	return g, true
}

func (n *Nominatim) diskPut(key string, g locstore.Geo) {
	if n.db == nil {
		return
	}
	b, _ := json.Marshal(g)
	if _, err := n.db.Exec(`INSERT OR REPLACE INTO geocode_cache(query, json, fetched_at) VALUES(?,?,CURRENT_TIMESTAMP)`, key, string(b)); err != nil {
		logger.Debug("geocode cache write failed for %q: %v", key, err)
	}
}

func (n *Nominatim) useServer() {
	serverMu.Lock()
	gominatim.SetServer(n.server)
}

func (n *Nominatim) remoteSearch(q string) ([]gominatim.SearchResult, error) {
	n.useServer()
	defer serverMu.Unlock()
	qry := gominatim.SearchQuery{Q: q, Limit: 1}
	return qry.Get()
}

func (n *Nominatim) remoteReverse(lat, lng string) (*gominatim.ReverseResult, error) {
	n.useServer()
	defer serverMu.Unlock()
	qry := new(gominatim.ReverseQuery)
	qry.Lat = lat
	qry.Lon = lng
	qry.Zoom = reverseZoom
	return qry.Get()
}

func resultGeo(r gominatim.SearchResult) (locstore.Geo, error) {
	lat, err1 := strconv.ParseFloat(r.Lat, 64)
	lng, err2 := strconv.ParseFloat(r.Lon, 64)
	if err1 != nil || err2 != nil {
		return locstore.Geo{}, fmt.Errorf("bad coordinates %q,%q", r.Lat, r.Lon)
	}
	return locstore.Geo{Lat: lat, Lng: lng, Address: r.DisplayName}, nil
}

// transient matches truncated responses seen from busy public servers.
func transient(err error) bool {
	s := err.Error()
	return strings.Contains(s, "unexpected end of JSON") || strings.Contains(s, "EOF")
}
