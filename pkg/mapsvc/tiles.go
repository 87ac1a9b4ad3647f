package mapsvc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/rubiojr/pinmap/pkg/logger"
)

const (
	DefaultTileTTL     = time.Hour
	DefaultTileEntries = 20000
	tileUserAgent      = "pinmap tile proxy/1.0"
)

// TileKey addresses one map tile.
type TileKey struct {
	Z, X, Y int
}

func (k TileKey) String() string {
	return fmt.Sprintf("%d/%d/%d", k.Z, k.X, k.Y)
}

// TileConfig configures a TileProxy. Zero values pick defaults; an empty
// DiskDir disables the disk tier.
type TileConfig struct {
	Upstream   string
	DiskDir    string
	DiskTTL    time.Duration
	MemTTL     time.Duration
	MaxEntries int
	Client     *http.Client
}

// TileStats are the proxy counters.
type TileStats struct {
	MemoryEntries int    `json:"memory_cache_entries"`
	Hits          uint64 `json:"cache_hits"`
	DiskHits      uint64 `json:"cache_disk_hits"`
	Misses        uint64 `json:"cache_misses"`
	Shared        uint64 `json:"cache_wait_hit"`
	Stored        uint64 `json:"tiles_stored"`
	Errors        uint64 `json:"errors"`
	DiskDir       string `json:"disk_cache_dir"`
}

// TileProxy fetches tiles from the upstream template with a memory tier,
// an optional disk tier and one upstream request per tile at a time.
type TileProxy struct {
	upstream string
	diskDir  string
	diskTTL  time.Duration
	client   *http.Client
	mem      *expirable.LRU[TileKey, []byte]
	group    singleflight.Group

	hits, diskHits, misses, shared, stored, errors atomic.Uint64
}

func NewTileProxy(cfg TileConfig) *TileProxy {
	if cfg.Upstream == "" {
		cfg.Upstream = DefaultTileURL
	}
	if cfg.MemTTL <= 0 {
		cfg.MemTTL = DefaultTileTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultTileEntries
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 12 * time.Second}
	}
	if cfg.DiskDir != "" {
		if err := os.MkdirAll(cfg.DiskDir, 0o755); err != nil {
			logger.Error("tile cache dir %s: %v", cfg.DiskDir, err)
			cfg.DiskDir = ""
		}
	}
	return &TileProxy{
		upstream: cfg.Upstream,
		diskDir:  cfg.DiskDir,
		diskTTL:  cfg.DiskTTL,
		client:   cfg.Client,
		mem:      expirable.NewLRU[TileKey, []byte](cfg.MaxEntries, nil, cfg.MemTTL),
	}
}

// Tile returns the PNG bytes for k.
func (p *TileProxy) Tile(ctx context.Context, k TileKey) ([]byte, error) {
	if k.Z < 0 || k.X < 0 || k.Y < 0 {
		return nil, fmt.Errorf("invalid tile %s", k)
	}
	if data, ok := p.mem.Get(k); ok {
		p.hits.Add(1)
		logger.Debug("TILE mem-hit %s", k)
		return data, nil
	}
	if data, ok := p.readDisk(k); ok {
		p.hits.Add(1)
		p.diskHits.Add(1)
		p.mem.Add(k, data)
		return data, nil
	}

	v, err, shared := p.group.Do(k.String(), func() (any, error) {
		p.misses.Add(1)
		data, err := p.fetch(ctx, k)
		if err != nil {
			return nil, err
		}
		p.mem.Add(k, data)
		p.writeDisk(k, data)
		return data, nil
	})
	if err != nil {
		p.errors.Add(1)
		logger.Debug("TILE fetch-error %s: %v", k, err)
		return nil, err
	}
	if shared {
		p.shared.Add(1)
	}
	return v.([]byte), nil
}

func (p *TileProxy) fetch(ctx context.Context, k TileKey) ([]byte, error) {
	upURL := fmt.Sprintf(p.upstream, k.Z, k.X, k.Y)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, upURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", tileUserAgent)
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (p *TileProxy) diskPath(k TileKey) string {
	return filepath.Join(p.diskDir, strconv.Itoa(k.Z), strconv.Itoa(k.X), strconv.Itoa(k.Y)+".png")
}

func (p *TileProxy) readDisk(k TileKey) ([]byte, bool) {
	if p.diskDir == "" {
		return nil, false
	}
	path := p.diskPath(k)
	fi, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	// zero disk TTL never expires
	if p.diskTTL > 0 && time.Since(fi.ModTime()) > p.diskTTL {
		logger.Debug("TILE disk-expired %s", k)
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

func (p *TileProxy) writeDisk(k TileKey, data []byte) {
	if p.diskDir == "" {
		return
	}
	final := p.diskPath(k)
	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return
	}
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	if err := os.Rename(tmp, final); err == nil {
		p.stored.Add(1)
	}
}

func (p *TileProxy) Stats() TileStats {
	return TileStats{
		MemoryEntries: p.mem.Len(),
		Hits:          p.hits.Load(),
		DiskHits:      p.diskHits.Load(),
		Misses:        p.misses.Load(),
		Shared:        p.shared.Load(),
		Stored:        p.stored.Load(),
		Errors:        p.errors.Load(),
		DiskDir:       p.diskDir,
	}
}
