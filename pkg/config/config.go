// Package config loads the optional YAML configuration file and applies
// environment overrides on top of it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FileName = "config.yaml"

	DefaultAddr       = "127.0.0.1:43098"
	DefaultDriver     = DriverSQLite
	DefaultDBFile     = "locations.sqlite"
	DefaultMongoDB    = "pinmap"
	DefaultCollection = "locations"
	DefaultTileURL    = "https://cartodb-basemaps-a.global.ssl.fastly.net/rastertiles/voyager/%d/%d/%d@2x.png"
	DefaultNominatim  = "https://nominatim.openstreetmap.org"
	DefaultRetries    = 2
	DefaultUserZoom   = 15
	DefaultNotify     = 3 * time.Second

	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Environment overrides.
const (
	EnvNominatimServer  = "PINMAP_NOMINATIM_SERVER"
	EnvNominatimRetries = "PINMAP_NOMINATIM_RETRIES"
	EnvStore            = "PINMAP_STORE"
	EnvMongoURI         = "PINMAP_MONGO_URI"
	EnvTileURL          = "PINMAP_TILE_URL"
)

type Config struct {
	Addr     string          `yaml:"addr"`
	Store    StoreConfig     `yaml:"store"`
	Map      MapConfig       `yaml:"map"`
	Position *PositionConfig `yaml:"position"`
	Notify   NotifyConfig    `yaml:"notify"`
}

type StoreConfig struct {
	Driver        string `yaml:"driver"`
	Path          string `yaml:"path"`
	MongoURI      string `yaml:"mongo_uri"`
	MongoDatabase string `yaml:"mongo_database"`
	Collection    string `yaml:"collection"`
}

type MapConfig struct {
	TileURL          string `yaml:"tile_url"`
	NominatimServer  string `yaml:"nominatim_server"`
	NominatimRetries int    `yaml:"nominatim_retries"`
	UserZoom         int    `yaml:"user_zoom"`
}

// PositionConfig pins the user position instead of asking GeoClue.
type PositionConfig struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

type NotifyConfig struct {
	Delay time.Duration `yaml:"delay"`
}

// Default returns the built-in configuration. Store.Path is left empty
// until Resolve knows the data directory.
func Default() Config {
	return Config{
		Addr: DefaultAddr,
		Store: StoreConfig{
			Driver:        DefaultDriver,
			MongoDatabase: DefaultMongoDB,
			Collection:    DefaultCollection,
		},
		Map: MapConfig{
			TileURL:          DefaultTileURL,
			NominatimServer:  DefaultNominatim,
			NominatimRetries: DefaultRetries,
			UserZoom:         DefaultUserZoom,
		},
		Notify: NotifyConfig{Delay: DefaultNotify},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(content))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parse config file %q: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := strings.TrimSpace(getenv(EnvNominatimServer)); v != "" {
		c.Map.NominatimServer = v
	}
	if v := strings.TrimSpace(getenv(EnvNominatimRetries)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvNominatimRetries, err)
		}
		c.Map.NominatimRetries = n
	}
	if v := strings.TrimSpace(getenv(EnvStore)); v != "" {
		c.Store.Driver = v
	}
	if v := strings.TrimSpace(getenv(EnvMongoURI)); v != "" {
		c.Store.MongoURI = v
	}
	if v := strings.TrimSpace(getenv(EnvTileURL)); v != "" {
		c.Map.TileURL = v
	}
	return nil
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
	case DriverMongo:
		if c.Store.MongoURI == "" {
			return errors.New("store.mongo_uri is required for the mongo driver")
		}
	default:
		return fmt.Errorf("unknown store.driver %q, expected %s or %s", c.Store.Driver, DriverSQLite, DriverMongo)
	}
	if strings.Count(c.Map.TileURL, "%d") != 3 {
		return fmt.Errorf("map.tile_url %q needs three %%d placeholders", c.Map.TileURL)
	}
	if c.Map.NominatimRetries < 0 {
		return fmt.Errorf("invalid map.nominatim_retries %d, expected >= 0", c.Map.NominatimRetries)
	}
	if c.Map.UserZoom < 1 || c.Map.UserZoom > 19 {
		return fmt.Errorf("invalid map.user_zoom %d, expected 1-19", c.Map.UserZoom)
	}
	if c.Notify.Delay <= 0 {
		return fmt.Errorf("invalid notify.delay %s", c.Notify.Delay)
	}
	return nil
}

// Resolve fills paths that depend on the data directory.
func (c *Config) Resolve(dataDir string) {
	if c.Store.Path == "" {
		c.Store.Path = filepath.Join(dataDir, DefaultDBFile)
	}
}
