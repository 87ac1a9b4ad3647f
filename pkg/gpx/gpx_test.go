package gpx

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rubiojr/pinmap/pkg/locstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test" xmlns="http://www.topografix.com/GPX/1/1">
  <wpt lat="48.210000" lon="16.360000">
    <time>2024-05-01T14:00:00+02:00</time>
    <name>Cafe Central</name>
    <desc>Herrengasse 14</desc>
    <type>rate:4</type>
  </wpt>
  <wpt lat="40.416775" lon="-3.703790">
    <name>Puerta del Sol</name>
  </wpt>
  <wpt lat="40.416775" lon="-3.703790">
    <name>Puerta del Sol</name>
  </wpt>
  <wpt lat="1" lon="1">
    <name>Broken</name>
    <type>rate:9</type>
  </wpt>
</gpx>
`

func TestDecode(t *testing.T) {
	wps, err := Decode(strings.NewReader(sampleGPX))
	require.NoError(t, err)
	require.Len(t, wps, 4)
	assert.Equal(t, "2024-05-01T12:00:00Z", wps[0].Time)

	l := wps[0].Location()
	assert.Equal(t, "Cafe Central", l.Name)
	assert.Equal(t, 4, l.Rate)
	assert.Equal(t, locstore.Geo{Lat: 48.21, Lng: 16.36, Address: "Herrengasse 14"}, l.Geo)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), l.CreatedAt)

	assert.Equal(t, DefaultRate, wps[1].Location().Rate)
	assert.Equal(t, 9, wps[3].Location().Rate)
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode(strings.NewReader("<gpx><wpt"))
	assert.Error(t, err)
}

func TestEncodeDecode(t *testing.T) {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()
	locs := []locstore.Location{
		{ID: "a", Name: "Fish & Chips <best>", Rate: 5, Geo: locstore.Geo{Lat: 51.5, Lng: -0.12, Address: "London"}, CreatedAt: created},
		{ID: "b", Name: "Bench", Rate: 2, Geo: locstore.Geo{Lat: 1, Lng: 2}},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, locs))
	assert.Contains(t, buf.String(), "Fish &amp; Chips &lt;best&gt;")

	wps, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, wps, 2)
	got := wps[0].Location()
	assert.Equal(t, locs[0].Name, got.Name)
	assert.Equal(t, locs[0].Rate, got.Rate)
	assert.Equal(t, locs[0].Geo, got.Geo)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, "rate:2", wps[1].Type)
	assert.Empty(t, wps[1].Time)
}

func TestDedupe(t *testing.T) {
	in := []Waypoint{
		{Name: "A", Lat: 1.0000001, Lon: 2},
		{Name: "A", Lat: 1.0000002, Lon: 2},
		{Name: "B", Lat: 1, Lon: 2},
		{Name: "A", Lat: 1.1, Lon: 2},
	}
	out := Dedupe(in)
	require.Len(t, out, 3)
	assert.Equal(t, in[0], out[0])
	assert.Equal(t, "B", out[1].Name)
	assert.Len(t, in, 4)
}

func TestReadPath(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "trips")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "one.gpx"), []byte(sampleGPX), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(sub, "two.GPX"), []byte(sampleGPX), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.gpx"), []byte("<gpx"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))

	wps, err := ReadPath(dir, false)
	require.NoError(t, err)
	assert.Len(t, wps, 4)

	wps, err = ReadPath(dir, true)
	require.NoError(t, err)
	assert.Len(t, wps, 8)

	wps, err = ReadPath(filepath.Join(dir, "one.gpx"), false)
	require.NoError(t, err)
	assert.Len(t, wps, 4)
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.gpx")
	require.NoError(t, WriteFile(path, []locstore.Location{{Name: "X", Rate: 1}}))
	wps, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, wps, 1)
	assert.NoFileExists(t, path+".tmp")
}

func TestImport(t *testing.T) {
	s, err := locstore.OpenSQLite(filepath.Join(t.TempDir(), "locations.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	wps, err := Decode(strings.NewReader(sampleGPX))
	require.NoError(t, err)

	res, err := Import(ctx, s, wps)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Added: 2, Skipped: 1}, res)

	res, err = Import(ctx, s, wps)
	require.NoError(t, err)
	assert.Equal(t, ImportResult{Duplicate: 2, Skipped: 1}, res)

	locs, err := s.Query(ctx, locstore.Filter{}, locstore.Sort{})
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "Cafe Central", locs[0].Name)
	assert.Equal(t, DefaultRate, locs[1].Rate)
}
