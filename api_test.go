package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rubiojr/pinmap/pkg/app"
	"github.com/rubiojr/pinmap/pkg/geo"
	"github.com/rubiojr/pinmap/pkg/locstore"
	"github.com/rubiojr/pinmap/pkg/mapsvc"
	"github.com/rubiojr/pinmap/pkg/querystate"
	"github.com/rubiojr/pinmap/pkg/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedGeocoder struct{}

func (fixedGeocoder) Geocode(_ context.Context, text string) (locstore.Geo, error) {
	if text == "nowhere" {
		return locstore.Geo{}, mapsvc.ErrLookupFailed
	}
	return locstore.Geo{Lat: 41.39, Lng: 2.17, Address: "Barcelona"}, nil
}

func (fixedGeocoder) Reverse(context.Context, geo.Coords) (string, error) {
	return "Carrer de Mallorca, Barcelona", nil
}

func newTestAPI(t *testing.T, tileUpstream string) (*api, http.Handler) {
	t.Helper()
	store, err := locstore.OpenSQLite(filepath.Join(t.TempDir(), "locations.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	maps := mapsvc.New(mapsvc.Config{}, fixedGeocoder{}, mapsvc.StaticPosition{Lat: 41.4, Lng: 2.16})
	bridge, err := querystate.NewBridge("http://127.0.0.1:43098/")
	require.NoError(t, err)
	notifier := render.NewNotifier(render.DefaultFlashDelay)
	t.Cleanup(notifier.Stop)
	page := render.NewPage(notifier)
	clip := &app.MemoryClipboard{}
	svc := locstore.NewService(store)
	ctl := app.New(svc, maps, bridge, page, app.Options{Clipboard: clip})
	require.NoError(t, ctl.Handle(context.Background(), app.Start{}))

	a := &api{
		ctl:   ctl,
		svc:   svc,
		page:  page,
		maps:  maps,
		tiles: mapsvc.NewTileProxy(mapsvc.TileConfig{Upstream: tileUpstream}),
		clip:  clip,
	}
	return a, a.routes(false)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodePage(t *testing.T, rec *httptest.ResponseRecorder) pageResponse {
	t.Helper()
	var resp pageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAPIAddLocationFlow(t *testing.T) {
	_, h := newTestAPI(t, "")

	rec := do(t, h, http.MethodPost, "/api/map/click", `{"lat":41.39,"lng":2.16}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodePage(t, rec)
	assert.True(t, resp.Form.Open)
	assert.Equal(t, "Carrer de Mallorca, Barcelona", resp.Form.Name)

	rec = do(t, h, http.MethodPost, "/api/edit", `{"name":"Sagrada Familia","rate":5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodePage(t, rec)
	assert.False(t, resp.Form.Open)
	require.Len(t, resp.Items, 1)
	assert.True(t, resp.Items[0].Active)
	assert.True(t, resp.Detail.Visible)
	assert.Contains(t, resp.URL, "locId="+resp.Items[0].ID)
	require.NotNil(t, resp.Map.Marker)
	assert.Equal(t, resp.Items[0].ID, resp.Map.Marker.LocationID)
	assert.Equal(t, "Added Location (id: "+resp.Items[0].ID+")", resp.Message.Text)

	rec = do(t, h, http.MethodGet, "/api/locs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var locs []locstore.Location
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &locs))
	require.Len(t, locs, 1)
	assert.Equal(t, "Sagrada Familia", locs[0].Name)
	assert.Equal(t, "Carrer de Mallorca, Barcelona", locs[0].Geo.Address)
}

func TestAPIEditValidation(t *testing.T) {
	_, h := newTestAPI(t, "")
	do(t, h, http.MethodPost, "/api/map/click", `{"lat":1,"lng":1}`)

	rec := do(t, h, http.MethodPost, "/api/edit", `{"name":"Spot","rate":0}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.True(t, decodePage(t, rec).Form.Open)

	rec = do(t, h, http.MethodPost, "/api/edit", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/api/edit", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/edit", `{"name":"Spot","rate":3}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAPISelectAndRemove(t *testing.T) {
	a, h := newTestAPI(t, "")
	loc, err := a.svc.Save(context.Background(), locstore.Location{Name: "Bench", Rate: 2, Geo: locstore.Geo{Lat: 1, Lng: 2}})
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/api/locs/"+loc.ID+"/select", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, loc.ID, decodePage(t, rec).Detail.ID)

	rec = do(t, h, http.MethodPost, "/api/locs/"+loc.ID+"/edit", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, render.FormUpdate, decodePage(t, rec).Form.Mode)

	rec = do(t, h, http.MethodDelete, "/api/locs/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Cannot remove location", decodePage(t, rec).Message.Text)

	rec = do(t, h, http.MethodDelete, "/api/locs/"+loc.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodePage(t, rec)
	assert.Empty(t, resp.Items)
	assert.Equal(t, render.EmptyList, resp.EmptyText)
	assert.Nil(t, resp.Map.Marker)
	assert.NotContains(t, resp.URL, "locId")
}

func TestAPIFilterAndSort(t *testing.T) {
	a, h := newTestAPI(t, "")
	ctx := context.Background()
	for i, name := range []string{"Alpha", "Beta", "Gamma"} {
		_, err := a.svc.Save(ctx, locstore.Location{Name: name, Rate: i + 1, Geo: locstore.Geo{Lat: 1, Lng: 1}})
		require.NoError(t, err)
	}

	rec := do(t, h, http.MethodPost, "/api/filter", `{"txt":"a","minRate":"2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodePage(t, rec)
	assert.Contains(t, resp.URL, "txt=a")
	assert.Contains(t, resp.URL, "minRate=2")
	assert.Len(t, resp.Items, 2)

	rec = do(t, h, http.MethodPost, "/api/filter", `{"txt":"","minRate":0}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodePage(t, rec).Items, 3)

	rec = do(t, h, http.MethodPost, "/api/sort", `{"field":"rate","desc":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodePage(t, rec).Items
	require.Len(t, items, 3)
	assert.Equal(t, []int{3, 2, 1}, []int{items[0].Rate, items[1].Rate, items[2].Rate})

	rec = do(t, h, http.MethodPost, "/api/sort", `{"field":"colour"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAPIPositionSearchAndLinks(t *testing.T) {
	_, h := newTestAPI(t, "")

	rec := do(t, h, http.MethodPost, "/api/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodePage(t, rec)
	assert.Equal(t, geo.Coords{Lat: 41.4, Lng: 2.16}, resp.Map.View.Center)
	assert.Equal(t, app.DefaultUserZoom, resp.Map.View.Zoom)

	rec = do(t, h, http.MethodGet, "/api/search?q=barcelona", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, geo.Coords{Lat: 41.39, Lng: 2.17}, decodePage(t, rec).Map.View.Center)

	rec = do(t, h, http.MethodGet, "/api/search?q=nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Cannot lookup address", decodePage(t, rec).Message.Text)

	rec = do(t, h, http.MethodGet, "/api/search", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/copy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var copied struct {
		Text string `json:"text"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &copied))
	assert.Equal(t, "http://127.0.0.1:43098/", copied.Text)

	rec = do(t, h, http.MethodPost, "/api/share", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var shared struct {
		Share app.ShareData `json:"share"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shared))
	assert.Equal(t, "Cool location", shared.Share.Title)
}

func TestAPINavigate(t *testing.T) {
	a, h := newTestAPI(t, "")
	_, err := a.svc.Save(context.Background(), locstore.Location{Name: "Harbour", Rate: 4, Geo: locstore.Geo{Lat: 1, Lng: 1}})
	require.NoError(t, err)

	rec := do(t, h, http.MethodPost, "/api/navigate", `{"url":"http://127.0.0.1:43098/?txt=nothing-matches"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodePage(t, rec)
	assert.Empty(t, resp.Items)
	assert.Equal(t, "nothing-matches", resp.FilterText)
}

func TestAPIExportImport(t *testing.T) {
	a, h := newTestAPI(t, "")
	_, err := a.svc.Save(context.Background(), locstore.Location{Name: "Harbour", Rate: 4, Geo: locstore.Geo{Lat: 1, Lng: 1}})
	require.NoError(t, err)

	rec := do(t, h, http.MethodGet, "/api/export.gpx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/gpx+xml", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "<name>Harbour</name>")
	assert.Contains(t, rec.Body.String(), "<type>rate:4</type>")

	body := `<gpx><wpt lat="2" lon="3"><name>Lighthouse</name><type>rate:5</type></wpt>` +
		`<wpt lat="1.000000" lon="1.000000"><name>Harbour</name></wpt></gpx>`
	rec = do(t, h, http.MethodPost, "/api/import", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"added":1,"skipped":0,"duplicate":1}`, rec.Body.String())
	assert.Len(t, a.page.Snapshot().Items, 2)

	rec = do(t, h, http.MethodPost, "/api/import", "<gpx")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPITiles(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("tile" + r.URL.Path))
	}))
	t.Cleanup(upstream.Close)
	_, h := newTestAPI(t, upstream.URL+"/%d/%d/%d.png")

	rec := do(t, h, http.MethodGet, "/api/tiles/4/8/5.png", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "tile/4/8/5.png", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/tiles/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st mapsvc.TileStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.EqualValues(t, 1, st.Misses)

	rec = do(t, h, http.MethodGet, "/api/tiles/a/8/5.png", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPIVersionAndCORS(t *testing.T) {
	_, h := newTestAPI(t, "")
	rec := do(t, h, http.MethodGet, "/api/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var v map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.NotEmpty(t, v["go_version"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = do(t, h, http.MethodOptions, "/api/edit", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
