package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rubiojr/pinmap/pkg/app"
	"github.com/rubiojr/pinmap/pkg/gpx"
	"github.com/rubiojr/pinmap/pkg/locstore"
	"github.com/rubiojr/pinmap/pkg/logger"
	"github.com/rubiojr/pinmap/pkg/mapsvc"
	"github.com/rubiojr/pinmap/pkg/render"
)

// maxImportBytes bounds GPX uploads.
const maxImportBytes = 16 << 20

// api exposes the controller over HTTP. Every mutating route answers with
// the resulting page state.
type api struct {
	ctl   *app.Controller
	svc   *locstore.Service
	page  *render.Page
	maps  *mapsvc.Map
	tiles *mapsvc.TileProxy
	clip  *app.MemoryClipboard
}

type mapState struct {
	Ready  bool            `json:"ready"`
	View   mapsvc.Viewport `json:"view"`
	Marker *mapsvc.Marker  `json:"marker"`
}

type pageResponse struct {
	render.Snapshot
	Map   mapState `json:"map"`
	URL   string   `json:"url"`
	Error string   `json:"error,omitempty"`
}

func (a *api) routes(withRequestLog bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	if withRequestLog {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/page", a.handleGetPage)
		r.Get("/locs", a.handleGetLocs)
		r.Post("/locs/{id}/select", a.handleSelect)
		r.Post("/locs/{id}/edit", a.handleBeginEdit)
		r.Delete("/locs/{id}", a.handleRemove)
		r.Post("/deselect", a.handleDeselect)
		r.Post("/map/click", a.handleMapClick)
		r.Post("/edit", a.handleSubmitEdit)
		r.Delete("/edit", a.handleCancelEdit)
		r.Post("/filter", a.handleFilter)
		r.Post("/sort", a.handleSort)
		r.Post("/me", a.handleLocateUser)
		r.Get("/search", a.handleSearch)
		r.Post("/copy", a.handleCopy)
		r.Post("/share", a.handleShare)
		r.Post("/navigate", a.handleNavigate)
		r.Get("/export.gpx", a.handleExport)
		r.Post("/import", a.handleImport)
		r.Get("/tiles/stats", a.handleTileStats)
		r.Get("/tiles/{z}/{x}/{y}.png", a.handleTile)
		r.Get("/version", handleGetVersion)
	})
	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response: %v", err)
	}
}

// statusFor maps a controller error to an HTTP status.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, app.ErrValidationRejected), errors.Is(err, locstore.ErrInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, locstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrNoPendingEdit):
		return http.StatusConflict
	case errors.Is(err, mapsvc.ErrLookupFailed):
		return http.StatusNotFound
	case errors.Is(err, mapsvc.ErrMapUnavailable), errors.Is(err, mapsvc.ErrPositionUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) state() pageResponse {
	return pageResponse{
		Snapshot: a.page.Snapshot(),
		Map: mapState{
			Ready:  a.maps.Ready(),
			View:   a.maps.View(),
			Marker: a.maps.Marker(),
		},
		URL: a.ctl.URL(),
	}
}

// dispatch runs ev and answers with the page state.
func (a *api) dispatch(w http.ResponseWriter, r *http.Request, ev app.Event) {
	err := a.ctl.Dispatch(r.Context(), ev)
	resp := a.state()
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, statusFor(err), resp)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func (a *api) handleGetPage(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.state())
}

func (a *api) handleGetLocs(w http.ResponseWriter, r *http.Request) {
	locs, err := a.svc.List(r.Context())
	if err != nil {
		logger.Error("list locations: %v", err)
		http.Error(w, "cannot load locations", http.StatusInternalServerError)
		return
	}
	if locs == nil {
		locs = []locstore.Location{}
	}
	writeJSON(w, http.StatusOK, locs)
}

func (a *api) handleSelect(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, app.Select{ID: strings.TrimSpace(chi.URLParam(r, "id"))})
}

func (a *api) handleBeginEdit(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, app.BeginEdit{ID: strings.TrimSpace(chi.URLParam(r, "id"))})
}

// handleRemove deletes without a further prompt; the request is the
// user's confirmation.
func (a *api) handleRemove(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, app.Remove{ID: strings.TrimSpace(chi.URLParam(r, "id"))})
}

func (a *api) handleDeselect(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, app.Deselect{})
}

func (a *api) handleMapClick(w http.ResponseWriter, r *http.Request) {
	var g locstore.Geo
	if !decodeBody(w, r, &g) {
		return
	}
	if !a.maps.Ready() {
		resp := a.state()
		resp.Error = mapsvc.ErrMapUnavailable.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	a.maps.Click(g)
	writeJSON(w, http.StatusOK, a.state())
}

func (a *api) handleSubmitEdit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
		Rate int    `json:"rate"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	a.dispatch(w, r, app.SubmitEdit{Name: body.Name, Rate: body.Rate})
}

func (a *api) handleCancelEdit(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, app.CancelEdit{})
}

func (a *api) handleFilter(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text    string `json:"txt"`
		MinRate any    `json:"minRate"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	minRate := ""
	switch v := body.MinRate.(type) {
	case string:
		minRate = v
	case float64:
		minRate = strconv.FormatFloat(v, 'f', -1, 64)
	}
	a.dispatch(w, r, app.SetFilter{Text: body.Text, MinRate: minRate})
}

func (a *api) handleSort(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Field string `json:"field"`
		Desc  bool   `json:"desc"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	a.dispatch(w, r, app.SetSort{Field: body.Field, Desc: body.Desc})
}

func (a *api) handleLocateUser(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, app.LocateUser{})
}

func (a *api) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		http.Error(w, "missing q", http.StatusBadRequest)
		return
	}
	a.dispatch(w, r, app.SearchAddress{Text: q})
}

func (a *api) handleCopy(w http.ResponseWriter, r *http.Request) {
	err := a.ctl.Dispatch(r.Context(), app.CopyLink{})
	writeJSON(w, statusFor(err), map[string]any{
		"text": a.clip.Text(),
		"page": a.state(),
	})
}

func (a *api) handleShare(w http.ResponseWriter, r *http.Request) {
	err := a.ctl.Dispatch(r.Context(), app.ShareLink{})
	writeJSON(w, statusFor(err), map[string]any{
		"share": a.clip.LastShare(),
		"page":  a.state(),
	})
}

func (a *api) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	a.dispatch(w, r, app.Navigate{URL: body.URL})
}

func (a *api) handleExport(w http.ResponseWriter, r *http.Request) {
	locs, err := a.svc.List(r.Context())
	if err != nil {
		logger.Error("export: %v", err)
		http.Error(w, "cannot load locations", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/gpx+xml")
	w.Header().Set("Content-Disposition", `attachment; filename="pinmap.gpx"`)
	if err := gpx.Encode(w, locs); err != nil {
		logger.Error("export: %v", err)
	}
}

func (a *api) handleImport(w http.ResponseWriter, r *http.Request) {
	wps, err := gpx.Decode(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := gpx.Import(r.Context(), a.svc.Store(), wps)
	if err != nil {
		logger.Error("import: %v", err)
		http.Error(w, "import failed", http.StatusInternalServerError)
		return
	}
	logger.Info("import: added=%d duplicate=%d skipped=%d", res.Added, res.Duplicate, res.Skipped)
	if err := a.ctl.Dispatch(r.Context(), app.Reload{}); err != nil {
		logger.Error("import reload: %v", err)
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *api) handleTileStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.tiles.Stats())
}

func (a *api) handleTile(w http.ResponseWriter, r *http.Request) {
	var k mapsvc.TileKey
	var errs [3]error
	k.Z, errs[0] = strconv.Atoi(chi.URLParam(r, "z"))
	k.X, errs[1] = strconv.Atoi(chi.URLParam(r, "x"))
	k.Y, errs[2] = strconv.Atoi(chi.URLParam(r, "y"))
	if err := errors.Join(errs[:]...); err != nil || k.Z < 0 || k.X < 0 || k.Y < 0 {
		http.Error(w, "invalid coords", http.StatusBadRequest)
		return
	}
	data, err := a.tiles.Tile(r.Context(), k)
	if err != nil {
		http.Error(w, "upstream error", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=120")
	_, _ = w.Write(data)
}

// handleGetVersion returns runtime version information
func handleGetVersion(w http.ResponseWriter, _ *http.Request) {
	versionInfo := map[string]any{
		"go_version": runtime.Version(),
		"go_os":      runtime.GOOS,
		"go_arch":    runtime.GOARCH,
	}

	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		versionInfo["go_module"] = buildInfo.Path
		if buildInfo.Main.Version != "" && buildInfo.Main.Version != "(devel)" {
			versionInfo["app_version"] = buildInfo.Main.Version
		}

		settings := make(map[string]string)
		for _, setting := range buildInfo.Settings {
			switch setting.Key {
			case "vcs.revision":
				settings["commit"] = setting.Value
				if len(setting.Value) > 7 {
					settings["commit_short"] = setting.Value[:7]
				}
			case "vcs.time":
				settings["build_time"] = setting.Value
			case "vcs.modified":
				settings["dirty"] = setting.Value
			}
		}
		if len(settings) > 0 {
			versionInfo["build_info"] = settings
		}
	}
	writeJSON(w, http.StatusOK, versionInfo)
}
