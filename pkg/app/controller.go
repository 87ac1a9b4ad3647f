// Package app is the coordination core. The Controller keeps the stored
// locations, the URL state, the map and the rendered page in step, one
// event at a time.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rubiojr/pinmap/pkg/geo"
	"github.com/rubiojr/pinmap/pkg/locstore"
	"github.com/rubiojr/pinmap/pkg/logger"
	"github.com/rubiojr/pinmap/pkg/querystate"
	"github.com/rubiojr/pinmap/pkg/render"
	"github.com/rubiojr/pinmap/pkg/stats"
)

var (
	// ErrValidationRejected is returned when an edit is submitted without a
	// name or rating. Nothing is stored and nothing is flashed.
	ErrValidationRejected = errors.New("name and rate are required")
	ErrNoPendingEdit      = errors.New("no edit in progress")
	ErrUnknownEvent       = errors.New("unknown event")
)

const (
	DefaultUserZoom = 15
	DefaultName     = "Just a place"
)

// MapService is the part of the map widget the controller drives.
type MapService interface {
	Init(ctx context.Context) error
	PanTo(c geo.Coords, zoom int)
	SetMarker(loc *locstore.Location)
	OnClick(h func(locstore.Geo))
	Geocode(ctx context.Context, text string) (locstore.Geo, error)
	ReverseGeocode(ctx context.Context, c geo.Coords) (string, error)
	UserPosition(ctx context.Context) (geo.Coords, error)
}

// Options tune a Controller. Zero values pick defaults.
type Options struct {
	Prompter  Prompter
	Clipboard Clipboard
	UserZoom  int
	Now       func() time.Time
}

type command struct {
	ctx  context.Context
	ev   Event
	done chan error
}

// loop is one Run invocation. done closes when Run returns.
type loop struct {
	cmds chan command
	done chan struct{}
}

// Controller handles one Event at a time. Handle may be called from any
// goroutine; Run additionally drains events posted with Dispatch.
type Controller struct {
	locs    *locstore.Service
	maps    MapService
	url     *querystate.Bridge
	page    render.Sink
	prompt  Prompter
	clip    Clipboard
	zoom    int
	now     func() time.Time
	session *Session

	mu        sync.Mutex
	clickOnce sync.Once
	current   atomic.Pointer[loop]
}

func New(locs *locstore.Service, maps MapService, url *querystate.Bridge, page render.Sink, opts Options) *Controller {
	c := &Controller{
		locs:    locs,
		maps:    maps,
		url:     url,
		page:    page,
		prompt:  opts.Prompter,
		clip:    opts.Clipboard,
		zoom:    opts.UserZoom,
		now:     opts.Now,
		session: &Session{},
	}
	if c.prompt == nil {
		c.prompt = AutoConfirm{}
	}
	if c.clip == nil {
		c.clip = &MemoryClipboard{}
	}
	if c.zoom <= 0 {
		c.zoom = DefaultUserZoom
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Session exposes the controller's transient state.
func (c *Controller) Session() *Session {
	return c.session
}

// URL returns the current shareable URL.
func (c *Controller) URL() string {
	return c.url.URL()
}

// Run processes dispatched events until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	l := &loop{cmds: make(chan command), done: make(chan struct{})}
	if !c.current.CompareAndSwap(nil, l) {
		return errors.New("controller already running")
	}
	defer func() {
		c.current.Store(nil)
		close(l.done)
	}()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-l.cmds:
			cmd.done <- c.Handle(cmd.ctx, cmd.ev)
		}
	}
}

// Dispatch posts ev to the Run loop and waits for its result. Without a
// running loop, or when the loop stops before taking ev, the event is
// handled on the calling goroutine.
func (c *Controller) Dispatch(ctx context.Context, ev Event) error {
	l := c.current.Load()
	if l == nil {
		return c.Handle(ctx, ev)
	}
	cmd := command{ctx: ctx, ev: ev, done: make(chan error, 1)}
	select {
	case l.cmds <- cmd:
	case <-l.done:
		return c.Handle(ctx, ev)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle runs the flow for ev. Failures have already been logged and
// flashed when the error is returned.
func (c *Controller) Handle(ctx context.Context, ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	logger.Debug("app: %s", ev.Kind())
	switch e := ev.(type) {
	case Start:
		return c.start(ctx)
	case Reload:
		return c.reload(ctx)
	case Select:
		return c.selectLoc(ctx, e.ID)
	case Deselect:
		c.deselect()
		return nil
	case Remove:
		return c.remove(ctx, e.ID)
	case BeginEdit:
		return c.beginEdit(ctx, e.ID)
	case ProposeLocation:
		c.propose(ctx, e.Geo)
		return nil
	case SubmitEdit:
		return c.submitEdit(ctx, e.Name, e.Rate)
	case CancelEdit:
		c.session.SetPending(nil)
		c.page.CloseForm()
		return nil
	case LocateUser:
		return c.locateUser(ctx)
	case SearchAddress:
		return c.searchAddress(ctx, e.Text)
	case SetSort:
		return c.setSort(ctx, e.Field, e.Desc)
	case SetFilter:
		return c.setFilter(ctx, e.Text, e.MinRate)
	case CopyLink:
		return c.copyLink(ctx)
	case ShareLink:
		return c.shareLink(ctx)
	case Navigate:
		return c.navigate(ctx, e.URL)
	}
	return fmt.Errorf("%w: %T", ErrUnknownEvent, ev)
}

// fail logs err and flashes msg in its place.
func (c *Controller) fail(msg string, err error) error {
	logger.Error("%s: %v", msg, err)
	c.page.Flash(msg)
	return err
}

func (c *Controller) start(ctx context.Context) error {
	c.restoreFilter()

	var g errgroup.Group
	g.Go(func() error {
		return c.reload(ctx)
	})
	g.Go(func() error {
		return c.initMap(ctx)
	})
	return g.Wait()
}

// restoreFilter pushes the URL filter into the store and the inputs.
func (c *Controller) restoreFilter() {
	f := c.locs.SetFilter(c.url.State().Filter)
	c.page.SetFilterInputs(f.Text, f.MinRate)
}

func (c *Controller) initMap(ctx context.Context) error {
	if err := c.maps.Init(ctx); err != nil {
		return c.fail("Cannot init map", err)
	}
	c.clickOnce.Do(func() {
		c.maps.OnClick(func(g locstore.Geo) {
			if err := c.Dispatch(context.Background(), ProposeLocation{Geo: g}); err != nil {
				logger.Error("map click: %v", err)
			}
		})
	})
	return nil
}

func (c *Controller) reload(ctx context.Context) error {
	locs, err := c.locs.List(ctx)
	if err != nil {
		return c.fail("Cannot load locations", err)
	}
	c.session.setLocations(locs)

	selected := c.url.SelectedID()
	c.page.RenderList(render.Items(locs, selected, c.session.UserPosition(), c.now()))
	c.page.RenderDebug(render.Debug(locs))
	statsErr := c.renderStats(ctx)

	if selected != "" {
		for _, l := range locs {
			if l.ID == selected {
				c.display(l)
				break
			}
		}
	}
	return statsErr
}

func (c *Controller) renderStats(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	var rating, recency locstore.Tally
	g.Go(func() (err error) {
		rating, err = c.locs.CountByRating(gctx)
		return err
	})
	g.Go(func() (err error) {
		recency, err = c.locs.CountByRecency(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return c.fail("Cannot load statistics", err)
	}
	c.page.RenderChart(render.ChartRate, stats.Pie(rating))
	c.page.RenderChart(render.ChartUpdate, stats.Pie(recency))
	return nil
}

// display shows l everywhere a selection appears.
func (c *Controller) display(l locstore.Location) {
	c.page.SetActive(l.ID)
	c.maps.PanTo(l.Geo.Coords(), 0)
	c.maps.SetMarker(&l)
	c.url.SetSelected(l.ID)
	c.page.ShowDetail(render.DetailFor(l, c.session.UserPosition(), c.url.URL()))
}

func (c *Controller) selectLoc(ctx context.Context, id string) error {
	l, err := c.locs.GetByID(ctx, id)
	if err != nil {
		return c.fail("Cannot display this location", err)
	}
	c.display(l)
	return nil
}

func (c *Controller) deselect() {
	c.url.SetSelected("")
	c.page.HideDetail()
	c.page.SetActive("")
	c.maps.SetMarker(nil)
}

func (c *Controller) remove(ctx context.Context, id string) error {
	l, err := c.locs.GetByID(ctx, id)
	if err != nil {
		return c.fail("Cannot remove location", err)
	}
	if !c.prompt.Confirm(ctx, fmt.Sprintf("Remove %s?", l.Name)) {
		logger.Debug("app: removal of %s cancelled", id)
		return nil
	}
	if err := c.locs.Remove(ctx, id); err != nil {
		return c.fail("Cannot remove location", err)
	}
	c.page.Flash("Location removed")
	c.deselect()
	return c.reload(ctx)
}

func (c *Controller) beginEdit(ctx context.Context, id string) error {
	l, err := c.locs.GetByID(ctx, id)
	if err != nil {
		return c.fail("Cannot load location", err)
	}
	c.session.SetPending(PendingUpdate{Loc: l})
	c.page.OpenForm(render.Form{Mode: render.FormUpdate, Name: l.Name, Rate: l.Rate})
	return nil
}

// propose opens the form for a new location at g. A failed reverse
// lookup only costs the address.
func (c *Controller) propose(ctx context.Context, g locstore.Geo) {
	if g.Address == "" {
		addr, err := c.maps.ReverseGeocode(ctx, g.Coords())
		if err != nil {
			logger.Debug("app: reverse lookup for %s: %v", g.Coords(), err)
		} else {
			g.Address = addr
		}
	}
	name := g.Address
	if name == "" {
		name = DefaultName
	}
	c.session.SetPending(PendingCreate{Geo: g})
	c.page.OpenForm(render.Form{Mode: render.FormCreate, Name: name})
}

func (c *Controller) submitEdit(ctx context.Context, name string, rate int) error {
	name = strings.TrimSpace(name)
	if name == "" || rate < locstore.MinRate || rate > locstore.MaxRate {
		return ErrValidationRejected
	}

	switch p := c.session.Pending().(type) {
	case PendingUpdate:
		l := p.Loc
		if l.Rate == rate && l.Name == name {
			logger.Debug("app: %s unchanged, skipping write", l.ID)
			c.closeForm()
			return nil
		}
		l.Name, l.Rate = name, rate
		saved, err := c.locs.Save(ctx, l)
		if err != nil {
			return c.fail("Cannot update location", err)
		}
		c.page.Flash(fmt.Sprintf("Rate was set to: %d", saved.Rate))
		c.url.SetSelected(saved.ID)
	case PendingCreate:
		saved, err := c.locs.Save(ctx, locstore.Location{Name: name, Rate: rate, Geo: p.Geo})
		if err != nil {
			return c.fail("Cannot add location", err)
		}
		c.page.Flash(fmt.Sprintf("Added Location (id: %s)", saved.ID))
		c.url.SetSelected(saved.ID)
	default:
		return ErrNoPendingEdit
	}
	c.closeForm()
	return c.reload(ctx)
}

func (c *Controller) closeForm() {
	c.session.SetPending(nil)
	c.page.CloseForm()
}

func (c *Controller) locateUser(ctx context.Context) error {
	pos, err := c.maps.UserPosition(ctx)
	if err != nil {
		return c.fail("Cannot get your position", err)
	}
	c.session.SetUserPosition(pos)
	c.maps.PanTo(pos, c.zoom)
	c.deselect()
	err = c.reload(ctx)
	c.page.Flash(fmt.Sprintf("You are at Latitude: %s Longitude: %s",
		strconv.FormatFloat(pos.Lat, 'f', -1, 64),
		strconv.FormatFloat(pos.Lng, 'f', -1, 64)))
	return err
}

func (c *Controller) searchAddress(ctx context.Context, text string) error {
	g, err := c.maps.Geocode(ctx, text)
	if err != nil {
		return c.fail("Cannot lookup address", err)
	}
	c.maps.PanTo(g.Coords(), 0)
	return nil
}

func (c *Controller) setSort(ctx context.Context, field string, desc bool) error {
	f, err := locstore.ParseSortField(field)
	if err != nil {
		return err
	}
	if f == locstore.SortNone {
		return nil
	}
	c.locs.SetSort(locstore.NewSort(f, desc))
	return c.reload(ctx)
}

func (c *Controller) setFilter(ctx context.Context, text, minRate string) error {
	f := c.locs.SetFilter(locstore.Filter{Text: text, MinRate: locstore.ParseMinRate(minRate)})
	c.url.SetFilter(f)
	c.page.SetFilterInputs(f.Text, f.MinRate)
	return c.reload(ctx)
}

func (c *Controller) copyLink(ctx context.Context) error {
	if err := c.clip.WriteText(ctx, c.url.URL()); err != nil {
		return c.fail("Cannot copy link", err)
	}
	c.page.Flash("Link copied, ready to paste")
	return nil
}

func (c *Controller) shareLink(ctx context.Context) error {
	data := ShareData{Title: "Cool location", Text: "Check out this location", URL: c.url.URL()}
	if err := c.clip.Share(ctx, data); err != nil {
		return c.fail("Cannot share link", err)
	}
	return nil
}

func (c *Controller) navigate(ctx context.Context, rawURL string) error {
	if err := c.url.Replace(rawURL); err != nil {
		return err
	}
	if c.url.SelectedID() == "" {
		c.page.HideDetail()
		c.maps.SetMarker(nil)
	}
	c.restoreFilter()
	return c.reload(ctx)
}
