// Package querystate mirrors filter and selection state into URL query
// parameters so a reload or shared link restores the same view.
//
// Parameters: txt (filter text), minRate (minimum rating, default 0) and
// locId (selected location, empty means none). Writing an empty value
// deletes the key rather than leaving "key=" behind.
package querystate

import (
	"net/url"
	"strconv"
	"sync"

	"github.com/rubiojr/pinmap/pkg/locstore"
)

const (
	ParamText     = "txt"
	ParamMinRate  = "minRate"
	ParamLocation = "locId"
)

// State is what the URL carries.
type State struct {
	Filter     locstore.Filter
	SelectedID string
}

// Parse reads state from query values. Missing or malformed values fall
// back to defaults.
func Parse(q url.Values) State {
	st := State{
		Filter: locstore.Filter{
			Text: q.Get(ParamText),
		},
		SelectedID: q.Get(ParamLocation),
	}
	st.Filter.MinRate = locstore.ParseMinRate(q.Get(ParamMinRate))
	return st
}

// Encode writes st into q, deleting keys whose value is empty.
func Encode(q url.Values, st State) {
	set(q, ParamText, st.Filter.Text)
	set(q, ParamMinRate, minRateValue(st.Filter.MinRate))
	set(q, ParamLocation, st.SelectedID)
}

func minRateValue(n int) string {
	if n == 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func set(q url.Values, key, value string) {
	if value == "" {
		q.Del(key)
		return
	}
	q.Set(key, value)
}

// Bridge owns the current URL and keeps it in step with state changes.
// Unrelated query parameters are preserved.
type Bridge struct {
	mu  sync.RWMutex
	url *url.URL
}

// NewBridge parses rawURL as the starting location.
func NewBridge(rawURL string) (*Bridge, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	return &Bridge{url: u}, nil
}

// State parses the current URL.
func (b *Bridge) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Parse(b.url.Query())
}

// SelectedID returns the locId parameter.
func (b *Bridge) SelectedID() string {
	return b.State().SelectedID
}

// SetFilter writes the filter parameters, keeping the selection.
func (b *Bridge) SetFilter(f locstore.Filter) {
	b.update(func(q url.Values) {
		set(q, ParamText, f.Text)
		set(q, ParamMinRate, minRateValue(f.MinRate))
	})
}

// SetSelected writes locId; an empty id clears the selection.
func (b *Bridge) SetSelected(id string) {
	b.update(func(q url.Values) {
		set(q, ParamLocation, id)
	})
}

// Replace swaps the whole URL, as a navigation would.
func (b *Bridge) Replace(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.url = u
	b.mu.Unlock()
	return nil
}

// URL returns the current shareable URL.
func (b *Bridge) URL() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.url.String()
}

func (b *Bridge) update(fn func(url.Values)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q := b.url.Query()
	fn(q)
	u := *b.url
	u.RawQuery = q.Encode()
	b.url = &u
}
