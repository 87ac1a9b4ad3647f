package querystate

import (
	"net/url"
	"testing"

	"github.com/rubiojr/pinmap/pkg/locstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	st := Parse(url.Values{})
	assert.Equal(t, State{}, st)

	st = Parse(url.Values{ParamMinRate: {"abc"}})
	assert.Equal(t, 0, st.Filter.MinRate)

	st = Parse(url.Values{ParamMinRate: {"2.5"}})
	assert.Equal(t, 3, st.Filter.MinRate)
}

func TestParseValues(t *testing.T) {
	q, err := url.ParseQuery("txt=beach&minRate=3&locId=abc123")
	require.NoError(t, err)
	st := Parse(q)
	assert.Equal(t, locstore.Filter{Text: "beach", MinRate: 3}, st.Filter)
	assert.Equal(t, "abc123", st.SelectedID)
}

func TestRoundTrip(t *testing.T) {
	cases := []State{
		{},
		{Filter: locstore.Filter{Text: "tel aviv & more"}},
		{Filter: locstore.Filter{MinRate: 4}, SelectedID: "x1"},
		{Filter: locstore.Filter{Text: "a", MinRate: 5}, SelectedID: "id"},
	}
	for _, st := range cases {
		q := url.Values{}
		Encode(q, st)
		u, err := url.Parse("https://example.com/?" + q.Encode())
		require.NoError(t, err)
		assert.Equal(t, st, Parse(u.Query()))
	}
}

func TestEmptyValueDeletesKey(t *testing.T) {
	b, err := NewBridge("https://example.com/app?locId=abc&txt=x&keep=1")
	require.NoError(t, err)

	b.SetSelected("")
	b.SetFilter(locstore.Filter{})

	u, err := url.Parse(b.URL())
	require.NoError(t, err)
	q := u.Query()
	_, hasLoc := q[ParamLocation]
	_, hasTxt := q[ParamText]
	_, hasMin := q[ParamMinRate]
	assert.False(t, hasLoc)
	assert.False(t, hasTxt)
	assert.False(t, hasMin)
	assert.Equal(t, "1", q.Get("keep"))
	assert.Equal(t, "/app", u.Path)
}

func TestBridgeFilterKeepsSelection(t *testing.T) {
	b, err := NewBridge("http://localhost/")
	require.NoError(t, err)

	b.SetSelected("loc-1")
	b.SetFilter(locstore.Filter{Text: "cafe", MinRate: 2})

	assert.Equal(t, State{Filter: locstore.Filter{Text: "cafe", MinRate: 2}, SelectedID: "loc-1"}, b.State())
	assert.Equal(t, "loc-1", b.SelectedID())
}

func TestReplace(t *testing.T) {
	b, err := NewBridge("http://localhost/?locId=a")
	require.NoError(t, err)
	require.NoError(t, b.Replace("http://localhost/?txt=z"))
	assert.Equal(t, "", b.SelectedID())
	assert.Equal(t, "z", b.State().Filter.Text)
	assert.Error(t, b.Replace("%zz"))
}
