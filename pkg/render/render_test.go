package render

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rubiojr/pinmap/pkg/geo"
	"github.com/rubiojr/pinmap/pkg/locstore"
	"github.com/rubiojr/pinmap/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func sampleLocs() []locstore.Location {
	created := now.Add(-2 * time.Hour).UnixMilli()
	return []locstore.Location{
		{ID: "a", Name: "Alpha", Rate: 3, Geo: locstore.Geo{Lat: 0, Lng: 0, Address: "Zero"}, CreatedAt: created, UpdatedAt: created},
		{ID: "b", Name: "Beta", Rate: 5, Geo: locstore.Geo{Lat: 0, Lng: 1}, CreatedAt: created, UpdatedAt: now.Add(-5 * time.Minute).UnixMilli()},
	}
}

func TestItems(t *testing.T) {
	items := Items(sampleLocs(), "b", nil, now)
	require.Len(t, items, 2)

	assert.Equal(t, "★★★", items[0].Stars)
	assert.False(t, items[0].Active)
	assert.Equal(t, "Created: 2 hours ago", items[0].Times())
	assert.Empty(t, items[0].Distance)

	assert.True(t, items[1].Active)
	assert.Equal(t, "Created: 2 hours ago | Updated: 5 minutes ago", items[1].Times())
}

func TestItemsWithUserPosition(t *testing.T) {
	pos := geo.Coords{Lat: 0, Lng: 0}
	items := Items(sampleLocs(), "", &pos, now)
	assert.Equal(t, "Distance: 0.00 KM.", items[0].Distance)
	assert.Equal(t, "Distance: 111.19 KM.", items[1].Distance)
}

func TestDetailFor(t *testing.T) {
	loc := sampleLocs()[0]
	d := DetailFor(loc, nil, "http://x/?locId=a")
	assert.Equal(t, Detail{Visible: true, ID: "a", Name: "Alpha", Address: "Zero", Stars: "★★★", Link: "http://x/?locId=a"}, d)

	pos := geo.Coords{Lat: 0, Lng: 1}
	assert.Equal(t, "Distance: 111.19 KM.", DetailFor(loc, &pos, "").Distance)
}

func TestDebugDump(t *testing.T) {
	assert.Equal(t, "[]", Debug(nil))

	var decoded []locstore.Location
	require.NoError(t, json.Unmarshal([]byte(Debug(sampleLocs())), &decoded))
	assert.Equal(t, sampleLocs(), decoded)
}

func TestPageSingleActive(t *testing.T) {
	p := NewPage(NewNotifier(time.Minute))
	p.RenderList(Items(sampleLocs(), "", nil, now))
	assert.Equal(t, 0, p.ActiveCount())

	p.SetActive("a")
	p.SetActive("b")
	assert.Equal(t, 1, p.ActiveCount())
	assert.True(t, p.Snapshot().Items[1].Active)

	p.SetActive("")
	assert.Equal(t, 0, p.ActiveCount())
}

func TestPageEmptyList(t *testing.T) {
	p := NewPage(nil)
	p.RenderList(nil)
	assert.Equal(t, EmptyList, p.Snapshot().EmptyText)
}

func TestPageFormAndDetail(t *testing.T) {
	p := NewPage(nil)
	p.OpenForm(Form{Mode: FormCreate, Name: "Just a place"})
	assert.True(t, p.Snapshot().Form.Open)
	p.CloseForm()
	assert.False(t, p.Snapshot().Form.Open)

	p.ShowDetail(Detail{ID: "a"})
	assert.True(t, p.Snapshot().Detail.Visible)
	p.HideDetail()
	assert.False(t, p.Snapshot().Detail.Visible)
}

func TestPageChart(t *testing.T) {
	p := NewPage(nil)
	tally := locstore.NewTally("low", "high")
	tally.Add("low", 1)
	tally.Add("high", 1)
	p.RenderChart(ChartRate, stats.Pie(tally))

	cv, ok := p.Snapshot().Charts[ChartRate]
	require.True(t, ok)
	assert.Equal(t, "conic-gradient(purple 0%, purple 50%, blue 50%, blue 100%)", cv.Gradient)
}

func TestNotifierReplacesAndDismisses(t *testing.T) {
	n := NewNotifier(30 * time.Millisecond)
	p := NewPage(n)

	p.Flash("first")
	p.Flash("second")
	assert.Equal(t, Message{Text: "second", Open: true}, p.Snapshot().Message)
	assert.Equal(t, []string{"first", "second"}, p.Messages())

	assert.Eventually(t, func() bool { return !n.Current().Open }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "second", n.Current().Text)
}

func TestNotifierStaleTimerDoesNotCloseNewMessage(t *testing.T) {
	n := NewNotifier(150 * time.Millisecond)
	n.Flash("one")
	time.Sleep(90 * time.Millisecond)
	n.Flash("two")
	time.Sleep(90 * time.Millisecond)
	assert.True(t, n.Current().Open)
	n.Stop()
}
