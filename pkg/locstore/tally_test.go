package locstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateBucket(t *testing.T) {
	assert.Equal(t, BucketLow, RateBucket(1))
	assert.Equal(t, BucketLow, RateBucket(2))
	assert.Equal(t, BucketMedium, RateBucket(3))
	assert.Equal(t, BucketMedium, RateBucket(4))
	assert.Equal(t, BucketHigh, RateBucket(5))
}

func TestRecencyBucket(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	created := now.Add(-72 * time.Hour).UnixMilli()

	assert.Equal(t, BucketNever, RecencyBucket(Location{CreatedAt: created, UpdatedAt: created}, now))
	assert.Equal(t, BucketToday, RecencyBucket(Location{CreatedAt: created, UpdatedAt: now.Add(-time.Hour).UnixMilli()}, now))
	assert.Equal(t, BucketPast, RecencyBucket(Location{CreatedAt: created, UpdatedAt: now.Add(-25 * time.Hour).UnixMilli()}, now))
}

func TestEditStampFollowsCreate(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	created := now.UnixMilli()

	assert.Equal(t, created+1, editStamp(now, created))
	assert.Equal(t, created+1, editStamp(now.Add(-time.Hour), created))
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), editStamp(now.Add(time.Minute), created))

	edited := Location{CreatedAt: created, UpdatedAt: editStamp(now, created)}
	assert.Equal(t, BucketToday, RecencyBucket(edited, now))
}

func TestTallyTotalIsSum(t *testing.T) {
	tally := RatingTally([]Location{{Rate: 5}, {Rate: 5}, {Rate: 2}})
	sum := 0
	for _, b := range tally.Buckets {
		sum += b.Count
	}
	assert.Equal(t, sum, tally.Total)
	assert.Equal(t, 2, tally.Get(BucketHigh))
	assert.Equal(t, 0, tally.Get("missing"))
}

func TestTallyJSONKeepsOrder(t *testing.T) {
	tally := NewTally(BucketHigh, BucketMedium, BucketLow)
	tally.Add(BucketLow, 2)
	tally.Add(BucketHigh, 1)

	b, err := json.Marshal(tally)
	require.NoError(t, err)
	assert.Equal(t, `{"high":1,"medium":0,"low":2,"total":3}`, string(b))
}

func TestFilterNormalize(t *testing.T) {
	assert.Equal(t, Filter{Text: "bar", MinRate: 0}, Filter{Text: "  bar ", MinRate: -2}.Normalize())
	assert.Equal(t, Filter{MinRate: MaxRate}, Filter{MinRate: 9}.Normalize())
}

func TestParseMinRate(t *testing.T) {
	cases := map[string]int{
		"":      0,
		"abc":   0,
		"NaN":   0,
		"-2":    0,
		"-Inf":  0,
		"0":     0,
		"0.2":   1,
		"3":     3,
		" 3 ":   3,
		"3.5":   4,
		"4.01":  5,
		"9":     MaxRate,
		"1e19":  MaxRate,
		"1e400": MaxRate,
		"Inf":   MaxRate,
	}
	for raw, want := range cases {
		assert.Equal(t, want, ParseMinRate(raw), "input %q", raw)
	}
}

func TestParseSortField(t *testing.T) {
	f, err := ParseSortField("rate")
	require.NoError(t, err)
	assert.Equal(t, SortRate, f)

	f, err = ParseSortField("")
	require.NoError(t, err)
	assert.Equal(t, SortNone, f)

	_, err = ParseSortField("color")
	assert.Error(t, err)
}
