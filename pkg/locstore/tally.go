package locstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Bucket is one labeled count of an aggregate.
type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Tally is an ordered set of buckets plus their sum. Order is significant:
// it drives both slice and legend order in the charts.
type Tally struct {
	Buckets []Bucket `json:"buckets"`
	Total   int      `json:"total"`
}

// NewTally builds a zeroed tally with the given labels, in order.
func NewTally(labels ...string) Tally {
	t := Tally{Buckets: make([]Bucket, len(labels))}
	for i, l := range labels {
		t.Buckets[i].Label = l
	}
	return t
}

// Add increments label, keeping Total in sync. Unknown labels are appended.
func (t *Tally) Add(label string, n int) {
	t.Total += n
	for i := range t.Buckets {
		if t.Buckets[i].Label == label {
			t.Buckets[i].Count += n
			return
		}
	}
	t.Buckets = append(t.Buckets, Bucket{Label: label, Count: n})
}

// Get returns the count for label, zero when absent.
func (t Tally) Get(label string) int {
	for _, b := range t.Buckets {
		if b.Label == label {
			return b.Count
		}
	}
	return 0
}

// MarshalJSON emits the flat {label: count, ..., "total": n} shape with
// keys in bucket order.
func (t Tally) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for _, b := range t.Buckets {
		k, err := json.Marshal(b.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		fmt.Fprintf(&buf, ":%d,", b.Count)
	}
	fmt.Fprintf(&buf, "\"total\":%d}", t.Total)
	return buf.Bytes(), nil
}

const (
	BucketHigh   = "high"
	BucketMedium = "medium"
	BucketLow    = "low"

	BucketToday = "today"
	BucketPast  = "past"
	BucketNever = "never"
)

// RateBucket maps a rating to its tier: 5 is high, 3..4 medium, below low.
func RateBucket(rate int) string {
	switch {
	case rate > 4:
		return BucketHigh
	case rate >= 3:
		return BucketMedium
	default:
		return BucketLow
	}
}

// editStamp is the updatedAt an edit at now records. It is strictly
// after createdAt, so an edited record never reads as never updated.
func editStamp(now time.Time, createdAt int64) int64 {
	return max(now.UnixMilli(), createdAt+1)
}

// RecencyBucket maps a record to its last-update tier relative to now.
// Only records whose updatedAt still equals createdAt are never updated.
func RecencyBucket(l Location, now time.Time) string {
	if l.UpdatedAt <= l.CreatedAt {
		return BucketNever
	}
	if now.Sub(time.UnixMilli(l.UpdatedAt)) < 24*time.Hour {
		return BucketToday
	}
	return BucketPast
}

// RatingTally aggregates locs by RateBucket.
func RatingTally(locs []Location) Tally {
	t := NewTally(BucketHigh, BucketMedium, BucketLow)
	for _, l := range locs {
		t.Add(RateBucket(l.Rate), 1)
	}
	return t
}

// RecencyTally aggregates locs by RecencyBucket.
func RecencyTally(locs []Location, now time.Time) Tally {
	t := NewTally(BucketToday, BucketPast, BucketNever)
	for _, l := range locs {
		t.Add(RecencyBucket(l, now), 1)
	}
	return t
}
