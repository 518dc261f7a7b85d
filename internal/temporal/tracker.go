// Package temporal tracks when a user tends to write and how hard they are
// writing right now.
package temporal

import (
	"time"
)

// Capacity is the number of interactions kept in each rolling buffer.
const Capacity = 100

// minAnomalySamples is the history needed before hour-of-day anomalies are scored.
const minAnomalySamples = 10

// anomalyThreshold marks a score as anomalous.
const anomalyThreshold = 0.6

// Tracker keeps the hour-of-day and timestamp of the most recent user
// messages. Both buffers are FIFO and capped at Capacity.
type Tracker struct {
	hours  []int
	stamps []time.Time
}

// Restore rebuilds a tracker from persisted buffers, keeping only the newest
// Capacity entries of each.
func Restore(hours []int, stamps []time.Time) Tracker {
	var t Tracker
	t.hours = append(t.hours, tail(hours)...)
	t.stamps = append(t.stamps, tail(stamps)...)
	return t
}

// Record appends one user interaction observed at the given time.
func (t *Tracker) Record(at time.Time) {
	t.hours = append(t.hours, at.Hour())
	t.stamps = append(t.stamps, at)
	if len(t.hours) > Capacity {
		t.hours = append(t.hours[:0:0], t.hours[len(t.hours)-Capacity:]...)
	}
	if len(t.stamps) > Capacity {
		t.stamps = append(t.stamps[:0:0], t.stamps[len(t.stamps)-Capacity:]...)
	}
}

// Len returns the number of recorded timestamps.
func (t *Tracker) Len() int {
	return len(t.stamps)
}

// Hours returns a copy of the hour-of-day buffer, oldest first.
func (t *Tracker) Hours() []int {
	return append([]int{}, t.hours...)
}

// Timestamps returns a copy of the timestamp buffer, oldest first.
func (t *Tracker) Timestamps() []time.Time {
	return append([]time.Time{}, t.stamps...)
}

// Clone returns a deep copy.
func (t *Tracker) Clone() Tracker {
	return Tracker{hours: t.Hours(), stamps: t.Timestamps()}
}

// Anomaly is the result of scoring the current hour against the history.
type Anomaly struct {
	Anomalous  bool    `json:"anomalous"`
	Score      float64 `json:"score"`      // 0 = usual hour, 1 = never seen
	Sufficient bool    `json:"sufficient"` // false when fewer than 10 samples exist
}

// Anomaly scores how unusual it is for the user to be writing at now's hour.
// The score is 1 - min(1, 5*freq) where freq is the empirical share of past
// interactions that happened in the same hour.
func (t *Tracker) Anomaly(now time.Time) Anomaly {
	if len(t.hours) < minAnomalySamples {
		return Anomaly{}
	}

	hour := now.Hour()
	count := 0
	for _, h := range t.hours {
		if h == hour {
			count++
		}
	}
	freq := float64(count) / float64(len(t.hours))

	score := 1.0
	if freq > 0 {
		score = 1.0 - min(1.0, freq*5)
	}
	return Anomaly{
		Anomalous:  score > anomalyThreshold,
		Score:      score,
		Sufficient: true,
	}
}

// MessagePressure returns messages per minute over the trailing window ending
// at now. Values above 0.5 mean the user is bombarding.
func (t *Tracker) MessagePressure(now time.Time, window time.Duration) float64 {
	if window <= 0 || len(t.stamps) == 0 {
		return 0
	}
	cutoff := now.Add(-window)
	n := 0
	for _, ts := range t.stamps {
		if ts.After(cutoff) && !ts.After(now) {
			n++
		}
	}
	return float64(n) / window.Minutes()
}

func tail[T any](s []T) []T {
	if len(s) > Capacity {
		return s[len(s)-Capacity:]
	}
	return s
}
