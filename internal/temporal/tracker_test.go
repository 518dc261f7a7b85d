package temporal

import (
	"math"
	"testing"
	"time"
)

var base = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func TestRecordEvictsOldest(t *testing.T) {
	var tr Tracker
	for i := 0; i < 130; i++ {
		tr.Record(base.Add(time.Duration(i) * time.Hour))
	}

	if tr.Len() != Capacity {
		t.Fatalf("Len = %d, want %d", tr.Len(), Capacity)
	}
	hours := tr.Hours()
	stamps := tr.Timestamps()
	if len(hours) != Capacity {
		t.Fatalf("len(hours) = %d, want %d", len(hours), Capacity)
	}

	// Entries 30..129 survive, oldest first.
	if want := base.Add(30 * time.Hour); !stamps[0].Equal(want) {
		t.Errorf("stamps[0] = %v, want %v", stamps[0], want)
	}
	if want := base.Add(129 * time.Hour); !stamps[Capacity-1].Equal(want) {
		t.Errorf("stamps[last] = %v, want %v", stamps[Capacity-1], want)
	}
	if hours[0] != base.Add(30*time.Hour).Hour() {
		t.Errorf("hours[0] = %d, want %d", hours[0], base.Add(30*time.Hour).Hour())
	}
}

func TestRestoreTrimsToCapacity(t *testing.T) {
	hours := make([]int, 150)
	stamps := make([]time.Time, 150)
	for i := range stamps {
		hours[i] = i % 24
		stamps[i] = base.Add(time.Duration(i) * time.Minute)
	}

	tr := Restore(hours, stamps)
	if tr.Len() != Capacity {
		t.Fatalf("Len = %d, want %d", tr.Len(), Capacity)
	}
	if got := tr.Hours()[0]; got != 50%24 {
		t.Errorf("hours[0] = %d, want %d", got, 50%24)
	}

	// Restored tracker must not alias the caller's slices.
	hours[149] = -1
	if tr.Hours()[Capacity-1] == -1 {
		t.Error("Restore aliased input slice")
	}
}

func TestAnomalyInsufficientData(t *testing.T) {
	var tr Tracker
	for i := 0; i < 9; i++ {
		tr.Record(base.Add(time.Duration(i) * time.Minute))
	}
	a := tr.Anomaly(base.Add(5 * time.Hour))
	if a.Sufficient || a.Anomalous || a.Score != 0 {
		t.Errorf("Anomaly = %+v, want zero value", a)
	}
}

func TestAnomalyScore(t *testing.T) {
	var tr Tracker
	// 10 messages at 20:00, 10 messages at 09:00.
	for i := 0; i < 10; i++ {
		day := base.AddDate(0, 0, i)
		tr.Record(day.Add(20 * time.Hour))
		tr.Record(day.Add(9 * time.Hour))
	}

	usual := tr.Anomaly(base.Add(20*time.Hour + 30*time.Minute))
	if !usual.Sufficient {
		t.Fatal("expected sufficient data")
	}
	// freq = 0.5 -> 1 - min(1, 2.5) = 0
	if usual.Score != 0 || usual.Anomalous {
		t.Errorf("usual hour = %+v, want score 0", usual)
	}

	never := tr.Anomaly(base.Add(3 * time.Hour))
	if never.Score != 1 || !never.Anomalous {
		t.Errorf("unseen hour = %+v, want score 1 anomalous", never)
	}
}

func TestAnomalyPartialFrequency(t *testing.T) {
	var tr Tracker
	// 1 of 20 samples at 07:00 -> freq 0.05 -> score 0.75
	tr.Record(base.Add(7 * time.Hour))
	for i := 0; i < 19; i++ {
		tr.Record(base.Add(12 * time.Hour))
	}
	a := tr.Anomaly(base.Add(7 * time.Hour))
	if math.Abs(a.Score-0.75) > 1e-9 {
		t.Errorf("Score = %v, want 0.75", a.Score)
	}
	if !a.Anomalous {
		t.Error("expected anomalous above 0.6")
	}
}

func TestMessagePressure(t *testing.T) {
	var tr Tracker
	now := base.Add(time.Hour)

	if p := tr.MessagePressure(now, 10*time.Minute); p != 0 {
		t.Errorf("empty pressure = %v, want 0", p)
	}

	// 8 messages in the last 4 minutes, 3 messages an hour ago.
	for i := 0; i < 3; i++ {
		tr.Record(base.Add(time.Duration(i) * time.Second))
	}
	for i := 0; i < 8; i++ {
		tr.Record(now.Add(-time.Duration(i*30) * time.Second))
	}

	got := tr.MessagePressure(now, 10*time.Minute)
	if math.Abs(got-0.8) > 1e-9 {
		t.Errorf("pressure = %v, want 0.8", got)
	}
	if got := tr.MessagePressure(now, 0); got != 0 {
		t.Errorf("zero window pressure = %v, want 0", got)
	}
}
