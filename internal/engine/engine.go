// Package engine owns the live relationships: it loads snapshots, serializes
// updates per relationship, and writes state back behind the request path.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"strings"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/lazypower/affinity/internal/dynamics"
	"github.com/lazypower/affinity/internal/store"
)

// SnapshotStore loads and saves opaque snapshots by relationship key.
// LoadSnapshot returns nil, nil for a relationship that was never saved.
type SnapshotStore interface {
	LoadSnapshot(ctx context.Context, userID, sessionID string) ([]byte, error)
	SaveSnapshot(ctx context.Context, userID, sessionID string, snapshot []byte) error
	DeleteSnapshot(ctx context.Context, userID, sessionID string) error
}

// UpdateLog receives one record per processed update.
type UpdateLog interface {
	AppendUpdate(ctx context.Context, rec store.UpdateRecord) error
}

// ErrInvalidKey is returned for an empty user or session ID.
var ErrInvalidKey = errors.New("user and session IDs are required")

// ErrInvalidSnapshot is returned by Restore for data that does not decode.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// Key identifies a relationship.
type Key struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

func (k Key) String() string { return k.UserID + "/" + k.SessionID }

func (k Key) valid() bool { return k.UserID != "" && k.SessionID != "" }

// Options configures an Engine.
type Options struct {
	Archetype string           // default archetype for new relationships
	Seed      uint64           // base seed mixed into every relationship's noise source
	Clock     func() time.Time // wall clock, default time.Now in UTC
	Log       UpdateLog        // optional
}

// relationship is one live state. mu serializes every read and write.
// gen counts state changes; a save clears dirty only if gen still matches
// the generation it encoded.
type relationship struct {
	mu      sync.Mutex
	state   *dynamics.State
	dyn     *dynamics.Engine
	gen     uint64
	dirty   bool
	deleted bool
}

// touch marks a state change. Callers hold mu.
func (r *relationship) touch() {
	r.gen++
	r.dirty = true
}

// Engine is safe for concurrent use. Calls for the same key are serialized;
// calls for different keys run in parallel.
type Engine struct {
	Store SnapshotStore

	archetype string
	seed      uint64
	clock     func() time.Time
	updateLog UpdateLog

	mu   sync.Mutex
	rels map[Key]*relationship

	// flushMu orders store writes against deletes.
	flushMu  sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	updates      atomic.Int64
	created      atomic.Int64
	corrupt      atomic.Int64
	flushes      atomic.Int64
	saved        atomic.Int64
	saveFailures atomic.Int64
}

// New creates an Engine backed by st.
func New(st SnapshotStore, opts Options) *Engine {
	if opts.Archetype == "" {
		opts.Archetype = dynamics.DefaultArchetype
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{
		Store:     st,
		archetype: opts.Archetype,
		seed:      opts.Seed,
		clock:     opts.Clock,
		updateLog: opts.Log,
		rels:      make(map[Key]*relationship),
		stopCh:    make(chan struct{}),
	}
}

// acquire returns the relationship for key with its lock held, loading or
// creating it first. archetype applies only when a new state is created.
func (e *Engine) acquire(ctx context.Context, key Key, archetype string) (*relationship, bool, error) {
	if !key.valid() {
		return nil, false, ErrInvalidKey
	}
	for {
		e.mu.Lock()
		r, ok := e.rels[key]
		if !ok {
			r = &relationship{}
			e.rels[key] = r
		}
		e.mu.Unlock()

		r.mu.Lock()
		if r.deleted {
			r.mu.Unlock()
			continue
		}
		created := false
		if r.state == nil {
			var err error
			if created, err = e.load(ctx, key, r, archetype); err != nil {
				r.mu.Unlock()
				e.forget(key, r)
				return nil, false, err
			}
		}
		return r, created, nil
	}
}

// forget drops r from the registry if it is still the entry for key.
func (e *Engine) forget(key Key, r *relationship) {
	e.mu.Lock()
	if e.rels[key] == r {
		delete(e.rels, key)
	}
	e.mu.Unlock()
}

// load fills r from the store. A missing or undecodable snapshot yields a
// fresh state; only store I/O errors are returned.
func (e *Engine) load(ctx context.Context, key Key, r *relationship, archetype string) (bool, error) {
	now := e.clock()
	data, err := e.Store.LoadSnapshot(ctx, key.UserID, key.SessionID)
	if err != nil {
		return false, fmt.Errorf("load %s: %w", key, err)
	}

	created := false
	if data != nil {
		r.state, err = dynamics.ParseSnapshot(data, now)
		if err != nil {
			log.Printf("engine: corrupt snapshot for %s, reinitializing: %v", key, err)
			e.corrupt.Inc()
			r.state = nil
		}
	}
	if r.state == nil {
		if archetype == "" {
			archetype = e.archetype
		}
		r.state = dynamics.New(archetype, now)
		r.touch()
		created = true
		e.created.Inc()
	}
	r.dyn = dynamics.NewEngine(e.seedFor(key, r.state))
	return created, nil
}

// seedFor derives a relationship's noise seed from the base seed, the key
// and the state's clock, so a reloaded relationship continues with a stream
// that is reproducible but not a replay of the one before the restart.
func (e *Engine) seedFor(key Key, s *dynamics.State) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key.UserID))
	h.Write([]byte{0})
	h.Write([]byte(key.SessionID))
	return e.seed ^ h.Sum64() ^ uint64(s.LastUpdate.UnixNano())
}

// now is the policy clock for s: wall time, but never behind the state's
// own virtual clock.
func (e *Engine) now(s *dynamics.State) time.Time {
	now := e.clock()
	if now.Before(s.LastUpdate) {
		return s.LastUpdate
	}
	return now
}

// view runs fn with the relationship locked.
func (e *Engine) view(ctx context.Context, key Key, fn func(r *relationship, now time.Time)) error {
	r, _, err := e.acquire(ctx, key, "")
	if err != nil {
		return err
	}
	defer r.mu.Unlock()
	fn(r, e.now(r.state))
	return nil
}

// Init loads or creates a relationship. created reports whether a new state
// was initialized from archetype.
func (e *Engine) Init(ctx context.Context, key Key, archetype string) (dynamics.Summary, bool, error) {
	r, created, err := e.acquire(ctx, key, archetype)
	if err != nil {
		return dynamics.Summary{}, false, err
	}
	defer r.mu.Unlock()
	return dynamics.Summarize(r.state, e.now(r.state)), created, nil
}

// UpdateRequest is one update call. A nil ElapsedHours means the wall-clock
// time since the state's last update.
type UpdateRequest struct {
	ElapsedHours *float64      `json:"elapsed_hours,omitempty"`
	Event        dynamics.Event `json:"event"`
	Archetype    string        `json:"archetype,omitempty"`
}

// UpdateResult is the outcome of Update.
type UpdateResult struct {
	Result  dynamics.Result  `json:"result"`
	Summary dynamics.Summary `json:"summary"`
}

// pressureWindow matches the bombardment guard's window.
const pressureWindow = 10 * time.Minute

// Update advances a relationship. When the event carries a user message but
// no explicit pressure, pressure is taken from the relationship's own
// message history including this message.
func (e *Engine) Update(ctx context.Context, key Key, req UpdateRequest) (UpdateResult, error) {
	r, _, err := e.acquire(ctx, key, req.Archetype)
	if err != nil {
		return UpdateResult{}, err
	}

	s := r.state
	var hours float64
	if req.ElapsedHours != nil {
		hours = *req.ElapsedHours
	} else if d := e.clock().Sub(s.LastUpdate); d > 0 {
		hours = d.Hours()
	}

	ev := req.Event
	if ev.UserMessageReceived && ev.UserMessagePressure == 0 && hours >= 0 {
		at := s.LastUpdate.Add(time.Duration(hours * float64(time.Hour)))
		ev.UserMessagePressure = s.Patterns.MessagePressure(at, pressureWindow) + 1/pressureWindow.Minutes()
	}

	res := r.dyn.Update(s, hours, ev)
	r.touch()
	// Logged under the lock so a concurrent Delete also removes this record.
	e.logUpdate(ctx, key, res, req.Event)
	out := UpdateResult{Result: res, Summary: dynamics.Summarize(s, res.Now)}
	r.mu.Unlock()

	e.updates.Inc()
	return out, nil
}

func (e *Engine) logUpdate(ctx context.Context, key Key, res dynamics.Result, ev dynamics.Event) {
	if e.updateLog == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("engine: encode event for %s: %v", key, err)
		return
	}
	err = e.updateLog.AppendUpdate(ctx, store.UpdateRecord{
		UserID:       key.UserID,
		SessionID:    key.SessionID,
		ElapsedHours: res.ElapsedHours,
		Event:        string(data),
		Category:     string(res.Category),
		Loops:        strings.Join(res.LoopsFired, ","),
	})
	if err != nil {
		log.Printf("engine: log update for %s: %v", key, err)
	}
}

// RecordAgentMessage notes an unanswered agent message and returns the new
// unanswered count.
func (e *Engine) RecordAgentMessage(ctx context.Context, key Key) (int, error) {
	var n int
	err := e.view(ctx, key, func(r *relationship, now time.Time) {
		r.state.RecordAgentMessage(now)
		r.touch()
		n = r.state.UnansweredMessageCount
	})
	return n, err
}

// Outreach draws a proactive-message decision.
func (e *Engine) Outreach(ctx context.Context, key Key) (dynamics.OutreachDecision, error) {
	var d dynamics.OutreachDecision
	err := e.view(ctx, key, func(r *relationship, now time.Time) {
		d = r.dyn.Outreach(r.state, now)
	})
	return d, err
}

// FilterEffectiveness returns how composed output should be, in [0,1].
func (e *Engine) FilterEffectiveness(ctx context.Context, key Key) (float64, error) {
	var f float64
	err := e.view(ctx, key, func(r *relationship, now time.Time) {
		f = dynamics.FilterEffectiveness(r.state, now)
	})
	return f, err
}

// Tone returns the message tone vector.
func (e *Engine) Tone(ctx context.Context, key Key) (dynamics.Tone, error) {
	var t dynamics.Tone
	err := e.view(ctx, key, func(r *relationship, _ time.Time) {
		t = dynamics.MessageTone(r.state)
	})
	return t, err
}

// ResistanceStatus is the latch state after evaluation.
type ResistanceStatus struct {
	Resistant bool   `json:"resistant"`
	Guard     string `json:"guard,omitempty"` // set only on the call that latched
}

// Resistance evaluates the resistance latch. Latching is a state change and
// is persisted on the next flush.
func (e *Engine) Resistance(ctx context.Context, key Key) (ResistanceStatus, error) {
	var st ResistanceStatus
	err := e.view(ctx, key, func(r *relationship, now time.Time) {
		was := r.state.Resistant()
		st.Guard, st.Resistant = r.state.EnterResistance(now)
		if st.Resistant && !was {
			r.touch()
			log.Printf("engine: %s entered resistance (%s)", key, st.Guard)
		}
	})
	return st, err
}

// PassiveAggressive reports whether a passive-aggressive reply is due and
// why.
func (e *Engine) PassiveAggressive(ctx context.Context, key Key) (bool, string, error) {
	var (
		ok     bool
		reason string
	)
	err := e.view(ctx, key, func(r *relationship, now time.Time) {
		ok, reason = dynamics.ShouldSendPassiveAggressive(r.state, now)
	})
	return ok, reason, err
}

// Category returns the emotional category.
func (e *Engine) Category(ctx context.Context, key Key) (dynamics.Category, error) {
	var c dynamics.Category
	err := e.view(ctx, key, func(r *relationship, _ time.Time) {
		c = dynamics.EmotionalCategory(r.state)
	})
	return c, err
}

// Summary returns the rounded display record.
func (e *Engine) Summary(ctx context.Context, key Key) (dynamics.Summary, error) {
	var sum dynamics.Summary
	err := e.view(ctx, key, func(r *relationship, now time.Time) {
		sum = dynamics.Summarize(r.state, now)
	})
	return sum, err
}

// TemporalReport combines the two signals derived from message history.
type TemporalReport struct {
	Anomalous       bool    `json:"anomalous"`
	AnomalyScore    float64 `json:"anomaly_score"`
	Sufficient      bool    `json:"sufficient_data"`
	MessagePressure float64 `json:"message_pressure"`
}

// Temporal scores the current hour and message pressure.
func (e *Engine) Temporal(ctx context.Context, key Key) (TemporalReport, error) {
	var rep TemporalReport
	err := e.view(ctx, key, func(r *relationship, now time.Time) {
		a := r.state.Patterns.Anomaly(now)
		rep = TemporalReport{
			Anomalous:       a.Anomalous,
			AnomalyScore:    a.Score,
			Sufficient:      a.Sufficient,
			MessagePressure: r.state.Patterns.MessagePressure(now, pressureWindow),
		}
	})
	return rep, err
}

// Snapshot returns the encoded current state.
func (e *Engine) Snapshot(ctx context.Context, key Key) ([]byte, error) {
	var (
		data []byte
		merr error
	)
	err := e.view(ctx, key, func(r *relationship, _ time.Time) {
		data, merr = dynamics.MarshalSnapshot(r.state)
	})
	if err != nil {
		return nil, err
	}
	return data, merr
}

// Restore replaces a relationship's state with a decoded snapshot.
func (e *Engine) Restore(ctx context.Context, key Key, data []byte) error {
	s, err := dynamics.ParseSnapshot(data, e.clock())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	return e.view(ctx, key, func(r *relationship, _ time.Time) {
		r.state = s
		r.dyn = dynamics.NewEngine(e.seedFor(key, s))
		r.touch()
	})
}

// Delete drops a relationship from memory and from the store. It waits for
// an in-flight flush so an older snapshot cannot be written back after it.
func (e *Engine) Delete(ctx context.Context, key Key) error {
	if !key.valid() {
		return ErrInvalidKey
	}
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	e.mu.Lock()
	r, ok := e.rels[key]
	delete(e.rels, key)
	e.mu.Unlock()

	if ok {
		r.mu.Lock()
		r.deleted = true
		r.state = nil
		r.dirty = false
		r.mu.Unlock()
	}
	if err := e.Store.DeleteSnapshot(ctx, key.UserID, key.SessionID); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Keys returns the relationships currently held in memory.
func (e *Engine) Keys() []Key {
	e.mu.Lock()
	defer e.mu.Unlock()
	keys := make([]Key, 0, len(e.rels))
	for k := range e.rels {
		keys = append(keys, k)
	}
	return keys
}
