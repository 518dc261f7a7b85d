package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lazypower/affinity/internal/dynamics"
)

// flushTimeout bounds one timer-driven flush.
const flushTimeout = 30 * time.Second

// Save writes one relationship through to the store, dirty or not.
func (e *Engine) Save(ctx context.Context, key Key) error {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()

	r, _, err := e.acquire(ctx, key, "")
	if err != nil {
		return err
	}
	data, err := dynamics.MarshalSnapshot(r.state)
	gen := r.gen
	r.mu.Unlock()
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err := e.Store.SaveSnapshot(ctx, key.UserID, key.SessionID, data); err != nil {
		e.saveFailures.Inc()
		return fmt.Errorf("save %s: %w", key, err)
	}
	r.saved(gen)
	e.saved.Inc()
	return nil
}

// saved clears dirty unless the state changed after generation gen was
// encoded.
func (r *relationship) saved(gen uint64) {
	r.mu.Lock()
	if r.gen == gen {
		r.dirty = false
	}
	r.mu.Unlock()
}

// Flush writes every dirty relationship to the store and returns how many
// were saved. A relationship that fails to save, or changes while its
// snapshot is being written, stays dirty for the next flush. Errors are
// joined.
func (e *Engine) Flush(ctx context.Context) (int, error) {
	e.flushMu.Lock()
	defer e.flushMu.Unlock()
	e.flushes.Inc()

	e.mu.Lock()
	pending := make(map[Key]*relationship, len(e.rels))
	for k, r := range e.rels {
		pending[k] = r
	}
	e.mu.Unlock()

	var (
		saved int
		errs  []error
	)
	for key, r := range pending {
		r.mu.Lock()
		if !r.dirty || r.deleted || r.state == nil {
			r.mu.Unlock()
			continue
		}
		data, err := dynamics.MarshalSnapshot(r.state)
		gen := r.gen
		r.mu.Unlock()
		if err != nil {
			errs = append(errs, fmt.Errorf("encode %s: %w", key, err))
			continue
		}

		if err := e.Store.SaveSnapshot(ctx, key.UserID, key.SessionID, data); err != nil {
			e.saveFailures.Inc()
			errs = append(errs, fmt.Errorf("save %s: %w", key, err))
			continue
		}
		r.saved(gen)
		saved++
	}
	e.saved.Add(int64(saved))
	return saved, errors.Join(errs...)
}

// StartFlushTimer flushes dirty relationships every interval until Stop.
func (e *Engine) StartFlushTimer(interval time.Duration) {
	if interval <= 0 {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
				if n, err := e.Flush(ctx); err != nil {
					log.Printf("engine: flush error: %v", err)
				} else if n > 0 {
					log.Printf("engine: flushed %d relationships", n)
				}
				cancel()
			case <-e.stopCh:
				return
			}
		}
	}()
}

// Stop ends the flush timer and waits for an in-flight flush. It does not
// flush; callers that want a final write call Flush after Stop.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() { close(e.stopCh) })
	e.wg.Wait()
}

// Stats are process-lifetime counters.
type Stats struct {
	Live         int   `json:"live"`
	Dirty        int   `json:"dirty"`
	Updates      int64 `json:"updates"`
	Created      int64 `json:"created"`
	Corrupt      int64 `json:"corrupt_snapshots"`
	Flushes      int64 `json:"flushes"`
	Saved        int64 `json:"saved"`
	SaveFailures int64 `json:"save_failures"`
}

// Stats returns current counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	rels := make([]*relationship, 0, len(e.rels))
	for _, r := range e.rels {
		rels = append(rels, r)
	}
	e.mu.Unlock()

	st := Stats{
		Updates:      e.updates.Load(),
		Created:      e.created.Load(),
		Corrupt:      e.corrupt.Load(),
		Flushes:      e.flushes.Load(),
		Saved:        e.saved.Load(),
		SaveFailures: e.saveFailures.Load(),
	}
	for _, r := range rels {
		r.mu.Lock()
		if r.state != nil {
			st.Live++
			if r.dirty {
				st.Dirty++
			}
		}
		r.mu.Unlock()
	}
	return st
}
