package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/affinity/internal/dynamics"
	"github.com/lazypower/affinity/internal/engine"
	"github.com/lazypower/affinity/internal/redisstore"
	"github.com/lazypower/affinity/internal/store"
)

// maxBodySize bounds request bodies, snapshots included.
const maxBodySize = 1 << 20

const defaultListLimit = 100

type updateReader interface {
	GetUpdates(ctx context.Context, userID, sessionID string, limit int) ([]store.UpdateRecord, error)
}

func keyFrom(r *http.Request) engine.Key {
	return engine.Key{
		UserID:    chi.URLParam(r, "userID"),
		SessionID: chi.URLParam(r, "sessionID"),
	}
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	writeError(w, http.StatusBadRequest, "invalid json")
	return false
}

func (s *Server) fail(w http.ResponseWriter, key engine.Key, op string, err error) {
	if errors.Is(err, engine.ErrInvalidKey) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log.Printf("server: %s %s: %v", op, key, err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func queryLimit(r *http.Request, def int) int {
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func (s *Server) handleArchetypes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"archetypes": dynamics.Archetypes(),
		"default":    dynamics.DefaultArchetype,
	})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.Flush(r.Context())
	if err != nil {
		log.Printf("server: flush: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"saved": n, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"saved": n})
}

func (s *Server) handleListRelationships(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultListLimit)

	var (
		keys []engine.Key
		err  error
	)
	switch b := s.backend.(type) {
	case *store.DB:
		var rels []store.Relationship
		rels, err = b.ListRelationships(r.Context(), limit)
		for _, rel := range rels {
			keys = append(keys, engine.Key{UserID: rel.UserID, SessionID: rel.SessionID})
		}
	case *redisstore.Store:
		var stored []redisstore.Key
		stored, err = b.ListRelationships(r.Context())
		for _, k := range stored {
			keys = append(keys, engine.Key{UserID: k.UserID, SessionID: k.SessionID})
		}
		if len(keys) > limit {
			keys = keys[:limit]
		}
	default:
		keys = s.engine.Keys()
	}
	if err != nil {
		log.Printf("server: list relationships: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if keys == nil {
		keys = []engine.Key{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"relationships": keys,
		"live":          len(s.engine.Keys()),
	})
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	var req struct {
		Archetype string `json:"archetype"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	sum, created, err := s.engine.Init(r.Context(), key, req.Archetype)
	if err != nil {
		s.fail(w, key, "init", err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeJSON(w, code, map[string]any{
		"created": created,
		"summary": sum,
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	var req engine.UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := s.engine.Update(r.Context(), key, req)
	if err != nil {
		s.fail(w, key, "update", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAgentMessage(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	n, err := s.engine.RecordAgentMessage(r.Context(), key)
	if err != nil {
		s.fail(w, key, "agent message", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unanswered_message_count": n})
}

func (s *Server) handleOutreach(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	d, err := s.engine.Outreach(r.Context(), key)
	if err != nil {
		s.fail(w, key, "outreach", err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleResistance(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	st, err := s.engine.Resistance(r.Context(), key)
	if err != nil {
		s.fail(w, key, "resistance", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	if err := s.engine.Save(r.Context(), key); err != nil {
		s.fail(w, key, "save", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	f, err := s.engine.FilterEffectiveness(r.Context(), key)
	if err != nil {
		s.fail(w, key, "filter", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]float64{"filter_effectiveness": f})
}

func (s *Server) handleTone(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	tone, err := s.engine.Tone(r.Context(), key)
	if err != nil {
		s.fail(w, key, "tone", err)
		return
	}
	writeJSON(w, http.StatusOK, tone)
}

func (s *Server) handlePassiveAggressive(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	ok, reason, err := s.engine.PassiveAggressive(r.Context(), key)
	if err != nil {
		s.fail(w, key, "passive aggressive", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"send": ok, "reason": reason})
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	c, err := s.engine.Category(r.Context(), key)
	if err != nil {
		s.fail(w, key, "category", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"category": string(c)})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	sum, err := s.engine.Summary(r.Context(), key)
	if err != nil {
		s.fail(w, key, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleTemporal(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	rep, err := s.engine.Temporal(r.Context(), key)
	if err != nil {
		s.fail(w, key, "temporal", err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	ur, ok := s.backend.(updateReader)
	if !ok {
		writeError(w, http.StatusNotImplemented, "update log not available")
		return
	}
	recs, err := ur.GetUpdates(r.Context(), key.UserID, key.SessionID, queryLimit(r, defaultListLimit))
	if err != nil {
		s.fail(w, key, "get updates", err)
		return
	}
	if recs == nil {
		recs = []store.UpdateRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"updates": recs})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	data, err := s.engine.Snapshot(r.Context(), key)
	if err != nil {
		s.fail(w, key, "snapshot", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}
	if err := s.engine.Restore(r.Context(), key, data); err != nil {
		if errors.Is(err, engine.ErrInvalidSnapshot) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.fail(w, key, "restore", err)
		return
	}
	sum, err := s.engine.Summary(r.Context(), key)
	if err != nil {
		s.fail(w, key, "restore", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key := keyFrom(r)
	if err := s.engine.Delete(r.Context(), key); err != nil {
		s.fail(w, key, "delete", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
