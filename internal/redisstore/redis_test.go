package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lazypower/affinity/internal/store"
)

func testStore(t *testing.T, cfg Config) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := New(client, cfg)
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestLoadSnapshotMissing(t *testing.T) {
	s, _ := testStore(t, Config{})
	data, err := s.LoadSnapshot(context.Background(), "u", "s")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if data != nil {
		t.Errorf("LoadSnapshot = %q, want nil", data)
	}
}

func TestSaveLoadDelete(t *testing.T) {
	s, mr := testStore(t, Config{Prefix: "test"})
	ctx := context.Background()

	if err := s.SaveSnapshot(ctx, "user:1", "sess", []byte(`{"trust":50}`)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if !mr.Exists("test:snapshot:user%3A1:sess") {
		t.Errorf("expected escaped key; keys = %v", mr.Keys())
	}

	data, err := s.LoadSnapshot(ctx, "user:1", "sess")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if string(data) != `{"trust":50}` {
		t.Errorf("LoadSnapshot = %s", data)
	}

	keys, err := s.ListRelationships(ctx)
	if err != nil {
		t.Fatalf("ListRelationships: %v", err)
	}
	if len(keys) != 1 || keys[0].UserID != "user:1" || keys[0].SessionID != "sess" {
		t.Errorf("ListRelationships = %+v", keys)
	}

	s.AppendUpdate(ctx, store.UpdateRecord{UserID: "user:1", SessionID: "sess", Category: "neutral"})
	if err := s.DeleteSnapshot(ctx, "user:1", "sess"); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	if data, _ := s.LoadSnapshot(ctx, "user:1", "sess"); data != nil {
		t.Errorf("snapshot survived delete: %s", data)
	}
	if recs, _ := s.GetUpdates(ctx, "user:1", "sess", 10); len(recs) != 0 {
		t.Errorf("log survived delete: %d records", len(recs))
	}
	if keys, _ := s.ListRelationships(ctx); len(keys) != 0 {
		t.Errorf("index survived delete: %+v", keys)
	}
}

func TestSnapshotTTL(t *testing.T) {
	s, mr := testStore(t, Config{TTL: time.Hour})
	ctx := context.Background()

	s.SaveSnapshot(ctx, "u", "s", []byte(`{}`))
	if ttl := mr.TTL("affinity:snapshot:u:s"); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if data, _ := s.LoadSnapshot(ctx, "u", "s"); data != nil {
		t.Errorf("expired snapshot still readable: %s", data)
	}
	keys, err := s.ListRelationships(ctx)
	if err != nil {
		t.Fatalf("ListRelationships: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("ListRelationships after expiry = %+v", keys)
	}
}

func TestListRelationshipsSorted(t *testing.T) {
	s, _ := testStore(t, Config{})
	ctx := context.Background()
	for _, k := range []Key{{"bob", "2"}, {"alice", "9"}, {"bob", "1"}} {
		s.SaveSnapshot(ctx, k.UserID, k.SessionID, []byte(`{}`))
	}

	keys, err := s.ListRelationships(ctx)
	if err != nil {
		t.Fatalf("ListRelationships: %v", err)
	}
	want := []Key{{"alice", "9"}, {"bob", "1"}, {"bob", "2"}}
	if len(keys) != len(want) {
		t.Fatalf("got %d keys, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %+v, want %+v", i, keys[i], want[i])
		}
	}
}

func TestUpdateLogCapped(t *testing.T) {
	s, _ := testStore(t, Config{LogSize: 3})
	ctx := context.Background()

	for i, cat := range []string{"a", "b", "c", "d", "e"} {
		err := s.AppendUpdate(ctx, store.UpdateRecord{
			UserID: "u", SessionID: "s", ElapsedHours: float64(i), Category: cat,
		})
		if err != nil {
			t.Fatalf("AppendUpdate: %v", err)
		}
	}

	recs, err := s.GetUpdates(ctx, "u", "s", 10)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].Category != "c" || recs[2].Category != "e" {
		t.Errorf("categories = %s..%s, want c..e", recs[0].Category, recs[2].Category)
	}
	if recs[0].ID == "" || recs[0].UserID != "u" || recs[0].CreatedAt == 0 {
		t.Errorf("record = %+v", recs[0])
	}

	recent, _ := s.GetUpdates(ctx, "u", "s", 1)
	if len(recent) != 1 || recent[0].Category != "e" {
		t.Errorf("GetUpdates(1) = %+v", recent)
	}
}

func TestHealthy(t *testing.T) {
	s, mr := testStore(t, Config{})
	if err := s.Healthy(context.Background()); err != nil {
		t.Fatalf("Healthy: %v", err)
	}
	mr.Close()
	if err := s.Healthy(context.Background()); err == nil {
		t.Error("Healthy succeeded against a stopped server")
	}
}

func TestDialFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := Dial(ctx, "127.0.0.1:1", Config{}); err == nil {
		t.Error("Dial to a closed port succeeded")
	}
}
