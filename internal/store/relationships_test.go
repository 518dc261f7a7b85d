package store

import (
	"context"
	"testing"
)

func TestLoadSnapshotMissing(t *testing.T) {
	db := testDB(t)
	data, err := db.LoadSnapshot(context.Background(), "nobody", "nowhere")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if data != nil {
		t.Errorf("LoadSnapshot = %q, want nil", data)
	}
}

func TestSaveAndLoadSnapshot(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.SaveSnapshot(ctx, "alice", "s1", []byte(`{"anxiety":10}`)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := db.SaveSnapshot(ctx, "alice", "s1", []byte(`{"anxiety":20}`)); err != nil {
		t.Fatalf("SaveSnapshot overwrite: %v", err)
	}
	if err := db.SaveSnapshot(ctx, "alice", "s2", []byte(`{"anxiety":30}`)); err != nil {
		t.Fatalf("SaveSnapshot second session: %v", err)
	}

	data, err := db.LoadSnapshot(ctx, "alice", "s1")
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if string(data) != `{"anxiety":20}` {
		t.Errorf("LoadSnapshot = %s, want overwritten snapshot", data)
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM relationships").Scan(&count)
	if count != 2 {
		t.Errorf("relationships rows = %d, want 2", count)
	}
}

func TestDeleteSnapshotRemovesLog(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	db.SaveSnapshot(ctx, "bob", "s", []byte(`{}`))
	db.AppendUpdate(ctx, UpdateRecord{UserID: "bob", SessionID: "s", Event: "{}", Category: "neutral"})
	db.AppendUpdate(ctx, UpdateRecord{UserID: "carol", SessionID: "s", Event: "{}", Category: "neutral"})

	if err := db.DeleteSnapshot(ctx, "bob", "s"); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	data, _ := db.LoadSnapshot(ctx, "bob", "s")
	if data != nil {
		t.Errorf("snapshot survived delete: %s", data)
	}
	if n, _ := db.CountUpdates(ctx, "bob", "s"); n != 0 {
		t.Errorf("bob updates = %d, want 0", n)
	}
	if n, _ := db.CountUpdates(ctx, "carol", "s"); n != 1 {
		t.Errorf("carol updates = %d, want 1", n)
	}

	if err := db.DeleteSnapshot(ctx, "bob", "s"); err != nil {
		t.Errorf("deleting a missing relationship: %v", err)
	}
}

func TestListRelationships(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for _, u := range []string{"a", "b", "c"} {
		if err := db.SaveSnapshot(ctx, u, "s", []byte(`{}`)); err != nil {
			t.Fatalf("SaveSnapshot %s: %v", u, err)
		}
	}

	rels, err := db.ListRelationships(ctx, 2)
	if err != nil {
		t.Fatalf("ListRelationships: %v", err)
	}
	if len(rels) != 2 {
		t.Fatalf("got %d relationships, want 2", len(rels))
	}
	if rels[0].UserID != "c" {
		t.Errorf("first = %q, want most recent c", rels[0].UserID)
	}
	if rels[0].CreatedAt == 0 || rels[0].UpdatedAt < rels[0].CreatedAt {
		t.Errorf("timestamps = %d/%d", rels[0].CreatedAt, rels[0].UpdatedAt)
	}
}
