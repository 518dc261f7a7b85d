package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/lazypower/affinity/internal/dynamics"
	"github.com/lazypower/affinity/internal/engine"
	"github.com/lazypower/affinity/internal/store"
)

var t0 = time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC)

var alice = engine.Key{UserID: "alice", SessionID: "s1"}

func testClient(t *testing.T) *Client {
	t.Helper()
	db, err := store.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	eng := engine.New(db, engine.Options{Seed: 1, Clock: func() time.Time { return t0 }})
	t.Cleanup(eng.Stop)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, eng)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	c, err := NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestUpdateAndSummary(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	res, err := c.Update(ctx, alice, engine.UpdateRequest{
		ElapsedHours: dynamics.Float(3),
		Event:        dynamics.Event{UserMessageReceived: true, DisclosureDepth: dynamics.Float(8)},
		Archetype:    "secure",
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if res.Result.ElapsedHours != 3 {
		t.Errorf("ElapsedHours = %v, want 3", res.Result.ElapsedHours)
	}
	if !res.Result.Now.Equal(t0.Add(3 * time.Hour)) {
		t.Errorf("Now = %v", res.Result.Now)
	}

	sum, err := c.Summary(ctx, alice)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.Archetype != "secure" || sum.TotalInteractions != 1 {
		t.Errorf("Summary = %+v", sum)
	}
	if sum.Variables["intimacy"] <= 0 {
		t.Errorf("intimacy = %v, want > 0", sum.Variables["intimacy"])
	}
}

func TestRecordAgentMessage(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	for want := 1; want <= 2; want++ {
		n, err := c.RecordAgentMessage(ctx, alice)
		if err != nil {
			t.Fatalf("RecordAgentMessage: %v", err)
		}
		if n != want {
			t.Errorf("unanswered = %d, want %d", n, want)
		}
	}
}

func TestQueries(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	d, err := c.Outreach(ctx, alice)
	if err != nil {
		t.Fatalf("Outreach: %v", err)
	}
	if d.Probability < 0 || d.Probability > 0.3 {
		t.Errorf("Probability = %v", d.Probability)
	}

	var tone dynamics.Tone
	if err := c.Query(ctx, alice, QueryTone, &tone); err != nil {
		t.Fatalf("tone: %v", err)
	}
	if tone.Assertiveness < 0.2 || tone.Assertiveness > 1 {
		t.Errorf("Assertiveness = %v", tone.Assertiveness)
	}

	var pa struct {
		Send   bool   `json:"send"`
		Reason string `json:"reason"`
	}
	if err := c.Query(ctx, alice, QueryPassiveAggressive, &pa); err != nil {
		t.Fatalf("passive_aggressive: %v", err)
	}
	if pa.Send || pa.Reason != dynamics.ReasonNotResistant {
		t.Errorf("passive_aggressive = %+v", pa)
	}

	var cat struct {
		Category string `json:"category"`
	}
	if err := c.Query(ctx, alice, QueryCategory, &cat); err != nil {
		t.Fatalf("category: %v", err)
	}
	if cat.Category == "" {
		t.Error("empty category")
	}

	for _, q := range []string{QueryFilter, QueryResistance, QueryTemporal} {
		var out map[string]any
		if err := c.Query(ctx, alice, q, &out); err != nil {
			t.Errorf("%s: %v", q, err)
		}
	}
}

func TestErrorCodes(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	var out map[string]any
	err := c.Query(ctx, alice, "horoscope", &out)
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("unknown query code = %v, want InvalidArgument", status.Code(err))
	}

	_, err = c.Summary(ctx, engine.Key{UserID: "alice"})
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("missing session code = %v, want InvalidArgument", status.Code(err))
	}
}
