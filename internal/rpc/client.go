package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/lazypower/affinity/internal/dynamics"
	"github.com/lazypower/affinity/internal/engine"
)

// Client calls the Affinity service.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// NewClient connects to an Affinity server at addr without TLS.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// Close shuts down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, req map[string]any, out any) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, resp); err != nil {
		return err
	}
	if err := fromStruct(resp, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func keyRequest(key engine.Key) map[string]any {
	return map[string]any{"user_id": key.UserID, "session_id": key.SessionID}
}

// Update advances a relationship.
func (c *Client) Update(ctx context.Context, key engine.Key, req engine.UpdateRequest) (engine.UpdateResult, error) {
	m := keyRequest(key)
	ev, err := toStruct(req.Event)
	if err != nil {
		return engine.UpdateResult{}, err
	}
	m["event"] = ev.AsMap()
	if req.ElapsedHours != nil {
		m["elapsed_hours"] = *req.ElapsedHours
	}
	if req.Archetype != "" {
		m["archetype"] = req.Archetype
	}

	var res engine.UpdateResult
	if err := c.call(ctx, methodUpdate, m, &res); err != nil {
		return res, fmt.Errorf("update rpc: %w", err)
	}
	return res, nil
}

// RecordAgentMessage notes an unanswered agent message.
func (c *Client) RecordAgentMessage(ctx context.Context, key engine.Key) (int, error) {
	var out struct {
		Unanswered int `json:"unanswered_message_count"`
	}
	if err := c.call(ctx, methodAgentMessage, keyRequest(key), &out); err != nil {
		return 0, fmt.Errorf("agent message rpc: %w", err)
	}
	return out.Unanswered, nil
}

// Query runs a named query and decodes its result into out.
func (c *Client) Query(ctx context.Context, key engine.Key, query string, out any) error {
	m := keyRequest(key)
	m["query"] = query
	if err := c.call(ctx, methodQuery, m, out); err != nil {
		return fmt.Errorf("%s rpc: %w", query, err)
	}
	return nil
}

// Summary returns the display record.
func (c *Client) Summary(ctx context.Context, key engine.Key) (dynamics.Summary, error) {
	var sum dynamics.Summary
	err := c.Query(ctx, key, QuerySummary, &sum)
	return sum, err
}

// Outreach draws a proactive-message decision.
func (c *Client) Outreach(ctx context.Context, key engine.Key) (dynamics.OutreachDecision, error) {
	var d dynamics.OutreachDecision
	err := c.Query(ctx, key, QueryOutreach, &d)
	return d, err
}
