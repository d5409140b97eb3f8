package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/matheus3301/chatsync/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

var watchStream = &grpc.StreamDesc{StreamName: "WatchEvents", ServerStreams: true}

// Client calls chatsync.v1.CommandService.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an established connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Fields are the arguments of a dispatched command, keyed as in the frame
// (conversation_id, ordinal, text, ...).
type Fields map[string]any

// Dispatch sends a command of the given type.
func (c *Client) Dispatch(ctx context.Context, typ string, f Fields) error {
	req := map[string]any{"type": typ}
	for k, v := range f {
		req[k] = v
	}
	var resp struct {
		Accepted bool `json:"accepted"`
	}
	if err := c.invoke(ctx, "Dispatch", req, &resp); err != nil {
		return err
	}
	if !resp.Accepted {
		return fmt.Errorf("dispatch %s: not accepted", typ)
	}
	return nil
}

// ConversationList is the ListConversations response.
type ConversationList struct {
	Conversations []Conversation `json:"conversations"`
	Selected      string         `json:"selected"`
}

// ListConversations returns up to limit conversations, most recent first.
func (c *Client) ListConversations(ctx context.Context, limit int) (ConversationList, error) {
	var resp ConversationList
	err := c.invoke(ctx, "ListConversations", map[string]any{"limit": limit}, &resp)
	return resp, err
}

// ListMessages returns the newest limit messages of a conversation in
// ordinal order.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	var resp struct {
		Messages []Message `json:"messages"`
	}
	err := c.invoke(ctx, "ListMessages", map[string]any{"conversation_id": conversationID, "limit": limit}, &resp)
	return resp.Messages, err
}

// SearchMessages searches persisted messages. An empty conversationID
// searches all conversations.
func (c *Client) SearchMessages(ctx context.Context, query, conversationID string, limit int) ([]SearchHit, error) {
	var resp struct {
		Results []SearchHit `json:"results"`
	}
	err := c.invoke(ctx, "SearchMessages", map[string]any{
		"query":           query,
		"conversation_id": conversationID,
		"limit":           limit,
	}, &resp)
	return resp.Results, err
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var resp Status
	err := c.invoke(ctx, "Status", map[string]any{}, &resp)
	return resp, err
}

// WatchEvents streams bus events whose kind starts with namespace until ctx
// is done or fn returns an error.
func (c *Client) WatchEvents(ctx context.Context, namespace string, fn func(Event) error) error {
	stream, err := c.conn.NewStream(ctx, watchStream, "/"+ServiceName+"/WatchEvents")
	if err != nil {
		return fmt.Errorf("open event stream: %w", err)
	}
	req, err := wire.Struct(map[string]any{"namespace": namespace})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(req); err != nil {
		return fmt.Errorf("send watch request: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close watch request: %w", err)
	}
	for {
		frame := &structpb.Struct{}
		if err := stream.RecvMsg(frame); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("receive event: %w", err)
		}
		var evt Event
		if err := wire.Decode(frame, &evt); err != nil {
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	in, err := wire.Struct(req)
	if err != nil {
		return err
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return wire.Decode(out, resp)
}
