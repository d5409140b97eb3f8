// Package grpcgw implements rpc.Gateway and rpc.PushSource over a gRPC
// connection to the chat backend. Frames are google.protobuf.Struct values:
//
//	request  {method, params}
//	callback {callback, payload}
//	terminal {result} or {error}
//	push     {name, payload}
package grpcgw

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/matheus3301/chatsync/internal/rpc"
	"github.com/matheus3301/chatsync/internal/wire"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

const serviceName = "chatsync.gateway.v1.Gateway"

var (
	callMethod      = "/" + serviceName + "/Call"
	streamMethod    = "/" + serviceName + "/Stream"
	subscribeMethod = "/" + serviceName + "/Subscribe"

	serverStream = &grpc.StreamDesc{ServerStreams: true}
)

// Client talks to the backend gateway.
type Client struct {
	conn   *grpc.ClientConn
	logger *zap.Logger
}

// Dial connects to the gateway at target (host:port or unix://path).
func Dial(target string, logger *zap.Logger, opts ...grpc.DialOption) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial gateway: %w", err)
	}
	return &Client{conn: conn, logger: logger.Named("gateway")}, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) Call(ctx context.Context, method string, params rpc.Params) (gjson.Result, error) {
	req, err := request(method, params)
	if err != nil {
		return gjson.Result{}, err
	}
	resp := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, callMethod, req, resp); err != nil {
		return gjson.Result{}, fmt.Errorf("call %s: %w", method, err)
	}
	return terminal(method, resp)
}

func (c *Client) Stream(ctx context.Context, method string, params rpc.Params, handle func(rpc.Event) error) (gjson.Result, error) {
	req, err := request(method, params)
	if err != nil {
		return gjson.Result{}, err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stream, err := c.conn.NewStream(ctx, serverStream, streamMethod)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("open stream %s: %w", method, err)
	}
	if err := stream.SendMsg(req); err != nil {
		return gjson.Result{}, fmt.Errorf("send %s: %w", method, err)
	}
	if err := stream.CloseSend(); err != nil {
		return gjson.Result{}, fmt.Errorf("close send %s: %w", method, err)
	}

	for {
		frame := &structpb.Struct{}
		if err := stream.RecvMsg(frame); err != nil {
			if errors.Is(err, io.EOF) {
				return gjson.Result{}, fmt.Errorf("stream %s: ended without result", method)
			}
			return gjson.Result{}, fmt.Errorf("stream %s: %w", method, err)
		}
		j, err := wire.JSON(frame)
		if err != nil {
			return gjson.Result{}, err
		}
		name := j.Get("callback").String()
		if name == "" {
			return terminal(method, frame)
		}
		evt := rpc.Decode(name, j.Get("payload"))
		if u, ok := evt.(rpc.Unknown); ok {
			c.logger.Debug("unknown callback", zap.String("method", method), zap.String("callback", u.Name))
		}
		if handle != nil {
			if err := handle(evt); err != nil {
				return gjson.Result{}, fmt.Errorf("handle %s: %w", name, err)
			}
		}
	}
}

// Subscribe streams push notifications until ctx is done.
func (c *Client) Subscribe(ctx context.Context, deliver func(rpc.Notification)) error {
	stream, err := c.conn.NewStream(ctx, serverStream, subscribeMethod)
	if err != nil {
		return fmt.Errorf("open push stream: %w", err)
	}
	if err := stream.SendMsg(&structpb.Struct{}); err != nil {
		return fmt.Errorf("send push subscribe: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		return fmt.Errorf("close push subscribe: %w", err)
	}
	for {
		frame := &structpb.Struct{}
		if err := stream.RecvMsg(frame); err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("receive push: %w", err)
		}
		j, err := wire.JSON(frame)
		if err != nil {
			c.logger.Warn("bad push frame", zap.Error(err))
			continue
		}
		deliver(rpc.Notification{Name: j.Get("name").String(), Payload: payload(j.Get("payload"))})
	}
}

func request(method string, params rpc.Params) (*structpb.Struct, error) {
	if params == nil {
		params = rpc.Params{}
	}
	req, err := wire.Struct(map[string]any{"method": method, "params": params})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	return req, nil
}

func terminal(method string, frame *structpb.Struct) (gjson.Result, error) {
	j, err := wire.JSON(frame)
	if err != nil {
		return gjson.Result{}, err
	}
	if e := j.Get("error"); e.Exists() && e.Type != gjson.Null {
		return gjson.Result{}, fmt.Errorf("%s: %s", method, e.String())
	}
	return j.Get("result"), nil
}

// payload unwraps a payload sent as a JSON string.
func payload(r gjson.Result) gjson.Result {
	if r.Type == gjson.String {
		return gjson.Parse(r.String())
	}
	return r
}
