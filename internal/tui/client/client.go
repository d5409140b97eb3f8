// Package client connects front ends to a session daemon.
package client

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	aliveTimeout = 2 * time.Second
	pollInterval = 300 * time.Millisecond
)

// Client wraps the gRPC connection to the daemon's command API.
type Client struct {
	*api.Client
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket. The connection is lazy; the
// first call reports an unreachable daemon.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{Client: api.NewClient(conn), conn: conn}, nil
}

// ForSession dials the daemon of the named session.
func ForSession(name string) (*Client, error) {
	return New(session.SocketPath(name))
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Alive reports whether a daemon listens on socketPath and answers Status.
func Alive(ctx context.Context, socketPath string) bool {
	if _, err := os.Stat(socketPath); err != nil {
		return false
	}
	c, err := New(socketPath)
	if err != nil {
		return false
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(ctx, aliveTimeout)
	defer cancel()
	_, err = c.Status(ctx)
	return err == nil
}

// WaitReady polls socketPath until a daemon answers or ctx is done.
func WaitReady(ctx context.Context, socketPath string) error {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		if Alive(ctx, socketPath) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("daemon at %s not ready: %w", socketPath, ctx.Err())
		case <-t.C:
		}
	}
}
