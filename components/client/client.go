// Package client drives a client replica session: it connects to the server without blocking the tick,
// attaches the session once connected and ticks it at the configured rate.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/colonyworld/replica/engine/config"
	"github.com/colonyworld/replica/engine/entity"
	"github.com/colonyworld/replica/engine/gwlog"
	"github.com/colonyworld/replica/engine/transport"
	"github.com/pkg/errors"
)

// Client owns a client session and its connection to the server
type Client struct {
	Session *entity.Session

	// OnConnectFailed is called on the tick goroutine when a connect attempt fails
	OnConnectFailed func(err error)

	cfg     *config.ClientConfig
	backend transport.Backend
	pending *transport.Pending
}

// New creates a client for the [client] config, it does not connect until Connect
func New(cfg *config.ClientConfig, opts entity.Options) (*Client, error) {
	backend, err := transport.Get(cfg.Transport, transport.Options{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		NoDelay:         cfg.NoDelay,
		Compress:        cfg.CompressConnection,
	})
	if err != nil {
		return nil, err
	}
	clientCfg := *cfg
	return &Client{
		Session: entity.NewClientSession(opts),
		cfg:     &clientCfg,
		backend: backend,
	}, nil
}

func (c *Client) String() string {
	return fmt.Sprintf("Client<%s://%s>", c.backend.Name(), c.cfg.ServerAddr)
}

// Connect starts connecting to the server, the session is attached on the tick the connect completes
func (c *Client) Connect() error {
	if c.pending != nil || c.Session.IsAttached() {
		return errors.Errorf("%s is already connecting or connected", c)
	}
	gwlog.Infof("%s connecting ...", c)
	c.pending = c.backend.Dial(c.cfg.ServerAddr)
	return nil
}

// Connecting checks if a connect is in progress
func (c *Client) Connecting() bool {
	return c.pending != nil
}

// Tick completes a finished connect and ticks the session
func (c *Client) Tick(dt time.Duration) {
	if c.pending != nil && c.pending.Done() {
		c.finishConnect()
	}
	c.Session.Tick(dt)
}

func (c *Client) finishConnect() {
	stream, err := c.pending.Result()
	c.pending = nil
	if err == nil {
		err = c.Session.Attach(stream)
		if err != nil {
			stream.CloseLinger(0)
		}
	}
	if err != nil {
		gwlog.Errorf("%s connect failed: %v", c, err)
		if c.OnConnectFailed != nil {
			c.OnConnectFailed(err)
		}
		return
	}
	gwlog.Infof("%s connected, waiting for snapshot ...", c)
}

// Run ticks the client at the configured rate until ctx is done, then closes the session
func (c *Client) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	defer c.Close()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Tick(now.Sub(last))
			last = now
		}
	}
}

// Close disconnects from the server, queued messages are flushed within the linger period
func (c *Client) Close() {
	if c.pending != nil {
		if stream, err := c.pending.Result(); err == nil {
			stream.CloseLinger(0)
		}
		c.pending = nil
	}
	c.Session.Close()
}
