// Package websocket implements a streaming data source that reads JSON
// measurement records from a remote vehicle interface over a websocket
// connection.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/c360/vehiclehub/errors"
	"github.com/c360/vehiclehub/measurement"
	"github.com/c360/vehiclehub/pkg/retry"
	"github.com/c360/vehiclehub/source"
)

// Identifier is the name this source registers under.
const Identifier = "websocket"

// Client connects to a vehicle interface endpoint and streams one JSON
// measurement record per websocket text message into the ingestion
// callback. Lost connections are re-dialed with exponential backoff
// until Stop is called or the backoff budget is exhausted.
type Client struct {
	endpoint  string
	callback  source.Callback
	logger    *slog.Logger
	dialer    *websocket.Dialer
	reconnect retry.Config

	mu   sync.Mutex
	conn *websocket.Conn

	received atomic.Int64

	shutdown chan struct{}
	stopOnce sync.Once
}

var _ source.Source = (*Client)(nil)

// Register adds the websocket source factory to the registry.
func Register(r *source.Registry) error {
	return r.RegisterFactory(Identifier, New)
}

// New constructs a websocket source. The resource locator must be a
// ws:// or wss:// endpoint. No connection is made until Run.
func New(deps source.Deps) (source.Source, error) {
	if deps.Callback == nil {
		return nil, errors.WrapInvalid(
			fmt.Errorf("callback is required"),
			"websocket_source", "New", "validate dependencies",
		)
	}
	if deps.Resource == nil {
		return nil, errors.WrapInvalid(
			errors.ErrMissingConfig,
			"websocket_source", "New", "validate endpoint",
		)
	}
	if deps.Resource.Scheme != "ws" && deps.Resource.Scheme != "wss" {
		return nil, errors.WrapInvalid(
			fmt.Errorf("unsupported scheme %q", deps.Resource.Scheme),
			"websocket_source", "New", "validate endpoint",
		)
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default().With("component", "websocket_source")
	}

	return &Client{
		endpoint:  deps.Resource.String(),
		callback:  deps.Callback,
		logger:    logger,
		dialer:    websocket.DefaultDialer,
		reconnect: retry.Persistent(),
		shutdown:  make(chan struct{}),
	}, nil
}

// Run dials the endpoint and streams records until Stop is called, the
// context is cancelled, or reconnection gives up.
func (c *Client) Run(ctx context.Context) error {
	for {
		select {
		case <-c.shutdown:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn, err := c.dial(ctx)
		if err != nil {
			if c.stopping() || ctx.Err() != nil {
				return nil
			}
			return errors.WrapTransient(err, "websocket_source", "Run", "connect to endpoint")
		}

		c.setConn(conn)
		c.logger.Info("connected", "endpoint", c.endpoint)

		c.readLoop(conn)

		c.setConn(nil)
		_ = conn.Close()

		if c.stopping() || ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("connection lost, reconnecting", "endpoint", c.endpoint)
	}
}

// Stop signals shutdown and closes any live connection so a blocked
// read returns. Safe to call more than once.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.shutdown)
	})
	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.mu.Unlock()
}

// Received reports the number of records streamed so far.
func (c *Client) Received() int64 {
	return c.received.Load()
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	err := retry.Do(ctx, c.reconnect, func() error {
		select {
		case <-c.shutdown:
			return retry.NonRetryable(errors.ErrShuttingDown)
		default:
		}

		cc, _, derr := c.dialer.DialContext(ctx, c.endpoint, nil)
		if derr != nil {
			c.logger.Warn("dial failed", "endpoint", c.endpoint, "error", derr)
			return derr
		}
		conn = cc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) stopping() bool {
	select {
	case <-c.shutdown:
		return true
	default:
		return false
	}
}

// readLoop consumes text messages until the connection fails or Stop
// closes it out from under the read.
func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		select {
		case <-c.shutdown:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		rec, err := measurement.ParseRecord(data)
		if err != nil {
			c.logger.Warn("skipping malformed record", "error", err)
			continue
		}

		c.received.Add(1)
		if rec.Event != nil {
			c.callback.ReceiveWithEvent(rec.Name, rec.Value, rec.Event)
		} else {
			c.callback.Receive(rec.Name, rec.Value)
		}
	}
}
