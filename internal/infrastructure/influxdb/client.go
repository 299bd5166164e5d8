package influxdb

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/gray-logic-airdog/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	fallbackBatchSize    = 100
	fallbackFlushSeconds = 10
)

// Client buffers purifier points and writes them to one bucket in the
// background. Write calls never block on the network.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI
	url    string

	closed  atomic.Bool
	onError atomic.Pointer[func(error)]
}

// Connect pings the server and starts the batching writer. It returns
// ErrDisabled when the influxdb section is switched off.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))
	c := &Client{influx: influx, url: cfg.URL}
	if err := c.ping(ctx); err != nil {
		influx.Close()
		return nil, err
	}

	c.writer = influx.WriteAPI(cfg.Org, cfg.Bucket)
	go c.forwardErrors(c.writer.Errors())
	return c, nil
}

// writeOptions applies batch size and flush interval, falling back to
// 100 points and 10 seconds. Samples carry millisecond timestamps.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = fallbackBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = fallbackFlushSeconds
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).                                                  //nolint:gosec // positive
		SetFlushInterval(uint(time.Duration(flush) * time.Second / time.Millisecond)). //nolint:gosec // positive
		SetPrecision(time.Millisecond)
}

func (c *Client) ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := c.influx.Ping(ctx)
	switch {
	case err != nil:
		return fmt.Errorf("%w: ping %s: %w", ErrUnhealthy, c.url, err)
	case !ok:
		return fmt.Errorf("%w: ping %s returned not ready", ErrUnhealthy, c.url)
	}
	return nil
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		if fn := c.onError.Load(); fn != nil {
			(*fn)(err)
		}
	}
}

// SetOnError registers the callback for failed background writes.
func (c *Client) SetOnError(fn func(err error)) {
	c.onError.Store(&fn)
}

// IsConnected is false before Connect succeeds and after Close.
func (c *Client) IsConnected() bool {
	return c.influx != nil && !c.closed.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrClosed
	}
	return c.ping(ctx)
}

// Flush blocks until buffered points are sent. It is a no-op after Close.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}

// Close flushes what is buffered and releases the client. Safe to repeat.
func (c *Client) Close() error {
	if c.influx == nil || c.closed.Swap(true) {
		return nil
	}
	c.writer.Flush()
	c.influx.Close()
	return nil
}
