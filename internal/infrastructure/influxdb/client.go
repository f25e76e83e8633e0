package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/litemodel/internal/infrastructure/config"
)

const (
	startupPingTimeout = 10 * time.Second
	healthPingTimeout  = 5 * time.Second

	// Used when the config leaves batching unset. The flush interval is in
	// seconds; the write API wants milliseconds.
	fallbackBatchSize     = 100
	fallbackFlushInterval = 10
)

// pointWriter is the slice of api.WriteAPI the client uses.
type pointWriter interface {
	WritePoint(point *write.Point)
	Flush()
}

// Client writes litemodel's statement, transaction and pool timings to a
// bucket. Points are queued and sent in batches, so recording never blocks
// a database call. Safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI pointWriter
	cfg      config.InfluxDBConfig

	mu        sync.RWMutex
	connected bool
	onError   func(err error)

	// now stamps points.
	now func() time.Time
}

// Connect pings the server and opens a batching write API on the
// configured org and bucket. It returns ErrDisabled when metrics are
// switched off.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = fallbackBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = fallbackFlushInterval
	}
	// #nosec G115 -- both positive
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batch)).
		SetFlushInterval(uint(flush) * 1000)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), startupPingTimeout)
	defer cancel()

	ok, err := client.Ping(ctx)
	switch {
	case err != nil:
		client.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !ok:
		client.Close()
		return nil, fmt.Errorf("%w: %s reports unhealthy", ErrConnectionFailed, cfg.URL)
	}

	w := client.WriteAPI(cfg.Org, cfg.Bucket)
	c := newClient(w, cfg)
	c.client = client
	go c.forwardErrors(w.Errors())
	return c, nil
}

// newClient wraps w in a Client that is ready to record.
func newClient(w pointWriter, cfg config.InfluxDBConfig) *Client {
	return &Client{
		writeAPI:  w,
		cfg:       cfg,
		connected: true,
		now:       time.Now,
	}
}

// forwardErrors hands batch write failures to the SetOnError callback until
// the write API closes errs.
func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(fmt.Errorf("%w: %w", ErrWriteFailed, err))
		}
	}
}

// Close sends whatever is queued and releases the HTTP client. Later
// records are dropped.
func (c *Client) Close() error {
	if c.writeAPI == nil {
		return nil
	}

	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()

	c.writeAPI.Flush()

	if c.client != nil {
		c.client.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() || c.client == nil {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()

	ok, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb ping: %w", err)
	}
	if !ok {
		return errors.New("influxdb ping: server reports unhealthy")
	}
	return nil
}

// IsConnected is false once Close has run.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// SetOnError registers fn for batch write failures, each wrapping
// ErrWriteFailed.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Flush sends queued points now. It does nothing after Close.
func (c *Client) Flush() {
	if c.writeAPI == nil || !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// WritePoint queues one point stamped with the current time.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, c.now()))
}
