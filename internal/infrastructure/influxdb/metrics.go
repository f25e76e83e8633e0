package influxdb

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/litemodel/internal/pool"
	"github.com/nerrad567/litemodel/internal/txn"
)

// Measurement names written by the client.
const (
	MeasurementStatement   = "litemodel_statement"
	MeasurementTransaction = "litemodel_transaction"
	MeasurementAcquire     = "litemodel_pool_acquire"
	MeasurementPoolStats   = "litemodel_pool"
)

// Outcome tag values.
const (
	outcomeOK      = "ok"
	outcomeError   = "error"
	outcomeTimeout = "timeout"
	outcomeClosed  = "closed"
)

// ObserveStatement records one model statement. It satisfies model.Metrics.
func (c *Client) ObserveStatement(table, op string, elapsed time.Duration, rows int64, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	c.WritePoint(MeasurementStatement,
		map[string]string{
			"table":   table,
			"op":      op,
			"outcome": outcome,
		},
		map[string]any{
			"duration_ms": millis(elapsed),
			"rows":        rows,
		},
	)
}

// ObserveTransaction records a finished transaction. It satisfies
// txn.Observer. The transaction ID is a field, not a tag, to keep series
// cardinality bounded.
func (c *Client) ObserveTransaction(id string, outcome txn.State, elapsed time.Duration) {
	c.WritePoint(MeasurementTransaction,
		map[string]string{
			"outcome": outcome.String(),
		},
		map[string]any{
			"duration_ms": millis(elapsed),
			"tx_id":       id,
		},
	)
}

// ObserveAcquire records how long a pool acquire waited. It satisfies
// pool.Observer.
func (c *Client) ObserveAcquire(wait time.Duration, err error) {
	c.WritePoint(MeasurementAcquire,
		map[string]string{
			"outcome": acquireOutcome(err),
		},
		map[string]any{
			"wait_ms": millis(wait),
		},
	)
}

// WritePoolStats records a snapshot of pool occupancy.
func (c *Client) WritePoolStats(stats pool.Stats) {
	c.WritePoint(MeasurementPoolStats, nil, map[string]any{
		"capacity":         stats.Capacity,
		"idle":             stats.Idle,
		"in_use":           stats.InUse,
		"waiting":          stats.Waiting,
		"opened":           stats.Opened,
		"wait_count":       stats.WaitCount,
		"wait_duration_ms": millis(stats.WaitDuration),
		"timeouts":         stats.Timeouts,
	})
}

// ReportPoolStats writes stats() every interval until ctx is done.
func (c *Client) ReportPoolStats(ctx context.Context, stats func() pool.Stats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.WritePoolStats(stats())
		}
	}
}

func acquireOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, pool.ErrPoolExhausted), errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	case errors.Is(err, pool.ErrPoolClosed):
		return outcomeClosed
	default:
		return outcomeError
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
