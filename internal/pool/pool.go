package pool

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/litemodel/internal/infrastructure/database"
)

// Pool defaults.
const (
	// DefaultSize is the capacity used when Options.Size is not positive.
	DefaultSize = 5

	// DefaultShutdownGrace is how long Shutdown waits for loans by default.
	DefaultShutdownGrace = 5 * time.Second
)

// Opener opens a new physical session.
type Opener func(ctx context.Context) (database.Session, error)

// Logger defines the logging interface used by the Pool.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Observer is told how long each Acquire took and how it ended.
type Observer interface {
	ObserveAcquire(wait time.Duration, err error)
}

// Options configures a Pool.
type Options struct {
	// Size is the maximum number of sessions open at once.
	Size int

	// AcquireTimeout bounds how long Acquire waits for a free session.
	// Zero waits until the caller's context ends.
	AcquireTimeout time.Duration

	// ShutdownGrace is how long Shutdown waits for loaned sessions to come
	// back before closing them.
	ShutdownGrace time.Duration
}

// Stats is a snapshot of pool state.
type Stats struct {
	Capacity     int           `json:"capacity"`
	Idle         int           `json:"idle"`
	InUse        int           `json:"in_use"`
	Waiting      int           `json:"waiting"`
	Opened       int64         `json:"opened"`
	WaitCount    int64         `json:"wait_count"`
	WaitDuration time.Duration `json:"wait_duration"`
	Timeouts     int64         `json:"timeouts"`
}

// loan is the handle a caller holds for one Acquire. Each Acquire gets a
// new loan even when the session underneath is reused, so a handle that was
// already released can't give back a session someone else now holds.
type loan struct {
	database.Session
}

// grant is what a waiter is handed: a loan, a free slot to open a session
// into (loan nil), or an error.
type grant struct {
	loan *loan
	err  error
}

type waiter struct {
	ch   chan grant
	elem *list.Element
}

// Pool lends a bounded number of sessions to concurrent callers.
//
// Idle sessions are reused most-recently-released first. When every slot is
// on loan, callers queue and are served strictly in arrival order.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Pool struct {
	opener   Opener
	opts     Options
	logger   Logger
	observer Observer

	mu        sync.Mutex
	idle      []database.Session
	onLoan    map[*loan]struct{}
	size      int // sessions open or being opened
	returning int // released sessions being rolled back
	waiters   *list.List
	closed    bool
	drained   chan struct{}
	done      chan struct{}

	opened       int64
	waitCount    int64
	waitDuration time.Duration
	timeouts     int64
}

// New creates a pool that opens sessions with opener.
func New(opener Opener, opts Options) *Pool {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	return &Pool{
		opener:  opener,
		opts:    opts,
		logger:  noopLogger{},
		onLoan:  make(map[*loan]struct{}),
		waiters: list.New(),
	}
}

// SetLogger sets the logger for the pool.
func (p *Pool) SetLogger(logger Logger) {
	p.logger = logger
}

// SetObserver sets the acquire observer for the pool.
func (p *Pool) SetObserver(o Observer) {
	p.observer = o
}

// Acquire lends a session to the caller.
//
// An idle session is returned when one exists; otherwise a new one is opened
// while the pool is below capacity. At capacity the caller waits in FIFO
// order. A caller that gives up never consumes a session.
//
// Parameters:
//   - ctx: Context bounding the wait
//
// Returns:
//   - database.Session: Handle for this loan only; give it back with Release
//   - error: ErrPoolExhausted, ErrPoolClosed or ErrConnect
func (p *Pool) Acquire(ctx context.Context) (database.Session, error) {
	start := time.Now()
	s, err := p.acquire(ctx)
	if p.observer != nil {
		p.observer.ObserveAcquire(time.Since(start), err)
	}
	return s, err
}

func (p *Pool) acquire(ctx context.Context) (database.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPoolExhausted, err)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		s := p.idle[n-1]
		p.idle = p.idle[:n-1]
		l := p.lendLocked(s)
		p.mu.Unlock()
		return l, nil
	}
	if p.size < p.opts.Size {
		p.size++
		p.mu.Unlock()
		return p.open(ctx)
	}

	w := &waiter{ch: make(chan grant, 1)}
	w.elem = p.waiters.PushBack(w)
	p.waitCount++
	p.mu.Unlock()

	return p.wait(ctx, w)
}

// wait blocks until w is served, the acquire timeout fires or ctx ends.
func (p *Pool) wait(ctx context.Context, w *waiter) (database.Session, error) {
	start := time.Now()

	var timeout <-chan time.Time
	if p.opts.AcquireTimeout > 0 {
		timer := time.NewTimer(p.opts.AcquireTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var cause error
	select {
	case g := <-w.ch:
		p.recordWait(start)
		return p.take(ctx, g)
	case <-timeout:
		cause = fmt.Errorf("%w: no session free after %s", ErrPoolExhausted, p.opts.AcquireTimeout)
	case <-ctx.Done():
		cause = fmt.Errorf("%w: %w", ErrPoolExhausted, ctx.Err())
	}

	p.mu.Lock()
	p.waitDuration += time.Since(start)
	if w.elem != nil {
		p.waiters.Remove(w.elem)
		w.elem = nil
		p.timeouts++
		p.mu.Unlock()
		return nil, cause
	}
	p.timeouts++
	p.mu.Unlock()

	// Served while giving up: the grant is already in the channel.
	// Hand it on so the session or slot isn't lost.
	g := <-w.ch
	switch {
	case g.err != nil:
		return nil, g.err
	case g.loan != nil:
		p.Release(g.loan) //nolint:errcheck // Loan was made for this waiter
	default:
		p.mu.Lock()
		p.freeSlotLocked()
		p.checkDrainedLocked()
		p.mu.Unlock()
	}
	return nil, cause
}

func (p *Pool) recordWait(start time.Time) {
	p.mu.Lock()
	p.waitDuration += time.Since(start)
	p.mu.Unlock()
}

// take turns a grant into the caller's session.
func (p *Pool) take(ctx context.Context, g grant) (database.Session, error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.loan != nil {
		return g.loan, nil
	}
	return p.open(ctx)
}

// open fills a slot already counted in p.size.
func (p *Pool) open(ctx context.Context) (database.Session, error) {
	s, err := p.opener(ctx)
	if err != nil {
		p.mu.Lock()
		p.freeSlotLocked()
		p.checkDrainedLocked()
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	p.mu.Lock()
	if p.closed {
		p.size--
		p.checkDrainedLocked()
		p.mu.Unlock()
		s.Close() //nolint:errcheck // Pool is shutting down
		return nil, ErrPoolClosed
	}
	p.opened++
	l := p.lendLocked(s)
	p.mu.Unlock()
	return l, nil
}

// lendLocked wraps s in a new loan and records it.
func (p *Pool) lendLocked(s database.Session) *loan {
	l := &loan{Session: s}
	p.onLoan[l] = struct{}{}
	return l
}

// endLoanLocked ends the loan behind handle s. It fails for handles this
// pool did not lend and for loans already released or discarded.
func (p *Pool) endLoanLocked(s database.Session) (database.Session, error) {
	l, ok := s.(*loan)
	if !ok {
		return nil, ErrInvalidRelease
	}
	if _, ok := p.onLoan[l]; !ok {
		return nil, ErrInvalidRelease
	}
	delete(p.onLoan, l)
	return l.Session, nil
}

// Release gives a session back to the pool. A transaction still open on it
// is rolled back first. The session goes straight to the longest waiter
// when there is one.
//
// Returns:
//   - error: ErrInvalidRelease if handle is not a loan that is still open
func (p *Pool) Release(handle database.Session) error {
	p.mu.Lock()
	s, err := p.endLoanLocked(handle)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.returning++
	p.mu.Unlock()

	healthy := true
	if s.InTx() {
		p.logger.Warn("rolling back transaction left open on released session")
		if err := s.Rollback(); err != nil {
			p.logger.Error("rollback on release failed, discarding session", "error", err)
			healthy = false
		}
	}

	p.mu.Lock()
	p.returning--
	if !healthy {
		p.freeSlotLocked()
		p.checkDrainedLocked()
		p.mu.Unlock()
		s.Close() //nolint:errcheck // Discarding a broken session
		return nil
	}
	p.mu.Unlock()

	p.putBack(s)
	return nil
}

// putBack hands a session that is not on loan to the next waiter or the
// idle stack, or closes it when the pool is shutting down.
func (p *Pool) putBack(s database.Session) {
	p.mu.Lock()
	if p.closed {
		p.size--
		p.checkDrainedLocked()
		p.mu.Unlock()
		s.Close() //nolint:errcheck // Pool is shutting down
		return
	}
	if w := p.popWaiterLocked(); w != nil {
		w.ch <- grant{loan: p.lendLocked(s)}
		p.mu.Unlock()
		return
	}
	p.idle = append(p.idle, s)
	p.mu.Unlock()
}

// Discard removes a broken session from the pool and closes it. Its slot is
// offered to the next waiter.
//
// Returns:
//   - error: ErrInvalidRelease if handle is not a loan that is still open
func (p *Pool) Discard(handle database.Session) error {
	p.mu.Lock()
	s, err := p.endLoanLocked(handle)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.freeSlotLocked()
	p.checkDrainedLocked()
	p.mu.Unlock()

	if err := s.Close(); err != nil {
		p.logger.Debug("closing discarded session", "error", err)
	}
	return nil
}

// With lends a session to fn and releases it on every exit path,
// including a panic inside fn.
func (p *Pool) With(ctx context.Context, fn func(database.Session) error) (err error) {
	s, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := p.Release(s); relErr != nil && err == nil {
			err = relErr
		}
	}()
	return fn(s)
}

// HealthCheck pings a session borrowed from the pool, so the check waits
// its turn like any other caller and never opens a session beyond Size.
func (p *Pool) HealthCheck(ctx context.Context) error {
	err := p.With(ctx, func(s database.Session) error {
		return s.Ping(ctx)
	})
	if err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// freeSlotLocked gives a freed slot to the next waiter, or shrinks the pool.
func (p *Pool) freeSlotLocked() {
	if !p.closed {
		if w := p.popWaiterLocked(); w != nil {
			w.ch <- grant{}
			return
		}
	}
	p.size--
}

func (p *Pool) popWaiterLocked() *waiter {
	front := p.waiters.Front()
	if front == nil {
		return nil
	}
	w := p.waiters.Remove(front).(*waiter) //nolint:forcetypeassert // list only holds *waiter
	w.elem = nil
	return w
}

func (p *Pool) checkDrainedLocked() {
	if p.drained != nil && len(p.onLoan) == 0 && p.returning == 0 {
		close(p.drained)
		p.drained = nil
	}
}

// Shutdown closes the pool.
//
// New acquires fail with ErrPoolClosed and queued callers are woken with the
// same error. Idle sessions are closed at once; loaned sessions are waited
// for up to ShutdownGrace (or until ctx ends) and then closed under their
// holders. Calling Shutdown again waits for the first call to finish.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		done := p.done
		p.mu.Unlock()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.closed = true
	p.done = make(chan struct{})
	defer close(p.done)

	for w := p.popWaiterLocked(); w != nil; w = p.popWaiterLocked() {
		w.ch <- grant{err: ErrPoolClosed}
	}
	idle := p.idle
	p.idle = nil
	p.size -= len(idle)

	drained := make(chan struct{})
	p.drained = drained
	p.checkDrainedLocked()
	loaned := len(p.onLoan)
	p.mu.Unlock()

	p.logger.Info("pool shutting down", "idle", len(idle), "in_use", loaned)

	var errs []error
	for _, s := range idle {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	grace := time.NewTimer(p.opts.ShutdownGrace)
	defer grace.Stop()

	select {
	case <-drained:
		p.logger.Info("pool shut down")
		return errors.Join(errs...)
	case <-grace.C:
	case <-ctx.Done():
	}

	p.mu.Lock()
	forced := make([]database.Session, 0, len(p.onLoan))
	for l := range p.onLoan {
		forced = append(forced, l.Session)
	}
	p.mu.Unlock()

	p.logger.Warn("force-closing sessions still on loan", "count", len(forced))
	for _, s := range forced {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the pool's state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Stats{
		Capacity:     p.opts.Size,
		Idle:         len(p.idle),
		InUse:        len(p.onLoan),
		Waiting:      p.waiters.Len(),
		Opened:       p.opened,
		WaitCount:    p.waitCount,
		WaitDuration: p.waitDuration,
		Timeouts:     p.timeouts,
	}
}
