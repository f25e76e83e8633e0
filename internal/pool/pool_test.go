package pool

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/litemodel/internal/infrastructure/database"
)

// fakeSession is an in-memory stand-in for a database session.
type fakeSession struct {
	id int

	mu        sync.Mutex
	inTx      bool
	closed    bool
	rollbacks int
}

func (f *fakeSession) Exec(context.Context, string, ...any) (sql.Result, error)  { return nil, nil }
func (f *fakeSession) Query(context.Context, string, ...any) (*sql.Rows, error) { return nil, nil }
func (f *fakeSession) QueryRow(context.Context, string, ...any) *sql.Row        { return nil }
func (f *fakeSession) Prepare(context.Context, string) (*sql.Stmt, error)      { return nil, nil }
func (f *fakeSession) Ping(context.Context) error                              { return nil }

func (f *fakeSession) Begin(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inTx = true
	return nil
}

func (f *fakeSession) Commit() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inTx = false
	return nil
}

func (f *fakeSession) Rollback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inTx = false
	f.rollbacks++
	return nil
}

func (f *fakeSession) InTx() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inTx
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.inTx = false
	return nil
}

func (f *fakeSession) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeOpener hands out numbered fake sessions.
type fakeOpener struct {
	n    atomic.Int32
	fail atomic.Bool
}

func (o *fakeOpener) open(context.Context) (database.Session, error) {
	if o.fail.Load() {
		return nil, errors.New("engine unavailable")
	}
	return &fakeSession{id: int(o.n.Add(1))}, nil
}

// sessionOf unwraps the fake behind a loan handle.
func sessionOf(t *testing.T, s database.Session) *fakeSession {
	t.Helper()

	l, ok := s.(*loan)
	if !ok {
		t.Fatalf("Acquire returned %T, want a loan", s)
	}
	return l.Session.(*fakeSession) //nolint:forcetypeassert // Test opener only makes fakes
}

func newTestPool(t *testing.T, opts Options) (*Pool, *fakeOpener) {
	t.Helper()

	opener := &fakeOpener{}
	p := New(opener.open, opts)
	t.Cleanup(func() {
		p.Shutdown(context.Background()) //nolint:errcheck // Test cleanup
	})
	return p, opener
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNew_Defaults(t *testing.T) {
	p, _ := newTestPool(t, Options{})

	if got := p.Stats().Capacity; got != DefaultSize {
		t.Errorf("Capacity = %d, want %d", got, DefaultSize)
	}
}

func TestAcquireRelease_ReusesIdle(t *testing.T) {
	p, opener := newTestPool(t, Options{Size: 2})
	ctx := context.Background()

	s1, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := p.Release(s1); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	s2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if sessionOf(t, s2) != sessionOf(t, s1) {
		t.Error("expected the idle session to be reused")
	}
	if s2 == s1 {
		t.Error("expected a new handle for the second loan")
	}
	if got := opener.n.Load(); got != 1 {
		t.Errorf("opened %d sessions, want 1", got)
	}

	stats := p.Stats()
	if stats.InUse != 1 || stats.Idle != 0 || stats.Opened != 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestAcquire_NeverExceedsCapacity(t *testing.T) {
	const size = 3
	p, opener := newTestPool(t, Options{Size: size, AcquireTimeout: 2 * time.Second})
	ctx := context.Background()

	var (
		inUse   atomic.Int32
		maxSeen atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.With(ctx, func(database.Session) error {
				n := inUse.Add(1)
				for {
					m := maxSeen.Load()
					if n <= m || maxSeen.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(2 * time.Millisecond)
				inUse.Add(-1)
				return nil
			})
			if err != nil {
				t.Errorf("With() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if got := maxSeen.Load(); got > size {
		t.Errorf("%d sessions on loan at once, capacity %d", got, size)
	}
	if got := opener.n.Load(); got > size {
		t.Errorf("opened %d sessions, capacity %d", got, size)
	}
}

func TestAcquire_BlocksUntilRelease(t *testing.T) {
	p, _ := newTestPool(t, Options{Size: 1})
	ctx := context.Background()

	held, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	got := make(chan database.Session, 1)
	go func() {
		s, err := p.Acquire(ctx)
		if err != nil {
			t.Errorf("blocked Acquire() error = %v", err)
		}
		got <- s
	}()

	waitFor(t, func() bool { return p.Stats().Waiting == 1 })
	select {
	case <-got:
		t.Fatal("Acquire returned while the only session was on loan")
	default:
	}

	if err := p.Release(held); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	select {
	case s := <-got:
		if sessionOf(t, s) != sessionOf(t, held) {
			t.Error("expected the released session to be handed to the waiter")
		}
		if err := p.Release(s); err != nil {
			t.Errorf("Release() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not served after release")
	}
}

func TestAcquire_FIFO(t *testing.T) {
	p, _ := newTestPool(t, Options{Size: 1})
	ctx := context.Background()

	held, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	const waiters = 4
	order := make(chan int, waiters)
	for i := 0; i < waiters; i++ {
		go func(i int) {
			s, err := p.Acquire(ctx)
			if err != nil {
				t.Errorf("waiter %d: %v", i, err)
				return
			}
			order <- i
			p.Release(s) //nolint:errcheck // Hand to the next waiter
		}(i)
		// Queue each waiter before starting the next.
		waitFor(t, func() bool { return p.Stats().Waiting == i+1 })
	}

	if err := p.Release(held); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	for want := 0; want < waiters; want++ {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("waiter %d served, want %d", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("waiter %d never served", want)
		}
	}
}

func TestAcquire_Timeout(t *testing.T) {
	p, _ := newTestPool(t, Options{Size: 1, AcquireTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	held, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	start := time.Now()
	_, err = p.Acquire(ctx)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("Acquire() error = %v, want ErrPoolExhausted", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Acquire gave up after %s, before the timeout", elapsed)
	}

	stats := p.Stats()
	if stats.Timeouts != 1 || stats.Waiting != 0 || stats.InUse != 1 {
		t.Errorf("Stats() after timeout = %+v", stats)
	}

	// The timed-out caller took nothing: the session still comes back.
	if err := p.Release(held); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got := p.Stats().Idle; got != 1 {
		t.Errorf("Idle = %d, want 1", got)
	}
}

func TestAcquire_ContextCancelled(t *testing.T) {
	p, _ := newTestPool(t, Options{Size: 1})

	held, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer p.Release(held) //nolint:errcheck // Test cleanup

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	if !errors.Is(err, ErrPoolExhausted) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want ErrPoolExhausted wrapping DeadlineExceeded", err)
	}

	done, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	if _, err := p.Acquire(done); !errors.Is(err, context.Canceled) {
		t.Errorf("Acquire(cancelled) error = %v, want context.Canceled", err)
	}
}

func TestAcquire_OpenerFailure(t *testing.T) {
	p, opener := newTestPool(t, Options{Size: 1})
	ctx := context.Background()

	opener.fail.Store(true)
	if _, err := p.Acquire(ctx); !errors.Is(err, ErrConnect) {
		t.Fatalf("Acquire() error = %v, want ErrConnect", err)
	}

	// The failed open must not hold the only slot.
	opener.fail.Store(false)
	s, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() after failure error = %v", err)
	}
	p.Release(s) //nolint:errcheck // Test cleanup
}

func TestRelease_Invalid(t *testing.T) {
	p, _ := newTestPool(t, Options{Size: 2})

	if err := p.Release(&fakeSession{}); !errors.Is(err, ErrInvalidRelease) {
		t.Errorf("Release(foreign) error = %v, want ErrInvalidRelease", err)
	}

	s, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := p.Release(s); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := p.Release(s); !errors.Is(err, ErrInvalidRelease) {
		t.Errorf("double Release() error = %v, want ErrInvalidRelease", err)
	}
	if got := p.Stats().Idle; got != 1 {
		t.Errorf("Idle = %d after double release, want 1", got)
	}
}

func TestRelease_StaleHandleAfterReuse(t *testing.T) {
	p, _ := newTestPool(t, Options{Size: 1, AcquireTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	a, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire(a) error = %v", err)
	}
	if err := p.Release(a); err != nil {
		t.Fatalf("Release(a) error = %v", err)
	}
	b, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire(b) error = %v", err)
	}
	if sessionOf(t, a) != sessionOf(t, b) {
		t.Fatal("expected b to reuse a's session")
	}

	if err := p.Release(a); !errors.Is(err, ErrInvalidRelease) {
		t.Errorf("stale Release(a) error = %v, want ErrInvalidRelease", err)
	}
	if err := p.Discard(a); !errors.Is(err, ErrInvalidRelease) {
		t.Errorf("stale Discard(a) error = %v, want ErrInvalidRelease", err)
	}
	if stats := p.Stats(); stats.InUse != 1 || stats.Idle != 0 {
		t.Errorf("Stats() after stale release = %+v, want b still on loan", stats)
	}
	if _, err := p.Acquire(ctx); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("Acquire() while b holds the only session error = %v, want ErrPoolExhausted", err)
	}

	if err := p.Release(b); err != nil {
		t.Errorf("Release(b) error = %v", err)
	}
}

func TestRelease_RollsBackOpenTransaction(t *testing.T) {
	p, _ := newTestPool(t, Options{Size: 1})
	ctx := context.Background()

	s, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := s.Begin(ctx); err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	if err := p.Release(s); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	fs := sessionOf(t, s)
	if fs.InTx() || fs.rollbacks != 1 {
		t.Errorf("session released with open tx: inTx=%v rollbacks=%d", fs.InTx(), fs.rollbacks)
	}
}

func TestDiscard(t *testing.T) {
	p, opener := newTestPool(t, Options{Size: 1})
	ctx := context.Background()

	s, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := p.Discard(s); err != nil {
		t.Fatalf("Discard() error = %v", err)
	}
	if !sessionOf(t, s).isClosed() {
		t.Error("discarded session was not closed")
	}
	if err := p.Discard(s); !errors.Is(err, ErrInvalidRelease) {
		t.Errorf("second Discard() error = %v, want ErrInvalidRelease", err)
	}

	s2, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() after Discard error = %v", err)
	}
	if sessionOf(t, s2) == sessionOf(t, s) || opener.n.Load() != 2 {
		t.Error("expected a fresh session after discard")
	}
	p.Release(s2) //nolint:errcheck // Test cleanup
}

func TestWith_ReleasesOnPanic(t *testing.T) {
	p, _ := newTestPool(t, Options{Size: 1})

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to propagate")
			}
		}()
		p.With(context.Background(), func(database.Session) error { //nolint:errcheck // Panics
			panic("boom")
		})
	}()

	stats := p.Stats()
	if stats.InUse != 0 || stats.Idle != 1 {
		t.Errorf("Stats() after panic = %+v, want session returned", stats)
	}
}

func TestWith_ReturnsFnError(t *testing.T) {
	p, _ := newTestPool(t, Options{Size: 1})
	want := errors.New("fn failed")

	if err := p.With(context.Background(), func(database.Session) error { return want }); !errors.Is(err, want) {
		t.Errorf("With() error = %v, want %v", err, want)
	}
	if got := p.Stats().InUse; got != 0 {
		t.Errorf("InUse = %d, want 0", got)
	}
}

func TestHealthCheck(t *testing.T) {
	p, opener := newTestPool(t, Options{Size: 1, AcquireTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	if err := p.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
	if stats := p.Stats(); stats.InUse != 0 || stats.Idle != 1 {
		t.Errorf("Stats() after HealthCheck = %+v, want session returned", stats)
	}

	held, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := p.HealthCheck(ctx); !errors.Is(err, ErrPoolExhausted) {
		t.Errorf("HealthCheck() with pool full error = %v, want ErrPoolExhausted", err)
	}
	if got := opener.n.Load(); got != 1 {
		t.Errorf("opened %d sessions, want 1", got)
	}
	p.Release(held) //nolint:errcheck // Test cleanup

	p.Shutdown(ctx) //nolint:errcheck // Test cleanup
	if err := p.HealthCheck(ctx); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("HealthCheck() after Shutdown error = %v, want ErrPoolClosed", err)
	}
}

func TestShutdown(t *testing.T) {
	t.Run("closes idle and refuses acquire", func(t *testing.T) {
		p, _ := newTestPool(t, Options{Size: 2})
		ctx := context.Background()

		s, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		p.Release(s) //nolint:errcheck // Goes idle

		if err := p.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if !sessionOf(t, s).isClosed() {
			t.Error("idle session not closed")
		}
		if _, err := p.Acquire(ctx); !errors.Is(err, ErrPoolClosed) {
			t.Errorf("Acquire() after Shutdown error = %v, want ErrPoolClosed", err)
		}
		if err := p.Shutdown(ctx); err != nil {
			t.Errorf("second Shutdown() error = %v", err)
		}
	})

	t.Run("wakes waiters", func(t *testing.T) {
		p, _ := newTestPool(t, Options{Size: 1, ShutdownGrace: 10 * time.Millisecond})
		ctx := context.Background()

		held, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}

		errCh := make(chan error, 1)
		go func() {
			_, err := p.Acquire(ctx)
			errCh <- err
		}()
		waitFor(t, func() bool { return p.Stats().Waiting == 1 })

		p.Shutdown(ctx) //nolint:errcheck // Forced close expected

		select {
		case err := <-errCh:
			if !errors.Is(err, ErrPoolClosed) {
				t.Errorf("waiter error = %v, want ErrPoolClosed", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("waiter not woken by Shutdown")
		}

		if !sessionOf(t, held).isClosed() {
			t.Error("loaned session not force-closed after grace")
		}
		if err := p.Release(held); err != nil {
			t.Errorf("late Release() error = %v", err)
		}
	})

	t.Run("waits for loans within grace", func(t *testing.T) {
		p, _ := newTestPool(t, Options{Size: 1, ShutdownGrace: 2 * time.Second})
		ctx := context.Background()

		held, err := p.Acquire(ctx)
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}

		go func() {
			time.Sleep(10 * time.Millisecond)
			p.Release(held) //nolint:errcheck // Returned during shutdown
		}()

		if err := p.Shutdown(ctx); err != nil {
			t.Fatalf("Shutdown() error = %v", err)
		}
		if !sessionOf(t, held).isClosed() {
			t.Error("returned session not closed")
		}
		if got := p.Stats().InUse; got != 0 {
			t.Errorf("InUse = %d after shutdown, want 0", got)
		}
	})
}

type recordingObserver struct {
	mu    sync.Mutex
	calls int
	errs  int
}

func (o *recordingObserver) ObserveAcquire(_ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if err != nil {
		o.errs++
	}
}

func TestObserver(t *testing.T) {
	p, _ := newTestPool(t, Options{Size: 1, AcquireTimeout: 5 * time.Millisecond})
	obs := &recordingObserver{}
	p.SetObserver(obs)
	ctx := context.Background()

	s, err := p.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	p.Acquire(ctx) //nolint:errcheck // Times out
	p.Release(s)   //nolint:errcheck // Test cleanup

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if obs.calls != 2 || obs.errs != 1 {
		t.Errorf("observer saw %d calls, %d errors; want 2, 1", obs.calls, obs.errs)
	}
}
