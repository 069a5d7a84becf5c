package leaselock

import (
	"context"
	"errors"
	"hash/fnv"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrBusy is returned when the lease is held elsewhere and waiting was
	// not requested.
	ErrBusy = errors.New("lease busy")
	// ErrLost signals that the session backing a held lease died; work scoped
	// to the lease context is cancelled with this cause.
	ErrLost = errors.New("lease lost")
)

// Client hands out dataset write leases backed by Postgres advisory locks.
// A lease pins one pooled connection for its lifetime: the lock is
// session-scoped, so a crashed holder releases it the moment its connection
// drops, with no TTL bookkeeping to renew. The pipeline takes a lease around
// its write stage so a dataset has at most one live writer across processes.
type Client struct {
	pool *pgxpool.Pool

	// health-check cadence for held leases
	probeEvery time.Duration
}

func New(pool *pgxpool.Pool) *Client {
	return &Client{pool: pool, probeEvery: 15 * time.Second}
}

// Options controls acquisition behavior.
type Options struct {
	// Wait polls until the lease frees instead of failing with ErrBusy.
	Wait bool
	// WaitInterval is the poll cadence while waiting (default 250ms, with
	// jitter so competing workers do not probe in lockstep).
	WaitInterval time.Duration
}

// Lease is a held dataset lock. Context is derived from the acquiring
// context and is cancelled with ErrLost if the backing session dies, so
// writes scoped to it stop as soon as exclusivity can no longer be
// guaranteed.
type Lease struct {
	Key     string
	Context context.Context

	lockID   int64
	conn     *pgxpool.Conn
	cancel   context.CancelCauseFunc
	stopOnce sync.Once
	done     chan struct{}
}

// WithLease runs fn under the lease and releases it afterwards. fn receives
// the lease context and should pass it to every write it performs.
func (c *Client) WithLease(ctx context.Context, key string, opts Options, fn func(ctx context.Context) error) error {
	lease, err := c.Acquire(ctx, key, opts)
	if err != nil {
		return err
	}
	defer lease.Release(context.Background())
	return fn(lease.Context)
}

// Acquire takes the advisory lock for key, polling when Wait is set.
func (c *Client) Acquire(ctx context.Context, key string, opts Options) (*Lease, error) {
	if key == "" {
		return nil, errors.New("lease key is empty")
	}
	if opts.WaitInterval <= 0 {
		opts.WaitInterval = 250 * time.Millisecond
	}
	lockID := keyToLockID(key)

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	for {
		var locked bool
		if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock($1)`, lockID).Scan(&locked); err != nil {
			conn.Release()
			return nil, err
		}
		if locked {
			break
		}
		if !opts.Wait {
			conn.Release()
			return nil, ErrBusy
		}
		// jittered poll; the held connection stays idle meanwhile
		delay := opts.WaitInterval + time.Duration(rand.Int64N(int64(opts.WaitInterval/2)+1))
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			conn.Release()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	leaseCtx, cancel := context.WithCancelCause(ctx)
	lease := &Lease{
		Key:     key,
		Context: leaseCtx,
		lockID:  lockID,
		conn:    conn,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go lease.watch(c.probeEvery)
	return lease, nil
}

// Release unlocks and returns the connection to the pool. Safe to call more
// than once; only the first call performs the unlock.
func (l *Lease) Release(ctx context.Context) error {
	var err error
	released := false
	l.stopOnce.Do(func() {
		released = true
		close(l.done)
		l.cancel(context.Canceled)

		var unlocked bool
		err = l.conn.QueryRow(ctx, `SELECT pg_advisory_unlock($1)`, l.lockID).Scan(&unlocked)
		l.conn.Release()
		if err == nil && !unlocked {
			err = ErrLost
		}
	})
	if !released {
		return nil
	}
	return err
}

// watch probes the backing session; advisory locks only hold while the
// session lives, so a failed probe means exclusivity is gone and every
// consumer of the lease context must stop.
func (l *Lease) watch(every time.Duration) {
	if every <= 0 {
		every = 15 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-l.Context.Done():
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(l.Context, 5*time.Second)
			err := l.conn.Ping(probeCtx)
			cancel()
			if err != nil {
				l.cancel(ErrLost)
				return
			}
		}
	}
}

// keyToLockID folds a lease key into the 64-bit advisory lock space.
func keyToLockID(key string) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int64(h.Sum64())
}
