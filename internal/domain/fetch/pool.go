// Package fetch downloads the latest solar frame over a bounded HTTP
// connection pool, falling back to a secondary source when the primary
// misbehaves.
package fetch

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"solarlab-server-go/internal/platform/config"
	perrors "solarlab-server-go/internal/platform/errors"
	"solarlab-server-go/internal/platform/logging"
)

// conn is one pooled HTTP client. Each conn owns its own transport so the
// pool, not net/http, decides how many connections exist at once.
type conn struct {
	client    *http.Client
	transport *http.Transport
	createdAt time.Time
	lastUsed  time.Time
}

func (c *conn) expired(idleTimeout, maxLifetime time.Duration) bool {
	now := time.Now()
	if maxLifetime > 0 && now.Sub(c.createdAt) > maxLifetime {
		return true
	}
	if idleTimeout > 0 && now.Sub(c.lastUsed) > idleTimeout {
		return true
	}
	return false
}

func (c *conn) close() {
	c.transport.CloseIdleConnections()
}

// Pool is a bounded connection pool with a pending-acquire cap. Acquire
// fails fast once the pending queue is full instead of stacking goroutines
// behind a slow source.
type Pool struct {
	cfg    config.PoolConfig
	logger *logging.Logger

	idle    chan *conn
	created atomic.Int64
	inUse   atomic.Int64
	pending atomic.Int64
	closed  atomic.Bool

	mu     sync.Mutex // serializes eviction sweeps against Close
	ticker *time.Ticker
	stopCh chan struct{}
}

// NewPool creates the pool and starts its background eviction sweep.
func NewPool(cfg config.PoolConfig, logger *logging.Logger) *Pool {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = config.DefaultConfig().Pool.MaxConnections
	}
	if cfg.MaxPending < 0 {
		cfg.MaxPending = config.DefaultConfig().Pool.MaxPending
	}

	p := &Pool{
		cfg:    cfg,
		logger: logger,
		idle:   make(chan *conn, cfg.MaxConnections),
		stopCh: make(chan struct{}),
	}

	if cfg.EvictionSweep > 0 {
		p.ticker = time.NewTicker(cfg.EvictionSweep)
		go p.sweepLoop()
	}

	return p
}

func (p *Pool) newConn() *conn {
	transport := &http.Transport{
		MaxConnsPerHost:   1,
		IdleConnTimeout:   p.cfg.IdleTimeout,
		ForceAttemptHTTP2: true,
	}
	now := time.Now()
	return &conn{
		client:    &http.Client{Transport: transport},
		transport: transport,
		createdAt: now,
		lastUsed:  now,
	}
}

// Acquire hands out an idle connection, creating one while under the cap.
// When the pool is exhausted the caller joins the pending queue; once that
// queue holds MaxPending waiters further callers are rejected immediately.
func (p *Pool) Acquire(ctx context.Context) (*conn, error) {
	const op = "fetch.Pool.Acquire"

	if p.closed.Load() {
		return nil, perrors.New(perrors.KindDownload, op, "pool is closed")
	}

	select {
	case c := <-p.idle:
		p.inUse.Add(1)
		return c, nil
	default:
	}

	if p.created.Load() < int64(p.cfg.MaxConnections) {
		p.created.Add(1)
		p.inUse.Add(1)
		return p.newConn(), nil
	}

	if p.pending.Load() >= int64(p.cfg.MaxPending) {
		return nil, perrors.New(perrors.KindDownload, op, "pending acquire queue is full")
	}
	p.pending.Add(1)
	defer p.pending.Add(-1)

	timeout := p.cfg.AcquireTimeout
	if timeout <= 0 {
		timeout = config.DefaultConfig().Pool.AcquireTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case c := <-p.idle:
		p.inUse.Add(1)
		return c, nil
	case <-timer.C:
		return nil, perrors.New(perrors.KindDownload, op, "timed out waiting for a connection")
	case <-ctx.Done():
		return nil, perrors.Wrap(perrors.KindDownload, op, "acquire canceled", ctx.Err())
	case <-p.stopCh:
		return nil, perrors.New(perrors.KindDownload, op, "pool is closed")
	}
}

// Release returns a connection to the idle set. Expired connections are
// destroyed instead of recycled.
func (p *Pool) Release(c *conn) {
	if c == nil {
		return
	}
	p.inUse.Add(-1)
	c.lastUsed = time.Now()

	if p.closed.Load() || c.expired(p.cfg.IdleTimeout, p.cfg.MaxLifetime) {
		p.destroy(c)
		return
	}

	select {
	case p.idle <- c:
	default:
		p.destroy(c)
	}
}

func (p *Pool) destroy(c *conn) {
	c.close()
	p.created.Add(-1)
}

func (p *Pool) sweepLoop() {
	for {
		select {
		case <-p.ticker.C:
			p.sweep()
		case <-p.stopCh:
			return
		}
	}
}

// sweep drains the idle set and destroys connections past their idle timeout
// or maximum lifetime. Survivors go back into the pool.
func (p *Pool) sweep() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed.Load() {
		return
	}

	var keep []*conn
	evicted := 0
	for {
		select {
		case c := <-p.idle:
			if c.expired(p.cfg.IdleTimeout, p.cfg.MaxLifetime) {
				p.destroy(c)
				evicted++
			} else {
				keep = append(keep, c)
			}
		default:
			for _, c := range keep {
				select {
				case p.idle <- c:
				default:
					p.destroy(c)
				}
			}
			if evicted > 0 {
				p.logger.DebugTag("FETCH", "pool sweep evicted %d stale connections", evicted)
			}
			return
		}
	}
}

// Stats reports created, in-use and idle connection counts.
func (p *Pool) Stats() (created, inUse, idle int64) {
	return p.created.Load(), p.inUse.Load(), int64(len(p.idle))
}

// Close stops the sweeper and destroys every idle connection. In-flight
// connections are destroyed as they are released.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	close(p.stopCh)

	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		select {
		case c := <-p.idle:
			p.destroy(c)
		default:
			return nil
		}
	}
}
