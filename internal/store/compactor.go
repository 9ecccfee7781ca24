package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CompactionConfig mirrors config.CompactionConfig without importing the
// config package, keeping store free of a dependency on the daemon's
// configuration surface.
type CompactionConfig struct {
	Enabled         bool
	IdleTimeout     time.Duration
	Cooldown        time.Duration
	OrphanThreshold float64
	MinOrphanCount  int
}

// Compactor runs background vector-graph compaction for a single open
// Store. It mirrors the teacher's per-project CompactionManager, simplified
// to one store instance: fastsearchd's DaemonBackend owns one Compactor per
// opened Store rather than one manager keyed by project root.
//
// Compaction runs when the store has been idle (no search) for IdleTimeout,
// tombstoned nodes make up at least OrphanThreshold of all graph nodes
// (tombstoned ones included), at least MinOrphanCount
// tombstones have accumulated, and Cooldown has elapsed since the last run.
// Compaction is interruptible: OnSearch cancels any run in progress so a
// live query is never slowed down by a rebuild.
type Compactor struct {
	store  *Store
	config CompactionConfig
	logger *slog.Logger

	mu          sync.Mutex
	lastSearch  time.Time
	lastCompact time.Time
	idleTimer   *time.Timer
	compacting  bool
	cancelRun   context.CancelFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	stop   sync.Once
}

// NewCompactor creates a Compactor for store. Start must be called before
// OnSearch has any effect.
func NewCompactor(store *Store, cfg CompactionConfig, logger *slog.Logger) *Compactor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compactor{store: store, config: cfg, logger: logger}
}

// Start arms the compactor against parent's cancellation.
func (c *Compactor) Start(parent context.Context) {
	c.ctx, c.cancel = context.WithCancel(parent)
}

// Stop cancels any in-progress compaction and any pending idle timer, then
// waits for the compaction goroutine (if any) to exit.
func (c *Compactor) Stop() {
	c.stop.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.mu.Lock()
		if c.idleTimer != nil {
			c.idleTimer.Stop()
		}
		if c.cancelRun != nil {
			c.cancelRun()
		}
		c.mu.Unlock()
		c.wg.Wait()
	})
}

// OnSearch resets the idle timer and interrupts any compaction in progress,
// so an in-flight search is never competing with a rebuild for the store's
// read lock.
func (c *Compactor) OnSearch() {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	c.lastSearch = time.Now()
	if c.idleTimer != nil {
		c.idleTimer.Stop()
	}
	if c.compacting && c.cancelRun != nil {
		c.cancelRun()
	}
	idleTimeout := c.config.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Second
	}
	c.idleTimer = time.AfterFunc(idleTimeout, c.onIdle)
	c.mu.Unlock()
}

func (c *Compactor) onIdle() {
	if c.shouldCompact() {
		c.startCompaction()
	}
}

func (c *Compactor) shouldCompact() bool {
	if !c.config.Enabled {
		return false
	}
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.compacting {
		return false
	}
	cooldown := c.config.Cooldown
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	if time.Since(c.lastCompact) < cooldown {
		return false
	}

	nodes, orphans := c.store.VectorOrphanStats()
	if orphans < c.config.MinOrphanCount {
		return false
	}
	if nodes == 0 {
		return false
	}
	ratio := float64(orphans) / float64(nodes)
	return ratio >= c.config.OrphanThreshold
}

func (c *Compactor) startCompaction() {
	c.mu.Lock()
	if c.compacting {
		c.mu.Unlock()
		return
	}
	c.compacting = true
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancelRun = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			c.compacting = false
			c.cancelRun = nil
			c.mu.Unlock()
		}()
		c.run(ctx)
	}()
}

func (c *Compactor) run(ctx context.Context) {
	start := time.Now()
	nodesBefore, orphansBefore := c.store.VectorOrphanStats()

	if err := c.store.Compact(ctx); err != nil {
		c.logger.Warn("background compaction failed", "error", err)
		return
	}

	c.mu.Lock()
	c.lastCompact = time.Now()
	c.mu.Unlock()

	c.logger.Info("background compaction complete",
		"orphans_removed", orphansBefore,
		"nodes_before", nodesBefore,
		"duration", time.Since(start))
}
