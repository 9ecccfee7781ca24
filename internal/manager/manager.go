package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/sync/singleflight"

	"github.com/fastsearch/fastsearchd/internal/config"
	"github.com/fastsearch/fastsearchd/internal/embed"
	apperrors "github.com/fastsearch/fastsearchd/internal/errors"
)

// sweepInterval is how often the idle sweeper wakes, per spec.md §4.E
// ("e.g., every 10 s").
const sweepInterval = 10 * time.Second

// slot is one named, lifecycle-managed resource.
type slot struct {
	name             string
	policy           config.KeepLoadedPolicy
	idleTimeout      time.Duration
	memoryEstimateMB int

	state    State
	resource loadable
	loadedAt time.Time
	lastUsed time.Time
	inUse    int
}

// Manager owns a fixed set of slots (spec.md §3: "the Manager exclusively
// owns loaded model objects"). The slot set is fixed at construction;
// Reload only updates per-slot parameters.
type Manager struct {
	mu      sync.Mutex
	slots   map[string]*slot
	loaders map[string]Loader

	maxRAMMB       int
	evictionPolicy config.EvictionPolicy

	sf singleflight.Group

	// touch is LRU-ordered bookkeeping of which slots were used least
	// recently. It is updated on every load and acquire but not read: the
	// lru eviction order comes from each slot's lastUsed, and touch's own
	// eviction callback is unused (see DESIGN.md).
	touch *lru.LRU[string, struct{}]
	// fifoOrder is insertion-ordered bookkeeping for the fifo policy, which
	// simplelru (strictly LRU) cannot express.
	fifoOrder []string

	logger *slog.Logger
}

// New constructs a Manager from cfg's models/memory sections. loaders maps
// each canonical slot name ("embedder", "reranker") to the function that
// constructs its resource; a slot with no loader and a non-disabled policy
// fails to load with ModelLoadFailed when requested.
func New(cfg config.Config, loaders map[string]Loader, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	touch, _ := lru.NewLRU[string, struct{}](1<<20, nil)

	m := &Manager{
		slots:          make(map[string]*slot, len(cfg.Models)),
		loaders:        loaders,
		maxRAMMB:       cfg.Memory.MaxRAMMB,
		evictionPolicy: cfg.Memory.EvictionPolicy,
		touch:          touch,
		logger:         logger,
	}
	for name, mc := range cfg.Models {
		// memoryEstimateMB is unknown until first load (the estimate comes
		// from the loaded resource itself, via EstimatedMemoryMB); Status()
		// and budget math report 0 for a slot that has never been loaded.
		m.slots[name] = &slot{
			name:        name,
			policy:      mc.KeepLoaded,
			idleTimeout: time.Duration(mc.IdleTimeoutSeconds) * time.Second,
			state:       StateUnloaded,
		}
	}
	return m
}

// Start loads every "always"-policy slot synchronously. Called once during
// daemon start-up, before Run.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	var always []string
	for name, s := range m.slots {
		if s.policy == config.KeepLoadedAlways {
			always = append(always, name)
		}
	}
	m.mu.Unlock()

	sort.Strings(always)
	var firstErr error
	for _, name := range always {
		if _, err := m.load(ctx, name); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("loading always-on slot %q: %w", name, err)
		}
	}
	return firstErr
}

// Run executes the idle sweeper until ctx is done. Callers launch it as
// `go mgr.Run(ctx)` from the composition root (spec.md §4.E, §9: "one
// dedicated worker that walks the slot table under the Manager lock, takes
// unload decisions, and releases the lock before performing the unload").
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepIdle()
		}
	}
}

func (m *Manager) sweepIdle() {
	now := time.Now()

	m.mu.Lock()
	var toEvict []*slot
	for _, s := range m.slots {
		if s.policy != config.KeepLoadedOnDemand || s.state != StateLoaded || s.inUse > 0 {
			continue
		}
		if s.idleTimeout <= 0 {
			continue
		}
		if now.Sub(s.lastUsed) >= s.idleTimeout {
			toEvict = append(toEvict, s)
		}
	}
	resources := make([]loadable, len(toEvict))
	for i, s := range toEvict {
		s.state = StateUnloading
		resources[i], s.resource = s.resource, nil
	}
	m.mu.Unlock()

	for i, s := range toEvict {
		if err := resources[i].Close(); err != nil {
			m.logger.Warn("error closing model resource", "slot", s.name, "error", err)
		}
		m.logger.Info("idle sweeper evicted slot", "slot", s.name)
	}

	m.mu.Lock()
	for _, s := range toEvict {
		if s.state == StateUnloading {
			s.state = StateUnloaded
		}
	}
	m.mu.Unlock()
}

// AcquireEmbedder implements engine.ModelProvider.
func (m *Manager) AcquireEmbedder(ctx context.Context) (embed.Embedder, func(), error) {
	res, release, err := m.acquire(ctx, "embedder")
	if err != nil {
		return nil, nil, err
	}
	embedder, ok := res.(embed.Embedder)
	if !ok {
		release()
		return nil, nil, apperrors.New(apperrors.KindModelLoadFailed, "slot \"embedder\" does not hold an Embedder")
	}
	return embedder, release, nil
}

// AcquireReranker implements engine.ModelProvider.
func (m *Manager) AcquireReranker(ctx context.Context) (embed.Reranker, func(), error) {
	res, release, err := m.acquire(ctx, "reranker")
	if err != nil {
		return nil, nil, err
	}
	reranker, ok := res.(embed.Reranker)
	if !ok {
		release()
		return nil, nil, apperrors.New(apperrors.KindModelLoadFailed, "slot \"reranker\" does not hold a Reranker")
	}
	return reranker, release, nil
}

// acquire loads slot name if necessary (single-flight coordinated) and
// returns its resource with an in-use count held until release is called.
func (m *Manager) acquire(ctx context.Context, name string) (loadable, func(), error) {
	m.mu.Lock()
	s, ok := m.slots[name]
	if !ok {
		m.mu.Unlock()
		return nil, nil, apperrors.New(apperrors.KindInvalidArgument, "unknown model slot: "+name)
	}
	if s.policy == config.KeepLoadedDisabled {
		m.mu.Unlock()
		return nil, nil, apperrors.New(apperrors.KindModelDisabled, "slot is disabled: "+name)
	}
	if s.state == StateLoaded {
		s.inUse++
		s.lastUsed = time.Now()
		m.touch.Add(name, struct{}{})
		resource := s.resource
		m.mu.Unlock()
		return resource, m.releaseFunc(s), nil
	}
	m.mu.Unlock()

	resource, err := m.load(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	m.mu.Lock()
	s.inUse++
	s.lastUsed = time.Now()
	m.touch.Add(name, struct{}{})
	m.mu.Unlock()

	return resource, m.releaseFunc(s), nil
}

func (m *Manager) releaseFunc(s *slot) func() {
	return func() {
		m.mu.Lock()
		if s.inUse > 0 {
			s.inUse--
		}
		m.mu.Unlock()
	}
}

// load performs (or joins an in-flight) single-flight load of slot name.
func (m *Manager) load(ctx context.Context, name string) (loadable, error) {
	res, err, _ := m.sf.Do(name, func() (any, error) {
		return m.doLoad(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return res.(loadable), nil
}

func (m *Manager) doLoad(_ context.Context, name string) (loadable, error) {
	m.mu.Lock()
	s, ok := m.slots[name]
	if !ok {
		m.mu.Unlock()
		return nil, apperrors.New(apperrors.KindInvalidArgument, "unknown model slot: "+name)
	}
	if s.state == StateLoaded {
		resource := s.resource
		m.mu.Unlock()
		return resource, nil
	}
	s.state = StateLoading
	m.mu.Unlock()

	loader, ok := m.loaders[name]
	if !ok {
		m.mu.Lock()
		s.state = StateUnloaded
		m.mu.Unlock()
		return nil, apperrors.New(apperrors.KindModelLoadFailed, "no loader registered for slot: "+name)
	}

	resource, err := loader()
	if err != nil {
		m.mu.Lock()
		s.state = StateUnloaded
		m.mu.Unlock()
		return nil, apperrors.Wrap(apperrors.KindModelLoadFailed, err)
	}

	// The budget can only be enforced against the model's actual footprint
	// once it has been constructed, so eviction runs here against the real
	// estimate rather than before construction (spec.md §4.E: "before a
	// load that would exceed the budget ... unloads [on_demand slots] until
	// the budget fits ... else MemoryBudgetExceeded"). If eviction still
	// can't make room, the just-built resource is discarded rather than
	// kept resident over budget.
	needMB := resource.EstimatedMemoryMB()
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.ensureBudgetLocked(name, needMB); err != nil {
		s.state = StateUnloaded
		if closeErr := resource.Close(); closeErr != nil {
			m.logger.Warn("error closing model resource after budget rejection", "slot", name, "error", closeErr)
		}
		return nil, err
	}

	s.resource = resource
	s.memoryEstimateMB = needMB
	s.state = StateLoaded
	s.loadedAt = time.Now()
	s.lastUsed = s.loadedAt
	m.touch.Add(name, struct{}{})
	if !contains(m.fifoOrder, name) {
		m.fifoOrder = append(m.fifoOrder, name)
	}
	return resource, nil
}

// ensureBudgetLocked evicts on_demand slots (by the configured policy
// order) until loading needMB more for slot requesting would fit within the
// budget, or fails with MemoryBudgetExceeded. Callers must hold m.mu.
func (m *Manager) ensureBudgetLocked(requesting string, needMB int) error {
	current := m.currentMemoryLocked()
	if current+needMB <= m.maxRAMMB {
		return nil
	}

	candidates := m.evictableSlotsLocked(requesting)
	m.sortCandidatesLocked(candidates)

	for _, c := range candidates {
		if current+needMB <= m.maxRAMMB {
			break
		}
		current -= c.memoryEstimateMB
		m.unloadLocked(c)
	}

	if current+needMB > m.maxRAMMB {
		return apperrors.New(apperrors.KindMemoryBudgetExceeded,
			fmt.Sprintf("cannot fit %d MB within %d MB budget after eviction", needMB, m.maxRAMMB))
	}
	return nil
}

func (m *Manager) currentMemoryLocked() int {
	total := 0
	for _, s := range m.slots {
		if s.state == StateLoaded {
			total += s.memoryEstimateMB
		}
	}
	return total
}

func (m *Manager) evictableSlotsLocked(exclude string) []*slot {
	var out []*slot
	for name, s := range m.slots {
		if name == exclude {
			continue
		}
		if s.policy != config.KeepLoadedOnDemand || s.state != StateLoaded || s.inUse > 0 {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (m *Manager) sortCandidatesLocked(candidates []*slot) {
	switch m.evictionPolicy {
	case config.EvictionPolicyFIFO:
		order := make(map[string]int, len(m.fifoOrder))
		for i, name := range m.fifoOrder {
			order[name] = i
		}
		sort.Slice(candidates, func(i, j int) bool {
			return order[candidates[i].name] < order[candidates[j].name]
		})
	default: // lru
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].lastUsed.Before(candidates[j].lastUsed)
		})
	}
}

// unloadLocked closes a slot's resource and returns it to UNLOADED. Must be
// called with m.mu held.
func (m *Manager) unloadLocked(s *slot) {
	if s.state != StateLoaded {
		return
	}
	s.state = StateUnloading
	if s.resource != nil {
		if err := s.resource.Close(); err != nil {
			m.logger.Warn("error closing model resource", "slot", s.name, "error", err)
		}
	}
	s.resource = nil
	s.state = StateUnloaded
}

// Unload evicts slot name regardless of idle time. Fails with DaemonBusy if
// the slot is currently in use.
func (m *Manager) Unload(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[name]
	if !ok {
		return apperrors.New(apperrors.KindInvalidArgument, "unknown model slot: "+name)
	}
	if s.inUse > 0 {
		return apperrors.New(apperrors.KindDaemonBusy, "slot is in use: "+name)
	}
	m.unloadLocked(s)
	return nil
}

// Load ensures slot name is loaded, without acquiring an in-use handle.
func (m *Manager) Load(ctx context.Context, name string) error {
	m.mu.Lock()
	s, ok := m.slots[name]
	if !ok {
		m.mu.Unlock()
		return apperrors.New(apperrors.KindInvalidArgument, "unknown model slot: "+name)
	}
	if s.policy == config.KeepLoadedDisabled {
		m.mu.Unlock()
		return apperrors.New(apperrors.KindModelDisabled, "slot is disabled: "+name)
	}
	m.mu.Unlock()

	_, err := m.load(ctx, name)
	return err
}

// Status returns a per-slot snapshot for the RPC status method.
func (m *Manager) Status() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	out := make([]Status, 0, len(m.slots))
	for name, s := range m.slots {
		st := Status{
			Slot:     name,
			State:    s.state,
			Policy:   string(s.policy),
			MemoryMB: s.memoryEstimateMB,
			LoadedAt: s.loadedAt,
			LastUsed: s.lastUsed,
		}
		if s.state == StateLoaded {
			st.IdleSeconds = now.Sub(s.lastUsed).Seconds()
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}

// Reload updates per-slot policy/idle-timeout/memory-budget parameters from
// cfg. It never creates or removes slots (spec.md §3: "the set of slots is
// ... fixed at start-up; reconfiguration reloads their parameters but does
// not create new slots"). A slot newly set to disabled is unloaded
// immediately if not currently in use; other policy transitions take
// effect for future acquire/sweep decisions without forcing an unload.
func (m *Manager) Reload(cfg config.Config) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maxRAMMB = cfg.Memory.MaxRAMMB
	m.evictionPolicy = cfg.Memory.EvictionPolicy

	for name, s := range m.slots {
		mc, ok := cfg.Models[name]
		if !ok {
			continue
		}
		s.policy = mc.KeepLoaded
		s.idleTimeout = time.Duration(mc.IdleTimeoutSeconds) * time.Second
		if s.policy == config.KeepLoadedDisabled && s.inUse == 0 {
			m.unloadLocked(s)
		}
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
