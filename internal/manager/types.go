// Package manager implements the model lifecycle controller: named slots
// with pluggable keep-loaded policies, idle-timeout eviction, an LRU/FIFO
// memory budget, and single-flight load coordination.
package manager

import (
	"time"

	"github.com/fastsearch/fastsearchd/internal/embed"
)

// State is a slot's position in the lifecycle state machine described in
// spec.md §4.E:
//
//	UNLOADED --load--> LOADING --success--> LOADED --(idle|evict)--> UNLOADING --> UNLOADED
//	                       |                    |
//	                    failure              use/touch
//	                       v                    |
//	                    UNLOADED           (stays LOADED)
type State string

const (
	StateUnloaded  State = "UNLOADED"
	StateLoading   State = "LOADING"
	StateLoaded    State = "LOADED"
	StateUnloading State = "UNLOADING"
)

// loadable is the subset of embed.Embedder / embed.Reranker the manager
// needs in order to manage a slot generically across both resource kinds.
type loadable interface {
	Close() error
	EstimatedMemoryMB() int
}

// Loader constructs the resource for a named slot. Supplied by the
// composition root (cmd/fastsearchd), one per canonical slot name.
type Loader func() (loadable, error)

// EmbedderLoader adapts a constructor of embed.Embedder values into a
// Loader, since loadable is unexported and callers outside this package
// cannot name it directly.
func EmbedderLoader(fn func() (embed.Embedder, error)) Loader {
	return func() (loadable, error) {
		return fn()
	}
}

// RerankerLoader adapts a constructor of embed.Reranker values into a
// Loader, for the same reason as EmbedderLoader.
func RerankerLoader(fn func() (embed.Reranker, error)) Loader {
	return func() (loadable, error) {
		return fn()
	}
}

// Status is the public, read-only view of one slot returned by Status().
type Status struct {
	Slot        string
	State       State
	Policy      string
	MemoryMB    int
	LoadedAt    time.Time
	LastUsed    time.Time
	IdleSeconds float64
}
