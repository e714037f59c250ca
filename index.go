// Package ordidx implements a two-phase ordered byte-key index.
//
// An Index starts Empty, accepts writes while Mutable (backed by an
// arena-allocated AVL tree), and can be compressed once into a read-only
// Compressed state (a bitmap-encoded succinct ternary trie) that trades
// away further writes for a much smaller memory footprint and still
// answers point lookups and ordered neighbor queries.
package ordidx

import (
	"fmt"
	"log/slog"

	"github.com/haspelj/ordidx/internal/arena"
	"github.com/haspelj/ordidx/internal/avltree"
	"github.com/haspelj/ordidx/internal/obs"
	"github.com/haspelj/ordidx/internal/succinct"
	"github.com/haspelj/ordidx/internal/ternary"
)

type lifecycle int

const (
	lifecycleEmpty lifecycle = iota
	lifecycleMutable
	lifecycleCompressed
)

func (l lifecycle) String() string {
	switch l {
	case lifecycleEmpty:
		return "empty"
	case lifecycleMutable:
		return "mutable"
	case lifecycleCompressed:
		return "compressed"
	default:
		return "unknown"
	}
}

// Index is an ordered byte-key index. The zero value is not usable; build
// one with Open, OpenWithAllocator, or OpenWithOptions.
type Index struct {
	state    lifecycle
	tree     *avltree.Tree
	succinct *succinct.Succinct
	alloc    arena.Allocator
	log      *slog.Logger
}

// Open returns an empty Index backed by the Go runtime allocator.
func Open() *Index {
	return OpenWithAllocator(arena.StdAllocator{})
}

// OpenWithAllocator returns an empty Index backed by alloc, letting callers
// bound the index's memory use (or exercise out-of-memory handling) by
// supplying an *arena.BoundedAllocator.
func OpenWithAllocator(alloc arena.Allocator) *Index {
	return OpenWithOptions(alloc, nil)
}

// OpenWithOptions returns an empty Index backed by alloc and logging
// lifecycle transitions to logger. A nil alloc defaults to
// arena.StdAllocator{}; a nil logger defaults to slog.Default().
func OpenWithOptions(alloc arena.Allocator, logger *slog.Logger) *Index {
	if alloc == nil {
		alloc = arena.StdAllocator{}
	}
	if logger == nil {
		logger = obs.Default()
	}
	return &Index{state: lifecycleEmpty, alloc: alloc, log: logger}
}

// Close releases the index's storage. An Index is not usable after Close.
func (idx *Index) Close() {
	if idx == nil {
		return
	}
	idx.Truncate()
}

// Truncate discards all data, returning the index to its Empty state
// regardless of its prior state.
func (idx *Index) Truncate() {
	idx.log.Debug("ordidx: truncate", "prior_state", idx.state.String())
	idx.tree = nil
	idx.succinct = nil
	idx.state = lifecycleEmpty
}

// Items returns the number of distinct keys currently stored.
func (idx *Index) Items() uint64 {
	switch idx.state {
	case lifecycleMutable:
		return idx.tree.Items()
	case lifecycleCompressed:
		return idx.succinct.Items()
	default:
		return 0
	}
}

// Update finds or creates the record for key, returning a pointer the
// caller may read or write through. The pointer remains valid until the
// next Truncate or Compress.
//
// Update fails with ErrInvalidArgument if key violates MaxKeyLen or
// contains an embedded NUL byte, with ErrInvalidState if the index is
// Compressed, and with ErrOutOfMemory if the configured Allocator cannot
// satisfy the arena growth the insert requires.
func (idx *Index) Update(key Key) (*uint64, error) {
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("ordidx: update: %w", err)
	}
	if idx.state == lifecycleCompressed {
		return nil, fmt.Errorf("ordidx: update: %w", ErrInvalidState)
	}
	if idx.tree == nil {
		idx.tree = avltree.New(idx.alloc)
	}
	rec, err := idx.tree.Update(key)
	if err != nil {
		return nil, fmt.Errorf("ordidx: update: %w", err)
	}
	idx.state = lifecycleMutable
	return rec, nil
}

// Find returns the record for key, or nil if key is absent or the index is
// Empty. Find never fails: a key that violates the index's constraints
// simply cannot be present, so it resolves to nil like any other miss.
func (idx *Index) Find(key Key) *uint64 {
	switch idx.state {
	case lifecycleMutable:
		return idx.tree.Find(key)
	case lifecycleCompressed:
		return idx.succinct.Find(key)
	default:
		return nil
	}
}

// Next returns the record and resolved key for the smallest key strictly
// greater than key, or (if key is empty) for the smallest key in the
// index. The resolved key is written into the prefix of out, which must be
// at least MaxKeyLen bytes long to hold any possible result.
func (idx *Index) Next(key Key, out []byte) (*uint64, []byte) {
	switch idx.state {
	case lifecycleMutable:
		return idx.tree.Next(key, out)
	case lifecycleCompressed:
		return idx.succinct.Next(key, out)
	default:
		return nil, nil
	}
}

// Prev returns the record and resolved key for the largest key strictly
// less than key, or (if key is empty) for the largest key in the index.
func (idx *Index) Prev(key Key, out []byte) (*uint64, []byte) {
	switch idx.state {
	case lifecycleMutable:
		return idx.tree.Prev(key, out)
	case lifecycleCompressed:
		return idx.succinct.Prev(key, out)
	default:
		return nil, nil
	}
}

// Compress builds a read-only succinct trie from the current contents and
// switches the index into the Compressed state. It succeeds from either the
// Empty or the Mutable state, but fails with ErrInvalidState if the index is
// already Compressed.
//
// If building the succinct trie fails (ErrOutOfMemory), the index is left
// exactly as it was: still Mutable (or Empty), with its AVL tree intact,
// so the caller can retry or keep using the uncompressed index.
func (idx *Index) Compress() error {
	if idx.state == lifecycleCompressed {
		return fmt.Errorf("ordidx: compress: %w", ErrInvalidState)
	}
	idx.log.Debug("ordidx: compress", "items", idx.Items())

	var source ternary.Source
	if idx.tree != nil {
		source = idx.tree
	} else {
		source = emptyTreeSource{}
	}

	trie, err := ternary.New(idx.alloc, source)
	if err != nil {
		return fmt.Errorf("ordidx: compress: %w", err)
	}
	s, err := succinct.New(trie)
	if err != nil {
		return fmt.Errorf("ordidx: compress: %w", err)
	}

	idx.tree = nil
	idx.succinct = s
	idx.state = lifecycleCompressed
	return nil
}

// emptyTreeSource satisfies ternary.Source for an Index that has never had
// a tree created (still in the Empty state).
type emptyTreeSource struct{}

func (emptyTreeSource) Iterate(func(key []byte, record uint64) int) error { return nil }
func (emptyTreeSource) Items() uint64                                     { return 0 }
