// Package lsdb implements the Link-State Database of spec.md §3: the
// per-origin mapping that holds at most one LSA per router, the one with
// the highest observed sequence number.
//
// Store is a plain, unsynchronized map. Per spec.md §5, the daemon holds
// a single coarse lock over the LSDB, the live-adjacency snapshot, and the
// local sequence counter together, so locking lives in package router, not
// here — Store itself makes no concurrency promises.
package lsdb

import (
	"net/netip"
	"sort"

	"github.com/netlsr/lsrouted/wire"
)

// Store holds the latest-seq LSA per origin id.
type Store struct {
	entries map[netip.Addr]wire.LSA
}

// New creates an empty LSDB.
func New() *Store {
	return &Store{entries: make(map[netip.Addr]wire.LSA)}
}

// Get returns the current LSA for an origin, if any.
func (s *Store) Get(origin netip.Addr) (wire.LSA, bool) {
	lsa, ok := s.entries[origin]
	return lsa, ok
}

// Accept applies spec.md §4.C's acceptance rule: a new-or-newer LSA
// overwrites the stored entry and Accept returns true; a duplicate or
// stale LSA (seq <= the one on file) is left untouched and Accept returns
// false. Invariant 1 of spec.md §3 follows directly from this rule.
func (s *Store) Accept(lsa wire.LSA) bool {
	existing, ok := s.entries[lsa.ID]
	if ok && lsa.Seq <= existing.Seq {
		return false
	}
	s.entries[lsa.ID] = lsa
	return true
}

// Put installs an LSA unconditionally, used by the LSA Emitter (spec.md
// §4.B) to install its own freshly-minted local LSA, which is by
// definition newer than anything already on file for the local id.
func (s *Store) Put(lsa wire.LSA) {
	s.entries[lsa.ID] = lsa
}

// Origins returns every origin id currently present, in lexicographic
// order, so that SPF (spec.md §4.D) iterates deterministically.
func (s *Store) Origins() []netip.Addr {
	out := make([]netip.Addr, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Len reports how many origins currently have an LSA on file.
func (s *Store) Len() int {
	return len(s.entries)
}

// Snapshot returns a shallow copy of the LSDB contents, safe to hand to a
// long-running SPF computation outside the daemon's lock (spec.md §5).
func (s *Store) Snapshot() map[netip.Addr]wire.LSA {
	out := make(map[netip.Addr]wire.LSA, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}
