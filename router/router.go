// Package router is the coarse-locked heart of the daemon: it owns the
// LSDB, the live-adjacency snapshot, and the local sequence counter
// together under one mutex, exactly as spec.md §5
// recommends ("A single coarse lock covering these fields is sufficient
// and recommended; the critical sections are short"). It implements LSA
// generation (component B), LSA acceptance and flooding (component C),
// and triggers the SPF engine (component D) on every change; the derived
// routing table is not stored here but handed to OnRoutesChanged. Grounded on
// the teacher's routing.Router, which uses the same single-mutex
// discipline over its LSDB, neighbor table, and routing table.
package router

import (
	"net/netip"
	"sort"
	"sync"

	"github.com/netlsr/lsrouted/config"
	"github.com/netlsr/lsrouted/lsdb"
	"github.com/netlsr/lsrouted/probe"
	"github.com/netlsr/lsrouted/sock"
	"github.com/netlsr/lsrouted/spf"
	"github.com/netlsr/lsrouted/util/logger"
	"github.com/netlsr/lsrouted/wire"
)

const component = "router"

// Router is the single owner of the LSDB, live-adjacency snapshot, and
// local sequence counter. All exported methods are safe for concurrent
// use by the probe loop, the receive loop, and a periodic refresh ticker.
type Router struct {
	self     netip.Addr
	selfName string
	lsaPort  int
	costMode config.CostMode
	sock     sock.Socket

	mu   sync.Mutex
	db   *lsdb.Store
	live map[string]probe.Live // keyed by neighbor name
	seq  uint64

	// OnRoutesChanged is invoked, outside the lock, after every SPF
	// recomputation (spec.md §4.D → §4.E data flow). The Route Installer
	// is wired here by package daemon.
	OnRoutesChanged func(result spf.Result, live map[netip.Addr]spf.Adjacency)
}

// New creates a Router for the given configuration, bound to an already
// constructed (but not necessarily open) Socket.
func New(cfg *config.Config, s sock.Socket) *Router {
	return &Router{
		self:     cfg.SelfID,
		selfName: cfg.SelfName,
		lsaPort:  cfg.LSAPort,
		costMode: cfg.CostMode,
		sock:     s,
		db:       lsdb.New(),
		live:     make(map[string]probe.Live),
	}
}

// Self returns the local router id.
func (r *Router) Self() netip.Addr { return r.self }

// GetLSA returns the LSDB entry for an origin, if present. Exposed for
// debug dumps and tests.
func (r *Router) GetLSA(origin netip.Addr) (wire.LSA, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Get(origin)
}

// LSDBSnapshot returns a copy of the whole LSDB, for debug dumps
// (SPEC_FULL.md §12, "human-readable router table dump").
func (r *Router) LSDBSnapshot() map[netip.Addr]wire.LSA {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Snapshot()
}

// LiveSnapshot returns a copy of the current live-adjacency snapshot.
func (r *Router) LiveSnapshot() map[string]probe.Live {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]probe.Live, len(r.live))
	for k, v := range r.live {
		out[k] = v
	}
	return out
}

func (r *Router) liveAdjacencyLocked() map[netip.Addr]spf.Adjacency {
	out := make(map[netip.Addr]spf.Adjacency, len(r.live))
	for _, l := range r.live {
		out[l.IP] = spf.Adjacency{IP: l.IP, Cost: l.Cost}
	}
	return out
}

// liveTargetsLocked returns the UDP targets of every live neighbor except
// the one whose IP equals except (the zero Addr excludes nothing),
// implementing spec.md §4.C's split-horizon rule.
func (r *Router) liveTargetsLocked(except netip.Addr) []netip.AddrPort {
	names := make([]string, 0, len(r.live))
	for name := range r.live {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic send order, easier to trace/test

	targets := make([]netip.AddrPort, 0, len(r.live))
	for _, name := range names {
		l := r.live[name]
		if l.IP == except {
			continue
		}
		targets = append(targets, netip.AddrPortFrom(l.IP, uint16(r.lsaPort)))
	}
	return targets
}

// recomputeLocked rebuilds the graph from the current LSDB and live
// snapshot and runs Dijkstra (spec.md §4.D). Must be called with mu held;
// returns the result so the caller can hand it to the Route Installer
// after releasing the lock (spec.md §5: installer calls must not happen
// under the lock).
func (r *Router) recomputeLocked() (spf.Result, map[netip.Addr]spf.Adjacency) {
	db := r.db.Snapshot()
	live := r.liveAdjacencyLocked()
	result := spf.Compute(r.self, db, live)

	for _, addr := range result.Inconsistent {
		logger.Warnf(component, "SPF produced a next-hop for %s that is not a live neighbor; route omitted", addr)
	}

	return result, live
}

// sendTo sends data to every target, logging and continuing past
// individual failures (spec.md §4.B: "If transmission to a given neighbor
// fails, the emitter logs and continues").
func (r *Router) sendTo(targets []netip.AddrPort, data []byte) {
	for _, t := range targets {
		if err := r.sock.SendTo(t, data); err != nil {
			logger.Warnf(component, "send to %s failed: %v", t, err)
		}
	}
}

func (r *Router) notifyRoutesChanged(result spf.Result, live map[netip.Addr]spf.Adjacency) {
	if r.OnRoutesChanged != nil {
		r.OnRoutesChanged(result, live)
	}
}
