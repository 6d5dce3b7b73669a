package router

import (
	"net/netip"

	"github.com/netlsr/lsrouted/config"
	"github.com/netlsr/lsrouted/probe"
	"github.com/netlsr/lsrouted/util/logger"
	"github.com/netlsr/lsrouted/wire"
)

// netipZero is the "exclude nothing" sentinel for liveTargetsLocked: the
// emitter floods to every live neighbor, unlike the receiver which
// excludes the arrival interface (split-horizon, spec.md §4.C).
var netipZero netip.Addr

// HandleAdjacencyChange is the LSA Emitter's trigger (1) from spec.md
// §4.B: the Prober reported a changed snapshot. It builds a new LSA with
// a bumped sequence number, installs it into the LSDB under the local id,
// floods it to every live neighbor, and runs SPF. It is also the trigger
// path for §4.D's "D is also triggered by A directly when local
// adjacencies change even if no LSA has yet been emitted" — here the two
// coincide, since adjacency changes always produce a fresh local LSA.
func (r *Router) HandleAdjacencyChange(snapshot probe.Snapshot) {
	r.mu.Lock()
	r.live = toLiveMap(snapshot)
	lsa := r.buildLocalLSALocked()
	r.db.Put(lsa)
	result, live := r.recomputeLocked()
	targets := r.liveTargetsLocked(netipZero)
	r.mu.Unlock()

	r.emit(lsa, targets)
	r.notifyRoutesChanged(result, live)
}

// EmitRefresh implements spec.md §4.B's optional periodic refresh: emit a
// new LSA (with a bumped seq, per the "MUST still bump seq" requirement)
// even absent a detected change, to heal a partitioned LSDB.
func (r *Router) EmitRefresh() {
	r.mu.Lock()
	lsa := r.buildLocalLSALocked()
	r.db.Put(lsa)
	result, live := r.recomputeLocked()
	targets := r.liveTargetsLocked(netipZero)
	r.mu.Unlock()

	logger.Debugf(component, "periodic refresh: emitting seq %d", lsa.Seq)
	r.emit(lsa, targets)
	r.notifyRoutesChanged(result, live)
}

// buildLocalLSALocked forms the local LSA from the current live snapshot
// and bumps the monotonic sequence counter (spec.md §3 invariant 2). Must
// be called with mu held.
func (r *Router) buildLocalLSALocked() wire.LSA {
	r.seq++

	neighbors := make(map[string]wire.NeighborAd, len(r.live))
	for name, l := range r.live {
		neighbors[name] = wire.NeighborAd{IP: l.IP, Cost: r.costFor(l)}
	}

	return wire.LSA{ID: r.self, Neighbors: neighbors, Seq: r.seq}
}

// costFor renders a live adjacency's cost the way spec.md §6 requires it
// on the wire: an integer in static mode, a float in measured mode. Static
// costs are always whole numbers by construction (config.NeighborSpec.
// StaticCost is an int), so the conversion back to int here is exact.
func (r *Router) costFor(l probe.Live) wire.Cost {
	if r.costMode == config.CostMeasured {
		return wire.FloatCost(l.Cost)
	}
	return wire.IntCost(int(l.Cost))
}

func (r *Router) emit(lsa wire.LSA, targets []netip.AddrPort) {
	data, err := wire.Encode(lsa)
	if err != nil {
		logger.Warnf(component, "failed to encode local LSA: %v", err)
		return
	}
	r.sendTo(targets, data)
}

func toLiveMap(snapshot probe.Snapshot) map[string]probe.Live {
	out := make(map[string]probe.Live, len(snapshot))
	for name, l := range snapshot {
		out[name] = l
	}
	return out
}
