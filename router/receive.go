package router

import (
	"net/netip"

	"github.com/netlsr/lsrouted/util/logger"
	"github.com/netlsr/lsrouted/wire"
)

// HandleReceivedLSA implements the LSA Receiver/Flooder of spec.md §4.C:
// deserialize, apply the accept-or-drop rule against the LSDB, and on
// accept, forward the exact received bytes to every live neighbor except
// the one the packet arrived from (split-horizon), then run SPF.
//
// Forwarding the raw bytes rather than re-encoding preserves byte-identity
// hop to hop, which is what makes the duplicate-suppression check at each
// downstream hop cheap (spec.md §4.C "Ordering").
func (r *Router) HandleReceivedLSA(from netip.Addr, raw []byte) {
	lsa, err := wire.Decode(raw)
	if err != nil {
		logger.Warnf(component, "dropping malformed LSA from %s: %v", from, err)
		return
	}

	r.mu.Lock()
	accepted := r.db.Accept(lsa)
	if !accepted {
		r.mu.Unlock()
		logger.Debugf(component, "dropping duplicate or stale LSA for %s (seq %d) from %s", lsa.ID, lsa.Seq, from)
		return
	}

	result, live := r.recomputeLocked()
	targets := r.liveTargetsLocked(from)
	r.mu.Unlock()

	logger.Infof(component, "accepted LSA for %s seq %d via %s, flooding to %d neighbors", lsa.ID, lsa.Seq, from, len(targets))
	r.sendTo(targets, raw)
	r.notifyRoutesChanged(result, live)
}
