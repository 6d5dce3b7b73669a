package spf

import (
	"net/netip"
	"testing"

	"github.com/netlsr/lsrouted/wire"
)

func addr(s string) netip.Addr { return netip.MustParseAddr(s) }

func ad(ip string, cost float64) wire.NeighborAd {
	return wire.NeighborAd{IP: addr(ip), Cost: wire.FloatCost(cost)}
}

func lsa(id string, seq uint64, neighbors map[string]wire.NeighborAd) wire.LSA {
	return wire.LSA{ID: addr(id), Seq: seq, Neighbors: neighbors}
}

// S1 — Linear 3-node convergence (spec.md §8).
func TestComputeLinearThreeNodes(t *testing.T) {
	a, b, c := "172.20.1.3", "172.20.2.3", "172.20.3.3"

	db := map[netip.Addr]wire.LSA{
		addr(a): lsa(a, 1, map[string]wire.NeighborAd{"b": ad(b, 1)}),
		addr(b): lsa(b, 1, map[string]wire.NeighborAd{"a": ad(a, 1), "c": ad(c, 1)}),
		addr(c): lsa(c, 1, map[string]wire.NeighborAd{"b": ad(b, 1)}),
	}
	live := map[netip.Addr]Adjacency{addr(b): {IP: addr(b), Cost: 1}}

	result := Compute(addr(a), db, live)

	if len(result.Inconsistent) != 0 {
		t.Fatalf("unexpected inconsistencies: %v", result.Inconsistent)
	}
	if result.Routes[addr(b)] != addr(b) {
		t.Errorf("route to b: got %v, want %v", result.Routes[addr(b)], addr(b))
	}
	if result.Routes[addr(c)] != addr(b) {
		t.Errorf("route to c: got %v, want next-hop %v", result.Routes[addr(c)], addr(b))
	}
}

// S2 — Ring of 5: each destination is reached via the shorter half of the
// ring (node3 through node2, node4 through node5).
func TestComputeRingShorterHalf(t *testing.T) {
	n := []string{"172.20.1.3", "172.20.2.3", "172.20.3.3", "172.20.4.3", "172.20.5.3"}
	db := map[netip.Addr]wire.LSA{}
	for i, id := range n {
		next := n[(i+1)%len(n)]
		prev := n[(i-1+len(n))%len(n)]
		db[addr(id)] = lsa(id, 1, map[string]wire.NeighborAd{
			"next": ad(next, 1),
			"prev": ad(prev, 1),
		})
	}
	live := map[netip.Addr]Adjacency{
		addr(n[1]): {IP: addr(n[1]), Cost: 1},
		addr(n[4]): {IP: addr(n[4]), Cost: 1},
	}

	result := Compute(addr(n[0]), db, live)

	if got := result.Routes[addr(n[1])]; got != addr(n[1]) {
		t.Errorf("route to node2: got %v", got)
	}
	if got := result.Routes[addr(n[4])]; got != addr(n[4]) {
		t.Errorf("route to node5: got %v", got)
	}
	if got := result.Routes[addr(n[2])]; got != addr(n[1]) {
		t.Errorf("route to node3: got %v, want next-hop %v", got, addr(n[1]))
	}
	if got := result.Routes[addr(n[3])]; got != addr(n[4]) {
		t.Errorf("route to node4: got %v, want next-hop %v", got, addr(n[4]))
	}
}

// S3 — link failure: after node 2 drops out, node1's route to 2 vanishes
// and its route to 3 shifts to the other half of the ring.
func TestComputeLinkFailureRecomputes(t *testing.T) {
	n1, n3, n4, n5 := "172.20.1.3", "172.20.3.3", "172.20.4.3", "172.20.5.3"

	db := map[netip.Addr]wire.LSA{
		addr(n1): lsa(n1, 2, map[string]wire.NeighborAd{"n5": ad(n5, 1)}),
		addr(n3): lsa(n3, 2, map[string]wire.NeighborAd{"n4": ad(n4, 1)}),
		addr(n4): lsa(n4, 2, map[string]wire.NeighborAd{"n3": ad(n3, 1), "n5": ad(n5, 1)}),
		addr(n5): lsa(n5, 2, map[string]wire.NeighborAd{"n1": ad(n1, 1), "n4": ad(n4, 1)}),
	}
	live := map[netip.Addr]Adjacency{addr(n5): {IP: addr(n5), Cost: 1}}

	result := Compute(addr(n1), db, live)

	if _, ok := result.Routes[addr("172.20.2.3")]; ok {
		t.Error("route to failed node 2 should be absent")
	}
	if got := result.Routes[addr(n3)]; got != addr(n5) {
		t.Errorf("route to n3: got %v, want next-hop %v", got, addr(n5))
	}
}

func TestComputeSingleNodeEmptyTable(t *testing.T) {
	self := addr("172.20.1.3")
	db := map[netip.Addr]wire.LSA{self: lsa(self.String(), 1, nil)}

	result := Compute(self, db, map[netip.Addr]Adjacency{})

	if len(result.Routes) != 0 {
		t.Errorf("expected empty routing table, got %v", result.Routes)
	}
}

func TestComputeUnreachableOmitted(t *testing.T) {
	self := addr("172.20.1.3")
	other := addr("172.20.9.3")
	db := map[netip.Addr]wire.LSA{
		self:  lsa(self.String(), 1, nil),
		other: lsa(other.String(), 1, nil),
	}

	result := Compute(self, db, map[netip.Addr]Adjacency{})

	if _, ok := result.Routes[other]; ok {
		t.Error("unreachable destination should not have a route")
	}
}

func TestComputeNeighborNotYetInLSDB(t *testing.T) {
	self := addr("172.20.1.3")
	neighbor := addr("172.20.2.3")

	result := Compute(self, map[netip.Addr]wire.LSA{}, map[netip.Addr]Adjacency{
		neighbor: {IP: neighbor, Cost: 1},
	})

	if got := result.Routes[neighbor]; got != neighbor {
		t.Errorf("freshly connected neighbor should be routable via itself, got %v", got)
	}
}
