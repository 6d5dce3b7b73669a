package router

import (
	"net/netip"
	"strings"
	"sync"
	"testing"

	"github.com/netlsr/lsrouted/config"
	"github.com/netlsr/lsrouted/probe"
	"github.com/netlsr/lsrouted/sock"
	"github.com/netlsr/lsrouted/spf"
	"github.com/netlsr/lsrouted/wire"
)

type sentPacket struct {
	to   netip.AddrPort
	data []byte
}

// fakeSocket satisfies sock.Socket without opening a real UDP conn, so
// router tests can run deterministically and inspect every sent datagram.
type fakeSocket struct {
	mu   sync.Mutex
	sent []sentPacket
	pkts chan sock.Packet
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{pkts: make(chan sock.Packet, 64)}
}

func (f *fakeSocket) LocalAddr() netip.AddrPort { return netip.AddrPort{} }

func (f *fakeSocket) SendTo(addr netip.AddrPort, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.sent = append(f.sent, sentPacket{to: addr, data: cp})
	return nil
}

func (f *fakeSocket) Open(port int) error        { return nil }
func (f *fakeSocket) Close() error               { close(f.pkts); return nil }
func (f *fakeSocket) Packets() <-chan sock.Packet { return f.pkts }

func newTestRouter() (*Router, *fakeSocket) {
	cfg := &config.Config{
		SelfID:   netip.MustParseAddr("172.20.1.3"),
		SelfName: "router1",
		LSAPort:  5000,
	}
	s := newFakeSocket()
	return New(cfg, s), s
}

func newTestRouterWithCostMode(mode config.CostMode) (*Router, *fakeSocket) {
	cfg := &config.Config{
		SelfID:   netip.MustParseAddr("172.20.1.3"),
		SelfName: "router1",
		LSAPort:  5000,
		CostMode: mode,
	}
	s := newFakeSocket()
	return New(cfg, s), s
}

func TestHandleAdjacencyChangeBumpsSeqAndFloods(t *testing.T) {
	r, s := newTestRouter()

	neighbor := netip.MustParseAddr("172.20.2.3")
	var gotResult spf.Result
	r.OnRoutesChanged = func(res spf.Result, live map[netip.Addr]spf.Adjacency) {
		gotResult = res
	}

	r.HandleAdjacencyChange(probe.Snapshot{
		"router2": {Name: "router2", IP: neighbor, Cost: 1},
	})

	lsa, ok := r.GetLSA(r.Self())
	if !ok {
		t.Fatal("local LSA missing after adjacency change")
	}
	if lsa.Seq != 1 {
		t.Errorf("seq = %d, want 1 (first emission)", lsa.Seq)
	}
	if len(s.sent) != 1 {
		t.Fatalf("sent %d packets, want 1 (flood to the one neighbor)", len(s.sent))
	}
	_ = gotResult

	r.HandleAdjacencyChange(probe.Snapshot{
		"router2": {Name: "router2", IP: neighbor, Cost: 1},
		"router3": {Name: "router3", IP: netip.MustParseAddr("172.20.3.3"), Cost: 1},
	})
	lsa2, _ := r.GetLSA(r.Self())
	if lsa2.Seq != 2 {
		t.Errorf("seq after second change = %d, want 2 (strictly increasing, spec.md invariant 2)", lsa2.Seq)
	}
}

// spec.md §6: "cost is either an integer (static mode) or a
// floating-point number (measured mode)". Static mode must serialize a
// whole-numbered JSON value with no decimal point.
func TestStaticCostModeEmitsIntegerOnWire(t *testing.T) {
	r, s := newTestRouterWithCostMode(config.CostStatic)

	r.HandleAdjacencyChange(probe.Snapshot{
		"router2": {Name: "router2", IP: netip.MustParseAddr("172.20.2.3"), Cost: 5},
	})

	if len(s.sent) != 1 {
		t.Fatalf("sent %d packets, want 1", len(s.sent))
	}
	lsa, err := wire.Decode(s.sent[0].data)
	if err != nil {
		t.Fatalf("decode emitted LSA: %v", err)
	}
	ad, ok := lsa.Neighbors["router2"]
	if !ok {
		t.Fatal("missing router2 in emitted neighbor map")
	}
	encoded, err := ad.Cost.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal cost: %v", err)
	}
	if strings.ContainsAny(string(encoded), ".eE") {
		t.Errorf("static-mode cost must encode as a JSON integer, got %s", encoded)
	}
}

func TestMeasuredCostModeEmitsFloatOnWire(t *testing.T) {
	r, s := newTestRouterWithCostMode(config.CostMeasured)

	r.HandleAdjacencyChange(probe.Snapshot{
		"router2": {Name: "router2", IP: netip.MustParseAddr("172.20.2.3"), Cost: 5},
	})

	lsa, err := wire.Decode(s.sent[0].data)
	if err != nil {
		t.Fatalf("decode emitted LSA: %v", err)
	}
	ad := lsa.Neighbors["router2"]
	encoded, err := ad.Cost.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal cost: %v", err)
	}
	if !strings.ContainsAny(string(encoded), ".eE") {
		t.Errorf("measured-mode cost must encode as a JSON float, got %s", encoded)
	}
}

// S5 — duplicate suppression: flooding the same (id, seq) LSA many times
// triggers exactly one LSDB write and one SPF run.
func TestDuplicateFloodSuppressed(t *testing.T) {
	r, s := newTestRouter()

	remote := wire.LSA{
		ID:        netip.MustParseAddr("172.20.9.3"),
		Neighbors: map[string]wire.NeighborAd{},
		Seq:       1,
	}
	raw, _ := wire.Encode(remote)

	notifications := 0
	r.OnRoutesChanged = func(spf.Result, map[netip.Addr]spf.Adjacency) { notifications++ }

	for i := 0; i < 20; i++ {
		r.HandleReceivedLSA(netip.MustParseAddr("172.20.2.3"), raw)
	}

	if notifications != 1 {
		t.Errorf("got %d SPF runs, want 1 (all 20 copies after the first are duplicates)", notifications)
	}
	if len(s.sent) != 0 {
		t.Errorf("got %d forwards, want 0 (no other live neighbors to flood to)", len(s.sent))
	}
}

// S6 — stale drop: a lower-seq LSA arriving after a higher one is dropped
// and not forwarded.
func TestStaleLSADropped(t *testing.T) {
	r, s := newTestRouter()

	origin := netip.MustParseAddr("172.20.9.3")
	fresh := wire.LSA{ID: origin, Seq: 10, Neighbors: map[string]wire.NeighborAd{}}
	stale := wire.LSA{ID: origin, Seq: 9, Neighbors: map[string]wire.NeighborAd{}}

	freshRaw, _ := wire.Encode(fresh)
	staleRaw, _ := wire.Encode(stale)

	r.HandleReceivedLSA(netip.MustParseAddr("172.20.2.3"), freshRaw)
	sentAfterFresh := len(s.sent)

	r.HandleReceivedLSA(netip.MustParseAddr("172.20.2.3"), staleRaw)

	if len(s.sent) != sentAfterFresh {
		t.Error("stale LSA must not be forwarded")
	}
	got, _ := r.GetLSA(origin)
	if got.Seq != 10 {
		t.Errorf("LSDB seq = %d, want 10 (unchanged by the stale arrival)", got.Seq)
	}
}

// S4 — late joiner: a fresh node's LSA at seq=1 is still accepted even
// while other origins are already at higher sequence numbers.
func TestLateJoinerAccepted(t *testing.T) {
	r, _ := newTestRouter()

	established := wire.LSA{ID: netip.MustParseAddr("172.20.2.3"), Seq: 42, Neighbors: map[string]wire.NeighborAd{}}
	raw, _ := wire.Encode(established)
	r.HandleReceivedLSA(netip.MustParseAddr("172.20.2.3"), raw)

	joiner := wire.LSA{ID: netip.MustParseAddr("172.20.9.3"), Seq: 1, Neighbors: map[string]wire.NeighborAd{}}
	joinerRaw, _ := wire.Encode(joiner)
	r.HandleReceivedLSA(netip.MustParseAddr("172.20.9.3"), joinerRaw)

	got, ok := r.GetLSA(netip.MustParseAddr("172.20.9.3"))
	if !ok || got.Seq != 1 {
		t.Errorf("late joiner's LSA should be accepted as a new origin, got %+v, present=%v", got, ok)
	}
}

func TestSplitHorizonExcludesArrivalInterface(t *testing.T) {
	r, s := newTestRouter()

	r.HandleAdjacencyChange(probe.Snapshot{
		"router2": {Name: "router2", IP: netip.MustParseAddr("172.20.2.3"), Cost: 1},
		"router3": {Name: "router3", IP: netip.MustParseAddr("172.20.3.3"), Cost: 1},
	})
	s.sent = nil

	remote := wire.LSA{ID: netip.MustParseAddr("172.20.9.3"), Seq: 1, Neighbors: map[string]wire.NeighborAd{}}
	raw, _ := wire.Encode(remote)
	r.HandleReceivedLSA(netip.MustParseAddr("172.20.2.3"), raw)

	if len(s.sent) != 1 {
		t.Fatalf("forwarded to %d neighbors, want 1 (excluding the arrival interface)", len(s.sent))
	}
	if s.sent[0].to.Addr().String() == "172.20.2.3" {
		t.Error("must not forward back to the arrival interface (split-horizon)")
	}
}
