package lsdb

import (
	"net/netip"
	"testing"

	"github.com/netlsr/lsrouted/wire"
)

func mustLSA(id string, seq uint64) wire.LSA {
	return wire.LSA{ID: netip.MustParseAddr(id), Seq: seq, Neighbors: map[string]wire.NeighborAd{}}
}

func TestAcceptNewOrigin(t *testing.T) {
	s := New()
	if !s.Accept(mustLSA("172.20.1.3", 1)) {
		t.Fatal("expected accept for new origin")
	}
	if s.Len() != 1 {
		t.Fatalf("got %d entries, want 1", s.Len())
	}
}

func TestAcceptNewerSeqOverwrites(t *testing.T) {
	s := New()
	s.Accept(mustLSA("172.20.1.3", 5))
	if !s.Accept(mustLSA("172.20.1.3", 6)) {
		t.Fatal("expected accept for strictly newer seq")
	}
	got, _ := s.Get(netip.MustParseAddr("172.20.1.3"))
	if got.Seq != 6 {
		t.Fatalf("got seq %d, want 6", got.Seq)
	}
}

func TestAcceptDuplicateSeqDropped(t *testing.T) {
	s := New()
	s.Accept(mustLSA("172.20.1.3", 10))
	if s.Accept(mustLSA("172.20.1.3", 10)) {
		t.Fatal("duplicate seq should not be accepted")
	}
}

func TestAcceptStaleSeqDropped(t *testing.T) {
	s := New()
	s.Accept(mustLSA("172.20.1.3", 10))
	if s.Accept(mustLSA("172.20.1.3", 9)) {
		t.Fatal("stale seq should not be accepted")
	}
	got, _ := s.Get(netip.MustParseAddr("172.20.1.3"))
	if got.Seq != 10 {
		t.Fatalf("got seq %d, want 10 (unchanged)", got.Seq)
	}
}

func TestOriginsLexicographicOrder(t *testing.T) {
	s := New()
	s.Accept(mustLSA("172.20.5.3", 1))
	s.Accept(mustLSA("172.20.1.3", 1))
	s.Accept(mustLSA("172.20.3.3", 1))

	origins := s.Origins()
	want := []string{"172.20.1.3", "172.20.3.3", "172.20.5.3"}
	if len(origins) != len(want) {
		t.Fatalf("got %d origins, want %d", len(origins), len(want))
	}
	for i, addr := range origins {
		if addr.String() != want[i] {
			t.Fatalf("origins[%d] = %s, want %s", i, addr, want[i])
		}
	}
}
