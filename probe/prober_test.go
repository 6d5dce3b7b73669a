package probe

import (
	"context"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/netlsr/lsrouted/config"
)

func fakeConfig(neighbors []config.NeighborSpec, mode config.CostMode) *config.Config {
	return &config.Config{
		Neighbors:     neighbors,
		ProbeInterval: time.Hour, // tests drive cycle() directly, never the ticker
		ProbeTimeout:  10 * time.Millisecond,
		CostMode:      mode,
	}
}

func TestCycleStaticCostSnapshot(t *testing.T) {
	neighbors := []config.NeighborSpec{
		{Name: "r1", IP: netip.MustParseAddr("172.20.1.3"), StaticCost: 5},
		{Name: "r2", IP: netip.MustParseAddr("172.20.2.3"), StaticCost: 1},
	}

	alwaysUp := func(ctx context.Context, ip netip.Addr, timeout time.Duration) (bool, time.Duration) {
		return true, time.Millisecond
	}

	p := New(neighbors, fakeConfig(neighbors, config.CostStatic), alwaysUp)

	var got Snapshot
	var mu sync.Mutex
	p.OnChange = func(s Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		got = s
	}

	p.cycle(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("got %d live neighbors, want 2", len(got))
	}
	if got["r1"].Cost != 5 {
		t.Errorf("r1 cost = %v, want 5 (static)", got["r1"].Cost)
	}
}

func TestCycleDownNeighborOmitted(t *testing.T) {
	neighbors := []config.NeighborSpec{
		{Name: "r1", IP: netip.MustParseAddr("172.20.1.3"), StaticCost: 1},
	}
	alwaysDown := func(ctx context.Context, ip netip.Addr, timeout time.Duration) (bool, time.Duration) {
		return false, 0
	}

	p := New(neighbors, fakeConfig(neighbors, config.CostStatic), alwaysDown)
	var got Snapshot
	p.OnChange = func(s Snapshot) { got = s }

	p.cycle(context.Background())

	if len(got) != 0 {
		t.Fatalf("isolated node should have empty snapshot, got %v", got)
	}
}

func TestCycleOnlyNotifiesOnChange(t *testing.T) {
	neighbors := []config.NeighborSpec{
		{Name: "r1", IP: netip.MustParseAddr("172.20.1.3"), StaticCost: 1},
	}
	alwaysUp := func(ctx context.Context, ip netip.Addr, timeout time.Duration) (bool, time.Duration) {
		return true, time.Millisecond
	}

	p := New(neighbors, fakeConfig(neighbors, config.CostStatic), alwaysUp)
	calls := 0
	p.OnChange = func(s Snapshot) { calls++ }

	p.cycle(context.Background())
	p.cycle(context.Background())
	p.cycle(context.Background())

	if calls != 1 {
		t.Errorf("OnChange called %d times, want 1 (unchanged snapshot after first cycle)", calls)
	}
}

func TestCycleMeasuredCostQuantized(t *testing.T) {
	neighbors := []config.NeighborSpec{
		{Name: "r1", IP: netip.MustParseAddr("172.20.1.3"), StaticCost: 1},
	}

	rtt := 5*time.Millisecond + 200*time.Microsecond
	probeFn := func(ctx context.Context, ip netip.Addr, timeout time.Duration) (bool, time.Duration) {
		return true, rtt
	}

	p := New(neighbors, fakeConfig(neighbors, config.CostMeasured), probeFn)
	calls := 0
	p.OnChange = func(s Snapshot) { calls++ }

	p.cycle(context.Background())
	// Jitter a few microseconds without crossing a millisecond boundary;
	// quantization must absorb this and not re-notify.
	rtt = 5*time.Millisecond + 250*time.Microsecond
	p.cycle(context.Background())

	if calls != 1 {
		t.Errorf("measured-cost quantization should absorb sub-millisecond jitter, got %d notifications", calls)
	}
}

func TestSnapshotEqual(t *testing.T) {
	a := Snapshot{"r1": {Name: "r1", IP: netip.MustParseAddr("172.20.1.3"), Cost: 1}}
	b := Snapshot{"r1": {Name: "r1", IP: netip.MustParseAddr("172.20.1.3"), Cost: 1}}
	c := Snapshot{"r1": {Name: "r1", IP: netip.MustParseAddr("172.20.1.3"), Cost: 2}}

	if !a.Equal(b) {
		t.Error("identical snapshots should be equal")
	}
	if a.Equal(c) {
		t.Error("snapshots with different costs should not be equal")
	}
}
