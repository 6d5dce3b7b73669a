package probe

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/netlsr/lsrouted/config"
	"github.com/netlsr/lsrouted/util/logger"
)

const component = "prober"

// Live is one entry of the live adjacency snapshot (spec.md §3): a
// currently-reachable neighbor and the cost to use for it.
type Live struct {
	Name string
	IP   netip.Addr
	Cost float64
}

// Snapshot maps neighbor name -> Live entry, produced by one probe cycle.
type Snapshot map[string]Live

// Equal implements spec.md §4.A's change-detection rule: the key set must
// match and every (ip, cost) pair must be identical. Callers are expected
// to have already quantized measured costs (see quantizeMillis) so that
// microsecond RTT noise does not make two otherwise-identical snapshots
// compare unequal.
func (s Snapshot) Equal(other Snapshot) bool {
	if len(s) != len(other) {
		return false
	}
	for name, live := range s {
		o, ok := other[name]
		if !ok || o.IP != live.IP || o.Cost != live.Cost {
			return false
		}
	}
	return true
}

// Prober runs spec.md §4.A's probing cycle: every interval, it probes all
// configured neighbors concurrently and reports changed snapshots to
// OnChange.
type Prober struct {
	neighbors []config.NeighborSpec
	probe     Func
	interval  time.Duration
	timeout   time.Duration
	costMode  config.CostMode

	// OnChange is invoked with the new snapshot whenever it differs from
	// the previous one (spec.md §4.A "Change detection"). It is called
	// synchronously from the probe loop goroutine; implementations must
	// not block it on further probing.
	OnChange func(Snapshot)

	mu   sync.Mutex
	last Snapshot
}

// New builds a Prober for the given configured neighbor set. probeFn is
// injected so tests can use a fake; production callers pass ICMPEcho.
func New(neighbors []config.NeighborSpec, cfg *config.Config, probeFn Func) *Prober {
	return &Prober{
		neighbors: neighbors,
		probe:     probeFn,
		interval:  cfg.ProbeInterval,
		timeout:   cfg.ProbeTimeout,
		costMode:  cfg.CostMode,
	}
}

// Run blocks, issuing one probe cycle every interval until ctx is
// cancelled. Probe failures within a cycle are not fatal (spec.md §4.A
// "Failure semantics"): a down neighbor is simply absent from that
// cycle's snapshot.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// outcome is one neighbor's result for a single probe cycle.
type outcome struct {
	name  string
	ip    netip.Addr
	alive bool
	rtt   time.Duration
}

// cycle runs a single probing pass. Probes run concurrently so the cycle's
// wall-clock cost is bounded by the slowest individual probe, not their
// sum (spec.md §4.A).
func (p *Prober) cycle(ctx context.Context) {
	results := make(chan outcome, len(p.neighbors))
	var wg sync.WaitGroup

	for _, n := range p.neighbors {
		wg.Add(1)
		go func(n config.NeighborSpec) {
			defer wg.Done()
			alive, rtt := p.probe(ctx, n.IP, p.timeout)
			results <- outcome{name: n.Name, ip: n.IP, alive: alive, rtt: rtt}
		}(n)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	snapshot := make(Snapshot, len(p.neighbors))
	for r := range results {
		if !r.alive {
			logger.Debugf(component, "neighbor %s (%s) is down this cycle", r.name, r.ip)
			continue
		}

		cost := p.costFor(r)
		snapshot[r.name] = Live{Name: r.name, IP: r.ip, Cost: cost}
	}

	p.mu.Lock()
	changed := p.last == nil || !snapshot.Equal(p.last)
	p.last = snapshot
	p.mu.Unlock()

	if changed && p.OnChange != nil {
		p.OnChange(snapshot)
	}
}

func (p *Prober) costFor(r outcome) float64 {
	if p.costMode == config.CostMeasured {
		return quantizeMillis(r.rtt)
	}
	for _, n := range p.neighbors {
		if n.Name == r.name {
			return float64(n.StaticCost)
		}
	}
	return 1
}

// quantizeMillis rounds a measured RTT to whole milliseconds, as spec.md
// §4.A requires ("implementations that use measured cost should quantize
// ... to prevent continuous churn") so that sub-millisecond jitter between
// cycles never registers as a changed snapshot.
func quantizeMillis(d time.Duration) float64 {
	ms := d.Round(time.Millisecond).Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return float64(ms)
}
