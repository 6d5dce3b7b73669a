// Package daemon wires the Neighbor Prober, LSA Emitter/Receiver, SPF
// Engine, and Route Installer into the single running process spec.md §2
// describes, and owns the concurrency model of spec.md §5: one goroutine
// runs the probe loop, one reads inbound LSA datagrams, and an optional
// one drives the periodic refresh — all funneling into the Router's
// single coarse lock.
//
// Grounded on the teacher's main.go wiring style (construct the socket,
// construct the router around it, start one goroutine per independent
// activity) generalized from a single packet-listener goroutine to this
// daemon's three.
package daemon

import (
	"context"
	"fmt"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/netlsr/lsrouted/config"
	"github.com/netlsr/lsrouted/installer"
	"github.com/netlsr/lsrouted/probe"
	"github.com/netlsr/lsrouted/router"
	"github.com/netlsr/lsrouted/sock"
	"github.com/netlsr/lsrouted/spf"
	"github.com/netlsr/lsrouted/util/logger"
	"github.com/netlsr/lsrouted/wire"
)

const component = "daemon"

// Daemon owns one running instance of the routing protocol: a socket, a
// router, a prober, and (unless the host has no usable netlink route
// table, e.g. in tests) a route installer.
type Daemon struct {
	cfg     *config.Config
	sock    sock.Socket
	router  *router.Router
	prober  *probe.Prober
	install *installer.Installer

	mu         sync.Mutex
	lastResult spf.Result
	lastLive   map[netip.Addr]spf.Adjacency
}

// New constructs a Daemon from resolved configuration. kernel may be nil,
// in which case route installation is skipped entirely (useful for
// environments without CAP_NET_ADMIN, e.g. integration tests).
func New(cfg *config.Config, kernel installer.Kernel) *Daemon {
	s := sock.NewUDPSocket()
	r := router.New(cfg, s)
	p := probe.New(cfg.Neighbors, cfg, probe.ICMPEcho)

	d := &Daemon{cfg: cfg, sock: s, router: r, prober: p}

	if kernel != nil {
		d.install = installer.New(kernel, installer.NewIfaceResolver(cfg.ManagedPrefixLen), cfg.ManagedPrefixLen)
	}

	r.OnRoutesChanged = d.handleRoutesChanged
	p.OnChange = r.HandleAdjacencyChange

	return d
}

// Run opens the socket and blocks running the probe loop, the receive
// loop, and (if configured) the periodic refresh ticker, until ctx is
// cancelled. SPEC_FULL.md §12's startup delay, if configured, is honored
// here before any probing begins, giving the surrounding network time to
// settle after the process starts.
func (d *Daemon) Run(ctx context.Context) error {
	if d.cfg.StartupDelay > 0 {
		logger.Infof(component, "waiting %s before the first probe cycle", d.cfg.StartupDelay)
		select {
		case <-time.After(d.cfg.StartupDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if d.install != nil {
		if err := d.install.Seed(); err != nil {
			// Not fatal: an empty cache just means every route looks new on
			// the first reconciliation, which is safe, only less efficient.
			logger.Warnf(component, "failed to adopt previously installed routes: %v", err)
		}
	}

	if err := d.sock.Open(d.cfg.LSAPort); err != nil {
		return fmt.Errorf("open LSA socket on port %d: %w", d.cfg.LSAPort, err)
	}
	defer d.sock.Close()

	logger.Infof(component, "%s (%s) listening on UDP port %d with %d configured neighbors",
		d.cfg.SelfName, d.cfg.SelfID, d.cfg.LSAPort, len(d.cfg.Neighbors))

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.prober.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.receiveLoop(ctx)
	}()

	if d.cfg.RefreshInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.refreshLoop(ctx)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// receiveLoop is the LSA Receiver/Flooder's goroutine (spec.md §5: "socket
// receives (blocking with no timeout is acceptable)"). It exits when the
// socket's Packets channel closes, which happens once Close runs.
func (d *Daemon) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-d.sock.Packets():
			if !ok {
				return
			}
			from, ok := netip.AddrFromSlice(pkt.From.IP.To4())
			if !ok {
				continue
			}
			d.router.HandleReceivedLSA(from, pkt.Data)
		}
	}
}

// refreshLoop implements spec.md §4.B's optional periodic refresh.
func (d *Daemon) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.router.EmitRefresh()
		}
	}
}

// handleRoutesChanged is Router.OnRoutesChanged: it hands the new SPF
// result to the Route Installer outside the router's lock (spec.md §5:
// "must not hold the shared lock across a kernel call") and caches the
// result for DumpState. d.mu is held throughout, so Reconcile calls from
// the probe, receive, and refresh goroutines never overlap.
func (d *Daemon) handleRoutesChanged(result spf.Result, live map[netip.Addr]spf.Adjacency) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastResult = result
	d.lastLive = live

	if d.install != nil {
		d.install.Reconcile(result, live)
	}
}

// DumpState renders a human-readable snapshot of the LSDB, live
// adjacencies, routing table, and installed kernel routes (SPEC_FULL.md
// §12's supplemented debug dump, analogous to the teacher's "lsdb" REPL
// command but triggered by SIGUSR1 instead of stdin).
func (d *Daemon) DumpState() string {
	var b strings.Builder

	fmt.Fprintf(&b, "self: %s (%s)\n", d.cfg.SelfName, d.router.Self())

	fmt.Fprintln(&b, "live neighbors:")
	live := d.router.LiveSnapshot()
	names := make([]string, 0, len(live))
	for name := range live {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		l := live[name]
		fmt.Fprintf(&b, "  %s %s cost=%.0f\n", name, l.IP, l.Cost)
	}

	fmt.Fprintln(&b, "lsdb:")
	for _, origin := range sortedOrigins(d.router.LSDBSnapshot()) {
		lsa, _ := d.router.GetLSA(origin)
		fmt.Fprintf(&b, "  %s seq=%d neighbors=%d\n", origin, lsa.Seq, len(lsa.Neighbors))
	}

	d.mu.Lock()
	result := d.lastResult
	d.mu.Unlock()

	fmt.Fprintln(&b, "routes:")
	dests := make([]netip.Addr, 0, len(result.Routes))
	for dest := range result.Routes {
		dests = append(dests, dest)
	}
	sort.Slice(dests, func(i, j int) bool { return dests[i].String() < dests[j].String() })
	for _, dest := range dests {
		fmt.Fprintf(&b, "  %s -> %s\n", dest, result.Routes[dest])
	}

	if d.install != nil {
		fmt.Fprintln(&b, "installed kernel routes:")
		cache := d.install.Cache()
		prefixes := make([]netip.Prefix, 0, len(cache))
		for p := range cache {
			prefixes = append(prefixes, p)
		}
		sort.Slice(prefixes, func(i, j int) bool { return prefixes[i].String() < prefixes[j].String() })
		for _, p := range prefixes {
			r := cache[p]
			fmt.Fprintf(&b, "  %s via %s dev %s\n", p, r.NextHop, r.Iface)
		}
	}

	return b.String()
}

func sortedOrigins(db map[netip.Addr]wire.LSA) []netip.Addr {
	origins := make([]netip.Addr, 0, len(db))
	for origin := range db {
		origins = append(origins, origin)
	}
	sort.Slice(origins, func(i, j int) bool { return origins[i].String() < origins[j].String() })
	return origins
}
