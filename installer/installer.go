// Package installer is the Route Installer of spec.md §4.E: it turns the
// SPF Engine's destination -> next-hop table into a set of /24 kernel
// routes, diffs that set against a cache of what it previously pushed, and
// applies the minimal add/replace/delete sequence through netlink.
//
// Grounded on the teacher's habit of wrapping a single external resource
// (there, the chat socket) behind a small interface so the real transport
// can be swapped for a fake in tests; here the resource is the kernel
// routing table, reached through github.com/jsimonetti/rtnetlink and
// github.com/mdlayher/netlink.
package installer

import (
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strings"

	"github.com/netlsr/lsrouted/spf"
	"github.com/netlsr/lsrouted/util/logger"
)

const component = "installer"

// Route is one entry of the managed prefix range: a /24 destination, its
// elected next-hop, and the egress interface that reaches that next-hop.
type Route struct {
	Prefix  netip.Prefix
	NextHop netip.Addr
	Iface   string
}

// Kernel is the minimal abstract interface spec.md §6 asks for:
// list/add/replace/delete over the managed routes. The production
// implementation is netlinkKernel; tests use a fake.
type Kernel interface {
	ListManagedRoutes() ([]Route, error)
	Add(r Route) error
	Replace(r Route) error
	Delete(prefix netip.Prefix) error
}

// IfaceResolver maps a next-hop IP to the local egress interface that
// reaches it, for routes that actually need installing. It plays no part
// in keeping directly-connected routes untouched — desiredRoutes excludes
// those by comparing destination to next-hop before an IfaceResolver is
// ever consulted (spec.md §4.E: "Directly-connected routes ... are never
// touched").
type IfaceResolver interface {
	ResolveIface(nextHop netip.Addr) (string, error)
}

// Installer owns the kernel-route cache (spec.md §3: "Kernel route
// cache... a mapping destination_prefix -> (next_hop_ip, egress_interface)
// recording what the Route Installer has previously pushed"). It is not
// safe for concurrent use; the caller (package daemon, under its own
// mutex) serializes calls to Reconcile.
type Installer struct {
	kernel    Kernel
	ifaces    IfaceResolver
	prefixLen int
	cache     map[netip.Prefix]Route
}

// New constructs an Installer with an empty cache. prefixLen is the
// managed prefix width in bits (spec.md §4.E: "/24" by default, 24). Call
// Seed once at startup to adopt routes a prior process lifetime left
// behind before the first Reconcile runs.
func New(kernel Kernel, ifaces IfaceResolver, prefixLen int) *Installer {
	return &Installer{
		kernel:    kernel,
		ifaces:    ifaces,
		prefixLen: prefixLen,
		cache:     make(map[netip.Prefix]Route),
	}
}

// Seed populates the cache from the kernel's own view of the routes it
// already manages (Kernel.ListManagedRoutes), so a restarted daemon
// recognizes routes a prior process lifetime installed instead of
// treating them as foreign state it must add on top of. Without this, a
// cache that always starts empty can never issue the delete half of a
// reconciliation for a route the new process never itself pushed,
// leaving it orphaned if the topology has since changed (tension with
// invariant P5, spec.md §3). Call once, before the first Reconcile.
func (in *Installer) Seed() error {
	routes, err := in.kernel.ListManagedRoutes()
	if err != nil {
		return fmt.Errorf("list managed routes: %w", err)
	}
	for _, r := range routes {
		in.cache[r.Prefix] = r
	}
	logger.Infof(component, "adopted %d previously installed route(s) from the kernel", len(routes))
	return nil
}

// DestinationPrefix maps a destination id to its managed prefix (spec.md
// §4.E: "first_three_octets(d).0/24" generalized to an arbitrary
// prefixLen).
func DestinationPrefix(id netip.Addr, prefixLen int) netip.Prefix {
	p, err := id.Prefix(prefixLen)
	if err != nil {
		return netip.Prefix{}
	}
	return p.Masked()
}

// Reconcile applies the three-way diff of spec.md §4.E against the
// current cache: the desired set is built from result, keeping only
// routes whose next-hop is a key of live and whose destination is not its
// own next-hop (directly connected). Failed
// kernel operations are logged and leave the cache entry for that prefix
// unchanged (spec.md §7 item 1, "transient I/O... logged, cycle
// continues").
func (in *Installer) Reconcile(result spf.Result, live map[netip.Addr]spf.Adjacency) {
	desired := in.desiredRoutes(result, live)

	var toDelete []netip.Prefix
	var toAdd, toReplace []Route

	for prefix := range in.cache {
		if _, ok := desired[prefix]; !ok {
			toDelete = append(toDelete, prefix)
		}
	}
	for prefix, want := range desired {
		if cur, ok := in.cache[prefix]; !ok {
			toAdd = append(toAdd, want)
		} else if cur != want {
			toReplace = append(toReplace, want)
		}
	}

	sortPrefixes(toDelete)
	sortRoutes(toAdd)
	sortRoutes(toReplace)

	for _, prefix := range toDelete {
		if err := in.kernel.Delete(prefix); err != nil {
			logger.Warnf(component, "delete %s failed: %v", prefix, err)
			continue
		}
		delete(in.cache, prefix)
	}
	for _, r := range toAdd {
		if err := in.add(r); err != nil {
			logger.Warnf(component, "add %s via %s failed: %v", r.Prefix, r.NextHop, err)
			continue
		}
		in.cache[r.Prefix] = r
	}
	for _, r := range toReplace {
		if err := in.kernel.Replace(r); err != nil {
			logger.Warnf(component, "replace %s via %s failed: %v", r.Prefix, r.NextHop, err)
			continue
		}
		in.cache[r.Prefix] = r
	}
}

// add issues a kernel add, converting an EEXIST-style refusal into a
// replace per spec.md §7 item 5 ("ip route add returns 'file exists' is
// converted to replace").
func (in *Installer) add(r Route) error {
	err := in.kernel.Add(r)
	if err == nil {
		return nil
	}
	if isExists(err) {
		return in.kernel.Replace(r)
	}
	return err
}

func (in *Installer) desiredRoutes(result spf.Result, live map[netip.Addr]spf.Adjacency) map[netip.Prefix]Route {
	out := make(map[netip.Prefix]Route, len(result.Routes))
	for dest, nextHop := range result.Routes {
		if dest == nextHop {
			// A live neighbor is its own next-hop (spf.Compute seeds it that
			// way) and is therefore a directly-connected destination: the
			// kernel already owns this prefix as a link-scope route from
			// interface-up time. spec.md §4.E: "Directly-connected routes
			// ... are never touched" — never add it to desired at all.
			continue
		}
		if _, ok := live[nextHop]; !ok {
			continue // spec.md §4.E: filter so every next_hop is a live neighbor
		}
		iface, err := in.ifaces.ResolveIface(nextHop)
		if err != nil {
			logger.Warnf(component, "no egress interface for next-hop %s, skipping %s: %v", nextHop, dest, err)
			continue
		}
		prefix := DestinationPrefix(dest, in.prefixLen)
		out[prefix] = Route{Prefix: prefix, NextHop: nextHop, Iface: iface}
	}
	return out
}

// Cache returns a snapshot of the currently installed routes, for debug
// dumps.
func (in *Installer) Cache() map[netip.Prefix]Route {
	out := make(map[netip.Prefix]Route, len(in.cache))
	for k, v := range in.cache {
		out[k] = v
	}
	return out
}

// isExists reports whether err is the kernel's "already exists" refusal
// (spec.md §7 item 5). rtnetlink surfaces this as a netlink error whose
// text mirrors the underlying EEXIST errno, not a typed sentinel, so a
// substring check is the idiomatic way to recognize it across transports.
func isExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "exists")
}

func sortPrefixes(p []netip.Prefix) {
	sort.Slice(p, func(i, j int) bool { return p[i].String() < p[j].String() })
}

func sortRoutes(r []Route) {
	sort.Slice(r, func(i, j int) bool { return r[i].Prefix.String() < r[j].Prefix.String() })
}

// netIfaceResolver resolves a next-hop to the local interface whose
// address shares its /prefixLen with the next-hop, walking net.Interfaces
// (spec.md §4.E: egress interface determined by matching the next-hop
// against the /prefixLen of each local IPv4 interface address).
type netIfaceResolver struct {
	prefixLen int
}

// NewIfaceResolver constructs the production IfaceResolver.
func NewIfaceResolver(prefixLen int) IfaceResolver {
	return &netIfaceResolver{prefixLen: prefixLen}
}

func (n *netIfaceResolver) ResolveIface(nextHop netip.Addr) (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipNet.IP.To4())
			if !ok {
				continue
			}
			prefix, err := ip.Prefix(n.prefixLen)
			if err != nil {
				continue
			}
			if prefix.Contains(nextHop) {
				return iface.Name, nil
			}
		}
	}
	return "", fmt.Errorf("no local interface shares a prefix with %s", nextHop)
}
