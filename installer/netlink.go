package installer

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/jsimonetti/rtnetlink"
	"golang.org/x/sys/unix"
)

// mainTable is the routing table lsrouted installs into. A dedicated table
// (rather than the main table) would need a companion `ip rule`; spec.md
// is silent on this, so the production installer targets the main table,
// matching what a plain `ip route add` does.
const mainTable = unix.RT_TABLE_MAIN

// netlinkKernel is the production Kernel, talking to the host's routing
// table over rtnetlink. Routes it manages are tagged with RTPROT_STATIC so
// list filtering can tell them apart from routes the kernel installed
// itself at interface-up time (the directly-connected routes spec.md
// §4.E says must never be touched).
type netlinkKernel struct {
	conn *rtnetlink.Conn
}

// NewNetlinkKernel dials the kernel's rtnetlink socket.
func NewNetlinkKernel() (Kernel, error) {
	conn, err := rtnetlink.Dial(nil)
	if err != nil {
		return nil, fmt.Errorf("dial rtnetlink: %w", err)
	}
	return &netlinkKernel{conn: conn}, nil
}

func (k *netlinkKernel) ListManagedRoutes() ([]Route, error) {
	msgs, err := k.conn.Route.List()
	if err != nil {
		return nil, err
	}

	var out []Route
	for _, m := range msgs {
		if m.Family != unix.AF_INET || m.Protocol != unix.RTPROT_STATIC {
			continue
		}
		dst, ok := netip.AddrFromSlice(m.Attributes.Dst.To4())
		if !ok {
			continue
		}
		gw, ok := netip.AddrFromSlice(m.Attributes.Gateway.To4())
		if !ok {
			continue
		}
		iface, err := net.InterfaceByIndex(int(m.Attributes.OutIface))
		if err != nil {
			continue
		}
		out = append(out, Route{
			Prefix:  netip.PrefixFrom(dst, int(m.DstLength)),
			NextHop: gw,
			Iface:   iface.Name,
		})
	}
	return out, nil
}

func (k *netlinkKernel) Add(r Route) error {
	msg, err := routeMessage(r)
	if err != nil {
		return err
	}
	return k.conn.Route.Add(msg)
}

func (k *netlinkKernel) Replace(r Route) error {
	msg, err := routeMessage(r)
	if err != nil {
		return err
	}
	return k.conn.Route.Replace(msg)
}

func (k *netlinkKernel) Delete(prefix netip.Prefix) error {
	msg := &rtnetlink.RouteMessage{
		Family:    unix.AF_INET,
		DstLength: uint8(prefix.Bits()),
		Protocol:  unix.RTPROT_STATIC,
		Scope:     unix.RT_SCOPE_UNIVERSE,
		Type:      unix.RTN_UNICAST,
		Table:     mainTable,
		Attributes: rtnetlink.RouteAttributes{
			Dst: net.IP(prefix.Addr().AsSlice()),
		},
	}
	return k.conn.Route.Delete(msg)
}

func routeMessage(r Route) (*rtnetlink.RouteMessage, error) {
	iface, err := net.InterfaceByName(r.Iface)
	if err != nil {
		return nil, fmt.Errorf("resolve iface %s: %w", r.Iface, err)
	}

	return &rtnetlink.RouteMessage{
		Family:    unix.AF_INET,
		DstLength: uint8(r.Prefix.Bits()),
		Protocol:  unix.RTPROT_STATIC,
		Scope:     unix.RT_SCOPE_UNIVERSE,
		Type:      unix.RTN_UNICAST,
		Table:     mainTable,
		Attributes: rtnetlink.RouteAttributes{
			Dst:      net.IP(r.Prefix.Addr().AsSlice()),
			Gateway:  net.IP(r.NextHop.AsSlice()),
			OutIface: uint32(iface.Index),
		},
	}, nil
}
