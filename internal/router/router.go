// Package router implements longest-prefix-match IPv4 forwarding across a
// set of NetworkInterfaces.
package router

import (
	"fmt"
	"net"

	"github.com/ycz0302/minnow/internal/netiface"
)

// Route is one entry in a router's forwarding table.
type Route struct {
	Prefix       uint32
	PrefixLen    uint8
	NextHop      net.IP // nil means directly attached: forward to the datagram's destination
	InterfaceIdx int
}

func (r Route) String() string {
	nh := "(attached)"
	if r.NextHop != nil {
		nh = r.NextHop.String()
	}
	return fmt.Sprintf("%s/%d via %s iface %d", uint32ToIPv4(r.Prefix), r.PrefixLen, nh, r.InterfaceIdx)
}

// Router forwards IPv4 datagrams across a set of interfaces using
// longest-prefix-match route selection.
type Router struct {
	routes     []Route
	interfaces []*netiface.NetworkInterface
}

// New constructs an empty Router.
func New() *Router {
	return &Router{}
}

// AddInterface registers an interface with the router and returns its
// index, for use as a Route's InterfaceIdx.
func (rt *Router) AddInterface(iface *netiface.NetworkInterface) int {
	rt.interfaces = append(rt.interfaces, iface)
	return len(rt.interfaces) - 1
}

// AddRoute appends a route to the (unordered) forwarding table.
func (rt *Router) AddRoute(prefix uint32, prefixLen uint8, nextHop net.IP, interfaceIdx int) {
	rt.routes = append(rt.routes, Route{Prefix: prefix, PrefixLen: prefixLen, NextHop: nextHop, InterfaceIdx: interfaceIdx})
}

// RouteCount returns the number of configured routes.
func (rt *Router) RouteCount() int { return len(rt.routes) }

func mask32(prefixLen uint8) uint32 {
	if prefixLen == 0 {
		return 0
	}
	return 0xFFFFFFFF << (32 - prefixLen)
}

// RouteOneDatagram decrements TTL, recomputes the header, and forwards dgram
// via the longest-prefix-matching route. Datagrams with TTL <= 1, or with no
// matching route, are silently dropped.
func (rt *Router) RouteOneDatagram(dgram netiface.InternetDatagram) error {
	if dgram.TTL <= 1 {
		return nil
	}
	dgram.TTL--

	dst := ipv4ToUint32(dgram.DstIP)
	var best *Route
	for i := range rt.routes {
		route := &rt.routes[i]
		m := mask32(route.PrefixLen)
		if dst&m == route.Prefix&m {
			if best == nil || route.PrefixLen > best.PrefixLen {
				best = route
			}
		}
	}
	if best == nil {
		return nil
	}

	nextHop := best.NextHop
	if nextHop == nil {
		nextHop = dgram.DstIP
	}
	return rt.interfaces[best.InterfaceIdx].SendDatagram(dgram, nextHop)
}

// Route drains every interface's inbound datagram queue, forwarding each
// via RouteOneDatagram. Per-interface order is preserved; cross-interface
// order is unspecified.
func (rt *Router) Route() error {
	for _, iface := range rt.interfaces {
		for _, dgram := range iface.DatagramsReceived() {
			if err := rt.RouteOneDatagram(dgram); err != nil {
				return err
			}
		}
	}
	return nil
}

func ipv4ToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

func uint32ToIPv4(n uint32) net.IP {
	return net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}
