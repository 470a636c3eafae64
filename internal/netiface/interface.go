package netiface

import (
	"net"

	"github.com/google/gopacket/layers"
	"github.com/ycz0302/minnow/internal/config"
)

type arpEntry struct {
	ip        uint32
	mac       net.HardwareAddr
	expiresIn uint64
}

type pendingArpEntry struct {
	ip        uint32
	expiresIn uint64
}

type pendingDatagram struct {
	dgram    InternetDatagram
	targetIP uint32
}

// NetworkInterface resolves next-hop MAC addresses via ARP, encapsulates
// outbound IPv4 datagrams as Ethernet frames, and decapsulates inbound
// frames addressed to it. It never schedules anything itself: all timing
// comes from externally-driven Tick calls.
type NetworkInterface struct {
	ethernetAddress net.HardwareAddr
	ipAddress       net.IP
	port            FramePort

	arpCache   []arpEntry
	pendingArp []pendingArpEntry

	pendingDatagrams  []pendingDatagram
	datagramsReceived []InternetDatagram
}

// New constructs a NetworkInterface bound to the given addresses and
// transmit sink.
func New(ethernetAddress net.HardwareAddr, ipAddress net.IP, port FramePort) *NetworkInterface {
	return &NetworkInterface{
		ethernetAddress: ethernetAddress,
		ipAddress:       ipAddress.To4(),
		port:            port,
	}
}

func (n *NetworkInterface) lookupMAC(targetIP uint32) (net.HardwareAddr, bool) {
	for _, e := range n.arpCache {
		if e.ip == targetIP {
			return e.mac, true
		}
	}
	return nil, false
}

func (n *NetworkInterface) hasPendingArp(targetIP uint32) bool {
	for _, e := range n.pendingArp {
		if e.ip == targetIP {
			return true
		}
	}
	return false
}

func (n *NetworkInterface) transmit(dst net.HardwareAddr, etherType layers.EthernetType, payload []byte) error {
	return n.port.Transmit(EthernetFrame{
		Src:       n.ethernetAddress,
		Dst:       dst,
		EtherType: etherType,
		Payload:   payload,
	})
}

// SendDatagram transmits dgram to nextHop, resolving its MAC via ARP first
// if necessary. If no MAC is known yet, the datagram is queued and an ARP
// request is broadcast (unless one is already pending for nextHop).
func (n *NetworkInterface) SendDatagram(dgram InternetDatagram, nextHop net.IP) error {
	targetIP := ipv4ToUint32(nextHop)

	if mac, ok := n.lookupMAC(targetIP); ok {
		payload, err := dgram.Serialize()
		if err != nil {
			return err
		}
		return n.transmit(mac, layers.EthernetTypeIPv4, payload)
	}

	n.pendingDatagrams = append(n.pendingDatagrams, pendingDatagram{dgram: dgram, targetIP: targetIP})

	if n.hasPendingArp(targetIP) {
		return nil
	}

	reqPayload, err := serializeARP(arpMessage{
		operation: arpOperationRequest,
		senderHW:  n.ethernetAddress,
		senderIP:  ipv4ToUint32(n.ipAddress),
		targetIP:  targetIP,
	})
	if err != nil {
		return err
	}
	if err := n.transmit(EthernetBroadcast, layers.EthernetTypeARP, reqPayload); err != nil {
		return err
	}
	n.pendingArp = append(n.pendingArp, pendingArpEntry{ip: targetIP, expiresIn: config.PendingArpTTLMillis})
	return nil
}

// RecvFrame processes one inbound Ethernet frame: decapsulating IPv4
// datagrams addressed to us, or learning ARP bindings and flushing any
// datagrams that were waiting on them.
func (n *NetworkInterface) RecvFrame(frame EthernetFrame) error {
	if frame.EtherType == layers.EthernetTypeIPv4 {
		if !macEqual(frame.Dst, n.ethernetAddress) {
			return nil
		}
		dgram, err := DecodeInternetDatagram(frame.Payload)
		if err != nil {
			return nil
		}
		n.datagramsReceived = append(n.datagramsReceived, dgram)
		return nil
	}

	if frame.EtherType != layers.EthernetTypeARP {
		return nil
	}
	if !macEqual(frame.Dst, EthernetBroadcast) && !macEqual(frame.Dst, n.ethernetAddress) {
		return nil
	}

	msg, err := parseARP(frame.Payload)
	if err != nil {
		return nil
	}

	n.arpCache = append(n.arpCache, arpEntry{ip: msg.senderIP, mac: msg.senderHW, expiresIn: config.ArpCacheTTLMillis})

	remaining := n.pendingDatagrams[:0]
	for _, pd := range n.pendingDatagrams {
		if pd.targetIP == msg.senderIP {
			payload, err := pd.dgram.Serialize()
			if err != nil {
				continue
			}
			if err := n.transmit(msg.senderHW, layers.EthernetTypeIPv4, payload); err != nil {
				return err
			}
			continue
		}
		remaining = append(remaining, pd)
	}
	n.pendingDatagrams = remaining

	if msg.operation == arpOperationRequest && msg.targetIP == ipv4ToUint32(n.ipAddress) {
		replyPayload, err := serializeARP(arpMessage{
			operation: arpOperationReply,
			senderHW:  n.ethernetAddress,
			senderIP:  ipv4ToUint32(n.ipAddress),
			targetHW:  msg.senderHW,
			targetIP:  msg.senderIP,
		})
		if err != nil {
			return err
		}
		return n.transmit(msg.senderHW, layers.EthernetTypeARP, replyPayload)
	}
	return nil
}

// Tick advances all TTLs by msSinceLastTick, expiring stale ARP cache and
// pending-ARP entries. Pending datagrams for an expired ARP request are
// dropped along with it — no route was ever learned for them.
func (n *NetworkInterface) Tick(msSinceLastTick uint64) {
	for i := range n.pendingArp {
		n.pendingArp[i].expiresIn = subSaturating(n.pendingArp[i].expiresIn, msSinceLastTick)
	}
	for i := range n.arpCache {
		n.arpCache[i].expiresIn = subSaturating(n.arpCache[i].expiresIn, msSinceLastTick)
	}

	for len(n.pendingArp) > 0 && n.pendingArp[0].expiresIn == 0 {
		expiredIP := n.pendingArp[0].ip
		remaining := n.pendingDatagrams[:0]
		for _, pd := range n.pendingDatagrams {
			if pd.targetIP != expiredIP {
				remaining = append(remaining, pd)
			}
		}
		n.pendingDatagrams = remaining
		n.pendingArp = n.pendingArp[1:]
	}

	for len(n.arpCache) > 0 && n.arpCache[0].expiresIn == 0 {
		n.arpCache = n.arpCache[1:]
	}
}

func subSaturating(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DatagramsReceived drains and returns every inbound datagram queued since
// the last call.
func (n *NetworkInterface) DatagramsReceived() []InternetDatagram {
	out := n.datagramsReceived
	n.datagramsReceived = nil
	return out
}

// EthernetAddress returns this interface's MAC address.
func (n *NetworkInterface) EthernetAddress() net.HardwareAddr { return n.ethernetAddress }

// IPAddress returns this interface's IP address.
func (n *NetworkInterface) IPAddress() net.IP { return n.ipAddress }

// PendingDatagramCount returns how many datagrams are awaiting ARP
// resolution. Unbounded by design; callers may cap it.
func (n *NetworkInterface) PendingDatagramCount() int { return len(n.pendingDatagrams) }

// ArpCacheSize returns the number of unexpired ARP cache entries.
func (n *NetworkInterface) ArpCacheSize() int { return len(n.arpCache) }
