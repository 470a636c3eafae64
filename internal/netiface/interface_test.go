package netiface

import (
	"net"
	"testing"

	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

type recordingPort struct {
	frames []EthernetFrame
}

func (p *recordingPort) Transmit(frame EthernetFrame) error {
	p.frames = append(p.frames, frame)
	return nil
}

func mac(b byte) net.HardwareAddr { return net.HardwareAddr{0, 0, 0, 0, 0, b} }

func TestNetworkInterface_SendDatagram_UnknownMAC_QueuesAndBroadcastsARP(t *testing.T) {
	t.Parallel()
	port := &recordingPort{}
	iface := New(mac(1), net.IPv4(10, 0, 0, 1), port)

	dgram := InternetDatagram{SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2), TTL: 64, Protocol: layers.IPProtocolTCP}
	require.NoError(t, iface.SendDatagram(dgram, net.IPv4(10, 0, 0, 2)))

	require.Equal(t, 1, iface.PendingDatagramCount())
	require.Len(t, port.frames, 1)
	require.Equal(t, EthernetBroadcast, port.frames[0].Dst)
	require.Equal(t, layers.EthernetTypeARP, port.frames[0].EtherType)
}

func TestNetworkInterface_SendDatagram_DuplicatePendingARP_DoesNotResend(t *testing.T) {
	t.Parallel()
	port := &recordingPort{}
	iface := New(mac(1), net.IPv4(10, 0, 0, 1), port)

	dgram := InternetDatagram{SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2), TTL: 64}
	require.NoError(t, iface.SendDatagram(dgram, net.IPv4(10, 0, 0, 2)))
	require.NoError(t, iface.SendDatagram(dgram, net.IPv4(10, 0, 0, 2)))

	require.Equal(t, 2, iface.PendingDatagramCount())
	require.Len(t, port.frames, 1, "only one ARP request for the same unresolved IP")
}

func TestNetworkInterface_RecvFrame_ARPReply_LearnsMACAndFlushesQueue(t *testing.T) {
	t.Parallel()
	port := &recordingPort{}
	iface := New(mac(1), net.IPv4(10, 0, 0, 1), port)

	dgram := InternetDatagram{SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2), TTL: 64, Protocol: layers.IPProtocolTCP}
	require.NoError(t, iface.SendDatagram(dgram, net.IPv4(10, 0, 0, 2)))

	replyPayload, err := serializeARP(arpMessage{
		operation: arpOperationReply,
		senderHW:  mac(2),
		senderIP:  ipv4ToUint32(net.IPv4(10, 0, 0, 2)),
		targetHW:  mac(1),
		targetIP:  ipv4ToUint32(net.IPv4(10, 0, 0, 1)),
	})
	require.NoError(t, err)

	require.NoError(t, iface.RecvFrame(EthernetFrame{Dst: mac(1), Src: mac(2), EtherType: layers.EthernetTypeARP, Payload: replyPayload}))

	require.Equal(t, 0, iface.PendingDatagramCount())
	require.Len(t, port.frames, 2, "arp request then flushed ipv4 frame")
	require.Equal(t, layers.EthernetTypeIPv4, port.frames[1].EtherType)
	require.Equal(t, mac(2), port.frames[1].Dst)

	mac2, ok := iface.lookupMAC(ipv4ToUint32(net.IPv4(10, 0, 0, 2)))
	require.True(t, ok)
	require.Equal(t, mac(2), mac2)
}

func TestNetworkInterface_RecvFrame_ARPRequestForOurIP_RepliesUnicast(t *testing.T) {
	t.Parallel()
	port := &recordingPort{}
	iface := New(mac(1), net.IPv4(10, 0, 0, 1), port)

	reqPayload, err := serializeARP(arpMessage{
		operation: arpOperationRequest,
		senderHW:  mac(2),
		senderIP:  ipv4ToUint32(net.IPv4(10, 0, 0, 2)),
		targetIP:  ipv4ToUint32(net.IPv4(10, 0, 0, 1)),
	})
	require.NoError(t, err)

	require.NoError(t, iface.RecvFrame(EthernetFrame{Dst: EthernetBroadcast, Src: mac(2), EtherType: layers.EthernetTypeARP, Payload: reqPayload}))

	require.Len(t, port.frames, 1)
	require.Equal(t, layers.EthernetTypeARP, port.frames[0].EtherType)
	require.Equal(t, mac(2), port.frames[0].Dst)
}

func TestNetworkInterface_RecvFrame_IPv4NotAddressedToUs_Ignored(t *testing.T) {
	t.Parallel()
	iface := New(mac(1), net.IPv4(10, 0, 0, 1), &recordingPort{})
	dgram := InternetDatagram{SrcIP: net.IPv4(10, 0, 0, 9), DstIP: net.IPv4(10, 0, 0, 1), TTL: 64}
	payload, err := dgram.Serialize()
	require.NoError(t, err)

	require.NoError(t, iface.RecvFrame(EthernetFrame{Dst: mac(99), Src: mac(9), EtherType: layers.EthernetTypeIPv4, Payload: payload}))
	require.Empty(t, iface.DatagramsReceived())
}

func TestNetworkInterface_RecvFrame_IPv4AddressedToUs_Queued(t *testing.T) {
	t.Parallel()
	iface := New(mac(1), net.IPv4(10, 0, 0, 1), &recordingPort{})
	dgram := InternetDatagram{SrcIP: net.IPv4(10, 0, 0, 9), DstIP: net.IPv4(10, 0, 0, 1), TTL: 64}
	payload, err := dgram.Serialize()
	require.NoError(t, err)

	require.NoError(t, iface.RecvFrame(EthernetFrame{Dst: mac(1), Src: mac(9), EtherType: layers.EthernetTypeIPv4, Payload: payload}))
	got := iface.DatagramsReceived()
	require.Len(t, got, 1)
	require.True(t, got[0].SrcIP.Equal(net.IPv4(10, 0, 0, 9)))
	require.Empty(t, iface.DatagramsReceived(), "drained on first read")
}

func TestNetworkInterface_Tick_ExpiresPendingARPAndDropsQueuedDatagrams(t *testing.T) {
	t.Parallel()
	port := &recordingPort{}
	iface := New(mac(1), net.IPv4(10, 0, 0, 1), port)

	dgram := InternetDatagram{SrcIP: net.IPv4(10, 0, 0, 1), DstIP: net.IPv4(10, 0, 0, 2), TTL: 64}
	require.NoError(t, iface.SendDatagram(dgram, net.IPv4(10, 0, 0, 2)))
	require.Equal(t, 1, iface.PendingDatagramCount())

	iface.Tick(4999)
	require.Equal(t, 1, iface.PendingDatagramCount(), "not yet expired")

	iface.Tick(1)
	require.Equal(t, 0, iface.PendingDatagramCount(), "pending ARP and its queued datagram both expire")
	require.Empty(t, iface.pendingArp)
}

func TestNetworkInterface_Tick_ExpiresARPCacheEntry(t *testing.T) {
	t.Parallel()
	port := &recordingPort{}
	iface := New(mac(1), net.IPv4(10, 0, 0, 1), port)

	replyPayload, err := serializeARP(arpMessage{
		operation: arpOperationReply,
		senderHW:  mac(2),
		senderIP:  ipv4ToUint32(net.IPv4(10, 0, 0, 2)),
		targetHW:  mac(1),
		targetIP:  ipv4ToUint32(net.IPv4(10, 0, 0, 1)),
	})
	require.NoError(t, err)
	require.NoError(t, iface.RecvFrame(EthernetFrame{Dst: mac(1), Src: mac(2), EtherType: layers.EthernetTypeARP, Payload: replyPayload}))

	_, ok := iface.lookupMAC(ipv4ToUint32(net.IPv4(10, 0, 0, 2)))
	require.True(t, ok)

	iface.Tick(30000)
	_, ok = iface.lookupMAC(ipv4ToUint32(net.IPv4(10, 0, 0, 2)))
	require.False(t, ok, "arp cache entry expired")
}
