package netiface

import (
	"errors"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// arpMessage is the decoded contents of an ARP packet relevant to this
// interface: who sent it, what it's asking for, and whether it's a
// request or a reply.
type arpMessage struct {
	operation uint16
	senderHW  net.HardwareAddr
	senderIP  uint32
	targetHW  net.HardwareAddr
	targetIP  uint32
}

func serializeARP(msg arpMessage) ([]byte, error) {
	targetHW := msg.targetHW
	if targetHW == nil {
		// Unknown target (a request): an all-zero MAC keeps the body 28 bytes.
		targetHW = make(net.HardwareAddr, 6)
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         msg.operation,
		SourceHwAddress:   msg.senderHW,
		SourceProtAddress: uint32ToIPv4(msg.senderIP).To4(),
		DstHwAddress:      targetHW,
		DstProtAddress:    uint32ToIPv4(msg.targetIP).To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, arp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func parseARP(payload []byte) (arpMessage, error) {
	pkt := gopacket.NewPacket(payload, layers.LayerTypeARP, gopacket.NoCopy)
	arpLayer := pkt.Layer(layers.LayerTypeARP)
	if arpLayer == nil {
		return arpMessage{}, errors.New("netiface: not an arp message")
	}
	a := arpLayer.(*layers.ARP)
	return arpMessage{
		operation: a.Operation,
		senderHW:  net.HardwareAddr(a.SourceHwAddress),
		senderIP:  ipv4ToUint32(net.IP(a.SourceProtAddress)),
		targetHW:  net.HardwareAddr(a.DstHwAddress),
		targetIP:  ipv4ToUint32(net.IP(a.DstProtAddress)),
	}, nil
}

const (
	arpOperationRequest uint16 = 1
	arpOperationReply   uint16 = 2
)
