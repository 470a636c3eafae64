// Package netiface implements ARP resolution, frame encapsulation, and a
// pending-datagram queue on top of an injected transmit sink.
package netiface

import (
	"errors"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// EthernetBroadcast is the all-ones Ethernet broadcast address.
var EthernetBroadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// FramePort is the injected transmit sink a NetworkInterface encapsulates
// frames onto. The interface never touches a socket itself.
type FramePort interface {
	Transmit(frame EthernetFrame) error
}

// EthernetFrame is a decoded or to-be-encoded Ethernet II frame.
type EthernetFrame struct {
	Dst, Src  net.HardwareAddr
	EtherType layers.EthernetType
	Payload   []byte
}

// Serialize encodes the frame to wire bytes.
func (f EthernetFrame) Serialize() ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       f.Src,
		DstMAC:       f.Dst,
		EthernetType: f.EtherType,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, gopacket.Payload(f.Payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeEthernetFrame parses wire bytes into an EthernetFrame.
func DecodeEthernetFrame(data []byte) (EthernetFrame, error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.NoCopy)
	ethLayer := pkt.Layer(layers.LayerTypeEthernet)
	if ethLayer == nil {
		return EthernetFrame{}, errors.New("netiface: not an ethernet frame")
	}
	eth := ethLayer.(*layers.Ethernet)
	return EthernetFrame{
		Dst:       eth.DstMAC,
		Src:       eth.SrcMAC,
		EtherType: eth.EthernetType,
		Payload:   eth.Payload,
	}, nil
}

// InternetDatagram is a decoded or to-be-encoded IPv4 datagram.
type InternetDatagram struct {
	SrcIP, DstIP net.IP
	TTL          uint8
	Protocol     layers.IPProtocol
	Payload      []byte
}

// Serialize encodes the datagram to wire bytes, recomputing the header
// checksum.
func (d InternetDatagram) Serialize() ([]byte, error) {
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      d.TTL,
		Protocol: d.Protocol,
		SrcIP:    d.SrcIP,
		DstIP:    d.DstIP,
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ip, gopacket.Payload(d.Payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeInternetDatagram parses wire bytes into an InternetDatagram.
func DecodeInternetDatagram(data []byte) (InternetDatagram, error) {
	pkt := gopacket.NewPacket(data, layers.LayerTypeIPv4, gopacket.NoCopy)
	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		return InternetDatagram{}, errors.New("netiface: not an ipv4 datagram")
	}
	ip := ipLayer.(*layers.IPv4)
	return InternetDatagram{
		SrcIP:    ip.SrcIP,
		DstIP:    ip.DstIP,
		TTL:      ip.TTL,
		Protocol: ip.Protocol,
		Payload:  ip.Payload,
	}, nil
}

func ipv4ToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	return uint32(ip4[0])<<24 | uint32(ip4[1])<<16 | uint32(ip4[2])<<8 | uint32(ip4[3])
}

func uint32ToIPv4(n uint32) net.IP {
	return net.IPv4(byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
}
