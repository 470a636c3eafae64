package main

import (
	"fmt"
	"net"

	"golang.org/x/net/ipv4"

	"github.com/ycz0302/minnow/internal/netiface"
)

// UDPFramePort carries Ethernet frames over a UDP socket, one UDP datagram
// per frame. It exists only for cmd/minnowctl's smoke-test harness — the
// core netiface.NetworkInterface never touches a socket directly.
type UDPFramePort struct {
	raw  *net.UDPConn
	pc4  *ipv4.PacketConn
	peer *net.UDPAddr
}

// ListenUDPFramePort binds bindAddr and sends every transmitted frame to
// peerAddr.
func ListenUDPFramePort(bindAddr, peerAddr string) (*UDPFramePort, error) {
	laddr, err := net.ResolveUDPAddr("udp4", bindAddr)
	if err != nil {
		return nil, fmt.Errorf("minnowctl: resolve bind addr: %w", err)
	}
	raddr, err := net.ResolveUDPAddr("udp4", peerAddr)
	if err != nil {
		return nil, fmt.Errorf("minnowctl: resolve peer addr: %w", err)
	}
	raw, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("minnowctl: listen udp: %w", err)
	}
	return &UDPFramePort{raw: raw, pc4: ipv4.NewPacketConn(raw), peer: raddr}, nil
}

// Transmit implements netiface.FramePort by serializing frame and sending it
// as a single UDP datagram to the configured peer.
func (p *UDPFramePort) Transmit(frame netiface.EthernetFrame) error {
	b, err := frame.Serialize()
	if err != nil {
		return fmt.Errorf("minnowctl: serialize frame: %w", err)
	}
	_, err = p.pc4.WriteTo(b, nil, p.peer)
	return err
}

// ReadFrame blocks for the next inbound UDP datagram and decodes it as an
// Ethernet frame.
func (p *UDPFramePort) ReadFrame(buf []byte) (netiface.EthernetFrame, error) {
	n, _, _, err := p.pc4.ReadFrom(buf)
	if err != nil {
		return netiface.EthernetFrame{}, err
	}
	return netiface.DecodeEthernetFrame(buf[:n])
}

// Close closes the underlying socket.
func (p *UDPFramePort) Close() error { return p.raw.Close() }

// LocalAddr returns the bound local address.
func (p *UDPFramePort) LocalAddr() net.Addr { return p.raw.LocalAddr() }
