// Package tcp defines the segment-level message types exchanged between a
// TCPSender and a TCPReceiver, and their fixed-layout wire encoding.
package tcp

import (
	"encoding/binary"
	"fmt"

	"github.com/ycz0302/minnow/internal/wrap32"
)

// SenderMessage is a single outbound TCP segment.
type SenderMessage struct {
	Seqno   wrap32.Wrap32
	SYN     bool
	Payload []byte
	FIN     bool
	RST     bool
}

// SequenceLength returns the number of sequence numbers this segment
// consumes: one for SYN, one per payload byte, one for FIN.
func (m SenderMessage) SequenceLength() uint64 {
	n := uint64(len(m.Payload))
	if m.SYN {
		n++
	}
	if m.FIN {
		n++
	}
	return n
}

// ReceiverMessage is a single acknowledgment from a TCPReceiver back to the
// sender it is receiving from.
type ReceiverMessage struct {
	Ackno      wrap32.Wrap32
	HasAckno   bool
	WindowSize uint16
	RST        bool
}

// SenderMessage layout (big endian), 5 bytes plus payload:
//
//	0-3:  Seqno
//	4:    flags (bit0 SYN, bit1 FIN, bit2 RST)
//	5-:   payload
//
// ReceiverMessage layout (big endian), 7 bytes:
//
//	0-3:  Ackno
//	4-5:  WindowSize
//	6:    flags (bit0 HasAckno, bit1 RST)
const (
	flagSYN byte = 1 << 0
	flagFIN byte = 1 << 1
	flagRST byte = 1 << 2
)

// Marshal encodes a SenderMessage as a fixed 5-byte header followed by the
// payload bytes.
func (m SenderMessage) Marshal() []byte {
	b := make([]byte, 5+len(m.Payload))
	binary.BigEndian.PutUint32(b[0:4], m.Seqno.Raw())
	var flags byte
	if m.SYN {
		flags |= flagSYN
	}
	if m.FIN {
		flags |= flagFIN
	}
	if m.RST {
		flags |= flagRST
	}
	b[4] = flags
	copy(b[5:], m.Payload)
	return b
}

// UnmarshalSenderMessage decodes the wire format produced by Marshal.
func UnmarshalSenderMessage(b []byte) (SenderMessage, error) {
	if len(b) < 5 {
		return SenderMessage{}, fmt.Errorf("tcp: short sender message: %d bytes", len(b))
	}
	flags := b[4]
	payload := make([]byte, len(b)-5)
	copy(payload, b[5:])
	return SenderMessage{
		Seqno:   wrap32.New(binary.BigEndian.Uint32(b[0:4])),
		SYN:     flags&flagSYN != 0,
		FIN:     flags&flagFIN != 0,
		RST:     flags&flagRST != 0,
		Payload: payload,
	}, nil
}

const (
	ackFlagHasAckno byte = 1 << 0
	ackFlagRST      byte = 1 << 1
)

// Marshal encodes a ReceiverMessage as a fixed 7-byte header.
func (m ReceiverMessage) Marshal() []byte {
	b := make([]byte, 7)
	binary.BigEndian.PutUint32(b[0:4], m.Ackno.Raw())
	binary.BigEndian.PutUint16(b[4:6], m.WindowSize)
	var flags byte
	if m.HasAckno {
		flags |= ackFlagHasAckno
	}
	if m.RST {
		flags |= ackFlagRST
	}
	b[6] = flags
	return b
}

// UnmarshalReceiverMessage decodes the wire format produced by Marshal.
func UnmarshalReceiverMessage(b []byte) (ReceiverMessage, error) {
	if len(b) != 7 {
		return ReceiverMessage{}, fmt.Errorf("tcp: malformed receiver message: %d bytes", len(b))
	}
	flags := b[6]
	return ReceiverMessage{
		Ackno:      wrap32.New(binary.BigEndian.Uint32(b[0:4])),
		WindowSize: binary.BigEndian.Uint16(b[4:6]),
		HasAckno:   flags&ackFlagHasAckno != 0,
		RST:        flags&ackFlagRST != 0,
	}, nil
}
