// Package tcpreceiver ingests inbound TCP segments and turns them into
// ackno/window/RST feedback for the peer's sender, feeding payload bytes
// through a Reassembler into an application-facing ByteStream.
package tcpreceiver

import (
	"github.com/ycz0302/minnow/internal/bytestream"
	"github.com/ycz0302/minnow/internal/reassembler"
	"github.com/ycz0302/minnow/internal/tcp"
	"github.com/ycz0302/minnow/internal/wrap32"
)

// TCPReceiver reconstructs an inbound byte stream from a sequence of
// TCPSenderMessages and reports back ackno/window/RST state.
type TCPReceiver struct {
	reassembler *reassembler.Reassembler

	zeroPoint    wrap32.Wrap32
	haveZeroPoint bool
}

// New constructs a TCPReceiver that writes reassembled bytes into output.
func New(output *bytestream.ByteStream) *TCPReceiver {
	return &TCPReceiver{reassembler: reassembler.New(output)}
}

// Output returns the ByteStream this receiver feeds.
func (r *TCPReceiver) Output() *bytestream.ByteStream {
	return r.reassembler.Output()
}

// Receive processes one inbound segment, setting the zero point from the
// first SYN seen and inserting any payload into the reassembler.
func (r *TCPReceiver) Receive(msg tcp.SenderMessage) {
	if msg.RST {
		r.reassembler.Output().Reader().SetError()
		return
	}
	if msg.SYN && !r.haveZeroPoint {
		r.zeroPoint = msg.Seqno
		r.haveZeroPoint = true
	}
	if !r.haveZeroPoint {
		return
	}

	firstIndex := msg.Seqno.Unwrap(r.zeroPoint, r.reassembler.Output().Writer().BytesPushed())
	if !msg.SYN {
		firstIndex--
	}
	r.reassembler.Insert(firstIndex, msg.Payload, msg.FIN)
}

// Send builds the ReceiverMessage to report back to the peer's sender.
func (r *TCPReceiver) Send() tcp.ReceiverMessage {
	reader := r.reassembler.Output().Reader()
	writer := r.reassembler.Output().Writer()

	res := tcp.ReceiverMessage{RST: reader.HasError()}
	if !r.haveZeroPoint {
		return res
	}

	ackno := writer.BytesPushed() + 1 // SYN occupies index 0
	if writer.IsClosed() {
		ackno++ // FIN reached: every byte before it has been pushed
	}
	res.Ackno = wrap32.Wrap(ackno, r.zeroPoint)
	res.HasAckno = true

	cap := writer.AvailableCapacity()
	if cap > 65535 {
		cap = 65535
	}
	res.WindowSize = uint16(cap)
	return res
}
