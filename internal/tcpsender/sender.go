// Package tcpsender implements segmentation, windowing, and retransmission
// with exponential backoff on top of an outbound ByteStream.
//
// The retransmission timer itself is a plain counter driven by Tick, but the
// RTO-doubling sequence is generated with cenkalti/backoff's exponential
// policy so the doubling rule lives in one well-tested place rather than a
// hand-rolled "rto <<= 1".
package tcpsender

import (
	"container/list"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ycz0302/minnow/internal/bytestream"
	"github.com/ycz0302/minnow/internal/config"
	"github.com/ycz0302/minnow/internal/tcp"
	"github.com/ycz0302/minnow/internal/wrap32"
)

// TransmitFunc is called once per outbound segment.
type TransmitFunc func(tcp.SenderMessage)

// TCPSender owns an input ByteStream and turns it into a sequence of
// outstanding, acknowledged, and retransmitted TCP segments.
type TCPSender struct {
	input *bytestream.ByteStream
	isn   wrap32.Wrap32

	nextSeqnoAbs uint64
	windowSize   uint16 // last value advertised by the peer; 0 until first receive

	outstanding *list.List // of tcp.SenderMessage, FIFO in seqno order
	bytesInFlight uint64

	synSent bool
	finSent bool

	initialRTO uint64
	rto        uint64
	timerMs    uint64
	consecutiveRetransmissions uint64

	backoff *backoff.ExponentialBackOff
}

// New constructs a TCPSender over input, with the given initial sequence
// number and initial retransmission timeout in milliseconds.
func New(input *bytestream.ByteStream, isn wrap32.Wrap32, initialRTOMillis uint64) *TCPSender {
	s := &TCPSender{
		input:      input,
		isn:        isn,
		outstanding: list.New(),
		initialRTO: initialRTOMillis,
		rto:        initialRTOMillis,
	}
	s.backoff = newDoublingPolicy(initialRTOMillis)
	return s
}

// newDoublingPolicy builds an exponential backoff generator whose successive
// intervals double the RTO exactly, with no jitter and no cap — backoff
// continues forever while data remains outstanding. The first
// interval is primed away: ExponentialBackOff.NextBackOff returns the
// *current* interval before advancing it, so one throwaway call here means
// the first call a caller makes gets the already-doubled value, matching
// "double RTO on the first retransmission" instead of "double on the second".
func newDoublingPolicy(initialMillis uint64) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(initialMillis) * time.Millisecond
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = time.Duration(1) << 60
	b.MaxElapsedTime = 0
	b.Reset()
	b.NextBackOff()
	return b
}

// SequenceNumbersInFlight returns the sum of SequenceLength across all
// outstanding (sent, unacknowledged) segments.
func (s *TCPSender) SequenceNumbersInFlight() uint64 {
	return s.bytesInFlight
}

// ConsecutiveRetransmissions returns how many retransmissions have happened
// in a row without intervening progress.
func (s *TCPSender) ConsecutiveRetransmissions() uint64 {
	return s.consecutiveRetransmissions
}

// effectiveWindow treats an advertised window of 0 as 1, for segmentation
// and probing purposes only — it never inflates bytesInFlight accounting.
func (s *TCPSender) effectiveWindow() uint64 {
	if s.windowSize == 0 {
		return 1
	}
	return uint64(s.windowSize)
}

// Push fills the peer's window with segments, invoking transmit once per
// segment sent, until the window is full or there's nothing more to send.
func (s *TCPSender) Push(transmit TransmitFunc) {
	reader := s.input.Reader()
	for {
		msg := tcp.SenderMessage{
			Seqno: wrap32.Wrap(s.nextSeqnoAbs, s.isn),
			RST:   reader.HasError(),
		}
		if !s.synSent {
			msg.SYN = true
		}

		window := s.effectiveWindow()
		budget := window - s.SequenceNumbersInFlight() - msg.SequenceLength()

		avail := reader.Peek()
		n := uint64(len(avail))
		if n > config.MaxPayloadSize {
			n = config.MaxPayloadSize
		}
		if n > budget {
			n = budget
		}
		msg.Payload = append([]byte(nil), avail[:n]...)
		reader.Pop(n)

		if !s.finSent && reader.IsFinished() && msg.SequenceLength()+1+s.SequenceNumbersInFlight() <= window {
			msg.FIN = true
			s.finSent = true
		}
		s.synSent = true

		if msg.SequenceLength() == 0 {
			break
		}

		s.nextSeqnoAbs += msg.SequenceLength()
		wasEmpty := s.outstanding.Len() == 0
		s.outstanding.PushBack(msg)
		s.bytesInFlight += msg.SequenceLength()
		if wasEmpty {
			s.timerMs = 0
		}
		transmit(msg)
	}
}

// MakeEmptyMessage returns a zero-length segment carrying the current seqno
// and the stream's error flag mirrored into RST.
func (s *TCPSender) MakeEmptyMessage() tcp.SenderMessage {
	return tcp.SenderMessage{
		Seqno: wrap32.Wrap(s.nextSeqnoAbs, s.isn),
		RST:   s.input.Reader().HasError(),
	}
}

// Receive processes an incoming ReceiverMessage: updates the advertised
// window, retires fully-acknowledged outstanding segments, and whenever the
// ackno covers outstanding sequence numbers (even part of a segment) resets
// the retransmission timer and backoff state.
func (s *TCPSender) Receive(msg tcp.ReceiverMessage) {
	s.windowSize = msg.WindowSize
	if msg.RST {
		s.input.Reader().SetError()
	}
	if !msg.HasAckno {
		return
	}

	ackAbs := msg.Ackno.Unwrap(s.isn, s.nextSeqnoAbs)
	if ackAbs > s.nextSeqnoAbs {
		// Never advance past data we haven't sent yet.
		return
	}

	progressed := false
	for e := s.outstanding.Front(); e != nil; {
		next := e.Next()
		seg := e.Value.(tcp.SenderMessage)
		segAbs := seg.Seqno.Unwrap(s.isn, s.nextSeqnoAbs)
		if segAbs+seg.SequenceLength() <= ackAbs {
			s.bytesInFlight -= seg.SequenceLength()
			s.outstanding.Remove(e)
			progressed = true
			e = next
			continue
		}
		break
	}
	if !progressed && s.outstanding.Len() > 0 {
		front := s.outstanding.Front().Value.(tcp.SenderMessage)
		if ackAbs > front.Seqno.Unwrap(s.isn, s.nextSeqnoAbs) {
			// Part of the earliest outstanding segment is acknowledged.
			progressed = true
		}
	}

	if progressed {
		s.rto = s.initialRTO
		s.backoff = newDoublingPolicy(s.initialRTO)
		s.consecutiveRetransmissions = 0
		s.timerMs = 0
	}
}

// Tick advances the retransmission timer by msSinceLastTick. If it reaches
// the current RTO and a segment is outstanding, the earliest outstanding
// segment is retransmitted; RTO is doubled (and the retransmit counter
// bumped) only if the peer's last advertised window was nonzero — a
// zero-window probe never backs off.
func (s *TCPSender) Tick(msSinceLastTick uint64, transmit TransmitFunc) {
	if s.outstanding.Len() == 0 {
		s.timerMs = 0
		s.consecutiveRetransmissions = 0
		s.rto = s.initialRTO
		s.backoff = newDoublingPolicy(s.initialRTO)
		return
	}

	s.timerMs += msSinceLastTick
	if s.timerMs < s.rto {
		return
	}

	front := s.outstanding.Front().Value.(tcp.SenderMessage)
	transmit(front)

	if s.windowSize != 0 {
		s.consecutiveRetransmissions++
		s.rto = uint64(s.backoff.NextBackOff().Milliseconds())
	}
	s.timerMs = 0
}
