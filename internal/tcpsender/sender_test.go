package tcpsender

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ycz0302/minnow/internal/bytestream"
	"github.com/ycz0302/minnow/internal/tcp"
	"github.com/ycz0302/minnow/internal/wrap32"
)

func TestTCPSender_Push_SendsSynPayloadAndFin(t *testing.T) {
	t.Parallel()
	stream := bytestream.New(4000)
	stream.Writer().Push([]byte("hello"))
	stream.Writer().Close()

	s := New(stream, wrap32.New(0), 1000)
	s.Receive(tcp.ReceiverMessage{WindowSize: 1024})

	var sent []tcp.SenderMessage
	s.Push(func(m tcp.SenderMessage) { sent = append(sent, m) })

	require.Len(t, sent, 1)
	m := sent[0]
	require.True(t, m.SYN)
	require.True(t, m.FIN)
	require.Equal(t, "hello", string(m.Payload))
	require.Equal(t, uint64(7), m.SequenceLength())
	require.Equal(t, uint64(7), s.SequenceNumbersInFlight())
}

func TestTCPSender_Tick_RetransmitsAndDoublesRTOThenAckResets(t *testing.T) {
	t.Parallel()
	stream := bytestream.New(4000)
	stream.Writer().Push([]byte("hello"))
	stream.Writer().Close()

	const initialRTO = 1000
	s := New(stream, wrap32.New(0), initialRTO)
	s.Receive(tcp.ReceiverMessage{WindowSize: 1024})

	var sent []tcp.SenderMessage
	transmit := func(m tcp.SenderMessage) { sent = append(sent, m) }
	s.Push(transmit)
	require.Len(t, sent, 1)

	s.Tick(initialRTO-1, transmit)
	require.Len(t, sent, 1, "no retransmission before RTO elapses")

	s.Tick(1, transmit)
	require.Len(t, sent, 2, "retransmission at RTO")
	require.Equal(t, uint64(1), s.ConsecutiveRetransmissions())

	s.Receive(tcp.ReceiverMessage{Ackno: wrap32.Wrap(3, wrap32.New(0)), HasAckno: true, WindowSize: 1024})
	require.Equal(t, uint64(0), s.ConsecutiveRetransmissions())
}

func TestTCPSender_ZeroWindow_ProbesWithoutBackoff(t *testing.T) {
	t.Parallel()
	stream := bytestream.New(4000)
	stream.Writer().Push([]byte("x"))

	s := New(stream, wrap32.New(0), 1000)
	s.Receive(tcp.ReceiverMessage{WindowSize: 0})

	var sent []tcp.SenderMessage
	s.Push(func(m tcp.SenderMessage) { sent = append(sent, m) })
	require.Len(t, sent, 1)
	require.Equal(t, uint64(1), s.SequenceNumbersInFlight())

	s.Tick(1000, func(m tcp.SenderMessage) { sent = append(sent, m) })
	require.Len(t, sent, 2, "zero window still retransmits the probe")
	require.Equal(t, uint64(0), s.ConsecutiveRetransmissions(), "no backoff accounting during zero-window probing")
}

func TestTCPSender_Receive_IgnoresAcknoAheadOfSentData(t *testing.T) {
	t.Parallel()
	stream := bytestream.New(4000)
	stream.Writer().Push([]byte("ab"))
	s := New(stream, wrap32.New(100), 1000)
	s.Receive(tcp.ReceiverMessage{WindowSize: 1024})

	s.Push(func(tcp.SenderMessage) {})
	inFlightBefore := s.SequenceNumbersInFlight()

	// ackno far beyond anything sent
	s.Receive(tcp.ReceiverMessage{Ackno: wrap32.New(100 + 1000), HasAckno: true, WindowSize: 1024})
	require.Equal(t, inFlightBefore, s.SequenceNumbersInFlight())
}

func TestTCPSender_Push_NeverEmitsZeroLengthSegment(t *testing.T) {
	t.Parallel()
	stream := bytestream.New(4000)
	s := New(stream, wrap32.New(0), 1000)
	s.Receive(tcp.ReceiverMessage{WindowSize: 0}) // nothing to send, not closed

	var calls int
	s.Push(func(tcp.SenderMessage) { calls++ })
	require.Equal(t, 1, calls, "SYN alone still counts as non-zero sequence length")

	calls = 0
	s.Push(func(tcp.SenderMessage) { calls++ })
	require.Equal(t, 0, calls, "no further segments once SYN is the only thing to send and window is full")
}

func TestTCPSender_MakeEmptyMessage_MirrorsStreamErrorIntoRST(t *testing.T) {
	t.Parallel()
	stream := bytestream.New(10)
	s := New(stream, wrap32.New(5), 1000)
	require.False(t, s.MakeEmptyMessage().RST)

	stream.Reader().SetError()
	require.True(t, s.MakeEmptyMessage().RST)
}

func TestTCPSender_SequenceNumbersInFlight_MatchesOutstandingSum(t *testing.T) {
	t.Parallel()
	stream := bytestream.New(4000)
	stream.Writer().Push([]byte("abcdefgh"))
	stream.Writer().Close()

	s := New(stream, wrap32.New(0), 1000)
	s.Receive(tcp.ReceiverMessage{WindowSize: 3})

	var total uint64
	s.Push(func(m tcp.SenderMessage) { total += m.SequenceLength() })
	require.Equal(t, total, s.SequenceNumbersInFlight())
}
