// Command minnowctl is a smoke-test harness for the minnow TCP/IP stack: it
// wires a TCPSender/TCPReceiver pair and a NetworkInterface over a UDP link,
// pumping stdin to the peer and the peer's reassembled stream to stdout.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/ycz0302/minnow/internal/bytestream"
	"github.com/ycz0302/minnow/internal/config"
	"github.com/ycz0302/minnow/internal/netiface"
	"github.com/ycz0302/minnow/internal/tcp"
	"github.com/ycz0302/minnow/internal/tcpreceiver"
	"github.com/ycz0302/minnow/internal/tcpsender"
	"github.com/ycz0302/minnow/internal/wrap32"
)

// receiverAckProtocol carries a marshalled tcp.ReceiverMessage; TCP segments
// (tcp.SenderMessage) travel as ordinary IPProtocolTCP payloads.
const receiverAckProtocol = layers.IPProtocol(253) // reserved for experimentation, RFC 3692

var (
	localMAC   = flag.String("local-mac", "02:00:00:00:00:01", "local interface MAC address")
	localIP    = flag.String("local-ip", "10.0.0.1", "local interface IP address")
	peerIP     = flag.String("peer-ip", "10.0.0.2", "peer IP address")
	bindAddr   = flag.String("bind", "127.0.0.1:9001", "local UDP address to bind")
	peerAddr   = flag.String("peer", "127.0.0.1:9002", "peer UDP address")
	tickEvery  = flag.Duration("tick-interval", 100*time.Millisecond, "interval between tick() calls")
	initialRTO = flag.Uint64("initial-rto", config.DefaultInitialRTOMillis, "initial retransmission timeout in milliseconds")
	verbose    = flag.Bool("v", false, "enable debug logging")

	metricsEnable = flag.Bool("metrics-enable", false, "enable a prometheus metrics server")
	metricsAddr   = flag.String("metrics-addr", "localhost:0", "address to listen on for prometheus metrics")
)

func main() {
	flag.Parse()

	opts := &slog.HandlerOptions{}
	if *verbose {
		opts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)

	if *metricsEnable {
		go func() {
			listener, err := net.Listen("tcp", *metricsAddr)
			if err != nil {
				slog.Error("failed to start prometheus metrics listener", "error", err)
				return
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			slog.Info("prometheus metrics server started", "address", listener.Addr().String())
			if err := http.Serve(listener, mux); err != nil {
				slog.Error("prometheus metrics server stopped", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("minnowctl exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	mac, err := net.ParseMAC(*localMAC)
	if err != nil {
		return fmt.Errorf("minnowctl: parse local MAC: %w", err)
	}
	lip := net.ParseIP(*localIP)
	if lip == nil {
		return fmt.Errorf("minnowctl: invalid local IP %q", *localIP)
	}
	pip := net.ParseIP(*peerIP)
	if pip == nil {
		return fmt.Errorf("minnowctl: invalid peer IP %q", *peerIP)
	}

	port, err := ListenUDPFramePort(*bindAddr, *peerAddr)
	if err != nil {
		return err
	}
	defer port.Close()

	iface := netiface.New(mac, lip, port)

	input := bytestream.New(config.DefaultStreamCapacity.Send)
	output := bytestream.New(config.DefaultStreamCapacity.Recv)
	sender := tcpsender.New(input, wrap32.New(0), *initialRTO)
	receiver := tcpreceiver.New(output)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return pumpStdin(gctx, input.Writer()) })
	group.Go(func() error { return pumpStdout(gctx, output.Reader()) })
	group.Go(func() error { return tickLoop(gctx, iface, sender, pip, *tickEvery) })
	group.Go(func() error { return recvLoop(gctx, port, iface, sender, receiver, pip) })

	return group.Wait()
}

func pumpStdin(ctx context.Context, w *bytestream.Writer) error {
	r := bufio.NewReader(os.Stdin)
	buf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		n, err := r.Read(buf)
		if n > 0 {
			w.Push(buf[:n])
		}
		if err != nil {
			w.Close()
			if err == io.EOF {
				return nil
			}
			return err
		}
	}
}

func pumpStdout(ctx context.Context, r *bytestream.Reader) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if n := r.BytesBuffered(); n > 0 {
			b := r.Peek()
			if _, err := os.Stdout.Write(b); err != nil {
				return err
			}
			r.Pop(uint64(len(b)))
		}
		if r.IsFinished() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func tickLoop(ctx context.Context, iface *netiface.NetworkInterface, sender *tcpsender.TCPSender, peerIP net.IP, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ms := uint64(interval.Milliseconds())

	transmit := func(msg tcp.SenderMessage) {
		metricSegmentsSent.Inc()
		sendSegment(iface, peerIP, msg)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			sender.Push(transmit)
			before := sender.ConsecutiveRetransmissions()
			sender.Tick(ms, transmit)
			if sender.ConsecutiveRetransmissions() > before {
				metricRetransmissions.Inc()
			}
			iface.Tick(ms)
			metricArpCacheSize.Set(float64(iface.ArpCacheSize()))
			metricPendingDatagrams.Set(float64(iface.PendingDatagramCount()))
		}
	}
}

func sendSegment(iface *netiface.NetworkInterface, peerIP net.IP, msg tcp.SenderMessage) {
	dgram := netiface.InternetDatagram{
		SrcIP:    iface.IPAddress(),
		DstIP:    peerIP,
		TTL:      64,
		Protocol: layers.IPProtocolTCP,
		Payload:  msg.Marshal(),
	}
	if err := iface.SendDatagram(dgram, peerIP); err != nil {
		slog.Error("failed to send segment", "error", err)
	}
}

func recvLoop(
	ctx context.Context,
	port *UDPFramePort,
	iface *netiface.NetworkInterface,
	sender *tcpsender.TCPSender,
	receiver *tcpreceiver.TCPReceiver,
	peerIP net.IP,
) error {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := port.raw.SetReadDeadline(time.Now().Add(200 * time.Millisecond)); err != nil {
			return fmt.Errorf("minnowctl: set read deadline: %w", err)
		}
		frame, err := port.ReadFrame(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			continue
		}
		if err := iface.RecvFrame(frame); err != nil {
			slog.Error("failed to process inbound frame", "error", err)
			continue
		}

		for _, dgram := range iface.DatagramsReceived() {
			switch dgram.Protocol {
			case layers.IPProtocolTCP:
				segMsg, err := tcp.UnmarshalSenderMessage(dgram.Payload)
				if err != nil {
					slog.Error("failed to decode segment", "error", err)
					continue
				}
				receiver.Receive(segMsg)
				ack := receiver.Send()
				sendAck(iface, peerIP, ack)
			case receiverAckProtocol:
				ackMsg, err := tcp.UnmarshalReceiverMessage(dgram.Payload)
				if err != nil {
					slog.Error("failed to decode ack", "error", err)
					continue
				}
				sender.Receive(ackMsg)
			}
		}
	}
}

func sendAck(iface *netiface.NetworkInterface, peerIP net.IP, ack tcp.ReceiverMessage) {
	dgram := netiface.InternetDatagram{
		SrcIP:    iface.IPAddress(),
		DstIP:    peerIP,
		TTL:      64,
		Protocol: receiverAckProtocol,
		Payload:  ack.Marshal(),
	}
	if err := iface.SendDatagram(dgram, peerIP); err != nil {
		slog.Error("failed to send ack", "error", err)
	}
}
