package tcp_test

import (
	"testing"
	"time"

	"github.com/nullsock/tcpcore/checker"
	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/seqnum"
	"github.com/nullsock/tcpcore/transport/tcp/testing/context"
	"github.com/nullsock/tcpcore/types"
)

const testISS = seqnum.Value(789)

func TestPassiveHandshakeReachesEstablished(t *testing.T) {
	c := context.New(t)
	defer c.Cleanup()

	// A passive Open blocks until the handshake either lands in
	// ESTABLISHED or fails, so it has to run alongside the packets that
	// drive it through SYN-RECEIVED.
	result := make(chan error, 1)
	var id context.ID
	go func() {
		var err error
		id, err = c.Proto().Open(types.FullAddress{Port: context.StackPort}, types.FullAddress{}, false)
		result <- err
	}()

	// Until the Open goroutine has put the listener in place, the SYN is
	// answered with RST; resend it until the listener answers.
	var synAck []byte
	for attempt := 0; attempt < 100; attempt++ {
		c.SendPacket(nil, &context.Headers{
			SrcPort: context.TestPort,
			DstPort: context.StackPort,
			Flags:   header.TCPFlagSyn,
			SeqNum:  uint32(testISS),
			RcvWnd:  30000,
		})
		synAck = c.GetPacket()
		if header.TCP(header.IPv4(synAck).Payload()).Flags()&header.TCPFlagRst == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	checker.IPv4(t, synAck,
		checker.SrcAddr(context.StackAddr),
		checker.DstAddr(context.TestAddr),
		checker.TCP(
			checker.SrcPort(context.StackPort),
			checker.DstPort(context.TestPort),
			checker.AckNum(uint32(testISS)+1),
			checker.TCPFlags(header.TCPFlagSyn|header.TCPFlagAck),
		),
	)
	irs := seqnum.Value(header.TCP(header.IPv4(synAck).Payload()).SequenceNumber())

	c.SendPacket(nil, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: context.StackPort,
		Flags:   header.TCPFlagAck,
		SeqNum:  uint32(testISS) + 1,
		AckNum:  uint32(irs) + 1,
		RcvWnd:  30000,
	})

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Open never returned after the final ACK of the handshake")
	}

	if _, err := c.Proto().Send(id, nil); err != nil {
		t.Fatalf("connection did not reach ESTABLISHED: %v", err)
	}
}

func TestActiveHandshake(t *testing.T) {
	c := context.New(t)
	defer c.Cleanup()

	result := make(chan error, 1)
	go func() {
		_, err := c.Proto().Open(
			types.FullAddress{Port: 5000},
			types.FullAddress{Addr: context.TestAddr, Port: context.TestPort},
			true,
		)
		result <- err
	}()

	b := c.GetPacket()
	checker.IPv4(t, b,
		checker.TCP(
			checker.DstPort(context.TestPort),
			checker.TCPFlags(header.TCPFlagSyn),
		),
	)
	synHdr := header.TCP(header.IPv4(b).Payload())
	iss := seqnum.Value(synHdr.SequenceNumber())

	c.SendPacket(nil, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: 5000,
		Flags:   header.TCPFlagSyn | header.TCPFlagAck,
		SeqNum:  uint32(testISS),
		AckNum:  uint32(iss) + 1,
		RcvWnd:  30000,
	})

	if err := <-result; err != nil {
		t.Fatalf("Open failed: %v", err)
	}
}

func TestUnsolicitedSegmentGetsRST(t *testing.T) {
	c := context.New(t)
	defer c.Cleanup()

	c.SendPacket(nil, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: 9999,
		Flags:   header.TCPFlagAck,
		SeqNum:  100,
		AckNum:  200,
		RcvWnd:  30000,
	})

	b := c.GetPacket()
	checker.IPv4(t, b,
		checker.TCP(
			checker.DstPort(context.TestPort),
			checker.SeqNum(200),
			checker.TCPFlags(header.TCPFlagRst),
		),
	)
}

func TestDataEchoFromPeer(t *testing.T) {
	c := context.New(t)
	defer c.Cleanup()

	c.CreateConnected(testISS, 30000)

	payload := []byte{1, 2, 3, 4}
	c.SendPacket(payload, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: context.StackPort,
		Flags:   header.TCPFlagAck | header.TCPFlagPsh,
		SeqNum:  uint32(testISS) + 1,
		AckNum:  uint32(c.IRS) + 1,
		RcvWnd:  30000,
	})

	b := c.GetPacket()
	checker.IPv4(t, b,
		checker.TCP(
			checker.AckNum(uint32(testISS) + 1 + uint32(len(payload))),
			checker.TCPFlags(header.TCPFlagAck),
		),
	)

	out := make([]byte, len(payload))
	n, err := c.Proto().Receive(c.ID, out)
	if err != nil {
		t.Fatalf("Receive failed: %v", err)
	}
	if n != len(payload) {
		t.Fatalf("Receive returned %d bytes, want %d", n, len(payload))
	}
	for i := range payload {
		if out[i] != payload[i] {
			t.Errorf("byte %d = %d, want %d", i, out[i], payload[i])
		}
	}
}

func TestRetransmissionResendsUnackedSegment(t *testing.T) {
	c := context.New(t)
	defer c.Cleanup()

	c.CreateConnected(testISS, 30000)

	done := make(chan struct{})
	go func() {
		c.Proto().Send(c.ID, []byte("hi"))
		close(done)
	}()

	first := c.GetPacket()
	checker.IPv4(t, first, checker.TCP(checker.TCPFlags(header.TCPFlagAck|header.TCPFlagPsh)))

	// No ACK is sent back, so the retransmit timer should resend the same
	// segment once DefaultRTO elapses.
	retransmit := c.GetPacket()
	checker.IPv4(t, retransmit,
		checker.TCP(
			checker.SeqNum(header.TCP(header.IPv4(first).Payload()).SequenceNumber()),
			checker.TCPFlags(header.TCPFlagAck|header.TCPFlagPsh),
		),
	)

	// Acknowledge it so the entry leaves the retransmit queue and the
	// connection doesn't keep retransmitting into later tests.
	c.SendPacket(nil, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: context.StackPort,
		Flags:   header.TCPFlagAck,
		SeqNum:  uint32(testISS) + 1,
		AckNum:  header.TCP(header.IPv4(first).Payload()).SequenceNumber() + 2,
		RcvWnd:  30000,
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send never returned")
	}
}

func TestPassiveClose(t *testing.T) {
	c := context.New(t)
	defer c.Cleanup()

	c.CreateConnected(testISS, 30000)

	c.SendPacket(nil, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: context.StackPort,
		Flags:   header.TCPFlagAck | header.TCPFlagFin,
		SeqNum:  uint32(testISS) + 1,
		AckNum:  uint32(c.IRS) + 1,
		RcvWnd:  30000,
	})

	ackOfFin := c.GetPacket()
	checker.IPv4(t, ackOfFin,
		checker.TCP(
			checker.AckNum(uint32(testISS)+2),
			checker.TCPFlags(header.TCPFlagAck),
		),
	)

	// The receive buffer is empty and the peer is done, so Receive reports
	// EOF instead of blocking.
	n, err := c.Proto().Receive(c.ID, make([]byte, 4))
	if err != types.ErrPeerClosed || n != 0 {
		t.Fatalf("Receive = (%d, %v), want (0, ErrPeerClosed)", n, err)
	}

	if err := c.Proto().Close(c.ID); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	fin := c.GetPacket()
	checker.IPv4(t, fin, checker.TCP(checker.TCPFlags(header.TCPFlagAck|header.TCPFlagFin)))

	finHdr := header.TCP(header.IPv4(fin).Payload())
	c.SendPacket(nil, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: context.StackPort,
		Flags:   header.TCPFlagAck,
		SeqNum:  uint32(testISS) + 2,
		AckNum:  finHdr.SequenceNumber() + 1,
		RcvWnd:  30000,
	})
}

func TestSimultaneousOpen(t *testing.T) {
	c := context.New(t)
	defer c.Cleanup()

	result := make(chan error, 1)
	go func() {
		_, err := c.Proto().Open(
			types.FullAddress{Port: 5000},
			types.FullAddress{Addr: context.TestAddr, Port: context.TestPort},
			true,
		)
		result <- err
	}()

	b := c.GetPacket()
	synHdr := header.TCP(header.IPv4(b).Payload())
	iss := seqnum.Value(synHdr.SequenceNumber())

	// The peer sends its own SYN back with no ACK, mirroring our SYN --
	// spec's simultaneous-open branch of SYN-SENT processing.
	c.SendPacket(nil, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: 5000,
		Flags:   header.TCPFlagSyn,
		SeqNum:  uint32(testISS),
		RcvWnd:  30000,
	})

	synAck := c.GetPacket()
	checker.IPv4(t, synAck,
		checker.TCP(
			checker.DstPort(context.TestPort),
			checker.TCPFlags(header.TCPFlagSyn|header.TCPFlagAck),
		),
	)

	c.SendPacket(nil, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: 5000,
		Flags:   header.TCPFlagAck,
		SeqNum:  uint32(testISS) + 1,
		AckNum:  uint32(iss) + 1,
		RcvWnd:  30000,
	})

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Open failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Open never completed after the simultaneous handshake finished")
	}
}
