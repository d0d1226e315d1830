package tcp_test

import (
	"testing"
	"time"

	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/transport/tcp/testing/context"
	"github.com/nullsock/tcpcore/types"
)

func TestReceiveBlocksUntilDataArrives(t *testing.T) {
	c := context.New(t)
	defer c.Cleanup()

	c.CreateConnected(testISS, 30000)

	result := make(chan int, 1)
	go func() {
		out := make([]byte, 4)
		n, err := c.Proto().Receive(c.ID, out)
		if err != nil {
			t.Errorf("Receive failed: %v", err)
		}
		result <- n
	}()

	select {
	case <-result:
		t.Fatal("Receive returned before any data arrived")
	case <-time.After(100 * time.Millisecond):
	}

	c.SendPacket([]byte{9, 9}, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: context.StackPort,
		Flags:   header.TCPFlagAck | header.TCPFlagPsh,
		SeqNum:  uint32(testISS) + 1,
		AckNum:  uint32(c.IRS) + 1,
		RcvWnd:  30000,
	})
	c.GetPacket() // the ACK tcp_output sends for the inbound data

	select {
	case n := <-result:
		if n != 2 {
			t.Errorf("Receive returned %d bytes, want 2", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Receive never woke up once data arrived")
	}
}

func TestSendBlocksOnZeroWindow(t *testing.T) {
	c := context.New(t)
	defer c.Cleanup()

	c.CreateConnected(testISS, 0) // peer advertises a zero window

	result := make(chan error, 1)
	go func() {
		_, err := c.Proto().Send(c.ID, []byte("x"))
		result <- err
	}()

	select {
	case <-result:
		t.Fatal("Send returned despite a zero-size peer window")
	case <-time.After(100 * time.Millisecond):
	}

	// A pure ACK opening the window should wake Send up.
	c.SendPacket(nil, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: context.StackPort,
		Flags:   header.TCPFlagAck,
		SeqNum:  uint32(testISS) + 1,
		AckNum:  uint32(c.IRS) + 1,
		RcvWnd:  30000,
	})

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send never woke up once the window opened")
	}
}

func TestOperationsRejectedOnUnknownID(t *testing.T) {
	c := context.New(t)
	defer c.Cleanup()

	const bogus = context.ID(99) // never allocated, out of TableSize range

	if _, err := c.Proto().Send(bogus, []byte("x")); err != types.ErrNoPCB {
		t.Errorf("Send on an unknown id = %v, want ErrNoPCB", err)
	}
	if _, err := c.Proto().Receive(bogus, make([]byte, 4)); err != types.ErrNoPCB {
		t.Errorf("Receive on an unknown id = %v, want ErrNoPCB", err)
	}
	if err := c.Proto().Close(bogus); err != types.ErrNoPCB {
		t.Errorf("Close on an unknown id = %v, want ErrNoPCB", err)
	}
}

func TestActiveOpenRefusedByRSTInSynReceived(t *testing.T) {
	c := context.New(t)
	defer c.Cleanup()

	// Drive an active Open into the simultaneous-open branch of SYN-SENT
	// processing (peer SYN with no ACK), then hand it a RST instead of
	// the final ACK: an actively-opened PCB abandons the connection and
	// reports refusal rather than looping back to LISTEN the way a
	// passive one would.
	result := make(chan error, 1)
	go func() {
		_, err := c.Proto().Open(
			types.FullAddress{Port: 5000},
			types.FullAddress{Addr: context.TestAddr, Port: context.TestPort},
			true,
		)
		result <- err
	}()

	c.GetPacket() // our SYN

	c.SendPacket(nil, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: 5000,
		Flags:   header.TCPFlagSyn,
		SeqNum:  uint32(testISS),
		RcvWnd:  30000,
	})
	c.GetPacket() // our SYN|ACK, entering SYN-RECEIVED

	c.SendPacket(nil, &context.Headers{
		SrcPort: context.TestPort,
		DstPort: 5000,
		Flags:   header.TCPFlagRst,
		SeqNum:  uint32(testISS) + 1,
		RcvWnd:  30000,
	})

	select {
	case err := <-result:
		if err != types.ErrConnectionRefused {
			t.Fatalf("Open after a RST in SYN-RECEIVED = %v, want ErrConnectionRefused", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Open never returned after the RST")
	}
}
