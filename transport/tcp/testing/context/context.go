// Package context wires up a stack, a channel link endpoint, and a TCP
// protocol instance for use by transport/tcp's tests: it lets a test act as
// the remote peer, injecting raw segments and inspecting whatever the stack
// writes back.
package context

import (
	"testing"
	"time"

	"github.com/nullsock/tcpcore/arp"
	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/link/channel"
	"github.com/nullsock/tcpcore/network/ipv4"
	"github.com/nullsock/tcpcore/seqnum"
	"github.com/nullsock/tcpcore/stack"
	"github.com/nullsock/tcpcore/transport/tcp"
	"github.com/nullsock/tcpcore/types"
)

const (
	// StackAddr is the IPv4 address assigned to the stack under test.
	StackAddr = types.Address("\x0a\x00\x00\x01")

	// StackPort is used as the listening port for passive-open tests.
	StackPort = 1234

	// TestAddr is the address the test uses to stand in for the remote peer.
	TestAddr = types.Address("\x0a\x00\x00\x02")

	// TestPort is the port the test uses to stand in for the remote peer.
	TestPort = 4096

	// DefaultMTU matches loopback MTUs on Linux, giving plenty of room for
	// a full-size segment without fragmentation concerns.
	DefaultMTU = 65535

	stackLinkAddr = types.LinkAddress("\x00\x00\x00\x00\x00\x01")
	testLinkAddr  = types.LinkAddress("\x00\x00\x00\x00\x00\x02")
)

// Headers describes the fields of a single segment the test sends as the
// remote peer.
type Headers struct {
	SrcPort uint16
	DstPort uint16
	Flags   uint8
	SeqNum  uint32
	AckNum  uint32
	RcvWnd  uint16
}

// Context owns a stack configured with a single NIC reachable over an
// in-memory channel endpoint.
type Context struct {
	t      *testing.T
	s      *stack.Stack
	linkEP *channel.Endpoint
	proto  *tcp.Protocol
	stop   func()

	// ID is the connection handle returned by the Open call that
	// CreateConnected makes.
	ID ID

	// IRS is the initial receive sequence number learned from the stack's
	// SYN or SYN-ACK, set by CreateConnected.
	IRS seqnum.Value
}

// ID is a type alias so tests can refer to context.ID without importing
// transport/tcp directly for the type name.
type ID = tcp.ID

// New creates a Context with a running protocol instance and started
// timers.
func New(t *testing.T) *Context {
	t.Helper()

	resolver := arp.NewCache()
	resolver.Add(TestAddr, testLinkAddr)

	s := stack.New(resolver)
	ep := channel.New(256, DefaultMTU, stackLinkAddr)
	if err := s.CreateNIC(1, ep); err != nil {
		t.Fatalf("CreateNIC failed: %v", err)
	}
	if err := s.AddAddress(1, StackAddr); err != nil {
		t.Fatalf("AddAddress failed: %v", err)
	}
	s.SetRouteTable([]types.Route{
		{Destination: types.Address("\x00\x00\x00\x00"), Mask: types.Address("\x00\x00\x00\x00"), Nic: 1},
	})

	proto := tcp.NewProtocol(s)
	s.RegisterTransportProtocol(header.TCPProtocolNumber, proto)

	return &Context{
		t:      t,
		s:      s,
		linkEP: ep,
		proto:  proto,
		stop:   proto.StartTimers(),
	}
}

// Proto returns the protocol instance under test.
func (c *Context) Proto() *tcp.Protocol {
	return c.proto
}

// Cleanup stops the protocol's timers and closes the link endpoint.
func (c *Context) Cleanup() {
	c.stop()
	close(c.linkEP.C)
}

// SendPacket builds data into a TCP segment described by h, wraps it in an
// IPv4 datagram from TestAddr to StackAddr, and injects it as though it had
// arrived over the wire.
func (c *Context) SendPacket(data []byte, h *Headers) {
	c.t.Helper()

	total := header.TCPMinimumSize + len(data)
	buf := make([]byte, total)
	tcpHdr := header.TCP(buf)
	tcpHdr.Encode(&header.TCPFields{
		SrcPort:    h.SrcPort,
		DstPort:    h.DstPort,
		SeqNum:     h.SeqNum,
		AckNum:     h.AckNum,
		Flags:      h.Flags,
		WindowSize: h.RcvWnd,
	})
	copy(buf[header.TCPMinimumSize:], data)

	xsum := header.PseudoHeaderChecksum(TestAddr, StackAddr, uint16(total))
	xsum = tcpHdr.CalculateChecksum(xsum)
	tcpHdr.SetChecksum(^xsum)

	datagram := ipv4.Encode(header.TCPProtocolNumber, 1, TestAddr, StackAddr, buf)
	c.linkEP.Inject(testLinkAddr, datagram)
}

// GetPacket returns the next IPv4 datagram the stack wrote, failing the test
// if none arrives within a couple of seconds.
func (c *Context) GetPacket() []byte {
	c.t.Helper()
	select {
	case p := <-c.linkEP.C:
		return p.Payload
	case <-time.After(2 * time.Second):
		c.t.Fatalf("timed out waiting for an outbound packet")
		return nil
	}
}

// CreateConnected drives a passive-open three-way handshake to completion:
// it opens a listener on StackPort, plays the remote peer's SYN and final
// ACK, and records the resulting connection id and IRS. Open blocks until
// the connection is ESTABLISHED, so it runs on its own goroutine alongside
// the packets that carry it there.
func (c *Context) CreateConnected(iss seqnum.Value, rcvWnd uint16) {
	c.t.Helper()

	result := make(chan error, 1)
	go func() {
		id, err := c.proto.Open(types.FullAddress{Port: StackPort}, types.FullAddress{}, false)
		c.ID = id
		result <- err
	}()

	// The listener only exists once the Open goroutine has run; a SYN that
	// arrives earlier is answered with RST, so resend it until it isn't.
	var b []byte
	for attempt := 0; attempt < 100; attempt++ {
		c.SendPacket(nil, &Headers{
			SrcPort: TestPort,
			DstPort: StackPort,
			Flags:   header.TCPFlagSyn,
			SeqNum:  uint32(iss),
			RcvWnd:  rcvWnd,
		})
		b = c.GetPacket()
		if header.TCP(header.IPv4(b).Payload()).Flags()&header.TCPFlagRst == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	tcpHdr := header.TCP(header.IPv4(b).Payload())
	if tcpHdr.Flags() != header.TCPFlagSyn|header.TCPFlagAck {
		c.t.Fatalf("got flags 0x%x, want SYN|ACK", tcpHdr.Flags())
	}
	c.IRS = seqnum.Value(tcpHdr.SequenceNumber())

	c.SendPacket(nil, &Headers{
		SrcPort: TestPort,
		DstPort: StackPort,
		Flags:   header.TCPFlagAck,
		SeqNum:  uint32(iss) + 1,
		AckNum:  uint32(c.IRS) + 1,
		RcvWnd:  rcvWnd,
	})

	select {
	case err := <-result:
		if err != nil {
			c.t.Fatalf("Open failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		c.t.Fatalf("Open never returned after the final ACK of the handshake")
	}
}
