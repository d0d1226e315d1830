// Package sniffer wraps a link endpoint and logs every frame that passes
// through it, in either direction.
package sniffer

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/types"
)

// LogPackets controls whether sniffer endpoints log traffic. It defaults
// to on; tests that would be noisy can set it to 0 with atomic.StoreUint32.
var LogPackets uint32 = 1

type endpoint struct {
	dispatcher types.NetworkDispatcher
	lower      types.LinkEndpoint
}

// New creates a new sniffer link-layer endpoint wrapping lower. It logs
// packets as they traverse the endpoint in either direction.
func New(lower types.LinkEndpoint) types.LinkEndpoint {
	return &endpoint{lower: lower}
}

// DeliverNetworkPacket implements types.NetworkDispatcher. It is called by
// the endpoint being wrapped when a packet arrives, logs it, and forwards
// it to the real dispatcher.
func (e *endpoint) DeliverNetworkPacket(linkEp types.LinkEndpoint, remote types.LinkAddress, payload []byte) {
	if atomic.LoadUint32(&LogPackets) == 1 {
		LogPacket("recv", payload)
	}
	e.dispatcher.DeliverNetworkPacket(e, remote, payload)
}

// Attach implements types.LinkEndpoint. It saves the dispatcher and
// registers itself as the lower endpoint's dispatcher, so that e is called
// for every inbound packet.
func (e *endpoint) Attach(dispatcher types.NetworkDispatcher) {
	e.dispatcher = dispatcher
	e.lower.Attach(e)
}

func (e *endpoint) MTU() uint32 {
	return e.lower.MTU()
}

func (e *endpoint) LinkAddress() types.LinkAddress {
	return e.lower.LinkAddress()
}

// WritePacket implements types.LinkEndpoint. It logs the packet and
// forwards the request to the lower endpoint.
func (e *endpoint) WritePacket(remote types.LinkAddress, payload []byte) error {
	if atomic.LoadUint32(&LogPackets) == 1 {
		LogPacket("send", payload)
	}
	return e.lower.WritePacket(remote, payload)
}

// LogPacket logs a single IPv4 datagram, and its TCP segment if present.
func LogPacket(prefix string, b []byte) {
	if header.IPVersion(b) != header.IPv4Version {
		log.Printf("%s unknown network protocol", prefix)
		return
	}

	ipv4 := header.IPv4(b)
	if !ipv4.IsValid(len(b)) {
		log.Printf("%s invalid ipv4 packet", prefix)
		return
	}

	src := ipv4.SourceAddress()
	dst := ipv4.DestinationAddress()
	size := ipv4.PayloadLength()
	id := ipv4.ID()

	transName := "unknown"
	srcPort := uint16(0)
	dstPort := uint16(0)
	details := ""
	switch ipv4.TransportProtocol() {
	case header.TCPProtocolNumber:
		transName = "tcp"
		tcp := header.TCP(ipv4.Payload())
		srcPort = tcp.SourcePort()
		dstPort = tcp.DestinationPort()

		flags := tcp.Flags()
		flagsStr := []byte("FSRPAU")
		for i := range flagsStr {
			if flags&(1<<uint(i)) == 0 {
				flagsStr[i] = ' '
			}
		}
		details = fmt.Sprintf("flags:0x%02x (%v) seqnum:%v ack:%v win:%v xsum:0x%x",
			flags, string(flagsStr), tcp.SequenceNumber(), tcp.AckNumber(), tcp.WindowSize(), tcp.Checksum())
	default:
		log.Printf("%s %v -> %v unknown transport protocol: %d", prefix, src, dst, ipv4.Protocol())
		return
	}

	log.Printf("%s %s %v:%v -> %v:%v len:%d id:%04x %s", prefix, transName, src, srcPort, dst, dstPort, size, id, details)
}
