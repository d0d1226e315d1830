// Package channel provides an in-memory link endpoint backed by a Go
// channel. It is used both as the "loopback" driver (attached to a NIC
// whose routes only ever target its own address) and as the "dummy"
// driver in tests, where outbound frames are drained and inbound ones
// injected directly by the test rather than by a real wire.
package channel

import (
	"github.com/nullsock/tcpcore/types"
)

// PacketInfo holds all the information about an outbound packet captured
// by the channel endpoint.
type PacketInfo struct {
	Remote  types.LinkAddress
	Payload []byte
}

// Endpoint is a link layer endpoint that stores outbound packets in a
// channel and allows injection of inbound packets.
type Endpoint struct {
	dispatcher types.NetworkDispatcher
	linkAddr   types.LinkAddress
	mtu        uint32

	C chan PacketInfo
}

// New creates a new channel endpoint with the given outbound queue depth
// and MTU.
func New(size int, mtu uint32, linkAddr types.LinkAddress) *Endpoint {
	return &Endpoint{
		C:        make(chan PacketInfo, size),
		mtu:      mtu,
		linkAddr: linkAddr,
	}
}

// Inject delivers an inbound packet as though it had arrived over the
// wire from remote.
func (e *Endpoint) Inject(remote types.LinkAddress, payload []byte) {
	if e.dispatcher == nil {
		return
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	e.dispatcher.DeliverNetworkPacket(e, remote, cp)
}

// Attach saves the stack's network layer dispatcher for use later when
// packets are injected.
func (e *Endpoint) Attach(dispatcher types.NetworkDispatcher) {
	e.dispatcher = dispatcher
}

// MTU implements types.LinkEndpoint.MTU.
func (e *Endpoint) MTU() uint32 {
	return e.mtu
}

// LinkAddress implements types.LinkEndpoint.LinkAddress.
func (e *Endpoint) LinkAddress() types.LinkAddress {
	return e.linkAddr
}

// WritePacket stores an outbound packet into the channel.
func (e *Endpoint) WritePacket(remote types.LinkAddress, payload []byte) error {
	cp := make([]byte, len(payload))
	copy(cp, payload)
	e.C <- PacketInfo{Remote: remote, Payload: cp}
	return nil
}
