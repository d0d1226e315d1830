package header

import (
	"github.com/nullsock/tcpcore/types"
)

// Transport offers generic methods to query the header of a transport
// protocol buffer. header.TCP implements it.
type Transport interface {
	SourcePort() uint16
	DestinationPort() uint16
	Checksum() uint16
}

// Network offers generic methods to query the header of a network protocol
// buffer. header.IPv4 implements it.
type Network interface {
	// SourceAddress returns the value of the "source address" field
	SourceAddress() types.Address

	// DestinationAddress returns the value of the "destination address"
	// field
	DestinationAddress() types.Address

	// TransportProtocol returns the number of the transport protocol
	// stored in the payload
	TransportProtocol() types.TransportProtocolNumber

	// Payload returns a byte slice containing the payload of the network
	// packet
	Payload() []byte
}
