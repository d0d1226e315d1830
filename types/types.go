// Package types holds the address, identifier, and error types shared by
// every layer of the stack (link, network, and transport), so that none of
// them need to import one another just to describe an endpoint.
package types

// Address is a network-layer address in network byte order (4 bytes for the
// IPv4 addresses this stack supports).
type Address string

// LinkAddress is a link-layer (MAC) address in network byte order.
type LinkAddress string

// NicId identifies a network interface card within a Stack.
type NicId uint32

// NetworkProtocolNumber is the EtherType-space number of a network protocol.
type NetworkProtocolNumber uint32

// TransportProtocolNumber is the IP protocol number of a transport protocol.
type TransportProtocolNumber uint32

// FullAddress is the (address, port) pair that identifies one side of a
// transport-layer connection. Addr may be the wildcard (empty string) to mean
// ANY on the local side of a listening endpoint.
type FullAddress struct {
	Addr Address
	Port uint16
}

// TransportEndpointId is the 4-tuple that identifies a transport connection.
type TransportEndpointId struct {
	LocalPort     uint16
	LocalAddress  Address
	RemotePort    uint16
	RemoteAddress Address
}
