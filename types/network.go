package types

// TransportHandler is the upward interface from the IP layer into a
// transport protocol: the handler registered against protocol number 6
// (TCP) receives the payload of every datagram carrying its protocol number
// once the network layer has validated the IPv4 header. Checking the
// segment's own length, broadcast addressing, and checksum is left to the
// handler.
type TransportHandler interface {
	// HandleSegment delivers one transport-layer datagram. nic identifies
	// the interface the datagram arrived on.
	HandleSegment(data []byte, src, dst Address, nic NicId)
}
