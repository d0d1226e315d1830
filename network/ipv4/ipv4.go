// Package ipv4 implements just enough of IPv4 to carry TCP segments between
// directly-addressed interfaces: header validation, the Internet checksum,
// and encoding of outbound datagrams. Routing, ARP, and link framing live in
// the stack and link packages; this package only ever sees whole datagrams.
package ipv4

import (
	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/types"
)

const (
	// defaultTTL is used for every datagram this stack originates. There is
	// no path-MTU or hop-count feedback loop to tune it against.
	defaultTTL = 64
)

// Parse validates an inbound datagram's length, header checksum, and
// fragmentation, and returns its header and payload. Anything that fails
// validation is reported as an error and must be dropped, not answered.
func Parse(b []byte) (header.IPv4, []byte, error) {
	if len(b) < header.IPv4MinimumSize {
		return nil, nil, types.ErrBadLinkEndpoint
	}

	h := header.IPv4(b)
	if !h.IsValid(len(b)) {
		return nil, nil, types.ErrBadLinkEndpoint
	}
	if xsum := h.CalculateChecksum(); xsum != 0 && xsum != 0xffff {
		return nil, nil, types.ErrBadLinkEndpoint
	}
	if h.IsFragment() {
		return nil, nil, types.ErrFragmented
	}

	return h, h.Payload(), nil
}

// Encode builds a complete IPv4 datagram carrying payload, addressed from
// src to dst and tagged with the given transport protocol number and
// identification field (used only to vary the Id field across datagrams;
// this stack never fragments, so it has no reassembly significance).
func Encode(proto types.TransportProtocolNumber, id uint16, src, dst types.Address, payload []byte) []byte {
	total := header.IPv4MinimumSize + len(payload)
	b := make([]byte, total)
	h := header.IPv4(b)
	h.Encode(&header.IPv4Fields{
		IHL:         header.IPv4MinimumSize,
		TotalLength: uint16(total),
		ID:          id,
		TTL:         defaultTTL,
		Protocol:    uint8(proto),
		SrcAddr:     src,
		DstAddr:     dst,
	})
	copy(b[header.IPv4MinimumSize:], payload)
	h.SetChecksum(^h.CalculateChecksum())
	return b
}
