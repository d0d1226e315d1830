package tcp

import (
	"log"

	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/types"
)

// HandleSegment implements types.TransportHandler: the upward interface
// from IP (spec §6). It validates the segment -- length, broadcast
// addressing, checksum -- before handing it to the state machine; anything
// that fails validation is silently dropped with a log line, never
// reported as a connection error.
func (p *Protocol) HandleSegment(data []byte, src, dst types.Address, nic types.NicId) {
	if len(data) < header.TCPMinimumSize {
		log.Printf("tcp: dropped short segment (%d bytes)", len(data))
		return
	}
	if isBroadcast(src) || isBroadcast(dst) {
		log.Printf("tcp: dropped segment with broadcast address")
		return
	}

	totalLen := uint16(len(data))
	xsum := header.PseudoHeaderChecksum(src, dst, totalLen)
	xsum = header.TCP(data).CalculateChecksum(xsum)
	if xsum != 0 && xsum != 0xffff {
		log.Printf("tcp: dropped segment with bad checksum")
		return
	}

	seg := parseSegment(data, src, dst)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.segmentArrives(seg)
}

// isBroadcast reports whether addr is the IPv4 limited-broadcast address.
// Subnet-directed broadcasts are expected to be filtered by the IP layer,
// which knows the interface's netmask; this is purely the global case the
// transport handler itself is responsible for per spec §6.
func isBroadcast(addr types.Address) bool {
	if len(addr) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if addr[i] != 0xff {
			return false
		}
	}
	return true
}
