package ipv4_test

import (
	"testing"

	"github.com/nullsock/tcpcore/network/ipv4"
	"github.com/nullsock/tcpcore/types"
)

const (
	srcAddr = types.Address("\x0a\x00\x00\x01")
	dstAddr = types.Address("\x0a\x00\x00\x02")
)

func TestEncodeParseRoundTrip(t *testing.T) {
	payload := []byte("hello")
	datagram := ipv4.Encode(6, 1, srcAddr, dstAddr, payload)

	h, body, err := ipv4.Parse(datagram)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if h.SourceAddress() != srcAddr {
		t.Errorf("SourceAddress = %q, want %q", h.SourceAddress(), srcAddr)
	}
	if h.DestinationAddress() != dstAddr {
		t.Errorf("DestinationAddress = %q, want %q", h.DestinationAddress(), dstAddr)
	}
	if string(body) != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}
}

func TestParseRejectsShortDatagram(t *testing.T) {
	if _, _, err := ipv4.Parse(make([]byte, 10)); err == nil {
		t.Error("Parse accepted a too-short datagram")
	}
}

func TestParseRejectsBadChecksum(t *testing.T) {
	datagram := ipv4.Encode(6, 1, srcAddr, dstAddr, []byte("hello"))
	datagram[10] ^= 0xff // corrupt the checksum field

	if _, _, err := ipv4.Parse(datagram); err == nil {
		t.Error("Parse accepted a datagram with a bad checksum")
	}
}

func TestParseRejectsFragment(t *testing.T) {
	datagram := ipv4.Encode(6, 1, srcAddr, dstAddr, []byte("hello"))
	datagram[6] |= 0x1 << 5 // set the more-fragments bit
	datagram[10], datagram[11] = 0, 0
	xsum := recomputeChecksum(datagram)
	datagram[10] = byte(xsum >> 8)
	datagram[11] = byte(xsum)

	if _, _, err := ipv4.Parse(datagram); err != types.ErrFragmented {
		t.Errorf("Parse returned %v, want ErrFragmented", err)
	}
}

// recomputeChecksum is a tiny local reimplementation of the ones'-complement
// checksum, used only to keep TestParseRejectsFragment honest about the
// checksum field after flipping the fragment flag.
func recomputeChecksum(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < 20; i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	for sum > 0xffff {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
