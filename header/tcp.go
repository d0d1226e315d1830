package header

import (
	"encoding/binary"

	"github.com/nullsock/tcpcore/checksum"
	"github.com/nullsock/tcpcore/types"
)

const (
	srcPort     = 0
	dstPort     = 2
	seqNum      = 4
	ackNum      = 8
	dataOffset  = 12
	tcpFlags    = 13
	winSize     = 14
	tcpChecksum = 16
	urgentPtr   = 18
)

// Flags that may be set in a TCP segment. The top two bits of the flags byte
// are reserved/unused by this stack and must be masked out on comparison.
const (
	TCPFlagFin = 1 << iota
	TCPFlagSyn
	TCPFlagRst
	TCPFlagPsh
	TCPFlagAck
	TCPFlagUrg

	// TCPFlagMask covers the six flag bits this stack understands.
	TCPFlagMask = TCPFlagFin | TCPFlagSyn | TCPFlagRst | TCPFlagPsh | TCPFlagAck | TCPFlagUrg
)

// TCPFields contains the fields of a TCP packet. It is used to describe the
// fields of a packet that needs to be encoded.
type TCPFields struct {
	SrcPort uint16

	DstPort uint16

	SeqNum uint32

	AckNum uint32

	// DataOffset is the size, in bytes, of the fixed + options portion of
	// the header. This stack only ever emits TCPMinimumSize (no options),
	// but DataOffset is still accepted on decode so that segments with a
	// larger header (off > 5) locate their payload correctly.
	DataOffset uint8

	Flags uint8

	WindowSize uint16

	Checksum uint16

	UrgentPointer uint16
}

// TCP represents a TCP header stored in network byte order.
type TCP []byte

const (
	// TCPMinimumSize is the size of a TCP header with no options. This
	// stack never emits options, so it is also the only size it sends.
	TCPMinimumSize = 20

	// TCPProtocolNumber is TCP's transport protocol number.
	TCPProtocolNumber types.TransportProtocolNumber = 6
)

func (b TCP) SourcePort() uint16 {
	return binary.BigEndian.Uint16(b[srcPort:])
}

func (b TCP) DestinationPort() uint16 {
	return binary.BigEndian.Uint16(b[dstPort:])
}

func (b TCP) SequenceNumber() uint32 {
	return binary.BigEndian.Uint32(b[seqNum:])
}

func (b TCP) AckNumber() uint32 {
	return binary.BigEndian.Uint32(b[ackNum:])
}

// DataOffset returns the size, in bytes, of the header (fixed part plus any
// options). Received segments may carry options this stack doesn't parse;
// DataOffset is still honoured so Payload() skips over them correctly.
func (b TCP) DataOffset() uint8 {
	return (b[dataOffset] >> 4) * 4
}

// Payload returns the segment's data, i.e. everything past the header.
func (b TCP) Payload() []byte {
	return b[b.DataOffset():]
}

// Flags returns the six low bits of the flags byte; the two reserved high
// bits are always masked off.
func (b TCP) Flags() uint8 {
	return b[tcpFlags] & TCPFlagMask
}

func (b TCP) WindowSize() uint16 {
	return binary.BigEndian.Uint16(b[winSize:])
}

func (b TCP) Checksum() uint16 {
	return binary.BigEndian.Uint16(b[tcpChecksum:])
}

func (b TCP) UrgentPointer() uint16 {
	return binary.BigEndian.Uint16(b[urgentPtr:])
}

// SetSourcePort sets the "source port" field.
func (b TCP) SetSourcePort(v uint16) {
	binary.BigEndian.PutUint16(b[srcPort:], v)
}

// SetDestinationPort sets the "destination port" field.
func (b TCP) SetDestinationPort(v uint16) {
	binary.BigEndian.PutUint16(b[dstPort:], v)
}

// SetChecksum sets the checksum field.
func (b TCP) SetChecksum(v uint16) {
	binary.BigEndian.PutUint16(b[tcpChecksum:], v)
}

// Encode encodes all the fields of the TCP header. It always writes a
// 20-byte, options-less header (data offset 5).
func (b TCP) Encode(f *TCPFields) {
	binary.BigEndian.PutUint16(b[srcPort:], f.SrcPort)
	binary.BigEndian.PutUint16(b[dstPort:], f.DstPort)
	binary.BigEndian.PutUint32(b[seqNum:], f.SeqNum)
	binary.BigEndian.PutUint32(b[ackNum:], f.AckNum)
	b[dataOffset] = (5 << 4)
	b[tcpFlags] = f.Flags & TCPFlagMask
	binary.BigEndian.PutUint16(b[winSize:], f.WindowSize)
	binary.BigEndian.PutUint16(b[urgentPtr:], f.UrgentPointer)
	b.SetChecksum(f.Checksum)
}

// CalculateChecksum computes the TCP checksum over the pseudo-header
// (partialChecksum, folded in by the caller from source/destination address,
// protocol, and TCP length) followed by this header and its payload. The
// header's own checksum field must be zero when this is called.
func (b TCP) CalculateChecksum(partialChecksum uint16) uint16 {
	return checksum.Checksum(b, partialChecksum)
}

// PseudoHeaderChecksum folds the IPv4 pseudo-header (source address,
// destination address, zero, protocol, TCP length) into a running checksum,
// as required before checksumming the TCP header + payload.
func PseudoHeaderChecksum(srcAddr, dstAddr types.Address, totalLen uint16) uint16 {
	xsum := checksum.Checksum([]byte(srcAddr), 0)
	xsum = checksum.Checksum([]byte(dstAddr), xsum)
	xsum = checksum.Checksum([]byte{0, byte(TCPProtocolNumber)}, xsum)
	return checksum.Put16(totalLen, xsum)
}
