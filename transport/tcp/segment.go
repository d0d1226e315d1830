package tcp

import (
	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/seqnum"
	"github.com/nullsock/tcpcore/types"
)

// segmentInfo is the decoded view of an inbound segment the state machine
// operates on (spec §4.4).
type segmentInfo struct {
	seq   seqnum.Value
	ack   seqnum.Value
	len   seqnum.Size // sequence-number-consuming length: payload + SYN + FIN
	wnd   seqnum.Size
	up    uint16
	flags uint8
	data  []byte

	local   types.FullAddress
	foreign types.FullAddress
}

// parseSegment decodes an inbound TCP header plus whatever addressing
// information IP handed up alongside it.
func parseSegment(b []byte, src, dst types.Address) segmentInfo {
	h := header.TCP(b)
	flags := h.Flags()
	data := h.Payload()

	l := seqnum.Size(len(data))
	if flags&header.TCPFlagSyn != 0 {
		l++
	}
	if flags&header.TCPFlagFin != 0 {
		l++
	}

	return segmentInfo{
		seq:   seqnum.Value(h.SequenceNumber()),
		ack:   seqnum.Value(h.AckNumber()),
		len:   l,
		wnd:   seqnum.Size(h.WindowSize()),
		up:    h.UrgentPointer(),
		flags: flags,
		data:  data,
		local: types.FullAddress{Addr: dst, Port: h.DestinationPort()},
		foreign: types.FullAddress{Addr: src, Port: h.SourcePort()},
	}
}

// sendSegment builds and transmits a single TCP segment. It never touches
// the retransmit queue; tcp_output (below) decides what needs queuing
// before calling this.
func (p *Protocol) sendSegment(local, foreign types.FullAddress, seq, ack seqnum.Value, flags uint8, wnd seqnum.Size, payload []byte) error {
	total := header.TCPMinimumSize + len(payload)
	buf := make([]byte, total)
	h := header.TCP(buf)
	h.Encode(&header.TCPFields{
		SrcPort:    local.Port,
		DstPort:    foreign.Port,
		SeqNum:     uint32(seq),
		AckNum:     uint32(ack),
		Flags:      flags,
		WindowSize: uint16(wnd),
	})
	copy(buf[header.TCPMinimumSize:], payload)

	xsum := header.PseudoHeaderChecksum(local.Addr, foreign.Addr, uint16(total))
	xsum = h.CalculateChecksum(xsum)
	h.SetChecksum(^xsum)

	return p.net.Output(header.TCPProtocolNumber, buf, local.Addr, foreign.Addr)
}

// tcpOutput is the output path from spec §4.4: it picks the outgoing
// sequence number, queues the segment for retransmission if it consumes
// sequence space, and stamps ack/wnd from the PCB's current receive state
// before transmitting.
func (p *Protocol) tcpOutput(id ID, flags uint8, payload []byte) error {
	pb := &p.table.slots[id]

	seq := pb.sndNXT
	if flags&header.TCPFlagSyn != 0 {
		seq = pb.iss
	}

	consumes := seqnum.Size(len(payload))
	if flags&header.TCPFlagSyn != 0 {
		consumes++
	}
	if flags&header.TCPFlagFin != 0 {
		consumes++
	}
	if consumes > 0 {
		pb.queue.add(seq, flags, payload, now())
	}

	return p.sendSegment(pb.local, pb.foreign, seq, pb.rcvNXT, flags, pb.rcvWND, payload)
}
