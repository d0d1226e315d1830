package tcp

import (
	"log"
	"math/rand"

	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/seqnum"
	"github.com/nullsock/tcpcore/types"
	"github.com/nullsock/tcpcore/waiter"
)

// segmentArrives is the RFC 793 SEGMENT ARRIVES event (spec §4.4): given a
// decoded inbound segment, find its PCB (if any) and run one state-machine
// step. The caller already holds p.mu.
func (p *Protocol) segmentArrives(seg segmentInfo) {
	id, ok := p.table.lookup(seg.local, seg.foreign)
	if !ok {
		p.noPCB(seg)
		return
	}

	pb := &p.table.slots[id]
	switch pb.state {
	case StateClosed:
		p.noPCB(seg)
	case StateListen:
		p.listen(id, seg)
	case StateSynSent:
		p.synSent(id, seg)
	default:
		p.synchronized(id, seg)
	}
}

// noPCB handles an inbound segment that matched no PCB at all, or matched
// one still in CLOSED (spec §4.4, "No matching PCB").
func (p *Protocol) noPCB(seg segmentInfo) {
	if seg.flags&header.TCPFlagRst != 0 {
		return
	}
	if seg.flags&header.TCPFlagAck != 0 {
		p.sendSegment(seg.local, seg.foreign, seg.ack, 0, header.TCPFlagRst, 0, nil)
		return
	}
	p.sendSegment(seg.local, seg.foreign, 0, seg.seq.Add(seg.len), header.TCPFlagRst|header.TCPFlagAck, 0, nil)
}

func (p *Protocol) listen(id ID, seg segmentInfo) {
	pb := &p.table.slots[id]

	if seg.flags&header.TCPFlagRst != 0 {
		return
	}
	if seg.flags&header.TCPFlagAck != 0 {
		p.sendSegment(seg.local, seg.foreign, seg.ack, 0, header.TCPFlagRst, 0, nil)
		return
	}
	if seg.flags&header.TCPFlagSyn == 0 {
		return
	}

	pb.foreign = seg.foreign
	if pb.local.Addr == "" {
		// Bind the wildcard to the address the SYN arrived on; the
		// pseudo-header checksum of every reply depends on it.
		pb.local.Addr = seg.local.Addr
	}
	pb.rcvWND = seqnum.Size(RecvBufferSize)
	pb.rcvNXT = seg.seq.Add(1)
	pb.irs = seg.seq
	pb.iss = seqnum.Value(rand.Uint32())
	p.setMSS(id, seg.foreign.Addr)

	if err := p.tcpOutput(id, header.TCPFlagSyn|header.TCPFlagAck, nil); err != nil {
		p.table.slots[id] = pcb{}
		return
	}
	pb.sndNXT = pb.iss.Add(1)
	pb.sndUNA = pb.iss
	pb.state = StateSynReceived
}

func (p *Protocol) synSent(id ID, seg segmentInfo) {
	pb := &p.table.slots[id]

	ackOK := false
	if seg.flags&header.TCPFlagAck != 0 {
		if seg.ack.LessThanEq(pb.iss) || pb.sndNXT.LessThan(seg.ack) {
			p.sendSegment(seg.local, seg.foreign, seg.ack, 0, header.TCPFlagRst, 0, nil)
			return
		}
		ackOK = pb.sndUNA.LessThanEq(seg.ack) && seg.ack.LessThanEq(pb.sndNXT)
	}

	if seg.flags&header.TCPFlagRst != 0 {
		if ackOK {
			log.Printf("tcp: connection reset in SYN-SENT")
			pb.closeReason = types.ErrConnectionReset
			pb.state = StateClosed
			pb.ctx.wake()
			p.table.release(id)
		}
		return
	}

	if seg.flags&header.TCPFlagSyn == 0 {
		return
	}

	pb.rcvNXT = seg.seq.Add(1)
	pb.irs = seg.seq

	if ackOK {
		pb.sndUNA = seg.ack
		pb.queue.cleanup(pb.sndUNA)
	}

	if pb.iss.LessThan(pb.sndUNA) {
		pb.state = StateEstablished
		p.tcpOutput(id, header.TCPFlagAck, nil)
		pb.sndWND = seg.wnd
		pb.sndWL1 = seg.seq
		pb.sndWL2 = seg.ack
		pb.ctx.wake()
		p.notify(id, waiter.EventOut)
	} else {
		// Simultaneous open: no acceptable ACK came with the SYN.
		pb.state = StateSynReceived
		p.tcpOutput(id, header.TCPFlagSyn|header.TCPFlagAck, nil)
	}
}

// acceptable implements the sequence-space acceptability test from spec
// §4.4 / §9's Acceptability glossary entry.
func acceptable(seg segmentInfo, rcvNXT seqnum.Value, rcvWND seqnum.Size) bool {
	if seg.len == 0 {
		if rcvWND == 0 {
			return seg.seq == rcvNXT
		}
		return seg.seq.InWindow(rcvNXT, rcvWND)
	}
	if rcvWND == 0 {
		return false
	}
	end := seg.seq.Add(seg.len - 1)
	return seg.seq.InWindow(rcvNXT, rcvWND) || end.InWindow(rcvNXT, rcvWND)
}

// synchronized runs the common processing shared by every state from
// SYN-RECEIVED through LAST-ACK (spec §4.4).
func (p *Protocol) synchronized(id ID, seg segmentInfo) {
	pb := &p.table.slots[id]

	if !acceptable(seg, pb.rcvNXT, pb.rcvWND) {
		if seg.flags&header.TCPFlagRst == 0 {
			p.tcpOutput(id, header.TCPFlagAck, nil)
		}
		return
	}

	if seg.flags&header.TCPFlagRst != 0 {
		p.handleRST(id)
		return
	}

	if seg.flags&header.TCPFlagSyn != 0 {
		log.Printf("tcp: SYN received in synchronized state, resetting")
		pb.closeReason = types.ErrConnectionReset
		pb.queue.discard()
		pb.state = StateClosed
		pb.ctx.wake()
		p.table.release(id)
		return
	}

	if seg.flags&header.TCPFlagAck == 0 {
		return
	}
	if !p.handleACK(id, seg) {
		return
	}

	pb = &p.table.slots[id]
	if pb.state == StateEstablished || pb.state == StateFinWait1 || pb.state == StateFinWait2 {
		if len(seg.data) > 0 {
			p.handleData(id, seg)
		}
	}

	pb = &p.table.slots[id]
	if seg.flags&header.TCPFlagFin != 0 {
		p.handleFIN(id, seg)
	}
}

func (p *Protocol) handleRST(id ID) {
	pb := &p.table.slots[id]
	switch pb.state {
	case StateSynReceived:
		if pb.active {
			log.Printf("tcp: connection refused")
			pb.closeReason = types.ErrConnectionRefused
			pb.queue.discard()
			pb.state = StateClosed
			pb.ctx.wake()
			p.table.release(id)
		} else {
			// A passive PCB just reopens for the next comer instead of
			// tearing down the listener. Wake the blocked Open so its
			// wait loop notices the state change and goes back to
			// sleeping on LISTEN rather than SYN-RECEIVED.
			pb.queue.discard()
			pb.foreign = types.FullAddress{}
			pb.state = StateListen
			pb.ctx.wake()
		}
	case StateEstablished, StateFinWait1, StateFinWait2, StateCloseWait:
		pb.closeReason = types.ErrConnectionReset
		pb.queue.discard()
		pb.state = StateClosed
		pb.ctx.wake()
		p.table.release(id)
	case StateClosing, StateLastAck, StateTimeWait:
		pb.queue.discard()
		pb.state = StateClosed
		p.table.release(id)
	}
}

// handleACK runs step 4 of spec §4.4's synchronized processing. It reports
// whether processing should continue on to the data/FIN steps.
func (p *Protocol) handleACK(id ID, seg segmentInfo) bool {
	pb := &p.table.slots[id]

	if pb.state == StateSynReceived {
		if pb.sndUNA.LessThanEq(seg.ack) && seg.ack.LessThanEq(pb.sndNXT) {
			pb.state = StateEstablished
			pb.ctx.wake()
			p.notify(id, waiter.EventOut)
		} else {
			p.sendSegment(seg.local, seg.foreign, seg.ack, 0, header.TCPFlagRst, 0, nil)
			return false
		}
	}

	pb = &p.table.slots[id]
	switch pb.state {
	case StateEstablished, StateFinWait1, StateFinWait2, StateCloseWait:
		if pb.sndUNA.LessThan(seg.ack) && seg.ack.LessThanEq(pb.sndNXT) {
			pb.sndUNA = seg.ack
			pb.queue.cleanup(pb.sndUNA)
			pb.ctx.wake()
			p.notify(id, waiter.EventOut)
		}
		if pb.sndWL1.LessThan(seg.seq) || (pb.sndWL1 == seg.seq && pb.sndWL2.LessThanEq(seg.ack)) {
			pb.sndWND = seg.wnd
			pb.sndWL1 = seg.seq
			pb.sndWL2 = seg.ack
			pb.ctx.wake() // a Send blocked on a closed window may now fit
			p.notify(id, waiter.EventOut)
		}
		if seg.ack.LessThan(pb.sndUNA) {
			// Duplicate ACK; ignore.
		} else if pb.sndNXT.LessThan(seg.ack) {
			p.tcpOutput(id, header.TCPFlagAck, nil)
			return false
		}
		if pb.state == StateFinWait1 && seg.ack == pb.sndNXT {
			pb.state = StateFinWait2
		}
	case StateLastAck:
		if seg.ack == pb.sndNXT {
			pb.state = StateClosed
			p.table.release(id)
			return false
		}
	}
	return true
}

// handleData runs step 5 of spec §4.4's synchronized processing.
func (p *Protocol) handleData(id ID, seg segmentInfo) {
	pb := &p.table.slots[id]

	off := pb.used()
	n := len(seg.data)
	if off+n > RecvBufferSize {
		n = RecvBufferSize - off
	}
	copy(pb.buf[off:off+n], seg.data[:n])
	pb.rcvNXT = seg.seq.Add(seg.len)
	pb.rcvWND -= seqnum.Size(n)
	p.tcpOutput(id, header.TCPFlagAck, nil)
	pb.ctx.wake()
	p.notify(id, waiter.EventIn)
}

// handleFIN runs step 6 of spec §4.4's synchronized processing.
func (p *Protocol) handleFIN(id ID, seg segmentInfo) {
	pb := &p.table.slots[id]

	pb.rcvNXT = seg.seq.Add(1)
	p.tcpOutput(id, header.TCPFlagAck, nil)

	switch pb.state {
	case StateSynReceived, StateEstablished:
		pb.state = StateCloseWait
		pb.ctx.wake()
		p.notify(id, waiter.EventIn)
	case StateFinWait1:
		if seg.ack == pb.sndNXT {
			pb.state = StateTimeWait
			pb.timeWait = now()
		} else {
			pb.state = StateClosing
		}
	case StateFinWait2:
		pb.state = StateTimeWait
		pb.timeWait = now()
	case StateCloseWait, StateLastAck:
		// Already seen a FIN from this peer; stay put.
	}
}
