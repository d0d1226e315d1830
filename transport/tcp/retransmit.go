package tcp

import (
	"time"

	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/seqnum"
)

// retransmitEntry is one unacknowledged segment sitting in a PCB's
// retransmit queue (spec §3/§4.3).
type retransmitEntry struct {
	first time.Time
	last  time.Time
	rto   time.Duration
	seq   seqnum.Value
	flags uint8
	data  []byte
}

// consumed returns how much sequence space the entry occupies: its payload
// length plus one for SYN and one for FIN, matching seg.len's definition in
// spec §4.4.
func (e *retransmitEntry) consumed() seqnum.Size {
	n := seqnum.Size(len(e.data))
	if e.flags&header.TCPFlagSyn != 0 {
		n++
	}
	if e.flags&header.TCPFlagFin != 0 {
		n++
	}
	return n
}

func (e *retransmitEntry) end() seqnum.Value {
	return e.seq.Add(e.consumed())
}

// retransmitQueue is the ordered FIFO of segments a PCB is still waiting to
// see acknowledged.
type retransmitQueue struct {
	entries []retransmitEntry
}

// add appends a copy of a segment that consumes sequence space. Pure ACKs
// and RSTs never reach here -- tcp_output only calls add for SYN, FIN, or
// segments carrying data.
func (q *retransmitQueue) add(seq seqnum.Value, flags uint8, data []byte, now time.Time) {
	cp := append([]byte(nil), data...)
	q.entries = append(q.entries, retransmitEntry{
		first: now,
		last:  now,
		rto:   DefaultRTO,
		seq:   seq,
		flags: flags,
		data:  cp,
	})
}

// cleanup pops every entry fully covered by una's advance, wrap-aware.
func (q *retransmitQueue) cleanup(una seqnum.Value) {
	i := 0
	for i < len(q.entries) && q.entries[i].end().LessThanEq(una) {
		i++
	}
	q.entries = q.entries[i:]
}

// discard drops the entire queue -- used on RST per the discard-not-resend
// redesign direction in spec §9.
func (q *retransmitQueue) discard() {
	q.entries = nil
}
