// Package tcp implements the transport-layer half of the stack: the RFC 793
// connection state machine, its retransmission engine, and the blocking
// open/close/send/receive command surface built on top of them.
package tcp

import (
	"time"

	"github.com/nullsock/tcpcore/seqnum"
	"github.com/nullsock/tcpcore/types"
)

// Tunable parameters (spec §6).
const (
	// DefaultRTO is the retransmission timeout used for a segment's first
	// retransmission; it doubles on every subsequent one.
	DefaultRTO = 200 * time.Millisecond

	// RetransmitDeadline is how long a segment may sit unacknowledged at
	// the head of the retransmit queue before the connection is abandoned.
	RetransmitDeadline = 12 * time.Second

	// UserTimeout is how long after Open allocates a PCB the user-timeout
	// timer tears it down, in any state but TIME-WAIT. It is measured from
	// allocation, not from the connection's last progress.
	UserTimeout = 30 * time.Second

	// MSL is the maximum segment lifetime; TIME-WAIT lasts 2*MSL.
	MSL = 120 * time.Second

	// TableSize is the number of PCB slots the stack can hold at once.
	TableSize = 16

	// RecvBufferSize is the per-connection receive buffer capacity. It is
	// intentionally small (per spec §3, matching the reference source)
	// so that window exhaustion and buffer compaction are easy to drive
	// in tests.
	RecvBufferSize = 16

	retransmitTick = 100 * time.Millisecond
	userTimeoutTick = time.Second
	timeWaitTick    = time.Second
)

// State is one of the twelve states a PCB can be in.
type State int

const (
	// StateFree marks an unused table slot.
	StateFree State = iota
	StateClosed
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateClosing
	StateTimeWait
	StateCloseWait
	StateLastAck
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "FREE"
	case StateClosed:
		return "CLOSED"
	case StateListen:
		return "LISTEN"
	case StateSynSent:
		return "SYN-SENT"
	case StateSynReceived:
		return "SYN-RECEIVED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateFinWait1:
		return "FIN-WAIT-1"
	case StateFinWait2:
		return "FIN-WAIT-2"
	case StateClosing:
		return "CLOSING"
	case StateTimeWait:
		return "TIME-WAIT"
	case StateCloseWait:
		return "CLOSE-WAIT"
	case StateLastAck:
		return "LAST-ACK"
	default:
		return "UNKNOWN"
	}
}

// ID is a stable index into the PCB table, handed back by Open and used by
// every other command to name a connection.
type ID int

// pcb is one Protocol Control Block: all state for a single TCP connection
// (or listener).
type pcb struct {
	active bool
	state  State

	local   types.FullAddress
	foreign types.FullAddress

	// Send variables.
	sndUNA seqnum.Value
	sndNXT seqnum.Value
	sndWND seqnum.Size
	sndUP  uint16
	sndWL1 seqnum.Value
	sndWL2 seqnum.Value
	iss    seqnum.Value

	// Receive variables.
	rcvNXT seqnum.Value
	rcvWND seqnum.Size
	rcvUP  uint16
	irs    seqnum.Value

	mtu uint32
	mss uint16

	startTime time.Time
	timeWait  time.Time

	// buf holds unread received data in [0, used); rcvWND tracks the free
	// space at the tail, so used == RecvBufferSize - int(rcvWND).
	buf [RecvBufferSize]byte

	queue retransmitQueue
	ctx   waitContext

	// closeReason records why the state machine or a timer drove this PCB
	// to CLOSED, so a blocked Open/Send/Receive/Close can report the
	// specific cause (spec §7) instead of a generic failure. It must be
	// read before release() reclaims the slot, since release zeroes the
	// whole pcb.
	closeReason *types.Error
}

func (p *pcb) used() int {
	return RecvBufferSize - int(p.rcvWND)
}

// table is the fixed-capacity array of PCBs the spec calls for.
type table struct {
	slots [TableSize]pcb
}

// alloc returns the first FREE slot, initialized to CLOSED with a fresh
// wait context, or false if the table is full.
func (t *table) alloc() (ID, bool) {
	for i := range t.slots {
		if t.slots[i].state == StateFree {
			t.slots[i] = pcb{state: StateClosed}
			return ID(i), true
		}
	}
	return 0, false
}

// localMatches implements the "same or ANY" rule spec §4.2 applies to local
// address comparisons.
func localMatches(pcbAddr, want types.Address) bool {
	return pcbAddr == "" || pcbAddr == want
}

// lookup implements the socket lookup precedence from spec §4.2: an exact
// (local, foreign) match wins outright; otherwise a LISTEN PCB whose local
// endpoint matches and whose foreign side is the wildcard matches any peer.
func (t *table) lookup(local, foreign types.FullAddress) (ID, bool) {
	for i := range t.slots {
		p := &t.slots[i]
		if p.state == StateFree {
			continue
		}
		if p.foreign == foreign && p.local.Port == local.Port && localMatches(p.local.Addr, local.Addr) {
			return ID(i), true
		}
	}
	for i := range t.slots {
		p := &t.slots[i]
		if p.state != StateListen {
			continue
		}
		if p.foreign.Addr == "" && p.foreign.Port == 0 &&
			p.local.Port == local.Port && localMatches(p.local.Addr, local.Addr) {
			return ID(i), true
		}
	}
	return 0, false
}

// localInUse reports whether any non-FREE PCB already claims local, ignoring
// the foreign side entirely -- used to validate an explicit bind and to test
// candidate ephemeral ports.
func (t *table) localInUse(local types.FullAddress) bool {
	for i := range t.slots {
		p := &t.slots[i]
		if p.state == StateFree {
			continue
		}
		if p.local.Port == local.Port && (p.local.Addr == local.Addr || p.local.Addr == "" || local.Addr == "") {
			return true
		}
	}
	return false
}

// release implements the release-with-waiters protocol from spec §4.2 and
// §5: if any caller is still asleep on the PCB's wait context, it wakes
// them and defers the actual reclamation to whichever one unwinds last.
func (t *table) release(id ID) bool {
	p := &t.slots[id]
	if p.ctx.wc > 0 {
		p.ctx.wake()
		return false
	}
	t.slots[id] = pcb{}
	return true
}
