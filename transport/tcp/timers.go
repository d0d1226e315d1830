package tcp

import (
	"log"
	"time"

	"github.com/nullsock/tcpcore/types"
)

// emit applies the single-entry retransmission rule from spec §4.3 to one
// queued segment of id's PCB. It reports whether the connection was
// abandoned (retransmit deadline exceeded), in which case the caller must
// stop walking the rest of the queue.
func (p *Protocol) emit(id ID, e *retransmitEntry) (abandoned bool) {
	pb := &p.table.slots[id]
	t := now()

	if t.Sub(e.first) >= RetransmitDeadline {
		log.Printf("tcp: retransmit deadline exceeded, closing connection")
		pb.closeReason = types.ErrRetransmitDeadline
		pb.queue.discard()
		pb.state = StateClosed
		pb.ctx.wake()
		p.table.release(id)
		return true
	}

	if t.After(e.last.Add(e.rto)) {
		p.sendSegment(pb.local, pb.foreign, e.seq, pb.rcvNXT, e.flags, pb.rcvWND, e.data)
		e.last = t
		e.rto *= 2
	}

	return false
}

// emitAll walks id's retransmit queue applying emit to each entry in order,
// stopping early if the connection is abandoned partway through.
func (p *Protocol) emitAll(id ID) {
	pb := &p.table.slots[id]
	for i := range pb.queue.entries {
		if p.emit(id, &pb.queue.entries[i]) {
			return
		}
	}
}

// StartTimers launches the three periodic tasks spec §4.6 calls for:
// retransmit, user-timeout, and time-wait. It returns a function that stops
// them.
func (p *Protocol) StartTimers() (stop func()) {
	done := make(chan struct{})

	go p.runTicker(retransmitTick, done, p.retransmitTick)
	go p.runTicker(userTimeoutTick, done, p.userTimeoutTick)
	go p.runTicker(timeWaitTick, done, p.timeWaitTick)

	var once bool
	return func() {
		if !once {
			once = true
			close(done)
		}
	}
}

func (p *Protocol) runTicker(period time.Duration, done <-chan struct{}, fn func()) {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			fn()
		}
	}
}

func (p *Protocol) retransmitTick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.table.slots {
		if p.table.slots[i].state != StateFree {
			p.emitAll(ID(i))
		}
	}
}

func (p *Protocol) userTimeoutTick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := now()
	for i := range p.table.slots {
		pb := &p.table.slots[i]
		if pb.state == StateFree || pb.state == StateTimeWait {
			continue
		}
		if t.Sub(pb.startTime) >= UserTimeout {
			log.Printf("tcp: user timeout")
			pb.closeReason = types.ErrUserTimeout
			pb.queue.discard()
			pb.state = StateClosed
			pb.ctx.wake()
			p.table.release(ID(i))
		}
	}
}

func (p *Protocol) timeWaitTick() {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := now()
	for i := range p.table.slots {
		pb := &p.table.slots[i]
		if pb.state != StateTimeWait {
			continue
		}
		if t.Sub(pb.timeWait) >= 2*MSL {
			pb.state = StateClosed
			p.table.release(ID(i))
		}
	}
}
