package tcp

import (
	"math/rand"

	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/ports"
	"github.com/nullsock/tcpcore/seqnum"
	"github.com/nullsock/tcpcore/tmutex"
	"github.com/nullsock/tcpcore/types"
	"github.com/nullsock/tcpcore/waiter"
)

// IPSender is the downward interface to the IP layer (spec §6): routing,
// ARP resolution, and link transmission all happen on the far side of it.
// ARP-pending is not surfaced here -- the caller treats the send as queued
// and relies on retransmission to cover any loss.
type IPSender interface {
	Output(proto types.TransportProtocolNumber, payload []byte, src, dst types.Address) error

	// MTU reports the MTU of the interface that would be used to reach
	// dst, so TCP can derive its MSS (spec §3: "mtu, mss: derived from
	// the egress interface's MTU minus IP+TCP header size").
	MTU(dst types.Address) (uint32, error)
}

// Protocol owns the PCB table and every piece of state the spec says lives
// behind the single global lock: the table itself, the retransmit queues
// (embedded in each PCB), and every wait context.
type Protocol struct {
	mu    tmutex.Mutex
	table table
	ports *ports.PortManager
	net   IPSender

	// waiters lets a caller poll for readiness instead of blocking in
	// send/receive; it is purely additive over the blocking contract the
	// spec requires (see SPEC_FULL.md §4.5).
	waiters [TableSize]waiter.Queue
}

// NewProtocol creates a TCP protocol instance that sends datagrams through
// net.
func NewProtocol(net IPSender) *Protocol {
	p := &Protocol{net: net, ports: ports.NewPortManager()}
	p.mu.Init()
	return p
}

// Waiter returns the readiness notification queue for id, so a caller can
// EventRegister for EventIn/EventOut instead of calling the blocking
// Send/Receive directly.
func (p *Protocol) Waiter(id ID) *waiter.Queue {
	return &p.waiters[id]
}

// valid reports whether id names a slot currently in use. Close, Send, and
// Receive must check this before indexing the table: an out-of-range or
// FREE id is the ErrNoPCB case from spec §7, not a panic.
func (p *Protocol) valid(id ID) bool {
	if id < 0 || int(id) >= TableSize {
		return false
	}
	return p.table.slots[id].state != StateFree
}

// closedReason reads pb's recorded close cause, falling back to a generic
// failure if the state machine or a timer closed it without one. It must be
// called before table.release reclaims the slot, since release zeroes the
// whole pcb.
func closedReason(pb *pcb) error {
	if pb.closeReason != nil {
		return pb.closeReason
	}
	return types.ErrConnectionFailed
}

func (p *Protocol) notify(id ID, mask waiter.EventMask) {
	p.waiters[id].Notify(mask)
}

// setMSS queries the egress route for dst and derives the PCB's MSS from
// its MTU (spec §3: "mtu, mss: derived from the egress interface's MTU
// minus IP+TCP header size"). If no route exists yet it leaves pb.mtu/mss
// at zero; Send falls back to a conservative default in that case.
func (p *Protocol) setMSS(id ID, dst types.Address) {
	mtu, err := p.net.MTU(dst)
	if err != nil {
		return
	}
	pb := &p.table.slots[id]
	pb.mtu = mtu
	overhead := uint32(header.IPv4MinimumSize + header.TCPMinimumSize)
	if mtu > overhead {
		pb.mss = uint16(mtu - overhead)
	}
}

// Open implements spec §4.5's open. For an active open it assigns local and
// foreign and emits the initial SYN; either way it starts listening or
// connecting and then blocks until the connection reaches ESTABLISHED or
// fails, exactly as a passive Open's caller needs to see a fully formed
// connection, not a bare listener id.
func (p *Protocol) Open(local, foreign types.FullAddress, active bool) (ID, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if local.Port == 0 {
		port, err := p.ports.PickEphemeralPort(func(port uint16) (bool, error) {
			cand := local
			cand.Port = port
			return !p.table.localInUse(cand), nil
		})
		if err != nil {
			return 0, err
		}
		local.Port = port
	} else if !active && p.table.localInUse(local) {
		return 0, types.ErrPortInUse
	}

	id, ok := p.table.alloc()
	if !ok {
		return 0, types.ErrResourceExhausted
	}
	pb := &p.table.slots[id]
	pb.active = active
	pb.local = local
	pb.foreign = foreign
	pb.startTime = now()
	pb.rcvWND = seqnum.Size(RecvBufferSize)

	if !active {
		pb.state = StateListen
		return p.waitForOpen(id)
	}

	p.setMSS(id, foreign.Addr)

	pb.iss = seqnum.Value(rand.Uint32())
	pb.sndUNA = pb.iss
	pb.sndNXT = pb.iss.Add(1)
	pb.sndWND = 0 // spec §9: zero-initialised until an ACK carries a real window
	pb.state = StateSynSent
	if err := p.tcpOutput(id, header.TCPFlagSyn, nil); err != nil {
		p.table.slots[id] = pcb{}
		return 0, types.ErrConnectionFailed
	}

	return p.waitForOpen(id)
}

// waitForOpen implements the state-polling loop spec §4.5 describes: sleep
// while the state hasn't moved on, then decide what the new state means. A
// passive open starts this loop in LISTEN; an active one starts it in
// SYN-SENT. Either way the only way out is ESTABLISHED or a closed PCB.
func (p *Protocol) waitForOpen(id ID) (ID, error) {
	for {
		pb := &p.table.slots[id]
		state0 := pb.state
		if state0 != StateListen && state0 != StateSynSent && state0 != StateSynReceived {
			break
		}
		for p.table.slots[id].state == state0 {
			if err := p.sleepOn(id); err != nil {
				p.table.slots[id].state = StateClosed
				p.table.release(id)
				return 0, err
			}
		}
	}

	switch p.table.slots[id].state {
	case StateEstablished:
		return id, nil
	default:
		err := closedReason(&p.table.slots[id])
		p.table.release(id)
		return 0, err
	}
}

// Close implements spec §4.5's close.
func (p *Protocol) Close(id ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.valid(id) {
		return types.ErrNoPCB
	}

	pb := &p.table.slots[id]
	switch pb.state {
	case StateEstablished:
		if err := p.tcpOutput(id, header.TCPFlagAck|header.TCPFlagFin, nil); err != nil {
			return types.ErrConnectionFailed
		}
		pb.sndNXT = pb.sndNXT.Add(1)
		pb.state = StateFinWait1
		pb.ctx.wake()
		return nil
	case StateCloseWait:
		if err := p.tcpOutput(id, header.TCPFlagAck|header.TCPFlagFin, nil); err != nil {
			return types.ErrConnectionFailed
		}
		pb.sndNXT = pb.sndNXT.Add(1)
		pb.state = StateLastAck
		pb.ctx.wake()
		return nil
	case StateClosed:
		// The state machine or a timer tore this connection down while
		// the caller still held its id; surface why.
		err := closedReason(pb)
		p.table.release(id)
		return err
	default:
		return types.ErrInvalidState
	}
}

// Send implements spec §4.5's send: it blocks while the peer's advertised
// window leaves no room, and reports however many bytes it managed to
// transfer before completing, hitting an error, or being interrupted.
func (p *Protocol) Send(id ID, data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.valid(id) {
		return 0, types.ErrNoPCB
	}

	pb := &p.table.slots[id]
	if pb.state != StateEstablished && pb.state != StateCloseWait {
		if pb.state == StateClosed {
			err := closedReason(pb)
			p.table.release(id)
			return 0, err
		}
		return 0, types.ErrInvalidState
	}

	mss := int(pb.mss)
	if mss <= 0 {
		mss = header.TCPMinimumSize // degrades gracefully if no iface mtu was set
	}

	sent := 0
	for sent < len(data) {
		pb = &p.table.slots[id]
		if pb.state != StateEstablished && pb.state != StateCloseWait {
			if pb.state == StateClosed {
				err := closedReason(pb)
				p.table.release(id)
				return sent, err
			}
			return sent, types.ErrInvalidState
		}

		window := int(pb.sndWND) - int(pb.sndUNA.Size(pb.sndNXT))
		if window <= 0 {
			if err := p.sleepOn(id); err != nil {
				return sent, err
			}
			continue
		}

		n := len(data) - sent
		if n > mss {
			n = mss
		}
		if n > window {
			n = window
		}

		chunk := data[sent : sent+n]
		if err := p.tcpOutput(id, header.TCPFlagAck|header.TCPFlagPsh, chunk); err != nil {
			return sent, types.ErrConnectionFailed
		}
		pb.sndNXT = pb.sndNXT.Add(seqnum.Size(n))
		sent += n
	}

	return sent, nil
}

// Receive implements spec §4.5's receive: it blocks while the receive
// buffer is empty, then copies out and compacts whatever has arrived. In
// CLOSE-WAIT it drains any residual data and finally reports EOF as
// (0, types.ErrPeerClosed) once the buffer is empty.
func (p *Protocol) Receive(id ID, out []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.valid(id) {
		return 0, types.ErrNoPCB
	}

	for {
		pb := &p.table.slots[id]
		if pb.state != StateEstablished && pb.state != StateCloseWait {
			if pb.state == StateClosed {
				err := closedReason(pb)
				p.table.release(id)
				return 0, err
			}
			return 0, types.ErrInvalidState
		}

		remain := pb.used()
		if remain == 0 {
			if pb.state == StateCloseWait {
				return 0, types.ErrPeerClosed
			}
			if err := p.sleepOn(id); err != nil {
				return 0, err
			}
			continue
		}

		n := len(out)
		if n > remain {
			n = remain
		}
		copy(out, pb.buf[:n])
		copy(pb.buf[:], pb.buf[n:remain])
		pb.rcvWND += seqnum.Size(n)
		return n, nil
	}
}
