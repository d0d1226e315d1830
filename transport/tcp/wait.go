package tcp

import (
	"github.com/nullsock/tcpcore/sleep"
	"github.com/nullsock/tcpcore/types"
)

// waitContext is the per-PCB rendezvous point spec §5 describes: a
// condition-variable-like primitive, a waiter count, and an interrupted
// flag. Every field is only ever touched while the Protocol's global lock
// is held, except during the blocking Fetch call inside sleep itself --
// which is precisely why the lock must be released around it.
type waitContext struct {
	waiters     []*sleep.Waker
	wc          int
	interrupted bool
}

func (c *waitContext) addWaiter(w *sleep.Waker) {
	c.waiters = append(c.waiters, w)
	c.wc++
}

func (c *waitContext) removeWaiter(w *sleep.Waker) {
	for i, cw := range c.waiters {
		if cw == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			break
		}
	}
	c.wc--
}

// wake broadcasts to every caller currently asleep on this PCB.
func (c *waitContext) wake() {
	for _, w := range c.waiters {
		w.Assert()
	}
}

// interrupt implements the process-wide cancellation event from spec §5:
// it marks every waiter as interrupted and wakes them all.
func (c *waitContext) interrupt() {
	c.interrupted = true
	c.wake()
}

// sleep blocks the calling goroutine on the given PCB's wait context,
// atomically releasing the Protocol's global lock for the duration and
// reacquiring it before returning, exactly as spec §5 requires. It reports
// ErrInterrupted if the process-wide cancellation event fired while
// waiting.
func (p *Protocol) sleepOn(id ID) error {
	pb := &p.table.slots[id]

	var w sleep.Waker
	var s sleep.Sleeper
	s.AddWaker(&w, 0)
	pb.ctx.addWaiter(&w)

	p.mu.Unlock()
	s.Fetch(true)
	p.mu.Lock()

	pb.ctx.removeWaiter(&w)
	if pb.ctx.interrupted {
		if pb.ctx.wc == 0 {
			pb.ctx.interrupted = false
		}
		return types.ErrInterrupted
	}
	return nil
}
