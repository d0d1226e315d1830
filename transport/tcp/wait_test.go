package tcp

import (
	"testing"
	"time"

	"github.com/nullsock/tcpcore/sleep"
)

func TestWaitContextAddRemoveTracksCount(t *testing.T) {
	var c waitContext
	var w1, w2 sleep.Waker

	c.addWaiter(&w1)
	c.addWaiter(&w2)
	if c.wc != 2 {
		t.Fatalf("wc = %d, want 2", c.wc)
	}

	c.removeWaiter(&w1)
	if c.wc != 1 {
		t.Fatalf("wc = %d, want 1", c.wc)
	}
	if len(c.waiters) != 1 || c.waiters[0] != &w2 {
		t.Fatalf("waiters = %v, want only w2", c.waiters)
	}
}

func TestWaitContextWakeAssertsEveryWaiter(t *testing.T) {
	var c waitContext
	var w1, w2 sleep.Waker
	c.addWaiter(&w1)
	c.addWaiter(&w2)

	c.wake()

	if !w1.IsAsserted() {
		t.Error("w1 not asserted after wake")
	}
	if !w2.IsAsserted() {
		t.Error("w2 not asserted after wake")
	}
}

func TestWaitContextInterruptSetsFlagAndWakes(t *testing.T) {
	var c waitContext
	var w sleep.Waker
	c.addWaiter(&w)

	c.interrupt()

	if !c.interrupted {
		t.Error("interrupt did not set interrupted")
	}
	if !w.IsAsserted() {
		t.Error("interrupt did not wake pending waiters")
	}
}

// sleepOn itself is exercised indirectly by every blocking Send/Receive test
// in commands_test.go; this checks only the waiter-count bookkeeping that
// table.release depends on to decide whether a PCB is safe to reclaim, plus
// the lock-release-and-reacquire contract around the blocking Fetch call.
func TestSleepOnRegistersAndUnregistersWaiter(t *testing.T) {
	p := NewProtocol(nil)
	id, ok := p.table.alloc()
	if !ok {
		t.Fatal("alloc failed")
	}
	pb := &p.table.slots[id]
	pb.state = StateEstablished

	done := make(chan error, 1)
	p.mu.Lock()
	go func() {
		done <- p.sleepOn(id)
	}()

	// sleepOn registers its waiter and releases p.mu before blocking in
	// Fetch; once it does, this Lock call succeeds.
	p.mu.Lock()
	if pb.ctx.wc != 1 {
		t.Fatalf("wc = %d while sleepOn is blocked, want 1", pb.ctx.wc)
	}
	pb.ctx.wake()
	p.mu.Unlock()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("sleepOn returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sleepOn never woke up")
	}

	if pb.ctx.wc != 0 {
		t.Fatalf("wc = %d after sleepOn returned, want 0", pb.ctx.wc)
	}
	if len(pb.ctx.waiters) != 0 {
		t.Fatalf("waiters = %v, want empty", pb.ctx.waiters)
	}
}
