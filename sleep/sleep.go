// Package sleep allows goroutines to efficiently sleep on multiple sources
// of notifications (wakers). It offers O(1) complexity per wake source,
// which is different from multi-channel selects (O(n) in the number of
// channels).
//
// It is similar to edge-triggered epoll waits, where the caller registers
// each object of interest once, and then can repeatedly wait on all of
// them.
//
// A Waker object is used to wake a sleeping goroutine up, or prevent it
// from going to sleep next. A Sleeper object is used to receive
// notifications from wakers, and if no notification is available, to
// optionally block until one becomes available.
//
// A Waker can be associated with at most one Sleeper at a time, but a
// Sleeper can be associated with multiple Wakers. Only one goroutine is
// allowed to call Fetch on a given Sleeper at a time.
//
// Sleeper objects are expected to be used as follows, with just one
// goroutine executing this code:
//
//	s := sleep.Sleeper{}
//	s.AddWaker(&w1, constant1)
//	s.AddWaker(&w2, constant2)
//
//	for {
//		switch id, _ := s.Fetch(true); id {
//		case constant1:
//			// Do work triggered by w1 being asserted.
//		case constant2:
//			// Do work triggered by w2 being asserted.
//		}
//	}
//
// Notifications are edge-triggered: if a Waker calls Assert() several
// times before the sleeper gets a chance to wake up, it is only reported
// once, and the caller is expected to drain all pending work before
// sleeping again.
package sleep

import "sync"

// Sleeper lets a goroutine block waiting for one of several associated
// Wakers to be asserted, without the O(n) cost of a multi-case select.
type Sleeper struct {
	mu     sync.Mutex
	queue  []*Waker
	notify chan struct{}
	done   bool
}

// AddWaker associates w with s. id is the value Fetch returns when woken
// by w. If w is already asserted at the time it is added, it is queued
// immediately so the first Fetch call sees it.
func (s *Sleeper) AddWaker(w *Waker, id int) {
	w.mu.Lock()
	w.id = id
	w.s = s
	already := w.asserted
	w.mu.Unlock()

	if already {
		s.enqueue(w)
	}
}

// Fetch returns the id of the next asserted waker. If none is immediately
// available and block is true, Fetch blocks until one becomes available;
// if block is false, it returns ok=false instead of blocking.
//
// Fetch is not safe to call concurrently with itself: only one goroutine
// at a time may wait on a given Sleeper.
func (s *Sleeper) Fetch(block bool) (id int, ok bool) {
	for {
		s.mu.Lock()
		for len(s.queue) > 0 {
			w := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			if id, ok := w.consume(s); ok {
				return id, true
			}
			s.mu.Lock()
		}

		if !block {
			s.mu.Unlock()
			return -1, false
		}

		if s.notify == nil {
			s.notify = make(chan struct{}, 1)
		}
		ch := s.notify
		s.mu.Unlock()

		<-ch
	}
}

// Done indicates the caller is finished with this Sleeper. Wakers that
// assert themselves afterwards are silently dropped rather than queued.
func (s *Sleeper) Done() {
	s.mu.Lock()
	s.done = true
	s.queue = nil
	s.mu.Unlock()
}

// enqueue adds w to the ready list and wakes a goroutine blocked in Fetch,
// if any.
func (s *Sleeper) enqueue(w *Waker) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, w)
	if s.notify == nil {
		s.notify = make(chan struct{}, 1)
	}
	ch := s.notify
	s.mu.Unlock()

	select {
	case ch <- struct{}{}:
	default:
	}
}

// Waker is a source of wake-up notifications for a Sleeper. It is
// associated with at most one Sleeper at a time and is, at any point,
// either asserted or not. It is safe to call a Waker's methods
// concurrently from multiple goroutines.
type Waker struct {
	mu       sync.Mutex
	s        *Sleeper
	asserted bool
	id       int
}

// Assert moves w to the asserted state, if it isn't already, and wakes its
// associated sleeper.
func (w *Waker) Assert() {
	w.mu.Lock()
	if w.asserted {
		w.mu.Unlock()
		return
	}
	w.asserted = true
	s := w.s
	w.mu.Unlock()

	if s != nil {
		s.enqueue(w)
	}
}

// Clear moves w to the non-asserted state and reports whether it was
// asserted before being cleared. A cleared waker that is already queued in
// its sleeper is skipped rather than removed from the queue.
func (w *Waker) Clear() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	was := w.asserted
	w.asserted = false
	return was
}

// IsAsserted reports whether w is currently asserted.
func (w *Waker) IsAsserted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.asserted
}

// consume is called by a Sleeper when dequeuing w. It reports whether w
// was still asserted, clearing it either way, and reassociates w with s so
// it may be asserted again.
func (w *Waker) consume(s *Sleeper) (id int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	was := w.asserted
	w.asserted = false
	w.s = s
	if was {
		return w.id, true
	}
	return 0, false
}
