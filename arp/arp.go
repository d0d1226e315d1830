// Package arp specifies the contract this stack expects from an address
// resolver, plus a minimal cache-backed implementation of it. ARP itself
// (the wire protocol, its retry/timeout policy) is treated as an external
// collaborator: the rest of the stack only ever calls Resolve.
package arp

import (
	"errors"
	"sync"

	"github.com/nullsock/tcpcore/types"
)

// ErrIncomplete is returned by Resolve when no link address is cached for
// addr yet. A real resolver would have just sent a request and expects the
// caller to retry once the reply (delivered out of band) completes the
// entry; this package does not model that delivery path itself.
var ErrIncomplete = errors.New("address resolution pending")

// Resolver maps a network address to the link address of the next hop
// responsible for it.
type Resolver interface {
	// Resolve returns the link address for addr. If none is yet known,
	// it returns ErrIncomplete; the caller is expected to requeue the
	// datagram and try again later.
	Resolve(addr types.Address) (types.LinkAddress, error)

	// Add records a resolved mapping, as learned from an inbound ARP (or
	// equivalent) reply.
	Add(addr types.Address, linkAddr types.LinkAddress)
}

// maxEntries bounds the cache the same way the PCB table bounds
// connections: a fixed capacity with FIFO eviction rather than an
// unbounded map.
const maxEntries = 64

type entry struct {
	addr     types.Address
	linkAddr types.LinkAddress
}

// Cache is a minimal fixed-capacity Resolver. It never itself sends or
// receives ARP frames; entries are populated entirely through Add, which a
// caller wires up to however address resolution actually happens on a
// given link (broadcast ARP, a static table, a prior DHCP lease, etc).
type Cache struct {
	mu      sync.Mutex
	entries []entry
}

// NewCache creates an empty resolver cache.
func NewCache() *Cache {
	return &Cache{}
}

// Resolve implements Resolver.
func (c *Cache) Resolve(addr types.Address) (types.LinkAddress, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, e := range c.entries {
		if e.addr == addr {
			return e.linkAddr, nil
		}
	}
	return "", ErrIncomplete
}

// Add implements Resolver. The oldest entry is evicted once the cache is
// full.
func (c *Cache) Add(addr types.Address, linkAddr types.LinkAddress) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.addr == addr {
			c.entries[i].linkAddr = linkAddr
			return
		}
	}

	if len(c.entries) >= maxEntries {
		c.entries = c.entries[1:]
	}
	c.entries = append(c.entries, entry{addr: addr, linkAddr: linkAddr})
}
