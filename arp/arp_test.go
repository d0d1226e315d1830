package arp_test

import (
	"fmt"
	"testing"

	"github.com/nullsock/tcpcore/arp"
	"github.com/nullsock/tcpcore/types"
)

func TestResolveIncomplete(t *testing.T) {
	c := arp.NewCache()
	if _, err := c.Resolve(types.Address("\x0a\x00\x00\x01")); err != arp.ErrIncomplete {
		t.Errorf("Resolve returned %v, want ErrIncomplete", err)
	}
}

func TestAddThenResolve(t *testing.T) {
	c := arp.NewCache()
	addr := types.Address("\x0a\x00\x00\x01")
	link := types.LinkAddress("\x00\x00\x00\x00\x00\x01")

	c.Add(addr, link)
	got, err := c.Resolve(addr)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != link {
		t.Errorf("Resolve = %q, want %q", got, link)
	}
}

func TestAddUpdatesExistingEntry(t *testing.T) {
	c := arp.NewCache()
	addr := types.Address("\x0a\x00\x00\x01")
	old := types.LinkAddress("\x00\x00\x00\x00\x00\x01")
	new_ := types.LinkAddress("\x00\x00\x00\x00\x00\x02")

	c.Add(addr, old)
	c.Add(addr, new_)

	got, err := c.Resolve(addr)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got != new_ {
		t.Errorf("Resolve = %q, want %q", got, new_)
	}
}

func TestAddEvictsOldestWhenFull(t *testing.T) {
	c := arp.NewCache()
	for i := 0; i < 65; i++ {
		addr := types.Address(fmt.Sprintf("addr-%03d", i))
		c.Add(addr, types.LinkAddress("link"))
	}

	if _, err := c.Resolve(types.Address("addr-000")); err != arp.ErrIncomplete {
		t.Error("oldest entry was not evicted once the cache filled up")
	}
	if _, err := c.Resolve(types.Address("addr-064")); err != nil {
		t.Error("most recently added entry should still be resolvable")
	}
}
