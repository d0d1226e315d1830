package tcp

import (
	"testing"

	"github.com/nullsock/tcpcore/types"
)

func TestTableAllocExhaustion(t *testing.T) {
	var tbl table
	for i := 0; i < TableSize; i++ {
		if _, ok := tbl.alloc(); !ok {
			t.Fatalf("alloc failed at slot %d, want success", i)
		}
	}
	if _, ok := tbl.alloc(); ok {
		t.Fatal("alloc succeeded past table capacity")
	}
}

func TestTableLookupExactMatchWinsOverListen(t *testing.T) {
	var tbl table

	listenID, _ := tbl.alloc()
	tbl.slots[listenID].state = StateListen
	tbl.slots[listenID].local = types.FullAddress{Port: 80}

	connID, _ := tbl.alloc()
	tbl.slots[connID].state = StateEstablished
	tbl.slots[connID].local = types.FullAddress{Addr: "A", Port: 80}
	tbl.slots[connID].foreign = types.FullAddress{Addr: "B", Port: 9000}

	got, ok := tbl.lookup(types.FullAddress{Addr: "A", Port: 80}, types.FullAddress{Addr: "B", Port: 9000})
	if !ok || got != connID {
		t.Fatalf("lookup = (%v, %v), want (%v, true)", got, ok, connID)
	}
}

func TestTableLookupFallsBackToListen(t *testing.T) {
	var tbl table

	listenID, _ := tbl.alloc()
	tbl.slots[listenID].state = StateListen
	tbl.slots[listenID].local = types.FullAddress{Port: 80}

	got, ok := tbl.lookup(types.FullAddress{Addr: "A", Port: 80}, types.FullAddress{Addr: "C", Port: 12345})
	if !ok || got != listenID {
		t.Fatalf("lookup = (%v, %v), want (%v, true)", got, ok, listenID)
	}
}

func TestTableLookupNoMatch(t *testing.T) {
	var tbl table
	if _, ok := tbl.lookup(types.FullAddress{Port: 80}, types.FullAddress{Port: 9000}); ok {
		t.Fatal("lookup matched an empty table")
	}
}

func TestTableReleaseDefersWhileWaitersPending(t *testing.T) {
	var tbl table
	id, _ := tbl.alloc()
	tbl.slots[id].ctx.wc = 1

	if tbl.release(id) {
		t.Fatal("release succeeded with a waiter still pending")
	}
	if tbl.slots[id].state == StateFree {
		t.Fatal("release freed the slot despite a pending waiter")
	}
}

func TestTableReleaseReclaimsWithNoWaiters(t *testing.T) {
	var tbl table
	id, _ := tbl.alloc()

	if !tbl.release(id) {
		t.Fatal("release failed with no waiters pending")
	}
	if tbl.slots[id].state != StateFree {
		t.Fatalf("state = %v, want FREE", tbl.slots[id].state)
	}
}

func TestLocalMatchesWildcard(t *testing.T) {
	if !localMatches("", "10.0.0.1") {
		t.Error("wildcard local address should match anything")
	}
	if localMatches("10.0.0.1", "10.0.0.2") {
		t.Error("distinct concrete addresses should not match")
	}
}
