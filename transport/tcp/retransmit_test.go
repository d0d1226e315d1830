package tcp

import (
	"testing"
	"time"

	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/seqnum"
)

func TestRetransmitQueueCleanupPopsAckedEntries(t *testing.T) {
	var q retransmitQueue
	base := time.Now()

	q.add(100, header.TCPFlagAck, []byte("abc"), base)
	q.add(103, header.TCPFlagAck, []byte("de"), base)
	q.add(105, header.TCPFlagAck|header.TCPFlagFin, nil, base)

	q.cleanup(105)
	if len(q.entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(q.entries))
	}
	if q.entries[0].seq != 105 {
		t.Errorf("remaining entry seq = %d, want 105", q.entries[0].seq)
	}
}

func TestRetransmitQueueCleanupNoneAcked(t *testing.T) {
	var q retransmitQueue
	base := time.Now()
	q.add(100, header.TCPFlagAck, []byte("abc"), base)

	q.cleanup(100)
	if len(q.entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1 (una hasn't advanced past the entry)", len(q.entries))
	}
}

func TestRetransmitQueueDiscardClearsEverything(t *testing.T) {
	var q retransmitQueue
	base := time.Now()
	q.add(100, header.TCPFlagAck, []byte("abc"), base)
	q.add(103, header.TCPFlagAck, []byte("de"), base)

	q.discard()
	if len(q.entries) != 0 {
		t.Fatalf("len(entries) = %d, want 0 after discard", len(q.entries))
	}
}

func TestRetransmitEntryConsumedCountsSynFin(t *testing.T) {
	e := retransmitEntry{seq: 0, flags: header.TCPFlagSyn, data: nil}
	if got := e.consumed(); got != 1 {
		t.Errorf("consumed() for bare SYN = %d, want 1", got)
	}

	e = retransmitEntry{seq: 0, flags: header.TCPFlagAck | header.TCPFlagFin, data: []byte("hi")}
	if got := e.consumed(); got != 3 {
		t.Errorf("consumed() for 2-byte FIN segment = %d, want 3", got)
	}
}

func TestRetransmitEntryEndWrapsOnSequenceRing(t *testing.T) {
	e := retransmitEntry{seq: seqnum.Value(0xfffffffe), flags: 0, data: []byte("abc")}
	if got, want := e.end(), seqnum.Value(1); got != want {
		t.Errorf("end() = %d, want %d (wrapped)", got, want)
	}
}
