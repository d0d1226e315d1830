package main

import (
	"log"
	"net"
	"os"
	"strings"

	"github.com/nullsock/tcpcore/buffer"
	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/link/tundev"
	"github.com/nullsock/tcpcore/stack"
	"github.com/nullsock/tcpcore/transport/tcp"
	"github.com/nullsock/tcpcore/types"
	"github.com/nullsock/tcpcore/waiter"
)

const (
	nicId     types.NicId = 1
	stackPort             = 12345
)

// echo reads whatever the peer sends on id and writes it straight back,
// until Receive reports EOF or an error.
func echo(p *tcp.Protocol, id tcp.ID) {
	waitEntry, _ := waiter.NewChannelEntry(nil)
	wq := p.Waiter(id)
	wq.EventRegister(&waitEntry, waiter.EventIn)
	defer wq.EventUnregister(&waitEntry)

	buf := buffer.NewView(1024)
	for {
		n, err := p.Receive(id, buf)
		if err == types.ErrPeerClosed {
			log.Printf("peer closed the connection")
			return
		}
		if err != nil {
			log.Printf("Receive failed: %v", err)
			return
		}
		log.Printf("read %d bytes", n)
		if _, err := p.Send(id, buf[:n]); err != nil {
			log.Printf("Send failed: %v", err)
			return
		}
	}
}

func main() {
	if len(os.Args) != 3 {
		log.Fatalf("Usage: %s <tun-device> <local-address>", os.Args[0])
	}
	tunName, address := os.Args[1], os.Args[2]

	parsed := net.ParseIP(address)
	if parsed == nil || parsed.To4() == nil {
		log.Fatalf("bad IPv4 address: %v", address)
	}
	addr := types.Address(parsed.To4())

	// A tun device has no link-layer addressing, so there is no next hop to
	// resolve -- a nil resolver makes the stack skip ARP entirely.
	s := stack.New(nil)

	ep, err := tundev.New(tunName)
	if err != nil {
		log.Fatal(err)
	}
	if err := s.CreateNIC(nicId, ep); err != nil {
		log.Fatal(err)
	}
	if err := s.AddAddress(nicId, addr); err != nil {
		log.Fatal(err)
	}
	s.SetRouteTable([]types.Route{
		{
			Destination: types.Address(strings.Repeat("\x00", len(addr))),
			Mask:        types.Address(strings.Repeat("\x00", len(addr))),
			Nic:         nicId,
		},
	})

	p := tcp.NewProtocol(s)
	s.RegisterTransportProtocol(header.TCPProtocolNumber, p)
	stop := p.StartTimers()
	defer stop()

	for {
		// Open blocks through the passive handshake, so by the time it
		// returns id is already ESTABLISHED.
		id, err := p.Open(types.FullAddress{Port: stackPort}, types.FullAddress{}, false)
		if err != nil {
			log.Printf("Open failed: %v", err)
			continue
		}

		echo(p, id)
	}
}
