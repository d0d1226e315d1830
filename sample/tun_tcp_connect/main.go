package main

import (
	"bufio"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/nullsock/tcpcore/buffer"
	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/link/sniffer"
	"github.com/nullsock/tcpcore/link/tundev"
	"github.com/nullsock/tcpcore/stack"
	"github.com/nullsock/tcpcore/transport/tcp"
	"github.com/nullsock/tcpcore/types"
)

const nicId types.NicId = 1

// writer copies standard input to the connection until stdin is closed, then
// signals completion by closing done.
func writer(p *tcp.Protocol, id tcp.ID, done chan<- struct{}) {
	defer close(done)

	r := bufio.NewReader(os.Stdin)
	buf := buffer.NewView(1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := p.Send(id, buf[:n]); werr != nil {
				log.Printf("Send failed: %v", werr)
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				log.Printf("stdin read failed: %v", err)
			}
			return
		}
	}
}

func main() {
	if len(os.Args) != 6 {
		log.Fatalf("Usage: %s <tun-dev> <local-ipv4-address> <local-port> <remote-ipv4-address> <remote-port>", os.Args[0])
	}
	tunName := os.Args[1]
	addr := types.Address(net.ParseIP(os.Args[2]).To4())

	localPort, err := strconv.Atoi(os.Args[3])
	if err != nil {
		log.Fatalf("bad local port %q: %v", os.Args[3], err)
	}
	remotePort, err := strconv.Atoi(os.Args[5])
	if err != nil {
		log.Fatalf("bad remote port %q: %v", os.Args[5], err)
	}
	remote := types.FullAddress{
		Addr: types.Address(net.ParseIP(os.Args[4]).To4()),
		Port: uint16(remotePort),
	}

	// A tun device has no link-layer addressing, so there is no next hop to
	// resolve -- a nil resolver makes the stack skip ARP entirely.
	s := stack.New(nil)

	ep, err := tundev.New(tunName)
	if err != nil {
		log.Fatal(err)
	}
	if err := s.CreateNIC(nicId, sniffer.New(ep)); err != nil {
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

	id, err := p.Open(types.FullAddress{Port: uint16(localPort)}, remote, true)
	if err != nil {
		log.Fatalf("Open failed: %v", err)
	}
	log.Printf("connected")

	writeDone := make(chan struct{})
	go writer(p, id, writeDone)

	buf := buffer.NewView(1024)
	for {
		n, err := p.Receive(id, buf)
		if err == types.ErrPeerClosed {
			break // peer closed its side
		}
		if err != nil {
			log.Fatalf("Receive failed: %v", err)
		}
		os.Stdout.Write(buf[:n])
	}

	<-writeDone
	if err := p.Close(id); err != nil {
		log.Printf("Close failed: %v", err)
	}
}
