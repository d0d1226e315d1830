// Package stack provides the glue between the link, network, and transport
// layers: NIC registration, the route table, and the demux that hands each
// inbound datagram to its registered transport protocol.
package stack

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/nullsock/tcpcore/arp"
	"github.com/nullsock/tcpcore/network/ipv4"
	"github.com/nullsock/tcpcore/types"
)

// NIC couples a link endpoint with the local address the stack has assigned
// it.
type NIC struct {
	id   types.NicId
	ep   types.LinkEndpoint
	addr types.Address
}

// Stack is a minimal networking stack: one or more NICs, a route table used
// for longest-prefix-match egress selection, and the transport protocols
// registered to receive inbound datagrams.
type Stack struct {
	mu sync.RWMutex

	nics   map[types.NicId]*NIC
	routes []types.Route

	transport map[types.TransportProtocolNumber]types.TransportHandler
	resolver  arp.Resolver

	idgen int32 // datagram identification counter, bumped per outbound packet
}

// New creates an empty stack. resolver supplies the link addresses used to
// frame outbound datagrams; the stack never speaks ARP itself (spec §6).
func New(resolver arp.Resolver) *Stack {
	return &Stack{
		nics:      make(map[types.NicId]*NIC),
		transport: make(map[types.TransportProtocolNumber]types.TransportHandler),
		resolver:  resolver,
	}
}

// CreateNIC registers ep under id and attaches the stack as its dispatcher.
func (s *Stack) CreateNIC(id types.NicId, ep types.LinkEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nics[id]; ok {
		return types.ErrDuplicateNicId
	}
	n := &NIC{id: id, ep: ep}
	s.nics[id] = n
	ep.Attach(s)
	return nil
}

// AddAddress assigns addr as the local IPv4 address of the NIC identified by
// id.
func (s *Stack) AddAddress(id types.NicId, addr types.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nics[id]
	if !ok {
		return types.ErrUnknownNicId
	}
	n.addr = addr
	return nil
}

// SetRouteTable replaces the stack's route table wholesale. Entries are
// matched by longest prefix, so callers need not pre-sort them.
func (s *Stack) SetRouteTable(routes []types.Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = routes
}

// RegisterTransportProtocol registers handler to receive every inbound
// datagram carrying proto, the way spec §6 describes TCP being handed up
// from IP.
func (s *Stack) RegisterTransportProtocol(proto types.TransportProtocolNumber, handler types.TransportHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transport[proto] = handler
}

// route finds the most specific route whose destination covers dst, and the
// NIC it egresses through.
func (s *Stack) route(dst types.Address) (*types.Route, *NIC, bool) {
	var best *types.Route
	for i := range s.routes {
		r := &s.routes[i]
		if !r.Match(dst) {
			continue
		}
		if best == nil || r.Prefix() > best.Prefix() {
			best = r
		}
	}
	if best == nil {
		return nil, nil, false
	}
	n, ok := s.nics[best.Nic]
	if !ok {
		return nil, nil, false
	}
	return best, n, true
}

// DeliverNetworkPacket implements types.NetworkDispatcher: it is invoked by
// a LinkEndpoint for every frame it receives, already stripped of any link
// framing.
func (s *Stack) DeliverNetworkPacket(ep types.LinkEndpoint, remote types.LinkAddress, payload []byte) {
	h, body, err := ipv4.Parse(payload)
	if err != nil {
		log.Printf("stack: dropped inbound datagram: %v", err)
		return
	}

	if s.resolver != nil {
		s.resolver.Add(h.SourceAddress(), remote)
	}

	s.mu.RLock()
	handler, ok := s.transport[h.TransportProtocol()]
	s.mu.RUnlock()
	if !ok {
		log.Printf("stack: no handler for transport protocol %d", h.TransportProtocol())
		return
	}

	handler.HandleSegment(body, h.SourceAddress(), h.DestinationAddress(), s.nicFor(ep))
}

func (s *Stack) nicFor(ep types.LinkEndpoint) types.NicId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for id, n := range s.nics {
		if n.ep == ep {
			return id
		}
	}
	return 0
}

// Output implements transport/tcp's IPSender: it wraps payload in an IPv4
// datagram addressed from the egress NIC's local address to dst, resolves
// dst's link address, and writes the frame.
func (s *Stack) Output(proto types.TransportProtocolNumber, payload []byte, src, dst types.Address) error {
	s.mu.RLock()
	_, n, ok := s.route(dst)
	s.mu.RUnlock()
	if !ok {
		return types.ErrNoRoute
	}

	if src == "" {
		src = n.addr
	}

	linkAddr, err := s.resolveLinkAddr(dst)
	if err == arp.ErrIncomplete {
		// Resolution is pending: the datagram is dropped without an error,
		// and the transport's retransmission covers the loss.
		return nil
	}
	if err != nil {
		return err
	}

	id := uint16(atomic.AddInt32(&s.idgen, 1))
	datagram := ipv4.Encode(proto, id, src, dst, payload)
	return n.ep.WritePacket(linkAddr, datagram)
}

func (s *Stack) resolveLinkAddr(dst types.Address) (types.LinkAddress, error) {
	if s.resolver == nil {
		return "", nil
	}
	return s.resolver.Resolve(dst)
}

// MTU implements transport/tcp's IPSender: it reports the MTU of the NIC
// that would carry traffic to dst, so TCP can size its MSS.
func (s *Stack) MTU(dst types.Address) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, n, ok := s.route(dst)
	if !ok {
		return 0, types.ErrNoRoute
	}
	return n.ep.MTU(), nil
}
