package header

import (
	"github.com/nullsock/tcpcore/types"
)

const (
	// IPv4ProtocolNumber is IPv4's network protocol number.
	IPv4ProtocolNumber types.NetworkProtocolNumber = 0x0800
)
