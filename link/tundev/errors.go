package tundev

import (
	"syscall"

	"github.com/nullsock/tcpcore/types"
)

var translations = map[syscall.Errno]*types.Error{
	syscall.EEXIST:      types.ErrDuplicateAddress,
	syscall.ENETUNREACH: types.ErrNoRoute,
	syscall.EADDRINUSE:  types.ErrPortInUse,
}

// TranslateErrno translates an errno from the syscall package into a
// *types.Error. Errnos this driver doesn't expect to see are reported as
// ErrBadLinkEndpoint rather than panicking, since a misbehaving tun device
// shouldn't crash the stack above it.
func TranslateErrno(e syscall.Errno) error {
	if err, ok := translations[e]; ok {
		return err
	}

	return types.ErrBadLinkEndpoint
}
