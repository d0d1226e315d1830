// Package tundev implements a link-layer endpoint backed by a Linux TUN
// device. It is the "tap" driver: frames written to it go out over a real
// point-to-point IP interface, and frames read from it are delivered up
// into the stack.
package tundev

import (
	"log"
	"syscall"
	"unsafe"

	"github.com/nullsock/tcpcore/header"
	"github.com/nullsock/tcpcore/types"
)

// blockingPoll waits in a ppoll() syscall until one of the nfds pollfd
// structures at fds is ready. A negative timeout (in milliseconds) waits
// indefinitely.
func blockingPoll(fds unsafe.Pointer, nfds int, timeout int64) (n int, err syscall.Errno) {
	var ts *syscall.Timespec
	if timeout >= 0 {
		t := syscall.NsecToTimespec(timeout * 1e6)
		ts = &t
	}
	r, _, e := syscall.Syscall6(syscall.SYS_PPOLL, uintptr(fds), uintptr(nfds), uintptr(unsafe.Pointer(ts)), 0, 0, 0)
	return int(r), e
}

// readBufferSize is the size of the buffer used to read one packet off the
// tun device.
const readBufferSize = 1500

type endpoint struct {
	// fd is the file descriptor used to send and receive packets
	fd int

	// mtu (maximum transmission unit) is the maximum size of a packet
	mtu uint32
}

// MTU implements types.LinkEndpoint.MTU.
func (e *endpoint) MTU() uint32 {
	return e.mtu
}

// LinkAddress implements types.LinkEndpoint.LinkAddress. A tun device has
// no link-layer address of its own.
func (e *endpoint) LinkAddress() types.LinkAddress {
	return ""
}

// WritePacket writes an outbound packet to the file descriptor. If it is
// not writable right now, the write fails and the caller drops the packet.
func (e *endpoint) WritePacket(_ types.LinkAddress, payload []byte) error {
	return NonBlockingWrite(e.fd, payload)
}

// Attach launches the goroutine that reads packets from the file
// descriptor and dispatches them via the provided dispatcher.
func (e *endpoint) Attach(dispatcher types.NetworkDispatcher) {
	go e.dispatchLoop(dispatcher)
}

// dispatchLoop reads packets from the file descriptor in a loop and
// dispatches them to the network stack.
func (e *endpoint) dispatchLoop(d types.NetworkDispatcher) {
	for {
		ok, err := e.dispatch(d)
		if err != nil || !ok {
			return
		}
	}
}

// dispatch reads one packet from the file descriptor and dispatches it.
func (e *endpoint) dispatch(d types.NetworkDispatcher) (bool, error) {
	buf := make([]byte, readBufferSize)

	n, err := blockingRead(e.fd, buf)
	if err != nil {
		return false, err
	}

	if n <= 0 {
		return false, nil
	}

	buf = buf[:n]

	// The tun device gives no out-of-band indication of the packet's
	// network protocol. This driver only ever carries IPv4.
	if header.IPVersion(buf) != header.IPv4Version {
		log.Printf("tundev: dropped non-IPv4 packet")
		return true, nil
	}

	d.DeliverNetworkPacket(e, "", buf)

	return true, nil
}

// blockingRead reads from a file descriptor that is set up as non-blocking,
// blocking in a poll() syscall until the descriptor becomes readable.
func blockingRead(fd int, buf []byte) (int, error) {
	for {
		n, _, e := syscall.RawSyscall(syscall.SYS_READ, uintptr(fd), uintptr(unsafe.Pointer(&buf[0])), uintptr(len(buf)))
		if e == 0 {
			return int(n), nil
		}

		event := struct {
			fd      uint32
			events  int16
			revents int16
		}{
			fd:     uint32(fd),
			events: 1, // POLLIN
		}

		_, e = blockingPoll(unsafe.Pointer(&event), 1, -1)
		if e != 0 && e != syscall.EINTR {
			return 0, TranslateErrno(e)
		}
	}
}

// NonBlockingWrite writes the given buffer to a file descriptor. It fails
// if partial data is written.
func NonBlockingWrite(fd int, buf []byte) error {
	var ptr unsafe.Pointer
	if len(buf) > 0 {
		ptr = unsafe.Pointer(&buf[0])
	}

	_, _, e := syscall.RawSyscall(syscall.SYS_WRITE, uintptr(fd), uintptr(ptr), uintptr(len(buf)))
	if e != 0 {
		return TranslateErrno(e)
	}

	return nil
}

// getmtu determines the MTU of a network interface device.
func getmtu(name string) (uint32, error) {
	fd, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_DGRAM, 0)
	if err != nil {
		return 0, err
	}
	defer syscall.Close(fd)

	var ifreq struct {
		name [16]byte
		mtu  int32
		_    [20]byte
	}

	copy(ifreq.name[:], name)
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), syscall.SIOCGIFMTU, uintptr(unsafe.Pointer(&ifreq)))
	if errno != 0 {
		return 0, errno
	}

	return uint32(ifreq.mtu), nil
}

// open opens the specified tun device and returns its file descriptor.
func open(name string) (int, error) {
	fd, err := syscall.Open("/dev/net/tun", syscall.O_RDWR, 0)
	if err != nil {
		return -1, err
	}

	var ifreq struct {
		name  [16]byte
		flags uint16
		_     [22]byte
	}

	copy(ifreq.name[:], name)
	ifreq.flags = syscall.IFF_TUN | syscall.IFF_NO_PI
	_, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), syscall.TUNSETIFF, uintptr(unsafe.Pointer(&ifreq)))
	if errno != 0 {
		syscall.Close(fd)
		return -1, errno
	}

	return fd, nil
}

// New creates a new tun-based link endpoint for the named device.
func New(tunName string) (types.LinkEndpoint, error) {
	mtu, err := getmtu(tunName)
	if err != nil {
		return nil, err
	}

	fd, err := open(tunName)
	if err != nil {
		return nil, err
	}

	if err := syscall.SetNonblock(fd, true); err != nil {
		return nil, err
	}

	return &endpoint{fd: fd, mtu: mtu}, nil
}
