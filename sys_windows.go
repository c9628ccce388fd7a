//go:build windows

package proccom

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

const platform = "windows"

// sysHandle is a Winsock SOCKET.
type sysHandle windows.Handle

const invalidHandle = sysHandle(windows.InvalidHandle)

// SOMAXCONN as defined by winsock2.h.
const maxListenBacklog = 0x7fffffff

// winsockVersion is MAKEWORD(2, 2).
const winsockVersion = uint32(2<<8 | 2)

// shutdown(2) directions from winsock2.h.
const (
	sdReceive = 0
	sdSend    = 1
	sdBoth    = 2
)

// x/sys/windows does not wrap accept(2).
var (
	modws2_32  = windows.NewLazySystemDLL("ws2_32.dll")
	procAccept = modws2_32.NewProc("accept")
)

func sysStartup() error {
	var data windows.WSAData
	return windows.WSAStartup(winsockVersion, &data)
}

func sysCleanup() {
	_ = windows.WSACleanup()
}

func sockaddr(a Address) *windows.SockaddrInet4 {
	return &windows.SockaddrInet4{Port: int(a.Port), Addr: a.IP}
}

func sysSocket() (sysHandle, error) {
	h, err := windows.Socket(windows.AF_INET, windows.SOCK_STREAM, windows.IPPROTO_TCP)
	if err != nil {
		return invalidHandle, err
	}
	return sysHandle(h), nil
}

func sysSetsockopt(fd sysHandle, opt sockOpt, value int) error {
	level, name := windows.SOL_SOCKET, 0
	switch opt {
	case optNoDelay:
		level, name = windows.IPPROTO_TCP, windows.TCP_NODELAY
	case optReuseAddr:
		name = windows.SO_REUSEADDR
	case optSendBuffer:
		name = windows.SO_SNDBUF
	case optReceiveBuffer:
		name = windows.SO_RCVBUF
	default:
		return wsaenoprotoopt
	}
	return windows.SetsockoptInt(windows.Handle(fd), level, name, value)
}

func sysBind(fd sysHandle, a Address) error {
	return windows.Bind(windows.Handle(fd), sockaddr(a))
}

func sysListen(fd sysHandle, backlog int) error {
	return windows.Listen(windows.Handle(fd), backlog)
}

func sysAccept(fd sysHandle) (sysHandle, Address, error) {
	var rsa windows.RawSockaddrInet4
	size := int32(unsafe.Sizeof(rsa))
	r, _, errno := procAccept.Call(
		uintptr(fd),
		uintptr(unsafe.Pointer(&rsa)),
		uintptr(unsafe.Pointer(&size)),
	)
	if windows.Handle(r) == windows.InvalidHandle {
		return invalidHandle, Address{}, errno
	}
	if rsa.Family != windows.AF_INET {
		windows.Closesocket(windows.Handle(r))
		return invalidHandle, Address{}, fmt.Errorf("%w: address family %d", errors.ErrUnsupported, rsa.Family)
	}
	port := binary.BigEndian.Uint16((*[2]byte)(unsafe.Pointer(&rsa.Port))[:])
	return sysHandle(r), Address{IP: rsa.Addr, Port: port}, nil
}

func sysConnect(fd sysHandle, a Address) error {
	return windows.Connect(windows.Handle(fd), sockaddr(a))
}

func sysSend(fd sysHandle, p []byte) (int, error) {
	buf := windows.WSABuf{Len: uint32(len(p)), Buf: &p[0]}
	var sent uint32
	if err := windows.WSASend(windows.Handle(fd), &buf, 1, &sent, 0, nil, nil); err != nil {
		return 0, err
	}
	return int(sent), nil
}

func sysRecv(fd sysHandle, p []byte) (int, error) {
	buf := windows.WSABuf{Len: uint32(len(p)), Buf: &p[0]}
	var received, flags uint32
	if err := windows.WSARecv(windows.Handle(fd), &buf, 1, &received, &flags, nil, nil); err != nil {
		return 0, err
	}
	return int(received), nil
}

func sysShutdown(fd sysHandle, how ShutdownType) error {
	var h int
	switch how {
	case ShutdownReceive:
		h = sdReceive
	case ShutdownSend:
		h = sdSend
	default:
		h = sdBoth
	}
	return windows.Shutdown(windows.Handle(fd), h)
}

func sysLocalAddr(fd sysHandle) (Address, error) {
	sa, err := windows.Getsockname(windows.Handle(fd))
	if err != nil {
		return Address{}, err
	}
	return fromSockaddr(sa)
}

func fromSockaddr(sa windows.Sockaddr) (Address, error) {
	if in4, ok := sa.(*windows.SockaddrInet4); ok {
		return Address{IP: in4.Addr, Port: uint16(in4.Port)}, nil
	}
	return Address{}, fmt.Errorf("%w: %T", errors.ErrUnsupported, sa)
}

func sysClose(fd sysHandle) error {
	return windows.Closesocket(windows.Handle(fd))
}

// Winsock error codes, from winerror.h.
const (
	wsaeintr           windows.Errno = 10004
	wsaebadf           windows.Errno = 10009
	wsaeacces          windows.Errno = 10013
	wsaefault          windows.Errno = 10014
	wsaeinval          windows.Errno = 10022
	wsaemfile          windows.Errno = 10024
	wsaewouldblock     windows.Errno = 10035
	wsaeinprogress     windows.Errno = 10036
	wsaealready        windows.Errno = 10037
	wsaenotsock        windows.Errno = 10038
	wsaedestaddrreq    windows.Errno = 10039
	wsaenoprotoopt     windows.Errno = 10042
	wsaeprotonosupport windows.Errno = 10043
	wsaeopnotsupp      windows.Errno = 10045
	wsaeafnosupport    windows.Errno = 10047
	wsaeaddrinuse      windows.Errno = 10048
	wsaeaddrnotavail   windows.Errno = 10049
	wsaenetdown        windows.Errno = 10050
	wsaenetunreach     windows.Errno = 10051
	wsaeconnaborted    windows.Errno = 10053
	wsaeconnreset      windows.Errno = 10054
	wsaenobufs         windows.Errno = 10055
	wsaeisconn         windows.Errno = 10056
	wsaenotconn        windows.Errno = 10057
	wsaeshutdown       windows.Errno = 10058
	wsaetimedout       windows.Errno = 10060
	wsaeconnrefused    windows.Errno = 10061
	wsaehostdown       windows.Errno = 10064
	wsaehostunreach    windows.Errno = 10065
	wsasysnotready     windows.Errno = 10091
	wsavernotsupported windows.Errno = 10092
	wsanotinitialised  windows.Errno = 10093
)

// mapErrno normalizes a Winsock error.
func mapErrno(err error) ErrorCode {
	var errno windows.Errno
	if !errors.As(err, &errno) {
		return CodeUnknown
	}
	switch errno {
	case wsaeacces:
		return CodeAccessDenied
	case wsaeaddrinuse:
		return CodeAddressInUse
	case wsaeaddrnotavail:
		return CodeAddressNotBindable
	case wsaeafnosupport, wsaeprotonosupport, wsaeopnotsupp, wsaenoprotoopt:
		return CodeNotSupported
	case wsaeinval, wsaefault, wsaedestaddrreq:
		return CodeInvalidArgument
	case wsaenobufs:
		return CodeOutOfMemory
	case wsaetimedout:
		return CodeTimeout
	case wsaewouldblock, wsaeinprogress, wsaealready, wsaeintr:
		return CodeWouldBlock
	case wsaeisconn, wsaenotconn, wsaeshutdown:
		return CodeInvalidState
	case wsaemfile:
		return CodeNewSocketLimit
	case wsaenetunreach, wsaehostunreach, wsaenetdown, wsaehostdown:
		return CodeRemoteUnreachable
	case wsaeconnrefused:
		return CodeConnectionRefused
	case wsaeconnreset:
		return CodeConnectionReset
	case wsaeconnaborted:
		return CodeConnectionAborted
	case wsaebadf, wsaenotsock:
		return CodeBadHandle
	case wsasysnotready, wsavernotsupported, wsanotinitialised:
		return CodeSubsystemUnavailable
	}
	return CodeUnknown
}
