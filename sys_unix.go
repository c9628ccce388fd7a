//go:build unix

package proccom

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

const platform = "unix"

// sysHandle is a file descriptor.
type sysHandle int

const invalidHandle sysHandle = -1

const maxListenBacklog = unix.SOMAXCONN

func sysStartup() error { return nil }

func sysCleanup() {}

func sockaddr(a Address) *unix.SockaddrInet4 {
	return &unix.SockaddrInet4{Port: int(a.Port), Addr: a.IP}
}

func sysSocket() (sysHandle, error) {
	// SOCK_CLOEXEC is not available on every unix, so set it afterwards.
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return invalidHandle, err
	}
	unix.CloseOnExec(fd)
	return sysHandle(fd), nil
}

func sysSetsockopt(fd sysHandle, opt sockOpt, value int) error {
	level, name := unix.SOL_SOCKET, 0
	switch opt {
	case optNoDelay:
		level, name = unix.IPPROTO_TCP, unix.TCP_NODELAY
	case optReuseAddr:
		name = unix.SO_REUSEADDR
	case optSendBuffer:
		name = unix.SO_SNDBUF
	case optReceiveBuffer:
		name = unix.SO_RCVBUF
	default:
		return unix.ENOPROTOOPT
	}
	return unix.SetsockoptInt(int(fd), level, name, value)
}

func sysBind(fd sysHandle, a Address) error {
	return unix.Bind(int(fd), sockaddr(a))
}

func sysListen(fd sysHandle, backlog int) error {
	return unix.Listen(int(fd), backlog)
}

func sysAccept(fd sysHandle) (sysHandle, Address, error) {
	for {
		nfd, sa, err := unix.Accept(int(fd))
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return invalidHandle, Address{}, err
		}
		unix.CloseOnExec(nfd)
		peer, err := fromSockaddr(sa)
		if err != nil {
			unix.Close(nfd)
			return invalidHandle, Address{}, err
		}
		return sysHandle(nfd), peer, nil
	}
}

func sysConnect(fd sysHandle, a Address) error {
	err := unix.Connect(int(fd), sockaddr(a))
	if !errors.Is(err, unix.EINTR) {
		return err
	}
	// An interrupted connect keeps going in the kernel; reissuing it would
	// fail with EALREADY. Wait for the handshake to finish instead.
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err = unix.Poll(pfd, -1)
		if !errors.Is(err, unix.EINTR) {
			break
		}
	}
	if err != nil {
		return err
	}
	soerr, err := unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soerr != 0 {
		return unix.Errno(soerr)
	}
	return nil
}

func sysSend(fd sysHandle, p []byte) (int, error) {
	for {
		n, err := unix.Write(int(fd), p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

func sysRecv(fd sysHandle, p []byte) (int, error) {
	for {
		n, err := unix.Read(int(fd), p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return n, nil
	}
}

func sysShutdown(fd sysHandle, how ShutdownType) error {
	var h int
	switch how {
	case ShutdownReceive:
		h = unix.SHUT_RD
	case ShutdownSend:
		h = unix.SHUT_WR
	default:
		h = unix.SHUT_RDWR
	}
	return unix.Shutdown(int(fd), h)
}

func sysLocalAddr(fd sysHandle) (Address, error) {
	sa, err := unix.Getsockname(int(fd))
	if err != nil {
		return Address{}, err
	}
	return fromSockaddr(sa)
}

func sysClose(fd sysHandle) error {
	return unix.Close(int(fd))
}

func fromSockaddr(sa unix.Sockaddr) (Address, error) {
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		return Address{IP: in4.Addr, Port: uint16(in4.Port)}, nil
	}
	return Address{}, fmt.Errorf("%w: %T", errors.ErrUnsupported, sa)
}

// mapErrno normalizes a unix errno.
func mapErrno(err error) ErrorCode {
	var errno unix.Errno
	if !errors.As(err, &errno) {
		return CodeUnknown
	}
	switch errno {
	case unix.EACCES, unix.EPERM:
		return CodeAccessDenied
	case unix.EADDRINUSE:
		return CodeAddressInUse
	case unix.EADDRNOTAVAIL:
		return CodeAddressNotBindable
	case unix.EAFNOSUPPORT, unix.EPROTONOSUPPORT, unix.EOPNOTSUPP, unix.ENOPROTOOPT:
		return CodeNotSupported
	case unix.EINVAL, unix.EFAULT, unix.EDESTADDRREQ:
		return CodeInvalidArgument
	case unix.ENOBUFS, unix.ENOMEM:
		return CodeOutOfMemory
	case unix.ETIMEDOUT:
		return CodeTimeout
	case unix.EAGAIN, unix.EINPROGRESS, unix.EALREADY:
		return CodeWouldBlock
	case unix.EISCONN, unix.ENOTCONN:
		return CodeInvalidState
	case unix.ENFILE, unix.EMFILE:
		return CodeNewSocketLimit
	case unix.ENETUNREACH, unix.EHOSTUNREACH, unix.ENETDOWN, unix.EHOSTDOWN:
		return CodeRemoteUnreachable
	case unix.ECONNREFUSED:
		return CodeConnectionRefused
	case unix.ECONNRESET:
		return CodeConnectionReset
	case unix.ECONNABORTED:
		return CodeConnectionAborted
	case unix.EPIPE:
		return CodeBrokenPipe
	case unix.EBADF, unix.ENOTSOCK:
		return CodeBadHandle
	}
	return CodeUnknown
}
