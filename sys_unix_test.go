//go:build unix

package proccom

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestMapErrno(t *testing.T) {
	cases := map[unix.Errno]ErrorCode{
		unix.EACCES:       CodeAccessDenied,
		unix.EPERM:        CodeAccessDenied,
		unix.EADDRINUSE:   CodeAddressInUse,
		unix.ECONNREFUSED: CodeConnectionRefused,
		unix.ECONNRESET:   CodeConnectionReset,
		unix.ETIMEDOUT:    CodeTimeout,
		unix.EMFILE:       CodeNewSocketLimit,
		unix.ENETUNREACH:  CodeRemoteUnreachable,
		unix.EPIPE:        CodeBrokenPipe,
		unix.EBADF:        CodeBadHandle,
		unix.ENOTCONN:     CodeInvalidState,
		unix.ENOENT:       CodeUnknown,
	}
	for errno, want := range cases {
		assert.Equal(t, want, mapErrno(errno), errno.Error())
		// Wrapped errnos normalize the same way.
		assert.Equal(t, want, mapErrno(fmt.Errorf("op: %w", errno)), errno.Error())
	}
}

func TestBindErrorCarriesErrno(t *testing.T) {
	initSubsystem(t)

	_, port := listenLoopback(t)
	other, err := Create("127.0.0.1", port)
	require.NoError(t, err)
	defer other.Close()

	err = other.Bind()
	require.ErrorIs(t, err, unix.EADDRINUSE)
	require.ErrorIs(t, err, ErrBind)
}

func TestInitializeNeverFailsOnUnix(t *testing.T) {
	require.NoError(t, sysStartup())
	sysCleanup()
}

func TestFromSockaddrRejectsNonIPv4(t *testing.T) {
	a, err := fromSockaddr(&unix.SockaddrInet4{Port: 8080, Addr: [4]byte{10, 0, 0, 1}})
	require.NoError(t, err)
	require.Equal(t, Address{IP: [4]byte{10, 0, 0, 1}, Port: 8080}, a)

	_, err = fromSockaddr(&unix.SockaddrInet6{Port: 8080})
	require.ErrorIs(t, err, errors.ErrUnsupported)
	require.Equal(t, CodeNotSupported, mapOsError(err))

	_, err = fromSockaddr(&unix.SockaddrUnix{Name: "/tmp/x.sock"})
	require.ErrorIs(t, err, errors.ErrUnsupported)
}

func TestInitializeMapsStartupErrno(t *testing.T) {
	stubStartup(t, func() error { return unix.EACCES })

	err := Initialize()
	require.ErrorIs(t, err, ErrInit)
	require.ErrorIs(t, err, unix.EACCES)
	require.Equal(t, CodeAccessDenied, CodeOf(err))
	require.False(t, Initialized())
}
