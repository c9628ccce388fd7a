package proccom

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// initSubsystem starts the subsystem for one test.
func initSubsystem(t *testing.T) {
	t.Helper()
	require.NoError(t, Initialize())
	t.Cleanup(Shutdown)
}

// listenLoopback returns a listening socket on 127.0.0.1 with a kernel-chosen
// port, and that port.
func listenLoopback(t *testing.T, opts ...Option) (*Socket, int) {
	t.Helper()
	srv, err := Create("127.0.0.1", 0, opts...)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	require.NoError(t, srv.Bind())
	require.NoError(t, srv.Listen(0))

	local, err := srv.LocalAddr()
	require.NoError(t, err)
	require.NotZero(t, local.Port)
	return srv, int(local.Port)
}

// dialLoopback connects a new client to port and returns it together with
// the server side of the connection.
func dialLoopback(t *testing.T, srv *Socket, port int, opts ...Option) (client, conn *Socket) {
	t.Helper()

	var (
		wg        sync.WaitGroup
		acceptErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		conn, acceptErr = srv.Accept()
	}()

	client, err := Create("127.0.0.1", port, opts...)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	require.NoError(t, client.Connect())

	wg.Wait()
	require.NoError(t, acceptErr)
	t.Cleanup(conn.Close)
	return client, conn
}

func TestPingPong(t *testing.T) {
	initSubsystem(t)

	srv, port := listenLoopback(t)
	client, conn := dialLoopback(t, srv, port)

	n, err := client.Send([]byte("ping"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	buf := make([]byte, 16)
	n, err = conn.Receive(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf[:n]))

	n, err = conn.Send([]byte("pong"))
	require.NoError(t, err)
	require.Equal(t, 4, n)

	n, err = client.Receive(buf)
	require.NoError(t, err)
	require.Equal(t, "pong", string(buf[:n]))

	client.Close()
	conn.Close()
	assert.False(t, client.Valid())
	assert.False(t, conn.Valid())
}

func TestByteStreamFidelity(t *testing.T) {
	initSubsystem(t)

	srv, port := listenLoopback(t)
	client, conn := dialLoopback(t, srv, port)

	payload := make([]byte, 256*1024)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	var (
		wg      sync.WaitGroup
		sendErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		// Two writes; the reader may see them merged or split.
		if _, sendErr = SendAll(client, payload[:1000]); sendErr != nil {
			return
		}
		if _, sendErr = SendAll(client, payload[1000:]); sendErr != nil {
			return
		}
		sendErr = client.Shutdown(ShutdownSend)
	}()

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 4096)
	for {
		n, err := conn.Receive(buf)
		require.NoError(t, err)
		if n == 0 {
			break
		}
		got = append(got, buf[:n]...)
	}
	wg.Wait()
	require.NoError(t, sendErr)
	require.Equal(t, payload, got)
}

func TestReceiveReturnsZeroWhenPeerCloses(t *testing.T) {
	initSubsystem(t)

	srv, port := listenLoopback(t)
	client, conn := dialLoopback(t, srv, port)

	client.Close()

	n, err := conn.Receive(make([]byte, 8))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestBindAddressInUse(t *testing.T) {
	initSubsystem(t)

	_, port := listenLoopback(t)

	other, err := Create("127.0.0.1", port)
	require.NoError(t, err)
	defer other.Close()

	err = other.Bind()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBind)
	assert.Equal(t, CodeAddressInUse, CodeOf(err))
}

func TestConnectRefused(t *testing.T) {
	initSubsystem(t)

	// Reserve a port, then release it so nothing listens there.
	probe, err := Create("127.0.0.1", 0)
	require.NoError(t, err)
	require.NoError(t, probe.Bind())
	local, err := probe.LocalAddr()
	require.NoError(t, err)
	probe.Close()

	client, err := Create("127.0.0.1", int(local.Port))
	require.NoError(t, err)
	defer client.Close()

	err = client.Connect()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnect)
	assert.Equal(t, CodeConnectionRefused, CodeOf(err))
}

func TestCreateStoresAddress(t *testing.T) {
	initSubsystem(t)

	s, err := Create("192.168.1.10", 8080)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, Address{IP: [4]byte{192, 168, 1, 10}, Port: 8080}, s.Addr())
	assert.Equal(t, [6]byte{0x1f, 0x90, 192, 168, 1, 10}, s.Addr().Wire())
}

func TestCreateRejectsInvalidAddress(t *testing.T) {
	initSubsystem(t)

	cases := []struct {
		ip   string
		port int
	}{
		{"256.0.0.1", 80},
		{"not-an-ip", 80},
		{"::1", 80},
		{"", 80},
		{"127.0.0.1", -1},
		{"127.0.0.1", 65536},
	}
	for _, tc := range cases {
		s, err := Create(tc.ip, tc.port)
		assert.Nil(t, s, "%s:%d", tc.ip, tc.port)
		assert.ErrorIs(t, err, ErrInvalidAddress, "%s:%d", tc.ip, tc.port)
		assert.ErrorIs(t, err, ErrSocketCreate, "%s:%d", tc.ip, tc.port)
		assert.Equal(t, CodeInvalidArgument, CodeOf(err))
	}
}

func TestCreateRequiresInitialize(t *testing.T) {
	require.False(t, Initialized())

	s, err := Create("127.0.0.1", 0)
	require.Nil(t, s)
	require.ErrorIs(t, err, ErrNotInitialized)
	require.Equal(t, CodeInvalidState, CodeOf(err))
}

func TestInitializeIsLoadCounted(t *testing.T) {
	require.NoError(t, Initialize())
	require.NoError(t, Initialize())
	require.True(t, Initialized())

	Shutdown()
	require.True(t, Initialized())
	Shutdown()
	require.False(t, Initialized())

	// An unmatched Shutdown is ignored.
	Shutdown()
	require.False(t, Initialized())
}

func TestClosedSocket(t *testing.T) {
	initSubsystem(t)

	s, err := Create("127.0.0.1", 0)
	require.NoError(t, err)
	s.Close()
	require.False(t, s.Valid())

	// Closing twice does not touch the released handle.
	s.Close()

	_, err = s.Send([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, ErrSend)
	_, err = s.Receive(make([]byte, 1))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Bind(), ErrClosed)
	assert.ErrorIs(t, s.Connect(), ErrClosed)
	assert.Equal(t, CodeBadHandle, CodeOf(s.Listen(1)))
}

func TestWithSocketCloses(t *testing.T) {
	initSubsystem(t)

	var held *Socket
	sentinel := errors.New("done")
	err := WithSocket("127.0.0.1", 0, func(s *Socket) error {
		held = s
		require.True(t, s.Valid())
		return sentinel
	}, WithReuseAddress(true), WithNoDelay(true))
	require.ErrorIs(t, err, sentinel)
	require.False(t, held.Valid())
}

func TestEmptyBuffers(t *testing.T) {
	initSubsystem(t)

	s, err := Create("127.0.0.1", 0)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Send(nil)
	require.NoError(t, err)
	require.Zero(t, n)

	// An empty receive buffer must not look like an orderly peer close.
	n, err = s.Receive(nil)
	require.ErrorIs(t, err, ErrReceive)
	require.Equal(t, CodeInvalidArgument, CodeOf(err))
	require.Zero(t, n)
}

func TestShutdownRejectsUnknownDirection(t *testing.T) {
	initSubsystem(t)

	s, err := Create("127.0.0.1", 0)
	require.NoError(t, err)
	defer s.Close()

	err = s.Shutdown(ShutdownType(9))
	require.ErrorIs(t, err, ErrShutdown)
	require.Equal(t, CodeInvalidArgument, CodeOf(err))
}

// Calling any operation, including Close, on a socket that was closed by
// another copy of the handle is outside the contract and is not tested.
