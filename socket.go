package proccom

import (
	"go.uber.org/zap"
)

// Socket is one TCP endpoint backed by a native socket. The zero value is not
// usable; obtain sockets from Create or Accept.
type Socket struct {
	fd   sysHandle
	addr Address
}

// Create allocates a TCP socket for the given IPv4 literal and port. The
// socket is neither bound nor connected. The address is validated before any
// native resource is allocated.
func Create(ip string, port int, opts ...Option) (*Socket, error) {
	if !Initialized() {
		return nil, &Error{Op: OpCreate, Code: CodeInvalidState, Err: ErrNotInitialized}
	}
	addr, err := ParseAddress(ip, port)
	if err != nil {
		return nil, &Error{Op: OpCreate, Code: CodeInvalidArgument, Err: err}
	}

	fd, err := sysSocket()
	if err != nil {
		return nil, opError(OpCreate, err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	for _, v := range o.values {
		if err := sysSetsockopt(fd, v.opt, v.value); err != nil {
			_ = sysClose(fd)
			return nil, opError(OpOption, err)
		}
	}

	openSockets.Add(1)
	Logger().Debug("socket created", zap.Stringer("addr", addr))
	return &Socket{fd: fd, addr: addr}, nil
}

// WithSocket creates a socket, hands it to fn and closes it when fn returns.
func WithSocket(ip string, port int, fn func(*Socket) error, opts ...Option) error {
	s, err := Create(ip, port, opts...)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

// Addr returns the address the socket was created with, or the peer address
// for sockets returned by Accept.
func (s *Socket) Addr() Address {
	return s.addr
}

// Valid reports whether the socket still holds an open native handle.
func (s *Socket) Valid() bool {
	return s != nil && s.fd != invalidHandle
}

func (s *Socket) check(op Op) error {
	if !s.Valid() {
		return &Error{Op: op, Code: CodeBadHandle, Err: ErrClosed}
	}
	return nil
}

// Bind assigns the socket's address to it.
func (s *Socket) Bind() error {
	if err := s.check(OpBind); err != nil {
		return err
	}
	if err := sysBind(s.fd, s.addr); err != nil {
		return opError(OpBind, err)
	}
	return nil
}

// Listen marks a bound socket as accepting connections. A backlog of zero or
// less uses the platform maximum.
func (s *Socket) Listen(backlog int) error {
	if err := s.check(OpListen); err != nil {
		return err
	}
	if backlog <= 0 {
		backlog = maxListenBacklog
	}
	if err := sysListen(s.fd, backlog); err != nil {
		return opError(OpListen, err)
	}
	return nil
}

// Accept blocks until a connection arrives on a listening socket. The
// returned socket's Addr is the remote peer.
func (s *Socket) Accept() (*Socket, error) {
	if err := s.check(OpAccept); err != nil {
		return nil, err
	}
	fd, peer, err := sysAccept(s.fd)
	if err != nil {
		return nil, opError(OpAccept, err)
	}
	openSockets.Add(1)
	Logger().Debug("connection accepted", zap.Stringer("local", s.addr), zap.Stringer("peer", peer))
	return &Socket{fd: fd, addr: peer}, nil
}

// Connect performs a blocking TCP handshake with the socket's address. The
// platform's default connect timeout applies.
func (s *Socket) Connect() error {
	if err := s.check(OpConnect); err != nil {
		return err
	}
	if err := sysConnect(s.fd, s.addr); err != nil {
		return opError(OpConnect, err)
	}
	return nil
}

// Send makes one blocking write attempt and returns the number of bytes the
// platform accepted, which may be less than len(p).
func (s *Socket) Send(p []byte) (int, error) {
	if err := s.check(OpSend); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	n, err := sysSend(s.fd, p)
	if err != nil {
		return 0, opError(OpSend, err)
	}
	return n, nil
}

// Receive makes one blocking read attempt into p. A result of (0, nil) means
// the peer closed the connection; an empty p is rejected so that the two
// cannot be confused.
func (s *Socket) Receive(p []byte) (int, error) {
	if err := s.check(OpReceive); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, &Error{Op: OpReceive, Code: CodeInvalidArgument}
	}
	n, err := sysRecv(s.fd, p)
	if err != nil {
		return 0, opError(OpReceive, err)
	}
	return n, nil
}

// Shutdown closes one or both directions of a connected socket without
// releasing it.
func (s *Socket) Shutdown(how ShutdownType) error {
	if err := s.check(OpShutdown); err != nil {
		return err
	}
	if how > ShutdownBoth {
		return &Error{Op: OpShutdown, Code: CodeInvalidArgument}
	}
	if err := sysShutdown(s.fd, how); err != nil {
		return opError(OpShutdown, err)
	}
	return nil
}

// LocalAddr returns the address the platform assigned to the socket. After
// binding port 0 it reports the chosen port.
func (s *Socket) LocalAddr() (Address, error) {
	if err := s.check(OpLocalAddr); err != nil {
		return Address{}, err
	}
	a, err := sysLocalAddr(s.fd)
	if err != nil {
		return Address{}, opError(OpLocalAddr, err)
	}
	return a, nil
}

// Close releases the native socket. Failures from the platform are logged,
// not returned. Closing an already closed socket does nothing.
func (s *Socket) Close() {
	if !s.Valid() {
		return
	}
	if err := sysClose(s.fd); err != nil {
		Logger().Debug("socket close failed", zap.Stringer("addr", s.addr), zap.Error(err))
	}
	s.fd = invalidHandle
	openSockets.Add(-1)
}

// SendAll calls Send until p is drained or an error occurs. It returns the
// number of bytes sent.
func SendAll(s *Socket, p []byte) (int, error) {
	var total int
	for total < len(p) {
		n, err := s.Send(p[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
