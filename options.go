package proccom

// ShutdownType selects which direction of a connection Shutdown closes.
type ShutdownType uint8

const (
	ShutdownReceive ShutdownType = iota
	ShutdownSend
	ShutdownBoth
)

// sockOpt enumerates the socket options Create knows how to apply. Each
// platform file maps them to native level/name pairs.
type sockOpt uint8

const (
	optNoDelay sockOpt = iota
	optReuseAddr
	optSendBuffer
	optReceiveBuffer
)

type optionValue struct {
	opt   sockOpt
	value int
}

type options struct {
	values []optionValue
}

// Option configures a socket at Create time.
type Option func(*options)

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// WithNoDelay sets TCP_NODELAY.
func WithNoDelay(on bool) Option {
	return func(o *options) {
		o.values = append(o.values, optionValue{optNoDelay, boolInt(on)})
	}
}

// WithReuseAddress sets SO_REUSEADDR.
func WithReuseAddress(on bool) Option {
	return func(o *options) {
		o.values = append(o.values, optionValue{optReuseAddr, boolInt(on)})
	}
}

// WithSendBufferSize sets SO_SNDBUF. The kernel may round or double the
// value.
func WithSendBufferSize(n int) Option {
	return func(o *options) {
		o.values = append(o.values, optionValue{optSendBuffer, n})
	}
}

// WithReceiveBufferSize sets SO_RCVBUF. Set it on a listening socket for it
// to apply to the connections it accepts.
func WithReceiveBufferSize(n int) Option {
	return func(o *options) {
		o.values = append(o.values, optionValue{optReceiveBuffer, n})
	}
}
