package wasm

import (
	"context"

	"github.com/foxxorcat/proccom"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

type socketsImpl struct {
	host *Host
}

func newSocketsImpl(h *Host) *socketsImpl {
	return &socketsImpl{host: h}
}

func (i *socketsImpl) export(b wazero.HostModuleBuilder) {
	exportFunc(b, "initialize", i.initialize, nil, true)
	exportFunc(b, "shutdown", i.shutdown, nil, false)
	exportFunc(b, "socket_create", i.create, []string{"ip_ptr", "ip_len", "port", "handle_out"}, true)
	exportFunc(b, "socket_bind", i.bind, []string{"handle"}, true)
	exportFunc(b, "socket_listen", i.listen, []string{"handle", "backlog"}, true)
	exportFunc(b, "socket_accept", i.accept, []string{"handle", "handle_out"}, true)
	exportFunc(b, "socket_connect", i.connect, []string{"handle"}, true)
	exportFunc(b, "socket_send", i.send, []string{"handle", "buf_ptr", "buf_len", "n_out"}, true)
	exportFunc(b, "socket_receive", i.receive, []string{"handle", "buf_ptr", "buf_cap", "n_out"}, true)
	exportFunc(b, "socket_shutdown", i.shutdownSocket, []string{"handle", "how"}, true)
	exportFunc(b, "socket_local_port", i.localPort, []string{"handle", "port_out"}, true)
	exportFunc(b, "socket_close", i.close, []string{"handle"}, false)
}

func exportFunc(b wazero.HostModuleBuilder, name string, fn api.GoModuleFunc, params []string, hasResult bool) {
	paramTypes := make([]api.ValueType, len(params))
	for k := range paramTypes {
		paramTypes[k] = api.ValueTypeI32
	}
	var resultTypes []api.ValueType
	if hasResult {
		resultTypes = []api.ValueType{api.ValueTypeI32}
	}
	b.NewFunctionBuilder().
		WithGoModuleFunction(fn, paramTypes, resultTypes).
		WithParameterNames(params...).
		Export(name)
}

func setCode(stack []uint64, code proccom.ErrorCode) {
	stack[0] = api.EncodeU32(uint32(code))
}

// result records err as the call's return code.
func (i *socketsImpl) result(stack []uint64, fn string, err error) {
	if err != nil {
		i.host.logger.Debug("host call failed", zap.String("func", fn), zap.Error(err))
	}
	setCode(stack, proccom.CodeOf(err))
}

// socket holds the socket behind handle for the duration of a call; the
// caller must invoke release when ok.
func (i *socketsImpl) socket(stack []uint64, handle uint32) (s *proccom.Socket, release func(), ok bool) {
	s, release, ok = i.host.sockets.Acquire(handle)
	if !ok {
		setCode(stack, proccom.CodeBadHandle)
	}
	return s, release, ok
}

func guestBytes(m api.Module, ptr, n uint32) ([]byte, bool) {
	mem := m.Memory()
	if mem == nil {
		return nil, false
	}
	return mem.Read(ptr, n)
}

func writeU32(m api.Module, ptr, v uint32) bool {
	mem := m.Memory()
	return mem != nil && mem.WriteUint32Le(ptr, v)
}

func (i *socketsImpl) initialize(_ context.Context, _ api.Module, stack []uint64) {
	i.result(stack, "initialize", proccom.Initialize())
}

func (i *socketsImpl) shutdown(context.Context, api.Module, []uint64) {
	proccom.Shutdown()
}

func (i *socketsImpl) create(_ context.Context, m api.Module, stack []uint64) {
	ipPtr, ipLen := api.DecodeU32(stack[0]), api.DecodeU32(stack[1])
	port := int(api.DecodeI32(stack[2]))
	out := api.DecodeU32(stack[3])

	ip, ok := guestBytes(m, ipPtr, ipLen)
	if !ok {
		setCode(stack, proccom.CodeInvalidArgument)
		return
	}
	s, err := proccom.Create(string(ip), port)
	if err != nil {
		i.result(stack, "socket_create", err)
		return
	}
	handle := i.host.sockets.Add(s)
	if !writeU32(m, out, handle) {
		i.host.sockets.Remove(handle)
		setCode(stack, proccom.CodeInvalidArgument)
		return
	}
	setCode(stack, proccom.CodeOK)
}

func (i *socketsImpl) bind(_ context.Context, _ api.Module, stack []uint64) {
	s, release, ok := i.socket(stack, api.DecodeU32(stack[0]))
	if !ok {
		return
	}
	defer release()
	i.result(stack, "socket_bind", s.Bind())
}

func (i *socketsImpl) listen(_ context.Context, _ api.Module, stack []uint64) {
	s, release, ok := i.socket(stack, api.DecodeU32(stack[0]))
	if !ok {
		return
	}
	defer release()
	i.result(stack, "socket_listen", s.Listen(int(api.DecodeI32(stack[1]))))
}

func (i *socketsImpl) accept(_ context.Context, m api.Module, stack []uint64) {
	s, release, ok := i.socket(stack, api.DecodeU32(stack[0]))
	if !ok {
		return
	}
	defer release()
	out := api.DecodeU32(stack[1])
	conn, err := s.Accept()
	if err != nil {
		i.result(stack, "socket_accept", err)
		return
	}
	handle := i.host.sockets.Add(conn)
	if !writeU32(m, out, handle) {
		i.host.sockets.Remove(handle)
		setCode(stack, proccom.CodeInvalidArgument)
		return
	}
	setCode(stack, proccom.CodeOK)
}

func (i *socketsImpl) connect(_ context.Context, _ api.Module, stack []uint64) {
	s, release, ok := i.socket(stack, api.DecodeU32(stack[0]))
	if !ok {
		return
	}
	defer release()
	i.result(stack, "socket_connect", s.Connect())
}

func (i *socketsImpl) send(_ context.Context, m api.Module, stack []uint64) {
	s, release, ok := i.socket(stack, api.DecodeU32(stack[0]))
	if !ok {
		return
	}
	defer release()
	buf, ok := guestBytes(m, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		setCode(stack, proccom.CodeInvalidArgument)
		return
	}
	out := api.DecodeU32(stack[3])
	n, err := s.Send(buf)
	if err != nil {
		i.result(stack, "socket_send", err)
		return
	}
	if !writeU32(m, out, uint32(n)) {
		setCode(stack, proccom.CodeInvalidArgument)
		return
	}
	setCode(stack, proccom.CodeOK)
}

func (i *socketsImpl) receive(_ context.Context, m api.Module, stack []uint64) {
	s, release, ok := i.socket(stack, api.DecodeU32(stack[0]))
	if !ok {
		return
	}
	defer release()
	buf, ok := guestBytes(m, api.DecodeU32(stack[1]), api.DecodeU32(stack[2]))
	if !ok {
		setCode(stack, proccom.CodeInvalidArgument)
		return
	}
	out := api.DecodeU32(stack[3])
	// buf aliases guest memory, so the data lands in place.
	n, err := s.Receive(buf)
	if err != nil {
		i.result(stack, "socket_receive", err)
		return
	}
	if !writeU32(m, out, uint32(n)) {
		setCode(stack, proccom.CodeInvalidArgument)
		return
	}
	setCode(stack, proccom.CodeOK)
}

func (i *socketsImpl) shutdownSocket(_ context.Context, _ api.Module, stack []uint64) {
	s, release, ok := i.socket(stack, api.DecodeU32(stack[0]))
	if !ok {
		return
	}
	defer release()
	how := api.DecodeU32(stack[1])
	if how > uint32(proccom.ShutdownBoth) {
		setCode(stack, proccom.CodeInvalidArgument)
		return
	}
	i.result(stack, "socket_shutdown", s.Shutdown(proccom.ShutdownType(how)))
}

func (i *socketsImpl) localPort(_ context.Context, m api.Module, stack []uint64) {
	s, release, ok := i.socket(stack, api.DecodeU32(stack[0]))
	if !ok {
		return
	}
	defer release()
	out := api.DecodeU32(stack[1])
	addr, err := s.LocalAddr()
	if err != nil {
		i.result(stack, "socket_local_port", err)
		return
	}
	if !writeU32(m, out, uint32(addr.Port)) {
		setCode(stack, proccom.CodeInvalidArgument)
		return
	}
	setCode(stack, proccom.CodeOK)
}

func (i *socketsImpl) close(_ context.Context, _ api.Module, stack []uint64) {
	i.host.sockets.Remove(api.DecodeU32(stack[0]))
}
