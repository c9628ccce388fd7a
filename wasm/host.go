// Package wasm exposes the proccom socket layer to WebAssembly guests as a
// wazero host module.
//
//	r := wazero.NewRuntime(ctx)
//	h := wasm.NewHost(wasm.WithLogger(logger))
//	defer h.Close()
//	if err := h.Instantiate(ctx, r); err != nil {
//		return err
//	}
//
// Guests import the functions from the "proccom" module. Every function that
// can fail returns a proccom.ErrorCode as i32, zero meaning success; results
// are written to guest memory through out-pointers.
package wasm

import (
	"context"

	"github.com/foxxorcat/proccom"
	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// DefaultModuleName is the import module name guests use.
const DefaultModuleName = "proccom"

// Host owns the sockets created by guests.
type Host struct {
	name    string
	logger  *zap.Logger
	sockets *ResourceManager[*proccom.Socket]
}

// Option configures a Host.
type Option func(*Host)

// WithModuleName overrides DefaultModuleName.
func WithModuleName(name string) Option {
	return func(h *Host) {
		h.name = name
	}
}

// WithLogger sets the logger for host calls.
func WithLogger(l *zap.Logger) Option {
	return func(h *Host) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHost creates a Host and applies opts.
func NewHost(opts ...Option) *Host {
	h := &Host{
		name:   DefaultModuleName,
		logger: zap.NewNop(),
		sockets: NewResourceManager(
			func(s *proccom.Socket) { s.Close() },
			// Wakes calls blocked in receive or accept on a closed handle.
			func(s *proccom.Socket) { _ = s.Shutdown(proccom.ShutdownBoth) },
		),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("wasm")
	return h
}

// Compile builds the host module without instantiating it.
func (h *Host) Compile(ctx context.Context, r wazero.Runtime) (wazero.CompiledModule, error) {
	builder := r.NewHostModuleBuilder(h.name)
	newSocketsImpl(h).export(builder)
	return builder.Compile(ctx)
}

// Instantiate registers the host module in r.
func (h *Host) Instantiate(ctx context.Context, r wazero.Runtime) error {
	compiled, err := h.Compile(ctx, r)
	if err != nil {
		return err
	}
	if _, err = r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig()); err != nil {
		compiled.Close(ctx)
		return err
	}
	return nil
}

// Sockets returns the guest handle table.
func (h *Host) Sockets() *ResourceManager[*proccom.Socket] {
	return h.sockets
}

// Close closes every socket guests left open. It does not shut down the
// socket subsystem; guests own their initialize/shutdown pairs.
func (h *Host) Close() {
	if n := h.sockets.Len(); n > 0 {
		h.logger.Debug("closing guest sockets", zap.Int("count", n))
	}
	h.sockets.Clear()
}
