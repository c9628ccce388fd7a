// Package proccom is a thin, blocking TCP socket layer over the native
// socket API of the host: BSD sockets on unix systems and Winsock on
// Windows.
//
// The process-wide socket subsystem must be started with Initialize before
// the first Create and released with Shutdown after the last Close:
//
//	if err := proccom.Initialize(); err != nil {
//		return err
//	}
//	defer proccom.Shutdown()
//
//	s, err := proccom.Create("127.0.0.1", 9000)
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	if err := s.Connect(); err != nil {
//		return err
//	}
//	n, err := s.Send([]byte("ping"))
//
// Send and Receive perform a single system call each and may transfer fewer
// bytes than requested. Receive returns (0, nil) once the peer has closed
// the connection and rejects an empty buffer. A Socket must not be used from several goroutines without
// external synchronization.
package proccom

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// subsystem is the load-counted platform startup state. On unix startup and
// cleanup are no-ops, but the counter is kept so that Create behaves the same
// on every platform.
var subsystem struct {
	mu   sync.Mutex
	refs int
}

var openSockets atomic.Int64

// Platform hooks, replaced in tests.
var (
	startup = sysStartup
	cleanup = sysCleanup
)

// Initialize starts the platform socket subsystem. Each successful call must
// be matched by one Shutdown.
func Initialize() error {
	subsystem.mu.Lock()
	defer subsystem.mu.Unlock()

	if subsystem.refs == 0 {
		if err := startup(); err != nil {
			code := mapOsError(err)
			if code == CodeUnknown {
				code = CodeSubsystemUnavailable
			}
			Logger().Error("socket subsystem startup failed",
				zap.String("platform", platform),
				zap.Stringer("code", code),
				zap.Error(err),
			)
			return &Error{Op: OpInitialize, Code: code, Err: err}
		}
		Logger().Debug("socket subsystem started", zap.String("platform", platform))
	}
	subsystem.refs++
	return nil
}

// Shutdown releases one Initialize. The platform subsystem is torn down when
// the last reference goes away. Sockets still open at that point are not
// closed.
func Shutdown() {
	subsystem.mu.Lock()
	defer subsystem.mu.Unlock()

	if subsystem.refs == 0 {
		return
	}
	subsystem.refs--
	if subsystem.refs > 0 {
		return
	}
	if n := openSockets.Load(); n > 0 {
		Logger().Warn("socket subsystem shut down with open sockets", zap.Int64("open", n))
	}
	cleanup()
	Logger().Debug("socket subsystem stopped", zap.String("platform", platform))
}

// Initialized reports whether an Initialize is outstanding.
func Initialized() bool {
	subsystem.mu.Lock()
	defer subsystem.mu.Unlock()
	return subsystem.refs > 0
}
