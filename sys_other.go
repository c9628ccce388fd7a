//go:build !unix && !windows

package proccom

import "errors"

const platform = "unsupported"

type sysHandle int

const invalidHandle sysHandle = -1

const maxListenBacklog = 128

func sysStartup() error { return nil }

func sysCleanup() {}

func sysSocket() (sysHandle, error) { return invalidHandle, errors.ErrUnsupported }

func sysSetsockopt(sysHandle, sockOpt, int) error { return errors.ErrUnsupported }

func sysBind(sysHandle, Address) error { return errors.ErrUnsupported }

func sysListen(sysHandle, int) error { return errors.ErrUnsupported }

func sysAccept(sysHandle) (sysHandle, Address, error) {
	return invalidHandle, Address{}, errors.ErrUnsupported
}

func sysConnect(sysHandle, Address) error { return errors.ErrUnsupported }

func sysSend(sysHandle, []byte) (int, error) { return 0, errors.ErrUnsupported }

func sysRecv(sysHandle, []byte) (int, error) { return 0, errors.ErrUnsupported }

func sysShutdown(sysHandle, ShutdownType) error { return errors.ErrUnsupported }

func sysLocalAddr(sysHandle) (Address, error) { return Address{}, errors.ErrUnsupported }

func sysClose(sysHandle) error { return nil }

func mapErrno(error) ErrorCode { return CodeUnknown }
