// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// socketControl sizes the kernel receive buffer so a burst of sample frames
// is not dropped while the messenger is between reads.
func socketControl(rcvbuf int) func(network, address string, c syscall.RawConn) error {
	if rcvbuf <= 0 {
		return nil
	}
	return func(network, address string, c syscall.RawConn) error {
		var err error
		cerr := c.Control(func(fd uintptr) {
			err = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, rcvbuf)
		})
		if cerr != nil {
			return cerr
		}
		return err
	}
}
