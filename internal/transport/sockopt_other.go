// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package transport

import "syscall"

func socketControl(int) func(network, address string, c syscall.RawConn) error {
	return nil
}
