// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"

	"go.bug.st/serial"
)

// DefaultBaudRate is the X3 factory line rate
const DefaultBaudRate = 9600

// dialSerial opens a serial line at 8N1
func dialSerial(ep Endpoint, opts Options) (Transport, error) {
	baud := ep.BaudRate
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(ep.Address, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", ep.Address, err)
	}
	opts.Logger.Debug().Str("port", ep.Address).Int("baud", baud).Msg("serial port open")
	return newStream(Serial, port), nil
}

// SerialPorts lists the serial ports present on this host
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
