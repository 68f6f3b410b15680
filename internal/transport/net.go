// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// dialNet opens a TCP stream or a connected UDP socket.
// A UDP read returns one datagram, which the stream appends like any chunk.
func dialNet(ctx context.Context, kind Kind, ep Endpoint, opts Options) (Transport, error) {
	network := "tcp"
	if kind == UDP {
		network = "udp"
	}

	d := net.Dialer{
		KeepAlive: 30 * time.Second,
		Control:   socketControl(opts.ReceiveBuffer),
	}
	conn, err := d.DialContext(ctx, network, ep.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s %s: %w", network, ep.Address, err)
	}
	return newStream(kind, conn), nil
}
