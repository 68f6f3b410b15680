// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Radarstat - X3 Radar Sensor Gateway
//
// A CLI tool for polling, configuring and monitoring X3 vehicle detection
// radar sensors over TCP, UDP, serial or a WebSocket serial bridge.

package main

import (
	"os"

	"github.com/Thermoquad/radarstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
