// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package x3

import (
	"errors"
	"fmt"
)

var (
	ErrBadMarker        = errors.New("x3: frame does not start with marker")
	ErrShortFrame       = errors.New("x3: frame shorter than marker and qualifier")
	ErrPayloadTooLarge  = errors.New("x3: payload too large")
	ErrProtocolMismatch = errors.New("x3: qualifier does not match variant")
	ErrUnknownQualifier = errors.New("x3: unknown qualifier")
	ErrOutOfRange       = errors.New("x3: value out of range")
)

// MismatchError reports a typed view built from a packet of another qualifier.
type MismatchError struct {
	Want byte
	Got  byte
}

// Error implements the error interface
func (e *MismatchError) Error() string {
	return fmt.Sprintf("x3: expected %s (0x%02X), got %s (0x%02X)",
		Name(e.Want), e.Want, Name(e.Got), e.Got)
}

// Unwrap lets errors.Is match ErrProtocolMismatch
func (e *MismatchError) Unwrap() error {
	return ErrProtocolMismatch
}
