// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package elemer

import "context"

// Instrument declares the typed operations of an Elemer instrument
// regardless of the underlying link.
type Instrument interface {
	// Identity

	// Address returns the address requests are sent to.
	Address() uint8
	// Identify reads the address and type code of the instrument at
	// address.
	Identify(ctx context.Context, address uint8) (Identity, error)
	// FirmwareVersion reads the firmware version string.
	FirmwareVersion(ctx context.Context) (string, error)
	// ProtocolKind reads the protocol variant code.
	ProtocolKind(ctx context.Context) (int, error)

	// Measurement

	// ReadMeasured reads the measured value of every channel.
	ReadMeasured(ctx context.Context) ([]float64, error)
	// ReadStatus reads the status register of the communication module.
	ReadStatus(ctx context.Context) (uint32, error)
	// ReadBytes reads n bytes from the return buffer.
	ReadBytes(ctx context.Context, n int) ([]byte, error)

	// Configuration

	// SetAddress changes the instrument address; the session follows.
	SetAddress(ctx context.Context, address uint8) error
	// SetBaudRate changes the instrument line speed; the link follows.
	SetBaudRate(ctx context.Context, baud Baud) error
	// ReadParam reads the value fields of parameter param.
	ReadParam(ctx context.Context, param uint16, args ...any) (Fields, error)
	// WriteParam writes values to parameter param.
	WriteParam(ctx context.Context, param uint16, values ...any) error
	// ModifyParam modifies parameter param.
	ModifyParam(ctx context.Context, param uint16, values ...any) error
	// Reset restarts the instrument CPU.
	Reset(ctx context.Context) error

	// File access

	FileOpen(ctx context.Context) error
	FileSeek(ctx context.Context, offset uint16, whence Seek) error
	// FileRead reads n bytes at the current file position.
	FileRead(ctx context.Context, n int) ([]byte, error)
	// FileWrite writes the binary layout of values at the current file
	// position.
	FileWrite(ctx context.Context, values ...any) error
	FileClose(ctx context.Context) error
	// FileTell reads the current file position.
	FileTell(ctx context.Context) (int64, error)
	FileChmod(ctx context.Context, mode uint8) error
	FileRemove(ctx context.Context) error
}
