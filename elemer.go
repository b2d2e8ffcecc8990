// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

/*
Package elemer provides a client for the Elemer ASCII serial protocol used by
temperature and pressure transmitters and signal converters.

A Session talks to one addressed instrument at a time over an RS-232/RS-485
link. Requests are ASCII parcels terminated by a carriage return and protected
by a CRC16 rendered as decimal digits; replies start with '!' and carry the
same checksum convention.
*/
package elemer

import (
	"errors"
	"fmt"
)

// Command is a single byte protocol command code.
type Command uint8

const (
	// CmdIdentify reads back the instrument address and type code.
	CmdIdentify Command = 0
	// CmdReadMeasured reads the measured value(s).
	CmdReadMeasured Command = 1
	// CmdProtocolKind reads the protocol variant implemented by the instrument.
	CmdProtocolKind Command = 32
	// CmdSetAddress changes the instrument address.
	CmdSetAddress Command = 33
	// CmdSetBaudRate changes the instrument line speed.
	CmdSetBaudRate Command = 34
	// CmdReadStatus reads the status register of the communication module.
	CmdReadStatus Command = 35
	// CmdReadBytes reads N bytes from the return buffer.
	CmdReadBytes Command = 36

	// CmdParamRead reads an instrument parameter.
	CmdParamRead Command = 37
	// CmdParamWrite writes an instrument parameter.
	CmdParamWrite Command = 38
	// CmdParamModify modifies an instrument parameter.
	CmdParamModify Command = 39

	// CmdFileOpen opens the instrument file.
	CmdFileOpen Command = 40
	// CmdFileSeek moves the file position.
	CmdFileSeek Command = 41
	// CmdFileRead reads N bytes from the current file position.
	CmdFileRead Command = 42
	// CmdFileWrite writes bytes at the current file position.
	CmdFileWrite Command = 43
	// CmdFileClose closes the instrument file.
	CmdFileClose Command = 44
	// CmdFileTell reads the current file position.
	CmdFileTell Command = 45
	// CmdFileChmod changes the file access mode.
	CmdFileChmod Command = 46
	// CmdFileRemove removes the file.
	CmdFileRemove Command = 47

	// CmdFirmwareVersion reads the firmware version.
	CmdFirmwareVersion Command = 0xFE
	// CmdReset restarts the instrument CPU.
	CmdReset Command = 0xFF
)

var commandNames = map[Command]string{
	CmdIdentify:        "identify",
	CmdReadMeasured:    "read measured",
	CmdProtocolKind:    "protocol kind",
	CmdSetAddress:      "set address",
	CmdSetBaudRate:     "set baud rate",
	CmdReadStatus:      "read status",
	CmdReadBytes:       "read bytes",
	CmdParamRead:       "param read",
	CmdParamWrite:      "param write",
	CmdParamModify:     "param modify",
	CmdFileOpen:        "file open",
	CmdFileSeek:        "file seek",
	CmdFileRead:        "file read",
	CmdFileWrite:       "file write",
	CmdFileClose:       "file close",
	CmdFileTell:        "file tell",
	CmdFileChmod:       "file chmod",
	CmdFileRemove:      "file remove",
	CmdFirmwareVersion: "firmware version",
	CmdReset:           "reset",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", uint8(c))
}

// Seek is the origin of a file seek.
type Seek uint8

const (
	// SeekSet seeks relative to the start of the file.
	SeekSet Seek = iota
	// SeekCur seeks relative to the current position.
	SeekCur
	// SeekEnd seeks relative to the end of the file.
	SeekEnd
)

// ReturnOK is the device return code of a successful command.
const ReturnOK = 0

// Sentinel errors.
var (
	// Framing errors.
	ErrNoStart          = errors.New("elemer: reply has no start marker")
	ErrNoChecksum       = errors.New("elemer: reply has no checksum field")
	ErrChecksumMismatch = errors.New("elemer: checksum mismatch")

	// Session errors.
	ErrReplyTimeout = errors.New("elemer: reply timeout")
	ErrNotConnected = errors.New("elemer: session is not connected")
	ErrOpenTimeout  = errors.New("elemer: link open confirmation timeout")
	ErrCloseTimeout = errors.New("elemer: link close confirmation timeout")
	ErrLinkClosed   = errors.New("elemer: link is closed")
	ErrLinkStopped  = errors.New("elemer: link is stopped")

	// Marshaling errors.
	ErrEmptyField = errors.New("elemer: empty field")
	ErrNoStatus   = errors.New("elemer: reply has no status field")
	ErrShortReply = errors.New("elemer: reply has too few fields")
)

// ChecksumError reports a reply whose transmitted checksum does not match the
// checksum computed over its payload.
type ChecksumError struct {
	Received uint64
	Computed uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("elemer: reply checksum '%v' does not match expected '%v'", e.Received, e.Computed)
}

// Is reports ErrChecksumMismatch as the matching sentinel.
func (e *ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// OpenError is returned when the physical link could not be opened.
type OpenError struct {
	Port string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("elemer: could not open %s: %v", e.Port, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// DeviceError is returned when an instrument answered a command with a non-zero
// return code or without the success sentinel.
type DeviceError struct {
	Command Command
	Code    int
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("elemer: device returned code '%v', command '%v'", e.Code, e.Command)
}

// IdentityMismatchError is returned by Connect when the instrument reports a
// type other than the one the session expects.
type IdentityMismatchError struct {
	Expected DeviceType
	Reported DeviceType
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("elemer: device type '%v' does not match expected '%v'", e.Reported, e.Expected)
}
