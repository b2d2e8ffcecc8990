// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package elemer

import (
	"context"
	"encoding/binary"
	"fmt"
)

var _ Instrument = (*Session)(nil)

// Request:
//
//	Command         : 0xFE
//
// Response:
//
//	Address         : decimal
//	Version         : text
func (s *Session) FirmwareVersion(ctx context.Context) (string, error) {
	f, err := s.Call(ctx, CmdFirmwareVersion)
	if err != nil {
		return "", err
	}
	v := values(f)
	if v.Len() == 0 {
		return "", ErrShortReply
	}
	return string(v.At(0)), nil
}

// Request:
//
//	Command         : 32
//
// Response:
//
//	Address         : decimal
//	Kind            : decimal
func (s *Session) ProtocolKind(ctx context.Context) (int, error) {
	return ReadValue[int](ctx, s, CmdProtocolKind)
}

// Request:
//
//	Command         : 1
//
// Response:
//
//	Address         : decimal
//	Values          : one decimal per channel
func (s *Session) ReadMeasured(ctx context.Context) ([]float64, error) {
	return ReadValues[float64](ctx, s, CmdReadMeasured, 0)
}

// Request:
//
//	Command         : 35
//
// Response:
//
//	Address         : decimal
//	Status          : decimal
func (s *Session) ReadStatus(ctx context.Context) (uint32, error) {
	return ReadValue[uint32](ctx, s, CmdReadStatus)
}

// Request:
//
//	Command         : 36
//	Count           : decimal
//
// Response:
//
//	Address         : decimal
//	Data            : Count bytes in hex
func (s *Session) ReadBytes(ctx context.Context, n int) ([]byte, error) {
	return s.readHexBytes(ctx, CmdReadBytes, n)
}

// Request:
//
//	Command         : 33
//	New address     : decimal
//
// Response:
//
//	Status          : $code
func (s *Session) SetAddress(ctx context.Context, address uint8) error {
	if _, err := s.Write(ctx, CmdSetAddress, address); err != nil {
		return err
	}
	s.address.Store(uint32(address))
	return nil
}

// Request:
//
//	Command         : 34
//	Baud            : menu index
//
// Response:
//
//	Status          : $code
func (s *Session) SetBaudRate(ctx context.Context, baud Baud) error {
	rate := baud.Rate()
	if rate == 0 {
		return fmt.Errorf("elemer: baud index '%v' is not in the menu", uint8(baud))
	}
	if _, err := s.Write(ctx, CmdSetBaudRate, baud); err != nil {
		return err
	}
	s.lineMu.Lock()
	s.line.BaudRate = rate
	s.lineMu.Unlock()
	return s.link.setBaudRate(rate)
}

// Request:
//
//	Command         : 37
//	Parameter       : decimal
//	Arguments       : optional
//
// Response:
//
//	Address         : decimal
//	Values          : parameter dependent
func (s *Session) ReadParam(ctx context.Context, param uint16, args ...any) (Fields, error) {
	f, err := s.Call(ctx, CmdParamRead, append([]any{param}, args...)...)
	if err != nil {
		return nil, err
	}
	return values(f), nil
}

// Request:
//
//	Command         : 38
//	Parameter       : decimal
//	Values          : parameter dependent
//
// Response:
//
//	Status          : $code
func (s *Session) WriteParam(ctx context.Context, param uint16, values ...any) error {
	_, err := s.Write(ctx, CmdParamWrite, append([]any{param}, values...)...)
	return err
}

// Request:
//
//	Command         : 39
//	Parameter       : decimal
//	Values          : parameter dependent
//
// Response:
//
//	Status          : $code
func (s *Session) ModifyParam(ctx context.Context, param uint16, values ...any) error {
	_, err := s.Write(ctx, CmdParamModify, append([]any{param}, values...)...)
	return err
}

// Reset restarts the instrument. The instrument answers before restarting.
func (s *Session) Reset(ctx context.Context) error {
	_, err := s.Write(ctx, CmdReset)
	return err
}

func (s *Session) FileOpen(ctx context.Context) error {
	_, err := s.Write(ctx, CmdFileOpen)
	return err
}

// Request:
//
//	Command         : 41
//	Offset          : decimal
//	Whence          : decimal Seek
//
// Response:
//
//	Status          : $code
func (s *Session) FileSeek(ctx context.Context, offset uint16, whence Seek) error {
	if whence > SeekEnd {
		return fmt.Errorf("elemer: invalid seek origin '%v'", uint8(whence))
	}
	_, err := s.Write(ctx, CmdFileSeek, offset, whence)
	return err
}

// Request:
//
//	Command         : 42
//	Count           : decimal
//
// Response:
//
//	Address         : decimal
//	Data            : Count bytes in hex
func (s *Session) FileRead(ctx context.Context, n int) ([]byte, error) {
	return s.readHexBytes(ctx, CmdFileRead, n)
}

// FileReadValue reads the binary layout of T at the current file position.
func FileReadValue[T any](ctx context.Context, s *Session) (T, error) {
	var zero T
	size := binary.Size(zero)
	if size <= 0 {
		return zero, fmt.Errorf("elemer: %T has no fixed size", zero)
	}
	return ReadHex[T](ctx, s, CmdFileRead, size)
}

// Request:
//
//	Command         : 43
//	Data            : hex
//
// Response:
//
//	Status          : $code
func (s *Session) FileWrite(ctx context.Context, values ...any) error {
	_, err := s.WriteHex(ctx, CmdFileWrite, values...)
	return err
}

func (s *Session) FileClose(ctx context.Context) error {
	_, err := s.Write(ctx, CmdFileClose)
	return err
}

// Request:
//
//	Command         : 45
//
// Response:
//
//	Address         : decimal
//	Position        : decimal
func (s *Session) FileTell(ctx context.Context) (int64, error) {
	return ReadValue[int64](ctx, s, CmdFileTell)
}

func (s *Session) FileChmod(ctx context.Context, mode uint8) error {
	_, err := s.Write(ctx, CmdFileChmod, mode)
	return err
}

func (s *Session) FileRemove(ctx context.Context) error {
	_, err := s.Write(ctx, CmdFileRemove)
	return err
}

func (s *Session) readHexBytes(ctx context.Context, command Command, n int) ([]byte, error) {
	if n < 1 {
		return nil, fmt.Errorf("elemer: count '%v' must be positive", n)
	}
	f, err := s.Call(ctx, command, n)
	if err != nil {
		return nil, err
	}
	v := values(f)
	if v.Len() == 0 {
		return nil, ErrShortReply
	}
	data, err := DecodeHexBytes(v.At(0))
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("elemer: response data size '%v' does not match count '%v'", len(data), n)
	}
	return data, nil
}
