// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package elemer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"reflect"
	"strconv"
)

const (
	parcelMarker    = 0xFF
	parcelSeparator = ':'
	parcelPreamble  = 2

	fieldSeparator = ';'
	frameEnd       = '\r'

	floatPrecision = 5

	hexTable = "0123456789ABCDEF"
)

// Hex is a field payload transmitted as uppercase hexadecimal.
type Hex []byte

// Semicolon appends an empty field separator to a parcel.
type Semicolon struct{}

// SkipSemicolon removes the separator written after the previous field.
type SkipSemicolon struct{}

// EncodeError reports an argument that cannot be written into a parcel.
type EncodeError struct {
	Index int
	Value any
	Err   error
}

func (e *EncodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("elemer: argument %d (%T): %v", e.Index, e.Value, e.Err)
	}
	return fmt.Sprintf("elemer: argument %d has unsupported type %T", e.Index, e.Value)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Parcel is an outgoing request frame:
//
//	Marker          : 1 byte (0xFF)
//	Separator       : 1 char (':')
//	Fields          : address;command;arg;...;
//	CRC             : decimal digits over the fields
//	End             : 1 char ('\r')
type Parcel struct {
	buf bytes.Buffer
}

// NewParcel starts a parcel addressed to address with the given command.
func NewParcel(address uint8, command Command) *Parcel {
	p := &Parcel{}
	p.buf.Grow(64)
	p.buf.WriteByte(parcelMarker)
	p.buf.WriteByte(parcelSeparator)
	p.writeUint(uint64(address))
	p.writeUint(uint64(command))
	return p
}

// Append encodes args as fields in order.
func (p *Parcel) Append(args ...any) error {
	for i, arg := range args {
		if err := p.append(arg); err != nil {
			if ee, ok := err.(*EncodeError); ok {
				ee.Index = i
				return ee
			}
			return err
		}
	}
	return nil
}

func (p *Parcel) append(arg any) error {
	switch v := arg.(type) {
	case Hex:
		if len(v) == 0 {
			return &EncodeError{Value: arg, Err: ErrEmptyField}
		}
		writeHex(&p.buf, v)
		p.buf.WriteByte(fieldSeparator)
		return nil
	case []byte:
		if len(v) == 0 {
			return &EncodeError{Value: arg, Err: ErrEmptyField}
		}
		p.buf.Write(v)
		p.buf.WriteByte(fieldSeparator)
		return nil
	case string:
		if len(v) == 0 {
			return &EncodeError{Value: arg, Err: ErrEmptyField}
		}
		p.buf.WriteString(v)
		p.buf.WriteByte(fieldSeparator)
		return nil
	case Semicolon:
		p.buf.WriteByte(fieldSeparator)
		return nil
	case SkipSemicolon:
		if n := p.buf.Len(); n > parcelPreamble {
			p.buf.Truncate(n - 1)
		}
		return nil
	}

	// Named integer and float types (enums) are matched by kind.
	rv := reflect.ValueOf(arg)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		p.writeInt(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		p.writeUint(rv.Uint())
	case reflect.Bool:
		if rv.Bool() {
			p.writeUint(1)
		} else {
			p.writeUint(0)
		}
	case reflect.Float32:
		p.writeFloat(rv.Float(), 32)
	case reflect.Float64:
		p.writeFloat(rv.Float(), 64)
	default:
		return &EncodeError{Value: arg}
	}
	return nil
}

func (p *Parcel) writeInt(v int64) {
	var str [24]byte
	p.buf.Write(strconv.AppendInt(str[:0], v, 10))
	p.buf.WriteByte(fieldSeparator)
}

func (p *Parcel) writeUint(v uint64) {
	var str [24]byte
	p.buf.Write(strconv.AppendUint(str[:0], v, 10))
	p.buf.WriteByte(fieldSeparator)
}

func (p *Parcel) writeFloat(v float64, bitSize int) {
	var str [32]byte
	p.buf.Write(strconv.AppendFloat(str[:0], v, 'f', floatPrecision, bitSize))
	p.buf.WriteByte(fieldSeparator)
}

// Bytes terminates the parcel with its checksum and carriage return and
// returns the wire bytes. The parcel must not be appended to afterwards.
func (p *Parcel) Bytes() []byte {
	data := p.buf.Bytes()
	var crc crc
	crc.reset().pushBytes(data[parcelPreamble:])

	var str [8]byte
	p.buf.Write(strconv.AppendUint(str[:0], uint64(crc.value()), 10))
	p.buf.WriteByte(frameEnd)
	return p.buf.Bytes()
}

// BuildRequest encodes a complete request frame for address and command.
func BuildRequest(address uint8, command Command, args ...any) ([]byte, error) {
	p := NewParcel(address, command)
	if err := p.Append(args...); err != nil {
		return nil, err
	}
	return p.Bytes(), nil
}

// ToHex concatenates the binary representation of values as a Hex field.
// Fixed-size values use their little-endian layout; strings and byte slices
// are taken as-is.
func ToHex(values ...any) (Hex, error) {
	var buf bytes.Buffer
	for i, v := range values {
		switch x := v.(type) {
		case string:
			buf.WriteString(x)
		case []byte:
			buf.Write(x)
		case Hex:
			buf.Write(x)
		default:
			if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
				return nil, &EncodeError{Index: i, Value: v, Err: err}
			}
		}
	}
	return Hex(buf.Bytes()), nil
}

// writeHex encodes byte to string in hexadecimal, e.g. 0xA5 => "A5"
// (encoding/hex only supports lowercase string).
func writeHex(buf *bytes.Buffer, value []byte) {
	var str [2]byte
	for _, v := range value {
		str[0] = hexTable[v>>4]
		str[1] = hexTable[v&0x0F]
		buf.Write(str[:])
	}
}
