package elemer

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

const statusSentinel = '$'

// Number is the set of types a textual field decodes to.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// ParseError reports a field that does not decode to the requested type.
type ParseError struct {
	Field []byte
	Type  string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("elemer: field %q is not a valid %s: %v", e.Field, e.Type, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DecodeText parses a decimal field into T. The whole field must be consumed;
// whitespace and a leading '+' are rejected.
func DecodeText[T Number](field []byte) (T, error) {
	var zero T
	kind := reflect.TypeOf(zero).Kind()
	fail := func(err error) (T, error) {
		return zero, &ParseError{Field: field, Type: kind.String(), Err: err}
	}
	if len(field) == 0 {
		return fail(ErrEmptyField)
	}
	if field[0] == '+' {
		return fail(strconv.ErrSyntax)
	}
	s := string(field)
	bits := int(reflect.TypeOf(zero).Size()) * 8

	switch kind {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err := strconv.ParseInt(s, 10, bits)
		if err != nil {
			return fail(err)
		}
		return T(v), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err := strconv.ParseUint(s, 10, bits)
		if err != nil {
			return fail(err)
		}
		return T(v), nil
	default:
		// Plain decimal notation only: no hex floats, no Inf or NaN.
		if strings.Trim(s, "0123456789.-eE") != "" {
			return fail(strconv.ErrSyntax)
		}
		v, err := strconv.ParseFloat(s, bits)
		if err != nil {
			return fail(err)
		}
		return T(v), nil
	}
}

// EncodeHex returns the little-endian binary layout of v as a Hex field.
func EncodeHex(v any) (Hex, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		return nil, err
	}
	return Hex(buf.Bytes()), nil
}

// DecodeHex decodes a hexadecimal field into the little-endian binary layout
// of T. The decoded length must equal the size of T exactly.
func DecodeHex[T any](field []byte) (T, error) {
	var v T
	size := binary.Size(v)
	if size < 0 {
		return v, &ParseError{Field: field, Type: fmt.Sprintf("%T", v), Err: fmt.Errorf("type has no fixed size")}
	}
	data := make([]byte, hex.DecodedLen(len(field)))
	n, err := hex.Decode(data, field)
	if err != nil {
		return v, &ParseError{Field: field, Type: fmt.Sprintf("%T", v), Err: err}
	}
	if n != size {
		return v, &ParseError{Field: field, Type: fmt.Sprintf("%T", v),
			Err: fmt.Errorf("decoded length '%v' does not match size '%v'", n, size)}
	}
	if err := binary.Read(bytes.NewReader(data[:n]), binary.LittleEndian, &v); err != nil {
		return v, &ParseError{Field: field, Type: fmt.Sprintf("%T", v), Err: err}
	}
	return v, nil
}

// DecodeHexBytes decodes a hexadecimal field of any length.
func DecodeHexBytes(field []byte) ([]byte, error) {
	data := make([]byte, hex.DecodedLen(len(field)))
	if _, err := hex.Decode(data, field); err != nil {
		return nil, &ParseError{Field: field, Type: "hex", Err: err}
	}
	return data, nil
}

// Status is the return code a device reports for a write-style command.
type Status struct {
	// Code is the signed return code following the sentinel.
	Code int
	// Sentinel reports whether the field started with '$'.
	Sentinel bool
}

// OK reports whether the device accepted the command.
func (s Status) OK() bool {
	return s.Sentinel && s.Code == ReturnOK
}

// DecodeStatus decodes a "$<code>" status field. A field without the
// sentinel still yields its numeric code when it has one.
func DecodeStatus(field []byte) Status {
	var st Status
	if len(field) > 0 && field[0] == statusSentinel {
		st.Sentinel = true
		field = field[1:]
	}
	code, err := DecodeText[int](field)
	if err != nil {
		// A sentinel with an unreadable code is never a success.
		st.Code = -1
		return st
	}
	st.Code = code
	return st
}

// Reply field positions shared by all commands.
const (
	fieldAddress = 0
	fieldValue   = 1
)

// Identity is the reply to CmdIdentify:
//
//	Address         : decimal
//	Type            : decimal device type code
type Identity struct {
	Address uint8
	Type    DeviceType
}

func decodeIdentity(f Fields) (Identity, error) {
	if f.Len() < 2 {
		return Identity{}, fmt.Errorf("elemer: identity reply has '%v' fields, want 2", f.Len())
	}
	address, err := DecodeText[uint8](f.At(fieldAddress))
	if err != nil {
		return Identity{}, err
	}
	typ, err := DecodeText[uint16](f.At(fieldValue))
	if err != nil {
		return Identity{}, err
	}
	return Identity{Address: address, Type: DeviceType(typ)}, nil
}

// decodeStatusReply extracts the status of a write-style reply. Instruments
// echo the address in field 0 and report the status in field 1; a reply with
// a single field carries the status alone.
func decodeStatusReply(f Fields) (Status, error) {
	switch f.Len() {
	case 0:
		return Status{}, ErrNoStatus
	case 1:
		return DecodeStatus(f.At(0)), nil
	default:
		return DecodeStatus(f.At(fieldValue)), nil
	}
}

// values returns the value fields of a read-style reply (everything after the
// address echo).
func values(f Fields) Fields {
	if f.Len() <= fieldValue {
		return nil
	}
	return f[fieldValue:]
}
