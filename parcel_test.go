package elemer

import (
	"bytes"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

func TestBuildRequest(t *testing.T) {
	tests := []struct {
		name     string
		address  uint8
		command  Command
		args     []any
		expected string
	}{
		{"identify", 5, CmdIdentify, nil, "\xff:5;0;63019\r"},
		{"set address", 5, CmdSetAddress, []any{uint8(7)}, "\xff:5;33;7;58967\r"},
		{"set baud", 1, CmdSetBaudRate, []any{Baud9600}, "\xff:1;34;5;12818\r"},
		{"file read", 5, CmdFileRead, []any{4}, "\xff:5;42;4;10979\r"},
		{"file write", 5, CmdFileWrite, []any{Hex{0x01, 0x02, 0xAB, 0xFF}}, "\xff:5;43;0102ABFF;18413\r"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := BuildRequest(tt.address, tt.command, tt.args...)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal([]byte(tt.expected), actual) {
				t.Fatalf("expected %q, actual %q", tt.expected, actual)
			}
		})
	}
}

func TestParcelFieldEncoding(t *testing.T) {
	p := NewParcel(3, CmdReadMeasured)
	if err := p.Append(25.5, -1, "ab", []byte("cd"), true, float32(0.25)); err != nil {
		t.Fatal(err)
	}
	expected := "\xff:3;1;25.50000;-1;ab;cd;1;0.25000;"
	if actual := p.buf.String(); actual != expected {
		t.Fatalf("expected %q, actual %q", expected, actual)
	}
}

func TestParcelSemicolons(t *testing.T) {
	p := NewParcel(1, CmdParamWrite)
	if err := p.Append(10, Semicolon{}, 20, SkipSemicolon{}); err != nil {
		t.Fatal(err)
	}
	expected := "\xff:1;38;10;;20"
	if actual := p.buf.String(); actual != expected {
		t.Fatalf("expected %q, actual %q", expected, actual)
	}
}

func TestParcelRejectsEmptyField(t *testing.T) {
	for _, arg := range []any{"", []byte{}, Hex{}} {
		_, err := BuildRequest(1, CmdParamWrite, 1, arg)
		var ee *EncodeError
		if !errors.As(err, &ee) || !errors.Is(err, ErrEmptyField) {
			t.Fatalf("%T: expected empty field error, actual %v", arg, err)
		}
		if ee.Index != 1 {
			t.Fatalf("%T: expected argument index 1, actual %v", arg, ee.Index)
		}
	}
}

func TestParcelRejectsUnsupportedType(t *testing.T) {
	_, err := BuildRequest(1, CmdParamWrite, struct{}{})
	var ee *EncodeError
	if !errors.As(err, &ee) {
		t.Fatalf("expected *EncodeError, actual %v", err)
	}
}

func TestToHex(t *testing.T) {
	h, err := ToHex(uint16(0x1234), int8(-1), "A", []byte{0x00})
	if err != nil {
		t.Fatal(err)
	}
	expected := []byte{0x34, 0x12, 0xFF, 'A', 0x00}
	if !bytes.Equal(expected, h) {
		t.Fatalf("expected % x, actual % x", expected, []byte(h))
	}

	if _, err := ToHex(map[int]int{}); err == nil {
		t.Fatal("expected error for a value without fixed size")
	}
}

func TestRequestChecksumRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		address := rapid.Byte().Draw(t, "address")
		command := Command(rapid.Byte().Draw(t, "command"))
		args := rapid.SliceOf(rapid.Int32()).Draw(t, "args")

		anyArgs := make([]any, len(args))
		for i, a := range args {
			anyArgs[i] = a
		}
		req, err := BuildRequest(address, command, anyArgs...)
		if err != nil {
			t.Fatal(err)
		}

		// A reply carrying the same payload validates with the request's
		// checksum.
		reply := append([]byte{replyStart}, req[parcelPreamble:]...)
		fields, err := ValidateAndSplit(reply)
		if err != nil {
			t.Fatalf("reply %q: %v", reply, err)
		}
		if fields.Len() != 2+len(args) {
			t.Fatalf("expected %v fields, actual %v", 2+len(args), fields.Len())
		}
		if v, err := DecodeText[uint8](fields.At(0)); err != nil || v != address {
			t.Fatalf("address field %q: %v", fields.At(0), err)
		}
		for i, a := range args {
			if v, err := DecodeText[int32](fields.At(2 + i)); err != nil || v != a {
				t.Fatalf("argument %d field %q: %v", i, fields.At(2+i), err)
			}
		}
	})
}
