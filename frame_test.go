package elemer

import (
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
	"pgregory.net/rapid"
)

// buildReply frames fields the way an instrument does.
func buildReply(fields ...string) []byte {
	var payload []byte
	for _, f := range fields {
		payload = append(payload, f...)
		payload = append(payload, fieldSeparator)
	}
	reply := append([]byte{replyStart}, payload...)
	reply = strconv.AppendUint(reply, uint64(Checksum(payload)), 10)
	return append(reply, frameEnd)
}

func TestValidateAndSplit(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected []string
	}{
		{"identity", "!5;12;23712\r", []string{"5", "12"}},
		{"status ok", "!$0;6244\r", []string{"$0"}},
		{"status code", "!$7;10342\r", []string{"$7"}},
		{"noise before start", "\x00\xffxx!5;12;23712\r", []string{"5", "12"}},
		{"trailing bytes", "!5;12;23712\r!1;", []string{"5", "12"}},
		{"no terminator", "!5;12;23712", []string{"5", "12"}},
		{"leading zeros", "!$0;006244\r", []string{"$0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := ValidateAndSplit([]byte(tt.raw))
			if err != nil {
				t.Fatal(err)
			}
			if !cmp.Equal(tt.expected, fields.Strings()) {
				t.Fatalf("fields: %s", cmp.Diff(tt.expected, fields.Strings()))
			}
		})
	}
}

func TestValidateAndSplitErrors(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected error
	}{
		{"empty", "", ErrNoStart},
		{"no start", "5;12;23712\r", ErrNoStart},
		{"no separator", "!23712\r", ErrNoChecksum},
		{"empty checksum", "!5;12;\r", ErrNoChecksum},
		{"non digit checksum", "!5;12;2371x\r", ErrNoChecksum},
		{"signed checksum", "!5;12;+23712\r", ErrNoChecksum},
		{"overflow", "!5;12;99999999999999999999999\r", ErrNoChecksum},
		{"mismatch", "!5;13;23712\r", ErrChecksumMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields, err := ValidateAndSplit([]byte(tt.raw))
			if !errors.Is(err, tt.expected) {
				t.Fatalf("expected %v, actual %v", tt.expected, err)
			}
			if fields != nil {
				t.Fatalf("expected no fields, actual %v", fields)
			}
		})
	}
}

func TestChecksumErrorDetails(t *testing.T) {
	_, err := ValidateAndSplit([]byte("!5;13;23712\r"))
	var ce *ChecksumError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ChecksumError, actual %v", err)
	}
	if ce.Received != 23712 || ce.Computed != Checksum([]byte("5;13;")) {
		t.Fatalf("unexpected checksum error %+v", ce)
	}
}

func TestFieldsAt(t *testing.T) {
	fields := Fields{[]byte("5"), []byte("12")}
	if fields.At(-1) != nil || fields.At(2) != nil {
		t.Fatal("out of range field should be nil")
	}
	if string(fields.At(1)) != "12" {
		t.Fatalf("expected 12, actual %q", fields.At(1))
	}
	if fields.String() != "5;12" {
		t.Fatalf("expected 5;12, actual %q", fields.String())
	}
}

func fieldGen() *rapid.Generator[string] {
	return rapid.StringMatching(`[0-9A-Z$.\-]{1,8}`)
}

func TestReplyGarbagePrefix(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fields := rapid.SliceOfN(fieldGen(), 1, 6).Draw(t, "fields")
		garbage := rapid.SliceOf(rapid.ByteRange(0, 0xFF).Filter(func(b byte) bool {
			return b != replyStart
		})).Draw(t, "garbage")

		reply := buildReply(fields...)
		clean, err := ValidateAndSplit(reply)
		if err != nil {
			t.Fatalf("%q: %v", reply, err)
		}
		noisy, err := ValidateAndSplit(append(garbage, reply...))
		if err != nil {
			t.Fatalf("%q: %v", append(garbage, reply...), err)
		}
		if !cmp.Equal(clean.Strings(), noisy.Strings()) {
			t.Fatalf("fields differ: %s", cmp.Diff(clean.Strings(), noisy.Strings()))
		}
		if !cmp.Equal(fields, clean.Strings()) {
			t.Fatalf("fields differ: %s", cmp.Diff(fields, clean.Strings()))
		}
	})
}

func TestReplyBitFlip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		fields := rapid.SliceOfN(fieldGen(), 1, 6).Draw(t, "fields")
		reply := buildReply(fields...)

		// The checksummed payload spans from after '!' through the last ';'.
		// Separators are left alone so the checksum field stays in place.
		var positions []int
		for i := 1; i < len(reply) && i <= lastSeparator(reply); i++ {
			if reply[i] != fieldSeparator {
				positions = append(positions, i)
			}
		}
		pos := rapid.SampledFrom(positions).Draw(t, "pos")
		bit := rapid.IntRange(0, 7).Draw(t, "bit")

		corrupted := append([]byte(nil), reply...)
		corrupted[pos] ^= 1 << bit

		if _, err := ValidateAndSplit(corrupted); !errors.Is(err, ErrChecksumMismatch) {
			t.Fatalf("%q: expected checksum mismatch, actual %v", corrupted, err)
		}
	})
}

func lastSeparator(b []byte) int {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] == fieldSeparator {
			return i
		}
	}
	return -1
}
