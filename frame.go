// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package elemer

import (
	"bytes"
	"strconv"
	"strings"
)

const replyStart = '!'

// Fields is the ordered sequence of fields of a validated reply. The slices
// alias the reply buffer they were split from.
type Fields [][]byte

// Len returns the number of fields.
func (f Fields) Len() int { return len(f) }

// At returns field i, or nil when the reply is shorter.
func (f Fields) At(i int) []byte {
	if i < 0 || i >= len(f) {
		return nil
	}
	return f[i]
}

// Strings returns a copy of the fields as strings.
func (f Fields) Strings() []string {
	out := make([]string, len(f))
	for i, v := range f {
		out[i] = string(v)
	}
	return out
}

func (f Fields) String() string {
	return strings.Join(f.Strings(), ";")
}

// ValidateAndSplit checks the framing and checksum of a reply and splits its
// payload into fields:
//
//	Noise           : optional, discarded
//	Start           : 1 char ('!')
//	Fields          : field;field;...;
//	CRC             : decimal digits over the fields
//	End             : 1 char ('\r'), anything after the last one is dropped
func ValidateAndSplit(raw []byte) (Fields, error) {
	start := bytes.IndexByte(raw, replyStart)
	if start < 0 {
		return nil, ErrNoStart
	}
	data := raw[start:]
	if end := bytes.LastIndexByte(data, frameEnd); end >= 0 {
		data = data[:end]
	}
	last := bytes.LastIndexByte(data, fieldSeparator)
	if last < 0 {
		return nil, ErrNoChecksum
	}
	received, err := parseChecksum(data[last+1:])
	if err != nil {
		return nil, ErrNoChecksum
	}

	var crc crc
	crc.reset().pushBytes(data[1 : last+1])
	if received != uint64(crc.value()) {
		return nil, &ChecksumError{Received: received, Computed: crc.value()}
	}
	return Fields(bytes.Split(data[1:last], []byte{fieldSeparator})), nil
}

// parseChecksum parses unsigned decimal digits only.
func parseChecksum(digits []byte) (uint64, error) {
	if len(digits) == 0 {
		return 0, strconv.ErrSyntax
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, strconv.ErrSyntax
		}
	}
	return strconv.ParseUint(string(digits), 10, 64)
}
