// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package snss

import (
	"encoding/binary"
	"unicode/utf16"
)

// pickleReader decodes Chromium's base::Pickle serialization. All values are
// little-endian and 4-byte aligned; every read bounds-checks the remaining
// buffer and reports failure instead of reading past the end.
type pickleReader struct {
	data []byte
	pos  int
}

func newPickleReader(data []byte) *pickleReader {
	return &pickleReader{data: data}
}

func (r *pickleReader) remaining() int {
	return len(r.data) - r.pos
}

func (r *pickleReader) readInt32() (int32, bool) {
	if r.remaining() < 4 {
		return 0, false
	}
	v := int32(binary.LittleEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	return v, true
}

func (r *pickleReader) readUint32() (uint32, bool) {
	if r.remaining() < 4 {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, true
}

func (r *pickleReader) readInt64() (int64, bool) {
	if r.remaining() < 8 {
		return 0, false
	}
	v := int64(binary.LittleEndian.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, true
}

// readBool reads a boolean, stored as a 4-byte int.
func (r *pickleReader) readBool() (bool, bool) {
	v, ok := r.readInt32()
	if !ok {
		return false, false
	}
	return v != 0, true
}

// readString reads a 4-byte length followed by UTF-8 bytes, padded to a
// 4-byte boundary.
func (r *pickleReader) readString() (string, bool) {
	length, ok := r.readInt32()
	if !ok || length < 0 {
		return "", false
	}
	if length == 0 {
		return "", true
	}
	n := int(length)
	if r.remaining() < n {
		return "", false
	}
	v := string(r.data[r.pos : r.pos+n])
	r.pos += n + pad4(n)
	return v, true
}

// readString16 reads a 4-byte character count followed by UTF-16LE code
// units, padded to a 4-byte boundary.
func (r *pickleReader) readString16() (string, bool) {
	charCount, ok := r.readInt32()
	if !ok || charCount < 0 {
		return "", false
	}
	if charCount == 0 {
		return "", true
	}
	byteLen := int(charCount) * 2
	if r.remaining() < byteLen {
		return "", false
	}
	units := make([]uint16, charCount)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(r.data[r.pos+i*2:])
	}
	r.pos += byteLen + pad4(byteLen)
	return string(utf16.Decode(units)), true
}

func pad4(n int) int {
	return (4 - n%4) % 4
}
