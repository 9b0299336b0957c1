// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import (
	"encoding/binary"
	"unicode/utf16"
)

// maxLeb128Width is the largest legal encoding of a 32-bit LEB128 value.
const maxLeb128Width = 5

// cursor is a bounds-checked reader over an immutable byte slice. Fixed-width
// reads honor the byte order declared by the file header; LEB128 and MUTF-8
// payloads are endian-independent.
type cursor struct {
	data []byte
	pos  int
	bo   binary.ByteOrder
}

func newCursor(data []byte, bo binary.ByteOrder) *cursor {
	return &cursor{data: data, bo: bo}
}

// Pos returns the current read offset.
func (c *cursor) Pos() int {
	return c.pos
}

func (c *cursor) require(n int) error {
	if c.pos+n > len(c.data) || c.pos+n < c.pos {
		return errOutOfBounds(uint64(c.pos)+uint64(n), uint64(len(c.data)))
	}
	return nil
}

// Uint8 reads one byte.
func (c *cursor) Uint8() (uint8, error) {
	if err := c.require(1); err != nil {
		return 0, err
	}
	b := c.data[c.pos]
	c.pos++
	return b, nil
}

// Uint16 reads a fixed-width 16-bit integer.
func (c *cursor) Uint16() (uint16, error) {
	if err := c.require(2); err != nil {
		return 0, err
	}
	v := c.bo.Uint16(c.data[c.pos:])
	c.pos += 2
	return v, nil
}

// Uint32 reads a fixed-width 32-bit integer.
func (c *cursor) Uint32() (uint32, error) {
	if err := c.require(4); err != nil {
		return 0, err
	}
	v := c.bo.Uint32(c.data[c.pos:])
	c.pos += 4
	return v, nil
}

// Uint64 reads a fixed-width 64-bit integer.
func (c *cursor) Uint64() (uint64, error) {
	if err := c.require(8); err != nil {
		return 0, err
	}
	v := c.bo.Uint64(c.data[c.pos:])
	c.pos += 8
	return v, nil
}

// Bytes reads n raw bytes.
func (c *cursor) Bytes(n int) ([]byte, error) {
	if err := c.require(n); err != nil {
		return nil, err
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes.
func (c *cursor) Skip(n int) error {
	if err := c.require(n); err != nil {
		return err
	}
	c.pos += n
	return nil
}

// Uleb128 reads an unsigned little-endian base-128 integer of at most five
// bytes.
func (c *cursor) Uleb128() (uint32, error) {
	var result uint32
	for i := 0; i < maxLeb128Width; i++ {
		b, err := c.Uint8()
		if err != nil {
			return 0, err
		}
		if i == maxLeb128Width-1 && b > 0x0f {
			return 0, errMalformed("uleb128 value overflows 32 bits")
		}
		result |= uint32(b&0x7f) << (7 * i)
		if b&0x80 == 0 {
			return result, nil
		}
	}
	return 0, errMalformed("uleb128 sequence longer than five bytes")
}

// Sleb128 reads a signed little-endian base-128 integer of at most five
// bytes, sign-extending the final payload bit.
func (c *cursor) Sleb128() (int32, error) {
	var result int32
	var shift uint
	for i := 0; i < maxLeb128Width; i++ {
		b, err := c.Uint8()
		if err != nil {
			return 0, err
		}
		result |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 32 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
	}
	return 0, errMalformed("sleb128 sequence longer than five bytes")
}

// Uleb128p1 reads a ULEB128 value and subtracts one; the encoded value zero
// maps to the NoIndex sentinel.
func (c *cursor) Uleb128p1() (uint32, error) {
	v, err := c.Uleb128()
	if err != nil {
		return 0, err
	}
	return v - 1, nil
}

// MUTF8 reads a complete string_data_item: a ULEB128 UTF-16 code unit count
// followed by a NUL-terminated MUTF-8 byte sequence. The count is decoded
// only to advance the stream; the terminator delimits the string.
func (c *cursor) MUTF8() (string, error) {
	if _, err := c.Uleb128(); err != nil {
		return "", err
	}
	start := c.pos
	for {
		b, err := c.Uint8()
		if err != nil {
			return "", err
		}
		if b == 0 {
			break
		}
	}
	return decodeMUTF8(c.data[start : c.pos-1])
}

// decodeMUTF8 converts a Java-modified UTF-8 byte sequence into a Go string.
// U+0000 arrives as the two-byte form 0xC0 0x80 and supplementary characters
// arrive as surrogate pairs, each surrogate encoded in three bytes.
func decodeMUTF8(b []byte) (string, error) {
	units := make([]uint16, 0, len(b))
	for i := 0; i < len(b); {
		c0 := b[i]
		switch {
		case c0&0x80 == 0:
			units = append(units, uint16(c0))
			i++
		case c0&0xe0 == 0xc0:
			if i+1 >= len(b) || b[i+1]&0xc0 != 0x80 {
				return "", errMalformed("truncated two-byte mutf-8 sequence at %d", i)
			}
			units = append(units, uint16(c0&0x1f)<<6|uint16(b[i+1]&0x3f))
			i += 2
		case c0&0xf0 == 0xe0:
			if i+2 >= len(b) || b[i+1]&0xc0 != 0x80 || b[i+2]&0xc0 != 0x80 {
				return "", errMalformed("truncated three-byte mutf-8 sequence at %d", i)
			}
			units = append(units, uint16(c0&0x0f)<<12|
				uint16(b[i+1]&0x3f)<<6|uint16(b[i+2]&0x3f))
			i += 3
		default:
			return "", errMalformed("invalid mutf-8 lead byte 0x%02x at %d", c0, i)
		}
	}
	return string(utf16.Decode(units)), nil
}

// encodeMUTF8 converts a Go string into the Java-modified UTF-8 byte
// sequence the string_ids section is sorted by.
func encodeMUTF8(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, len(units))
	for _, u := range units {
		switch {
		case u == 0:
			out = append(out, 0xc0, 0x80)
		case u < 0x80:
			out = append(out, byte(u))
		case u < 0x800:
			out = append(out, 0xc0|byte(u>>6), 0x80|byte(u&0x3f))
		default:
			out = append(out, 0xe0|byte(u>>12), 0x80|byte(u>>6&0x3f),
				0x80|byte(u&0x3f))
		}
	}
	return out
}
