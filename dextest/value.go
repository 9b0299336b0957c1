// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dextest

import (
	"math"
	"unicode/utf16"
)

// Value is an encoded value to be written into a static initializer array
// or an annotation element.
type Value interface {
	encode(l *layout) []byte
}

// Scalar encoded values.
type (
	// Byte is a signed one-byte value.
	Byte int8

	// Short is a signed two-byte value.
	Short int16

	// Char is an unsigned UTF-16 code unit value.
	Char uint16

	// Int is a signed four-byte value.
	Int int32

	// Long is a signed eight-byte value.
	Long int64

	// Float is a single precision value.
	Float float32

	// Double is a double precision value.
	Double float64

	// Bool is a boolean value.
	Bool bool

	// Null is the null reference.
	Null struct{}

	// Str is a string value, interned into the string table.
	Str string

	// Array is a nested array value.
	Array []Value
)

// Encoded value type tags.
const (
	tagByte    = 0x00
	tagShort   = 0x02
	tagChar    = 0x03
	tagInt     = 0x04
	tagLong    = 0x06
	tagFloat   = 0x10
	tagDouble  = 0x11
	tagString  = 0x17
	tagArray   = 0x1c
	tagNull    = 0x1e
	tagBoolean = 0x1f
)

// signedBytes returns the minimal little-endian encoding whose
// sign-extension reproduces v.
func signedBytes(v int64, maxWidth int) []byte {
	out := make([]byte, 0, maxWidth)
	for {
		b := byte(v & 0xff)
		v >>= 8
		out = append(out, b)
		done := (v == 0 && b&0x80 == 0) || (v == -1 && b&0x80 != 0)
		if done || len(out) == maxWidth {
			return out
		}
	}
}

// unsignedBytes returns the minimal little-endian encoding whose
// zero-extension reproduces v.
func unsignedBytes(v uint64, maxWidth int) []byte {
	out := make([]byte, 0, maxWidth)
	for {
		out = append(out, byte(v&0xff))
		v >>= 8
		if v == 0 || len(out) == maxWidth {
			return out
		}
	}
}

func tagged(tag int, payload []byte) []byte {
	header := byte((len(payload)-1)<<5 | tag)
	return append([]byte{header}, payload...)
}

func (v Byte) encode(*layout) []byte {
	return tagged(tagByte, signedBytes(int64(v), 1))
}

func (v Short) encode(*layout) []byte {
	return tagged(tagShort, signedBytes(int64(v), 2))
}

func (v Char) encode(*layout) []byte {
	return tagged(tagChar, unsignedBytes(uint64(v), 2))
}

func (v Int) encode(*layout) []byte {
	return tagged(tagInt, signedBytes(int64(v), 4))
}

func (v Long) encode(*layout) []byte {
	return tagged(tagLong, signedBytes(int64(v), 8))
}

func (v Float) encode(*layout) []byte {
	return tagged(tagFloat, unsignedBytes(uint64(math.Float32bits(float32(v))), 4))
}

func (v Double) encode(*layout) []byte {
	return tagged(tagDouble, unsignedBytes(math.Float64bits(float64(v)), 8))
}

func (v Bool) encode(*layout) []byte {
	arg := 0
	if v {
		arg = 1
	}
	return []byte{byte(arg<<5 | tagBoolean)}
}

func (Null) encode(*layout) []byte {
	return []byte{tagNull}
}

func (v Str) encode(l *layout) []byte {
	return tagged(tagString, unsignedBytes(uint64(l.stringIDs[string(v)]), 4))
}

func (v Array) encode(l *layout) []byte {
	out := []byte{tagArray}
	out = appendUleb128(out, uint32(len(v)))
	for _, element := range v {
		out = append(out, element.encode(l)...)
	}
	return out
}

// collectValueStrings feeds every string referenced by a value into add.
func collectValueStrings(v Value, add func(string)) {
	switch v := v.(type) {
	case Str:
		add(string(v))
	case Array:
		for _, element := range v {
			collectValueStrings(element, add)
		}
	}
}

// appendUleb128 appends the ULEB128 encoding of v.
func appendUleb128(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

// appendSleb128 appends the SLEB128 encoding of v.
func appendSleb128(out []byte, v int32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// encodeMUTF8 converts a string into Java-modified UTF-8 bytes.
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

// utf16Len returns the number of UTF-16 code units of s, the count the
// string_data_item header stores.
func utf16Len(s string) uint32 {
	return uint32(len(utf16.Encode([]rune(s))))
}
