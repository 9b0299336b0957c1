// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

// valueCursor wraps raw encoded-value bytes in a cursor. The numeric cases
// never touch the identifier tables, so a zero-value File suffices.
func valueCursor(raw []byte) (*File, *cursor) {
	file := &File{bo: binary.LittleEndian}
	return file, newCursor(raw, binary.LittleEndian)
}

func TestReadEncodedValueNumerics(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		out  EncodedValue
	}{
		{"byte -100", []byte{0x00, 0x9c}, ValueByte(-100)},
		{"byte 100", []byte{0x00, 0x64}, ValueByte(100)},
		{"short -12048 two bytes", []byte{0x22, 0xf0, 0xd0}, ValueShort(-12048)},
		{"short -128 one byte", []byte{0x02, 0x80}, ValueShort(-128)},
		{"short 127 one byte", []byte{0x02, 0x7f}, ValueShort(127)},
		{"char 0xff zero extended", []byte{0x03, 0xff}, ValueChar(255)},
		{"char 0xffee", []byte{0x23, 0xee, 0xff}, ValueChar(0xffee)},
		{"int 42 one byte", []byte{0x04, 0x2a}, ValueInt(42)},
		{"int -1 one byte", []byte{0x04, 0xff}, ValueInt(-1)},
		{"int sign extended from three bytes",
			[]byte{0x44, 0x00, 0x00, 0x80}, ValueInt(-8388608)},
		{"long full width",
			[]byte{0xe6, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
			ValueLong(0x0807060504030201)},
		{"long -1 one byte", []byte{0x06, 0xff}, ValueLong(-1)},
		{"float low bytes",
			[]byte{0x30, 0xef, 0xbe, 0x00}, ValueFloat(math.Float32frombits(0x0000beef))},
		{"float 1.5 full width",
			[]byte{0x70, 0x00, 0x00, 0xc0, 0x3f}, ValueFloat(1.5)},
		{"double low bytes",
			[]byte{0x51, 0x00, 0xf8, 0x3f}, ValueDouble(math.Float64frombits(0x003ff800))},
		{"boolean false", []byte{0x1f}, ValueBoolean(false)},
		{"boolean true", []byte{0x3f}, ValueBoolean(true)},
		{"null", []byte{0x1e}, ValueNull{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, c := valueCursor(tt.in)
			got, err := file.readEncodedValue(c)
			if err != nil {
				t.Fatalf("readEncodedValue(% x) failed, reason: %v", tt.in, err)
			}
			if got != tt.out {
				t.Errorf("readEncodedValue(% x) assertion failed, got %v, want %v",
					tt.in, got, tt.out)
			}
		})
	}
}

func TestReadEncodedValueMalformed(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
	}{
		{"unknown value type", []byte{0x01}},
		{"byte with oversized arg", []byte{0x20, 0x00, 0x00}},
		{"short with oversized arg", []byte{0x42, 0x00, 0x00, 0x00}},
		{"null with arg", []byte{0x3e}},
		{"array with arg", []byte{0x3c}},
		{"boolean with oversized arg", []byte{0x5f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, c := valueCursor(tt.in)
			_, err := file.readEncodedValue(c)
			var dexErr *Error
			if !errors.As(err, &dexErr) || dexErr.Kind != KindMalformed {
				t.Fatalf("malformed value assertion failed, got %v", err)
			}
		})
	}
}

func TestReadEncodedValueTruncated(t *testing.T) {
	file, c := valueCursor([]byte{0x66, 0x01, 0x02})
	_, err := file.readEncodedValue(c)
	var dexErr *Error
	if !errors.As(err, &dexErr) || dexErr.Kind != KindOutOfBounds {
		t.Fatalf("truncated value assertion failed, got %v", err)
	}
}

func TestReadEncodedArrayNested(t *testing.T) {
	// [int 1, [boolean true], null]
	raw := []byte{
		0x03,       // size 3
		0x04, 0x01, // int 1
		0x1c, 0x01, 0x3f, // nested array of one true
		0x1e, // null
	}
	file, c := valueCursor(raw)
	values, err := file.readEncodedArray(c)
	if err != nil {
		t.Fatalf("readEncodedArray failed, reason: %v", err)
	}
	if len(values) != 3 {
		t.Fatalf("array length assertion failed, got %d, want 3", len(values))
	}
	if values[0] != ValueInt(1) {
		t.Errorf("element 0 assertion failed, got %v", values[0])
	}
	nested, ok := values[1].(ValueArray)
	if !ok || len(nested) != 1 || nested[0] != ValueBoolean(true) {
		t.Errorf("element 1 assertion failed, got %v", values[1])
	}
	if values[2] != (ValueNull{}) {
		t.Errorf("element 2 assertion failed, got %v", values[2])
	}
}

func TestGetStaticValuesOffsetValidation(t *testing.T) {
	file := parseImage(t, buildLauncherImage(), nil)

	empty, err := file.GetStaticValues(0)
	if err != nil {
		t.Fatalf("GetStaticValues(0) failed, reason: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("zero offset assertion failed, got %d values", len(empty))
	}

	_, err = file.GetStaticValues(file.Header.DataOff - 1)
	var dexErr *Error
	if !errors.As(err, &dexErr) || dexErr.Kind != KindBadOffset {
		t.Fatalf("bad offset assertion failed, got %v", err)
	}
}
