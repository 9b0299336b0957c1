// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import "math"

// EncodedValue is the tagged union used by static field initializers and
// annotation element values. The concrete type is one of the Value* variants
// below.
type EncodedValue interface {
	isEncodedValue()
}

// EncodedArray is a sequence of encoded values.
type EncodedArray []EncodedValue

// Encoded value variants. Index-carrying cases are resolved against the
// identifier tables at decode time.
type (
	// ValueByte is a signed one-byte integer.
	ValueByte int8

	// ValueShort is a signed two-byte integer.
	ValueShort int16

	// ValueChar is an unsigned UTF-16 code unit.
	ValueChar uint16

	// ValueInt is a signed four-byte integer.
	ValueInt int32

	// ValueLong is a signed eight-byte integer.
	ValueLong int64

	// ValueFloat is an IEEE-754 single precision value.
	ValueFloat float32

	// ValueDouble is an IEEE-754 double precision value.
	ValueDouble float64

	// ValueMethodType is a resolved prototype.
	ValueMethodType ProtoIDItem

	// ValueMethodHandle is a resolved method handle.
	ValueMethodHandle MethodHandleItem

	// ValueString is a resolved string.
	ValueString string

	// ValueType is a resolved type.
	ValueType Type

	// ValueField is a resolved field reference.
	ValueField FieldIDItem

	// ValueMethod is a resolved method reference.
	ValueMethod MethodIDItem

	// ValueEnum is a resolved reference to an enum constant field.
	ValueEnum FieldIDItem

	// ValueArray is a nested encoded array.
	ValueArray EncodedArray

	// ValueAnnotation is a nested annotation.
	ValueAnnotation EncodedAnnotation

	// ValueNull is the null reference.
	ValueNull struct{}

	// ValueBoolean is a boolean carried in the tag byte itself.
	ValueBoolean bool
)

func (ValueByte) isEncodedValue()         {}
func (ValueShort) isEncodedValue()        {}
func (ValueChar) isEncodedValue()         {}
func (ValueInt) isEncodedValue()          {}
func (ValueLong) isEncodedValue()         {}
func (ValueFloat) isEncodedValue()        {}
func (ValueDouble) isEncodedValue()       {}
func (ValueMethodType) isEncodedValue()   {}
func (ValueMethodHandle) isEncodedValue() {}
func (ValueString) isEncodedValue()       {}
func (ValueType) isEncodedValue()         {}
func (ValueField) isEncodedValue()        {}
func (ValueMethod) isEncodedValue()       {}
func (ValueEnum) isEncodedValue()         {}
func (ValueArray) isEncodedValue()        {}
func (ValueAnnotation) isEncodedValue()   {}
func (ValueNull) isEncodedValue()         {}
func (ValueBoolean) isEncodedValue()      {}

// Encoded value type discriminants.
const (
	valueByte         = 0x00
	valueShort        = 0x02
	valueChar         = 0x03
	valueInt          = 0x04
	valueLong         = 0x06
	valueFloat        = 0x10
	valueDouble       = 0x11
	valueMethodType   = 0x15
	valueMethodHandle = 0x16
	valueString       = 0x17
	valueType         = 0x18
	valueField        = 0x19
	valueMethod       = 0x1a
	valueEnum         = 0x1b
	valueArray        = 0x1c
	valueAnnotation   = 0x1d
	valueNull         = 0x1e
	valueBoolean      = 0x1f
)

// readSignExtended reads width little-endian bytes and sign-extends the
// result from the top bit of the last byte read. Encoded value payloads are
// little-endian regardless of the file's declared byte order.
func readSignExtended(c *cursor, width int) (int64, error) {
	b, err := c.Bytes(width)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	if b[width-1]&0x80 != 0 {
		for i := width; i < 8; i++ {
			v |= 0xff << (8 * i)
		}
	}
	return int64(v), nil
}

// readZeroExtended reads width little-endian bytes into the low bytes of the
// result, leaving the high bytes zero.
func readZeroExtended(c *cursor, width int) (uint64, error) {
	b, err := c.Bytes(width)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < width; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v, nil
}

// readEncodedValue decodes one encoded_value at the cursor. The leading byte
// packs a three-bit size argument over a five-bit type tag.
func (dex *File) readEncodedValue(c *cursor) (EncodedValue, error) {
	header, err := c.Uint8()
	if err != nil {
		return nil, err
	}
	valueArg := int(header >> 5)
	valueType := header & 0x1f

	checkArg := func(max int) error {
		if valueArg > max {
			return errMalformed(
				"value_arg %d out of range for value type 0x%02x",
				valueArg, valueType)
		}
		return nil
	}

	switch valueType {
	case valueByte:
		if err := checkArg(0); err != nil {
			return nil, err
		}
		v, err := readSignExtended(c, 1)
		if err != nil {
			return nil, err
		}
		return ValueByte(v), nil
	case valueShort:
		if err := checkArg(1); err != nil {
			return nil, err
		}
		v, err := readSignExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		return ValueShort(v), nil
	case valueChar:
		if err := checkArg(1); err != nil {
			return nil, err
		}
		v, err := readZeroExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		return ValueChar(v), nil
	case valueInt:
		if err := checkArg(3); err != nil {
			return nil, err
		}
		v, err := readSignExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		return ValueInt(v), nil
	case valueLong:
		if err := checkArg(7); err != nil {
			return nil, err
		}
		v, err := readSignExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		return ValueLong(v), nil
	case valueFloat:
		if err := checkArg(3); err != nil {
			return nil, err
		}
		bits, err := readZeroExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		return ValueFloat(math.Float32frombits(uint32(bits))), nil
	case valueDouble:
		if err := checkArg(7); err != nil {
			return nil, err
		}
		bits, err := readZeroExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		return ValueDouble(math.Float64frombits(bits)), nil
	case valueMethodType:
		if err := checkArg(3); err != nil {
			return nil, err
		}
		idx, err := readZeroExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		proto, err := dex.GetProtoItem(ProtoID(idx))
		if err != nil {
			return nil, err
		}
		return ValueMethodType(proto), nil
	case valueMethodHandle:
		if err := checkArg(3); err != nil {
			return nil, err
		}
		idx, err := readZeroExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		handle, err := dex.GetMethodHandleItem(MethodHandleID(idx))
		if err != nil {
			return nil, err
		}
		return ValueMethodHandle(handle), nil
	case valueString:
		if err := checkArg(3); err != nil {
			return nil, err
		}
		idx, err := readZeroExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		s, err := dex.GetString(StringID(idx))
		if err != nil {
			return nil, err
		}
		return ValueString(s), nil
	case valueType:
		if err := checkArg(3); err != nil {
			return nil, err
		}
		idx, err := readZeroExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		t, err := dex.GetType(TypeID(idx))
		if err != nil {
			return nil, err
		}
		return ValueType(t), nil
	case valueField:
		if err := checkArg(3); err != nil {
			return nil, err
		}
		idx, err := readZeroExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		field, err := dex.GetFieldItem(FieldID(idx))
		if err != nil {
			return nil, err
		}
		return ValueField(field), nil
	case valueMethod:
		if err := checkArg(3); err != nil {
			return nil, err
		}
		idx, err := readZeroExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		method, err := dex.GetMethodItem(MethodID(idx))
		if err != nil {
			return nil, err
		}
		return ValueMethod(method), nil
	case valueEnum:
		if err := checkArg(3); err != nil {
			return nil, err
		}
		idx, err := readZeroExtended(c, valueArg+1)
		if err != nil {
			return nil, err
		}
		field, err := dex.GetFieldItem(FieldID(idx))
		if err != nil {
			return nil, err
		}
		return ValueEnum(field), nil
	case valueArray:
		if err := checkArg(0); err != nil {
			return nil, err
		}
		array, err := dex.readEncodedArray(c)
		if err != nil {
			return nil, err
		}
		return ValueArray(array), nil
	case valueAnnotation:
		if err := checkArg(0); err != nil {
			return nil, err
		}
		annotation, err := dex.readEncodedAnnotation(c)
		if err != nil {
			return nil, err
		}
		return ValueAnnotation(annotation), nil
	case valueNull:
		if err := checkArg(0); err != nil {
			return nil, err
		}
		return ValueNull{}, nil
	case valueBoolean:
		if err := checkArg(1); err != nil {
			return nil, err
		}
		return ValueBoolean(valueArg == 1), nil
	}
	return nil, errMalformed("unknown value type 0x%02x", valueType)
}

// readEncodedArray decodes a ULEB128 element count followed by that many
// back-to-back encoded values.
func (dex *File) readEncodedArray(c *cursor) (EncodedArray, error) {
	size, err := c.Uleb128()
	if err != nil {
		return nil, err
	}
	values := make(EncodedArray, 0, size)
	for i := uint32(0); i < size; i++ {
		v, err := dex.readEncodedValue(c)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// GetStaticValues decodes the encoded array of static field initializers at
// the given offset. A zero offset yields an empty array.
func (dex *File) GetStaticValues(offset uint32) (EncodedArray, error) {
	if offset == 0 {
		return nil, nil
	}
	if err := dex.checkDataOffset(offset, "static values"); err != nil {
		return nil, err
	}
	return dex.readEncodedArray(dex.cursorAt(offset))
}
