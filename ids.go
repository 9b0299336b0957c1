// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import "iter"

// Typed indices into the identifier sections. All of them are zero-based.
type (
	// StringID indexes the string_ids table.
	StringID uint32

	// TypeID indexes the type_ids table.
	TypeID uint32

	// ProtoID indexes the proto_ids table.
	ProtoID uint32

	// FieldID indexes the field_ids table.
	FieldID uint32

	// MethodID indexes the method_ids table.
	MethodID uint32

	// MethodHandleID indexes the method_handles section.
	MethodHandleID uint32
)

// ClassID is a TypeID whose referent is a class type.
type ClassID = TypeID

// Record strides of the fixed-layout identifier sections.
const (
	stringIDItemSize = 4
	typeIDItemSize   = 4
	fieldIDItemSize  = 8
	protoIDItemSize  = 12
	methodIDItemSize = 8
	methodHandleSize = 8
	classDefItemSize = 32
)

// Type pairs a type id with the descriptor string it names. Two types are
// the same type exactly when their ids match.
type Type struct {
	ID         TypeID `json:"id"`
	Descriptor string `json:"descriptor"`
}

// String returns the type descriptor.
func (t Type) String() string {
	return t.Descriptor
}

// Equal reports whether both types refer to the same type_ids entry.
func (t Type) Equal(other Type) bool {
	return t.ID == other.ID
}

// GetType resolves a type id to its descriptor.
func (dex *File) GetType(id TypeID) (Type, error) {
	if uint32(id) >= dex.Header.TypeIDsSize {
		return Type{}, errInvalidID("type id", uint64(id))
	}
	c := dex.cursorAt(dex.Header.TypeIDsOff + typeIDItemSize*uint32(id))
	descriptorIdx, err := c.Uint32()
	if err != nil {
		return Type{}, err
	}
	descriptor, err := dex.GetString(StringID(descriptorIdx))
	if err != nil {
		return Type{}, err
	}
	return Type{ID: id, Descriptor: descriptor}, nil
}

// getTypeID finds the type naming the given descriptor string. The type_ids
// table is sorted by descriptor string, and the string table is itself
// sorted, so the search reduces to comparing string indices.
func (dex *File) getTypeID(descriptorIdx StringID) (TypeID, bool, error) {
	idx, found, err := binarySearch(dex.Header.TypeIDsSize,
		func(i uint32) (int, error) {
			c := dex.cursorAt(dex.Header.TypeIDsOff + typeIDItemSize*i)
			stored, err := c.Uint32()
			if err != nil {
				return 0, err
			}
			switch {
			case stored < uint32(descriptorIdx):
				return -1, nil
			case stored > uint32(descriptorIdx):
				return 1, nil
			}
			return 0, nil
		})
	return TypeID(idx), found, err
}

// GetTypeFromDescriptor finds the type naming the given descriptor, or nil
// when the file defines no such type.
func (dex *File) GetTypeFromDescriptor(descriptor string) (*Type, error) {
	stringIdx, ok := dex.GetStringID(descriptor)
	if !ok {
		return nil, nil
	}
	typeIdx, ok, err := dex.getTypeID(stringIdx)
	if err != nil || !ok {
		return nil, err
	}
	return &Type{ID: typeIdx, Descriptor: descriptor}, nil
}

// FieldIDItem is a field_ids record: the defining class, the field type and
// the field name.
type FieldIDItem struct {
	ID       FieldID  `json:"id"`
	ClassIdx TypeID   `json:"class_idx"`
	TypeIdx  TypeID   `json:"type_idx"`
	NameIdx  StringID `json:"name_idx"`
}

// GetFieldItem decodes the field_ids record at the given index.
func (dex *File) GetFieldItem(id FieldID) (FieldIDItem, error) {
	if uint32(id) >= dex.Header.FieldIDsSize {
		return FieldIDItem{}, errInvalidID("field id", uint64(id))
	}
	c := dex.cursorAt(dex.Header.FieldIDsOff + fieldIDItemSize*uint32(id))
	classIdx, err := c.Uint16()
	if err != nil {
		return FieldIDItem{}, err
	}
	typeIdx, err := c.Uint16()
	if err != nil {
		return FieldIDItem{}, err
	}
	nameIdx, err := c.Uint32()
	if err != nil {
		return FieldIDItem{}, err
	}
	return FieldIDItem{
		ID:       id,
		ClassIdx: TypeID(classIdx),
		TypeIdx:  TypeID(typeIdx),
		NameIdx:  StringID(nameIdx),
	}, nil
}

// ProtoIDItem is a proto_ids record: the shorty summary, the return type and
// the offset of the parameter type list.
type ProtoIDItem struct {
	ID            ProtoID  `json:"id"`
	ShortyIdx     StringID `json:"shorty_idx"`
	ReturnTypeIdx TypeID   `json:"return_type_idx"`
	ParametersOff uint32   `json:"parameters_off"`
}

// GetProtoItem decodes the proto_ids record at the given index.
func (dex *File) GetProtoItem(id ProtoID) (ProtoIDItem, error) {
	if uint32(id) >= dex.Header.ProtoIDsSize {
		return ProtoIDItem{}, errInvalidID("proto id", uint64(id))
	}
	c := dex.cursorAt(dex.Header.ProtoIDsOff + protoIDItemSize*uint32(id))
	shortyIdx, err := c.Uint32()
	if err != nil {
		return ProtoIDItem{}, err
	}
	returnTypeIdx, err := c.Uint32()
	if err != nil {
		return ProtoIDItem{}, err
	}
	parametersOff, err := c.Uint32()
	if err != nil {
		return ProtoIDItem{}, err
	}
	return ProtoIDItem{
		ID:            id,
		ShortyIdx:     StringID(shortyIdx),
		ReturnTypeIdx: TypeID(returnTypeIdx),
		ParametersOff: parametersOff,
	}, nil
}

// MethodIDItem is a method_ids record: the defining class, the prototype and
// the method name.
type MethodIDItem struct {
	ID       MethodID `json:"id"`
	ClassIdx TypeID   `json:"class_idx"`
	ProtoIdx ProtoID  `json:"proto_idx"`
	NameIdx  StringID `json:"name_idx"`
}

// GetMethodItem decodes the method_ids record at the given index.
func (dex *File) GetMethodItem(id MethodID) (MethodIDItem, error) {
	if uint32(id) >= dex.Header.MethodIDsSize {
		return MethodIDItem{}, errInvalidID("method id", uint64(id))
	}
	c := dex.cursorAt(dex.Header.MethodIDsOff + methodIDItemSize*uint32(id))
	classIdx, err := c.Uint16()
	if err != nil {
		return MethodIDItem{}, err
	}
	protoIdx, err := c.Uint16()
	if err != nil {
		return MethodIDItem{}, err
	}
	nameIdx, err := c.Uint32()
	if err != nil {
		return MethodIDItem{}, err
	}
	return MethodIDItem{
		ID:       id,
		ClassIdx: TypeID(classIdx),
		ProtoIdx: ProtoID(protoIdx),
		NameIdx:  StringID(nameIdx),
	}, nil
}

// MethodHandleType discriminates the nine method handle kinds.
type MethodHandleType uint16

// Method handle types. The first four address a field, the rest a method.
const (
	MethodHandleStaticPut       MethodHandleType = 0x00
	MethodHandleStaticGet       MethodHandleType = 0x01
	MethodHandleInstancePut     MethodHandleType = 0x02
	MethodHandleInstanceGet     MethodHandleType = 0x03
	MethodHandleInvokeStatic    MethodHandleType = 0x04
	MethodHandleInvokeInstance  MethodHandleType = 0x05
	MethodHandleInvokeConstruct MethodHandleType = 0x06
	MethodHandleInvokeDirect    MethodHandleType = 0x07
	MethodHandleInvokeInterface MethodHandleType = 0x08
)

// String stringifies the method handle type.
func (t MethodHandleType) String() string {
	names := map[MethodHandleType]string{
		MethodHandleStaticPut:       "static-put",
		MethodHandleStaticGet:       "static-get",
		MethodHandleInstancePut:     "instance-put",
		MethodHandleInstanceGet:     "instance-get",
		MethodHandleInvokeStatic:    "invoke-static",
		MethodHandleInvokeInstance:  "invoke-instance",
		MethodHandleInvokeConstruct: "invoke-constructor",
		MethodHandleInvokeDirect:    "invoke-direct",
		MethodHandleInvokeInterface: "invoke-interface",
	}
	return names[t]
}

// MethodHandleItem is a method_handles record. Depending on the handle type
// the target indexes either the field_ids or the method_ids table.
type MethodHandleItem struct {
	ID         MethodHandleID   `json:"id"`
	HandleType MethodHandleType `json:"handle_type"`
	Target     uint16           `json:"target"`
}

// FieldID returns the addressed field for the field-handle kinds.
func (m MethodHandleItem) FieldID() (FieldID, bool) {
	if m.HandleType <= MethodHandleInstanceGet {
		return FieldID(m.Target), true
	}
	return 0, false
}

// MethodID returns the addressed method for the method-handle kinds.
func (m MethodHandleItem) MethodID() (MethodID, bool) {
	if m.HandleType >= MethodHandleInvokeStatic &&
		m.HandleType <= MethodHandleInvokeInterface {
		return MethodID(m.Target), true
	}
	return 0, false
}

// GetMethodHandleItem decodes the method_handles record at the given index.
// The section is located through the map list, as the header carries no
// size/offset pair for it.
func (dex *File) GetMethodHandleItem(id MethodHandleID) (MethodHandleItem, error) {
	section, ok := dex.MapList.Get(ItemTypeMethodHandle)
	if !ok || uint32(id) >= section.Size {
		return MethodHandleItem{}, errInvalidID("method handle id", uint64(id))
	}
	c := dex.cursorAt(section.Offset + methodHandleSize*uint32(id))
	rawType, err := c.Uint16()
	if err != nil {
		return MethodHandleItem{}, err
	}
	if rawType > uint16(MethodHandleInvokeInterface) {
		return MethodHandleItem{}, errInvalidID("method handle type",
			uint64(rawType))
	}
	if _, err := c.Uint16(); err != nil {
		return MethodHandleItem{}, err
	}
	target, err := c.Uint16()
	if err != nil {
		return MethodHandleItem{}, err
	}
	return MethodHandleItem{
		ID:         id,
		HandleType: MethodHandleType(rawType),
		Target:     target,
	}, nil
}

// Types iterates the type_ids table in index order.
func (dex *File) Types() iter.Seq2[Type, error] {
	return func(yield func(Type, error) bool) {
		for i := uint32(0); i < dex.Header.TypeIDsSize; i++ {
			if !yield(dex.GetType(TypeID(i))) {
				return
			}
		}
	}
}

// ProtoIDs iterates the proto_ids table in index order.
func (dex *File) ProtoIDs() iter.Seq2[ProtoIDItem, error] {
	return func(yield func(ProtoIDItem, error) bool) {
		for i := uint32(0); i < dex.Header.ProtoIDsSize; i++ {
			if !yield(dex.GetProtoItem(ProtoID(i))) {
				return
			}
		}
	}
}

// FieldIDs iterates the field_ids table in index order.
func (dex *File) FieldIDs() iter.Seq2[FieldIDItem, error] {
	return func(yield func(FieldIDItem, error) bool) {
		for i := uint32(0); i < dex.Header.FieldIDsSize; i++ {
			if !yield(dex.GetFieldItem(FieldID(i))) {
				return
			}
		}
	}
}

// MethodIDs iterates the method_ids table in index order.
func (dex *File) MethodIDs() iter.Seq2[MethodIDItem, error] {
	return func(yield func(MethodIDItem, error) bool) {
		for i := uint32(0); i < dex.Header.MethodIDsSize; i++ {
			if !yield(dex.GetMethodItem(MethodID(i))) {
				return
			}
		}
	}
}

// MethodHandles iterates the method_handles section in index order. The
// sequence is empty when the file has no such section.
func (dex *File) MethodHandles() iter.Seq2[MethodHandleItem, error] {
	return func(yield func(MethodHandleItem, error) bool) {
		section, ok := dex.MapList.Get(ItemTypeMethodHandle)
		if !ok {
			return
		}
		for i := uint32(0); i < section.Size; i++ {
			if !yield(dex.GetMethodHandleItem(MethodHandleID(i))) {
				return
			}
		}
	}
}
