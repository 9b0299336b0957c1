// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package dextest assembles minimal but structurally valid DEX images in
// memory. Tests describe classes, fields, methods and annotations at the
// source level; the builder interns strings and types, sorts every table
// the way the format requires, lays the sections out and stamps the
// checksum, so no external fixture file is needed.
package dextest

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/adler32"
	"sort"
)

// Sizes and constants of the fixed file structures.
const (
	headerSize     = 112
	endianConstant = 0x12345678
	noIndex        = 0xffffffff
)

// Map list item types emitted by the builder.
const (
	itemTypeHeader       = 0x0000
	itemTypeStringID     = 0x0001
	itemTypeTypeID       = 0x0002
	itemTypeProtoID      = 0x0003
	itemTypeFieldID      = 0x0004
	itemTypeMethodID     = 0x0005
	itemTypeClassDef     = 0x0006
	itemTypeMethodHandle = 0x0008
	itemTypeMapList      = 0x1000
	itemTypeStringData   = 0x2002
)

// Class describes one class to synthesize.
type Class struct {
	Descriptor  string
	AccessFlags uint32

	// SuperClass is the superclass descriptor, empty for none.
	SuperClass string

	// Interfaces lists implemented interface descriptors.
	Interfaces []string

	// SourceFile is the source file name, empty for none.
	SourceFile string

	StaticFields   []Field
	InstanceFields []Field
	DirectMethods  []Method
	VirtualMethods []Method

	// Annotations attached to the class itself.
	Annotations []Annotation
}

// Field describes one member field.
type Field struct {
	Type        string
	Name        string
	AccessFlags uint32

	// Value is the static initializer, nil for none.
	Value Value

	Annotations []Annotation
}

// Method describes one member method.
type Method struct {
	Name        string
	ReturnType  string
	Params      []string
	AccessFlags uint32

	// Code is the method body, nil for abstract and native methods.
	Code *Code

	Annotations []Annotation

	// ParamAnnotations parallels Params; nil entries carry no
	// annotations.
	ParamAnnotations [][]Annotation
}

// Code describes a method body.
type Code struct {
	RegistersSize uint16
	InsSize       uint16
	OutsSize      uint16
	Insns         []uint16
	Tries         []Try

	// Debug optionally attaches a debug info stream.
	Debug *Debug
}

// Try describes one try block and its handlers.
type Try struct {
	StartAddr uint32
	InsnCount uint16
	Handlers  []TypedHandler

	// CatchAllAddr, when non-nil, appends a catch-all handler.
	CatchAllAddr *uint32
}

// TypedHandler catches one exception type.
type TypedHandler struct {
	Type string
	Addr uint32
}

// Debug describes a debug info item. Bytecode holds the raw state machine
// stream, including the terminating end-sequence opcode.
type Debug struct {
	LineStart uint32

	// ParameterNames lists parameter names; an empty string elides the
	// name.
	ParameterNames []string

	Bytecode []byte
}

// Annotation describes one annotation.
type Annotation struct {
	Visibility byte
	Type       string
	Elements   []AnnotationElement
}

// AnnotationElement is one name/value pair of an annotation.
type AnnotationElement struct {
	Name  string
	Value Value
}

// MethodHandle describes one method_handles entry addressing a field or a
// method of a built class by name.
type MethodHandle struct {
	HandleType uint16
	Class      string
	Name       string
}

// Builder accumulates the description of one DEX image.
type Builder struct {
	// ByteOrder selects the byte order of the image, little-endian by
	// default.
	ByteOrder binary.ByteOrder

	classes      []Class
	handles      []MethodHandle
	raws         []rawChunk
	extraStrings []string
	extraTypes   []string
}

type rawChunk struct {
	name string
	data []byte
}

// Image is a finished DEX image together with the table indices the
// builder assigned, keyed the way tests look entities up. Field and method
// keys are "<class descriptor>-><name>".
type Image struct {
	Bytes      []byte
	StringIDs  map[string]uint32
	TypeIDs    map[string]uint32
	ProtoIDs   map[string]uint32
	FieldIDs   map[string]uint32
	MethodIDs  map[string]uint32
	RawOffsets map[string]uint32
	DataOff    uint32
}

// NewBuilder returns an empty little-endian builder.
func NewBuilder() *Builder {
	return &Builder{ByteOrder: binary.LittleEndian}
}

// AddClass appends a class definition.
func (b *Builder) AddClass(c Class) *Builder {
	b.classes = append(b.classes, c)
	return b
}

// AddMethodHandle appends a method_handles entry.
func (b *Builder) AddMethodHandle(h MethodHandle) *Builder {
	b.handles = append(b.handles, h)
	return b
}

// AddRaw places an opaque chunk into the data section and records its
// offset under the given name.
func (b *Builder) AddRaw(name string, data []byte) *Builder {
	b.raws = append(b.raws, rawChunk{name: name, data: data})
	return b
}

// AddString force-interns a string.
func (b *Builder) AddString(s string) *Builder {
	b.extraStrings = append(b.extraStrings, s)
	return b
}

// AddType force-interns a type descriptor.
func (b *Builder) AddType(descriptor string) *Builder {
	b.extraTypes = append(b.extraTypes, descriptor)
	return b
}

// internal table records

type protoDef struct {
	shorty string
	ret    string
	params []string
	// paramsOff is filled while the data section is laid out.
	paramsOff uint32
}

type fieldDef struct {
	class string
	typ   string
	name  string
}

type methodDef struct {
	class string
	proto string
	name  string
}

// layout carries the interned tables and the growing data section.
type layout struct {
	bo binary.ByteOrder

	strings   []string
	stringIDs map[string]uint32
	types     []string
	typeIDs   map[string]uint32
	protos    []*protoDef
	protoIDs  map[string]uint32
	fields    []fieldDef
	fieldIDs  map[string]uint32
	methods   []methodDef
	methodIDs map[string]uint32

	dataOff uint32
	data    []byte
}

func protoKey(ret string, params []string) string {
	key := ret + "("
	for _, p := range params {
		key += p
	}
	return key + ")"
}

func memberKey(class, name string) string {
	return class + "->" + name
}

func shortyChar(descriptor string) byte {
	if descriptor[0] == 'L' || descriptor[0] == '[' {
		return 'L'
	}
	return descriptor[0]
}

func shortyOf(ret string, params []string) string {
	out := []byte{shortyChar(ret)}
	for _, p := range params {
		out = append(out, shortyChar(p))
	}
	return string(out)
}

// Build lays out and returns the image.
func (b *Builder) Build() *Image {
	l := &layout{
		bo:        b.ByteOrder,
		stringIDs: map[string]uint32{},
		typeIDs:   map[string]uint32{},
		protoIDs:  map[string]uint32{},
		fieldIDs:  map[string]uint32{},
		methodIDs: map[string]uint32{},
	}

	b.collect(l)
	l.assignIDs()

	// The index tables have fixed strides, so the data section offset is
	// known before a single data byte is written.
	stringIDsOff := uint32(headerSize)
	typeIDsOff := stringIDsOff + 4*uint32(len(l.strings))
	protoIDsOff := typeIDsOff + 4*uint32(len(l.types))
	fieldIDsOff := protoIDsOff + 12*uint32(len(l.protos))
	methodIDsOff := fieldIDsOff + 8*uint32(len(l.fields))
	classDefsOff := methodIDsOff + 8*uint32(len(l.methods))
	l.dataOff = classDefsOff + 32*uint32(len(b.classes))

	// Data section, leaves first so every consumer of an offset finds it
	// already assigned.
	stringDataOffs := make([]uint32, len(l.strings))
	for i, s := range l.strings {
		stringDataOffs[i] = l.abs()
		l.data = appendUleb128(l.data, utf16Len(s))
		l.data = append(l.data, encodeMUTF8(s)...)
		l.data = append(l.data, 0)
	}

	for _, p := range l.protos {
		p.paramsOff = l.typeList(p.params)
	}

	classRecords := make([][8]uint32, len(b.classes))
	for i := range b.classes {
		classRecords[i] = l.classRecord(&b.classes[i])
	}

	rawOffsets := map[string]uint32{}
	for _, raw := range b.raws {
		l.align4()
		rawOffsets[raw.name] = l.abs()
		l.data = append(l.data, raw.data...)
	}

	var handlesOff uint32
	if len(b.handles) > 0 {
		l.align4()
		handlesOff = l.abs()
		for _, h := range b.handles {
			target, ok := l.fieldIDs[memberKey(h.Class, h.Name)]
			if h.HandleType >= 0x04 {
				target, ok = l.methodIDs[memberKey(h.Class, h.Name)]
			}
			if !ok {
				panic(fmt.Sprintf("dextest: unknown method handle target %s->%s",
					h.Class, h.Name))
			}
			l.u16(h.HandleType)
			l.u16(0)
			l.u16(uint16(target))
			l.u16(0)
		}
	}

	l.align4()
	mapOff := l.abs()
	type mapEntry struct {
		typ  uint16
		size uint32
		off  uint32
	}
	var entries []mapEntry
	entries = append(entries, mapEntry{itemTypeHeader, 1, 0})
	if len(l.strings) > 0 {
		entries = append(entries, mapEntry{itemTypeStringID,
			uint32(len(l.strings)), stringIDsOff})
	}
	if len(l.types) > 0 {
		entries = append(entries, mapEntry{itemTypeTypeID,
			uint32(len(l.types)), typeIDsOff})
	}
	if len(l.protos) > 0 {
		entries = append(entries, mapEntry{itemTypeProtoID,
			uint32(len(l.protos)), protoIDsOff})
	}
	if len(l.fields) > 0 {
		entries = append(entries, mapEntry{itemTypeFieldID,
			uint32(len(l.fields)), fieldIDsOff})
	}
	if len(l.methods) > 0 {
		entries = append(entries, mapEntry{itemTypeMethodID,
			uint32(len(l.methods)), methodIDsOff})
	}
	if len(b.classes) > 0 {
		entries = append(entries, mapEntry{itemTypeClassDef,
			uint32(len(b.classes)), classDefsOff})
	}
	if len(b.handles) > 0 {
		entries = append(entries, mapEntry{itemTypeMethodHandle,
			uint32(len(b.handles)), handlesOff})
	}
	if len(l.strings) > 0 {
		entries = append(entries, mapEntry{itemTypeStringData,
			uint32(len(l.strings)), stringDataOffs[0]})
	}
	entries = append(entries, mapEntry{itemTypeMapList, 1, mapOff})
	l.u32(uint32(len(entries)))
	for _, e := range entries {
		l.u16(e.typ)
		l.u16(0)
		l.u32(e.size)
		l.u32(e.off)
	}

	// Assemble the file: header, index tables, data.
	fileSize := l.dataOff + uint32(len(l.data))
	out := bytes.NewBuffer(make([]byte, 0, fileSize))
	w32 := func(v uint32) {
		var buf [4]byte
		l.bo.PutUint32(buf[:], v)
		out.Write(buf[:])
	}
	w16 := func(v uint16) {
		var buf [2]byte
		l.bo.PutUint16(buf[:], v)
		out.Write(buf[:])
	}

	out.Write([]byte("dex\n035\x00"))
	w32(0)                      // checksum, stamped below
	out.Write(make([]byte, 20)) // signature, left zero
	w32(fileSize)
	w32(headerSize)
	w32(endianConstant)
	w32(0) // link_size
	w32(0) // link_off
	w32(mapOff)
	w32(uint32(len(l.strings)))
	w32(stringIDsOff)
	w32(uint32(len(l.types)))
	w32(typeIDsOff)
	w32(uint32(len(l.protos)))
	w32(protoIDsOff)
	w32(uint32(len(l.fields)))
	w32(fieldIDsOff)
	w32(uint32(len(l.methods)))
	w32(methodIDsOff)
	w32(uint32(len(b.classes)))
	w32(classDefsOff)
	w32(fileSize - l.dataOff)
	w32(l.dataOff)

	for i := range l.strings {
		w32(stringDataOffs[i])
	}
	for _, t := range l.types {
		w32(l.stringIDs[t])
	}
	for _, p := range l.protos {
		w32(l.stringIDs[p.shorty])
		w32(l.typeIDs[p.ret])
		w32(p.paramsOff)
	}
	for _, f := range l.fields {
		w16(uint16(l.typeIDs[f.class]))
		w16(uint16(l.typeIDs[f.typ]))
		w32(l.stringIDs[f.name])
	}
	for _, m := range l.methods {
		w16(uint16(l.typeIDs[m.class]))
		w16(uint16(l.protoIDs[m.proto]))
		w32(l.stringIDs[m.name])
	}
	for _, record := range classRecords {
		for _, v := range record {
			w32(v)
		}
	}
	out.Write(l.data)

	image := out.Bytes()
	l.bo.PutUint32(image[8:12], adler32.Checksum(image[12:]))

	return &Image{
		Bytes:      image,
		StringIDs:  l.stringIDs,
		TypeIDs:    l.typeIDs,
		ProtoIDs:   l.protoIDs,
		FieldIDs:   l.fieldIDs,
		MethodIDs:  l.methodIDs,
		RawOffsets: rawOffsets,
		DataOff:    l.dataOff,
	}
}

// collect interns every string, type, proto, field and method the classes
// reference.
func (b *Builder) collect(l *layout) {
	addString := func(s string) {
		if _, ok := l.stringIDs[s]; !ok {
			l.stringIDs[s] = 0
			l.strings = append(l.strings, s)
		}
	}
	addType := func(descriptor string) {
		addString(descriptor)
		if _, ok := l.typeIDs[descriptor]; !ok {
			l.typeIDs[descriptor] = 0
			l.types = append(l.types, descriptor)
		}
	}
	addAnnotations := func(annotations []Annotation) {
		for _, a := range annotations {
			addType(a.Type)
			for _, e := range a.Elements {
				addString(e.Name)
				collectValueStrings(e.Value, addString)
			}
		}
	}

	for _, s := range b.extraStrings {
		addString(s)
	}
	for _, t := range b.extraTypes {
		addType(t)
	}

	for ci := range b.classes {
		c := &b.classes[ci]
		addType(c.Descriptor)
		if c.SuperClass != "" {
			addType(c.SuperClass)
		}
		for _, iface := range c.Interfaces {
			addType(iface)
		}
		if c.SourceFile != "" {
			addString(c.SourceFile)
		}
		addAnnotations(c.Annotations)

		for _, lists := range [][]Field{c.StaticFields, c.InstanceFields} {
			for _, f := range lists {
				addType(f.Type)
				addString(f.Name)
				if f.Value != nil {
					collectValueStrings(f.Value, addString)
				}
				addAnnotations(f.Annotations)
				key := memberKey(c.Descriptor, f.Name)
				if _, ok := l.fieldIDs[key]; !ok {
					l.fieldIDs[key] = 0
					l.fields = append(l.fields, fieldDef{
						class: c.Descriptor,
						typ:   f.Type,
						name:  f.Name,
					})
				}
			}
		}

		for _, lists := range [][]Method{c.DirectMethods, c.VirtualMethods} {
			for _, m := range lists {
				addString(m.Name)
				addType(m.ReturnType)
				for _, p := range m.Params {
					addType(p)
				}
				shorty := shortyOf(m.ReturnType, m.Params)
				addString(shorty)
				addAnnotations(m.Annotations)
				for _, params := range m.ParamAnnotations {
					addAnnotations(params)
				}
				if m.Code != nil {
					for _, t := range m.Code.Tries {
						for _, h := range t.Handlers {
							addType(h.Type)
						}
					}
					if m.Code.Debug != nil {
						for _, name := range m.Code.Debug.ParameterNames {
							if name != "" {
								addString(name)
							}
						}
					}
				}

				pk := protoKey(m.ReturnType, m.Params)
				if _, ok := l.protoIDs[pk]; !ok {
					l.protoIDs[pk] = 0
					l.protos = append(l.protos, &protoDef{
						shorty: shorty,
						ret:    m.ReturnType,
						params: append([]string(nil), m.Params...),
					})
				}
				key := memberKey(c.Descriptor, m.Name)
				if _, ok := l.methodIDs[key]; !ok {
					l.methodIDs[key] = 0
					l.methods = append(l.methods, methodDef{
						class: c.Descriptor,
						proto: pk,
						name:  m.Name,
					})
				}
			}
		}
	}
}

// assignIDs sorts every table the way the format requires and assigns the
// final indices.
func (l *layout) assignIDs() {
	sort.Slice(l.strings, func(i, j int) bool {
		return bytes.Compare(encodeMUTF8(l.strings[i]),
			encodeMUTF8(l.strings[j])) < 0
	})
	for i, s := range l.strings {
		l.stringIDs[s] = uint32(i)
	}

	sort.Slice(l.types, func(i, j int) bool {
		return l.stringIDs[l.types[i]] < l.stringIDs[l.types[j]]
	})
	for i, t := range l.types {
		l.typeIDs[t] = uint32(i)
	}

	sort.Slice(l.protos, func(i, j int) bool {
		a, b := l.protos[i], l.protos[j]
		if l.typeIDs[a.ret] != l.typeIDs[b.ret] {
			return l.typeIDs[a.ret] < l.typeIDs[b.ret]
		}
		return protoKey(a.ret, a.params) < protoKey(b.ret, b.params)
	})
	for i, p := range l.protos {
		l.protoIDs[protoKey(p.ret, p.params)] = uint32(i)
	}

	sort.Slice(l.fields, func(i, j int) bool {
		a, b := l.fields[i], l.fields[j]
		if l.typeIDs[a.class] != l.typeIDs[b.class] {
			return l.typeIDs[a.class] < l.typeIDs[b.class]
		}
		if l.stringIDs[a.name] != l.stringIDs[b.name] {
			return l.stringIDs[a.name] < l.stringIDs[b.name]
		}
		return l.typeIDs[a.typ] < l.typeIDs[b.typ]
	})
	for i, f := range l.fields {
		l.fieldIDs[memberKey(f.class, f.name)] = uint32(i)
	}

	sort.Slice(l.methods, func(i, j int) bool {
		a, b := l.methods[i], l.methods[j]
		if l.typeIDs[a.class] != l.typeIDs[b.class] {
			return l.typeIDs[a.class] < l.typeIDs[b.class]
		}
		if l.stringIDs[a.name] != l.stringIDs[b.name] {
			return l.stringIDs[a.name] < l.stringIDs[b.name]
		}
		return l.protoIDs[a.proto] < l.protoIDs[b.proto]
	})
	for i, m := range l.methods {
		l.methodIDs[memberKey(m.class, m.name)] = uint32(i)
	}
}

// data section emit helpers

func (l *layout) abs() uint32 {
	return l.dataOff + uint32(len(l.data))
}

func (l *layout) align4() {
	for len(l.data)%4 != 0 {
		l.data = append(l.data, 0)
	}
}

func (l *layout) u16(v uint16) {
	var buf [2]byte
	l.bo.PutUint16(buf[:], v)
	l.data = append(l.data, buf[:]...)
}

func (l *layout) u32(v uint32) {
	var buf [4]byte
	l.bo.PutUint32(buf[:], v)
	l.data = append(l.data, buf[:]...)
}

// typeList emits a type_list and returns its offset, zero for an empty
// list.
func (l *layout) typeList(descriptors []string) uint32 {
	if len(descriptors) == 0 {
		return 0
	}
	l.align4()
	off := l.abs()
	l.u32(uint32(len(descriptors)))
	for _, d := range descriptors {
		l.u16(uint16(l.typeIDs[d]))
	}
	return off
}

// annotationItem emits one annotation_item and returns its offset.
func (l *layout) annotationItem(a Annotation) uint32 {
	off := l.abs()
	l.data = append(l.data, a.Visibility)
	l.data = appendUleb128(l.data, l.typeIDs[a.Type])
	elements := append([]AnnotationElement(nil), a.Elements...)
	sort.Slice(elements, func(i, j int) bool {
		return l.stringIDs[elements[i].Name] < l.stringIDs[elements[j].Name]
	})
	l.data = appendUleb128(l.data, uint32(len(elements)))
	for _, e := range elements {
		l.data = appendUleb128(l.data, l.stringIDs[e.Name])
		l.data = append(l.data, e.Value.encode(l)...)
	}
	return off
}

// annotationSet emits an annotation_set_item and returns its offset, zero
// for an empty set.
func (l *layout) annotationSet(annotations []Annotation) uint32 {
	if len(annotations) == 0 {
		return 0
	}
	offs := make([]uint32, len(annotations))
	for i, a := range annotations {
		offs[i] = l.annotationItem(a)
	}
	l.align4()
	off := l.abs()
	l.u32(uint32(len(annotations)))
	for _, o := range offs {
		l.u32(o)
	}
	return off
}

// annotationSetRefList emits an annotation_set_ref_list and returns its
// offset, zero when no parameter carries annotations.
func (l *layout) annotationSetRefList(params [][]Annotation) uint32 {
	any := false
	for _, p := range params {
		if len(p) > 0 {
			any = true
		}
	}
	if !any {
		return 0
	}
	offs := make([]uint32, len(params))
	for i, p := range params {
		offs[i] = l.annotationSet(p)
	}
	l.align4()
	off := l.abs()
	l.u32(uint32(len(params)))
	for _, o := range offs {
		l.u32(o)
	}
	return off
}

// debugInfo emits a debug_info_item and returns its offset.
func (l *layout) debugInfo(d *Debug) uint32 {
	off := l.abs()
	l.data = appendUleb128(l.data, d.LineStart)
	l.data = appendUleb128(l.data, uint32(len(d.ParameterNames)))
	for _, name := range d.ParameterNames {
		if name == "" {
			l.data = appendUleb128(l.data, 0)
			continue
		}
		l.data = appendUleb128(l.data, l.stringIDs[name]+1)
	}
	l.data = append(l.data, d.Bytecode...)
	return off
}

// codeItem emits a code_item and returns its offset.
func (l *layout) codeItem(code *Code) uint32 {
	var debugOff uint32
	if code.Debug != nil {
		debugOff = l.debugInfo(code.Debug)
	}

	l.align4()
	off := l.abs()
	l.u16(code.RegistersSize)
	l.u16(code.InsSize)
	l.u16(code.OutsSize)
	l.u16(uint16(len(code.Tries)))
	l.u32(debugOff)
	l.u32(uint32(len(code.Insns)))
	for _, insn := range code.Insns {
		l.u16(insn)
	}
	if len(code.Insns)%2 != 0 && len(code.Tries) > 0 {
		l.u16(0)
	}
	if len(code.Tries) == 0 {
		return off
	}

	// The handler list is encoded first so the try items can reference
	// the relative byte offsets of its entries.
	var list []byte
	list = appendUleb128(list, uint32(len(code.Tries)))
	handlerOffs := make([]uint16, len(code.Tries))
	for i, t := range code.Tries {
		handlerOffs[i] = uint16(len(list))
		size := int32(len(t.Handlers))
		if t.CatchAllAddr != nil {
			size = -size
		}
		list = appendSleb128(list, size)
		for _, h := range t.Handlers {
			list = appendUleb128(list, l.typeIDs[h.Type])
			list = appendUleb128(list, h.Addr)
		}
		if t.CatchAllAddr != nil {
			list = appendUleb128(list, *t.CatchAllAddr)
		}
	}

	for i, t := range code.Tries {
		l.u32(t.StartAddr)
		l.u16(t.InsnCount)
		l.u16(handlerOffs[i])
	}
	l.data = append(l.data, list...)
	return off
}

// encodedArray emits an encoded_array_item and returns its offset, zero for
// an empty array.
func (l *layout) encodedArray(values []Value) uint32 {
	if len(values) == 0 {
		return 0
	}
	off := l.abs()
	l.data = appendUleb128(l.data, uint32(len(values)))
	for _, v := range values {
		l.data = append(l.data, v.encode(l)...)
	}
	return off
}

// classRecord lays out every data item one class needs and returns its
// class_defs record.
func (l *layout) classRecord(c *Class) [8]uint32 {
	interfacesOff := l.typeList(c.Interfaces)

	// class_data member lists are sorted by id so the delta encoding
	// stays non-negative; the static values array parallels the sorted
	// static field order.
	staticFields := append([]Field(nil), c.StaticFields...)
	sort.Slice(staticFields, func(i, j int) bool {
		return l.fieldID(c, staticFields[i].Name) < l.fieldID(c, staticFields[j].Name)
	})
	instanceFields := append([]Field(nil), c.InstanceFields...)
	sort.Slice(instanceFields, func(i, j int) bool {
		return l.fieldID(c, instanceFields[i].Name) < l.fieldID(c, instanceFields[j].Name)
	})
	directMethods := append([]Method(nil), c.DirectMethods...)
	sort.Slice(directMethods, func(i, j int) bool {
		return l.methodID(c, directMethods[i].Name) < l.methodID(c, directMethods[j].Name)
	})
	virtualMethods := append([]Method(nil), c.VirtualMethods...)
	sort.Slice(virtualMethods, func(i, j int) bool {
		return l.methodID(c, virtualMethods[i].Name) < l.methodID(c, virtualMethods[j].Name)
	})

	// Static initializers, trailing defaults elided.
	var staticValues []Value
	last := -1
	for i, f := range staticFields {
		if f.Value != nil {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		v := staticFields[i].Value
		if v == nil {
			v = Null{}
		}
		staticValues = append(staticValues, v)
	}
	staticValuesOff := l.encodedArray(staticValues)

	// Annotations directory.
	type memberAnnotation struct {
		idx uint32
		off uint32
	}
	var fieldAnnotations, methodAnnotations, paramAnnotations []memberAnnotation
	for _, lists := range [][]Field{staticFields, instanceFields} {
		for _, f := range lists {
			if len(f.Annotations) == 0 {
				continue
			}
			fieldAnnotations = append(fieldAnnotations, memberAnnotation{
				idx: l.fieldID(c, f.Name),
				off: l.annotationSet(f.Annotations),
			})
		}
	}
	for _, lists := range [][]Method{directMethods, virtualMethods} {
		for _, m := range lists {
			if len(m.Annotations) > 0 {
				methodAnnotations = append(methodAnnotations, memberAnnotation{
					idx: l.methodID(c, m.Name),
					off: l.annotationSet(m.Annotations),
				})
			}
			if off := l.annotationSetRefList(m.ParamAnnotations); off != 0 {
				paramAnnotations = append(paramAnnotations, memberAnnotation{
					idx: l.methodID(c, m.Name),
					off: off,
				})
			}
		}
	}
	classAnnotationsOff := l.annotationSet(c.Annotations)

	var annotationsOff uint32
	if classAnnotationsOff != 0 || len(fieldAnnotations) > 0 ||
		len(methodAnnotations) > 0 || len(paramAnnotations) > 0 {
		sortMembers := func(members []memberAnnotation) {
			sort.Slice(members, func(i, j int) bool {
				return members[i].idx < members[j].idx
			})
		}
		sortMembers(fieldAnnotations)
		sortMembers(methodAnnotations)
		sortMembers(paramAnnotations)

		l.align4()
		annotationsOff = l.abs()
		l.u32(classAnnotationsOff)
		l.u32(uint32(len(fieldAnnotations)))
		l.u32(uint32(len(methodAnnotations)))
		l.u32(uint32(len(paramAnnotations)))
		for _, members := range [][]memberAnnotation{
			fieldAnnotations, methodAnnotations, paramAnnotations} {
			for _, m := range members {
				l.u32(m.idx)
				l.u32(m.off)
			}
		}
	}

	// Code items, then the class data referencing them.
	codeOffs := map[string]uint32{}
	for _, lists := range [][]Method{directMethods, virtualMethods} {
		for _, m := range lists {
			if m.Code != nil {
				codeOffs[m.Name] = l.codeItem(m.Code)
			}
		}
	}

	var classDataOff uint32
	memberCount := len(staticFields) + len(instanceFields) +
		len(directMethods) + len(virtualMethods)
	if memberCount > 0 {
		classDataOff = l.abs()
		l.data = appendUleb128(l.data, uint32(len(staticFields)))
		l.data = appendUleb128(l.data, uint32(len(instanceFields)))
		l.data = appendUleb128(l.data, uint32(len(directMethods)))
		l.data = appendUleb128(l.data, uint32(len(virtualMethods)))
		for _, fields := range [][]Field{staticFields, instanceFields} {
			prev := uint32(0)
			for _, f := range fields {
				id := l.fieldID(c, f.Name)
				l.data = appendUleb128(l.data, id-prev)
				l.data = appendUleb128(l.data, f.AccessFlags)
				prev = id
			}
		}
		for _, methods := range [][]Method{directMethods, virtualMethods} {
			prev := uint32(0)
			for _, m := range methods {
				id := l.methodID(c, m.Name)
				l.data = appendUleb128(l.data, id-prev)
				l.data = appendUleb128(l.data, m.AccessFlags)
				l.data = appendUleb128(l.data, codeOffs[m.Name])
				prev = id
			}
		}
	}

	superIdx := uint32(noIndex)
	if c.SuperClass != "" {
		superIdx = l.typeIDs[c.SuperClass]
	}
	sourceFileIdx := uint32(noIndex)
	if c.SourceFile != "" {
		sourceFileIdx = l.stringIDs[c.SourceFile]
	}

	return [8]uint32{
		l.typeIDs[c.Descriptor],
		c.AccessFlags,
		superIdx,
		interfacesOff,
		sourceFileIdx,
		annotationsOff,
		classDataOff,
		staticValuesOff,
	}
}

func (l *layout) fieldID(c *Class, name string) uint32 {
	return l.fieldIDs[memberKey(c.Descriptor, name)]
}

func (l *layout) methodID(c *Class, name string) uint32 {
	return l.methodIDs[memberKey(c.Descriptor, name)]
}
