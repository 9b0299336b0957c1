// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import (
	"iter"
	"sort"
)

// ClassDefItem is a class_defs record, the fixed-size root every class is
// assembled from.
type ClassDefItem struct {
	// Type of the class being defined.
	ClassIdx TypeID `json:"class_idx"`

	// Raw access flags, validated during assembly.
	AccessFlags uint32 `json:"access_flags"`

	// Type of the superclass, NoIndex for java.lang.Object.
	SuperclassIdx TypeID `json:"superclass_idx"`

	// Offset of the implemented-interfaces type list, zero when none.
	InterfacesOff uint32 `json:"interfaces_off"`

	// Name of the originating source file, NoIndex when unknown.
	SourceFileIdx StringID `json:"source_file_idx"`

	// Offset of the annotations directory, zero when none.
	AnnotationsOff uint32 `json:"annotations_off"`

	// Offset of the class data, zero for a marker class.
	ClassDataOff uint32 `json:"class_data_off"`

	// Offset of the static field initializer array, zero when none.
	StaticValuesOff uint32 `json:"static_values_off"`
}

// EncodedField is a class_data field entry with its delta-encoded id already
// resolved to an absolute field id.
type EncodedField struct {
	FieldIdx    FieldID `json:"field_idx"`
	AccessFlags uint32  `json:"access_flags"`
}

// EncodedMethod is a class_data method entry with its delta-encoded id
// already resolved to an absolute method id.
type EncodedMethod struct {
	MethodIdx   MethodID `json:"method_idx"`
	AccessFlags uint32   `json:"access_flags"`
	CodeOff     uint32   `json:"code_off"`
}

// ClassDataItem carries the four member lists of one class.
type ClassDataItem struct {
	StaticFields   []EncodedField  `json:"static_fields"`
	InstanceFields []EncodedField  `json:"instance_fields"`
	DirectMethods  []EncodedMethod `json:"direct_methods"`
	VirtualMethods []EncodedMethod `json:"virtual_methods"`
}

// Field is a fully assembled class member field.
type Field struct {
	// Identity of this field in the field_ids table.
	ID FieldID `json:"id"`

	// Field name.
	Name string `json:"name"`

	// Declared type of the field.
	Type Type `json:"type"`

	// Type id of the declaring class.
	Class ClassID `json:"class"`

	// Validated access flags.
	AccessFlags AccessFlags `json:"access_flags"`

	// Initial value for static fields, nil when defaulted.
	InitialValue EncodedValue `json:"initial_value"`

	// Annotations attached to this field.
	Annotations AnnotationSetItem `json:"annotations"`
}

// Method is a fully assembled class member method.
type Method struct {
	// Identity of this method in the method_ids table.
	ID MethodID `json:"id"`

	// Declaring class.
	Class Type `json:"class"`

	// Method name.
	Name string `json:"name"`

	// Validated access flags.
	AccessFlags AccessFlags `json:"access_flags"`

	// Shorty descriptor of the prototype.
	Shorty string `json:"shorty"`

	// Return type.
	ReturnType Type `json:"return_type"`

	// Parameter types, in declaration order.
	Params []Type `json:"params"`

	// Bytecode and exception tables, nil for abstract and native methods.
	Code *CodeItem `json:"code"`

	// Annotations attached to this method.
	Annotations AnnotationSetItem `json:"annotations"`

	// Per-parameter annotation sets.
	ParamAnnotations AnnotationSetRefList `json:"param_annotations"`
}

// Class is a fully assembled class definition.
type Class struct {
	// Type id of this class.
	ID ClassID `json:"id"`

	// Type of this class.
	Type Type `json:"type"`

	// Validated access flags.
	AccessFlags AccessFlags `json:"access_flags"`

	// Superclass type id, nil for java.lang.Object.
	SuperClass *ClassID `json:"super_class"`

	// Implemented interfaces.
	Interfaces []Type `json:"interfaces"`

	// Source file name, nil when the compiler elided it.
	SourceFile *string `json:"source_file"`

	// Member lists, split the way class_data stores them.
	StaticFields   []Field  `json:"static_fields"`
	InstanceFields []Field  `json:"instance_fields"`
	DirectMethods  []Method `json:"direct_methods"`
	VirtualMethods []Method `json:"virtual_methods"`

	// Class-level annotations.
	Annotations AnnotationSetItem `json:"annotations"`
}

// Field returns the static or instance field with the given name, or nil.
func (cls *Class) Field(name string) *Field {
	for i := range cls.StaticFields {
		if cls.StaticFields[i].Name == name {
			return &cls.StaticFields[i]
		}
	}
	for i := range cls.InstanceFields {
		if cls.InstanceFields[i].Name == name {
			return &cls.InstanceFields[i]
		}
	}
	return nil
}

// Method returns the first direct or virtual method with the given name, or
// nil.
func (cls *Class) Method(name string) *Method {
	for i := range cls.DirectMethods {
		if cls.DirectMethods[i].Name == name {
			return &cls.DirectMethods[i]
		}
	}
	for i := range cls.VirtualMethods {
		if cls.VirtualMethods[i].Name == name {
			return &cls.VirtualMethods[i]
		}
	}
	return nil
}

// GetClassDef decodes the class_defs record at the given index.
func (dex *File) GetClassDef(i uint32) (ClassDefItem, error) {
	if i >= dex.Header.ClassDefsSize {
		return ClassDefItem{}, errInvalidID("class def index", uint64(i))
	}
	c := dex.cursorAt(dex.Header.ClassDefsOff + classDefItemSize*i)
	def := ClassDefItem{}
	fields := []*uint32{
		(*uint32)(&def.ClassIdx), &def.AccessFlags,
		(*uint32)(&def.SuperclassIdx), &def.InterfacesOff,
		(*uint32)(&def.SourceFileIdx), &def.AnnotationsOff,
		&def.ClassDataOff, &def.StaticValuesOff,
	}
	for _, f := range fields {
		v, err := c.Uint32()
		if err != nil {
			return ClassDefItem{}, err
		}
		*f = v
	}
	return def, nil
}

// getTypeList decodes a type_list: a u32 count followed by that many u16
// type indices, each resolved to a Type.
func (dex *File) getTypeList(offset uint32, context string) ([]Type, error) {
	if offset == 0 {
		return nil, nil
	}
	if err := dex.checkDataOffset(offset, context); err != nil {
		return nil, err
	}
	c := dex.cursorAt(offset)
	count, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	types := make([]Type, 0, count)
	for i := uint32(0); i < count; i++ {
		typeIdx, err := c.Uint16()
		if err != nil {
			return nil, err
		}
		jtype, err := dex.GetType(TypeID(typeIdx))
		if err != nil {
			return nil, err
		}
		types = append(types, jtype)
	}
	return types, nil
}

// GetInterfaces resolves the implemented-interfaces list at the given
// offset. A zero offset yields an empty list.
func (dex *File) GetInterfaces(offset uint32) ([]Type, error) {
	return dex.getTypeList(offset, "interfaces")
}

// GetClassData decodes the class_data_item at the given offset, resolving
// the delta-encoded member ids to absolute ids. A zero offset means the
// class declares no members.
func (dex *File) GetClassData(offset uint32) (*ClassDataItem, error) {
	if offset == 0 {
		return nil, nil
	}
	if err := dex.checkDataOffset(offset, "class data"); err != nil {
		return nil, err
	}

	c := dex.cursorAt(offset)
	var sizes [4]uint32
	for i := range sizes {
		v, err := c.Uleb128()
		if err != nil {
			return nil, err
		}
		sizes[i] = v
	}

	readFields := func(count uint32) ([]EncodedField, error) {
		fields := make([]EncodedField, 0, count)
		prev := uint32(0)
		for i := uint32(0); i < count; i++ {
			diff, err := c.Uleb128()
			if err != nil {
				return nil, err
			}
			accessFlags, err := c.Uleb128()
			if err != nil {
				return nil, err
			}
			prev += diff
			fields = append(fields, EncodedField{
				FieldIdx:    FieldID(prev),
				AccessFlags: accessFlags,
			})
		}
		return fields, nil
	}

	readMethods := func(count uint32) ([]EncodedMethod, error) {
		methods := make([]EncodedMethod, 0, count)
		prev := uint32(0)
		for i := uint32(0); i < count; i++ {
			diff, err := c.Uleb128()
			if err != nil {
				return nil, err
			}
			accessFlags, err := c.Uleb128()
			if err != nil {
				return nil, err
			}
			codeOff, err := c.Uleb128()
			if err != nil {
				return nil, err
			}
			prev += diff
			methods = append(methods, EncodedMethod{
				MethodIdx:   MethodID(prev),
				AccessFlags: accessFlags,
				CodeOff:     codeOff,
			})
		}
		return methods, nil
	}

	item := ClassDataItem{}
	var err error
	if item.StaticFields, err = readFields(sizes[0]); err != nil {
		return nil, err
	}
	if item.InstanceFields, err = readFields(sizes[1]); err != nil {
		return nil, err
	}
	if item.DirectMethods, err = readMethods(sizes[2]); err != nil {
		return nil, err
	}
	if item.VirtualMethods, err = readMethods(sizes[3]); err != nil {
		return nil, err
	}
	return &item, nil
}

// fieldAnnotationsFor binary-searches the sorted field annotations of an
// annotations directory for the given field.
func fieldAnnotationsFor(annotations []FieldAnnotation, id FieldID) AnnotationSetItem {
	i := sort.Search(len(annotations), func(i int) bool {
		return annotations[i].FieldIdx >= id
	})
	if i < len(annotations) && annotations[i].FieldIdx == id {
		return annotations[i].Annotations
	}
	return nil
}

// methodAnnotationsFor binary-searches the sorted method annotations of an
// annotations directory for the given method.
func methodAnnotationsFor(annotations []MethodAnnotation, id MethodID) AnnotationSetItem {
	i := sort.Search(len(annotations), func(i int) bool {
		return annotations[i].MethodIdx >= id
	})
	if i < len(annotations) && annotations[i].MethodIdx == id {
		return annotations[i].Annotations
	}
	return nil
}

// paramAnnotationsFor binary-searches the sorted parameter annotations of
// an annotations directory for the given method.
func paramAnnotationsFor(annotations []ParameterAnnotation, id MethodID) AnnotationSetRefList {
	i := sort.Search(len(annotations), func(i int) bool {
		return annotations[i].MethodIdx >= id
	})
	if i < len(annotations) && annotations[i].MethodIdx == id {
		return annotations[i].Annotations
	}
	return nil
}

// getField assembles one Field from its class_data entry.
func (dex *File) getField(ef EncodedField, initialValue EncodedValue,
	annotations AnnotationSetItem) (Field, error) {

	item, err := dex.GetFieldItem(ef.FieldIdx)
	if err != nil {
		return Field{}, err
	}
	name, err := dex.GetString(item.NameIdx)
	if err != nil {
		return Field{}, err
	}
	jtype, err := dex.GetType(item.TypeIdx)
	if err != nil {
		return Field{}, err
	}
	accessFlags, err := fieldAccessFlags(ef.AccessFlags)
	if err != nil {
		return Field{}, err
	}
	return Field{
		ID:           ef.FieldIdx,
		Name:         name,
		Type:         jtype,
		Class:        item.ClassIdx,
		AccessFlags:  accessFlags,
		InitialValue: initialValue,
		Annotations:  annotations,
	}, nil
}

// getMethod assembles one Method from its class_data entry.
func (dex *File) getMethod(em EncodedMethod, annotations AnnotationSetItem,
	paramAnnotations AnnotationSetRefList) (Method, error) {

	item, err := dex.GetMethodItem(em.MethodIdx)
	if err != nil {
		return Method{}, err
	}
	class, err := dex.GetType(item.ClassIdx)
	if err != nil {
		return Method{}, err
	}
	name, err := dex.GetString(item.NameIdx)
	if err != nil {
		return Method{}, err
	}
	proto, err := dex.GetProtoItem(item.ProtoIdx)
	if err != nil {
		return Method{}, err
	}
	shorty, err := dex.GetString(proto.ShortyIdx)
	if err != nil {
		return Method{}, err
	}
	returnType, err := dex.GetType(proto.ReturnTypeIdx)
	if err != nil {
		return Method{}, err
	}
	params, err := dex.getTypeList(proto.ParametersOff, "method parameters")
	if err != nil {
		return Method{}, err
	}
	accessFlags, err := methodAccessFlags(em.AccessFlags)
	if err != nil {
		return Method{}, err
	}
	code, err := dex.GetCodeItem(em.CodeOff)
	if err != nil {
		return Method{}, err
	}
	return Method{
		ID:               em.MethodIdx,
		Class:            class,
		Name:             name,
		AccessFlags:      accessFlags,
		Shorty:           shorty,
		ReturnType:       returnType,
		Params:           params,
		Code:             code,
		Annotations:      annotations,
		ParamAnnotations: paramAnnotations,
	}, nil
}

// GetClass assembles a complete Class from its class_defs record, joining
// class data, static values and the annotations directory.
func (dex *File) GetClass(def ClassDefItem) (*Class, error) {
	jtype, err := dex.GetType(def.ClassIdx)
	if err != nil {
		return nil, err
	}
	accessFlags, err := classAccessFlags(def.AccessFlags)
	if err != nil {
		return nil, err
	}
	interfaces, err := dex.GetInterfaces(def.InterfacesOff)
	if err != nil {
		return nil, err
	}

	var sourceFile *string
	if uint32(def.SourceFileIdx) != NoIndex {
		name, err := dex.GetString(def.SourceFileIdx)
		if err != nil {
			return nil, err
		}
		sourceFile = &name
	}

	var superClass *ClassID
	if uint32(def.SuperclassIdx) != NoIndex {
		id := def.SuperclassIdx
		superClass = &id
	}

	dir, err := dex.GetAnnotationsDirectoryItem(def.AnnotationsOff)
	if err != nil {
		return nil, err
	}
	staticValues, err := dex.GetStaticValues(def.StaticValuesOff)
	if err != nil {
		return nil, err
	}

	cls := Class{
		ID:          def.ClassIdx,
		Type:        jtype,
		AccessFlags: accessFlags,
		SuperClass:  superClass,
		Interfaces:  interfaces,
		SourceFile:  sourceFile,
		Annotations: dir.ClassAnnotations,
	}

	data, err := dex.GetClassData(def.ClassDataOff)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return &cls, nil
	}

	// Static values parallel the static fields in declaration order;
	// trailing defaults are simply absent from the array.
	for i, ef := range data.StaticFields {
		var value EncodedValue
		if i < len(staticValues) {
			value = staticValues[i]
		}
		field, err := dex.getField(ef, value,
			fieldAnnotationsFor(dir.FieldAnnotations, ef.FieldIdx))
		if err != nil {
			return nil, err
		}
		cls.StaticFields = append(cls.StaticFields, field)
	}
	for _, ef := range data.InstanceFields {
		field, err := dex.getField(ef, nil,
			fieldAnnotationsFor(dir.FieldAnnotations, ef.FieldIdx))
		if err != nil {
			return nil, err
		}
		cls.InstanceFields = append(cls.InstanceFields, field)
	}
	for _, em := range data.DirectMethods {
		method, err := dex.getMethod(em,
			methodAnnotationsFor(dir.MethodAnnotations, em.MethodIdx),
			paramAnnotationsFor(dir.ParameterAnnotations, em.MethodIdx))
		if err != nil {
			return nil, err
		}
		cls.DirectMethods = append(cls.DirectMethods, method)
	}
	for _, em := range data.VirtualMethods {
		method, err := dex.getMethod(em,
			methodAnnotationsFor(dir.MethodAnnotations, em.MethodIdx),
			paramAnnotationsFor(dir.ParameterAnnotations, em.MethodIdx))
		if err != nil {
			return nil, err
		}
		cls.VirtualMethods = append(cls.VirtualMethods, method)
	}

	return &cls, nil
}

// FindClassByType scans class_defs for the class defining the given type,
// or nil when no class in this file defines it.
func (dex *File) FindClassByType(id TypeID) (*Class, error) {
	for i := uint32(0); i < dex.Header.ClassDefsSize; i++ {
		def, err := dex.GetClassDef(i)
		if err != nil {
			return nil, err
		}
		if def.ClassIdx == id {
			return dex.GetClass(def)
		}
	}
	return nil, nil
}

// FindClassByName looks a class up by its type descriptor, e.g.
// "Lorg/adw/launcher/Launcher;". The descriptor is re-encoded as MUTF-8 and
// chased through the sorted string and type tables before the class_defs
// scan.
func (dex *File) FindClassByName(descriptor string) (*Class, error) {
	jtype, err := dex.GetTypeFromDescriptor(descriptor)
	if err != nil || jtype == nil {
		return nil, err
	}
	return dex.FindClassByType(jtype.ID)
}

// ClassDefs iterates the raw class_defs table in index order.
func (dex *File) ClassDefs() iter.Seq2[ClassDefItem, error] {
	return func(yield func(ClassDefItem, error) bool) {
		for i := uint32(0); i < dex.Header.ClassDefsSize; i++ {
			if !yield(dex.GetClassDef(i)) {
				return
			}
		}
	}
}

// Classes iterates fully assembled classes in class_defs order. A malformed
// class yields its error without terminating the iteration.
func (dex *File) Classes() iter.Seq2[*Class, error] {
	return func(yield func(*Class, error) bool) {
		for i := uint32(0); i < dex.Header.ClassDefsSize; i++ {
			def, err := dex.GetClassDef(i)
			if err != nil {
				if !yield(nil, err) {
					return
				}
				continue
			}
			if !yield(dex.GetClass(def)) {
				return
			}
		}
	}
}
