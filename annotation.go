// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

// SignatureAnnotation is the system annotation carrying the generic
// signature javac and kotlinc emit for generic declarations.
const SignatureAnnotation = "Ldalvik/annotation/Signature;"

// Visibility states where an annotation is retained and visible.
type Visibility uint8

// Annotation visibilities.
const (
	// VisibilityBuild annotations are only visible at build time.
	VisibilityBuild Visibility = 0x00

	// VisibilityRuntime annotations are visible through reflection.
	VisibilityRuntime Visibility = 0x01

	// VisibilitySystem annotations are visible to the runtime only.
	VisibilitySystem Visibility = 0x02
)

// String stringifies the annotation visibility.
func (v Visibility) String() string {
	switch v {
	case VisibilityBuild:
		return "build"
	case VisibilityRuntime:
		return "runtime"
	case VisibilitySystem:
		return "system"
	}
	return "unknown"
}

// AnnotationElement is one name/value pair of an annotation.
type AnnotationElement struct {
	NameIdx StringID     `json:"name_idx"`
	Value   EncodedValue `json:"value"`
}

// EncodedAnnotation is an annotation payload: the annotation type and its
// elements.
type EncodedAnnotation struct {
	TypeIdx  TypeID              `json:"type_idx"`
	Elements []AnnotationElement `json:"elements"`
}

// FindElement returns the element with the given name, resolving element
// names through the string table.
func (a *EncodedAnnotation) FindElement(name string, dex *File) (*AnnotationElement, error) {
	for i := range a.Elements {
		elementName, err := dex.GetString(a.Elements[i].NameIdx)
		if err != nil {
			return nil, err
		}
		if elementName == name {
			return &a.Elements[i], nil
		}
	}
	return nil, nil
}

// AnnotationItem is an annotation together with its visibility.
type AnnotationItem struct {
	Visibility Visibility        `json:"visibility"`
	Annotation EncodedAnnotation `json:"annotation"`
}

// AnnotationSetItem is the set of annotations attached to one class, field,
// method or parameter.
type AnnotationSetItem []AnnotationItem

// AnnotationSetRefList carries one annotation set per method parameter.
type AnnotationSetRefList []AnnotationSetItem

// FieldAnnotation associates a field with its annotation set.
type FieldAnnotation struct {
	FieldIdx    FieldID           `json:"field_idx"`
	Annotations AnnotationSetItem `json:"annotations"`
}

// MethodAnnotation associates a method with its annotation set.
type MethodAnnotation struct {
	MethodIdx   MethodID          `json:"method_idx"`
	Annotations AnnotationSetItem `json:"annotations"`
}

// ParameterAnnotation associates a method with its per-parameter annotation
// sets.
type ParameterAnnotation struct {
	MethodIdx   MethodID             `json:"method_idx"`
	Annotations AnnotationSetRefList `json:"annotations"`
}

// AnnotationsDirectoryItem gathers every annotation attached to one class:
// the class-level set plus the per-field, per-method and per-parameter
// associations, each sorted by field or method id.
type AnnotationsDirectoryItem struct {
	ClassAnnotations     AnnotationSetItem     `json:"class_annotations"`
	FieldAnnotations     []FieldAnnotation     `json:"field_annotations"`
	MethodAnnotations    []MethodAnnotation    `json:"method_annotations"`
	ParameterAnnotations []ParameterAnnotation `json:"parameter_annotations"`
}

// readEncodedAnnotation decodes a ULEB128 type index, a ULEB128 element
// count and that many name/value elements.
func (dex *File) readEncodedAnnotation(c *cursor) (EncodedAnnotation, error) {
	typeIdx, err := c.Uleb128()
	if err != nil {
		return EncodedAnnotation{}, err
	}
	if typeIdx >= dex.Header.TypeIDsSize {
		return EncodedAnnotation{}, errInvalidID("type id", uint64(typeIdx))
	}
	count, err := c.Uleb128()
	if err != nil {
		return EncodedAnnotation{}, err
	}
	elements := make([]AnnotationElement, 0, count)
	for i := uint32(0); i < count; i++ {
		nameIdx, err := c.Uleb128()
		if err != nil {
			return EncodedAnnotation{}, err
		}
		if nameIdx >= dex.Header.StringIDsSize {
			return EncodedAnnotation{}, errInvalidID("string id",
				uint64(nameIdx))
		}
		value, err := dex.readEncodedValue(c)
		if err != nil {
			return EncodedAnnotation{}, err
		}
		elements = append(elements, AnnotationElement{
			NameIdx: StringID(nameIdx),
			Value:   value,
		})
	}
	return EncodedAnnotation{
		TypeIdx:  TypeID(typeIdx),
		Elements: elements,
	}, nil
}

// GetAnnotationItem decodes the annotation_item at the given offset.
func (dex *File) GetAnnotationItem(offset uint32) (AnnotationItem, error) {
	if err := dex.checkDataOffset(offset, "annotation item"); err != nil {
		return AnnotationItem{}, err
	}
	c := dex.cursorAt(offset)
	visibility, err := c.Uint8()
	if err != nil {
		return AnnotationItem{}, err
	}
	if Visibility(visibility) > VisibilitySystem {
		return AnnotationItem{}, errInvalidID("annotation visibility",
			uint64(visibility))
	}
	annotation, err := dex.readEncodedAnnotation(c)
	if err != nil {
		return AnnotationItem{}, err
	}
	return AnnotationItem{
		Visibility: Visibility(visibility),
		Annotation: annotation,
	}, nil
}

// GetAnnotationSetItem decodes the annotation_set_item at the given offset.
// A zero offset yields an empty set.
func (dex *File) GetAnnotationSetItem(offset uint32) (AnnotationSetItem, error) {
	if offset == 0 {
		return nil, nil
	}
	if err := dex.checkDataOffset(offset, "annotation set"); err != nil {
		return nil, err
	}
	c := dex.cursorAt(offset)
	size, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	set := make(AnnotationSetItem, 0, size)
	for i := uint32(0); i < size; i++ {
		itemOff, err := c.Uint32()
		if err != nil {
			return nil, err
		}
		item, err := dex.GetAnnotationItem(itemOff)
		if err != nil {
			return nil, err
		}
		set = append(set, item)
	}
	return set, nil
}

// GetAnnotationSetRefList decodes the annotation_set_ref_list at the given
// offset. A zero offset yields an empty list, and a zero entry inside the
// list yields an empty set for that parameter.
func (dex *File) GetAnnotationSetRefList(offset uint32) (AnnotationSetRefList, error) {
	if offset == 0 {
		return nil, nil
	}
	if err := dex.checkDataOffset(offset, "annotation set ref list"); err != nil {
		return nil, err
	}
	c := dex.cursorAt(offset)
	size, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	list := make(AnnotationSetRefList, 0, size)
	for i := uint32(0); i < size; i++ {
		setOff, err := c.Uint32()
		if err != nil {
			return nil, err
		}
		set, err := dex.GetAnnotationSetItem(setOff)
		if err != nil {
			return nil, err
		}
		list = append(list, set)
	}
	return list, nil
}

// GetAnnotationsDirectoryItem decodes the annotations_directory_item at the
// given offset. A zero offset yields an empty directory.
func (dex *File) GetAnnotationsDirectoryItem(offset uint32) (AnnotationsDirectoryItem, error) {
	var dir AnnotationsDirectoryItem
	if offset == 0 {
		return dir, nil
	}
	if err := dex.checkDataOffset(offset, "annotations directory"); err != nil {
		return dir, err
	}
	c := dex.cursorAt(offset)
	classAnnotationsOff, err := c.Uint32()
	if err != nil {
		return dir, err
	}
	fieldCount, err := c.Uint32()
	if err != nil {
		return dir, err
	}
	methodCount, err := c.Uint32()
	if err != nil {
		return dir, err
	}
	paramCount, err := c.Uint32()
	if err != nil {
		return dir, err
	}

	if dir.ClassAnnotations, err = dex.GetAnnotationSetItem(classAnnotationsOff); err != nil {
		return dir, err
	}

	for i := uint32(0); i < fieldCount; i++ {
		fieldIdx, err := c.Uint32()
		if err != nil {
			return dir, err
		}
		setOff, err := c.Uint32()
		if err != nil {
			return dir, err
		}
		set, err := dex.GetAnnotationSetItem(setOff)
		if err != nil {
			return dir, err
		}
		dir.FieldAnnotations = append(dir.FieldAnnotations, FieldAnnotation{
			FieldIdx:    FieldID(fieldIdx),
			Annotations: set,
		})
	}

	for i := uint32(0); i < methodCount; i++ {
		methodIdx, err := c.Uint32()
		if err != nil {
			return dir, err
		}
		setOff, err := c.Uint32()
		if err != nil {
			return dir, err
		}
		set, err := dex.GetAnnotationSetItem(setOff)
		if err != nil {
			return dir, err
		}
		dir.MethodAnnotations = append(dir.MethodAnnotations, MethodAnnotation{
			MethodIdx:   MethodID(methodIdx),
			Annotations: set,
		})
	}

	for i := uint32(0); i < paramCount; i++ {
		methodIdx, err := c.Uint32()
		if err != nil {
			return dir, err
		}
		listOff, err := c.Uint32()
		if err != nil {
			return dir, err
		}
		list, err := dex.GetAnnotationSetRefList(listOff)
		if err != nil {
			return dir, err
		}
		dir.ParameterAnnotations = append(dir.ParameterAnnotations,
			ParameterAnnotation{
				MethodIdx:   MethodID(methodIdx),
				Annotations: list,
			})
	}

	return dir, nil
}

// Signature reassembles the generic signature carried by the well-known
// dalvik/annotation/Signature system annotation, when the set contains one.
// The signature is stored as an array of string fragments which are
// concatenated in order.
func (dex *File) Signature(set AnnotationSetItem) (string, bool) {
	for i := range set {
		jtype, err := dex.GetType(set[i].Annotation.TypeIdx)
		if err != nil || jtype.Descriptor != SignatureAnnotation {
			continue
		}
		element, err := set[i].Annotation.FindElement("value", dex)
		if err != nil || element == nil {
			dex.logger.Warnf("signature annotation without value element")
			return "", false
		}
		fragments, ok := element.Value.(ValueArray)
		if !ok {
			dex.logger.Warnf("signature annotation value is not an array")
			return "", false
		}
		var signature string
		for _, fragment := range fragments {
			s, ok := fragment.(ValueString)
			if !ok {
				dex.logger.Warnf("signature fragment is not a string")
				return "", false
			}
			signature += string(s)
		}
		return signature, true
	}
	return "", false
}
