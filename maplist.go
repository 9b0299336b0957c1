// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

// ItemType identifies the kind of a section enumerated by the map list.
type ItemType uint16

// Map list item types.
const (
	ItemTypeHeader               ItemType = 0x0000
	ItemTypeStringID             ItemType = 0x0001
	ItemTypeTypeID               ItemType = 0x0002
	ItemTypeProtoID              ItemType = 0x0003
	ItemTypeFieldID              ItemType = 0x0004
	ItemTypeMethodID             ItemType = 0x0005
	ItemTypeClassDef             ItemType = 0x0006
	ItemTypeCallSiteID           ItemType = 0x0007
	ItemTypeMethodHandle         ItemType = 0x0008
	ItemTypeMapList              ItemType = 0x1000
	ItemTypeTypeList             ItemType = 0x1001
	ItemTypeAnnotationSetRefList ItemType = 0x1002
	ItemTypeAnnotationSet        ItemType = 0x1003
	ItemTypeClassData            ItemType = 0x2000
	ItemTypeCode                 ItemType = 0x2001
	ItemTypeStringData           ItemType = 0x2002
	ItemTypeDebugInfo            ItemType = 0x2003
	ItemTypeAnnotation           ItemType = 0x2004
	ItemTypeEncodedArray         ItemType = 0x2005
	ItemTypeAnnotationsDirectory ItemType = 0x2006
	ItemTypeHiddenAPIClassData   ItemType = 0xf000
)

var itemTypeNames = map[ItemType]string{
	ItemTypeHeader:               "header_item",
	ItemTypeStringID:             "string_id_item",
	ItemTypeTypeID:               "type_id_item",
	ItemTypeProtoID:              "proto_id_item",
	ItemTypeFieldID:              "field_id_item",
	ItemTypeMethodID:             "method_id_item",
	ItemTypeClassDef:             "class_def_item",
	ItemTypeCallSiteID:           "call_site_id_item",
	ItemTypeMethodHandle:         "method_handle_item",
	ItemTypeMapList:              "map_list",
	ItemTypeTypeList:             "type_list",
	ItemTypeAnnotationSetRefList: "annotation_set_ref_list",
	ItemTypeAnnotationSet:        "annotation_set_item",
	ItemTypeClassData:            "class_data_item",
	ItemTypeCode:                 "code_item",
	ItemTypeStringData:           "string_data_item",
	ItemTypeDebugInfo:            "debug_info_item",
	ItemTypeAnnotation:           "annotation_item",
	ItemTypeEncodedArray:         "encoded_array_item",
	ItemTypeAnnotationsDirectory: "annotations_directory_item",
	ItemTypeHiddenAPIClassData:   "hiddenapi_class_data_item",
}

// String stringifies the map list item type.
func (t ItemType) String() string {
	return itemTypeNames[t]
}

// MapItem locates one section present in the file.
type MapItem struct {
	// Type of the items in the section.
	Type ItemType `json:"type"`

	// Number of items found at the offset.
	Size uint32 `json:"size"`

	// Offset of the section start.
	Offset uint32 `json:"offset"`
}

// MapList enumerates, in offset order, every section present in the file.
// It is the only place the method_handles and call_site_ids sections are
// located, as the header carries no size/offset pair for them.
type MapList struct {
	Items []MapItem `json:"items"`
}

// Get returns the map item of the given type, if present.
func (m *MapList) Get(t ItemType) (MapItem, bool) {
	for _, item := range m.Items {
		if item.Type == t {
			return item, true
		}
	}
	return MapItem{}, false
}

// ParseMapList decodes the map list the header points into the data section.
func (dex *File) ParseMapList() error {
	if err := dex.checkDataOffset(dex.Header.MapOff, "map_off"); err != nil {
		return err
	}

	c := dex.cursorAt(dex.Header.MapOff)
	count, err := c.Uint32()
	if err != nil {
		return err
	}

	items := make([]MapItem, 0, count)
	for i := uint32(0); i < count; i++ {
		rawType, err := c.Uint16()
		if err != nil {
			return err
		}
		if _, known := itemTypeNames[ItemType(rawType)]; !known {
			return errInvalidID("map list item type", uint64(rawType))
		}
		// Two bytes of padding follow the item type.
		if _, err := c.Uint16(); err != nil {
			return err
		}
		size, err := c.Uint32()
		if err != nil {
			return err
		}
		offset, err := c.Uint32()
		if err != nil {
			return err
		}
		items = append(items, MapItem{
			Type:   ItemType(rawType),
			Size:   size,
			Offset: offset,
		})
	}

	dex.MapList.Items = items
	return nil
}
