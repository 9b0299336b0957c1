// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import (
	"bytes"
	"encoding/binary"
	"hash/adler32"
)

const (
	// HeaderSize is the fixed size of a DEX header.
	HeaderSize = 112

	// EndianConstant is the endian tag of a file using its natural order.
	EndianConstant = 0x12345678

	// ReverseEndianConstant is the endian tag as seen when the file was
	// written in the opposite byte order.
	ReverseEndianConstant = 0x78563412

	// NoIndex is the sentinel meaning "no value" for optional indices.
	NoIndex = 0xffffffff
)

// dexMagicVersions enumerates the supported dex format versions.
var dexMagicVersions = [][]byte{
	[]byte("dex\n035\x00"),
	[]byte("dex\n037\x00"),
	[]byte("dex\n038\x00"),
	[]byte("dex\n039\x00"),
}

// Header represents the fixed 112-byte header that opens every DEX file.
type Header struct {
	// Magic bytes, "dex\n" followed by the format version.
	Magic [8]byte `json:"magic"`

	// Adler-32 checksum of the file contents past this field.
	Checksum uint32 `json:"checksum"`

	// SHA-1 signature of the file contents past this field.
	Signature [20]byte `json:"signature"`

	// Size of the entire file in bytes.
	FileSize uint32 `json:"file_size"`

	// Size of the header, always 0x70.
	HeaderSize uint32 `json:"header_size"`

	// Endianness tag.
	EndianTag uint32 `json:"endian_tag"`

	// Size and offset of the link section, unused in practice.
	LinkSize uint32 `json:"link_size"`
	LinkOff  uint32 `json:"link_off"`

	// Offset of the map list inside the data section.
	MapOff uint32 `json:"map_off"`

	// Count and offset of the string identifiers table.
	StringIDsSize uint32 `json:"string_ids_size"`
	StringIDsOff  uint32 `json:"string_ids_off"`

	// Count and offset of the type identifiers table.
	TypeIDsSize uint32 `json:"type_ids_size"`
	TypeIDsOff  uint32 `json:"type_ids_off"`

	// Count and offset of the prototype identifiers table.
	ProtoIDsSize uint32 `json:"proto_ids_size"`
	ProtoIDsOff  uint32 `json:"proto_ids_off"`

	// Count and offset of the field identifiers table.
	FieldIDsSize uint32 `json:"field_ids_size"`
	FieldIDsOff  uint32 `json:"field_ids_off"`

	// Count and offset of the method identifiers table.
	MethodIDsSize uint32 `json:"method_ids_size"`
	MethodIDsOff  uint32 `json:"method_ids_off"`

	// Count and offset of the class definitions table.
	ClassDefsSize uint32 `json:"class_defs_size"`
	ClassDefsOff  uint32 `json:"class_defs_off"`

	// Size and offset of the data section every variable-length item
	// lives in.
	DataSize uint32 `json:"data_size"`
	DataOff  uint32 `json:"data_off"`
}

// Version returns the format version encoded in the magic, e.g. "035".
func (h *Header) Version() string {
	return string(h.Magic[4:7])
}

// parseEndian inspects the endian tag to select the byte order the rest of
// the header is decoded with.
func (dex *File) parseEndian() error {
	raw := binary.LittleEndian.Uint32(dex.data[40:44])
	switch raw {
	case EndianConstant:
		dex.bo = binary.LittleEndian
	case ReverseEndianConstant:
		dex.bo = binary.BigEndian
	default:
		return errMalformed("unrecognized endian tag 0x%08x", raw)
	}
	return nil
}

// ParseHeader decodes and validates the fixed header. The SHA-1 signature is
// retained but not independently verified; the Adler-32 checksum is verified
// unless disabled through Options.
func (dex *File) ParseHeader() error {
	if dex.size < HeaderSize {
		return errMalformed("file size %d smaller than dex header", dex.size)
	}

	if err := dex.parseEndian(); err != nil {
		return err
	}

	c := newCursor(dex.data, dex.bo)
	magic, err := c.Bytes(8)
	if err != nil {
		return err
	}
	copy(dex.Header.Magic[:], magic)

	known := false
	for _, m := range dexMagicVersions {
		if bytes.Equal(magic, m) {
			known = true
			break
		}
	}
	if !known {
		return errMalformed("unrecognized dex magic % x", magic)
	}

	if dex.Header.Checksum, err = c.Uint32(); err != nil {
		return err
	}
	sig, err := c.Bytes(20)
	if err != nil {
		return err
	}
	copy(dex.Header.Signature[:], sig)

	fields := []*uint32{
		&dex.Header.FileSize, &dex.Header.HeaderSize, &dex.Header.EndianTag,
		&dex.Header.LinkSize, &dex.Header.LinkOff, &dex.Header.MapOff,
		&dex.Header.StringIDsSize, &dex.Header.StringIDsOff,
		&dex.Header.TypeIDsSize, &dex.Header.TypeIDsOff,
		&dex.Header.ProtoIDsSize, &dex.Header.ProtoIDsOff,
		&dex.Header.FieldIDsSize, &dex.Header.FieldIDsOff,
		&dex.Header.MethodIDsSize, &dex.Header.MethodIDsOff,
		&dex.Header.ClassDefsSize, &dex.Header.ClassDefsOff,
		&dex.Header.DataSize, &dex.Header.DataOff,
	}
	for _, f := range fields {
		if *f, err = c.Uint32(); err != nil {
			return err
		}
	}

	if !dex.opts.SkipChecksumVerification {
		computed := adler32.Checksum(dex.data[12:])
		if computed != dex.Header.Checksum {
			return errMalformed(
				"checksum mismatch: found 0x%08x, computed 0x%08x",
				dex.Header.Checksum, computed)
		}
	}

	return nil
}

// inDataSection reports whether the offset lies inside the data section.
func (dex *File) inDataSection(offset uint32) bool {
	return offset >= dex.Header.DataOff &&
		offset < dex.Header.DataOff+dex.Header.DataSize
}

// checkDataOffset validates that a consumer-supplied offset addresses the
// data section.
func (dex *File) checkDataOffset(offset uint32, context string) error {
	if !dex.inDataSection(offset) {
		return errBadOffset(uint64(offset), context)
	}
	return nil
}

// cursorAt returns a cursor positioned at the given file offset.
func (dex *File) cursorAt(offset uint32) *cursor {
	c := newCursor(dex.data, dex.bo)
	c.pos = int(offset)
	return c
}
