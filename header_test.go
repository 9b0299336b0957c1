// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import (
	"errors"
	"strings"
	"testing"
)

func TestParseHeaderFixture(t *testing.T) {
	img := buildLauncherImage()
	file := parseImage(t, img, nil)

	h := file.Header
	if string(h.Magic[:4]) != "dex\n" {
		t.Errorf("magic assertion failed, got % x", h.Magic)
	}
	if h.HeaderSize != HeaderSize {
		t.Errorf("header_size assertion failed, got %d, want %d",
			h.HeaderSize, HeaderSize)
	}
	if h.EndianTag != EndianConstant {
		t.Errorf("endian_tag assertion failed, got 0x%x", h.EndianTag)
	}
	if h.FileSize != uint32(len(img.Bytes)) {
		t.Errorf("file_size assertion failed, got %d, want %d",
			h.FileSize, len(img.Bytes))
	}
	if h.DataOff != img.DataOff {
		t.Errorf("data_off assertion failed, got 0x%x, want 0x%x",
			h.DataOff, img.DataOff)
	}
	if h.DataOff+h.DataSize != h.FileSize {
		t.Errorf("data section does not reach end of file: 0x%x+0x%x != 0x%x",
			h.DataOff, h.DataSize, h.FileSize)
	}
	if h.MapOff < h.DataOff || h.MapOff >= h.DataOff+h.DataSize {
		t.Errorf("map_off 0x%x outside data section", h.MapOff)
	}
}

func TestParseHeaderTooSmall(t *testing.T) {
	file, err := NewBytes(make([]byte, 64), nil)
	if err != nil {
		t.Fatalf("NewBytes failed, reason: %v", err)
	}
	err = file.Parse()
	var dexErr *Error
	if !errors.As(err, &dexErr) || dexErr.Kind != KindMalformed {
		t.Fatalf("short file error assertion failed, got %v", err)
	}
}

func TestParseHeaderBadEndian(t *testing.T) {
	img := buildLauncherImage()
	data := append([]byte(nil), img.Bytes...)
	copy(data[40:44], []byte{0xde, 0xad, 0xbe, 0xef})

	file, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes failed, reason: %v", err)
	}
	err = file.Parse()
	var dexErr *Error
	if !errors.As(err, &dexErr) || dexErr.Kind != KindMalformed {
		t.Fatalf("bad endian error assertion failed, got %v", err)
	}
	if !strings.Contains(dexErr.Reason, "endian") {
		t.Errorf("bad endian reason assertion failed, got %q", dexErr.Reason)
	}
}

func TestParseHeaderBadMagic(t *testing.T) {
	img := buildLauncherImage()
	data := append([]byte(nil), img.Bytes...)
	copy(data[4:7], "099")

	file, err := NewBytes(data, &Options{SkipChecksumVerification: true})
	if err != nil {
		t.Fatalf("NewBytes failed, reason: %v", err)
	}
	err = file.Parse()
	var dexErr *Error
	if !errors.As(err, &dexErr) || dexErr.Kind != KindMalformed {
		t.Fatalf("bad magic error assertion failed, got %v", err)
	}
}

func TestChecksumMismatch(t *testing.T) {
	img := buildLauncherImage()
	data := append([]byte(nil), img.Bytes...)
	// Flip one byte of the body; every byte past the checksum field is
	// covered.
	data[len(data)-1] ^= 0xff

	file, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes failed, reason: %v", err)
	}
	err = file.Parse()
	var dexErr *Error
	if !errors.As(err, &dexErr) || dexErr.Kind != KindMalformed {
		t.Fatalf("checksum error assertion failed, got %v", err)
	}
	if !strings.Contains(dexErr.Reason, "checksum mismatch") {
		t.Errorf("checksum reason assertion failed, got %q", dexErr.Reason)
	}

	// The same image opens fine once verification is disabled; the byte
	// flipped above is the high byte of the map_list self entry's offset,
	// which ParseMapList reads but does not validate.
	file, err = NewBytes(data, &Options{SkipChecksumVerification: true})
	if err != nil {
		t.Fatalf("NewBytes failed, reason: %v", err)
	}
	if err := file.Parse(); err != nil {
		t.Fatalf("Parse with verification disabled failed, reason: %v", err)
	}
}

func TestMapListUnknownItemType(t *testing.T) {
	img := buildLauncherImage()
	file := parseImage(t, img, nil)

	data := append([]byte(nil), img.Bytes...)
	// The first map entry starts right after the u32 count.
	entry := file.Header.MapOff + 4
	data[entry] = 0xff
	data[entry+1] = 0x7f

	broken, err := NewBytes(data, &Options{SkipChecksumVerification: true})
	if err != nil {
		t.Fatalf("NewBytes failed, reason: %v", err)
	}
	err = broken.Parse()
	var dexErr *Error
	if !errors.As(err, &dexErr) || dexErr.Kind != KindInvalidID {
		t.Fatalf("unknown item type error assertion failed, got %v", err)
	}
	if dexErr.What != "map list item type" {
		t.Errorf("error detail assertion failed, got %q", dexErr.What)
	}
}
