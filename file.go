// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package dex parses and navigates Dalvik Executable (DEX) files, the
// container format Android runtimes consume compiled class bytecode from.
// Construction parses only the header and the map list; classes, methods,
// fields, strings, annotations and code items are decoded on demand as the
// caller requests them.
package dex

import (
	"encoding/binary"
	"os"

	mmap "github.com/edsrzf/mmap-go"
	"github.com/saferwall/dex/log"
)

// A File represents an open DEX file.
type File struct {
	Header  Header  `json:"header"`
	MapList MapList `json:"map_list"`

	data    mmap.MMap
	size    uint32
	bo      binary.ByteOrder
	strings *stringCache
	f       *os.File
	opts    *Options
	logger  *log.Helper
}

// Options for parsing.
type Options struct {

	// Capacity of the decoded-string cache, by default
	// (DefaultStringCacheCapacity).
	StringCacheCapacity int

	// Skip the Adler-32 checksum verification, by default (false).
	SkipChecksumVerification bool

	// A custom logger.
	Logger log.Logger
}

// New instantiates a file instance with options given a file name.
func New(name string, opts *Options) (*File, error) {

	f, err := os.Open(name)
	if err != nil {
		return nil, errIO(err)
	}

	// Memory map the file instead of using read/write.
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, errIO(err)
	}

	file, err := NewBytes(data, opts)
	if err != nil {
		_ = data.Unmap()
		f.Close()
		return nil, err
	}
	file.f = f
	return file, nil
}

// NewBytes instantiates a file instance with options given a memory buffer.
func NewBytes(data []byte, opts *Options) (*File, error) {

	file := File{}
	if opts != nil {
		file.opts = opts
	} else {
		file.opts = &Options{}
	}

	if file.opts.StringCacheCapacity == 0 {
		file.opts.StringCacheCapacity = DefaultStringCacheCapacity
	}

	var logger log.Logger
	if file.opts.Logger == nil {
		logger = log.NewStdLogger(os.Stdout)
		file.logger = log.NewHelper(log.NewFilter(logger,
			log.FilterLevel(log.LevelError)))
	} else {
		file.logger = log.NewHelper(file.opts.Logger)
	}

	strings, err := newStringCache(file.opts.StringCacheCapacity)
	if err != nil {
		return nil, errIO(err)
	}

	file.data = data
	file.size = uint32(len(file.data))
	file.strings = strings
	return &file, nil
}

// Close closes the File.
func (dex *File) Close() error {
	if dex.f != nil {
		_ = dex.data.Unmap()
		return dex.f.Close()
	}
	return nil
}

// Parse performs the eager part of the file parsing: the header and the map
// list. Everything else is decoded on demand.
func (dex *File) Parse() error {

	err := dex.ParseHeader()
	if err != nil {
		return err
	}

	return dex.ParseMapList()
}

// GetEndian returns the byte order declared by the header.
func (dex *File) GetEndian() binary.ByteOrder {
	return dex.bo
}
