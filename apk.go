// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import (
	"archive/zip"
	"io"
	"regexp"
	"sort"

	"github.com/klauspost/compress/flate"
)

// classesDexName matches the DEX entries of an APK: classes.dex plus the
// classes2.dex, classes3.dex, ... multidex continuations.
var classesDexName = regexp.MustCompile(`^classes([2-9]|[1-9][0-9]+)?\.dex$`)

// OpenAPK extracts and parses every classes*.dex entry of an APK archive,
// in multidex order. Each returned File owns an in-memory copy of its
// entry.
func OpenAPK(name string, opts *Options) ([]*File, error) {
	r, err := zip.OpenReader(name)
	if err != nil {
		return nil, errIO(err)
	}
	defer r.Close()

	r.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})

	var entries []*zip.File
	for _, f := range r.File {
		if classesDexName.MatchString(f.Name) {
			entries = append(entries, f)
		}
	}
	if len(entries) == 0 {
		return nil, errMalformed("no classes.dex entry in %s", name)
	}
	sort.Slice(entries, func(i, j int) bool {
		return multidexOrder(entries[i].Name) < multidexOrder(entries[j].Name)
	})

	files := make([]*File, 0, len(entries))
	for _, entry := range entries {
		rc, err := entry.Open()
		if err != nil {
			return nil, errIO(err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, errIO(err)
		}
		file, err := NewBytes(data, opts)
		if err != nil {
			return nil, err
		}
		if err := file.Parse(); err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

// multidexOrder ranks "classes.dex" first, then "classesN.dex" by N.
func multidexOrder(name string) int {
	digits := name[len("classes") : len(name)-len(".dex")]
	if digits == "" {
		return 1
	}
	n := 0
	for _, d := range digits {
		n = n*10 + int(d-'0')
	}
	return n
}
