// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import (
	"iter"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultStringCacheCapacity bounds the number of decoded strings kept
// resident when Options does not override it.
const DefaultStringCacheCapacity = 4096

// stringCache memoizes decoded strings. Strings back nearly every structure
// in the file and are referenced in arbitrary order, often repeatedly, so
// decoding them once and keeping the hot set resident pays for itself
// quickly.
type stringCache struct {
	cache *lru.Cache[StringID, string]
}

func newStringCache(capacity int) (*stringCache, error) {
	c, err := lru.New[StringID, string](capacity)
	if err != nil {
		return nil, err
	}
	return &stringCache{cache: c}, nil
}

// GetString returns the string at the given index, decoding and caching it
// on first use.
func (dex *File) GetString(id StringID) (string, error) {
	if uint32(id) >= dex.Header.StringIDsSize {
		return "", errInvalidID("string id", uint64(id))
	}
	if s, ok := dex.strings.cache.Get(id); ok {
		return s, nil
	}
	s, err := dex.parseString(id)
	if err != nil {
		return "", err
	}
	dex.strings.cache.Add(id, s)
	return s, nil
}

// parseString follows string_ids[id] into the data section and decodes the
// string_data_item found there.
func (dex *File) parseString(id StringID) (string, error) {
	c := dex.cursorAt(dex.Header.StringIDsOff + stringIDItemSize*uint32(id))
	dataOff, err := c.Uint32()
	if err != nil {
		return "", err
	}
	if err := dex.checkDataOffset(dataOff, "string data"); err != nil {
		return "", err
	}
	return dex.cursorAt(dataOff).MUTF8()
}

// GetStringID finds the index of the given string by binary search over the
// string_ids table, whose sort order is lexicographic over the raw MUTF-8
// byte sequences.
func (dex *File) GetStringID(query string) (StringID, bool) {
	encoded := encodeMUTF8(query)
	idx, found, err := binarySearch(dex.Header.StringIDsSize,
		func(i uint32) (int, error) {
			return dex.compareStringAt(StringID(i), encoded)
		})
	if err != nil || !found {
		return 0, false
	}
	return StringID(idx), true
}

// compareStringAt orders the stored string at index id against the encoded
// query bytes without decoding the stored string.
func (dex *File) compareStringAt(id StringID, encoded []byte) (int, error) {
	c := dex.cursorAt(dex.Header.StringIDsOff + stringIDItemSize*uint32(id))
	dataOff, err := c.Uint32()
	if err != nil {
		return 0, err
	}
	if err := dex.checkDataOffset(dataOff, "string data"); err != nil {
		return 0, err
	}
	sc := dex.cursorAt(dataOff)
	if _, err := sc.Uleb128(); err != nil {
		return 0, err
	}
	// MUTF-8 encodes U+0000 as 0xC0 0x80, so a raw NUL byte is always the
	// terminator.
	for _, q := range encoded {
		b, err := sc.Uint8()
		if err != nil {
			return 0, err
		}
		if b == 0 || b < q {
			return -1, nil
		}
		if b > q {
			return 1, nil
		}
	}
	terminator, err := sc.Uint8()
	if err != nil {
		return 0, err
	}
	if terminator == 0 {
		return 0, nil
	}
	// The stored string continues past the query, so it sorts after it.
	return 1, nil
}

// Strings iterates the string table in index order. A corrupt entry yields
// its error without terminating the iteration.
func (dex *File) Strings() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i := uint32(0); i < dex.Header.StringIDsSize; i++ {
			if !yield(dex.GetString(StringID(i))) {
				return
			}
		}
	}
}
