// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

// binarySearch probes a sorted, fixed-stride table of count records. cmp
// compares the record at index i against the probe and returns a negative
// value when the record sorts before it, zero on a match, and a positive
// value otherwise. The boolean result reports whether a match was found.
func binarySearch(count uint32, cmp func(i uint32) (int, error)) (uint32, bool, error) {
	lo, hi := uint32(0), count
	for lo < hi {
		mid := lo + (hi-lo)/2
		order, err := cmp(mid)
		if err != nil {
			return 0, false, err
		}
		switch {
		case order == 0:
			return mid, true, nil
		case order < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false, nil
}
