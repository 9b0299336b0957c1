// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import "strings"

// AccessFlags is the bitset of modifiers attached to a class, field or
// method.
type AccessFlags uint32

// Access flag bits. Some bit positions are reused between fields and
// methods, matching the format.
const (
	AccPublic               AccessFlags = 0x1
	AccPrivate              AccessFlags = 0x2
	AccProtected            AccessFlags = 0x4
	AccStatic               AccessFlags = 0x8
	AccFinal                AccessFlags = 0x10
	AccSynchronized         AccessFlags = 0x20
	AccVolatile             AccessFlags = 0x40
	AccBridge               AccessFlags = 0x40
	AccTransient            AccessFlags = 0x80
	AccVarargs              AccessFlags = 0x80
	AccNative               AccessFlags = 0x100
	AccInterface            AccessFlags = 0x200
	AccAbstract             AccessFlags = 0x400
	AccStrict               AccessFlags = 0x800
	AccSynthetic            AccessFlags = 0x1000
	AccAnnotation           AccessFlags = 0x2000
	AccEnum                 AccessFlags = 0x4000
	AccConstructor          AccessFlags = 0x10000
	AccDeclaredSynchronized AccessFlags = 0x20000
)

// Bit masks of the flags defined for each declaration kind.
const (
	classAccessMask = AccPublic | AccPrivate | AccProtected | AccStatic |
		AccFinal | AccInterface | AccAbstract | AccSynthetic |
		AccAnnotation | AccEnum

	fieldAccessMask = AccPublic | AccPrivate | AccProtected | AccStatic |
		AccFinal | AccVolatile | AccTransient | AccSynthetic | AccEnum

	methodAccessMask = AccPublic | AccPrivate | AccProtected | AccStatic |
		AccFinal | AccSynchronized | AccBridge | AccVarargs | AccNative |
		AccAbstract | AccStrict | AccSynthetic | AccConstructor |
		AccDeclaredSynchronized
)

// Has reports whether every given flag bit is set.
func (f AccessFlags) Has(flags AccessFlags) bool {
	return f&flags == flags
}

// String lists the set flags in declaration-modifier style.
func (f AccessFlags) String() string {
	names := []struct {
		flag AccessFlags
		name string
	}{
		{AccPublic, "public"},
		{AccPrivate, "private"},
		{AccProtected, "protected"},
		{AccStatic, "static"},
		{AccFinal, "final"},
		{AccSynchronized, "synchronized"},
		{AccVolatile, "volatile|bridge"},
		{AccTransient, "transient|varargs"},
		{AccNative, "native"},
		{AccInterface, "interface"},
		{AccAbstract, "abstract"},
		{AccStrict, "strictfp"},
		{AccSynthetic, "synthetic"},
		{AccAnnotation, "annotation"},
		{AccEnum, "enum"},
		{AccConstructor, "constructor"},
		{AccDeclaredSynchronized, "declared-synchronized"},
	}
	var set []string
	for _, n := range names {
		if f&n.flag != 0 {
			set = append(set, n.name)
		}
	}
	return strings.Join(set, " ")
}

// classAccessFlags validates a raw class access flags word, rejecting any
// bit not defined for classes.
func classAccessFlags(raw uint32) (AccessFlags, error) {
	if AccessFlags(raw)&^classAccessMask != 0 {
		return 0, errInvalidID("class access flags", uint64(raw))
	}
	return AccessFlags(raw), nil
}

// fieldAccessFlags validates a raw field access flags word.
func fieldAccessFlags(raw uint32) (AccessFlags, error) {
	if AccessFlags(raw)&^fieldAccessMask != 0 {
		return 0, errInvalidID("field access flags", uint64(raw))
	}
	return AccessFlags(raw), nil
}

// methodAccessFlags validates a raw method access flags word.
func methodAccessFlags(raw uint32) (AccessFlags, error) {
	if AccessFlags(raw)&^methodAccessMask != 0 {
		return 0, errInvalidID("method access flags", uint64(raw))
	}
	return AccessFlags(raw), nil
}
