// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/saferwall/dex/dextest"
)

// buildTryCatchImage synthesizes one method with two try blocks: one with a
// typed handler plus a catch-all, one with a typed handler only.
func buildTryCatchImage() *dextest.Image {
	catchAll := uint32(9)
	b := dextest.NewBuilder()
	b.AddClass(dextest.Class{
		Descriptor:  "Lcom/example/Guarded;",
		AccessFlags: 0x1,
		SuperClass:  "Ljava/lang/Object;",
		VirtualMethods: []dextest.Method{
			{Name: "guard", ReturnType: "V", AccessFlags: 0x1,
				Code: &dextest.Code{
					RegistersSize: 4,
					InsSize:       1,
					OutsSize:      2,
					// Odd instruction count forces the alignment
					// padding before the try table.
					Insns: []uint16{0x0012, 0x0012, 0x000e},
					Tries: []dextest.Try{
						{StartAddr: 0, InsnCount: 2,
							Handlers: []dextest.TypedHandler{
								{Type: "Ljava/io/IOException;", Addr: 7},
							},
							CatchAllAddr: &catchAll},
						{StartAddr: 2, InsnCount: 1,
							Handlers: []dextest.TypedHandler{
								{Type: "Ljava/lang/Exception;", Addr: 8},
							}},
					},
				}},
		},
	})
	return b.Build()
}

func TestCodeItem(t *testing.T) {
	file := parseImage(t, buildTryCatchImage(), nil)

	cls, err := file.FindClassByName("Lcom/example/Guarded;")
	if err != nil || cls == nil {
		t.Fatalf("FindClassByName failed, reason: %v", err)
	}
	method := cls.Method("guard")
	if method == nil {
		t.Fatal("method lookup failed")
	}
	code := method.Code
	if code == nil {
		t.Fatal("method has no code")
	}

	if code.RegistersSize != 4 || code.InsSize != 1 || code.OutsSize != 2 {
		t.Errorf("code header assertion failed, got %d/%d/%d",
			code.RegistersSize, code.InsSize, code.OutsSize)
	}
	want := []uint16{0x0012, 0x0012, 0x000e}
	if len(code.Insns) != len(want) {
		t.Fatalf("insns length assertion failed, got %d, want %d",
			len(code.Insns), len(want))
	}
	for i, insn := range want {
		if code.Insns[i] != insn {
			t.Errorf("insn %d assertion failed, got 0x%04x, want 0x%04x",
				i, code.Insns[i], insn)
		}
	}
}

func TestTryCatchHandlers(t *testing.T) {
	file := parseImage(t, buildTryCatchImage(), nil)

	cls, err := file.FindClassByName("Lcom/example/Guarded;")
	if err != nil || cls == nil {
		t.Fatalf("FindClassByName failed, reason: %v", err)
	}
	code := cls.Method("guard").Code
	if len(code.Tries) != 2 {
		t.Fatalf("try count assertion failed, got %d, want 2", len(code.Tries))
	}

	first := code.Tries[0]
	if first.StartAddr != 0 || first.InsnCount != 2 {
		t.Errorf("first try assertion failed, got %+v", first)
	}
	if len(first.Handlers) != 2 {
		t.Fatalf("first handler count assertion failed, got %d, want 2",
			len(first.Handlers))
	}
	typed, ok := first.Handlers[0].Exception.(TypedException)
	if !ok {
		t.Fatalf("first handler assertion failed, got %T",
			first.Handlers[0].Exception)
	}
	if typed.Type.Descriptor != "Ljava/io/IOException;" {
		t.Errorf("handler type assertion failed, got %q", typed.Type.Descriptor)
	}
	if first.Handlers[0].Addr != 7 {
		t.Errorf("handler addr assertion failed, got %d, want 7",
			first.Handlers[0].Addr)
	}
	// A non-positive handler count appends the catch-all last.
	if _, ok := first.Handlers[1].Exception.(BaseException); !ok {
		t.Fatalf("catch-all assertion failed, got %T",
			first.Handlers[1].Exception)
	}
	if first.Handlers[1].Addr != 9 {
		t.Errorf("catch-all addr assertion failed, got %d, want 9",
			first.Handlers[1].Addr)
	}

	second := code.Tries[1]
	if len(second.Handlers) != 1 {
		t.Fatalf("second handler count assertion failed, got %d, want 1",
			len(second.Handlers))
	}
	typed, ok = second.Handlers[0].Exception.(TypedException)
	if !ok || typed.Type.Descriptor != "Ljava/lang/Exception;" {
		t.Errorf("second handler assertion failed, got %+v", second.Handlers[0])
	}
}

func TestCodeItemBadHandlerOffset(t *testing.T) {
	img := buildTryCatchImage()
	file := parseImage(t, img, nil)

	cls, err := file.FindClassByName("Lcom/example/Guarded;")
	if err != nil || cls == nil {
		t.Fatalf("FindClassByName failed, reason: %v", err)
	}
	codeOff := uint32(0)
	for def, err := range file.ClassDefs() {
		if err != nil {
			t.Fatalf("class defs failed, reason: %v", err)
		}
		data, err := file.GetClassData(def.ClassDataOff)
		if err != nil {
			t.Fatalf("GetClassData failed, reason: %v", err)
		}
		codeOff = data.VirtualMethods[0].CodeOff
	}

	// The try table starts after the 16-byte header, three insns and one
	// padding unit; handler_off is the last u16 of the 8-byte try item.
	data := append([]byte(nil), img.Bytes...)
	tryOff := codeOff + 16 + 3*2 + 2
	binary.LittleEndian.PutUint16(data[tryOff+6:], 0x7fff)

	broken, err := NewBytes(data, &Options{SkipChecksumVerification: true})
	if err != nil {
		t.Fatalf("NewBytes failed, reason: %v", err)
	}
	if err := broken.Parse(); err != nil {
		t.Fatalf("Parse failed, reason: %v", err)
	}
	_, err = broken.GetCodeItem(codeOff)
	var dexErr *Error
	if !errors.As(err, &dexErr) || dexErr.Kind != KindInvalidID {
		t.Fatalf("bad handler offset assertion failed, got %v", err)
	}
	if dexErr.What != "catch handler offset" {
		t.Errorf("error detail assertion failed, got %q", dexErr.What)
	}
}

func TestGetCodeItemZeroOffset(t *testing.T) {
	file := parseImage(t, buildTryCatchImage(), nil)
	code, err := file.GetCodeItem(0)
	if err != nil {
		t.Fatalf("GetCodeItem(0) failed, reason: %v", err)
	}
	if code != nil {
		t.Errorf("zero offset assertion failed, got %+v", code)
	}
}

func TestDebugInfo(t *testing.T) {
	b := dextest.NewBuilder()
	b.AddClass(dextest.Class{
		Descriptor:  "Lcom/example/Debugged;",
		AccessFlags: 0x1,
		SuperClass:  "Ljava/lang/Object;",
		VirtualMethods: []dextest.Method{
			{Name: "step", ReturnType: "V", Params: []string{"I", "I"},
				AccessFlags: 0x1,
				Code: &dextest.Code{
					RegistersSize: 3, InsSize: 3,
					Insns: []uint16{0x000e},
					Debug: &dextest.Debug{
						LineStart:      3,
						ParameterNames: []string{"x", ""},
						Bytecode: []byte{
							0x07,       // set prologue end
							0x01, 0x05, // advance pc 5
							0x02, 0x7f, // advance line -1
							0xbc, // special
							0x00, // end sequence
						},
					},
				}},
		},
	})
	file := parseImage(t, b.Build(), nil)

	cls, err := file.FindClassByName("Lcom/example/Debugged;")
	if err != nil || cls == nil {
		t.Fatalf("FindClassByName failed, reason: %v", err)
	}
	code := cls.Method("step").Code
	if code == nil || code.DebugInfo == nil {
		t.Fatal("method has no debug info")
	}
	debug := code.DebugInfo

	if debug.LineStart != 3 {
		t.Errorf("line start assertion failed, got %d, want 3", debug.LineStart)
	}
	if len(debug.ParameterNames) != 2 {
		t.Fatalf("parameter name count assertion failed, got %d, want 2",
			len(debug.ParameterNames))
	}
	if debug.ParameterNames[0] == nil || *debug.ParameterNames[0] != "x" {
		t.Errorf("parameter 0 assertion failed, got %v", debug.ParameterNames[0])
	}
	if debug.ParameterNames[1] != nil {
		t.Errorf("parameter 1 assertion failed, got %v", *debug.ParameterNames[1])
	}

	want := []DebugInstruction{
		DebugSetPrologueEnd{},
		DebugAdvancePC{AddrDiff: 5},
		DebugAdvanceLine{LineDiff: -1},
		// 0xbc - 0x0a = 178: line -4 + 178%15 = 9, addr 178/15 = 11.
		DebugSpecial{LineDiff: 9, AddrDiff: 11},
		DebugEndSequence{},
	}
	if len(debug.Instructions) != len(want) {
		t.Fatalf("instruction count assertion failed, got %d, want %d",
			len(debug.Instructions), len(want))
	}
	for i, insn := range want {
		if debug.Instructions[i] != insn {
			t.Errorf("instruction %d assertion failed, got %+v, want %+v",
				i, debug.Instructions[i], insn)
		}
	}
}

func TestDebugInfoUnterminated(t *testing.T) {
	// line_start 1, no parameters, one advance-pc and then the stream
	// just ends.
	raw := []byte{0x01, 0x00, 0x01, 0x01}
	file := &File{
		data: raw,
		size: uint32(len(raw)),
		bo:   binary.LittleEndian,
		Header: Header{
			DataOff:  0,
			DataSize: uint32(len(raw)),
		},
	}

	_, err := file.GetDebugInfoItem(0)
	var dexErr *Error
	if !errors.As(err, &dexErr) || dexErr.Kind != KindMalformed {
		t.Fatalf("unterminated stream assertion failed, got %v", err)
	}
}
