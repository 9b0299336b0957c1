// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

// Debug info state machine opcodes.
const (
	dbgEndSequence    = 0x00
	dbgAdvancePC      = 0x01
	dbgAdvanceLine    = 0x02
	dbgStartLocal     = 0x03
	dbgStartLocalExt  = 0x04
	dbgEndLocal       = 0x05
	dbgRestartLocal   = 0x06
	dbgSetPrologueEnd = 0x07
	dbgSetEpilogueBeg = 0x08
	dbgSetFile        = 0x09
	dbgFirstSpecial   = 0x0a
	dbgLineBase       = -4
	dbgLineRange      = 15
)

// DebugInfoItem is the decoded line-number and local-variable program of a
// method.
type DebugInfoItem struct {
	// Initial value of the line register.
	LineStart uint32 `json:"line_start"`

	// Names of the incoming parameters, nil where the name was elided.
	ParameterNames []*string `json:"parameter_names"`

	// Decoded state machine instructions, ending with DebugEndSequence.
	Instructions []DebugInstruction `json:"instructions"`
}

// DebugInstruction is one state machine instruction of a debug info stream.
// The concrete type is one of the Debug* variants below.
type DebugInstruction interface {
	isDebugInstruction()
}

// DebugEndSequence terminates the stream.
type DebugEndSequence struct{}

// DebugAdvancePC advances the address register without emitting an entry.
type DebugAdvancePC struct {
	AddrDiff uint32 `json:"addr_diff"`
}

// DebugAdvanceLine advances the line register without emitting an entry.
type DebugAdvanceLine struct {
	LineDiff int32 `json:"line_diff"`
}

// DebugStartLocal introduces a local variable at the current address.
type DebugStartLocal struct {
	RegisterNum uint32   `json:"register_num"`
	NameIdx     StringID `json:"name_idx"`
	TypeIdx     TypeID   `json:"type_idx"`
}

// DebugStartLocalExtended introduces a local variable with a type signature.
type DebugStartLocalExtended struct {
	RegisterNum  uint32   `json:"register_num"`
	NameIdx      StringID `json:"name_idx"`
	TypeIdx      TypeID   `json:"type_idx"`
	SignatureIdx StringID `json:"signature_idx"`
}

// DebugEndLocal marks a local variable out of scope.
type DebugEndLocal struct {
	RegisterNum uint32 `json:"register_num"`
}

// DebugRestartLocal reintroduces a previously ended local variable.
type DebugRestartLocal struct {
	RegisterNum uint32 `json:"register_num"`
}

// DebugSetPrologueEnd marks the end of the method prologue.
type DebugSetPrologueEnd struct{}

// DebugSetEpilogueBegin marks the start of the method epilogue.
type DebugSetEpilogueBegin struct{}

// DebugSetFile switches the source file the following entries refer to.
type DebugSetFile struct {
	NameIdx StringID `json:"name_idx"`
}

// DebugSpecial advances both registers and emits a position entry.
type DebugSpecial struct {
	LineDiff int32  `json:"line_diff"`
	AddrDiff uint32 `json:"addr_diff"`
}

func (DebugEndSequence) isDebugInstruction()        {}
func (DebugAdvancePC) isDebugInstruction()          {}
func (DebugAdvanceLine) isDebugInstruction()        {}
func (DebugStartLocal) isDebugInstruction()         {}
func (DebugStartLocalExtended) isDebugInstruction() {}
func (DebugEndLocal) isDebugInstruction()           {}
func (DebugRestartLocal) isDebugInstruction()       {}
func (DebugSetPrologueEnd) isDebugInstruction()     {}
func (DebugSetEpilogueBegin) isDebugInstruction()   {}
func (DebugSetFile) isDebugInstruction()            {}
func (DebugSpecial) isDebugInstruction()            {}

// GetDebugInfoItem decodes the debug_info_item at the given offset.
func (dex *File) GetDebugInfoItem(offset uint32) (*DebugInfoItem, error) {
	if err := dex.checkDataOffset(offset, "debug info"); err != nil {
		return nil, err
	}
	c := dex.cursorAt(offset)

	item := DebugInfoItem{}
	var err error
	if item.LineStart, err = c.Uleb128(); err != nil {
		return nil, err
	}
	parametersSize, err := c.Uleb128()
	if err != nil {
		return nil, err
	}
	item.ParameterNames = make([]*string, 0, parametersSize)
	for i := uint32(0); i < parametersSize; i++ {
		nameIdx, err := c.Uleb128p1()
		if err != nil {
			return nil, err
		}
		if nameIdx == NoIndex {
			item.ParameterNames = append(item.ParameterNames, nil)
			continue
		}
		name, err := dex.GetString(StringID(nameIdx))
		if err != nil {
			return nil, err
		}
		item.ParameterNames = append(item.ParameterNames, &name)
	}

	for {
		opcode, err := c.Uint8()
		if err != nil {
			return nil, errMalformed("unterminated debug info stream")
		}
		insn, err := dex.readDebugInstruction(c, opcode)
		if err != nil {
			return nil, err
		}
		item.Instructions = append(item.Instructions, insn)
		if _, done := insn.(DebugEndSequence); done {
			return &item, nil
		}
	}
}

func (dex *File) readDebugInstruction(c *cursor, opcode uint8) (DebugInstruction, error) {
	switch opcode {
	case dbgEndSequence:
		return DebugEndSequence{}, nil
	case dbgAdvancePC:
		addrDiff, err := c.Uleb128()
		if err != nil {
			return nil, err
		}
		return DebugAdvancePC{AddrDiff: addrDiff}, nil
	case dbgAdvanceLine:
		lineDiff, err := c.Sleb128()
		if err != nil {
			return nil, err
		}
		return DebugAdvanceLine{LineDiff: lineDiff}, nil
	case dbgStartLocal:
		registerNum, err := c.Uleb128()
		if err != nil {
			return nil, err
		}
		nameIdx, err := c.Uleb128p1()
		if err != nil {
			return nil, err
		}
		typeIdx, err := c.Uleb128p1()
		if err != nil {
			return nil, err
		}
		return DebugStartLocal{
			RegisterNum: registerNum,
			NameIdx:     StringID(nameIdx),
			TypeIdx:     TypeID(typeIdx),
		}, nil
	case dbgStartLocalExt:
		registerNum, err := c.Uleb128()
		if err != nil {
			return nil, err
		}
		nameIdx, err := c.Uleb128p1()
		if err != nil {
			return nil, err
		}
		typeIdx, err := c.Uleb128p1()
		if err != nil {
			return nil, err
		}
		signatureIdx, err := c.Uleb128p1()
		if err != nil {
			return nil, err
		}
		return DebugStartLocalExtended{
			RegisterNum:  registerNum,
			NameIdx:      StringID(nameIdx),
			TypeIdx:      TypeID(typeIdx),
			SignatureIdx: StringID(signatureIdx),
		}, nil
	case dbgEndLocal:
		registerNum, err := c.Uleb128()
		if err != nil {
			return nil, err
		}
		return DebugEndLocal{RegisterNum: registerNum}, nil
	case dbgRestartLocal:
		registerNum, err := c.Uleb128()
		if err != nil {
			return nil, err
		}
		return DebugRestartLocal{RegisterNum: registerNum}, nil
	case dbgSetPrologueEnd:
		return DebugSetPrologueEnd{}, nil
	case dbgSetEpilogueBeg:
		return DebugSetEpilogueBegin{}, nil
	case dbgSetFile:
		nameIdx, err := c.Uleb128p1()
		if err != nil {
			return nil, err
		}
		return DebugSetFile{NameIdx: StringID(nameIdx)}, nil
	}
	adjusted := uint32(opcode - dbgFirstSpecial)
	return DebugSpecial{
		LineDiff: dbgLineBase + int32(adjusted%dbgLineRange),
		AddrDiff: adjusted / dbgLineRange,
	}, nil
}
