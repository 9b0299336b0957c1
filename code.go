// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package dex

// CodeItem holds the bytecode and exception handling tables of one method.
type CodeItem struct {
	// Number of registers the method uses.
	RegistersSize uint16 `json:"registers_size"`

	// Number of words of incoming arguments.
	InsSize uint16 `json:"ins_size"`

	// Number of words of outgoing argument space.
	OutsSize uint16 `json:"outs_size"`

	// Offset of the debug info stream, zero when absent.
	DebugInfoOff uint32 `json:"debug_info_off"`

	// Instruction stream, as 16-bit code units.
	Insns []uint16 `json:"insns"`

	// Try blocks covering ranges of the instruction stream.
	Tries []TryBlock `json:"tries"`

	// Decoded debug info, nil when the method carries none.
	DebugInfo *DebugInfoItem `json:"debug_info"`
}

// TryBlock covers a range of instructions with an ordered list of catch
// handlers.
type TryBlock struct {
	// First instruction address covered.
	StartAddr uint32 `json:"start_addr"`

	// Number of 16-bit code units covered.
	InsnCount uint16 `json:"insn_count"`

	// Catch handlers, in dispatch order. A catch-all, when present, is
	// last.
	Handlers []CatchHandler `json:"handlers"`
}

// ExceptionType states which exceptions a catch handler accepts. The
// concrete type is BaseException or TypedException.
type ExceptionType interface {
	isExceptionType()
}

// BaseException is the catch-all case accepting every throwable.
type BaseException struct{}

// TypedException accepts a specific exception type and its subtypes.
type TypedException struct {
	Type Type `json:"type"`
}

func (BaseException) isExceptionType()  {}
func (TypedException) isExceptionType() {}

// CatchHandler is one dispatch entry of a try block.
type CatchHandler struct {
	Exception ExceptionType `json:"exception"`
	Addr      uint32        `json:"addr"`
}

// encodedCatchHandler is one handler list together with its byte offset
// relative to the start of the encoded_catch_handler_list, which is what
// try items reference.
type encodedCatchHandler struct {
	offset   int
	handlers []CatchHandler
}

// readEncodedCatchHandlerList decodes the handler list that follows the try
// table. Each handler's relative byte offset is recorded for binding.
func (dex *File) readEncodedCatchHandlerList(c *cursor) ([]encodedCatchHandler, error) {
	base := c.Pos()
	size, err := c.Uleb128()
	if err != nil {
		return nil, err
	}
	list := make([]encodedCatchHandler, 0, size)
	for i := uint32(0); i < size; i++ {
		off := c.Pos() - base
		handlers, err := dex.readEncodedCatchHandler(c)
		if err != nil {
			return nil, err
		}
		list = append(list, encodedCatchHandler{offset: off, handlers: handlers})
	}
	return list, nil
}

// readEncodedCatchHandler decodes one encoded_catch_handler: an SLEB128
// count of typed handlers, negated when a catch-all follows them.
func (dex *File) readEncodedCatchHandler(c *cursor) ([]CatchHandler, error) {
	size, err := c.Sleb128()
	if err != nil {
		return nil, err
	}
	n := size
	if n < 0 {
		n = -n
	}
	handlers := make([]CatchHandler, 0, n+1)
	for i := int32(0); i < n; i++ {
		typeIdx, err := c.Uleb128()
		if err != nil {
			return nil, err
		}
		addr, err := c.Uleb128()
		if err != nil {
			return nil, err
		}
		jtype, err := dex.GetType(TypeID(typeIdx))
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, CatchHandler{
			Exception: TypedException{Type: jtype},
			Addr:      addr,
		})
	}
	if size <= 0 {
		addr, err := c.Uleb128()
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, CatchHandler{
			Exception: BaseException{},
			Addr:      addr,
		})
	}
	return handlers, nil
}

// GetCodeItem decodes the code_item at the given offset. A zero offset
// means the method has no code.
func (dex *File) GetCodeItem(offset uint32) (*CodeItem, error) {
	if offset == 0 {
		return nil, nil
	}
	if err := dex.checkDataOffset(offset, "code item"); err != nil {
		return nil, err
	}

	c := dex.cursorAt(offset)
	code := CodeItem{}
	var err error
	if code.RegistersSize, err = c.Uint16(); err != nil {
		return nil, err
	}
	if code.InsSize, err = c.Uint16(); err != nil {
		return nil, err
	}
	if code.OutsSize, err = c.Uint16(); err != nil {
		return nil, err
	}
	triesSize, err := c.Uint16()
	if err != nil {
		return nil, err
	}
	if code.DebugInfoOff, err = c.Uint32(); err != nil {
		return nil, err
	}
	insnsSize, err := c.Uint32()
	if err != nil {
		return nil, err
	}
	code.Insns = make([]uint16, 0, insnsSize)
	for i := uint32(0); i < insnsSize; i++ {
		insn, err := c.Uint16()
		if err != nil {
			return nil, err
		}
		code.Insns = append(code.Insns, insn)
	}

	// An odd instruction count is padded to realign the try table.
	if insnsSize%2 != 0 && triesSize != 0 {
		if _, err := c.Uint16(); err != nil {
			return nil, err
		}
	}

	if triesSize != 0 {
		type tryItem struct {
			startAddr  uint32
			insnCount  uint16
			handlerOff uint16
		}
		tries := make([]tryItem, 0, triesSize)
		for i := uint16(0); i < triesSize; i++ {
			var t tryItem
			if t.startAddr, err = c.Uint32(); err != nil {
				return nil, err
			}
			if t.insnCount, err = c.Uint16(); err != nil {
				return nil, err
			}
			if t.handlerOff, err = c.Uint16(); err != nil {
				return nil, err
			}
			tries = append(tries, t)
		}

		handlerList, err := dex.readEncodedCatchHandlerList(c)
		if err != nil {
			return nil, err
		}
		for _, t := range tries {
			var handlers []CatchHandler
			found := false
			for _, h := range handlerList {
				if h.offset == int(t.handlerOff) {
					handlers = h.handlers
					found = true
					break
				}
			}
			if !found {
				return nil, errInvalidID("catch handler offset",
					uint64(t.handlerOff))
			}
			code.Tries = append(code.Tries, TryBlock{
				StartAddr: t.startAddr,
				InsnCount: t.insnCount,
				Handlers:  handlers,
			})
		}
	}

	if code.DebugInfoOff != 0 {
		if code.DebugInfo, err = dex.GetDebugInfoItem(code.DebugInfoOff); err != nil {
			return nil, err
		}
	}

	return &code, nil
}
