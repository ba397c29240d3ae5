package compiler

import "github.com/mna/lispcore/lang/value"

// Defer records a PC range (the span of code it protects) and the chunk
// offset of the thunk it must run on exit: either a `defer` block (always
// runs) or an `on-error` handler (runs only when an error unwinds through
// the covered range). A nested handler's entry precedes its enclosing
// one's, since the inner on-error finishes compiling first; when several
// ranges cover a pc the narrowest one wins (see the vm's unwinding).
type Defer struct {
	PC0, PC1  uint32 // [PC0, PC1) is the code range this defer/handler covers
	HandlerPC uint32 // instruction to jump to when unwinding reaches it
	IsCatch   bool   // true for on-error, false for defer
}

// Covers reports whether pc falls inside the range this Defer protects.
func (d Defer) Covers(pc uint32) bool { return pc >= d.PC0 && pc < d.PC1 }

// CaptureSlot pairs a closure's Nth capture with where its cell comes from
// (the enclosing frame's register, at CLOSE time) and where it lands (this
// chunk's own frame register, at call time).
type CaptureSlot struct {
	SrcReg   int
	LocalReg int
}

// LineEntry maps a code offset to a source line, the chunk's line table.
type LineEntry struct {
	PC   uint32
	Line int32
}

// Chunk is the compiled form of one function body: its encoded instruction
// stream, constants, arity contract, register requirements and debug
// information. Lambdas and closures on the heap hold a Chunk (wrapped in
// an `any` by package heap, which cannot import compiler).
type Chunk struct {
	Name string // for disassembly and stack traces; "" for an anonymous lambda

	Code      []byte
	Constants []value.Value

	// Arity contract: Args <= received <= Args+OptArgs, or Args <= received
	// when Rest is set.
	Args    int
	OptArgs int
	Rest    bool

	InputRegs int // highest register touched by parameters + reserved locals
	ExtraRegs int // additional scratch registers required by the body

	// Captures lists, for a closure, the source register in the *enclosing*
	// frame whose boxed cell becomes this chunk's Nth capture slot, paired
	// with the local register in this chunk's own frame that CLOSE (at
	// closure-creation time in the enclosing frame) and the call machinery
	// (at invocation time, in this frame) populate with that cell.
	Captures []CaptureSlot

	DbgArgs   []string // parameter names, parallel to Args+OptArgs(+1 if Rest)
	FileName  string
	StartLine int32
	LineTable []LineEntry

	Defers []Defer
}

// TotalRegs is the number of registers a frame for this chunk needs.
func (c *Chunk) TotalRegs() int { return c.InputRegs + c.ExtraRegs + 1 }

// LineForPC returns the source line recorded for the instruction at or
// before pc, or 0 if the chunk has no line table.
func (c *Chunk) LineForPC(pc uint32) int32 {
	var line int32
	for _, e := range c.LineTable {
		if e.PC > pc {
			break
		}
		line = e.Line
	}
	return line
}

// IsClosure reports whether this chunk captures any enclosing variables.
func (c *Chunk) IsClosure() bool { return len(c.Captures) > 0 }
