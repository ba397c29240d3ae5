// Package compiler lowers s-expression Values, produced by the reader
// straight off heap-backed pairs/vectors/maps and immediate value types,
// into register-based Chunks the vm package can execute. There is no
// separate AST or resolver pass: a Value form doubles as both code and
// data (the traditional Lisp homoiconicity), and scope resolution happens
// inline by walking the Symbols chain as each form is visited once.
package compiler

import (
	"fmt"

	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/intern"
	"github.com/mna/lispcore/lang/token"
	"github.com/mna/lispcore/lang/value"
)

// CompileError reports a failure to compile a form: an unbound special
// form's argument count, an invalid binding target, and the like. It never
// wraps a runtime error -- those belong to the vm package.
type CompileError struct{ Msg string }

func (e *CompileError) Error() string { return "error [:compile]: " + e.Msg }

func errf(format string, args ...any) error {
	return &CompileError{Msg: fmt.Sprintf(format, args...)}
}

// GlobalTable assigns stable slot indices to global names, shared by every
// Chunk a Compiler produces and by the vm.Globals that stores their
// runtime values. It only tracks identity (symbol id <-> slot); the values
// themselves and their attribute maps are runtime state the VM owns.
type GlobalTable struct {
	slots map[intern.ID]int
	names []intern.ID
}

func NewGlobalTable() *GlobalTable {
	return &GlobalTable{slots: make(map[intern.ID]int)}
}

// Lookup returns the slot assigned to id, if any, without creating one.
func (g *GlobalTable) Lookup(id intern.ID) (int, bool) {
	s, ok := g.slots[id]
	return s, ok
}

// Slot returns id's slot, assigning the next free one the first time id is
// referenced. `def` reserves the slot before compiling its value
// expression, so a function defined at the top level can call itself by
// name through its own global slot.
func (g *GlobalTable) Slot(id intern.ID) int {
	if s, ok := g.slots[id]; ok {
		return s
	}
	s := len(g.names)
	g.slots[id] = s
	g.names = append(g.names, id)
	return s
}

func (g *GlobalTable) Len() int { return len(g.names) }

// IDAt returns the interned id bound to slot, for disassembly and error
// messages.
func (g *GlobalTable) IDAt(slot int) intern.ID { return g.names[slot] }

// MacroExpander lets an embedder (the vm package) answer "is this global a
// macro" and actually run one's compiled body against unevaluated argument
// forms. Only the VM can do the latter, so the compiler only ever holds an
// optional callback to it; with Macros == nil every application compiles
// as an ordinary call.
type MacroExpander interface {
	IsMacro(id intern.ID) bool
	Expand(id intern.ID, args []value.Value) (value.Value, error)
}

// Compiler holds everything shared across every Chunk it compiles: the
// interner and heap forms are read from, the global slot table, the
// interned special-form heads, and an optional macro expander.
type Compiler struct {
	Interner *intern.Table
	Heap     *heap.Heap
	Globals  *GlobalTable
	Macros   MacroExpander

	sp       *specials
	macroKW  value.Keyword
	vmErrKW  value.Keyword
}

func New(it *intern.Table, hp *heap.Heap, g *GlobalTable) *Compiler {
	return &Compiler{
		Interner: it,
		Heap:     hp,
		Globals:  g,
		sp:       newSpecials(it),
		macroKW:  value.NewKeyword(it.Intern("macro"), "macro"),
		vmErrKW:  value.NewKeyword(it.Intern("vm"), "vm"),
	}
}

// fstate is the mutable compile state for one Chunk: its own Symbols
// scope, the code/constants being built, and the tail-call/defer flags
// that thread through every compileExpr call within this function body.
type fstate struct {
	c      *Compiler
	parent *fstate
	syms   *Symbols
	chunk  *Chunk

	constIdx map[value.Value]int

	tail   bool   // true while compiling a form in tail position
	defers uint32 // count of `defer`s registered so far in the innermost enclosing let/fn
}

func (c *Compiler) newF(parent *fstate, name string) *fstate {
	var parentSyms *Symbols
	if parent != nil {
		parentSyms = parent.syms
	}
	return &fstate{
		c:        c,
		parent:   parent,
		syms:     NewFunctionScope(parentSyms),
		chunk:    &Chunk{Name: name},
		constIdx: make(map[value.Value]int),
	}
}

// emit appends one instruction and returns the byte offset of its jump
// operand (for patchTo), or -1 if op is not a jump.
func (f *fstate) emit(op Opcode, operands ...int32) int {
	code, off := EmitOp(f.chunk.Code, op, operands...)
	f.chunk.Code = code
	return off
}

func (f *fstate) here() int32 { return int32(len(f.chunk.Code)) }

// patchTo backfills the jump operand at off (as returned by emit) with the
// relative offset from the instruction following it to target.
func (f *fstate) patchTo(off int, target int32) {
	PatchOperand(f.chunk.Code, off, target-(int32(off)+2))
}

// addConst interns v into this chunk's constant pool, reusing an existing
// slot when v has already been added (comparable values only; heap handles
// and scalars are all comparable, so this covers every constant kind the
// compiler ever emits).
func (f *fstate) addConst(v value.Value) int32 {
	if idx, ok := f.constIdx[v]; ok {
		return int32(idx)
	}
	idx := len(f.chunk.Constants)
	f.chunk.Constants = append(f.chunk.Constants, v)
	f.constIdx[v] = idx
	return int32(idx)
}

// notePos records form's source line in the chunk's line table, when the
// reader attached one (see token.HasPosition).
func (f *fstate) notePos(form value.Value) {
	hp, ok := form.(token.HasPosition)
	if !ok {
		return
	}
	pos := hp.Pos()
	if !pos.IsValid() {
		return
	}
	if f.chunk.FileName == "" {
		f.chunk.FileName = pos.File
		f.chunk.StartLine = pos.Line
	}
	n := len(f.chunk.LineTable)
	if n == 0 || f.chunk.LineTable[n-1].Line != pos.Line {
		f.chunk.LineTable = append(f.chunk.LineTable, LineEntry{PC: uint32(f.here()), Line: pos.Line})
	}
}

// reserveRegs allocates n consecutive registers up front, before any of
// them is written to -- the only way to guarantee CALL/LIST/VEC's
// regs[start:end] ranges come out contiguous despite scratch registers
// possibly being allocated while compiling each element's sub-expression.
func (f *fstate) reserveRegs(n int) []int32 {
	regs := make([]int32, n)
	for i := range regs {
		regs[i] = int32(f.syms.AllocReg())
	}
	return regs
}

// emitTailShuffle moves the already-compiled argument block down to
// regs[1:1+argc], the layout every tail-call opcode assumes. It overwrites
// registers 1..argc, so any value still needed after it (a computed callee
// register, in particular) must live above that range.
func (f *fstate) emitTailShuffle(argRegs []int32) {
	if len(argRegs) == 0 {
		return
	}
	f.emit(BMOV, 1, argRegs[0], int32(len(argRegs)))
}

// CompileToplevel compiles one top-level form into a zero-argument Chunk,
// the unit `asm`/the REPL/a script's entry point runs.
func (c *Compiler) CompileToplevel(form value.Value, name string) (*Chunk, error) {
	top := c.newF(nil, name)
	top.tail = true
	if err := c.compileExpr(top, form, 0); err != nil {
		return nil, err
	}
	top.emit(SRET, 0)
	top.chunk.ExtraRegs = top.syms.fn.nextReg - 1
	top.chunk.Captures = captureSourceRegs(top.syms)
	return top.chunk, nil
}

func captureSourceRegs(s *Symbols) []CaptureSlot {
	caps := s.Captures()
	out := make([]CaptureSlot, len(caps))
	for i, cp := range caps {
		out[i] = CaptureSlot{SrcReg: cp.srcReg, LocalReg: cp.localReg}
	}
	return out
}

// compileExpr compiles form, writing its value into register dest.
func (c *Compiler) compileExpr(f *fstate, form value.Value, dest int32) error {
	f.notePos(form)
	switch v := form.(type) {
	case nil:
		f.emit(CONST, dest, f.addConst(value.Nil))
		return nil
	case value.Symbol:
		return c.compileSymbolRef(f, v, dest)
	case heap.Handle:
		if v.Kind == heap.KindPair {
			return c.compileApplication(f, v, dest)
		}
		f.emit(CONST, dest, f.addConst(form))
		return nil
	default:
		// every other Value (Int, Float, Bool, Keyword, StringConst, Byte,
		// CodePoint, Nil, ...) is self-evaluating
		f.emit(CONST, dest, f.addConst(form))
		return nil
	}
}

func (c *Compiler) compileSymbolRef(f *fstate, sym value.Symbol, dest int32) error {
	kind, reg := f.syms.Resolve(sym.ID, sym.Name)
	switch kind {
	case refLocal, refFree:
		f.emit(MOV, dest, int32(reg))
		return nil
	default:
		if slot, ok := c.Globals.Lookup(sym.ID); ok {
			f.emit(GLOBAL, dest, int32(slot))
			return nil
		}
		return errf("undefined symbol: %s", sym.Name)
	}
}

func (c *Compiler) compileApplication(f *fstate, hd heap.Handle, dest int32) error {
	forms, err := c.Heap.ListSlice(hd)
	if err != nil {
		return errf("cannot call an improper list")
	}
	if len(forms) == 0 {
		f.emit(CONST, dest, f.addConst(value.Nil))
		return nil
	}
	head, args := forms[0], forms[1:]

	if sym, ok := head.(value.Symbol); ok {
		if sym.ID == c.sp.ThisFn {
			isTail := f.tail && f.defers == 0
			f.tail = false
			return c.compileCallM(f, args, dest, isTail)
		}
		if handled, err := c.specialForm(f, sym, args, dest); handled {
			return err
		}
		if handled, err := c.operatorForm(f, sym.ID, args, dest); handled {
			return err
		}
		if c.Macros != nil && c.Macros.IsMacro(sym.ID) {
			expansion, err := c.Macros.Expand(sym.ID, args)
			if err != nil {
				return err
			}
			return c.compileExpr(f, expansion, dest)
		}
	}
	return c.compileCall(f, head, args, dest)
}

func (c *Compiler) specialForm(f *fstate, sym value.Symbol, args []value.Value, dest int32) (bool, error) {
	sp := c.sp
	switch sym.ID {
	case sp.Fn:
		return true, c.compileFn(f, args, dest, false)
	case sp.Macro:
		return true, c.compileFn(f, args, dest, true)
	case sp.Def:
		return true, c.compileDef(f, args, dest)
	case sp.SetBang:
		return true, c.compileSetBang(f, args, dest)
	case sp.Let:
		return true, c.compileLet(f, args, dest)
	case sp.If:
		return true, c.compileIf(f, args, dest)
	case sp.Quote:
		return true, c.compileQuote(f, args, dest)
	case sp.Quasiquote:
		return true, c.compileQuasiquote(f, args, dest)
	case sp.Do:
		return true, c.compileDo(f, args, dest)
	case sp.And:
		return true, c.compileAnd(f, args, dest)
	case sp.Or:
		return true, c.compileOr(f, args, dest)
	case sp.Defer:
		return true, c.compileDefer(f, args, dest)
	case sp.OnError:
		return true, c.compileOnError(f, args, dest)
	case sp.While:
		return true, c.compileWhile(f, args, dest)
	case sp.Return:
		return true, c.compileReturn(f, args, dest)
	case sp.CallCC:
		return true, c.compileCallCC(f, args, dest)
	case sp.GetProp:
		return true, c.compileGetProp(f, args, dest)
	case sp.SetProp:
		return true, c.compileSetProp(f, args, dest)
	case sp.Err:
		return true, c.compileErr(f, args, dest)
	case sp.Unquote:
		return true, errf("unquote: not valid outside quasiquote")
	case sp.UnquoteSplice:
		return true, errf("unquote-splice: not valid outside quasiquote")
	}
	return false, nil
}

// ---- calls ----

func (c *Compiler) compileCall(f *fstate, head value.Value, args []value.Value, dest int32) error {
	isTail := f.tail && f.defers == 0
	f.tail = false

	if sym, ok := head.(value.Symbol); ok {
		if kind, _ := f.syms.Resolve(sym.ID, sym.Name); kind == refUnbound {
			if slot, ok := c.Globals.Lookup(sym.ID); ok {
				return c.compileCallG(f, slot, args, dest, isTail)
			}
			return errf("undefined symbol: %s", sym.Name)
		}
	}

	// callee and args must land in one contiguous block (CALL reads args at
	// regs[callee+1:callee+1+argc]), reserved before compiling either:
	// compiling the callee expression may itself need scratch registers,
	// which must land above the whole block rather than between calleeReg
	// and argRegs[0].
	block := f.reserveRegs(1 + len(args))
	calleeReg, argRegs := block[0], block[1:]
	if err := c.compileExpr(f, head, calleeReg); err != nil {
		return err
	}
	for i, a := range args {
		if err := c.compileExpr(f, a, argRegs[i]); err != nil {
			return err
		}
	}
	argc := int32(len(args))
	if isTail {
		// the shuffle writes regs[1:1+argc] and calleeReg can fall inside
		// that range (it does whenever few registers precede the block), so
		// the callee must be parked in a register outside [1, argc] before
		// the BMOV runs. A register allocated after the block always is.
		tailCallee := calleeReg
		if argc > 0 {
			tailCallee = int32(f.syms.AllocReg())
			f.emit(MOV, tailCallee, calleeReg)
			f.emitTailShuffle(argRegs)
		}
		f.emit(TCALL, tailCallee, argc)
	} else {
		f.emit(CALL, calleeReg, argc, dest)
	}
	return nil
}

// compileCallG and compileCallM's args need not be adjacent to dest: dest
// was allocated by the surrounding expression and may sit anywhere below
// the args block, so non-tail CALLG/CALLM carry an explicit argStart
// operand. Tail calls don't need one: emitTailShuffle always leaves args at
// regs[1:], so TCALLG/TCALLM can assume that fixed layout.
func (c *Compiler) compileCallG(f *fstate, slot int, args []value.Value, dest int32, isTail bool) error {
	argRegs := f.reserveRegs(len(args))
	for i, a := range args {
		if err := c.compileExpr(f, a, argRegs[i]); err != nil {
			return err
		}
	}
	argc := int32(len(args))
	if isTail {
		f.emitTailShuffle(argRegs)
		f.emit(TCALLG, int32(slot), argc)
	} else {
		var argStart int32
		if argc > 0 {
			argStart = argRegs[0]
		}
		f.emit(CALLG, argStart, int32(slot), argc, dest)
	}
	return nil
}

func (c *Compiler) compileCallM(f *fstate, args []value.Value, dest int32, isTail bool) error {
	argRegs := f.reserveRegs(len(args))
	for i, a := range args {
		if err := c.compileExpr(f, a, argRegs[i]); err != nil {
			return err
		}
	}
	argc := int32(len(args))
	if isTail {
		f.emitTailShuffle(argRegs)
		f.emit(TCALLM, argc)
	} else {
		var argStart int32
		if argc > 0 {
			argStart = argRegs[0]
		}
		f.emit(CALLM, argStart, argc, dest)
	}
	return nil
}

// ---- if / do / and / or / while / return / call/cc ----

func (c *Compiler) compileIf(f *fstate, args []value.Value, dest int32) error {
	if len(args) != 2 && len(args) != 3 {
		return errf("if: want 2 or 3 forms, got %d", len(args))
	}
	outerTail := f.tail
	condReg := int32(f.syms.AllocReg())
	f.tail = false
	if err := c.compileExpr(f, args[0], condReg); err != nil {
		return err
	}
	jf := f.emit(JMPF, condReg, 0)

	f.tail = outerTail
	if err := c.compileExpr(f, args[1], dest); err != nil {
		return err
	}
	jend := f.emit(JMP, 0)
	f.patchTo(jf, f.here())

	if len(args) == 3 {
		f.tail = outerTail
		if err := c.compileExpr(f, args[2], dest); err != nil {
			return err
		}
	} else {
		f.emit(CONST, dest, f.addConst(value.Nil))
	}
	f.patchTo(jend, f.here())
	f.tail = outerTail
	return nil
}

func (c *Compiler) compileDo(f *fstate, args []value.Value, dest int32) error {
	outerTail := f.tail
	if len(args) == 0 {
		f.emit(CONST, dest, f.addConst(value.Nil))
		return nil
	}
	for i, form := range args {
		f.tail = outerTail && i == len(args)-1
		if err := c.compileExpr(f, form, dest); err != nil {
			return err
		}
	}
	f.tail = outerTail
	return nil
}

func (c *Compiler) compileAnd(f *fstate, args []value.Value, dest int32) error {
	if len(args) == 0 {
		f.emit(CONST, dest, f.addConst(value.True))
		return nil
	}
	outerTail := f.tail
	var jumps []int
	for i, form := range args {
		last := i == len(args)-1
		f.tail = outerTail && last
		if err := c.compileExpr(f, form, dest); err != nil {
			return err
		}
		if !last {
			jumps = append(jumps, f.emit(JMPF, dest, 0))
		}
	}
	f.tail = outerTail
	end := f.here()
	for _, j := range jumps {
		f.patchTo(j, end)
	}
	return nil
}

func (c *Compiler) compileOr(f *fstate, args []value.Value, dest int32) error {
	if len(args) == 0 {
		f.emit(CONST, dest, f.addConst(value.False))
		return nil
	}
	outerTail := f.tail
	var jumps []int
	for i, form := range args {
		last := i == len(args)-1
		f.tail = outerTail && last
		if err := c.compileExpr(f, form, dest); err != nil {
			return err
		}
		if !last {
			jumps = append(jumps, f.emit(JMPT, dest, 0))
		}
	}
	f.tail = outerTail
	end := f.here()
	for _, j := range jumps {
		f.patchTo(j, end)
	}
	return nil
}

func (c *Compiler) compileWhile(f *fstate, args []value.Value, dest int32) error {
	if len(args) < 1 {
		return errf("while: missing condition")
	}
	outerTail := f.tail
	f.tail = false

	top := f.here()
	condReg := int32(f.syms.AllocReg())
	if err := c.compileExpr(f, args[0], condReg); err != nil {
		return err
	}
	jexit := f.emit(JMPF, condReg, 0)

	for _, form := range args[1:] {
		scratch := int32(f.syms.AllocReg())
		if err := c.compileExpr(f, form, scratch); err != nil {
			return err
		}
	}
	jback := f.emit(JMP, 0)
	f.patchTo(jback, top)
	f.patchTo(jexit, f.here())

	f.emit(CONST, dest, f.addConst(value.Nil))
	f.tail = outerTail
	return nil
}

func (c *Compiler) compileReturn(f *fstate, args []value.Value, _ int32) error {
	if len(args) > 1 {
		return errf("return: want 0 or 1 forms, got %d", len(args))
	}
	if len(args) == 1 {
		f.tail = false
		if err := c.compileExpr(f, args[0], 0); err != nil {
			return err
		}
	} else {
		f.emit(CONST, 0, f.addConst(value.Nil))
	}
	if f.defers > 0 {
		f.emit(SRET, 0)
	} else {
		f.emit(RET, 0)
	}
	return nil
}

func (c *Compiler) compileCallCC(f *fstate, args []value.Value, dest int32) error {
	if len(args) != 1 {
		return errf("call/cc: want 1 form, got %d", len(args))
	}
	fnReg := int32(f.syms.AllocReg())
	f.tail = false
	if err := c.compileExpr(f, args[0], fnReg); err != nil {
		return err
	}
	f.emit(CALLCC, dest, fnReg)
	return nil
}

// ---- def / set! ----

func (c *Compiler) compileDef(f *fstate, args []value.Value, dest int32) error {
	if len(args) != 2 {
		return errf("def: want 2 forms, got %d", len(args))
	}
	sym, ok := args[0].(value.Symbol)
	if !ok {
		return errf("def: first form must be a symbol")
	}
	// reserve the slot before the value compiles so the value expression
	// can reference the name (a self-recursive top-level function)
	slot := c.Globals.Slot(sym.ID)
	f.tail = false
	if err := c.compileExpr(f, args[1], dest); err != nil {
		return err
	}
	f.emit(SETGLOBAL, int32(slot), dest)

	if c.isMacroForm(args[1]) {
		objReg := int32(f.syms.AllocReg())
		f.emit(CONST, objReg, f.addConst(sym))
		keyReg := int32(f.syms.AllocReg())
		f.emit(CONST, keyReg, f.addConst(c.macroKW))
		valReg := int32(f.syms.AllocReg())
		f.emit(CONST, valReg, f.addConst(value.True))
		f.emit(SETPROP, objReg, keyReg, valReg)
	}
	return nil
}

// isMacroForm reports whether expr is syntactically `(macro ...)`, checked
// before compiling so `def` knows to tag the resulting global.
func (c *Compiler) isMacroForm(expr value.Value) bool {
	hd, ok := expr.(heap.Handle)
	if !ok || hd.Kind != heap.KindPair {
		return false
	}
	car, err := c.Heap.Car(hd)
	if err != nil {
		return false
	}
	sym, ok := car.(value.Symbol)
	return ok && sym.ID == c.sp.Macro
}

func (c *Compiler) compileSetBang(f *fstate, args []value.Value, dest int32) error {
	if len(args) != 2 {
		return errf("set!: want 2 forms, got %d", len(args))
	}
	sym, ok := args[0].(value.Symbol)
	if !ok {
		return errf("set!: first form must be a symbol")
	}
	f.tail = false
	if err := c.compileExpr(f, args[1], dest); err != nil {
		return err
	}
	kind, reg := f.syms.Resolve(sym.ID, sym.Name)
	switch kind {
	case refLocal, refFree:
		f.emit(SET, int32(reg), dest)
	default:
		slot, ok := c.Globals.Lookup(sym.ID)
		if !ok {
			return errf("set!: undefined symbol: %s", sym.Name)
		}
		f.emit(SETGLOBAL, int32(slot), dest)
	}
	return nil
}

// ---- let ----

type letBinding struct {
	isPattern bool
	rebind    bool // name already lexically bound: shadow only after its value compiles
	sym       value.Symbol
	pattern   value.Value
	reg       int32
	valueExpr value.Value
}

// letBindingForms reads the first form of a let, which the reader may
// deliver as either a list or a vector of alternating target/value forms.
func (c *Compiler) letBindingForms(target value.Value) ([]value.Value, error) {
	switch t := target.(type) {
	case value.NilType:
		return nil, nil
	case heap.Handle:
		switch t.Kind {
		case heap.KindVector:
			return c.Heap.VectorSlice(t)
		case heap.KindPair:
			return c.Heap.ListSlice(t)
		}
	}
	return nil, errf("let: bindings must be a list or vector")
}

func (c *Compiler) compileLet(f *fstate, args []value.Value, dest int32) error {
	if len(args) < 1 {
		return errf("let: missing bindings")
	}
	elems, err := c.letBindingForms(args[0])
	if err != nil {
		return err
	}
	if len(elems)%2 != 0 {
		return errf("let: every binding target needs a value")
	}

	prevSyms := f.syms
	f.syms = NewLetScope(prevSyms)
	defer func() { f.syms = prevSyms }()

	outerTail := f.tail
	defersBefore := f.defers

	var binds []letBinding
	for i := 0; i < len(elems); i += 2 {
		target, valueExpr := elems[i], elems[i+1]
		b := letBinding{valueExpr: valueExpr, reg: int32(f.syms.AllocReg())}
		switch t := target.(type) {
		case value.Symbol:
			b.sym = t
			// a fresh name is visible immediately, so sibling bindings can
			// be mutually recursive; a shadowing rebind only takes over once
			// its own value has compiled, so the value expression still sees
			// the binding it shadows
			if f.syms.IsBound(t.ID) {
				b.rebind = true
			} else {
				f.syms.Bind(t.ID, t.Name, int(b.reg))
			}
		case heap.Handle:
			if t.Kind != heap.KindVector && t.Kind != heap.KindMap {
				return errf("let: invalid binding target")
			}
			b.isPattern = true
			b.pattern = t
		default:
			return errf("let: invalid binding target")
		}
		binds = append(binds, b)
	}

	for _, b := range binds {
		f.tail = false
		scratch := int32(f.syms.AllocReg())
		if err := c.compileExpr(f, b.valueExpr, scratch); err != nil {
			return err
		}
		f.emit(SET, b.reg, scratch)
		if b.rebind {
			f.syms.Bind(b.sym.ID, b.sym.Name, int(b.reg))
		}
	}

	for _, b := range binds {
		if b.isPattern {
			if err := c.compileDestructure(f, b.pattern, b.reg); err != nil {
				return err
			}
		}
	}

	body := args[1:]
	if len(body) == 0 {
		f.emit(CONST, dest, f.addConst(value.Nil))
	}
	for i, form := range body {
		f.tail = outerTail && i == len(body)-1
		if err := c.compileExpr(f, form, dest); err != nil {
			return err
		}
	}

	for i := f.defers; i > defersBefore; i-- {
		f.emit(DFRPOP)
	}
	f.defers = defersBefore

	for _, b := range binds {
		if b.reg != dest {
			f.emit(CLRREG, b.reg)
		}
	}
	f.tail = outerTail
	return nil
}

// ---- defer / on-error / err / props ----

// compileDefer lowers the deferred expression into a zero-argument thunk
// registered with the current frame. The thunk's body resolves names
// against globals only, never the lexical scope it appears in: the thunk is
// compiled detached, with no enclosing scope, so a deferred `set!` always
// addresses the global of that name even while a let binding of the same
// name is in scope.
func (c *Compiler) compileDefer(f *fstate, args []value.Value, dest int32) error {
	if len(args) != 1 {
		return errf("defer: want 1 form, got %d", len(args))
	}
	thunkReg := int32(f.syms.AllocReg())
	if err := c.compileLambda(f, &paramSpec{}, []value.Value{args[0]}, lambdaOpts{detached: true}, thunkReg); err != nil {
		return err
	}
	f.emit(DEFER, thunkReg)
	f.defers++
	f.emit(CONST, dest, f.addConst(value.Nil))
	return nil
}

// compileOnError lowers `(on-error body handler)`: body runs with a catch
// range installed; if anything it does raises, the error value lands in
// register 0, the handler expression is evaluated and called with that
// error as its single argument, and the call's result becomes the form's
// result. Errors raised by the handler itself are not re-caught here.
func (c *Compiler) compileOnError(f *fstate, args []value.Value, dest int32) error {
	if len(args) != 2 {
		return errf("on-error: want 2 forms (body, handler), got %d", len(args))
	}
	bodyForm, handlerForm := args[0], args[1]

	outerTail := f.tail
	f.tail = false

	pc0 := f.here()
	if err := c.compileExpr(f, bodyForm, dest); err != nil {
		return err
	}
	jend := f.emit(JMP, 0)
	pc1 := f.here()

	handlerPC := f.here()
	errSave := int32(f.syms.AllocReg())
	f.emit(MOV, errSave, 0)
	block := f.reserveRegs(2)
	fnReg, argReg := block[0], block[1]
	if err := c.compileExpr(f, handlerForm, fnReg); err != nil {
		return err
	}
	f.emit(MOV, argReg, errSave)
	f.emit(CALL, fnReg, 1, dest)

	f.patchTo(jend, f.here())
	f.chunk.Defers = append(f.chunk.Defers, Defer{
		PC0:       uint32(pc0),
		PC1:       uint32(pc1),
		HandlerPC: uint32(handlerPC),
		IsCatch:   true,
	})
	f.tail = outerTail
	return nil
}

// compileErr lowers `(err :keyword data?)`: build an error value carrying
// the keyword and data, and raise it.
func (c *Compiler) compileErr(f *fstate, args []value.Value, dest int32) error {
	if len(args) != 1 && len(args) != 2 {
		return errf("err: want 1 or 2 forms (keyword, data?), got %d", len(args))
	}
	kw, ok := args[0].(value.Keyword)
	if !ok {
		return errf("err: first form must be a keyword")
	}
	f.tail = false
	dataReg := int32(f.syms.AllocReg())
	if len(args) == 2 {
		if err := c.compileExpr(f, args[1], dataReg); err != nil {
			return err
		}
	} else {
		f.emit(CONST, dataReg, f.addConst(value.Nil))
	}
	f.emit(ERRNEW, dest, f.addConst(kw), dataReg)
	f.emit(RAISE, dest)
	return nil
}

func (c *Compiler) compileGetProp(f *fstate, args []value.Value, dest int32) error {
	if len(args) != 2 {
		return errf("get-prop: want 2 forms (object, key), got %d", len(args))
	}
	f.tail = false
	block := f.reserveRegs(2)
	if err := c.compileExpr(f, args[0], block[0]); err != nil {
		return err
	}
	if err := c.compileExpr(f, args[1], block[1]); err != nil {
		return err
	}
	f.emit(GETPROP, dest, block[0], block[1])
	return nil
}

func (c *Compiler) compileSetProp(f *fstate, args []value.Value, dest int32) error {
	if len(args) != 3 {
		return errf("set-prop: want 3 forms (object, key, value), got %d", len(args))
	}
	f.tail = false
	block := f.reserveRegs(3)
	for i, a := range args {
		if err := c.compileExpr(f, a, block[i]); err != nil {
			return err
		}
	}
	f.emit(SETPROP, block[0], block[1], block[2])
	f.emit(MOV, dest, block[2])
	return nil
}

// ---- fn / macro ----

func (c *Compiler) compileFn(f *fstate, args []value.Value, dest int32, isMacro bool) error {
	if len(args) < 1 {
		return errf("fn: missing parameter vector")
	}
	paramsHd, ok := args[0].(heap.Handle)
	if !ok || paramsHd.Kind != heap.KindVector {
		return errf("fn: parameter list must be a vector")
	}
	elems, err := c.Heap.VectorSlice(paramsHd)
	if err != nil {
		return err
	}
	spec, err := c.parseParams(elems)
	if err != nil {
		return err
	}
	return c.compileLambda(f, spec, args[1:], lambdaOpts{isMacro: isMacro}, dest)
}

// lambdaOpts selects the two off-nominal lambda flavors: a macro body (the
// heap lambda is tagged so `def` and the expander can recognize it) and a
// detached defer thunk (compiled with no enclosing lexical scope).
type lambdaOpts struct {
	isMacro  bool
	detached bool
}

// compileLambda lowers one function body (shared by fn, macro and defer
// thunks) into its own Chunk, then emits a CONST of the resulting lambda
// handle into dest, following up with CLOSE if it captures anything.
func (c *Compiler) compileLambda(f *fstate, spec *paramSpec, body []value.Value, opts lambdaOpts, dest int32) error {
	parent := f
	if opts.detached {
		parent = nil
	}
	child := c.newF(parent, "")
	child.tail = true

	type destructJob struct {
		pattern value.Value
		reg     int
	}
	var destructs []destructJob
	var optRegs []int32

	bindParam := func(decl paramDecl) int32 {
		reg := child.syms.AllocReg()
		if decl.isPattern {
			destructs = append(destructs, destructJob{pattern: decl.pattern, reg: reg})
		} else {
			child.syms.Bind(decl.sym.ID, decl.sym.Name, reg)
		}
		child.chunk.DbgArgs = append(child.chunk.DbgArgs, paramDebugName(decl))
		return int32(reg)
	}

	for _, decl := range spec.required {
		bindParam(decl)
		child.chunk.Args++
	}
	for _, decl := range spec.optional {
		reg := bindParam(decl)
		optRegs = append(optRegs, reg)
		child.chunk.OptArgs++
	}
	if spec.rest != nil || spec.restAnon {
		reg := child.syms.AllocReg()
		if spec.rest != nil {
			child.syms.Bind(spec.rest.sym.ID, spec.rest.sym.Name, reg)
			child.chunk.DbgArgs = append(child.chunk.DbgArgs, spec.rest.sym.Name)
		} else {
			child.chunk.DbgArgs = append(child.chunk.DbgArgs, "&")
		}
		child.chunk.Rest = true
	}
	child.chunk.InputRegs = child.syms.fn.nextReg - 1

	// an optional parameter the caller did not supply arrives as Undefined;
	// fill in its default, or nil when the declaration has none
	for i, decl := range spec.optional {
		reg := optRegs[i]
		jmp := child.emit(JMPNU, reg, 0)
		if decl.def != nil {
			if err := c.compileExpr(child, decl.def, reg); err != nil {
				return err
			}
		} else {
			child.emit(CONST, reg, child.addConst(value.Nil))
		}
		child.patchTo(jmp, child.here())
	}

	for _, dj := range destructs {
		if err := c.compileDestructure(child, dj.pattern, int32(dj.reg)); err != nil {
			return err
		}
	}

	if len(body) == 0 {
		child.emit(CONST, 0, child.addConst(value.Nil))
	}
	for i, form := range body {
		child.tail = i == len(body)-1
		if err := c.compileExpr(child, form, 0); err != nil {
			return err
		}
	}
	child.emit(SRET, 0)

	child.chunk.ExtraRegs = (child.syms.fn.nextReg - 1) - child.chunk.InputRegs
	child.chunk.Captures = captureSourceRegs(child.syms)

	chunkHandle := c.Heap.NewLambda(child.chunk, "", opts.isMacro)
	f.emit(CONST, dest, f.addConst(chunkHandle))
	if child.chunk.IsClosure() {
		f.emit(CLOSE, dest, dest)
	}
	return nil
}

func paramDebugName(decl paramDecl) string {
	if decl.isPattern {
		return "<pattern>"
	}
	return decl.sym.Name
}
