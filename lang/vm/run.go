package vm

import (
	"github.com/mna/lispcore/lang/compiler"
	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/token"
	"github.com/mna/lispcore/lang/value"
)

// run executes frameHandle's chunk to completion, dispatching one opcode per
// iteration (compiler/opcode.go's full set, decoded via compiler.DecodeOp).
// A non-tail CALL/CALLG/CALLM recurses into run again through Call, bounded
// by MaxCallDepth; a tail call (TCALL/TCALLG/TCALLM) instead replaces this
// frame's register window in place and loops, so self- and mutually-tail-
// recursive code runs in bounded memory regardless of depth.
func (th *Thread) run(frameHandle heap.Handle) (value.Value, error) {
	for {
		if err := th.checkCancel(); err != nil {
			return nil, err
		}
		if th.Heap.NeedsCollect() {
			th.Heap.Collect(th.liveRoots())
		}

		closure, err := th.Heap.FrameClosure(frameHandle)
		if err != nil {
			return nil, th.vmErrorf("%v", err)
		}
		chunk, err := th.chunkOf(closure)
		if err != nil {
			return nil, err
		}
		pc, err := th.Heap.FramePC(frameHandle)
		if err != nil {
			return nil, th.vmErrorf("%v", err)
		}
		if int(pc) >= len(chunk.Code) {
			return nil, th.vmErrorf("%s: fell off the end of its code", chunk.Name)
		}

		instrPC := pc
		op, operands, next := compiler.DecodeOp(chunk.Code, pc)

		var opErr error
		var retVal value.Value
		returning := false
		tailReplaced := false

		switch op {
		case CONST:
			opErr = th.writeReg(frameHandle, operands[0], chunk.Constants[operands[1]])

		case MOV:
			v, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], v)

		case SET:
			v, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			opErr = th.writeThrough(frameHandle, operands[0], v)

		case BMOV:
			n := operands[2]
			vals, err := th.readRegRange(frameHandle, operands[1], n)
			if err != nil {
				opErr = err
				break
			}
			for i := int32(0); i < n && opErr == nil; i++ {
				opErr = th.writeReg(frameHandle, operands[0]+i, vals[i])
			}

		case CLRREG:
			opErr = th.writeReg(frameHandle, operands[0], value.Undefined)

		case JMP:
			next = uint32(int64(instrPC) + int64(codeLen(op)) + int64(int16(operands[0])))

		case JMPT:
			v, err := th.readReg(frameHandle, operands[0])
			if err != nil {
				opErr = err
				break
			}
			if value.Truthy(v) {
				next = uint32(int64(instrPC) + int64(codeLen(op)) + int64(int16(operands[1])))
			}

		case JMPF:
			v, err := th.readReg(frameHandle, operands[0])
			if err != nil {
				opErr = err
				break
			}
			if !value.Truthy(v) {
				next = uint32(int64(instrPC) + int64(codeLen(op)) + int64(int16(operands[1])))
			}

		case JMPNU:
			v, err := th.readReg(frameHandle, operands[0])
			if err != nil {
				opErr = err
				break
			}
			if v != value.Value(value.Undefined) {
				next = uint32(int64(instrPC) + int64(codeLen(op)) + int64(int16(operands[1])))
			}

		case RET:
			v, err := th.readReg(frameHandle, operands[0])
			if err != nil {
				opErr = err
				break
			}
			retVal, returning = v, true

		case SRET:
			v, err := th.readReg(frameHandle, operands[0])
			if err != nil {
				opErr = err
				break
			}
			if derr := th.runDefersNormal(frameHandle); derr != nil {
				opErr = derr
				break
			}
			retVal, returning = v, true

		case CALL:
			calleeVal, err := th.readReg(frameHandle, operands[0])
			if err != nil {
				opErr = err
				break
			}
			args, err := th.readRegRange(frameHandle, operands[0]+1, operands[1])
			if err != nil {
				opErr = err
				break
			}
			result, cerr := th.Call(calleeVal, args)
			if cerr != nil {
				opErr = cerr
				break
			}
			opErr = th.writeReg(frameHandle, operands[2], result)

		case CALLG:
			calleeVal := th.Globals.Get(int(operands[1]))
			var args []value.Value
			if operands[2] > 0 {
				args, err = th.readRegRange(frameHandle, operands[0], operands[2])
				if err != nil {
					opErr = err
					break
				}
			}
			result, cerr := th.Call(calleeVal, args)
			if cerr != nil {
				opErr = cerr
				break
			}
			opErr = th.writeReg(frameHandle, operands[3], result)

		case CALLM:
			var args []value.Value
			if operands[1] > 0 {
				args, err = th.readRegRange(frameHandle, operands[0], operands[1])
				if err != nil {
					opErr = err
					break
				}
			}
			result, cerr := th.Call(closure, args)
			if cerr != nil {
				opErr = cerr
				break
			}
			opErr = th.writeReg(frameHandle, operands[2], result)

		case TCALL:
			calleeVal, err := th.readReg(frameHandle, operands[0])
			if err != nil {
				opErr = err
				break
			}
			args, err := th.readRegRange(frameHandle, 1, operands[1])
			if err != nil {
				opErr = err
				break
			}
			retVal, returning, tailReplaced, opErr = th.tailInvoke(frameHandle, calleeVal, args)

		case TCALLG:
			calleeVal := th.Globals.Get(int(operands[0]))
			args, err := th.readRegRange(frameHandle, 1, operands[1])
			if err != nil {
				opErr = err
				break
			}
			retVal, returning, tailReplaced, opErr = th.tailInvoke(frameHandle, calleeVal, args)

		case TCALLM:
			args, err := th.readRegRange(frameHandle, 1, operands[0])
			if err != nil {
				opErr = err
				break
			}
			retVal, returning, tailReplaced, opErr = th.tailInvoke(frameHandle, closure, args)

		case CLOSE:
			v, cerr := th.buildClosure(frameHandle, operands[1])
			if cerr != nil {
				opErr = cerr
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], v)

		case DEFER:
			v, err := th.readReg(frameHandle, operands[0])
			if err != nil {
				opErr = err
				break
			}
			opErr = th.Heap.FramePushDefer(frameHandle, toHandle(v))

		case DFRPOP:
			thunk, ok, err := th.Heap.FramePopDefer(frameHandle)
			if err != nil {
				opErr = th.vmErrorf("%v", err)
				break
			}
			if ok {
				if _, derr := th.Call(thunk, nil); derr != nil {
					opErr = derr
				}
			}

		case CALLCC:
			opErr = th.execCallCC(frameHandle, operands[0], operands[1])

		case ADD, SUB, MUL, DIV, IDIV, MOD, BAND, BOR, BXOR, SHL, SHR:
			a, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			b, err := th.readReg(frameHandle, operands[2])
			if err != nil {
				opErr = err
				break
			}
			v, berr := th.binaryOp(arithToken(op), a, b)
			if berr != nil {
				opErr = berr
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], v)

		case NEG, BNOT:
			a, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			v, uerr := th.unaryOp(unaryToken(op), a)
			if uerr != nil {
				opErr = uerr
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], v)

		case NOT:
			a, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], value.Bool(!value.Truthy(a)))

		case LENGTH:
			a, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			n, lerr := th.lengthOf(a)
			if lerr != nil {
				opErr = lerr
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], value.Int(n))

		case LT, LE, GT, GE:
			a, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			b, err := th.readReg(frameHandle, operands[2])
			if err != nil {
				opErr = err
				break
			}
			v, cerr := th.compareOp(compareToken(op), a, b)
			if cerr != nil {
				opErr = cerr
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], v)

		case EQ, NEQ:
			a, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			b, err := th.readReg(frameHandle, operands[2])
			if err != nil {
				opErr = err
				break
			}
			eq, eerr := th.equalValues(a, b)
			if eerr != nil {
				opErr = eerr
				break
			}
			if op == NEQ {
				eq = !eq
			}
			opErr = th.writeReg(frameHandle, operands[0], value.Bool(eq))

		case LIST:
			vals, err := th.readRegRange(frameHandle, operands[1], operands[2]-operands[1])
			if err != nil {
				opErr = err
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], th.Heap.ConsList(vals))

		case APND:
			vals, err := th.readRegRange(frameHandle, operands[1], operands[2]-operands[1])
			if err != nil {
				opErr = err
				break
			}
			v, aerr := th.appendLists(vals)
			if aerr != nil {
				opErr = aerr
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], v)

		case XAR:
			opErr = th.execXar(frameHandle, operands[0], operands[1], true)

		case XDR:
			opErr = th.execXar(frameHandle, operands[0], operands[1], false)

		case ELEM:
			src, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			v, eerr := th.elemAt(src, int(operands[2]))
			if eerr != nil {
				opErr = eerr
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], v)

		case ELEMU:
			src, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			v, eerr := th.elemAtOrUndefined(src, int(operands[2]))
			if eerr != nil {
				opErr = eerr
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], v)

		case RESTFROM:
			src, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			v, rerr := th.restFrom(src, int(operands[2]))
			if rerr != nil {
				opErr = rerr
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], v)

		case VEC:
			vals, err := th.readRegRange(frameHandle, operands[1], operands[2]-operands[1])
			if err != nil {
				opErr = err
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], th.Heap.NewVector(vals))

		case VGET:
			vec, idx, verr := th.readHandleAndIndex(frameHandle, operands[1], operands[2])
			if verr != nil {
				opErr = verr
				break
			}
			v, gerr := th.Heap.VectorIndex(vec, idx)
			if gerr != nil {
				opErr = th.vmErrorf("%v", gerr)
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], v)

		case VSET:
			vec, idx, verr := th.readHandleAndIndex(frameHandle, operands[0], operands[1])
			if verr != nil {
				opErr = verr
				break
			}
			v, err := th.readReg(frameHandle, operands[2])
			if err != nil {
				opErr = err
				break
			}
			if serr := th.Heap.VectorSetIndex(vec, idx, v); serr != nil {
				opErr = th.vmErrorf("%v", serr)
			}

		case VLEN:
			vec, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			n, lerr := th.Heap.VectorLen(toHandle(vec))
			if lerr != nil {
				opErr = th.vmErrorf("%v", lerr)
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], value.Int(n))

		case MAPNEW:
			opErr = th.writeReg(frameHandle, operands[0], th.Heap.NewMap(0))

		case MGET:
			m, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			key, err := th.readReg(frameHandle, operands[2])
			if err != nil {
				opErr = err
				break
			}
			v, gerr := th.collectionGet(m, key)
			if gerr != nil {
				opErr = gerr
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], v)

		case MSET:
			m, err := th.readReg(frameHandle, operands[0])
			if err != nil {
				opErr = err
				break
			}
			key, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			v, err := th.readReg(frameHandle, operands[2])
			if err != nil {
				opErr = err
				break
			}
			if serr := th.Heap.MapSet(toHandle(m), key, v); serr != nil {
				opErr = th.vmErrorf("%v", serr)
			}

		case MLEN:
			m, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			n, lerr := th.Heap.MapLen(toHandle(m))
			if lerr != nil {
				opErr = th.vmErrorf("%v", lerr)
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], value.Int(n))

		case BYTESNEW:
			vals, err := th.readRegRange(frameHandle, operands[1], operands[2]-operands[1])
			if err != nil {
				opErr = err
				break
			}
			b := make([]byte, len(vals))
			for i, v := range vals {
				bv, ok := v.(value.Byte)
				if !ok {
					opErr = th.typeErrorf("bytesnew: element %d is %s, not byte", i, v.Type())
					break
				}
				b[i] = byte(bv)
			}
			if opErr == nil {
				opErr = th.writeReg(frameHandle, operands[0], th.Heap.NewBytes(b))
			}

		case BGET:
			bts, idx, berr := th.readHandleAndIndex(frameHandle, operands[1], operands[2])
			if berr != nil {
				opErr = berr
				break
			}
			b, gerr := th.Heap.BytesIndex(bts, idx)
			if gerr != nil {
				opErr = th.vmErrorf("%v", gerr)
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], value.Byte(b))

		case BSET:
			bts, idx, berr := th.readHandleAndIndex(frameHandle, operands[0], operands[1])
			if berr != nil {
				opErr = berr
				break
			}
			v, err := th.readReg(frameHandle, operands[2])
			if err != nil {
				opErr = err
				break
			}
			bv, ok := v.(value.Byte)
			if !ok {
				opErr = th.typeErrorf("bset: value is %s, not byte", v.Type())
				break
			}
			if serr := th.Heap.BytesSetIndex(bts, idx, byte(bv)); serr != nil {
				opErr = th.vmErrorf("%v", serr)
			}

		case BLEN:
			bts, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			n, lerr := th.Heap.BytesLen(toHandle(bts))
			if lerr != nil {
				opErr = th.vmErrorf("%v", lerr)
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], value.Int(n))

		case GETPROP:
			obj, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			key, err := th.readReg(frameHandle, operands[2])
			if err != nil {
				opErr = err
				break
			}
			v, ok := th.getProp(obj, key)
			if !ok {
				v = value.Nil
			}
			opErr = th.writeReg(frameHandle, operands[0], v)

		case SETPROP:
			obj, err := th.readReg(frameHandle, operands[0])
			if err != nil {
				opErr = err
				break
			}
			key, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			v, err := th.readReg(frameHandle, operands[2])
			if err != nil {
				opErr = err
				break
			}
			th.setProp(obj, key, v)

		case GLOBAL:
			opErr = th.writeReg(frameHandle, operands[0], th.Globals.Get(int(operands[1])))

		case SETGLOBAL:
			v, err := th.readReg(frameHandle, operands[1])
			if err != nil {
				opErr = err
				break
			}
			th.Globals.Set(int(operands[0]), v)

		case ERRNEW:
			kw, ok := chunk.Constants[operands[1]].(value.Keyword)
			if !ok {
				opErr = th.vmErrorf("errnew: constant %d is not a keyword", operands[1])
				break
			}
			data, err := th.readReg(frameHandle, operands[2])
			if err != nil {
				opErr = err
				break
			}
			opErr = th.writeReg(frameHandle, operands[0], th.Heap.NewError(":"+kw.Name, "", data))

		case RAISE:
			v, err := th.readReg(frameHandle, operands[0])
			if err != nil {
				opErr = err
				break
			}
			hd, ok := v.(heap.Handle)
			if !ok || hd.Kind != heap.KindError {
				opErr = th.typeErrorf("raise: %s is not an error value", v.Type())
				break
			}
			opErr = th.Heap.AsGoError(hd)

		default:
			opErr = th.vmErrorf("illegal opcode %s at pc %d", op, instrPC)
		}

		if opErr != nil {
			newFrame, newPC, caught, fatal := th.handleOpError(frameHandle, instrPC, opErr)
			if fatal != nil {
				return nil, fatal
			}
			if caught {
				frameHandle = newFrame
				if err := th.Heap.FrameSetPC(frameHandle, newPC); err != nil {
					return nil, th.vmErrorf("%v", err)
				}
				continue
			}
		}

		if returning {
			return retVal, nil
		}
		if tailReplaced {
			continue
		}

		if err := th.Heap.FrameSetPC(frameHandle, next); err != nil {
			return nil, th.vmErrorf("%v", err)
		}
	}
}

// codeLen returns the encoded width, in bytes, of op at its WIDE encoding:
// prefix byte, opcode byte, two bytes per operand. Jump instructions are
// always emitted WIDE (see compiler/encode.go) and their offsets are
// relative to the end of the instruction, so this is the base every jump
// delta is added to.
func codeLen(op Opcode) int {
	return 2 + 2*op.NumOperands()
}

// tailInvoke implements TCALL/TCALLG/TCALLM: reuse frameHandle's identity
// for a compiled callee (so unbounded tail recursion runs in bounded
// memory), or, for a builtin, run it and report its result as this run
// invocation's own return value (a builtin has no register window to
// replace into).
func (th *Thread) tailInvoke(frameHandle heap.Handle, callee value.Value, args []value.Value) (retVal value.Value, returning, replaced bool, err error) {
	if derr := th.runDefersNormal(frameHandle); derr != nil {
		return nil, false, false, derr
	}
	switch c := callee.(type) {
	case value.Builtin:
		entry, berr := th.builtin(c.ID)
		if berr != nil {
			return nil, false, false, berr
		}
		v, berr2 := entry.fn(th, args)
		if berr2 != nil {
			return nil, false, false, berr2
		}
		return v, true, false, nil
	case heap.Handle:
		regs, _, perr := th.prepareCall(c, args)
		if perr != nil {
			return nil, false, false, perr
		}
		if ferr := th.Heap.FrameReplace(frameHandle, c, regs); ferr != nil {
			return nil, false, false, th.vmErrorf("%v", ferr)
		}
		return nil, false, true, nil
	default:
		return nil, false, false, th.typeErrorf("value of type %s is not callable", callee.Type())
	}
}

// runDefersNormal drains frameHandle's pending defer stack, LIFO, on a
// non-error exit path (SRET, or a tail call replacing the frame). The last
// defer to fail, if any, becomes the error for this exit.
func (th *Thread) runDefersNormal(frameHandle heap.Handle) error {
	var last error
	for {
		thunk, ok, err := th.Heap.FramePopDefer(frameHandle)
		if err != nil {
			return th.vmErrorf("%v", err)
		}
		if !ok {
			return last
		}
		if _, derr := th.Call(thunk, nil); derr != nil {
			last = derr
		}
	}
}

// handleOpError resolves an error raised at pc of frameHandle's chunk: if an
// on-error range covers pc, the error value is delivered in register 0 and
// execution resumes at the handler, still in this frame. Otherwise the
// frame's pending defers run (a defer raising its own error replaces the
// in-flight one; the later error wins) and the error propagates to run's Go
// caller, which for a nested call is the CALL dispatch of the parent frame:
// the parent repeats this search at its own call-site pc, so unwinding
// walks the whole chain one Go frame at a time.
func (th *Thread) handleOpError(frameHandle heap.Handle, pc uint32, opErr error) (nextFrame heap.Handle, nextPC uint32, caught bool, fatal error) {
	errHandle := th.errorHandle(opErr)
	closure, err := th.Heap.FrameClosure(frameHandle)
	if err != nil {
		return heap.Handle{}, 0, false, th.vmErrorf("%v", err)
	}
	chunk, err := th.chunkOf(closure)
	if err != nil {
		return heap.Handle{}, 0, false, err
	}
	best := -1
	for i, d := range chunk.Defers {
		if !d.IsCatch || !d.Covers(pc) {
			continue
		}
		if best < 0 || d.PC1-d.PC0 < chunk.Defers[best].PC1-chunk.Defers[best].PC0 {
			best = i
		}
	}
	if best >= 0 {
		if werr := th.writeReg(frameHandle, 0, errHandle); werr != nil {
			return heap.Handle{}, 0, false, werr
		}
		return frameHandle, chunk.Defers[best].HandlerPC, true, nil
	}
	if derr := th.runDefersNormal(frameHandle); derr != nil {
		errHandle = th.errorHandle(derr)
	}
	return heap.Handle{}, 0, false, th.Heap.AsGoError(errHandle)
}

func toHandle(v value.Value) heap.Handle {
	hd, _ := v.(heap.Handle)
	return hd
}

func (th *Thread) readHandleAndIndex(frameHandle heap.Handle, objReg, idxReg int32) (heap.Handle, int, error) {
	obj, err := th.readReg(frameHandle, objReg)
	if err != nil {
		return heap.Handle{}, 0, err
	}
	idxVal, err := th.readReg(frameHandle, idxReg)
	if err != nil {
		return heap.Handle{}, 0, err
	}
	idx, ok := idxVal.(value.Int)
	if !ok {
		return heap.Handle{}, 0, th.typeErrorf("index must be int, got %s", idxVal.Type())
	}
	return toHandle(obj), int(idx), nil
}

func arithToken(op Opcode) token.Token {
	switch op {
	case ADD:
		return token.PLUS
	case SUB:
		return token.MINUS
	case MUL:
		return token.STAR
	case DIV:
		return token.SLASH
	case IDIV:
		return token.SLASHSLASH
	case MOD:
		return token.PERCENT
	case BAND:
		return token.AMPERSAND
	case BOR:
		return token.PIPE
	case BXOR:
		return token.CIRCUMFLEX
	case SHL:
		return token.LTLT
	case SHR:
		return token.GTGT
	}
	return token.ILLEGAL
}

func unaryToken(op Opcode) token.Token {
	switch op {
	case NEG:
		return token.UMINUS
	case BNOT:
		return token.UTILDE
	}
	return token.ILLEGAL
}

func compareToken(op Opcode) token.Token {
	switch op {
	case LT:
		return token.LT
	case LE:
		return token.LE
	case GT:
		return token.GT
	case GE:
		return token.GE
	}
	return token.ILLEGAL
}
