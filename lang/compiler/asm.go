package compiler

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/mna/lispcore/lang/value"
)

// This file implements a human-readable text form of a compiled Chunk, used
// to write golden-file tests for the compiler and vm packages without
// having to hand-build bytecode or round-trip the reader. The format:
//
//	chunk: NAME args=1 optargs=0 rest=false inputregs=3 extraregs=0
//	constants:
//		int 10
//		string "hi"
//	captures:
//		2 3
//	code:
//		0000 const 0 0
//		0003 global 1 3
//		0006 add 0 0 1
//		0010 sret 0
//
// Jump operands are written as the literal signed offset already baked
// into the instruction -- Disasm and Asm agree on that representation, so
// round-tripping a disassembled chunk through Asm reproduces it exactly.

// Disasm renders c as text in the format above.
func Disasm(c *Chunk) string {
	var b strings.Builder
	fmt.Fprintf(&b, "chunk: %s args=%d optargs=%d rest=%t inputregs=%d extraregs=%d\n",
		nameOrAnon(c.Name), c.Args, c.OptArgs, c.Rest, c.InputRegs, c.ExtraRegs)

	if len(c.Constants) > 0 {
		b.WriteString("constants:\n")
		for _, k := range c.Constants {
			fmt.Fprintf(&b, "\t%s\n", formatConst(k))
		}
	}
	if len(c.Captures) > 0 {
		b.WriteString("captures:\n")
		for _, cs := range c.Captures {
			fmt.Fprintf(&b, "\t%d %d\n", cs.SrcReg, cs.LocalReg)
		}
	}
	if len(c.Defers) > 0 {
		b.WriteString("defers:\n")
		for _, d := range c.Defers {
			fmt.Fprintf(&b, "\t%d %d %d %t\n", d.PC0, d.PC1, d.HandlerPC, d.IsCatch)
		}
	}

	b.WriteString("code:\n")
	var pc uint32
	for pc < uint32(len(c.Code)) {
		op, operands, next := DecodeOp(c.Code, pc)
		fmt.Fprintf(&b, "\t%04d %s", pc, op.String())
		for i := 0; i < op.numOperands(); i++ {
			fmt.Fprintf(&b, " %d", operands[i])
		}
		b.WriteString("\n")
		pc = next
	}
	return b.String()
}

func nameOrAnon(name string) string {
	if name == "" {
		return "<anon>"
	}
	return name
}

func formatConst(v value.Value) string {
	switch t := v.(type) {
	case value.Int:
		return "int " + strconv.FormatInt(int64(t), 10)
	case value.Float:
		return "float " + strconv.FormatFloat(float64(t), 'g', -1, 32)
	case value.Bool:
		if t {
			return "bool true"
		}
		return "bool false"
	case value.StringConst:
		return "string " + strconv.Quote(t.Text)
	case value.Keyword:
		return "keyword " + t.Name
	case value.Symbol:
		return "symbol " + t.Name
	case value.NilType:
		return "nil"
	default:
		return "const " + strconv.Quote(v.String())
	}
}

// Asm parses the text form Disasm produces back into a Chunk. It is meant
// for hand-written test fixtures exercising the vm package directly,
// bypassing the compiler; it does not resolve symbolic constants beyond
// int/float/bool/string/keyword/nil (a Symbol constant round-trips by name
// only, with id 0 -- good enough for opcode-level tests that never compare
// symbol identity).
func Asm(src string) (*Chunk, error) {
	sc := bufio.NewScanner(strings.NewReader(src))
	c := &Chunk{}
	section := ""

	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "chunk:") {
			if err := parseChunkHeader(c, trimmed); err != nil {
				return nil, err
			}
			continue
		}
		switch trimmed {
		case "constants:", "captures:", "defers:", "code:":
			section = trimmed
			continue
		}
		switch section {
		case "constants:":
			k, err := parseConst(trimmed)
			if err != nil {
				return nil, err
			}
			c.Constants = append(c.Constants, k)
		case "captures:":
			fields := strings.Fields(trimmed)
			if len(fields) != 2 {
				return nil, fmt.Errorf("asm: bad capture line: %s", trimmed)
			}
			src, err := strconv.Atoi(fields[0])
			if err != nil {
				return nil, fmt.Errorf("asm: bad capture src register: %s", trimmed)
			}
			local, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("asm: bad capture local register: %s", trimmed)
			}
			c.Captures = append(c.Captures, CaptureSlot{SrcReg: src, LocalReg: local})
		case "defers:":
			fields := strings.Fields(trimmed)
			if len(fields) != 4 {
				return nil, fmt.Errorf("asm: bad defer line: %s", trimmed)
			}
			pc0, _ := strconv.Atoi(fields[0])
			pc1, _ := strconv.Atoi(fields[1])
			hpc, _ := strconv.Atoi(fields[2])
			c.Defers = append(c.Defers, Defer{
				PC0: uint32(pc0), PC1: uint32(pc1), HandlerPC: uint32(hpc),
				IsCatch: fields[3] == "true",
			})
		case "code:":
			if err := parseCodeLine(c, trimmed); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("asm: instruction outside any section: %s", trimmed)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return c, nil
}

func parseChunkHeader(c *Chunk, line string) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fmt.Errorf("asm: bad chunk header: %s", line)
	}
	c.Name = fields[1]
	if c.Name == "<anon>" {
		c.Name = ""
	}
	for _, f := range fields[2:] {
		kv := strings.SplitN(f, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "args":
			c.Args, _ = strconv.Atoi(kv[1])
		case "optargs":
			c.OptArgs, _ = strconv.Atoi(kv[1])
		case "rest":
			c.Rest = kv[1] == "true"
		case "inputregs":
			c.InputRegs, _ = strconv.Atoi(kv[1])
		case "extraregs":
			c.ExtraRegs, _ = strconv.Atoi(kv[1])
		}
	}
	return nil
}

func parseConst(line string) (value.Value, error) {
	fields := strings.SplitN(line, " ", 2)
	kind := fields[0]
	var rest string
	if len(fields) == 2 {
		rest = strings.TrimSpace(fields[1])
	}
	switch kind {
	case "int":
		n, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return nil, err
		}
		return value.NewInt(n)
	case "float":
		n, err := strconv.ParseFloat(rest, 32)
		if err != nil {
			return nil, err
		}
		return value.Float(n), nil
	case "bool":
		return value.Bool(rest == "true"), nil
	case "string":
		s, err := strconv.Unquote(rest)
		if err != nil {
			return nil, err
		}
		return value.NewStringConst(0, s), nil
	case "keyword":
		return value.NewKeyword(0, rest), nil
	case "symbol":
		return value.NewSymbol(0, rest), nil
	case "nil":
		return value.Nil, nil
	default:
		return nil, fmt.Errorf("asm: unknown constant kind: %s", kind)
	}
}

func parseCodeLine(c *Chunk, line string) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return fmt.Errorf("asm: bad code line: %s", line)
	}
	// fields[0] is the pc label (ignored: recomputed from emission order)
	opName := fields[1]
	op, ok := reverseLookupOpcode[opName]
	if !ok {
		return fmt.Errorf("asm: unknown opcode: %s", opName)
	}
	n := op.numOperands()
	if len(fields)-2 != n {
		return fmt.Errorf("asm: %s wants %d operands, got %d", opName, n, len(fields)-2)
	}
	operands := make([]int32, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseInt(fields[2+i], 10, 32)
		if err != nil {
			return fmt.Errorf("asm: bad operand %q: %w", fields[2+i], err)
		}
		operands[i] = int32(v)
	}
	code, _ := EmitOp(c.Code, op, operands...)
	c.Code = code
	return nil
}
