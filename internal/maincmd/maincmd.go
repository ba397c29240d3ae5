package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/mna/mainer"
	"github.com/mna/lispcore/lang/compiler"
	"github.com/mna/lispcore/lang/heap"
	"github.com/mna/lispcore/lang/intern"
	"github.com/mna/lispcore/lang/vm"
)

const binName = "lispcore"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> <path>...
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> <path>...
       %[1]s -h|--help
       %[1]s -v|--version

Compiler and virtual machine core for the %[1]s language runtime.

The <command> can be one of:
       asm                       Assemble each .chasm file into a chunk,
                                 run it and print the resulting value.
       disasm                    Assemble each .chasm file into a chunk
                                 and print its disassembly (round-trips
                                 through the same text format).

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.

The VM's cooperative-cancellation knobs can be set in the environment:
       LISPCORE_MAX_STEPS        Abort with an :interrupted error after
                                 this many instructions (0 = unbounded).
       LISPCORE_MAX_CALL_DEPTH   Maximum depth of nested non-tail calls.

More information on the %[1]s repository:
       https://github.com/mna/lispcore
`, binName)
)

// limits holds the environment-variable overrides applied to every Thread
// the CLI creates.
type limits struct {
	MaxSteps     uint64 `env:"LISPCORE_MAX_STEPS"`
	MaxCallDepth int    `env:"LISPCORE_MAX_CALL_DEPTH"`
}

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`

	limits limits

	args  []string
	cmdFn func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]
	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}
	if len(c.args[1:]) == 0 {
		return fmt.Errorf("%s: at least one file must be provided", cmdName)
	}
	return nil
}

func printError(stdio mainer.Stdio, err error) error {
	if err != nil {
		fmt.Fprintf(stdio.Stderr, "%s\n", err)
	}
	return err
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}
	if err := env.Parse(&c.limits); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid environment: %s\n", err)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success

	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		// each command takes care of printing its errors, just return with an error code
		return mainer.Failure
	}
	return mainer.Success
}

// Asm assembles each file with compiler.Asm, runs the resulting chunk on a
// fresh Thread and prints its value.
func (c *Cmd) Asm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	for _, path := range args {
		chunk, hp, th, err := c.loadChunk(path)
		if err != nil {
			return printError(stdio, err)
		}
		v, err := th.RunProgram(ctx, chunk)
		if err != nil {
			return printError(stdio, fmt.Errorf("%s: %w", path, err))
		}
		fmt.Fprintln(stdio.Stdout, hp.Display(v))
	}
	return nil
}

// Disasm assembles each file and prints its disassembly, so a hand-written
// fixture can be checked against the canonical text form.
func (c *Cmd) Disasm(_ context.Context, stdio mainer.Stdio, args []string) error {
	for _, path := range args {
		chunk, _, _, err := c.loadChunk(path)
		if err != nil {
			return printError(stdio, err)
		}
		fmt.Fprint(stdio.Stdout, compiler.Disasm(chunk))
	}
	return nil
}

func (c *Cmd) loadChunk(path string) (*compiler.Chunk, *heap.Heap, *vm.Thread, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, err
	}
	chunk, err := compiler.Asm(string(src))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	hp := heap.New(0)
	it := &intern.Table{}
	gt := compiler.NewGlobalTable()
	th := vm.NewThread(filepath.Base(path), hp, it, gt)
	th.MaxSteps = c.limits.MaxSteps
	if c.limits.MaxCallDepth > 0 {
		th.MaxCallDepth = c.limits.MaxCallDepth
	}
	return chunk, hp, th, nil
}

// valid commands are those that take a mainer.Stdio and a slice of strings as
// input, and return an error as output.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		// must take 4 parameters (including receiver) and return 1
		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}

		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
