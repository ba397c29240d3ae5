package maincmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mna/mainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stdio(out, errw *bytes.Buffer) mainer.Stdio {
	return mainer.Stdio{Stdin: bytes.NewReader(nil), Stdout: out, Stderr: errw}
}

func TestBuildCmds(t *testing.T) {
	cmds := buildCmds(&Cmd{})
	assert.Contains(t, cmds, "asm")
	assert.Contains(t, cmds, "disasm")
	assert.NotContains(t, cmds, "main")
}

func TestValidate(t *testing.T) {
	c := &Cmd{}
	c.SetArgs(nil)
	require.Error(t, c.Validate())

	c = &Cmd{}
	c.SetArgs([]string{"bogus"})
	require.Error(t, c.Validate())

	c = &Cmd{}
	c.SetArgs([]string{"asm"})
	require.Error(t, c.Validate(), "needs at least one file")

	c = &Cmd{}
	c.SetArgs([]string{"asm", "x.chasm"})
	require.NoError(t, c.Validate())
}

func TestAsmRunsChunk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "add.chasm")
	src := `chunk: add args=0 optargs=0 rest=false inputregs=0 extraregs=2
constants:
	int 40
	int 2
code:
	0000 const 1 0
	0003 const 2 1
	0006 add 0 1 2
	0010 sret 0
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	var out, errw bytes.Buffer
	c := &Cmd{}
	code := c.Main([]string{"lispcore", "asm", path}, stdio(&out, &errw))
	assert.Equal(t, mainer.Success, code, errw.String())
	assert.Equal(t, "42\n", out.String())
}

func TestDisasmRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "id.chasm")
	src := `chunk: id args=1 optargs=0 rest=false inputregs=1 extraregs=0
code:
	0000 sret 1
`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o600))

	var out, errw bytes.Buffer
	c := &Cmd{}
	code := c.Main([]string{"lispcore", "disasm", path}, stdio(&out, &errw))
	assert.Equal(t, mainer.Success, code, errw.String())
	assert.Contains(t, out.String(), "chunk: id args=1")
	assert.Contains(t, out.String(), "sret 1")
}
