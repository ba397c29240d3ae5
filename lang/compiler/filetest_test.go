package compiler_test

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mna/lispcore/internal/filetest"
	"github.com/mna/lispcore/lang/compiler"
)

var testUpdateAsmTests = flag.Bool("test.update-asm-tests", false, "If set, replace expected asm test results with actual results.")

// TestAsmGoldenFiles assembles each testdata/*.chasm fixture and compares
// its canonical disassembly against the golden file; a canonical fixture
// round-trips to itself byte for byte.
func TestAsmGoldenFiles(t *testing.T) {
	files := filetest.SourceFiles(t, "testdata", ".chasm")
	require.NotEmpty(t, files)
	for _, fi := range files {
		fi := fi
		t.Run(fi.Name(), func(t *testing.T) {
			src, err := os.ReadFile(filepath.Join("testdata", fi.Name()))
			require.NoError(t, err)
			chunk, err := compiler.Asm(string(src))
			require.NoError(t, err)
			filetest.DiffOutput(t, fi, compiler.Disasm(chunk), filepath.Join("testdata", "want"), testUpdateAsmTests)
		})
	}
}
