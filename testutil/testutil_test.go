package testutil

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"

	"github.com/forthkit/gorth"
)

func TestParse(t *testing.T) {
	s, err := Parse(strings.Join([]string{
		"( a leading comment )",
		"( data_stack_elems 32 )",
		"( dict_buf_elems 8192 )",
		"",
		"> 1 2 + . cr",
		"< 3",
		"< ok.",
		"x bogus",
		"1 > 4 4 + . cr",
		"1 < 8",
	}, "\n"), true)
	require.NoError(t, err)

	assert.Equal(t, 32, s.Config.DataStackElems)
	assert.Equal(t, 8192, s.Config.DictBufElems)
	assert.Zero(t, s.Config.ReturnStackElems, "unset directives stay zero")

	require.Len(t, s.Steps, 3)
	assert.Equal(t, Step{Input: "1 2 + . cr", Expect: OkWithOutput, Output: []string{"3", "ok."}}, s.Steps[0])
	assert.Equal(t, Step{Input: "bogus", Expect: FatalError}, s.Steps[1])
	assert.Equal(t, Step{Task: 1, Input: "4 4 + . cr", Expect: OkWithOutput, Output: []string{"8"}}, s.Steps[2])
}

func TestParse_rejectsLateFrontmatter(t *testing.T) {
	_, err := Parse("> 1 2 +\n( data_stack_elems 9 )\n", true)
	assert.Error(t, err)

	// and any frontmatter at all when not allowed
	_, err = Parse("( data_stack_elems 9 )\n", false)
	assert.Error(t, err)
}

func TestParse_outputAfterErrorStep(t *testing.T) {
	_, err := Parse("x boom\n< nope\n", true)
	assert.Error(t, err)
}

func TestRunTest_inline(t *testing.T) {
	require.NoError(t, RunTest(strings.Join([]string{
		"( data_stack_elems 8 )",
		"> : double 2 * ;",
		"< ok.",
		"> 21 double . cr",
		"< 42",
		"< ok.",
		"x double double double double double double double double double",
	}, "\n")))
}

func TestRunTest_reportsMismatch(t *testing.T) {
	err := RunTest("> 1 2 + . cr\n< 4\n< ok.\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"4"`)

	err = RunTest("x 1 2 +\n")
	require.Error(t, err, "success where an error was expected")
}

func TestRunTest_scripts(t *testing.T) {
	entries, err := os.ReadDir("testdata")
	require.NoError(t, err)

	var paths []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".fth") {
			paths = append(paths, filepath.Join("testdata", e.Name()))
		}
	}
	slices.Sort(paths)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		path := path
		t.Run(filepath.Base(path), func(t *testing.T) {
			contents, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.NoError(t, RunTest(string(contents)))
		})
	}
}

type testDispatcher struct{}

func (testDispatcher) AsyncEntries() []gorth.AsyncBuiltinEntry {
	return []gorth.AsyncBuiltinEntry{{Name: "sleep"}}
}

func (testDispatcher) Dispatch(ctx context.Context, name string, vm *gorth.VM[int]) error {
	ms, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRunScriptTasks(t *testing.T) {
	s, err := Parse(strings.Join([]string{
		"( data_stack_elems 16 )",
		"> : star 42 emit ;",
		"> 1 sleep star cr",
		"< *",
		"< ok.",
		"1 > star star cr",
		"1 < **",
		"1 < ok.",
		"1 x star star star bogus",
		"> star cr",
		"< *",
		"< ok.",
	}, "\n"), true)
	require.NoError(t, err)

	err = RunScriptTasks(context.Background(), s,
		func(cfg gorth.Config) (*gorth.AsyncVM[int], error) {
			return gorth.NewAsync(cfg, 0, gorth.FullBuiltins[int](), testDispatcher{})
		},
		func(task int) int { return task },
	)
	require.NoError(t, err)
}
