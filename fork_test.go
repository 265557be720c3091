package gorth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func feedLine[T any](t *testing.T, vm *VM[T], line string) string {
	t.Helper()
	require.NoError(t, vm.Input.Fill(line))
	require.NoError(t, vm.ProcessLine())
	out := vm.Output.AsStr()
	vm.Output.Clear()
	return out
}

func TestFork_childSeesParentWords(t *testing.T) {
	parent, err := New(Config{}, struct{}{}, FullBuiltins[struct{}]())
	require.NoError(t, err)
	feedLine(t, parent, ": star 42 emit ;")
	feedLine(t, parent, "variable shared-v 9 shared-v !")

	child, err := parent.Fork(Config{}, struct{}{})
	require.NoError(t, err)

	assert.Equal(t, "**\nok.\n", feedLine(t, child, "star star cr"))
	assert.Equal(t, "9 \nok.\n", feedLine(t, child, "shared-v @ . cr"))

	child.Close()
	parent.Close()
}

func TestFork_shadowingIsLocal(t *testing.T) {
	parent, err := New(Config{}, struct{}{}, FullBuiltins[struct{}]())
	require.NoError(t, err)
	feedLine(t, parent, ": glyph 42 emit ;")

	child, err := parent.Fork(Config{}, struct{}{})
	require.NoError(t, err)

	feedLine(t, child, ": glyph 43 emit ;")
	assert.Equal(t, "+\nok.\n", feedLine(t, child, "glyph cr"), "child sees its shadow")
	assert.Equal(t, "*\nok.\n", feedLine(t, parent, "glyph cr"), "parent keeps its binding")

	// definitions made after the fork are private to each side
	feedLine(t, parent, ": late 1 . ;")
	require.NoError(t, child.Input.Fill("late"))
	err = child.ProcessLine()
	assert.ErrorIs(t, err, ErrUnknownWord)

	child.Close()
	parent.Close()
}

func TestFork_sharedDictionaryIsReadOnly(t *testing.T) {
	parent, err := New(Config{}, struct{}{}, FullBuiltins[struct{}]())
	require.NoError(t, err)
	feedLine(t, parent, "variable v 1 v !")

	child, err := parent.Fork(Config{}, struct{}{})
	require.NoError(t, err)

	assert.Equal(t, "1 \nok.\n", feedLine(t, child, "v @ . cr"))
	require.NoError(t, child.Input.Fill("2 v !"))
	assert.ErrorIs(t, child.ProcessLine(), ErrBadAddress, "stores into the frozen parent are rejected")

	child.Close()
	parent.Close()
}

func TestFork_releaseHooksRunOnLastDrop(t *testing.T) {
	releases := 0
	cfg := Config{OnDictRelease: func() { releases++ }}
	parent, err := New(cfg, struct{}{}, FullBuiltins[struct{}]())
	require.NoError(t, err)
	feedLine(t, parent, ": w 1 ;")

	child, err := parent.Fork(cfg, struct{}{})
	require.NoError(t, err)

	parent.Close()
	// parent's fresh dict released; the shared dict still has the child
	assert.Equal(t, 1, releases)

	child.Close()
	// child's fresh dict plus the shared parent
	assert.Equal(t, 3, releases)
}

func TestFork_duringDefinitionRejected(t *testing.T) {
	parent, err := New(Config{}, struct{}{}, FullBuiltins[struct{}]())
	require.NoError(t, err)
	defer parent.Close()
	require.NoError(t, parent.Input.Fill(": half-done"))
	require.NoError(t, parent.ProcessLine())

	_, err = parent.Fork(Config{}, struct{}{})
	assert.ErrorIs(t, err, ErrForkMidCompile)
}

func TestFork_grandchildren(t *testing.T) {
	root, err := New(Config{}, struct{}{}, FullBuiltins[struct{}]())
	require.NoError(t, err)
	feedLine(t, root, ": a 1 ;")

	child, err := root.Fork(Config{}, struct{}{})
	require.NoError(t, err)
	feedLine(t, child, ": b a 1 + ;")

	grand, err := child.Fork(Config{}, struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "2 \nok.\n", feedLine(t, grand, "b . cr"), "lookup crosses two parent links")

	grand.Close()
	child.Close()
	root.Close()
}
