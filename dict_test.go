package gorth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDict(t *testing.T, size int) *Dictionary[struct{}] {
	t.Helper()
	return newDictionary[struct{}](size, nil, nil)
}

func TestDictionary_buildAndFind(t *testing.T) {
	d := testDict(t, 1024)

	b, err := d.buildEntry("one", KindDictionary, codeEnter)
	require.NoError(t, err)
	require.NoError(t, b.appendCell(opLiteral))
	require.NoError(t, b.appendCell(1))
	require.NoError(t, b.appendCell(opExit))
	first := b.finish()

	off, ok := d.findLocal("one")
	require.True(t, ok)
	assert.Equal(t, first, d.entryAddr(off))
	assert.Equal(t, "one", d.entryName(off))
	assert.Equal(t, KindDictionary, d.entryKind(off))
	assert.Equal(t, 3, d.entryLen(off))
	assert.Equal(t, opLiteral, d.bodyCell(off, 0))
	assert.Equal(t, Cell(1), d.bodyCell(off, 1))
	assert.Zero(t, d.entryLink(off))

	_, ok = d.findLocal("two")
	assert.False(t, ok)
}

func TestDictionary_shadowing(t *testing.T) {
	d := testDict(t, 1024)

	b, err := d.buildEntry("w", KindDictionary, codeConstant)
	require.NoError(t, err)
	require.NoError(t, b.appendCell(1))
	older := b.finish()

	b, err = d.buildEntry("w", KindDictionary, codeConstant)
	require.NoError(t, err)
	require.NoError(t, b.appendCell(2))
	newer := b.finish()

	off, ok := d.findLocal("w")
	require.True(t, ok)
	assert.Equal(t, newer, d.entryAddr(off), "most recent binding wins")
	assert.Equal(t, older, d.entryLink(off), "link reaches the shadowed entry")
}

func TestDictionary_abandonedBuilderUnreachable(t *testing.T) {
	d := testDict(t, 1024)

	b, err := d.buildEntry("gone", KindDictionary, codeEnter)
	require.NoError(t, err)
	require.NoError(t, b.appendCell(opExit))
	// no finish: never linked
	_, ok := d.findLocal("gone")
	assert.False(t, ok)
	assert.Zero(t, d.tail)
}

func TestDictionary_oom(t *testing.T) {
	d := testDict(t, entHdr) // the reserved null cell leaves no room for a header
	_, err := d.buildEntry("x", KindDictionary, codeEnter)
	assert.ErrorIs(t, err, ErrDictionaryFull)
}

func TestDictionary_parentChainLookup(t *testing.T) {
	parent := testDict(t, 1024)
	b, err := parent.buildEntry("inherited", KindDictionary, codeConstant)
	require.NoError(t, err)
	require.NoError(t, b.appendCell(7))
	b.finish()
	parent.share()

	child := newDictionary[struct{}](1024, parent, nil)
	dd, off, ok := child.find("inherited")
	require.True(t, ok)
	assert.Same(t, parent, dd)
	assert.Equal(t, "inherited", dd.entryName(off))

	// a local binding shadows the parent's
	b, err = child.buildEntry("inherited", KindDictionary, codeConstant)
	require.NoError(t, err)
	require.NoError(t, b.appendCell(8))
	b.finish()
	dd, off, ok = child.find("inherited")
	require.True(t, ok)
	assert.Same(t, child, dd)
	assert.Equal(t, Cell(8), dd.bodyCell(off, 0))
}

func TestDictionary_refcountRelease(t *testing.T) {
	released := []string{}
	parent := newDictionary[struct{}](256, nil, func() { released = append(released, "parent") })
	parent.share()

	a := newDictionary[struct{}](256, parent, func() { released = append(released, "a") })
	bd := newDictionary[struct{}](256, parent, func() { released = append(released, "b") })
	assert.Equal(t, int64(2), parent.refs.Load())

	a.releaseRef()
	assert.Equal(t, []string{"a"}, released)
	assert.Equal(t, int64(1), parent.refs.Load())

	bd.releaseRef()
	assert.Equal(t, []string{"a", "b", "parent"}, released, "last drop frees the parent")
}

func TestDictionary_sharedRejectsWrites(t *testing.T) {
	d := testDict(t, 1024)
	d.share()
	_, err := d.buildEntry("nope", KindDictionary, codeEnter)
	assert.ErrorIs(t, err, ErrDictionaryFull)
}
