package blockfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_roundTrip(t *testing.T) {
	d, err := New(filepath.Join(t.TempDir(), "disk"), 64)
	require.NoError(t, err)
	defer d.Close()

	src := []byte(strings.Repeat("forth! ", 9) + "x")
	require.Len(t, src, 64)
	require.NoError(t, d.WriteBlock(3, src))

	dst := make([]byte, 64)
	require.NoError(t, d.ReadBlock(3, dst))
	assert.Equal(t, src, dst)

	// the stored file is compressed, not the raw block
	raw, err := os.ReadFile(d.path(3))
	require.NoError(t, err)
	assert.NotEqual(t, src, raw)
}

func TestDriver_missingBlockReadsSpaces(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "disk")
	d, err := New(dir, 32)
	require.NoError(t, err)
	defer d.Close()

	dst := make([]byte, 32)
	for i := range dst {
		dst[i] = 'x'
	}
	require.NoError(t, d.ReadBlock(7, dst))
	assert.Equal(t, strings.Repeat(" ", 32), string(dst))

	// and the blank block now exists on disk
	_, err = os.Stat(d.path(7))
	assert.NoError(t, err)
}

func TestDriver_shortBlockIsPadded(t *testing.T) {
	d, err := New(filepath.Join(t.TempDir(), "disk"), 16)
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, d.WriteBlock(0, []byte("abc")))
	dst := make([]byte, 16)
	require.NoError(t, d.ReadBlock(0, dst))
	assert.Equal(t, "abc"+strings.Repeat(" ", 13), string(dst))
}
