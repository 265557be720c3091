// Package blockfile is a block DiskDriver over a directory of files,
// one per block, each zstd-compressed. A block that has never been
// written reads back as spaces, like a blank editor screen.
package blockfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

type Driver struct {
	dir  string
	size int
	enc  *zstd.Encoder
	dec  *zstd.Decoder
}

// New opens (creating if needed) a block directory whose blocks are
// size bytes.
func New(dir string, size int) (*Driver, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Driver{dir: dir, size: size, enc: enc, dec: dec}, nil
}

func (d *Driver) Close() {
	d.enc.Close()
	d.dec.Close()
}

func (d *Driver) path(idx uint16) string {
	return filepath.Join(d.dir, fmt.Sprintf("%05d.blk", idx))
}

// ReadBlock fills dst from the block file, space-padding short blocks.
// A missing block materializes as spaces on disk and in dst.
func (d *Driver) ReadBlock(idx uint16, dst []byte) error {
	raw, err := os.ReadFile(d.path(idx))
	if errors.Is(err, fs.ErrNotExist) {
		for i := range dst {
			dst[i] = ' '
		}
		return d.WriteBlock(idx, dst)
	}
	if err != nil {
		return err
	}
	plain, err := d.dec.DecodeAll(raw, make([]byte, 0, d.size))
	if err != nil {
		return err
	}
	n := copy(dst, plain)
	for i := n; i < len(dst); i++ {
		dst[i] = ' '
	}
	return nil
}

// WriteBlock compresses src into the block file, replacing it
// atomically.
func (d *Driver) WriteBlock(idx uint16, src []byte) error {
	packed := d.enc.EncodeAll(src, make([]byte, 0, len(src)/2+64))
	tmp := d.path(idx) + ".tmp"
	if err := os.WriteFile(tmp, packed, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, d.path(idx))
}
