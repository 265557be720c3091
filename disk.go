package gorth

import "fmt"

// A two-page cache over a block device, exposed to Forth code through
// the five words block, buffer, empty-buffers, update, and flush. The
// active page is always slot 0; selecting another block rotates the
// slots and writes the evicted page back only if it was marked dirty.

// DiskDriver is the host's block device. Both calls transfer exactly
// one page.
type DiskDriver interface {
	ReadBlock(idx uint16, dst []byte) error
	WriteBlock(idx uint16, src []byte) error
}

type pageTag uint8

const (
	pageEmpty pageTag = iota
	pageBuffer
	pageClean
	pageDirty
)

type pageState struct {
	tag pageTag
	idx uint16
}

func (p pageState) is(idx uint16) bool { return p.tag != pageEmpty && p.idx == idx }

type diskCache struct {
	buf  []byte
	addr Cell // VM address of buf once attached
	page pageState
}

type Disk struct {
	caches [2]diskCache
	size   int
	driver DiskDriver
}

// NewDisk allocates the two page buffers, space-filled like a fresh
// editor screen, over the given driver.
func NewDisk(size int, driver DiskDriver) *Disk {
	d := &Disk{size: size, driver: driver}
	for i := range d.caches {
		buf := make([]byte, size)
		for j := range buf {
			buf[j] = ' '
		}
		d.caches[i].buf = buf
	}
	return d
}

func (d *Disk) Driver() DiskDriver { return d.driver }

// Attach registers both page buffers in a VM address space. addRegion
// is typically VM.AddRegion.
func (d *Disk) Attach(addRegion func([]byte) Cell) {
	for i := range d.caches {
		if d.caches[i].addr == 0 {
			d.caches[i].addr = addRegion(d.caches[i].buf)
		}
	}
}

// makeSpace rotates the target page into slot 0, evicting as needed; it
// reports whether the caller still has to load the page.
func (d *Disk) makeSpace(idx uint16) (bool, error) {
	if d.caches[0].page.is(idx) {
		return false, nil
	}
	d.caches[0], d.caches[1] = d.caches[1], d.caches[0]
	if d.caches[0].page.is(idx) {
		return false, nil
	}
	if d.caches[0].page.tag == pageDirty {
		if err := d.driver.WriteBlock(d.caches[0].page.idx, d.caches[0].buf); err != nil {
			return false, err
		}
	}
	return true, nil
}

// Block selects block idx, reading it from the driver unless already
// cached, and returns the page's VM address.
func (d *Disk) Block(idx uint16) (Cell, error) {
	need, err := d.makeSpace(idx)
	if err != nil {
		return 0, err
	}
	if need {
		if err := d.driver.ReadBlock(idx, d.caches[0].buf); err != nil {
			return 0, err
		}
		d.caches[0].page = pageState{pageClean, idx}
	}
	return d.caches[0].addr, nil
}

// Buffer assigns a page to block idx without reading the device. A page
// already holding idx keeps its state.
func (d *Disk) Buffer(idx uint16) (Cell, error) {
	need, err := d.makeSpace(idx)
	if err != nil {
		return 0, err
	}
	if need {
		d.caches[0].page = pageState{pageBuffer, idx}
	}
	return d.caches[0].addr, nil
}

// EmptyBuffers discards both page assignments without writing anything.
func (d *Disk) EmptyBuffers() {
	for i := range d.caches {
		d.caches[i].page = pageState{}
	}
}

// MarkDirty marks the active page as needing write-back. An Empty page
// stays Empty.
func (d *Disk) MarkDirty() {
	if p := &d.caches[0].page; p.tag != pageEmpty {
		p.tag = pageDirty
	}
}

// Flush writes back every dirty page and empties both slots.
func (d *Disk) Flush() error {
	for i := range d.caches {
		c := &d.caches[i]
		if c.page.tag == pageDirty {
			if err := d.driver.WriteBlock(c.page.idx, c.buf); err != nil {
				return err
			}
		}
		c.page = pageState{}
	}
	return nil
}

// HasDisk is implemented by host contexts that carry a block cache, so
// the disk words can reach it.
type HasDisk interface {
	Disk() *Disk
}

func popBlockIndex[T any](vm *VM[T]) (uint16, error) {
	v, err := vm.Data.Pop()
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 0xffff {
		return 0, fmt.Errorf("%w: %v", ErrDiskOutOfRange, int64(v))
	}
	return uint16(v), nil
}

// AddDiskBuiltins attaches the host's block cache to the VM's address
// space and installs the five disk words.
func AddDiskBuiltins[T HasDisk](vm *VM[T]) error {
	vm.Host.Disk().Attach(vm.AddRegion)

	words := []struct {
		name string
		fn   WordFunc[T]
	}{
		{"block", func(vm *VM[T]) error {
			idx, err := popBlockIndex(vm)
			if err != nil {
				return err
			}
			addr, err := vm.Host.Disk().Block(idx)
			if err != nil {
				return err
			}
			return vm.Data.Push(addr)
		}},
		{"buffer", func(vm *VM[T]) error {
			idx, err := popBlockIndex(vm)
			if err != nil {
				return err
			}
			addr, err := vm.Host.Disk().Buffer(idx)
			if err != nil {
				return err
			}
			return vm.Data.Push(addr)
		}},
		{"empty-buffers", func(vm *VM[T]) error {
			vm.Host.Disk().EmptyBuffers()
			return nil
		}},
		{"update", func(vm *VM[T]) error {
			vm.Host.Disk().MarkDirty()
			return nil
		}},
		{"flush", func(vm *VM[T]) error {
			return vm.Host.Disk().Flush()
		}},
	}
	for _, w := range words {
		if err := vm.AddBuiltinStaticName(w.name, w.fn); err != nil {
			return err
		}
	}
	return nil
}
