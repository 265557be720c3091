package gorth

import (
	"errors"
	"fmt"
)

// Config sizes every region a VM owns. All counts are elements of the
// respective type; DictBufElems is bytes. Zero fields take the
// defaults, which match a comfortable interactive session.
type Config struct {
	DataStackElems    int
	ReturnStackElems  int
	ControlStackElems int
	InputBufElems     int
	OutputBufElems    int
	DictBufElems      int

	// OnDictRelease runs when the last reference to a dictionary created
	// with this config is dropped.
	OnDictRelease func()

	// Logf, when set, receives trace lines as the interpreter runs.
	Logf func(mess string, args ...any)
}

func (c Config) withDefaults() Config {
	def := func(v *int, d int) {
		if *v == 0 {
			*v = d
		}
	}
	def(&c.DataStackElems, 256)
	def(&c.ReturnStackElems, 256)
	def(&c.ControlStackElems, 256)
	def(&c.InputBufElems, 256)
	def(&c.OutputBufElems, 256)
	def(&c.DictBufElems, 4096)
	return c
}

// CallContext is one inner-interpreter frame: the execution token being
// run and, for compiled bodies, the instruction pointer within the
// parameter field.
type CallContext struct {
	xt Cell
	ip int
}

type ctlKind uint8

const (
	ctlIf ctlKind = iota
	ctlBegin
	ctlWhile
	ctlDo
)

// ctlFrame records an unresolved forward branch slot or a backward
// target, as a cell offset in the open definition's body.
type ctlFrame struct {
	kind ctlKind
	slot int
}

type hostRegion struct {
	id  uint32
	buf []byte
}

// AsyncBuiltinEntry names an asynchronous builtin word. Execution is
// delegated to the owning AsyncVM's dispatcher, keyed by this name.
type AsyncBuiltinEntry struct {
	Name string
}

// VM is a Forth virtual machine. Data, Ret, Input, and Output are
// exported so native words and hosts can reach them directly; the call
// and control stacks are interpreter-internal.
type VM[T any] struct {
	Host   T
	Data   Stack[Cell]
	Ret    Stack[Cell]
	Input  WordStrBuf
	Output OutputBuf

	calls Stack[CallContext]
	ctl   Stack[ctlFrame]

	dict     *Dictionary[T]
	builtins []Builtin[T]
	asyncs   []AsyncBuiltinEntry

	regions []hostRegion

	compiling bool
	comp      *entryBuilder[T]

	cfg  Config
	logf func(mess string, args ...any)
}

// New builds a VM with freshly allocated regions, a host context value,
// and a static builtin table. The table's names are validated and
// folded once here.
func New[T any](cfg Config, host T, builtins []Builtin[T]) (*VM[T], error) {
	return newVM(cfg, host, builtins, nil)
}

func newVM[T any](cfg Config, host T, builtins []Builtin[T], asyncs []AsyncBuiltinEntry) (*VM[T], error) {
	cfg = cfg.withDefaults()
	folded := make([]Builtin[T], len(builtins))
	for i, b := range builtins {
		name, err := foldName(b.Name)
		if err != nil {
			return nil, err
		}
		folded[i] = b
		folded[i].Name = name
	}
	for i, a := range asyncs {
		name, err := foldName(a.Name)
		if err != nil {
			return nil, err
		}
		asyncs[i].Name = name
	}
	vm := &VM[T]{
		Host:     host,
		Data:     NewStack[Cell]("data stack", cfg.DataStackElems),
		Ret:      NewStack[Cell]("return stack", cfg.ReturnStackElems),
		Input:    NewWordStrBuf(cfg.InputBufElems),
		Output:   NewOutputBuf(cfg.OutputBufElems),
		calls:    NewStack[CallContext]("call stack", cfg.ControlStackElems),
		ctl:      NewStack[ctlFrame]("control stack", cfg.ControlStackElems),
		dict:     newDictionary[T](cfg.DictBufElems, nil, cfg.OnDictRelease),
		builtins: folded,
		asyncs:   asyncs,
		cfg:      cfg,
		logf:     cfg.Logf,
	}
	return vm, nil
}

// Close releases the VM's dictionary reference. After the last VM
// sharing a parent chain closes, release hooks have all run.
func (vm *VM[T]) Close() {
	vm.dict.releaseRef()
	vm.dict = nil
}

// Dict exposes the VM's local dictionary, mainly for inspection.
func (vm *VM[T]) Dict() *Dictionary[T] { return vm.dict }

// CallDepth and ControlDepth report interpreter-internal stack depths.
func (vm *VM[T]) CallDepth() int    { return vm.calls.Depth() }
func (vm *VM[T]) ControlDepth() int { return vm.ctl.Depth() }

// AddBuiltin installs a named native word at runtime. The entry and its
// name are charged to the dictionary arena.
func (vm *VM[T]) AddBuiltin(name string, fn WordFunc[T]) error {
	return vm.dict.addBuiltin(name, fn)
}

// AddBuiltinStaticName is AddBuiltin; Go strings need no arena copy, so
// the two spellings of the original API collapse into one. It is kept
// so hosts written against both read naturally.
func (vm *VM[T]) AddBuiltinStaticName(name string, fn WordFunc[T]) error {
	return vm.dict.addBuiltin(name, fn)
}

// AddRegion registers a host-owned byte buffer in the VM's address
// space and returns the address of its first byte. The region is
// readable and writable by @ ! c@ c!.
func (vm *VM[T]) AddRegion(buf []byte) Cell {
	id := nextRegionID()
	vm.regions = append(vm.regions, hostRegion{id: id, buf: buf})
	return mkAddr(id, 0)
}

//// name resolution

type wordMeta struct {
	immediate     bool
	compileOnly   bool
	interpretOnly bool
}

// lookup resolves a token to an execution token: local dictionary and
// parent chain first, then the async table, then the static builtins.
func (vm *VM[T]) lookup(tok string) (Cell, wordMeta, bool) {
	if d, off, ok := vm.dict.find(tok); ok {
		return d.entryAddr(off), wordMeta{immediate: d.entryImmediate(off)}, true
	}
	for i := range vm.asyncs {
		if vm.asyncs[i].Name == tok {
			return xtAsync(i), wordMeta{}, true
		}
	}
	for i := range vm.builtins {
		if vm.builtins[i].Name == tok {
			b := &vm.builtins[i]
			return xtStatic(i), wordMeta{b.Immediate, b.CompileOnly, b.InterpretOnly}, true
		}
	}
	return 0, wordMeta{}, false
}

//// memory

// regionAt resolves an address's region to its live bytes and whether
// stores are allowed. A shared parent dictionary is read-only.
func (vm *VM[T]) regionAt(region uint32) (buf []byte, writable bool, ok bool) {
	for d := vm.dict; d != nil; d = d.parent {
		if d.regionID == region {
			return d.arena.buf[:d.arena.used()], d.mutable(), true
		}
	}
	for _, r := range vm.regions {
		if r.id == region {
			return r.buf, true, true
		}
	}
	return nil, false, false
}

func (vm *VM[T]) loadCell(addr Cell) (Cell, error) {
	buf, _, ok := vm.regionAt(addrRegion(addr))
	off := addrOffset(addr)
	if !ok || off < 0 || off+CellBytes > len(buf) {
		return 0, fmt.Errorf("%w: @%x", ErrBadAddress, uint64(addr))
	}
	return Cell(leUint64(buf[off:])), nil
}

func (vm *VM[T]) storeCell(addr Cell, v Cell) error {
	buf, writable, ok := vm.regionAt(addrRegion(addr))
	off := addrOffset(addr)
	if !ok || !writable || off < 0 || off+CellBytes > len(buf) {
		return fmt.Errorf("%w: !%x", ErrBadAddress, uint64(addr))
	}
	lePutUint64(buf[off:], uint64(v))
	return nil
}

func (vm *VM[T]) loadByte(addr Cell) (Cell, error) {
	buf, _, ok := vm.regionAt(addrRegion(addr))
	off := addrOffset(addr)
	if !ok || off < 0 || off >= len(buf) {
		return 0, fmt.Errorf("%w: c@%x", ErrBadAddress, uint64(addr))
	}
	return Cell(buf[off]), nil
}

func (vm *VM[T]) storeByte(addr Cell, v Cell) error {
	buf, writable, ok := vm.regionAt(addrRegion(addr))
	off := addrOffset(addr)
	if !ok || !writable || off < 0 || off >= len(buf) {
		return fmt.Errorf("%w: c!%x", ErrBadAddress, uint64(addr))
	}
	buf[off] = byte(v)
	return nil
}

//// line processing

const okPrompt = "ok.\n"

type processAction int

const (
	procDone processAction = iota
	procContinue
	procExecute
)

// ProcessLine consumes every pending input token, compiling or
// executing each. On success the output gains the ok prompt; on failure
// all stacks are cleared, any open definition is abandoned, and the
// unconsumed input is left for the host to inspect.
func (vm *VM[T]) ProcessLine() error {
	err := vm.processLine()
	if err == nil {
		err = vm.Output.PushStr(okPrompt)
	}
	if err != nil {
		vm.clearStacks()
		return err
	}
	return nil
}

func (vm *VM[T]) processLine() error {
	for {
		act, err := vm.startProcessingLine()
		if err != nil {
			return err
		}
		switch act {
		case procDone:
			return nil
		case procExecute:
			for {
				done, err := vm.step()
				if err != nil {
					return err
				}
				if done {
					break
				}
			}
		}
	}
}

// startProcessingLine consumes one token: Done when input is exhausted,
// Continue after a compile-time step, Execute after pushing a call
// frame for the interpreter loop to drain.
func (vm *VM[T]) startProcessingLine() (processAction, error) {
	vm.Input.Advance()
	tok, ok := vm.Input.CurWord()
	if !ok {
		return procDone, nil
	}

	if xt, meta, found := vm.lookup(tok); found {
		if meta.compileOnly && !vm.compiling {
			return 0, fmt.Errorf("%w: %q", ErrCompileOnlyWord, tok)
		}
		if meta.interpretOnly && vm.compiling {
			return 0, fmt.Errorf("%w: %q", ErrInterpretOnlyWord, tok)
		}
		if vm.compiling && !meta.immediate {
			vm.tracef(",", "compile %v", tok)
			return procContinue, vm.comp.appendCell(xt)
		}
		vm.tracef(">", "run %v", tok)
		if err := vm.calls.Push(CallContext{xt: xt}); err != nil {
			return 0, err
		}
		return procExecute, nil
	}

	// A definition may call itself before ; links it: the open entry's
	// header offset is already fixed, so a self-reference is safe to
	// emit now.
	if vm.compiling && tok == vm.comp.name {
		vm.tracef(",", "recurse %v", tok)
		return procContinue, vm.comp.appendCell(vm.dict.entryAddr(vm.comp.hdr))
	}

	v, isNum, err := parseLiteral(tok)
	if err != nil {
		return 0, err
	}
	if !isNum {
		return 0, fmt.Errorf("%w: %q", ErrUnknownWord, tok)
	}
	if vm.compiling {
		vm.tracef(",", "literal %v", int64(v))
		if err := vm.comp.appendCell(opLiteral); err != nil {
			return 0, err
		}
		return procContinue, vm.comp.appendCell(v)
	}
	return procContinue, vm.Data.Push(v)
}

// clearStacks empties every stack and abandons an open definition. The
// half-built entry was never linked, so it simply becomes dead arena
// space.
func (vm *VM[T]) clearStacks() {
	vm.Data.Clear()
	vm.Ret.Clear()
	vm.calls.Clear()
	vm.ctl.Clear()
	vm.compiling = false
	vm.comp = nil
}

// Reset clears all stacks and pending input; hosts call it to make a VM
// usable again after cancelling an asynchronous line.
func (vm *VM[T]) Reset() {
	vm.clearStacks()
	vm.Input.Clear()
}

//// inner interpreter

var errAsyncEntry = errors.New("async builtin reached by the synchronous interpreter")

// step runs one unit of the inner interpreter: done when the call stack
// has drained.
func (vm *VM[T]) step() (bool, error) {
	frame, err := vm.calls.Peek()
	if err != nil {
		if errors.Is(err, ErrStackEmpty) {
			return true, nil
		}
		return false, err
	}

	if i, ok := staticIndex(frame.xt); ok {
		return false, vm.finishNative(vm.builtins[i].Func)
	}
	if _, ok := asyncIndex(frame.xt); ok {
		return false, errAsyncEntry
	}

	d, off, err := vm.resolveEntry(frame.xt)
	if err != nil {
		return false, err
	}
	switch d.entryKind(off) {
	case KindRuntimeBuiltin:
		return false, vm.finishNative(d.funcs[d.entryCode(off)])
	case KindDictionary:
		switch d.entryCode(off) {
		case codeVariable:
			if err := vm.Data.Push(mkAddr(d.regionID, d.pfaOff(off))); err != nil {
				return false, err
			}
			_, err := vm.calls.Pop()
			return false, err
		case codeConstant:
			if err := vm.Data.Push(d.bodyCell(off, 0)); err != nil {
				return false, err
			}
			_, err := vm.calls.Pop()
			return false, err
		default:
			return false, vm.stepBody(frame, d, off)
		}
	}
	return false, fmt.Errorf("%w: entry @%x", ErrBadAddress, uint64(frame.xt))
}

// finishNative runs a native word and pops its frame unless it asked to
// be called again after the frames it pushed complete.
func (vm *VM[T]) finishNative(fn WordFunc[T]) error {
	switch err := fn(vm); {
	case err == nil:
		_, perr := vm.calls.Pop()
		return perr
	case errors.Is(err, ErrPendingCallAgain):
		return nil
	default:
		return err
	}
}

// resolveEntry maps a dictionary execution token back to the owning
// dictionary in the parent chain.
func (vm *VM[T]) resolveEntry(xt Cell) (*Dictionary[T], int, error) {
	region, off := addrRegion(xt), addrOffset(xt)
	for d := vm.dict; d != nil; d = d.parent {
		if d.regionID == region {
			if !d.arena.contains(off) {
				return nil, 0, fmt.Errorf("%w: entry @%x", ErrBadAddress, uint64(xt))
			}
			return d, off, nil
		}
	}
	return nil, 0, fmt.Errorf("%w: entry @%x", ErrBadAddress, uint64(xt))
}

// stepBody advances one instruction of a compiled body. Opcode cells
// take their hard-wired effect; any other cell is an execution token
// that becomes a new call frame.
func (vm *VM[T]) stepBody(frame *CallContext, d *Dictionary[T], off int) error {
	blen := d.entryLen(off)
	if frame.ip >= blen {
		_, err := vm.calls.Pop()
		return err
	}

	operand := func() (Cell, error) {
		if frame.ip+1 >= blen {
			return 0, fmt.Errorf("%w: truncated body @%x", ErrBadAddress, uint64(frame.xt))
		}
		return d.bodyCell(off, frame.ip+1), nil
	}

	c := d.bodyCell(off, frame.ip)
	switch {
	case c == opLiteral:
		v, err := operand()
		if err != nil {
			return err
		}
		frame.ip += 2
		return vm.Data.Push(v)

	case c == opBranch:
		t, err := operand()
		if err != nil {
			return err
		}
		frame.ip = int(t)
		return nil

	case c == opZBranch:
		t, err := operand()
		if err != nil {
			return err
		}
		flag, err := vm.Data.Pop()
		if err != nil {
			return err
		}
		if flag == 0 {
			frame.ip = int(t)
		} else {
			frame.ip += 2
		}
		return nil

	case c == opDo:
		t, err := operand()
		if err != nil {
			return err
		}
		index, err := vm.Data.Pop()
		if err != nil {
			return err
		}
		limit, err := vm.Data.Pop()
		if err != nil {
			return err
		}
		if index == limit {
			frame.ip = int(t)
			return nil
		}
		if err := vm.Ret.Push(limit); err != nil {
			return err
		}
		if err := vm.Ret.Push(index); err != nil {
			return err
		}
		frame.ip += 2
		return nil

	case c == opLoop:
		t, err := operand()
		if err != nil {
			return err
		}
		top, err := vm.Ret.Peek()
		if err != nil {
			return err
		}
		limit, err := vm.Ret.At(1)
		if err != nil {
			return err
		}
		if next := *top + 1; next < limit {
			*top = next
			frame.ip = int(t)
			return nil
		}
		vm.Ret.Pop()
		vm.Ret.Pop()
		frame.ip += 2
		return nil

	case c == opExit:
		_, err := vm.calls.Pop()
		return err

	case c == opStrLit:
		n, err := operand()
		if err != nil {
			return err
		}
		cells := (int(n) + CellBytes - 1) / CellBytes
		start := d.pfaOff(off) + (frame.ip+2)*CellBytes
		if frame.ip+2+cells > blen || start+int(n) > d.arena.used() {
			return fmt.Errorf("%w: truncated string @%x", ErrBadAddress, uint64(frame.xt))
		}
		frame.ip += 2 + cells
		return vm.Output.PushBStr(d.arena.buf[start : start+int(n)])

	case isOpcode(c):
		return fmt.Errorf("%w: opcode %v", ErrBadAddress, int64(c))

	default:
		frame.ip++
		return vm.calls.Push(CallContext{xt: c})
	}
}

func (vm *VM[T]) tracef(mark, mess string, args ...any) {
	if vm.logf != nil {
		vm.logf(mark+" "+mess, args...)
	}
}
