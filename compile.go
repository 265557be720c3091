package gorth

import "fmt"

// The compile-time halves of the control-flow and defining words. Each
// runs as an immediate builtin while a definition is open and records
// unresolved branches on the control stack as body-cell offsets.

func (vm *VM[T]) popCtl(kind ctlKind, closer string) (ctlFrame, error) {
	f, err := vm.ctl.Pop()
	if err != nil || f.kind != kind {
		return f, fmt.Errorf("%w: unexpected %q", ErrUnbalancedControlFlow, closer)
	}
	return f, nil
}

// : reads the definition's name and opens an entry. The entry is not
// findable until ; links it, except by the definition itself, which may
// recurse (see startProcessingLine). Definitions do not nest.
func (vm *VM[T]) wordColon() error {
	if vm.compiling {
		return ErrColonInColon
	}
	vm.Input.Advance()
	tok, ok := vm.Input.CurWord()
	if !ok {
		return fmt.Errorf("%w: missing name after ':'", ErrBadName)
	}
	name, err := foldName(tok)
	if err != nil {
		return err
	}
	b, err := vm.dict.buildEntry(name, KindDictionary, codeEnter)
	if err != nil {
		return err
	}
	vm.comp = b
	vm.compiling = true
	vm.tracef(":", "define %v", name)
	return nil
}

// ; closes the open definition: an exit marker, then the header write
// that finally links the word.
func (vm *VM[T]) wordSemi() error {
	if vm.ctl.Depth() != 0 {
		return fmt.Errorf("%w: ';' with open construct", ErrUnbalancedControlFlow)
	}
	if err := vm.comp.appendCell(opExit); err != nil {
		return err
	}
	vm.comp.finish()
	vm.comp = nil
	vm.compiling = false
	return nil
}

func (vm *VM[T]) wordExit() error {
	return vm.comp.appendCell(opExit)
}

// emitBranch appends an opcode plus a placeholder operand, returning
// the operand's slot for later patching.
func (vm *VM[T]) emitBranch(op Cell) (int, error) {
	if err := vm.comp.appendCell(op); err != nil {
		return 0, err
	}
	slot := vm.comp.here()
	return slot, vm.comp.appendCell(0)
}

func (vm *VM[T]) wordIf() error {
	slot, err := vm.emitBranch(opZBranch)
	if err != nil {
		return err
	}
	return vm.ctl.Push(ctlFrame{ctlIf, slot})
}

func (vm *VM[T]) wordElse() error {
	f, err := vm.popCtl(ctlIf, "else")
	if err != nil {
		return err
	}
	slot, err := vm.emitBranch(opBranch)
	if err != nil {
		return err
	}
	vm.comp.patchCell(f.slot, Cell(vm.comp.here()))
	return vm.ctl.Push(ctlFrame{ctlIf, slot})
}

func (vm *VM[T]) wordThen() error {
	f, err := vm.popCtl(ctlIf, "then")
	if err != nil {
		return err
	}
	vm.comp.patchCell(f.slot, Cell(vm.comp.here()))
	return nil
}

func (vm *VM[T]) wordBegin() error {
	return vm.ctl.Push(ctlFrame{ctlBegin, vm.comp.here()})
}

func (vm *VM[T]) wordUntil() error {
	f, err := vm.popCtl(ctlBegin, "until")
	if err != nil {
		return err
	}
	if err := vm.comp.appendCell(opZBranch); err != nil {
		return err
	}
	return vm.comp.appendCell(Cell(f.slot))
}

func (vm *VM[T]) wordWhile() error {
	if _, err := vm.ctl.Peek(); err != nil {
		return fmt.Errorf("%w: %q outside begin", ErrUnbalancedControlFlow, "while")
	}
	slot, err := vm.emitBranch(opZBranch)
	if err != nil {
		return err
	}
	return vm.ctl.Push(ctlFrame{ctlWhile, slot})
}

func (vm *VM[T]) wordRepeat() error {
	w, err := vm.popCtl(ctlWhile, "repeat")
	if err != nil {
		return err
	}
	b, err := vm.popCtl(ctlBegin, "repeat")
	if err != nil {
		return err
	}
	if err := vm.comp.appendCell(opBranch); err != nil {
		return err
	}
	if err := vm.comp.appendCell(Cell(b.slot)); err != nil {
		return err
	}
	vm.comp.patchCell(w.slot, Cell(vm.comp.here()))
	return nil
}

// do emits its opcode with a patched skip target, taken when the index
// already equals the limit at loop entry.
func (vm *VM[T]) wordDo() error {
	slot, err := vm.emitBranch(opDo)
	if err != nil {
		return err
	}
	return vm.ctl.Push(ctlFrame{ctlDo, slot})
}

func (vm *VM[T]) wordLoop() error {
	f, err := vm.popCtl(ctlDo, "loop")
	if err != nil {
		return err
	}
	if err := vm.comp.appendCell(opLoop); err != nil {
		return err
	}
	if err := vm.comp.appendCell(Cell(f.slot + 1)); err != nil {
		return err
	}
	vm.comp.patchCell(f.slot, Cell(vm.comp.here()))
	return nil
}

// ( consumes a comment in either mode.
func (vm *VM[T]) wordParen() error {
	vm.Input.ConsumeUntil(')')
	return nil
}

// ." prints immediately while interpreting; in a definition it inlines
// the counted bytes after a string opcode.
func (vm *VM[T]) wordDotQuote() error {
	s := vm.Input.ConsumeUntil('"')
	if !vm.compiling {
		return vm.Output.PushStr(s)
	}
	if err := vm.comp.appendCell(opStrLit); err != nil {
		return err
	}
	if err := vm.comp.appendCell(Cell(len(s))); err != nil {
		return err
	}
	return vm.comp.appendBytes([]byte(s))
}

//// defining words

func (vm *VM[T]) defineData(code Cell, cells []Cell) error {
	vm.Input.Advance()
	tok, ok := vm.Input.CurWord()
	if !ok {
		return fmt.Errorf("%w: missing name", ErrBadName)
	}
	name, err := foldName(tok)
	if err != nil {
		return err
	}
	b, err := vm.dict.buildEntry(name, KindDictionary, code)
	if err != nil {
		return err
	}
	for _, c := range cells {
		if err := b.appendCell(c); err != nil {
			return err
		}
	}
	b.finish()
	return nil
}

func (vm *VM[T]) wordVariable() error {
	return vm.defineData(codeVariable, []Cell{0})
}

func (vm *VM[T]) wordConstant() error {
	v, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	return vm.defineData(codeConstant, []Cell{v})
}

// create defines a name with an empty parameter field; allot and ,
// grow the data that follows it.
func (vm *VM[T]) wordCreate() error {
	return vm.defineData(codeVariable, nil)
}

func (vm *VM[T]) wordAllot() error {
	n, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	_, err = vm.dict.arena.bumpBytes(int(n))
	return err
}

func (vm *VM[T]) wordComma() error {
	v, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	off, err := vm.dict.arena.bumpCells(1)
	if err != nil {
		return err
	}
	vm.dict.arena.setCell(off, v)
	return nil
}

func (vm *VM[T]) wordHere() error {
	return vm.Data.Push(mkAddr(vm.dict.regionID, vm.dict.arena.used()))
}

// ' pushes the execution token of the next word in the input.
func (vm *VM[T]) wordTick() error {
	vm.Input.Advance()
	tok, ok := vm.Input.CurWord()
	if !ok {
		return fmt.Errorf("%w: missing name after \"'\"", ErrBadName)
	}
	xt, _, found := vm.lookup(tok)
	if !found {
		return fmt.Errorf("%w: %q", ErrUnknownWord, tok)
	}
	return vm.Data.Push(xt)
}
