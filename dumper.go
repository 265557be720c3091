package gorth

import "fmt"

// Decompilation support for the see and words words, in the spirit of a
// memory dumper: walk the dictionary, name what can be named, and show
// raw cells for the rest.

// NameOf maps an execution token (as pushed by ') back to a printable
// word name.
func (vm *VM[T]) NameOf(c Cell) string { return vm.nameOfXT(c) }

// nameOfXT maps an execution token back to a printable name.
func (vm *VM[T]) nameOfXT(c Cell) string {
	if i, ok := staticIndex(c); ok && i < len(vm.builtins) {
		return vm.builtins[i].Name
	}
	if i, ok := asyncIndex(c); ok && i < len(vm.asyncs) {
		return vm.asyncs[i].Name
	}
	if d, off, err := vm.resolveEntry(c); err == nil {
		return d.entryName(off)
	}
	return fmt.Sprintf("xt(%x)", uint64(c))
}

// wordWords lists every word, most recent first: the local dictionary
// chain, then the async and static builtin tables. Shadowed entries are
// listed too.
func (vm *VM[T]) wordWords() error {
	emit := func(name string) error {
		if err := vm.Output.PushStr(name); err != nil {
			return err
		}
		return vm.Output.PushByte(' ')
	}
	for d := vm.dict; d != nil; d = d.parent {
		for off := d.tail; off != 0; off = addrOffset(d.entryLink(off)) {
			if err := emit(d.entryName(off)); err != nil {
				return err
			}
		}
	}
	for i := range vm.asyncs {
		if err := emit(vm.asyncs[i].Name); err != nil {
			return err
		}
	}
	for i := range vm.builtins {
		if err := emit(vm.builtins[i].Name); err != nil {
			return err
		}
	}
	return vm.Output.PushByte('\n')
}

// wordSee reads the next token and prints a decompilation of it.
func (vm *VM[T]) wordSee() error {
	vm.Input.Advance()
	tok, ok := vm.Input.CurWord()
	if !ok {
		return fmt.Errorf("%w: missing name after 'see'", ErrBadName)
	}
	if d, off, found := vm.dict.find(tok); found {
		return vm.seeEntry(d, off)
	}
	if _, _, found := vm.lookup(tok); found {
		return vm.Output.PushStr(fmt.Sprintf("builtin %v\n", tok))
	}
	return fmt.Errorf("%w: %q", ErrUnknownWord, tok)
}

func (vm *VM[T]) seeEntry(d *Dictionary[T], off int) error {
	name := d.entryName(off)
	if d.entryKind(off) == KindRuntimeBuiltin {
		return vm.Output.PushStr(fmt.Sprintf("builtin %v\n", name))
	}
	switch d.entryCode(off) {
	case codeVariable:
		return vm.Output.PushStr(fmt.Sprintf("variable %v ( %v cells )\n", name, d.entryLen(off)))
	case codeConstant:
		return vm.Output.PushStr(fmt.Sprintf("%v constant %v\n", int64(d.bodyCell(off, 0)), name))
	}

	out := ": " + name
	blen := d.entryLen(off)
	for i := 0; i < blen; {
		c := d.bodyCell(off, i)
		switch c {
		case opLiteral:
			out += fmt.Sprintf(" %v", int64(d.bodyCell(off, i+1)))
			i += 2
		case opBranch:
			out += fmt.Sprintf(" branch(%v)", int64(d.bodyCell(off, i+1)))
			i += 2
		case opZBranch:
			out += fmt.Sprintf(" 0branch(%v)", int64(d.bodyCell(off, i+1)))
			i += 2
		case opDo:
			out += fmt.Sprintf(" do(%v)", int64(d.bodyCell(off, i+1)))
			i += 2
		case opLoop:
			out += fmt.Sprintf(" loop(%v)", int64(d.bodyCell(off, i+1)))
			i += 2
		case opExit:
			i++
			if i < blen {
				out += " exit"
			}
		case opStrLit:
			n := int(d.bodyCell(off, i+1))
			start := d.pfaOff(off) + (i+2)*CellBytes
			out += fmt.Sprintf(" .\" %s\"", d.arena.buf[start:start+n])
			i += 2 + (n+CellBytes-1)/CellBytes
		default:
			out += " " + vm.nameOfXT(c)
			i++
		}
	}
	return vm.Output.PushStr(out + " ;\n")
}
