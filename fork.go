package gorth

// Fork produces a child VM that shares this VM's dictionary as an
// immutable fallback. The current dictionary is frozen; both the parent
// and the child continue with fresh mutable dictionaries whose parent
// link is the frozen one. The child gets its own stacks and buffers
// sized by cfg, the given host context, and the parent's builtin
// tables.
func (vm *VM[T]) Fork(cfg Config, host T) (*VM[T], error) {
	if vm.compiling {
		return nil, ErrForkMidCompile
	}
	cfg = cfg.withDefaults()

	shared := vm.dict
	shared.share()
	vm.dict = newDictionary[T](vm.cfg.DictBufElems, shared, vm.cfg.OnDictRelease)

	child := &VM[T]{
		Host:     host,
		Data:     NewStack[Cell]("data stack", cfg.DataStackElems),
		Ret:      NewStack[Cell]("return stack", cfg.ReturnStackElems),
		Input:    NewWordStrBuf(cfg.InputBufElems),
		Output:   NewOutputBuf(cfg.OutputBufElems),
		calls:    NewStack[CallContext]("call stack", cfg.ControlStackElems),
		ctl:      NewStack[ctlFrame]("control stack", cfg.ControlStackElems),
		dict:     newDictionary[T](cfg.DictBufElems, shared, cfg.OnDictRelease),
		builtins: vm.builtins,
		asyncs:   vm.asyncs,
		cfg:      cfg,
		logf:     cfg.Logf,
	}
	return child, nil
}
