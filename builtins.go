package gorth

import "fmt"

// A Builtin is one named native word in the static table supplied at VM
// construction. Immediate words run at compile time instead of being
// emitted; the mode flags reject words used in the wrong mode.
type Builtin[T any] struct {
	Name          string
	Func          WordFunc[T]
	Immediate     bool
	CompileOnly   bool
	InterpretOnly bool
}

// FullBuiltins is the canonical word set: arithmetic, bit operations,
// stack manipulation, comparison, I/O, memory, defining words, and
// control flow.
func FullBuiltins[T any]() []Builtin[T] {
	return []Builtin[T]{
		// arithmetic
		{Name: "+", Func: (*VM[T]).add},
		{Name: "-", Func: (*VM[T]).sub},
		{Name: "*", Func: (*VM[T]).mul},
		{Name: "/", Func: (*VM[T]).div},
		{Name: "mod", Func: (*VM[T]).mod},
		{Name: "negate", Func: (*VM[T]).negate},
		{Name: "abs", Func: (*VM[T]).absVal},
		{Name: "min", Func: (*VM[T]).minVal},
		{Name: "max", Func: (*VM[T]).maxVal},

		// bit operations
		{Name: "and", Func: (*VM[T]).bitAnd},
		{Name: "or", Func: (*VM[T]).bitOr},
		{Name: "xor", Func: (*VM[T]).bitXor},
		{Name: "invert", Func: (*VM[T]).bitInvert},
		{Name: "lshift", Func: (*VM[T]).bitShl},
		{Name: "rshift", Func: (*VM[T]).bitShr},

		// stack manipulation
		{Name: "dup", Func: (*VM[T]).dup},
		{Name: "drop", Func: (*VM[T]).drop},
		{Name: "swap", Func: (*VM[T]).swap},
		{Name: "over", Func: (*VM[T]).over},
		{Name: "rot", Func: (*VM[T]).rot},
		{Name: "pick", Func: (*VM[T]).pick},
		{Name: ">r", Func: (*VM[T]).toR},
		{Name: "r>", Func: (*VM[T]).fromR},
		{Name: "r@", Func: (*VM[T]).fetchR},

		// comparison
		{Name: "=", Func: (*VM[T]).eq},
		{Name: "<>", Func: (*VM[T]).neq},
		{Name: "<", Func: (*VM[T]).lt},
		{Name: ">", Func: (*VM[T]).gt},
		{Name: "<=", Func: (*VM[T]).le},
		{Name: ">=", Func: (*VM[T]).ge},
		{Name: "0=", Func: (*VM[T]).zeroEq},
		{Name: "0<", Func: (*VM[T]).zeroLt},

		// I/O
		{Name: "emit", Func: (*VM[T]).emit},
		{Name: ".", Func: (*VM[T]).dot},
		{Name: ".s", Func: (*VM[T]).dotS},
		{Name: "cr", Func: (*VM[T]).crWord},
		{Name: "space", Func: (*VM[T]).spaceWord},
		{Name: `."`, Func: (*VM[T]).wordDotQuote, Immediate: true},
		{Name: "(", Func: (*VM[T]).wordParen, Immediate: true},

		// memory
		{Name: "@", Func: (*VM[T]).fetch},
		{Name: "!", Func: (*VM[T]).store},
		{Name: "c@", Func: (*VM[T]).cFetch},
		{Name: "c!", Func: (*VM[T]).cStore},
		{Name: "+!", Func: (*VM[T]).plusStore},
		{Name: "cells", Func: (*VM[T]).cellsWord},

		// defining words and bookkeeping
		{Name: ":", Func: (*VM[T]).wordColon, Immediate: true},
		{Name: ";", Func: (*VM[T]).wordSemi, Immediate: true, CompileOnly: true},
		{Name: "variable", Func: (*VM[T]).wordVariable, InterpretOnly: true},
		{Name: "constant", Func: (*VM[T]).wordConstant, InterpretOnly: true},
		{Name: "create", Func: (*VM[T]).wordCreate, InterpretOnly: true},
		{Name: "allot", Func: (*VM[T]).wordAllot, InterpretOnly: true},
		{Name: ",", Func: (*VM[T]).wordComma, InterpretOnly: true},
		{Name: "here", Func: (*VM[T]).wordHere},
		{Name: "'", Func: (*VM[T]).wordTick, InterpretOnly: true},
		{Name: "see", Func: (*VM[T]).wordSee, InterpretOnly: true},
		{Name: "words", Func: (*VM[T]).wordWords},

		// control flow
		{Name: "if", Func: (*VM[T]).wordIf, Immediate: true, CompileOnly: true},
		{Name: "else", Func: (*VM[T]).wordElse, Immediate: true, CompileOnly: true},
		{Name: "then", Func: (*VM[T]).wordThen, Immediate: true, CompileOnly: true},
		{Name: "begin", Func: (*VM[T]).wordBegin, Immediate: true, CompileOnly: true},
		{Name: "until", Func: (*VM[T]).wordUntil, Immediate: true, CompileOnly: true},
		{Name: "while", Func: (*VM[T]).wordWhile, Immediate: true, CompileOnly: true},
		{Name: "repeat", Func: (*VM[T]).wordRepeat, Immediate: true, CompileOnly: true},
		{Name: "do", Func: (*VM[T]).wordDo, Immediate: true, CompileOnly: true},
		{Name: "loop", Func: (*VM[T]).wordLoop, Immediate: true, CompileOnly: true},
		{Name: "exit", Func: (*VM[T]).wordExit, Immediate: true, CompileOnly: true},
		{Name: "i", Func: (*VM[T]).loopI},
		{Name: "j", Func: (*VM[T]).loopJ},
	}
}

func (vm *VM[T]) pop2() (a, b Cell, err error) {
	if b, err = vm.Data.Pop(); err != nil {
		return
	}
	a, err = vm.Data.Pop()
	return
}

func (vm *VM[T]) binop(f func(a, b Cell) (Cell, error)) error {
	a, b, err := vm.pop2()
	if err != nil {
		return err
	}
	v, err := f(a, b)
	if err != nil {
		return err
	}
	return vm.Data.Push(v)
}

func (vm *VM[T]) unop(f func(a Cell) Cell) error {
	a, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	return vm.Data.Push(f(a))
}

//// arithmetic

func (vm *VM[T]) add() error {
	return vm.binop(func(a, b Cell) (Cell, error) { return a + b, nil })
}

func (vm *VM[T]) sub() error {
	return vm.binop(func(a, b Cell) (Cell, error) { return a - b, nil })
}

func (vm *VM[T]) mul() error {
	return vm.binop(func(a, b Cell) (Cell, error) { return a * b, nil })
}

func (vm *VM[T]) div() error {
	return vm.binop(func(a, b Cell) (Cell, error) {
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a / b, nil
	})
}

func (vm *VM[T]) mod() error {
	return vm.binop(func(a, b Cell) (Cell, error) {
		if b == 0 {
			return 0, ErrDivideByZero
		}
		return a % b, nil
	})
}

func (vm *VM[T]) negate() error { return vm.unop(func(a Cell) Cell { return -a }) }

func (vm *VM[T]) absVal() error {
	return vm.unop(func(a Cell) Cell {
		if a < 0 {
			return -a
		}
		return a
	})
}

func (vm *VM[T]) minVal() error {
	return vm.binop(func(a, b Cell) (Cell, error) {
		if a < b {
			return a, nil
		}
		return b, nil
	})
}

func (vm *VM[T]) maxVal() error {
	return vm.binop(func(a, b Cell) (Cell, error) {
		if a > b {
			return a, nil
		}
		return b, nil
	})
}

//// stack manipulation

func (vm *VM[T]) dup() error {
	v, err := vm.Data.At(0)
	if err != nil {
		return err
	}
	return vm.Data.Push(v)
}

func (vm *VM[T]) drop() error {
	_, err := vm.Data.Pop()
	return err
}

func (vm *VM[T]) swap() error {
	a, b, err := vm.pop2()
	if err != nil {
		return err
	}
	if err := vm.Data.Push(b); err != nil {
		return err
	}
	return vm.Data.Push(a)
}

func (vm *VM[T]) over() error {
	v, err := vm.Data.At(1)
	if err != nil {
		return err
	}
	return vm.Data.Push(v)
}

func (vm *VM[T]) rot() error {
	c, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	a, b, err := vm.pop2()
	if err != nil {
		return err
	}
	for _, v := range [...]Cell{b, c, a} {
		if err := vm.Data.Push(v); err != nil {
			return err
		}
	}
	return nil
}

func (vm *VM[T]) pick() error {
	n, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	v, err := vm.Data.At(int(n))
	if err != nil {
		return err
	}
	return vm.Data.Push(v)
}

func (vm *VM[T]) toR() error {
	v, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	return vm.Ret.Push(v)
}

func (vm *VM[T]) fromR() error {
	v, err := vm.Ret.Pop()
	if err != nil {
		return err
	}
	return vm.Data.Push(v)
}

func (vm *VM[T]) fetchR() error {
	v, err := vm.Ret.At(0)
	if err != nil {
		return err
	}
	return vm.Data.Push(v)
}

//// comparison

func (vm *VM[T]) cmp(f func(a, b Cell) bool) error {
	return vm.binop(func(a, b Cell) (Cell, error) { return boolCell(f(a, b)), nil })
}

func (vm *VM[T]) eq() error { return vm.cmp(func(a, b Cell) bool { return a == b }) }
func (vm *VM[T]) neq() error { return vm.cmp(func(a, b Cell) bool { return a != b }) }
func (vm *VM[T]) lt() error { return vm.cmp(func(a, b Cell) bool { return a < b }) }
func (vm *VM[T]) gt() error { return vm.cmp(func(a, b Cell) bool { return a > b }) }
func (vm *VM[T]) le() error { return vm.cmp(func(a, b Cell) bool { return a <= b }) }
func (vm *VM[T]) ge() error { return vm.cmp(func(a, b Cell) bool { return a >= b }) }

func (vm *VM[T]) zeroEq() error { return vm.unop(func(a Cell) Cell { return boolCell(a == 0) }) }
func (vm *VM[T]) zeroLt() error { return vm.unop(func(a Cell) Cell { return boolCell(a < 0) }) }

//// I/O

func (vm *VM[T]) emit() error {
	v, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	return vm.Output.PushRune(rune(v))
}

func (vm *VM[T]) dot() error {
	v, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	if err := vm.Output.PushInt(int64(v)); err != nil {
		return err
	}
	return vm.Output.PushByte(' ')
}

func (vm *VM[T]) dotS() error {
	if err := vm.Output.PushStr(fmt.Sprintf("<%v>", vm.Data.Depth())); err != nil {
		return err
	}
	for _, v := range vm.Data.Slice() {
		if err := vm.Output.PushByte(' '); err != nil {
			return err
		}
		if err := vm.Output.PushInt(int64(v)); err != nil {
			return err
		}
	}
	return vm.Output.PushByte('\n')
}

func (vm *VM[T]) crWord() error    { return vm.Output.PushByte('\n') }
func (vm *VM[T]) spaceWord() error { return vm.Output.PushByte(' ') }

//// memory

func (vm *VM[T]) fetch() error {
	addr, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	v, err := vm.loadCell(addr)
	if err != nil {
		return err
	}
	return vm.Data.Push(v)
}

func (vm *VM[T]) store() error {
	addr, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	v, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	return vm.storeCell(addr, v)
}

func (vm *VM[T]) cFetch() error {
	addr, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	v, err := vm.loadByte(addr)
	if err != nil {
		return err
	}
	return vm.Data.Push(v)
}

func (vm *VM[T]) cStore() error {
	addr, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	v, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	return vm.storeByte(addr, v)
}

func (vm *VM[T]) plusStore() error {
	addr, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	n, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	v, err := vm.loadCell(addr)
	if err != nil {
		return err
	}
	return vm.storeCell(addr, v+n)
}

func (vm *VM[T]) cellsWord() error {
	return vm.unop(func(a Cell) Cell { return a * CellBytes })
}

//// loop indices

func (vm *VM[T]) loopI() error {
	v, err := vm.Ret.At(0)
	if err != nil {
		return err
	}
	return vm.Data.Push(v)
}

func (vm *VM[T]) loopJ() error {
	v, err := vm.Ret.At(2)
	if err != nil {
		return err
	}
	return vm.Data.Push(v)
}
