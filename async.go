package gorth

import (
	"context"
	"errors"
)

// AsyncBuiltins supplies a set of named builtin words whose execution
// may block: timers, I/O, host scheduling. The inner interpreter calls
// Dispatch with exclusive access to the VM for the duration; the
// context cancels the word at its next blocking point.
type AsyncBuiltins[T any] interface {
	// AsyncEntries names the asynchronous words. The slice must be
	// stable for the life of the VM.
	AsyncEntries() []AsyncBuiltinEntry

	// Dispatch runs the named word. Returning ErrPendingCallAgain keeps
	// the word's frame for another round, as with synchronous words.
	Dispatch(ctx context.Context, name string, vm *VM[T]) error
}

// AsyncVM wraps a VM with an async dispatcher. Lines are processed
// exactly as by VM.ProcessLine except that async-builtin entries
// suspend on the dispatcher. The VM is not safe for concurrent use;
// between blocking points the dispatcher holds it exclusively.
type AsyncVM[T any] struct {
	vm         *VM[T]
	dispatcher AsyncBuiltins[T]
}

func NewAsync[T any](cfg Config, host T, builtins []Builtin[T], dispatcher AsyncBuiltins[T]) (*AsyncVM[T], error) {
	vm, err := newVM(cfg, host, builtins, dispatcher.AsyncEntries())
	if err != nil {
		return nil, err
	}
	return &AsyncVM[T]{vm: vm, dispatcher: dispatcher}, nil
}

// AsAsync wraps an existing VM, typically a fork made inside a
// dispatcher, with an async dispatcher of its own.
func AsAsync[T any](vm *VM[T], dispatcher AsyncBuiltins[T]) *AsyncVM[T] {
	return &AsyncVM[T]{vm: vm, dispatcher: dispatcher}
}

// VM exposes the wrapped machine for host builtins and inspection.
func (a *AsyncVM[T]) VM() *VM[T] { return a.vm }

func (a *AsyncVM[T]) Input() *WordStrBuf { return &a.vm.Input }
func (a *AsyncVM[T]) Output() *OutputBuf { return &a.vm.Output }

func (a *AsyncVM[T]) AddBuiltin(name string, fn WordFunc[T]) error {
	return a.vm.AddBuiltin(name, fn)
}

func (a *AsyncVM[T]) Close() { a.vm.Close() }

// Reset recovers a VM abandoned mid-line, typically after cancellation:
// all stacks and pending input are dropped.
func (a *AsyncVM[T]) Reset() { a.vm.Reset() }

// Fork forks the wrapped VM; the child shares the dispatcher.
func (a *AsyncVM[T]) Fork(cfg Config, host T) (*AsyncVM[T], error) {
	child, err := a.vm.Fork(cfg, host)
	if err != nil {
		return nil, err
	}
	return &AsyncVM[T]{vm: child, dispatcher: a.dispatcher}, nil
}

// ProcessLine consumes all pending input like VM.ProcessLine, awaiting
// the dispatcher whenever an async word is entered. Cancellation takes
// effect at the next step boundary; the stacks are then left as the
// word left them, so the caller should Reset before reuse.
func (a *AsyncVM[T]) ProcessLine(ctx context.Context) error {
	err := a.processLine(ctx)
	if err == nil {
		err = a.vm.Output.PushStr(okPrompt)
	}
	if err != nil {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			a.vm.clearStacks()
		}
		return err
	}
	return nil
}

func (a *AsyncVM[T]) processLine(ctx context.Context) error {
	vm := a.vm
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
				if err := ctx.Err(); err != nil {
					return err
				}
				done, err := a.step(ctx)
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

// step is the async variant of VM.step: async entries go to the
// dispatcher, everything else to the synchronous interpreter.
func (a *AsyncVM[T]) step(ctx context.Context) (bool, error) {
	vm := a.vm
	frame, err := vm.calls.Peek()
	if err != nil {
		if errors.Is(err, ErrStackEmpty) {
			return true, nil
		}
		return false, err
	}
	if i, ok := asyncIndex(frame.xt); ok {
		name := vm.asyncs[i].Name
		switch err := a.dispatcher.Dispatch(ctx, name, vm); {
		case err == nil:
			_, perr := vm.calls.Pop()
			return false, perr
		case errors.Is(err, ErrPendingCallAgain):
			return false, nil
		default:
			return false, err
		}
	}
	return vm.step()
}
