package gorth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sleepDispatcher provides a single async word, sleep (ms --).
type sleepDispatcher struct{}

func (sleepDispatcher) AsyncEntries() []AsyncBuiltinEntry {
	return []AsyncBuiltinEntry{{Name: "sleep"}}
}

func (sleepDispatcher) Dispatch(ctx context.Context, name string, vm *VM[struct{}]) error {
	ms, err := vm.Data.Pop()
	if err != nil {
		return err
	}
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newSleepVM(t *testing.T) *AsyncVM[struct{}] {
	t.Helper()
	vm, err := NewAsync[struct{}](Config{}, struct{}{}, FullBuiltins[struct{}](), sleepDispatcher{})
	require.NoError(t, err)
	return vm
}

func TestAsyncVM_sleepCompletes(t *testing.T) {
	vm := newSleepVM(t)
	defer vm.Close()

	require.NoError(t, vm.Input().Fill("100 sleep"))
	start := time.Now()
	require.NoError(t, vm.ProcessLine(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, "ok.\n", vm.Output().AsStr())
	assert.Zero(t, vm.VM().CallDepth())
}

func TestAsyncVM_syncWordsStillWork(t *testing.T) {
	vm := newSleepVM(t)
	defer vm.Close()

	require.NoError(t, vm.Input().Fill(": nap 10 sleep 42 emit ;"))
	require.NoError(t, vm.ProcessLine(context.Background()))
	vm.Output().Clear()

	require.NoError(t, vm.Input().Fill("nap cr"))
	require.NoError(t, vm.ProcessLine(context.Background()))
	assert.Equal(t, "*\nok.\n", vm.Output().AsStr())
}

func TestAsyncVM_cancelledMidSleep(t *testing.T) {
	vm := newSleepVM(t)
	defer vm.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.NoError(t, vm.Input().Fill("1 2 10000 sleep"))
	err := vm.ProcessLine(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	// cancellation leaves partial state; Reset makes the VM usable again
	assert.Equal(t, 2, vm.VM().Data.Depth())
	vm.Reset()
	assert.Zero(t, vm.VM().Data.Depth())

	require.NoError(t, vm.Input().Fill("1 2 + . cr"))
	require.NoError(t, vm.ProcessLine(context.Background()))
	assert.Equal(t, "3 \nok.\n", vm.Output().AsStr())
}

func TestAsyncVM_asyncErrorClearsStacks(t *testing.T) {
	vm := newSleepVM(t)
	defer vm.Close()

	// sleep with an empty stack fails inside the dispatcher
	require.NoError(t, vm.Input().Fill("sleep"))
	err := vm.ProcessLine(context.Background())
	assert.ErrorIs(t, err, ErrStackUnderflow)
	assert.Zero(t, vm.VM().Data.Depth())
	assert.Zero(t, vm.VM().CallDepth())
}

func TestVM_syncRejectsAsyncEntries(t *testing.T) {
	// A VM built with an async table but run through the synchronous
	// path must fail rather than misdispatch.
	vm, err := newVM(Config{}, struct{}{}, FullBuiltins[struct{}](), []AsyncBuiltinEntry{{Name: "sleep"}})
	require.NoError(t, err)
	defer vm.Close()

	require.NoError(t, vm.Input.Fill("1 sleep"))
	assert.ErrorIs(t, vm.ProcessLine(), errAsyncEntry)
}

func TestAsyncVM_fork(t *testing.T) {
	vm := newSleepVM(t)
	defer vm.Close()

	require.NoError(t, vm.Input().Fill(": nap 1 sleep ;"))
	require.NoError(t, vm.ProcessLine(context.Background()))

	child, err := vm.Fork(Config{}, struct{}{})
	require.NoError(t, err)
	defer child.Close()

	require.NoError(t, child.Input().Fill("nap"))
	require.NoError(t, child.ProcessLine(context.Background()))
	assert.Equal(t, "ok.\n", child.Output().AsStr())
}
