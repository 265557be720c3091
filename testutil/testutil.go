/*
Package testutil runs "UI tests": Forth scripts annotated with their
expected interaction. Each line of a script is one of

  - a frontmatter directive sizing the VM, before any input:
    `( data_stack_elems N )`, likewise return_stack_elems,
    control_stack_elems, input_buf_elems, output_buf_elems, and
    dict_buf_elems;
  - a comment: any other `( ... )` line;
  - `> text` — feed text as input and expect success;
  - `< text` — the preceding `>` must have produced this output line
    (compared line by line, trailing whitespace ignored; with no `<`
    lines any successful output is accepted);
  - `x text` — feed text and expect an error.

In the multitask variant for async VMs, `>`, `<`, and `x` may be
prefixed with a task index; task 0 is the root VM and higher indices
are forked children.
*/
package testutil

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/forthkit/gorth"
)

// Outcome says how a step is expected to end.
type Outcome int

const (
	OkAnyOutput Outcome = iota
	OkWithOutput
	FatalError
)

// Step is one `>` or `x` line plus any attached `<` expectations.
type Step struct {
	Task   int
	Input  string
	Expect Outcome
	Output []string
}

// Script is a tokenized UI test.
type Script struct {
	Config gorth.Config
	Steps  []Step
}

// Parse tokenizes a UI test. Frontmatter directives are only accepted
// when allowed, and only before the first input line.
func Parse(contents string, allowFrontmatter bool) (Script, error) {
	var s Script
	frontmatterDone := !allowFrontmatter

	for ln, line := range strings.Split(contents, "\n") {
		tok, remain, ok := strings.Cut(strings.TrimSpace(line), " ")
		if !ok {
			continue
		}

		task := 0
		if n, err := strconv.Atoi(tok); err == nil {
			task = n
			tok, remain, ok = strings.Cut(strings.TrimSpace(remain), " ")
			if !ok {
				return s, fmt.Errorf("line %v: dangling task index", ln+1)
			}
		}

		switch tok {
		case ">":
			frontmatterDone = true
			s.Steps = append(s.Steps, Step{Task: task, Input: remain})
		case "<":
			frontmatterDone = true
			if len(s.Steps) == 0 {
				return s, fmt.Errorf("line %v: output with no prior input", ln+1)
			}
			cur := &s.Steps[len(s.Steps)-1]
			if cur.Expect == FatalError {
				return s, fmt.Errorf("line %v: output after an error step", ln+1)
			}
			cur.Expect = OkWithOutput
			cur.Output = append(cur.Output, remain)
		case "x":
			frontmatterDone = true
			s.Steps = append(s.Steps, Step{Task: task, Input: remain, Expect: FatalError})
		case "(":
			fields := strings.Fields(remain)
			if len(fields) == 0 {
				continue
			}
			dst := directive(&s.Config, fields[0])
			if dst == nil {
				continue // a comment
			}
			if frontmatterDone {
				return s, fmt.Errorf("line %v: late frontmatter %q", ln+1, fields[0])
			}
			if len(fields) != 3 || fields[2] != ")" {
				return s, fmt.Errorf("line %v: malformed frontmatter %q", ln+1, line)
			}
			n, err := strconv.Atoi(fields[1])
			if err != nil {
				return s, fmt.Errorf("line %v: %v", ln+1, err)
			}
			*dst = n
		}
	}
	return s, nil
}

func directive(cfg *gorth.Config, name string) *int {
	switch name {
	case "data_stack_elems":
		return &cfg.DataStackElems
	case "return_stack_elems":
		return &cfg.ReturnStackElems
	case "control_stack_elems":
		return &cfg.ControlStackElems
	case "input_buf_elems":
		return &cfg.InputBufElems
	case "output_buf_elems":
		return &cfg.OutputBufElems
	case "dict_buf_elems":
		return &cfg.DictBufElems
	}
	return nil
}

// checkStep compares one completed step against its expectation.
func checkStep(step Step, runErr error, output string) error {
	switch {
	case runErr == nil && step.Expect == OkAnyOutput:
		return nil
	case runErr == nil && step.Expect == OkWithOutput:
		act := strings.Split(strings.TrimRight(output, "\n"), "\n")
		if len(act) != len(step.Output) {
			return fmt.Errorf("input %q: got %v output lines, want %v\noutput:\n%v",
				step.Input, len(act), len(step.Output), output)
		}
		for i, a := range act {
			if strings.TrimRight(a, " \t") != strings.TrimRight(step.Output[i], " \t") {
				return fmt.Errorf("input %q: output line %v = %q, want %q",
					step.Input, i+1, a, step.Output[i])
			}
		}
		return nil
	case runErr != nil && step.Expect == FatalError:
		return nil
	case runErr != nil:
		return fmt.Errorf("input %q: unexpected error: %w", step.Input, runErr)
	default:
		return fmt.Errorf("input %q: expected an error, got output:\n%v", step.Input, output)
	}
}

// processStep runs one line of script input, turning a VM panic into a
// returned error so one broken script cannot take down the whole run.
func processStep(fn func() error) (err error) {
	defer func() {
		if e := recover(); e != nil {
			err = fmt.Errorf("process_line paniced: %v\n%s", e, debug.Stack())
		}
	}()
	return fn()
}

// RunScriptWith drives a pre-built VM through a script's steps. Task
// indices are rejected; use the async runner for multitask scripts.
func RunScriptWith[T any](s Script, vm *gorth.VM[T]) error {
	for _, step := range s.Steps {
		if step.Task != 0 {
			return fmt.Errorf("input %q: task indices need RunScriptTasks", step.Input)
		}
		if err := vm.Input.Fill(step.Input); err != nil {
			return err
		}
		runErr := processStep(vm.ProcessLine)
		if err := checkStep(step, runErr, vm.Output.AsStr()); err != nil {
			return err
		}
		if runErr != nil {
			vm.Input.Clear()
		}
		vm.Output.Clear()
	}
	return nil
}

// RunTestWith runs a script without frontmatter against the given VM.
func RunTestWith[T any](contents string, vm *gorth.VM[T]) error {
	s, err := Parse(contents, false)
	if err != nil {
		return err
	}
	return RunScriptWith(s, vm)
}

// RunTest runs a script, frontmatter allowed, on a fresh default VM
// with the full builtin set and no host context.
func RunTest(contents string) error {
	s, err := Parse(contents, true)
	if err != nil {
		return err
	}
	vm, err := gorth.New(s.Config, struct{}{}, gorth.FullBuiltins[struct{}]())
	if err != nil {
		return err
	}
	defer vm.Close()
	return RunScriptWith(s, vm)
}

// RunScriptTasks drives a multitask script over async VMs. Task 0 is
// created by newRoot; any higher task index is a fork of task 0 made on
// first use.
func RunScriptTasks[T any](
	ctx context.Context,
	s Script,
	newRoot func(cfg gorth.Config) (*gorth.AsyncVM[T], error),
	forkHost func(task int) T,
) error {
	root, err := newRoot(s.Config)
	if err != nil {
		return err
	}
	tasks := map[int]*gorth.AsyncVM[T]{0: root}
	defer func() {
		for _, vm := range tasks {
			vm.Close()
		}
	}()

	for _, step := range s.Steps {
		vm, ok := tasks[step.Task]
		if !ok {
			vm, err = root.Fork(s.Config, forkHost(step.Task))
			if err != nil {
				return err
			}
			tasks[step.Task] = vm
		}
		if err := vm.Input().Fill(step.Input); err != nil {
			return err
		}
		runErr := processStep(func() error {
			return vm.ProcessLine(ctx)
		})
		if err := checkStep(step, runErr, vm.Output().AsStr()); err != nil {
			return err
		}
		if runErr != nil {
			vm.Reset()
		}
		vm.Output().Clear()
	}
	return nil
}
