// Command gorth is an interactive shell over the Forth VM, optionally
// with file-backed block storage and asynchronous task words.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/term"
	"sigs.k8s.io/yaml"

	"github.com/forthkit/gorth"
	"github.com/forthkit/gorth/internal/blockfile"
)

// profile is the optional YAML sizing file; zero fields keep defaults.
type profile struct {
	DataStackElems    int `json:"data_stack_elems"`
	ReturnStackElems  int `json:"return_stack_elems"`
	ControlStackElems int `json:"control_stack_elems"`
	InputBufElems     int `json:"input_buf_elems"`
	OutputBufElems    int `json:"output_buf_elems"`
	DictBufElems      int `json:"dict_buf_elems"`
	BlockSize         int `json:"block_size"`
}

type replHost struct {
	disk *gorth.Disk
}

func (h *replHost) Disk() *gorth.Disk { return h.disk }

func main() {
	var (
		profilePath string
		diskDir     string
		blockSize   int
		asyncMode   bool
		trace       bool
	)
	flag.StringVar(&profilePath, "profile", "", "YAML sizing profile")
	flag.StringVar(&diskDir, "disk", "", "directory for block storage words")
	flag.IntVar(&blockSize, "block-size", 512, "bytes per block")
	flag.BoolVar(&asyncMode, "async", false, "enable sleep and spawn words")
	flag.BoolVar(&trace, "trace", false, "log interpreter trace")
	flag.Parse()

	level := slog.LevelInfo
	if trace {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(log, profilePath, diskDir, blockSize, asyncMode, trace); err != nil {
		log.Error("repl failed", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger, profilePath, diskDir string, blockSize int, asyncMode, trace bool) error {
	var cfg gorth.Config
	if profilePath != "" {
		raw, err := os.ReadFile(profilePath)
		if err != nil {
			return err
		}
		var p profile
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("profile %v: %w", profilePath, err)
		}
		cfg = gorth.Config{
			DataStackElems:    p.DataStackElems,
			ReturnStackElems:  p.ReturnStackElems,
			ControlStackElems: p.ControlStackElems,
			InputBufElems:     p.InputBufElems,
			OutputBufElems:    p.OutputBufElems,
			DictBufElems:      p.DictBufElems,
		}
		if p.BlockSize != 0 {
			blockSize = p.BlockSize
		}
	}
	if trace {
		cfg.Logf = func(mess string, args ...any) {
			log.Debug(fmt.Sprintf(mess, args...))
		}
	}

	host := &replHost{}
	if diskDir != "" {
		driver, err := blockfile.New(diskDir, blockSize)
		if err != nil {
			return err
		}
		defer driver.Close()
		host.disk = gorth.NewDisk(blockSize, driver)
	}

	if asyncMode {
		return runAsync(log, cfg, host)
	}

	vm, err := gorth.New(cfg, host, gorth.FullBuiltins[*replHost]())
	if err != nil {
		return err
	}
	defer vm.Close()
	if host.disk != nil {
		if err := gorth.AddDiskBuiltins(vm); err != nil {
			return err
		}
	}

	return repl(func(line string) (string, error) {
		if err := vm.Input.Fill(line); err != nil {
			return "", err
		}
		err := vm.ProcessLine()
		out := vm.Output.AsStr()
		vm.Output.Clear()
		if err != nil {
			return out, fmt.Errorf("%w%v", err, unprocessed(&vm.Input))
		}
		return out, nil
	})
}

func runAsync(log *slog.Logger, cfg gorth.Config, host *replHost) error {
	g := new(errgroup.Group)
	disp := &dispatcher{g: g, log: log}
	avm, err := gorth.NewAsync(cfg, host, gorth.FullBuiltins[*replHost](), disp)
	if err != nil {
		return err
	}
	defer avm.Close()
	if host.disk != nil {
		if err := gorth.AddDiskBuiltins(avm.VM()); err != nil {
			return err
		}
	}
	fmt.Println("async words:\n\tsleep (ms --)\n\tspawn (xt --)")

	err = repl(func(line string) (string, error) {
		if err := avm.Input().Fill(line); err != nil {
			return "", err
		}
		err := avm.ProcessLine(context.Background())
		out := avm.Output().AsStr()
		avm.Output().Clear()
		if err != nil {
			return out, fmt.Errorf("%w%v", err, unprocessed(avm.Input()))
		}
		return out, nil
	})
	if werr := g.Wait(); err == nil {
		err = werr
	}
	return err
}

// repl reads stdin a line at a time, prompting only at a terminal.
func repl(process func(line string) (string, error)) error {
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	in := bufio.NewScanner(os.Stdin)
	for {
		if interactive {
			fmt.Print("> ")
		}
		if !in.Scan() {
			return in.Err()
		}
		out, err := process(in.Text())
		fmt.Print(out)
		if err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

// unprocessed drains and formats the tokens an error left behind.
func unprocessed(in *gorth.WordStrBuf) string {
	s := ""
	for {
		tok, ok := in.CurWord()
		if !ok {
			break
		}
		s += fmt.Sprintf(" %q", tok)
		in.Advance()
	}
	if s == "" {
		return ""
	}
	return "; unprocessed:" + s
}

// dispatcher provides the async words: sleep suspends the current line,
// spawn forks a child VM and runs one word of it on its own goroutine.
type dispatcher struct {
	g     *errgroup.Group
	log   *slog.Logger
	tasks atomic.Int64
}

func (d *dispatcher) AsyncEntries() []gorth.AsyncBuiltinEntry {
	return []gorth.AsyncBuiltinEntry{{Name: "sleep"}, {Name: "spawn"}}
}

func (d *dispatcher) Dispatch(ctx context.Context, name string, vm *gorth.VM[*replHost]) error {
	switch name {
	case "sleep":
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

	case "spawn":
		xt, err := vm.Data.Pop()
		if err != nil {
			return err
		}
		word := vm.NameOf(xt)
		child, err := vm.Fork(gorth.Config{}, &replHost{})
		if err != nil {
			return err
		}
		achild := gorth.AsAsync(child, d)
		if err := achild.Input().Fill(word); err != nil {
			achild.Close()
			return err
		}
		tid := d.tasks.Add(1)
		d.log.Info("task started", "task", tid, "word", word)
		d.g.Go(func() error {
			defer achild.Close()
			if err := achild.ProcessLine(context.Background()); err != nil {
				d.log.Error("task failed", "task", tid, "err", err)
				return nil
			}
			fmt.Printf("[t%d] %s", tid, achild.Output().AsStr())
			d.log.Info("task done", "task", tid)
			return nil
		})
		return nil
	}
	return fmt.Errorf("unknown async builtin %q", name)
}
