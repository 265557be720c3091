// Command uitest runs every .fth UI-test script under a directory
// (default ui-tests) against a fresh VM and reports failures.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/forthkit/gorth/testutil"
)

func main() {
	var dir string
	flag.StringVar(&dir, "dir", "ui-tests", "directory of .fth scripts")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".fth") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		log.Error("walk failed", "dir", dir, "err", err)
		os.Exit(1)
	}
	slices.Sort(paths)

	failed := 0
	for _, path := range paths {
		contents, err := os.ReadFile(path)
		if err == nil {
			err = testutil.RunTest(string(contents))
		}
		if err != nil {
			failed++
			log.Error("FAIL", "script", path, "err", err)
			continue
		}
		fmt.Println("ok", path)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
