package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"github.com/codeGROOVE-dev/channelist/config"
)

// promptWorkers asks for a worker count when stdin is an interactive
// terminal; otherwise (pipes, cron) it returns the configured default.
// Blank input and garbage both fall back to the default.
func promptWorkers(def int) int {
	if !isTTY(os.Stdin) {
		return def
	}

	fmt.Fprintf(os.Stderr, "Workers [1-%d, default %d]: ", config.MaxWorkers, def)
	sc := bufio.NewScanner(os.Stdin)
	if !sc.Scan() {
		return def
	}
	line := strings.TrimSpace(sc.Text())
	if line == "" {
		return def
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > config.MaxWorkers {
		fmt.Fprintf(os.Stderr, "using default of %d workers\n", def)
		return def
	}
	return n
}

func isTTY(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
