package keypress

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// WatchQuit reads lines from r and calls cancel when a line is "q" or "Q".
// It returns when ctx is done, r is exhausted, or quit was requested.
func WatchQuit(ctx context.Context, r io.Reader, cancel context.CancelFunc) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if strings.EqualFold(strings.TrimSpace(line), "q") {
				cancel()
				return
			}
		}
	}
}
