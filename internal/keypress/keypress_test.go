package keypress

import (
	"context"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

func TestWatchQuit(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantCancel bool
	}{
		{name: "lower q", input: "hello\nq\n", wantCancel: true},
		{name: "upper Q with spaces", input: "  Q  \n", wantCancel: true},
		{name: "no quit", input: "quit\nx\n", wantCancel: false},
		{name: "empty input", input: "", wantCancel: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			done := make(chan struct{})
			go func() {
				WatchQuit(ctx, strings.NewReader(tt.input), cancel)
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("WatchQuit did not return")
			}

			if cancelled := ctx.Err() != nil; cancelled != tt.wantCancel {
				t.Errorf("expected cancelled=%v, got %v", tt.wantCancel, cancelled)
			}
		})
	}
}

func TestWatchQuitStopsOnContext(t *testing.T) {
	r, w := io.Pipe()
	defer func() {
		_ = w.Close()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		WatchQuit(ctx, r, func() {})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchQuit did not return after cancellation")
	}
}

func TestIsTerminalOnPipe(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = r.Close()
		_ = w.Close()
	}()

	if IsTerminal(r) {
		t.Error("a pipe is not a terminal")
	}
}
