package activation

import (
	"os"
	"strconv"
	"testing"
)

func TestFdCount(t *testing.T) {
	self := strconv.Itoa(os.Getpid())

	tests := []struct {
		name    string
		pid     string
		fds     string
		want    int
		wantErr bool
	}{
		{name: "no environment", want: 0},
		{name: "other process", pid: "99999999", fds: "1", want: 0},
		{name: "invalid pid", pid: "not-a-number", fds: "1", wantErr: true},
		{name: "invalid fds", pid: self, fds: "many", wantErr: true},
		{name: "zero fds", pid: self, fds: "0", want: 0},
		{name: "missing fds", pid: self, want: 0},
		{name: "two fds", pid: self, fds: "2", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LISTEN_PID", tt.pid)
			t.Setenv("LISTEN_FDS", tt.fds)

			got, err := fdCount()
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}

func TestListenerFallsBackToAddress(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")

	l, activated, err := Listener("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listener failed: %v", err)
	}
	defer func() {
		_ = l.Close()
	}()

	if activated {
		t.Error("expected a plain listener without socket activation")
	}
	if l.Addr().String() == "" {
		t.Error("expected a bound address")
	}
}

func TestListenerInvalidEnvironment(t *testing.T) {
	t.Setenv("LISTEN_PID", "garbage")
	t.Setenv("LISTEN_FDS", "1")

	if _, _, err := Listener("127.0.0.1:0"); err == nil {
		t.Error("expected error for invalid LISTEN_PID")
	}
}
