package activation

import (
	"fmt"
	"net"
	"os"
	"strconv"
)

// firstFD is the first descriptor systemd passes (after stdin, stdout, stderr).
const firstFD = 3

// fdCount returns how many sockets systemd passed to this process, or 0 when
// the process was not socket activated.
func fdCount() (int, error) {
	pidStr := os.Getenv("LISTEN_PID")
	if pidStr == "" {
		return 0, nil
	}
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid LISTEN_PID %q: %w", pidStr, err)
	}
	if pid != os.Getpid() {
		return 0, nil
	}

	fdsStr := os.Getenv("LISTEN_FDS")
	if fdsStr == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(fdsStr)
	if err != nil {
		return 0, fmt.Errorf("invalid LISTEN_FDS %q: %w", fdsStr, err)
	}
	if n < 0 {
		return 0, nil
	}
	return n, nil
}

// Listener returns the first systemd-activated socket when the status server
// was started through a .socket unit, otherwise it listens on addr.
// The activation variables are cleared so child processes don't inherit them.
func Listener(addr string) (net.Listener, bool, error) {
	n, err := fdCount()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		l, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, false, fmt.Errorf("listen on %s: %w", addr, err)
		}
		return l, false, nil
	}

	file := os.NewFile(uintptr(firstFD), "systemd-socket-0")
	if file == nil {
		return nil, false, fmt.Errorf("failed to create file for fd %d", firstFD)
	}
	l, err := net.FileListener(file)
	_ = file.Close()
	if err != nil {
		return nil, false, fmt.Errorf("failed to create listener from fd %d: %w", firstFD, err)
	}

	_ = os.Unsetenv("LISTEN_PID")
	_ = os.Unsetenv("LISTEN_FDS")
	_ = os.Unsetenv("LISTEN_FDNAMES")

	return l, true, nil
}
