package ring

import (
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// socketpair returns two connected, file-backed endpoints usable with
// WriteFromFD/DrainToFD in tests, without needing a real device or TCP
// socket.
func socketpair(t *testing.T) (*os.File, *os.File, error) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, nil, err
	}
	return os.NewFile(uintptr(fds[0]), "a"), os.NewFile(uintptr(fds[1]), "b"), nil
}
