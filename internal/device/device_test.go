package device

import (
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/logxen/netrap/internal/ring"
)

type fakeRouter struct {
	lines         [][]byte
	submitterIDs  []int
	hasSubmitters []bool
}

func (f *fakeRouter) RouteLine(line []byte, submitterID int, hasSubmitter bool) {
	f.lines = append(f.lines, append([]byte(nil), line...))
	f.submitterIDs = append(f.submitterIDs, submitterID)
	f.hasSubmitters = append(f.hasSubmitters, hasSubmitter)
}

func socketpair(t *testing.T) (*os.File, *os.File) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	return os.NewFile(uintptr(fds[0]), "a"), os.NewFile(uintptr(fds[1]), "b")
}

// newTestDevice builds a Device directly over a socketpair fd, bypassing
// Open/serial entirely — the flow-control and routing logic under test does
// not depend on the fd being an actual tty.
func newTestDevice(t *testing.T, fd int, router Router) *Device {
	t.Helper()
	rx, err := ring.New(64)
	require.NoError(t, err)
	tx, err := ring.New(64)
	require.NoError(t, err)
	return &Device{
		id:       1,
		fd:       fd,
		path:     "/dev/fake",
		baud:     9600,
		bufCap:   64,
		reopen:   DefaultReopenPolicy,
		rx:       rx,
		tx:       tx,
		tokens:   1,
		maxtoken: 1,
		router:   router,
		log:      zap.NewNop().Sugar(),
	}
}

func TestDeviceStartsWithOneTokenAndNoWriteInterestUntilQueued(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	d := newTestDevice(t, int(a.Fd()), &fakeRouter{})
	require.Equal(t, 1, d.Tokens())
	require.True(t, d.TokensAvailable())
	require.False(t, d.WantWrite())
}

func TestDeviceSubmitMakesWriteInterestedAndConsumesToken(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	d := newTestDevice(t, int(a.Fd()), &fakeRouter{})
	d.Submit([]byte("G28\n"), 7)
	require.True(t, d.WantWrite())

	require.NoError(t, d.HandleWritable())
	require.Equal(t, 0, d.Tokens())
	require.False(t, d.TokensAvailable())

	out := make([]byte, 16)
	n, err := b.Read(out)
	require.NoError(t, err)
	require.Equal(t, "G28\n", string(out[:n]))
}

func TestDeviceOkResponseReturnsToken(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	rtr := &fakeRouter{}
	d := newTestDevice(t, int(a.Fd()), rtr)
	d.Submit([]byte("G28\n"), 7)
	require.NoError(t, d.HandleWritable())
	require.Equal(t, 0, d.Tokens())

	_, err := b.Write([]byte("ok\n"))
	require.NoError(t, err)
	require.NoError(t, d.HandleReadable())

	require.Equal(t, 1, d.Tokens())
	require.Len(t, rtr.lines, 1)
	require.Equal(t, "ok\n", string(rtr.lines[0]))
	require.Equal(t, 7, rtr.submitterIDs[0])
	require.True(t, rtr.hasSubmitters[0])
}

func TestDeviceMultiLineResponseAllRouteToSameSubmitter(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	defer b.Close()

	rtr := &fakeRouter{}
	d := newTestDevice(t, int(a.Fd()), rtr)
	d.Submit([]byte("M105\n"), 3)
	require.NoError(t, d.HandleWritable())

	_, err := b.Write([]byte("T:200\nok\n"))
	require.NoError(t, err)
	require.NoError(t, d.HandleReadable())

	require.Len(t, rtr.lines, 2)
	if diff := cmp.Diff([]string{"T:200\n", "ok\n"}, linesAsStrings(rtr.lines)); diff != "" {
		t.Errorf("routed lines mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, 3, rtr.submitterIDs[0])
	require.Equal(t, 3, rtr.submitterIDs[1])
	require.Equal(t, 1, d.Tokens())
}

func linesAsStrings(lines [][]byte) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = string(l)
	}
	return out
}

func TestDeviceZeroByteReadTriggersReopenAndFailsWithoutAReplacementFD(t *testing.T) {
	a, b := socketpair(t)
	defer a.Close()
	b.Close()

	d := newTestDevice(t, int(a.Fd()), &fakeRouter{})
	d.reopen = ReopenPolicy{MaxAttempts: 1}

	err := d.HandleReadable()
	require.Error(t, err)
}
