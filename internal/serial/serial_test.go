package serial

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestBaudToUnixKnownRates(t *testing.T) {
	cases := map[int]uint32{
		0:       unix.B0,
		9600:    unix.B9600,
		19200:   unix.B19200,
		38400:   unix.B38400,
		57600:   unix.B57600,
		115200:  unix.B115200,
		230400:  unix.B230400,
		4000000: unix.B4000000,
	}
	for baud, want := range cases {
		got, err := baudToUnix(baud)
		require.NoError(t, err, "baud %d", baud)
		require.Equal(t, want, got, "baud %d", baud)
	}
}

func TestBaudToUnixUnknownRateIsFatalError(t *testing.T) {
	_, err := baudToUnix(123456789)
	require.Error(t, err)
}

func TestOpenUnknownBaudFailsBeforeOpeningDevice(t *testing.T) {
	_, err := Open("/dev/null", 123456789)
	require.Error(t, err)
}

func TestOpenMissingDeviceFails(t *testing.T) {
	_, err := Open("/nonexistent/path/for/test", 115200)
	require.Error(t, err)
}
