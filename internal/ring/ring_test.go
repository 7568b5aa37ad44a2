package ring

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestNewRejectsNonPowerOfTwo(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)

	_, err = New(100)
	require.Error(t, err)

	b, err := New(128)
	require.NoError(t, err)
	require.EqualValues(t, 127, b.Writable())
}

func TestWriteReadRoundTrip(t *testing.T) {
	b := MustNew(16)

	n := b.Write([]byte("hi\n"))
	require.EqualValues(t, 3, n)
	require.True(t, b.HasLine())
	require.EqualValues(t, 3, b.Readable())
	require.EqualValues(t, 16-1-3, b.Writable())

	dst := make([]byte, 16)
	got := b.ReadLine(dst)
	require.EqualValues(t, 3, got)
	require.Equal(t, "hi\n", string(dst[:got]))
	require.False(t, b.HasLine())
}

func TestReadLineReturnsZeroWithoutNewline(t *testing.T) {
	b := MustNew(16)
	b.Write([]byte("partial"))

	dst := make([]byte, 16)
	require.EqualValues(t, 0, b.ReadLine(dst))
	// Buffer must be untouched.
	require.EqualValues(t, 7, b.Readable())
}

func TestMultipleLinesInOneWrite(t *testing.T) {
	b := MustNew(32)
	b.Write([]byte("one\ntwo\nthree"))

	dst := make([]byte, 32)
	require.EqualValues(t, 4, b.ReadLine(dst))
	require.Equal(t, "one\n", string(dst[:4]))
	require.EqualValues(t, 4, b.ReadLine(dst))
	require.Equal(t, "two\n", string(dst[:4]))
	// "three" has no trailing newline yet.
	require.EqualValues(t, 0, b.ReadLine(dst))
	require.EqualValues(t, 5, b.Readable())
}

func TestWriteTruncatesAtCapacityBoundary(t *testing.T) {
	b := MustNew(16)
	// Capacity-1 bytes exactly fill the buffer.
	payload := make([]byte, 15)
	for i := range payload {
		payload[i] = 'a'
	}
	n := b.Write(payload)
	require.EqualValues(t, 15, n)
	require.EqualValues(t, 0, b.Writable())

	// One more byte must be silently dropped.
	n = b.Write([]byte{'b'})
	require.EqualValues(t, 0, n)
}

func TestWriteOfFullCapacityIsTruncated(t *testing.T) {
	b := MustNew(16)
	payload := make([]byte, 16)
	n := b.Write(payload)
	require.EqualValues(t, 15, n)
}

func TestWrapAroundPreservesOrderAndNewlineCount(t *testing.T) {
	b := MustNew(8)
	b.Write([]byte("abcd\n"))
	dst := make([]byte, 8)
	b.ReadLine(dst) // drains "abcd\n", tail now past head's old region

	// Write again; head/tail have wrapped.
	n := b.Write([]byte("ef\ngh\n"))
	require.EqualValues(t, 6, n)
	require.EqualValues(t, 2, b.newlines)

	got := b.ReadLine(dst)
	require.Equal(t, "ef\n", string(dst[:got]))
	got = b.ReadLine(dst)
	require.Equal(t, "gh\n", string(dst[:got]))
}

func TestReadBytesDecrementsNewlineCount(t *testing.T) {
	b := MustNew(16)
	b.Write([]byte("a\nb\n"))
	require.EqualValues(t, 2, b.newlines)

	dst := make([]byte, 2)
	n := b.ReadBytes(dst)
	require.EqualValues(t, 2, n)
	require.Equal(t, "a\n", string(dst))
	require.EqualValues(t, 1, b.newlines)
}

func TestInvariantReadableWritableSumsToCapacityMinusOne(t *testing.T) {
	b := MustNew(64)
	inputs := []string{"abc\n", "defgh", "\n\n\n", "xyz", "\n"}
	for _, in := range inputs {
		b.Write([]byte(in))
		require.EqualValues(t, 63, b.Readable()+b.Writable())
	}
	dst := make([]byte, 64)
	for b.HasLine() {
		b.ReadLine(dst)
		require.EqualValues(t, 63, b.Readable()+b.Writable())
	}
}

func TestDrainToFDNoLoop(t *testing.T) {
	b := MustNew(16)
	b.Write([]byte("hello\n"))

	r, w, err := socketpair(t)
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	n, err := b.DrainToFD(int(w.Fd()))
	require.NoError(t, err)
	require.EqualValues(t, 6, n)
	require.EqualValues(t, 0, b.Readable())
}

func TestWriteFromFDZeroMeansEOF(t *testing.T) {
	b := MustNew(16)

	r, w, err := socketpair(t)
	require.NoError(t, err)
	defer r.Close()
	w.Close()

	n, err := b.WriteFromFD(int(r.Fd()))
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestWriteFromFDDistinguishesEAGAINFromEOF(t *testing.T) {
	b := MustNew(16)

	r, w, err := socketpair(t)
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	require.NoError(t, unix.SetNonblock(int(r.Fd()), true))

	// Peer is still open but has written nothing: a non-blocking read
	// returns EAGAIN, which must not be reported the same way as the
	// (0, nil) EOF case above.
	n, err := b.WriteFromFD(int(r.Fd()))
	require.Zero(t, n)
	require.ErrorIs(t, err, unix.EAGAIN)
}
