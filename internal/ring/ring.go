// Package ring implements the fixed-capacity byte queue used for every
// per-endpoint buffer in the controller: one instance per rx/tx direction of
// the device and of every connected client.
package ring

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DefaultCapacity is the ring size used when a configuration does not
// override it. It must stay a power of two (see New).
const DefaultCapacity = 1024

// Buffer is a fixed-capacity byte ring with incremental newline tracking.
// One byte of capacity is always sacrificed so that full and empty states
// remain distinguishable; see Writable.
//
// Buffer is not safe for concurrent use. The controller only ever touches a
// given Buffer from the single event-loop goroutine.
type Buffer struct {
	data     []byte
	mask     uint32
	head     uint32
	tail     uint32
	newlines uint32
}

// New allocates a Buffer with the given capacity, which must be a power of
// two. A non-power-of-two capacity is a fatal configuration error rather
// than a silent correctness bug (spec.md §9), so New returns an error the
// caller is expected to treat as fatal at startup.
func New(capacity uint32) (*Buffer, error) {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("ring: capacity %d is not a power of two", capacity)
	}
	return &Buffer{
		data: make([]byte, capacity),
		mask: capacity - 1,
	}, nil
}

// MustNew is New but panics on error, for call sites that already validated
// the capacity (e.g. a compiled-in constant).
func MustNew(capacity uint32) *Buffer {
	b, err := New(capacity)
	if err != nil {
		panic(err)
	}
	return b
}

func (b *Buffer) cap32() uint32 { return uint32(len(b.data)) }

// Readable returns the number of bytes currently available to read.
func (b *Buffer) Readable() uint32 {
	return (b.head - b.tail) & b.mask
}

// Writable returns the number of bytes that can be written without loss.
func (b *Buffer) Writable() uint32 {
	return (b.tail - 1 - b.head) & b.mask
}

// HasLine reports whether at least one complete line is buffered.
func (b *Buffer) HasLine() bool {
	return b.newlines > 0
}

// Write copies up to min(len(p), Writable()) bytes into the ring, wrapping
// as needed, and returns the number of bytes actually accepted. Newlines in
// the accepted prefix are counted incrementally.
func (b *Buffer) Write(p []byte) uint32 {
	n := uint32(len(p))
	if w := b.Writable(); n > w {
		n = w
	}
	for i := uint32(0); i < n; i++ {
		c := p[i]
		b.data[b.head] = c
		b.head = (b.head + 1) & b.mask
		if c == '\n' {
			b.newlines++
		}
	}
	return n
}

// WriteFromFD performs at most one read(2) into the unused contiguous
// region starting at head and rescans the newline count afterwards. It
// never loops: a short read simply returns fewer bytes than requested. A
// return of (0, nil) means EOF/disconnect on fd. A non-nil err (e.g.
// EAGAIN on a non-blocking fd, or EINTR) is distinct from EOF and must not
// be treated as one by the caller — only (0, nil) is EOF.
func (b *Buffer) WriteFromFD(fd int) (int, error) {
	w := b.Writable()
	if w == 0 {
		return 0, nil
	}
	// Largest contiguous run starting at head, bounded by writable space.
	run := b.cap32() - b.head
	if run > w {
		run = w
	}
	n, err := unix.Read(fd, b.data[b.head:b.head+run])
	if err != nil {
		return 0, err
	}
	if n > 0 {
		b.head = (b.head + uint32(n)) & b.mask
		b.rescan()
	}
	return n, nil
}

// DrainToFD writes the single contiguous region starting at tail (up to the
// buffer end, or up to head if the readable region does not wrap) in one
// write(2) call and advances tail by the number of bytes the kernel
// accepted. It never loops.
func (b *Buffer) DrainToFD(fd int) (int, error) {
	if b.Readable() == 0 {
		return 0, nil
	}
	var run uint32
	if b.head > b.tail {
		run = b.head - b.tail
	} else {
		run = b.cap32() - b.tail
	}
	n, err := unix.Write(fd, b.data[b.tail:b.tail+run])
	if n < 0 {
		n = 0
	}
	if n > 0 {
		b.tail = (b.tail + uint32(n)) & b.mask
	}
	return n, err
}

// ReadBytes copies up to len(dst) readable bytes into dst, advancing tail
// and decrementing the newline count for every '\n' consumed.
func (b *Buffer) ReadBytes(dst []byte) uint32 {
	n := uint32(len(dst))
	if r := b.Readable(); n > r {
		n = r
	}
	for i := uint32(0); i < n; i++ {
		c := b.data[b.tail]
		b.tail = (b.tail + 1) & b.mask
		if c == '\n' && b.newlines > 0 {
			b.newlines--
		}
		dst[i] = c
	}
	return n
}

// ReadLine copies bytes up to and including the first '\n' into dst and
// advances tail past it. It returns 0 without mutating the buffer if no
// complete line is buffered. dst must be at least as large as the ring's
// capacity; a shorter destination is a caller error (spec.md §4.1).
func (b *Buffer) ReadLine(dst []byte) uint32 {
	if b.newlines == 0 {
		return 0
	}
	t := b.tail
	readable := b.Readable()
	for i := uint32(0); i < readable; i++ {
		c := b.data[t]
		t = (t + 1) & b.mask
		dst[i] = c
		if c == '\n' {
			b.newlines--
			b.tail = t
			return i + 1
		}
	}
	// readable > 0 and newlines > 0 imply a '\n' must have been found;
	// reaching here means the newline count and buffer content disagree.
	panic("ring: newlines counter out of sync with buffer contents")
}

// rescan recomputes the newline count over the current readable region. It
// is used after any write path (WriteFromFD) that populates the buffer via
// a raw OS read rather than the byte-scanning Write path.
func (b *Buffer) rescan() {
	b.newlines = 0
	n := b.Readable()
	t := b.tail
	for i := uint32(0); i < n; i++ {
		if b.data[t] == '\n' {
			b.newlines++
		}
		t = (t + 1) & b.mask
	}
}
