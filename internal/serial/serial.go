// Package serial opens the character device and configures it for raw,
// line-oriented I/O at a fixed baud rate. It is the controller's only
// collaborator that talks termios ioctls directly.
package serial

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Open acquires path read/write without making it the controlling
// terminal, puts it into raw mode (8-N-1, no canonical mode, no echo, no
// signal generation, no flow control beyond what the application performs
// at the line level) and sets the line speed to baud. The returned fd is
// owned by the caller.
func Open(path string, baud int) (int, error) {
	speed, err := baudToUnix(baud)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return -1, fmt.Errorf("serial: open %s: %w", path, err)
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("serial: tcgetattr %s: %w", path, err)
	}

	makeRaw(t)
	t.Cflag &^= unix.CBAUD
	t.Cflag |= speed
	t.Ispeed = uint32(speed)
	t.Ospeed = uint32(speed)

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("serial: tcsetattr %s: %w", path, err)
	}

	return fd, nil
}

// makeRaw clears the termios flags that would otherwise impose canonical
// line editing, echo, signal generation or flow control on the link,
// equivalent to cfmakeraw(3) plus an explicit 8-N-1 character size.
func makeRaw(t *unix.Termios) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
}

// baudToUnix maps an integer baud rate to the platform's termios speed
// constant. An unrecognized rate is a fatal configuration error (spec.md
// §6): the caller is expected to abort the process rather than fall back
// to a default, unlike lossier adapters that silently pick a nearby speed.
func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 0:
		return unix.B0, nil
	case 50:
		return unix.B50, nil
	case 75:
		return unix.B75, nil
	case 110:
		return unix.B110, nil
	case 134:
		return unix.B134, nil
	case 150:
		return unix.B150, nil
	case 200:
		return unix.B200, nil
	case 300:
		return unix.B300, nil
	case 600:
		return unix.B600, nil
	case 1200:
		return unix.B1200, nil
	case 1800:
		return unix.B1800, nil
	case 2400:
		return unix.B2400, nil
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	case 460800:
		return unix.B460800, nil
	case 500000:
		return unix.B500000, nil
	case 576000:
		return unix.B576000, nil
	case 921600:
		return unix.B921600, nil
	case 1000000:
		return unix.B1000000, nil
	case 1152000:
		return unix.B1152000, nil
	case 1500000:
		return unix.B1500000, nil
	case 2000000:
		return unix.B2000000, nil
	case 2500000:
		return unix.B2500000, nil
	case 3000000:
		return unix.B3000000, nil
	case 3500000:
		return unix.B3500000, nil
	case 4000000:
		return unix.B4000000, nil
	default:
		return 0, fmt.Errorf("serial: invalid baud rate: %d", baud)
	}
}
