// Package netio creates the raw TCP listener and accepted-connection file
// descriptors the controller multiplexes alongside the serial device. It
// stays at the same syscall layer as internal/serial so that the event
// loop's single poll(2) call can wait on every endpoint without also
// fighting the Go runtime's own network poller.
package netio

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Listener is a bound, listening socket plus its resolved address. One
// Listener exists per address family the controller binds to.
type Listener struct {
	FD   int
	Addr unix.Sockaddr
}

// ListenWildcard binds and listens on the wildcard address for port, for
// both IPv4 and IPv6 with SO_REUSEADDR set and the platform's maximum
// backlog. IPv6 is bound with IPV6_V6ONLY so the two families produce
// independent sockets, matching the semantics of resolving a NULL/AI_PASSIVE
// host through getaddrinfo for AF_UNSPEC.
func ListenWildcard(port int) ([]*Listener, error) {
	listeners := make([]*Listener, 0, 2)

	v4, err := listenFamily(unix.AF_INET, port)
	if err != nil {
		return nil, fmt.Errorf("netio: listen ipv4 wildcard on %d: %w", port, err)
	}
	listeners = append(listeners, v4)

	v6, err := listenFamily(unix.AF_INET6, port)
	if err != nil {
		closeAll(listeners)
		return nil, fmt.Errorf("netio: listen ipv6 wildcard on %d: %w", port, err)
	}
	listeners = append(listeners, v6)

	return listeners, nil
}

func closeAll(listeners []*Listener) {
	for _, l := range listeners {
		unix.Close(l.FD)
	}
}

func listenFamily(family, port int) (*Listener, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}

	var sa unix.Sockaddr
	switch family {
	case unix.AF_INET:
		sa = &unix.SockaddrInet4{Port: port}
	case unix.AF_INET6:
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("setsockopt IPV6_V6ONLY: %w", err)
		}
		sa = &unix.SockaddrInet6{Port: port}
	default:
		unix.Close(fd)
		return nil, fmt.Errorf("unsupported address family %d", family)
	}

	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind: %w", err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &Listener{FD: fd, Addr: sa}, nil
}

// Accept accepts exactly one pending connection and returns its fd and a
// human-readable peer address. It must only be called once the listener's
// fd has been reported readable.
func Accept(listenFD int) (fd int, peer string, err error) {
	connFD, sa, err := unix.Accept4(listenFD, 0)
	if err != nil {
		return -1, "", fmt.Errorf("accept: %w", err)
	}
	return connFD, sockaddrString(sa), nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("%s:%d", ip.String(), a.Port)
	case *unix.SockaddrInet6:
		ip := net.IP(a.Addr[:])
		return fmt.Sprintf("[%s]:%d", ip.String(), a.Port)
	default:
		return "unknown"
	}
}

// AddrString renders a Listener's bound address the same way Accept
// renders a peer address, for startup log lines.
func AddrString(sa unix.Sockaddr) string {
	return sockaddrString(sa)
}
