// pkg/server/listener.go
//go:build unix

package server

import (
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"
)

// listener owns the accepting socket. It is a raw file descriptor
// rather than a net.Listener because readiness is driven by the shared
// poll table, not by a blocking Accept loop.
type listener struct {
	fd   int
	addr string
	port int

	closeOnce sync.Once
	closeErr  error
}

// openListener binds an IPv4 listening socket in non-blocking mode.
// Port 0 asks the kernel for an ephemeral port; the bound port is
// recorded so callers can discover it.
func openListener(addr string, port, backlog int) (*listener, error) {
	if port < 0 || port > 65535 {
		return nil, NewInvalidPortError(port)
	}

	ip := net.ParseIP(addr)
	if ip == nil {
		return nil, fmt.Errorf("invalid listen address %q", addr)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("listen address %q is not an IPv4 address", addr)
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("creating socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setting SO_REUSEADDR: %w", err)
	}

	sa := &unix.SockaddrInet4{Port: port}
	copy(sa.Addr[:], ip4)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("binding %s:%d: %w", addr, port, err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("listening on %s:%d: %w", addr, port, err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("setting non-blocking mode: %w", err)
	}

	// Read back the bound address to learn an ephemeral port.
	bound, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("reading bound address: %w", err)
	}
	if inet, ok := bound.(*unix.SockaddrInet4); ok {
		port = inet.Port
	}

	return &listener{fd: fd, addr: addr, port: port}, nil
}

// Addr reports the bound endpoint as host:port.
func (l *listener) Addr() string {
	return fmt.Sprintf("%s:%d", l.addr, l.port)
}

// Close releases the socket. Safe to call more than once.
func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = unix.Close(l.fd)
	})
	return l.closeErr
}

// sockaddrString renders a peer address for logging.
func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d:%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], a.Port)
	case *unix.SockaddrInet6:
		return fmt.Sprintf("[%s]:%d", net.IP(a.Addr[:]).String(), a.Port)
	default:
		return "unknown"
	}
}
