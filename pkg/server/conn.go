// pkg/server/conn.go
//go:build unix

package server

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/switchyard/switchyard/pkg/poller"
	"github.com/switchyard/switchyard/pkg/stringutil"
	"github.com/switchyard/switchyard/pkg/userdb"
)

// Protocol verbs and responses. The wire format is line-oriented text:
// one request per line, one response line per request that produces
// output. Lines may end in \n or \r\n.
const (
	cmdAuth = "AUTH"
	cmdPing = "PING"
	cmdQuit = "QUIT"

	respPong         = "PONG\n"
	respBye          = "BYE\n"
	respBadRequest   = "ERR bad-request\n"
	respInvalidCreds = "ERR invalid-credentials\n"
	respLocked       = "ERR account-locked\n"
	respInternal     = "ERR internal\n"
)

// conn is one accepted client. Between a readiness event and the end of
// the job serving it, the descriptor is out of the poll table, so at
// most one worker touches a conn at a time. closed is atomic because
// teardown may race a worker that is finishing up.
type conn struct {
	fd     int
	id     string
	remote string

	// buf accumulates bytes until a complete line is available.
	buf bytes.Buffer

	authed   bool
	username string
	role     userdb.Role

	closed atomic.Bool
}

// readAvailable drains the socket into the line buffer until the kernel
// has nothing more. Reports eof when the peer shut down its end.
func (c *conn) readAvailable(chunkSize int) (eof bool, err error) {
	chunk := make([]byte, chunkSize)
	for {
		n, err := unix.Read(c.fd, chunk)
		switch {
		case n > 0:
			c.buf.Write(chunk[:n])
		case n == 0 && err == nil:
			return true, nil
		case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
			return false, nil
		case errors.Is(err, unix.EINTR):
			continue
		default:
			return false, err
		}
	}
}

// nextLine extracts one complete line from the buffer, without the
// trailing newline and optional carriage return.
func (c *conn) nextLine() (string, bool) {
	i := bytes.IndexByte(c.buf.Bytes(), '\n')
	if i < 0 {
		return "", false
	}
	line := string(c.buf.Next(i + 1))
	return strings.TrimRight(line, "\r\n"), true
}

// writeAll writes the whole reply, waiting for writability when the
// socket buffer is full. The deadline bounds the total wait.
func (c *conn) writeAll(p []byte, deadline time.Duration) error {
	end := time.Now().Add(deadline)
	for len(p) > 0 {
		n, err := unix.Write(c.fd, p)
		if n > 0 {
			p = p[n:]
			continue
		}
		switch {
		case errors.Is(err, unix.EINTR):
			continue
		case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
			remain := time.Until(end)
			if remain <= 0 {
				return os.ErrDeadlineExceeded
			}
			wait := min(remain, 100*time.Millisecond)
			pfd := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLOUT}}
			if _, perr := unix.Poll(pfd, int(wait.Milliseconds())); perr != nil && !errors.Is(perr, unix.EINTR) {
				return perr
			}
		default:
			return err
		}
	}
	return nil
}

// serveConn is the job body run by a pool worker for one readiness
// event. It reads whatever arrived, answers every complete line, and
// re-arms the descriptor unless the connection ended.
func (s *Server) serveConn(arg any) {
	c := arg.(*conn)
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Str("conn_id", c.id).
				Msg("Connection handler panicked")
			s.closeConn(c)
		}
	}()

	eof, err := c.readAvailable(s.readBufSize)
	if err != nil {
		s.log.Debug().Err(err).Str("conn_id", c.id).Msg("Read failed")
		s.closeConn(c)
		return
	}

	if closed := s.processBuffered(c); closed {
		return
	}
	if eof {
		s.closeConn(c)
		return
	}

	if err := s.poller.Add(c.fd, poller.Readable, s.connReady, c); err != nil {
		s.log.Debug().Err(err).Str("conn_id", c.id).Msg("Could not re-arm connection")
		s.closeConn(c)
	}
}

// processBuffered answers every complete line sitting in the buffer.
// Returns true when the connection was closed along the way.
func (s *Server) processBuffered(c *conn) bool {
	for {
		line, ok := c.nextLine()
		if !ok {
			// A line that cannot fit the buffer will never complete.
			if c.buf.Len() > s.maxLineLen {
				_ = c.writeAll([]byte(respBadRequest), s.connDeadline)
				s.log.Warn().Str("conn_id", c.id).Int("buffered", c.buf.Len()).Msg("Request line too long")
				s.closeConn(c)
				return true
			}
			return false
		}

		reply, quit := s.handleCommand(c, line)
		if reply != "" {
			if err := c.writeAll([]byte(reply), s.connDeadline); err != nil {
				s.log.Debug().Err(err).Str("conn_id", c.id).Msg("Write failed")
				s.closeConn(c)
				return true
			}
		}
		if quit {
			s.closeConn(c)
			return true
		}
	}
}

// handleCommand interprets one request line. Blank lines are ignored.
func (s *Server) handleCommand(c *conn, line string) (reply string, quit bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}

	switch strings.ToUpper(fields[0]) {
	case cmdPing:
		return respPong, false

	case cmdQuit:
		return respBye, true

	case cmdAuth:
		if len(fields) != 3 {
			// Do not echo the line itself; it may hold a password.
			s.log.Debug().Str("conn_id", c.id).Int("fields", len(fields)).Msg("Malformed AUTH request")
			return respBadRequest, false
		}
		role, err := s.store.Authenticate(fields[1], fields[2])
		switch {
		case errors.Is(err, userdb.ErrLocked):
			s.log.Warn().
				Str("conn_id", c.id).
				Str("user", fields[1]).
				Msg("Login attempt on locked account")
			return respLocked, false
		case errors.Is(err, userdb.ErrInvalidCredentials):
			return respInvalidCreds, false
		case err != nil:
			s.log.Error().Err(err).Str("conn_id", c.id).Msg("Authentication failed")
			return respInternal, false
		}
		c.authed = true
		c.username = fields[1]
		c.role = role
		s.log.Info().
			Str("conn_id", c.id).
			Str("user", c.username).
			Str("role", string(role)).
			Msg("Client authenticated")
		return "OK " + string(role) + "\n", false

	default:
		s.log.Debug().
			Str("conn_id", c.id).
			Str("line", stringutil.Ellipsis(line, 64)).
			Msg("Unknown command")
		return respBadRequest, false
	}
}
