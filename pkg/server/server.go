// pkg/server/server.go
//go:build unix

// Package server wires the dispatch pool, the poll-driven event loop,
// the user database and the cleanup registry into one network service
// speaking a small line-oriented protocol.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/switchyard/switchyard/pkg/cleanup"
	"github.com/switchyard/switchyard/pkg/config"
	"github.com/switchyard/switchyard/pkg/dispatch"
	"github.com/switchyard/switchyard/pkg/poller"
	"github.com/switchyard/switchyard/pkg/userdb"
)

// Teardown priorities. Execution is highest first: stop producing
// events, drain the workers, then release what they were using. The
// log sink goes last so teardown itself stays observable.
const (
	PriorityPoller      = 100
	PriorityPool        = 90
	PriorityListener    = 80
	PriorityConnections = 75
	PriorityStore       = 70
	PriorityLogSink     = 10
)

// Tuning defaults, overridable through server.tuning.* keys.
const (
	defaultAcceptBurst  = 8
	defaultReadBuffer   = 4096
	defaultConnDeadline = 5 * time.Second
)

// Server is the running service. Create it with New, drive it with Run,
// stop it with Stop or a signal.
type Server struct {
	cfg  config.ServerConfig
	deps Deps
	log  zerolog.Logger

	pool     *dispatch.Pool
	poller   *poller.Poller
	listener *listener
	store    *userdb.Store

	mu    sync.Mutex
	conns map[int]*conn

	acceptBurst  int
	readBufSize  int
	maxLineLen   int
	connDeadline time.Duration
}

// New builds the server: worker pool, poll table, listening socket, and
// the teardown entries that unwind them again. On error every resource
// acquired so far is released.
func New(cfg config.ServerConfig, deps Deps) (*Server, error) {
	if deps.Store == nil {
		return nil, WrapInit(fmt.Errorf("%w: user store", ErrMissingDependency))
	}
	if deps.Registry == nil {
		return nil, WrapInit(fmt.Errorf("%w: cleanup registry", ErrMissingDependency))
	}

	log := deps.Logger.With().Str("component", "server").Logger()

	pool, err := dispatch.NewPool(dispatch.PoolConfig{
		Workers:       cfg.Workers,
		QueueCapacity: cfg.QueueSize,
		Logger:        deps.Logger,
	})
	if err != nil {
		return nil, WrapInit(err)
	}

	ln, err := openListener(cfg.Addr, cfg.Port, cfg.Backlog)
	if err != nil {
		pool.Shutdown()
		return nil, WrapListen(err)
	}

	// The poll table gets one extra slot so MaxClients counts clients,
	// not the listening socket sharing their table.
	s := &Server{
		cfg:          cfg,
		deps:         deps,
		log:          log,
		pool:         pool,
		poller:       poller.New(cfg.MaxClients+1, deps.Logger),
		listener:     ln,
		store:        deps.Store,
		conns:        make(map[int]*conn),
		acceptBurst:  cfg.TuningInt("accept_burst", defaultAcceptBurst),
		readBufSize:  cfg.TuningInt("read_buffer", defaultReadBuffer),
		connDeadline: cfg.TuningDuration("conn_deadline", defaultConnDeadline),
	}
	s.maxLineLen = s.readBufSize

	if err := s.poller.Add(ln.fd, poller.Readable, s.acceptReady, nil); err != nil {
		pool.Shutdown()
		ln.Close()
		return nil, WrapInit(fmt.Errorf("watching listener: %w", err))
	}

	if err := s.registerTeardown(); err != nil {
		s.poller.Close()
		pool.Shutdown()
		ln.Close()
		return nil, WrapInit(err)
	}

	log.Info().
		Str("addr", ln.addr).
		Int("port", ln.port).
		Int("workers", pool.Workers()).
		Int("max_clients", cfg.MaxClients).
		Msg("Server initialized")

	return s, nil
}

func (s *Server) registerTeardown() error {
	reg := s.deps.Registry
	steps := []struct {
		name     string
		priority int
		action   cleanup.Action
	}{
		{"event loop", PriorityPoller, cleanup.Proc(s.poller.Close)},
		{"worker pool", PriorityPool, cleanup.Proc(s.pool.Shutdown)},
		{"listener", PriorityListener, cleanup.Op(s.listener.Close)},
		{"connections", PriorityConnections, cleanup.Proc(s.closeConns)},
		{"user store", PriorityStore, cleanup.Op(s.store.Close)},
	}
	for _, step := range steps {
		if err := reg.Register(step.name, step.priority, step.action); err != nil {
			return fmt.Errorf("registering %s teardown: %w", step.name, err)
		}
	}
	return nil
}

// Run drives the event loop until Stop is called, a shutdown signal
// arrives, or the context is canceled. It then executes the teardown
// registry exactly once and reports any runtime and teardown errors
// together.
func (s *Server) Run(ctx context.Context) error {
	stopSignals := s.watchSignals(ctx)
	defer stopSignals()

	s.log.Info().
		Str("addr", s.listener.addr).
		Int("port", s.listener.port).
		Msg("Server is ready and accepting connections")

	err := s.poller.Run(s.cfg.PollTimeout)
	if err != nil {
		s.log.Error().Err(err).Msg("Event loop failed")
		err = WrapRuntime(err)
	}

	s.log.Info().Msg("Initiating graceful shutdown")
	if execErr := s.deps.Registry.Execute(); execErr != nil {
		s.log.Error().Err(execErr).Msg("Teardown reported failures")
		err = multierr.Append(err, WrapCleanup(execErr))
	}

	s.log.Info().Msg("Server shutdown complete")
	return err
}

// Stop asks the event loop to exit. It returns immediately; Run
// performs the actual teardown. Safe to call any number of times.
func (s *Server) Stop() {
	s.poller.Stop()
}

// Port reports the bound listen port, useful when configured as 0.
func (s *Server) Port() int {
	return s.listener.port
}

// Addr reports the listen address as host:port.
func (s *Server) Addr() string {
	return s.listener.Addr()
}

// ActiveConns reports how many accepted connections are being tracked.
func (s *Server) ActiveConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// acceptReady runs on the event loop when the listening socket is
// readable. It accepts a bounded burst so one busy accept queue cannot
// starve connected clients.
func (s *Server) acceptReady(fd int, events poller.Events, data any) {
	if !events.Has(poller.Readable) {
		s.log.Error().
			Str("events", events.String()).
			Msg("Listener entered an error state, stopping")
		s.Stop()
		return
	}

	for i := 0; i < s.acceptBurst; i++ {
		nfd, sa, err := unix.Accept(s.listener.fd)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK):
				return
			case errors.Is(err, unix.ECONNABORTED) || errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.EMFILE) || errors.Is(err, unix.ENFILE):
				s.log.Warn().Err(err).Msg("Out of file descriptors, pausing accepts")
				return
			default:
				s.log.Error().Err(err).Msg("Accept failed, stopping")
				s.Stop()
				return
			}
		}
		s.trackConn(nfd, sa)
	}
}

// trackConn registers a freshly accepted descriptor with the poll
// table. Clients beyond the table capacity are dropped.
func (s *Server) trackConn(fd int, sa unix.Sockaddr) {
	if err := unix.SetNonblock(fd, true); err != nil {
		s.log.Warn().Err(err).Msg("Could not set connection non-blocking")
		unix.Close(fd)
		return
	}

	c := &conn{fd: fd, id: uuid.NewString(), remote: sockaddrString(sa)}

	s.mu.Lock()
	s.conns[fd] = c
	active := len(s.conns)
	s.mu.Unlock()

	if err := s.poller.Add(fd, poller.Readable, s.connReady, c); err != nil {
		s.log.Warn().
			Err(err).
			Str("remote", c.remote).
			Msg("Connection table full, dropping client")
		s.closeConn(c)
		return
	}

	s.log.Debug().
		Str("conn_id", c.id).
		Str("remote", c.remote).
		Int("active", active).
		Msg("Client connected")
}

// connReady runs on the event loop when a client descriptor reports
// activity. The descriptor is taken out of the table before the job is
// queued so level-triggered polling cannot dispatch the same bytes to
// two workers.
func (s *Server) connReady(fd int, events poller.Events, data any) {
	c := data.(*conn)

	// Hangup with nothing readable means the peer is gone. When data is
	// still pending the read path runs so the tail bytes get served.
	if !events.Has(poller.Readable) {
		s.log.Debug().
			Str("conn_id", c.id).
			Str("events", events.String()).
			Msg("Connection error state")
		s.closeConn(c)
		return
	}

	if err := s.poller.Remove(fd); err != nil {
		return
	}

	job := dispatch.Job{Kind: "conn", Fn: s.serveConn, Arg: c}
	if err := s.pool.Submit(job); err != nil {
		s.log.Warn().
			Err(err).
			Str("conn_id", c.id).
			Msg("Dispatch rejected, dropping connection")
		s.closeConn(c)
	}
}

// closeConn releases one connection. Safe to call from a worker and
// from teardown; only the first caller closes the descriptor.
func (s *Server) closeConn(c *conn) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}

	_ = s.poller.Remove(c.fd)
	_ = unix.Close(c.fd)

	s.mu.Lock()
	delete(s.conns, c.fd)
	active := len(s.conns)
	s.mu.Unlock()

	s.log.Debug().
		Str("conn_id", c.id).
		Str("remote", c.remote).
		Int("active", active).
		Msg("Connection closed")
}

// closeConns drops every connection still tracked. Runs during
// teardown, after the workers have drained.
func (s *Server) closeConns() {
	s.mu.Lock()
	remaining := make([]*conn, 0, len(s.conns))
	for _, c := range s.conns {
		remaining = append(remaining, c)
	}
	s.mu.Unlock()

	for _, c := range remaining {
		s.closeConn(c)
	}

	if len(remaining) > 0 {
		s.log.Info().Int("count", len(remaining)).Msg("Closed remaining connections")
	}
}
