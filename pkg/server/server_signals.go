// pkg/server/server_signals.go
//go:build unix

package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// watchSignals converts process signals into server actions: SIGINT and
// SIGTERM request a graceful stop, SIGHUP re-reads the user database so
// out-of-band edits become visible without a restart. The returned
// function detaches the handler; Run defers it.
func (s *Server) watchSignals(ctx context.Context) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				s.log.Info().Msg("Context canceled, stopping server")
				s.Stop()
				return

			case <-done:
				return

			case sig := <-sigs:
				if sig == syscall.SIGHUP {
					s.log.Info().Msg("Reloading user database")
					if err := s.store.Reload(); err != nil {
						s.log.Error().Err(err).Msg("User database reload failed")
					}
					continue
				}

				s.log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
				s.Stop()
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
