package server

import (
	"github.com/rs/zerolog"

	"github.com/switchyard/switchyard/pkg/cleanup"
	"github.com/switchyard/switchyard/pkg/userdb"
)

// Deps holds dependencies for the server.
// This pattern enables dependency injection and easier testing.
type Deps struct {
	// Store authenticates clients. The server registers its closure in
	// the registry; the caller must not close it separately.
	Store *userdb.Store

	// Registry collects teardown actions. The caller may register
	// additional entries (the log sink, say) before or after New; they
	// all run in one Execute pass when Run returns.
	Registry *cleanup.Registry

	// Logger for structured logging (injected by caller).
	Logger zerolog.Logger
}
