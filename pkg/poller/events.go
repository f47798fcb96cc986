//go:build unix

package poller

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// Events is a bitmask of descriptor readiness conditions. Interest masks
// and observed readiness share the type.
type Events int16

const (
	// Readable signals data can be read without blocking.
	Readable Events = unix.POLLIN
	// Writable signals a write would not block.
	Writable Events = unix.POLLOUT
	// Error signals an error condition on the descriptor. Always
	// reported, whether requested or not.
	Error Events = unix.POLLERR
	// Hangup signals the peer closed its end. Always reported.
	Hangup Events = unix.POLLHUP
	// Invalid signals the descriptor was not open at wait time. Always
	// reported.
	Invalid Events = unix.POLLNVAL
)

// Has reports whether any condition in mask is set.
func (e Events) Has(mask Events) bool { return e&mask != 0 }

func (e Events) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	for _, c := range []struct {
		bit  Events
		name string
	}{
		{Readable, "readable"},
		{Writable, "writable"},
		{Error, "error"},
		{Hangup, "hangup"},
		{Invalid, "invalid"},
	} {
		if e.Has(c.bit) {
			parts = append(parts, c.name)
		}
	}
	if rest := e &^ (Readable | Writable | Error | Hangup | Invalid); rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint16(rest)))
	}
	return strings.Join(parts, "|")
}
