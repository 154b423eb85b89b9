package stats

import (
	"time"

	"github.com/vellumhq/vellum-go/lib/collab"
	"github.com/vellumhq/vellum-go/lib/store"
	"github.com/vellumhq/vellum-go/lib/ws"
)

// StoreChecker reports whether the version store still answers.
type StoreChecker struct {
	Store store.VersionStore
}

func (s StoreChecker) Name() string {
	return "store"
}

func (s StoreChecker) Check() Check {
	err := s.Store.Ping()

	if err != nil {
		return Check{
			Status: StatusFail,
			Output: err.Error(),
		}
	}

	return Check{
		Status:     StatusPass,
		Observed:   "ok",
		ObservedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// SessionChecker reports the number of open collaborative sessions.
type SessionChecker struct {
	Coordinator *collab.Coordinator
}

func (s SessionChecker) Name() string {
	return "sessions"
}

func (s SessionChecker) Check() Check {
	open := 0
	for _, snapshot := range s.Coordinator.ListSessions() {
		if snapshot.State != collab.StateClosed {
			open++
		}
	}

	return Check{
		Status:   StatusPass,
		Observed: open,
	}
}

// SocketChecker reports the number of attached websocket clients.
type SocketChecker struct {
	Hub *ws.Hub
}

func (s SocketChecker) Name() string {
	return "sockets"
}

func (s SocketChecker) Check() Check {
	return Check{
		Status:   StatusPass,
		Observed: s.Hub.ClientCount(),
	}
}
