package crawler

import (
	"weibocrawl/pkg/fetch"
)

// State is a target's position in the crawl state machine
type State string

const (
	StateResolve  State = "RESOLVE_CONTAINER"
	StatePaginate State = "PAGINATE"
	StateDone     State = "DONE"
	StateAborted  State = "ABORTED"
)

// Session is the per-target crawl state. The sticky proxy is not part of
// it; that belongs to the Worker and outlives a single target.
type Session struct {
	Target      string
	HTTP        *fetch.Session
	ContainerID string
	// Cursor is empty before the first page
	Cursor string
}

func newSession(target string) *Session {
	return &Session{Target: target, HTTP: fetch.NewSession()}
}
