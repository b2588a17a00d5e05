package session

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// State of a session handle.
type State int

const (
	Idle State = iota
	InUse
	CloseRequested
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InUse:
		return "in-use"
	case CloseRequested:
		return "close-requested"
	case Closed:
		return "closed"
	}
	return "unknown"
}

var (
	// ErrClosed is returned when a closed (or closing) session is marked in use.
	ErrClosed = errors.New("session is closed")
	// ErrInUse is returned when a session already held by one user is marked
	// in use again.
	ErrInUse = errors.New("session is already in use")
)

// Session is a live authenticated handle to one endpoint. The underlying
// connection is closed at most once, and never while an operation holds the
// session in use.
type Session struct {
	name string
	conn io.Closer

	mu    sync.Mutex
	state State
}

func New(name string, conn io.Closer) *Session {
	return &Session{name: name, conn: conn}
}

// Name identifies the endpoint in logs.
func (s *Session) Name() string { return s.name }

// Conn returns the protocol connection held by the session.
func (s *Session) Conn() io.Closer { return s.conn }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MarkInUse gives the caller exclusive use of the session until
// MarkNotInUse.
func (s *Session) MarkInUse() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Idle:
		s.state = InUse
	case InUse:
		return errors.Wrap(ErrInUse, s.name)
	case CloseRequested, Closed:
		return errors.Wrap(ErrClosed, s.name)
	}
	return nil
}

// MarkNotInUse releases the session, closing it if a close was requested
// while it was held.
func (s *Session) MarkNotInUse() {
	s.mu.Lock()
	mustClose := false
	switch s.state {
	case InUse:
		s.state = Idle
	case CloseRequested:
		s.state = Closed
		mustClose = true
	}
	s.mu.Unlock()

	if mustClose {
		s.forceClose()
	}
}

// RequestClose closes an idle session now, or defers the close until the
// current user releases it.
func (s *Session) RequestClose() {
	s.mu.Lock()
	mustClose := false
	switch s.state {
	case Idle:
		s.state = Closed
		mustClose = true
	case InUse:
		s.state = CloseRequested
	}
	s.mu.Unlock()

	if mustClose {
		s.forceClose()
	}
}

func (s *Session) forceClose() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Close(); err != nil {
		log.WithField("session", s.name).Warnf("Error when closing session: %v", err)
		return
	}
	log.WithField("session", s.name).Debug("Session closed")
}
