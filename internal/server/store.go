package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/image-watermark/pkg/session"
)

var errSessionNotFound = errors.New("session not found")

// entry is one hosted editing session. mu serializes requests against the
// same session so decode failures are attributed to the request that
// caused them.
type entry struct {
	id       string
	ctrl     *session.Controller
	mu       sync.Mutex
	failures chan error
	lastSeen time.Time
}

// drain discards failures left over from earlier requests
func (e *entry) drain() {
	for {
		select {
		case <-e.failures:
		default:
			return
		}
	}
}

// failure returns a decode failure reported since the last drain
func (e *entry) failure() error {
	select {
	case err := <-e.failures:
		return err
	default:
		return nil
	}
}

// Store keeps sessions by id and expires idle ones
type Store struct {
	mu       sync.Mutex
	sessions map[string]*entry
	ttl      time.Duration
	factory  func() *session.Controller
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore creates a store whose sessions come from factory
func NewStore(ttl time.Duration, factory func() *session.Controller, logger *slog.Logger) *Store {
	return &Store{
		sessions: make(map[string]*entry),
		ttl:      ttl,
		factory:  factory,
		logger:   logger,
		now:      time.Now,
	}
}

// create starts a new session and returns its entry
func (s *Store) create() *entry {
	e := &entry{
		id:       uuid.NewString(),
		ctrl:     s.factory(),
		failures: make(chan error, 8),
	}
	e.ctrl.AddListener(func(ev session.Event) {
		switch ev.Kind {
		case session.EventBaseFailed, session.EventVectorFailed, session.EventVectorRejected:
			select {
			case e.failures <- ev.Err:
			default:
			}
		}
	})

	s.mu.Lock()
	e.lastSeen = s.now()
	s.sessions[e.id] = e
	s.mu.Unlock()

	s.logger.Info("session created", "id", e.id)
	return e
}

// get returns the session with id and marks it as recently used
func (s *Store) get(id string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, errSessionNotFound
	}
	e.lastSeen = s.now()
	return e, nil
}

// remove closes and deletes a session
func (s *Store) remove(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return errSessionNotFound
	}
	e.ctrl.Close()
	s.logger.Info("session deleted", "id", id)
	return nil
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many
// were removed.
func (s *Store) Sweep() int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var expired []*entry
	for id, e := range s.sessions {
		if e.lastSeen.Before(cutoff) {
			expired = append(expired, e)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, e := range expired {
		e.ctrl.Close()
		s.logger.Info("session expired", "id", e.id)
	}
	return len(expired)
}

// Run sweeps expired sessions every interval until ctx is done
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("expired sessions swept", "count", n)
			}
		}
	}
}

// Close closes every session
func (s *Store) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*entry)
	s.mu.Unlock()

	for _, e := range sessions {
		e.ctrl.Close()
	}
}
