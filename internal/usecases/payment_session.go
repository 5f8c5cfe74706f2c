package usecases

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"stablepay.backend/internal/domain/entities"
	domainerrors "stablepay.backend/internal/domain/errors"
)

const sessionEventBuffer = 16

// Session is one running payment workflow. Events are delivered in order and
// the channel is closed when the workflow ends or is cancelled.
type Session struct {
	RecordID uuid.UUID
	PayerID  uuid.UUID

	events chan entities.PaymentEvent
	retry  chan struct{}
	cancel context.CancelFunc
	done   chan struct{}

	mu            sync.Mutex
	awaitingFunds bool
}

func newSession(recordID, payerID uuid.UUID, cancel context.CancelFunc) *Session {
	return &Session{
		RecordID: recordID,
		PayerID:  payerID,
		events:   make(chan entities.PaymentEvent, sessionEventBuffer),
		retry:    make(chan struct{}, 1),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// ID returns the payment record id the session works on
func (s *Session) ID() uuid.UUID {
	return s.RecordID
}

// Events returns the session's event stream
func (s *Session) Events() <-chan entities.PaymentEvent {
	return s.events
}

// Done is closed after the workflow goroutine has exited
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Cancel stops the workflow. The record keeps its last persisted status.
func (s *Session) Cancel() {
	s.cancel()
}

// AwaitingFunds reports whether the workflow is waiting for the payer's wallet
func (s *Session) AwaitingFunds() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingFunds
}

// RetryAfterFunding asks the workflow to re-execute the intent now.
func (s *Session) RetryAfterFunding() error {
	if !s.AwaitingFunds() {
		return fmt.Errorf("%w: payment is not awaiting funds", domainerrors.ErrConflict)
	}
	select {
	case s.retry <- struct{}{}:
	default:
		// a retry is already queued
	}
	return nil
}

func (s *Session) setAwaitingFunds(v bool) {
	s.mu.Lock()
	s.awaitingFunds = v
	s.mu.Unlock()
}

func (s *Session) send(ctx context.Context, ev entities.PaymentEvent) bool {
	select {
	case s.events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// SessionRegistry tracks running sessions by payment record id
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewSessionRegistry creates an empty registry
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{sessions: make(map[uuid.UUID]*Session)}
}

func (r *SessionRegistry) add(s *Session) {
	r.mu.Lock()
	r.sessions[s.RecordID] = s
	r.mu.Unlock()
}

func (r *SessionRegistry) remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Get returns the running session of a record
func (r *SessionRegistry) Get(id uuid.UUID) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Len returns the number of running sessions
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CancelAll cancels every running session
func (r *SessionRegistry) CancelAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		s.Cancel()
	}
}
