package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"uiagent/internal/domain"
)

// DefaultSessionIdle is how long an unclaimed request waits for its stream.
const DefaultSessionIdle = 10 * time.Minute

type sessionEntry struct {
	req     domain.AgentRequest
	claimed bool
}

// SessionStore holds prepared requests until their single streaming consumer
// claims them. A claimed entry stays visible until Delete so the stream
// endpoint can refuse a second consumer.
type SessionStore struct {
	mu      sync.Mutex
	entries map[string]*sessionEntry
	idle    time.Duration
	bus     domain.EventBus
	logger  *slog.Logger
	now     func() time.Time
}

// NewSessionStore creates a store. bus may be nil.
func NewSessionStore(idle time.Duration, bus domain.EventBus, logger *slog.Logger) *SessionStore {
	if idle <= 0 {
		idle = DefaultSessionIdle
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SessionStore{
		entries: make(map[string]*sessionEntry),
		idle:    idle,
		bus:     bus,
		logger:  logger,
		now:     time.Now,
	}
}

// NewSessionID returns a random UUID string.
func NewSessionID() string {
	return uuid.NewString()
}

// Create validates req, assigns an id when it has none and stores it.
// An id that is already present yields ErrDuplicate.
func (s *SessionStore) Create(ctx context.Context, req domain.AgentRequest) (domain.AgentRequest, error) {
	if err := req.Validate(); err != nil {
		return domain.AgentRequest{}, err
	}
	if req.ID == "" {
		req.ID = NewSessionID()
	}
	req.CreatedAt = s.now()

	s.mu.Lock()
	if _, exists := s.entries[req.ID]; exists {
		s.mu.Unlock()
		return domain.AgentRequest{}, domain.NewDomainError("SessionStore.Create", domain.ErrDuplicate, req.ID)
	}
	s.entries[req.ID] = &sessionEntry{req: req}
	s.mu.Unlock()

	publishEvent(s.bus, ctx, domain.EventSessionCreated, req.ID, map[string]bool{"snapshot": req.HasSnapshot()})
	return req, nil
}

// Take claims the request for streaming. Unknown and already-claimed ids
// yield ErrSessionNotFound.
func (s *SessionStore) Take(id string) (domain.AgentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok || e.claimed {
		return domain.AgentRequest{}, domain.NewDomainError("SessionStore.Take", domain.ErrSessionNotFound, id)
	}
	e.claimed = true
	return e.req, nil
}

// Delete removes the entry and reports whether it existed.
func (s *SessionStore) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	_, ok := s.entries[id]
	delete(s.entries, id)
	s.mu.Unlock()

	if ok {
		publishEvent(s.bus, ctx, domain.EventSessionDeleted, id, nil)
	}
	return ok
}

// Len returns the number of stored entries, claimed or not.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep evicts unclaimed entries older than the idle window and returns how
// many were removed. Claimed entries belong to a live stream.
func (s *SessionStore) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.idle)

	s.mu.Lock()
	var expired []string
	for id, e := range s.entries {
		if !e.claimed && e.req.CreatedAt.Before(cutoff) {
			expired = append(expired, id)
			delete(s.entries, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		publishEvent(s.bus, ctx, domain.EventSessionExpired, id, nil)
	}
	if len(expired) > 0 {
		s.logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// RunJanitor sweeps every interval until ctx is done.
func (s *SessionStore) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}
