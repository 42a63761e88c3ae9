package services

import (
	"context"
	"sync"
	"time"

	"cardex-server/models"
	"cardex-server/utils/errors"

	log "github.com/sirupsen/logrus"
)

const maxExchangesPerSession = 8

// Session is one user's working set on this instance: a private catalog
// view and the user's exchange attempts.
type Session struct {
	UserID   string
	Catalog  *CardCatalog
	OpenedAt time.Time

	ledger ContactAdder
	cards  CardGetter
	events EventPublisher
	now    func() time.Time

	mu        sync.Mutex
	lastSeen  time.Time
	exchanges map[string]*Exchange
	closed    bool
}

// StartExchange creates an exchange on transport and moves it to
// Presenting. When the session is at its limit the least recently updated
// exchange is abandoned and dropped.
func (s *Session) StartExchange(transport models.Transport) (*Exchange, models.Presentation, error) {
	if !transport.Valid() {
		return nil, models.Presentation{}, errors.Withf(errors.ErrInvalidInput, "unknown transport %q", transport)
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, models.Presentation{}, errors.Withf(errors.ErrConflict, "session closed")
	}
	if len(s.exchanges) >= maxExchangesPerSession {
		s.evictOldestLocked()
	}
	ex := newExchange(s.UserID, transport, s.ledger, s.cards, s.events)
	ex.now = s.now
	s.exchanges[ex.ID()] = ex
	s.mu.Unlock()

	p, err := ex.Present()
	if err != nil {
		return nil, models.Presentation{}, err
	}
	return ex, p, nil
}

// Exchange looks up one of the session's exchanges.
func (s *Session) Exchange(id string) (*Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ex, ok := s.exchanges[id]
	if !ok {
		return nil, errors.Withf(errors.ErrNotFound, "exchange %s", id)
	}
	return ex, nil
}

// RemoveExchange abandons and forgets an exchange.
func (s *Session) RemoveExchange(id string) (models.ExchangeSnapshot, error) {
	s.mu.Lock()
	ex, ok := s.exchanges[id]
	delete(s.exchanges, id)
	s.mu.Unlock()
	if !ok {
		return models.ExchangeSnapshot{}, errors.Withf(errors.ErrNotFound, "exchange %s", id)
	}
	return ex.Abandon(), nil
}

func (s *Session) evictOldestLocked() {
	var oldest *Exchange
	for _, ex := range s.exchanges {
		if oldest == nil || ex.lastUpdate().Before(oldest.lastUpdate()) {
			oldest = ex
		}
	}
	if oldest != nil {
		oldest.Abandon()
		delete(s.exchanges, oldest.ID())
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = s.now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// close abandons every exchange. The session is unusable afterwards.
func (s *Session) close() {
	s.mu.Lock()
	exchanges := s.exchanges
	s.exchanges = map[string]*Exchange{}
	s.closed = true
	s.mu.Unlock()
	for _, ex := range exchanges {
		ex.Abandon()
	}
	s.Catalog.Invalidate()
}

// SessionManager owns the sessions of this instance. It is created once at
// startup and passed to whoever needs it.
type SessionManager struct {
	cards       *CardService
	ledger      ContactAdder
	events      EventPublisher
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(cards *CardService, ledger ContactAdder, events EventPublisher, idleTimeout time.Duration) *SessionManager {
	if events == nil {
		events = NopPublisher{}
	}
	return &SessionManager{
		cards:       cards,
		ledger:      ledger,
		events:      events,
		idleTimeout: idleTimeout,
		now:         time.Now,
		sessions:    make(map[string]*Session),
	}
}

// Open returns the user's session, creating it on first use.
func (m *SessionManager) Open(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		s.touch()
		return s
	}
	now := m.now()
	s := &Session{
		UserID:    userID,
		Catalog:   NewCardCatalog(m.cards),
		OpenedAt:  now,
		ledger:    m.ledger,
		cards:     m.cards,
		events:    m.events,
		now:       m.now,
		lastSeen:  now,
		exchanges: make(map[string]*Exchange),
	}
	s.Catalog.now = m.now
	m.sessions[userID] = s
	log.Infof("Opened session for user %s", userID)
	return s
}

// Get returns the user's session without creating one. A hit counts as
// activity for the reaper.
func (m *SessionManager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if ok {
		s.touch()
	}
	return s, ok
}

// Close ends the user's session. Reports whether one was open.
func (m *SessionManager) Close(userID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()
	if ok {
		s.close()
		log.Infof("Closed session for user %s", userID)
	}
	return ok
}

// Len is the number of open sessions.
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// InvalidateCatalogs drops every session's catalog view so the next read
// reloads. Called when any card changes.
func (m *SessionManager) InvalidateCatalogs() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()
	for _, s := range sessions {
		s.Catalog.Invalidate()
	}
}

// Reap closes sessions idle for longer than the idle timeout.
func (m *SessionManager) Reap() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.idleTimeout)
	var idle []string
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			idle = append(idle, id)
		}
	}
	m.mu.Unlock()
	for _, id := range idle {
		m.Close(id)
	}
	return len(idle)
}

// Run reaps idle sessions until ctx is done, then closes all sessions.
func (m *SessionManager) Run(ctx context.Context) {
	interval := m.idleTimeout / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case <-ticker.C:
			if n := m.Reap(); n > 0 {
				log.Infof("Reaped %d idle sessions", n)
			}
		}
	}
}

func (m *SessionManager) closeAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Close(id)
	}
}
