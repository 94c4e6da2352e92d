package delivery

import (
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/thesislens/internal/common"
)

// MaxRecipients bounds one list.
const MaxRecipients = 50

// RecipientList is an ordered set of email addresses. The zero value is ready
// to use and safe for concurrent use.
type RecipientList struct {
	mu    sync.Mutex
	addrs []string
	seen  map[string]struct{}
}

// Add validates addr and appends it unless it is already present (compared
// case-insensitively). It reports whether the list changed.
func (l *RecipientList) Add(addr string) (bool, error) {
	addr = strings.TrimSpace(addr)
	v := common.NewValidator().Field("email", addr, common.Required, common.MaxLength(254), common.Email)
	if err := v.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen == nil {
		l.seen = make(map[string]struct{})
	}
	key := strings.ToLower(addr)
	if _, dup := l.seen[key]; dup {
		return false, nil
	}
	if len(l.addrs) >= MaxRecipients {
		return false, common.NewInvalidInputError("too many recipients")
	}
	l.seen[key] = struct{}{}
	l.addrs = append(l.addrs, addr)
	return true, nil
}

// All returns a copy in insertion order.
func (l *RecipientList) All() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.addrs))
	copy(out, l.addrs)
	return out
}

func (l *RecipientList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.addrs)
}

// Clear empties the list.
func (l *RecipientList) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.addrs = nil
	l.seen = nil
}

// SessionStore keeps one RecipientList per interactive session. State lives in
// memory only and is lost on restart.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*RecipientList
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*RecipientList)}
}

// Create opens a new session and returns its id.
func (s *SessionStore) Create() string {
	id := uuid.NewString()
	s.mu.Lock()
	s.sessions[id] = &RecipientList{}
	s.mu.Unlock()
	return id
}

// Get returns the list of a session.
func (s *SessionStore) Get(id string) (*RecipientList, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.sessions[id]
	return l, ok
}

// Delete forgets a session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
