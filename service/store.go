package service

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/avocatt/accident-analyzer/config"
	"github.com/avocatt/accident-analyzer/model"
)

// SessionStore is an in-memory store for completed analysis sessions and
// their briefings. Briefings stay retrievable by session ID until evicted or
// deleted; raw uploaded bytes are never stored here.
type SessionStore struct {
	sessions    map[string]*model.Session
	mu          sync.RWMutex
	maxSessions int // maximum sessions to keep, 0 = unlimited
}

func NewSessionStore(cfg *config.StoreConfig) *SessionStore {
	maxSessions := cfg.MaxSessions
	if maxSessions < 0 {
		maxSessions = 0
	}
	return &SessionStore{
		sessions:    make(map[string]*model.Session),
		maxSessions: maxSessions,
	}
}

func (s *SessionStore) Save(session *model.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.UpdatedAt = time.Now()
	s.sessions[session.ID] = session

	s.cleanupIfNeeded()
}

func (s *SessionStore) Get(id string) *model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *SessionStore) UpdateStatus(id, status string, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Status = status
		sess.ErrorMsg = errMsg
		sess.UpdatedAt = time.Now()
	}
}

// Complete attaches the analysis and briefing and marks the session done.
func (s *SessionStore) Complete(id string, analysis *model.CaseAnalysis, briefing *model.Briefing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.Analysis = analysis
		sess.Briefing = briefing
		sess.Status = model.StatusCompleted
		sess.ErrorMsg = ""
		sess.UpdatedAt = time.Now()
	}
}

// cleanupIfNeeded removes oldest sessions if the store exceeds maxSessions.
// Must be called with lock held.
func (s *SessionStore) cleanupIfNeeded() {
	if s.maxSessions <= 0 {
		return
	}
	if len(s.sessions) <= s.maxSessions {
		return
	}

	sessions := make([]*model.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})

	removeCount := len(sessions) - s.maxSessions
	for i := 0; i < removeCount; i++ {
		slog.Info("auto-cleaning old session",
			"session_id", sessions[i].ID,
			"created_at", sessions[i].CreatedAt,
		)
		delete(s.sessions, sessions[i].ID)
	}
}

// Count returns the number of sessions in the store.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
