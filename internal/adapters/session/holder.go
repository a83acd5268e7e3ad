package session

import (
	"strings"
	"sync"

	"stairs-live/internal/domain"
)

// Holder хранит личность текущего зрителя. Её можно сменить в любой момент.
type Holder struct {
	mu      sync.RWMutex
	session domain.Session
}

var _ domain.SessionSource = (*Holder)(nil)

// NewHolder создаёт хранилище с начальной сессией.
func NewHolder(initial domain.Session) *Holder {
	return &Holder{session: normalize(initial)}
}

// Current возвращает текущую сессию.
func (h *Holder) Current() domain.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session
}

// Set меняет сессию. Пустой email означает выход.
func (h *Holder) Set(s domain.Session) domain.Session {
	s = normalize(s)
	h.mu.Lock()
	h.session = s
	h.mu.Unlock()
	return s
}

func normalize(s domain.Session) domain.Session {
	return domain.Session{
		DonorID: strings.TrimSpace(s.DonorID),
		Email:   strings.TrimSpace(s.Email),
	}
}
