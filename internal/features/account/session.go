package account

import "sync"

// Session — контекст процесса: режим хранения, текущая личность
// и выбранная для неё стратегия. Читают все, меняет менеджер личности;
// координатор экономики только обновляет снимок той же личности.
type Session struct {
	mu       sync.RWMutex
	mode     Mode
	identity *Identity
	strategy Strategy
	token    string
}

// NewSession создаёт пустой контекст в заданном режиме.
func NewSession(mode Mode) *Session {
	return &Session{mode: mode}
}

// Mode — текущий режим хранения.
func (s *Session) Mode() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// SetMode меняет режим хранения.
func (s *Session) SetMode(mode Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Identity — копия текущей личности. ok=false, если никто не вошёл.
func (s *Session) Identity() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, false
	}
	return s.identity.Clone(), true
}

// Strategy — стратегия хранения текущей личности (nil без сессии).
func (s *Session) Strategy() Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.strategy
}

// Current — личность и стратегия одним чтением.
func (s *Session) Current() (Identity, Strategy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return Identity{}, nil, false
	}
	return s.identity.Clone(), s.strategy, true
}

// Token — токен удалённой сессии (пусто для гостя и локального игрока).
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Establish устанавливает сессию. Стратегия выбирается один раз здесь.
func (s *Session) Establish(id Identity, strategy Strategy, token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := id.Clone()
	s.identity = &cp
	s.strategy = strategy
	s.token = token
}

// Update заменяет снимок, если это всё ещё та же личность.
// Устаревшие снимки (после выхода или смены аккаунта) отбрасываются.
func (s *Session) Update(id Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil || s.identity.ID != id.ID {
		return false
	}
	cp := id.Clone()
	s.identity = &cp
	return true
}

// End закрывает сессию и возвращает закрытую личность.
func (s *Session) End() (Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return Identity{}, false
	}
	prev := *s.identity
	s.identity = nil
	s.strategy = nil
	s.token = ""
	return prev, true
}
