package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/amoylab/webconsole/internal/console/auth"
)

// UserSession is the logical session of a browser, shared by all of its
// tabs. Widgets cache their models here.
type UserSession struct {
	id string

	mu        sync.RWMutex
	principal auth.Principal
	locale    language.Tag
	theme     string
	attrs     map[string]any
	lastSeen  time.Time
}

// NewUserSession creates a user session with the given id.
func NewUserSession(id string) *UserSession {
	return &UserSession{
		id:       id,
		locale:   language.Und,
		attrs:    make(map[string]any),
		lastSeen: time.Now(),
	}
}

func (u *UserSession) ID() string {
	return u.id
}

func (u *UserSession) Principal() auth.Principal {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.principal
}

func (u *UserSession) SetPrincipal(p auth.Principal) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.principal = p
}

// Locale returns the selected locale, language.Und if none was chosen.
func (u *UserSession) Locale() language.Tag {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.locale
}

func (u *UserSession) SetLocale(tag language.Tag) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.locale = tag
}

// Theme returns the selected theme id, empty for the default theme.
func (u *UserSession) Theme() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.theme
}

func (u *UserSession) SetTheme(id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.theme = id
}

func (u *UserSession) Attr(key string) (any, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	v, ok := u.attrs[key]
	return v, ok
}

// AttrOrSet returns the attribute stored under key, storing the result of
// create first if there is none.
func (u *UserSession) AttrOrSet(key string, create func() any) any {
	u.mu.Lock()
	defer u.mu.Unlock()
	if v, ok := u.attrs[key]; ok {
		return v
	}
	v := create()
	u.attrs[key] = v
	return v
}

func (u *UserSession) SetAttr(key string, v any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.attrs[key] = v
}

func (u *UserSession) DeleteAttr(key string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.attrs, key)
}

// Touch records activity.
func (u *UserSession) Touch() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lastSeen = time.Now()
}

func (u *UserSession) LastSeen() time.Time {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.lastSeen
}

// UserSessions maps browser cookie values to user sessions.
type UserSessions struct {
	logger   *zap.Logger
	mu       sync.RWMutex
	sessions map[string]*UserSession
}

// NewUserSessions creates an empty table.
func NewUserSessions(logger *zap.Logger) *UserSessions {
	return &UserSessions{
		logger:   logger.Named("session.users"),
		sessions: make(map[string]*UserSession),
	}
}

// GetOrCreate returns the user session for id, creating it if unknown. An
// empty id is replaced by a generated one.
func (t *UserSessions) GetOrCreate(id string) (*UserSession, bool) {
	if id == "" {
		id = uuid.NewString()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if u, ok := t.sessions[id]; ok {
		u.Touch()
		return u, false
	}
	u := NewUserSession(id)
	t.sessions[id] = u
	return u, true
}

func (t *UserSessions) Get(id string) (*UserSession, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	u, ok := t.sessions[id]
	return u, ok
}

func (t *UserSessions) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, id)
}

func (t *UserSessions) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}

// Sweep removes user sessions idle for longer than idle that no live
// Connection refers to.
func (t *UserSessions) Sweep(idle time.Duration, inUse map[*UserSession]bool) int {
	cutoff := time.Now().Add(-idle)
	removed := 0
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, u := range t.sessions {
		if inUse[u] || u.LastSeen().After(cutoff) {
			continue
		}
		delete(t.sessions, id)
		removed++
	}
	if removed > 0 {
		t.logger.Debug("removed idle user sessions", zap.Int("count", removed))
	}
	return removed
}
