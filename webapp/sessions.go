package webapp

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"chunk-quiz/quiz"
)

const sessionCookie = "chunkquiz_session"

type sessionEntry struct {
	session  *quiz.Session
	lastSeen time.Time
}

// sessionStore keeps one quiz session per browser in memory. Sessions idle
// for longer than ttl are dropped the next time a session is created.
type sessionStore struct {
	ttl     time.Duration
	create  func() (*quiz.Session, error)
	now     func() time.Time
	entries map[string]*sessionEntry
	mu      sync.Mutex
}

func newSessionStore(ttl time.Duration, create func() (*quiz.Session, error)) *sessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &sessionStore{
		ttl:     ttl,
		create:  create,
		now:     time.Now,
		entries: make(map[string]*sessionEntry),
	}
}

// get returns the caller's session, starting a new one (and setting the
// cookie on w) when the request has none or it has expired.
func (st *sessionStore) get(w http.ResponseWriter, r *http.Request) (*quiz.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	now := st.now()
	if c, err := r.Cookie(sessionCookie); err == nil {
		if e, ok := st.entries[c.Value]; ok && now.Sub(e.lastSeen) <= st.ttl {
			e.lastSeen = now
			return e.session, nil
		}
	}

	st.pruneLocked(now)
	session, err := st.create()
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	st.entries[id] = &sessionEntry{session: session, lastSeen: now}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return session, nil
}

// lookup returns an existing session without creating one.
func (st *sessionStore) lookup(r *http.Request) (*quiz.Session, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	e, ok := st.entries[c.Value]
	if !ok || st.now().Sub(e.lastSeen) > st.ttl {
		return nil, false
	}
	e.lastSeen = st.now()
	return e.session, true
}

func (st *sessionStore) pruneLocked(now time.Time) {
	for id, e := range st.entries {
		if now.Sub(e.lastSeen) > st.ttl {
			delete(st.entries, id)
		}
	}
}

func (st *sessionStore) count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.entries)
}
