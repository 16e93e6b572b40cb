package www

import (
	"net/http"

	"github.com/gorilla/sessions"

	"deliverydash/backend"
)

const (
	sessionName   = "deliverydash-operator"
	sessionMaxAge = 12 * 60 * 60
)

// operator is what the session cookie remembers about a logged-in user.
type operator struct {
	UserID   int64
	Username string
}

func newSessionStore(secret string) *sessions.CookieStore {
	if secret == "" {
		secret = "deliverydash-dev-secret"
	}
	s := sessions.NewCookieStore([]byte(secret))
	s.Options.Path = "/"
	s.Options.MaxAge = sessionMaxAge
	s.Options.HttpOnly = true
	s.Options.SameSite = http.SameSiteLaxMode
	return s
}

func (h *Handlers) operator(r *http.Request) (operator, bool) {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return operator{}, false
	}
	id, ok := session.Values["user_id"].(int64)
	if !ok || id == 0 {
		return operator{}, false
	}
	name, _ := session.Values["username"].(string)
	return operator{UserID: id, Username: name}, true
}

func (h *Handlers) isAuthenticated(r *http.Request) bool {
	_, ok := h.operator(r)
	return ok
}

func (h *Handlers) getUsername(r *http.Request) string {
	op, _ := h.operator(r)
	return op.Username
}

func (h *Handlers) startSession(w http.ResponseWriter, r *http.Request, u *backend.User) error {
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["user_id"] = u.ID
	session.Values["username"] = u.Username
	return session.Save(r, w)
}

func (h *Handlers) endSession(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.Get(r, sessionName)
	session.Options.MaxAge = -1
	session.Save(r, w)
}

// requireAuth answers 401 instead of redirecting; every guarded route is JSON.
func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.isAuthenticated(r) {
			h.jsonError(w, "login required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
