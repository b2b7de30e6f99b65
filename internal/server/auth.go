package server

import (
	"encoding/json"
	"net/http"
)

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type resultResponse struct {
	Result string `json:"result"`
}

// handleLogin compares the posted credentials against the configured
// users and, on match, mints a session token and sets it as the token
// cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, resultResponse{Result: "error"})

		return
	}

	if !s.conf.Authenticate(req.Name, req.Password) {
		writeJSON(w, http.StatusOK, resultResponse{Result: "error"})

		return
	}

	token, err := newSessionToken()
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("failure minting session token: %v", err)
		}
		writeJSON(w, http.StatusInternalServerError, resultResponse{Result: "error"})

		return
	}

	s.tokMu.Lock()
	s.tokens[token] = struct{}{}
	s.tokMu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   tokenMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, resultResponse{Result: "ok"})
}

// handleLogout invalidates the presented session token and clears the
// cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(tokenCookieName); err == nil {
		s.tokMu.Lock()
		delete(s.tokens, c.Value)
		s.tokMu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	writeJSON(w, http.StatusOK, resultResponse{Result: "ok"})
}

// requireAuth gates a handler behind a valid session cookie, responding
// 401 Unauthorized otherwise.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(tokenCookieName)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)

			return
		}

		s.tokMu.Lock()
		_, ok := s.tokens[c.Value]
		s.tokMu.Unlock()

		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
