package httpserver

import (
	"net/http"

	"github.com/and161185/conote/internal/convert"
)

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req convert.RegisterRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, u, err := s.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "account created", convert.ToSession(tok, u))
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req convert.LoginRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, u, err := s.auth.LoginWithIP(r.Context(), req.Email, req.Password, remoteIP(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "logged in", convert.ToSession(tok, u))
}

func (s *Server) externalLogin(w http.ResponseWriter, r *http.Request) {
	var req convert.ExternalLoginRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	tok, u, err := s.auth.ExternalLogin(r.Context(), req.Assertion)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "logged in", convert.ToSession(tok, u))
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFromCtx(r.Context())
	u, err := s.auth.Me(r.Context(), id.UserID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "current user", convert.ToUser(*u))
}
