package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/and161185/conote/internal/convert"
	"github.com/and161185/conote/internal/model"
)

func (s *Server) shareNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req convert.ShareRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	rc, err := s.shares.Share(r.Context(), caller(r), id, req.Email, model.Permission(req.Permission))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "note shared", convert.ToShareReceipt(rc))
}

func (s *Server) acceptShare(w http.ResponseWriter, r *http.Request) {
	v, err := s.shares.Accept(r.Context(), mux.Vars(r)["token"], caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "share accepted", convert.ToNote(*v))
}

func (s *Server) declineShare(w http.ResponseWriter, r *http.Request) {
	if err := s.shares.Decline(r.Context(), mux.Vars(r)["token"], caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "share declined", nil)
}

func (s *Server) revokeShare(w http.ResponseWriter, r *http.Request) {
	id, err := convert.ParseID(mux.Vars(r)["shareId"])
	if err != nil {
		fail(w, http.StatusNotFound, "share not found")
		return
	}
	if err := s.shares.Revoke(r.Context(), id, caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "share revoked", nil)
}
