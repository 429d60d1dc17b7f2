package httpserver

import (
	"net/http"
	"strconv"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/mux"

	"github.com/and161185/conote/internal/convert"
	"github.com/and161185/conote/internal/errs"
)

// pathID parses a uuid path variable. A malformed id is reported as not
// found, like any other id the caller cannot see.
func pathID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := convert.ParseID(mux.Vars(r)[name])
	if err != nil {
		return uuid.Nil, errs.NotFound("note not found")
	}
	return id, nil
}

func caller(r *http.Request) uuid.UUID {
	id, _ := IdentityFromCtx(r.Context())
	return id.UserID
}

func (s *Server) listNotes(w http.ResponseWriter, r *http.Request) {
	var archived bool
	if v := r.URL.Query().Get("includeArchived"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			fail(w, http.StatusBadRequest, "includeArchived must be a boolean")
			return
		}
		archived = b
	}
	vs, err := s.notes.ListOwned(r.Context(), caller(r), archived)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "notes retrieved", convert.ToNotes(vs))
}

func (s *Server) createNote(w http.ResponseWriter, r *http.Request) {
	var req convert.CreateNoteRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.notes.Create(r.Context(), caller(r), req.Title, req.Content)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusCreated, "note created", convert.ToNote(*v))
}

func (s *Server) listShared(w http.ResponseWriter, r *http.Request) {
	vs, err := s.notes.ListShared(r.Context(), caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "shared notes retrieved", convert.ToNotes(vs))
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	vs, err := s.notes.Search(r.Context(), caller(r), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "search results", convert.ToNotes(vs))
}

func (s *Server) pendingShares(w http.ResponseWriter, r *http.Request) {
	ps, err := s.notes.Pending(r.Context(), caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "pending shares retrieved", convert.ToPending(ps))
}

func (s *Server) sharedByMe(w http.ResponseWriter, r *http.Request) {
	xs, err := s.notes.SharedByMe(r.Context(), caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "shared notes retrieved", convert.ToSharedByMe(xs))
}

func (s *Server) getNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.notes.Get(r.Context(), id, caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "note retrieved", convert.ToNote(*v))
}

func (s *Server) updateNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var req convert.UpdateNoteRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	v, err := s.notes.Update(r.Context(), id, caller(r), convert.FromUpdateNoteRequest(req))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "note updated", convert.ToNote(*v))
}

func (s *Server) deleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.notes.Delete(r.Context(), id, caller(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "note deleted", nil)
}

func (s *Server) revisions(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	rs, err := s.notes.Revisions(r.Context(), id, caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "revisions retrieved", convert.ToRevisions(rs))
}

func (s *Server) restore(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	revID, err := convert.ParseID(mux.Vars(r)["revisionId"])
	if err != nil {
		fail(w, http.StatusNotFound, "revision not found")
		return
	}
	v, err := s.notes.Restore(r.Context(), id, revID, caller(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ok(w, http.StatusOK, "revision restored", convert.ToNote(*v))
}
