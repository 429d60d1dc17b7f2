// Package httpserver exposes the note, share and identity services over a
// JSON HTTP API and mounts the realtime endpoint.
package httpserver

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/and161185/conote/internal/service"
)

const maxBody = 1 << 20

// Deps are the collaborators of Server. Realtime and Gatherer are optional.
type Deps struct {
	Auth     service.AuthService
	Notes    service.NoteService
	Shares   service.ShareService
	Realtime http.Handler
	Gatherer prometheus.Gatherer
	Metrics  *Metrics
	Log      *zap.Logger
	// Dev includes internal error detail in 500 responses.
	Dev bool
}

// Server wires services into HTTP handlers.
type Server struct {
	auth    service.AuthService
	notes   service.NoteService
	shares  service.ShareService
	ws      http.Handler
	gather  prometheus.Gatherer
	metrics *Metrics
	log     *zap.Logger
	dev     bool
}

// New constructs a Server with injected services.
func New(d Deps) *Server {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = NewMetrics(nil)
	}
	return &Server{
		auth: d.Auth, notes: d.Notes, shares: d.Shares, ws: d.Realtime,
		gather: d.Gatherer, metrics: d.Metrics, log: d.Log, dev: d.Dev,
	}
}

// Handler builds the router. Literal /notes paths are registered before
// /notes/{id} so they are not captured as ids.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.recoverer, s.accessLog)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fail(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ok(w, http.StatusOK, "ok", nil)
	})
	if s.gather != nil {
		r.Methods(http.MethodGet).Path("/metrics").Handler(promhttp.HandlerFor(s.gather, promhttp.HandlerOpts{}))
	}
	if s.ws != nil {
		// the hub authenticates the upgrade itself
		r.Path("/ws").Handler(s.ws)
	}

	a := r.PathPrefix("/auth").Subrouter()
	a.Methods(http.MethodPost).Path("/register").HandlerFunc(s.register)
	a.Methods(http.MethodPost).Path("/login").HandlerFunc(s.login)
	a.Methods(http.MethodPost).Path("/external").HandlerFunc(s.externalLogin)
	a.Methods(http.MethodGet).Path("/me").Handler(s.requireAuth(http.HandlerFunc(s.me)))

	n := r.PathPrefix("/notes").Subrouter()
	n.Use(s.requireAuth)
	n.Methods(http.MethodGet).Path("").HandlerFunc(s.listNotes)
	n.Methods(http.MethodPost).Path("").HandlerFunc(s.createNote)
	n.Methods(http.MethodGet).Path("/shared").HandlerFunc(s.listShared)
	n.Methods(http.MethodGet).Path("/search").HandlerFunc(s.search)
	n.Methods(http.MethodGet).Path("/pending-shares").HandlerFunc(s.pendingShares)
	n.Methods(http.MethodGet).Path("/shared-by-me").HandlerFunc(s.sharedByMe)
	n.Methods(http.MethodPost).Path("/share/accept/{token}").HandlerFunc(s.acceptShare)
	n.Methods(http.MethodPost).Path("/share/decline/{token}").HandlerFunc(s.declineShare)
	n.Methods(http.MethodPost).Path("/share/{shareId}/revoke").HandlerFunc(s.revokeShare)
	n.Methods(http.MethodGet).Path("/{id}").HandlerFunc(s.getNote)
	n.Methods(http.MethodPut).Path("/{id}").HandlerFunc(s.updateNote)
	n.Methods(http.MethodDelete).Path("/{id}").HandlerFunc(s.deleteNote)
	n.Methods(http.MethodPost).Path("/{id}/share").HandlerFunc(s.shareNote)
	n.Methods(http.MethodGet).Path("/{id}/revisions").HandlerFunc(s.revisions)
	n.Methods(http.MethodPost).Path("/{id}/revisions/{revisionId}/restore").HandlerFunc(s.restore)
	return r
}
