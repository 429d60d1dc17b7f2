package httpserver

import (
	"net"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/and161185/conote/internal/bearer"
)

func routeTemplate(r *http.Request) string {
	if rt := mux.CurrentRoute(r); rt != nil {
		if tpl, err := rt.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// accessLog records method, route, status and duration for every request.
// Only metadata is logged, never bodies.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		route := routeTemplate(r)
		s.metrics.Requests.WithLabelValues(route, r.Method, strconv.Itoa(m.Code)).Inc()
		s.metrics.Duration.WithLabelValues(route, r.Method).Observe(m.Duration.Seconds())
		s.log.Info("http",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("code", m.Code),
			zap.Int64("bytes", m.Written),
			zap.Duration("dur", m.Duration),
			zap.String("remote", r.RemoteAddr),
		)
	})
}

// recoverer turns a handler panic into a 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.log.Error("panic",
					zap.Any("reason", rec),
					zap.ByteString("stack", debug.Stack()),
					zap.String("path", r.URL.Path),
				)
				fail(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireAuth resolves the bearer credential and stores the caller in the
// request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, found := bearer.FromHeader(r)
		if !found {
			fail(w, http.StatusUnauthorized, "authentication required")
			return
		}
		id, err := s.auth.Authenticate(r.Context(), tok)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
