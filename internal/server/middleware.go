package server

import (
	"net/http"

	"github.com/synthlane/reload-watcher/internal/server/middleware"
)

// applyMiddleware applies the middleware chain to the handler
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	return middleware.LoggingMiddleware(s.logger)(handler)
}
