package app

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/klokku/fintrack/internal/config"
	"github.com/klokku/fintrack/internal/rest"
	"github.com/klokku/fintrack/pkg/user"
	log "github.com/sirupsen/logrus"
)

const userIdHeader = "X-User-Id"

// SetupMiddleware wires all HTTP middlewares for the application.
func SetupMiddleware(r *mux.Router, deps *Dependencies, cfg config.Application) {
	r.Use(userMiddleware)
}

// userMiddleware propagates the X-User-Id header into the request context.
// API requests without it are rejected.
func userMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		uid := strings.TrimSpace(req.Header.Get(userIdHeader))
		if uid == "" {
			if strings.HasPrefix(req.URL.Path, "/api/") {
				log.Debugf("rejecting %s %s without %s", req.Method, req.URL.Path, userIdHeader)
				rest.WriteError(w, http.StatusUnauthorized, "Missing "+userIdHeader+" header", "")
				return
			}
			next.ServeHTTP(w, req)
			return
		}
		log.Debugf("request %s %s for user %s", req.Method, req.URL.Path, uid)
		ctx := user.WithUser(req.Context(), user.User{Uid: uid})
		next.ServeHTTP(w, req.WithContext(ctx))
	})
}
