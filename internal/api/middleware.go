package api

import (
	"errors"
	"fmt"
	"net/http"
)

func (s *GoPlazaApp) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				s.log.Error("panic", "error", panicError, "method", r.Method, "path", r.URL.Path)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				s.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// authMiddleware rejects requests without a valid token.
func (s *GoPlazaApp) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.authenticate(r)
		if err != nil {
			s.log.Debug("failed to authenticate request", "error", err, "path", r.URL.Path)
			errResp := NewUnauthorizedError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		ctx := WithIdentity(r.Context(), identity)
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// identityMiddleware attaches the identity when the request carries a valid
// token and lets anonymous requests through untouched.
func (s *GoPlazaApp) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.authenticate(r)
		switch {
		case err == nil:
			r = r.WithContext(WithIdentity(r.Context(), identity))
		case !errors.Is(err, errNoToken):
			s.log.Debug("ignoring invalid token", "error", err, "path", r.URL.Path)
		}

		next.ServeHTTP(w, r)
	})
}
