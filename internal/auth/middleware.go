package auth

import (
	"log/slog"
	"net/http"

	"github.com/tagboard/tagboard/internal/shared"
)

// Middleware loads the Redis session for each request, attempts a
// remember-me login for anonymous visitors, refreshes the identity of logged-in
// ones and commits the session before the handler writes its response.
func Middleware(sessions *shared.SessionManager, service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := sessions.Load(r.Context(), r)
			if err != nil {
				logger.Error("load session", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			scope := Scope{Session: sess, Cookies: HTTPCookies{W: w, R: r}}
			if CurrentUser(sess).IsAnonymous() {
				service.TryAutoLogin(r.Context(), scope)
			} else if err := service.Refresh(r.Context(), sess); err != nil {
				logger.Error("refresh session user", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if err := sessions.Commit(r.Context(), w, sess); err != nil {
				logger.Warn("commit session", slog.Any("error", err))
			}
			ctx := shared.ContextWithSession(r.Context(), sess)
			next.ServeHTTP(w, r.WithContext(ctx))
			if err := sessions.Save(r.Context(), sess); err != nil {
				logger.Warn("save session", slog.Any("error", err))
			}
		})
	}
}
