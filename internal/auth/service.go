package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tagboard/tagboard/internal/access"
	"github.com/tagboard/tagboard/internal/shared"
	"github.com/tagboard/tagboard/internal/users"
)

// Session keys holding the current identity.
const (
	SessionUserKey     = "user"
	SessionLoggedInKey = "logged-in"
)

// RememberFor is the lifetime of the remember-me cookie.
const RememberFor = 365 * 24 * time.Hour

// UserFinder resolves accounts for login.
type UserFinder interface {
	FindByNameOrEmail(ctx context.Context, identifier string) (*users.User, error)
}

// SessionStore is the session-scoped key/value storage. *shared.Session
// satisfies it.
type SessionStore interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)
}

// renewer is implemented by session stores that can move to a new
// identifier, such as *shared.Session.
type renewer interface {
	Renew()
}

// Scope bundles the per-request state auth operates on.
type Scope struct {
	Session SessionStore
	Cookies CookieJar
}

// Options configures login policy.
type Options struct {
	StaffActivation bool
	NeedEmail       bool
	CookieName      string
}

// Service wraps authentication business rules. It keeps no per-request state;
// everything request-specific travels in Scope.
type Service struct {
	users  UserFinder
	codec  *TokenCodec
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a new Service.
func NewService(finder UserFinder, codec *TokenCodec, opts Options, logger *slog.Logger) *Service {
	if opts.CookieName == "" {
		opts.CookieName = "auth"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: finder, codec: codec, opts: opts, logger: logger, now: time.Now}
}

// Login validates credentials and makes the user current.
func (s *Service) Login(ctx context.Context, scope Scope, name, password string, remember bool) (access.Identity, error) {
	user, err := s.Authenticate(ctx, name, password)
	if err != nil {
		return access.Identity{}, err
	}
	if remember && scope.Cookies != nil && s.codec != nil {
		token, err := s.codec.Encode(name, password)
		if err != nil {
			return access.Identity{}, err
		}
		scope.Cookies.SetCookie(s.opts.CookieName, token, s.now().Add(RememberFor))
	}
	identity := user.Identity()
	renew(scope.Session)
	s.SetCurrentUser(scope.Session, &identity)
	return identity, nil
}

// Authenticate checks credentials and account state without touching the
// session.
func (s *Service) Authenticate(ctx context.Context, name, password string) (*users.User, error) {
	user, err := s.users.FindByNameOrEmail(ctx, name)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewAuthenticationError(shared.ErrInvalidCredentials, "Invalid username")
		}
		return nil, fmt.Errorf("auth: find user: %w", err)
	}
	if !VerifyPassword(password, user.PasswordSalt, user.PasswordHash) {
		return nil, shared.NewAuthenticationError(shared.ErrInvalidCredentials, "Invalid password")
	}
	if s.opts.StaffActivation && !user.StaffConfirmed {
		return nil, shared.NewAuthenticationError(shared.ErrPendingActivation, "Staff hasn't confirmed your registration yet")
	}
	if user.Banned {
		return nil, shared.NewAuthenticationError(shared.ErrBanned, "You are banned")
	}
	if s.opts.NeedEmail && user.EmailConfirmed == "" {
		return nil, shared.NewAuthenticationError(shared.ErrEmailRequired, "You need confirmed e-mail address to use this feature.")
	}
	return user, nil
}

// Logout resets the session to anonymous and drops the remember cookie.
func (s *Service) Logout(scope Scope) {
	renew(scope.Session)
	s.SetCurrentUser(scope.Session, nil)
	if scope.Cookies != nil {
		scope.Cookies.ClearCookie(s.opts.CookieName)
	}
}

// TryAutoLogin logs in from the remember cookie. Any failure, including a
// missing or tampered cookie, reports false and leaves the session alone.
func (s *Service) TryAutoLogin(ctx context.Context, scope Scope) bool {
	if scope.Cookies == nil || s.codec == nil {
		return false
	}
	token, ok := scope.Cookies.Cookie(s.opts.CookieName)
	if !ok || token == "" {
		return false
	}
	name, password, err := s.codec.Decode(token)
	if err != nil {
		s.logger.Debug("auto login rejected token", slog.Any("error", err))
		return false
	}
	if _, err := s.Login(ctx, scope, name, password, false); err != nil {
		s.logger.Debug("auto login failed", slog.String("user", name), slog.Any("error", err))
		return false
	}
	return true
}

// Refresh reloads the logged-in account so that bans, rank changes and
// revoked activations take effect on live sessions. Accounts that no longer
// exist or may no longer log in drop back to anonymous.
func (s *Service) Refresh(ctx context.Context, sess SessionStore) error {
	current := CurrentUser(sess)
	if current.IsAnonymous() {
		return nil
	}
	user, err := s.users.FindByNameOrEmail(ctx, current.Name)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		s.logger.Info("session user vanished", slog.String("user", current.Name))
		renew(sess)
		s.SetCurrentUser(sess, nil)
		return nil
	case err != nil:
		return fmt.Errorf("auth: refresh user: %w", err)
	}
	if user.Banned || (s.opts.StaffActivation && !user.StaffConfirmed) {
		s.logger.Info("session user locked out", slog.String("user", user.Name))
		renew(sess)
		s.SetCurrentUser(sess, nil)
		return nil
	}
	identity := user.Identity()
	s.SetCurrentUser(sess, &identity)
	return nil
}

func renew(sess SessionStore) {
	if r, ok := sess.(renewer); ok {
		r.Renew()
	}
}

// CurrentUser returns the identity stored in the session, or a fresh
// anonymous identity.
func (s *Service) CurrentUser(sess SessionStore) access.Identity {
	return CurrentUser(sess)
}

// SetCurrentUser stores identity in the session; nil means anonymous.
func (s *Service) SetCurrentUser(sess SessionStore, identity *access.Identity) {
	SetCurrentUser(sess, identity)
}

// CurrentUser reads the session snapshot.
func CurrentUser(sess SessionStore) access.Identity {
	if sess == nil || sess.Get(SessionLoggedInKey) != "1" {
		return access.AnonymousIdentity()
	}
	var identity access.Identity
	if err := json.Unmarshal([]byte(sess.Get(SessionUserKey)), &identity); err != nil {
		return access.AnonymousIdentity()
	}
	return identity
}

// SetCurrentUser writes the session snapshot.
func SetCurrentUser(sess SessionStore, identity *access.Identity) {
	if sess == nil {
		return
	}
	current := access.AnonymousIdentity()
	if identity != nil {
		current = *identity
	}
	data, err := json.Marshal(current)
	if err != nil {
		sess.Delete(SessionUserKey)
		sess.Set(SessionLoggedInKey, "0")
		return
	}
	sess.Set(SessionUserKey, string(data))
	if current.Rank != access.Anonymous {
		sess.Set(SessionLoggedInKey, "1")
	} else {
		sess.Set(SessionLoggedInKey, "0")
	}
}
