// Package auth reads the caller's identity from the signed session cookie.
//
// Sign-in itself happens in the account service; this package only trusts a
// cookie it can verify and exposes the user it names to handlers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dalemusser/taskhub/internal/app/system/apperr"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	userIDKey   = "user_id"
	userNameKey = "user_name"
)

// SessionUser is the identity injected into r.Context().
type SessionUser struct {
	ID   string
	Name string
}

// ObjectID parses the user's ID. ok is false for a malformed ID.
func (u *SessionUser) ObjectID() (primitive.ObjectID, bool) {
	oid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return primitive.NilObjectID, false
	}
	return oid, true
}

// UserFetcher reloads a user on each request so renamed or removed accounts
// take effect without waiting for the cookie to expire.
type UserFetcher interface {
	FetchUser(ctx context.Context, userID string) *SessionUser
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// SessionManager verifies session cookies and loads the user they name.
type SessionManager struct {
	store   *sessions.CookieStore
	name    string
	fetcher UserFetcher
	log     *zap.Logger
}

// NewSessionManager builds a cookie-backed session manager.
// The key must be at least 32 bytes.
func NewSessionManager(sessionKey, name, domain string, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if len(sessionKey) < 32 {
		return nil, fmt.Errorf("session key must be at least 32 characters, got %d", len(sessionKey))
	}
	if name == "" {
		return nil, errors.New("session name is empty")
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if secure {
		store.Options.SameSite = http.SameSiteNoneMode
	}

	logger.Info("session store initialized",
		zap.Bool("secure", secure),
		zap.String("domain", domain))

	return &SessionManager{store: store, name: name, log: logger}, nil
}

// SetUserFetcher installs a fetcher consulted on every request.
func (m *SessionManager) SetUserFetcher(f UserFetcher) {
	m.fetcher = f
}

// LoadSessionUser injects the user into context when the cookie names one.
// Requests without a valid cookie pass through anonymously.
func (m *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := m.userFromRequest(r); u != nil {
			r = WithTestUser(r, u)
		}
		next.ServeHTTP(w, r)
	})
}

// SignIn writes the session cookie for u. The account service owns the
// login flow; this exists for it and for integration tests.
func (m *SessionManager) SignIn(w http.ResponseWriter, r *http.Request, u SessionUser) error {
	sess, err := m.store.New(r, m.name)
	if err != nil && !isDecodeErr(err) {
		return err
	}
	sess.Values[userIDKey] = u.ID
	sess.Values[userNameKey] = u.Name
	return sess.Save(r, w)
}

func (m *SessionManager) userFromRequest(r *http.Request) *SessionUser {
	sess, err := m.store.Get(r, m.name)
	if err != nil {
		if isDecodeErr(err) {
			m.log.Debug("discarding unreadable session cookie", zap.Error(err))
		}
		return nil
	}
	id, _ := sess.Values[userIDKey].(string)
	if id == "" {
		return nil
	}
	if m.fetcher != nil {
		return m.fetcher.FetchUser(r.Context(), id)
	}
	name, _ := sess.Values[userNameKey].(string)
	return &SessionUser{ID: id, Name: name}
}

func isDecodeErr(err error) bool {
	var scErr securecookie.Error
	return errors.As(err, &scErr) && scErr.IsDecode()
}

// CurrentUser returns the user and a found flag.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok && u != nil
}

// UserID returns the caller's ObjectID. ok is false when nobody is signed in
// or the session carries a malformed ID (fail closed).
func UserID(r *http.Request) (primitive.ObjectID, bool) {
	u, ok := CurrentUser(r)
	if !ok {
		return primitive.NilObjectID, false
	}
	return u.ObjectID()
}

// RequireSignedIn rejects anonymous API calls with a 401 JSON error.
func RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := UserID(r); !ok {
			apperr.Write(w, nil, apperr.Unauthenticated("sign in required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithTestUser returns r carrying u as the current user. The middleware uses
// it too; tests call it to skip the cookie round-trip.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(WithUser(r.Context(), u))
}

// WithUser returns ctx carrying u as the current user.
func WithUser(ctx context.Context, u *SessionUser) context.Context {
	return context.WithValue(ctx, currentUserKey, u)
}
