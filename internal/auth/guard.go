package auth

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"go.uber.org/zap"

	"cryptorate-desk/internal/backend"
)

const (
	authorizationHeader = "Authorization"
	bearerPrefix        = "Bearer "
)

// ReasonUserLogout is passed to listeners when the user logged out explicitly.
const ReasonUserLogout = "user logout"

var publicPaths = []string{"/user/login", "/user/register"}

// Guard attaches the session token to protected requests and clears the
// session when any response signals that it was rejected.
//
// Each session carries a generation number. A request remembers the generation
// it was dispatched under and can only invalidate that generation, so several
// requests failing together log out once and a late 401 cannot end a newer session.
type Guard struct {
	store  SessionStore
	logger *zap.Logger

	mu        sync.Mutex
	session   *Session
	gen       uint64
	listeners []func(reason string)
}

func NewGuard(store SessionStore, logger *zap.Logger) *Guard {
	if store == nil {
		store = NewMemoryStore()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Guard{store: store, logger: logger}
	s, err := store.Load()
	if err != nil {
		logger.Warn("load stored session failed", zap.Error(err))
	}
	if s != nil && s.Token != "" {
		g.session = s
		logger.Info("restored session", zap.String("user", s.DisplayName))
	}
	return g
}

// IsPublic reports whether path is an endpoint that never carries credentials.
func IsPublic(path string) bool {
	for _, p := range publicPaths {
		if strings.HasSuffix(strings.TrimRight(path, "/"), p) {
			return true
		}
	}
	return false
}

// OnLogout registers fn to be called once per invalidated session.
func (g *Guard) OnLogout(fn func(reason string)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listeners = append(g.listeners, fn)
}

func (g *Guard) SetSession(s Session) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	g.session = &s
	return g.store.Save(s)
}

func (g *Guard) Session() (Session, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session == nil {
		return Session{}, false
	}
	return *g.session, true
}

// Logout ends the current session. It reports false if there was none.
func (g *Guard) Logout(reason string) bool {
	g.mu.Lock()
	gen := g.gen
	g.mu.Unlock()
	return g.invalidate(gen, reason)
}

func (g *Guard) snapshot(path string) (gen uint64, token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.session != nil && !IsPublic(path) {
		token = g.session.Token
	}
	return g.gen, token
}

func (g *Guard) invalidate(gen uint64, reason string) bool {
	g.mu.Lock()
	if g.session == nil || gen != g.gen {
		g.mu.Unlock()
		return false
	}
	user := g.session.DisplayName
	g.session = nil
	g.gen++
	if err := g.store.Clear(); err != nil {
		g.logger.Warn("clear stored session failed", zap.Error(err))
	}
	listeners := make([]func(string), len(g.listeners))
	copy(listeners, g.listeners)
	g.mu.Unlock()

	g.logger.Info("session invalidated", zap.String("user", user), zap.String("reason", reason))
	for _, fn := range listeners {
		fn(reason)
	}
	return true
}

// Middleware is installed on the backend client. Response inspection applies to
// every request, public ones included.
func (g *Guard) Middleware() client.Middleware {
	return func(next client.Endpoint) client.Endpoint {
		return func(ctx context.Context, req *protocol.Request, resp *protocol.Response) error {
			path := string(req.URI().Path())
			gen, token := g.snapshot(path)
			if token != "" {
				req.Header.Set(authorizationHeader, bearerPrefix+token)
			} else {
				req.Header.Del(authorizationHeader)
			}

			if err := next(ctx, req, resp); err != nil {
				return err
			}
			if backend.IsUnauthorized(resp.StatusCode(), resp.Body()) {
				g.invalidate(gen, "unauthorized response from "+path)
			}
			return nil
		}
	}
}
