package viewmodel

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"cryptorate-desk/internal/auth"
	"cryptorate-desk/internal/backend"
)

const sessionExpiredMsg = "session expired, please log in again"

// Login exchanges credentials for a session. Business errors go back to
// the caller untouched.
func (a *App) Login(ctx context.Context, username, password string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("login: username and password are required: %w", ErrInvalidInput)
	}
	token, err := a.api.Login(ctx, username, password)
	if err != nil {
		return err
	}
	if err := a.guard.SetSession(auth.Session{Token: token, DisplayName: username}); err != nil {
		a.logger.Warn("persist session failed", zap.Error(err))
	}

	a.mu.Lock()
	a.loginRequired = false
	if a.errBanner == sessionExpiredMsg {
		a.errBanner = ""
	}
	runCtx := a.ctx
	a.mu.Unlock()

	a.logger.Info("logged in", zap.String("user", username))
	a.poller.Refresh()
	a.goBackground(func() { a.pullFavorites(runCtx) })
	return nil
}

// Register creates the account and logs straight in, since the backend
// answers registration with the user record rather than a token.
func (a *App) Register(ctx context.Context, username, password, email string) error {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return fmt.Errorf("register: username and password are required: %w", ErrInvalidInput)
	}
	if _, err := a.api.Register(ctx, username, password, strings.TrimSpace(email)); err != nil && !errors.Is(err, backend.ErrEmpty) {
		return err
	}
	return a.Login(ctx, username, password)
}

// Logout ends the session. It is a no-op without one.
func (a *App) Logout() bool {
	return a.guard.Logout(auth.ReasonUserLogout)
}

// onLogout is the single guard subscription. The guard delivers at most
// once per session.
func (a *App) onLogout(reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if reason == auth.ReasonUserLogout {
		return
	}
	a.loginRequired = true
	a.errBanner = sessionExpiredMsg
}

// DismissLogin hides the login prompt without logging in.
func (a *App) DismissLogin() {
	a.mu.Lock()
	a.loginRequired = false
	a.mu.Unlock()
}

func (a *App) Assets(ctx context.Context) ([]backend.Asset, error) {
	return a.api.Assets(ctx)
}

func (a *App) SaveAsset(ctx context.Context, in backend.AssetInput) error {
	in.Symbol = strings.ToUpper(strings.TrimSpace(in.Symbol))
	if in.Symbol == "" || !in.Amount.IsPositive() {
		return fmt.Errorf("save asset: symbol and a positive amount are required: %w", ErrInvalidInput)
	}
	return a.api.SaveAsset(ctx, in)
}

func (a *App) DeleteAsset(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("delete asset: %w", ErrInvalidInput)
	}
	return a.api.DeleteAsset(ctx, id)
}
