package viewmodel

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"cryptorate-desk/internal/backend"
	"cryptorate-desk/internal/market"
)

func (a *App) loadFavorites() {
	if a.opts.Favorites == nil {
		return
	}
	syms, ok, err := a.opts.Favorites.Favorites()
	if err != nil {
		a.logger.Warn("load favorites failed", zap.Error(err))
		return
	}
	if ok {
		a.favorites = syms
	}
}

// ToggleFavorite flips symbol in the local list, persists it and, with a
// session, mirrors the change to the backend. Sync failures only raise a
// notice.
func (a *App) ToggleFavorite(ctx context.Context, symbol string) []string {
	symbol = market.NormalizeSymbol(symbol)
	if symbol == "" {
		return a.Favorites()
	}

	a.mu.Lock()
	var added bool
	if i := slices.Index(a.favorites, symbol); i >= 0 {
		a.favorites = slices.Delete(slices.Clone(a.favorites), i, i+1)
	} else {
		a.favorites = append(slices.Clone(a.favorites), symbol)
		added = true
	}
	favs := slices.Clone(a.favorites)
	a.mu.Unlock()

	a.persistFavorites(favs)

	if _, ok := a.guard.Session(); ok {
		var err error
		if added {
			err = a.api.AddFavorite(ctx, symbol)
		} else {
			err = a.api.RemoveFavorite(ctx, symbol)
		}
		if err != nil {
			a.logger.Warn("favorite sync failed", zap.String("symbol", symbol), zap.Bool("added", added), zap.Error(err))
			a.mu.Lock()
			a.favNotice = "favorites not synced: " + backend.UserMessage(err)
			a.mu.Unlock()
		}
	}
	return favs
}

func (a *App) Favorites() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.favorites)
}

// pullFavorites replaces the local list with the account's list.
func (a *App) pullFavorites(ctx context.Context) {
	remote, err := a.api.Favorites(ctx)
	if err != nil {
		if backend.Recoverable(err) {
			a.logger.Info("remote favorites unavailable, keeping local list", zap.Error(err))
			return
		}
		a.logger.Warn("fetch remote favorites failed", zap.Error(err))
		a.mu.Lock()
		a.favNotice = "favorites not synced: " + backend.UserMessage(err)
		a.mu.Unlock()
		return
	}
	if len(remote) == 0 {
		return
	}
	a.mu.Lock()
	a.favorites = slices.Clone(remote)
	a.mu.Unlock()
	a.persistFavorites(remote)
}

func (a *App) persistFavorites(favs []string) {
	if a.opts.Favorites == nil {
		return
	}
	if err := a.opts.Favorites.ReplaceFavorites(favs); err != nil {
		a.logger.Warn("persist favorites failed", zap.Error(err))
	}
}
