package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"go.uber.org/zap"

	"cryptorate-desk/internal/analysis"
	"cryptorate-desk/internal/api"
	"cryptorate-desk/internal/auth"
	"cryptorate-desk/internal/backend"
	"cryptorate-desk/internal/config"
	"cryptorate-desk/internal/logging"
	"cryptorate-desk/internal/market"
	"cryptorate-desk/internal/rates"
	"cryptorate-desk/internal/store"
	"cryptorate-desk/internal/viewmodel"
)

func main() {
	cfg, err := config.Load(config.Path("configs/desk.yaml"))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var (
		st        *store.Store
		sessions  auth.SessionStore
		favorites viewmodel.FavoritesStore
		recorder  rates.Recorder
		snapshots api.SnapshotSource
	)
	if path := cfg.Store.Sqlite.Path; path != "" {
		st, err = store.Open(path)
		if err != nil {
			logger.Fatal("store error", zap.Error(err))
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Warn("store close error", zap.Error(err))
			}
		}()
		sessions, favorites, recorder, snapshots = st.SessionStore(), st, st, st
	} else {
		logger.Info("persistence disabled, session and favorites are kept in memory")
	}

	guard := auth.NewGuard(sessions, logger.Named("auth"))
	client, err := backend.New(backend.Config{
		BaseURL:   cfg.Backend.BaseURL,
		APIPrefix: cfg.Backend.APIPrefix,
		Timeout:   cfg.Backend.Timeout(),
	}, logger.Named("backend"), guard.Middleware())
	if err != nil {
		logger.Fatal("backend client error", zap.Error(err))
	}

	narrator := analysis.NewNarrator(analysis.NarratorConfig{
		Enabled:    cfg.Analysis.Narrator.Enabled,
		Model:      cfg.Analysis.Narrator.Model,
		APIKey:     cfg.Analysis.Narrator.APIKey,
		BaseURL:    cfg.Analysis.Narrator.BaseURL,
		ByAzure:    cfg.Analysis.Narrator.ByAzure,
		APIVersion: cfg.Analysis.Narrator.APIVersion,
		TimeoutMs:  cfg.Analysis.Narrator.TimeoutMs,
	}, logger.Named("narrator"))

	desk := viewmodel.New(client, guard, viewmodel.Options{
		DefaultSymbol:    cfg.Market.DefaultSymbol,
		DefaultTimeframe: market.ParseTimeframe(cfg.Market.DefaultTimeframe),
		ReferencePrices:  cfg.Market.ReferencePrices,
		FallbackSymbols:  cfg.Market.FallbackSymbols,
		VisibleLimit:     cfg.Market.VisibleLimit,
		PollInterval:     time.Duration(cfg.Market.PollIntervalSec) * time.Second,
		SearchDebounce:   time.Duration(cfg.Market.SearchDebounceMs) * time.Millisecond,
		SyntheticLength:  cfg.Market.SyntheticLength,
		Recorder:         recorder,
		Favorites:        favorites,
		Narrator:         narrator,
	}, logger.Named("desk"))

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr))
	api.RegisterRoutes(h, api.Deps{
		Desk:      desk,
		Snapshots: snapshots,
		Narrator:  narrator,
		Logger:    logger.Named("api"),
	})
	h.OnShutdown = append(h.OnShutdown, func(context.Context) { desk.Stop() })

	desk.Start(context.Background())
	logger.Info("desk server starting",
		zap.String("addr", addr),
		zap.String("backend", cfg.Backend.BaseURL),
		zap.String("log_level", cfg.Log.Level),
		zap.Any("narrator", narrator.Status()))
	h.Spin()
}
