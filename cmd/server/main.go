package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/uptrace/bun"
	"go.uber.org/zap"

	"github.com/lapig-ufg/pasto-legal/internal/auth"
	"github.com/lapig-ufg/pasto-legal/internal/clients"
	"github.com/lapig-ufg/pasto-legal/internal/config"
	"github.com/lapig-ufg/pasto-legal/internal/database"
	"github.com/lapig-ufg/pasto-legal/internal/logger"
	"github.com/lapig-ufg/pasto-legal/internal/pasture"
	"github.com/lapig-ufg/pasto-legal/internal/preview"
	"github.com/lapig-ufg/pasto-legal/internal/raster"
	"github.com/lapig-ufg/pasto-legal/internal/resolution"
	"github.com/lapig-ufg/pasto-legal/internal/routes"
	"github.com/lapig-ufg/pasto-legal/internal/services"
)

func main() {
	cfg := config.Load()
	logr := logger.New(cfg)
	defer logr.Sync()

	var db *bun.DB
	if cfg.DatabaseURL != "" {
		var err error
		db, err = database.New(cfg.DatabaseURL, cfg)
		if err != nil {
			logr.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()
	}

	deps := routes.Deps{}
	store := newSessionStore(cfg, db, logr)

	if db != nil {
		feedbackSvc := services.NewFeedbackService(db)
		if err := feedbackSvc.EnsureSchema(context.Background()); err != nil {
			logr.Fatal("failed to prepare feedback schema", zap.Error(err))
		}
		deps.Feedback = feedbackSvc
	} else {
		logr.Warn("DATABASE_URL not set, feedback routes disabled")
	}

	if cfg.PreviewEnabled {
		renderer, err := preview.NewRenderer(cfg.PreviewTileSize)
		if err != nil {
			logr.Fatal("failed to init preview renderer", zap.Error(err))
		}
		deps.Preview = renderer
	}

	if cfg.AuthEnabled {
		deps.JWT = newJWTManager(cfg, logr)
	}

	sicar := clients.NewSICARClient(clients.SICARConfig{
		BaseURL:     cfg.SICARBaseURL,
		Timeout:     cfg.SICARTimeout,
		InsecureTLS: cfg.SICARInsecureTLS,
	}, logr.Named("sicar"))
	// the client spends up to two timeouts per lookup: warm-up and query
	resolver := resolution.NewResolver(sicar, deps.Preview, 2*cfg.SICARTimeout, logr.Named("resolver"))

	assets := pasture.Assets{
		Biomass:   cfg.AssetBiomass,
		Age:       cfg.AssetAge,
		Vigor:     cfg.AssetVigor,
		LandCover: cfg.AssetLandCover,
	}
	aggregator := pasture.NewAggregator(newRasterEngine(cfg, assets, logr), assets, cfg.RasterScaleMeters, logr.Named("pasture"))

	deps.Conversations = services.NewConversationService(store, resolver, aggregator, logr.Named("conversation"))

	r := routes.NewRouter(cfg, logr, deps)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// pasture statistics wait on the raster provider
		WriteTimeout: cfg.RasterTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Info("server started",
			zap.String("port", cfg.Port),
			zap.Bool("database", db != nil),
			zap.Bool("auth", deps.JWT != nil),
			zap.Bool("preview", deps.Preview != nil))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logr.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logr.Error("server forced to shutdown", zap.Error(err))
	}

	logr.Info("server exited gracefully")
}

// newJWTManager verifies with the public key unless a private key is
// configured. A signer in development logs a token for local agent runs.
func newJWTManager(cfg *config.Config, logr *logger.Logger) *auth.JWTManager {
	if cfg.JWTPrivateKeyPath == "" {
		jwtMgr, err := auth.NewJWTVerifier(cfg.JWTPublicKeyPath, cfg.JWTIssuer)
		if err != nil {
			logr.Fatal("failed to init jwt manager", zap.Error(err))
		}
		return jwtMgr
	}

	jwtMgr, err := auth.NewJWTSigner(cfg.JWTPrivateKeyPath, cfg.JWTIssuer)
	if err != nil {
		logr.Fatal("failed to init jwt signer", zap.Error(err))
	}
	if cfg.Environment == "development" {
		token, exp, err := jwtMgr.IssueToken("agent-dev", 24*time.Hour)
		if err != nil {
			logr.Fatal("failed to issue development token", zap.Error(err))
		}
		logr.Info("development agent token issued", zap.String("token", token), zap.Time("expires_at", exp))
	}
	return jwtMgr
}

func newSessionStore(cfg *config.Config, db *bun.DB, logr *logger.Logger) services.SessionStore {
	if cfg.SessionBackend == "postgres" {
		if db == nil {
			logr.Fatal("SESSION_BACKEND=postgres requires DATABASE_URL")
		}
		store, err := services.NewBunSessionStore(db, cfg.SessionCacheSize)
		if err != nil {
			logr.Fatal("failed to init session store", zap.Error(err))
		}
		if err := store.EnsureSchema(context.Background()); err != nil {
			logr.Fatal("failed to prepare session schema", zap.Error(err))
		}
		return store
	}

	store, err := services.NewMemorySessionStore(cfg.SessionCacheSize)
	if err != nil {
		logr.Fatal("failed to init session store", zap.Error(err))
	}
	return store
}

// newRasterEngine prefers the remote provider. Without one, the grids in
// RASTER_GRID_DIR named after each dataset are served in process.
func newRasterEngine(cfg *config.Config, assets pasture.Assets, logr *logger.Logger) raster.Engine {
	if cfg.RasterBaseURL != "" {
		return raster.NewHTTPEngine(cfg.RasterBaseURL, cfg.RasterAPIKey, cfg.RasterTimeout, logr.Named("raster"))
	}

	engine := raster.NewGridEngine()
	if cfg.RasterGridDir == "" {
		logr.Warn("no raster provider configured, pasture statistics will fail")
		return engine
	}
	files := map[string]string{
		pasture.DatasetBiomass:   assets.Biomass,
		pasture.DatasetAge:       assets.Age,
		pasture.DatasetVigor:     assets.Vigor,
		pasture.DatasetLandCover: assets.LandCover,
	}
	for dataset, asset := range files {
		path := filepath.Join(cfg.RasterGridDir, dataset+".json")
		if err := engine.LoadFile(asset, path); err != nil {
			logr.Fatal("failed to load raster grid", zap.String("dataset", dataset), zap.String("path", path), zap.Error(err))
		}
	}
	logr.Info("serving raster grids in process", zap.String("dir", cfg.RasterGridDir))
	return engine
}
