package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkoval/formgate/app"
	"github.com/mkoval/formgate/cleanup"
	"github.com/mkoval/formgate/config"
	"github.com/mkoval/formgate/database"
	"github.com/mkoval/formgate/gate"
	"github.com/mkoval/formgate/httpx"
	"github.com/mkoval/formgate/log"
	"github.com/mkoval/formgate/ratelimit"
	"github.com/mkoval/formgate/routes"
)

func main() {
	cfg, err := config.ParseFlags()
	if err != nil {
		log.Fatal("main.config:", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	for _, dir := range []string{cfg.DataDir, cfg.UploadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal("main.mkdir:", err)
		}
	}

	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("main.db.open:", err)
	}
	defer db.Close()

	if cfg.AdminUser != "" {
		if err := httpx.EnsureAdminUser(db, cfg.AdminUser, cfg.AdminPassword); err != nil {
			log.Fatal("main.admin_user:", err)
		}
	}

	store := ratelimit.Open(cfg.CounterFile())
	engine := cleanup.NewEngine(db, cfg)

	app := app.App{
		DB:           db,
		BearerServer: httpx.NewBearerServer(db, cfg),
		Config:       cfg,
		Gate:         gate.New(cfg, store),
		Store:        store,
		Cleanup:      engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go engine.Start(ctx)

	err = runServer(ctx, cfg, routes.Wire(app))
	if !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server:", err)
	}
}

func runServer(ctx context.Context, cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("main.server.shutdown:", err)
		}
	}()

	log.Info("Listening on " + cfg.Url())
	return srv.ListenAndServe()
}
