package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/plc-visualizer/plcforge/internal/api"
	"github.com/plc-visualizer/plcforge/internal/storage"
)

const shutdownGrace = 10 * time.Second

// newServer builds the echo instance serving the API.
func (a *app) newServer(store storage.Store) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, api.MiddlewareConfig{
		BodyLimit:      a.cfg.Server.BodyLimit,
		RequestTimeout: time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
		Logger:         a.log,
	})
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Engine:  a.engine,
		Store:   store,
		Logger:  a.log,
		Version: Version,
	}))
	return e
}

func (a *app) cmdServe(args []string) error {
	fs := a.flags("serve")
	port := fs.Int("port", a.cfg.Server.Port, "listen port")
	if _, err := a.parseArgs(fs, args, 0); err != nil {
		return err
	}
	a.cfg.Server.Port = *port

	if err := a.cfg.EnsureDirectories(); err != nil {
		return err
	}
	store, err := storage.NewLocalStore(a.cfg.Storage.ArtifactDirectory, a.cfg.ModelLimits().MaxInputBytes)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	e := a.newServer(store)
	s := &http.Server{
		Addr:         a.cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(a.cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(a.cfg.Server.WriteTimeout) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- e.StartServer(s)
	}()
	a.log.Info("serve",
		"verb", "serve",
		"listen", "http://"+a.cfg.GetServerAddr(),
		"config", a.configPath,
		"artifacts", a.cfg.Storage.ArtifactDirectory,
		"version", Version)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return e.Shutdown(sctx)
}
