package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parley/internal/api"
	"parley/internal/auth"
	"parley/internal/commands"
	"parley/internal/config"
	"parley/internal/dispatch"
	"parley/internal/filestore"
	"parley/internal/http"
	"parley/internal/presence"
	"parley/internal/rooms"
	"parley/internal/storage"
	"parley/internal/workers"
	"parley/internal/ws"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// app is the wired set of components behind both servers.
type app struct {
	store        *storage.BboltStorage
	apiHandler   oshttp.Handler
	adminHandler oshttp.Handler
}

func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	store, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return nil, err
	}

	authService, err := auth.NewAuthService(ctx, auth.Config{TokenExpiry: cfg.TokenExpiry}, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	blobs, err := filestore.NewLocalBlobStore(cfg.UploadsPath)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	media := filestore.NewMediaStore(filestore.Config{
		BaseURL:  cfg.BaseURL,
		MaxBytes: cfg.MaxMediaBytes,
	}, blobs, store)

	registry := presence.NewRegistry()
	hub := ws.NewHub(0, log)
	pool := workers.NewPool(cfg.IOWorkers, log)
	dispatcher := dispatch.NewDispatcher(store, media, hub, pool, log)
	chat := ws.NewServer(ctx, ws.ServerConfig{
		ErrorEvents: cfg.ErrorEvents,
		ReadLimit:   ws.FrameLimit(cfg.MaxMediaBytes),
	}, authService, hub, registry, dispatcher, log)

	apiHandlers := api.New(api.Config{HistoryLimit: cfg.HistoryLimit}, authService, store, rooms.NewResolver(store), registry, log)

	return &app{
		store:        store,
		apiHandler:   http.NewAPIHandler(apiHandlers, chat, media, log),
		adminHandler: http.NewAdminHandler(api.NewAdminHandler(authService, log)),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("parley", flag.ContinueOnError)
	addUser := fs.String("add-user", "", "Username to create through the admin API of a running server")
	displayName := fs.String("display-name", "", "Display name of the user created with -add-user")
	password := fs.String("password", "", "Password of the user created with -add-user")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*addUser != "")
	if err != nil {
		return err
	}

	if *addUser != "" {
		if *password == "" {
			return errors.New("-password is required with -add-user")
		}
		return commands.AddUser(*addUser, *displayName, *password, cfg, os.Stdout)
	}

	log := cfg.NewLogger(os.Stderr)
	slog.SetDefault(log)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	adminServer := http.NewAdminServer(a.adminHandler, cfg.AdminAddr, log)
	apiServer := http.NewAPIServer(a.apiHandler, cfg.APIAddr, log)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(adminServer.Start)
	g.Go(apiServer.Start)

	// Wait for context cancellation (signal) or a server failure
	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Error("admin server shutdown failed", "error", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error("API server shutdown failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "parley: %v\n", err)
		os.Exit(1)
	}
}
