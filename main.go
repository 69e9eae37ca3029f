package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/princinho/todoapi/config"
	"github.com/princinho/todoapi/database"
	"github.com/princinho/todoapi/dto"
	"github.com/princinho/todoapi/logging"
	"github.com/princinho/todoapi/metrics"
	"github.com/princinho/todoapi/repositories"
	"github.com/princinho/todoapi/services"
	"github.com/princinho/todoapi/utils"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("server.exit", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.NewLogger(cfg.LogLevel)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := dto.RegisterValidators(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	stores, pinger, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	app, err := newApplication(cfg, log, stores, pinger)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           setupRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server.listening", "addr", cfg.HTTPAddr, "storage", cfg.StorageBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("server.shutdown")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("server.stopped")
	return nil
}

// application holds the long-lived services the routes are built from.
type application struct {
	cfg      *config.Config
	log      *slog.Logger
	metrics  *metrics.Metrics
	db       database.Pinger
	sessions *services.SessionManager
	labels   *services.LabelService
	tasks    *services.TaskService
}

func newApplication(cfg *config.Config, log *slog.Logger, stores repositories.Stores, db database.Pinger) (*application, error) {
	codec, err := utils.NewTokenCodec(cfg.Auth.Secret, cfg.Auth.Algorithm)
	if err != nil {
		return nil, err
	}
	m := metrics.New()

	labels := services.NewLabelService(stores.Labels, stores.Tasks, log)
	var provisioner services.LabelProvisioner
	if cfg.ProvisionDefaultLabels {
		provisioner = labels
	}

	sessions := services.NewSessionManager(services.SessionDeps{
		Users:       stores.Users,
		Tokens:      stores.RefreshTokens,
		Hasher:      utils.NewPasswordHasher(cfg.Auth.BcryptCost),
		Codec:       codec,
		Provisioner: provisioner,
		AccessTTL:   cfg.Auth.AccessTTL,
		RefreshTTL:  cfg.Auth.RefreshTTL,
		Logger:      log,
		Metrics:     m,
	})

	return &application{
		cfg:      cfg,
		log:      log,
		metrics:  m,
		db:       db,
		sessions: sessions,
		labels:   labels,
		tasks:    services.NewTaskService(stores.Tasks, log),
	}, nil
}

// openStore picks the storage backend. The Mongo backend fails fast when the
// database is unreachable.
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (repositories.Stores, database.Pinger, func(), error) {
	if cfg.StorageBackend == config.StorageMemory {
		log.Warn("storage.memory", "note", "data is kept in process memory and lost on restart")
		return repositories.NewMemoryStores(), database.NopPinger{}, func() {}, nil
	}

	client, err := database.Connect(ctx, cfg.Mongo, log)
	if err != nil {
		return repositories.Stores{}, nil, nil, err
	}
	closeFn := func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := client.Disconnect(dctx); err != nil {
			log.Error("db.disconnect.fail", "err", err)
		}
	}

	db := client.Database(cfg.Mongo.Database)
	if err := repositories.EnsureIndexes(ctx, db); err != nil {
		closeFn()
		return repositories.Stores{}, nil, nil, err
	}

	return repositories.NewMongoStores(db), database.ClientPinger{Client: client}, closeFn, nil
}
