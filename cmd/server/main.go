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

	"collabnotes-server/internal/config"
	"collabnotes-server/internal/events"
	"collabnotes-server/internal/handler"
	"collabnotes-server/internal/logging"
	"collabnotes-server/internal/repository"
	"collabnotes-server/internal/service"
	"collabnotes-server/internal/websocket"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(logging.New(os.Stdout, cfg.Logging.Level, cfg.Logging.Format))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	noteRepo, err := openNoteRepository(ctx, cfg)
	if err != nil {
		return err
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		noteRepo = repository.NewCachedNoteRepository(noteRepo, repository.NewRedisNoteCache(rdb, cfg.Redis.CacheTTL))
		slog.Info("note cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	publisher, err := openPublisher(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			slog.Warn("failed to close event publisher", "error", err)
		}
	}()

	wsManager := websocket.NewManager(websocket.Options{
		MaxConnections: cfg.WebSocket.MaxConnections,
		SendBufferSize: cfg.WebSocket.SendBufferSize,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
	})

	noteService := service.NewNoteService(noteRepo, publisher)

	router := handler.NewRouter(
		cfg,
		handler.NewNoteHandler(noteService, wsManager),
		handler.NewWebSocketHandler(wsManager, cfg.WebSocket.ReadBufferSize, cfg.WebSocket.WriteBufferSize, cfg.CORS.AllowedOrigins),
		handler.NewHealthHandler(wsManager, "collabnotes-server"),
	)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return wsManager.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("starting collaborative notes server", "addr", addr, "env", cfg.Server.Env, "db_driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func openNoteRepository(ctx context.Context, cfg *config.Config) (repository.NoteRepository, error) {
	if cfg.Database.Driver == config.DriverMySQL {
		db, err := repository.OpenMySQL(cfg.Database.MySQLDSN)
		if err != nil {
			return nil, err
		}
		slog.Info("connected to mysql")
		return repository.NewGormNoteRepository(db), nil
	}

	couchURL := fmt.Sprintf("http://%s:%s@%s:%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
	)

	client, err := kivik.New("couch", couchURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to couchdb: %w", err)
	}

	exists, err := client.DBExists(ctx, cfg.Database.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to check database existence: %w", err)
	}
	if !exists {
		if err := client.CreateDB(ctx, cfg.Database.Name); err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		slog.Info("created database", "name", cfg.Database.Name)
	}

	if err := repository.EnsureNoteIndexes(ctx, client, cfg.Database.Name); err != nil {
		return nil, err
	}

	slog.Info("connected to couchdb", "host", cfg.Database.Host, "port", cfg.Database.Port)
	return repository.NewNoteRepository(client, cfg.Database.Name), nil
}

func openPublisher(cfg *config.Config) (events.Publisher, error) {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.NewNopPublisher(), nil
	}

	producer, err := events.NewSyncProducer(cfg.Kafka.Brokers)
	if err != nil {
		return nil, err
	}
	slog.Info("note events enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	return events.NewKafkaPublisher(producer, cfg.Kafka.Topic, events.DefaultKafkaOptions()), nil
}
