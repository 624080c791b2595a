package app

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bookshelf-service/bookshelf/config"
	"github.com/bookshelf-service/bookshelf/internal/handler"
	"github.com/bookshelf-service/bookshelf/internal/repository"
	"github.com/bookshelf-service/bookshelf/internal/server"
	"github.com/bookshelf-service/bookshelf/internal/service/auth"
	"github.com/bookshelf-service/bookshelf/internal/service/book"
	"github.com/bookshelf-service/bookshelf/internal/service/catalog"
	"github.com/bookshelf-service/bookshelf/internal/service/review"
	"github.com/bookshelf-service/bookshelf/migrations"
	"github.com/bookshelf-service/bookshelf/pkg/kafka"
	"github.com/bookshelf-service/bookshelf/pkg/logger"
	"github.com/bookshelf-service/bookshelf/pkg/postgres"
)

func Run(cfg *config.Config) {
	log := logger.NewLogger(cfg.Log, "bookshelf")

	db, err := postgres.NewPostgresDB(context.Background(), &cfg.Database, migrations.MigrationFiles)
	if err != nil {
		log.Fatal("db init", zap.Error(err))
	}
	repo, err := repository.NewRepository(db, log)
	if err != nil {
		log.Fatal("repo", zap.Error(err))
	}

	var events kafka.Publisher
	if len(cfg.Kafka.Addrs) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka)
		if err != nil {
			log.Fatal("kafka.NewProducer", zap.Error(err))
		}
		events = kafka.NewPublisher(producer)
	}

	h := handler.New(handler.Services{
		Catalog: catalog.NewService(repo, log),
		Auth:    auth.NewService(repo, cfg.Session, log),
		Book:    book.NewService(repo, events, log),
		Review:  review.NewService(repo, events, log),
	}, log)

	renderer, err := handler.NewRenderer()
	if err != nil {
		log.Fatal("renderer", zap.Error(err))
	}

	srv := server.NewServer(cfg.Server, h.NewRouter(renderer))
	log.Info("http server start ON: ",
		zap.String("addr",
			net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)))
	go func() {
		if err := srv.Run(); err != nil {
			log.Error("server run", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
	termSig := <-sig

	log.Debug("Graceful shutdown", zap.Any("signal", termSig))

	closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	if err = srv.Stop(closeCtx); err != nil {
		log.DPanic("srv.Stop", zap.Error(err))
	}
	db.Close()
	log.Info("Graceful shutdown finished")
}
