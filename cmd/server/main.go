package main

import (
	"context"
	"flag"
	"log"

	"github.com/ButyrinIA/forum/internal/config"
	"github.com/ButyrinIA/forum/internal/server"
	"github.com/ButyrinIA/forum/internal/storage"
	"github.com/ButyrinIA/forum/internal/storage/memory"
	"github.com/ButyrinIA/forum/internal/storage/postgres"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "путь к файлу конфигурации")
	storageType := flag.String("storage", "memory", "тип хранилища: memory или postgres")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Не удалось создать логгер: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Не удалось загрузить конфигурацию", zap.Error(err))
	}

	var store storage.Storage
	switch *storageType {
	case "postgres":
		logger.Info("Инициализация хранилища PostgreSQL")
		store, err = postgres.New(context.Background(), cfg.Postgres.DSN)
		if err != nil {
			logger.Fatal("Не удалось инициализировать PostgreSQL", zap.Error(err))
		}
	case "memory":
		logger.Info("Инициализация хранилища Memory")
		store = memory.New()
	default:
		logger.Fatal("Неизвестный тип хранилища", zap.String("storage", *storageType))
	}
	defer store.Close()

	srv := server.New(cfg, store, logger)
	logger.Info("Запуск сервера")
	if err := srv.Run(); err != nil {
		logger.Fatal("Не удалось запустить сервер", zap.Error(err))
	}
}
