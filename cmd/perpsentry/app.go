package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/skalibog/perpsentry/internal/config"
	"github.com/skalibog/perpsentry/internal/exchange"
	"github.com/skalibog/perpsentry/internal/notify"
	"github.com/skalibog/perpsentry/internal/scanner"
	"github.com/skalibog/perpsentry/internal/storage"
	"github.com/skalibog/perpsentry/pkg/logger"
)

// app собранные зависимости одного запуска
type app struct {
	config  *config.Config
	scanner *scanner.Scanner
	history storage.History
}

// loadConfig читает конфигурацию и поднимает логгер по ее настройкам
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File, Console: cfg.Log.Console}); err != nil {
		return nil, fmt.Errorf("ошибка инициализации логгера: %w", err)
	}
	return cfg, nil
}

// newApp конфигурация, площадки, вебхук и история
func newApp(ctx context.Context, path string) (*app, error) {
	cfg, err := loadConfig(path)
	if err != nil {
		return nil, err
	}

	venues, err := exchange.NewVenues(cfg.Exchange)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации площадок: %w", err)
	}
	client := exchange.NewFallbackClient(cfg.Exchange, venues)
	history := storage.OpenHistory(ctx, cfg.Storage.Influx)

	names := make([]string, 0, len(venues))
	for _, v := range venues {
		names = append(names, v.Name())
	}
	logger.Info("Клиент биржи готов", zap.Strings("venues", names), zap.String("state_dir", cfg.Storage.StateDir))

	return &app{
		config:  cfg,
		scanner: scanner.New(cfg, client, notify.New(cfg.Notify), history),
		history: history,
	}, nil
}

func (a *app) Close() {
	a.history.Close()
}
