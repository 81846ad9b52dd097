package main

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gdg-garage/observe-api/internal/badges"
	"github.com/gdg-garage/observe-api/internal/config"
	"github.com/gdg-garage/observe-api/internal/database"
	"github.com/gdg-garage/observe-api/internal/logging"
	"github.com/gdg-garage/observe-api/internal/notifier"
	"github.com/gdg-garage/observe-api/internal/observations"
	"github.com/gdg-garage/observe-api/internal/osmobjects"
	"github.com/gdg-garage/observe-api/internal/registry"
)

// app holds the components shared by every command.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB

	registry     *registry.Registry
	objects      *osmobjects.Store
	observations *observations.Service
	engine       *badges.Engine
}

func newApp(migrate bool) (*app, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(cfg, logger)
	if err != nil {
		return nil, err
	}
	if migrate {
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
	}

	objects := osmobjects.NewStore(db, cfg.QuadkeyZoom)
	service := observations.NewService(db, objects, logger.Named("observations"))

	return &app{
		cfg:          cfg,
		logger:       logger,
		db:           db,
		registry:     registry.New(db),
		objects:      objects,
		observations: service,
		engine:       badges.NewEngine(db, service, badgeNotifier(cfg, logger), logger.Named("badges")),
	}, nil
}

func (a *app) scheduler() (*badges.Scheduler, error) {
	return badges.NewScheduler(a.engine, a.cfg.BadgeSchedule, a.logger.Named("badges"))
}

func (a *app) Close() {
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}

// badgeNotifier returns nil when Discord is not configured.
func badgeNotifier(cfg *config.Config, logger *zap.Logger) badges.Notifier {
	if cfg.DiscordBotToken == "" || cfg.DiscordNotificationsChannelID == "" {
		return nil
	}

	session, err := notifier.NewDiscordSession(cfg.DiscordBotToken)
	if err != nil {
		logger.Warn("discord notifier not initialized", zap.Error(err))
		return nil
	}
	return notifier.NewDiscordNotifier(session, cfg.DiscordNotificationsChannelID)
}
