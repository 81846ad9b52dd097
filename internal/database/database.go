package database

import (
	"fmt"

	"github.com/gdg-garage/observe-api/internal/config"
	"github.com/gdg-garage/observe-api/internal/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Models lists every table owned by the service, in dependency order.
var Models = []interface{}{
	&models.QuestionSequence{},
	&models.Question{},
	&models.Survey{},
	&models.Campaign{},
	&models.OsmObject{},
	&models.Observation{},
	&models.Answer{},
	&models.Badge{},
	&models.BadgeUser{},
}

// Options returns the gorm configuration shared by every dialect. Driver
// errors are translated so duplicate keys surface as gorm.ErrDuplicatedKey.
func Options(logger *zap.Logger) *gorm.Config {
	level := gormlogger.Silent
	if logger != nil && logger.Core().Enabled(zap.DebugLevel) {
		level = gormlogger.Info
	}
	return &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(level),
	}
}

func Connect(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DatabaseURL)
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.DatabasePath + "?_foreign_keys=on")
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	db, err := gorm.Open(dialector, Options(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.DatabaseDriver == config.DriverSQLite {
		// sqlite has a single writer; one connection also keeps
		// transactions from deadlocking on the file lock.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	return db, nil
}

// Migrate creates or updates the schema. On postgres it also enables PostGIS
// and creates the spatial, prefix and full-text indexes.
func Migrate(db *gorm.DB) error {
	postgresDB := db.Dialector.Name() == "postgres"

	if postgresDB {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS postgis").Error; err != nil {
			return fmt.Errorf("failed to enable postgis: %w", err)
		}
	}

	if err := db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("failed to auto migrate: %w", err)
	}

	if postgresDB {
		for _, stmt := range postgresIndexes {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("failed to run %q: %w", stmt, err)
			}
		}
		if err := addPostgresForeignKeys(db); err != nil {
			return err
		}
	}

	return nil
}

var postgresIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_osm_objects_geom ON osm_objects USING gist (geom)`,
	`CREATE INDEX IF NOT EXISTS idx_osm_objects_quadkey_prefix ON osm_objects (quadkey text_pattern_ops)`,
	`CREATE INDEX IF NOT EXISTS idx_osm_objects_attributes_tsvector ON osm_objects
		USING gin (jsonb_to_tsvector('english', attributes::jsonb, '["string"]'))`,
	`CREATE INDEX IF NOT EXISTS idx_campaigns_aoi ON campaigns USING gist (aoi)`,
}

// Composite references gorm cannot express through struct tags.
var postgresForeignKeys = []struct {
	table, name, stmt string
}{
	{
		table: "observations",
		name:  "fk_observations_osm_object",
		stmt: `ALTER TABLE observations ADD CONSTRAINT fk_observations_osm_object
			FOREIGN KEY (osm_object_id, osm_object_version) REFERENCES osm_objects (id, version)`,
	},
	{
		table: "answers",
		name:  "fk_answers_question",
		stmt: `ALTER TABLE answers ADD CONSTRAINT fk_answers_question
			FOREIGN KEY (question_id, question_version) REFERENCES questions (id, version)`,
	},
}

func addPostgresForeignKeys(db *gorm.DB) error {
	for _, fk := range postgresForeignKeys {
		if db.Migrator().HasConstraint(fk.table, fk.name) {
			continue
		}
		if err := db.Exec(fk.stmt).Error; err != nil {
			return fmt.Errorf("failed to add constraint %s: %w", fk.name, err)
		}
	}
	return nil
}
