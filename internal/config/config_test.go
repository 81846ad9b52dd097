package config

import (
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.Port)
	}
	if cfg.DatabaseDriver != DriverSQLite {
		t.Errorf("expected driver %q, got %q", DriverSQLite, cfg.DatabaseDriver)
	}
	if cfg.PaginationLimit != 15 {
		t.Errorf("expected pagination limit 15, got %d", cfg.PaginationLimit)
	}
	if cfg.QuadkeyZoom != 18 {
		t.Errorf("expected quadkey zoom 18, got %d", cfg.QuadkeyZoom)
	}
	if cfg.EnableBadgeScheduler {
		t.Error("expected badge scheduler to be disabled by default")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://observe@localhost/observe")
	t.Setenv("PAGINATION_LIMIT", "50")
	t.Setenv("ENABLE_BADGE_SCHEDULER", "true")
	t.Setenv("BADGE_SCHEDULE", "*/5 * * * *")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}

	if cfg.DatabaseDriver != DriverPostgres {
		t.Errorf("expected driver %q, got %q", DriverPostgres, cfg.DatabaseDriver)
	}
	if cfg.PaginationLimit != 50 {
		t.Errorf("expected pagination limit 50, got %d", cfg.PaginationLimit)
	}
	if !cfg.EnableBadgeScheduler {
		t.Error("expected badge scheduler to be enabled")
	}
	if cfg.BadgeSchedule != "*/5 * * * *" {
		t.Errorf("unexpected badge schedule %q", cfg.BadgeSchedule)
	}
}

func TestValidate(t *testing.T) {
	valid := Config{
		DatabaseDriver:  DriverSQLite,
		DatabasePath:    "observe.db",
		PaginationLimit: 15,
		QuadkeyZoom:     18,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := map[string]func(c *Config){
		"unknown driver":         func(c *Config) { c.DatabaseDriver = "mysql" },
		"postgres without url":   func(c *Config) { c.DatabaseDriver = DriverPostgres },
		"sqlite without path":    func(c *Config) { c.DatabasePath = "" },
		"zero pagination limit":  func(c *Config) { c.PaginationLimit = 0 },
		"huge pagination limit":  func(c *Config) { c.PaginationLimit = MaxPageSize + 1 },
		"quadkey zoom too large": func(c *Config) { c.QuadkeyZoom = 24 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			c := valid
			mutate(&c)
			if err := c.Validate(); err == nil {
				t.Errorf("expected an error")
			}
		})
	}
}
