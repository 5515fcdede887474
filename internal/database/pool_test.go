package database

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm/logger"

	"taskboard/internal/models"
)

func memoryConfig(t *testing.T) *PoolConfig {
	config := DefaultPoolConfig()
	config.Driver = DriverSQLite
	config.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	config.LogLevel = logger.Silent
	return config
}

func TestDefaultPoolConfig(t *testing.T) {
	config := DefaultPoolConfig()

	if config.Driver != DriverPostgres {
		t.Errorf("Expected Driver to be postgres, got %s", config.Driver)
	}

	if config.MaxOpenConns != 10 {
		t.Errorf("Expected MaxOpenConns to be 10, got %d", config.MaxOpenConns)
	}

	if config.MaxIdleConns != 5 {
		t.Errorf("Expected MaxIdleConns to be 5, got %d", config.MaxIdleConns)
	}

	if config.ConnMaxLifetime != time.Hour {
		t.Errorf("Expected ConnMaxLifetime to be 1 hour, got %v", config.ConnMaxLifetime)
	}

	if config.ConnMaxIdleTime != time.Minute*30 {
		t.Errorf("Expected ConnMaxIdleTime to be 30 minutes, got %v", config.ConnMaxIdleTime)
	}

	if config.LogLevel != logger.Warn {
		t.Errorf("Expected LogLevel to be Warn, got %v", config.LogLevel)
	}
}

func TestNewDatabasePool_WithNilConfig(t *testing.T) {
	_, err := NewDatabasePool(nil)

	if err == nil {
		t.Error("Expected error due to empty DSN, got nil")
	}
}

func TestNewDatabasePool_UnknownDriver(t *testing.T) {
	config := memoryConfig(t)
	config.Driver = "mysql"

	if _, err := NewDatabasePool(config); err == nil {
		t.Error("Expected error for unsupported driver")
	}
}

func TestNewDatabasePool_SQLite(t *testing.T) {
	pool, err := NewDatabasePool(memoryConfig(t))
	if err != nil {
		t.Fatalf("Failed to open sqlite pool: %v", err)
	}
	defer pool.Close()

	if pool.Dialect() != DriverSQLite {
		t.Errorf("Expected sqlite dialect, got %s", pool.Dialect())
	}

	if err := pool.Health(); err != nil {
		t.Errorf("Expected healthy pool, got %v", err)
	}

	stats := pool.Stats()
	if stats["max_open_connections"] != 1 {
		t.Errorf("Expected sqlite pool capped at one connection, got %v", stats["max_open_connections"])
	}
}

func TestDatabasePool_Migrate(t *testing.T) {
	pool, err := NewDatabasePool(memoryConfig(t))
	if err != nil {
		t.Fatalf("Failed to open sqlite pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	// idempotent
	if err := pool.Migrate(); err != nil {
		t.Fatalf("Second migrate failed: %v", err)
	}

	if !pool.DB.Migrator().HasTable(&models.Task{}) {
		t.Fatal("Expected tasks table to exist")
	}

	for _, column := range []string{"title", "description", "status", "tags", "due_date", "created_at", "updated_at"} {
		if !pool.DB.Migrator().HasColumn(&models.Task{}, column) {
			t.Errorf("Expected column %s", column)
		}
	}

	bad := pool.DB.Exec("INSERT INTO tasks (title, status, tags, created_at, updated_at) VALUES ('x', 'ARCHIVED', '[]', CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)")
	if bad.Error == nil {
		t.Error("Expected status check constraint to reject ARCHIVED")
	}
}

func TestDatabasePool_Stats_WithoutConnection(t *testing.T) {
	pool := &DatabasePool{
		DB: nil,
		config: &PoolConfig{
			MaxOpenConns: 10,
		},
	}

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Stats() should handle nil DB gracefully, but got panic: %v", r)
		}
	}()

	stats := pool.Stats()

	if _, hasError := stats["error"]; !hasError {
		t.Error("Expected error in stats when DB is nil")
	}
}

func TestDatabasePool_Health_WithoutConnection(t *testing.T) {
	pool := &DatabasePool{DB: nil}

	if err := pool.Health(); err == nil {
		t.Error("Expected error when checking health with nil DB")
	}
}

func TestDatabasePool_Close_WithoutConnection(t *testing.T) {
	pool := &DatabasePool{DB: nil}

	if err := pool.Close(); err != nil {
		t.Errorf("Expected no error when closing nil DB, got: %v", err)
	}
}

func TestPoolConfig_Validation(t *testing.T) {
	tests := []struct {
		name   string
		config *PoolConfig
	}{
		{
			name: "Zero values configuration",
			config: &PoolConfig{
				Driver:   DriverSQLite,
				LogLevel: logger.Silent,
			},
		},
		{
			name: "Negative values configuration",
			config: &PoolConfig{
				Driver:          DriverSQLite,
				DSN:             "file::memory:",
				MaxOpenConns:    -1,
				MaxIdleConns:    -1,
				ConnMaxLifetime: -time.Hour,
				LogLevel:        logger.Silent,
			},
		},
		{
			name: "Negative lifetime",
			config: &PoolConfig{
				Driver:          DriverSQLite,
				DSN:             "file::memory:",
				MaxOpenConns:    1,
				ConnMaxLifetime: -time.Hour,
				LogLevel:        logger.Silent,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewDatabasePool(tt.config); err == nil {
				t.Error("Expected error but pool creation succeeded")
			}
		})
	}
}

func BenchmarkDefaultPoolConfig(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = DefaultPoolConfig()
	}
}
