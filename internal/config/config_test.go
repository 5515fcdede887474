package config

import (
	"os"
	"strings"
	"testing"
	"time"
)

var allEnvVars = []string{
	"HOST", "PORT", "READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT", "ENVIRONMENT",
	"DB_DRIVER", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "DB_CONN_MAX_IDLE_TIME",
	"DB_CONN_TIMEOUT", "DB_QUERY_TIMEOUT", "DB_SLOW_QUERY", "DB_AUTO_MIGRATE",
	"REDIS_ENABLED", "REDIS_HOST", "REDIS_PORT", "REDIS_PASSWORD", "REDIS_DB", "REDIS_POOL_SIZE",
	"REDIS_MIN_IDLE_CONNS", "REDIS_MAX_RETRIES", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"CACHE_ENABLED", "CACHE_LIST_TTL", "CACHE_TASK_TTL", "CACHE_WARMUP_INTERVAL",
	"WORKER_ENABLED", "WORKER_CONCURRENCY", "WORKER_POLL_INTERVAL", "REMINDER_HOUR",
	"RATE_LIMIT_ENABLED", "RATE_LIMIT_RPM", "RATE_LIMIT_BURST", "RATE_LIMIT_CLEANUP",
	"CORS_ALLOWED_ORIGINS", "LOG_LEVEL",
}

func setEnvVars(vars map[string]string) {
	for k, v := range vars {
		os.Setenv(k, v)
	}
}

func clearEnvVars(vars []string) {
	for _, k := range vars {
		os.Unsetenv(k)
	}
}

func withEnv(t *testing.T, vars map[string]string) {
	t.Helper()
	clearEnvVars(allEnvVars)
	setEnvVars(vars)
	t.Cleanup(func() { clearEnvVars(allEnvVars) })
}

func TestLoadConfig_Defaults(t *testing.T) {
	withEnv(t, nil)

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with default config, got: %v", err)
	}

	if config.Server.Port != "3000" {
		t.Errorf("Expected default port '3000', got %s", config.Server.Port)
	}

	if config.Server.Environment != "development" {
		t.Errorf("Expected default environment 'development', got %s", config.Server.Environment)
	}

	if config.Server.ShutdownTimeout != 15*time.Second {
		t.Errorf("Expected default shutdown timeout 15s, got %v", config.Server.ShutdownTimeout)
	}

	if config.Database.Driver != "postgres" {
		t.Errorf("Expected default DB driver 'postgres', got %s", config.Database.Driver)
	}

	if config.Database.Name != "taskboard" {
		t.Errorf("Expected default DB name 'taskboard', got %s", config.Database.Name)
	}

	if config.Database.MaxOpenConns != 10 {
		t.Errorf("Expected default max open conns 10, got %d", config.Database.MaxOpenConns)
	}

	if config.Database.QueryTimeout != 5*time.Second {
		t.Errorf("Expected default query timeout 5s, got %v", config.Database.QueryTimeout)
	}

	if !config.Database.AutoMigrate {
		t.Error("Expected auto migrate to be enabled by default")
	}

	if config.Redis.Enabled {
		t.Error("Expected redis to be disabled by default")
	}

	if config.Redis.PoolSize != 10 {
		t.Errorf("Expected default Redis pool size 10, got %d", config.Redis.PoolSize)
	}

	if config.Cache.ListTTL != 5*time.Minute || config.Cache.TaskTTL != 30*time.Minute {
		t.Errorf("Unexpected cache TTLs: list %v, task %v", config.Cache.ListTTL, config.Cache.TaskTTL)
	}

	if config.Worker.Enabled {
		t.Error("Expected worker to be disabled by default")
	}

	if config.Worker.ReminderHour != 9 {
		t.Errorf("Expected default reminder hour 9, got %d", config.Worker.ReminderHour)
	}

	if len(config.CORS.AllowedOrigins) != 1 || config.CORS.AllowedOrigins[0] != "*" {
		t.Errorf("Expected wildcard CORS origin, got %v", config.CORS.AllowedOrigins)
	}

	if config.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", config.LogLevel)
	}
}

func TestLoadConfig_CustomEnvironment(t *testing.T) {
	withEnv(t, map[string]string{
		"HOST":                 "0.0.0.0",
		"PORT":                 "9000",
		"ENVIRONMENT":          "production",
		"DB_DRIVER":            "Postgres",
		"DB_HOST":              "db.example.com",
		"DB_PASSWORD":          "secure_password",
		"DB_MAX_OPEN_CONNS":    "50",
		"DB_QUERY_TIMEOUT":     "2s",
		"REDIS_ENABLED":        "true",
		"REDIS_HOST":           "redis.example.com",
		"REDIS_DB":             "1",
		"CACHE_LIST_TTL":       "1m",
		"WORKER_ENABLED":       "true",
		"WORKER_CONCURRENCY":   "8",
		"REMINDER_HOUR":        "7",
		"RATE_LIMIT_ENABLED":   "false",
		"CORS_ALLOWED_ORIGINS": "https://app.example.com, https://admin.example.com",
		"LOG_LEVEL":            "debug",
	})

	config, err := LoadConfig()
	if err != nil {
		t.Fatalf("Expected no error with custom config, got: %v", err)
	}

	if config.GetServerAddr() != "0.0.0.0:9000" {
		t.Errorf("Expected server addr '0.0.0.0:9000', got %s", config.GetServerAddr())
	}

	if config.Database.Driver != "postgres" {
		t.Errorf("Expected driver to be lower-cased, got %s", config.Database.Driver)
	}

	if config.Database.MaxOpenConns != 50 {
		t.Errorf("Expected max open conns 50, got %d", config.Database.MaxOpenConns)
	}

	if config.Database.QueryTimeout != 2*time.Second {
		t.Errorf("Expected query timeout 2s, got %v", config.Database.QueryTimeout)
	}

	if !config.Redis.Enabled || config.Redis.DB != 1 {
		t.Errorf("Expected redis enabled on DB 1, got %+v", config.Redis)
	}

	if config.Cache.ListTTL != time.Minute {
		t.Errorf("Expected list TTL 1m, got %v", config.Cache.ListTTL)
	}

	if config.Worker.Concurrency != 8 || config.Worker.ReminderHour != 7 {
		t.Errorf("Unexpected worker config %+v", config.Worker)
	}

	if config.RateLimit.Enabled {
		t.Error("Expected rate limiting to be disabled")
	}

	origins := config.CORS.AllowedOrigins
	if len(origins) != 2 || origins[1] != "https://admin.example.com" {
		t.Errorf("Expected two trimmed origins, got %v", origins)
	}
}

func TestLoadConfig_ProductionValidation(t *testing.T) {
	withEnv(t, map[string]string{"ENVIRONMENT": "production"})

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("Expected error for missing database password in production")
	}

	if err.Error() != "database password is required in production" {
		t.Errorf("Expected specific error message, got: %v", err)
	}
}

func TestConfigValidation_EdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		errorMsg string
	}{
		{
			name:    "Production with password",
			envVars: map[string]string{"ENVIRONMENT": "production", "DB_PASSWORD": "secret"},
		},
		{
			name:    "Production sqlite needs no password",
			envVars: map[string]string{"ENVIRONMENT": "production", "DB_DRIVER": "sqlite"},
		},
		{
			name:     "Unknown driver",
			envVars:  map[string]string{"DB_DRIVER": "mysql"},
			errorMsg: "unsupported database driver",
		},
		{
			name:     "Port out of range",
			envVars:  map[string]string{"PORT": "70000"},
			errorMsg: "invalid server port",
		},
		{
			name:     "Idle above open",
			envVars:  map[string]string{"DB_MAX_OPEN_CONNS": "2", "DB_MAX_IDLE_CONNS": "5"},
			errorMsg: "max idle connections",
		},
		{
			name:     "Reminder hour out of range",
			envVars:  map[string]string{"REMINDER_HOUR": "24"},
			errorMsg: "reminder hour",
		},
		{
			name:     "Worker without redis",
			envVars:  map[string]string{"WORKER_ENABLED": "true"},
			errorMsg: "worker requires redis",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			withEnv(t, tt.envVars)

			config, err := LoadConfig()

			if tt.errorMsg != "" {
				if err == nil {
					t.Errorf("Expected error, but got none")
				} else if !strings.Contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error containing '%s', got '%s'", tt.errorMsg, err.Error())
				}
				return
			}
			if err != nil {
				t.Errorf("Expected no error, got: %v", err)
			}
			if config == nil {
				t.Error("Expected config to be loaded")
			}
		})
	}
}

func TestConfig_GetDatabaseDSN(t *testing.T) {
	config := &Config{
		Database: DatabaseConfig{
			Driver:      "postgres",
			Host:        "localhost",
			Port:        "5432",
			User:        "testuser",
			Password:    "testpass",
			Name:        "testdb",
			SSLMode:     "require",
			ConnTimeout: 5 * time.Second,
		},
	}

	expected := "host=localhost port=5432 user=testuser password=testpass dbname=testdb sslmode=require connect_timeout=5"
	if actual := config.GetDatabaseDSN(); actual != expected {
		t.Errorf("Expected DSN '%s', got '%s'", expected, actual)
	}

	config.Database.Driver = "sqlite"
	if actual := config.GetDatabaseDSN(); actual != "testdb.db" {
		t.Errorf("Expected sqlite file 'testdb.db', got '%s'", actual)
	}

	config.Database.Name = ":memory:"
	if actual := config.GetDatabaseDSN(); actual != "file::memory:?cache=shared" {
		t.Errorf("Expected shared in-memory DSN, got '%s'", actual)
	}
}

func TestConfig_GetRedisAddr(t *testing.T) {
	config := &Config{
		Redis: RedisConfig{
			Host: "redis.example.com",
			Port: "6380",
		},
	}

	expected := "redis.example.com:6380"
	if actual := config.GetRedisAddr(); actual != expected {
		t.Errorf("Expected Redis addr '%s', got '%s'", expected, actual)
	}
}

func TestConfig_IsProduction(t *testing.T) {
	tests := []struct {
		environment string
		expected    bool
	}{
		{"production", true},
		{"development", false},
		{"staging", false},
		{"", false},
	}

	for _, test := range tests {
		config := &Config{Server: ServerConfig{Environment: test.environment}}
		if actual := config.IsProduction(); actual != test.expected {
			t.Errorf("For environment '%s', expected IsProduction() = %v, got %v",
				test.environment, test.expected, actual)
		}
	}
}

func TestGetEnvAsInt(t *testing.T) {
	key := "TEST_INT_VAR"
	defaultValue := 42

	os.Unsetenv(key)
	if result := getEnvAsInt(key, defaultValue); result != defaultValue {
		t.Errorf("Expected default value %d, got %d", defaultValue, result)
	}

	os.Setenv(key, "100")
	defer os.Unsetenv(key)

	if result := getEnvAsInt(key, defaultValue); result != 100 {
		t.Errorf("Expected env value 100, got %d", result)
	}

	os.Setenv(key, "not-a-number")
	if result := getEnvAsInt(key, defaultValue); result != defaultValue {
		t.Errorf("Expected default value %d for invalid int, got %d", defaultValue, result)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	key := "TEST_BOOL_VAR"
	defaultValue := true

	testCases := []struct {
		value    string
		expected bool
	}{
		{"true", true},
		{"false", false},
		{"1", true},
		{"0", false},
		{"invalid", defaultValue},
	}

	for _, tc := range testCases {
		os.Setenv(key, tc.value)
		if result := getEnvAsBool(key, defaultValue); result != tc.expected {
			t.Errorf("For value '%s', expected %v, got %v", tc.value, tc.expected, result)
		}
	}

	os.Unsetenv(key)
}

func TestGetEnvAsDuration(t *testing.T) {
	key := "TEST_DURATION_VAR"
	defaultValue := 30 * time.Second

	os.Setenv(key, "5m")
	defer os.Unsetenv(key)

	if result := getEnvAsDuration(key, defaultValue); result != 5*time.Minute {
		t.Errorf("Expected env value 5m, got %v", result)
	}

	os.Setenv(key, "not-a-duration")
	if result := getEnvAsDuration(key, defaultValue); result != defaultValue {
		t.Errorf("Expected default value %v for invalid duration, got %v", defaultValue, result)
	}
}

func TestGetEnvAsList(t *testing.T) {
	key := "TEST_LIST_VAR"
	defaultValue := []string{"a"}

	os.Setenv(key, " , ")
	defer os.Unsetenv(key)

	if result := getEnvAsList(key, defaultValue); len(result) != 1 || result[0] != "a" {
		t.Errorf("Expected default for blank list, got %v", result)
	}

	os.Setenv(key, "x,y")
	if result := getEnvAsList(key, defaultValue); len(result) != 2 {
		t.Errorf("Expected two items, got %v", result)
	}
}

func BenchmarkLoadConfig(b *testing.B) {
	setEnvVars(map[string]string{"ENVIRONMENT": "production", "DB_PASSWORD": "password"})
	defer clearEnvVars(allEnvVars)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := LoadConfig(); err != nil {
			b.Fatalf("Failed to load config: %v", err)
		}
	}
}
