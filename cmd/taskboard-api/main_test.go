package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/config"
	"taskboard/internal/logger"
	"taskboard/internal/worker"
)

func sqliteEnv(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_NAME", ":memory:")
	t.Setenv("PORT", "3999")
	t.Setenv("CACHE_WARMUP_INTERVAL", "0s")
}

func startApp(t *testing.T) (*application, string) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	app, err := newApplication(cfg, logger.Discard())
	require.NoError(t, err)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go app.server.ServeListener(listener)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		assert.NoError(t, app.stop(ctx))
	})
	return app, "http://" + listener.Addr().String()
}

func TestApplication_ServesTasks(t *testing.T) {
	sqliteEnv(t)
	app, baseURL := startApp(t)
	assert.Nil(t, app.worker)
	require.NotNil(t, app.cached)

	resp, err := http.Get(baseURL + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post(baseURL+"/tasks", "application/json",
		strings.NewReader(`{"title":"Boot","status":"TODO","tags":["ops"]}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, err = http.Get(baseURL + "/tasks")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Tasks []struct {
			Title string   `json:"title"`
			Tags  []string `json:"tags"`
		} `json:"tasks"`
		Total int `json:"total"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, "Boot", list.Tasks[0].Title)
	assert.Equal(t, []string{"ops"}, list.Tasks[0].Tags)
	assert.Equal(t, 1, list.Total)
}

func TestApplication_SchedulesReminders(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)

	sqliteEnv(t)
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", host)
	t.Setenv("REDIS_PORT", port)
	t.Setenv("WORKER_ENABLED", "true")
	t.Setenv("WORKER_POLL_INTERVAL", "1s")

	app, baseURL := startApp(t)
	require.NotNil(t, app.worker)

	due := time.Now().UTC().AddDate(0, 0, 3).Format("2006-01-02")
	resp, err := http.Post(baseURL+"/tasks", "application/json",
		strings.NewReader(`{"title":"Renew cert","status":"IN_PROGRESS","dueDate":"`+due+`"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	members, err := mr.ZMembers(worker.ScheduledSet)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Contains(t, members[0], `"due_date":"`+due+`"`)
}

func TestLoadConfig_RejectsWorkerWithoutRedis(t *testing.T) {
	sqliteEnv(t)
	t.Setenv("WORKER_ENABLED", "true")
	t.Setenv("REDIS_ENABLED", "false")

	_, err := config.LoadConfig()
	assert.Error(t, err)
}
