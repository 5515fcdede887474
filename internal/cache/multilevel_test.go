package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/logger"
	"taskboard/internal/models"
)

func newTestMultiLevel(t *testing.T) (*MultiLevelCache, *miniredis.Miniredis) {
	redisCache, mr := setupTestRedis(t)
	return NewMultiLevelCache(redisCache, logger.Discard()), mr
}

func TestMultiLevelCache_WriteThroughAndBackfill(t *testing.T) {
	c, mr := newTestMultiLevel(t)
	ctx := context.Background()

	list := models.TaskList{Tasks: []models.Task{{ID: 1, Title: "a", Status: models.StatusTodo}}, Total: 1}
	require.NoError(t, c.Set(ctx, "tasks:list:", list, time.Minute))
	assert.True(t, mr.Exists("tasks:list:"))

	c.l1.Clear()

	var got models.TaskList
	require.NoError(t, c.Get(ctx, "tasks:list:", &got))
	assert.Equal(t, int64(1), got.Total)
	assert.Equal(t, "a", got.Tasks[0].Title)
	assert.Equal(t, 1, c.l1.Len(), "L2 hit should backfill L1")
}

func TestMultiLevelCache_BackfillKeepsRemainingTTL(t *testing.T) {
	c, mr := newTestMultiLevel(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("tasks:detail:1", `{"id":1,"title":"a"}`))
	mr.SetTTL("tasks:detail:1", 5*time.Second)

	now := time.Now()
	c.l1.now = func() time.Time { return now }

	var got models.Task
	require.NoError(t, c.Get(ctx, "tasks:detail:1", &got))

	now = now.Add(4 * time.Second)
	_, found := c.l1.Get("tasks:detail:1")
	assert.True(t, found)

	now = now.Add(2 * time.Second)
	_, found = c.l1.Get("tasks:detail:1")
	assert.False(t, found, "L1 copy outlived its L2 entry")
}

func TestMultiLevelCache_ValuesAreCopies(t *testing.T) {
	c := NewMultiLevelCache(nil, logger.Discard())
	ctx := context.Background()

	task := models.Task{ID: 7, Title: "original"}
	require.NoError(t, c.Set(ctx, "k", task, time.Minute))
	task.Title = "mutated"

	var got models.Task
	require.NoError(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "original", got.Title)
}

func TestMultiLevelCache_Miss(t *testing.T) {
	c, _ := newTestMultiLevel(t)

	var got models.Task
	err := c.Get(context.Background(), "nope", &got)
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.EqualValues(t, 1, c.Metrics().Snapshot().Misses)
}

func TestMultiLevelCache_DeletePatternClearsBothLevels(t *testing.T) {
	c, mr := newTestMultiLevel(t)
	ctx := context.Background()

	c.Set(ctx, ListKey(models.TaskFilter{}).String(), models.TaskList{}, time.Minute)
	c.Set(ctx, ListKey(models.TaskFilter{Search: "x"}).String(), models.TaskList{}, time.Minute)
	c.Set(ctx, DetailKey(3).String(), models.Task{ID: 3}, time.Minute)

	require.NoError(t, c.DeletePattern(ctx, ListPattern()))

	assert.Equal(t, 1, c.l1.Len())
	assert.Equal(t, []string{"tasks:detail:3"}, mr.Keys())
}

func TestMultiLevelCache_DegradesWhenRedisDown(t *testing.T) {
	c, mr := newTestMultiLevel(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", "v", time.Minute))
	mr.Close()

	var got string
	require.NoError(t, c.Get(ctx, "k", &got), "L1 still serves while redis is down")
	assert.Equal(t, "v", got)

	err := c.Get(ctx, "other", &got)
	assert.True(t, errors.Is(err, ErrCacheDown), "expected ErrCacheDown, got %v", err)

	for i := 0; i < 10; i++ {
		c.Get(ctx, "other", &got)
	}
	assert.Equal(t, CircuitBreakerOpen, c.breaker.GetState())
}

func TestMultiLevelCache_WithoutRedis(t *testing.T) {
	c := NewMultiLevelCache(nil, logger.Discard())
	ctx := context.Background()

	assert.NoError(t, c.Health(ctx))
	assert.NoError(t, c.Delete(ctx, "missing"))
	assert.NotContains(t, c.Stats(), "l2")
	assert.NoError(t, c.Close())
}
