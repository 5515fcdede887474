package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/logger"
	"taskboard/internal/models"
)

func TestPriorityQueue_OrderAndReplace(t *testing.T) {
	pq := NewPriorityQueue()
	pq.Push(WarmupJob{Key: "low", Priority: 1})
	pq.Push(WarmupJob{Key: "high", Priority: 10})
	pq.Push(WarmupJob{Key: "mid", Priority: 5})
	pq.Push(WarmupJob{Key: "low", Priority: 20})

	jobs := pq.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"low", "high", "mid"}, []string{jobs[0].Key, jobs[1].Key, jobs[2].Key})
	assert.Equal(t, 3, pq.Len(), "Jobs must not drain the queue")

	job, ok := pq.Pop()
	assert.True(t, ok)
	assert.Equal(t, "low", job.Key)
}

func TestCacheWarmer_WarmRunsJobsInPriorityOrder(t *testing.T) {
	warmer := NewCacheWarmer(&WarmupStrategy{ConcurrentJobs: 1}, logger.Discard())

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(key string) func(context.Context) error {
		return func(context.Context) error {
			mu.Lock()
			order = append(order, key)
			mu.Unlock()
			return nil
		}
	}

	warmer.AddWarmupJob(WarmupJob{Key: "second", Priority: 50, Refresh: record("second")})
	warmer.AddWarmupJob(WarmupJob{Key: "first", Priority: 100, Refresh: record("first")})
	warmer.AddWarmupJob(WarmupJob{Key: "broken", Priority: 10, Refresh: func(context.Context) error {
		return errors.New("store down")
	}})

	warmed := warmer.Warm(context.Background())

	assert.Equal(t, 2, warmed)
	assert.Equal(t, []string{"first", "second"}, order)
	assert.EqualValues(t, 1, warmer.GetStats()["failed_jobs"])
}

func TestCacheWarmer_StartAndStop(t *testing.T) {
	c := NewMultiLevelCache(nil, logger.Discard())
	warmer := NewCacheWarmer(&WarmupStrategy{ConcurrentJobs: 2, WarmupInterval: time.Hour}, logger.Discard())

	key := ListKey(models.TaskFilter{}).String()
	warmer.AddWarmupJob(WarmupJob{Key: key, Priority: 100, Refresh: func(ctx context.Context) error {
		return c.Set(ctx, key, models.TaskList{Total: 3}, time.Minute)
	}})

	warmer.Start(context.Background())
	warmer.Start(context.Background())

	assert.Eventually(t, func() bool {
		var list models.TaskList
		return c.Get(context.Background(), key, &list) == nil && list.Total == 3
	}, time.Second, 10*time.Millisecond)

	warmer.Stop()
	warmer.Stop()
	assert.Equal(t, false, warmer.GetStats()["running"])
}
