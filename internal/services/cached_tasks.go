package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"taskboard/internal/cache"
	"taskboard/internal/models"
)

type CacheOptions struct {
	ListTTL time.Duration
	TaskTTL time.Duration
	// Warmup enables background refresh of the default list when set.
	Warmup *cache.WarmupStrategy
}

func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		ListTTL: 5 * time.Minute,
		TaskTTL: 30 * time.Minute,
	}
}

// CachedTaskService is a cache-aside decorator over a TaskService. Reads
// for the same key share one load; successful mutations invalidate every
// list entry and the affected detail entry.
type CachedTaskService struct {
	taskService TaskService
	cache       cache.Cache
	options     CacheOptions
	log         *logrus.Entry

	group singleflight.Group
	// generation advances on every invalidation; a load that started
	// under an older generation is not written back.
	generation atomic.Uint64

	warmer        *cache.CacheWarmer
	warmingMu     sync.Mutex
	warmingActive bool
}

func NewCachedTaskService(taskService TaskService, cacheInstance cache.Cache, options CacheOptions, log *logrus.Entry) *CachedTaskService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &CachedTaskService{
		taskService: taskService,
		cache:       cacheInstance,
		options:     options,
		log:         log.WithField("component", "cached_task_service"),
	}
	s.setupCacheWarming()
	return s
}

func (s *CachedTaskService) GetTasks(ctx context.Context, filter models.TaskFilter) (models.TaskList, error) {
	filter = filter.Normalize()
	key := cache.ListKey(filter).String()

	var cached models.TaskList
	if s.lookup(ctx, key, &cached) {
		return cached, nil
	}

	value, err := s.load(ctx, key, func(ctx context.Context, gen uint64) (interface{}, error) {
		return s.fillList(ctx, gen, key, filter)
	})
	if err != nil {
		return models.TaskList{}, err
	}
	return value.(models.TaskList), nil
}

func (s *CachedTaskService) GetTaskByID(ctx context.Context, id uint) (*models.Task, error) {
	key := cache.DetailKey(id).String()

	var cached models.Task
	if s.lookup(ctx, key, &cached) {
		return &cached, nil
	}

	value, err := s.load(ctx, key, func(ctx context.Context, gen uint64) (interface{}, error) {
		task, err := s.taskService.GetTaskByID(ctx, id)
		if err != nil {
			return nil, err
		}
		s.store(ctx, gen, key, task, s.options.TaskTTL)
		return *task, nil
	})
	if err != nil {
		return nil, err
	}
	task := value.(models.Task)
	return &task, nil
}

func (s *CachedTaskService) CreateTask(ctx context.Context, input models.CreateTaskInput) (*models.Task, error) {
	task, err := s.taskService.CreateTask(ctx, input)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return task, nil
}

func (s *CachedTaskService) UpdateTask(ctx context.Context, id uint, input models.UpdateTaskInput) (*models.Task, error) {
	task, err := s.taskService.UpdateTask(ctx, id, input)
	if err != nil {
		return nil, err
	}
	if !input.IsEmpty() {
		s.invalidate(ctx, cache.DetailKey(id).String())
	}
	return task, nil
}

func (s *CachedTaskService) DeleteTask(ctx context.Context, id uint) error {
	if err := s.taskService.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, cache.DetailKey(id).String())
	return nil
}

func (s *CachedTaskService) lookup(ctx context.Context, key string, dest interface{}) bool {
	err := s.cache.Get(ctx, key, dest)
	if err == nil {
		return true
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.log.WithError(err).WithField("key", key).Warn("cache read failed, falling back to store")
	}
	return false
}

// load collapses concurrent misses on key into one call of fn. Loads are
// shared per generation, so a read that starts after an invalidation never
// joins a load that started before it. The shared call is detached from
// any single caller's cancellation; each caller still stops waiting when
// its own ctx ends.
func (s *CachedTaskService) load(ctx context.Context, key string, fn func(context.Context, uint64) (interface{}, error)) (interface{}, error) {
	gen := s.generation.Load()
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(fmt.Sprintf("%s#%d", key, gen), func() (interface{}, error) {
		return fn(shared, gen)
	})

	select {
	case result := <-ch:
		return result.Val, result.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *CachedTaskService) fillList(ctx context.Context, gen uint64, key string, filter models.TaskFilter) (models.TaskList, error) {
	list, err := s.taskService.GetTasks(ctx, filter)
	if err != nil {
		return models.TaskList{}, err
	}
	s.store(ctx, gen, key, list, s.options.ListTTL)
	return list, nil
}

// store writes value unless an invalidation happened since gen was read.
// An invalidation racing the write itself is caught by the second check.
func (s *CachedTaskService) store(ctx context.Context, gen uint64, key string, value interface{}, ttl time.Duration) {
	if s.generation.Load() != gen {
		return
	}
	if err := s.cache.Set(ctx, key, value, ttl); err != nil {
		s.log.WithError(err).WithField("key", key).Warn("cache write failed")
		return
	}
	if s.generation.Load() != gen {
		if err := s.cache.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.log.WithError(err).WithField("key", key).Error("failed to drop stale cache entry")
		}
	}
}

func (s *CachedTaskService) invalidate(ctx context.Context, keys ...string) {
	s.generation.Add(1)
	ctx = context.WithoutCancel(ctx)

	if err := s.cache.DeletePattern(ctx, cache.ListPattern()); err != nil {
		s.log.WithError(err).Error("failed to invalidate list cache")
	}
	if len(keys) > 0 {
		if err := s.cache.Delete(ctx, keys...); err != nil {
			s.log.WithError(err).WithField("keys", keys).Error("failed to invalidate task cache")
		}
	}
}

func (s *CachedTaskService) GetCacheStats() map[string]interface{} {
	stats := map[string]interface{}{"generation": s.generation.Load()}
	if reporter, ok := s.cache.(interface{ Stats() map[string]interface{} }); ok {
		stats["cache"] = reporter.Stats()
	}
	if s.warmer != nil {
		stats["warmer"] = s.warmer.GetStats()
	}
	return stats
}

func (s *CachedTaskService) setupCacheWarming() {
	if s.options.Warmup == nil {
		return
	}

	s.warmer = cache.NewCacheWarmer(s.options.Warmup, s.log)

	defaultList := models.TaskFilter{}
	key := cache.ListKey(defaultList).String()
	s.warmer.AddWarmupJob(cache.WarmupJob{
		Key:      key,
		Priority: 100,
		Refresh: func(ctx context.Context) error {
			_, err := s.fillList(ctx, s.generation.Load(), key, defaultList)
			return err
		},
	})
}

func (s *CachedTaskService) StartCacheWarming(ctx context.Context) {
	s.warmingMu.Lock()
	defer s.warmingMu.Unlock()

	if s.warmer != nil && !s.warmingActive {
		s.warmer.Start(ctx)
		s.warmingActive = true
	}
}

func (s *CachedTaskService) StopCacheWarming() {
	s.warmingMu.Lock()
	defer s.warmingMu.Unlock()

	if s.warmer != nil && s.warmingActive {
		s.warmer.Stop()
		s.warmingActive = false
	}
}
