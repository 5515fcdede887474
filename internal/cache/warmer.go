package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// WarmupJob refreshes the entry stored under Key. Refresh owns both the
// load and the write so it can skip writes that raced an invalidation.
// Higher Priority jobs run first.
type WarmupJob struct {
	Key      string
	Priority int
	Refresh  func(ctx context.Context) error
}

type WarmupStrategy struct {
	ConcurrentJobs  int
	WarmupInterval  time.Duration
	HealthCheckFunc func(ctx context.Context) bool
}

func DefaultWarmupStrategy() *WarmupStrategy {
	return &WarmupStrategy{
		ConcurrentJobs: 3,
		WarmupInterval: 5 * time.Minute,
	}
}

type CacheWarmer struct {
	strategy *WarmupStrategy
	queue    *PriorityQueue
	log      *logrus.Entry

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	runs    atomic.Int64
	failed  atomic.Int64
}

func NewCacheWarmer(strategy *WarmupStrategy, log *logrus.Entry) *CacheWarmer {
	if strategy == nil {
		strategy = DefaultWarmupStrategy()
	}
	if strategy.ConcurrentJobs <= 0 {
		strategy.ConcurrentJobs = 1
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &CacheWarmer{
		strategy: strategy,
		queue:    NewPriorityQueue(),
		log:      log.WithField("component", "cache_warmer"),
	}
}

func (cw *CacheWarmer) AddWarmupJob(job WarmupJob) {
	cw.queue.Push(job)
	cw.log.WithFields(logrus.Fields{"key": job.Key, "priority": job.Priority}).Debug("added warmup job")
}

// Start warms once immediately and then on every interval until Stop or
// ctx cancellation.
func (cw *CacheWarmer) Start(ctx context.Context) {
	cw.mu.Lock()
	if cw.running {
		cw.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	cw.running = true
	cw.cancel = cancel
	cw.done = make(chan struct{})
	done := cw.done
	cw.mu.Unlock()

	cw.log.WithField("jobs", cw.queue.Len()).Info("starting cache warmer")

	go func() {
		defer close(done)
		cw.Warm(ctx)

		if cw.strategy.WarmupInterval <= 0 {
			<-ctx.Done()
			return
		}

		ticker := time.NewTicker(cw.strategy.WarmupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if cw.shouldWarmup(ctx) {
					cw.Warm(ctx)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (cw *CacheWarmer) Stop() {
	cw.mu.Lock()
	if !cw.running {
		cw.mu.Unlock()
		return
	}
	cw.running = false
	cancel, done := cw.cancel, cw.done
	cw.mu.Unlock()

	cancel()
	<-done
	cw.log.Info("cache warmer stopped")
}

// Warm runs every job once, highest priority first, with bounded
// concurrency. A failing job is logged and does not stop the others.
func (cw *CacheWarmer) Warm(ctx context.Context) int {
	jobs := cw.queue.Jobs()
	if len(jobs) == 0 {
		return 0
	}

	var (
		mu     sync.Mutex
		warmed int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cw.strategy.ConcurrentJobs)

	for _, job := range jobs {
		job := job
		g.Go(func() error {
			if err := job.Refresh(gctx); err != nil {
				cw.log.WithError(err).WithField("key", job.Key).Warn("failed to warm cache key")
				cw.failed.Add(1)
				return nil
			}
			mu.Lock()
			warmed++
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	cw.runs.Add(1)

	cw.log.WithFields(logrus.Fields{"jobs": len(jobs), "warmed": warmed}).Debug("cache warming completed")
	return warmed
}

func (cw *CacheWarmer) shouldWarmup(ctx context.Context) bool {
	if cw.strategy.HealthCheckFunc != nil {
		return cw.strategy.HealthCheckFunc(ctx)
	}
	return true
}

func (cw *CacheWarmer) GetStats() map[string]interface{} {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	return map[string]interface{}{
		"running":         cw.running,
		"interval":        cw.strategy.WarmupInterval.String(),
		"total_jobs":      cw.queue.Len(),
		"concurrent_jobs": cw.strategy.ConcurrentJobs,
		"runs":            cw.runs.Load(),
		"failed_jobs":     cw.failed.Load(),
	}
}
