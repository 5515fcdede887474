package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

type JobType string

const (
	JobTypeTaskReminder JobType = "task_reminder"
)

const (
	RetryQueue   = "retry_queue"
	DeadQueue    = "dead_queue"
	ScheduledSet = "scheduled_jobs"

	defaultMaxTries = 3
)

type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Queue     string          `json:"queue"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	MaxTries  int             `json:"max_tries"`
	CreatedAt time.Time       `json:"created_at"`
	ProcessAt time.Time       `json:"process_at"`
}

// Decode unmarshals the job payload into dest.
func (j *Job) Decode(dest interface{}) error {
	if err := json.Unmarshal(j.Payload, dest); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", j.Type, err)
	}
	return nil
}

type JobHandler func(ctx context.Context, job *Job) error

type WorkerConfig struct {
	RedisClient    *redis.Client
	Concurrency    int
	PollInterval   time.Duration
	JobTimeout     time.Duration
	RetryBaseDelay time.Duration
	Queues         []string
	Log            *logrus.Entry
}

// Worker pops jobs from redis lists with BLPOP. Jobs scheduled for later
// wait in a sorted set until a promoter moves them onto their queue.
type Worker struct {
	client   *redis.Client
	queue    *JobQueue
	handlers map[JobType]JobHandler
	queues   []string
	config   WorkerConfig
	log      *logrus.Entry
	now      func() time.Time

	mu     sync.RWMutex
	cancel context.CancelFunc
	wg     sync.WaitGroup

	processed atomic.Int64
	retried   atomic.Int64
	dead      atomic.Int64
}

func NewWorker(config WorkerConfig) *Worker {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.PollInterval < time.Second {
		// BLPOP timeouts have whole-second resolution
		config.PollInterval = time.Second
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 30 * time.Second
	}
	if config.RetryBaseDelay <= 0 {
		config.RetryBaseDelay = time.Minute
	}
	if len(config.Queues) == 0 {
		config.Queues = []string{ReminderQueue, RetryQueue}
	}
	if config.Log == nil {
		config.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Worker{
		client:   config.RedisClient,
		queue:    NewJobQueue(config.RedisClient),
		handlers: make(map[JobType]JobHandler),
		queues:   config.Queues,
		config:   config,
		log:      config.Log.WithField("component", "worker"),
		now:      time.Now,
	}
}

func (w *Worker) RegisterHandler(jobType JobType, handler JobHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Start launches the consumer goroutines and the promoter. They run until
// Stop is called or ctx ends.
func (w *Worker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.cancel = cancel
	w.mu.Unlock()

	w.log.WithFields(logrus.Fields{
		"concurrency": w.config.Concurrency,
		"queues":      w.queues,
	}).Info("starting worker")

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx)
	}

	w.wg.Add(1)
	go w.promoteLoop(ctx)
}

func (w *Worker) Stop() {
	w.mu.RLock()
	cancel := w.cancel
	w.mu.RUnlock()
	if cancel == nil {
		return
	}

	w.log.Info("stopping worker")
	cancel()
	w.wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) workerLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.processNextJob(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.WithError(err).Error("error processing job")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (w *Worker) promoteLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := w.promoteDue(ctx); err != nil && ctx.Err() == nil {
			w.log.WithError(err).Warn("failed to promote scheduled jobs")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// promoteDue moves scheduled jobs whose time has come onto their queue.
// ZREM decides which of several promoters gets to move a job.
func (w *Worker) promoteDue(ctx context.Context) (int, error) {
	members, err := w.client.ZRangeByScore(ctx, ScheduledSet, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", w.now().UnixMilli()),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read scheduled jobs: %w", err)
	}

	moved := 0
	for _, member := range members {
		removed, err := w.client.ZRem(ctx, ScheduledSet, member).Result()
		if err != nil {
			return moved, fmt.Errorf("failed to claim scheduled job: %w", err)
		}
		if removed == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			w.log.WithError(err).Error("dropping undecodable scheduled job")
			continue
		}
		if err := w.client.RPush(ctx, job.Queue, member).Err(); err != nil {
			return moved, fmt.Errorf("failed to enqueue scheduled job: %w", err)
		}
		moved++
	}
	return moved, nil
}

func (w *Worker) processNextJob(ctx context.Context) error {
	result, err := w.client.BLPop(ctx, w.config.PollInterval, w.queues...).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to pop job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.Queue == "" {
		job.Queue = result[0]
	}

	if w.now().Before(job.ProcessAt) {
		return w.queue.schedule(ctx, &job)
	}

	return w.executeJob(ctx, &job)
}

func (w *Worker) executeJob(ctx context.Context, job *Job) error {
	w.mu.RLock()
	handler, exists := w.handlers[job.Type]
	w.mu.RUnlock()

	log := w.log.WithFields(logrus.Fields{"job_id": job.ID, "job_type": job.Type})
	if !exists {
		log.Error("no handler registered for job type")
		return w.moveToDeadQueue(ctx, job, fmt.Errorf("no handler registered for job type: %s", job.Type))
	}

	log.Debug("processing job")

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	err := handler(jobCtx, job)
	if err != nil {
		job.Attempts++
		if job.Attempts < job.MaxTries {
			log.WithError(err).WithFields(logrus.Fields{
				"attempt":   job.Attempts,
				"max_tries": job.MaxTries,
			}).Warn("job failed, retrying")
			return w.retryJob(ctx, job)
		}

		log.WithError(err).WithField("attempts", job.Attempts).Error("job failed permanently")
		return w.moveToDeadQueue(ctx, job, err)
	}

	w.processed.Add(1)
	log.Debug("job completed")
	return nil
}

// retryJob backs off exponentially: base, 2*base, 4*base, ...
func (w *Worker) retryJob(ctx context.Context, job *Job) error {
	w.retried.Add(1)
	delay := time.Duration(1<<(job.Attempts-1)) * w.config.RetryBaseDelay
	job.Queue = RetryQueue
	job.ProcessAt = w.now().Add(delay)
	return w.queue.schedule(ctx, job)
}

func (w *Worker) moveToDeadQueue(ctx context.Context, job *Job, jobErr error) error {
	w.dead.Add(1)
	deadJob := map[string]interface{}{
		"original_job": job,
		"error":        jobErr.Error(),
		"failed_at":    w.now(),
	}

	deadJobData, err := json.Marshal(deadJob)
	if err != nil {
		return fmt.Errorf("failed to marshal dead job: %w", err)
	}

	return w.client.RPush(ctx, DeadQueue, deadJobData).Err()
}

func (w *Worker) Stats() map[string]interface{} {
	return map[string]interface{}{
		"processed": w.processed.Load(),
		"retried":   w.retried.Load(),
		"dead":      w.dead.Load(),
		"queues":    w.queues,
	}
}

type JobQueue struct {
	client *redis.Client
}

func NewJobQueue(client *redis.Client) *JobQueue {
	return &JobQueue{client: client}
}

func (q *JobQueue) Enqueue(ctx context.Context, queue string, jobType JobType, payload interface{}) (*Job, error) {
	return q.EnqueueAt(ctx, queue, jobType, payload, time.Now())
}

// EnqueueAt pushes the job straight onto queue when processAt has passed,
// otherwise parks it in the scheduled set.
func (q *JobQueue) EnqueueAt(ctx context.Context, queue string, jobType JobType, payload interface{}, processAt time.Time) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &Job{
		ID:        uuid.Must(uuid.NewV4()).String(),
		Type:      jobType,
		Queue:     queue,
		Payload:   data,
		MaxTries:  defaultMaxTries,
		CreatedAt: time.Now().UTC(),
		ProcessAt: processAt.UTC(),
	}

	if processAt.After(time.Now()) {
		return job, q.schedule(ctx, job)
	}

	jobData, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, queue, jobData).Err(); err != nil {
		return nil, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return job, nil
}

func (q *JobQueue) schedule(ctx context.Context, job *Job) error {
	jobData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	return q.client.ZAdd(ctx, ScheduledSet, redis.Z{
		Score:  float64(job.ProcessAt.UnixMilli()),
		Member: jobData,
	}).Err()
}

func (q *JobQueue) GetQueueSize(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, queue).Result()
}

func (q *JobQueue) ScheduledCount(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, ScheduledSet).Result()
}
