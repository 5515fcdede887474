package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskboard/internal/logger"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func newTestWorker(t *testing.T) (*Worker, *redis.Client, *miniredis.Miniredis) {
	client, mr := setupTestRedis(t)
	w := NewWorker(WorkerConfig{
		RedisClient: client,
		Concurrency: 1,
		Queues:      []string{ReminderQueue, RetryQueue},
		Log:         logger.Discard(),
	})
	return w, client, mr
}

func TestNewWorker_Defaults(t *testing.T) {
	w := NewWorker(WorkerConfig{PollInterval: time.Millisecond})

	assert.Equal(t, 1, w.config.Concurrency)
	assert.Equal(t, time.Second, w.config.PollInterval)
	assert.Equal(t, 30*time.Second, w.config.JobTimeout)
	assert.Equal(t, []string{ReminderQueue, RetryQueue}, w.queues)
}

func TestJobQueue_EnqueueNowAndLater(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewJobQueue(client)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, ReminderQueue, JobTypeTaskReminder, ReminderPayload{TaskID: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, defaultMaxTries, job.MaxTries)

	_, err = q.EnqueueAt(ctx, ReminderQueue, JobTypeTaskReminder, ReminderPayload{TaskID: 2}, time.Now().Add(time.Hour))
	require.NoError(t, err)

	size, err := q.GetQueueSize(ctx, ReminderQueue)
	require.NoError(t, err)
	assert.EqualValues(t, 1, size)

	scheduled, err := q.ScheduledCount(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, scheduled)
}

func TestWorker_PromoteDue(t *testing.T) {
	w, client, _ := newTestWorker(t)
	ctx := context.Background()

	_, err := w.queue.EnqueueAt(ctx, ReminderQueue, JobTypeTaskReminder, ReminderPayload{TaskID: 1}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = w.queue.EnqueueAt(ctx, ReminderQueue, JobTypeTaskReminder, ReminderPayload{TaskID: 2}, time.Now().Add(3*time.Hour))
	require.NoError(t, err)

	moved, err := w.promoteDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, moved)

	w.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	moved, err = w.promoteDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	assert.EqualValues(t, 1, client.LLen(ctx, ReminderQueue).Val())
	assert.EqualValues(t, 1, client.ZCard(ctx, ScheduledSet).Val())
}

func TestWorker_ProcessNextJob(t *testing.T) {
	w, _, _ := newTestWorker(t)
	ctx := context.Background()

	var got ReminderPayload
	w.RegisterHandler(JobTypeTaskReminder, func(ctx context.Context, job *Job) error {
		return job.Decode(&got)
	})

	_, err := w.queue.Enqueue(ctx, ReminderQueue, JobTypeTaskReminder, ReminderPayload{TaskID: 9, DueDate: "2024-05-01"})
	require.NoError(t, err)

	require.NoError(t, w.processNextJob(ctx))
	assert.Equal(t, ReminderPayload{TaskID: 9, DueDate: "2024-05-01"}, got)
	assert.EqualValues(t, 1, w.Stats()["processed"])
}

func TestWorker_RetryThenDeadLetter(t *testing.T) {
	w, client, _ := newTestWorker(t)
	ctx := context.Background()

	calls := 0
	w.RegisterHandler(JobTypeTaskReminder, func(ctx context.Context, job *Job) error {
		calls++
		return errors.New("boom")
	})

	job, err := w.queue.Enqueue(ctx, ReminderQueue, JobTypeTaskReminder, ReminderPayload{TaskID: 1})
	require.NoError(t, err)

	for attempt := 1; attempt < defaultMaxTries; attempt++ {
		require.NoError(t, w.executeJob(ctx, job))
		assert.Equal(t, attempt, job.Attempts)
		assert.Equal(t, RetryQueue, job.Queue)
	}
	assert.EqualValues(t, defaultMaxTries-1, client.ZCard(ctx, ScheduledSet).Val())

	require.NoError(t, w.executeJob(ctx, job))
	assert.Equal(t, defaultMaxTries, calls)
	assert.EqualValues(t, 1, client.LLen(ctx, DeadQueue).Val())

	var dead map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(client.LIndex(ctx, DeadQueue, 0).Val()), &dead))
	assert.Equal(t, "boom", dead["error"])
}

func TestWorker_UnknownJobTypeIsDeadLettered(t *testing.T) {
	w, client, _ := newTestWorker(t)
	ctx := context.Background()

	job := &Job{ID: "x", Type: "mystery", MaxTries: 3}
	require.NoError(t, w.executeJob(ctx, job))
	assert.EqualValues(t, 1, client.LLen(ctx, DeadQueue).Val())
}

func TestWorker_EarlyJobIsParked(t *testing.T) {
	w, client, _ := newTestWorker(t)
	ctx := context.Background()

	job := Job{ID: "early", Type: JobTypeTaskReminder, Queue: ReminderQueue, MaxTries: 3, ProcessAt: time.Now().Add(time.Hour)}
	data, err := json.Marshal(job)
	require.NoError(t, err)
	require.NoError(t, client.RPush(ctx, ReminderQueue, data).Err())

	require.NoError(t, w.processNextJob(ctx))
	assert.EqualValues(t, 0, client.LLen(ctx, ReminderQueue).Val())
	assert.EqualValues(t, 1, client.ZCard(ctx, ScheduledSet).Val())
}

func TestWorker_StartAndStop(t *testing.T) {
	w, _, _ := newTestWorker(t)

	done := make(chan uint, 1)
	w.RegisterHandler(JobTypeTaskReminder, func(ctx context.Context, job *Job) error {
		var payload ReminderPayload
		if err := job.Decode(&payload); err != nil {
			return err
		}
		done <- payload.TaskID
		return nil
	})

	w.Start(context.Background())
	_, err := w.queue.Enqueue(context.Background(), ReminderQueue, JobTypeTaskReminder, ReminderPayload{TaskID: 5})
	require.NoError(t, err)

	select {
	case id := <-done:
		assert.EqualValues(t, 5, id)
	case <-time.After(3 * time.Second):
		t.Fatal("job was not processed")
	}

	w.Stop()
	w.Stop()
}
