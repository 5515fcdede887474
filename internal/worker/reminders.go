package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"taskboard/internal/models"
)

const (
	ReminderQueue   = "reminders"
	ReminderChannel = "taskboard:reminders"
)

type ReminderPayload struct {
	TaskID  uint   `json:"task_id"`
	DueDate string `json:"due_date"`
}

// TaskLookup loads a task by id.
type TaskLookup interface {
	GetTaskByID(ctx context.Context, id uint) (*models.Task, error)
}

// DueLister lists open tasks due in a window.
type DueLister interface {
	DueBetween(ctx context.Context, from, to models.Date) ([]models.Task, error)
}

// ReminderScheduler queues one reminder per task and due date. It is
// notified of every saved or deleted task.
type ReminderScheduler struct {
	client *redis.Client
	queue  *JobQueue
	hour   int
	log    *logrus.Entry
	now    func() time.Time
}

func NewReminderScheduler(client *redis.Client, reminderHour int, log *logrus.Entry) *ReminderScheduler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &ReminderScheduler{
		client: client,
		queue:  NewJobQueue(client),
		hour:   reminderHour,
		log:    log.WithField("component", "reminder_scheduler"),
		now:    time.Now,
	}
}

func reminderMarker(id uint, due models.Date) string {
	return fmt.Sprintf("reminders:scheduled:%d:%s", id, due)
}

// Schedule queues a reminder for task unless it is done, has no due date,
// is overdue, or already has one queued for the same date.
func (s *ReminderScheduler) Schedule(ctx context.Context, task models.Task) (bool, error) {
	if task.DueDate == nil || task.Status == models.StatusDone {
		return false, nil
	}

	now := s.now().UTC()
	due := *task.DueDate
	if due.Before(models.DateOf(now).Time) {
		return false, nil
	}

	at := due.Add(time.Duration(s.hour) * time.Hour)
	if at.Before(now) {
		at = now
	}

	// the marker outlives the reminder by a day so repeated saves collapse
	fresh, err := s.client.SetNX(ctx, reminderMarker(task.ID, due), 1, at.Sub(now)+24*time.Hour).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder: %w", err)
	}
	if !fresh {
		return false, nil
	}

	payload := ReminderPayload{TaskID: task.ID, DueDate: due.String()}
	if _, err := s.queue.EnqueueAt(ctx, ReminderQueue, JobTypeTaskReminder, payload, at); err != nil {
		s.client.Del(ctx, reminderMarker(task.ID, due))
		return false, err
	}

	s.log.WithFields(logrus.Fields{"task_id": task.ID, "due_date": due.String(), "at": at}).Debug("reminder scheduled")
	return true, nil
}

func (s *ReminderScheduler) TaskSaved(ctx context.Context, task models.Task) {
	if _, err := s.Schedule(context.WithoutCancel(ctx), task); err != nil {
		s.log.WithError(err).WithField("task_id", task.ID).Warn("failed to schedule reminder")
	}
}

// TaskDeleted needs no bookkeeping: the reminder handler drops reminders
// for tasks that no longer exist.
func (s *ReminderScheduler) TaskDeleted(ctx context.Context, id uint) {}

// Backfill schedules reminders for open tasks due within the next days.
// It restores reminders lost when redis was flushed.
func (s *ReminderScheduler) Backfill(ctx context.Context, lister DueLister, days int) (int, error) {
	today := models.DateOf(s.now().UTC())
	until := models.DateOf(today.AddDate(0, 0, days))

	tasks, err := lister.DueBetween(ctx, today, until)
	if err != nil {
		return 0, fmt.Errorf("failed to list due tasks: %w", err)
	}

	scheduled := 0
	for _, task := range tasks {
		ok, err := s.Schedule(ctx, task)
		if err != nil {
			return scheduled, err
		}
		if ok {
			scheduled++
		}
	}

	s.log.WithFields(logrus.Fields{"candidates": len(tasks), "scheduled": scheduled}).Info("reminder backfill completed")
	return scheduled, nil
}

type Reminder struct {
	TaskID  uint              `json:"task_id"`
	Title   string            `json:"title"`
	Status  models.TaskStatus `json:"status"`
	DueDate string            `json:"due_date"`
}

// ReminderHandler fires a reminder if the task still exists, is still
// open, and is still due on the date the reminder was scheduled for.
func ReminderHandler(tasks TaskLookup, client *redis.Client, isNotFound func(error) bool, log *logrus.Entry) JobHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "reminder_handler")

	return func(ctx context.Context, job *Job) error {
		var payload ReminderPayload
		if err := job.Decode(&payload); err != nil {
			return err
		}

		task, err := tasks.GetTaskByID(ctx, payload.TaskID)
		if err != nil {
			if isNotFound != nil && isNotFound(err) {
				log.WithField("task_id", payload.TaskID).Debug("task gone, dropping reminder")
				return nil
			}
			return err
		}

		if task.Status == models.StatusDone || task.DueDate == nil || task.DueDate.String() != payload.DueDate {
			log.WithField("task_id", task.ID).Debug("reminder no longer applies")
			return nil
		}

		reminder := Reminder{TaskID: task.ID, Title: task.Title, Status: task.Status, DueDate: payload.DueDate}
		log.WithFields(logrus.Fields{
			"task_id":  task.ID,
			"title":    task.Title,
			"due_date": payload.DueDate,
		}).Info("task due reminder")

		data, err := json.Marshal(reminder)
		if err != nil {
			return err
		}
		if err := client.Publish(ctx, ReminderChannel, data).Err(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("failed to publish reminder: %w", err)
		}
		return nil
	}
}
