package client

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"taskboard/internal/cache"
	"taskboard/internal/models"
)

const DefaultStoreTTL = 30 * time.Second

// TaskAPI is the remote side of a Store.
type TaskAPI interface {
	ListTasks(ctx context.Context, filter models.TaskFilter) (models.TaskList, error)
	GetTask(ctx context.Context, id uint) (*models.Task, error)
	CreateTask(ctx context.Context, input models.CreateTaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, id uint, patch models.UpdateTaskInput) (*models.Task, error)
	DeleteTask(ctx context.Context, id uint) error
}

// Store caches reads by key and invalidates the affected keys after each
// successful mutation. Callers always receive copies of cached values.
type Store struct {
	api      TaskAPI
	cache    *cache.MemoryCache
	ttl      time.Duration
	notifier Notifier
	log      *logrus.Entry
}

type StoreOption func(*Store)

func WithNotifier(n Notifier) StoreOption {
	return func(s *Store) { s.notifier = n }
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

func WithLogger(log *logrus.Entry) StoreOption {
	return func(s *Store) { s.log = log }
}

func NewStore(api TaskAPI, opts ...StoreOption) *Store {
	s := &Store{
		api:      api,
		cache:    cache.NewMemoryCache(),
		ttl:      DefaultStoreTTL,
		notifier: discardNotifier{},
		log:      logrus.NewEntry(logrus.StandardLogger()),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("component", "task_store")
	return s
}

func (s *Store) ListTasks(ctx context.Context, filter models.TaskFilter) (models.TaskList, error) {
	filter = filter.Normalize()
	key := ListKey(filter).String()

	if cached, ok := s.cache.Get(key); ok {
		return cloneList(cached.(models.TaskList)), nil
	}

	list, err := s.api.ListTasks(ctx, filter)
	if err != nil {
		return models.TaskList{}, err
	}
	s.cache.Set(key, cloneList(list), s.ttl)
	return list, nil
}

func (s *Store) GetTask(ctx context.Context, id uint) (*models.Task, error) {
	key := DetailKey(id).String()

	if cached, ok := s.cache.Get(key); ok {
		task := cloneTask(cached.(models.Task))
		return &task, nil
	}

	task, err := s.api.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, cloneTask(*task), s.ttl)
	return task, nil
}

func (s *Store) CreateTask(ctx context.Context, input models.CreateTaskInput) (*models.Task, error) {
	task, err := s.api.CreateTask(ctx, input)
	if err != nil {
		s.notifyError("Create failed", "Could not create the task. Please try again.", err)
		return nil, err
	}

	s.invalidateLists()
	s.notifier.Notify(Notification{
		Level:       LevelSuccess,
		Title:       "Task created",
		Description: fmt.Sprintf("Task %q was created.", task.Title),
	})
	return task, nil
}

func (s *Store) UpdateTask(ctx context.Context, id uint, patch models.UpdateTaskInput) (*models.Task, error) {
	task, err := s.api.UpdateTask(ctx, id, patch)
	if err != nil {
		s.notifyError("Update failed", "Could not update the task. Please try again.", err)
		return nil, err
	}

	s.invalidateLists()
	s.cache.Delete(DetailKey(id).String())
	s.notifier.Notify(Notification{
		Level:       LevelSuccess,
		Title:       "Task updated",
		Description: fmt.Sprintf("Task %q was updated.", task.Title),
	})
	return task, nil
}

func (s *Store) DeleteTask(ctx context.Context, id uint) error {
	if err := s.api.DeleteTask(ctx, id); err != nil {
		s.notifyError("Delete failed", "Could not delete the task. Please try again.", err)
		return err
	}

	s.invalidateLists()
	s.cache.Delete(DetailKey(id).String())
	s.notifier.Notify(Notification{
		Level:       LevelSuccess,
		Title:       "Task deleted",
		Description: "The task was deleted.",
	})
	return nil
}

// Invalidate drops every cached entry.
func (s *Store) Invalidate() {
	s.cache.Clear()
}

func (s *Store) Stats() map[string]interface{} {
	return s.cache.Stats()
}

func (s *Store) invalidateLists() {
	removed := s.cache.DeletePattern(cache.ListPattern())
	s.log.WithField("removed", removed).Debug("list queries invalidated")
}

func (s *Store) notifyError(title, description string, err error) {
	s.log.WithError(err).Debug(title)
	s.notifier.Notify(Notification{Level: LevelError, Title: title, Description: description})
}

func cloneTask(task models.Task) models.Task {
	out := task
	if task.Tags != nil {
		out.Tags = append(models.Tags(nil), task.Tags...)
	}
	if task.DueDate != nil {
		due := *task.DueDate
		out.DueDate = &due
	}
	return out
}

func cloneList(list models.TaskList) models.TaskList {
	out := models.TaskList{Total: list.Total, Tasks: make([]models.Task, len(list.Tasks))}
	for i, task := range list.Tasks {
		out.Tasks[i] = cloneTask(task)
	}
	return out
}
