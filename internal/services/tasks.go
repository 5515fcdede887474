package services

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"taskboard/internal/models"
	"taskboard/internal/repositories"
)

var ErrTaskNotFound = repositories.ErrTaskNotFound

type TaskService interface {
	GetTasks(ctx context.Context, filter models.TaskFilter) (models.TaskList, error)
	GetTaskByID(ctx context.Context, id uint) (*models.Task, error)
	CreateTask(ctx context.Context, input models.CreateTaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, id uint, input models.UpdateTaskInput) (*models.Task, error)
	DeleteTask(ctx context.Context, id uint) error
}

// TaskStore is the persistence the task service runs on.
type TaskStore interface {
	List(ctx context.Context, filter models.TaskFilter) (models.TaskList, error)
	GetByID(ctx context.Context, id uint) (*models.Task, error)
	Create(ctx context.Context, input models.CreateTaskInput) (*models.Task, error)
	Update(ctx context.Context, id uint, patch models.UpdateTaskInput) (*models.Task, error)
	Delete(ctx context.Context, id uint) (bool, error)
}

// TaskObserver is told about successful mutations.
type TaskObserver interface {
	TaskSaved(ctx context.Context, task models.Task)
	TaskDeleted(ctx context.Context, id uint)
}

type TaskServiceImpl struct {
	store     TaskStore
	observers []TaskObserver
	log       *logrus.Entry
}

func NewTaskService(store TaskStore, log *logrus.Entry, observers ...TaskObserver) *TaskServiceImpl {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TaskServiceImpl{
		store:     store,
		observers: observers,
		log:       log.WithField("component", "task_service"),
	}
}

func (s *TaskServiceImpl) GetTasks(ctx context.Context, filter models.TaskFilter) (models.TaskList, error) {
	return s.store.List(ctx, filter.Normalize())
}

func (s *TaskServiceImpl) GetTaskByID(ctx context.Context, id uint) (*models.Task, error) {
	return s.store.GetByID(ctx, id)
}

func (s *TaskServiceImpl) CreateTask(ctx context.Context, input models.CreateTaskInput) (*models.Task, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	task, err := s.store.Create(ctx, input)
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"task_id": task.ID, "status": task.Status}).Info("task created")
	s.notifySaved(ctx, *task)
	return task, nil
}

// UpdateTask applies a partial update. An empty patch returns the stored
// task untouched.
func (s *TaskServiceImpl) UpdateTask(ctx context.Context, id uint, input models.UpdateTaskInput) (*models.Task, error) {
	if input.IsEmpty() {
		return s.store.GetByID(ctx, id)
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	task, err := s.store.Update(ctx, id, input)
	if errors.Is(err, repositories.ErrNoChanges) {
		return s.store.GetByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	s.log.WithField("task_id", task.ID).Info("task updated")
	s.notifySaved(ctx, *task)
	return task, nil
}

func (s *TaskServiceImpl) DeleteTask(ctx context.Context, id uint) error {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrTaskNotFound
	}

	s.log.WithField("task_id", id).Info("task deleted")
	for _, observer := range s.observers {
		observer.TaskDeleted(ctx, id)
	}
	return nil
}

func (s *TaskServiceImpl) notifySaved(ctx context.Context, task models.Task) {
	for _, observer := range s.observers {
		observer.TaskSaved(ctx, task)
	}
}
