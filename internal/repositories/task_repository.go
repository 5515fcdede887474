package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"taskboard/internal/models"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	// ErrNoChanges is returned by Update when the patch names no fields.
	ErrNoChanges = errors.New("no fields to update")
)

type TaskRepository struct {
	db           *gorm.DB
	queryTimeout time.Duration
}

func NewTaskRepository(db *gorm.DB, queryTimeout time.Duration) *TaskRepository {
	return &TaskRepository{db: db, queryTimeout: queryTimeout}
}

// session scopes the connection to the caller's context, bounded by the
// configured per-query timeout.
func (r *TaskRepository) session(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	if r.queryTimeout <= 0 {
		return r.db.WithContext(ctx), func() {}
	}
	ctx, cancel := context.WithTimeout(ctx, r.queryTimeout)
	return r.db.WithContext(ctx), cancel
}

func (r *TaskRepository) List(ctx context.Context, filter models.TaskFilter) (models.TaskList, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	query, err := r.applyFilter(db.Model(&models.Task{}), filter.Normalize())
	if err != nil {
		return models.TaskList{}, err
	}

	tasks := []models.Task{}
	err = query.
		Order("due_date IS NULL").
		Order("due_date ASC").
		Order("id ASC").
		Find(&tasks).Error
	if err != nil {
		return models.TaskList{}, fmt.Errorf("failed to list tasks: %w", err)
	}

	var total int64
	if err := db.Model(&models.Task{}).Count(&total).Error; err != nil {
		return models.TaskList{}, fmt.Errorf("failed to count tasks: %w", err)
	}

	return models.TaskList{Tasks: tasks, Total: total}, nil
}

func (r *TaskRepository) applyFilter(query *gorm.DB, filter models.TaskFilter) (*gorm.DB, error) {
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	if len(filter.Tags) > 0 {
		clause, args, err := tagMatchAny(r.db.Dialector.Name(), filter.Tags)
		if err != nil {
			return nil, err
		}
		query = query.Where(clause, args...)
	}

	if filter.StartDate != nil {
		query = query.Where("due_date >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("due_date <= ?", *filter.EndDate)
	}

	if filter.Search != "" {
		pattern := "%" + escapeLike(foldSearch(r.db.Dialector.Name(), filter.Search)) + "%"
		query = query.Where(
			"LOWER(title) LIKE ? ESCAPE '\\' OR LOWER(description) LIKE ? ESCAPE '\\'",
			pattern, pattern,
		)
	}

	return query, nil
}

func tagMatchAny(dialect string, tags []string) (string, []interface{}, error) {
	if dialect == "postgres" {
		clauses := make([]string, 0, len(tags))
		args := make([]interface{}, 0, len(tags))
		for _, tag := range tags {
			data, err := json.Marshal([]string{tag})
			if err != nil {
				return "", nil, fmt.Errorf("failed to encode tag filter: %w", err)
			}
			clauses = append(clauses, "tags @> ?::jsonb")
			args = append(args, string(data))
		}
		return "(" + strings.Join(clauses, " OR ") + ")", args, nil
	}

	return "EXISTS (SELECT 1 FROM json_each(tasks.tags) WHERE json_each.value IN ?)", []interface{}{tags}, nil
}

// foldSearch lowercases term the way the dialect's LOWER() folds the
// column. sqlite folds only ASCII letters, so non-ASCII text matches
// case-sensitively there.
func foldSearch(dialect, term string) string {
	if dialect == "postgres" {
		return strings.ToLower(term)
	}
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, term)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

func (r *TaskRepository) GetByID(ctx context.Context, id uint) (*models.Task, error) {
	if id == 0 {
		return nil, ErrTaskNotFound
	}

	db, cancel := r.session(ctx)
	defer cancel()

	var task models.Task
	if err := db.First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to find task: %w", err)
	}
	return &task, nil
}

// Create inserts the task and returns the stored row as read back.
func (r *TaskRepository) Create(ctx context.Context, input models.CreateTaskInput) (*models.Task, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	tags := models.Tags(input.Tags)
	if tags == nil {
		tags = models.Tags{}
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	task := models.Task{
		Title:       input.Title,
		Description: input.Description,
		Status:      input.Status,
		Tags:        tags,
		DueDate:     input.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := db.Create(&task).Error; err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	return r.GetByID(ctx, task.ID)
}

// Update applies only the fields present in the patch and refreshes
// updatedAt.
func (r *TaskRepository) Update(ctx context.Context, id uint, patch models.UpdateTaskInput) (*models.Task, error) {
	if patch.IsEmpty() {
		return nil, ErrNoChanges
	}
	if id == 0 {
		return nil, ErrTaskNotFound
	}

	changes := patch.Changes()
	changes["updated_at"] = time.Now().UTC().Truncate(time.Microsecond)

	db, cancel := r.session(ctx)
	result := db.Model(&models.Task{}).Where("id = ?", id).Updates(changes)
	cancel()

	if err := result.Error; err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if result.RowsAffected == 0 {
		return nil, ErrTaskNotFound
	}

	return r.GetByID(ctx, id)
}

func (r *TaskRepository) Delete(ctx context.Context, id uint) (bool, error) {
	if id == 0 {
		return false, nil
	}

	db, cancel := r.session(ctx)
	defer cancel()

	result := db.Delete(&models.Task{}, id)
	if err := result.Error; err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	return result.RowsAffected > 0, nil
}

func (r *TaskRepository) Count(ctx context.Context) (int64, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	var total int64
	if err := db.Model(&models.Task{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count tasks: %w", err)
	}
	return total, nil
}

// DueBetween returns unfinished tasks due within [from, to].
func (r *TaskRepository) DueBetween(ctx context.Context, from, to models.Date) ([]models.Task, error) {
	db, cancel := r.session(ctx)
	defer cancel()

	tasks := []models.Task{}
	err := db.
		Where("due_date >= ? AND due_date <= ?", from, to).
		Where("status <> ?", models.StatusDone).
		Order("due_date ASC").
		Order("id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find due tasks: %w", err)
	}
	return tasks, nil
}
