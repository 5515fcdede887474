package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type TaskStatus string

const (
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusDone       TaskStatus = "DONE"
)

var ErrInvalidStatus = errors.New("invalid task status")

func AllStatuses() []TaskStatus {
	return []TaskStatus{StatusTodo, StatusInProgress, StatusDone}
}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

func ParseTaskStatus(raw string) (TaskStatus, error) {
	status := TaskStatus(strings.TrimSpace(raw))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return status, nil
}

type Task struct {
	ID          uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	Title       string     `json:"title" gorm:"size:255;not null;check:chk_tasks_title_not_empty,title <> ''"`
	Description string     `json:"description" gorm:"type:text"`
	Status      TaskStatus `json:"status" gorm:"size:16;not null;default:'TODO';index:idx_tasks_status;check:chk_tasks_status,status IN ('TODO','IN_PROGRESS','DONE')"`
	Tags        Tags       `json:"tags" gorm:"not null"`
	DueDate     *Date      `json:"dueDate" gorm:"column:due_date;index:idx_tasks_due_date"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func (Task) TableName() string {
	return "tasks"
}

// TaskList is the list payload. Total counts every stored task, not only
// the ones that matched the filter.
type TaskList struct {
	Tasks []Task `json:"tasks"`
	Total int64  `json:"total"`
}

type CreateTaskInput struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status" binding:"required,oneof=TODO IN_PROGRESS DONE"`
	Tags        []string   `json:"tags"`
	DueDate     *Date      `json:"dueDate"`
}

// Validate normalizes title and tags in place. Presence and the status
// enum are checked by the binding tags; a title that trims to nothing is
// still rejected here.
func (in *CreateTaskInput) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return &ValidationError{Field: "title", Message: "title and status are required"}
	}
	tags, err := NormalizeTags(in.Tags)
	if err != nil {
		return err
	}
	in.Tags = tags
	return nil
}

// UpdateTaskInput is a partial update. Nil pointers are left untouched;
// DueDate distinguishes "absent" from an explicit null that clears it.
type UpdateTaskInput struct {
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	Status      *TaskStatus  `json:"status,omitempty" binding:"omitempty,oneof=TODO IN_PROGRESS DONE"`
	Tags        *[]string    `json:"tags,omitempty"`
	DueDate     NullableDate `json:"dueDate"`
}

func (in UpdateTaskInput) IsEmpty() bool {
	return in.Title == nil && in.Description == nil && in.Status == nil && in.Tags == nil && !in.DueDate.Set
}

func (in *UpdateTaskInput) Validate() error {
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return &ValidationError{Field: "title", Message: "title cannot be empty"}
		}
		in.Title = &title
	}
	if in.Tags != nil {
		tags, err := NormalizeTags(*in.Tags)
		if err != nil {
			return err
		}
		normalized := []string(tags)
		in.Tags = &normalized
	}
	return nil
}

// Changes returns the column assignments for the fields present in the patch.
func (in UpdateTaskInput) Changes() map[string]interface{} {
	changes := make(map[string]interface{})
	if in.Title != nil {
		changes["title"] = *in.Title
	}
	if in.Description != nil {
		changes["description"] = *in.Description
	}
	if in.Status != nil {
		changes["status"] = *in.Status
	}
	if in.Tags != nil {
		changes["tags"] = Tags(*in.Tags)
	}
	if in.DueDate.Set {
		if in.DueDate.Date == nil {
			changes["due_date"] = nil
		} else {
			changes["due_date"] = *in.DueDate.Date
		}
	}
	return changes
}

func statusList() string {
	names := make([]string, 0, 3)
	for _, s := range AllStatuses() {
		names = append(names, string(s))
	}
	return strings.Join(names, ", ")
}
