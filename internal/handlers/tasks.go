package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"taskboard/internal/middleware"
	"taskboard/internal/models"
	"taskboard/internal/services"
)

type TaskHandler struct {
	taskService services.TaskService
	log         *logrus.Entry
}

func NewTaskHandler(taskService services.TaskService, log *logrus.Entry) *TaskHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &TaskHandler{taskService: taskService, log: log.WithField("component", "task_handler")}
}

func (h *TaskHandler) RegisterRoutes(r gin.IRouter) {
	tasks := r.Group("/tasks")
	tasks.GET("", h.GetTasks)
	tasks.POST("", h.CreateTask)
	tasks.GET("/:id", h.GetTaskByID)
	tasks.PATCH("/:id", h.UpdateTask)
	tasks.DELETE("/:id", h.DeleteTask)
}

func (h *TaskHandler) GetTasks(c *gin.Context) {
	filter, err := models.ParseTaskFilter(c.Request.URL.Query())
	if err != nil {
		h.handleTaskError(c, err, "failed to fetch tasks")
		return
	}

	list, err := h.taskService.GetTasks(c.Request.Context(), filter)
	if err != nil {
		h.handleTaskError(c, err, "failed to fetch tasks")
		return
	}
	if list.Tasks == nil {
		list.Tasks = []models.Task{}
	}
	c.JSON(http.StatusOK, list)
}

func (h *TaskHandler) GetTaskByID(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		notFound(c)
		return
	}

	task, err := h.taskService.GetTaskByID(c.Request.Context(), id)
	if err != nil {
		h.handleTaskError(c, err, "failed to fetch task")
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) CreateTask(c *gin.Context) {
	var input models.CreateTaskInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), input)
	if err != nil {
		h.handleTaskError(c, err, "failed to create task")
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) UpdateTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		notFound(c)
		return
	}

	var input models.UpdateTaskInput
	// an absent body is an empty patch
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil && !errors.Is(err, io.EOF) {
			badRequest(c, err)
			return
		}
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), id, input)
	if err != nil {
		h.handleTaskError(c, err, "failed to update task")
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *TaskHandler) DeleteTask(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		notFound(c)
		return
	}

	if err := h.taskService.DeleteTask(c.Request.Context(), id); err != nil {
		h.handleTaskError(c, err, "failed to delete task")
		return
	}
	c.Status(http.StatusNoContent)
}

// taskID reads the :id path segment. Anything that is not a positive
// integer cannot name a stored task.
func taskID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// badRequest answers a failed bind. Rule violations name the rule; anything
// else means the body could not be decoded.
func badRequest(c *gin.Context, err error) {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid request body"})
		return
	}

	fe := fieldErrs[0]
	var message string
	switch fe.Tag() {
	case "required":
		message = "title and status are required"
	case "oneof":
		message = strings.ToLower(fe.Field()) + " must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	default:
		message = strings.ToLower(fe.Field()) + " is invalid"
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": message})
}

func notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"message": "task not found"})
}

// handleTaskError maps service errors to responses. Anything unexpected is
// logged and answered with the generic message only.
func (h *TaskHandler) handleTaskError(c *gin.Context, err error, message string) {
	var validationErr *models.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"message": validationErr.Message})
	case errors.Is(err, services.ErrTaskNotFound):
		notFound(c)
	default:
		middleware.RequestLogger(c, h.log).WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
		}).Error(message)
		c.JSON(http.StatusInternalServerError, gin.H{"message": message})
	}
}
