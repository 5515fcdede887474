package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"taskboard/internal/grouping"
	"taskboard/internal/models"
)

var statusLabels = map[models.TaskStatus]string{
	models.StatusTodo:       "To do",
	models.StatusInProgress: "In progress",
	models.StatusDone:       "Done",
}

func statusLabel(s models.TaskStatus) string {
	if label, ok := statusLabels[s]; ok {
		return label
	}
	return string(s)
}

// RenderCard writes one task as a small text card.
func RenderCard(w io.Writer, task models.Task) {
	fmt.Fprintf(w, "#%d %s [%s]\n", task.ID, task.Title, statusLabel(task.Status))
	if desc := strings.TrimSpace(task.Description); desc != "" {
		for _, line := range strings.Split(desc, "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	if len(task.Tags) > 0 {
		fmt.Fprintf(w, "    tags: %s\n", strings.Join(task.Tags, ", "))
	}
	if task.DueDate != nil {
		fmt.Fprintf(w, "    due: %s\n", task.DueDate)
	}
}

func RenderList(w io.Writer, tasks []models.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return
	}
	for i, task := range tasks {
		if i > 0 {
			fmt.Fprintln(w)
		}
		RenderCard(w, task)
	}
}

func RenderGroups(w io.Writer, tasks []models.Task, period grouping.Period, loc *time.Location) {
	groups := grouping.GroupByPeriod(tasks, period, loc)
	if len(groups) == 0 {
		fmt.Fprintln(w, "No tasks found.")
		return
	}
	for i, g := range groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "== %s (%d) ==\n", g.Label, len(g.Tasks))
		for j, task := range g.Tasks {
			if j > 0 {
				fmt.Fprintln(w)
			}
			RenderCard(w, task)
		}
	}
}
