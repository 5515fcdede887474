package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"taskboard/internal/client"
	"taskboard/internal/grouping"
	"taskboard/internal/models"
)

// TaskStore is the cached data layer the commands read and write through.
type TaskStore interface {
	ListTasks(ctx context.Context, filter models.TaskFilter) (models.TaskList, error)
	GetTask(ctx context.Context, id uint) (*models.Task, error)
	CreateTask(ctx context.Context, input models.CreateTaskInput) (*models.Task, error)
	UpdateTask(ctx context.Context, id uint, patch models.UpdateTaskInput) (*models.Task, error)
	DeleteTask(ctx context.Context, id uint) error
}

type App struct {
	Store    TaskStore
	Stdin    io.Reader
	Stdout   io.Writer
	Stderr   io.Writer
	Location *time.Location
}

const usage = `usage: taskctl [--api URL] [--timeout D] <command> [args]

commands:
  list   [--status S] [--search Q] [--tag T ...] [--from D] [--to D] [--group week|month|year]
  get    ID
  create --title T --description D [--status S] [--tag T ...] [--due D]
  edit   ID [--title T] [--description D] [--status S] [--tag T ...] [--clear-tags] [--due D | --clear-due]
  delete ID [--yes]
`

// Run executes one command and returns the process exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.Stderr, usage)
		return ExitInvalidInvocation
	}

	var err error
	switch args[0] {
	case "list":
		err = a.list(ctx, args[1:])
	case "get":
		err = a.get(ctx, args[1:])
	case "create":
		err = a.create(ctx, args[1:])
	case "edit":
		err = a.edit(ctx, args[1:])
	case "delete":
		err = a.delete(ctx, args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(a.Stdout, usage)
		return ExitSuccess
	default:
		err = invalidInvocationf("unknown command %q", args[0])
	}
	return a.exitCode(err)
}

func (a *App) exitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var invErr *InvocationError
	if errors.As(err, &invErr) {
		fmt.Fprintln(a.Stderr, invErr.Message)
		fmt.Fprint(a.Stderr, usage)
		return invErr.ExitCode
	}
	if !errors.Is(err, errNotified) {
		fmt.Fprintf(a.Stderr, "error: %v\n", err)
	}
	return ExitFailure
}

// errNotified marks failures the store already reported to the user.
var errNotified = errors.New("already notified")

func (a *App) list(ctx context.Context, args []string) error {
	fs := newFlagSet("list")
	var tags stringList
	status := fs.String("status", "", "only tasks with this status")
	search := fs.String("search", "", "substring of title or description")
	from := fs.String("from", "", "due on or after this date")
	to := fs.String("to", "", "due on or before this date")
	group := fs.String("group", "", "group by week, month or year")
	fs.Var(&tags, "tag", "carries this tag (repeatable)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return invalidInvocationf("list: unexpected arguments: %q", strings.Join(fs.Args(), " "))
	}

	filter := models.TaskFilter{Tags: cleanTags(tags), Search: *search}
	if *status != "" {
		s, err := parseStatusFlag(*status)
		if err != nil {
			return err
		}
		filter.Status = &s
	}
	var err error
	if *from != "" {
		if filter.StartDate, err = parseDateFlag("from", *from); err != nil {
			return err
		}
	}
	if *to != "" {
		if filter.EndDate, err = parseDateFlag("to", *to); err != nil {
			return err
		}
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.StartDate.After(*filter.EndDate) {
		return invalidInvocationf("--from must not be after --to")
	}

	var period grouping.Period
	if *group != "" {
		if period, err = grouping.ParsePeriod(*group); err != nil {
			return invalidInvocationf("--group: %v", err)
		}
	}

	list, err := a.Store.ListTasks(ctx, filter)
	if err != nil {
		return err
	}

	if period != "" {
		RenderGroups(a.Stdout, list.Tasks, period, a.Location)
	} else {
		RenderList(a.Stdout, list.Tasks)
	}
	fmt.Fprintf(a.Stdout, "\n%d shown, %d total\n", len(list.Tasks), list.Total)
	return nil
}

func (a *App) get(ctx context.Context, args []string) error {
	id, err := taskIDArg(newFlagSet("get"), args)
	if err != nil {
		return err
	}
	task, err := a.Store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	RenderCard(a.Stdout, *task)
	return nil
}

func (a *App) create(ctx context.Context, args []string) error {
	fs := newFlagSet("create")
	var tags stringList
	title := fs.String("title", "", "task title (required)")
	description := fs.String("description", "", "task description (required)")
	status := fs.String("status", string(models.StatusTodo), "TODO, IN_PROGRESS or DONE")
	due := fs.String("due", "", "due date, YYYY-MM-DD")
	fs.Var(&tags, "tag", "tag label (repeatable)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return invalidInvocationf("create: unexpected arguments: %q", strings.Join(fs.Args(), " "))
	}

	input := models.CreateTaskInput{
		Title:       strings.TrimSpace(*title),
		Description: strings.TrimSpace(*description),
		Tags:        cleanTags(tags),
	}
	if input.Title == "" {
		return invalidInvocationf("--title is required")
	}
	if input.Description == "" {
		return invalidInvocationf("--description is required")
	}
	s, err := parseStatusFlag(*status)
	if err != nil {
		return err
	}
	input.Status = s
	if *due != "" {
		if input.DueDate, err = parseDateFlag("due", *due); err != nil {
			return err
		}
	}

	task, err := a.Store.CreateTask(ctx, input)
	if err != nil {
		return errNotified
	}
	RenderCard(a.Stdout, *task)
	return nil
}

func (a *App) edit(ctx context.Context, args []string) error {
	fs := newFlagSet("edit")
	var tags stringList
	title := fs.String("title", "", "new title")
	description := fs.String("description", "", "new description")
	status := fs.String("status", "", "new status")
	due := fs.String("due", "", "new due date, YYYY-MM-DD")
	clearDue := fs.Bool("clear-due", false, "remove the due date")
	clearTags := fs.Bool("clear-tags", false, "remove every tag")
	fs.Var(&tags, "tag", "replacement tag (repeatable)")

	id, err := taskIDArg(fs, args)
	if err != nil {
		return err
	}
	set := visited(fs)

	var patch models.UpdateTaskInput
	if set["title"] {
		t := strings.TrimSpace(*title)
		if t == "" {
			return invalidInvocationf("--title cannot be empty")
		}
		patch.Title = &t
	}
	if set["description"] {
		patch.Description = description
	}
	if set["status"] {
		s, err := parseStatusFlag(*status)
		if err != nil {
			return err
		}
		patch.Status = &s
	}
	if *clearTags && len(tags) > 0 {
		return invalidInvocationf("--tag and --clear-tags are mutually exclusive")
	}
	if *clearTags || len(tags) > 0 {
		cleaned := cleanTags(tags)
		patch.Tags = &cleaned
	}
	if *clearDue && set["due"] {
		return invalidInvocationf("--due and --clear-due are mutually exclusive")
	}
	if *clearDue {
		patch.DueDate = models.ClearDate()
	} else if set["due"] {
		d, err := parseDateFlag("due", *due)
		if err != nil {
			return err
		}
		patch.DueDate = models.SetDate(*d)
	}
	if patch.IsEmpty() {
		return invalidInvocationf("edit: nothing to change")
	}

	task, err := a.Store.UpdateTask(ctx, id, patch)
	if err != nil {
		return errNotified
	}
	RenderCard(a.Stdout, *task)
	return nil
}

func (a *App) delete(ctx context.Context, args []string) error {
	fs := newFlagSet("delete")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	id, err := taskIDArg(fs, args)
	if err != nil {
		return err
	}

	if !*yes {
		task, err := a.Store.GetTask(ctx, id)
		if err != nil {
			return err
		}
		if !a.confirm(fmt.Sprintf("Delete task #%d %q? This cannot be undone. [y/N] ", task.ID, task.Title)) {
			fmt.Fprintln(a.Stderr, "Cancelled.")
			return nil
		}
	}

	if err := a.Store.DeleteTask(ctx, id); err != nil {
		return errNotified
	}
	return nil
}

func (a *App) confirm(prompt string) bool {
	fmt.Fprint(a.Stderr, prompt)
	if a.Stdin == nil {
		return false
	}
	line, err := bufio.NewReader(a.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

// NewApp wires an App to the API at baseURL with a caching store whose
// notifications go to stderr.
func NewApp(baseURL string, timeout time.Duration, stdin io.Reader, stdout, stderr io.Writer) *App {
	api := client.New(baseURL, client.WithTimeout(timeout))
	store := client.NewStore(api, client.WithNotifier(client.NewWriterNotifier(stderr)))
	return &App{
		Store:    store,
		Stdin:    stdin,
		Stdout:   stdout,
		Stderr:   stderr,
		Location: time.Local,
	}
}

// Main parses the global flags, then runs the command that follows them.
func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer, getenv func(string) string) int {
	fs := newFlagSet("taskctl")
	defaultURL := client.DefaultBaseURL
	if getenv != nil {
		if v := getenv("TASKBOARD_API_URL"); v != "" {
			defaultURL = v
		}
	}
	apiURL := fs.String("api", defaultURL, "API base URL")
	timeout := fs.Duration("timeout", client.DefaultTimeout, "request timeout")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(stderr, err)
		fmt.Fprint(stderr, usage)
		return ExitInvalidInvocation
	}

	return NewApp(*apiURL, *timeout, stdin, stdout, stderr).Run(ctx, fs.Args())
}
