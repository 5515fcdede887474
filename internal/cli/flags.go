package cli

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"taskboard/internal/models"
)

const (
	ExitSuccess           = 0
	ExitFailure           = 1
	ExitInvalidInvocation = 2
)

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return invalidInvocationf("%s: %v", fs.Name(), err)
	}
	return nil
}

// visited reports which flags were given explicitly.
func visited(fs *flag.FlagSet) map[string]bool {
	seen := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	return seen
}

// taskIDArg reads the single positional task id. Flags may follow it.
func taskIDArg(fs *flag.FlagSet, args []string) (uint, error) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return 0, invalidInvocationf("%s: task id is required", fs.Name())
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || id == 0 {
		return 0, invalidInvocationf("%s: invalid task id %q", fs.Name(), args[0])
	}
	if err := parseFlags(fs, args[1:]); err != nil {
		return 0, err
	}
	if fs.NArg() != 0 {
		return 0, invalidInvocationf("%s: unexpected arguments: %q", fs.Name(), strings.Join(fs.Args(), " "))
	}
	return uint(id), nil
}

func parseStatusFlag(raw string) (models.TaskStatus, error) {
	status, err := models.ParseTaskStatus(strings.ToUpper(raw))
	if err != nil {
		return "", invalidInvocationf("--status must be one of TODO, IN_PROGRESS, DONE (got %q)", raw)
	}
	return status, nil
}

func parseDateFlag(name, raw string) (*models.Date, error) {
	d, err := models.ParseDate(raw)
	if err != nil {
		return nil, invalidInvocationf("--%s: %v", name, err)
	}
	return &d, nil
}

// cleanTags trims labels and drops blank ones.
func cleanTags(raw []string) []string {
	out := []string{}
	for _, tag := range raw {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
