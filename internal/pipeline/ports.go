package pipeline

import (
	"context"
	"io"

	"github.com/blackwell-systems/eos-updater/internal/changelog"
	"github.com/blackwell-systems/eos-updater/internal/runner"
)

// Process is a running install command.
type Process interface {
	Done() <-chan runner.Exit
	Stdin() io.Writer
	Interrupt() error
}

// Runner starts backend commands.
type Runner interface {
	Query(ctx context.Context, argv, env []string) runner.Result
	Spawn(argv, env []string, out io.Writer) Process
}

// ChangeLog is the package manager's transaction log.
type ChangeLog interface {
	Mark() changelog.Marker
	Since(m changelog.Marker) ([]string, error)
}

// Shell is the presentation the controller drives. Confirm and Notice block
// until the user answers.
type Shell interface {
	Status(text string)
	Progress(on bool)
	Clear()
	Print(text string)
	Result(ok bool, text string)
	Output() io.Writer
	AttachInput(w io.Writer) (detach func())
	SetInstalling(on bool)
	Confirm(title, body string, affirmative bool) bool
	Notice(title, body string)
}

// Recorder persists finished runs.
type Recorder interface {
	Record(ctx context.Context, r *Report) error
}

// NewExecRunner adapts a runner.Runner to Runner.
func NewExecRunner(r *runner.Runner) Runner {
	return execRunner{r}
}

type execRunner struct {
	r *runner.Runner
}

func (e execRunner) Query(ctx context.Context, argv, env []string) runner.Result {
	return e.r.Query(ctx, argv, env)
}

func (e execRunner) Spawn(argv, env []string, out io.Writer) Process {
	return e.r.Spawn(argv, env, out)
}
