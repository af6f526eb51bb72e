package pipeline

import (
	"slices"
	"time"

	"github.com/blackwell-systems/eos-updater/internal/backend"
	"github.com/blackwell-systems/eos-updater/internal/changelog"
	"github.com/blackwell-systems/eos-updater/internal/runner"
)

// DefaultSummaryLimit caps how many pending lines are shown per backend.
const DefaultSummaryLimit = 30

// Step is one install command of a run.
type Step struct {
	SourceID string
	Kind     backend.Kind
	Title    string
	Argv     []string
}

// BuildSteps turns the enabled sources into install steps, keeping their
// order.
func BuildSteps(sources []backend.Source) []Step {
	steps := make([]Step, 0, len(sources))
	for _, src := range sources {
		steps = append(steps, Step{
			SourceID: src.ID,
			Kind:     src.Kind,
			Title:    src.Label + " update",
			Argv:     slices.Clone(src.Install),
		})
	}
	return steps
}

// StepResult is the outcome of one step.
type StepResult struct {
	Step     Step
	Exit     runner.Exit
	Started  time.Time
	Finished time.Time
	Skipped  bool // not started because the run was cancelled
}

// QueryResult is what a backend reported as pending.
type QueryResult struct {
	SourceID string
	Label    string
	Lines    []string
	Code     int
	Err      error
}

// Report describes one install run.
type Report struct {
	Started   time.Time
	Finished  time.Time
	Marker    changelog.Marker
	Snapshot  *StepResult
	Steps     []StepResult
	Summary   []QueryResult
	Changed   []string
	Critical  []string
	Cancelled bool
	Aborted   bool // stopped after a failed snapshot, nothing was installed
}

// Failed counts the steps that ran and did not succeed.
func (r *Report) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if !s.Skipped && !s.Exit.Success() {
			n++
		}
	}
	return n
}
