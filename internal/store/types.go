package store

import "time"

// Run is one recorded upgrade run.
type Run struct {
	ID           int64
	StartedAt    time.Time
	FinishedAt   time.Time
	MarkerKnown  bool
	MarkerOffset int64
	Cancelled    bool
	Aborted      bool
	Changed      []string
	Critical     []string
	Steps        []RunStep
	Pending      []Pending
}

// Failed counts the steps that ran and exited non-zero.
func (r *Run) Failed() int {
	n := 0
	for _, s := range r.Steps {
		if !s.Skipped && (s.ExitCode != 0 || s.Error != "") {
			n++
		}
	}
	return n
}

// RunStep is one command of a run, in execution order.
type RunStep struct {
	Position   int
	SourceID   string
	Title      string
	Command    string
	ExitCode   int
	Error      string
	Skipped    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

// Pending is what one backend still reported after the run.
type Pending struct {
	SourceID string
	Label    string
	Count    int
	Error    string
}
