package pipeline

import (
	"fmt"
	"slices"
)

// State is the phase the controller is in.
type State int

const (
	Idle State = iota
	QueryingForDisplay
	Confirming
	Snapshotting
	Running
	Summarizing
	CheckingCritical
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case QueryingForDisplay:
		return "querying"
	case Confirming:
		return "confirming"
	case Snapshotting:
		return "snapshotting"
	case Running:
		return "running"
	case Summarizing:
		return "summarizing"
	case CheckingCritical:
		return "checking-critical"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// edges lists the allowed transitions. Running -> Running advances the step
// index. Running -> CheckingCritical skips the summary after cancellation.
var edges = map[State][]State{
	Idle:               {QueryingForDisplay, Confirming},
	QueryingForDisplay: {Idle},
	Confirming:         {Idle, Snapshotting, Running},
	Snapshotting:       {Running, Idle},
	Running:            {Running, Summarizing, CheckingCritical},
	Summarizing:        {CheckingCritical},
	CheckingCritical:   {Idle},
}

func canTransition(from, to State) bool {
	return slices.Contains(edges[from], to)
}
