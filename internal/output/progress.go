package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 100 * time.Millisecond

// IsTerminal reports whether w is a file descriptor attached to a terminal.
// Plain writers such as *bytes.Buffer never are.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && isatty.IsTerminal(f.Fd())
}

// Spinner animates a status line while queries run.
//
// On a writer that is not a terminal it prints the label once and never
// redraws, so redirected output stays readable.
type Spinner struct {
	w   io.Writer
	tty bool

	mu      sync.Mutex
	label   string
	elapsed bool
	started time.Time
	stop    chan struct{}
	stopped chan struct{}
}

// NewSpinner creates a stopped spinner that draws to w.
func NewSpinner(w io.Writer, label string) *Spinner {
	return &Spinner{w: w, tty: IsTerminal(w), label: label}
}

// WithElapsed appends the running time to the label.
func (s *Spinner) WithElapsed() *Spinner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elapsed = true
	return s
}

// Start draws the spinner until Stop. Starting a running spinner does
// nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.started = time.Now()
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})

	if !s.tty {
		fmt.Fprintf(s.w, "%s...\n", s.label)
		close(s.stopped)
		return
	}
	go s.animate(s.stop, s.stopped)
}

func (s *Spinner) animate(stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		s.mu.Lock()
		fmt.Fprintf(s.w, "\r%s %s\033[K", spinnerFrames[frame%len(spinnerFrames)], s.text())
		s.mu.Unlock()

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// text must be called with mu held.
func (s *Spinner) text() string {
	if !s.elapsed || s.started.IsZero() {
		return s.label
	}
	return fmt.Sprintf("%s (%s)", s.label, formatDuration(time.Since(s.started)))
}

// SetLabel changes the text next to the spinner.
func (s *Spinner) SetLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.label = label
}

// Stop ends the animation and erases the spinner line. It is safe to call
// more than once, or without Start.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return
	}

	close(stop)
	<-stopped
	if s.tty {
		fmt.Fprint(s.w, "\r\033[K")
	}
}

// Running reports whether the spinner was started and not yet stopped.
func (s *Spinner) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}
