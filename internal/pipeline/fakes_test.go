package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blackwell-systems/eos-updater/internal/backend"
	"github.com/blackwell-systems/eos-updater/internal/changelog"
	"github.com/blackwell-systems/eos-updater/internal/runner"
)

// fakeRunner answers queries from a table and finishes spawned commands
// immediately unless a blocking process is registered for them.
type fakeRunner struct {
	mu      sync.Mutex
	queries map[string]runner.Result
	exits   map[string]runner.Exit
	procs   map[string]*fakeProcess
	queried []string
	spawned []string
	envs    [][]string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		queries: make(map[string]runner.Result),
		exits:   make(map[string]runner.Exit),
		procs:   make(map[string]*fakeProcess),
	}
}

func (f *fakeRunner) Query(_ context.Context, argv, _ []string) runner.Result {
	key := backend.CommandLine(argv)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queried = append(f.queried, key)
	return f.queries[key]
}

func (f *fakeRunner) Spawn(argv, env []string, out io.Writer) Process {
	key := backend.CommandLine(argv)
	f.mu.Lock()
	f.spawned = append(f.spawned, key)
	f.envs = append(f.envs, env)
	p := f.procs[key]
	exit := f.exits[key]
	f.mu.Unlock()

	fmt.Fprintf(out, "output of %s\n", key)
	if p != nil {
		close(p.started)
		return p
	}
	return runner.Exited(exit.Code, exit.Err)
}

func (f *fakeRunner) spawnedCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spawned...)
}

func (f *fakeRunner) queriedCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queried...)
}

// fakeProcess blocks until finish or Interrupt is called.
type fakeProcess struct {
	done        chan runner.Exit
	started     chan struct{}
	interrupted atomic.Bool
}

func newFakeProcess() *fakeProcess {
	return &fakeProcess{done: make(chan runner.Exit, 1), started: make(chan struct{})}
}

func (p *fakeProcess) Done() <-chan runner.Exit { return p.done }
func (p *fakeProcess) Stdin() io.Writer         { return io.Discard }

func (p *fakeProcess) Interrupt() error {
	p.interrupted.Store(true)
	p.finish(130)
	return nil
}

func (p *fakeProcess) finish(code int) {
	select {
	case p.done <- runner.Exit{Code: code}:
	default:
	}
}

type fakeLog struct {
	mu     sync.Mutex
	marker changelog.Marker
	names  []string
	err    error
	marks  int
	reads  int
}

func (l *fakeLog) Mark() changelog.Marker {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks++
	return l.marker
}

func (l *fakeLog) Since(m changelog.Marker) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reads++
	if l.err != nil {
		return nil, l.err
	}
	return l.names, nil
}

type notice struct {
	title string
	body  string
}

// fakeShell records what the controller shows and answers confirmations
// from a queue. An empty queue accepts the default.
type fakeShell struct {
	mu         sync.Mutex
	out        bytes.Buffer
	answers    []bool
	confirms   []string
	notices    []notice
	results    []string
	statuses   []string
	clears     int
	attached   int
	detached   int
	installing []bool
	// onAttach runs when an install command takes the keyboard, standing
	// in for keys the user types during that step.
	onAttach func(n int)
}

func (s *fakeShell) Status(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, text)
}

func (s *fakeShell) Progress(bool) {}

func (s *fakeShell) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	s.out.Reset()
}

func (s *fakeShell) Print(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out.WriteString(text)
}

func (s *fakeShell) Result(ok bool, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mark := "✔"
	if !ok {
		mark = "❌"
	}
	s.results = append(s.results, mark+" "+text)
}

func (s *fakeShell) Output() io.Writer { return shellWriter{s} }

func (s *fakeShell) AttachInput(io.Writer) func() {
	s.mu.Lock()
	s.attached++
	n, hook := s.attached, s.onAttach
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.detached++
	}
}

func (s *fakeShell) SetInstalling(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.installing = append(s.installing, on)
}

func (s *fakeShell) Confirm(title, _ string, affirmative bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirms = append(s.confirms, title)
	if len(s.answers) == 0 {
		return affirmative
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a
}

func (s *fakeShell) Notice(title, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, notice{title, body})
}

func (s *fakeShell) output() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.String()
}

type shellWriter struct{ s *fakeShell }

func (w shellWriter) Write(p []byte) (int, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	return w.s.out.Write(p)
}

type fakeRecorder struct {
	mu      sync.Mutex
	reports []*Report
	err     error
}

func (r *fakeRecorder) Record(_ context.Context, rep *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, rep)
	return r.err
}

func lines(n int, format string) string {
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, format+"\n", i)
	}
	return sb.String()
}
