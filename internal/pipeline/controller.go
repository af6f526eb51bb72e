// Package pipeline sequences the update backends: it shows what is pending,
// runs the install commands one after another, summarizes what is left and
// decides whether the system should be restarted.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/blackwell-systems/eos-updater/internal/backend"
	"github.com/blackwell-systems/eos-updater/internal/changelog"
	"github.com/blackwell-systems/eos-updater/internal/critical"
	"github.com/blackwell-systems/eos-updater/internal/runner"
)

// ErrBusy is returned when an operation is started while another one runs.
var ErrBusy = errors.New("an update operation is already running")

// CancelPolicy says what happens to an install command that is running when
// the run is cancelled.
type CancelPolicy string

const (
	// CancelWait lets the command finish. An elevated pacman that is killed
	// can leave its database lock behind.
	CancelWait CancelPolicy = "wait"
	// CancelInterrupt sends SIGINT to the command and waits for it to exit.
	CancelInterrupt CancelPolicy = "interrupt"
)

// ParseCancelPolicy validates a policy name. The empty string means CancelWait.
func ParseCancelPolicy(s string) (CancelPolicy, error) {
	switch CancelPolicy(s) {
	case "", CancelWait:
		return CancelWait, nil
	case CancelInterrupt:
		return CancelInterrupt, nil
	default:
		return "", fmt.Errorf("unknown cancel policy %q (want %q or %q)", s, CancelWait, CancelInterrupt)
	}
}

// Options configures a Controller. Catalog, Runner, Log and Shell are
// required.
type Options struct {
	Catalog      *backend.Catalog
	Runner       Runner
	Log          ChangeLog
	Shell        Shell
	Classifier   *critical.Classifier
	Recorder     Recorder
	Env          runner.Environments
	CancelPolicy CancelPolicy
	// SnapshotCommand, when set, runs before the first install step.
	SnapshotCommand []string
	SummaryLimit    int
	Logger          *zap.Logger
}

// Controller owns the update state machine. Only one operation runs at a
// time; State may be read from any goroutine.
type Controller struct {
	catalog    *backend.Catalog
	runner     Runner
	log        ChangeLog
	shell      Shell
	classifier *critical.Classifier
	recorder   Recorder
	env        runner.Environments
	cancel     CancelPolicy
	snapshot   []string
	limit      int
	logger     *zap.Logger

	mu    sync.Mutex
	state State
	step  int
}

// New creates a Controller.
func New(opts Options) (*Controller, error) {
	if opts.Catalog == nil || opts.Runner == nil || opts.Log == nil || opts.Shell == nil {
		return nil, errors.New("pipeline: catalog, runner, log and shell are required")
	}
	policy, err := ParseCancelPolicy(string(opts.CancelPolicy))
	if err != nil {
		return nil, err
	}
	c := &Controller{
		catalog:    opts.Catalog,
		runner:     opts.Runner,
		log:        opts.Log,
		shell:      opts.Shell,
		classifier: opts.Classifier,
		recorder:   opts.Recorder,
		env:        opts.Env,
		cancel:     policy,
		snapshot:   opts.SnapshotCommand,
		limit:      opts.SummaryLimit,
		logger:     opts.Logger,
	}
	if c.classifier == nil {
		c.classifier = critical.Default()
	}
	if c.limit <= 0 {
		c.limit = DefaultSummaryLimit
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c, nil
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Step returns the index of the running install step. It is only meaningful
// while State is Running.
func (c *Controller) Step() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// enter leaves Idle for to, or reports ErrBusy.
func (c *Controller) enter(to State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return ErrBusy
	}
	c.state = to
	c.step = 0
	c.logger.Debug("state", zap.Stringer("from", Idle), zap.Stringer("to", to))
	return nil
}

// transition moves along an edge of the state machine. Any other move is a
// bug in the controller.
func (c *Controller) transition(to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canTransition(c.state, to) {
		panic(fmt.Sprintf("pipeline: invalid transition %s -> %s", c.state, to))
	}
	c.logger.Debug("state", zap.Stringer("from", c.state), zap.Stringer("to", to))
	c.state = to
}

func (c *Controller) runStep(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canTransition(c.state, Running) {
		panic(fmt.Sprintf("pipeline: invalid transition %s -> %s", c.state, Running))
	}
	c.state = Running
	c.step = i
}

// ShowUpdates queries every enabled backend and prints what is pending.
func (c *Controller) ShowUpdates(ctx context.Context) ([]QueryResult, error) {
	if err := c.enter(QueryingForDisplay); err != nil {
		return nil, err
	}
	defer c.transition(Idle)

	c.shell.Clear()
	c.shell.Status("Searching for updates")
	c.shell.Progress(true)

	results := c.queryAll(ctx, c.catalog.Enabled())

	c.shell.Progress(false)
	c.shell.Print(RenderSummary(results, c.limit))
	c.shell.Status("Ready")

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// Install asks for confirmation and then runs every enabled backend's
// install command in catalog order. A declined confirmation returns a nil
// Report and no error. A failing step never stops the ones after it.
func (c *Controller) Install(ctx context.Context) (*Report, error) {
	if err := c.enter(Confirming); err != nil {
		return nil, err
	}

	if ctx.Err() != nil || !c.shell.Confirm("Install updates?", "Creating a snapshot first is recommended.", true) {
		c.logger.Info("install declined")
		c.transition(Idle)
		return nil, nil
	}

	report := &Report{
		Marker:  c.log.Mark(),
		Started: time.Now(),
	}
	steps := BuildSteps(c.catalog.Enabled())
	c.logger.Info("install confirmed",
		zap.Stringer("marker", report.Marker),
		zap.Int("steps", len(steps)))

	c.shell.Clear()
	c.shell.Status("Installing updates")
	c.shell.Progress(true)
	c.shell.SetInstalling(true)
	defer func() {
		c.shell.SetInstalling(false)
		c.shell.Progress(false)
	}()
	c.shell.Print("🔐 Enter your sudo password below if asked\n")

	if len(c.snapshot) > 0 {
		c.transition(Snapshotting)
		if !c.takeSnapshot(ctx, report) {
			report.Aborted = true
			report.Cancelled = ctx.Err() != nil
			report.Finished = time.Now()
			c.shell.Status("Cancelled")
			c.transition(Idle)
			c.record(ctx, report)
			return report, nil
		}
	}

	c.runStep(0)
	for i, step := range steps {
		if ctx.Err() != nil {
			report.Cancelled = true
			report.Steps = append(report.Steps, StepResult{Step: step, Skipped: true})
			c.logger.Info("step skipped", zap.String("step", step.Title))
			continue
		}
		c.runStep(i)
		report.Steps = append(report.Steps, c.execute(ctx, step))
	}
	if ctx.Err() != nil {
		report.Cancelled = true
	}

	if !report.Cancelled {
		c.transition(Summarizing)
		c.shell.Status("Checking what is left")
		report.Summary = c.queryAll(ctx, c.catalog.Enabled())
		c.shell.Clear()
		c.shell.Print("📌 Status after update:\n\n" + RenderSummary(report.Summary, c.limit))
	} else {
		c.shell.Print("\nUpdate cancelled.\n")
	}

	c.transition(CheckingCritical)
	c.checkCritical(report)

	report.Finished = time.Now()
	c.shell.Status("Done")
	c.transition(Idle)

	c.record(ctx, report)
	return report, nil
}

// takeSnapshot runs the snapshot command. It reports whether the run should
// go on.
func (c *Controller) takeSnapshot(ctx context.Context, report *Report) bool {
	res := c.execute(ctx, Step{SourceID: "snapshot", Title: "Snapshot", Argv: c.snapshot})
	report.Snapshot = &res
	if res.Exit.Success() {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	return c.shell.Confirm("Snapshot failed", "Continue without snapshot?", false)
}

// execute spawns one step and waits for it, honoring the cancel policy.
func (c *Controller) execute(ctx context.Context, step Step) StepResult {
	c.shell.Print(fmt.Sprintf("\n=== %s ===\n$ %s\n\n", step.Title, backend.CommandLine(step.Argv)))

	res := StepResult{Step: step, Started: time.Now()}
	p := c.runner.Spawn(step.Argv, c.env.Install, c.shell.Output())
	detach := c.shell.AttachInput(p.Stdin())
	res.Exit = c.await(ctx, step, p)
	detach()
	res.Finished = time.Now()

	switch {
	case res.Exit.Err != nil:
		c.shell.Result(false, fmt.Sprintf("Error (code %d): %v", res.Exit.Code, res.Exit.Err))
	case res.Exit.Code != 0:
		c.shell.Result(false, fmt.Sprintf("Error (code %d)", res.Exit.Code))
	default:
		c.shell.Result(true, "Step completed")
	}

	c.logger.Info("step finished",
		zap.String("step", step.Title),
		zap.Strings("argv", step.Argv),
		zap.Int("code", res.Exit.Code),
		zap.Error(res.Exit.Err),
		zap.Duration("took", res.Finished.Sub(res.Started)))
	return res
}

func (c *Controller) await(ctx context.Context, step Step, p Process) runner.Exit {
	select {
	case exit := <-p.Done():
		return exit
	case <-ctx.Done():
	}

	if c.cancel == CancelInterrupt {
		c.logger.Info("interrupting step", zap.String("step", step.Title))
		if err := p.Interrupt(); err != nil {
			c.logger.Warn("interrupt failed", zap.String("step", step.Title), zap.Error(err))
		}
	} else {
		c.logger.Info("cancelled, waiting for step to finish", zap.String("step", step.Title))
	}
	c.shell.Status(fmt.Sprintf("Waiting for %s to finish", step.Title))
	return <-p.Done()
}

// queryAll runs the query commands concurrently and returns the results in
// catalog order.
func (c *Controller) queryAll(ctx context.Context, sources []backend.Source) []QueryResult {
	results := make([]QueryResult, len(sources))
	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src backend.Source) {
			defer wg.Done()
			res := c.runner.Query(ctx, src.Query, c.env.Query)
			results[i] = QueryResult{
				SourceID: src.ID,
				Label:    src.Label,
				Lines:    res.Lines(),
				Code:     res.Code,
				Err:      res.Err,
			}
		}(i, src)
	}
	wg.Wait()
	return results
}

// checkCritical diffs the change log against the marker and shows the reboot
// notice when a critical package changed. An unknown marker or unreadable
// log skips the check.
func (c *Controller) checkCritical(report *Report) {
	if !report.Marker.Known {
		c.logger.Debug("critical check skipped, marker unknown")
		return
	}
	changed, err := c.log.Since(report.Marker)
	if err != nil {
		c.logger.Debug("critical check skipped", zap.Error(err))
		return
	}
	report.Changed = changed
	report.Critical = c.classifier.Classify(changed)
	c.logger.Info("change log read",
		zap.Int("changed", len(changed)),
		zap.Strings("critical", report.Critical))

	if len(report.Critical) > 0 {
		c.shell.Notice("Critical system update", rebootNotice(report.Critical))
	}
}

func (c *Controller) record(ctx context.Context, report *Report) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.Record(context.WithoutCancel(ctx), report); err != nil {
		c.logger.Warn("failed to record run", zap.Error(err))
	}
}

var _ ChangeLog = (*changelog.File)(nil)
