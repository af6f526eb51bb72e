// Package ui is the terminal front-end the update controller drives. The
// user's own terminal is the output pane; install commands draw straight to
// it through their pseudo-terminal.
package ui

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/fatih/color"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/blackwell-systems/eos-updater/internal/output"
)

// ctrlC is the byte a terminal in raw mode delivers for Ctrl+C.
const ctrlC = 0x03

var runFormFunc = func(form *huh.Form) error { return form.Run() }

// Options configures a Terminal.
type Options struct {
	In        *os.File
	Out       io.Writer
	AssumeYes bool // answer every prompt with its default
	Logger    *zap.Logger
}

// Terminal implements the controller's shell on the user's terminal.
type Terminal struct {
	in          *os.File
	out         io.Writer
	assumeYes   bool
	interactive bool
	logger      *zap.Logger

	ok   *color.Color
	fail *color.Color
	dim  *color.Color

	mu          sync.Mutex
	status      string
	spinner     *output.Spinner
	installing  bool
	raw         *term.State
	pumping     bool
	target      io.Writer // attached install command
	form        io.Writer // open dialog, takes precedence over target
	onInterrupt func()
}

// New creates a Terminal. Prompts are only shown when both In and Out are
// terminals.
func New(opts Options) *Terminal {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Terminal{
		in:          opts.In,
		out:         opts.Out,
		assumeYes:   opts.AssumeYes,
		interactive: term.IsTerminal(int(opts.In.Fd())) && output.IsTerminal(opts.Out),
		logger:      opts.Logger,
		ok:          color.New(color.FgGreen),
		fail:        color.New(color.FgRed, color.Bold),
		dim:         color.New(color.Faint),
	}
}

// Interactive reports whether prompts can be shown.
func (t *Terminal) Interactive() bool {
	return t.interactive
}

// OnInterrupt registers fn to run when Ctrl+C is typed outside a dialog.
// With the terminal in raw mode the keystroke does not raise SIGINT, and
// while fn is set it is not passed on to the attached install command.
func (t *Terminal) OnInterrupt(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onInterrupt = fn
}

// Status sets the status line. While installing it is printed as a line of
// its own, otherwise it labels the progress spinner.
func (t *Terminal) Status(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = text
	switch {
	case t.spinner != nil:
		t.spinner.SetLabel(text)
	case t.installing:
		t.write(t.dim.Sprint("» "+text) + "\n")
	}
}

// Progress starts or stops the spinner. It stays off while installing so it
// does not fight with the install command's own output.
func (t *Terminal) Progress(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !on || t.installing {
		t.stopSpinner()
		return
	}
	if t.spinner != nil {
		return
	}
	t.spinner = output.NewSpinner(t.out, t.status).WithElapsed()
	t.spinner.Start()
}

func (t *Terminal) stopSpinner() {
	if t.spinner != nil {
		t.spinner.Stop()
		t.spinner = nil
	}
}

// Clear wipes the visible screen. It does nothing when output is not a
// terminal.
func (t *Terminal) Clear() {
	if !output.IsTerminal(t.out) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.write("\033[H\033[2J")
}

// Print writes text to the output pane.
func (t *Terminal) Print(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.write(text)
}

// Result prints a step outcome with a success or failure marker.
func (t *Terminal) Result(ok bool, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ok {
		t.write(t.ok.Sprint("✔ "+text) + "\n")
		return
	}
	t.write(t.fail.Sprint("❌ "+text) + "\n")
}

// write must be called with the lock held. In raw mode the terminal no longer
// turns \n into \r\n.
func (t *Terminal) write(text string) {
	if t.raw != nil {
		text = strings.ReplaceAll(strings.ReplaceAll(text, "\r\n", "\n"), "\n", "\r\n")
	}
	if _, err := io.WriteString(t.out, text); err != nil {
		t.logger.Debug("terminal write", zap.Error(err))
	}
}

// Output is where install commands write.
func (t *Terminal) Output() io.Writer {
	return t.out
}

// AttachInput forwards keystrokes to w until detach is called. Nothing is
// forwarded when stdin is not a terminal.
func (t *Terminal) AttachInput(w io.Writer) (detach func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pumping {
		return func() {}
	}
	t.target = w
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.target == w {
			t.target = nil
		}
	}
}

// SetInstalling switches install mode. In install mode the terminal is raw so
// password prompts and pacman's own questions get every keystroke.
func (t *Terminal) SetInstalling(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if on == t.installing {
		return
	}
	t.installing = on

	if on {
		t.stopSpinner()
		if !t.interactive {
			return
		}
		state, err := term.MakeRaw(int(t.in.Fd()))
		if err != nil {
			t.logger.Warn("raw mode unavailable", zap.Error(err))
			return
		}
		t.raw = state
		if !t.pumping {
			t.pumping = true
			go t.pump()
		}
		return
	}

	t.restore()
}

// Close leaves raw mode if it is still on.
func (t *Terminal) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopSpinner()
	t.restore()
}

func (t *Terminal) restore() {
	if t.raw == nil {
		return
	}
	if err := term.Restore(int(t.in.Fd()), t.raw); err != nil {
		t.logger.Debug("restore terminal state", zap.Error(err))
	}
	t.raw = nil
}

// pump is the only reader of stdin once install mode was entered. It lives
// until the process exits. An open form gets every byte. Otherwise Ctrl+C
// goes to the OnInterrupt hook when one is set, so cancelling a run is up to
// the controller's cancel policy, and the rest goes to the attached command.
func (t *Terminal) pump() {
	buf := make([]byte, 1024)
	for {
		n, err := t.in.Read(buf)
		if n > 0 {
			t.mu.Lock()
			form, target, interrupt := t.form, t.target, t.onInterrupt
			t.mu.Unlock()

			data := buf[:n]
			switch {
			case form != nil:
				t.forward(form, data)
			case interrupt != nil && bytes.IndexByte(data, ctrlC) >= 0:
				if rest := bytes.ReplaceAll(data, []byte{ctrlC}, nil); target != nil && len(rest) > 0 {
					t.forward(target, rest)
				}
				interrupt()
			case target != nil:
				t.forward(target, data)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				t.logger.Debug("stdin pump stopped", zap.Error(err))
			}
			return
		}
	}
}

func (t *Terminal) forward(w io.Writer, data []byte) {
	if _, err := w.Write(data); err != nil {
		t.logger.Debug("forward input", zap.Error(err))
	}
}

// Confirm asks a yes/no question. Without a terminal, or with AssumeYes, the
// default answer is taken.
func (t *Terminal) Confirm(title, body string, affirmative bool) bool {
	if t.assumeYes {
		t.Print(fmt.Sprintf("%s %s\n", title, answer(affirmative)))
		return affirmative
	}
	if !t.interactive {
		t.Print(fmt.Sprintf("%s %s (no terminal, use --yes to accept)\n", title, answer(false)))
		return false
	}

	value := affirmative
	err := t.runForm(huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(body).
				Affirmative("Yes").
				Negative("No").
				Value(&value),
		),
	))
	if err != nil {
		if !errors.Is(err, huh.ErrUserAborted) {
			t.logger.Warn("confirm form", zap.Error(err))
		}
		return false
	}
	return value
}

func answer(yes bool) string {
	if yes {
		return "yes"
	}
	return "no"
}

// Notice shows a message the user has to acknowledge, then leaves a boxed
// copy of it in the scrollback.
func (t *Terminal) Notice(title, body string) {
	if t.interactive && !t.assumeYes {
		err := t.runForm(huh.NewForm(
			huh.NewGroup(
				huh.NewNote().
					Title(title).
					Description(body).
					Next(true).
					NextLabel("Understood"),
			),
		))
		if err != nil && !errors.Is(err, huh.ErrUserAborted) {
			t.logger.Warn("notice form", zap.Error(err))
		}
	}
	t.Print(output.RenderNotice(title, body) + "\n")
}

// runForm runs a huh form. Once the pump owns stdin the form reads its keys
// from a pipe the pump feeds.
func (t *Terminal) runForm(form *huh.Form) error {
	t.mu.Lock()
	t.stopSpinner()
	pumping := t.pumping
	var pr *io.PipeReader
	var pw *io.PipeWriter
	var rawForForm *term.State
	if pumping {
		pr, pw = io.Pipe()
		t.form = pw
		if t.raw == nil {
			if state, err := term.MakeRaw(int(t.in.Fd())); err == nil {
				rawForForm = state
			}
		}
	}
	t.mu.Unlock()

	opts := []tea.ProgramOption{tea.WithOutput(os.Stderr)}
	if pumping {
		opts = append(opts, tea.WithInput(pr))
	}
	form.WithProgramOptions(opts...)

	err := runFormFunc(form)

	if pumping {
		t.mu.Lock()
		t.form = nil
		t.mu.Unlock()
		pw.Close()
		if rawForForm != nil {
			if rerr := term.Restore(int(t.in.Fd()), rawForForm); rerr != nil {
				t.logger.Debug("restore terminal state", zap.Error(rerr))
			}
		}
	}
	return err
}
