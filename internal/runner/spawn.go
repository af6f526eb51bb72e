package runner

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"
)

// drainTimeout bounds how long output is drained after the child exits.
// Grandchildren that keep the pty open (gpg-agent started by an AUR build,
// for example) would otherwise hold the step open forever.
const drainTimeout = 500 * time.Millisecond

// Exit is the outcome of an interactive command.
type Exit struct {
	Code int
	Err  error // set only when the command could not be spawned
}

// Success reports whether the command ran and exited zero.
func (e Exit) Success() bool {
	return e.Err == nil && e.Code == 0
}

// Process is an interactive command attached to a pseudo-terminal.
type Process struct {
	cmd  *exec.Cmd
	ptmx *os.File
	done chan Exit
}

// Exited returns a Process that has already finished with the given status.
// Spawn uses it for commands that could not be started.
func Exited(code int, err error) *Process {
	p := &Process{done: make(chan Exit, 1)}
	p.done <- Exit{Code: code, Err: err}
	return p
}

// Done delivers the exit status exactly once, after all output has been
// forwarded.
func (p *Process) Done() <-chan Exit {
	return p.done
}

// Stdin is the terminal input of the child. Writes go to whatever is reading
// the pty, such as a sudo password prompt.
func (p *Process) Stdin() io.Writer {
	if p.ptmx == nil {
		return io.Discard
	}
	return p.ptmx
}

// Interrupt sends SIGINT to the child's process group, as a Ctrl+C typed on
// its terminal would.
func (p *Process) Interrupt() error {
	if p.cmd == nil || p.cmd.Process == nil {
		return nil
	}
	// pty.Start makes the child a session leader, so its pid is the pgid.
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGINT); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("interrupt pid %d: %w", p.cmd.Process.Pid, err)
	}
	return nil
}

// Spawn starts argv on a new pseudo-terminal and copies its output to out.
// It does not block. A command that cannot be started yields a Process that
// has already exited with code -1.
func (r *Runner) Spawn(argv []string, env []string, out io.Writer) *Process {
	if len(argv) == 0 {
		return Exited(-1, errEmptyCommand)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = env

	cols, rows := r.size()
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		r.logger.Warn("spawn failed", zap.Strings("argv", argv), zap.Error(err))
		return Exited(-1, fmt.Errorf("start %s: %w", argv[0], err))
	}

	r.logger.Debug("spawned", zap.Strings("argv", argv), zap.Int("pid", cmd.Process.Pid))

	p := &Process{cmd: cmd, ptmx: ptmx, done: make(chan Exit, 1)}

	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	exited := make(chan struct{})
	go p.followResize(winch, exited, r.size, r.logger)

	go p.wait(out, exited, r.logger)
	return p
}

// followResize copies the terminal size to the pty on every SIGWINCH until
// exited is closed.
func (p *Process) followResize(winch chan os.Signal, exited <-chan struct{}, size func() (cols, rows uint16), logger *zap.Logger) {
	defer signal.Stop(winch)
	for {
		select {
		case <-exited:
			return
		case <-winch:
			cols, rows := size()
			if err := pty.Setsize(p.ptmx, &pty.Winsize{Cols: cols, Rows: rows}); err != nil {
				logger.Debug("pty resize", zap.Error(err))
			}
		}
	}
}

func (p *Process) wait(out io.Writer, exited chan<- struct{}, logger *zap.Logger) {
	copied := make(chan struct{})
	go func() {
		defer close(copied)
		// Linux reports EIO on the master once the slave side is gone.
		if _, err := io.Copy(out, p.ptmx); err != nil && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
			logger.Debug("pty output copy", zap.Error(err))
		}
	}()

	waitErr := p.cmd.Wait()
	close(exited)

	select {
	case <-copied:
	case <-time.After(drainTimeout):
	}
	if err := p.ptmx.Close(); err != nil {
		logger.Debug("pty close", zap.Error(err))
	}
	<-copied

	exit := exitFromWait(waitErr)
	logger.Debug("exited", zap.Int("pid", p.cmd.Process.Pid), zap.Int("code", exit.Code))
	p.done <- exit
}

func exitFromWait(err error) Exit {
	if err == nil {
		return Exit{}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return Exit{Code: 128 + int(ws.Signal())}
		}
		return Exit{Code: exitErr.ExitCode()}
	}
	return Exit{Code: -1, Err: err}
}

// terminalSize reports the size of the controlling terminal, falling back to
// 80x24 when stdin is not a terminal.
func terminalSize() (cols, rows uint16) {
	cols, rows = 80, 24
	if ws, err := pty.GetsizeFull(os.Stdin); err == nil {
		if ws.Cols > 0 {
			cols = ws.Cols
		}
		if ws.Rows > 0 {
			rows = ws.Rows
		}
	}
	return cols, rows
}
