// Package job runs shell commands asynchronously on behalf of the format
// engine's #() construct.
//
// Output is buffered per job. OnUpdate fires as batches arrive and
// OnComplete fires once after the process exits and its output is drained.
// Neither callback fires after Kill.
package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"go-tmux/internal/workerutil"
)

// ErrEmptyCommand is returned by Run for a blank command.
var ErrEmptyCommand = errors.New("job: empty command")

// Spec describes one job.
type Spec struct {
	Command    string
	Dir        string
	Env        []string
	OnUpdate   func(j *Job)
	OnComplete func(j *Job)
}

// Options configures a Runner.
type Options struct {
	// Shell runs each command as `Shell -c command`. Empty uses $SHELL, then /bin/sh.
	Shell string
	// UsePTY starts jobs on a pseudo-terminal where supported, falling back
	// to pipes.
	UsePTY bool
	// CoalesceInterval batches output before OnUpdate. 0 uses 16ms.
	CoalesceInterval time.Duration
}

// Runner starts and tracks jobs.
type Runner struct {
	opts Options

	mu   sync.Mutex
	jobs map[*Job]struct{}
	wg   sync.WaitGroup
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	if opts.Shell == "" {
		opts.Shell = defaultShell()
	}
	return &Runner{
		opts: opts,
		jobs: map[*Job]struct{}{},
	}
}

// Job is one running (or finished) command.
type Job struct {
	command string
	spec    Spec

	cmd    *exec.Cmd
	output io.ReadCloser
	tty    string

	// mu guards buf, killed, done and exitCode.
	mu       sync.Mutex
	buf      bytes.Buffer
	killed   bool
	done     bool
	exitCode int

	// cbMu serializes OnUpdate/OnComplete for this job.
	cbMu sync.Mutex

	coalescer *outputCoalescer
}

// Command returns the command line the job was started with.
func (j *Job) Command() string {
	return j.command
}

// Pid returns the process id, or 0 when unknown.
func (j *Job) Pid() int {
	if j.cmd == nil || j.cmd.Process == nil {
		return 0
	}
	return j.cmd.Process.Pid
}

// TTY returns the pseudo-terminal name, or "" in pipe mode.
func (j *Job) TTY() string {
	return j.tty
}

// Fd returns the PTY master descriptor, or -1 in pipe mode.
func (j *Job) Fd() int {
	if j.tty == "" {
		return -1
	}
	f, ok := j.output.(*os.File)
	if !ok {
		return -1
	}
	return int(f.Fd())
}

// ExitCode returns the process exit status once Done reports true.
func (j *Job) ExitCode() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.exitCode
}

// Write sends input to the job. Only PTY jobs accept input.
func (j *Job) Write(p []byte) (int, error) {
	w, ok := j.output.(io.Writer)
	if !ok || j.tty == "" {
		return 0, fmt.Errorf("job: %q does not accept input", j.command)
	}
	return w.Write(p)
}

// ReadLine removes and returns the next complete line (without the newline
// and any trailing carriage return) from the unread output.
func (j *Job) ReadLine() (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	data := j.buf.Bytes()
	i := bytes.IndexByte(data, '\n')
	if i == -1 {
		return "", false
	}
	line := string(bytes.TrimRight(data[:i], "\r"))
	j.buf.Next(i + 1)
	return line, true
}

// Remaining drains and returns all unread output.
func (j *Job) Remaining() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := j.buf.String()
	j.buf.Reset()
	return out
}

// Done reports whether the process has exited and its output was drained.
func (j *Job) Done() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.done
}

// Kill terminates the job and suppresses any further callbacks. It is
// idempotent.
func (j *Job) Kill() {
	j.mu.Lock()
	if j.killed {
		j.mu.Unlock()
		return
	}
	j.killed = true
	done := j.done
	j.mu.Unlock()

	if done {
		return
	}
	if err := killProcess(j.cmd); err != nil {
		slog.Debug("[DEBUG-JOB] kill failed", "command", j.command, "error", err)
	}
}

func (j *Job) isKilled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.killed
}

func (j *Job) appendOutput(data []byte) {
	j.mu.Lock()
	j.buf.Write(data)
	j.mu.Unlock()

	if j.spec.OnUpdate == nil {
		return
	}
	j.cbMu.Lock()
	defer j.cbMu.Unlock()
	if j.isKilled() {
		return
	}
	j.spec.OnUpdate(j)
}

// Run starts spec.Command through the shell and returns immediately.
func (r *Runner) Run(spec Spec) (*Job, error) {
	command := strings.TrimSpace(spec.Command)
	if command == "" {
		return nil, ErrEmptyCommand
	}

	cmd := exec.Command(r.opts.Shell, "-c", spec.Command)
	cmd.Dir = spec.Dir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	} else {
		cmd.Env = os.Environ()
	}
	if cmd.Dir != "" {
		if info, err := os.Stat(cmd.Dir); err != nil || !info.IsDir() {
			cmd.Dir = ""
		}
	}

	output, tty, err := startProcess(cmd, r.opts.UsePTY)
	if err != nil {
		return nil, fmt.Errorf("job: start %q: %w", spec.Command, err)
	}

	j := &Job{
		command: spec.Command,
		spec:    spec,
		cmd:     cmd,
		output:  output,
		tty:     tty,
	}
	j.coalescer = newOutputCoalescer(r.opts.CoalesceInterval, 0, j.appendOutput)
	j.coalescer.start()

	r.mu.Lock()
	r.jobs[j] = struct{}{}
	r.mu.Unlock()

	workerutil.RunWithPanicRecovery(context.Background(), "job-reader", &r.wg, func(context.Context) {
		r.readLoop(j)
	}, workerutil.RecoveryOptions{MaxRetries: 1})

	slog.Debug("[DEBUG-JOB] started", "command", spec.Command, "pid", j.Pid(), "pty", r.opts.UsePTY)
	return j, nil
}

func (r *Runner) readLoop(j *Job) {
	defer func() {
		r.mu.Lock()
		delete(r.jobs, j)
		r.mu.Unlock()
	}()

	chunk := make([]byte, 4096)
	for {
		n, err := j.output.Read(chunk)
		if n > 0 {
			j.coalescer.write(chunk[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !isPTYClosed(err) {
				slog.Debug("[DEBUG-JOB] read ended", "command", j.command, "error", err)
			}
			break
		}
	}
	j.coalescer.stop()
	if err := j.output.Close(); err != nil {
		slog.Debug("[DEBUG-JOB] close output", "command", j.command, "error", err)
	}
	if err := j.cmd.Wait(); err != nil {
		slog.Debug("[DEBUG-JOB] exited", "command", j.command, "error", err)
	}

	j.mu.Lock()
	j.done = true
	if j.cmd.ProcessState != nil {
		j.exitCode = j.cmd.ProcessState.ExitCode()
	}
	j.mu.Unlock()

	if j.spec.OnComplete == nil {
		return
	}
	j.cbMu.Lock()
	defer j.cbMu.Unlock()
	if j.isKilled() {
		return
	}
	j.spec.OnComplete(j)
}

// Running returns the number of jobs whose process has not finished.
func (r *Runner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// Shutdown kills every running job and waits for their readers to finish or
// ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	jobs := make([]*Job, 0, len(r.jobs))
	for j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.Unlock()

	var g errgroup.Group
	for _, j := range jobs {
		g.Go(func() error {
			j.Kill()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	waited := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("job: shutdown: %w", ctx.Err())
	}
}

func defaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/sh"
}
