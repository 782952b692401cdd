package tmux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-tmux/internal/job"
	"go-tmux/internal/metrics"
	"go-tmux/internal/workerutil"
)

// formatJobMaxIdle is how long an untouched #() entry survives a tidy.
const formatJobMaxIdle = time.Hour

// JobHandle is a running #() command.
type JobHandle interface {
	Kill()
}

// JobStarter launches #() commands. update receives the newest complete
// output line; complete receives the final line or the unterminated
// remainder after the process exits. Neither may be called synchronously
// from Start or after Kill.
type JobStarter interface {
	Start(command, dir string, update func(line string), complete func(rest string)) (JobHandle, error)
}

// StatusRedrawer is asked to redraw a client's status line when a job owned
// by it produces output.
type StatusRedrawer interface {
	RedrawStatus(clientID string)
}

// RunnerStarter adapts a job.Runner to JobStarter.
type RunnerStarter struct {
	Runner *job.Runner
}

// Start implements JobStarter.
func (r RunnerStarter) Start(command, dir string, update func(string), complete func(string)) (JobHandle, error) {
	return r.Runner.Run(job.Spec{
		Command: command,
		Dir:     dir,
		OnUpdate: func(j *job.Job) {
			var last string
			found := false
			for {
				line, ok := j.ReadLine()
				if !ok {
					break
				}
				last, found = line, true
			}
			if found {
				update(last)
			}
		},
		OnComplete: func(j *job.Job) {
			if line, ok := j.ReadLine(); ok {
				complete(line)
				return
			}
			complete(j.Remaining())
		},
	})
}

type formatJobKey struct {
	client string
	tag    uint32
	cmd    string
}

type formatJob struct {
	key formatJobKey

	expanded    string
	hasExpanded bool
	out         string
	hasOut      bool
	last        int64
	lastUse     time.Time

	job JobHandle
	gen uint64

	status  bool
	updated bool
}

// FormatJobs caches #() command output per (client, tag, command). It is
// safe for concurrent use and independent of the session manager lock.
type FormatJobs struct {
	mu      sync.Mutex
	jobs    map[formatJobKey]*formatJob
	starter JobStarter
	redraw  StatusRedrawer
	metrics *metrics.Metrics
	now     func() time.Time
	maxIdle time.Duration
	gen     uint64
}

// FormatJobsOptions configures NewFormatJobs.
type FormatJobsOptions struct {
	Starter  JobStarter
	Redrawer StatusRedrawer
	Metrics  *metrics.Metrics
	// MaxIdle overrides the one hour idle limit used by Tidy.
	MaxIdle time.Duration
}

// NewFormatJobs creates an empty job cache.
func NewFormatJobs(opts FormatJobsOptions) *FormatJobs {
	maxIdle := opts.MaxIdle
	if maxIdle <= 0 {
		maxIdle = formatJobMaxIdle
	}
	return &FormatJobs{
		jobs:    map[formatJobKey]*formatJob{},
		starter: opts.Starter,
		redraw:  opts.Redrawer,
		metrics: opts.Metrics,
		now:     time.Now,
		maxIdle: maxIdle,
	}
}

// SetRedrawer installs the status redraw target.
func (f *FormatJobs) SetRedrawer(r StatusRedrawer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redraw = r
}

// FormatJobRequest is one #() lookup.
type FormatJobRequest struct {
	// Client is the owning client's id, or "" for the global cache.
	Client string
	Tag    uint32
	// Command is the raw #() text and the cache key; Expanded is what runs.
	Command  string
	Expanded string
	Dir      string
	Force    bool
	Status   bool
}

// Get returns the current output for a #() command, starting or restarting
// the command when needed. It never blocks on the command.
func (f *FormatJobs) Get(req FormatJobRequest) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := formatJobKey{client: req.Client, tag: req.Tag, cmd: req.Command}
	fj := f.jobs[key]
	if fj == nil {
		fj = &formatJob{key: key}
		f.jobs[key] = fj
	}

	force := req.Force
	if !fj.hasExpanded || fj.expanded != req.Expanded {
		fj.expanded, fj.hasExpanded = req.Expanded, true
		force = true
	}

	now := f.now()
	sec := now.Unix()
	fj.lastUse = now
	ctx := context.Background()

	if force && fj.job != nil {
		slog.Debug("[DEBUG-JOB] restarting #() command", "command", req.Command, "expanded", req.Expanded)
		fj.job.Kill()
		fj.job = nil
		f.metrics.RecordJob(ctx, metrics.JobKill, 1)
	}
	switch {
	case force || (fj.job == nil && fj.last != sec):
		f.startLocked(fj, req.Expanded, req.Dir)
		fj.last = sec
		fj.updated = false
	case fj.job != nil && sec-fj.last > 1 && !fj.hasOut:
		fj.out, fj.hasOut = fmt.Sprintf("<'%s' not ready>", req.Command), true
		f.metrics.RecordJob(ctx, metrics.JobNotReady, 1)
	default:
		f.metrics.RecordJob(ctx, metrics.JobReuse, 1)
	}

	if req.Status {
		fj.status = true
	}
	return fj.out
}

// REQUIRES: f.mu must be held by the caller.
func (f *FormatJobs) startLocked(fj *formatJob, expanded, dir string) {
	f.gen++
	gen := f.gen
	fj.gen = gen

	if f.starter == nil {
		fj.job = nil
		fj.out, fj.hasOut = fmt.Sprintf("<'%s' didn't start>", fj.key.cmd), true
		f.metrics.RecordJob(context.Background(), metrics.JobSpawnFail, 1)
		return
	}
	h, err := f.starter.Start(expanded, dir,
		func(line string) { f.update(fj, gen, line) },
		func(rest string) { f.complete(fj, gen, rest) },
	)
	if err != nil {
		slog.Debug("[DEBUG-JOB] #() command did not start", "command", expanded, "error", err)
		fj.job = nil
		fj.out, fj.hasOut = fmt.Sprintf("<'%s' didn't start>", fj.key.cmd), true
		f.metrics.RecordJob(context.Background(), metrics.JobSpawnFail, 1)
		return
	}
	fj.job = h
	f.metrics.RecordJob(context.Background(), metrics.JobRun, 1)
}

// current reports whether fj is still cached and gen is its latest run.
// REQUIRES: f.mu must be held by the caller.
func (f *FormatJobs) currentLocked(fj *formatJob, gen uint64) bool {
	return f.jobs[fj.key] == fj && fj.gen == gen
}

func (f *FormatJobs) update(fj *formatJob, gen uint64, line string) {
	f.mu.Lock()
	if !f.currentLocked(fj, gen) {
		f.mu.Unlock()
		return
	}
	fj.updated = true
	fj.out, fj.hasOut = line, true
	slog.Debug("[DEBUG-JOB] #() output", "command", fj.key.cmd, "out", line)

	client := ""
	sec := f.now().Unix()
	if fj.status && fj.last != sec {
		client = fj.key.client
		fj.last = sec
	}
	redraw := f.redraw
	f.mu.Unlock()

	if client != "" && redraw != nil {
		redraw.RedrawStatus(client)
	}
}

func (f *FormatJobs) complete(fj *formatJob, gen uint64, rest string) {
	f.mu.Lock()
	if !f.currentLocked(fj, gen) {
		f.mu.Unlock()
		return
	}
	fj.job = nil
	if rest != "" || !fj.updated {
		fj.out, fj.hasOut = rest, true
	}
	slog.Debug("[DEBUG-JOB] #() finished", "command", fj.key.cmd, "out", fj.out)

	client := ""
	if fj.status {
		client = fj.key.client
		fj.status = false
	}
	redraw := f.redraw
	f.mu.Unlock()

	if client != "" && redraw != nil {
		redraw.RedrawStatus(client)
	}
}

// Tidy removes entries whose last run is older than the idle limit, or
// every entry when force is set. Running commands are killed. It returns
// the number removed.
func (f *FormatJobs) Tidy(force bool) int {
	return f.tidy(force, func(formatJobKey) bool { return true })
}

// LostClient drops every entry owned by the client.
func (f *FormatJobs) LostClient(clientID string) int {
	if clientID == "" {
		return 0
	}
	return f.tidy(true, func(k formatJobKey) bool { return k.client == clientID })
}

func (f *FormatJobs) tidy(force bool, match func(formatJobKey) bool) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now().Unix()
	idle := int64(f.maxIdle / time.Second)
	removed, killed := 0, 0
	for key, fj := range f.jobs {
		if !match(key) {
			continue
		}
		if !force && (fj.last > now || now-fj.last < idle) {
			continue
		}
		delete(f.jobs, key)
		slog.Debug("[DEBUG-JOB] tidy #() entry", "command", key.cmd, "client", key.client)
		if fj.job != nil {
			fj.job.Kill()
			fj.job = nil
			killed++
		}
		removed++
	}
	ctx := context.Background()
	f.metrics.RecordJob(ctx, metrics.JobReaped, int64(removed))
	f.metrics.RecordJob(ctx, metrics.JobKill, int64(killed))
	return removed
}

// Len returns the number of cached entries.
func (f *FormatJobs) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

// RunTidy tidies the cache every interval until ctx is done.
func (f *FormatJobs) RunTidy(ctx context.Context, wg *sync.WaitGroup, interval time.Duration) {
	workerutil.RunTicker(ctx, "format-job-tidy", wg, interval, func(context.Context) {
		if n := f.Tidy(false); n > 0 {
			slog.Debug("[DEBUG-JOB] tidied #() cache", "removed", n)
		}
	})
}

// jobDir is where #() commands run: the owning client's session path, or
// the client's own directory when it has no session.
func (ft *FormatTree) jobDir() string {
	c := ft.client
	switch {
	case c != nil && c.Session == nil:
		return c.Cwd
	case c != nil && c.Session.Path != "":
		return c.Session.Path
	case ft.s != nil && ft.s.Path != "":
		return ft.s.Path
	case c != nil:
		return c.Cwd
	}
	return ""
}

// jobGet resolves #(cmd) for the current tree.
func (es *expandState) jobGet(cmd string) string {
	ft := es.ft
	jobs := ft.m.jobs
	if jobs == nil {
		es.log("#() has no job cache")
		return ""
	}

	next := es.next(ft, expandNoJobs)
	next.flags &^= expandTime
	expanded := next.expand1(cmd)

	req := FormatJobRequest{
		Tag:      ft.tag,
		Command:  cmd,
		Expanded: expanded,
		Dir:      ft.jobDir(),
		Force:    ft.flags&FormatForce != 0,
		Status:   ft.flags&FormatStatus != 0,
	}
	if ft.client != nil {
		req.Client = ft.client.ID
	}
	out := jobs.Get(req)
	if out == "" {
		return ""
	}
	return next.expand1(out)
}
