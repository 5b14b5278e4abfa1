package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/roach88/hostgen/internal/registry"
	"github.com/roach88/hostgen/internal/watch"
	"github.com/roach88/hostgen/internal/writer"
)

// Default file locations, relative to the output directory.
const (
	DefaultStateFile  = ".cache/generate-state.json"
	DefaultReportFile = ".cache/generate-report.json"
)

// DefaultDebounce batches watch events arriving within this window.
const DefaultDebounce = 50 * time.Millisecond

// SnapshotFunc returns the current registry snapshot. It is called at the
// start of every pass.
type SnapshotFunc func() *registry.Snapshot

// WatchResolver maps a host's observe id to a watch source.
type WatchResolver func(id string) (watch.Source, error)

// HistoryRecorder stores the report of every reported pass.
type HistoryRecorder interface {
	RecordRun(ctx context.Context, r *writer.Report) error
}

// Event describes why Run was invoked.
type Event struct {
	Reason string
	// Report forces a report file even when reports are disabled.
	Report bool
}

// RunResult is the outcome of a persisted pass.
type RunResult struct {
	RunID   string
	Reason  string
	Plan    *Plan
	Written []string
	Skipped []string
	Removed []string
	Hosts   []writer.HostStat
	Timings writer.Timings
	// Report is set when a report file was written.
	Report *writer.Report
}

// Runtime renders registry snapshots to disk.
//
// Thread-safety model:
//   - every public operation is safe from any goroutine
//   - passes run one at a time on the job queue worker
//   - watch emitters only mark hosts dirty and (re)arm the debounce timer
type Runtime struct {
	snapshot    SnapshotFunc
	outDir      string
	sourceRoot  string
	statePath   string
	reportPath  string
	debounce    time.Duration
	concurrency int
	clean       bool
	report      bool
	scheduler   Scheduler
	resolver    WatchResolver
	formatters  map[string]Formatter
	logger      *slog.Logger
	ids         RunIDGenerator
	history     HistoryRecorder

	writer *writer.Writer
	queue  *jobQueue

	mu        sync.Mutex
	phase     Phase
	state     *writer.State
	graph     registry.Graph
	dirty     map[string][]string
	stopTimer func() bool
	subs      map[string]watch.Disposer
	explained map[string]*HostExplain
	pathHost  map[string]string   // output path -> host id, last pass
	hostPaths map[string][]string // host id -> output paths, last pass
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithOutDir sets the output directory. Default ".".
func WithOutDir(dir string) Option {
	return func(rt *Runtime) { rt.outDir = dir }
}

// WithSourceRoot sets the directory relative copy sources resolve against.
// Default ".".
func WithSourceRoot(dir string) Option {
	return func(rt *Runtime) { rt.sourceRoot = dir }
}

// WithStateFile sets the state file path, relative to the output directory
// unless absolute.
func WithStateFile(p string) Option {
	return func(rt *Runtime) { rt.statePath = p }
}

// WithReportFile sets the report file path, relative to the output
// directory unless absolute.
func WithReportFile(p string) Option {
	return func(rt *Runtime) { rt.reportPath = p }
}

// WithDebounce sets the watch batching delay. Zero flushes on the next
// scheduler tick.
func WithDebounce(d time.Duration) Option {
	return func(rt *Runtime) { rt.debounce = max(d, 0) }
}

// WithConcurrency caps simultaneous file writes.
func WithConcurrency(n int) Option {
	return func(rt *Runtime) { rt.concurrency = n }
}

// WithClean enables removal of orphaned managed outputs.
func WithClean(enabled bool) Option {
	return func(rt *Runtime) { rt.clean = enabled }
}

// WithReport enables the JSON report for Run, Start and watch flushes.
func WithReport(enabled bool) Option {
	return func(rt *Runtime) { rt.report = enabled }
}

// WithScheduler replaces the wall-clock debounce scheduler.
func WithScheduler(s Scheduler) Option {
	return func(rt *Runtime) {
		if s != nil {
			rt.scheduler = s
		}
	}
}

// WithWatchResolver sets how observe ids become watch subscriptions.
func WithWatchResolver(r WatchResolver) Option {
	return func(rt *Runtime) { rt.resolver = r }
}

// WithFormatter registers a named formatter, replacing a built-in one.
func WithFormatter(name string, f Formatter) Option {
	return func(rt *Runtime) { rt.formatters[name] = f }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(rt *Runtime) {
		if l != nil {
			rt.logger = l
		}
	}
}

// WithRunIDGenerator replaces the UUIDv7 run id generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(rt *Runtime) {
		if g != nil {
			rt.ids = g
		}
	}
}

// WithHistory records reported passes.
func WithHistory(h HistoryRecorder) Option {
	return func(rt *Runtime) { rt.history = h }
}

// New creates an idle runtime reading snapshots from snap.
func New(snap SnapshotFunc, opts ...Option) *Runtime {
	rt := &Runtime{
		snapshot:    snap,
		outDir:      ".",
		sourceRoot:  ".",
		statePath:   DefaultStateFile,
		reportPath:  DefaultReportFile,
		debounce:    DefaultDebounce,
		concurrency: writer.DefaultConcurrency,
		scheduler:   SystemScheduler{},
		formatters:  builtinFormatters(),
		logger:      slog.Default(),
		ids:         UUIDv7Generator{},
		dirty:       make(map[string][]string),
		subs:        make(map[string]watch.Disposer),
		explained:   make(map[string]*HostExplain),
		pathHost:    make(map[string]string),
		hostPaths:   make(map[string][]string),
	}
	for _, opt := range opts {
		opt(rt)
	}
	if !filepath.IsAbs(rt.statePath) {
		rt.statePath = filepath.Join(rt.outDir, rt.statePath)
	}
	if !filepath.IsAbs(rt.reportPath) {
		rt.reportPath = filepath.Join(rt.outDir, rt.reportPath)
	}
	rt.writer = writer.New(rt.outDir, writer.WithConcurrency(rt.concurrency), writer.WithLogger(rt.logger))
	rt.queue = newJobQueue()
	return rt
}

// Phase returns the lifecycle state.
func (rt *Runtime) Phase() Phase {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.phase
}

// Start loads the persisted state, installs watch subscriptions and runs a
// full initial pass.
//
// If the initial pass fails the error is returned but the runtime still
// enters running, so a later watch event can recover.
func (rt *Runtime) Start(ctx context.Context) error {
	rt.mu.Lock()
	switch {
	case rt.phase.closed():
		rt.mu.Unlock()
		return rt.stateErr(ErrCodeClosed, "start")
	case rt.phase != PhaseIdle:
		rt.mu.Unlock()
		return &StateError{Code: ErrCodeAlreadyStarted, Phase: rt.phase, Message: "start: already started"}
	}
	rt.phase = PhaseStarting
	rt.mu.Unlock()

	snap := rt.takeSnapshot()
	rt.mu.Lock()
	rt.graph = snap.Graph
	rt.mu.Unlock()
	rt.installWatches(snap)

	_, err := rt.submitRun(ctx, "start", rt.report)

	rt.mu.Lock()
	if rt.phase == PhaseStarting {
		rt.phase = PhaseRunning
	}
	rt.mu.Unlock()
	if err != nil {
		rt.logger.Error("initial pass failed", "error", err)
		return err
	}
	rt.logger.Info("runtime started", "out_dir", rt.outDir)
	return nil
}

// Commit renders every host and persists the changes, ignoring dirty tracking.
func (rt *Runtime) Commit(ctx context.Context) (*RunResult, error) {
	var result *RunResult
	err := rt.submit(ctx, "commit", func(ctx context.Context) error {
		res, err := rt.pass(ctx, passOptions{persist: true, reason: "commit"})
		if err != nil {
			return err
		}
		result = res.result("")
		return nil
	})
	return result, err
}

// Run is Commit plus statistics, an optional report and history.
func (rt *Runtime) Run(ctx context.Context, ev Event) (*RunResult, error) {
	reason := ev.Reason
	if reason == "" {
		reason = "run"
	}
	return rt.submitRun(ctx, reason, rt.report || ev.Report)
}

func (rt *Runtime) submitRun(ctx context.Context, reason string, report bool) (*RunResult, error) {
	var result *RunResult
	err := rt.submit(ctx, reason, func(ctx context.Context) error {
		res, err := rt.pass(ctx, passOptions{persist: true, reason: reason})
		if err != nil {
			return err
		}
		result = rt.finish(ctx, res, report)
		return nil
	})
	return result, err
}

// Plan renders every host and classifies the outputs without writing.
func (rt *Runtime) Plan(ctx context.Context) (*Plan, error) {
	var plan *Plan
	err := rt.submit(ctx, "plan", func(ctx context.Context) error {
		res, err := rt.pass(ctx, passOptions{reason: "plan"})
		if err != nil {
			return err
		}
		plan = res.plan
		return nil
	})
	return plan, err
}

// MarkDirty marks hosts and everything downstream of them dirty and
// (re)arms the debounce timer. It is a no-op unless the runtime is
// starting or running.
func (rt *Runtime) MarkDirty(reason string, ids ...string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.phase != PhaseStarting && rt.phase != PhaseRunning {
		return
	}
	for _, id := range rt.graph.Reachable(ids...) {
		if !slices.Contains(rt.dirty[id], reason) {
			rt.dirty[id] = append(rt.dirty[id], reason)
		}
	}
	if rt.stopTimer != nil {
		rt.stopTimer()
	}
	rt.stopTimer = rt.scheduler.AfterFunc(rt.debounce, rt.flush)
}

// flush renders and persists the dirty set collected since the last flush.
func (rt *Runtime) flush() {
	rt.mu.Lock()
	if rt.phase.closed() {
		rt.mu.Unlock()
		return
	}
	dirty := rt.dirty
	rt.dirty = make(map[string][]string)
	rt.stopTimer = nil
	rt.mu.Unlock()
	if len(dirty) == 0 {
		return
	}

	err := rt.queue.do(context.Background(), func(ctx context.Context) error {
		res, err := rt.pass(ctx, passOptions{scope: dirty, persist: true, reason: "watch"})
		if err != nil {
			return err
		}
		rt.finish(ctx, res, rt.report)
		return nil
	})
	if err != nil && !errors.Is(err, errQueueClosed) {
		rt.logger.Error("watch flush failed", "hosts", slices.Sorted(maps.Keys(dirty)), "error", err)
	}
}

// Close drains queued jobs, cancels a pending flush and disposes every
// watch subscription. Calling Close again is a no-op.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.phase.closed() {
		rt.mu.Unlock()
		return nil
	}
	rt.phase = PhaseClosing
	if rt.stopTimer != nil {
		rt.stopTimer()
		rt.stopTimer = nil
	}
	rt.dirty = make(map[string][]string)
	rt.mu.Unlock()

	rt.queue.close()

	rt.mu.Lock()
	subs := rt.subs
	rt.subs = make(map[string]watch.Disposer)
	rt.mu.Unlock()
	for _, key := range slices.Sorted(maps.Keys(subs)) {
		subs[key]()
	}

	rt.mu.Lock()
	rt.phase = PhaseStopped
	rt.mu.Unlock()
	rt.logger.Debug("runtime stopped", "disposed", len(subs))
	return nil
}

// submit runs fn on the job queue unless the runtime is closed.
func (rt *Runtime) submit(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	rt.mu.Lock()
	closed := rt.phase.closed()
	rt.mu.Unlock()
	if closed {
		return rt.stateErr(ErrCodeClosed, op)
	}
	err := rt.queue.do(ctx, fn)
	if errors.Is(err, errQueueClosed) {
		return rt.stateErr(ErrCodeClosed, op)
	}
	return err
}

func (rt *Runtime) stateErr(code StateErrorCode, op string) *StateError {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return &StateError{Code: code, Phase: rt.phase, Message: fmt.Sprintf("%s: runtime is closed", op)}
}

func (rt *Runtime) takeSnapshot() *registry.Snapshot {
	if rt.snapshot == nil {
		return &registry.Snapshot{}
	}
	if snap := rt.snapshot(); snap != nil {
		return snap
	}
	return &registry.Snapshot{}
}
