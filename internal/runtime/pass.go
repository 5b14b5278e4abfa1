package runtime

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/roach88/hostgen/internal/registry"
	"github.com/roach88/hostgen/internal/watch"
	"github.com/roach88/hostgen/internal/writer"
)

type passOptions struct {
	// scope maps dirty host ids to their reasons; nil renders every host.
	scope   map[string][]string
	persist bool
	reason  string
}

type passResult struct {
	reason    string
	started   time.Time
	snap      *registry.Snapshot
	renders   []*rendered
	plan      *Plan
	artifacts map[string]*Artifact
	written   []string
	skipped   []string
	removed   []string
	timings   writer.Timings
}

// pass renders the hosts in scope, plans the result and, when persisting,
// commits it. It runs only on the job queue worker.
func (rt *Runtime) pass(ctx context.Context, opts passOptions) (*passResult, error) {
	started := time.Now()
	snap := rt.takeSnapshot()
	state, err := rt.loadState()
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	rt.graph = snap.Graph
	rt.mu.Unlock()

	var scope map[string]bool
	if opts.scope != nil {
		scope = make(map[string]bool, len(opts.scope))
	}
	var renders []*rendered
	for i := range snap.Hosts {
		rec := &snap.Hosts[i]
		var reasons []string
		if opts.scope != nil {
			r, ok := opts.scope[rec.ID]
			if !ok {
				continue
			}
			reasons = r
			scope[rec.ID] = true
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := rt.materialize(ctx, rec, reasons)
		if err != nil {
			return nil, err
		}
		renders = append(renders, r)
	}
	renderedAt := time.Now()

	plan, byPath, err := rt.buildPlan(planInput{snap: snap, renders: renders, state: state, scope: scope})
	if err != nil {
		return nil, err
	}
	plan.Cycles = snap.Graph.Cycles()
	if opts.scope == nil {
		for _, c := range plan.Cycles {
			rt.logger.Warn("dependency cycle", "path", c.Path)
		}
	}
	rt.recordRenders(snap, renders, opts.scope == nil)
	planned := time.Now()

	res := &passResult{
		reason:    opts.reason,
		started:   started,
		snap:      snap,
		renders:   renders,
		plan:      plan,
		artifacts: byPath,
	}
	res.timings.RenderMS = writer.Millis(renderedAt.Sub(started))
	res.timings.PlanMS = writer.Millis(planned.Sub(renderedAt))
	if !opts.persist {
		res.timings.TotalMS = writer.Millis(time.Since(started))
		return res, nil
	}

	err = rt.persist(ctx, res, state, scope)
	res.timings.WriteMS = writer.Millis(time.Since(planned))
	res.timings.TotalMS = writer.Millis(time.Since(started))
	if err != nil {
		return nil, err
	}
	rt.installWatches(snap)
	rt.logger.Info("pass complete",
		"reason", opts.reason, "hosts", len(renders),
		"written", len(res.written), "skipped", len(res.skipped), "removed", len(res.removed))
	return res, nil
}

// persist writes the plan and updates the state file. Entries that were
// written before a failure are still recorded so state matches disk.
func (rt *Runtime) persist(ctx context.Context, res *passResult, state *writer.State, scope map[string]bool) error {
	var batch writer.Batch
	for _, e := range res.plan.Entries {
		switch {
		case e.Status == StatusRemoved:
			batch.Removes = append(batch.Removes, e.Path)
		case e.Status == StatusAdded || e.Status == StatusUpdated || e.Missing:
			a := res.artifacts[e.Path]
			batch.Writes = append(batch.Writes, writer.File{Path: a.Path, Data: a.Data, Perm: a.Perm})
		default:
			res.skipped = append(res.skipped, e.Path)
		}
	}

	wres, applyErr := rt.writer.Apply(ctx, batch)
	next := state.Clone()
	if wres != nil {
		maps.Copy(next.Managed, wres.Entries)
		for _, p := range wres.Removed {
			delete(next.Managed, p)
		}
		res.written = wres.Written
		res.removed = wres.Removed
	}
	if err := writer.SaveState(rt.statePath, next); err != nil {
		if applyErr != nil {
			return fmt.Errorf("%w (state not saved: %v)", applyErr, err)
		}
		return err
	}
	rt.mu.Lock()
	rt.state = next
	rt.trackPathsLocked(res, scope)
	rt.mu.Unlock()
	return applyErr
}

// trackPathsLocked remembers which host produced which path for partial
// passes and conflict detection.
func (rt *Runtime) trackPathsLocked(res *passResult, scope map[string]bool) {
	if scope == nil {
		rt.pathHost = make(map[string]string)
		rt.hostPaths = make(map[string][]string)
	} else {
		for id := range scope {
			for _, p := range rt.hostPaths[id] {
				delete(rt.pathHost, p)
			}
			delete(rt.hostPaths, id)
		}
	}
	for _, r := range res.renders {
		paths := make([]string, 0, len(r.artifacts))
		for _, a := range r.artifacts {
			rt.pathHost[a.Path] = a.Host
			paths = append(paths, a.Path)
		}
		rt.hostPaths[r.host.ID] = paths
	}
}

func (rt *Runtime) loadState() (*writer.State, error) {
	rt.mu.Lock()
	st := rt.state
	rt.mu.Unlock()
	if st != nil {
		return st, nil
	}
	st, err := writer.LoadState(rt.statePath, rt.logger)
	if err != nil {
		return nil, err
	}
	rt.mu.Lock()
	rt.state = st
	rt.mu.Unlock()
	return st, nil
}

// finish builds the run result and, when asked, the report and history row.
// Report and history failures are logged; the pass already succeeded.
func (rt *Runtime) finish(ctx context.Context, res *passResult, report bool) *RunResult {
	out := res.result(rt.ids.Generate())
	if !report && rt.history == nil {
		return out
	}
	rep := res.report(out.RunID)
	if report {
		if err := writer.WriteReport(rt.reportPath, rep); err != nil {
			rt.logger.Error("report write failed", "path", rt.reportPath, "error", err)
		} else {
			out.Report = rep
		}
	}
	if rt.history != nil {
		if err := rt.history.RecordRun(ctx, rep); err != nil {
			rt.logger.Error("history record failed", "run_id", out.RunID, "error", err)
		}
	}
	return out
}

func (res *passResult) result(runID string) *RunResult {
	return &RunResult{
		RunID:   runID,
		Reason:  res.reason,
		Plan:    res.plan,
		Written: res.written,
		Skipped: res.skipped,
		Removed: res.removed,
		Hosts:   res.hostStats(),
		Timings: res.timings,
	}
}

func (res *passResult) hostStats() []writer.HostStat {
	stats := make([]writer.HostStat, 0, len(res.renders))
	for _, r := range res.renders {
		stats = append(stats, writer.HostStat{
			ID:         r.host.ID,
			Path:       r.host.Path,
			Mode:       r.host.Spec.Mode().String(),
			Files:      len(r.artifacts),
			Bytes:      r.bytes(),
			DurationMS: writer.Millis(r.duration),
			Reasons:    r.reasons,
		})
	}
	return stats
}

func (res *passResult) report(runID string) *writer.Report {
	rep := &writer.Report{
		Generator: writer.Generator,
		RunID:     runID,
		Reason:    res.reason,
		StartedAt: res.started.UTC(),
		Hosts:     res.hostStats(),
		Written:   res.written,
		Skipped:   res.skipped,
		Removed:   res.removed,
		Timings:   res.timings,
	}
	for _, e := range res.plan.Entries {
		rep.Artifacts = append(rep.Artifacts, writer.ArtifactStat{
			Path: e.Path, Host: e.Host, Status: string(e.Status), Hash: e.Hash, Size: e.Size,
		})
	}
	return rep
}

// installWatches subscribes observe ids of hosts that appeared since the
// last call and disposes subscriptions of hosts that disappeared.
// Subscription failures are logged and isolated.
func (rt *Runtime) installWatches(snap *registry.Snapshot) {
	rt.mu.Lock()
	if rt.phase != PhaseStarting && rt.phase != PhaseRunning {
		rt.mu.Unlock()
		return
	}
	wanted := make(map[string]bool)
	type pending struct{ key, host, id string }
	var todo []pending
	for _, h := range snap.Hosts {
		for _, id := range h.Spec.Observe {
			key := h.ID + "\x00" + id
			wanted[key] = true
			if _, ok := rt.subs[key]; !ok {
				todo = append(todo, pending{key: key, host: h.ID, id: id})
			}
		}
	}
	var stale []watch.Disposer
	for _, key := range slices.Sorted(maps.Keys(rt.subs)) {
		if !wanted[key] {
			stale = append(stale, rt.subs[key])
			delete(rt.subs, key)
		}
	}
	rt.mu.Unlock()

	for _, d := range stale {
		d()
	}
	if rt.resolver == nil {
		if len(todo) > 0 {
			rt.logger.Debug("hosts observe watch ids but no resolver is configured", "count", len(todo))
		}
		return
	}
	for _, p := range todo {
		src, err := rt.resolver(p.id)
		if err != nil {
			rt.logger.Error("watch resolve failed", "host", p.host, "watch", p.id, "error", err)
			continue
		}
		hostID := p.host
		dispose, err := src.Subscribe(watch.EmitterFunc(func(reason string) {
			rt.MarkDirty(reason, hostID)
		}))
		if err != nil {
			rt.logger.Error("watch subscribe failed", "host", p.host, "watch", p.id, "error", err)
			continue
		}
		dispose = watch.Once(dispose)

		rt.mu.Lock()
		if rt.phase.closed() {
			rt.mu.Unlock()
			dispose()
			continue
		}
		rt.subs[p.key] = dispose
		rt.mu.Unlock()
	}
}
