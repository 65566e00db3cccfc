// Package engine wires configuration, the message bus, and the group
// scheduler into a single object per process, rather than relying on
// package-level singletons.
package engine

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/hrygo/fedsched/internal/bus"
	"github.com/hrygo/fedsched/internal/config"
	"github.com/hrygo/fedsched/internal/depgraph"
	"github.com/hrygo/fedsched/internal/gpu"
	"github.com/hrygo/fedsched/internal/report"
	"github.com/hrygo/fedsched/internal/scheduler"
	"github.com/hrygo/fedsched/internal/task"
)

// Engine owns the process-wide scheduler state: configuration, the bus,
// and the ordered list of submitted groups.
type Engine struct {
	Config *config.Config
	Bus    *bus.Bus
	Logger *slog.Logger

	groups    []*task.Group
	depGraphs map[*task.Group]*depgraph.Graph
}

// New constructs an Engine from cfg. Callers typically build cfg via
// config.Load and pass it straight through.
func New(cfg *config.Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		Config:    cfg,
		Bus:       bus.New(256, logger),
		Logger:    logger,
		depGraphs: map[*task.Group]*depgraph.Graph{},
	}
}

// AddGroup appends g to the submission order and assigns its 1-based
// index, mirroring FedFlow.add_group.
func (e *Engine) AddGroup(g *task.Group) {
	e.groups = append(e.groups, g)
	g.Index = len(e.groups)
}

// AddGroupWithDepGraph is AddGroup plus an optional intra-group dependency
// graph (see internal/depgraph), used by the declarative plan loader when a
// plan's tasks declare depends-on edges.
func (e *Engine) AddGroupWithDepGraph(g *task.Group, dg *depgraph.Graph) {
	e.AddGroup(g)
	if dg != nil {
		e.depGraphs[g] = dg
	}
}

// Run executes every submitted group to completion, in submission order
// (groups never run concurrently with each other — fair cross-group
// scheduling is an explicit Non-goal), then writes and optionally emails
// each group's report.
func (e *Engine) Run(ctx context.Context) error {
	workdir := e.Config.GetString("workdir")
	absWorkdir, err := filepath.Abs(workdir)
	if err != nil {
		return errors.Wrap(err, "engine: resolve workdir")
	}
	if err := os.MkdirAll(absWorkdir, 0o755); err != nil {
		return errors.Wrap(err, "engine: create workdir")
	}
	if err := os.Chdir(absWorkdir); err != nil {
		return errors.Wrap(err, "engine: chdir to workdir")
	}

	go e.Bus.Run()
	defer e.Bus.Stop()

	for _, g := range e.groups {
		if err := e.runGroup(ctx, g, absWorkdir); err != nil {
			return err
		}
	}
	return nil
}

// runGroup runs one group, optionally inside its own subdirectory when
// task.directory-grouping is set, ported from FedFlow.start's
// WorkDirContext usage. Reports always land at
// rootWorkdir/reports/{group}.html regardless of directory-grouping.
func (e *Engine) runGroup(ctx context.Context, g *task.Group, rootWorkdir string) error {
	if e.Config.GetBool("task.directory-grouping") {
		groupDir := filepath.Join(rootWorkdir, g.GroupName())
		if err := os.MkdirAll(groupDir, 0o755); err != nil {
			return errors.Wrap(err, "engine: create group dir")
		}
		return e.runGroupInDir(ctx, g, groupDir, rootWorkdir)
	}
	g.WorkDir = rootWorkdir
	return e.scheduleAndReport(ctx, g, rootWorkdir)
}

// runGroupInDir temporarily changes the process's working directory to
// dir for the duration of scheduling g, then restores it — the Go
// analogue of original_source's WorkDirContext context manager.
func (e *Engine) runGroupInDir(ctx context.Context, g *task.Group, dir, rootWorkdir string) error {
	prevWD, err := os.Getwd()
	if err != nil {
		return errors.Wrap(err, "engine: read current directory")
	}
	if err := os.Chdir(dir); err != nil {
		return errors.Wrap(err, "engine: chdir to group dir")
	}
	defer os.Chdir(prevWD)

	g.WorkDir = dir
	return e.scheduleAndReport(ctx, g, rootWorkdir)
}

func (e *Engine) scheduleAndReport(ctx context.Context, g *task.Group, rootWorkdir string) error {
	sched := scheduler.New(g, e.Config, e.Bus, gpu.DefaultLister, e.Logger)
	sched.DepGraph = e.depGraphs[g]
	if err := sched.Run(ctx); err != nil {
		return errors.Wrapf(err, "engine: schedule group %s", g.GroupName())
	}

	results := g.Results()
	html, err := report.Render(g.GroupName(), results)
	if err != nil {
		return err
	}
	if _, err := report.WriteFile(rootWorkdir, g.GroupName(), results); err != nil {
		return err
	}
	settings := report.SettingsFromConfig(e.Config)
	if settings.Enable {
		if err := report.Send(settings, g.GroupName(), html); err != nil {
			e.Logger.Error("engine: send group report mail failed", "group", g.GroupName(), "error", err)
		} else {
			e.Logger.Info("engine: sent group report mail", "group", g.GroupName())
		}
	}
	return nil
}
