// Package scheduler implements the Group Scheduler: a resource-gated
// admission loop that promotes tasks through their lifecycle one state at
// a time, spawning and tearing down Task Supervisors as it goes.
//
// The promotion order, retry-budget checks, and resource gates follow the
// bounded-concurrency tick idiom of a dependency-graph admission loop,
// adapted from graph-edge admission to resource-gated admission.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/fedsched/internal/bus"
	"github.com/hrygo/fedsched/internal/byteunit"
	"github.com/hrygo/fedsched/internal/config"
	"github.com/hrygo/fedsched/internal/depgraph"
	"github.com/hrygo/fedsched/internal/gpu"
	"github.com/hrygo/fedsched/internal/rescheck"
	"github.com/hrygo/fedsched/internal/supervisor"
	"github.com/hrygo/fedsched/internal/task"
)

// GPULister is the subset of gpu.Lister the scheduler depends on; kept as
// an interface here so tests can substitute a fake without importing the
// nvml/nogpu build-tag machinery.
type GPULister = gpu.Lister

// Scheduler runs a single Group to completion, tick by tick.
type Scheduler struct {
	Group    *task.Group
	Config   *config.Config
	Bus      *bus.Bus
	GPU      GPULister
	Logger   *slog.Logger

	// DepGraph optionally narrows which INIT tasks are eligible for
	// spawning this tick; nil means every INIT task is eligible.
	DepGraph *depgraph.Graph

	supervisors map[string]*supervisor.Supervisor
}

// New constructs a Scheduler for one group.
func New(g *task.Group, cfg *config.Config, b *bus.Bus, lister GPULister, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		Group:       g,
		Config:      cfg,
		Bus:         b,
		GPU:         lister,
		Logger:      logger,
		supervisors: map[string]*supervisor.Supervisor{},
	}
}

// Run executes the tick loop until the group finishes, registering a
// TaskHandler as the bus's default handler for the duration.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Logger.Info("scheduler: schedule group", "group", s.Group.GroupName())
	handler := &TaskHandler{group: s.Group, sched: s, logger: s.Logger}
	s.Bus.RegisterDefaultHandler(handler)

	round := 1
	for !s.Group.Finished() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		process, waiting, training := s.Group.Numbers()
		s.Logger.Info("scheduler: tick", "round", round, "waiting", waiting, "training", training, "process", process)
		round++

		maxProcess := s.Config.GetInt("scheduler.max-process")
		if maxProcess == 0 || process < maxProcess {
			cpuFree, err := rescheck.CPUFree(s.Config.GetFloat64("utilization-limit.cpu"), s.Logger)
			if err != nil {
				s.Logger.Error("scheduler: cpu check failed", "error", err)
			}
			if cpuFree {
				s.tryLoadPath(waiting)
				s.tryTrainPath()
			} else {
				s.Logger.Warn("scheduler: cpu utilization too high")
			}
		} else {
			s.Logger.Info("scheduler: max process reached")
		}

		s.sleep(ctx)
	}
	return nil
}

func (s *Scheduler) sleep(ctx context.Context) {
	interval := time.Duration(s.Config.GetInt("scheduler.interval")) * time.Second
	s.Logger.Debug("scheduler: sleeping", "interval", interval)
	select {
	case <-ctx.Done():
	case <-time.After(interval):
	}
}

// tryLoadPath attempts at most one INIT->AVAILABLE spawn and at most one
// AVAILABLE->LOADING promotion, gated by scheduler.max-waiting and the
// memory resource gate.
func (s *Scheduler) tryLoadPath(waiting int) {
	maxWaiting := s.Config.GetInt("scheduler.max-waiting")
	if maxWaiting != 0 && waiting >= maxWaiting {
		s.Logger.Info("scheduler: max waiting reached")
		return
	}

	if t := s.retrieveEligibleInit(); t != nil {
		s.Logger.Info("scheduler: starting task", "task_id", t.ID)
		if err := s.startTask(t); err != nil {
			s.Logger.Error("scheduler: failed to start task", "task_id", t.ID, "error", err)
		}
	} else {
		s.Logger.Debug("scheduler: no init task")
	}

	if t := s.Group.RetrieveTask(task.StatusAvailable); t != nil {
		requireMemory := t.EstimateMemory
		if requireMemory == "" {
			requireMemory = s.Group.EstimateMemory
		}
		requireBytes, err := s.parseMemoryValue(requireMemory, "scheduler.default-memory")
		if err != nil {
			s.Logger.Error("scheduler: bad memory value", "error", err)
			return
		}
		remainBytes, err := byteunit.ParseBytes(s.Config.GetString("remain-limit.memory"))
		if err != nil {
			s.Logger.Error("scheduler: bad remain-limit.memory", "error", err)
			return
		}
		free, err := rescheck.MemoryFree(requireBytes, remainBytes, s.Config.GetFloat64("utilization-limit.memory"), s.Logger)
		if err != nil {
			s.Logger.Error("scheduler: memory check failed", "error", err)
			return
		}
		if free {
			s.Logger.Info("scheduler: starting load", "task_id", t.ID)
			sup := s.supervisors[t.ID]
			t.LoadNumbers++
			err := sup.StartLoad()
			if err != nil {
				// A LOAD-stage interrupt exits the child before returning the
				// task to AVAILABLE, so its command pipe is closed: spawn a
				// fresh child and send the LOAD to that one.
				sup = supervisor.New(t.ID, t.TypeName, t.WorkDir, s.Bus, s.Logger)
				if spawnTimeout := s.Config.GetInt("scheduler.spawn-timeout"); spawnTimeout > 0 {
					sup.ReadyTimeout = time.Duration(spawnTimeout) * time.Second
				}
				s.supervisors[t.ID] = sup
				if err = sup.Start(context.Background()); err == nil {
					err = sup.StartLoad()
				}
			}
			if err != nil {
				s.Logger.Error("scheduler: start load failed", "task_id", t.ID, "error", err)
			}
		} else {
			s.Logger.Warn("scheduler: memory utilization too high")
		}
	} else {
		s.Logger.Debug("scheduler: no available task")
	}
}

// tryTrainPath attempts at most one WAITING->TRAINING promotion, gated by
// the GPU assigner.
func (s *Scheduler) tryTrainPath() {
	t := s.Group.RetrieveTask(task.StatusWaiting)
	if t == nil {
		s.Logger.Info("scheduler: no waiting task")
		return
	}

	requireCUDA := t.EstimateCUDAMemory
	if requireCUDA == "" {
		requireCUDA = s.Group.EstimateCUDAMemory
	}
	requireBytes, err := s.parseMemoryValue(requireCUDA, "scheduler.default-cuda-memory")
	if err != nil {
		s.Logger.Error("scheduler: bad cuda memory value", "error", err)
		return
	}
	remainBytes, err := byteunit.ParseBytes(s.Config.GetString("remain-limit.cuda-memory"))
	if err != nil {
		s.Logger.Error("scheduler: bad remain-limit.cuda-memory", "error", err)
		return
	}

	pinned := -1
	if t.Device != "" {
		if idx, ok := parseDeviceIndex(t.Device); ok {
			pinned = idx
		} else {
			s.Logger.Warn("scheduler: malformed device pin, considering all GPUs", "task_id", t.ID, "device", t.Device)
		}
	}

	deviceID, err := gpu.Assign(s.GPU, requireBytes, remainBytes, s.Config.GetFloat64("utilization-limit.cuda-memory"), pinned)
	if err != nil {
		s.Logger.Error("scheduler: gpu assign failed", "error", err)
		return
	}
	if deviceID < 0 {
		s.Logger.Warn("scheduler: gpu utilization too high")
		return
	}

	device := deviceName(deviceID)
	s.Logger.Info("scheduler: starting train", "task_id", t.ID, "device", device)
	sup := s.supervisors[t.ID]
	t.TrainNumbers++
	if err := sup.StartTrain(device); err != nil {
		s.Logger.Error("scheduler: start train failed", "task_id", t.ID, "error", err)
	}
}

// retrieveEligibleInit picks a uniformly random task among INIT tasks whose
// declared dependencies (if any) have already finished. With no DepGraph
// configured this is exactly Group.RetrieveTask(StatusInit).
func (s *Scheduler) retrieveEligibleInit() *task.Task {
	if s.DepGraph == nil {
		return s.Group.RetrieveTask(task.StatusInit)
	}
	candidates := s.Group.TasksInStatus(task.StatusInit)
	eligible := candidates[:0]
	for _, t := range candidates {
		if s.DepGraph.Eligible(t.ID, s.Group) {
			eligible = append(eligible, t)
		}
	}
	if len(eligible) == 0 {
		return nil
	}
	return eligible[rand.Intn(len(eligible))]
}

func (s *Scheduler) parseMemoryValue(value, defaultConfigKey string) (int64, error) {
	if value == "" {
		value = s.Config.GetString(defaultConfigKey)
	}
	return byteunit.ParseBytes(value)
}

func (s *Scheduler) startTask(t *task.Task) error {
	if t.WorkDir == "" {
		t.WorkDir = filepath.Join(s.Group.WorkDir, t.ID)
	}
	if len(t.Params) > 0 {
		if err := os.MkdirAll(t.WorkDir, 0o755); err != nil {
			return errors.Wrap(err, "scheduler: create task workdir")
		}
		paramsPath := filepath.Join(t.WorkDir, task.ParamsFileName)
		if err := os.WriteFile(paramsPath, t.Params, 0o644); err != nil {
			return errors.Wrap(err, "scheduler: write task params file")
		}
	}
	sup := supervisor.New(t.ID, t.TypeName, t.WorkDir, s.Bus, s.Logger)
	if spawnTimeout := s.Config.GetInt("scheduler.spawn-timeout"); spawnTimeout > 0 {
		sup.ReadyTimeout = time.Duration(spawnTimeout) * time.Second
	}
	s.supervisors[t.ID] = sup
	if err := sup.Start(context.Background()); err != nil {
		return err
	}
	return s.Group.MoveTask(t.ID, task.StatusInit, task.StatusAvailable)
}
