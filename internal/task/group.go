package task

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
)

// globalIDs is the process-wide set of every task id ever added to any
// group, gated by the task.allow-duplicate-id config key. It mirrors the
// original's class-level TaskGroup.global_ids set.
var (
	globalIDsMu sync.Mutex
	globalIDs   = map[string]struct{}{}
)

// ResetGlobalIDs clears the process-wide id set. Exposed for tests only —
// production code never needs to call it.
func ResetGlobalIDs() {
	globalIDsMu.Lock()
	defer globalIDsMu.Unlock()
	globalIDs = map[string]struct{}{}
}

// SuccessResult is one row of a group's success report.
type SuccessResult struct {
	TrainAcc  string
	ValAcc    string
	Data      string // remaining result keys, json-encoded
	LoadTime  string
	TrainTime string
}

// FailResult is one row of a group's failure report.
type FailResult struct {
	Stage   string
	Message string
}

// Result is a tagged union over the two report row shapes.
type Result struct {
	Success *SuccessResult
	Fail    *FailResult
}

// Group is a named bucket of tasks run to completion together. It holds one
// sub-map per lifecycle status so the scheduler can cheaply enumerate the
// tasks eligible for each promotion.
type Group struct {
	Name string // if empty, GroupName() falls back to "group-N"
	// Index is 1-based submission order, set by Engine.AddGroup.
	Index int

	EstimateMemory     string
	EstimateCUDAMemory string
	Device             string

	AllowDuplicateID bool // mirrors task.allow-duplicate-id

	mu         sync.Mutex
	taskIDs    map[string]struct{}
	buckets    map[Status]map[string]*Task
	taskNumber int
	successN   int
	failedN    int
	results    map[string]Result

	WorkDir string
}

// NewGroup constructs an empty Group.
func NewGroup(name string) *Group {
	g := &Group{
		Name:    name,
		taskIDs: map[string]struct{}{},
		buckets: map[Status]map[string]*Task{},
		results: map[string]Result{},
	}
	for s := StatusUnknown; s <= StatusInterrupt; s++ {
		g.buckets[s] = map[string]*Task{}
	}
	return g
}

// GroupName returns Name, or "group-N" (1-based Index) when Name is unset —
// used for the group's directory name, its report file name and heading,
// and log fields.
func (g *Group) GroupName() string {
	if g.Name != "" {
		return g.Name
	}
	return fmt.Sprintf("group-%d", g.Index)
}

// AddTask admits a task into the group's INIT bucket. It enforces both a
// process-wide id uniqueness check (skippable via AllowDuplicateID) and an
// unconditional per-group uniqueness check.
func (g *Group) AddTask(t *Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t.Device == "" {
		t.Device = g.Device
	}

	if !g.AllowDuplicateID {
		globalIDsMu.Lock()
		_, dup := globalIDs[t.ID]
		globalIDsMu.Unlock()
		if dup {
			return errors.Errorf("duplicate id %q in global", t.ID)
		}
	}
	globalIDsMu.Lock()
	globalIDs[t.ID] = struct{}{}
	globalIDsMu.Unlock()

	if _, dup := g.taskIDs[t.ID]; dup {
		return errors.Errorf("duplicate id %q in group", t.ID)
	}
	g.taskIDs[t.ID] = struct{}{}

	g.buckets[t.status][t.ID] = t
	g.taskNumber++
	return nil
}

// GetTask looks a task up by id across every status bucket.
func (g *Group) GetTask(id string) *Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, bucket := range g.buckets {
		if t, ok := bucket[id]; ok {
			return t
		}
	}
	return nil
}

// MoveTask is the sole mutator of task status: it relocates a task from one
// bucket to another and updates its status field to match. It errors if the
// task isn't currently in the from bucket.
func (g *Group) MoveTask(id string, from, to Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.buckets[from][id]
	if !ok {
		return errors.Errorf("task id %s not in %s status", id, from)
	}
	delete(g.buckets[from], id)
	g.buckets[to][id] = t
	t.setStatus(to)
	return nil
}

// ReportFinish records a success result for task id, popping train_acc,
// val_acc, load_time, and train_time from the top level of data — the level
// the child runtime actually populates when it reports FINISHED — and
// json-encoding whatever remains as the report's free-form data column.
func (g *Group) ReportFinish(id string, data map[string]any) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.successN++
	if data == nil {
		data = map[string]any{}
	}

	trainAcc := popFloat(data, "train_acc")
	valAcc := popFloat(data, "val_acc")
	loadTime := popInt(data, "load_time")
	trainTime := popInt(data, "train_time")

	remaining, _ := json.Marshal(data)

	g.results[id] = Result{Success: &SuccessResult{
		TrainAcc:  formatPercent(trainAcc),
		ValAcc:    formatPercent(valAcc),
		Data:      string(remaining),
		LoadTime:  formatDuration(loadTime),
		TrainTime: formatDuration(trainTime),
	}}
}

// ReportException records a failure result for task id.
func (g *Group) ReportException(id, stage, message string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failedN++
	g.results[id] = Result{Fail: &FailResult{Stage: stage, Message: message}}
}

// Finished reports whether every task in the group has reached a terminal
// (reported) outcome.
func (g *Group) Finished() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.successN+g.failedN >= g.taskNumber
}

// Results returns a snapshot of the group's per-task report rows, keyed by
// task id, in no particular order (callers that need stable report
// ordering should sort the keys themselves).
func (g *Group) Results() map[string]Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]Result, len(g.results))
	for k, v := range g.results {
		out[k] = v
	}
	return out
}

// Numbers computes the admission counters the scheduler gates on:
// waiting (AVAILABLE+LOADING+WAITING), training (TRAINING), and their sum.
func (g *Group) Numbers() (processNumber, waitingNumber, trainingNumber int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	waitingNumber = len(g.buckets[StatusAvailable]) + len(g.buckets[StatusLoading]) + len(g.buckets[StatusWaiting])
	trainingNumber = len(g.buckets[StatusTraining])
	processNumber = waitingNumber + trainingNumber
	return
}

// TasksInStatus returns a snapshot slice of every task currently in status,
// in no particular order. Used by callers (like depgraph-aware retrieval)
// that need to filter the whole bucket before picking one at random.
func (g *Group) TasksInStatus(status Status) []*Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	bucket := g.buckets[status]
	out := make([]*Task, 0, len(bucket))
	for _, t := range bucket {
		out = append(out, t)
	}
	return out
}

// RetrieveTask picks a uniformly random task from the given status bucket,
// or nil if the bucket is empty. Any task in the bucket is equally
// eligible for promotion on a given tick.
func (g *Group) RetrieveTask(status Status) *Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	bucket := g.buckets[status]
	if len(bucket) == 0 {
		return nil
	}
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	return bucket[keys[rand.Intn(len(keys))]]
}

func popFloat(data map[string]any, key string) float64 {
	v, ok := data[key]
	if !ok {
		return -1
	}
	delete(data, key)
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return -1
	}
}

func popInt(data map[string]any, key string) int64 {
	v, ok := data[key]
	if !ok {
		return -1
	}
	delete(data, key)
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return -1
	}
}

func formatPercent(v float64) string {
	if v == -1 {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", 100*v)
}

func formatDuration(ms int64) string {
	if ms < 0 {
		return "--:--:--.---"
	}
	seconds := ms / 1000
	millis := ms % 1000
	minutes := seconds / 60
	seconds %= 60
	hours := minutes / 60
	minutes %= 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}
