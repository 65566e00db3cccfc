package task

import (
	"encoding/json"

	"github.com/google/uuid"
)

// Runner is the user-supplied task body. Load performs one-time setup
// (dataset download, preprocessing); Train runs the compute-heavy stage and
// returns a result dict that ends up in the group's success report. Device
// carries the GPU pin ("cuda:0", ...) assigned for this Train call.
type Runner interface {
	Load() error
	Train(device string) (map[string]any, error)
}

// ParamSetter is an optional Runner extension: a type that needs per-task
// configuration (beyond what its Factory alone can supply) implements
// this, and the child runtime calls it once, before Load, with whatever
// Params the task carried across the spawn boundary.
type ParamSetter interface {
	SetParams(json.RawMessage) error
}

// ParamsFileName is the conventional file a task's Params are serialized
// to in its workdir before spawn, and read back from after chdir in the
// child process.
const ParamsFileName = ".fedsched-params.json"

// Reporter lets a Runner push an arbitrary key/value back to the group's
// Task.Items map while Load or Train is running, without waiting for the
// stage to finish.
type Reporter interface {
	SetItem(key string, value any) error
}

// ReporterSetter is an optional Runner extension: a type that wants to
// call back into the child runtime while a stage is running implements
// this, and the child runtime calls it once, before Load, with a
// Reporter bound to the task's own process.
type ReporterSetter interface {
	SetReporter(Reporter)
}

// Task is the scheduler's unit of work: a Runner plus the bookkeeping the
// Group Scheduler needs to admit, retry, and report on it.
type Task struct {
	ID     string
	// TypeName names the registered Factory the re-exec'd child process
	// uses to construct its own Runner; Runner itself never crosses the
	// process boundary.
	TypeName string
	Runner   Runner

	EstimateMemory     string // byte-unit string, e.g. "2GiB"; empty means "use group default"
	EstimateCUDAMemory string
	Device             string // sticky device pin, e.g. "cuda:0"; empty means "any"

	// Params is arbitrary per-task JSON configuration for the registered
	// type, e.g. a declarative plan's task-specific fields. It has no
	// in-process meaning here — the scheduler writes it to a file in the
	// task's workdir before spawn, and the re-exec'd child reads it back
	// and hands it to the constructed Runner if it implements
	// ParamSetter, since a live Runner value can't itself cross the
	// process boundary.
	Params json.RawMessage

	LoadNumbers  int
	TrainNumbers int

	WorkDir   string
	LoadTime  int64 // milliseconds; -1 means unset
	TrainTime int64

	// Items mirrors key/value pairs the child reports via set_item; the
	// scheduler's TaskHandler writes into this map as those messages
	// arrive.
	Items map[string]json.RawMessage

	status Status
}

// NewTask constructs a Task of the named registered type. An empty id
// generates a fresh uuid. runner is used directly by an in-process caller
// (e.g. tests); a spawned child process instead looks runner back up by
// typeName via Lookup, since the value itself can't cross the process
// boundary.
func NewTask(id, typeName string, r Runner) *Task {
	if id == "" {
		id = uuid.NewString()
	}
	return &Task{
		ID:        id,
		TypeName:  typeName,
		Runner:    r,
		LoadTime:  -1,
		TrainTime: -1,
		Items:     map[string]json.RawMessage{},
		status:    StatusInit,
	}
}

// Status returns the task's current lifecycle state.
func (t *Task) Status() Status {
	return t.status
}

// setStatus is unexported outside this package: only (*Group).MoveTask may
// change a task's status, keeping bucket membership and the status field
// from ever drifting apart.
func (t *Task) setStatus(s Status) {
	t.status = s
}
