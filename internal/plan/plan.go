// Package plan loads a declarative YAML run plan for `fedsched run`: a
// list of groups, each a list of tasks naming a registered task.Factory by
// type, with optional per-task params, a sticky device pin, and an
// optional CEL "when" filter. This is the Go-idiomatic stand-in for the
// original's only real entry point — hand-written Python main.py scripts
// under examples/ — since a plan file lets the scheduler be driven from
// the CLI without writing Go.
package plan

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/hrygo/fedsched/internal/depgraph"
	"github.com/hrygo/fedsched/internal/planfilter"
	"github.com/hrygo/fedsched/internal/task"
)

// TaskSpec is one task entry in a plan file.
type TaskSpec struct {
	ID                 string         `yaml:"id"`
	Type               string         `yaml:"type"`
	Params             map[string]any `yaml:"params"`
	EstimateMemory     string         `yaml:"estimate-memory"`
	EstimateCUDAMemory string         `yaml:"estimate-cuda-memory"`
	Device             string         `yaml:"device"`
	DependsOn          []string       `yaml:"depends-on"`
	When               string         `yaml:"when"`
}

// GroupSpec is one group entry in a plan file.
type GroupSpec struct {
	Name               string     `yaml:"name"`
	EstimateMemory     string     `yaml:"estimate-memory"`
	EstimateCUDAMemory string     `yaml:"estimate-cuda-memory"`
	Device             string     `yaml:"device"`
	AllowDuplicateID   bool       `yaml:"allow-duplicate-id"`
	Tasks              []TaskSpec `yaml:"tasks"`
}

// Plan is the root of a plan file: an ordered list of groups.
type Plan struct {
	Groups []GroupSpec `yaml:"groups"`
}

// Load parses a plan file from path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "plan: read %s", path)
	}
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, errors.Wrapf(err, "plan: parse %s", path)
	}
	return &p, nil
}

// BuildGroup materializes a GroupSpec into a task.Group plus an optional
// depgraph.Graph (nil if no task declared depends-on edges), skipping any
// task whose "when" CEL expression evaluates false. Tasks must name a type
// already registered via task.Register — typically by importing the
// package that calls it for its init() side effect.
func BuildGroup(spec GroupSpec) (*task.Group, *depgraph.Graph, error) {
	g := task.NewGroup(spec.Name)
	g.EstimateMemory = spec.EstimateMemory
	g.EstimateCUDAMemory = spec.EstimateCUDAMemory
	g.Device = spec.Device
	g.AllowDuplicateID = spec.AllowDuplicateID

	dependsOn := map[string][]string{}
	anyDeps := false

	for _, ts := range spec.Tasks {
		include, err := planfilter.Eval(ts.When, planfilter.Vars{
			TaskID:             ts.ID,
			TaskType:           ts.Type,
			EstimateMemory:     ts.EstimateMemory,
			EstimateCUDAMemory: ts.EstimateCUDAMemory,
			Device:             ts.Device,
		})
		if err != nil {
			return nil, nil, errors.Wrapf(err, "plan: evaluate when-filter for task %q", ts.ID)
		}
		if !include {
			continue
		}

		if _, ok := task.Lookup(ts.Type); !ok {
			return nil, nil, errors.Errorf("plan: task %q names unregistered type %q", ts.ID, ts.Type)
		}

		t := task.NewTask(ts.ID, ts.Type, nil)
		t.EstimateMemory = ts.EstimateMemory
		t.EstimateCUDAMemory = ts.EstimateCUDAMemory
		t.Device = ts.Device
		if len(ts.Params) > 0 {
			raw, err := json.Marshal(ts.Params)
			if err != nil {
				return nil, nil, errors.Wrapf(err, "plan: encode params for task %q", ts.ID)
			}
			t.Params = raw
		}

		if err := g.AddTask(t); err != nil {
			return nil, nil, errors.Wrapf(err, "plan: add task %q", ts.ID)
		}
		if len(ts.DependsOn) > 0 {
			dependsOn[t.ID] = ts.DependsOn
			anyDeps = true
		}
	}

	var dg *depgraph.Graph
	if anyDeps {
		dg = depgraph.New(dependsOn)
	}
	return g, dg, nil
}
