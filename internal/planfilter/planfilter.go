// Package planfilter evaluates a CEL boolean "when" expression per task in
// a declarative run plan, letting a plan file conditionally include a task
// without a templating layer.
package planfilter

import (
	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// Vars is the variable set a "when" expression may reference.
type Vars struct {
	TaskID             string
	TaskType           string
	EstimateMemory     string
	EstimateCUDAMemory string
	Device             string
}

func (v Vars) toActivation() map[string]any {
	return map[string]any{
		"task_id":              v.TaskID,
		"task_type":            v.TaskType,
		"estimate_memory":      v.EstimateMemory,
		"estimate_cuda_memory": v.EstimateCUDAMemory,
		"device":               v.Device,
	}
}

// Eval compiles and evaluates expr against vars, returning its boolean
// result. An empty expr always evaluates true (no filter configured).
func Eval(expr string, vars Vars) (bool, error) {
	if expr == "" {
		return true, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("task_id", cel.StringType),
		cel.Variable("task_type", cel.StringType),
		cel.Variable("estimate_memory", cel.StringType),
		cel.Variable("estimate_cuda_memory", cel.StringType),
		cel.Variable("device", cel.StringType),
	)
	if err != nil {
		return false, errors.Wrap(err, "planfilter: build CEL environment")
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return false, errors.Wrapf(issues.Err(), "planfilter: compile %q", expr)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return false, errors.Wrap(err, "planfilter: build CEL program")
	}

	out, _, err := prg.Eval(vars.toActivation())
	if err != nil {
		return false, errors.Wrapf(err, "planfilter: evaluate %q", expr)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, errors.Errorf("planfilter: expression %q did not evaluate to a bool", expr)
	}
	return result, nil
}
