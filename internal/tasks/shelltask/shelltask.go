// Package shelltask registers the built-in "shell" task type: a Runner
// that shells out to a configured load command and train command, the
// minimal general-purpose task body a declarative run plan can name
// without writing any Go. Grounded on the shape of original_source's
// examples/mnist_example/train_task.py (a Load step that prepares state,
// a Train step that returns a result dict) translated to process
// invocation instead of an in-process torch model, since a plan file has
// no way to reference Go code directly.
package shelltask

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/fedsched/internal/childrun"
	"github.com/hrygo/fedsched/internal/task"
)

// TypeName is the registered task.Factory name: "shell".
const TypeName = "shell"

func init() {
	task.Register(TypeName, func() task.Runner { return &Runner{} })
}

// Runner runs LoadCmd then TrainCmd as shell commands. TrainCmd's stdout,
// if it parses as a JSON object, becomes the task's result data; otherwise
// the raw trimmed stdout is reported under the "output" key.
type Runner struct {
	LoadCmd  string `json:"load_cmd"`
	TrainCmd string `json:"train_cmd"`
}

// SetParams implements task.ParamSetter: a plan-file task of type "shell"
// carries {"load_cmd": "...", "train_cmd": "..."} as its params, which the
// child process applies here before Load runs.
func (r *Runner) SetParams(raw json.RawMessage) error {
	return json.Unmarshal(raw, r)
}

// Load runs LoadCmd, if set. A nonzero exit whose stderr contains
// "out of memory" is surfaced as childrun.ErrOOM so the scheduler treats
// it as a recoverable host-memory exhaustion; any other nonzero exit is
// returned as an ordinary error.
func (r *Runner) Load() error {
	if r.LoadCmd == "" {
		return nil
	}
	return runCommand(r.LoadCmd, "")
}

// Train runs TrainCmd with device passed via the FEDSCHED_DEVICE
// environment variable, since a shelled-out command has no in-process
// device handle to receive directly. A stderr containing "CUDA out of
// memory" is surfaced as childrun.ErrCUDAOOM, the GPU-allocator-failure
// sentinel the TRAIN-stage dispatcher recognizes for the
// interrupt-and-retry path.
func (r *Runner) Train(device string) (map[string]any, error) {
	if r.TrainCmd == "" {
		return map[string]any{}, nil
	}
	cmd := exec.Command("sh", "-c", r.TrainCmd)
	cmd.Env = append(os.Environ(), "FEDSCHED_DEVICE="+device)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "CUDA out of memory") {
			return nil, childrun.ErrCUDAOOM
		}
		return nil, errors.Wrapf(err, "shelltask: train command failed: %s", stderr.String())
	}

	var result map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(stdout.Bytes()), &result); err == nil {
		return result, nil
	}
	return map[string]any{"output": strings.TrimSpace(stdout.String())}, nil
}

func runCommand(command, env string) error {
	cmd := exec.Command("sh", "-c", command)
	cmd.Env = os.Environ()
	if env != "" {
		cmd.Env = append(cmd.Env, env)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if strings.Contains(stderr.String(), "out of memory") {
			return childrun.ErrOOM
		}
		return errors.Wrapf(err, "shelltask: command failed: %s", stderr.String())
	}
	return nil
}
