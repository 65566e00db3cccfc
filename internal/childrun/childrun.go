// Package childrun is the in-child side of the Task Supervisor protocol: a
// command loop that receives LOAD/TRAIN/EXIT frames over an inherited pipe,
// runs the user's Runner on worker goroutines, times each stage, and
// reports status back to the parent over a second inherited pipe.
//
// The OOM/CUDA-OOM classification rules are carried over as policy, not
// just inspiration, and the stage loop follows a goroutine-per-stream-
// direction idiom: one goroutine reads commands, the stage runs on its
// own goroutine, and status frames are written back independently.
package childrun

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/fedsched/internal/ipc"
	"github.com/hrygo/fedsched/internal/task"
)

// ErrOOM is the sentinel a Runner's Load method returns (or wraps) to
// signal a recoverable host-memory exhaustion.
var ErrOOM = errors.New("childrun: out of memory")

// ErrCUDAOOM is the sentinel a Runner's Train method returns (or wraps)
// to signal a recoverable GPU allocator failure. Its message carries
// cudaOOMSubstring, so a Runner that instead returns some other error
// whose message contains that substring (without using this sentinel) is
// still recognized by the Contains check below.
var ErrCUDAOOM = errors.New("childrun: " + cudaOOMSubstring)

// cudaOOMSubstring is the exact substring matched against a caught
// error's message to recognize a CUDA allocator failure. Treated as a
// compatibility contract with existing task bodies, not a design choice
// open for revision.
const cudaOOMSubstring = "CUDA out of memory"

// Run is the child process's entire life after re-exec: it builds the
// named Runner, establishes its working directory, announces itself
// AVAILABLE, and then services LOAD/TRAIN/EXIT commands from cmdR until
// EXIT arrives or the pipe closes.
func Run(taskID, typeName, workDir string, cmdR io.Reader, msgW io.Writer) error {
	logger := slog.With("task_id", taskID)

	factory, ok := task.Lookup(typeName)
	if !ok {
		return errors.Errorf("childrun: no registered task type %q", typeName)
	}
	runner := factory()

	if workDir == "" {
		workDir = filepath.Join(".", taskID)
	}
	absWorkDir, err := filepath.Abs(workDir)
	if err != nil {
		return errors.Wrap(err, "childrun: resolve workdir")
	}
	if err := os.MkdirAll(absWorkDir, 0o755); err != nil {
		return errors.Wrap(err, "childrun: create workdir")
	}
	if err := os.Chdir(absWorkDir); err != nil {
		return errors.Wrap(err, "childrun: chdir to workdir")
	}

	if setter, ok := runner.(task.ParamSetter); ok {
		if raw, readErr := os.ReadFile(task.ParamsFileName); readErr == nil {
			if err := setter.SetParams(raw); err != nil {
				return errors.Wrap(err, "childrun: apply task params")
			}
		} else if !os.IsNotExist(readErr) {
			return errors.Wrap(readErr, "childrun: read task params file")
		}
	}

	c := &child{
		taskID: taskID,
		logger: logger,
		msgW:   msgW,
		runner: runner,
		pid:    os.Getpid(),
	}
	c.loadTime = -1
	c.trainTime = -1

	if setter, ok := runner.(task.ReporterSetter); ok {
		setter.SetReporter(c)
	}

	c.updateStatus(task.StatusAvailable, nil)

	// EXIT ends the command loop, but Run returns only after any stage
	// still running has finished, so an in-flight Load or Train is never
	// cut short by the process exiting.
	var stages sync.WaitGroup
	defer stages.Wait()
	for {
		frame, err := ipc.ReadFrame(cmdR)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return errors.Wrap(err, "childrun: read command frame")
		}
		switch frame.Cmd {
		case "EXIT":
			logger.Info("childrun: received EXIT signal")
			return nil
		case "LOAD":
			stages.Add(1)
			go func() { defer stages.Done(); c.load() }()
		case "TRAIN":
			device, _ := frame.Data["device"].(string)
			c.device = device
			logger.Info("childrun: received TRAIN signal", "device", device)
			stages.Add(1)
			go func() { defer stages.Done(); c.train() }()
		default:
			logger.Warn("childrun: unrecognized command", "cmd", frame.Cmd)
		}
	}
}

type child struct {
	taskID string
	logger *slog.Logger
	msgW   io.Writer
	runner task.Runner
	pid    int

	device    string
	loadTime  int64
	trainTime int64
}

func (c *child) load() {
	c.updateStatus(task.StatusLoading, nil)
	start := time.Now()
	err := c.runner.Load()
	if err == nil {
		c.loadTime = time.Since(start).Milliseconds()
		c.updateStatus(task.StatusWaiting, nil)
		c.logger.Info("childrun: load successful", "task_id", c.taskID, "load_time_ms", c.loadTime)
		return
	}

	if errors.Is(err, ErrOOM) {
		c.logger.Error("childrun: OOM during load", "task_id", c.taskID)
		c.updateStatus(task.StatusInterrupt, map[string]any{"stage": "LOAD"})
		return
	}
	c.logger.Error("childrun: error during load", "task_id", c.taskID, "error", err)
	c.updateStatus(task.StatusException, map[string]any{
		"message": fmt.Sprintf("%+v", err),
		"stage":   "LOAD",
	})
}

func (c *child) train() {
	c.updateStatus(task.StatusTraining, nil)
	start := time.Now()
	data, err := c.runner.Train(c.device)
	if err == nil {
		c.trainTime = time.Since(start).Milliseconds()
		if data == nil {
			data = map[string]any{}
		}
		data["load_time"] = c.loadTime
		data["train_time"] = c.trainTime
		c.updateStatus(task.StatusFinished, data)
		c.logger.Info("childrun: train successful", "task_id", c.taskID, "train_time_ms", c.trainTime)
		return
	}

	if errors.Is(err, ErrCUDAOOM) || strings.Contains(err.Error(), cudaOOMSubstring) {
		c.logger.Error("childrun: CUDA OOM during train", "task_id", c.taskID)
		c.updateStatus(task.StatusInterrupt, map[string]any{"stage": "TRAIN"})
		return
	}
	c.logger.Error("childrun: error during train", "task_id", c.taskID, "error", err)
	c.updateStatus(task.StatusException, map[string]any{
		"message": fmt.Sprintf("%+v", err),
		"stage":   "TRAIN",
	})
}

// SetItem mirrors an arbitrary key/value back to the parent's Task.Items
// map via a set_item message. It implements task.Reporter and is handed
// to the Runner through SetReporter, so it is only ever reachable from
// code running inside this task's own process; the pid check guards
// against a stray call from outside that process space rather than a
// call after Load/Train has already returned.
func (c *child) SetItem(key string, value any) error {
	if os.Getpid() != c.pid {
		return errors.New("childrun: SetItem must be called from the task's own process")
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, "childrun: encode set_item value")
	}
	c.send("set_item", map[string]any{"key": key, "value": json.RawMessage(raw)})
	return nil
}

func (c *child) updateStatus(s task.Status, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["status"] = s.String()
	c.logger.Info("childrun: update status", "task_id", c.taskID, "status", s.String())
	c.send("update_status", data)
}

func (c *child) send(cmd string, data map[string]any) {
	if err := ipc.WriteFrame(c.msgW, ipc.Frame{Cmd: cmd, Data: data}); err != nil {
		c.logger.Error("childrun: failed to send message", "cmd", cmd, "error", err)
	}
}
