// Package supervisor implements the parent-side Task Supervisor: it owns a
// spawned child process and the pipe pair wired to it, drives the child
// through LOAD/TRAIN/EXIT commands, and forwards every status frame the
// child reports onto the shared message bus.
//
// The process lifecycle (Setpgid-isolated process group, readiness
// handshake, reaper goroutine, process-group kill on teardown) is adapted
// from a long-lived CLI session down to a one-shot
// LOAD-then-TRAIN-then-exit task process.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/fedsched/internal/bus"
	"github.com/hrygo/fedsched/internal/ipc"
)

// ChildEntrypoint is the argv fedsched re-execs itself with to enter child
// mode; cmd/fedsched's main() checks for this exact marker before handing
// control to cobra.
const ChildEntrypoint = "__fedsched_child__"

// ReadyTimeout bounds how long Start waits for the child's first AVAILABLE
// status frame before giving up, replacing a fixed post-spawn sleep with
// an explicit handshake.
var ReadyTimeout = 10 * time.Second

// Supervisor owns one spawned child process for the duration of exactly
// one task's life.
type Supervisor struct {
	TaskID   string
	TypeName string
	WorkDir  string

	logger *slog.Logger
	bus    *bus.Bus

	// ReadyTimeout overrides the package default for this Supervisor; zero
	// means "use the package default".
	ReadyTimeout time.Duration

	mu      sync.Mutex
	cmd     *exec.Cmd
	cmdW    *os.File // parent writes LOAD/TRAIN/EXIT frames here
	msgR    *os.File // parent reads status frames here
	ready   chan struct{}
	exited  chan struct{}
	started bool
}

// New constructs a Supervisor for one task. b is the shared bus every
// child's status frames get forwarded onto.
func New(taskID, typeName, workDir string, b *bus.Bus, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		TaskID:   taskID,
		TypeName: typeName,
		WorkDir:  workDir,
		logger:   logger,
		bus:      b,
		ready:    make(chan struct{}),
		exited:   make(chan struct{}),
	}
}

// Start spawns the child process, re-executing the current binary in child
// mode with an inherited pipe pair, then blocks (bounded by ReadyTimeout)
// for the child's first AVAILABLE status frame.
func (s *Supervisor) Start(ctx context.Context) error {
	execPath, err := os.Executable()
	if err != nil {
		return errors.Wrap(err, "supervisor: resolve executable path")
	}

	cmdR, cmdW, err := os.Pipe()
	if err != nil {
		return errors.Wrap(err, "supervisor: create command pipe")
	}
	msgR, msgW, err := os.Pipe()
	if err != nil {
		return errors.Wrap(err, "supervisor: create message pipe")
	}

	cmd := exec.CommandContext(ctx, execPath,
		ChildEntrypoint,
		"--task-id", s.TaskID,
		"--task-type", s.TypeName,
		"--workdir", s.WorkDir,
	)
	cmd.ExtraFiles = []*os.File{cmdR, msgW}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		cmdR.Close()
		cmdW.Close()
		msgR.Close()
		msgW.Close()
		return errors.Wrapf(err, "supervisor: start task %s", s.TaskID)
	}
	// The child inherited dup'd copies of cmdR/msgW; the parent's copies
	// must be closed so EOF propagates correctly when the child exits.
	cmdR.Close()
	msgW.Close()

	s.mu.Lock()
	s.cmd = cmd
	s.cmdW = cmdW
	s.msgR = msgR
	s.started = true
	s.mu.Unlock()

	go s.readMessages()
	go s.reap()

	s.logger.Info("supervisor: task started", "task_id", s.TaskID)

	timeout := s.ReadyTimeout
	if timeout == 0 {
		timeout = ReadyTimeout
	}
	select {
	case <-s.ready:
		return nil
	case <-s.exited:
		return errors.Errorf("supervisor: task %s exited before becoming available", s.TaskID)
	case <-time.After(timeout):
		return errors.Errorf("supervisor: task %s did not become available within %s", s.TaskID, timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readMessages drains the child's status-frame pipe and forwards each one
// onto the bus, tagged with this task's id as the source.
func (s *Supervisor) readMessages() {
	for {
		frame, err := ipc.ReadFrame(s.msgR)
		if err != nil {
			s.logger.Debug("supervisor: message pipe closed", "task_id", s.TaskID, "error", err)
			return
		}
		if frame.Cmd == "update_status" {
			if status, ok := frame.Data["status"]; ok && fmt.Sprint(status) == "AVAILABLE" {
				select {
				case <-s.ready:
				default:
					close(s.ready)
				}
			}
		}
		s.bus.Publish(bus.Message{Source: s.TaskID, Cmd: frame.Cmd, Data: frame.Data})
	}
}

// reap waits for the child process to exit and closes s.exited so Start's
// select can observe an early exit instead of hanging until ReadyTimeout.
func (s *Supervisor) reap() {
	_ = s.cmd.Wait()
	close(s.exited)
}

// StartLoad sends a LOAD command. It does not touch any retry counter: the
// scheduler owns Task.LoadNumbers and increments it before calling this;
// the supervisor only relays the command.
func (s *Supervisor) StartLoad() error {
	return s.send(ipc.Frame{Cmd: "LOAD", Data: map[string]any{}})
}

// StartTrain sends a TRAIN command carrying the assigned device.
func (s *Supervisor) StartTrain(device string) error {
	return s.send(ipc.Frame{Cmd: "TRAIN", Data: map[string]any{"device": device}})
}

// Exit sends an EXIT command and closes the parent's write end of the
// command pipe. Safe to call more than once.
func (s *Supervisor) Exit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmdW == nil {
		s.logger.Warn("supervisor: exit on already-closed task", "task_id", s.TaskID)
		return nil
	}
	err := ipc.WriteFrame(s.cmdW, ipc.Frame{Cmd: "EXIT", Data: map[string]any{}})
	s.cmdW.Close()
	s.cmdW = nil
	s.logger.Info("supervisor: task exit", "task_id", s.TaskID)
	return err
}

func (s *Supervisor) send(f ipc.Frame) error {
	s.mu.Lock()
	w := s.cmdW
	s.mu.Unlock()
	if w == nil {
		return errors.Errorf("supervisor: task %s command pipe is closed", s.TaskID)
	}
	return ipc.WriteFrame(w, f)
}

// IsAlive reports whether the child process is still running.
func (s *Supervisor) IsAlive() bool {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return false
	}
	select {
	case <-s.exited:
		return false
	default:
		return true
	}
}

// Kill force-terminates the whole child process group, for a child that
// EXIT alone does not stop (e.g. a wedged worker goroutine). The scheduler
// does not call it; its teardown goes through Exit. It
// relies on the Setpgid:true set at spawn time so a negative pid kills the
// entire group instead of just the direct child.
func (s *Supervisor) Kill() error {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
