package scheduler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hrygo/fedsched/internal/supervisor"
	"github.com/hrygo/fedsched/internal/task"
)

// TaskHandler routes every status message a group's tasks publish on the
// bus into the appropriate Group mutation via a status dispatch table.
type TaskHandler struct {
	group  *task.Group
	sched  *Scheduler
	logger *slog.Logger
}

func (h *TaskHandler) Handle(source, cmd string, data map[string]any) {
	switch cmd {
	case "update_status":
		t := h.group.GetTask(source)
		if t == nil {
			h.logger.Warn("scheduler: status update for unknown task", "task_id", source)
			return
		}
		statusVal := data["status"]
		delete(data, "status")
		status := task.StatusFromMessagePayload(statusVal)
		h.logger.Info("scheduler: received status update", "task_id", t.ID, "status", status.String())
		h.handleStatus(t, status, data)
	case "set_item":
		t := h.group.GetTask(source)
		if t == nil {
			return
		}
		key, _ := data["key"].(string)
		if raw, ok := data["value"].(json.RawMessage); ok {
			t.Items[key] = raw
		} else if v, ok := data["value"]; ok {
			if encoded, err := json.Marshal(v); err == nil {
				t.Items[key] = encoded
			}
		}
	}
}

func (h *TaskHandler) handleStatus(t *task.Task, status task.Status, data map[string]any) {
	sup := h.sched.supervisors[t.ID]

	switch status {
	case task.StatusException:
		message, _ := data["message"].(string)
		stage, _ := data["stage"].(string)
		h.group.ReportException(t.ID, stage, message)
		if sup != nil {
			_ = sup.Exit()
		}
		_ = h.group.MoveTask(t.ID, t.Status(), task.StatusException)
	case task.StatusInterrupt:
		stage, _ := data["stage"].(string)
		h.interrupt(t, stage, sup)
	case task.StatusFinished:
		if sup != nil {
			_ = sup.Exit()
		}
		_ = h.group.MoveTask(t.ID, t.Status(), task.StatusExited)
		h.group.ReportFinish(t.ID, data)
	default:
		_ = h.group.MoveTask(t.ID, t.Status(), status)
	}
}

func (h *TaskHandler) interrupt(t *task.Task, stage string, sup *supervisor.Supervisor) {
	if stage == "LOAD" {
		if t.LoadNumbers < h.sched.Config.GetInt("scheduler.load-nretry") {
			if sup != nil {
				_ = sup.Exit()
			}
			_ = h.group.MoveTask(t.ID, t.Status(), task.StatusAvailable)
		} else {
			if sup != nil {
				_ = sup.Exit()
			}
			h.group.ReportException(t.ID, t.Status().String(), "LoadNumbersExceed")
			_ = h.group.MoveTask(t.ID, t.Status(), task.StatusException)
		}
		return
	}
	if t.TrainNumbers < h.sched.Config.GetInt("scheduler.train-nretry") {
		_ = h.group.MoveTask(t.ID, t.Status(), task.StatusWaiting)
	} else {
		if sup != nil {
			_ = sup.Exit()
		}
		h.group.ReportException(t.ID, t.Status().String(), "TrainNumbersExceed")
		_ = h.group.MoveTask(t.ID, t.Status(), task.StatusException)
	}
}

// parseDeviceIndex extracts the integer index out of a "cuda:N" pin.
func parseDeviceIndex(device string) (int, bool) {
	s := strings.TrimPrefix(device, "cuda:")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

func deviceName(index int) string {
	return fmt.Sprintf("cuda:%d", index)
}
