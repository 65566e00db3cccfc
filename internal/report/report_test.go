package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hrygo/fedsched/internal/task"
)

func TestRenderIncludesSuccessAndFailureRows(t *testing.T) {
	results := map[string]task.Result{
		"ok1": {Success: &task.SuccessResult{
			TrainAcc: "91.23%", ValAcc: "80.00%", Data: "{}",
			LoadTime: "00:00:01.500", TrainTime: "00:01:05.000",
		}},
		"bad1": {Fail: &task.FailResult{Stage: "LOAD", Message: "boom"}},
	}

	html, err := Render("mygroup", results)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, "Group mygroup Finished") {
		t.Errorf("rendered report missing group name heading")
	}
	if !strings.Contains(html, "91.23%") {
		t.Errorf("rendered report missing success row data")
	}
	if !strings.Contains(html, "boom") {
		t.Errorf("rendered report missing failure row message")
	}
	if !strings.Contains(html, "1 successful, 1 failed") {
		t.Errorf("rendered report missing summary counts, got: %s", html)
	}
}

func TestWriteFileWritesUnderReportsDir(t *testing.T) {
	dir := t.TempDir()
	results := map[string]task.Result{
		"ok1": {Success: &task.SuccessResult{TrainAcc: "-", ValAcc: "-", LoadTime: "--:--:--.---", TrainTime: "--:--:--.---"}},
	}
	path, err := WriteFile(dir, "g1", results)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	want := filepath.Join(dir, "reports", "g1.html")
	if path != want {
		t.Errorf("WriteFile returned %q, want %q", path, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected report file at %s: %v", want, err)
	}
}
