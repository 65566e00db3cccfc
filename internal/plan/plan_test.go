package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hrygo/fedsched/internal/task"
)

type stubRunner struct{}

func (stubRunner) Load() error                                  { return nil }
func (stubRunner) Train(device string) (map[string]any, error) { return nil, nil }

func init() {
	task.Register("plan-test-stub", func() task.Runner { return &stubRunner{} })
}

func writePlan(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	return path
}

func TestLoadAndBuildGroup(t *testing.T) {
	task.ResetGlobalIDs()
	path := writePlan(t, `
groups:
  - name: g1
    estimate-memory: 1GiB
    tasks:
      - id: t1
        type: plan-test-stub
        params:
          foo: bar
      - id: t2
        type: plan-test-stub
        depends-on: [t1]
`)

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.Groups) != 1 || len(p.Groups[0].Tasks) != 2 {
		t.Fatalf("unexpected plan shape: %+v", p)
	}

	g, dg, err := BuildGroup(p.Groups[0])
	if err != nil {
		t.Fatalf("BuildGroup: %v", err)
	}
	if dg == nil {
		t.Errorf("expected a dependency graph since t2 declares depends-on")
	}
	if got := g.GetTask("t1"); got == nil {
		t.Fatalf("task t1 not found in built group")
	} else if len(got.Params) == 0 {
		t.Errorf("expected t1 to carry its params JSON")
	}
}

func TestBuildGroupSkipsTasksFailingWhenFilter(t *testing.T) {
	task.ResetGlobalIDs()
	g, _, err := BuildGroup(GroupSpec{
		Name: "g2",
		Tasks: []TaskSpec{
			{ID: "included", Type: "plan-test-stub", When: `task_id == "included"`},
			{ID: "excluded", Type: "plan-test-stub", When: `task_id == "included"`},
		},
	})
	if err != nil {
		t.Fatalf("BuildGroup: %v", err)
	}
	if g.GetTask("included") == nil {
		t.Errorf("expected the included task to be present")
	}
	if g.GetTask("excluded") != nil {
		t.Errorf("expected the excluded task to be filtered out")
	}
}

func TestBuildGroupRejectsUnregisteredType(t *testing.T) {
	task.ResetGlobalIDs()
	_, _, err := BuildGroup(GroupSpec{
		Name:  "g3",
		Tasks: []TaskSpec{{ID: "t1", Type: "no-such-type"}},
	})
	if err == nil {
		t.Errorf("expected an error for a task naming an unregistered type")
	}
}
