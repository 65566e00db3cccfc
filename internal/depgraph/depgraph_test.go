package depgraph

import (
	"testing"

	"github.com/hrygo/fedsched/internal/task"
)

func TestNilGraphAlwaysEligible(t *testing.T) {
	var g *Graph
	if !g.Eligible("anything", task.NewGroup("g1")) {
		t.Errorf("nil Graph should treat every task as eligible")
	}
}

func TestEligibleWithNoDependencies(t *testing.T) {
	g := New(map[string][]string{})
	if !g.Eligible("t1", task.NewGroup("g1")) {
		t.Errorf("a task with no declared dependencies should be eligible")
	}
}

func TestEligibleWaitsForDependencyExit(t *testing.T) {
	grp := task.NewGroup("g1")
	dep := task.NewTask("dep", "stub", nil)
	if err := grp.AddTask(dep); err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	g := New(map[string][]string{"t1": {"dep"}})
	if g.Eligible("t1", grp) {
		t.Errorf("t1 should not be eligible while dep is still INIT")
	}

	if err := grp.MoveTask("dep", task.StatusInit, task.StatusAvailable); err != nil {
		t.Fatalf("MoveTask: %v", err)
	}
	if err := grp.MoveTask("dep", task.StatusAvailable, task.StatusExited); err != nil {
		t.Fatalf("MoveTask: %v", err)
	}
	if !g.Eligible("t1", grp) {
		t.Errorf("t1 should be eligible once dep has EXITED")
	}
}

func TestEligibleMissingDependencyIsNeverEligible(t *testing.T) {
	grp := task.NewGroup("g1")
	g := New(map[string][]string{"t1": {"ghost"}})
	if g.Eligible("t1", grp) {
		t.Errorf("a dependency that doesn't exist in the group should never be satisfied")
	}
}
