// Package depgraph optionally orders which INIT tasks within one group are
// eligible for scheduling, based on a task's declared dependencies on
// other tasks in the same group. It never changes the promotion algorithm
// itself (still uniform-random choice among eligible INIT tasks); it only
// narrows "eligible" to exclude a task whose dependencies haven't reached
// EXITED yet.
//
// Eligibility is checked directly against the current status of each
// declared dependency; no in-degree counts or ready queue are kept.
package depgraph

import "github.com/hrygo/fedsched/internal/task"

// Graph tracks per-task dependency edges within a single group.
type Graph struct {
	dependsOn map[string][]string
}

// New builds a Graph from a dependsOn map of taskID -> the task ids it must
// wait on. A task absent from the map, or mapped to an empty slice, has no
// dependencies and is always eligible.
func New(dependsOn map[string][]string) *Graph {
	return &Graph{dependsOn: dependsOn}
}

// Eligible reports whether taskID's declared dependencies have all reached
// task.StatusExited in g. With no Graph at all (nil receiver) or no
// declared dependencies, every task is eligible — a pure pass-through,
// the common case for groups with no declared dependencies.
func (gr *Graph) Eligible(taskID string, g *task.Group) bool {
	if gr == nil {
		return true
	}
	for _, depID := range gr.dependsOn[taskID] {
		dep := g.GetTask(depID)
		if dep == nil || dep.Status() != task.StatusExited {
			return false
		}
	}
	return true
}
