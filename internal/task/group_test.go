package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRunner struct{}

func (stubRunner) Load() error                                  { return nil }
func (stubRunner) Train(device string) (map[string]any, error) { return nil, nil }

func TestGroupAddTaskRejectsDuplicateWithinGroup(t *testing.T) {
	ResetGlobalIDs()
	g := NewGroup("g1")
	require.NoError(t, g.AddTask(NewTask("t1", "stub", stubRunner{})))
	err := g.AddTask(NewTask("t1", "stub", stubRunner{}))
	assert.Error(t, err)
}

func TestGroupAddTaskRejectsDuplicateAcrossGroups(t *testing.T) {
	ResetGlobalIDs()
	g1 := NewGroup("g1")
	g2 := NewGroup("g2")
	require.NoError(t, g1.AddTask(NewTask("shared", "stub", stubRunner{})))
	err := g2.AddTask(NewTask("shared", "stub", stubRunner{}))
	assert.Error(t, err, "a task id already used in any group should be rejected unless AllowDuplicateID is set")
}

func TestGroupAllowDuplicateIDSkipsGlobalCheck(t *testing.T) {
	ResetGlobalIDs()
	g1 := NewGroup("g1")
	require.NoError(t, g1.AddTask(NewTask("shared", "stub", stubRunner{})))

	g2 := NewGroup("g2")
	g2.AllowDuplicateID = true
	err := g2.AddTask(NewTask("shared", "stub", stubRunner{}))
	assert.NoError(t, err)
}

func TestGroupMoveTaskUpdatesBucketAndStatus(t *testing.T) {
	ResetGlobalIDs()
	g := NewGroup("g1")
	tk := NewTask("t1", "stub", stubRunner{})
	require.NoError(t, g.AddTask(tk))

	require.NoError(t, g.MoveTask("t1", StatusInit, StatusAvailable))
	assert.Equal(t, StatusAvailable, tk.Status())

	err := g.MoveTask("t1", StatusInit, StatusLoading)
	assert.Error(t, err, "moving from a status the task isn't currently in should fail")
}

func TestGroupNumbers(t *testing.T) {
	ResetGlobalIDs()
	g := NewGroup("g1")
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, g.AddTask(NewTask(id, "stub", stubRunner{})))
	}
	require.NoError(t, g.MoveTask("a", StatusInit, StatusAvailable))
	require.NoError(t, g.MoveTask("b", StatusInit, StatusAvailable))
	require.NoError(t, g.MoveTask("b", StatusAvailable, StatusTraining))

	process, waiting, training := g.Numbers()
	assert.Equal(t, 2, process)
	assert.Equal(t, 1, waiting)
	assert.Equal(t, 1, training)
}

func TestGroupReportFinishPopsTopLevelFields(t *testing.T) {
	ResetGlobalIDs()
	g := NewGroup("g1")
	require.NoError(t, g.AddTask(NewTask("t1", "stub", stubRunner{})))

	g.ReportFinish("t1", map[string]any{
		"train_acc":  0.9123,
		"val_acc":    0.8,
		"load_time":  int64(1500),
		"train_time": int64(65000),
		"extra":      "kept",
	})

	results := g.Results()
	r, ok := results["t1"]
	require.True(t, ok)
	require.NotNil(t, r.Success)
	assert.Equal(t, "91.23%", r.Success.TrainAcc)
	assert.Equal(t, "80.00%", r.Success.ValAcc)
	assert.Equal(t, "00:00:01.500", r.Success.LoadTime)
	assert.Equal(t, "00:01:05.000", r.Success.TrainTime)
	assert.Contains(t, r.Success.Data, "extra")
	assert.NotContains(t, r.Success.Data, "train_acc")
}

func TestGroupReportFinishMissingFieldsFormatAsSentinels(t *testing.T) {
	ResetGlobalIDs()
	g := NewGroup("g1")
	require.NoError(t, g.AddTask(NewTask("t1", "stub", stubRunner{})))

	g.ReportFinish("t1", map[string]any{})

	r := g.Results()["t1"]
	require.NotNil(t, r.Success)
	assert.Equal(t, "-", r.Success.TrainAcc)
	assert.Equal(t, "--:--:--.---", r.Success.LoadTime)
}

func TestGroupFinished(t *testing.T) {
	ResetGlobalIDs()
	g := NewGroup("g1")
	require.NoError(t, g.AddTask(NewTask("t1", "stub", stubRunner{})))
	require.NoError(t, g.AddTask(NewTask("t2", "stub", stubRunner{})))
	assert.False(t, g.Finished())

	g.ReportFinish("t1", map[string]any{})
	assert.False(t, g.Finished())

	g.ReportException("t2", "LOAD", "boom")
	assert.True(t, g.Finished())
}

func TestGroupRetrieveTaskEmptyBucket(t *testing.T) {
	ResetGlobalIDs()
	g := NewGroup("g1")
	assert.Nil(t, g.RetrieveTask(StatusTraining))
}
