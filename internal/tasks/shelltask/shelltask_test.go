package shelltask

import (
	"testing"

	"github.com/hrygo/fedsched/internal/childrun"
	"github.com/hrygo/fedsched/internal/task"
)

func TestTypeIsRegistered(t *testing.T) {
	factory, ok := task.Lookup(TypeName)
	if !ok {
		t.Fatal("shelltask did not register itself via init()")
	}
	if _, ok := factory().(*Runner); !ok {
		t.Errorf("registered factory does not produce a *Runner")
	}
}

func TestSetParams(t *testing.T) {
	r := &Runner{}
	if err := r.SetParams([]byte(`{"load_cmd":"echo hi","train_cmd":"echo bye"}`)); err != nil {
		t.Fatalf("SetParams: %v", err)
	}
	if r.LoadCmd != "echo hi" || r.TrainCmd != "echo bye" {
		t.Errorf("SetParams did not populate fields: %+v", r)
	}
}

func TestLoadNoOpWhenCommandUnset(t *testing.T) {
	r := &Runner{}
	if err := r.Load(); err != nil {
		t.Errorf("Load with no LoadCmd should be a no-op, got: %v", err)
	}
}

func TestTrainRunsCommandAndParsesJSONOutput(t *testing.T) {
	r := &Runner{TrainCmd: `echo '{"train_acc": 0.5}'`}
	data, err := r.Train("cpu")
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if data["train_acc"] != 0.5 {
		t.Errorf("Train() data = %v, want train_acc=0.5", data)
	}
}

func TestTrainFallsBackToRawOutput(t *testing.T) {
	r := &Runner{TrainCmd: `echo not-json`}
	data, err := r.Train("cpu")
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if data["output"] != "not-json" {
		t.Errorf("Train() data = %v, want output=not-json", data)
	}
}

func TestTrainClassifiesCUDAOOM(t *testing.T) {
	r := &Runner{TrainCmd: `echo "CUDA out of memory" 1>&2; exit 1`}
	_, err := r.Train("cpu")
	if err != childrun.ErrCUDAOOM {
		t.Errorf("Train() error = %v, want childrun.ErrCUDAOOM", err)
	}
}

func TestLoadClassifiesOOM(t *testing.T) {
	r := &Runner{LoadCmd: `echo "out of memory" 1>&2; exit 1`}
	err := r.Load()
	if err != childrun.ErrOOM {
		t.Errorf("Load() error = %v, want childrun.ErrOOM", err)
	}
}

func TestTrainInheritsProcessEnvironment(t *testing.T) {
	r := &Runner{TrainCmd: `echo "{\"path\": \"$PATH\"}"`}
	data, err := r.Train("cpu")
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if data["path"] == "" {
		t.Errorf("Train() lost PATH from the process environment: %v", data)
	}
}
