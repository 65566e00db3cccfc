package planfilter

import "testing"

func TestEvalEmptyExpressionAlwaysTrue(t *testing.T) {
	ok, err := Eval("", Vars{})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !ok {
		t.Errorf("Eval(\"\") = false, want true")
	}
}

func TestEvalBooleanExpression(t *testing.T) {
	vars := Vars{TaskType: "shell", Device: "cuda:0"}
	ok, err := Eval(`task_type == "shell" && device == "cuda:0"`, vars)
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if !ok {
		t.Errorf("Eval() = false, want true")
	}
}

func TestEvalFalseExpression(t *testing.T) {
	ok, err := Eval(`task_id == "nonexistent"`, Vars{TaskID: "t1"})
	if err != nil {
		t.Fatalf("Eval: %v", err)
	}
	if ok {
		t.Errorf("Eval() = true, want false")
	}
}

func TestEvalRejectsNonBooleanExpression(t *testing.T) {
	if _, err := Eval(`task_id`, Vars{TaskID: "t1"}); err == nil {
		t.Errorf("Eval() of a non-boolean expression should error")
	}
}

func TestEvalRejectsBadSyntax(t *testing.T) {
	if _, err := Eval(`task_id ==`, Vars{}); err == nil {
		t.Errorf("Eval() of malformed CEL should error")
	}
}
