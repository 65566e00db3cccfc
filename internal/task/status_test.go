package task

import "testing"

func TestParseStatus(t *testing.T) {
	cases := []struct {
		in   any
		want Status
	}{
		{"FINISHED", StatusFinished},
		{"finished", StatusFinished},
		{"  training ", StatusTraining},
		{2, StatusAvailable},
		{float64(2), StatusAvailable},
		{StatusWaiting, StatusWaiting},
		{"4", StatusWaiting},
	}
	for _, c := range cases {
		got, err := ParseStatus(c.in)
		if err != nil {
			t.Fatalf("ParseStatus(%v) returned error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("ParseStatus(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseStatusRejectsUnknown(t *testing.T) {
	for _, in := range []any{"NOT_A_STATUS", 99, 3.14159, true} {
		if _, err := ParseStatus(in); err == nil {
			t.Errorf("ParseStatus(%v) expected error, got none", in)
		}
	}
}

func TestStatusFromMessagePayloadNeverErrors(t *testing.T) {
	if got := StatusFromMessagePayload("GARBAGE"); got != StatusUnknown {
		t.Errorf("StatusFromMessagePayload(garbage) = %v, want StatusUnknown", got)
	}
	if got := StatusFromMessagePayload("WAITING"); got != StatusWaiting {
		t.Errorf("StatusFromMessagePayload(WAITING) = %v, want StatusWaiting", got)
	}
}

func TestIsTerminal(t *testing.T) {
	for s := StatusUnknown; s <= StatusInterrupt; s++ {
		want := s == StatusExited || s == StatusException
		if got := s.IsTerminal(); got != want {
			t.Errorf("%v.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}
