package ipc

import (
	"bytes"
	"io"
	"testing"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := Frame{Cmd: "update_status", Data: map[string]any{"status": "FINISHED", "train_acc": 0.9}}
	if err := WriteFrame(&buf, want); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	got, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Cmd != want.Cmd {
		t.Errorf("Cmd = %q, want %q", got.Cmd, want.Cmd)
	}
	if got.Data["status"] != "FINISHED" {
		t.Errorf("Data[status] = %v, want FINISHED", got.Data["status"])
	}
}

func TestReadFrameMultipleFramesInSequence(t *testing.T) {
	var buf bytes.Buffer
	for i, cmd := range []string{"LOAD", "TRAIN", "EXIT"} {
		if err := WriteFrame(&buf, Frame{Cmd: cmd, Data: map[string]any{"n": i}}); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	for _, want := range []string{"LOAD", "TRAIN", "EXIT"} {
		f, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if f.Cmd != want {
			t.Errorf("ReadFrame().Cmd = %q, want %q", f.Cmd, want)
		}
	}
}

func TestReadFrameReturnsEOFOnCleanClose(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil))
	if err != io.EOF {
		t.Errorf("ReadFrame on empty reader = %v, want io.EOF", err)
	}
}
