// Package ipc implements the framed JSON protocol the Task Supervisor and
// Child Runtime speak to each other over the pipe a child process inherits
// at spawn time. There is no direct Go analogue of Python's
// multiprocessing.Pipe, so fedsched re-execs its own binary in "child mode"
// and hands the child one end of an os.Pipe as an inherited file
// descriptor; frames are length-prefixed JSON, mirroring the way the
// teacher's CCRunner/Session stream newline-delimited JSON over stdio, but
// framed by an explicit length instead of a newline so a payload can safely
// contain one.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/pkg/errors"
)

// Frame is one message on the parent<->child pipes: cmd is one of LOAD,
// TRAIN, EXIT (parent to child) or update_status, set_item (child to
// parent); data carries command-specific arguments (e.g. TRAIN's assigned
// device, or the reported status).
type Frame struct {
	Cmd  string         `json:"cmd"`
	Data map[string]any `json:"data"`
}

// WriteFrame writes a 4-byte big-endian length prefix followed by the
// JSON-encoded frame.
func WriteFrame(w io.Writer, f Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "ipc: encode frame")
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errors.Wrap(err, "ipc: write frame length")
	}
	if _, err := w.Write(body); err != nil {
		return errors.Wrap(err, "ipc: write frame body")
	}
	return nil
}

// ReadFrame blocks until a full frame is available, or returns io.EOF when
// the pipe has been closed cleanly (the child exited / the parent closed
// its end).
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, errors.Wrap(err, "ipc: read frame body")
	}
	var f Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return Frame{}, errors.Wrap(err, "ipc: decode frame")
	}
	return f, nil
}
