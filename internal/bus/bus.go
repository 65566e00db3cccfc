// Package bus implements the scheduler's message bus: a single queue that
// every child process streams status updates into, drained by one
// dispatcher goroutine and routed to per-task handlers.
package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Message is one frame on the bus: a source task id (or the bus's own id
// for control frames), a command name, and a free-form payload.
type Message struct {
	Source string
	Cmd    string
	Data   map[string]any
}

// Handler processes messages from one registered source.
type Handler interface {
	Handle(source, cmd string, data map[string]any)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(source, cmd string, data map[string]any)

func (f HandlerFunc) Handle(source, cmd string, data map[string]any) { f(source, cmd, data) }

// noopHandler discards every message; it backstops the bus's own control
// frames and any traffic with no registered default.
type noopHandler struct{}

func (noopHandler) Handle(string, string, map[string]any) {}

// Bus is the process-wide message queue. Exactly one Bus exists per Engine
// (see internal/engine) — never a package-level singleton, per the
// scheduler's resolved Open Question on process-wide state.
type Bus struct {
	selfID  string
	queue   chan Message
	logger  *slog.Logger

	mu             sync.Mutex
	handlers       map[string]Handler
	defaultHandler Handler

	done chan struct{}
}

// New constructs a Bus with the given queue depth. A depth of 0 makes the
// queue unbuffered, which is fine for tests; production use should size it
// to comfortably exceed scheduler.max-process.
func New(queueDepth int, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		selfID:   uuid.NewString(),
		queue:    make(chan Message, queueDepth),
		logger:   logger,
		handlers: map[string]Handler{},
		defaultHandler: noopHandler{},
		done:     make(chan struct{}),
	}
}

// SelfID is the bus's own source id, used to frame STOP control messages.
// Handlers are never allowed to register under this id.
func (b *Bus) SelfID() string { return b.selfID }

// Publish enqueues a message. Safe to call from any goroutine, including a
// supervisor's pipe-reader goroutine forwarding a child's frame.
func (b *Bus) Publish(msg Message) {
	b.queue <- msg
}

// Run drains the queue on the calling goroutine until a STOP control frame
// arrives (or the queue is closed). Callers normally run this in its own
// goroutine: `go bus.Run()`.
func (b *Bus) Run() {
	defer close(b.done)
	for msg := range b.queue {
		b.logger.Debug("bus: receive message", "source", msg.Source, "cmd", msg.Cmd)
		if msg.Source == b.selfID {
			if msg.Cmd == "STOP" {
				b.logger.Info("bus: received STOP signal")
				return
			}
			continue
		}

		b.mu.Lock()
		h, ok := b.handlers[msg.Source]
		def := b.defaultHandler
		b.mu.Unlock()

		if ok {
			b.dispatch(h, msg)
		} else if def != nil {
			b.dispatch(def, msg)
		} else {
			b.logger.Warn("bus: no default handler")
		}
	}
}

func (b *Bus) dispatch(h Handler, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("bus: handler panicked", "source", msg.Source, "cmd", msg.Cmd, "panic", r)
		}
	}()
	h.Handle(msg.Source, msg.Cmd, msg.Data)
}

// RegisterHandler binds a handler to a source (task id). Refuses to
// register under the bus's own self id. If a handler already exists for
// source, the call is a no-op unless overwrite is true.
func (b *Bus) RegisterHandler(source string, h Handler, overwrite bool) {
	if source == b.selfID {
		b.logger.Error("bus: cannot register handler for the bus's own source", "source", source)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[source]; exists && !overwrite {
		b.logger.Warn("bus: handler exists", "source", source)
		return
	}
	b.logger.Info("bus: register handler", "source", source)
	b.handlers[source] = h
}

// UnregisterHandler removes a source's handler; messages from that source
// then go to the default handler.
func (b *Bus) UnregisterHandler(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, source)
}

// RegisterDefaultHandler replaces the fallback handler used for messages
// with no source-specific registration.
func (b *Bus) RegisterDefaultHandler(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.defaultHandler = h
}

// Stop enqueues a STOP control frame and blocks until Run has returned.
func (b *Bus) Stop() {
	b.logger.Info("bus: attempting stop")
	b.queue <- Message{Source: b.selfID, Cmd: "STOP"}
	<-b.done
}
