package task

import "sync"

// Factory constructs a fresh Runner instance. Registered factories are the
// bridge between the parent process (which only knows a task's type name)
// and the re-exec'd child process (which must build the actual Runner to
// run LOAD/TRAIN against).
type Factory func() Runner

var (
	registryMu sync.Mutex
	registry   = map[string]Factory{}
)

// Register binds a type name to a Factory. Call this from an init() in any
// package that defines a task type, so a plan file can name it by string
// without the caller importing the concrete type.
func Register(typeName string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typeName] = f
}

// Lookup returns the Factory registered for typeName, if any.
func Lookup(typeName string) (Factory, bool) {
	registryMu.Lock()
	defer registryMu.Unlock()
	f, ok := registry[typeName]
	return f, ok
}
