//go:build !nvml

package gpu

// NoGPULister reports zero devices. This is the default build (no "nvml"
// tag): a system with no NVIDIA driver has nothing for a real binding to
// call, so there is no third-party dependency that changes this path — see
// DESIGN.md's rescheck/gpu entry.
type NoGPULister struct{}

func (NoGPULister) List() ([]Device, error) {
	return nil, nil
}

// DefaultLister is the Lister fedsched wires into the scheduler by default.
var DefaultLister Lister = NoGPULister{}
