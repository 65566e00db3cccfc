//go:build nvml

package gpu

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/pkg/errors"
)

// NVMLLister lists GPUs via the NVIDIA Management Library. Built only
// under the "nvml" tag, since it dlopen()s libnvidia-ml.so — a shared
// library that doesn't exist on a machine with no NVIDIA driver
// installed.
type NVMLLister struct{}

func (NVMLLister) List() ([]Device, error) {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil, errors.Errorf("gpu: nvml init failed: %v", nvml.ErrorString(ret))
	}
	defer nvml.Shutdown()

	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS {
		return nil, errors.Errorf("gpu: nvml device count failed: %v", nvml.ErrorString(ret))
	}

	devices := make([]Device, 0, count)
	for i := 0; i < count; i++ {
		handle, ret := nvml.DeviceGetHandleByIndex(i)
		if ret != nvml.SUCCESS {
			continue
		}
		memInfo, ret := handle.GetMemoryInfo()
		if ret != nvml.SUCCESS {
			continue
		}
		devices = append(devices, Device{
			Index: i,
			Total: int64(memInfo.Total),
			Free:  int64(memInfo.Free),
		})
	}
	return devices, nil
}

// DefaultLister is the Lister fedsched wires into the scheduler by
// default when built with -tags nvml.
var DefaultLister Lister = NVMLLister{}
