// Package gpu probes CUDA device memory and assigns tasks to a free GPU.
// See gpu_nvml.go and gpu_nogpu.go for the two build-tag-gated backends.
package gpu

// Device is one GPU's memory snapshot.
type Device struct {
	Index int
	Total int64
	Free  int64
}

// Lister enumerates the GPUs visible to this process. Swappable in tests.
type Lister interface {
	List() ([]Device, error)
}

// Assign picks the first device (restricted to the device with index
// pinnedIndex when pinnedIndex >= 0) that has at least requireBytes free and,
// after reserving requireBytes, still respects utilizationLimit/remainBytes
// (first fit, not best fit). Returns -1 if no device qualifies.
func Assign(lister Lister, requireBytes, remainBytes int64, utilizationLimit float64, pinnedIndex int) (int, error) {
	devices, err := lister.List()
	if err != nil {
		return -1, err
	}
	if pinnedIndex >= 0 {
		var pinned []Device
		for _, d := range devices {
			if d.Index == pinnedIndex {
				pinned = append(pinned, d)
			}
		}
		devices = pinned
	}

	for _, d := range devices {
		available := d.Free - requireBytes
		if available < 0 || d.Total == 0 || float64(available)/float64(d.Total) < 1-utilizationLimit {
			continue
		}
		if available < remainBytes {
			continue
		}
		return d.Index, nil
	}
	return -1, nil
}
