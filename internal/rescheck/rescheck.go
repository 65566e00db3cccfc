// Package rescheck probes live CPU and host-memory pressure for the Group
// Scheduler's admission gates using gopsutil.
package rescheck

import (
	"log/slog"

	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/hrygo/fedsched/internal/byteunit"
)

// CPUFree reports whether live CPU utilization is below utilizationLimit
// (a fraction in [0,1]).
func CPUFree(utilizationLimit float64, logger *slog.Logger) (bool, error) {
	percents, err := cpu.Percent(0, false)
	if err != nil {
		return false, errors.Wrap(err, "rescheck: read cpu percent")
	}
	var pct float64
	if len(percents) > 0 {
		pct = percents[0]
	}
	if logger != nil {
		logger.Debug("rescheck: cpu utilization", "percent", pct)
	}
	return pct < 100*utilizationLimit, nil
}

// MemoryFree reports whether there's enough free host memory to admit a
// task requiring requireBytes, after applying both the utilization-limit
// and remain-limit gates: after the reservation, memory utilization must
// not rise above utilizationLimit (available/total >= 1-utilizationLimit),
// and at least remainBytes must stay available.
func MemoryFree(requireBytes, remainBytes int64, utilizationLimit float64, logger *slog.Logger) (bool, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return false, errors.Wrap(err, "rescheck: read virtual memory")
	}
	total := int64(vm.Total)
	available := int64(vm.Available)

	if logger != nil {
		availGiB, _ := byteunit.Convert(byteunit.B, byteunit.GiB, float64(available))
		totalGiB, _ := byteunit.Convert(byteunit.B, byteunit.GiB, float64(total))
		logger.Debug("rescheck: memory utilization",
			"percent", 100*float64(total-available)/float64(total),
			"available_gib", availGiB, "total_gib", totalGiB)
	}

	available -= requireBytes
	if available < 0 || total == 0 || float64(available)/float64(total) < 1-utilizationLimit {
		return false, nil
	}
	if available < remainBytes {
		return false, nil
	}
	return true, nil
}
