package process

import (
	"context"

	"github.com/core-tools/hsu-launchpad/pkg/domain"
)

// SampleUsage sums memory and CPU of pid and all of its descendants
func SampleUsage(ctx context.Context, pid int) (domain.ResourceUsage, error) {
	tree, err := ProcessTree(ctx, pid)
	if err != nil {
		return domain.ResourceUsage{}, err
	}

	var usage domain.ResourceUsage
	for _, p := range tree {
		// members can exit between enumeration and sampling
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
			usage.MemoryRSS += mem.RSS
		}
		if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
			usage.CPUPercent += cpu
		}
		usage.Processes++
	}
	return usage, nil
}
