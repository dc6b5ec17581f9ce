// Package health reports filesystem health for backup destinations.
package health

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// Status is the severity of a destination's disk usage.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Thresholds are disk usage percentages at which a destination is flagged.
type Thresholds struct {
	DiskWarning  float64 // Default: 80%
	DiskCritical float64 // Default: 90%
}

// DefaultThresholds returns the default disk thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DiskWarning:  80.0,
		DiskCritical: 90.0,
	}
}

// DiskStats describes the filesystem holding a path.
type DiskStats struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedBytes   uint64  `json:"used_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// DiskUsage returns usage of the filesystem that contains path.
func DiskUsage(ctx context.Context, path string) (*DiskStats, error) {
	u, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("disk usage for %s: %w", path, err)
	}
	return &DiskStats{
		Path:        path,
		TotalBytes:  u.Total,
		FreeBytes:   u.Free,
		UsedBytes:   u.Used,
		UsedPercent: u.UsedPercent,
	}, nil
}

// Evaluate classifies the usage against t.
func (t Thresholds) Evaluate(s *DiskStats) Status {
	switch {
	case s == nil:
		return StatusHealthy
	case s.UsedPercent >= t.DiskCritical:
		return StatusCritical
	case s.UsedPercent >= t.DiskWarning:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

// Fits reports whether size bytes fit in the free space.
func (s *DiskStats) Fits(size uint64) bool {
	return s.FreeBytes >= size
}
