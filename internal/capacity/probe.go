package capacity

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"tunecrate/internal/metrics"
)

// Usage statuses
const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusAlert   = "alert"
)

// UsageInfo holds disk usage of the filesystem behind a path
type UsageInfo struct {
	Path        string
	Total       uint64
	Used        uint64
	Free        uint64
	UsedPercent float64
	Status      string
	Timestamp   time.Time
}

// Thresholds defines warning and alert thresholds in percent used
type Thresholds struct {
	WarnPercent  float64
	AlertPercent float64
}

// DefaultThresholds returns 80% warning and 90% alert
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarnPercent:  80.0,
		AlertPercent: 90.0,
	}
}

// Probe reports how full the filesystems under the store roots are
type Probe struct {
	thresholds Thresholds
	metrics    *metrics.Metrics
	usage      func(path string) (*disk.UsageStat, error)
}

// NewProbe creates a probe with the default thresholds
func NewProbe(m *metrics.Metrics) *Probe {
	if m == nil {
		m = metrics.Default()
	}
	return &Probe{
		thresholds: DefaultThresholds(),
		metrics:    m,
		usage:      disk.Usage,
	}
}

// GetUsage retrieves usage information for path and records it as a gauge
func (p *Probe) GetUsage(path string) (UsageInfo, error) {
	if path == "" {
		return UsageInfo{}, fmt.Errorf("path cannot be empty")
	}

	stat, err := p.usage(path)
	if err != nil {
		return UsageInfo{}, fmt.Errorf("failed to get disk usage for path %s: %w", path, err)
	}

	p.metrics.StorageUsedPercent.WithLabelValues(path).Set(stat.UsedPercent)

	return UsageInfo{
		Path:        path,
		Total:       stat.Total,
		Used:        stat.Used,
		Free:        stat.Free,
		UsedPercent: stat.UsedPercent,
		Status:      EvaluateStatus(stat.UsedPercent, p.thresholds),
		Timestamp:   time.Now(),
	}, nil
}

// EvaluateStatus maps a usage percentage to a status
func EvaluateStatus(usedPercent float64, thresholds Thresholds) string {
	switch {
	case usedPercent >= thresholds.AlertPercent:
		return StatusAlert
	case usedPercent >= thresholds.WarnPercent:
		return StatusWarning
	default:
		return StatusOK
	}
}
