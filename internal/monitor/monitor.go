package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"transcode-scheduler/pkg/models"
)

// SystemMonitor gathers real-time host telemetry for the heartbeat payload.
type SystemMonitor struct{}

func New() *SystemMonitor {
	return &SystemMonitor{}
}

// Stats gathers real-time CPU and RAM usage.
func (m *SystemMonitor) Stats(ctx context.Context) (models.HostStats, error) {
	stats := models.HostStats{}

	// 1. Get Memory Stats
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to get mem stats: %w", err)
	}
	stats.RAMPercent = v.UsedPercent

	// 2. Get CPU Percent (over the last 500ms)
	// Passing 0 as duration returns immediate value (gauge), but a small interval is more accurate.
	cpuPct, err := cpu.PercentWithContext(ctx, 500*time.Millisecond, false)
	if err != nil {
		return stats, fmt.Errorf("failed to get cpu stats: %w", err)
	}
	if len(cpuPct) > 0 {
		stats.CPUPercent = cpuPct[0]
	}

	// 3. Busy Logic
	// If CPU > 80% or RAM > 90%, flag the host so the orchestrator routes
	// new encodes elsewhere.
	stats.IsBusy = stats.CPUPercent > 80.0 || stats.RAMPercent > 90.0

	return stats, nil
}
