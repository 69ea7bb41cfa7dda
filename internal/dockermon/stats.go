package dockermon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docker/docker/api/types/container"
)

// ContainerStatser is the stats half of the Docker API the one-shot
// resource snapshot needs. The real client implements it.
type ContainerStatser interface {
	ContainerStats(ctx context.Context, containerID string, stream bool) (container.StatsResponseReader, error)
}

// ResourceStats is one CPU/memory sample for a running container.
type ResourceStats struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemUsage   uint64  `json:"mem_usage"`
	MemLimit   uint64  `json:"mem_limit"`
}

// CheckStats is Check plus a resource snapshot per running container.
// Containers whose stats read fails are reported without numbers.
func (w *Watcher) CheckStats(ctx context.Context) (*Summary, error) {
	statser, ok := w.cli.(ContainerStatser)
	if !ok {
		return nil, fmt.Errorf("client does not support container stats")
	}

	containers, err := w.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	summary := Summarize(containers)
	summary.WithStats = true

	byShortID := make(map[string]*ContainerInfo, len(summary.Containers))
	for i := range summary.Containers {
		byShortID[summary.Containers[i].ID] = &summary.Containers[i]
	}

	for _, c := range containers {
		if c.State != "running" {
			continue
		}
		resp, err := readStats(ctx, statser, c.ID)
		if err != nil {
			w.logger.Warn("container stats failed", "id", shortID(c.ID), "error", err)
			continue
		}
		if info, ok := byShortID[shortID(c.ID)]; ok {
			stats := statsFromResponse(resp)
			info.Stats = &stats
		}
	}
	return summary, nil
}

// readStats pulls one non-streamed stats sample.
func readStats(ctx context.Context, statser ContainerStatser, id string) (container.StatsResponse, error) {
	var resp container.StatsResponse

	reader, err := statser.ContainerStats(ctx, id, false)
	if err != nil {
		return resp, err
	}
	defer reader.Body.Close()

	if err := json.NewDecoder(reader.Body).Decode(&resp); err != nil {
		return resp, fmt.Errorf("decode stats: %w", err)
	}
	return resp, nil
}

// statsFromResponse reduces a stats sample to the summary numbers.
func statsFromResponse(resp container.StatsResponse) ResourceStats {
	return ResourceStats{
		CPUPercent: cpuPercent(resp),
		MemUsage:   memUsage(resp),
		MemLimit:   resp.MemoryStats.Limit,
	}
}

// cpuPercent follows the daemon's own formula: usage delta over
// system delta, scaled by online CPUs.
func cpuPercent(resp container.StatsResponse) float64 {
	cpuDelta := float64(resp.CPUStats.CPUUsage.TotalUsage) - float64(resp.PreCPUStats.CPUUsage.TotalUsage)
	systemDelta := float64(resp.CPUStats.SystemUsage) - float64(resp.PreCPUStats.SystemUsage)
	if cpuDelta <= 0 || systemDelta <= 0 {
		return 0
	}

	online := float64(resp.CPUStats.OnlineCPUs)
	if online == 0 {
		online = float64(len(resp.CPUStats.CPUUsage.PercpuUsage))
	}
	if online == 0 {
		online = 1
	}
	return cpuDelta / systemDelta * online * 100
}

// memUsage subtracts the page cache the way `docker stats` does, so
// the number reflects what the workload actually holds.
func memUsage(resp container.StatsResponse) uint64 {
	usage := resp.MemoryStats.Usage
	// cgroup v2 reports inactive_file, v1 total_inactive_file.
	for _, key := range []string{"inactive_file", "total_inactive_file"} {
		if cache, ok := resp.MemoryStats.Stats[key]; ok && cache < usage {
			return usage - cache
		}
	}
	return usage
}

// formatBytes renders a memory size in binary units.
func formatBytes(n uint64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1fGiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
