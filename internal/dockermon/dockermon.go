// Package dockermon inspects local containers through the Docker API
// and summarizes their health for operators and the serve-mode
// metrics endpoint.
package dockermon

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"opshub.dev/opshub/internal/clock"
	"opshub.dev/opshub/internal/logging"
	"opshub.dev/opshub/internal/report"
)

// ContainerInfo is the slice of container state we care about.
type ContainerInfo struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Image   string         `json:"image"`
	State   string         `json:"state"`  // running, exited, restarting, ...
	Status  string         `json:"status"` // human string, includes health
	Healthy *bool          `json:"healthy,omitempty"`
	Stats   *ResourceStats `json:"stats,omitempty"` // filled by CheckStats
}

// Unhealthy reports whether a container needs operator attention.
func (c *ContainerInfo) Unhealthy() bool {
	if c.State == "restarting" || c.State == "dead" {
		return true
	}
	if c.Healthy != nil && !*c.Healthy {
		return true
	}
	return false
}

// Summary is one inspection round over all containers.
type Summary struct {
	Containers []ContainerInfo `json:"containers"`
	Running    int             `json:"running"`
	Stopped    int             `json:"stopped"`
	Unhealthy  int             `json:"unhealthy"`
	WithStats  bool            `json:"with_stats,omitempty"`
	CheckedAt  time.Time       `json:"checked_at"`
}

// Headers implements report.Result.
func (s *Summary) Headers() []string {
	head := []string{"NAME", "IMAGE", "STATE", "STATUS"}
	if s.WithStats {
		head = append(head, "CPU", "MEM")
	}
	return head
}

// Rows implements report.Result.
func (s *Summary) Rows() [][]string {
	rows := make([][]string, 0, len(s.Containers))
	for _, c := range s.Containers {
		row := []string{c.Name, c.Image, c.State, c.Status}
		if s.WithStats {
			cpu, mem := "-", "-"
			if c.Stats != nil {
				cpu = fmt.Sprintf("%.1f%%", c.Stats.CPUPercent)
				mem = fmt.Sprintf("%s / %s", formatBytes(c.Stats.MemUsage), formatBytes(c.Stats.MemLimit))
			}
			row = append(row, cpu, mem)
		}
		rows = append(rows, row)
	}
	return rows
}

var _ report.Result = (*Summary)(nil)

// ContainerLister abstracts the Docker API for tests.
type ContainerLister interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]types.Container, error)
}

// Watcher inspects containers.
type Watcher struct {
	logger *logging.Logger
	cli    ContainerLister
}

// New connects to the Docker daemon. host may be empty for the
// environment default (DOCKER_HOST or the local socket).
func New(logger *logging.Logger, host string) (*Watcher, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = []client.Opt{
			client.WithHost(host),
			client.WithAPIVersionNegotiation(),
		}
	}
	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return NewWithClient(logger, cli), nil
}

// NewWithClient wraps an existing API client.
func NewWithClient(logger *logging.Logger, cli ContainerLister) *Watcher {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Watcher{
		logger: logger.WithComponent("docker"),
		cli:    cli,
	}
}

// Check lists all containers, including stopped ones, and summarizes
// their state.
func (w *Watcher) Check(ctx context.Context) (*Summary, error) {
	containers, err := w.cli.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	summary := Summarize(containers)
	summary.CheckedAt = clock.Now()

	w.logger.Info("container check complete",
		"total", len(summary.Containers),
		"running", summary.Running,
		"unhealthy", summary.Unhealthy,
	)
	for _, c := range summary.Containers {
		if c.Unhealthy() {
			w.logger.Warn("unhealthy container", "name", c.Name, "state", c.State, "status", c.Status)
		}
	}
	return summary, nil
}

// Summarize maps API containers into a Summary. Pure, so it carries
// the test weight.
func Summarize(containers []types.Container) *Summary {
	summary := &Summary{}
	for _, c := range containers {
		info := ContainerInfo{
			ID:     shortID(c.ID),
			Name:   primaryName(c.Names),
			Image:  c.Image,
			State:  c.State,
			Status: c.Status,
		}
		if healthy, ok := healthFromStatus(c.Status); ok {
			info.Healthy = &healthy
		}

		switch c.State {
		case "running":
			summary.Running++
		default:
			summary.Stopped++
		}
		if info.Unhealthy() {
			summary.Unhealthy++
		}
		summary.Containers = append(summary.Containers, info)
	}

	sort.Slice(summary.Containers, func(i, j int) bool {
		return summary.Containers[i].Name < summary.Containers[j].Name
	})
	return summary
}

// primaryName strips the API's leading slash from the first name.
func primaryName(names []string) string {
	if len(names) == 0 {
		return ""
	}
	return strings.TrimPrefix(names[0], "/")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// healthFromStatus extracts the healthcheck verdict the API embeds in
// the status string, e.g. "Up 2 hours (healthy)".
func healthFromStatus(status string) (healthy, ok bool) {
	switch {
	case strings.Contains(status, "(healthy)"):
		return true, true
	case strings.Contains(status, "(unhealthy)"):
		return false, true
	case strings.Contains(status, "(health: starting)"):
		return true, true
	default:
		return false, false
	}
}
