package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Validate checks cross-field invariants the HCL decoder cannot express:
// duplicate names, parseable durations and sizes, and schedule shape.
// It is called by LoadBytes after defaults are applied.
func (c *Config) Validate() error {
	if err := checkDuplicates("host", hostNames(c.Hosts)); err != nil {
		return err
	}
	if err := checkDuplicates("backup", backupNames(c.Backups)); err != nil {
		return err
	}
	if err := checkDuplicates("rotate", rotationNames(c.Rotations)); err != nil {
		return err
	}
	if err := checkDuplicates("feed", feedNames(c.Feeds)); err != nil {
		return err
	}
	if err := checkDuplicates("monitor", monitorNames(c.Monitors)); err != nil {
		return err
	}

	for _, h := range c.Hosts {
		if h.Address == "" {
			return fmt.Errorf("host %q: address is required", h.Name)
		}
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("host %q: port %d out of range", h.Name, h.Port)
		}
	}

	for _, b := range c.Backups {
		if len(b.Sources) == 0 {
			return fmt.Errorf("backup %q: at least one source is required", b.Name)
		}
		if b.Dest == "" {
			return fmt.Errorf("backup %q: dest is required", b.Name)
		}
		if b.Keep < 1 {
			return fmt.Errorf("backup %q: keep must be >= 1", b.Name)
		}
		if err := validateSchedule(b.Schedule); err != nil {
			return fmt.Errorf("backup %q: %w", b.Name, err)
		}
	}

	for _, r := range c.Rotations {
		if r.Glob == "" {
			return fmt.Errorf("rotate %q: glob is required", r.Name)
		}
		if r.MaxSize != "" {
			if _, err := ParseSize(r.MaxSize); err != nil {
				return fmt.Errorf("rotate %q: %w", r.Name, err)
			}
		}
		if r.MaxAge != "" {
			if _, err := time.ParseDuration(r.MaxAge); err != nil {
				return fmt.Errorf("rotate %q: invalid max_age: %w", r.Name, err)
			}
		}
		if err := validateSchedule(r.Schedule); err != nil {
			return fmt.Errorf("rotate %q: %w", r.Name, err)
		}
	}

	for _, f := range c.Feeds {
		if f.URL == "" {
			return fmt.Errorf("feed %q: url is required", f.Name)
		}
		if !strings.HasPrefix(f.URL, "http://") && !strings.HasPrefix(f.URL, "https://") {
			return fmt.Errorf("feed %q: url must be http(s)", f.Name)
		}
	}

	for _, m := range c.Monitors {
		if m.Target == "" {
			return fmt.Errorf("monitor %q: target is required", m.Name)
		}
		if _, err := time.ParseDuration(m.Interval); err != nil {
			return fmt.Errorf("monitor %q: invalid interval: %w", m.Name, err)
		}
		if m.Failures < 1 {
			return fmt.Errorf("monitor %q: failures must be >= 1", m.Name)
		}
	}

	if c.Scan != nil {
		if c.Scan.Timeout != "" {
			if _, err := time.ParseDuration(c.Scan.Timeout); err != nil {
				return fmt.Errorf("scan: invalid timeout: %w", err)
			}
		}
		if c.Scan.Concurrency < 0 {
			return fmt.Errorf("scan: concurrency must be >= 0")
		}
		for _, p := range c.Scan.Ports {
			if p < 1 || p > 65535 {
				return fmt.Errorf("scan: port %d out of range", p)
			}
		}
	}

	if c.Server != nil {
		switch c.Server.LogLevel {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("server: invalid log_level %q", c.Server.LogLevel)
		}
		if c.Server.Listen != "" {
			if _, _, err := net.SplitHostPort(c.Server.Listen); err != nil {
				return fmt.Errorf("server: invalid listen address %q: %w", c.Server.Listen, err)
			}
		}
		if c.Server.HistoryRetention != "" {
			if _, err := time.ParseDuration(c.Server.HistoryRetention); err != nil {
				return fmt.Errorf("server: invalid history_retention: %w", err)
			}
		}
	}

	return nil
}

// validateSchedule checks that a schedule expression has one of the
// accepted shapes: a five-field cron expression, an @shortcut, or
// "every <duration>". Full field parsing happens in the scheduler;
// here we only reject obviously malformed expressions at load time.
func validateSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if strings.HasPrefix(expr, "@") || strings.HasPrefix(expr, "every ") {
		return nil
	}
	if n := len(strings.Fields(expr)); n != 5 {
		return fmt.Errorf("invalid schedule %q: expected 5 cron fields, got %d", expr, n)
	}
	return nil
}

func checkDuplicates(kind string, names []string) error {
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("%s: name label is required", kind)
		}
		if seen[n] {
			return fmt.Errorf("duplicate %s %q", kind, n)
		}
		seen[n] = true
	}
	return nil
}

func hostNames(hs []Host) []string {
	out := make([]string, len(hs))
	for i, h := range hs {
		out[i] = h.Name
	}
	return out
}

func backupNames(bs []Backup) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.Name
	}
	return out
}

func rotationNames(rs []Rotation) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Name
	}
	return out
}

func feedNames(fs []Feed) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Name
	}
	return out
}

func monitorNames(ms []Monitor) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Name
	}
	return out
}
