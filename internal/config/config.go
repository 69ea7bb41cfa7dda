// Package config provides HCL configuration handling for the toolkit.
// A single opshub.hcl declares the host inventory, backup jobs, log
// rotation policies, blacklist feeds, ping monitors and scan defaults
// that the subcommands and the serve-mode scheduler consume.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the root of the opshub.hcl schema.
type Config struct {
	Server    *Server    `hcl:"server,block"`
	Hosts     []Host     `hcl:"host,block"`
	Backups   []Backup   `hcl:"backup,block"`
	Rotations []Rotation `hcl:"rotate,block"`
	Feeds     []Feed     `hcl:"feed,block"`
	DNSBLs    []DNSBL    `hcl:"dnsbl,block"`
	Monitors  []Monitor  `hcl:"monitor,block"`
	Scan      *Scan      `hcl:"scan,block"`
	Blocklist *Blocklist `hcl:"blocklist,block"`
	Syslog    *Syslog    `hcl:"syslog,block"`
}

// Server holds serve-mode settings.
type Server struct {
	Listen           string `hcl:"listen,optional"`            // metrics/health listen address
	LogLevel         string `hcl:"log_level,optional"`         // debug, info, warn, error
	HistoryDB        string `hcl:"history_db,optional"`        // sqlite result history path
	HistoryRetention string `hcl:"history_retention,optional"` // prune window, duration string
}

// Host is one inventory entry for the parallel SSH runner.
type Host struct {
	Name    string   `hcl:"name,label"`
	Address string   `hcl:"address"`
	Port    int      `hcl:"port,optional"`
	User    string   `hcl:"user,optional"`
	KeyFile string   `hcl:"key_file,optional"`
	Tags    []string `hcl:"tags,optional"`
}

// Backup describes one archive job.
type Backup struct {
	Name     string   `hcl:"name,label"`
	Sources  []string `hcl:"sources"`
	Dest     string   `hcl:"dest"`
	Keep     int      `hcl:"keep,optional"`
	Exclude  []string `hcl:"exclude,optional"`
	Schedule string   `hcl:"schedule,optional"` // cron expression, serve mode only
}

// Rotation describes one log rotation policy.
type Rotation struct {
	Name     string `hcl:"name,label"`
	Glob     string `hcl:"glob"`
	MaxSize  string `hcl:"max_size,optional"` // e.g. "100MB"
	MaxAge   string `hcl:"max_age,optional"`  // duration, e.g. "720h"
	Keep     int    `hcl:"keep,optional"`
	Compress bool   `hcl:"compress,optional"`
	Schedule string `hcl:"schedule,optional"`
}

// Feed is one HTTP threat-feed source for the blocklist.
type Feed struct {
	Name   string `hcl:"name,label"`
	URL    string `hcl:"url"`
	Format string `hcl:"format,optional"` // "plain" (default)
}

// DNSBL names one DNS blocklist zone to query.
type DNSBL struct {
	Zone string `hcl:"zone,label"`
}

// Monitor is one ping target for serve mode.
type Monitor struct {
	Name     string `hcl:"name,label"`
	Target   string `hcl:"target"`
	Interval string `hcl:"interval,optional"` // default 30s
	Failures int    `hcl:"failures,optional"` // consecutive failures before DOWN, default 3
}

// Scan holds port scanner defaults.
type Scan struct {
	Timeout     string `hcl:"timeout,optional"`
	Concurrency int    `hcl:"concurrency,optional"`
	Ports       []int  `hcl:"ports,optional"`
}

// Blocklist names the nftables table/set the blacklist feeds load into.
type Blocklist struct {
	Table string `hcl:"table,optional"` // default "opshub"
	Set   string `hcl:"set,optional"`   // default "blocklist_v4"
	SetV6 string `hcl:"set_v6,optional"`
}

// Syslog mirrors logging.SyslogConfig in HCL form.
type Syslog struct {
	Enabled  bool   `hcl:"enabled,optional"`
	Host     string `hcl:"host,optional"`
	Port     int    `hcl:"port,optional"`
	Protocol string `hcl:"protocol,optional"`
	Tag      string `hcl:"tag,optional"`
}

// Defaults applied after decode.
const (
	DefaultListen           = ":9190"
	DefaultLogLevel         = "info"
	DefaultHistoryRetention = 90 * 24 * time.Hour
	DefaultSSHPort          = 22
	DefaultBackupKeep       = 7
	DefaultRotateKeep       = 5
	DefaultMonitorInterval  = 30 * time.Second
	DefaultMonitorFailures  = 3
	DefaultBlocklistTable   = "opshub"
	DefaultBlocklistSet     = "blocklist_v4"
	DefaultBlocklistSetV6   = "blocklist_v6"
)

// ApplyDefaults fills zero values with documented defaults.
func (c *Config) ApplyDefaults() {
	if c.Server == nil {
		c.Server = &Server{}
	}
	if c.Server.Listen == "" {
		c.Server.Listen = DefaultListen
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = DefaultLogLevel
	}

	for i := range c.Hosts {
		if c.Hosts[i].Port == 0 {
			c.Hosts[i].Port = DefaultSSHPort
		}
	}
	for i := range c.Backups {
		if c.Backups[i].Keep == 0 {
			c.Backups[i].Keep = DefaultBackupKeep
		}
	}
	for i := range c.Rotations {
		if c.Rotations[i].Keep == 0 {
			c.Rotations[i].Keep = DefaultRotateKeep
		}
	}
	for i := range c.Monitors {
		if c.Monitors[i].Interval == "" {
			c.Monitors[i].Interval = DefaultMonitorInterval.String()
		}
		if c.Monitors[i].Failures == 0 {
			c.Monitors[i].Failures = DefaultMonitorFailures
		}
	}
	if c.Blocklist == nil {
		c.Blocklist = &Blocklist{}
	}
	if c.Blocklist.Table == "" {
		c.Blocklist.Table = DefaultBlocklistTable
	}
	if c.Blocklist.Set == "" {
		c.Blocklist.Set = DefaultBlocklistSet
	}
	if c.Blocklist.SetV6 == "" {
		c.Blocklist.SetV6 = DefaultBlocklistSetV6
	}
}

// HostsByTag returns inventory hosts carrying the given tag.
// An empty tag selects all hosts.
func (c *Config) HostsByTag(tag string) []Host {
	if tag == "" {
		return c.Hosts
	}
	var out []Host
	for _, h := range c.Hosts {
		for _, t := range h.Tags {
			if t == tag {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// FindBackup returns the backup job with the given name.
func (c *Config) FindBackup(name string) (Backup, bool) {
	for _, b := range c.Backups {
		if b.Name == name {
			return b, true
		}
	}
	return Backup{}, false
}

// FindRotation returns the rotation policy with the given name.
func (c *Config) FindRotation(name string) (Rotation, bool) {
	for _, r := range c.Rotations {
		if r.Name == name {
			return r, true
		}
	}
	return Rotation{}, false
}

// ParseSize parses a human size string ("100MB", "1.5GB", "512KB", "4096")
// into bytes. Bare numbers are bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	multipliers := []struct {
		suffix string
		factor float64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"G", 1 << 30},
		{"M", 1 << 20},
		{"K", 1 << 10},
		{"B", 1},
	}

	upper := strings.ToUpper(s)
	for _, m := range multipliers {
		if strings.HasSuffix(upper, m.suffix) {
			num := strings.TrimSpace(strings.TrimSuffix(upper, m.suffix))
			f, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q: %w", s, err)
			}
			if f < 0 {
				return 0, fmt.Errorf("negative size %q", s)
			}
			return int64(f * m.factor), nil
		}
	}

	n, err := strconv.ParseInt(upper, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return n, nil
}

// ParseDurationField parses an optional duration string, returning def when empty.
func ParseDurationField(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	return d, nil
}
