// Package scan provides TCP service discovery for hosts and networks.
// It replaces external nmap/nc invocations with a native connect scan:
// a bounded worker fan-out dials each host:port with a timeout and
// optionally grabs the service banner.
package scan

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"opshub.dev/opshub/internal/clock"
	"opshub.dev/opshub/internal/logging"
	"opshub.dev/opshub/internal/report"
)

// serviceNames maps well-known ports to display names.
var serviceNames = map[int]string{
	21:    "FTP",
	22:    "SSH",
	23:    "Telnet",
	25:    "SMTP",
	53:    "DNS",
	80:    "HTTP",
	110:   "POP3",
	143:   "IMAP",
	443:   "HTTPS",
	445:   "SMB",
	993:   "IMAPS",
	995:   "POP3S",
	3306:  "MySQL",
	3389:  "RDP",
	5432:  "PostgreSQL",
	5900:  "VNC",
	6379:  "Redis",
	8080:  "HTTP-Alt",
	8443:  "HTTPS-Alt",
	9090:  "Prometheus",
	9100:  "Node-Exporter",
	27017: "MongoDB",
}

// DefaultPorts is scanned when no port spec is given.
var DefaultPorts = []int{21, 22, 25, 53, 80, 110, 143, 443, 445, 993, 995, 3306, 3389, 5432, 5900, 6379, 8080, 8443, 27017}

// ServiceName returns the well-known name for a port, or "".
func ServiceName(port int) string {
	return serviceNames[port]
}

// PortResult is one open port on a host.
type PortResult struct {
	Port    int    `json:"port"`
	Service string `json:"service,omitempty"`
	Banner  string `json:"banner,omitempty"`
}

// HostResult holds scan results for a single host.
type HostResult struct {
	Addr      string        `json:"addr"`
	Hostname  string        `json:"hostname,omitempty"`
	OpenPorts []PortResult  `json:"open_ports"`
	Duration  time.Duration `json:"duration_ms"`
	ScannedAt time.Time     `json:"scanned_at"`
}

// Result is a full scan result.
type Result struct {
	Targets    []string      `json:"targets"`
	Hosts      []HostResult  `json:"hosts"`
	TotalHosts int           `json:"total_hosts"`
	Duration   time.Duration `json:"duration_ms"`
	StartedAt  time.Time     `json:"started_at"`
}

// Headers implements report.Result.
func (r *Result) Headers() []string {
	return []string{"HOST", "PORT", "SERVICE", "BANNER"}
}

// Rows implements report.Result.
func (r *Result) Rows() [][]string {
	var rows [][]string
	for _, h := range r.Hosts {
		for _, p := range h.OpenPorts {
			rows = append(rows, []string{h.Addr, fmt.Sprintf("%d", p.Port), p.Service, p.Banner})
		}
	}
	return rows
}

var _ report.Result = (*Result)(nil)

// Config holds scanner settings.
type Config struct {
	Timeout     time.Duration // per-port dial timeout
	Concurrency int           // max in-flight dials
	Ports       []int         // ports to probe
	Banner      bool          // read the first line the service sends
	ReverseDNS  bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:     2 * time.Second,
		Concurrency: 100,
		Ports:       DefaultPorts,
	}
}

// Scanner performs network service discovery.
type Scanner struct {
	logger *logging.Logger
	cfg    Config

	// dial is swappable for tests.
	dial func(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error)
}

// New creates a new scanner.
func New(logger *logging.Logger, cfg Config) *Scanner {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 100
	}
	if len(cfg.Ports) == 0 {
		cfg.Ports = DefaultPorts
	}
	return &Scanner{
		logger: logger.WithComponent("scan"),
		cfg:    cfg,
		dial: func(ctx context.Context, addr string, timeout time.Duration) (net.Conn, error) {
			d := net.Dialer{Timeout: timeout}
			return d.DialContext(ctx, "tcp", addr)
		},
	}
}

// Scan expands the target specs and probes each host concurrently.
func (s *Scanner) Scan(ctx context.Context, targets []string) (*Result, error) {
	start := clock.Now()
	result := &Result{
		Targets:   targets,
		Hosts:     []HostResult{},
		StartedAt: start,
	}

	var hosts []string
	for _, t := range targets {
		expanded, err := ExpandHosts(t)
		if err != nil {
			return nil, err
		}
		hosts = append(hosts, expanded...)
	}
	result.TotalHosts = len(hosts)

	s.logger.Info("starting scan",
		"hosts", len(hosts),
		"ports", len(s.cfg.Ports),
		"concurrency", s.cfg.Concurrency,
	)

	var wg sync.WaitGroup
	var mu sync.Mutex
	sem := make(chan struct{}, s.cfg.Concurrency)

	for _, host := range hosts {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(start)
			return result, ctx.Err()
		default:
		}

		wg.Add(1)
		go func(addr string) {
			defer wg.Done()

			hr := s.scanHost(ctx, addr, sem)
			if len(hr.OpenPorts) > 0 {
				mu.Lock()
				result.Hosts = append(result.Hosts, hr)
				mu.Unlock()
			}
		}(host)
	}

	wg.Wait()

	sort.Slice(result.Hosts, func(i, j int) bool {
		return CompareAddrs(result.Hosts[i].Addr, result.Hosts[j].Addr)
	})

	result.Duration = time.Since(start)
	s.logger.Info("scan complete",
		"hosts_with_services", len(result.Hosts),
		"duration", result.Duration,
	)

	return result, nil
}

// scanHost probes every configured port on one host. The semaphore is
// shared across hosts so total in-flight dials stay bounded.
func (s *Scanner) scanHost(ctx context.Context, addr string, sem chan struct{}) HostResult {
	start := clock.Now()
	hr := HostResult{
		Addr:      addr,
		OpenPorts: []PortResult{},
		ScannedAt: start,
	}

	if s.cfg.ReverseDNS {
		if names, err := net.LookupAddr(addr); err == nil && len(names) > 0 {
			hr.Hostname = strings.TrimSuffix(names[0], ".")
		}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, port := range s.cfg.Ports {
		select {
		case <-ctx.Done():
			hr.Duration = time.Since(start)
			return hr
		default:
		}

		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			banner, open := s.probe(ctx, addr, p)
			if open {
				mu.Lock()
				hr.OpenPorts = append(hr.OpenPorts, PortResult{
					Port:    p,
					Service: ServiceName(p),
					Banner:  banner,
				})
				mu.Unlock()
			}
		}(port)
	}

	wg.Wait()

	sort.Slice(hr.OpenPorts, func(i, j int) bool {
		return hr.OpenPorts[i].Port < hr.OpenPorts[j].Port
	})

	hr.Duration = time.Since(start)
	return hr
}

// probe dials one port and optionally reads a banner line.
func (s *Scanner) probe(ctx context.Context, addr string, port int) (string, bool) {
	conn, err := s.dial(ctx, net.JoinHostPort(addr, fmt.Sprintf("%d", port)), s.cfg.Timeout)
	if err != nil {
		return "", false
	}
	defer conn.Close()

	if !s.cfg.Banner {
		return "", true
	}

	conn.SetReadDeadline(time.Now().Add(s.cfg.Timeout))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return "", true
	}

	banner := strings.TrimSpace(string(buf[:n]))
	if i := strings.IndexByte(banner, '\n'); i >= 0 {
		banner = strings.TrimSpace(banner[:i])
	}
	// Strip non-printable bytes from binary protocols.
	banner = strings.Map(func(r rune) rune {
		if r < 32 || r > 126 {
			return -1
		}
		return r
	}, banner)

	return banner, true
}
