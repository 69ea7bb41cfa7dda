// Package sshrun executes a command on many hosts in parallel over
// SSH and collects per-host output, exit codes and timing.
package sshrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"opshub.dev/opshub/internal/clock"
	"opshub.dev/opshub/internal/config"
	"opshub.dev/opshub/internal/logging"
	"opshub.dev/opshub/internal/report"
)

// HostResult is the outcome of one host.
type HostResult struct {
	Host     string        `json:"host"`
	Address  string        `json:"address"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout,omitempty"`
	Stderr   string        `json:"stderr,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"err,omitempty"` // connect or transport failure
}

// OK reports whether the command ran and exited zero.
func (h *HostResult) OK() bool {
	return h.Err == "" && h.ExitCode == 0
}

// JobResult aggregates one command run across hosts. Results keep the
// input host order regardless of completion order.
type JobResult struct {
	ID        string        `json:"id"`
	Command   string        `json:"command"`
	Results   []HostResult  `json:"results"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Headers implements report.Result.
func (j *JobResult) Headers() []string {
	return []string{"HOST", "STATUS", "EXIT", "DURATION", "OUTPUT"}
}

// Rows implements report.Result.
func (j *JobResult) Rows() [][]string {
	rows := make([][]string, 0, len(j.Results))
	for _, r := range j.Results {
		status := "ok"
		out := firstLine(r.Stdout)
		switch {
		case r.Err != "":
			status = "error"
			out = r.Err
		case r.ExitCode != 0:
			status = "failed"
			if r.Stderr != "" {
				out = firstLine(r.Stderr)
			}
		}
		rows = append(rows, []string{
			r.Host,
			status,
			fmt.Sprintf("%d", r.ExitCode),
			fmt.Sprintf("%.1fs", r.Duration.Seconds()),
			out,
		})
	}
	return rows
}

var _ report.Result = (*JobResult)(nil)

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

// Config holds runner settings. Per-host values from the inventory
// take precedence over these.
type Config struct {
	Concurrency     int           // parallel sessions, default 10
	Timeout         time.Duration // per-host connect+run deadline, default 30s
	User            string        // fallback user, default current login or root
	KeyPath         string        // fallback private key
	KnownHostsPath  string        // default ~/.ssh/known_hosts
	InsecureHostKey bool          // skip host key verification
}

// DefaultConfig returns runner defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency: 10,
		Timeout:     30 * time.Second,
	}
}

// Runner fans a command out over SSH.
type Runner struct {
	logger *logging.Logger
	cfg    Config

	// execute is swappable for tests.
	execute func(ctx context.Context, host config.Host, command string) HostResult
}

// New creates a runner.
func New(logger *logging.Logger, cfg Config) *Runner {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	r := &Runner{
		logger: logger.WithComponent("sshrun"),
		cfg:    cfg,
	}
	r.execute = r.executeSSH
	return r
}

// Run executes command on every host. Hosts that fail to connect are
// reported, not fatal.
func (r *Runner) Run(ctx context.Context, hosts []config.Host, command string) (*JobResult, error) {
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no hosts to run on")
	}

	job := &JobResult{
		ID:        uuid.NewString(),
		Command:   command,
		Results:   make([]HostResult, len(hosts)),
		StartedAt: clock.Now(),
	}

	r.logger.Info("job started",
		"job", job.ID,
		"hosts", len(hosts),
		"concurrency", r.cfg.Concurrency,
	)

	sem := make(chan struct{}, r.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, host := range hosts {
		wg.Add(1)
		go func(i int, host config.Host) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				job.Results[i] = HostResult{Host: host.Name, Address: host.Address, Err: ctx.Err().Error()}
				return
			default:
			}
			job.Results[i] = r.execute(ctx, host, command)
		}(i, host)
	}
	wg.Wait()

	for i := range job.Results {
		if job.Results[i].OK() {
			job.Succeeded++
		} else {
			job.Failed++
		}
	}
	job.Duration = clock.Since(job.StartedAt)

	r.logger.Info("job finished",
		"job", job.ID,
		"succeeded", job.Succeeded,
		"failed", job.Failed,
		"duration", job.Duration.Round(time.Millisecond),
	)
	return job, nil
}

func (r *Runner) executeSSH(ctx context.Context, host config.Host, command string) HostResult {
	result := HostResult{Host: host.Name, Address: host.Address}
	start := clock.Now()
	defer func() { result.Duration = clock.Since(start) }()

	clientCfg, err := r.clientConfig(host)
	if err != nil {
		result.Err = err.Error()
		return result
	}

	port := host.Port
	if port == 0 {
		port = config.DefaultSSHPort
	}
	addr := net.JoinHostPort(host.Address, fmt.Sprintf("%d", port))

	dialCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	conn, err := dialSSH(dialCtx, addr, clientCfg)
	if err != nil {
		result.Err = fmt.Sprintf("connect: %v", err)
		return result
	}
	defer conn.Close()

	session, err := conn.NewSession()
	if err != nil {
		result.Err = fmt.Sprintf("session: %v", err)
		return result
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-dialCtx.Done():
		result.Err = "command timed out"
		return result
	case err = <-done:
	}

	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
		} else {
			result.Err = err.Error()
		}
	}
	return result
}

// dialSSH honors the context deadline during the TCP connect and the
// SSH handshake, which ssh.Dial alone does not.
func dialSSH(ctx context.Context, addr string, cfg *ssh.ClientConfig) (*ssh.Client, error) {
	d := net.Dialer{}
	tcp, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = tcp.SetDeadline(deadline)
	}

	conn, chans, reqs, err := ssh.NewClientConn(tcp, addr, cfg)
	if err != nil {
		tcp.Close()
		return nil, err
	}
	_ = tcp.SetDeadline(time.Time{})
	return ssh.NewClient(conn, chans, reqs), nil
}

func (r *Runner) clientConfig(host config.Host) (*ssh.ClientConfig, error) {
	user := host.User
	if user == "" {
		user = r.cfg.User
	}
	if user == "" {
		user = os.Getenv("USER")
	}
	if user == "" {
		user = "root"
	}

	keyPath := host.KeyFile
	if keyPath == "" {
		keyPath = r.cfg.KeyPath
	}
	auth, err := authMethods(keyPath)
	if err != nil {
		return nil, err
	}

	hostKey, err := r.hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         r.cfg.Timeout,
	}, nil
}

func authMethods(keyPath string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if keyPath != "" {
		signer, err := loadKey(keyPath)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	// No explicit key: try the usual suspects.
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("no key file given and home dir unknown: %w", err)
	}
	var signers []ssh.Signer
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		signer, err := loadKey(filepath.Join(home, ".ssh", name))
		if err == nil {
			signers = append(signers, signer)
		}
	}
	if len(signers) == 0 {
		return nil, fmt.Errorf("no usable private key under %s/.ssh", home)
	}
	methods = append(methods, ssh.PublicKeys(signers...))
	return methods, nil
}

func loadKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return signer, nil
}

func (r *Runner) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if r.cfg.InsecureHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := r.cfg.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	cb, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("known_hosts: %w (use -k to skip verification)", err)
	}
	return cb, nil
}
