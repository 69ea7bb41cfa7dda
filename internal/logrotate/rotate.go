// Package logrotate rotates log files by size or age using the
// copy-then-truncate strategy, so writers holding the file open keep
// logging without a reopen signal.
package logrotate

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"opshub.dev/opshub/internal/clock"
	"opshub.dev/opshub/internal/config"
	"opshub.dev/opshub/internal/logging"
	"opshub.dev/opshub/internal/report"
)

const stampLayout = "20060102-150405"

// Policy is a resolved rotation policy.
type Policy struct {
	Name     string
	Glob     string
	MaxSize  int64         // rotate when file exceeds this, 0 = no size trigger
	MaxAge   time.Duration // rotate when mtime older than this, 0 = no age trigger
	Keep     int           // rotated generations to keep
	Compress bool
}

// FromConfig resolves a config.Rotation into a Policy.
func FromConfig(rot config.Rotation) (Policy, error) {
	p := Policy{
		Name:     rot.Name,
		Glob:     rot.Glob,
		Keep:     rot.Keep,
		Compress: rot.Compress,
	}
	if p.Keep <= 0 {
		p.Keep = config.DefaultRotateKeep
	}
	if rot.MaxSize != "" {
		size, err := config.ParseSize(rot.MaxSize)
		if err != nil {
			return p, fmt.Errorf("rotation %q: %w", rot.Name, err)
		}
		p.MaxSize = size
	}
	if rot.MaxAge != "" {
		age, err := time.ParseDuration(rot.MaxAge)
		if err != nil {
			return p, fmt.Errorf("rotation %q: %w", rot.Name, err)
		}
		p.MaxAge = age
	}
	if p.MaxSize == 0 && p.MaxAge == 0 {
		return p, fmt.Errorf("rotation %q: needs max_size or max_age", rot.Name)
	}
	return p, nil
}

// FileResult is the outcome for one matched file.
type FileResult struct {
	Path      string `json:"path"`
	Rotated   bool   `json:"rotated"`
	RotatedTo string `json:"rotated_to,omitempty"`
	Reason    string `json:"reason,omitempty"` // size or age
	Pruned    int    `json:"pruned"`
	Err       string `json:"err,omitempty"`
}

// Result is one policy run.
type Result struct {
	Policy  string       `json:"policy"`
	Files   []FileResult `json:"files"`
	Rotated int          `json:"rotated"`
	RanAt   time.Time    `json:"ran_at"`
}

// Headers implements report.Result.
func (r *Result) Headers() []string {
	return []string{"FILE", "ROTATED", "REASON", "PRUNED"}
}

// Rows implements report.Result.
func (r *Result) Rows() [][]string {
	rows := make([][]string, 0, len(r.Files))
	for _, f := range r.Files {
		rotated := "no"
		if f.Rotated {
			rotated = "yes"
		}
		if f.Err != "" {
			rotated = "error"
		}
		rows = append(rows, []string{f.Path, rotated, f.Reason, fmt.Sprintf("%d", f.Pruned)})
	}
	return rows
}

var _ report.Result = (*Result)(nil)

// Rotator applies rotation policies.
type Rotator struct {
	logger *logging.Logger
}

// New creates a rotator.
func New(logger *logging.Logger) *Rotator {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Rotator{logger: logger.WithComponent("logrotate")}
}

// Run applies one policy to every file its glob matches. Per-file
// failures are recorded and the rest of the batch continues.
func (r *Rotator) Run(ctx context.Context, p Policy) (*Result, error) {
	matches, err := filepath.Glob(p.Glob)
	if err != nil {
		return nil, fmt.Errorf("rotation %q: bad glob: %w", p.Name, err)
	}
	sort.Strings(matches)

	result := &Result{Policy: p.Name, RanAt: clock.Now()}
	for _, path := range matches {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		// Never rotate our own rotated output.
		if isRotated(path) {
			continue
		}
		fr := r.rotateOne(path, p)
		if fr.Rotated {
			result.Rotated++
		}
		result.Files = append(result.Files, fr)
	}

	r.logger.Info("rotation run complete",
		"policy", p.Name,
		"matched", len(result.Files),
		"rotated", result.Rotated,
	)
	return result, nil
}

func (r *Rotator) rotateOne(path string, p Policy) FileResult {
	fr := FileResult{Path: path}

	info, err := os.Stat(path)
	if err != nil {
		fr.Err = err.Error()
		return fr
	}
	if !info.Mode().IsRegular() {
		return fr
	}

	reason := ""
	switch {
	case p.MaxSize > 0 && info.Size() > p.MaxSize:
		reason = "size"
	case p.MaxAge > 0 && clock.Since(info.ModTime()) > p.MaxAge && info.Size() > 0:
		reason = "age"
	default:
		return fr
	}

	target := fmt.Sprintf("%s.%s", path, clock.Now().Format(stampLayout))
	if err := copyTruncate(path, target, p.Compress); err != nil {
		fr.Err = err.Error()
		return fr
	}
	if p.Compress {
		target += ".gz"
	}

	fr.Rotated = true
	fr.RotatedTo = target
	fr.Reason = reason
	r.logger.Info("rotated", "file", path, "to", target, "reason", reason)

	pruned, err := prune(path, p.Keep)
	if err != nil {
		fr.Err = err.Error()
	}
	fr.Pruned = pruned
	return fr
}

// copyTruncate copies src to dst (optionally gzipped) and truncates
// src in place, preserving the writer's open file handle.
func copyTruncate(src, dst string, compress bool) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if compress {
		dst += ".gz"
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o640)
	if err != nil {
		return err
	}

	var w io.Writer = out
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(out)
		w = gz
	}

	if _, err := io.Copy(w, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			out.Close()
			os.Remove(dst)
			return err
		}
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}

	return os.Truncate(src, 0)
}

// prune deletes rotated generations of path beyond keep, newest first.
func prune(path string, keep int) (int, error) {
	gens, err := generations(path)
	if err != nil || len(gens) <= keep {
		return 0, err
	}
	pruned := 0
	for _, old := range gens[keep:] {
		if err := os.Remove(old); err != nil {
			return pruned, err
		}
		pruned++
	}
	return pruned, nil
}

// generations lists rotated copies of path, newest first.
func generations(path string) ([]string, error) {
	matches, err := filepath.Glob(path + ".*")
	if err != nil {
		return nil, err
	}
	gens := matches[:0]
	for _, m := range matches {
		if isRotated(m) {
			gens = append(gens, m)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(gens)))
	return gens, nil
}

// isRotated reports whether path looks like rotated output,
// i.e. ends in a .20060102-150405 stamp with optional .gz.
func isRotated(path string) bool {
	base := strings.TrimSuffix(filepath.Base(path), ".gz")
	i := strings.LastIndex(base, ".")
	if i < 0 {
		return false
	}
	_, err := time.Parse(stampLayout, base[i+1:])
	return err == nil
}
