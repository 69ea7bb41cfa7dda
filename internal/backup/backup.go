// Package backup creates timestamped tar.gz archives of configured
// source trees, writes sha256 sidecars and prunes old archives by a
// keep-newest policy.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"io/fs"
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

// timestampLayout names archives sortably: name-20060102-150405.tar.gz
const timestampLayout = "20060102-150405"

// Result is the outcome of one backup job run.
type Result struct {
	Job       string        `json:"job"`
	Archive   string        `json:"archive"`
	Checksum  string        `json:"checksum"` // hex sha256 of the archive
	Files     int           `json:"files"`
	Bytes     int64         `json:"bytes"` // uncompressed payload
	Skipped   []string      `json:"skipped,omitempty"`
	Pruned    []string      `json:"pruned,omitempty"`
	Duration  time.Duration `json:"duration"`
	StartedAt time.Time     `json:"started_at"`
}

// Headers implements report.Result.
func (r *Result) Headers() []string {
	return []string{"JOB", "ARCHIVE", "FILES", "BYTES", "PRUNED", "DURATION"}
}

// Rows implements report.Result.
func (r *Result) Rows() [][]string {
	return [][]string{{
		r.Job,
		filepath.Base(r.Archive),
		fmt.Sprintf("%d", r.Files),
		fmt.Sprintf("%d", r.Bytes),
		fmt.Sprintf("%d", len(r.Pruned)),
		fmt.Sprintf("%.1fs", r.Duration.Seconds()),
	}}
}

var _ report.Result = (*Result)(nil)

// Runner executes backup jobs.
type Runner struct {
	logger *logging.Logger
}

// NewRunner creates a backup runner.
func NewRunner(logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &Runner{logger: logger.WithComponent("backup")}
}

// Run archives the job's sources into dest. Unreadable files are
// skipped and recorded; only a missing source tree is fatal.
func (r *Runner) Run(ctx context.Context, job config.Backup) (*Result, error) {
	if len(job.Sources) == 0 {
		return nil, fmt.Errorf("backup %q: no sources", job.Name)
	}
	if job.Dest == "" {
		return nil, fmt.Errorf("backup %q: no dest", job.Name)
	}
	if err := os.MkdirAll(job.Dest, 0o755); err != nil {
		return nil, fmt.Errorf("backup %q: %w", job.Name, err)
	}

	start := clock.Now()
	result := &Result{
		Job:       job.Name,
		StartedAt: start,
	}
	result.Archive = filepath.Join(job.Dest,
		fmt.Sprintf("%s-%s.tar.gz", job.Name, start.Format(timestampLayout)))

	r.logger.Info("backup started", "job", job.Name, "archive", result.Archive)

	if err := r.writeArchive(ctx, job, result); err != nil {
		os.Remove(result.Archive)
		return nil, err
	}

	sum, err := checksumFile(result.Archive)
	if err != nil {
		return nil, fmt.Errorf("backup %q: checksum: %w", job.Name, err)
	}
	result.Checksum = sum
	if err := writeSidecar(result.Archive, sum); err != nil {
		return nil, err
	}

	keep := job.Keep
	if keep <= 0 {
		keep = config.DefaultBackupKeep
	}
	pruned, err := Prune(job.Dest, job.Name, keep)
	if err != nil {
		r.logger.Warn("prune failed", "job", job.Name, "error", err)
	}
	result.Pruned = pruned

	result.Duration = clock.Since(start)
	r.logger.Info("backup finished",
		"job", job.Name,
		"files", result.Files,
		"bytes", result.Bytes,
		"skipped", len(result.Skipped),
		"pruned", len(result.Pruned),
		"duration", result.Duration.Round(time.Millisecond),
	)
	r.logger.Audit("backup", job.Name, map[string]any{
		"archive":  result.Archive,
		"checksum": result.Checksum,
	})
	return result, nil
}

func (r *Runner) writeArchive(ctx context.Context, job config.Backup, result *Result) error {
	f, err := os.Create(result.Archive)
	if err != nil {
		return fmt.Errorf("backup %q: %w", job.Name, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	for _, src := range job.Sources {
		if err := r.addTree(ctx, tw, src, job.Exclude, result); err != nil {
			return fmt.Errorf("backup %q: %s: %w", job.Name, src, err)
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	return f.Close()
}

// addTree walks one source tree. Entries are stored relative to the
// source's parent so the archive unpacks into recognizable top-level
// directories.
func (r *Runner) addTree(ctx context.Context, tw *tar.Writer, src string, exclude []string, result *Result) error {
	src = filepath.Clean(src)
	base := filepath.Dir(src)

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if path == src {
				return err
			}
			result.Skipped = append(result.Skipped, path)
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		if Excluded(rel, d.Name(), exclude) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			result.Skipped = append(result.Skipped, path)
			return nil
		}

		link := ""
		if info.Mode()&os.ModeSymlink != 0 {
			if link, err = os.Readlink(path); err != nil {
				result.Skipped = append(result.Skipped, path)
				return nil
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if d.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}

		in, err := os.Open(path)
		if err != nil {
			result.Skipped = append(result.Skipped, path)
			return nil
		}
		defer in.Close()

		n, err := io.Copy(tw, in)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		result.Files++
		result.Bytes += n
		return nil
	})
}

// Excluded matches a path against exclude globs. Patterns apply to
// both the entry basename and the archive-relative path.
func Excluded(rel, name string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, filepath.ToSlash(rel)); ok {
			return true
		}
	}
	return false
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// writeSidecar writes the sha256sum-compatible sidecar next to the
// archive.
func writeSidecar(archive, sum string) error {
	line := fmt.Sprintf("%s  %s\n", sum, filepath.Base(archive))
	return os.WriteFile(archive+".sha256", []byte(line), 0o644)
}

// Verify recomputes the archive checksum and compares it with the
// sidecar.
func Verify(archive string) error {
	data, err := os.ReadFile(archive + ".sha256")
	if err != nil {
		return fmt.Errorf("no checksum sidecar: %w", err)
	}
	want := strings.Fields(string(data))
	if len(want) == 0 {
		return fmt.Errorf("empty checksum sidecar for %s", archive)
	}

	got, err := checksumFile(archive)
	if err != nil {
		return err
	}
	if got != want[0] {
		return fmt.Errorf("checksum mismatch for %s: have %s want %s", archive, got, want[0])
	}
	return nil
}

// Prune removes the oldest archives of a job beyond keep, newest
// first by the timestamp in the file name. Sidecars go with their
// archives.
func Prune(dest, job string, keep int) ([]string, error) {
	archives, err := List(dest, job)
	if err != nil {
		return nil, err
	}
	if len(archives) <= keep {
		return nil, nil
	}

	var pruned []string
	for _, old := range archives[keep:] {
		if err := os.Remove(old); err != nil {
			return pruned, err
		}
		os.Remove(old + ".sha256")
		pruned = append(pruned, old)
	}
	return pruned, nil
}

// List returns a job's archives in dest, newest first.
func List(dest, job string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dest, job+"-*.tar.gz"))
	if err != nil {
		return nil, err
	}
	// Timestamped names sort chronologically; reverse for newest first.
	sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	return matches, nil
}
