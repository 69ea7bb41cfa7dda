package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Restore unpacks an archive into dir after verifying its checksum
// sidecar (when present). Entries that would escape dir are rejected.
func (r *Runner) Restore(ctx context.Context, archive, dir string) (int, error) {
	if _, err := os.Stat(archive + ".sha256"); err == nil {
		if err := Verify(archive); err != nil {
			return 0, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}

	f, err := os.Open(archive)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gz.Close()

	r.logger.Info("restore started", "archive", archive, "dir", dir)

	restored := 0
	tr := tar.NewReader(gz)
	for {
		if ctx.Err() != nil {
			return restored, ctx.Err()
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return restored, err
		}

		target, err := securePath(dir, hdr.Name)
		if err != nil {
			return restored, err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)&0o777); err != nil {
				return restored, err
			}
		case tar.TypeSymlink:
			// Links may point anywhere inside the tree once unpacked;
			// reject absolute targets outright.
			if filepath.IsAbs(hdr.Linkname) {
				return restored, fmt.Errorf("refusing absolute symlink %s -> %s", hdr.Name, hdr.Linkname)
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return restored, err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return restored, err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode)&0o777)
			if err != nil {
				return restored, err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return restored, err
			}
			if err := out.Close(); err != nil {
				return restored, err
			}
			restored++
		default:
			r.logger.Debug("skipping entry", "name", hdr.Name, "type", hdr.Typeflag)
		}
	}

	r.logger.Info("restore finished", "archive", archive, "files", restored)
	return restored, nil
}

// securePath joins an archive entry onto dir and rejects traversal
// outside it.
func securePath(dir, name string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry escapes restore dir: %s", name)
	}
	return filepath.Join(dir, cleaned), nil
}
