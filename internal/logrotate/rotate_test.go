package logrotate

import (
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opshub.dev/opshub/internal/config"
)

func TestFromConfig(t *testing.T) {
	p, err := FromConfig(config.Rotation{
		Name:    "app",
		Glob:    "/var/log/app/*.log",
		MaxSize: "100MB",
		MaxAge:  "720h",
		Keep:    3,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100*1024*1024), p.MaxSize)
	assert.Equal(t, 720*time.Hour, p.MaxAge)
	assert.Equal(t, 3, p.Keep)

	p, err = FromConfig(config.Rotation{Name: "d", Glob: "*", MaxSize: "1MB"})
	require.NoError(t, err)
	assert.Equal(t, config.DefaultRotateKeep, p.Keep)

	_, err = FromConfig(config.Rotation{Name: "bad", Glob: "*"})
	assert.Error(t, err, "policy without triggers")

	_, err = FromConfig(config.Rotation{Name: "bad", Glob: "*", MaxSize: "lots"})
	assert.Error(t, err)
}

func TestRun_SizeTrigger(t *testing.T) {
	dir := t.TempDir()
	big := filepath.Join(dir, "big.log")
	small := filepath.Join(dir, "small.log")
	require.NoError(t, os.WriteFile(big, []byte(strings.Repeat("x", 2048)), 0o644))
	require.NoError(t, os.WriteFile(small, []byte("tiny"), 0o644))

	r := New(nil)
	res, err := r.Run(context.Background(), Policy{
		Name:    "test",
		Glob:    filepath.Join(dir, "*.log"),
		MaxSize: 1024,
		Keep:    5,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rotated)

	var bigRes FileResult
	for _, f := range res.Files {
		if f.Path == big {
			bigRes = f
		}
	}
	require.True(t, bigRes.Rotated)
	assert.Equal(t, "size", bigRes.Reason)

	// Original truncated in place, copy holds the bytes.
	info, err := os.Stat(big)
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	data, err := os.ReadFile(bigRes.RotatedTo)
	require.NoError(t, err)
	assert.Len(t, data, 2048)
}

func TestRun_AgeTrigger(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old.log")
	require.NoError(t, os.WriteFile(old, []byte("stale"), 0o644))
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	r := New(nil)
	res, err := r.Run(context.Background(), Policy{
		Name:   "age",
		Glob:   filepath.Join(dir, "*.log"),
		MaxAge: 24 * time.Hour,
		Keep:   2,
	})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.True(t, res.Files[0].Rotated)
	assert.Equal(t, "age", res.Files[0].Reason)
}

func TestRun_Compress(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "app.log")
	payload := strings.Repeat("line of log text\n", 200)
	require.NoError(t, os.WriteFile(log, []byte(payload), 0o644))

	r := New(nil)
	res, err := r.Run(context.Background(), Policy{
		Name:     "gz",
		Glob:     filepath.Join(dir, "*.log"),
		MaxSize:  16,
		Keep:     5,
		Compress: true,
	})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	require.True(t, res.Files[0].Rotated)
	require.True(t, strings.HasSuffix(res.Files[0].RotatedTo, ".gz"))

	f, err := os.Open(res.Files[0].RotatedTo)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestRun_SkipsRotatedOutput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.log"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.log.20240101-000000"), []byte(strings.Repeat("x", 100)), 0o644))

	r := New(nil)
	res, err := r.Run(context.Background(), Policy{
		Name:    "skip",
		Glob:    filepath.Join(dir, "app.log*"),
		MaxSize: 10,
		Keep:    5,
	})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, filepath.Join(dir, "app.log"), res.Files[0].Path)
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	log := filepath.Join(dir, "app.log")
	for _, stamp := range []string{
		"20240101-000000", "20240102-000000", "20240103-000000", "20240104-000000",
	} {
		require.NoError(t, os.WriteFile(log+"."+stamp, []byte("x"), 0o644))
	}
	// Unrelated sibling must survive.
	require.NoError(t, os.WriteFile(log+".bak", []byte("x"), 0o644))

	n, err := prune(log, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.FileExists(t, log+".20240104-000000")
	assert.FileExists(t, log+".20240103-000000")
	assert.NoFileExists(t, log+".20240101-000000")
	assert.FileExists(t, log+".bak")
}

func TestIsRotated(t *testing.T) {
	assert.True(t, isRotated("/var/log/app.log.20240101-123000"))
	assert.True(t, isRotated("/var/log/app.log.20240101-123000.gz"))
	assert.False(t, isRotated("/var/log/app.log"))
	assert.False(t, isRotated("/var/log/app.log.bak"))
}
