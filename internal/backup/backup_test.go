package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opshub.dev/opshub/internal/config"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestRun_ArchiveAndRestore(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	writeTree(t, src, map[string]string{
		"app/config.yml": "listen: :8080\n",
		"app/data/a.txt": "hello",
		"app/data/b.log": "noise",
	})

	r := NewRunner(nil)
	res, err := r.Run(context.Background(), config.Backup{
		Name:    "etc",
		Sources: []string{filepath.Join(src, "app")},
		Dest:    dest,
		Exclude: []string{"*.log"},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Files)
	assert.NotEmpty(t, res.Checksum)
	assert.FileExists(t, res.Archive)
	assert.FileExists(t, res.Archive+".sha256")
	require.NoError(t, Verify(res.Archive))

	out := t.TempDir()
	n, err := r.Restore(context.Background(), res.Archive, out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	data, err := os.ReadFile(filepath.Join(out, "app", "data", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
	assert.NoFileExists(t, filepath.Join(out, "app", "data", "b.log"))
}

func TestRun_MissingSourceFails(t *testing.T) {
	r := NewRunner(nil)
	_, err := r.Run(context.Background(), config.Backup{
		Name:    "gone",
		Sources: []string{"/nonexistent/path"},
		Dest:    t.TempDir(),
	})
	assert.Error(t, err)
}

func TestRun_Validation(t *testing.T) {
	r := NewRunner(nil)
	_, err := r.Run(context.Background(), config.Backup{Name: "x", Dest: t.TempDir()})
	assert.Error(t, err)
	_, err = r.Run(context.Background(), config.Backup{Name: "x", Sources: []string{"/tmp"}})
	assert.Error(t, err)
}

func TestPrune_KeepsNewest(t *testing.T) {
	dest := t.TempDir()
	stamps := []string{
		"20240101-000000", "20240102-000000", "20240103-000000",
		"20240104-000000", "20240105-000000",
	}
	for _, s := range stamps {
		name := filepath.Join(dest, "etc-"+s+".tar.gz")
		require.NoError(t, os.WriteFile(name, []byte("x"), 0o644))
		require.NoError(t, os.WriteFile(name+".sha256", []byte("y"), 0o644))
	}

	pruned, err := Prune(dest, "etc", 3)
	require.NoError(t, err)
	require.Len(t, pruned, 2)

	left, err := List(dest, "etc")
	require.NoError(t, err)
	require.Len(t, left, 3)
	assert.Contains(t, left[0], "20240105")
	assert.NoFileExists(t, filepath.Join(dest, "etc-20240101-000000.tar.gz.sha256"))
}

func TestPrune_IgnoresOtherJobs(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dest, "etc-20240101-000000.tar.gz"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "www-20240101-000000.tar.gz"), []byte("x"), 0o644))

	pruned, err := Prune(dest, "etc", 1)
	require.NoError(t, err)
	assert.Empty(t, pruned)
	assert.FileExists(t, filepath.Join(dest, "www-20240101-000000.tar.gz"))
}

func TestVerify_DetectsTamper(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	writeTree(t, src, map[string]string{"d/f": "content"})

	r := NewRunner(nil)
	res, err := r.Run(context.Background(), config.Backup{
		Name:    "j",
		Sources: []string{filepath.Join(src, "d")},
		Dest:    dest,
	})
	require.NoError(t, err)

	f, err := os.OpenFile(res.Archive, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("tamper")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Error(t, Verify(res.Archive))
}

func TestSecurePath(t *testing.T) {
	dir := t.TempDir()

	ok, err := securePath(dir, "a/b/c")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a", "b", "c"), ok)

	_, err = securePath(dir, "../escape")
	assert.Error(t, err)
	_, err = securePath(dir, "a/../../escape")
	assert.Error(t, err)
	_, err = securePath(dir, "/abs/path")
	assert.Error(t, err)
}

func TestExcluded(t *testing.T) {
	assert.True(t, Excluded("logs/app.log", "app.log", []string{"*.log"}))
	assert.True(t, Excluded("cache", "cache", []string{"cache"}))
	assert.False(t, Excluded("data/app.txt", "app.txt", []string{"*.log"}))
}

func TestResultRows(t *testing.T) {
	res := &Result{
		Job:      "etc",
		Archive:  "/var/backups/etc-20240101-000000.tar.gz",
		Files:    12,
		Bytes:    4096,
		Duration: 1500 * time.Millisecond,
	}
	rows := res.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "etc", rows[0][0])
	assert.Equal(t, "etc-20240101-000000.tar.gz", rows[0][1])
	assert.Equal(t, "1.5s", rows[0][5])
}
