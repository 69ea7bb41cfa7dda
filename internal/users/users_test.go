package users

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePasswd = `root:x:0:0:root:/root:/bin/bash
daemon:x:1:1:daemon:/usr/sbin:/usr/sbin/nologin
backdoor:x:0:0::/root:/bin/sh
postgres:x:120:125:PostgreSQL:/var/lib/postgresql:/bin/bash
alice:x:1000:1000:Alice:/home/alice:/bin/zsh
bob:x:1001:1001::/home/bob:/bin/bash
eve:x:1001:1001::/home/eve:/bin/bash
`

const sampleGroup = `root:x:0:
sudo:x:27:alice
docker:x:996:bob,ghost
users:x:100:
`

func writeDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	passwd := filepath.Join(dir, "passwd")
	group := filepath.Join(dir, "group")
	require.NoError(t, os.WriteFile(passwd, []byte(samplePasswd), 0o644))
	require.NoError(t, os.WriteFile(group, []byte(sampleGroup), 0o644))

	db, err := LoadPaths(passwd, group)
	require.NoError(t, err)
	return db
}

func TestLoadPaths(t *testing.T) {
	db := writeDB(t)
	require.Len(t, db.Users, 7)
	require.Len(t, db.Groups, 4)

	root := db.Users[0]
	assert.Equal(t, "root", root.Name)
	assert.Equal(t, 0, root.UID)
	assert.Equal(t, "/bin/bash", root.Shell)

	docker, ok := db.FindGroup("docker")
	require.True(t, ok)
	assert.Equal(t, []string{"bob", "ghost"}, docker.Members)
}

func TestLoadPaths_Malformed(t *testing.T) {
	dir := t.TempDir()
	passwd := filepath.Join(dir, "passwd")
	group := filepath.Join(dir, "group")
	require.NoError(t, os.WriteFile(passwd, []byte("too:few:fields\n"), 0o644))
	require.NoError(t, os.WriteFile(group, []byte(""), 0o644))

	_, err := LoadPaths(passwd, group)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(passwd, []byte("u:x:notanint:1::/h:/bin/sh\n"), 0o644))
	_, err = LoadPaths(passwd, group)
	assert.Error(t, err)
}

func TestCanLogin(t *testing.T) {
	assert.True(t, (&User{Shell: "/bin/bash"}).CanLogin())
	assert.False(t, (&User{Shell: "/usr/sbin/nologin"}).CanLogin())
	assert.False(t, (&User{Shell: "/bin/false"}).CanLogin())
	assert.False(t, (&User{Shell: ""}).CanLogin())
}

func TestInteractive(t *testing.T) {
	db := writeDB(t)
	users := db.Interactive()

	names := make([]string, len(users))
	for i, u := range users {
		names[i] = u.Name
	}
	// Sorted by UID; daemon has nologin.
	assert.Equal(t, []string{"root", "backdoor", "postgres", "alice", "bob", "eve"}, names)
}

func TestMembersOf(t *testing.T) {
	db := writeDB(t)

	// alice via member list, nobody via primary GID 27.
	assert.Equal(t, []string{"alice"}, db.MembersOf("sudo"))
	assert.Nil(t, db.MembersOf("nosuchgroup"))
}

func TestAudit(t *testing.T) {
	db := writeDB(t)
	res := db.Audit()

	byCheck := make(map[string][]Finding)
	for _, f := range res.Findings {
		byCheck[f.Check] = append(byCheck[f.Check], f)
	}

	// uid 0 shared by root and backdoor, uid 1001 by bob and eve.
	require.Len(t, byCheck["duplicate-uid"], 2)
	assert.Contains(t, byCheck["duplicate-uid"][0].Detail, "backdoor")

	require.Len(t, byCheck["uid0"], 1)
	assert.Equal(t, "backdoor", byCheck["uid0"][0].Subject)

	// postgres is a system account with bash.
	require.Len(t, byCheck["system-shell"], 1)
	assert.Equal(t, "postgres", byCheck["system-shell"][0].Subject)

	// ghost is in docker group but has no passwd entry.
	require.Len(t, byCheck["orphan-member"], 1)
	assert.Equal(t, "docker", byCheck["orphan-member"][0].Subject)

	// admin group info findings for sudo and docker.
	assert.Len(t, byCheck["admin-group"], 2)

	assert.Equal(t, 5, res.Warnings)
}

func TestAudit_CleanSystem(t *testing.T) {
	dir := t.TempDir()
	passwd := filepath.Join(dir, "passwd")
	group := filepath.Join(dir, "group")
	require.NoError(t, os.WriteFile(passwd, []byte("root:x:0:0:root:/root:/bin/bash\nalice:x:1000:1000::/home/alice:/bin/bash\n"), 0o644))
	require.NoError(t, os.WriteFile(group, []byte("root:x:0:\n"), 0o644))

	db, err := LoadPaths(passwd, group)
	require.NoError(t, err)

	res := db.Audit()
	assert.Zero(t, res.Warnings)
}
