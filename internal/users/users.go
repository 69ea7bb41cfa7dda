// Package users reads the local account database and audits it for
// the usual operational hazards: duplicate UIDs, extra superusers,
// login shells on system accounts.
package users

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"opshub.dev/opshub/internal/report"
)

// User is one /etc/passwd entry.
type User struct {
	Name  string `json:"name"`
	UID   int    `json:"uid"`
	GID   int    `json:"gid"`
	Gecos string `json:"gecos,omitempty"`
	Home  string `json:"home"`
	Shell string `json:"shell"`
}

// Group is one /etc/group entry.
type Group struct {
	Name    string   `json:"name"`
	GID     int      `json:"gid"`
	Members []string `json:"members,omitempty"`
}

// nologin shells that mark an account as non-interactive.
var nologinShells = map[string]bool{
	"/usr/sbin/nologin": true,
	"/sbin/nologin":     true,
	"/bin/false":        true,
	"/usr/bin/false":    true,
	"":                  true,
}

// CanLogin reports whether the account has an interactive shell.
func (u *User) CanLogin() bool {
	return !nologinShells[u.Shell]
}

// System reports whether the UID falls in the conventional system
// range.
func (u *User) System() bool {
	return u.UID < 1000 && u.UID != 0
}

// DB is a parsed account database.
type DB struct {
	Users  []User
	Groups []Group
}

// Load reads /etc/passwd and /etc/group.
func Load() (*DB, error) {
	return LoadPaths("/etc/passwd", "/etc/group")
}

// LoadPaths reads the database from explicit paths, for tests and
// offline audit of copied files.
func LoadPaths(passwdPath, groupPath string) (*DB, error) {
	users, err := parsePasswd(passwdPath)
	if err != nil {
		return nil, err
	}
	groups, err := parseGroup(groupPath)
	if err != nil {
		return nil, err
	}
	return &DB{Users: users, Groups: groups}, nil
}

func parsePasswd(path string) ([]User, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var users []User
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, ":")
		if len(fields) != 7 {
			return nil, fmt.Errorf("%s:%d: expected 7 fields, got %d", path, line, len(fields))
		}
		uid, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad uid %q", path, line, fields[2])
		}
		gid, err := strconv.Atoi(fields[3])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad gid %q", path, line, fields[3])
		}
		users = append(users, User{
			Name:  fields[0],
			UID:   uid,
			GID:   gid,
			Gecos: fields[4],
			Home:  fields[5],
			Shell: fields[6],
		})
	}
	return users, scanner.Err()
}

func parseGroup(path string) ([]Group, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var groups []Group
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		fields := strings.Split(text, ":")
		if len(fields) != 4 {
			return nil, fmt.Errorf("%s:%d: expected 4 fields, got %d", path, line, len(fields))
		}
		gid, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: bad gid %q", path, line, fields[2])
		}
		g := Group{Name: fields[0], GID: gid}
		if fields[3] != "" {
			g.Members = strings.Split(fields[3], ",")
		}
		groups = append(groups, g)
	}
	return groups, scanner.Err()
}

// FindGroup returns the named group.
func (db *DB) FindGroup(name string) (Group, bool) {
	for _, g := range db.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return Group{}, false
}

// MembersOf returns all accounts in a group, whether listed as
// members or via their primary GID, sorted.
func (db *DB) MembersOf(name string) []string {
	g, ok := db.FindGroup(name)
	if !ok {
		return nil
	}

	seen := make(map[string]bool)
	for _, m := range g.Members {
		seen[m] = true
	}
	for _, u := range db.Users {
		if u.GID == g.GID {
			seen[u.Name] = true
		}
	}

	members := make([]string, 0, len(seen))
	for m := range seen {
		members = append(members, m)
	}
	sort.Strings(members)
	return members
}

// Interactive returns users with a login shell, sorted by UID.
func (db *DB) Interactive() []User {
	var out []User
	for _, u := range db.Users {
		if u.CanLogin() {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UID < out[j].UID })
	return out
}

// UserList renders users as a table.
type UserList []User

// Headers implements report.Result.
func (UserList) Headers() []string {
	return []string{"NAME", "UID", "GID", "HOME", "SHELL"}
}

// Rows implements report.Result.
func (l UserList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, u := range l {
		rows = append(rows, []string{
			u.Name,
			strconv.Itoa(u.UID),
			strconv.Itoa(u.GID),
			u.Home,
			u.Shell,
		})
	}
	return rows
}

var _ report.Result = (UserList)(nil)
