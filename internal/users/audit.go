package users

import (
	"fmt"
	"sort"
	"strings"

	"opshub.dev/opshub/internal/report"
)

// adminGroups convey root-equivalent access on common distros.
var adminGroups = []string{"sudo", "wheel", "admin", "docker"}

// Finding is one audit observation.
type Finding struct {
	Severity string `json:"severity"` // warn or info
	Check    string `json:"check"`
	Subject  string `json:"subject"`
	Detail   string `json:"detail"`
}

// AuditResult is a full account audit.
type AuditResult struct {
	Findings []Finding `json:"findings"`
	Warnings int       `json:"warnings"`
}

// Headers implements report.Result.
func (r *AuditResult) Headers() []string {
	return []string{"SEVERITY", "CHECK", "SUBJECT", "DETAIL"}
}

// Rows implements report.Result.
func (r *AuditResult) Rows() [][]string {
	rows := make([][]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		rows = append(rows, []string{f.Severity, f.Check, f.Subject, f.Detail})
	}
	return rows
}

var _ report.Result = (*AuditResult)(nil)

func (r *AuditResult) warn(check, subject, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{
		Severity: "warn",
		Check:    check,
		Subject:  subject,
		Detail:   fmt.Sprintf(format, args...),
	})
	r.Warnings++
}

func (r *AuditResult) info(check, subject, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{
		Severity: "info",
		Check:    check,
		Subject:  subject,
		Detail:   fmt.Sprintf(format, args...),
	})
}

// Audit inspects the account database.
func (db *DB) Audit() *AuditResult {
	result := &AuditResult{}

	db.auditDuplicateUIDs(result)
	db.auditSuperusers(result)
	db.auditSystemShells(result)
	db.auditAdminGroups(result)
	db.auditEmptyGroupMemberships(result)

	return result
}

// auditDuplicateUIDs flags UIDs shared between accounts, a classic
// way to hide a backdoor account.
func (db *DB) auditDuplicateUIDs(r *AuditResult) {
	byUID := make(map[int][]string)
	for _, u := range db.Users {
		byUID[u.UID] = append(byUID[u.UID], u.Name)
	}

	uids := make([]int, 0, len(byUID))
	for uid := range byUID {
		uids = append(uids, uid)
	}
	sort.Ints(uids)

	for _, uid := range uids {
		if names := byUID[uid]; len(names) > 1 {
			r.warn("duplicate-uid", fmt.Sprintf("uid %d", uid),
				"shared by %s", strings.Join(names, ", "))
		}
	}
}

// auditSuperusers flags any UID 0 account other than root.
func (db *DB) auditSuperusers(r *AuditResult) {
	for _, u := range db.Users {
		if u.UID == 0 && u.Name != "root" {
			r.warn("uid0", u.Name, "non-root account with uid 0")
		}
	}
}

// auditSystemShells flags system accounts that can log in.
func (db *DB) auditSystemShells(r *AuditResult) {
	for _, u := range db.Users {
		if u.System() && u.CanLogin() {
			r.warn("system-shell", u.Name,
				"system account (uid %d) has login shell %s", u.UID, u.Shell)
		}
	}
}

// auditAdminGroups reports membership of root-equivalent groups.
func (db *DB) auditAdminGroups(r *AuditResult) {
	for _, name := range adminGroups {
		members := db.MembersOf(name)
		if len(members) == 0 {
			continue
		}
		r.info("admin-group", name, "members: %s", strings.Join(members, ", "))
	}
}

// auditEmptyGroupMemberships flags group members that do not exist in
// passwd, usually leftovers from incomplete account removal.
func (db *DB) auditEmptyGroupMemberships(r *AuditResult) {
	known := make(map[string]bool, len(db.Users))
	for _, u := range db.Users {
		known[u.Name] = true
	}

	for _, g := range db.Groups {
		for _, m := range g.Members {
			if !known[m] {
				r.warn("orphan-member", g.Name, "member %q has no passwd entry", m)
			}
		}
	}
}
