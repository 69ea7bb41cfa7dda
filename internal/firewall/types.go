// Package firewall manages the nftables blocklist set that threat
// feeds load into, and reports on the running ruleset.
package firewall

import (
	"errors"
	"fmt"
	"time"

	"opshub.dev/opshub/internal/report"
)

// ErrUnsupported is returned on platforms without nftables.
var ErrUnsupported = errors.New("nftables requires linux")

// ChainInfo describes one chain in the ruleset.
type ChainInfo struct {
	Name   string `json:"name"`
	Hook   string `json:"hook,omitempty"` // input, forward, ... empty for regular chains
	Policy string `json:"policy,omitempty"`
	Rules  int    `json:"rules"`
}

// SetInfo describes one named set.
type SetInfo struct {
	Name     string `json:"name"`
	KeyType  string `json:"key_type"`
	Interval bool   `json:"interval"`
	Elements int    `json:"elements"`
}

// TableInfo describes one table with its chains and sets.
type TableInfo struct {
	Name    string      `json:"name"`
	Family  string      `json:"family"`
	Chains  []ChainInfo `json:"chains"`
	Sets    []SetInfo   `json:"sets"`
	Packets uint64      `json:"packets"` // summed rule counters
	Bytes   uint64      `json:"bytes"`
}

// Snapshot is a point-in-time view of the ruleset.
type Snapshot struct {
	Tables  []TableInfo `json:"tables"`
	TakenAt time.Time   `json:"taken_at"`
}

// Headers implements report.Result.
func (s *Snapshot) Headers() []string {
	return []string{"TABLE", "FAMILY", "CHAIN", "HOOK", "POLICY", "RULES"}
}

// Rows implements report.Result.
func (s *Snapshot) Rows() [][]string {
	var rows [][]string
	for _, t := range s.Tables {
		if len(t.Chains) == 0 {
			rows = append(rows, []string{t.Name, t.Family, "-", "", "", "0"})
			continue
		}
		for _, c := range t.Chains {
			rows = append(rows, []string{
				t.Name, t.Family, c.Name, c.Hook, c.Policy, fmt.Sprintf("%d", c.Rules),
			})
		}
	}
	return rows
}

var _ report.Result = (*Snapshot)(nil)

// BlocklistStatus reports the loaded blocklist sets.
type BlocklistStatus struct {
	Table     string    `json:"table"`
	Sets      []SetInfo `json:"sets"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Headers implements report.Result.
func (b *BlocklistStatus) Headers() []string {
	return []string{"SET", "TYPE", "ENTRIES"}
}

// Rows implements report.Result.
func (b *BlocklistStatus) Rows() [][]string {
	rows := make([][]string, 0, len(b.Sets))
	for _, s := range b.Sets {
		rows = append(rows, []string{s.Name, s.KeyType, fmt.Sprintf("%d", s.Elements)})
	}
	return rows
}

var _ report.Result = (*BlocklistStatus)(nil)
