//go:build linux
// +build linux

package firewall

import (
	"fmt"

	"github.com/google/nftables"
	"github.com/google/nftables/expr"

	"opshub.dev/opshub/internal/clock"
)

// Reporter produces ruleset snapshots.
type Reporter struct {
	conn NFTablesConn
}

// NewReporter creates a reporter over the given connection.
func NewReporter(conn NFTablesConn) *Reporter {
	return &Reporter{conn: conn}
}

// OpenReporter connects to nftables and returns a reporter.
func OpenReporter() (*Reporter, error) {
	conn, err := NewConn()
	if err != nil {
		return nil, fmt.Errorf("nftables: %w", err)
	}
	return NewReporter(conn), nil
}

// Snapshot walks every table and summarizes chains, rules, counters
// and sets.
func (r *Reporter) Snapshot() (*Snapshot, error) {
	tables, err := r.conn.ListTables()
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	snap := &Snapshot{TakenAt: clock.Now()}
	for _, table := range tables {
		info := TableInfo{
			Name:   table.Name,
			Family: familyName(table.Family),
		}

		chains, err := r.conn.ListChainsOfTableFamily(table.Family)
		if err != nil {
			return nil, fmt.Errorf("list chains: %w", err)
		}
		for _, chain := range chains {
			if chain.Table == nil || chain.Table.Name != table.Name {
				continue
			}
			ci := ChainInfo{
				Name:   chain.Name,
				Hook:   hookName(chain.Hooknum),
				Policy: policyName(chain.Policy),
			}

			rules, err := r.conn.GetRules(table, chain)
			if err != nil {
				return nil, fmt.Errorf("get rules of %s/%s: %w", table.Name, chain.Name, err)
			}
			ci.Rules = len(rules)
			for _, rule := range rules {
				packets, bytes := ruleCounters(rule)
				info.Packets += packets
				info.Bytes += bytes
			}
			info.Chains = append(info.Chains, ci)
		}

		sets, err := r.conn.GetSets(table)
		if err != nil {
			return nil, fmt.Errorf("get sets of %s: %w", table.Name, err)
		}
		for _, set := range sets {
			elements, err := r.conn.GetSetElements(set)
			if err != nil {
				return nil, fmt.Errorf("get elements of %s: %w", set.Name, err)
			}
			info.Sets = append(info.Sets, SetInfo{
				Name:     set.Name,
				KeyType:  set.KeyType.Name,
				Interval: set.Interval,
				Elements: logicalCount(elements),
			})
		}

		snap.Tables = append(snap.Tables, info)
	}
	return snap, nil
}

// ruleCounters sums the counter expressions of one rule.
func ruleCounters(rule *nftables.Rule) (packets, bytes uint64) {
	for _, e := range rule.Exprs {
		if c, ok := e.(*expr.Counter); ok {
			packets += c.Packets
			bytes += c.Bytes
		}
	}
	return packets, bytes
}

func familyName(f nftables.TableFamily) string {
	switch f {
	case nftables.TableFamilyINet:
		return "inet"
	case nftables.TableFamilyIPv4:
		return "ip"
	case nftables.TableFamilyIPv6:
		return "ip6"
	case nftables.TableFamilyARP:
		return "arp"
	case nftables.TableFamilyBridge:
		return "bridge"
	case nftables.TableFamilyNetdev:
		return "netdev"
	default:
		return fmt.Sprintf("family-%d", f)
	}
}

func hookName(hook *nftables.ChainHook) string {
	if hook == nil {
		return ""
	}
	switch *hook {
	case *nftables.ChainHookPrerouting:
		return "prerouting"
	case *nftables.ChainHookInput:
		return "input"
	case *nftables.ChainHookForward:
		return "forward"
	case *nftables.ChainHookOutput:
		return "output"
	case *nftables.ChainHookPostrouting:
		return "postrouting"
	default:
		return fmt.Sprintf("hook-%d", *hook)
	}
}

func policyName(policy *nftables.ChainPolicy) string {
	if policy == nil {
		return ""
	}
	if *policy == nftables.ChainPolicyAccept {
		return "accept"
	}
	return "drop"
}
