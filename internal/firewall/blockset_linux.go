//go:build linux
// +build linux

package firewall

import (
	"fmt"
	"net"
	"regexp"
	"sync"

	"github.com/google/nftables"

	"opshub.dev/opshub/internal/clock"
	"opshub.dev/opshub/internal/logging"
)

var validSetName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// BlocklistManager loads threat feed entries into nftables sets.
type BlocklistManager struct {
	conn      NFTablesConn
	logger    *logging.Logger
	tableName string

	mu    sync.Mutex
	table *nftables.Table
	sets  map[string]*nftables.Set
}

// NewBlocklistManager creates a manager over the given connection.
func NewBlocklistManager(logger *logging.Logger, conn NFTablesConn, tableName string) (*BlocklistManager, error) {
	if !validSetName.MatchString(tableName) {
		return nil, fmt.Errorf("invalid table name: %s", tableName)
	}
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	return &BlocklistManager{
		conn:      conn,
		logger:    logger.WithComponent("firewall"),
		tableName: tableName,
		sets:      make(map[string]*nftables.Set),
	}, nil
}

// OpenBlocklist connects to nftables and returns a manager for the
// named table.
func OpenBlocklist(logger *logging.Logger, tableName string) (*BlocklistManager, error) {
	conn, err := NewConn()
	if err != nil {
		return nil, fmt.Errorf("nftables: %w", err)
	}
	return NewBlocklistManager(logger, conn, tableName)
}

// ensureTable finds or creates the inet table.
func (m *BlocklistManager) ensureTable() (*nftables.Table, error) {
	if m.table != nil {
		return m.table, nil
	}

	tables, err := m.conn.ListTables()
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	for _, t := range tables {
		if t.Name == m.tableName && t.Family == nftables.TableFamilyINet {
			m.table = t
			return t, nil
		}
	}

	table := m.conn.AddTable(&nftables.Table{
		Name:   m.tableName,
		Family: nftables.TableFamilyINet,
	})
	if err := m.conn.Flush(); err != nil {
		return nil, fmt.Errorf("create table %s: %w", m.tableName, err)
	}
	m.logger.Info("table created", "table", m.tableName)
	m.table = table
	return table, nil
}

// ensureSet finds or creates a named interval set.
func (m *BlocklistManager) ensureSet(name string, keyType nftables.SetDatatype) (*nftables.Set, error) {
	if !validSetName.MatchString(name) {
		return nil, fmt.Errorf("invalid set name: %s", name)
	}
	if s, ok := m.sets[name]; ok {
		return s, nil
	}

	table, err := m.ensureTable()
	if err != nil {
		return nil, err
	}

	sets, err := m.conn.GetSets(table)
	if err != nil {
		return nil, fmt.Errorf("get sets: %w", err)
	}
	for _, s := range sets {
		if s.Name == name {
			m.sets[name] = s
			return s, nil
		}
	}

	set := &nftables.Set{
		Name:     name,
		Table:    table,
		KeyType:  keyType,
		Interval: true,
	}
	if err := m.conn.AddSet(set, nil); err != nil {
		return nil, fmt.Errorf("add set %s: %w", name, err)
	}
	if err := m.conn.Flush(); err != nil {
		return nil, fmt.Errorf("create set %s: %w", name, err)
	}
	m.logger.Info("set created", "set", name)
	m.sets[name] = set
	return set, nil
}

// ReloadIPv4 atomically replaces the IPv4 set contents with the given
// addresses and CIDRs. Invalid entries are skipped.
func (m *BlocklistManager) ReloadIPv4(setName string, entries []string) (int, error) {
	return m.reload(setName, nftables.TypeIPAddr, entries, false)
}

// ReloadIPv6 is ReloadIPv4 for the v6 set.
func (m *BlocklistManager) ReloadIPv6(setName string, entries []string) (int, error) {
	return m.reload(setName, nftables.TypeIP6Addr, entries, true)
}

func (m *BlocklistManager) reload(setName string, keyType nftables.SetDatatype, entries []string, v6 bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, err := m.ensureSet(setName, keyType)
	if err != nil {
		return 0, err
	}

	elements, count := elementsFromEntries(entries, v6)

	// Flush and refill inside one generation so lookups never see an
	// empty set.
	m.conn.FlushSet(set)
	if len(elements) > 0 {
		if err := m.conn.SetAddElements(set, elements); err != nil {
			return 0, fmt.Errorf("add elements to %s: %w", setName, err)
		}
	}
	if err := m.conn.Flush(); err != nil {
		return 0, fmt.Errorf("reload set %s: %w", setName, err)
	}

	m.logger.Info("blocklist set reloaded", "set", setName, "entries", count)
	m.logger.Audit("blocklist-reload", setName, map[string]any{"entries": count})
	return count, nil
}

// elementsFromEntries converts IPs and CIDRs into interval set
// elements. CIDRs become start/exclusive-end pairs. The returned
// count is logical entries, not raw elements.
func elementsFromEntries(entries []string, v6 bool) ([]nftables.SetElement, int) {
	var elements []nftables.SetElement
	count := 0

	for _, entry := range entries {
		if ip := net.ParseIP(entry); ip != nil {
			key := canonicalIP(ip, v6)
			if key == nil {
				continue
			}
			// A bare address in an interval set is a one-address range.
			elements = append(elements,
				nftables.SetElement{Key: key},
				nftables.SetElement{Key: nextIP(key), IntervalEnd: true},
			)
			count++
			continue
		}

		_, ipnet, err := net.ParseCIDR(entry)
		if err != nil {
			continue
		}
		start := canonicalIP(ipnet.IP, v6)
		if start == nil {
			continue
		}
		end := make(net.IP, len(start))
		copy(end, start)
		for i := range end {
			end[i] |= ^ipnet.Mask[i]
		}
		elements = append(elements,
			nftables.SetElement{Key: start},
			nftables.SetElement{Key: nextIP(end), IntervalEnd: true},
		)
		count++
	}
	return elements, count
}

// canonicalIP returns the 4-byte or 16-byte form matching the set
// family, or nil when the address belongs to the other family.
func canonicalIP(ip net.IP, v6 bool) net.IP {
	if v6 {
		if ip.To4() != nil {
			return nil
		}
		return ip.To16()
	}
	return ip.To4()
}

// nextIP returns ip+1, for exclusive interval ends.
func nextIP(ip net.IP) net.IP {
	next := make(net.IP, len(ip))
	copy(next, ip)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			break
		}
	}
	return next
}

// Status reports the current blocklist sets and their entry counts.
func (m *BlocklistManager) Status() (*BlocklistStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.ensureTable()
	if err != nil {
		return nil, err
	}
	sets, err := m.conn.GetSets(table)
	if err != nil {
		return nil, fmt.Errorf("get sets: %w", err)
	}

	status := &BlocklistStatus{
		Table:     m.tableName,
		UpdatedAt: clock.Now(),
	}
	for _, s := range sets {
		elements, err := m.conn.GetSetElements(s)
		if err != nil {
			return nil, fmt.Errorf("get elements of %s: %w", s.Name, err)
		}
		status.Sets = append(status.Sets, SetInfo{
			Name:     s.Name,
			KeyType:  s.KeyType.Name,
			Interval: s.Interval,
			Elements: logicalCount(elements),
		})
	}
	return status, nil
}

// logicalCount collapses interval start/end pairs into entry counts.
func logicalCount(elements []nftables.SetElement) int {
	n := 0
	for _, e := range elements {
		if !e.IntervalEnd {
			n++
		}
	}
	return n
}
