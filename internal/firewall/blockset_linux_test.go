//go:build linux
// +build linux

package firewall

import (
	"fmt"
	"net"
	"testing"

	"github.com/google/nftables"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn keeps nftables state in memory.
type fakeConn struct {
	tables   []*nftables.Table
	sets     map[string]*nftables.Set
	elements map[string][]nftables.SetElement
	flushErr error
	flushes  int
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		sets:     make(map[string]*nftables.Set),
		elements: make(map[string][]nftables.SetElement),
	}
}

func (f *fakeConn) AddTable(t *nftables.Table) *nftables.Table {
	f.tables = append(f.tables, t)
	return t
}

func (f *fakeConn) ListTables() ([]*nftables.Table, error) { return f.tables, nil }

func (f *fakeConn) ListChainsOfTableFamily(family nftables.TableFamily) ([]*nftables.Chain, error) {
	return nil, nil
}

func (f *fakeConn) GetRules(t *nftables.Table, c *nftables.Chain) ([]*nftables.Rule, error) {
	return nil, nil
}

func (f *fakeConn) AddSet(s *nftables.Set, vals []nftables.SetElement) error {
	f.sets[s.Name] = s
	f.elements[s.Name] = append([]nftables.SetElement{}, vals...)
	return nil
}

func (f *fakeConn) GetSets(t *nftables.Table) ([]*nftables.Set, error) {
	var out []*nftables.Set
	for _, s := range f.sets {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeConn) GetSetElements(s *nftables.Set) ([]nftables.SetElement, error) {
	return f.elements[s.Name], nil
}

func (f *fakeConn) SetAddElements(s *nftables.Set, vals []nftables.SetElement) error {
	f.elements[s.Name] = append(f.elements[s.Name], vals...)
	return nil
}

func (f *fakeConn) FlushSet(s *nftables.Set) {
	f.elements[s.Name] = nil
}

func (f *fakeConn) Flush() error {
	f.flushes++
	return f.flushErr
}

func TestReloadIPv4_CreatesTableAndSet(t *testing.T) {
	conn := newFakeConn()
	m, err := NewBlocklistManager(nil, conn, "opshub")
	require.NoError(t, err)

	n, err := m.ReloadIPv4("blocklist_v4", []string{"192.0.2.1", "198.51.100.0/24"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, conn.tables, 1)
	assert.Equal(t, "opshub", conn.tables[0].Name)
	assert.Equal(t, nftables.TableFamilyINet, conn.tables[0].Family)

	set := conn.sets["blocklist_v4"]
	require.NotNil(t, set)
	assert.True(t, set.Interval)

	// Two entries, each a start/end pair.
	assert.Len(t, conn.elements["blocklist_v4"], 4)
}

func TestReloadIPv4_ReplacesContents(t *testing.T) {
	conn := newFakeConn()
	m, err := NewBlocklistManager(nil, conn, "opshub")
	require.NoError(t, err)

	_, err = m.ReloadIPv4("blocklist_v4", []string{"192.0.2.1"})
	require.NoError(t, err)
	n, err := m.ReloadIPv4("blocklist_v4", []string{"203.0.113.9"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	elements := conn.elements["blocklist_v4"]
	require.Len(t, elements, 2)
	assert.Equal(t, net.ParseIP("203.0.113.9").To4(), net.IP(elements[0].Key))
}

func TestReloadIPv4_SkipsGarbageAndV6(t *testing.T) {
	conn := newFakeConn()
	m, err := NewBlocklistManager(nil, conn, "opshub")
	require.NoError(t, err)

	n, err := m.ReloadIPv4("blocklist_v4", []string{"not-an-ip", "2001:db8::1", "192.0.2.7"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReloadIPv6(t *testing.T) {
	conn := newFakeConn()
	m, err := NewBlocklistManager(nil, conn, "opshub")
	require.NoError(t, err)

	n, err := m.ReloadIPv6("blocklist_v6", []string{"2001:db8::1", "2001:db8:1::/48", "192.0.2.1"})
	require.NoError(t, err)
	assert.Equal(t, 2, n, "v4 address does not land in the v6 set")
}

func TestNewBlocklistManager_BadTableName(t *testing.T) {
	_, err := NewBlocklistManager(nil, newFakeConn(), "bad table; drop")
	assert.Error(t, err)
}

func TestReload_FlushError(t *testing.T) {
	conn := newFakeConn()
	conn.flushErr = fmt.Errorf("netlink: permission denied")
	m, err := NewBlocklistManager(nil, conn, "opshub")
	require.NoError(t, err)

	_, err = m.ReloadIPv4("blocklist_v4", []string{"192.0.2.1"})
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	conn := newFakeConn()
	m, err := NewBlocklistManager(nil, conn, "opshub")
	require.NoError(t, err)

	_, err = m.ReloadIPv4("blocklist_v4", []string{"192.0.2.1", "10.0.0.0/8"})
	require.NoError(t, err)

	status, err := m.Status()
	require.NoError(t, err)
	require.Len(t, status.Sets, 1)
	assert.Equal(t, "blocklist_v4", status.Sets[0].Name)
	assert.Equal(t, 2, status.Sets[0].Elements)
}

func TestElementsFromEntries_CIDRBounds(t *testing.T) {
	elements, count := elementsFromEntries([]string{"198.51.100.0/24"}, false)
	require.Equal(t, 1, count)
	require.Len(t, elements, 2)

	assert.Equal(t, net.ParseIP("198.51.100.0").To4(), net.IP(elements[0].Key))
	assert.False(t, elements[0].IntervalEnd)
	// Exclusive end is the address after the range.
	assert.Equal(t, net.ParseIP("198.51.101.0").To4(), net.IP(elements[1].Key))
	assert.True(t, elements[1].IntervalEnd)
}

func TestNextIP_Carry(t *testing.T) {
	assert.Equal(t,
		net.ParseIP("10.0.1.0").To4(),
		nextIP(net.ParseIP("10.0.0.255").To4()))
}
