//go:build !linux
// +build !linux

package firewall

import "opshub.dev/opshub/internal/logging"

// BlocklistManager is unavailable off linux.
type BlocklistManager struct{}

// NewBlocklistManager returns ErrUnsupported (stub).
func NewBlocklistManager(logger *logging.Logger, conn any, tableName string) (*BlocklistManager, error) {
	return nil, ErrUnsupported
}

// OpenBlocklist returns ErrUnsupported (stub).
func OpenBlocklist(logger *logging.Logger, tableName string) (*BlocklistManager, error) {
	return nil, ErrUnsupported
}

// ReloadIPv4 returns ErrUnsupported (stub).
func (m *BlocklistManager) ReloadIPv4(setName string, entries []string) (int, error) {
	return 0, ErrUnsupported
}

// ReloadIPv6 returns ErrUnsupported (stub).
func (m *BlocklistManager) ReloadIPv6(setName string, entries []string) (int, error) {
	return 0, ErrUnsupported
}

// Status returns ErrUnsupported (stub).
func (m *BlocklistManager) Status() (*BlocklistStatus, error) {
	return nil, ErrUnsupported
}

// Reporter is unavailable off linux.
type Reporter struct{}

// NewReporter creates a stub reporter.
func NewReporter(conn any) *Reporter { return &Reporter{} }

// OpenReporter returns ErrUnsupported (stub).
func OpenReporter() (*Reporter, error) {
	return nil, ErrUnsupported
}

// Snapshot returns ErrUnsupported (stub).
func (r *Reporter) Snapshot() (*Snapshot, error) {
	return nil, ErrUnsupported
}
