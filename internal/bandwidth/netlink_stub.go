//go:build !linux
// +build !linux

package bandwidth

import "fmt"

// NewFetcher returns the platform counter fetcher (stub).
func NewFetcher() (LinkStatsFetcher, error) {
	return nil, fmt.Errorf("interface counters require linux")
}

func linkSpeed(iface string) string { return "" }
