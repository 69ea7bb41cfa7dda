//go:build linux
// +build linux

package bandwidth

import (
	"fmt"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
)

// NetlinkFetcher reads interface counters from the kernel via
// netlink.
type NetlinkFetcher struct{}

// NewFetcher returns the platform counter fetcher.
func NewFetcher() (LinkStatsFetcher, error) {
	return &NetlinkFetcher{}, nil
}

// FetchStats implements LinkStatsFetcher. Loopback and interfaces
// without statistics are skipped.
func (f *NetlinkFetcher) FetchStats() (map[string]LinkCounters, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("netlink link list: %w", err)
	}

	stats := make(map[string]LinkCounters, len(links))
	for _, link := range links {
		attrs := link.Attrs()
		if attrs == nil || attrs.Statistics == nil {
			continue
		}
		if attrs.Name == "lo" {
			continue
		}
		s := attrs.Statistics
		stats[attrs.Name] = LinkCounters{
			RxBytes:   s.RxBytes,
			TxBytes:   s.TxBytes,
			RxPackets: s.RxPackets,
			TxPackets: s.TxPackets,
			RxErrors:  s.RxErrors,
			TxErrors:  s.TxErrors,
		}
	}
	return stats, nil
}

// linkSpeed annotates an interface with its negotiated speed and
// duplex. Virtual NICs often report nothing useful; errors yield an
// empty string.
func linkSpeed(iface string) string {
	h, err := ethtool.NewEthtool()
	if err != nil {
		return ""
	}
	defer h.Close()

	settings, err := h.GetLinkSettings(iface)
	if err != nil || settings.Speed == 0 || settings.Speed == ^uint32(0) {
		return ""
	}
	duplex := "unknown"
	switch settings.Duplex {
	case ethtool.DUPLEX_FULL:
		duplex = "full"
	case ethtool.DUPLEX_HALF:
		duplex = "half"
	}
	return fmt.Sprintf("%dMb/s %s", settings.Speed, duplex)
}
