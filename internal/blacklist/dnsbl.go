// Package blacklist checks IP reputation against DNS blocklists and
// pulls plain-text threat feeds for the firewall blocklist set.
package blacklist

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"opshub.dev/opshub/internal/clock"
	"opshub.dev/opshub/internal/logging"
	"opshub.dev/opshub/internal/report"
)

// DefaultZones is queried when the config names no dnsbl blocks.
var DefaultZones = []string{
	"zen.spamhaus.org",
	"bl.spamcop.net",
	"b.barracudacentral.org",
}

// ZoneResult is the verdict of one DNSBL zone for one IP.
type ZoneResult struct {
	Zone     string        `json:"zone"`
	Listed   bool          `json:"listed"`
	Response string        `json:"response,omitempty"` // A record returned when listed
	Reason   string        `json:"reason,omitempty"`   // TXT record when available
	RTT      time.Duration `json:"rtt"`
	Err      string        `json:"err,omitempty"`
}

// Result aggregates DNSBL verdicts for one IP.
type Result struct {
	IP        string       `json:"ip"`
	Listed    bool         `json:"listed"` // listed in at least one zone
	Zones     []ZoneResult `json:"zones"`
	CheckedAt time.Time    `json:"checked_at"`
}

// Headers implements report.Result.
func (r *Result) Headers() []string {
	return []string{"ZONE", "LISTED", "RESPONSE", "REASON"}
}

// Rows implements report.Result.
func (r *Result) Rows() [][]string {
	rows := make([][]string, 0, len(r.Zones))
	for _, z := range r.Zones {
		listed := "no"
		if z.Listed {
			listed = "YES"
		}
		if z.Err != "" {
			listed = "error"
		}
		rows = append(rows, []string{z.Zone, listed, z.Response, z.Reason})
	}
	return rows
}

var _ report.Result = (*Result)(nil)

// Checker queries DNSBL zones.
type Checker struct {
	logger   *logging.Logger
	resolver string
	timeout  time.Duration

	// exchange is swappable for tests.
	exchange func(ctx context.Context, m *dns.Msg, server string) (*dns.Msg, time.Duration, error)
}

// NewChecker creates a DNSBL checker. resolver may be empty; the
// system default (via 1.1.1.1) is used then.
func NewChecker(logger *logging.Logger, resolver string, timeout time.Duration) *Checker {
	if logger == nil {
		logger = logging.New(logging.DefaultConfig())
	}
	if resolver == "" {
		resolver = "1.1.1.1:53"
	} else if _, _, err := net.SplitHostPort(resolver); err != nil {
		resolver = resolver + ":53"
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	client := &dns.Client{Timeout: timeout}
	return &Checker{
		logger:   logger.WithComponent("blacklist"),
		resolver: resolver,
		timeout:  timeout,
		exchange: func(ctx context.Context, m *dns.Msg, server string) (*dns.Msg, time.Duration, error) {
			return client.ExchangeContext(ctx, m, server)
		},
	}
}

// Check queries every zone for the given IPv4 address.
func (c *Checker) Check(ctx context.Context, ip string, zones []string) (*Result, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return nil, fmt.Errorf("invalid IPv4 address: %s", ip)
	}
	if len(zones) == 0 {
		zones = DefaultZones
	}

	result := &Result{
		IP:        ip,
		CheckedAt: clock.Now(),
	}

	reversed := ReverseOctets(parsed.To4())

	for _, zone := range zones {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		zr := c.checkZone(ctx, reversed, zone)
		if zr.Listed {
			result.Listed = true
		}
		result.Zones = append(result.Zones, zr)
	}

	c.logger.Info("DNSBL check complete", "ip", ip, "zones", len(zones), "listed", result.Listed)
	return result, nil
}

func (c *Checker) checkZone(ctx context.Context, reversed, zone string) ZoneResult {
	zr := ZoneResult{Zone: zone}
	name := dns.Fqdn(reversed + "." + zone)

	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeA)
	m.RecursionDesired = true

	resp, rtt, err := c.exchange(ctx, m, c.resolver)
	zr.RTT = rtt
	if err != nil {
		zr.Err = err.Error()
		return zr
	}

	// NXDOMAIN means not listed; any 127.0.0.0/8 answer means listed.
	if resp.Rcode == dns.RcodeNameError {
		return zr
	}
	for _, ans := range resp.Answer {
		if a, ok := ans.(*dns.A); ok && a.A.To4() != nil && a.A.To4()[0] == 127 {
			zr.Listed = true
			zr.Response = a.A.String()
			break
		}
	}

	if zr.Listed {
		zr.Reason = c.lookupReason(ctx, name)
	}
	return zr
}

// lookupReason fetches the TXT record most DNSBLs attach to listings.
func (c *Checker) lookupReason(ctx context.Context, name string) string {
	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypeTXT)
	m.RecursionDesired = true

	resp, _, err := c.exchange(ctx, m, c.resolver)
	if err != nil {
		return ""
	}
	for _, ans := range resp.Answer {
		if txt, ok := ans.(*dns.TXT); ok && len(txt.Txt) > 0 {
			return strings.Join(txt.Txt, " ")
		}
	}
	return ""
}

// ReverseOctets returns the in-addr style reversed form of an IPv4
// address: 192.0.2.1 -> 1.2.0.192
func ReverseOctets(ip net.IP) string {
	v4 := ip.To4()
	return fmt.Sprintf("%d.%d.%d.%d", v4[3], v4[2], v4[1], v4[0])
}
